package tracking

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Janitor periodically drops finished sessions from a Service.
type Janitor struct {
	svc        *Service
	sweepEvery time.Duration
	retention  time.Duration
	now        func() time.Time
}

func NewJanitor(svc *Service, retention time.Duration) *Janitor {
	return &Janitor{svc: svc, sweepEvery: 30 * time.Second, retention: retention, now: time.Now}
}

func (j *Janitor) Run(ctx context.Context) {
	log.Info().Dur("retention", j.retention).Msg("tracking janitor: started")
	t := time.NewTicker(j.sweepEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("tracking janitor: stopping")
			return
		case <-t.C:
			j.tick()
		}
	}
}

func (j *Janitor) tick() {
	if n := j.svc.Sweep(j.now().Add(-j.retention)); n > 0 {
		log.Debug().Int("removed", n).Msg("janitor: swept finished sessions")
	}
}
