package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"paytrack/internal/auth"
	"paytrack/internal/config"
	"paytrack/internal/provider/status"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var cfg config.Cfg

var rootCmd = &cobra.Command{
	Use:           "paytrack",
	Short:         "Mobile-money payment confirmation tracker",
	Long:          "Track in-flight mobile-money payments against the payment status API until they settle, fail or time out.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		config.SetupLogging(cfg.Log)
		return nil
	},
}

func Execute() {
	os.Exit(run())
}

// run executes the CLI and returns the process exit code.
func run() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(os.Stderr, err)
	return 1
}

// newTokenStore returns the configured store and a cleanup func.
func newTokenStore() (auth.Store, func()) {
	if cfg.Token.Store == config.TokenStoreRedis {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		return auth.NewRedisStore(rdb, cfg.Token.RedisKey, cfg.Token.Secret), func() { _ = rdb.Close() }
	}
	return auth.NewFileStore(cfg.Token.File, cfg.Token.Secret), func() {}
}

// newStatusClient wires the refresh-on-401 transport under the status client.
func newStatusClient(store auth.Store) *status.Client {
	refresher := auth.NewRefresher(cfg.API.BaseURL, cfg.API.RefreshPath, cfg.API.Timeout)
	transport := auth.NewTransport(http.DefaultTransport, store, refresher)
	return status.New(cfg.API.BaseURL, cfg.API.Timeout, transport)
}
