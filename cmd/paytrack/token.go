package main

import (
	"errors"
	"fmt"
	"time"

	"paytrack/internal/auth"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored API credentials",
}

var (
	setAccess    string
	setRefresh   string
	setExpiresIn time.Duration
)

var tokenSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Seal and store an access/refresh token pair",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, cleanup := newTokenStore()
		defer cleanup()

		t := auth.Token{AccessToken: setAccess, RefreshToken: setRefresh}
		if setExpiresIn > 0 {
			t.ExpiresAt = time.Now().Add(setExpiresIn)
		}
		if err := store.Save(cmd.Context(), t); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "token stored")
		return nil
	},
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored token (masked)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, cleanup := newTokenStore()
		defer cleanup()

		t, err := store.Load(cmd.Context())
		if errors.Is(err, auth.ErrNoToken) {
			fmt.Fprintln(cmd.OutOrStdout(), "no token stored")
			return nil
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "access:  %s\n", mask(t.AccessToken))
		fmt.Fprintf(out, "refresh: %s\n", mask(t.RefreshToken))
		if t.ExpiresAt.IsZero() {
			fmt.Fprintln(out, "expires: unknown")
		} else {
			fmt.Fprintf(out, "expires: %s (expired=%t)\n", t.ExpiresAt.Format(time.RFC3339), t.Expired(time.Now(), 0))
		}
		return nil
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, cleanup := newTokenStore()
		defer cleanup()
		return store.Clear(cmd.Context())
	},
}

func mask(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "…" + s[len(s)-4:]
}

func init() {
	tokenSetCmd.Flags().StringVar(&setAccess, "access", "", "access token")
	tokenSetCmd.Flags().StringVar(&setRefresh, "refresh", "", "refresh token")
	tokenSetCmd.Flags().DurationVar(&setExpiresIn, "expires-in", 0, "access token lifetime, e.g. 15m")
	_ = tokenSetCmd.MarkFlagRequired("access")

	tokenCmd.AddCommand(tokenSetCmd, tokenShowCmd, tokenClearCmd)
	rootCmd.AddCommand(tokenCmd)
}
