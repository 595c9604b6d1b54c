package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var receiptID string

var receiptCmd = &cobra.Command{
	Use:   "receipt",
	Short: "Print a payment by its internal id",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, cleanup := newTokenStore()
		defer cleanup()

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout)
		defer cancel()

		p, err := newStatusClient(store).FetchPayment(ctx, receiptID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

func init() {
	receiptCmd.Flags().StringVar(&receiptID, "id", "", "payment id")
	_ = receiptCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(receiptCmd)
}
