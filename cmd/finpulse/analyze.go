package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	user, _ := cmd.Flags().GetString("user")
	store, _ := cmd.Flags().GetBool("store")

	report, err := a.pipeline.Run(ctx, user, store)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
