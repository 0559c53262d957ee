package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry <run-id>",
	Short: "submit a new Run cloning a prior Run's trigger input",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

func runRetry(_ *cobra.Command, args []string) error {
	c, err := buildComponents()
	if err != nil {
		return err
	}
	defer c.closeStore()

	run, err := c.apiService.Retry(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	return json.NewEncoder(os.Stdout).Encode(run)
}
