package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowtest/engine/internal/api"
)

var (
	triggerVersionID string
	triggerPriority  int
	triggerLabel     string
	triggerVars      string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <suite-ref>",
	Short: "create and enqueue a new Run for a suite",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrigger,
}

func init() {
	triggerCmd.Flags().StringVar(&triggerVersionID, "version", "", "version reference (defaults to suite-ref)")
	triggerCmd.Flags().IntVar(&triggerPriority, "priority", 0, "run priority")
	triggerCmd.Flags().StringVar(&triggerLabel, "label", "", "operator-facing label for this run")
	triggerCmd.Flags().StringVar(&triggerVars, "vars", "", "JSON object of variable overrides")
}

func runTrigger(_ *cobra.Command, args []string) error {
	c, err := buildComponents()
	if err != nil {
		return err
	}
	defer c.closeStore()

	var vars map[string]any
	if triggerVars != "" {
		if err := json.Unmarshal([]byte(triggerVars), &vars); err != nil {
			return fmt.Errorf("parse --vars: %w", err)
		}
	}

	run, err := c.apiService.Submit(context.Background(), api.TriggerRequest{
		SuiteNodeID:   args[0],
		Version:       triggerVersionID,
		Priority:      triggerPriority,
		Label:         triggerLabel,
		TriggerSource: "API",
		Options:       api.TriggerOptions{Variables: vars},
	})
	if err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	return json.NewEncoder(os.Stdout).Encode(run)
}
