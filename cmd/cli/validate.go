package main

import (
	"encoding/json"
	"fmt"
	"os"

	"autoflow/internal/models"
	"autoflow/internal/services"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <rule.json>",
	Short: "Validate a rule definition file",
	Long: `Validate a rule definition file without arming it.

Runs the same structural checks the server applies before a rule is
accepted: trigger schedules must parse, action orders must be unique,
operators and action types must be known.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read rule file: %w", err)
	}

	var rule models.AutomationRule
	if err := json.Unmarshal(data, &rule); err != nil {
		return fmt.Errorf("parse rule file: %w", err)
	}

	res := services.NewRuleValidator().Validate(&rule)
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if !res.Valid {
		for _, e := range res.Errors {
			fmt.Printf("error: %s\n", e)
		}
		return fmt.Errorf("rule %q is invalid", rule.Name)
	}
	fmt.Printf("rule %q is valid\n", rule.Name)
	return nil
}
