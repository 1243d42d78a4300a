// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-collector/internal/search"
	"github.com/pdiddy/paper-collector/internal/store"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize recently collected papers",
	Long: `Summary reports the papers added in the last --days days: counts per
source and per day, the share with a downloaded PDF, and how many titles
match each keyword of the plan. Keywords matching fewer than two titles are
listed as candidates for revision.`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

func init() {
	summaryCmd.Flags().Int("days", 7, "number of days to summarize")
	summaryCmd.Flags().String("plan", "", "keyword plan YAML file (default: built-in plan)")
	summaryCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")
	planPath, _ := cmd.Flags().GetString("plan")
	asJSON, _ := cmd.Flags().GetBool("json")
	if days <= 0 {
		return fmt.Errorf("--days must be positive")
	}

	plan := search.DefaultPlan()
	if planPath != "" {
		p, err := search.LoadPlan(planPath)
		if err != nil {
			return err
		}
		plan = p
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	since := time.Now().AddDate(0, 0, -days)
	sum, err := st.Summary(context.Background(), since, plan.Keywords())
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(os.Stdout, sum)
	}
	store.FormatSummary(sum, os.Stdout)
	return nil
}
