// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-collector/internal/pipeline"
	"github.com/pdiddy/paper-collector/internal/search"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run every query of a keyword plan",
	Long: `Collect runs each query of a keyword plan in order: new papers are stored
and their PDFs downloaded into a folder named after the run time
(papers/YYYYMMDD_HHMM). A failing query is reported and the run continues.

Without --plan the built-in plan is used; --write-plan saves it as a starting
point. With --interval the plan is run repeatedly until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().String("plan", "", "keyword plan YAML file (default: built-in plan)")
	collectCmd.Flags().String("write-plan", "", "write the built-in plan to this file and exit")
	collectCmd.Flags().Duration("interval", 0, "repeat the run at this interval until interrupted")
	collectCmd.Flags().Bool("json", false, "output each batch summary as JSON")

	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	planPath, _ := cmd.Flags().GetString("plan")
	writePlan, _ := cmd.Flags().GetString("write-plan")
	interval, _ := cmd.Flags().GetDuration("interval")
	asJSON, _ := cmd.Flags().GetBool("json")

	if writePlan != "" {
		if err := search.WritePlan(writePlan, search.DefaultPlan()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", writePlan)
		return nil
	}

	plan := search.DefaultPlan()
	if planPath != "" {
		p, err := search.LoadPlan(planPath)
		if err != nil {
			return err
		}
		plan = p
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	for {
		group := runGroup(time.Now())
		logger.Info("collection run started", "queries", len(plan.Queries), "group", group)

		batch := a.pipeline.RunBatch(ctx, plan.Queries, group)
		if asJSON {
			if err := writeJSON(os.Stdout, batch); err != nil {
				return err
			}
		} else {
			pipeline.FormatBatch(batch, os.Stdout)
		}

		if interval <= 0 {
			if batch.Err != nil {
				return batch.Err
			}
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		logger.Info("next run scheduled", "at", time.Now().Add(interval).Format(time.DateTime))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}
