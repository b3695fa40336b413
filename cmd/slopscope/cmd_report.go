// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slopscope/slopscope/pkg/ux"
	"github.com/slopscope/slopscope/services/store"
)

func runJob(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL, authToken)
	job, err := client.job(args[0])
	if err != nil {
		return err
	}

	if job.Status == store.JobCompleted {
		if a, err := client.analysisForRepository(job.RepositoryID); err == nil {
			if jsonOutput {
				return printJSON(a)
			}
			printAnalysis(a)
			return nil
		}
	}

	if jsonOutput {
		return printJSON(job)
	}
	fmt.Printf("job %s\n", job.ID)
	fmt.Printf("  status:   %s\n", job.Status)
	if job.CurrentStep != "" {
		fmt.Printf("  step:     %s (%d%%)\n", job.CurrentStep, job.Progress)
	}
	fmt.Printf("  attempts: %d\n", job.Attempts)
	if job.ErrorMessage != "" {
		ux.Printf(ux.Styles.Error, "  error:    %s (%s)", job.ErrorMessage, job.ErrorCode)
	}
	return nil
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL, authToken)
	entries, err := client.leaderboard(boardOrder, boardLimit)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("no analyzed repositories yet")
		return nil
	}

	ux.Printf(ux.Styles.Title, "%s repositories by slop score", boardOrder)
	for i, entry := range entries {
		score := fmt.Sprintf("%5.1f", entry.SlopScore)
		fmt.Printf("  %2d. %s  %s/%s\n",
			i+1,
			ux.Render(ux.ScoreStyle(entry.SlopScore), score),
			entry.Repository.Owner, entry.Repository.Name)
	}
	return nil
}

// printAnalysis renders a full analysis report for humans.
func printAnalysis(a store.Analysis) {
	ux.Printf(ux.ScoreStyle(a.SlopScore), "slop score: %.1f / 100", a.SlopScore)
	fmt.Printf("engine: %s, analyzed %s\n", a.Engine, a.AnalyzedAt.Format("2006-01-02 15:04"))

	if len(a.Metrics) > 0 {
		fmt.Println("\ncomponents:")
		for name, value := range a.Metrics {
			fmt.Printf("  %-20s %.2f\n", name, value)
		}
	}

	if len(a.Claims) > 0 {
		fmt.Println("\nreadme claims:")
		for _, claim := range a.Claims {
			style := ux.Styles.Muted
			switch claim.Status {
			case "verified":
				style = ux.Styles.Good
			case "contradicted":
				style = ux.Styles.Error
			}
			fmt.Printf("  [%s] %s\n", ux.Render(style, claim.Status), claim.Claim)
		}
	}

	if len(a.Notes) > 0 {
		fmt.Println("\nnotes:")
		for _, note := range a.Notes {
			fmt.Printf("  - %s\n", note)
		}
	}

	if len(a.Signals) > 0 {
		fmt.Printf("\n%d signals; pass --json for the full list\n", len(a.Signals))
	}
}

func printJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
