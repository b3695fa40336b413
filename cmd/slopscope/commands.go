// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL  string
	authToken  string
	watchJob   bool
	jsonOutput bool
	boardOrder string
	boardLimit int
	workdir    string
	useMock    bool

	rootCmd = &cobra.Command{
		Use:   "slopscope",
		Short: "Estimate how much of a repository is slop",
		Long: `Slopscope scores public repositories for signs of careless or
machine-generated code: README claims that don't hold up, hardcoded
values, fake-looking APIs, swallowed errors, and suspicious history.`,
	}

	submitCmd = &cobra.Command{
		Use:   "submit [repo-url]",
		Short: "Submit a repository to a slop-api server for analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  runSubmit, // Defined in cmd_submit.go
	}

	jobCmd = &cobra.Command{
		Use:   "job [job-id]",
		Short: "Show the state of an analysis job",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob, // Defined in cmd_report.go
	}

	leaderboardCmd = &cobra.Command{
		Use:     "leaderboard",
		Short:   "List repositories ranked by slop score",
		Aliases: []string{"board"},
		RunE:    runLeaderboard, // Defined in cmd_report.go
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze [repo-url]",
		Short: "Clone and score a repository locally, no server needed",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze, // Defined in cmd_analyze.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "slop-api base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token for the API")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON instead of styled output")

	submitCmd.Flags().BoolVar(&watchJob, "watch", false, "stream job progress until it finishes")

	leaderboardCmd.Flags().StringVar(&boardOrder, "order", "worst", "ranking order: best or worst")
	leaderboardCmd.Flags().IntVar(&boardLimit, "limit", 20, "number of entries")

	analyzeCmd.Flags().StringVar(&workdir, "workdir", "", "scratch directory for the clone (default: system temp)")
	analyzeCmd.Flags().BoolVar(&useMock, "mock", false, "use the mock engine (no clone, deterministic score)")

	rootCmd.AddCommand(submitCmd, jobCmd, leaderboardCmd, analyzeCmd)
}
