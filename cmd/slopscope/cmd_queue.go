// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/slopscope/slopscope/pkg/ux"
)

var (
	queueCmd = &cobra.Command{
		Use:   "queue",
		Short: "Inspect the server's job queue",
	}

	queueStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth and dead-letter count",
		RunE:  runQueueStats,
	}
)

func init() {
	queueCmd.AddCommand(queueStatsCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL, authToken)

	var health struct {
		Status        string `json:"status"`
		QueueReady    int    `json:"queue_ready"`
		QueueInFlight int    `json:"queue_inflight"`
		QueueDead     int    `json:"queue_dead"`
	}
	if err := client.do(http.MethodGet, "/health", nil, &health); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(health)
	}

	ux.Printf(ux.Styles.Title, "queue (%s)", health.Status)
	fmt.Printf("  ready:     %d\n", health.QueueReady)
	fmt.Printf("  in flight: %d\n", health.QueueInFlight)
	if health.QueueDead > 0 {
		ux.Printf(ux.Styles.Error, "  dead:      %d", health.QueueDead)
	} else {
		fmt.Printf("  dead:      %d\n", health.QueueDead)
	}
	return nil
}
