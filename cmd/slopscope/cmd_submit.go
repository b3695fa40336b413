// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slopscope/slopscope/pkg/ux"
	"github.com/slopscope/slopscope/pkg/validation"
	"github.com/slopscope/slopscope/services/api/datatypes"
)

func runSubmit(cmd *cobra.Command, args []string) error {
	// Validate locally first for a faster error message.
	ref, err := validation.ParseRepoURL(args[0])
	if err != nil {
		return err
	}

	client := newAPIClient(serverURL, authToken)
	resp, err := client.submit(ref.URL)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	if resp.Deduplicated {
		ux.Printf(ux.Styles.Warning, "analysis already in progress for %s", ref.Slug())
	} else {
		ux.Printf(ux.Styles.Title, "submitted %s", ref.Slug())
	}
	fmt.Printf("  job:        %s\n", resp.Job.ID)
	fmt.Printf("  repository: %s\n", resp.Repository.ID)

	if !watchJob {
		fmt.Printf("\nFollow progress with: slopscope job %s\n", resp.Job.ID)
		return nil
	}
	return watchEvents(client, resp.Job.ID)
}

// watchEvents streams progress to the terminal until the job finishes.
func watchEvents(client *apiClient, jobID string) error {
	var final datatypes.JobEvent
	err := client.events(jobID, func(event datatypes.JobEvent) {
		final = event
		if event.Step != "" {
			fmt.Printf("  [%3d%%] %s\n", event.Progress, event.Step)
		}
	})
	if err != nil {
		return err
	}

	switch final.Status {
	case "completed":
		if final.SlopScore != nil {
			score := *final.SlopScore
			ux.Printf(ux.ScoreStyle(score), "\nslop score: %.1f / 100", score)
			fmt.Printf("Full report: slopscope job %s --json\n", jobID)
		}
		return nil
	case "failed":
		return fmt.Errorf("analysis failed: %s (%s)", final.ErrorMessage, final.ErrorCode)
	default:
		return fmt.Errorf("event stream ended early (status %s)", final.Status)
	}
}
