// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"strings"
)

// ClaimJudge adjudicates README claims through a Client. It implements
// the readme.Judge interface.
type ClaimJudge struct {
	client Client
}

// NewClaimJudge wraps a client. Returns nil for a nil client so callers
// can pass the result straight to the verifier.
func NewClaimJudge(client Client) *ClaimJudge {
	if client == nil {
		return nil
	}
	return &ClaimJudge{client: client}
}

const claimPromptTemplate = `A repository README makes this claim:

%q

Known facts about the repository:
%s

Decide whether the repository supports the claim. Reply with exactly one
line in the form:

STATUS: evidence

where STATUS is one of verified, unverified, contradicted, and evidence
is a short justification.`

// VerifyClaim asks the model for a verdict and parses the one-line
// "status: evidence" reply.
func (j *ClaimJudge) VerifyClaim(ctx context.Context, claim, repoFacts string) (string, string, error) {
	reply, err := j.client.Generate(ctx, fmt.Sprintf(claimPromptTemplate, claim, repoFacts))
	if err != nil {
		return "", "", err
	}
	status, evidence, err := parseVerdict(reply)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", j.client.Name(), err)
	}
	return status, evidence, nil
}

func parseVerdict(reply string) (string, string, error) {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		status, evidence, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		status = strings.ToLower(strings.TrimSpace(status))
		switch status {
		case "verified", "unverified", "contradicted":
			return status, strings.TrimSpace(evidence), nil
		}
	}
	return "", "", fmt.Errorf("unparseable verdict %q", truncateReply(reply))
}

func truncateReply(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
