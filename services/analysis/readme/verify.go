// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package readme

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slopscope/slopscope/services/analysis/inventory"
)

// Judge is an optional second-pass adjudicator for claims the heuristic
// checks leave unverified. Implemented by the llm service.
type Judge interface {
	// VerifyClaim returns one of the claim statuses plus a short
	// evidence string.
	VerifyClaim(ctx context.Context, claim, repoFacts string) (status, evidence string, err error)
}

// Verifier checks claims against a repository inventory.
type Verifier struct {
	judge  Judge
	logger *slog.Logger
}

// NewVerifier creates a Verifier. judge may be nil, which limits
// verification to the heuristic checks.
func NewVerifier(judge Judge, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{judge: judge, logger: logger}
}

// evidenceCheck ties claim keywords to a repository predicate. The
// predicate returns found (claim keyword has supporting artifacts) and
// the evidence string.
type evidenceCheck struct {
	keywords []string
	probe    func(inv *inventory.Inventory) (found bool, evidence string)

	// contradictable marks checks where absence is strong enough to
	// call the claim contradicted rather than merely unverified.
	contradictable bool
}

var checks = []evidenceCheck{
	{
		keywords:       []string{"test", "tested", "coverage"},
		contradictable: true,
		probe: func(inv *inventory.Inventory) (bool, string) {
			n := 0
			for _, f := range inv.Files {
				name := strings.ToLower(f.Path)
				if strings.HasSuffix(name, "_test.go") || strings.Contains(name, "test_") ||
					strings.Contains(name, ".test.") || strings.Contains(name, ".spec.") {
					n++
				}
			}
			if n > 0 {
				return true, fmt.Sprintf("%d test files present", n)
			}
			return false, "no test files found"
		},
	},
	{
		keywords:       []string{"zero dependencies", "no dependencies", "dependency-free"},
		contradictable: true,
		probe: func(inv *inventory.Inventory) (bool, string) {
			direct := 0
			for _, m := range inv.GoModules {
				if !m.Indirect {
					direct++
				}
			}
			if direct == 0 {
				return true, "go.mod declares no direct dependencies"
			}
			return false, fmt.Sprintf("go.mod declares %d direct dependencies", direct)
		},
	},
	{
		keywords: []string{"rest api", "http api", "web server", "http server", "endpoint"},
		probe: func(inv *inventory.Inventory) (bool, string) {
			for _, m := range inv.GoModules {
				for _, fw := range []string{"gin-gonic", "labstack/echo", "gofiber", "gorilla/mux", "go-chi"} {
					if strings.Contains(m.Path, fw) {
						return true, "HTTP framework dependency " + m.Path
					}
				}
			}
			if found, path := grepSources(inv, []string{"http.ListenAndServe", "app.listen(", "FastAPI(", "flask.Flask", "express("}); found {
				return true, "server bootstrap in " + path
			}
			return false, "no HTTP server artifacts found"
		},
	},
	{
		keywords: []string{"cli", "command line", "command-line"},
		probe: func(inv *inventory.Inventory) (bool, string) {
			for _, m := range inv.GoModules {
				if strings.Contains(m.Path, "spf13/cobra") || strings.Contains(m.Path, "urfave/cli") {
					return true, "CLI framework dependency " + m.Path
				}
			}
			for _, f := range inv.Files {
				if strings.HasPrefix(f.Path, "cmd/") || strings.HasPrefix(f.Path, "cmd\\") {
					return true, "cmd/ entrypoint " + f.Path
				}
			}
			if found, path := grepSources(inv, []string{"argparse", "flag.Parse()", "process.argv"}); found {
				return true, "argument parsing in " + path
			}
			return false, "no CLI artifacts found"
		},
	},
	{
		keywords: []string{"docker", "container"},
		probe: func(inv *inventory.Inventory) (bool, string) {
			for _, name := range []string{"Dockerfile", "docker-compose.yml", "docker-compose.yaml", "Containerfile"} {
				if _, err := inv.ReadSource(name); err == nil {
					return true, name + " present"
				}
			}
			return false, "no container build files found"
		},
	},
	{
		keywords: []string{"database", "sql", "postgres", "sqlite", "mysql", "persistence"},
		probe: func(inv *inventory.Inventory) (bool, string) {
			for _, m := range inv.GoModules {
				for _, db := range []string{"lib/pq", "jackc/pgx", "go-sql-driver", "mattn/go-sqlite3", "modernc.org/sqlite", "gorm.io"} {
					if strings.Contains(m.Path, db) {
						return true, "database dependency " + m.Path
					}
				}
			}
			if found, path := grepSources(inv, []string{"database/sql", "sqlalchemy", "CREATE TABLE", "mongoose."}); found {
				return true, "database usage in " + path
			}
			return false, "no database artifacts found"
		},
	},
	{
		keywords: []string{"concurrent", "parallel", "multithreaded", "goroutine"},
		probe: func(inv *inventory.Inventory) (bool, string) {
			if found, path := grepSources(inv, []string{"go func(", "sync.WaitGroup", "errgroup.", "threading.", "asyncio", "Promise.all"}); found {
				return true, "concurrency primitives in " + path
			}
			return false, "no concurrency primitives found"
		},
	},
}

// grepProbeLimit caps raw-source probing per check.
const grepProbeLimit = 200

func grepSources(inv *inventory.Inventory, needles []string) (bool, string) {
	for i, f := range inv.Files {
		if i >= grepProbeLimit {
			break
		}
		data, err := inv.ReadSource(f.Path)
		if err != nil {
			continue
		}
		text := string(data)
		for _, needle := range needles {
			if strings.Contains(text, needle) {
				return true, f.Path
			}
		}
	}
	return false, ""
}

// Verify resolves the status of each claim in place and returns the
// result. Claims no heuristic covers stay unverified unless a judge is
// configured.
func (v *Verifier) Verify(ctx context.Context, claims []Claim, inv *inventory.Inventory) ([]Claim, error) {
	out := make([]Claim, len(claims))
	copy(out, claims)

	for i := range out {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		status, evidence, matched := v.heuristic(out[i].Text, inv)
		if matched {
			out[i].Status = status
			out[i].Evidence = evidence
			continue
		}
		if v.judge == nil {
			out[i].Status = StatusUnverified
			continue
		}

		status, evidence, err := v.judge.VerifyClaim(ctx, out[i].Text, repoFacts(inv))
		if err != nil {
			v.logger.Warn("claim adjudication failed, leaving unverified",
				"claim", out[i].Text, "error", err)
			out[i].Status = StatusUnverified
			continue
		}
		switch status {
		case StatusVerified, StatusUnverified, StatusContradicted:
			out[i].Status = status
			out[i].Evidence = evidence
		default:
			out[i].Status = StatusUnverified
		}
	}
	return out, nil
}

func (v *Verifier) heuristic(claim string, inv *inventory.Inventory) (status, evidence string, matched bool) {
	lower := strings.ToLower(claim)
	for _, check := range checks {
		hit := false
		for _, kw := range check.keywords {
			if strings.Contains(lower, kw) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}

		found, ev := check.probe(inv)
		if found {
			return StatusVerified, ev, true
		}
		if check.contradictable {
			return StatusContradicted, ev, true
		}
		return StatusUnverified, ev, true
	}
	return "", "", false
}

// repoFacts summarizes the inventory for an LLM judge.
func repoFacts(inv *inventory.Inventory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "primary language: %s\n", inv.PrimaryLanguage())
	fmt.Fprintf(&b, "source files: %d\n", len(inv.Files))
	if inv.GoModulePath != "" {
		fmt.Fprintf(&b, "go module: %s\n", inv.GoModulePath)
		fmt.Fprintf(&b, "dependencies:")
		for _, m := range inv.GoModules {
			if !m.Indirect {
				fmt.Fprintf(&b, " %s", m.Path)
			}
		}
		b.WriteString("\n")
	}
	var paths []string
	for i, f := range inv.Files {
		if i >= 40 {
			break
		}
		paths = append(paths, f.Path)
	}
	fmt.Fprintf(&b, "files: %s\n", strings.Join(paths, ", "))
	return b.String()
}

// MismatchScore converts verified claims into a 0..1 mismatch ratio.
// Contradicted claims count fully, unverified ones half.
func MismatchScore(claims []Claim) float64 {
	if len(claims) == 0 {
		return 0
	}
	var weight float64
	for _, c := range claims {
		switch c.Status {
		case StatusContradicted:
			weight += 1.0
		case StatusUnverified:
			weight += 0.5
		}
	}
	return weight / float64(len(claims))
}
