// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package signals

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/slopscope/slopscope/services/analysis/ast"
	"github.com/slopscope/slopscope/services/analysis/inventory"
)

// buildTarget writes files to a temp tree and parses the supported ones.
func buildTarget(t *testing.T, files map[string]string) *Target {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0600); err != nil {
			t.Fatal(err)
		}
	}

	inv, err := inventory.Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("inventory.Scan() error: %v", err)
	}

	var sources []*ast.Source
	for _, f := range inv.Files {
		if !ast.Supported(f.Language) {
			continue
		}
		data, err := inv.ReadSource(f.Path)
		if err != nil {
			t.Fatal(err)
		}
		src, err := ast.Parse(context.Background(), data, f.Path, f.Language)
		if err != nil {
			t.Fatalf("ast.Parse(%s) error: %v", f.Path, err)
		}
		sources = append(sources, src)
	}
	return &Target{Inventory: inv, Sources: sources}
}

func categories(sigs []Signal) map[Category]int {
	return CountByCategory(sigs)
}

func TestHardcodedDataDetector(t *testing.T) {
	target := buildTarget(t, map[string]string{
		"client.go": `package main

var apiKey = "sk-abcdef1234567890"
var endpoint = "http://localhost:9200"
`,
	})

	sigs, err := (&HardcodedDataDetector{}).Detect(context.Background(), target)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}

	var sawSecret, sawEndpoint bool
	for _, s := range sigs {
		if s.Message == "credential-shaped literal in source" {
			sawSecret = true
			if strings.Contains(s.Evidence, "1234567890") {
				t.Errorf("secret evidence not redacted: %q", s.Evidence)
			}
			if s.Severity != SeverityHigh {
				t.Errorf("secret severity = %s, want high", s.Severity)
			}
		}
		if s.Message == "hardcoded network endpoint" {
			sawEndpoint = true
		}
	}
	if !sawSecret || !sawEndpoint {
		t.Errorf("signals = %+v, want secret and endpoint findings", sigs)
	}
}

func TestHardcodedDataSkipsTests(t *testing.T) {
	target := buildTarget(t, map[string]string{
		"client_test.go": `package main

var testKey = "sk-abcdef1234567890"
`,
	})
	sigs, err := (&HardcodedDataDetector{}).Detect(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 0 {
		t.Errorf("signals in test file = %+v, want none", sigs)
	}
}

func TestFakeAPIDetector(t *testing.T) {
	target := buildTarget(t, map[string]string{
		"api.go": `package main

func mockFetchUsers() string {
	return "{\"id\": 1, \"name\": \"John Doe\", \"email\": \"j@example.com\", \"role\": \"admin\"}"
}
`,
	})

	sigs, err := (&FakeAPIDetector{}).Detect(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	counts := categories(sigs)
	if counts[CategoryFakeAPI] < 2 {
		t.Errorf("signals = %+v, want mock-named function and canned JSON", sigs)
	}
}

func TestVerboseNamingDetector(t *testing.T) {
	target := buildTarget(t, map[string]string{
		"verbose.go": `package main

func main() {
	temporaryVariableForStoringTheActualResultValue := 1
	_ = temporaryVariableForStoringTheActualResultValue
	ok := true
	_ = ok
}
`,
	})

	sigs, err := (&VerboseNamingDetector{}).Detect(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 1 {
		t.Fatalf("signals = %+v, want exactly one", sigs)
	}
	if sigs[0].Severity != SeverityMedium {
		t.Errorf("severity = %s, want medium for filler-heavy name", sigs[0].Severity)
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"retryCount", []string{"retry", "count"}},
		{"HTTPServer", []string{"http", "server"}},
		{"snake_case_name", []string{"snake", "case", "name"}},
		{"parseURLFast", []string{"parse", "url", "fast"}},
	}
	for _, tt := range tests {
		got := splitName(tt.in)
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("splitName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestObviousCommentsDetector(t *testing.T) {
	target := buildTarget(t, map[string]string{
		"loop.go": `package main

func main() {
	// loop over the items
	for i := 0; i < 10; i++ {
		// increment the counter
		_ = i
	}
	// Retries use jitter so thundering herds spread out.
	_ = 0
}
`,
	})

	sigs, err := (&ObviousCommentsDetector{}).Detect(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 2 {
		t.Errorf("signals = %+v, want the two narration comments only", sigs)
	}
}

func TestTODODensityDetector(t *testing.T) {
	target := buildTarget(t, map[string]string{
		"stub.go": `package main

// TODO: implement persistence
// TODO: implement auth
// FIXME: races under load
func main() {}
`,
	})

	sigs, err := (&TODODensityDetector{}).Detect(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}

	var densitySignal bool
	markers := 0
	for _, s := range sigs {
		if s.Severity == SeverityHigh {
			densitySignal = true
		} else {
			markers++
		}
	}
	if markers != 3 {
		t.Errorf("marker signals = %d, want 3", markers)
	}
	if !densitySignal {
		t.Error("no density signal for TODO-saturated file")
	}
}

func TestSwallowedErrorsDetector(t *testing.T) {
	target := buildTarget(t, map[string]string{
		"go/handler.go": `package main

func run() {
	err := step()
	if err != nil {}
	_ = err
}

func step() error { return nil }
`,
		"py/job.py": `def run():
    try:
        step()
    except Exception:
        pass
`,
		"js/client.js": `try {
  run();
} catch (e) {}
`,
	})

	sigs, err := (&SwallowedErrorsDetector{}).Detect(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	byFile := make(map[string]int)
	for _, s := range sigs {
		byFile[filepath.Base(s.File)]++
	}
	if byFile["handler.go"] < 2 {
		t.Errorf("handler.go signals = %d, want ignored check and blank assign", byFile["handler.go"])
	}
	if byFile["job.py"] < 1 {
		t.Errorf("job.py signals = %d, want swallowed except", byFile["job.py"])
	}
	if byFile["client.js"] < 1 {
		t.Errorf("client.js signals = %d, want empty catch", byFile["client.js"])
	}
}

const sampleLog = `commit 1111111111111111111111111111111111111111
author dev
subject add parser

diff --git a/parser.go b/parser.go
--- a/parser.go
+++ b/parser.go
@@ -0,0 +1,2 @@
+package main
+func parse() {}
commit 2222222222222222222222222222222222222222
author dev
subject fix

diff --git a/parser.go b/parser.go
--- a/parser.go
+++ b/parser.go
@@ -1,2 +1,2 @@
 package main
-func parse() {}
+func parse() { _ = 1 }
commit 3333333333333333333333333333333333333333
author dev
subject wip

commit 4444444444444444444444444444444444444444
author dev
subject update

commit 5555555555555555555555555555555555555555
author dev
subject final final

`

func TestHistoryRewriteDetectorGenericSubjects(t *testing.T) {
	target := &Target{GitLog: sampleLog}

	sigs, err := (&HistoryRewriteDetector{}).Detect(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, s := range sigs {
		if strings.Contains(s.Message, "contentless") {
			found = true
			if !strings.Contains(s.Message, "4 of 5") {
				t.Errorf("message = %q, want 4 of 5 subjects flagged", s.Message)
			}
		}
	}
	if !found {
		t.Errorf("signals = %+v, want contentless-subjects finding", sigs)
	}
}

func TestHistoryRewriteDetectorEmptyLog(t *testing.T) {
	sigs, err := (&HistoryRewriteDetector{}).Detect(context.Background(), &Target{GitLog: "  \n"})
	if err != nil || sigs != nil {
		t.Errorf("Detect(empty log) = %v, %v, want nil, nil", sigs, err)
	}
}

func TestSplitCommits(t *testing.T) {
	commits := splitCommits(sampleLog)
	if len(commits) != 5 {
		t.Fatalf("commits = %d, want 5", len(commits))
	}
	if commits[0].subject != "add parser" {
		t.Errorf("first subject = %q", commits[0].subject)
	}
	if !strings.Contains(commits[1].body, "diff --git") {
		t.Errorf("second commit body missing patch:\n%s", commits[1].body)
	}
}

func TestRegistryRunCombinesAndSorts(t *testing.T) {
	target := buildTarget(t, map[string]string{
		"a.go": `package main

// TODO: wire this up
var endpoint = "http://127.0.0.1:8500"
`,
	})

	reg := NewRegistry(nil)
	sigs, err := reg.Run(context.Background(), target)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	counts := categories(sigs)
	if counts[CategoryHardcodedData] == 0 || counts[CategoryTODODensity] == 0 {
		t.Errorf("counts = %v, want hardcoded-data and todo-density findings", counts)
	}

	for i := 1; i < len(sigs); i++ {
		if sigs[i-1].File > sigs[i].File {
			t.Errorf("signals not sorted by file: %q > %q", sigs[i-1].File, sigs[i].File)
		}
	}
}

func TestRegistryCustomDetector(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(detectorFunc{})

	target := &Target{}
	sigs, err := reg.Run(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, s := range sigs {
		if s.Message == "custom" {
			found = true
		}
	}
	if !found {
		t.Error("custom detector output missing from Run results")
	}
}

type detectorFunc struct{}

func (detectorFunc) Name() string       { return "custom" }
func (detectorFunc) Category() Category { return CategoryFakeAPI }
func (detectorFunc) Detect(ctx context.Context, target *Target) ([]Signal, error) {
	return []Signal{{Category: CategoryFakeAPI, Severity: SeverityLow, Message: "custom"}}, nil
}
