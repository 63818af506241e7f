package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const baselineOutput = `goos: linux
BenchmarkValidateAccess-8   	   20000	     50000 ns/op	    4000 B/op	      60 allocs/op
BenchmarkValidateAccess-8   	   20000	     52000 ns/op	    4000 B/op	      60 allocs/op
BenchmarkRotate-8           	    2000	    900000 ns/op	   30000 B/op	     300 allocs/op
BenchmarkCheckRoute-8       	   30000	     40000 ns/op	     900 B/op	      20 allocs/op
PASS
`

func TestParseBenchmarks(t *testing.T) {
	samples, err := parseBenchmarks(strings.NewReader(baselineOutput))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := samples["BenchmarkValidateAccess"]["ns/op"]; len(got) != 2 || got[1] != 52000 {
		t.Fatalf("validate ns/op = %v", got)
	}
	if got := samples["BenchmarkRotate"]["allocs/op"]; len(got) != 1 || got[0] != 300 {
		t.Fatalf("rotate allocs/op = %v", got)
	}
}

func TestNormalizeBenchmarkName(t *testing.T) {
	tests := map[string]string{
		"BenchmarkRotate-16":       "BenchmarkRotate",
		"BenchmarkRotate":          "BenchmarkRotate",
		"BenchmarkCheckRoute-fast": "BenchmarkCheckRoute-fast",
	}
	for in, want := range tests {
		if got := normalizeBenchmarkName(in); got != want {
			t.Fatalf("normalizeBenchmarkName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCompare(t *testing.T) {
	base, _ := parseBenchmarks(strings.NewReader(baselineOutput))

	same, _ := parseBenchmarks(strings.NewReader(baselineOutput))
	if _, failures := compare(base, same, 0.3); len(failures) != 0 {
		t.Fatalf("identical runs failed: %v", failures)
	}

	slower := strings.ReplaceAll(baselineOutput, "900000 ns/op", "1900000 ns/op")
	cand, _ := parseBenchmarks(strings.NewReader(slower))
	_, failures := compare(base, cand, 0.3)
	if len(failures) != 1 || !strings.Contains(failures[0], "BenchmarkRotate ns/op") {
		t.Fatalf("failures = %v", failures)
	}

	missing, _ := parseBenchmarks(strings.NewReader("BenchmarkRotate-8 1 900000 ns/op\n"))
	if _, failures := compare(base, missing, 0.3); len(failures) == 0 {
		t.Fatalf("missing benchmarks should fail")
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.txt")
	if err := os.WriteFile(path, []byte(baselineOutput), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out, errOut bytes.Buffer
	if code := run([]string{"-baseline", path, "-candidate", path}, &out, &errOut); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "BenchmarkValidateAccess ns/op") {
		t.Fatalf("report missing rows: %q", out.String())
	}

	if code := run(nil, &out, &errOut); code != 2 {
		t.Fatalf("missing flags exit = %d", code)
	}
}
