package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/arrowcurve/loadctl/pkg/spec"
)

func TestWriteCreatesParentDirAndFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "nested", "summary.json")
	perf := &spec.PerformanceSpec{OutputFile: out, OutputFormat: "json"}
	summary := spec.PerfSummary{Total: 10, Passed: 9, Failed: 1}

	Write(perf, summary)

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got spec.PerfSummary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Total != 10 || got.Passed != 9 || got.Failed != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestWriteNoOpWithoutOutputFile(t *testing.T) {
	Write(&spec.PerformanceSpec{}, spec.PerfSummary{})
	Write(nil, spec.PerfSummary{})
}

func TestWriteSkipsNonJSONFormat(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "summary.csv")
	Write(&spec.PerformanceSpec{OutputFile: out, OutputFormat: "csv"}, spec.PerfSummary{})

	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("expected no file to be written for a non-json format, stat err = %v", err)
	}
}
