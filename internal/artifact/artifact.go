// Package artifact writes a PerfSummary to disk, matching
// pyresttest/performance.py's output_file/output_format handling: create
// the parent directory if needed, write indented JSON, and log rather
// than fail if the write doesn't succeed.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arrowcurve/loadctl/pkg/spec"
)

// Write saves summary as indented JSON to perf.OutputFile. It is a no-op
// when perf is nil, OutputFile is empty, or OutputFormat isn't "json".
// A write failure is reported on stderr rather than returned, matching
// the teacher's "log and move on" treatment of report output.
func Write(perf *spec.PerformanceSpec, summary spec.PerfSummary) {
	if perf == nil || perf.OutputFile == "" {
		return
	}
	if !strings.EqualFold(perf.OutputFormat, "json") {
		return
	}

	if err := write(perf.OutputFile, summary); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  failed to write performance output file %s: %v\n", perf.OutputFile, err)
		return
	}
	fmt.Printf("📊 wrote performance summary to %s\n", perf.OutputFile)
}

func write(path string, summary spec.PerfSummary) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		f.Close()
		return fmt.Errorf("encode summary: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync output file: %w", err)
	}

	return f.Close()
}
