package monitor

import (
	"testing"

	"github.com/arrowcurve/loadctl/pkg/spec"
)

func TestAddAndSnapshot(t *testing.T) {
	m := New()
	m.Add(spec.AttemptRecord{Status: 200, Passed: true, ElapsedMS: 10})
	m.Add(spec.AttemptRecord{Status: 200, Passed: true, ElapsedMS: 20})
	m.Add(spec.AttemptRecord{Status: 500, Passed: false, ElapsedMS: 30})

	snap := m.Snapshot()
	if snap.Requests != 3 || snap.Success != 2 || snap.Fail != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.StatusCodes[200] != 2 || snap.StatusCodes[500] != 1 {
		t.Fatalf("unexpected status codes: %+v", snap.StatusCodes)
	}
}

func TestSnapshotEmpty(t *testing.T) {
	m := New()
	snap := m.Snapshot()
	if snap.Requests != 0 {
		t.Fatalf("expected zero requests, got %+v", snap)
	}
}
