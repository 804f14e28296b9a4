package tracing

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRecorderDrainInOrder(t *testing.T) {
	r := NewRecorder(8)
	r.Log(NodeStart, 1, 0, 10, 0)
	r.Log(NodeFinish, 1, 10, 10, 0)
	r.Log(BlockExit, 0, 0, 0, 1)

	events := r.Drain()
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[0].Tag != NodeStart || events[1].Tag != NodeFinish || events[2].Tag != BlockExit {
		t.Fatalf("events out of order: %+v", events)
	}
}

func TestRecorderOverflowDoesNotPanic(t *testing.T) {
	r := NewRecorder(4)
	for i := 0; i < 100; i++ {
		r.Log(NodeStart, uint32(i), 0, 0, 0)
	}
	events := r.Drain()
	if len(events) != 4 {
		t.Fatalf("len(events) = %d, want 4 (capacity)", len(events))
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Log(NodeStart, 0, 0, 0, 0)
	r.Reset()
	if got := r.Drain(); got != nil {
		t.Fatalf("Drain on nil Recorder = %v, want nil", got)
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	r := NewRecorder(8)
	r.Log(Calibration, 0, 0, 0, 0)
	r.Log(NodeStart, 7, 0, 1024, 2)
	events := r.Drain()

	path := filepath.Join(t.TempDir(), "trace.bin")
	if err := WriteFile(path, events); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != 2*8*len(events) {
		t.Fatalf("len(data) = %d, want %d", len(data), 2*8*len(events))
	}
}
