package blockterm

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, name string, args ...string) *Engine {
	t.Helper()
	cfg := DefaultSurfaceConfig()
	cfg.Rows, cfg.Cols = 10, 40
	e, err := NewEngine(cfg, name, args, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() {
		e.shutdown()
		e.ptyFile.Close()
	})
	return e
}

// Running a child that prints a fixed line and exits should publish a
// snapshot containing that line, followed by a ChildExit event.
func TestEngineRunPublishesSnapshotThenChildExit(t *testing.T) {
	e := newTestEngine(t, "/bin/echo", "hello-engine")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	var sawContent, sawExit bool
	for !sawExit {
		select {
		case ev := <-e.Events():
			switch ev.Kind {
			case EventSurfaceChanged:
				for _, row := range ev.Snapshot.Rows {
					if strings.Contains(cellsToText(row.Cells), "hello-engine") {
						sawContent = true
					}
				}
			case EventChildExit:
				sawExit = true
				if ev.ExitStatus != 0 {
					t.Errorf("expected exit status 0, got %d", ev.ExitStatus)
				}
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for child exit event")
		}
	}
	if !sawContent {
		t.Error("expected a published snapshot to contain the echoed text")
	}
	<-done
}

// A Write BackendCommand should be forwarded to the child's stdin and
// reflected back through a subsequent snapshot.
func TestEngineWriteCommandRoundTrips(t *testing.T) {
	e := newTestEngine(t, "/bin/cat")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go e.Run(ctx)

	e.Commands() <- BackendCommand{Kind: CmdWrite, Write: []byte("ping\r")}

	found := false
	for !found {
		select {
		case ev := <-e.Events():
			if ev.Kind == EventSurfaceChanged {
				for _, row := range ev.Snapshot.Rows {
					if strings.Contains(cellsToText(row.Cells), "ping") {
						found = true
					}
				}
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for echoed input")
		}
	}
	cancel()
}

// Resize commands below a whole cell should be ignored rather than
// producing a zero-sized resize.
func TestEngineApplyResizeIgnoresZeroDimensions(t *testing.T) {
	e := newTestEngine(t, "/bin/cat")
	rowsBefore, colsBefore := e.surface.active().Rows(), e.surface.active().Cols()

	e.applyResize(BackendCommand{ResizeLayoutW: 0, ResizeLayoutH: 0, ResizeCellW: 8, ResizeCellH: 16})

	if e.surface.active().Rows() != rowsBefore || e.surface.active().Cols() != colsBefore {
		t.Error("expected zero-dimension resize to be ignored")
	}
}

func TestEngineApplyResizeIgnoresNonPositiveCellSize(t *testing.T) {
	e := newTestEngine(t, "/bin/cat")
	rowsBefore, colsBefore := e.surface.active().Rows(), e.surface.active().Cols()

	e.applyResize(BackendCommand{ResizeLayoutW: 800, ResizeLayoutH: 600, ResizeCellW: 0, ResizeCellH: 0})

	if e.surface.active().Rows() != rowsBefore || e.surface.active().Cols() != colsBefore {
		t.Error("expected non-positive cell size resize to be ignored")
	}
}

func TestEngineApplyResizeComputesRowsAndCols(t *testing.T) {
	e := newTestEngine(t, "/bin/cat")

	e.applyResize(BackendCommand{ResizeLayoutW: 400, ResizeLayoutH: 320, ResizeCellW: 10, ResizeCellH: 20})

	if e.surface.active().Cols() != 40 {
		t.Errorf("expected 400/10=40 cols, got %d", e.surface.active().Cols())
	}
	if e.surface.active().Rows() != 16 {
		t.Errorf("expected 320/20=16 rows, got %d", e.surface.active().Rows())
	}
}

func TestEngineEmitDropsOnFullQueue(t *testing.T) {
	e := newTestEngine(t, "/bin/cat")
	for i := 0; i < eventQueueSize+5; i++ {
		e.emit(Event{Kind: EventBell})
	}
	if len(e.events) != eventQueueSize {
		t.Errorf("expected queue to stay bounded at %d, got %d", eventQueueSize, len(e.events))
	}
}
