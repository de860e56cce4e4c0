package blockterm

import "testing"

func TestBuildSnapshotCapturesRowsAndCursor(t *testing.T) {
	s := newTestSurface(5, 10)
	write(s, "hi")

	snap := BuildSnapshot(s, 1)
	if len(snap.Rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(snap.Rows))
	}
	if snap.Cursor.Position.Col != 2 {
		t.Errorf("expected cursor at column 2, got %d", snap.Cursor.Position.Col)
	}
	if !snap.Cursor.Visible {
		t.Error("expected cursor visible by default")
	}
}

func TestBuildBlockSnapshotStitchesAcrossBlocks(t *testing.T) {
	bs := newTestBlockSurface(5, 10)
	writeBS(bs, "\x1b]133;C\x07")
	writeBS(bs, "first\r\n")
	writeBS(bs, "\x1b]133;D;0\x07")
	writeBS(bs, "\x1b]133;A\x07")
	writeBS(bs, "second")

	snap := BuildBlockSnapshot(bs, 1)
	if len(snap.Blocks) < 2 {
		t.Fatalf("expected at least 2 blocks in the stitched snapshot, got %d", len(snap.Blocks))
	}
	if snap.IsAltScreen {
		t.Error("expected stitched snapshot not to report alt-screen")
	}
}

func TestBuildBlockSnapshotAltScreenReducesToActiveBlock(t *testing.T) {
	bs := newTestBlockSurface(5, 10)
	writeBS(bs, "\x1b[?1049h") // active block enters alt screen

	snap := BuildBlockSnapshot(bs, 1)
	if len(snap.Blocks) != 1 {
		t.Fatalf("expected exactly one block while alt-screen is active, got %d", len(snap.Blocks))
	}
}

func TestStyledLinesCompactsRuns(t *testing.T) {
	s := newTestSurface(1, 10)
	write(s, "\x1b[1mAB\x1b[0mCD")

	snap := BuildSnapshot(s, 1)
	lines := snap.StyledLines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 row, got %d", len(lines))
	}
	segs := lines[0]
	if len(segs) < 2 {
		t.Fatalf("expected at least 2 style runs (bold AB, plain CD), got %d", len(segs))
	}
	if segs[0].Flags&CellFlagBold == 0 {
		t.Error("expected first run to be bold")
	}
	if segs[len(segs)-1].Flags&CellFlagBold != 0 {
		t.Error("expected last run to not be bold")
	}
}

// P8 (BlockSurface path): a stitched snapshot's damage is the translated
// union of per-block dirty rows, not an unconditional full redraw.
func TestBuildBlockSnapshotDamageIsPartialAfterTargetedWrite(t *testing.T) {
	bs := newTestBlockSurface(5, 10)
	writeBS(bs, "first line")
	BuildBlockSnapshot(bs, 1) // consume initial damage from the write above

	writeBS(bs, "\rX") // rewrite just the first cell of the same row

	snap := BuildBlockSnapshot(bs, 2)
	if snap.Damage.Kind != DamagePartial {
		t.Fatalf("expected DamagePartial for a single-cell rewrite, got %v", snap.Damage.Kind)
	}
	if len(snap.Damage.Rows) != 1 {
		t.Errorf("expected exactly one dirty row, got %d", len(snap.Damage.Rows))
	}
}

func TestBuildBlockSnapshotDamageIsFullAfterResize(t *testing.T) {
	bs := newTestBlockSurface(5, 10)
	writeBS(bs, "hello")
	BuildBlockSnapshot(bs, 1)

	bs.Resize(6, 12)

	snap := BuildBlockSnapshot(bs, 2)
	if snap.Damage.Kind != DamageFull {
		t.Errorf("expected DamageFull after a resize, got %v", snap.Damage.Kind)
	}
}

func TestSnapshotRevisionIncreasesAcrossBlockSnapshots(t *testing.T) {
	bs := newTestBlockSurface(5, 10)
	a := BuildBlockSnapshot(bs, 1)
	b := BuildBlockSnapshot(bs, 2)
	if !(a.Revision < b.Revision) {
		t.Errorf("expected increasing revisions, got %d then %d", a.Revision, b.Revision)
	}
}
