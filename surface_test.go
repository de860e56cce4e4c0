package blockterm

import (
	"testing"

	"github.com/danielgatis/go-ansicode"
)

func newTestSurface(rows, cols int) *Surface {
	cfg := DefaultSurfaceConfig()
	cfg.Rows, cfg.Cols = rows, cols
	return NewSurface(cfg)
}

func write(s *Surface, data string) {
	s.Decoder().Write([]byte(data))
}

// P1: printable characters then CR LF return the cursor to column 0 and
// advance one row.
func TestCRLFReturnsCursorToColumnZero(t *testing.T) {
	s := newTestSurface(5, 10)
	write(s, "hi\r\n")

	row, col := s.CursorPosition()
	if col != 0 {
		t.Errorf("expected column 0 after CRLF, got %d", col)
	}
	if row != 1 {
		t.Errorf("expected row 1 after one CRLF, got %d", row)
	}
}

// P2: a width-2 character placed at the last column with line-wrap on
// produces a leading spacer in the last column of row N and a wide pair at
// the start of row N+1.
func TestWideCharWrapsAtLastColumn(t *testing.T) {
	s := newTestSurface(5, 4)
	write(s, "abc")   // fills columns 0-2, cursor at col 3 (last column)
	write(s, "中") // a wide CJK character; doesn't fit in the 1 remaining column

	grid := s.Grid()
	last := grid.Cell(0, 3)
	if !last.HasFlag(CellFlagLeadingSpacer) {
		t.Error("expected leading spacer in last column of row 0")
	}

	lead := grid.Cell(1, 0)
	trail := grid.Cell(1, 1)
	if !lead.HasFlag(CellFlagWideLeading) {
		t.Error("expected wide-leading cell at row 1 col 0")
	}
	if !trail.HasFlag(CellFlagWideTrailing) {
		t.Error("expected wide-trailing cell at row 1 col 1")
	}
	if lead.Char != '中' {
		t.Errorf("expected wrapped character preserved, got %q", lead.Char)
	}
}

// P3: entering then exiting the alternate screen restores primary-screen
// state byte for byte.
func TestAltScreenRoundTripRestoresState(t *testing.T) {
	s := newTestSurface(5, 10)
	write(s, "hello")
	beforeRow, beforeCol := s.CursorPosition()

	write(s, "\x1b[?1049h") // enter alt screen
	if !s.IsAltScreen() {
		t.Fatal("expected alt screen active")
	}
	write(s, "garbage on alt screen")

	write(s, "\x1b[?1049l") // exit alt screen
	if s.IsAltScreen() {
		t.Fatal("expected primary screen restored")
	}

	afterRow, afterCol := s.CursorPosition()
	if afterRow != beforeRow || afterCol != beforeCol {
		t.Errorf("expected cursor restored to (%d,%d), got (%d,%d)", beforeRow, beforeCol, afterRow, afterCol)
	}
	if s.Grid().LineText(0) != "hello" {
		t.Errorf("expected primary screen content preserved, got %q", s.Grid().LineText(0))
	}
}

// P3: the alt-screen round trip also restores scroll region, keyboard-mode
// stack, and title — state that plain DECSC/DECRC never touches but that
// must not bleed from the alt screen back into the primary screen.
func TestAltScreenRoundTripRestoresScrollRegionKeyboardModeAndTitle(t *testing.T) {
	s := newTestSurface(10, 20)
	s.SetScrollingRegion(2, 8)
	s.PushKeyboardMode(ansicode.KeyboardMode(5))
	s.SetTitle("primary title")

	write(s, "\x1b[?1049h") // enter alt screen
	if !s.IsAltScreen() {
		t.Fatal("expected alt screen active")
	}
	s.SetScrollingRegion(1, 10)
	s.PushKeyboardMode(ansicode.KeyboardMode(9))
	s.SetTitle("alt title")

	write(s, "\x1b[?1049l") // exit alt screen
	if s.IsAltScreen() {
		t.Fatal("expected primary screen restored")
	}

	if got := s.Title(); got != "primary title" {
		t.Errorf("expected title restored to %q, got %q", "primary title", got)
	}

	s.ReportKeyboardMode()
	select {
	case report := <-s.Reports():
		if string(report) != "\x1b[?5u" {
			t.Errorf("expected restored keyboard mode 5, got %q", report)
		}
	default:
		t.Fatal("expected a keyboard-mode report")
	}

	// A scroll triggered at what was the alt screen's widened region (row 0)
	// must not scroll under the restored primary region (top=2, 1-based ->
	// index 1), proving scrollTop/scrollBottom were restored too.
	// The restored cursor sits at row 1 (DECSTBM homed it there before the
	// alt-screen save), so home it to row 0 before writing.
	write(s, "\x1b[1;1Hline0\r\nline1\r\n")
	write(s, "\x1b[1;1H") // cursor to row 0, which is now outside the restored region
	write(s, "\x1bM")     // reverse index: scrolls only if row 0 is the region's top
	if s.Grid().LineText(0) != "line0" {
		t.Errorf("expected scroll region restored to primary's (top=2), row 0 unaffected, got %q", s.Grid().LineText(0))
	}
}

// P7: ClearScreen(All) blanks every viewport cell, leaving history intact.
func TestClearScreenBlanksViewport(t *testing.T) {
	s := newTestSurface(3, 5)
	write(s, "xxxxx")

	write(s, "\x1b[2J") // CSI 2 J - erase all

	for row := 0; row < s.Rows(); row++ {
		line := s.Grid().Line(row)
		for _, c := range line {
			if c.Char != ' ' {
				t.Fatalf("expected blank cell after clear, got %q at row %d", c.Char, row)
			}
		}
	}
}

// P6: snapshot revision is strictly monotonic.
func TestSnapshotRevisionMonotonic(t *testing.T) {
	s := newTestSurface(5, 10)
	var prev uint64
	for i := uint64(1); i <= 3; i++ {
		snap := BuildSnapshot(s, i)
		if snap.Revision <= prev {
			t.Fatalf("expected strictly increasing revision, got %d after %d", snap.Revision, prev)
		}
		prev = snap.Revision
	}
}
