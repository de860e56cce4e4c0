package blockterm

import "testing"

func TestPositionBeforeAndEqual(t *testing.T) {
	a := Position{Row: 1, Col: 5}
	b := Position{Row: 1, Col: 6}
	c := Position{Row: 2, Col: 0}

	if !a.Before(b) {
		t.Error("expected a before b on same row")
	}
	if !b.Before(c) {
		t.Error("expected b before c on earlier row")
	}
	if c.Before(a) {
		t.Error("expected c not before a")
	}
	if !a.Equal(Position{Row: 1, Col: 5}) {
		t.Error("expected equal positions to compare equal")
	}
}

func TestGridClearAllBlanksViewportKeepsHistory(t *testing.T) {
	g := NewGrid(4, 10, 100)
	g.SetCell(0, 0, Cell{Char: 'x'})
	g.pushHistory(Row{Cells: []Cell{{Char: 'h'}}})

	g.ClearAll()

	for r := 0; r < g.Rows(); r++ {
		for _, c := range g.viewport[r].Cells {
			if c.Char != ' ' {
				t.Fatalf("expected blank cell at row %d, got %q", r, c.Char)
			}
		}
	}
	if g.HistoryLen() != 1 {
		t.Errorf("expected history untouched, got %d lines", g.HistoryLen())
	}
}

func TestGridDamageResetIsIdempotent(t *testing.T) {
	g := NewGrid(4, 10, 100)
	g.ConsumeDamage()

	d := g.ConsumeDamage()
	if d.Kind != DamageNone {
		t.Errorf("expected DamageNone with no mutations, got %v", d.Kind)
	}
}

func TestGridSetCellMarksDamage(t *testing.T) {
	g := NewGrid(4, 10, 100)
	g.ConsumeDamage()

	g.SetCell(1, 2, Cell{Char: 'z'})

	d := g.ConsumeDamage()
	if d.Kind == DamageNone {
		t.Fatal("expected damage after SetCell")
	}
}

func TestGridDisplayOffsetClampedToHistory(t *testing.T) {
	g := NewGrid(4, 10, 100)
	for i := 0; i < 5; i++ {
		g.pushHistory(Row{Cells: make([]Cell, 10)})
	}

	g.ScrollDisplay(1000)
	if g.DisplayOffset() > g.HistoryLen() {
		t.Errorf("display offset %d exceeds history length %d", g.DisplayOffset(), g.HistoryLen())
	}

	g.ScrollDisplay(-1000)
	if g.DisplayOffset() < 0 {
		t.Errorf("display offset went negative: %d", g.DisplayOffset())
	}
}

func TestGridResizeRoundTripPreservesColumnContent(t *testing.T) {
	g := NewGrid(5, 10, 100)
	g.SetCell(0, 0, Cell{Char: 'A'})
	g.SetCell(0, 1, Cell{Char: 'B'})

	g.Resize(5, 20)
	g.Resize(5, 10)

	if g.Cell(0, 0).Char != 'A' || g.Cell(0, 1).Char != 'B' {
		t.Error("expected column-preserving content to survive a resize round trip")
	}
}

func TestGridLineNegativeIndexesHistory(t *testing.T) {
	g := NewGrid(3, 5, 100)
	g.pushHistory(Row{Cells: []Cell{{Char: 'h'}, {Char: 'i'}}})

	line := g.Line(-1)
	if line == nil || line[0].Char != 'h' {
		t.Fatalf("expected Line(-1) to return the most recent history row, got %+v", line)
	}
}
