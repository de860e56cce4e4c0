package blockterm

import "testing"

func TestBuildHyperlinkSpanMapAssignsStableSpans(t *testing.T) {
	link := &Hyperlink{URI: "https://example.com"}
	rows := [][]Cell{
		{{Char: 'a', Hyperlink: link}, {Char: 'b', Hyperlink: link}, {Char: 'c'}},
	}

	m := BuildHyperlinkSpanMap(rows)

	id0, ok0 := m.SpanIDAt(Position{Row: 0, Col: 0})
	id1, ok1 := m.SpanIDAt(Position{Row: 0, Col: 1})
	_, ok2 := m.SpanIDAt(Position{Row: 0, Col: 2})

	if !ok0 || !ok1 {
		t.Fatal("expected linked cells to report a span")
	}
	if id0 != id1 {
		t.Errorf("expected adjacent same-link cells to share a span id, got %d and %d", id0, id1)
	}
	if ok2 {
		t.Error("expected the non-linked cell to report no span")
	}

	uri, ok := m.URIForSpan(id0)
	if !ok || uri != "https://example.com" {
		t.Errorf("expected span URI to round-trip, got %q", uri)
	}
}

func TestBuildHyperlinkSpanMapSplitsOnLinkChange(t *testing.T) {
	a := &Hyperlink{URI: "https://a"}
	b := &Hyperlink{URI: "https://b"}
	rows := [][]Cell{
		{{Char: '1', Hyperlink: a}, {Char: '2', Hyperlink: b}},
	}

	m := BuildHyperlinkSpanMap(rows)
	id0, _ := m.SpanIDAt(Position{Row: 0, Col: 0})
	id1, _ := m.SpanIDAt(Position{Row: 0, Col: 1})
	if id0 == id1 {
		t.Error("expected distinct hyperlinks to get distinct span ids")
	}
}

func TestBuildHyperlinkSpanMapHandlesRaggedRows(t *testing.T) {
	link := &Hyperlink{URI: "https://x"}
	rows := [][]Cell{
		nil,
		{{Char: 'x', Hyperlink: link}, {Char: 'y', Hyperlink: link}, {Char: 'z', Hyperlink: link}},
	}

	m := BuildHyperlinkSpanMap(rows)
	if m.cols != 3 {
		t.Errorf("expected cols to track the widest row, got %d", m.cols)
	}
	if _, ok := m.SpanIDAt(Position{Row: 1, Col: 2}); !ok {
		t.Error("expected the longer row's last cell to be addressable")
	}
}

func TestSelectedTextSimpleSelection(t *testing.T) {
	g := NewGrid(3, 10, 0)
	for i, r := range "hello" {
		g.SetCell(0, i, Cell{Char: r})
	}

	sel := ToRange(g, SelectionSimple, Position{Row: 0, Col: 1}, Position{Row: 0, Col: 4}, " ")
	text := SelectedText(g, sel)
	if text != "ell" {
		t.Errorf("expected %q, got %q", "ell", text)
	}
}

func TestSelectedTextLinesExpandsToFullRow(t *testing.T) {
	g := NewGrid(3, 10, 0)
	for i, r := range "hello" {
		g.SetCell(0, i, Cell{Char: r})
	}

	sel := ToRange(g, SelectionLines, Position{Row: 0, Col: 2}, Position{Row: 0, Col: 3}, " ")
	text := SelectedText(g, sel)
	if text != "hello" {
		t.Errorf("expected the whole line, got %q", text)
	}
}

func TestSelectedTextBlockSelectionIsRectangular(t *testing.T) {
	g := NewGrid(3, 10, 0)
	rowsText := []string{"abcdef", "ghijkl"}
	for r, line := range rowsText {
		for c, ch := range line {
			g.SetCell(r, c, Cell{Char: ch})
		}
	}

	sel := SelectionRange{Kind: SelectionBlock, IsBlock: true, Start: Position{Row: 0, Col: 1}, End: Position{Row: 1, Col: 3}}
	text := SelectedText(g, sel)
	if text != "bc\nhi" {
		t.Errorf("expected rectangular block text, got %q", text)
	}
}

func TestToRangeNormalizesReversedDrag(t *testing.T) {
	g := NewGrid(3, 10, 0)
	sel := ToRange(g, SelectionSimple, Position{Row: 2, Col: 5}, Position{Row: 0, Col: 1}, " ")
	if sel.Start.Row != 0 || sel.End.Row != 2 {
		t.Errorf("expected start/end normalized to reading order, got start=%v end=%v", sel.Start, sel.End)
	}
}
