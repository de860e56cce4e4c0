package blockterm

import "strings"

// SelectionKind distinguishes the granularity/shape of a text selection
// (spec.md §4.7).
type SelectionKind int

const (
	SelectionSimple SelectionKind = iota
	SelectionSemantic
	SelectionLines
	SelectionBlock
)

// SelectionRange is a normalized selection: Start is always before or equal
// to End in row-major order, regardless of drag direction.
type SelectionRange struct {
	Kind    SelectionKind
	Start   Position
	End     Position
	IsBlock bool
}

// ToRange normalizes a raw (anchor, cursor) drag pair into a SelectionRange
// according to kind, expanding word/line boundaries as needed (spec.md
// §4.7 to_range).
func ToRange(grid *Grid, kind SelectionKind, a, b Position, semanticEscapeChars string) SelectionRange {
	start, end := a, b
	if end.Before(start) {
		start, end = end, start
	}

	switch kind {
	case SelectionLines:
		start.Col = 0
		end.Col = grid.Cols()
	case SelectionSemantic:
		start = expandSemanticStart(grid, start, semanticEscapeChars)
		end = expandSemanticEnd(grid, end, semanticEscapeChars)
	}

	return SelectionRange{Kind: kind, Start: start, End: end, IsBlock: kind == SelectionBlock}
}

func isSemanticBoundary(r rune, escapeChars string) bool {
	if r == ' ' || r == 0 {
		return true
	}
	return strings.ContainsRune(escapeChars, r)
}

func expandSemanticStart(grid *Grid, p Position, escapeChars string) Position {
	cells := grid.Line(p.Row)
	if cells == nil {
		return p
	}
	col := p.Col
	for col > 0 && col-1 < len(cells) && !isSemanticBoundary(cells[col-1].Char, escapeChars) {
		col--
	}
	return Position{Row: p.Row, Col: col}
}

func expandSemanticEnd(grid *Grid, p Position, escapeChars string) Position {
	cells := grid.Line(p.Row)
	if cells == nil {
		return p
	}
	col := p.Col
	for col < len(cells) && !isSemanticBoundary(cells[col].Char, escapeChars) {
		col++
	}
	return Position{Row: p.Row, Col: col}
}

// SelectedText extracts the text covered by a SelectionRange from a single
// Grid, honoring IsBlock (rectangular) vs. stream selection.
func SelectedText(grid *Grid, sel SelectionRange) string {
	if sel.Start == (Position{}) && sel.End == (Position{}) {
		return ""
	}
	var b strings.Builder
	for row := sel.Start.Row; row <= sel.End.Row; row++ {
		cells := grid.Line(row)
		if cells == nil {
			if row != sel.Start.Row {
				b.WriteByte('\n')
			}
			continue
		}

		startCol, endCol := 0, len(cells)
		if sel.IsBlock {
			startCol, endCol = sel.Start.Col, sel.End.Col
		} else {
			if row == sel.Start.Row {
				startCol = sel.Start.Col
			}
			if row == sel.End.Row {
				endCol = sel.End.Col
			}
		}
		if startCol < 0 {
			startCol = 0
		}
		if endCol > len(cells) {
			endCol = len(cells)
		}
		if startCol < endCol {
			b.WriteString(strings.TrimRight(cellsToText(cells[startCol:endCol]), " "))
		}
		if row != sel.End.Row {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// HyperlinkSpanMap assigns a stable span id to every maximal run of
// adjacent cells sharing the same hyperlink handle, keyed by viewport
// position, and answers span_id_at(point) in O(1) (spec.md §4.7).
type HyperlinkSpanMap struct {
	rows  int
	cols  int
	spans []uint32 // row*cols+col -> spanID+1, 0 means no link
	uris  map[uint32]string
}

// BuildHyperlinkSpanMap walks the given viewport-coordinate cell rows in
// row-major order, assigning a new span id whenever the hyperlink handle
// changes from the previous cell.
func BuildHyperlinkSpanMap(rows [][]Cell) *HyperlinkSpanMap {
	numRows := len(rows)
	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	m := &HyperlinkSpanMap{
		rows:  numRows,
		cols:  cols,
		spans: make([]uint32, numRows*cols),
		uris:  make(map[uint32]string),
	}

	var nextID uint32 = 1
	var prev *Hyperlink
	var prevSpan uint32

	for r := 0; r < numRows; r++ {
		prev = nil
		for c := 0; c < cols && c < len(rows[r]); c++ {
			link := rows[r][c].Hyperlink
			if link == nil {
				prev = nil
				continue
			}
			if prev == nil || !link.Equal(prev) {
				prevSpan = nextID
				nextID++
				uri := link.URI
				m.uris[prevSpan] = uri
			}
			m.spans[r*cols+c] = prevSpan
			prev = link
		}
	}
	return m
}

// SpanIDAt returns the span id at point; it returns 0 and ok=false when the
// point is out of range or its cell carries no hyperlink.
func (m *HyperlinkSpanMap) SpanIDAt(p Position) (id uint32, ok bool) {
	if m == nil || p.Row < 0 || p.Row >= m.rows || p.Col < 0 || p.Col >= m.cols {
		return 0, false
	}
	v := m.spans[p.Row*m.cols+p.Col]
	return v, v != 0
}

// URIForSpan returns the URI bound to a span id, if any.
func (m *HyperlinkSpanMap) URIForSpan(id uint32) (string, bool) {
	if m == nil || id == 0 {
		return "", false
	}
	uri, ok := m.uris[id]
	return uri, ok
}
