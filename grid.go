package blockterm

// Position identifies a cell location in viewport coordinates (0-based).
type Position struct {
	Row int
	Col int
}

// Before returns true if this position comes before other in reading order (top-to-bottom, left-to-right).
func (p Position) Before(other Position) bool {
	if p.Row < other.Row {
		return true
	}
	return p.Row == other.Row && p.Col < other.Col
}

// Equal returns true if both row and column match.
func (p Position) Equal(other Position) bool {
	return p.Row == other.Row && p.Col == other.Col
}

// Row is one line of cells plus its wrap/alignment state.
type Row struct {
	Cells   []Cell
	Wrapped bool // true if the line ended by autowrap rather than CR/LF
}

func newRow(cols int) Row {
	cells := make([]Cell, cols)
	for i := range cells {
		cells[i] = NewCell()
	}
	return Row{Cells: cells}
}

// Grid is a fixed-size viewport of rows backed by a bounded scrollback
// history. Lines are addressed with signed indices: 0..rows-1 selects the
// live viewport, negative indices select history, with -1 being the line
// immediately above the viewport (spec.md §4.1).
type Grid struct {
	rows, cols   int
	viewport     []Row
	history      []Row // oldest first
	historyLimit int
	displayOffset int // 0 == viewing the live bottom; > 0 scrolled into history

	tabStops []bool

	damage     map[int]LineDamageBounds
	fullDamage bool
}

// NewGrid creates a grid with the given viewport size and scrollback limit.
// Tab stops are initialized every 8 columns.
func NewGrid(rows, cols, historyLimit int) *Grid {
	g := &Grid{
		rows:         rows,
		cols:         cols,
		historyLimit: historyLimit,
		damage:       make(map[int]LineDamageBounds),
	}
	g.viewport = make([]Row, rows)
	for i := range g.viewport {
		g.viewport[i] = newRow(cols)
	}
	g.tabStops = make([]bool, cols)
	for i := 0; i < cols; i += 8 {
		g.tabStops[i] = true
	}
	return g
}

// Rows returns the viewport height.
func (g *Grid) Rows() int { return g.rows }

// Cols returns the viewport width.
func (g *Grid) Cols() int { return g.cols }

// HistoryLen returns the number of lines retained in scrollback.
func (g *Grid) HistoryLen() int { return len(g.history) }

// DisplayOffset returns how many lines the view is scrolled back into
// history (0 means viewing the live bottom).
func (g *Grid) DisplayOffset() int { return g.displayOffset }

// Cell returns a pointer to the live-viewport cell at (row, col), or nil if
// out of bounds. Scrolled-back history is not addressable through Cell;
// use Line for that.
func (g *Grid) Cell(row, col int) *Cell {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return nil
	}
	return &g.viewport[row].Cells[col]
}

// SetCell replaces the viewport cell at (row, col) and marks it dirty.
func (g *Grid) SetCell(row, col int, cell Cell) {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return
	}
	g.viewport[row].Cells[col] = cell
	g.markDirty(row, col, col+1)
}

// Line returns the cells for signed line index n: n in [0, rows) is the
// live viewport, n in [-HistoryLen(), 0) is scrollback, oldest-to-newest.
// Returns nil if n is out of range.
func (g *Grid) Line(n int) []Cell {
	if n >= 0 {
		if n >= g.rows {
			return nil
		}
		return g.viewport[n].Cells
	}
	idx := len(g.history) + n
	if idx < 0 || idx >= len(g.history) {
		return nil
	}
	return g.history[idx].Cells
}

// TotalLines returns the number of addressable lines: history plus viewport.
func (g *Grid) TotalLines() int { return len(g.history) + g.rows }

func (g *Grid) markDirty(row, left, right int) {
	if row < 0 || row >= g.rows {
		return
	}
	b := g.damage[row]
	b.expand(left, right)
	g.damage[row] = b
}

// MarkFullDamage forces the next ConsumeDamage to report DamageFull
// (used after resize and alt-screen swaps, spec.md §4.2).
func (g *Grid) MarkFullDamage() { g.fullDamage = true }

// ConsumeDamage returns the accumulated damage since the last call and
// resets tracking state.
func (g *Grid) ConsumeDamage() SnapshotDamage {
	if g.fullDamage {
		g.fullDamage = false
		g.damage = make(map[int]LineDamageBounds)
		return SnapshotDamage{Kind: DamageFull}
	}
	if len(g.damage) == 0 {
		return SnapshotDamage{Kind: DamageNone}
	}
	rows := g.damage
	g.damage = make(map[int]LineDamageBounds)
	return SnapshotDamage{Kind: DamagePartial, Rows: rows}
}

// ClearRow resets all cells in the viewport row to default state.
func (g *Grid) ClearRow(row int) {
	g.ClearRowRange(row, 0, g.cols)
}

// ClearRowRangeWithTemplate resets cells in [startCol, endCol) of a viewport
// row using the given template attributes.
func (g *Grid) ClearRowRangeWithTemplate(row, startCol, endCol int, tpl CellTemplate) {
	if row < 0 || row >= g.rows {
		return
	}
	if startCol < 0 {
		startCol = 0
	}
	if endCol > g.cols {
		endCol = g.cols
	}
	for col := startCol; col < endCol; col++ {
		g.viewport[row].Cells[col].ResetWithTemplate(tpl)
	}
	g.markDirty(row, startCol, endCol)
}

// ClearRowRange resets cells in [startCol, endCol) of a viewport row to bare defaults.
func (g *Grid) ClearRowRange(row, startCol, endCol int) {
	g.ClearRowRangeWithTemplate(row, startCol, endCol, NewCellTemplate())
}

// ClearAll resets every viewport row to default state.
func (g *Grid) ClearAll() {
	for row := 0; row < g.rows; row++ {
		g.ClearRow(row)
	}
}

// pushHistory appends a row to scrollback, evicting the oldest row if the
// configured limit is exceeded.
func (g *Grid) pushHistory(r Row) {
	if g.historyLimit <= 0 {
		return
	}
	g.history = append(g.history, r)
	if len(g.history) > g.historyLimit {
		g.history = g.history[len(g.history)-g.historyLimit:]
	}
}

// ScrollUp shifts lines [top, bottom) up by n, pushing evicted top lines
// into history only when top == 0 (primary-screen scroll region at origin).
// Lines scrolled in at the bottom are blank.
func (g *Grid) ScrollUp(top, bottom, n int) {
	if n <= 0 || top >= bottom {
		return
	}
	if top < 0 {
		top = 0
	}
	if bottom > g.rows {
		bottom = g.rows
	}
	if n > bottom-top {
		n = bottom - top
	}

	if top == 0 {
		for i := 0; i < n; i++ {
			g.pushHistory(g.viewport[i])
		}
	}

	copy(g.viewport[top:], g.viewport[top+n:bottom])
	for row := bottom - n; row < bottom; row++ {
		g.viewport[row] = newRow(g.cols)
	}
	for row := top; row < bottom; row++ {
		g.markDirty(row, 0, g.cols)
	}
}

// ScrollDown shifts lines [top, bottom) down by n. Lines scrolled in at the
// top are blank; no history interaction (spec.md: scroll-down never reads
// scrollback).
func (g *Grid) ScrollDown(top, bottom, n int) {
	if n <= 0 || top >= bottom {
		return
	}
	if top < 0 {
		top = 0
	}
	if bottom > g.rows {
		bottom = g.rows
	}
	if n > bottom-top {
		n = bottom - top
	}

	for row := bottom - 1; row >= top+n; row-- {
		g.viewport[row] = g.viewport[row-n]
	}
	for row := top; row < top+n; row++ {
		g.viewport[row] = newRow(g.cols)
	}
	for row := top; row < bottom; row++ {
		g.markDirty(row, 0, g.cols)
	}
}

// ScrollDisplay moves the display offset by delta lines, clamped to
// [0, HistoryLen()]. Positive delta scrolls back into history.
func (g *Grid) ScrollDisplay(delta int) {
	off := g.displayOffset + delta
	if off < 0 {
		off = 0
	}
	if max := len(g.history); off > max {
		off = max
	}
	if off != g.displayOffset {
		g.displayOffset = off
		g.MarkFullDamage()
	}
}

// ResetDisplayOffset snaps the view back to the live bottom (called on new
// output per the conventional "scroll to bottom on input" policy).
func (g *Grid) ResetDisplayOffset() {
	if g.displayOffset != 0 {
		g.displayOffset = 0
		g.MarkFullDamage()
	}
}

// InsertLines inserts n blank lines at row within [row, bottom), shifting
// existing lines down (equivalent to ScrollDown(row, bottom, n)).
func (g *Grid) InsertLines(row, n, bottom int) {
	if row < 0 || row >= bottom || n <= 0 {
		return
	}
	g.ScrollDown(row, bottom, n)
}

// DeleteLines removes n lines at row within [row, bottom), shifting
// remaining lines up (equivalent to ScrollUp(row, bottom, n), no history push).
func (g *Grid) DeleteLines(row, n, bottom int) {
	if row < 0 || row >= bottom || n <= 0 {
		return
	}
	if bottom > g.rows {
		bottom = g.rows
	}
	if n > bottom-row {
		n = bottom - row
	}
	copy(g.viewport[row:], g.viewport[row+n:bottom])
	for r := bottom - n; r < bottom; r++ {
		g.viewport[r] = newRow(g.cols)
	}
	for r := row; r < bottom; r++ {
		g.markDirty(r, 0, g.cols)
	}
}

// InsertBlanks inserts n blank cells at (row, col), shifting existing
// characters in that row right; characters pushed past the last column
// are discarded.
func (g *Grid) InsertBlanks(row, col, n int) {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols || n <= 0 {
		return
	}
	cells := g.viewport[row].Cells
	for c := g.cols - 1; c >= col+n; c-- {
		cells[c] = cells[c-n]
	}
	for c := col; c < col+n && c < g.cols; c++ {
		cells[c].Reset()
	}
	g.markDirty(row, col, g.cols)
}

// DeleteChars removes n characters at (row, col), shifting remaining
// characters in that row left; vacated columns at the end are cleared.
func (g *Grid) DeleteChars(row, col, n int) {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols || n <= 0 {
		return
	}
	cells := g.viewport[row].Cells
	for c := col; c < g.cols-n; c++ {
		cells[c] = cells[c+n]
	}
	for c := g.cols - n; c < g.cols; c++ {
		if c >= 0 {
			cells[c].Reset()
		}
	}
	g.markDirty(row, col, g.cols)
}

// Resize changes viewport dimensions without reflowing text (Open Question
// 1, DESIGN.md): growing rows pulls lines back from history to fill the new
// space; shrinking rows pushes the removed top lines into history.
// Column changes truncate or pad each row; a wide pair straddling the new
// right edge loses its trailing half and its leading half's wide-leading
// flag is cleared.
func (g *Grid) Resize(rows, cols int) {
	if rows <= 0 || cols <= 0 {
		return
	}

	if rows > g.rows {
		grow := rows - g.rows
		pulled := grow
		if pulled > len(g.history) {
			pulled = len(g.history)
		}
		newTop := make([]Row, pulled)
		copy(newTop, g.history[len(g.history)-pulled:])
		g.history = g.history[:len(g.history)-pulled]

		newViewport := make([]Row, 0, rows)
		newViewport = append(newViewport, newTop...)
		newViewport = append(newViewport, g.viewport...)
		for len(newViewport) < rows {
			newViewport = append(newViewport, newRow(g.cols))
		}
		g.viewport = newViewport
	} else if rows < g.rows {
		shrink := g.rows - rows
		for i := 0; i < shrink; i++ {
			g.pushHistory(g.viewport[i])
		}
		g.viewport = g.viewport[shrink:]
	}
	g.rows = rows

	if cols != g.cols {
		for i := range g.viewport {
			g.viewport[i].Cells = resizeRowCells(g.viewport[i].Cells, cols)
		}
		for i := range g.history {
			g.history[i].Cells = resizeRowCells(g.history[i].Cells, cols)
		}
		newTabStops := make([]bool, cols)
		copy(newTabStops, g.tabStops)
		for i := len(g.tabStops); i < cols; i += 8 {
			newTabStops[i] = true
		}
		g.tabStops = newTabStops
		g.cols = cols
	}

	g.MarkFullDamage()
}

func resizeRowCells(cells []Cell, cols int) []Cell {
	if cols == len(cells) {
		return cells
	}
	out := make([]Cell, cols)
	n := len(cells)
	if n > cols {
		n = cols
	}
	copy(out, cells[:n])
	if n > 0 && out[n-1].IsWideLeading() {
		out[n-1].ClearFlag(CellFlagWideLeading)
	}
	for i := n; i < cols; i++ {
		out[i] = NewCell()
	}
	return out
}

// SetTabStop enables a tab stop at the specified column.
func (g *Grid) SetTabStop(col int) {
	if col >= 0 && col < g.cols {
		g.tabStops[col] = true
	}
}

// ClearTabStop disables the tab stop at the specified column.
func (g *Grid) ClearTabStop(col int) {
	if col >= 0 && col < g.cols {
		g.tabStops[col] = false
	}
}

// ClearAllTabStops disables all tab stops.
func (g *Grid) ClearAllTabStops() {
	for i := range g.tabStops {
		g.tabStops[i] = false
	}
}

// NextTabStop returns the column of the next enabled tab stop after col,
// or the last column if none remain.
func (g *Grid) NextTabStop(col int) int {
	for c := col + 1; c < g.cols; c++ {
		if g.tabStops[c] {
			return c
		}
	}
	return g.cols - 1
}

// PrevTabStop returns the column of the previous enabled tab stop before
// col, or 0 if none exists.
func (g *Grid) PrevTabStop(col int) int {
	for c := col - 1; c >= 0; c-- {
		if g.tabStops[c] {
			return c
		}
	}
	return 0
}

// IsWrapped reports whether the viewport row ended via autowrap.
func (g *Grid) IsWrapped(row int) bool {
	if row < 0 || row >= g.rows {
		return false
	}
	return g.viewport[row].Wrapped
}

// SetWrapped sets whether the viewport row ended via autowrap.
func (g *Grid) SetWrapped(row int, wrapped bool) {
	if row < 0 || row >= g.rows {
		return
	}
	g.viewport[row].Wrapped = wrapped
}

// LineText returns the text content of a viewport row, trimming trailing
// spaces and skipping wide-pair spacer cells.
func (g *Grid) LineText(row int) string {
	if row < 0 || row >= g.rows {
		return ""
	}
	return cellsToText(g.viewport[row].Cells)
}

func cellsToText(cells []Cell) string {
	last := -1
	for i := len(cells) - 1; i >= 0; i-- {
		c := &cells[i]
		if c.Char != ' ' && c.Char != 0 && !c.IsWideSpacer() {
			last = i
			break
		}
	}
	if last < 0 {
		return ""
	}
	runes := make([]rune, 0, last+1)
	for i := 0; i <= last; i++ {
		c := &cells[i]
		if c.IsWideSpacer() {
			continue
		}
		if c.Char == 0 {
			runes = append(runes, ' ')
		} else {
			runes = append(runes, c.Char)
			runes = append(runes, c.Combining...)
		}
	}
	return string(runes)
}
