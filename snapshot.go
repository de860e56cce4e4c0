package blockterm

import "strings"

// CursorSnapshot is the cursor state captured into a Snapshot.
type CursorSnapshot struct {
	Position Position
	Style    CursorStyle
	Visible  bool
}

// Snapshot is an immutable, renderer-facing view of a Surface or
// BlockSurface's current state (spec.md §4.4). Once constructed it is never
// mutated; callers share it by pointer, relying on Go's garbage collector
// rather than manual reference counting to keep it alive while a newer one
// is built concurrently (see DESIGN.md Open Question on ref-counting).
type Snapshot struct {
	Revision uint64

	Rows []Row // viewport-coordinate rows, stitched across blocks if built from a BlockSurface

	Cursor    CursorSnapshot
	Selection *SelectionRange

	Hyperlinks *HyperlinkSpanMap

	Palette Palette
	Mode    Mode

	DisplayOffset int
	Damage        SnapshotDamage

	Blocks []BlockSnapshot

	IsAltScreen bool
}

// BuildSnapshot captures the current state of a single Surface.
func BuildSnapshot(s *Surface, revision uint64) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grid := s.active
	rows := make([]Row, grid.Rows())
	cellRows := make([][]Cell, grid.Rows())
	for r := 0; r < grid.Rows(); r++ {
		cells := grid.Line(r)
		cellRows[r] = cells
		rows[r] = Row{Cells: cells, Wrapped: grid.IsWrapped(r)}
	}

	var sel *SelectionRange
	if s.selection.Active {
		sel = &SelectionRange{Kind: SelectionSimple, Start: s.selection.Start, End: s.selection.End}
	}

	return &Snapshot{
		Revision: revision,
		Rows:     rows,
		Cursor: CursorSnapshot{
			Position: Position{Row: s.cursor.Row, Col: s.cursor.Col},
			Style:    s.cursor.Style,
			Visible:  s.cursor.Visible,
		},
		Selection:     sel,
		Hyperlinks:    BuildHyperlinkSpanMap(cellRows),
		Palette:       *s.palette,
		Mode:          s.modes,
		DisplayOffset: grid.DisplayOffset(),
		Damage:        grid.ConsumeDamage(),
		IsAltScreen:   s.modes&ModeAltScreen != 0,
	}
}

// BuildBlockSnapshot captures the stitched multi-block view of a
// BlockSurface: when the active block's alternate screen is showing, the
// snapshot is just that block's screen (spec.md's "branches early on
// is_alt_screen_active" rule, grounded on
// original_source/otty-surface/src/block.rs snapshot_owned); otherwise rows
// are stitched across block boundaries using the same math ScrollDisplay
// uses to locate content.
func BuildBlockSnapshot(bs *BlockSurface, revision uint64) *Snapshot {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if len(bs.blocks) == 0 {
		return &Snapshot{Revision: revision}
	}

	active := bs.activeLocked()

	if bs.isAltScreenActiveLocked() {
		snap := BuildSnapshot(active.surface, revision)
		snap.Blocks = []BlockSnapshot{blockToSnapshot(active, 0, active.surface.Rows())}
		return snap
	}

	rowSpecs := bs.viewportRowsLocked(bs.config.Rows)
	rows := make([]Row, len(rowSpecs))
	cellRows := make([][]Cell, len(rowSpecs))
	for i, spec := range rowSpecs {
		if spec.blockIdx < 0 || spec.blockIdx >= len(bs.blocks) {
			rows[i] = Row{}
			continue
		}
		cells := bs.blocks[spec.blockIdx].surface.Grid().Line(spec.localLine)
		cellRows[i] = cells
		rows[i] = Row{Cells: cells}
	}

	blockSnapshots := make([]BlockSnapshot, 0, len(bs.blocks))
	slices := bs.blockSlicesLocked()
	for i, b := range bs.blocks {
		blockSnapshots = append(blockSnapshots, blockToSnapshot(b, slices[i].start, slices[i].end-slices[i].start))
	}

	damage := stitchedDamageLocked(bs, rowSpecs)

	var sel *SelectionRange
	if bs.globalSelection != nil {
		sel = &SelectionRange{
			Kind:  SelectionSimple,
			Start: Position{Row: bs.globalSelection.start.lineIndex, Col: bs.globalSelection.start.column},
			End:   Position{Row: bs.globalSelection.end.lineIndex, Col: bs.globalSelection.end.column},
		}
	}

	return &Snapshot{
		Revision:      revision,
		Rows:          rows,
		Cursor:        cursorSnapshotFor(active.surface),
		Selection:     sel,
		Hyperlinks:    BuildHyperlinkSpanMap(cellRows),
		Palette:       active.surface.Palette(),
		Mode:          active.surface.ModeFlags(),
		DisplayOffset: bs.displayOffset,
		Damage:        damage,
		Blocks:        blockSnapshots,
		IsAltScreen:   false,
	}
}

// stitchedDamageLocked consumes each block's own grid damage and translates
// it into the stitched viewport's row space (spec.md line 119: Full whenever
// any component block has Full damage or its geometry changed — the latter
// already forces DamageFull out of Grid.Resize's MarkFullDamage — else the
// union of translated dirty rows).
func stitchedDamageLocked(bs *BlockSurface, rowSpecs []struct {
	blockIdx  int
	localLine int
}) SnapshotDamage {
	perBlock := make([]SnapshotDamage, len(bs.blocks))
	full := false
	for i, b := range bs.blocks {
		perBlock[i] = b.surface.Grid().ConsumeDamage()
		if perBlock[i].Kind == DamageFull {
			full = true
		}
	}
	if full {
		return SnapshotDamage{Kind: DamageFull}
	}

	var rows map[int]LineDamageBounds
	for outRow, spec := range rowSpecs {
		if spec.blockIdx < 0 || spec.localLine < 0 {
			continue
		}
		bd := perBlock[spec.blockIdx]
		if bd.Kind != DamagePartial {
			continue
		}
		if bounds, ok := bd.Rows[spec.localLine]; ok {
			if rows == nil {
				rows = make(map[int]LineDamageBounds)
			}
			rows[outRow] = bounds
		}
	}
	if rows == nil {
		return SnapshotDamage{Kind: DamageNone}
	}
	return SnapshotDamage{Kind: DamagePartial, Rows: rows}
}

func cursorSnapshotFor(s *Surface) CursorSnapshot {
	row, col := s.CursorPosition()
	return CursorSnapshot{
		Position: Position{Row: row, Col: col},
		Style:    s.CursorStyle(),
		Visible:  s.CursorVisible(),
	}
}

func blockToSnapshot(b *block, startLine, lineCount int) BlockSnapshot {
	return BlockSnapshot{
		Meta:        b.meta,
		StartLine:   startLine,
		LineCount:   lineCount,
		CachedText:  b.cachedText,
		IsAltScreen: b.surface.IsAltScreen(),
	}
}

// StyleSegment is a maximal run of adjacent cells in a line sharing
// identical rendering attributes, used by StyledLines for text/HTML-style
// rendering without walking individual cells (grounded on teacher
// snapshot.go's lineToSegments/SnapshotSegment compaction).
type StyleSegment struct {
	Text      string
	Fg        Color
	Bg        Color
	Flags     CellFlags
	Hyperlink *Hyperlink
}

// Color is a resolved RGBA tuple, avoiding an image/color import at call
// sites that only want to compare or hash segment colors.
type Color struct {
	R, G, B, A uint8
}

// StyledLines compacts every row in the snapshot into style runs, resolving
// each cell's color against the snapshot's palette.
func (s *Snapshot) StyledLines() [][]StyleSegment {
	out := make([][]StyleSegment, len(s.Rows))
	for i, row := range s.Rows {
		out[i] = styleSegmentsForRow(row.Cells, &s.Palette)
	}
	return out
}

func styleSegmentsForRow(cells []Cell, palette *Palette) []StyleSegment {
	var segments []StyleSegment
	var text strings.Builder
	var current *StyleSegment

	flush := func() {
		if current != nil && text.Len() > 0 {
			current.Text = text.String()
			segments = append(segments, *current)
		}
		text.Reset()
	}

	for i := range cells {
		c := &cells[i]
		if c.IsWideSpacer() {
			continue
		}
		fg := palette.Resolve(c.Fg, true)
		bg := palette.Resolve(c.Bg, false)
		if current == nil || !sameStyle(current, fg, bg, c.Flags, c.Hyperlink) {
			flush()
			current = &StyleSegment{
				Fg:        Color{fg.R, fg.G, fg.B, fg.A},
				Bg:        Color{bg.R, bg.G, bg.B, bg.A},
				Flags:     c.Flags,
				Hyperlink: c.Hyperlink,
			}
		}
		ch := c.Char
		if ch == 0 {
			ch = ' '
		}
		text.WriteRune(ch)
		text.WriteString(string(c.Combining))
	}
	flush()
	return segments
}

func sameStyle(seg *StyleSegment, fg, bg struct{ R, G, B, A uint8 }, flags CellFlags, link *Hyperlink) bool {
	if seg.Fg != (Color{fg.R, fg.G, fg.B, fg.A}) || seg.Bg != (Color{bg.R, bg.G, bg.B, bg.A}) || seg.Flags != flags {
		return false
	}
	if (seg.Hyperlink == nil) != (link == nil) {
		return false
	}
	if seg.Hyperlink != nil && !seg.Hyperlink.Equal(link) {
		return false
	}
	return true
}
