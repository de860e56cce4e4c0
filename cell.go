package blockterm

import "image/color"

// CellFlags is a bitmask of cell rendering attributes.
type CellFlags uint32

const (
	CellFlagBold CellFlags = 1 << iota
	CellFlagDim
	CellFlagItalic
	CellFlagInverse
	CellFlagHidden
	CellFlagStrike
	CellFlagUnderline
	CellFlagDoubleUnderline
	CellFlagCurlyUnderline
	CellFlagDottedUnderline
	CellFlagDashedUnderline
	CellFlagBlinkSlow
	CellFlagBlinkFast
	// CellFlagWideLeading marks the first cell of a double-width pair.
	CellFlagWideLeading
	// CellFlagWideTrailing marks the filler second cell of a double-width pair.
	// The renderer must suppress this cell's character.
	CellFlagWideTrailing
	// CellFlagLeadingSpacer marks a cell that could not hold a wide char at the
	// last column; the wide char itself wraps to the next row (spec.md I3).
	CellFlagLeadingSpacer
	// CellFlagWrapMarker is the cell-level marker for a row that ended via
	// autowrap rather than an explicit CR/LF. Surface records autowrap on
	// Row.Wrapped (Grid.SetWrapped) only and does not set this flag.
	CellFlagWrapMarker
)

// underlineFlags is the mask of mutually-exclusive underline style bits.
const underlineFlags = CellFlagUnderline | CellFlagDoubleUnderline | CellFlagCurlyUnderline | CellFlagDottedUnderline | CellFlagDashedUnderline

// Hyperlink associates a cell with a clickable link (OSC 8). Equality is by
// ID when either link has a non-empty ID, else by URI (spec.md §3).
type Hyperlink struct {
	ID  string
	URI string
}

// Equal reports whether two hyperlink handles refer to the same link.
func (h *Hyperlink) Equal(other *Hyperlink) bool {
	if h == nil || other == nil {
		return h == other
	}
	if h.ID != "" || other.ID != "" {
		return h.ID == other.ID
	}
	return h.URI == other.URI
}

// Cell stores the character, colors, and formatting attributes for one grid
// position. Wide characters occupy two adjacent cells: the first flagged
// WideLeading, the second WideTrailing with a filler character the renderer
// must suppress (spec.md §3 invariant).
type Cell struct {
	Char           rune
	Combining      []rune // zero-width combining marks attached to Char
	Fg             color.Color
	Bg             color.Color
	UnderlineColor color.Color
	Flags          CellFlags
	Hyperlink      *Hyperlink
}

// NewCell returns a cell initialized with a space character and default colors.
func NewCell() Cell {
	return Cell{
		Char: ' ',
		Fg:   &NamedColor{Name: NamedColorForeground},
		Bg:   &NamedColor{Name: NamedColorBackground},
	}
}

// Reset clears all attributes and sets the cell to default state.
func (c *Cell) Reset() {
	c.Char = ' '
	c.Combining = nil
	c.Fg = &NamedColor{Name: NamedColorForeground}
	c.Bg = &NamedColor{Name: NamedColorBackground}
	c.UnderlineColor = nil
	c.Flags = 0
	c.Hyperlink = nil
}

// ResetWithTemplate clears the cell but applies fg/bg/flags from a template,
// used by erase operations that fill with the current SGR attributes.
func (c *Cell) ResetWithTemplate(tpl CellTemplate) {
	c.Char = ' '
	c.Combining = nil
	c.Fg = tpl.Fg
	c.Bg = tpl.Bg
	c.UnderlineColor = tpl.UnderlineColor
	c.Flags = tpl.Flags &^ (CellFlagWideLeading | CellFlagWideTrailing | CellFlagLeadingSpacer | CellFlagWrapMarker)
	c.Hyperlink = tpl.Hyperlink
}

// HasFlag returns true if the specified flag is set.
func (c *Cell) HasFlag(flag CellFlags) bool { return c.Flags&flag != 0 }

// SetFlag enables the specified flag without affecting others.
func (c *Cell) SetFlag(flag CellFlags) { c.Flags |= flag }

// ClearFlag disables the specified flag without affecting others.
func (c *Cell) ClearFlag(flag CellFlags) { c.Flags &^= flag }

// SetUnderlineStyle clears any existing underline style and sets the given one.
// Passing 0 removes underlining entirely.
func (c *Cell) SetUnderlineStyle(style CellFlags) {
	c.Flags &^= underlineFlags
	c.Flags |= style & underlineFlags
}

// IsWideLeading returns true if this cell is the first of a double-width pair.
func (c *Cell) IsWideLeading() bool { return c.HasFlag(CellFlagWideLeading) }

// IsWideTrailing returns true if this is the filler second cell of a
// double-width pair; renderers must suppress its character.
func (c *Cell) IsWideTrailing() bool { return c.HasFlag(CellFlagWideTrailing) }

// IsWideSpacer reports whether the cell is any non-renderable half of a wide
// pair (trailing filler or a leading spacer forced by a wrap).
func (c *Cell) IsWideSpacer() bool {
	return c.HasFlag(CellFlagWideTrailing) || c.HasFlag(CellFlagLeadingSpacer)
}

// Copy returns a shallow copy of the cell (colors/hyperlink are reference types
// and intentionally shared; Combining is cloned since it grows in place).
func (c *Cell) Copy() Cell {
	cp := *c
	if len(c.Combining) > 0 {
		cp.Combining = append([]rune(nil), c.Combining...)
	}
	return cp
}

// IsEmpty reports whether the cell is a blank space with no attributes or
// hyperlink. BlockSurface does not trim empty viewport rows: each block
// contributes its full history and viewport to the stitched view.
func (c *Cell) IsEmpty() bool {
	return c.Char == ' ' && c.Flags == 0 && c.Hyperlink == nil && len(c.Combining) == 0
}
