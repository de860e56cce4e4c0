package blockterm

import "testing"

func TestCellResetClearsAttributes(t *testing.T) {
	c := NewCell()
	c.Char = 'x'
	c.SetFlag(CellFlagBold)
	c.Hyperlink = &Hyperlink{URI: "https://example.com"}

	c.Reset()

	if c.Char != ' ' {
		t.Errorf("expected space, got %q", c.Char)
	}
	if c.HasFlag(CellFlagBold) {
		t.Error("expected flags cleared")
	}
	if c.Hyperlink != nil {
		t.Error("expected hyperlink cleared")
	}
}

func TestCellSetUnderlineStyleIsExclusive(t *testing.T) {
	var c Cell
	c.SetUnderlineStyle(CellFlagCurlyUnderline)
	if !c.HasFlag(CellFlagCurlyUnderline) {
		t.Fatal("expected curly underline set")
	}
	c.SetUnderlineStyle(CellFlagDoubleUnderline)
	if c.HasFlag(CellFlagCurlyUnderline) {
		t.Error("expected curly underline cleared when switching styles")
	}
	if !c.HasFlag(CellFlagDoubleUnderline) {
		t.Error("expected double underline set")
	}
	c.SetUnderlineStyle(0)
	if c.Flags&underlineFlags != 0 {
		t.Error("expected all underline bits cleared")
	}
}

func TestCellIsWideSpacer(t *testing.T) {
	var lead, trail, spacer Cell
	lead.SetFlag(CellFlagWideLeading)
	trail.SetFlag(CellFlagWideTrailing)
	spacer.SetFlag(CellFlagLeadingSpacer)

	if lead.IsWideSpacer() {
		t.Error("leading cell is not a spacer")
	}
	if !trail.IsWideSpacer() {
		t.Error("trailing cell is a spacer")
	}
	if !spacer.IsWideSpacer() {
		t.Error("leading-spacer cell is a spacer")
	}
}

func TestHyperlinkEqual(t *testing.T) {
	a := &Hyperlink{ID: "1", URI: "https://a"}
	b := &Hyperlink{ID: "1", URI: "https://b"}
	c := &Hyperlink{ID: "2", URI: "https://a"}
	d := &Hyperlink{URI: "https://a"}
	e := &Hyperlink{URI: "https://a"}

	if !a.Equal(b) {
		t.Error("expected equal by ID")
	}
	if a.Equal(c) {
		t.Error("expected unequal IDs to differ")
	}
	if !d.Equal(e) {
		t.Error("expected equal by URI when IDs are both empty")
	}
	var nilLink *Hyperlink
	if nilLink.Equal(a) {
		t.Error("nil should not equal a non-nil hyperlink")
	}
}

func TestCellCopyClonesCombining(t *testing.T) {
	c := NewCell()
	c.Combining = []rune{0x0301}
	cp := c.Copy()
	cp.Combining[0] = 0x0300
	if c.Combining[0] != 0x0301 {
		t.Error("expected Copy to deep-copy Combining")
	}
}
