package blockterm

import (
	"testing"
	"unicode/utf8"
)

// Scenario 5: SGR mouse report, left-press at buffer-cell (line=3, col=5)
// with Shift held expects "ESC [ < 4 ; 6 ; 4 M" (button 0 + shift bit 4,
// col+1, row+1, press).
func TestEncodeMouseReportSGRLeftPressShift(t *testing.T) {
	mode := ModeSGRMouse | ModeReportMouseClicks
	m := MouseReport{
		Button:    MouseButtonLeft,
		Modifiers: ModShift,
		Position:  Position{Row: 3, Col: 5},
		Pressed:   true,
	}

	enc, ok := encodeMouseReport(mode, m)
	if !ok {
		t.Fatal("expected mouse tracking active to produce a report")
	}
	expected := "\x1b[<4;6;4M"
	if string(enc) != expected {
		t.Errorf("expected %q, got %q", expected, string(enc))
	}
}

func TestEncodeMouseReportSGRRelease(t *testing.T) {
	mode := ModeSGRMouse | ModeReportMouseClicks
	m := MouseReport{Button: MouseButtonLeft, Position: Position{Row: 0, Col: 0}, Pressed: false}

	enc, ok := encodeMouseReport(mode, m)
	if !ok {
		t.Fatal("expected a report")
	}
	expected := "\x1b[<0;1;1m"
	if string(enc) != expected {
		t.Errorf("expected %q, got %q", expected, string(enc))
	}
}

func TestEncodeMouseReportNoTrackingMode(t *testing.T) {
	_, ok := encodeMouseReport(0, MouseReport{})
	if ok {
		t.Error("expected no report when no mouse-tracking mode is active")
	}
}

func TestEncodeMouseReportNormalModeClampsCoordinates(t *testing.T) {
	mode := ModeReportMouseClicks
	m := MouseReport{Button: MouseButtonLeft, Position: Position{Row: 500, Col: 500}, Pressed: true}

	enc, ok := encodeMouseReport(mode, m)
	if !ok {
		t.Fatal("expected a report")
	}
	if len(enc) != 6 {
		t.Fatalf("expected 6-byte X10 encoding, got %d bytes", len(enc))
	}
	if enc[4] != byte(32+223) || enc[5] != byte(32+223) {
		t.Errorf("expected coordinates clamped to 223, got %d %d", enc[4]-32, enc[5]-32)
	}
}

func TestEncodeMouseReportUTF8ModeEncodesWideCoordinatesAsMultibyte(t *testing.T) {
	mode := ModeUTF8Mouse | ModeReportMouseClicks
	m := MouseReport{Button: MouseButtonLeft, Position: Position{Row: 1, Col: 300}, Pressed: true}

	enc, ok := encodeMouseReport(mode, m)
	if !ok {
		t.Fatal("expected a report")
	}
	if enc[0] != 0x1b || enc[1] != '[' || enc[2] != 'M' {
		t.Fatalf("expected CSI M prefix, got %v", enc[:3])
	}
	col, size := utf8.DecodeRune(enc[4:])
	if size < 2 {
		t.Fatalf("expected a multi-byte UTF-8 encoding for column 301, got %d byte(s)", size)
	}
	if col != rune(32+301) {
		t.Errorf("expected decoded column code point %d, got %d", 32+301, col)
	}
}

// Scenario 6: alternate-scroll-mode wheel scroll(delta=2) emits
// "ESC O A ESC O A" with no display_offset change.
func TestScrollToArrowKeysPositiveDelta(t *testing.T) {
	got := scrollToArrowKeys(2)
	expected := "\x1bOA\x1bOA"
	if string(got) != expected {
		t.Errorf("expected %q, got %q", expected, string(got))
	}
}

func TestScrollToArrowKeysNegativeDelta(t *testing.T) {
	got := scrollToArrowKeys(-1)
	expected := "\x1bOB"
	if string(got) != expected {
		t.Errorf("expected %q, got %q", expected, string(got))
	}
}

func TestBracketedPasteWrapsWhenModeSet(t *testing.T) {
	bs := newTestBlockSurface(24, 80)
	writeBS(bs, "\x1b[?2004h") // bracketed paste on

	it := NewInputTranslator(bs, nil)
	out := it.TranslatePaste("pasted text")
	expected := "\x1b[200~pasted text\x1b[201~"
	if string(out) != expected {
		t.Errorf("expected bracketed paste wrapping, got %q", string(out))
	}
}

func TestBracketedPastePassthroughWhenModeUnset(t *testing.T) {
	bs := newTestBlockSurface(24, 80)
	it := NewInputTranslator(bs, nil)
	out := it.TranslatePaste("plain")
	if string(out) != "plain" {
		t.Errorf("expected unwrapped paste, got %q", string(out))
	}
}

func TestApplicationCursorKeysSwapsIntroducer(t *testing.T) {
	bs := newTestBlockSurface(24, 80)
	writeBS(bs, "\x1b[?1h") // DECCKM application cursor keys on

	it := NewInputTranslator(bs, nil)
	out := it.TranslateKey(KeyUp, 0)
	if string(out) != "\x1bOA" {
		t.Errorf("expected SS3 cursor-up sequence, got %q", string(out))
	}
}

func TestDefaultCursorKeysUseCSIIntroducer(t *testing.T) {
	bs := newTestBlockSurface(24, 80)
	it := NewInputTranslator(bs, nil)
	out := it.TranslateKey(KeyUp, 0)
	if string(out) != "\x1b[A" {
		t.Errorf("expected CSI cursor-up sequence, got %q", string(out))
	}
}

func TestWheelLinesAccumulatesFractionalPixels(t *testing.T) {
	it := &InputTranslator{}
	total := 0
	for i := 0; i < 5; i++ {
		total += it.WheelLines(0.5)
	}
	if total != 2 {
		t.Errorf("expected 5*0.5=2.5 to floor-accumulate to 2 whole lines, got %d", total)
	}
}

func TestBindingTableLookupFallsBackToUnmodified(t *testing.T) {
	table := NewBindingTable(nil)
	a, ok := table.Lookup(KeyUp, ModShift)
	if !ok {
		t.Fatal("expected fallback to the unmodified binding")
	}
	if a.Esc != "\x1b[A" {
		t.Errorf("expected default up-arrow sequence, got %q", a.Esc)
	}
}
