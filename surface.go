package blockterm

import (
	"encoding/base64"
	"fmt"
	"image/color"
	"log/slog"
	"sync"

	"github.com/danielgatis/go-ansicode"
)

var _ ansicode.Handler = (*Surface)(nil)

// Mode is a bitmask of terminal behavior flags. Multiple modes can be
// active simultaneously.
type Mode uint32

const (
	ModeCursorKeys Mode = 1 << iota
	ModeColumnMode
	ModeInsert
	ModeOrigin
	ModeLineWrap
	ModeBlinkingCursor
	ModeLineFeedNewLine
	ModeShowCursor
	ModeReportMouseClicks
	ModeReportCellMouseMotion
	ModeReportAllMouseMotion
	ModeReportFocusInOut
	ModeUTF8Mouse
	ModeSGRMouse
	ModeAlternateScroll
	ModeUrgencyHints
	ModeAltScreen
	ModeBracketedPaste
	ModeKeypadApplication
)

const (
	maxTitleStack = 4096
	maxReportQueue = 256
)

// SurfaceConfig holds the construction-time parameters for a Surface
// (spec.md §6).
type SurfaceConfig struct {
	Rows               int
	Cols               int
	ScrollingHistory   int
	DefaultCursorStyle CursorStyle
	SemanticEscapeChars string
	KittyKeyboard      bool
	OSC52              OSC52Policy
}

// OSC52Policy controls how clipboard read/write requests (OSC 52) are handled.
type OSC52Policy int

const (
	// OSC52Disabled ignores both read and write clipboard requests.
	OSC52Disabled OSC52Policy = iota
	// OSC52WriteOnly honors clipboard writes but never answers reads.
	OSC52WriteOnly
	// OSC52ReadWrite honors both directions.
	OSC52ReadWrite
)

// DefaultSurfaceConfig returns the spec's default configuration.
func DefaultSurfaceConfig() SurfaceConfig {
	return SurfaceConfig{
		Rows:                24,
		Cols:                80,
		ScrollingHistory:    10000,
		DefaultCursorStyle:  CursorStyleBlinkingBlock,
		SemanticEscapeChars: " \t()[]{}'\"",
		KittyKeyboard:       true,
		OSC52:               OSC52ReadWrite,
	}
}

// Selection describes a single stream text region from Start to End in
// reading order (spec.md §4.7).
type Selection struct {
	Start  Position
	End    Position
	Active bool
}

// Surface is a single VT screen: a Grid plus cursor/mode/attribute state,
// implementing ansicode.Handler so a go-ansicode Decoder can drive it
// directly (spec.md §1, §4.2).
type Surface struct {
	mu sync.RWMutex

	config SurfaceConfig

	primary   *Grid
	alternate *Grid
	active    *Grid

	cursor      *Cursor
	savedCursor *SavedCursor

	// altScreenSaved holds primary-screen state that isn't part of
	// DECSC/DECRC but must still round-trip byte-for-byte across an
	// alt-screen enter/exit (spec.md §4.2/P3): scroll region, palette,
	// keyboard-mode stack, and title. Plain DECSC/DECRC never touches this.
	altScreenSaved *altScreenState

	template CellTemplate

	charsets      [4]Charset
	activeCharset int

	scrollTop    int
	scrollBottom int

	modes Mode

	title      string
	titleStack []string

	palette *Palette

	currentHyperlink *Hyperlink

	keyboardModes   []ansicode.KeyboardMode
	modifyOtherKeys ansicode.ModifyOtherKeys

	decoder *ansicode.Decoder

	selection Selection

	workingDir string

	reports chan []byte

	bell      BellProvider
	title_    TitleProvider
	apc       APCProvider
	pm        PMProvider
	sos       SOSProvider
	clipboard ClipboardProvider
	recording RecordingProvider
	size      SizeProvider

	// shellMark, when set, is invoked for every OSC 133 mark this Surface
	// receives. BlockSurface installs this to drive block lifecycle without
	// Surface itself needing to know about blocks.
	shellMark func(mark ansicode.ShellIntegrationMark, exitCode int)
}

// NewSurface creates a Surface with the given configuration, defaulting any
// unset dimensions to 24x80.
func NewSurface(cfg SurfaceConfig) *Surface {
	if cfg.Rows <= 0 {
		cfg.Rows = 24
	}
	if cfg.Cols <= 0 {
		cfg.Cols = 80
	}

	s := &Surface{
		config:    cfg,
		palette:   NewPalette(),
		bell:      NoopBell{},
		title_:    NoopTitle{},
		apc:       NoopAPC{},
		pm:        NoopPM{},
		sos:       NoopSOS{},
		clipboard: NoopClipboard{},
		recording: NoopRecording{},
		size:      NoopSize{},
		reports:   make(chan []byte, maxReportQueue),
	}

	s.primary = NewGrid(cfg.Rows, cfg.Cols, cfg.ScrollingHistory)
	s.alternate = NewGrid(cfg.Rows, cfg.Cols, 0)
	s.active = s.primary

	s.cursor = NewCursor()
	s.cursor.Style = cfg.DefaultCursorStyle
	s.template = NewCellTemplate()

	s.scrollTop = 0
	s.scrollBottom = cfg.Rows

	s.modes = ModeLineWrap | ModeShowCursor

	s.decoder = ansicode.NewDecoder(s)

	return s
}

// Decoder returns the go-ansicode decoder bound to this surface; the Engine
// feeds raw pty bytes into it.
func (s *Surface) Decoder() *ansicode.Decoder { return s.decoder }

// Reports returns the out-of-band byte queue of terminal responses (DSR,
// clipboard reads, etc.) that must be written back to the pty (spec.md §4.2).
func (s *Surface) Reports() <-chan []byte { return s.reports }

func (s *Surface) writeResponse(b []byte) {
	select {
	case s.reports <- b:
	default:
		// queue full: drop oldest-policy is not worth the complexity here,
		// a full queue means the reader has stalled; drop the report.
	}
}

func (s *Surface) writeResponseString(str string) {
	s.writeResponse([]byte(str))
}

// SetBellProvider installs the bell collaborator.
func (s *Surface) SetBellProvider(p BellProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bell = p
}

// SetTitleProvider installs the title collaborator.
func (s *Surface) SetTitleProvider(p TitleProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title_ = p
}

// SetClipboardProvider installs the clipboard collaborator.
func (s *Surface) SetClipboardProvider(p ClipboardProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clipboard = p
}

// SetRecordingProvider installs the raw-input recording collaborator.
func (s *Surface) SetRecordingProvider(p RecordingProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = p
}

// SetSizeProvider installs the pixel-size query collaborator.
func (s *Surface) SetSizeProvider(p SizeProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = p
}

// Grid returns the active (visible) grid.
func (s *Surface) Grid() *Grid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Rows returns the surface height.
func (s *Surface) Rows() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.Rows()
}

// Cols returns the surface width.
func (s *Surface) Cols() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.Cols()
}

// IsAltScreen reports whether the alternate screen is active.
func (s *Surface) IsAltScreen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modes&ModeAltScreen != 0
}

// CursorPosition returns the current cursor row/col (0-based, viewport coords).
func (s *Surface) CursorPosition() (row, col int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor.Row, s.cursor.Col
}

// HasMode reports whether the given mode flag is set.
func (s *Surface) HasMode(m Mode) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modes&m != 0
}

// Palette returns a copy of the current color palette, safe to read without
// further locking.
func (s *Surface) Palette() Palette {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.palette
}

// CursorVisible reports whether the cursor should be rendered.
func (s *Surface) CursorVisible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor.Visible
}

// CursorStyle returns the cursor's rendering style.
func (s *Surface) CursorStyle() CursorStyle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor.Style
}

// ModeFlags returns the full mode bitmask.
func (s *Surface) ModeFlags() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modes
}

// Title returns the current window title.
func (s *Surface) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// GetSelection returns the current text selection, if any.
func (s *Surface) GetSelection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// SetSelection sets a normalized selection range.
func (s *Surface) SetSelection(start, end Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if end.Before(start) {
		start, end = end, start
	}
	s.selection = Selection{Start: start, End: end, Active: true}
}

// ClearSelection clears the current selection.
func (s *Surface) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = Selection{}
}

// Resize changes the surface dimensions; both grids are resized so a later
// alt-screen swap doesn't surprise the caller with stale geometry.
func (s *Surface) Resize(rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primary.Resize(rows, cols)
	s.alternate.Resize(rows, cols)
	s.scrollBottom = rows
	if s.scrollTop > rows {
		s.scrollTop = 0
	}
	if s.cursor.Row >= rows {
		s.cursor.Row = rows - 1
	}
	if s.cursor.Col >= cols {
		s.cursor.Col = cols - 1
	}
}

func (s *Surface) scrollIfNeeded() {
	if s.cursor.Row > s.scrollBottom-1 {
		n := s.cursor.Row - (s.scrollBottom - 1)
		s.active.ScrollUp(s.scrollTop, s.scrollBottom, n)
		s.cursor.Row = s.scrollBottom - 1
	}
}

// --- ansicode.Handler implementation ---

// Input writes a printable rune at the cursor, handling wide characters,
// autowrap, and insert mode (spec.md §4.2).
func (s *Surface) Input(r rune) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeCharset >= 0 && s.activeCharset < 4 && s.charsets[s.activeCharset] == CharsetLineDrawing {
		r = translateLineDrawing(r)
	}

	width := runeWidth(r)
	if width == 0 {
		if cell := s.active.Cell(s.cursor.Row, s.cursor.Col-1); cell != nil {
			cell.Combining = append(cell.Combining, r)
		}
		return
	}

	cols := s.active.Cols()
	if s.cursor.Col+width > cols {
		if s.modes&ModeLineWrap != 0 {
			s.active.SetWrapped(s.cursor.Row, true)
			if cell := s.active.Cell(s.cursor.Row, s.cursor.Col); cell != nil && s.cursor.Col < cols {
				cell.SetFlag(CellFlagLeadingSpacer)
			}
			s.cursor.Col = 0
			s.cursor.Row++
			s.scrollIfNeeded()
		} else if width == 2 {
			return
		} else {
			s.cursor.Col = cols - 1
		}
	}

	if s.modes&ModeInsert != 0 {
		s.active.InsertBlanks(s.cursor.Row, s.cursor.Col, width)
	}

	if cell := s.active.Cell(s.cursor.Row, s.cursor.Col); cell != nil {
		cell.Char = r
		cell.Combining = nil
		cell.Fg = s.template.Fg
		cell.Bg = s.template.Bg
		cell.UnderlineColor = s.template.UnderlineColor
		cell.Flags = s.template.Flags
		cell.Hyperlink = s.currentHyperlink
		if width == 2 {
			cell.SetFlag(CellFlagWideLeading)
		} else {
			cell.ClearFlag(CellFlagWideLeading | CellFlagWideTrailing)
		}
		s.active.markDirty(s.cursor.Row, s.cursor.Col, s.cursor.Col+1)
	}
	s.cursor.Col++

	if width == 2 && s.cursor.Col < cols {
		if spacer := s.active.Cell(s.cursor.Row, s.cursor.Col); spacer != nil {
			spacer.Reset()
			spacer.Fg = s.template.Fg
			spacer.Bg = s.template.Bg
			spacer.SetFlag(CellFlagWideTrailing)
			s.active.markDirty(s.cursor.Row, s.cursor.Col, s.cursor.Col+1)
		}
		s.cursor.Col++
	}

	if s.cursor.Col >= cols && s.modes&ModeLineWrap == 0 {
		s.cursor.Col = cols - 1
	}
}

func translateLineDrawing(r rune) rune {
	switch r {
	case 'j':
		return '┘'
	case 'k':
		return '┐'
	case 'l':
		return '┌'
	case 'm':
		return '└'
	case 'n':
		return '┼'
	case 'q':
		return '─'
	case 't':
		return '├'
	case 'u':
		return '┤'
	case 'v':
		return '┴'
	case 'w':
		return '┬'
	case 'x':
		return '│'
	default:
		return r
	}
}

// Backspace moves the cursor one column left, stopping at column 0.
func (s *Surface) Backspace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.Col > 0 {
		s.cursor.Col--
	}
}

// Bell rings the bell provider.
func (s *Surface) Bell() {
	s.mu.RLock()
	p := s.bell
	s.mu.RUnlock()
	p.Ring()
}

// CarriageReturn moves the cursor to column 0.
func (s *Surface) CarriageReturn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor.Col = 0
}

// ClearLine clears part or all of the cursor's row (EL).
func (s *Surface) ClearLine(mode ansicode.LineClearMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cols := s.active.Cols()
	switch mode {
	case ansicode.LineClearModeRight:
		s.active.ClearRowRangeWithTemplate(s.cursor.Row, s.cursor.Col, cols, s.template)
	case ansicode.LineClearModeLeft:
		s.active.ClearRowRangeWithTemplate(s.cursor.Row, 0, s.cursor.Col+1, s.template)
	case ansicode.LineClearModeAll:
		s.active.ClearRowRangeWithTemplate(s.cursor.Row, 0, cols, s.template)
	}
}

// ClearScreen clears part or all of the screen (ED).
func (s *Surface) ClearScreen(mode ansicode.ClearMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, cols := s.active.Rows(), s.active.Cols()
	switch mode {
	case ansicode.ClearModeBelow:
		s.active.ClearRowRangeWithTemplate(s.cursor.Row, s.cursor.Col, cols, s.template)
		for r := s.cursor.Row + 1; r < rows; r++ {
			s.active.ClearRowRangeWithTemplate(r, 0, cols, s.template)
		}
	case ansicode.ClearModeAbove:
		s.active.ClearRowRangeWithTemplate(s.cursor.Row, 0, s.cursor.Col+1, s.template)
		for r := 0; r < s.cursor.Row; r++ {
			s.active.ClearRowRangeWithTemplate(r, 0, cols, s.template)
		}
	case ansicode.ClearModeAll, ansicode.ClearModeSaved:
		for r := 0; r < rows; r++ {
			s.active.ClearRowRangeWithTemplate(r, 0, cols, s.template)
		}
	}
}

// ClearTabs clears tab stops (TBC).
func (s *Surface) ClearTabs(mode ansicode.TabulationClearMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch mode {
	case ansicode.TabulationClearModeCurrent:
		s.active.ClearTabStop(s.cursor.Col)
	case ansicode.TabulationClearModeAll:
		s.active.ClearAllTabStops()
	}
}

// ClipboardLoad answers an OSC 52 read request, when the surface's OSC52
// policy permits reads.
func (s *Surface) ClipboardLoad(clipboard byte, terminator string) {
	s.mu.RLock()
	policy := s.config.OSC52
	cb := s.clipboard
	s.mu.RUnlock()
	if policy != OSC52ReadWrite || cb == nil {
		return
	}
	content := cb.Read(clipboard)
	if content == "" {
		return
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	s.writeResponseString("\x1b]52;" + string(clipboard) + ";" + encoded + terminator)
}

// ClipboardStore handles an OSC 52 write request.
func (s *Surface) ClipboardStore(clipboard byte, data []byte) {
	s.mu.RLock()
	policy := s.config.OSC52
	cb := s.clipboard
	s.mu.RUnlock()
	if policy == OSC52Disabled || cb == nil {
		return
	}
	cb.Write(clipboard, data)
}

// ConfigureCharset assigns a charset to one of the four G0-G3 slots.
func (s *Surface) ConfigureCharset(index ansicode.CharsetIndex, charset ansicode.Charset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := int(index)
	if i < 0 || i >= 4 {
		return
	}
	if charset == ansicode.CharsetSpecial {
		s.charsets[i] = CharsetLineDrawing
	} else {
		s.charsets[i] = CharsetASCII
	}
}

// Decaln fills the screen with 'E' (DECALN alignment test).
func (s *Surface) Decaln() {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, cols := s.active.Rows(), s.active.Cols()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if cell := s.active.Cell(r, c); cell != nil {
				cell.Reset()
				cell.Char = 'E'
			}
		}
		s.active.markDirty(r, 0, cols)
	}
}

// DeleteChars removes n characters at the cursor (DCH).
func (s *Surface) DeleteChars(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active.DeleteChars(s.cursor.Row, s.cursor.Col, n)
}

// DeleteLines removes n lines at the cursor within the scroll region (DL).
func (s *Surface) DeleteLines(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.Row < s.scrollTop || s.cursor.Row >= s.scrollBottom {
		return
	}
	s.active.DeleteLines(s.cursor.Row, n, s.scrollBottom)
}

// DeviceStatus answers a DSR query (terminal status or cursor position).
func (s *Surface) DeviceStatus(n int) {
	s.mu.RLock()
	row, col := s.cursor.Row, s.cursor.Col
	s.mu.RUnlock()

	switch n {
	case 5:
		s.writeResponseString("\x1b[0n")
	case 6:
		s.writeResponseString(fmt.Sprintf("\x1b[%d;%dR", row+1, col+1))
	}
}

// EraseChars resets n characters at the cursor without shifting (ECH).
func (s *Surface) EraseChars(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cols := s.active.Cols()
	for i := 0; i < n && s.cursor.Col+i < cols; i++ {
		if cell := s.active.Cell(s.cursor.Row, s.cursor.Col+i); cell != nil {
			cell.ResetWithTemplate(s.template)
		}
	}
	s.active.markDirty(s.cursor.Row, s.cursor.Col, s.cursor.Col+n)
}

// Goto moves the cursor to (row, col), honoring origin mode (CUP/HVP).
func (s *Surface) Goto(row, col int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.modes&ModeOrigin != 0 {
		row += s.scrollTop
	}
	s.clampCursorLocked(row, col)
}

func (s *Surface) clampCursorLocked(row, col int) {
	rows, cols := s.active.Rows(), s.active.Cols()
	if row < 0 {
		row = 0
	}
	if row >= rows {
		row = rows - 1
	}
	if col < 0 {
		col = 0
	}
	if col >= cols {
		col = cols - 1
	}
	s.cursor.Row = row
	s.cursor.Col = col
}

// GotoCol moves the cursor to an absolute column on the same row (CHA).
func (s *Surface) GotoCol(col int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clampCursorLocked(s.cursor.Row, col)
}

// GotoLine moves the cursor to an absolute row, keeping its column (VPA).
func (s *Surface) GotoLine(row int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clampCursorLocked(row, s.cursor.Col)
}

// HorizontalTabSet sets a tab stop at the cursor column (HTS).
func (s *Surface) HorizontalTabSet() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active.SetTabStop(s.cursor.Col)
}

// IdentifyTerminal answers a DA request with a VT220-compatible response.
func (s *Surface) IdentifyTerminal(b byte) {
	s.writeResponseString("\x1b[?62;c")
}

// InsertBlank inserts n blank cells at the cursor (ICH).
func (s *Surface) InsertBlank(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active.InsertBlanks(s.cursor.Row, s.cursor.Col, n)
}

// InsertBlankLines inserts n blank lines at the cursor within the scroll
// region (IL).
func (s *Surface) InsertBlankLines(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.Row < s.scrollTop || s.cursor.Row >= s.scrollBottom {
		return
	}
	s.active.InsertLines(s.cursor.Row, n, s.scrollBottom)
}

// LineFeed moves the cursor down one row, scrolling if needed (LF).
func (s *Surface) LineFeed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor.Row++
	if s.modes&ModeLineFeedNewLine != 0 {
		s.cursor.Col = 0
	}
	s.scrollIfNeeded()
}

// MoveBackward moves the cursor left n columns (CUB).
func (s *Surface) MoveBackward(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor.Col -= n
	if s.cursor.Col < 0 {
		s.cursor.Col = 0
	}
}

// MoveBackwardTabs moves the cursor back n tab stops (CBT).
func (s *Surface) MoveBackwardTabs(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.cursor.Col = s.active.PrevTabStop(s.cursor.Col)
	}
}

// MoveDown moves the cursor down n rows, clamped to the bottom (CUD).
func (s *Surface) MoveDown(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.active.Rows()
	s.cursor.Row += n
	if s.cursor.Row >= rows {
		s.cursor.Row = rows - 1
	}
}

// MoveDownCr moves the cursor down n rows and to column 0 (CNL).
func (s *Surface) MoveDownCr(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.active.Rows()
	s.cursor.Row += n
	if s.cursor.Row >= rows {
		s.cursor.Row = rows - 1
	}
	s.cursor.Col = 0
}

// MoveForward moves the cursor right n columns (CUF).
func (s *Surface) MoveForward(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cols := s.active.Cols()
	s.cursor.Col += n
	if s.cursor.Col >= cols {
		s.cursor.Col = cols - 1
	}
}

// MoveForwardTabs moves the cursor forward n tab stops (CHT).
func (s *Surface) MoveForwardTabs(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.cursor.Col = s.active.NextTabStop(s.cursor.Col)
	}
}

// MoveUp moves the cursor up n rows, clamped to the top (CUU).
func (s *Surface) MoveUp(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor.Row -= n
	if s.cursor.Row < 0 {
		s.cursor.Row = 0
	}
}

// MoveUpCr moves the cursor up n rows and to column 0 (CPL).
func (s *Surface) MoveUpCr(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor.Row -= n
	if s.cursor.Row < 0 {
		s.cursor.Row = 0
	}
	s.cursor.Col = 0
}

// PopKeyboardMode pops n entries off the kitty-keyboard mode stack.
func (s *Surface) PopKeyboardMode(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.keyboardModes) {
		n = len(s.keyboardModes)
	}
	s.keyboardModes = s.keyboardModes[:len(s.keyboardModes)-n]
}

// PopTitle restores the title from the title stack (XTWINOPS 23).
func (s *Surface) PopTitle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.titleStack) == 0 {
		return
	}
	s.title = s.titleStack[len(s.titleStack)-1]
	s.titleStack = s.titleStack[:len(s.titleStack)-1]
	s.title_.SetTitle(s.title)
}

// PrivacyMessageReceived forwards a PM payload to the PM provider.
func (s *Surface) PrivacyMessageReceived(data []byte) {
	s.mu.RLock()
	p := s.pm
	s.mu.RUnlock()
	p.Receive(data)
}

// PushKeyboardMode pushes a kitty-keyboard protocol mode (CSI > u).
func (s *Surface) PushKeyboardMode(mode ansicode.KeyboardMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.config.KittyKeyboard {
		return
	}
	s.keyboardModes = append(s.keyboardModes, mode)
}

// PushTitle saves the current title to the title stack, capped at
// maxTitleStack entries (XTWINOPS 22).
func (s *Surface) PushTitle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.titleStack) >= maxTitleStack {
		s.titleStack = s.titleStack[1:]
	}
	s.titleStack = append(s.titleStack, s.title)
}

// ApplicationCommandReceived forwards an APC payload to the APC provider.
func (s *Surface) ApplicationCommandReceived(data []byte) {
	s.mu.RLock()
	p := s.apc
	s.mu.RUnlock()
	p.Receive(data)
}

// ReportKeyboardMode answers a kitty-keyboard mode query.
func (s *Surface) ReportKeyboardMode() {
	s.mu.RLock()
	var mode ansicode.KeyboardMode
	if n := len(s.keyboardModes); n > 0 {
		mode = s.keyboardModes[n-1]
	}
	s.mu.RUnlock()
	s.writeResponseString(fmt.Sprintf("\x1b[?%du", mode))
}

// ReportModifyOtherKeys answers a modifyOtherKeys query.
func (s *Surface) ReportModifyOtherKeys() {
	s.mu.RLock()
	m := s.modifyOtherKeys
	s.mu.RUnlock()
	s.writeResponseString(fmt.Sprintf("\x1b[>4;%dm", m))
}

// ResetColor restores palette slot i to its built-in default (OSC 104/110-112).
func (s *Surface) ResetColor(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case i < 0:
		s.palette.Foreground = DefaultForeground
		s.palette.Background = DefaultBackground
		s.palette.Cursor = DefaultCursorColor
	default:
		s.palette.ResetIndexed(i)
	}
}

// ResetState handles RIS: it switches to and clears the primary screen and
// resets the cursor, SGR template, scroll region, modes, title and title
// stack, hyperlink, keyboard-mode stack and selection. The palette,
// charsets, tab stops, saved cursor and scrollback history are left as
// they are.
func (s *Surface) ResetState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = s.primary
	s.active.ClearAll()
	s.cursor = NewCursor()
	s.cursor.Style = s.config.DefaultCursorStyle
	s.template = NewCellTemplate()
	s.scrollTop = 0
	s.scrollBottom = s.active.Rows()
	s.modes = ModeLineWrap | ModeShowCursor
	s.title = ""
	s.titleStack = nil
	s.currentHyperlink = nil
	s.keyboardModes = nil
	s.selection = Selection{}
	s.active.MarkFullDamage()
}

// altScreenState is the non-cursor primary-screen state saved across an alt
// screen enter and restored on exit (spec.md §4.2, P3 "alt-screen round
// trip restores state byte for byte").
type altScreenState struct {
	ScrollTop, ScrollBottom int
	Palette                 Palette
	KeyboardModes           []ansicode.KeyboardMode
	Title                   string
	TitleStack              []string
}

func (s *Surface) saveAltScreenStateLocked() {
	keyboardModes := make([]ansicode.KeyboardMode, len(s.keyboardModes))
	copy(keyboardModes, s.keyboardModes)
	titleStack := make([]string, len(s.titleStack))
	copy(titleStack, s.titleStack)

	s.altScreenSaved = &altScreenState{
		ScrollTop:     s.scrollTop,
		ScrollBottom:  s.scrollBottom,
		Palette:       *s.palette,
		KeyboardModes: keyboardModes,
		Title:         s.title,
		TitleStack:    titleStack,
	}
}

func (s *Surface) restoreAltScreenStateLocked() {
	if s.altScreenSaved == nil {
		return
	}
	saved := s.altScreenSaved
	s.scrollTop, s.scrollBottom = saved.ScrollTop, saved.ScrollBottom
	*s.palette = saved.Palette
	s.keyboardModes = saved.KeyboardModes
	s.title = saved.Title
	s.titleStack = saved.TitleStack
	s.altScreenSaved = nil
}

func (s *Surface) saveCursorLocked() {
	s.savedCursor = &SavedCursor{
		Row:          s.cursor.Row,
		Col:          s.cursor.Col,
		Attrs:        s.template,
		OriginMode:   s.modes&ModeOrigin != 0,
		CharsetIndex: s.activeCharset,
		Charsets:     s.charsets,
	}
}

func (s *Surface) restoreCursorLocked() {
	if s.savedCursor == nil {
		s.cursor.Row, s.cursor.Col = 0, 0
		return
	}
	sc := s.savedCursor
	s.cursor.Row, s.cursor.Col = sc.Row, sc.Col
	s.template = sc.Attrs
	s.activeCharset = sc.CharsetIndex
	s.charsets = sc.Charsets
	if sc.OriginMode {
		s.modes |= ModeOrigin
	} else {
		s.modes &^= ModeOrigin
	}
}

// RestoreCursorPosition restores cursor/attrs saved by SaveCursorPosition (DECRC).
func (s *Surface) RestoreCursorPosition() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restoreCursorLocked()
}

// ReverseIndex moves the cursor up one row, scrolling down if already at
// the scroll region's top (RI).
func (s *Surface) ReverseIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.Row == s.scrollTop {
		s.active.ScrollDown(s.scrollTop, s.scrollBottom, 1)
	} else if s.cursor.Row > 0 {
		s.cursor.Row--
	}
}

// SaveCursorPosition saves cursor position, attributes, and charset state (DECSC).
func (s *Surface) SaveCursorPosition() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCursorLocked()
}

// ScrollDown scrolls the scroll region down by n lines (SD).
func (s *Surface) ScrollDown(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active.ScrollDown(s.scrollTop, s.scrollBottom, n)
}

// ScrollUp scrolls the scroll region up by n lines (SU).
func (s *Surface) ScrollUp(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active.ScrollUp(s.scrollTop, s.scrollBottom, n)
}

// SetActiveCharset selects one of the four G0-G3 charset slots (SI/SO/LS2/LS3).
func (s *Surface) SetActiveCharset(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= 0 && n < 4 {
		s.activeCharset = n
	}
}

// SetColor assigns an RGB color to palette slot index (OSC 4).
func (s *Surface) SetColor(index int, c color.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, g, b, _ := c.RGBA()
	rgba := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255}
	s.palette.SetIndexed(index, rgba)
}

// SetCursorStyle sets the cursor rendering style (DECSCUSR).
func (s *Surface) SetCursorStyle(style ansicode.CursorStyle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor.Style = CursorStyle(style)
}

// SetDynamicColor answers a dynamic color query (OSC 10/11/12: foreground,
// background, cursor) with the current RGB value.
func (s *Surface) SetDynamicColor(prefix string, index int, terminator string) {
	s.mu.RLock()
	var rgba color.RGBA
	switch index {
	case 10:
		rgba = s.palette.Foreground
	case 11:
		rgba = s.palette.Background
	case 12:
		rgba = s.palette.Cursor
	default:
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()
	s.writeResponseString(fmt.Sprintf("\x1b]%s;rgb:%02x/%02x/%02x%s", prefix, rgba.R, rgba.G, rgba.B, terminator))
}

// SetHyperlink sets or clears the hyperlink attached to subsequently
// written cells (OSC 8).
func (s *Surface) SetHyperlink(hyperlink *ansicode.Hyperlink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hyperlink == nil || (hyperlink.ID == "" && hyperlink.URI == "") {
		s.currentHyperlink = nil
		return
	}
	s.currentHyperlink = &Hyperlink{ID: hyperlink.ID, URI: hyperlink.URI}
}

// SetKeyboardMode replaces the top kitty-keyboard mode entry per behavior
// (set/replace/union/difference, CSI = u).
func (s *Surface) SetKeyboardMode(mode ansicode.KeyboardMode, behavior ansicode.KeyboardModeBehavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.config.KittyKeyboard {
		return
	}
	current := ansicode.KeyboardModeNoMode
	if n := len(s.keyboardModes); n > 0 {
		current = s.keyboardModes[n-1]
	}

	var next ansicode.KeyboardMode
	switch behavior {
	case ansicode.KeyboardModeBehaviorReplace:
		next = mode
	case ansicode.KeyboardModeBehaviorUnion:
		next = current | mode
	case ansicode.KeyboardModeBehaviorDifference:
		next = current &^ mode
	}

	if len(s.keyboardModes) > 0 {
		s.keyboardModes[len(s.keyboardModes)-1] = next
	} else {
		s.keyboardModes = append(s.keyboardModes, next)
	}
}

// SetKeypadApplicationMode enables application keypad mode (DECKPAM).
func (s *Surface) SetKeypadApplicationMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes |= ModeKeypadApplication
}

// UnsetKeypadApplicationMode disables application keypad mode (DECKPNM).
func (s *Surface) UnsetKeypadApplicationMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes &^= ModeKeypadApplication
}

// SetMode enables the given DEC private/ANSI mode.
func (s *Surface) SetMode(mode ansicode.TerminalMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setModeLocked(mode, true)
}

// UnsetMode disables the given DEC private/ANSI mode.
func (s *Surface) UnsetMode(mode ansicode.TerminalMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setModeLocked(mode, false)
}

func (s *Surface) setModeLocked(mode ansicode.TerminalMode, set bool) {
	var m Mode
	switch mode {
	case ansicode.TerminalModeCursorKeys:
		m = ModeCursorKeys
	case ansicode.TerminalModeColumnMode:
		m = ModeColumnMode
	case ansicode.TerminalModeInsert:
		m = ModeInsert
	case ansicode.TerminalModeOrigin:
		m = ModeOrigin
		if set {
			s.cursor.Row, s.cursor.Col = s.scrollTop, 0
		}
	case ansicode.TerminalModeLineWrap:
		m = ModeLineWrap
	case ansicode.TerminalModeBlinkingCursor:
		m = ModeBlinkingCursor
	case ansicode.TerminalModeLineFeedNewLine:
		m = ModeLineFeedNewLine
	case ansicode.TerminalModeShowCursor:
		m = ModeShowCursor
		s.cursor.Visible = set
	case ansicode.TerminalModeReportMouseClicks:
		m = ModeReportMouseClicks
	case ansicode.TerminalModeReportCellMouseMotion:
		m = ModeReportCellMouseMotion
	case ansicode.TerminalModeReportAllMouseMotion:
		m = ModeReportAllMouseMotion
	case ansicode.TerminalModeReportFocusInOut:
		m = ModeReportFocusInOut
	case ansicode.TerminalModeUTF8Mouse:
		m = ModeUTF8Mouse
	case ansicode.TerminalModeSGRMouse:
		m = ModeSGRMouse
	case ansicode.TerminalModeAlternateScroll:
		m = ModeAlternateScroll
	case ansicode.TerminalModeUrgencyHints:
		m = ModeUrgencyHints
	case ansicode.TerminalModeSwapScreenAndSetRestoreCursor:
		m = ModeAltScreen
		if set {
			s.saveCursorLocked()
			s.saveAltScreenStateLocked()
			s.active = s.alternate
			s.active.ClearAll()
		} else {
			s.active = s.primary
			s.restoreCursorLocked()
			s.restoreAltScreenStateLocked()
		}
		s.active.MarkFullDamage()
	case ansicode.TerminalModeBracketedPaste:
		m = ModeBracketedPaste
	default:
		slog.Debug("ignoring unrecognized terminal mode", "mode", mode, "set", set)
		return
	}

	if set {
		s.modes |= m
	} else {
		s.modes &^= m
	}
}

// SetModifyOtherKeys sets how modifier keys are reported in keyboard input.
func (s *Surface) SetModifyOtherKeys(modify ansicode.ModifyOtherKeys) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modifyOtherKeys = modify
}

// SetScrollingRegion sets the DECSTBM scroll region (1-based, inclusive).
func (s *Surface) SetScrollingRegion(top, bottom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.active.Rows()
	if top < 1 {
		top = 1
	}
	if bottom < 1 || bottom > rows {
		bottom = rows
	}
	if top >= bottom {
		s.scrollTop, s.scrollBottom = 0, rows
		return
	}
	s.scrollTop = top - 1
	s.scrollBottom = bottom
	s.cursor.Row, s.cursor.Col = s.scrollTop, 0
}

// StartOfStringReceived forwards an SOS payload to the SOS provider.
func (s *Surface) StartOfStringReceived(data []byte) {
	s.mu.RLock()
	p := s.sos
	s.mu.RUnlock()
	p.Receive(data)
}

// SetTerminalCharAttribute applies one SGR attribute to the writing template.
func (s *Surface) SetTerminalCharAttribute(attr ansicode.TerminalCharAttribute) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch attr.Attr {
	case ansicode.CharAttributeReset:
		s.template = NewCellTemplate()
	case ansicode.CharAttributeBold:
		s.template.SetFlag(CellFlagBold)
	case ansicode.CharAttributeDim:
		s.template.SetFlag(CellFlagDim)
	case ansicode.CharAttributeItalic:
		s.template.SetFlag(CellFlagItalic)
	case ansicode.CharAttributeUnderline:
		s.template.SetUnderlineStyle(CellFlagUnderline)
	case ansicode.CharAttributeDoubleUnderline:
		s.template.SetUnderlineStyle(CellFlagDoubleUnderline)
	case ansicode.CharAttributeCurlyUnderline:
		s.template.SetUnderlineStyle(CellFlagCurlyUnderline)
	case ansicode.CharAttributeDottedUnderline:
		s.template.SetUnderlineStyle(CellFlagDottedUnderline)
	case ansicode.CharAttributeDashedUnderline:
		s.template.SetUnderlineStyle(CellFlagDashedUnderline)
	case ansicode.CharAttributeBlinkSlow:
		s.template.SetFlag(CellFlagBlinkSlow)
	case ansicode.CharAttributeBlinkFast:
		s.template.SetFlag(CellFlagBlinkFast)
	case ansicode.CharAttributeReverse:
		s.template.SetFlag(CellFlagInverse)
	case ansicode.CharAttributeHidden:
		s.template.SetFlag(CellFlagHidden)
	case ansicode.CharAttributeStrike:
		s.template.SetFlag(CellFlagStrike)
	case ansicode.CharAttributeCancelBold:
		s.template.ClearFlag(CellFlagBold)
	case ansicode.CharAttributeCancelBoldDim:
		s.template.ClearFlag(CellFlagBold | CellFlagDim)
	case ansicode.CharAttributeCancelItalic:
		s.template.ClearFlag(CellFlagItalic)
	case ansicode.CharAttributeCancelUnderline:
		s.template.SetUnderlineStyle(0)
	case ansicode.CharAttributeCancelBlink:
		s.template.ClearFlag(CellFlagBlinkSlow | CellFlagBlinkFast)
	case ansicode.CharAttributeCancelReverse:
		s.template.ClearFlag(CellFlagInverse)
	case ansicode.CharAttributeCancelHidden:
		s.template.ClearFlag(CellFlagHidden)
	case ansicode.CharAttributeCancelStrike:
		s.template.ClearFlag(CellFlagStrike)
	case ansicode.CharAttributeForeground:
		s.template.Fg = resolveAttrColor(attr, NamedColorForeground)
	case ansicode.CharAttributeBackground:
		s.template.Bg = resolveAttrColor(attr, NamedColorBackground)
	case ansicode.CharAttributeUnderlineColor:
		if attr.RGBColor == nil && attr.IndexedColor == nil && attr.NamedColor == nil {
			s.template.UnderlineColor = nil
		} else {
			s.template.UnderlineColor = resolveAttrColor(attr, NamedColorForeground)
		}
	}
}

func resolveAttrColor(attr ansicode.TerminalCharAttribute, fallback int) color.Color {
	switch {
	case attr.RGBColor != nil:
		return color.RGBA{R: attr.RGBColor.R, G: attr.RGBColor.G, B: attr.RGBColor.B, A: 255}
	case attr.IndexedColor != nil:
		return &IndexedColor{Index: int(attr.IndexedColor.Index)}
	case attr.NamedColor != nil:
		return &NamedColor{Name: int(*attr.NamedColor)}
	default:
		return &NamedColor{Name: fallback}
	}
}

// SetTitle updates the window title (OSC 0/1/2).
func (s *Surface) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	p := s.title_
	s.mu.Unlock()
	p.SetTitle(title)
}

// Substitute replaces the cell at the cursor with '?' (SUB).
func (s *Surface) Substitute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cell := s.active.Cell(s.cursor.Row, s.cursor.Col); cell != nil {
		cell.Char = '?'
	}
}

// Tab advances the cursor to the next tab stop, n times (HT/CHT).
func (s *Surface) Tab(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.cursor.Col = s.active.NextTabStop(s.cursor.Col)
	}
}

// TextAreaSizeChars answers an XTWINOPS 18 query (size in character cells).
func (s *Surface) TextAreaSizeChars() {
	s.mu.RLock()
	rows, cols := s.active.Rows(), s.active.Cols()
	s.mu.RUnlock()
	s.writeResponseString(fmt.Sprintf("\x1b[8;%d;%dt", rows, cols))
}

// TextAreaSizePixels answers an XTWINOPS 14 query (size in pixels).
func (s *Surface) TextAreaSizePixels() {
	s.mu.RLock()
	rows, cols := s.active.Rows(), s.active.Cols()
	sp := s.size
	s.mu.RUnlock()
	cw, ch := sp.CellPixelSize()
	s.writeResponseString(fmt.Sprintf("\x1b[4;%d;%dt", rows*ch, cols*cw))
}

// SetWorkingDirectory stores the shell's reported working directory (OSC 7).
func (s *Surface) SetWorkingDirectory(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workingDir = uri
}

// WorkingDirectory returns the last reported working directory URI.
func (s *Surface) WorkingDirectory() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workingDir
}

// ShellIntegrationMark handles an OSC 133 mark. Surface itself tracks no
// prompt-mark list (spec.md's block model supersedes it); it only invokes
// the hook installed by a BlockSurface decorator, if any.
func (s *Surface) ShellIntegrationMark(mark ansicode.ShellIntegrationMark, exitCode int) {
	s.mu.RLock()
	hook := s.shellMark
	s.mu.RUnlock()
	if hook != nil {
		hook(mark, exitCode)
	}
}

// SetShellIntegrationHook installs the callback BlockSurface uses to learn
// about OSC 133 marks without Surface knowing about blocks.
func (s *Surface) SetShellIntegrationHook(fn func(mark ansicode.ShellIntegrationMark, exitCode int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shellMark = fn
}

// CellSizePixels answers an XTWINOPS 16 query (pixel size of one cell).
func (s *Surface) CellSizePixels() {
	s.mu.RLock()
	sp := s.size
	s.mu.RUnlock()
	w, h := sp.CellPixelSize()
	if w == 0 && h == 0 {
		w, h = 10, 20
	}
	s.writeResponseString(fmt.Sprintf("\x1b[6;%d;%dt", h, w))
}

// SixelReceived discards inline Sixel graphics data. Sixel/Kitty graphics
// are out of scope (no Snapshot field carries pixel data); this stub only
// exists to satisfy ansicode.Handler.
func (s *Surface) SixelReceived(params [][]uint16, data []byte) {}
