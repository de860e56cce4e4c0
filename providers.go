package blockterm

import "io"

// ResponseProvider writes terminal responses (e.g., cursor position reports) back to the PTY.
// Surface routes these through its bounded out-of-band report queue rather
// than writing synchronously (spec.md §4.2).
type ResponseProvider = io.Writer

// NoopResponse discards all response data (useful when responses are not needed).
type NoopResponse struct{}

func (NoopResponse) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// --- Bell Provider ---

// BellProvider handles bell/beep events triggered by BEL (0x07) characters.
type BellProvider interface {
	// Ring is called when a bell character is received.
	Ring()
}

// NoopBell ignores all bell events.
type NoopBell struct{}

func (NoopBell) Ring() {}

// --- Title Provider ---

// TitleProvider handles window title changes (OSC 0, 1, 2) with a bounded
// push/pop stack (XTWINOPS 22/23, capped at 4096 entries, spec.md §4.2).
type TitleProvider interface {
	// SetTitle is called when the title changes.
	SetTitle(title string)
	// PushTitle saves the current title to the stack.
	PushTitle()
	// PopTitle restores the title from the stack.
	PopTitle()
}

// NoopTitle ignores all title operations.
type NoopTitle struct{}

func (NoopTitle) SetTitle(title string) {}
func (NoopTitle) PushTitle()            {}
func (NoopTitle) PopTitle()             {}

// --- APC Provider ---

// APCProvider handles Application Program Command sequences (OSC _).
type APCProvider interface {
	// Receive is called with the payload of an APC sequence.
	Receive(data []byte)
}

// NoopAPC ignores all APC sequences.
type NoopAPC struct{}

func (NoopAPC) Receive(data []byte) {}

// --- PM Provider ---

// PMProvider handles Privacy Message sequences (OSC ^).
type PMProvider interface {
	// Receive is called with the payload of a PM sequence.
	Receive(data []byte)
}

// NoopPM ignores all PM sequences.
type NoopPM struct{}

func (NoopPM) Receive(data []byte) {}

// --- SOS Provider ---

// SOSProvider handles Start of String sequences (OSC X).
type SOSProvider interface {
	// Receive is called with the payload of a SOS sequence.
	Receive(data []byte)
}

// NoopSOS ignores all SOS sequences.
type NoopSOS struct{}

func (NoopSOS) Receive(data []byte) {}

// ClipboardProvider handles clipboard read/write operations (OSC 52).
type ClipboardProvider interface {
	// Read returns content from the specified clipboard ('c' for clipboard, 'p' for primary selection).
	Read(clipboard byte) string
	// Write stores content to the specified clipboard.
	Write(clipboard byte, data []byte)
}

// NoopClipboard ignores all clipboard operations.
type NoopClipboard struct{}

func (NoopClipboard) Read(clipboard byte) string        { return "" }
func (NoopClipboard) Write(clipboard byte, data []byte) {}

// --- Recording Provider ---

// RecordingProvider captures raw input bytes before ANSI parsing for replay or debugging.
type RecordingProvider interface {
	// Record appends raw bytes to the recording.
	Record(data []byte)
	// Data returns all captured bytes since the last Clear call.
	Data() []byte
	// Clear discards all recorded data.
	Clear()
}

// NoopRecording discards all input recordings.
type NoopRecording struct{}

func (NoopRecording) Record([]byte) {}
func (NoopRecording) Data() []byte  { return nil }
func (NoopRecording) Clear()        {}

// --- Size Provider ---

// SizeProvider answers pixel-dimension queries (XTWINOPS 14/16/18, CSI 16t/18t)
// since Grid only knows cell counts, not the GUI collaborator's pixel geometry.
type SizeProvider interface {
	// CellPixelSize returns the pixel width/height of one cell.
	CellPixelSize() (w, h int)
	// WindowPixelSize returns the pixel width/height of the whole window.
	WindowPixelSize() (w, h int)
}

// NoopSize reports all zero dimensions.
type NoopSize struct{}

func (NoopSize) CellPixelSize() (int, int)   { return 0, 0 }
func (NoopSize) WindowPixelSize() (int, int) { return 0, 0 }

// Ensure implementations satisfy their interfaces.
var (
	_ ResponseProvider  = NoopResponse{}
	_ BellProvider      = (*NoopBell)(nil)
	_ TitleProvider     = (*NoopTitle)(nil)
	_ APCProvider       = (*NoopAPC)(nil)
	_ PMProvider        = (*NoopPM)(nil)
	_ SOSProvider       = (*NoopSOS)(nil)
	_ ClipboardProvider = (*NoopClipboard)(nil)
	_ RecordingProvider = (*NoopRecording)(nil)
	_ SizeProvider      = (*NoopSize)(nil)
)
