package blockterm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/creack/pty"
	"github.com/danielgatis/go-ansicode"
)

// CommandKind tags the variant held by a BackendCommand (spec.md §6).
type CommandKind int

const (
	CmdWrite CommandKind = iota
	CmdScroll
	CmdResize
	CmdMouseReport
	CmdProcessLink
)

// LinkAction is the gesture carried by a CmdProcessLink command.
type LinkAction int

const (
	LinkClear LinkAction = iota
	LinkHover
	LinkOpen
)

// MouseButton identifies which button produced a MouseReport command.
type MouseButton int

const (
	MouseButtonNone MouseButton = iota
	MouseButtonLeft
	MouseButtonMiddle
	MouseButtonRight
	MouseWheelUp
	MouseWheelDown
)

// MouseReport is the GUI-normalized mouse event translated to pty bytes by
// the Input Translator (spec.md §4.6/§6).
type MouseReport struct {
	Button    MouseButton
	Modifiers KeyModifiers
	Position  Position
	Pressed   bool
}

// BackendCommand is the GUI-to-Engine command set (spec.md §6). Only one of
// the payload fields is meaningful, selected by Kind.
type BackendCommand struct {
	Kind CommandKind

	Write []byte

	ScrollDelta int

	ResizeLayoutW, ResizeLayoutH float64
	ResizeCellW, ResizeCellH     float64

	Mouse MouseReport

	LinkAction   LinkAction
	LinkPosition Position
}

// EventKind tags the variant held by an Event.
type EventKind int

const (
	EventSurfaceChanged EventKind = iota
	EventChildExit
	EventTitleChanged
	EventResetTitle
	EventBell
	EventCursorShapeChanged
	EventCursorStyleChanged
	EventCursorIconChanged
	EventHyperlink
	EventOpenLink
)

// Event is the Engine-to-GUI event set (spec.md §6).
type Event struct {
	Kind EventKind

	Snapshot *Snapshot

	ExitStatus int

	Title string

	CursorStyle CursorStyle

	HyperlinkSpanID uint32
	URI             string
}

const (
	commandQueueSize = 64
	eventQueueSize   = 64
	ptyReadBufSize   = 4096
)

// Engine owns a pty, a BlockSurface, and the worker goroutine that drives
// the read/parse/dispatch/publish/drain/command loop (spec.md §4.5 and §5).
// GUI collaborators never touch the BlockSurface directly: they send
// BackendCommands in and receive Events (including SurfaceChanged snapshots)
// out, so rendering never blocks on the worker's lock.
type Engine struct {
	log *slog.Logger

	surface *BlockSurface
	decoder *ansicode.Decoder

	ptyFile *os.File
	cmd     *exec.Cmd

	commands chan BackendCommand
	events   chan Event

	revision uint64
	snapshot atomic.Pointer[Snapshot]

	cellW, cellH float64 // last known pixel size of one cell, for Resize math

	closeOnce sync.Once
	done      chan struct{}
}

// NewEngine launches name(args...) behind a pty sized to cfg.Rows/cfg.Cols
// and returns an Engine ready for Run.
func NewEngine(cfg SurfaceConfig, name string, args []string, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	bs := NewBlockSurface(cfg)

	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptyFile, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(cfg.Rows),
		Cols: uint16(cfg.Cols),
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		log:      log,
		surface:  bs,
		decoder:  ansicode.NewDecoder(bs),
		ptyFile:  ptyFile,
		cmd:      cmd,
		commands: make(chan BackendCommand, commandQueueSize),
		events:   make(chan Event, eventQueueSize),
		cellW:    8,
		cellH:    16,
		done:     make(chan struct{}),
	}

	bs.SetBellProvider(bellProviderFunc(func() { e.emit(Event{Kind: EventBell}) }))
	bs.SetTitleProvider(&engineTitleProvider{e: e})
	bs.SetSizeProvider(sizeProviderFunc(func() (int, int) {
		return int(e.cellW), int(e.cellH)
	}))

	return e, nil
}

// Events returns the channel of GUI-bound events, including SurfaceChanged
// snapshots published after every processed batch of pty output or command.
func (e *Engine) Events() <-chan Event { return e.events }

// Commands returns the channel BackendCommands are sent on.
func (e *Engine) Commands() chan<- BackendCommand { return e.commands }

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		// GUI has stalled; drop rather than block the worker (spec.md §5).
	}
}

func (e *Engine) publishSnapshot() {
	rev := atomic.AddUint64(&e.revision, 1)
	snap := BuildBlockSnapshot(e.surface, rev)
	e.snapshot.Store(snap)
	e.emit(Event{Kind: EventSurfaceChanged, Snapshot: snap})
}

// Snapshot returns the most recently published snapshot without touching
// the worker's lock (spec.md §4.4/§5: the GUI thread never blocks on the
// worker while rendering).
func (e *Engine) Snapshot() *Snapshot { return e.snapshot.Load() }

// Run drives the single-threaded reactor: a blocking pty-read goroutine
// feeds a byte channel that Run multiplexes against the command channel,
// exactly the single-owner worker loop spec.md §5 requires (grounded on
// framegrace-texelation/tui/pty_app.go's read-goroutine/stop-channel shape,
// upgraded to log/slog per spec.md §7).
func (e *Engine) Run(ctx context.Context) error {
	defer e.ptyFile.Close()

	type readResult struct {
		buf []byte
		err error
	}
	reads := make(chan readResult, 1)

	go func() {
		for {
			buf := make([]byte, ptyReadBufSize)
			n, err := e.ptyFile.Read(buf)
			select {
			case reads <- readResult{buf: buf[:n], err: err}:
			case <-e.done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	e.publishSnapshot()

	var pendingResize *BackendCommand
	var pendingScroll int
	var haveScroll bool

	flushCoalesced := func() {
		if pendingResize != nil {
			e.applyResize(*pendingResize)
			pendingResize = nil
		}
		if haveScroll {
			active := e.surface.active()
			if active.IsAltScreen() && active.ModeFlags()&ModeAlternateScroll != 0 {
				if _, err := e.ptyFile.Write(scrollToArrowKeys(pendingScroll)); err != nil {
					e.log.Warn("pty write error", "err", err)
				}
			} else {
				e.surface.ScrollDisplay(pendingScroll)
			}
			pendingScroll = 0
			haveScroll = false
		}
	}

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()

		case r := <-reads:
			if len(r.buf) > 0 {
				e.decoder.Write(r.buf)
				e.drainReports()
				e.publishSnapshot()
			}
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					e.log.Debug("pty closed", "err", r.err)
				} else {
					e.log.Warn("pty read error", "err", r.err)
				}
				status := e.waitExitStatus()
				e.emit(Event{Kind: EventChildExit, ExitStatus: status})
				e.shutdown()
				return nil
			}

		case cmd, ok := <-e.commands:
			if !ok {
				e.shutdown()
				return nil
			}
			switch cmd.Kind {
			case CmdWrite:
				if _, err := e.ptyFile.Write(cmd.Write); err != nil {
					e.log.Warn("pty write error", "err", err)
				}
			case CmdResize:
				pendingResize = &cmd
			case CmdScroll:
				if cmd.ScrollDelta != 0 {
					pendingScroll += cmd.ScrollDelta
					haveScroll = true
				}
			case CmdMouseReport:
				e.handleMouseReport(cmd.Mouse)
			case CmdProcessLink:
				e.handleProcessLink(cmd.LinkAction, cmd.LinkPosition)
			}
			// drain any further already-queued commands before publishing,
			// so a burst of resizes/scrolls coalesces into one snapshot.
			drained := true
			for drained {
				select {
				case next, ok := <-e.commands:
					if !ok {
						drained = false
						break
					}
					switch next.Kind {
					case CmdWrite:
						if _, err := e.ptyFile.Write(next.Write); err != nil {
							e.log.Warn("pty write error", "err", err)
						}
					case CmdResize:
						pendingResize = &next
					case CmdScroll:
						if next.ScrollDelta != 0 {
							pendingScroll += next.ScrollDelta
							haveScroll = true
						}
					case CmdMouseReport:
						e.handleMouseReport(next.Mouse)
					case CmdProcessLink:
						e.handleProcessLink(next.LinkAction, next.LinkPosition)
					}
				default:
					drained = false
				}
			}
			flushCoalesced()
			e.publishSnapshot()
		}
	}
}

func (e *Engine) applyResize(cmd BackendCommand) {
	if cmd.ResizeCellW <= 0 || cmd.ResizeCellH <= 0 {
		e.log.Debug("ignoring resize with non-positive cell size")
		return
	}
	e.cellW, e.cellH = cmd.ResizeCellW, cmd.ResizeCellH

	cols := int(cmd.ResizeLayoutW / cmd.ResizeCellW)
	rows := int(cmd.ResizeLayoutH / cmd.ResizeCellH)
	if rows <= 0 || cols <= 0 {
		e.log.Debug("ignoring resize to zero rows/cols", "rows", rows, "cols", cols)
		return
	}

	e.surface.Resize(rows, cols)
	if err := pty.Setsize(e.ptyFile, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		e.log.Warn("pty resize error", "err", err)
	}
}

func (e *Engine) handleMouseReport(m MouseReport) {
	enc, ok := encodeMouseReport(e.surface.active().ModeFlags(), m)
	if !ok {
		return
	}
	if _, err := e.ptyFile.Write(enc); err != nil {
		e.log.Warn("pty write error", "err", err)
	}
}

func (e *Engine) handleProcessLink(action LinkAction, pos Position) {
	snap := e.snapshot.Load()
	if snap == nil || snap.Hyperlinks == nil {
		return
	}
	id, ok := snap.Hyperlinks.SpanIDAt(pos)
	switch action {
	case LinkClear:
		// nothing cached worker-side to clear; GUI owns hover highlight state.
	case LinkHover:
		if ok {
			uri, _ := snap.Hyperlinks.URIForSpan(id)
			e.emit(Event{Kind: EventHyperlink, HyperlinkSpanID: id, URI: uri})
		}
	case LinkOpen:
		if ok {
			if uri, uriOK := snap.Hyperlinks.URIForSpan(id); uriOK {
				e.emit(Event{Kind: EventOpenLink, URI: uri})
			}
		}
	}
}

// drainReports forwards the active block's out-of-band response queue
// (DSR, clipboard reads, etc.) back to the child, non-blocking by
// construction since Surface.writeResponse never blocks (spec.md §4.2).
func (e *Engine) drainReports() {
	reports := e.surface.active().Reports()
	for {
		select {
		case b := <-reports:
			if _, err := e.ptyFile.Write(b); err != nil {
				e.log.Warn("pty write error", "err", err)
			}
		default:
			return
		}
	}
}

func (e *Engine) waitExitStatus() int {
	if e.cmd == nil {
		return 0
	}
	err := e.cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func (e *Engine) shutdown() {
	e.closeOnce.Do(func() {
		close(e.done)
		if e.cmd != nil && e.cmd.Process != nil {
			_ = e.cmd.Process.Kill()
		}
	})
}

type bellProviderFunc func()

func (f bellProviderFunc) Ring() { f() }

type sizeProviderFunc func() (int, int)

func (f sizeProviderFunc) CellPixelSize() (int, int)   { return f() }
func (f sizeProviderFunc) WindowPixelSize() (int, int) { return 0, 0 }

// engineTitleProvider forwards title changes (OSC 0/1/2, and the title a
// XTWINOPS pop restores) as EventTitleChanged. The push/pop stack lives in
// Surface, which never calls PushTitle or PopTitle on its provider.
type engineTitleProvider struct {
	e *Engine
}

func (p *engineTitleProvider) SetTitle(title string) {
	p.e.emit(Event{Kind: EventTitleChanged, Title: title})
}
func (p *engineTitleProvider) PushTitle() {}
func (p *engineTitleProvider) PopTitle() {
	p.e.emit(Event{Kind: EventResetTitle})
}
