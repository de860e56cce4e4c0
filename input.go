package blockterm

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// KeyModifiers is a bitmask of modifier keys held during a key or mouse
// event (spec.md §4.6).
type KeyModifiers uint8

const (
	ModShift KeyModifiers = 1 << iota
	ModAlt
	ModControl
	ModCommand
)

// NamedKey identifies a non-printable key (spec.md §4.6 "Named key").
type NamedKey int

const (
	KeyUp NamedKey = iota
	KeyDown
	KeyRight
	KeyLeft
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyInsert
	KeyDelete
	KeyBackspace
	KeyEnter
	KeyTab
	KeyEscape
	KeyF1
	KeyF2
	KeyF3
	KeyF4
)

// BindingActionKind tags the variant held by a BindingAction.
type BindingActionKind int

const (
	ActionChar BindingActionKind = iota
	ActionEsc
	ActionPaste
	ActionCopy
	ActionLinkOpen
	ActionIgnore
)

// BindingAction is the outcome of a binding-table lookup (spec.md §4.6).
type BindingAction struct {
	Kind BindingActionKind `yaml:"kind"`
	Char string            `yaml:"char,omitempty"`
	Esc  string            `yaml:"esc,omitempty"`
}

// bindingKey is the lookup key: a named key plus the modifier bitmask
// active when it was pressed.
type bindingKey struct {
	Key  NamedKey
	Mods KeyModifiers
}

// bindingEntry is the YAML-friendly (de)serialization of one binding.
type bindingEntry struct {
	Key       string        `yaml:"key"`
	Modifiers []string      `yaml:"modifiers,omitempty"`
	Action    BindingAction `yaml:"action"`
}

// BindingTable maps (key, modifiers) to a BindingAction, loadable from YAML
// and optionally hot-reloaded from disk (spec.md §4.6 "binding table").
type BindingTable struct {
	mu      sync.RWMutex
	entries map[bindingKey]BindingAction

	log     *slog.Logger
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewBindingTable returns a table pre-populated with the built-in default
// bindings (arrow keys, function keys, editing keys — spec.md §4.6/§6).
func NewBindingTable(log *slog.Logger) *BindingTable {
	if log == nil {
		log = slog.Default()
	}
	t := &BindingTable{entries: defaultBindings(), log: log}
	return t
}

func defaultBindings() map[bindingKey]BindingAction {
	m := map[bindingKey]BindingAction{}
	set := func(k NamedKey, mods KeyModifiers, esc string) {
		m[bindingKey{Key: k, Mods: mods}] = BindingAction{Kind: ActionEsc, Esc: esc}
	}
	// cursor keys default to the CSI introducer; cursor-keys mode swaps
	// this to SS3 at lookup time via applicationCursorEsc.
	set(KeyUp, 0, "\x1b[A")
	set(KeyDown, 0, "\x1b[B")
	set(KeyRight, 0, "\x1b[C")
	set(KeyLeft, 0, "\x1b[D")
	set(KeyHome, 0, "\x1b[H")
	set(KeyEnd, 0, "\x1b[F")
	set(KeyPageUp, 0, "\x1b[5~")
	set(KeyPageDown, 0, "\x1b[6~")
	set(KeyInsert, 0, "\x1b[2~")
	set(KeyDelete, 0, "\x1b[3~")
	set(KeyBackspace, 0, "\x7f")
	set(KeyEnter, 0, "\r")
	set(KeyTab, 0, "\t")
	set(KeyEscape, 0, "\x1b")
	set(KeyF1, 0, "\x1bOP")
	set(KeyF2, 0, "\x1bOQ")
	set(KeyF3, 0, "\x1bOR")
	set(KeyF4, 0, "\x1bOS")
	return m
}

// LoadFile replaces the table's entries from a YAML file, and — if Watch
// has been called — is invoked automatically on every subsequent change.
func (t *BindingTable) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var raw []bindingEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}

	entries := defaultBindings()
	for _, e := range raw {
		k, ok := parseNamedKey(e.Key)
		if !ok {
			t.log.Debug("binding table: unknown key name, skipping", "key", e.Key)
			continue
		}
		entries[bindingKey{Key: k, Mods: parseModifiers(e.Modifiers)}] = e.Action
	}

	t.mu.Lock()
	t.entries = entries
	t.path = path
	t.mu.Unlock()
	return nil
}

// Watch starts hot-reloading path on every write event, logging and
// ignoring reload failures so a bad edit never crashes the session.
func (t *BindingTable) Watch(path string) error {
	if err := t.LoadFile(path); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return err
	}
	t.watcher = w
	t.done = make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := t.LoadFile(path); err != nil {
						t.log.Warn("binding table reload failed", "path", path, "err", err)
					} else {
						t.log.Debug("binding table reloaded", "path", path)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				t.log.Warn("binding table watch error", "err", err)
			case <-t.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the hot-reload watcher, if any.
func (t *BindingTable) Close() error {
	if t.watcher == nil {
		return nil
	}
	close(t.done)
	return t.watcher.Close()
}

// Lookup returns the binding for the exact modifier mask, falling back to
// the key's unmodified binding; subsets of the mask are not tried.
func (t *BindingTable) Lookup(key NamedKey, mods KeyModifiers) (BindingAction, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if a, ok := t.entries[bindingKey{Key: key, Mods: mods}]; ok {
		return a, true
	}
	if mods != 0 {
		if a, ok := t.entries[bindingKey{Key: key, Mods: 0}]; ok {
			return a, true
		}
	}
	return BindingAction{}, false
}

func parseModifiers(names []string) KeyModifiers {
	var m KeyModifiers
	for _, n := range names {
		switch n {
		case "shift":
			m |= ModShift
		case "alt":
			m |= ModAlt
		case "control", "ctrl":
			m |= ModControl
		case "command", "cmd", "meta":
			m |= ModCommand
		}
	}
	return m
}

var namedKeyByName = map[string]NamedKey{
	"up": KeyUp, "down": KeyDown, "right": KeyRight, "left": KeyLeft,
	"home": KeyHome, "end": KeyEnd, "pageup": KeyPageUp, "pagedown": KeyPageDown,
	"insert": KeyInsert, "delete": KeyDelete, "backspace": KeyBackspace,
	"enter": KeyEnter, "tab": KeyTab, "escape": KeyEscape,
	"f1": KeyF1, "f2": KeyF2, "f3": KeyF3, "f4": KeyF4,
}

func parseNamedKey(name string) (NamedKey, bool) {
	k, ok := namedKeyByName[name]
	return k, ok
}

// InputTranslator turns GUI key/mouse/paste events into pty byte sequences
// using a BindingTable, honoring the active Surface's mode flags for
// cursor-keys and bracketed-paste (spec.md §4.6). Mouse reports are not
// translated here; the Engine encodes them with encodeMouseReport.
type InputTranslator struct {
	table   *BindingTable
	surface *BlockSurface

	wheelAccum float64
}

// NewInputTranslator builds a translator with the built-in bindings;
// call (*BindingTable).LoadFile/Watch separately to customize it.
func NewInputTranslator(bs *BlockSurface, table *BindingTable) *InputTranslator {
	if table == nil {
		table = NewBindingTable(nil)
	}
	return &InputTranslator{table: table, surface: bs}
}

// TranslateChar handles a printable character key press by writing the
// rune verbatim. The binding table is not consulted: it is keyed by
// NamedKey only, so printable keys (in any case) have no bindings.
func (it *InputTranslator) TranslateChar(r rune, mods KeyModifiers) []byte {
	return []byte(string(r))
}

// TranslateKey handles a named key press (spec.md §4.6 step 3), swapping
// the CSI introducer for SS3 when application-cursor-keys mode is set.
func (it *InputTranslator) TranslateKey(key NamedKey, mods KeyModifiers) []byte {
	if a, ok := it.table.Lookup(key, mods); ok {
		switch a.Kind {
		case ActionIgnore:
			return nil
		case ActionEsc:
			return []byte(applicationCursorEsc(it.surface.active().ModeFlags(), key, a.Esc))
		case ActionChar:
			return []byte(a.Char)
		}
	}
	return nil
}

// applicationCursorEsc rewrites a default CSI cursor-key sequence to its
// SS3 form when ModeCursorKeys (DECCKM) is set.
func applicationCursorEsc(mode Mode, key NamedKey, esc string) string {
	if mode&ModeCursorKeys == 0 {
		return esc
	}
	switch key {
	case KeyUp:
		return "\x1bOA"
	case KeyDown:
		return "\x1bOB"
	case KeyRight:
		return "\x1bOC"
	case KeyLeft:
		return "\x1bOD"
	default:
		return esc
	}
}

// TranslatePaste wraps clipboard content in bracketed-paste markers when
// the mode is active (spec.md §4.6 step 4, §6).
func (it *InputTranslator) TranslatePaste(data string) []byte {
	if it.surface.active().ModeFlags()&ModeBracketedPaste != 0 {
		return []byte("\x1b[200~" + data + "\x1b[201~")
	}
	return []byte(data)
}

// WheelLines converts a wheel delta (fractional "pixel" units accumulate;
// whole "line" units pass straight through) into an integer line count
// (spec.md §4.6 "Wheel").
func (it *InputTranslator) WheelLines(deltaLines float64) int {
	it.wheelAccum += deltaLines
	whole := int(it.wheelAccum)
	it.wheelAccum -= float64(whole)
	return whole
}

// scrollToArrowKeys translates a Scroll BackendCommand into the synthetic
// arrow-key sequences an alt-screen application with alternate-scroll-mode
// expects instead of a real scrollback move (spec.md §4.5 Scroll(delta)).
func scrollToArrowKeys(delta int) []byte {
	seq := "\x1bOB"
	if delta < 0 {
		delta = -delta
	} else if delta > 0 {
		seq = "\x1bOA"
	}
	out := make([]byte, 0, len(seq)*delta)
	for i := 0; i < delta; i++ {
		out = append(out, seq...)
	}
	return out
}

// encodeMouseReport encodes a MouseReport per the active mouse-tracking
// mode (spec.md §4.5 BackendCommand.MouseReport). Returns ok=false when no
// mouse-tracking mode is active, meaning the caller should fall back to
// selection handling instead.
func encodeMouseReport(mode Mode, m MouseReport) ([]byte, bool) {
	tracking := mode&(ModeReportMouseClicks|ModeReportCellMouseMotion|ModeReportAllMouseMotion) != 0
	if !tracking {
		return nil, false
	}

	buttonCode := mouseButtonCode(m.Button)
	if mode&ModeSGRMouse != 0 {
		modBits := mouseModBits(m.Modifiers)
		cb := buttonCode + modBits
		suffix := byte('M')
		if !m.Pressed {
			suffix = 'm'
		}
		return []byte(fmt.Sprintf("\x1b[<%d;%d;%d%c", cb, m.Position.Col+1, m.Position.Row+1, suffix)), true
	}

	code := buttonCode
	if !m.Pressed {
		code = 3
	}
	code += mouseModBits(m.Modifiers)

	if mode&ModeUTF8Mouse != 0 {
		col, row := m.Position.Col+1, m.Position.Row+1
		if col > 2015 {
			col = 2015
		}
		if row > 2015 {
			row = 2015
		}
		out := []byte{0x1b, '[', 'M', byte(32 + code)}
		out = utf8.AppendRune(out, rune(32+col))
		out = utf8.AppendRune(out, rune(32+row))
		return out, true
	}

	col, row := m.Position.Col+1, m.Position.Row+1
	if col > 223 {
		col = 223
	}
	if row > 223 {
		row = 223
	}
	return []byte{0x1b, '[', 'M', byte(32 + code), byte(32 + col), byte(32 + row)}, true
}

func mouseButtonCode(b MouseButton) int {
	switch b {
	case MouseButtonLeft:
		return 0
	case MouseButtonMiddle:
		return 1
	case MouseButtonRight:
		return 2
	case MouseWheelUp:
		return 64
	case MouseWheelDown:
		return 65
	default:
		return 0
	}
}

func mouseModBits(mods KeyModifiers) int {
	var bits int
	if mods&ModShift != 0 {
		bits += 4
	}
	if mods&ModAlt != 0 {
		bits += 8
	}
	if mods&ModCommand != 0 {
		bits += 16
	}
	return bits
}
