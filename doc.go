// Package blockterm is a headless, block-structured terminal emulation engine.
//
// Unlike a conventional terminal emulator that exposes one flat grid,
// blockterm segments terminal output into blocks — one per shell prompt and
// command — using OSC 133 shell-integration marks. Each block owns its own
// [Surface] (a single VT220-ish screen), and [BlockSurface] stitches them
// together into one continuous scrollable view.
//
// # Quick Start
//
//	bs := blockterm.NewBlockSurface(blockterm.DefaultSurfaceConfig())
//	decoder := ansicode.NewDecoder(bs) // feed raw pty bytes through here
//
// In practice an [Engine] owns the pty and the decoder loop; see below.
//
// # Architecture
//
//   - [Grid]: a fixed-size viewport backed by bounded scrollback history
//   - [Surface]: a single VT interpreter implementing [ansicode.Handler],
//     wrapping one [Grid] pair (primary/alternate)
//   - [BlockSurface]: an ordered sequence of blocks, each with its own
//     Surface, implementing [ansicode.Handler] by forwarding to whichever
//     block is active and intercepting OSC 133 to manage block lifecycle
//   - Snapshot: an immutable, renderer-facing view of the current state
//   - Engine: drives a pty, feeds bytes to the decoder, and publishes
//     snapshots
//
// # Surfaces and Grids
//
// A [Surface] holds two [Grid]s — primary (with scrollback) and alternate (no
// scrollback, used by full-screen apps like vim or htop):
//
//	s := blockterm.NewSurface(blockterm.DefaultSurfaceConfig())
//	s.Decoder().Write([]byte("\x1b[31mHello\x1b[0m"))
//	grid := s.Grid()
//	fmt.Println(grid.LineText(0))
//
// # Blocks
//
// A [BlockSurface] opens a new block whenever shell integration reports a
// new prompt (OSC 133;A). When a command begins executing (OSC 133;C) the
// active prompt block becomes a command block; a new command block is
// opened only if no prompt block is active. When the command finishes
// (OSC 133;D) the active block is closed and its cached text is computed
// right then, skipping prompt-kind blocks and wide-character spacer cells.
//
// # Damage Tracking
//
// Rather than a flat per-cell dirty flag, [Grid] tracks damage as a set of
// per-row column ranges ([LineDamageBounds]), consumed as a [SnapshotDamage]
// that is either DamageNone, DamageFull (redraw everything — e.g. after a
// resize or alt-screen swap), or DamagePartial (only the listed rows
// changed).
//
// # Colors
//
// Colors are stored using Go's [image/color] interface. [IndexedColor] and
// [NamedColor] are lazily resolved against a mutable [Palette] — mutable
// because OSC 4/10/11/12 and their resets (OSC 104/110/111/112) can change
// the palette at runtime.
//
// # Providers
//
// Providers handle terminal events and queries, all optional with no-op
// defaults: [BellProvider], [TitleProvider], [ClipboardProvider],
// [RecordingProvider], [SizeProvider].
//
// # Thread Safety
//
// Surface and BlockSurface methods are safe for concurrent use; each guards
// its state with an internal mutex.
package blockterm
