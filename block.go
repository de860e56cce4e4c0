package blockterm

import (
	"image/color"
	"strings"
	"sync"

	"github.com/danielgatis/go-ansicode"
	"github.com/google/uuid"
)

var _ ansicode.Handler = (*BlockSurface)(nil)

// BlockKind categorizes a terminal block by the shell-integration phase
// that produced it (spec.md §3).
type BlockKind int

const (
	BlockKindCommand BlockKind = iota
	BlockKindPrompt
	BlockKindFullScreen
)

// BlockMeta is the metadata associated with one terminal block.
type BlockMeta struct {
	ID         string
	Kind       BlockKind
	Cmd        string
	Cwd        string
	Shell      string
	ExitCode   *int
	StartedAt  int64
	FinishedAt int64
	IsAltScreen bool
	IsFinished  bool
}

// BlockSnapshot describes a block's extent within the stitched viewport,
// used by Snapshot (spec.md §4.4).
type BlockSnapshot struct {
	Meta        BlockMeta
	StartLine   int
	LineCount   int
	CachedText  string
	IsAltScreen bool
}

// block is the in-memory pairing of metadata and the Surface that records
// a block's terminal contents (grounded on otty-surface/src/block.rs Block).
type block struct {
	meta       BlockMeta
	surface    *Surface
	cachedText string
}

func (b *block) updateCachedText() {
	if b.meta.Kind == BlockKindPrompt || !b.meta.IsFinished {
		return
	}
	grid := b.surface.Grid()
	total := grid.TotalLines()
	if total == 0 || grid.Cols() == 0 {
		b.cachedText = ""
		return
	}
	lines := make([]string, 0, total)
	for n := -grid.HistoryLen(); n < grid.Rows(); n++ {
		cells := grid.Line(n)
		if cells == nil {
			continue
		}
		lines = append(lines, strings.TrimRight(cellsToText(cells), " "))
	}
	// trim trailing blank lines
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	b.cachedText = strings.Join(lines[:end], "\n")
}

const defaultMaxBlocks = 1000

// BlockSurface is a multi-grid surface composed of an ordered sequence of
// blocks, each with its own Surface. It implements ansicode.Handler by
// forwarding every call to the active (most recent) block's Surface, and
// additionally drives block lifecycle transitions from OSC 133 marks
// (spec.md §4.3; grounded on otty-surface/src/block.rs BlockSurface).
type BlockSurface struct {
	mu sync.Mutex

	config    SurfaceConfig
	maxBlocks int

	blocks []*block

	displayOffset int

	selectionBlock  int // index into blocks, -1 if none
	selectionAnchor *Position
	globalSelection *globalSelection

	bell      BellProvider
	title     TitleProvider
	clipboard ClipboardProvider
	recording RecordingProvider
	size      SizeProvider
}

type globalPoint struct {
	lineIndex int // index into the stitched global line space, 0 = oldest
	column    int
}

type globalSelection struct {
	start globalPoint
	end   globalPoint
}

// NewBlockSurface creates a BlockSurface with a single initial command block.
func NewBlockSurface(cfg SurfaceConfig) *BlockSurface {
	bs := &BlockSurface{
		config:         cfg,
		maxBlocks:      defaultMaxBlocks,
		selectionBlock: -1,
	}
	bs.beginBlockLocked(BlockMeta{ID: uuid.NewString(), Kind: BlockKindCommand})
	return bs
}

// SetMaxBlocks overrides the eviction threshold (default 1000).
func (bs *BlockSurface) SetMaxBlocks(n int) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if n > 0 {
		bs.maxBlocks = n
		bs.enforceMaxBlocksLocked()
	}
}

func (bs *BlockSurface) activeLocked() *block {
	return bs.blocks[len(bs.blocks)-1]
}

// active returns the Surface of the most recently opened block, the target
// of every forwarded ansicode.Handler call.
func (bs *BlockSurface) active() *Surface {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.activeLocked().surface
}

// Blocks returns a snapshot copy of the current block metadata, oldest first.
func (bs *BlockSurface) Blocks() []BlockMeta {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	out := make([]BlockMeta, len(bs.blocks))
	for i, b := range bs.blocks {
		out[i] = b.meta
	}
	return out
}

func (bs *BlockSurface) beginBlockLocked(meta BlockMeta) {
	s := NewSurface(bs.config)
	s.SetShellIntegrationHook(func(mark ansicode.ShellIntegrationMark, exitCode int) {
		bs.handleMark(mark, exitCode)
	})
	if bs.bell != nil {
		s.SetBellProvider(bs.bell)
	}
	if bs.title != nil {
		s.SetTitleProvider(bs.title)
	}
	if bs.clipboard != nil {
		s.SetClipboardProvider(bs.clipboard)
	}
	if bs.recording != nil {
		s.SetRecordingProvider(bs.recording)
	}
	if bs.size != nil {
		s.SetSizeProvider(bs.size)
	}
	if len(bs.blocks) > 0 {
		meta.Cwd = bs.activeLocked().meta.Cwd
		meta.Shell = bs.activeLocked().meta.Shell
	}
	bs.blocks = append(bs.blocks, &block{meta: meta, surface: s})
	bs.enforceMaxBlocksLocked()
}

// --- providers: stored so every block (including ones opened later) gets
// the same collaborators, since each block owns an independent Surface.

func (bs *BlockSurface) SetBellProvider(p BellProvider) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.bell = p
	bs.activeLocked().surface.SetBellProvider(p)
}

func (bs *BlockSurface) SetTitleProvider(p TitleProvider) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.title = p
	bs.activeLocked().surface.SetTitleProvider(p)
}

func (bs *BlockSurface) SetClipboardProvider(p ClipboardProvider) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.clipboard = p
	bs.activeLocked().surface.SetClipboardProvider(p)
}

func (bs *BlockSurface) SetRecordingProvider(p RecordingProvider) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.recording = p
	bs.activeLocked().surface.SetRecordingProvider(p)
}

func (bs *BlockSurface) SetSizeProvider(p SizeProvider) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.size = p
	bs.activeLocked().surface.SetSizeProvider(p)
}

// enforceMaxBlocksLocked evicts the oldest *finished* blocks when the list
// exceeds maxBlocks, walking forward and skipping any unfinished block it
// meets — never evicting the active block, and never evicting an older
// block still awaiting its Exit mark either (spec.md §4.3; grounded on
// otty-surface/src/block.rs's enforce_block_max).
func (bs *BlockSurface) enforceMaxBlocksLocked() {
	for len(bs.blocks) > bs.maxBlocks {
		victim := -1
		for i, b := range bs.blocks {
			if i == len(bs.blocks)-1 {
				break // never evict the active block
			}
			if b.meta.IsFinished {
				victim = i
				break
			}
		}
		if victim < 0 {
			return // every non-active block is still unfinished
		}
		bs.removeBlockAtLocked(victim)
	}
}

func (bs *BlockSurface) removeBlockAtLocked(index int) {
	if index < 0 || index >= len(bs.blocks) || len(bs.blocks) <= 1 {
		return
	}
	bs.blocks = append(bs.blocks[:index], bs.blocks[index+1:]...)
	if bs.selectionBlock == index {
		bs.selectionBlock = -1
		bs.selectionAnchor = nil
	} else if bs.selectionBlock > index {
		bs.selectionBlock--
	}
}

// activePromptIndexLocked returns the index of the active prompt block (the
// last block, if it is a Prompt kind that hasn't finished), or -1.
func (bs *BlockSurface) activePromptIndexLocked() int {
	if len(bs.blocks) == 0 {
		return -1
	}
	last := bs.activeLocked()
	if last.meta.Kind == BlockKindPrompt && !last.meta.IsFinished {
		return len(bs.blocks) - 1
	}
	return -1
}

// handleMark implements the shell-lifecycle dispatch from
// otty-surface/src/block.rs handle_block_event: Precmd opens/refreshes a
// prompt block, Preexec flips the active prompt into a command block (or
// opens a bare command block if no prompt is active, per Open Question 3 in
// DESIGN.md), and Exit finalizes the active block (the mark carries no
// block id to match against).
func (bs *BlockSurface) handleMark(mark ansicode.ShellIntegrationMark, exitCode int) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	switch mark {
	case ansicode.PromptStart:
		// Precmd: open (or re-open) the prompt block. If more than one
		// block exists and an active prompt block is already present,
		// drop it first rather than accumulating empty prompt blocks.
		if idx := bs.activePromptIndexLocked(); idx >= 0 && len(bs.blocks) > 1 {
			bs.removeBlockAtLocked(idx)
		}
		bs.beginBlockLocked(BlockMeta{ID: uuid.NewString(), Kind: BlockKindPrompt})

	case ansicode.CommandExecuted:
		// Preexec: the active prompt block becomes a command block; if no
		// prompt is active, synthesize a bare command block (Open Question 3).
		if idx := bs.activePromptIndexLocked(); idx >= 0 {
			bs.blocks[idx].meta.Kind = BlockKindCommand
		} else {
			bs.beginBlockLocked(BlockMeta{ID: uuid.NewString(), Kind: BlockKindCommand})
		}

	case ansicode.CommandFinished:
		code := exitCode
		active := bs.activeLocked()
		active.meta.ExitCode = &code
		active.meta.IsFinished = true
		active.updateCachedText()
	}
}

// --- stitched viewport geometry ---

// blockSlice describes one block's contribution to the stitched global
// line space.
type blockSlice struct {
	index int
	start int // global line index of the block's first line
	end   int // global line index one past the block's last line
}

func (bs *BlockSurface) blockSlicesLocked() []blockSlice {
	slices := make([]blockSlice, 0, len(bs.blocks))
	cursor := 0
	for i, b := range bs.blocks {
		total := b.surface.Grid().TotalLines()
		slices = append(slices, blockSlice{index: i, start: cursor, end: cursor + total})
		cursor += total
	}
	return slices
}

func (bs *BlockSurface) totalContentLinesLocked(slices []blockSlice) int {
	if len(slices) == 0 {
		return 0
	}
	return slices[len(slices)-1].end
}

// isAltScreenActiveLocked reports whether the active block's surface is
// currently showing its alternate screen (a full-screen app is running).
func (bs *BlockSurface) isAltScreenActiveLocked() bool {
	return bs.activeLocked().surface.IsAltScreen()
}

// globalIndexForPoint converts a block index + local line offset (0 at the
// block's oldest retained line) into a global stitched line index.
func (bs *BlockSurface) globalIndexForPointLocked(slices []blockSlice, blockIdx, localLine int) int {
	if blockIdx < 0 || blockIdx >= len(slices) {
		return 0
	}
	return slices[blockIdx].start + localLine
}

// viewportRows computes the stitched viewport for the given number of
// visible rows: the last `rows` lines of content (honoring displayOffset),
// as (blockIndex, localLine) pairs, oldest to newest.
func (bs *BlockSurface) viewportRowsLocked(rows int) []struct {
	blockIdx  int
	localLine int
} {
	if bs.isAltScreenActiveLocked() {
		out := make([]struct {
			blockIdx  int
			localLine int
		}, 0, rows)
		idx := len(bs.blocks) - 1
		for r := 0; r < rows; r++ {
			out = append(out, struct {
				blockIdx  int
				localLine int
			}{idx, r})
		}
		return out
	}

	slices := bs.blockSlicesLocked()
	total := bs.totalContentLinesLocked(slices)

	end := total - bs.displayOffset
	start := end - rows
	out := make([]struct {
		blockIdx  int
		localLine int
	}, 0, rows)

	si := 0
	for g := start; g < end; g++ {
		if g < 0 {
			out = append(out, struct {
				blockIdx  int
				localLine int
			}{-1, 0})
			continue
		}
		for si < len(slices) && g >= slices[si].end {
			si++
		}
		if si >= len(slices) {
			out = append(out, struct {
				blockIdx  int
				localLine int
			}{-1, 0})
			continue
		}
		local := g - slices[si].start - bs.blocks[si].surface.Grid().HistoryLen()
		out = append(out, struct {
			blockIdx  int
			localLine int
		}{si, local})
	}
	return out
}

// ScrollDisplay moves the stitched viewport's scroll offset by delta lines
// (positive scrolls back into history), clamped to available content.
func (bs *BlockSurface) ScrollDisplay(delta int) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	slices := bs.blockSlicesLocked()
	total := bs.totalContentLinesLocked(slices)
	rows := bs.config.Rows
	maxOffset := total - rows
	if maxOffset < 0 {
		maxOffset = 0
	}
	off := bs.displayOffset + delta
	if off < 0 {
		off = 0
	}
	if off > maxOffset {
		off = maxOffset
	}
	bs.displayOffset = off
}

// Resize propagates identical dimensions to every block's Surface so their
// grids remain consistent, including finished/historical blocks, and
// updates bs.config so ScrollDisplay's max-offset math stays accurate.
// Global selection is invalidated on column change (spec.md §4.3).
func (bs *BlockSurface) Resize(rows, cols int) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if rows == bs.config.Rows && cols == bs.config.Cols {
		return
	}
	colsChanged := cols != bs.config.Cols
	for _, b := range bs.blocks {
		b.surface.Resize(rows, cols)
	}
	bs.config.Rows = rows
	bs.config.Cols = cols
	if colsChanged {
		bs.globalSelection = nil
	}
}

// --- selection ---

// SetLocalSelection sets a selection confined to block blockIdx and drops
// any global selection. It never promotes itself; a drag that leaves the
// block is promoted by calling PromoteSelectionToGlobal.
func (bs *BlockSurface) SetLocalSelection(blockIdx int, start, end Position) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if blockIdx < 0 || blockIdx >= len(bs.blocks) {
		return
	}
	bs.selectionBlock = blockIdx
	bs.blocks[blockIdx].surface.SetSelection(start, end)
	bs.globalSelection = nil
}

// ClearSelection clears any local or global selection.
func (bs *BlockSurface) ClearSelection() {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.selectionBlock >= 0 && bs.selectionBlock < len(bs.blocks) {
		bs.blocks[bs.selectionBlock].surface.ClearSelection()
	}
	bs.selectionBlock = -1
	bs.selectionAnchor = nil
	bs.globalSelection = nil
}

// PromoteSelectionToGlobal converts the active block-local selection into a
// selection spanning global (stitched) coordinates, called once a drag
// leaves the originating block's row range.
func (bs *BlockSurface) PromoteSelectionToGlobal(anchorBlock int, anchor Position, activeBlock int, active Position) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	slices := bs.blockSlicesLocked()
	bs.globalSelection = &globalSelection{
		start: globalPoint{lineIndex: bs.globalIndexForPointLocked(slices, anchorBlock, anchor.Row), column: anchor.Col},
		end:   globalPoint{lineIndex: bs.globalIndexForPointLocked(slices, activeBlock, active.Row), column: active.Col},
	}
}

// --- ansicode.Handler: forward every call to the active block's Surface ---

func (bs *BlockSurface) Input(r rune)     { bs.active().Input(r) }
func (bs *BlockSurface) Backspace()       { bs.active().Backspace() }
func (bs *BlockSurface) Bell()            { bs.active().Bell() }
func (bs *BlockSurface) CarriageReturn()  { bs.active().CarriageReturn() }
func (bs *BlockSurface) ClearLine(mode ansicode.LineClearMode) { bs.active().ClearLine(mode) }
func (bs *BlockSurface) ClearScreen(mode ansicode.ClearMode)   { bs.active().ClearScreen(mode) }
func (bs *BlockSurface) ClearTabs(mode ansicode.TabulationClearMode) {
	bs.active().ClearTabs(mode)
}
func (bs *BlockSurface) ClipboardLoad(clipboard byte, terminator string) {
	bs.active().ClipboardLoad(clipboard, terminator)
}
func (bs *BlockSurface) ClipboardStore(clipboard byte, data []byte) {
	bs.active().ClipboardStore(clipboard, data)
}
func (bs *BlockSurface) ConfigureCharset(index ansicode.CharsetIndex, charset ansicode.Charset) {
	bs.active().ConfigureCharset(index, charset)
}
func (bs *BlockSurface) Decaln()             { bs.active().Decaln() }
func (bs *BlockSurface) DeleteChars(n int)   { bs.active().DeleteChars(n) }
func (bs *BlockSurface) DeleteLines(n int)   { bs.active().DeleteLines(n) }
func (bs *BlockSurface) DeviceStatus(n int)  { bs.active().DeviceStatus(n) }
func (bs *BlockSurface) EraseChars(n int)    { bs.active().EraseChars(n) }
func (bs *BlockSurface) Goto(row, col int)   { bs.active().Goto(row, col) }
func (bs *BlockSurface) GotoCol(col int)     { bs.active().GotoCol(col) }
func (bs *BlockSurface) GotoLine(row int)    { bs.active().GotoLine(row) }
func (bs *BlockSurface) HorizontalTabSet()   { bs.active().HorizontalTabSet() }
func (bs *BlockSurface) IdentifyTerminal(b byte) { bs.active().IdentifyTerminal(b) }
func (bs *BlockSurface) InsertBlank(n int)       { bs.active().InsertBlank(n) }
func (bs *BlockSurface) InsertBlankLines(n int)  { bs.active().InsertBlankLines(n) }
func (bs *BlockSurface) LineFeed()               { bs.active().LineFeed() }
func (bs *BlockSurface) MoveBackward(n int)      { bs.active().MoveBackward(n) }
func (bs *BlockSurface) MoveBackwardTabs(n int)  { bs.active().MoveBackwardTabs(n) }
func (bs *BlockSurface) MoveDown(n int)          { bs.active().MoveDown(n) }
func (bs *BlockSurface) MoveDownCr(n int)        { bs.active().MoveDownCr(n) }
func (bs *BlockSurface) MoveForward(n int)       { bs.active().MoveForward(n) }
func (bs *BlockSurface) MoveForwardTabs(n int)   { bs.active().MoveForwardTabs(n) }
func (bs *BlockSurface) MoveUp(n int)            { bs.active().MoveUp(n) }
func (bs *BlockSurface) MoveUpCr(n int)          { bs.active().MoveUpCr(n) }
func (bs *BlockSurface) PopKeyboardMode(n int)   { bs.active().PopKeyboardMode(n) }
func (bs *BlockSurface) PopTitle()               { bs.active().PopTitle() }
func (bs *BlockSurface) PrivacyMessageReceived(data []byte) { bs.active().PrivacyMessageReceived(data) }
func (bs *BlockSurface) PushKeyboardMode(mode ansicode.KeyboardMode) {
	bs.active().PushKeyboardMode(mode)
}
func (bs *BlockSurface) PushTitle() { bs.active().PushTitle() }
func (bs *BlockSurface) ApplicationCommandReceived(data []byte) {
	bs.active().ApplicationCommandReceived(data)
}
func (bs *BlockSurface) ReportKeyboardMode()    { bs.active().ReportKeyboardMode() }
func (bs *BlockSurface) ReportModifyOtherKeys() { bs.active().ReportModifyOtherKeys() }
func (bs *BlockSurface) ResetColor(i int)       { bs.active().ResetColor(i) }
func (bs *BlockSurface) ResetState()            { bs.active().ResetState() }
func (bs *BlockSurface) RestoreCursorPosition() { bs.active().RestoreCursorPosition() }
func (bs *BlockSurface) ReverseIndex()          { bs.active().ReverseIndex() }
func (bs *BlockSurface) SaveCursorPosition()    { bs.active().SaveCursorPosition() }
func (bs *BlockSurface) ScrollDown(n int)       { bs.active().ScrollDown(n) }
func (bs *BlockSurface) ScrollUp(n int)         { bs.active().ScrollUp(n) }
func (bs *BlockSurface) SetActiveCharset(n int) { bs.active().SetActiveCharset(n) }
func (bs *BlockSurface) SetColor(index int, c color.Color) { bs.active().SetColor(index, c) }
func (bs *BlockSurface) SetCursorStyle(style ansicode.CursorStyle) { bs.active().SetCursorStyle(style) }
func (bs *BlockSurface) SetDynamicColor(prefix string, index int, terminator string) {
	bs.active().SetDynamicColor(prefix, index, terminator)
}
func (bs *BlockSurface) SetHyperlink(hyperlink *ansicode.Hyperlink) { bs.active().SetHyperlink(hyperlink) }
func (bs *BlockSurface) SetKeyboardMode(mode ansicode.KeyboardMode, behavior ansicode.KeyboardModeBehavior) {
	bs.active().SetKeyboardMode(mode, behavior)
}
func (bs *BlockSurface) SetKeypadApplicationMode()   { bs.active().SetKeypadApplicationMode() }
func (bs *BlockSurface) UnsetKeypadApplicationMode() { bs.active().UnsetKeypadApplicationMode() }
func (bs *BlockSurface) SetMode(mode ansicode.TerminalMode)   { bs.active().SetMode(mode) }
func (bs *BlockSurface) UnsetMode(mode ansicode.TerminalMode) { bs.active().UnsetMode(mode) }
func (bs *BlockSurface) SetModifyOtherKeys(modify ansicode.ModifyOtherKeys) {
	bs.active().SetModifyOtherKeys(modify)
}
func (bs *BlockSurface) SetScrollingRegion(top, bottom int) { bs.active().SetScrollingRegion(top, bottom) }
func (bs *BlockSurface) StartOfStringReceived(data []byte)  { bs.active().StartOfStringReceived(data) }
func (bs *BlockSurface) SetTerminalCharAttribute(attr ansicode.TerminalCharAttribute) {
	bs.active().SetTerminalCharAttribute(attr)
}
func (bs *BlockSurface) SetTitle(title string)       { bs.active().SetTitle(title) }
func (bs *BlockSurface) Substitute()                 { bs.active().Substitute() }
func (bs *BlockSurface) Tab(n int)                   { bs.active().Tab(n) }
func (bs *BlockSurface) TextAreaSizeChars()          { bs.active().TextAreaSizeChars() }
func (bs *BlockSurface) TextAreaSizePixels()         { bs.active().TextAreaSizePixels() }
func (bs *BlockSurface) SetWorkingDirectory(uri string) {
	bs.mu.Lock()
	active := bs.activeLocked()
	active.meta.Cwd = uri
	bs.mu.Unlock()
	active.surface.SetWorkingDirectory(uri)
}
func (bs *BlockSurface) WorkingDirectory() string { return bs.active().WorkingDirectory() }
func (bs *BlockSurface) CellSizePixels()                { bs.active().CellSizePixels() }
func (bs *BlockSurface) SixelReceived(params [][]uint16, data []byte) {
	bs.active().SixelReceived(params, data)
}

// ShellIntegrationMark intercepts OSC 133 marks to drive block lifecycle
// instead of forwarding to the active Surface (which tracks no prompt-mark
// list of its own — see DESIGN.md).
func (bs *BlockSurface) ShellIntegrationMark(mark ansicode.ShellIntegrationMark, exitCode int) {
	bs.handleMark(mark, exitCode)
}
