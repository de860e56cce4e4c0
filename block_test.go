package blockterm

import (
	"testing"

	"github.com/danielgatis/go-ansicode"
)

func newTestBlockSurface(rows, cols int) *BlockSurface {
	cfg := DefaultSurfaceConfig()
	cfg.Rows, cfg.Cols = rows, cols
	return NewBlockSurface(cfg)
}

func writeBS(bs *BlockSurface, data string) {
	ansicode.NewDecoder(bs).Write([]byte(data))
}

func TestShellIntegrationLifecycleProducesCommandBlock(t *testing.T) {
	bs := newTestBlockSurface(24, 80)

	writeBS(bs, "\x1b]133;A\x07")  // prompt start
	writeBS(bs, "$ ls")
	writeBS(bs, "\x1b]133;C\x07")  // command executed
	writeBS(bs, "\r\n")
	writeBS(bs, "\x1b]133;D;1\x07") // exit code 1

	blocks := bs.Blocks()
	if len(blocks) == 0 {
		t.Fatal("expected at least one block")
	}
	last := blocks[len(blocks)-1]
	if last.Kind != BlockKindCommand {
		t.Errorf("expected final block to be Command kind, got %d", last.Kind)
	}
	if last.ExitCode == nil || *last.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %v", last.ExitCode)
	}
	if !last.IsFinished {
		t.Error("expected block marked finished")
	}
}

func TestPromptStartOpensNewBlock(t *testing.T) {
	bs := newTestBlockSurface(24, 80)
	initial := len(bs.Blocks())

	writeBS(bs, "\x1b]133;A\x07")
	writeBS(bs, "\x1b]133;C\x07")
	writeBS(bs, "\x1b]133;D;0\x07")
	writeBS(bs, "\x1b]133;A\x07") // second prompt

	if len(bs.Blocks()) <= initial {
		t.Fatalf("expected a new block after second PromptStart, got %d blocks", len(bs.Blocks()))
	}
}

// P10: max-blocks eviction never removes the active (unfinished) block.
func TestMaxBlocksEvictionNeverRemovesActiveBlock(t *testing.T) {
	bs := newTestBlockSurface(24, 80)
	bs.SetMaxBlocks(3)

	for i := 0; i < 10; i++ {
		writeBS(bs, "\x1b]133;A\x07")
		writeBS(bs, "\x1b]133;C\x07")
		writeBS(bs, "\x1b]133;D;0\x07")
	}
	// leave the final block unfinished (active, still a prompt)
	writeBS(bs, "\x1b]133;A\x07")

	blocks := bs.Blocks()
	if len(blocks) > 3 {
		t.Fatalf("expected eviction to cap at 3 blocks, got %d", len(blocks))
	}
	last := blocks[len(blocks)-1]
	if last.IsFinished {
		t.Error("expected the active block to remain, unfinished")
	}
}

// An older, non-active block left unfinished (e.g. a Preexec with no
// matching Precmd) must never be evicted, even when newer finished blocks
// pile up around it.
func TestMaxBlocksEvictionSkipsOlderUnfinishedNonActiveBlock(t *testing.T) {
	bs := newTestBlockSurface(24, 80)
	bs.SetMaxBlocks(3)

	// Open a block via Preexec with no prior Precmd, then never send its
	// Exit mark: it stays unfinished while other blocks accumulate.
	writeBS(bs, "\x1b]133;C\x07")
	stuck := bs.activeLocked()

	for i := 0; i < 10; i++ {
		writeBS(bs, "\x1b]133;A\x07")
		writeBS(bs, "\x1b]133;C\x07")
		writeBS(bs, "\x1b]133;D;0\x07")
	}

	blocks := bs.Blocks()
	found := false
	for _, b := range blocks {
		if b.ID == stuck.meta.ID {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected the older unfinished block to survive eviction")
	}
}

func TestBlockSurfaceForwardsToActiveBlock(t *testing.T) {
	bs := newTestBlockSurface(24, 80)
	writeBS(bs, "hello")

	if bs.active().Grid().LineText(0) != "hello" {
		t.Errorf("expected forwarded input to land in the active block, got %q", bs.active().Grid().LineText(0))
	}
}

func TestCachedTextSkipsPromptBlocks(t *testing.T) {
	bs := newTestBlockSurface(24, 80)
	writeBS(bs, "\x1b]133;A\x07")
	writeBS(bs, "$ echo hi")

	last := bs.activeLocked()
	last.updateCachedText()
	if last.cachedText != "" {
		t.Errorf("expected prompt blocks to never cache text, got %q", last.cachedText)
	}
}

func TestCachedTextTrimsTrailingBlankLines(t *testing.T) {
	bs := newTestBlockSurface(5, 20)
	writeBS(bs, "\x1b]133;C\x07")
	writeBS(bs, "line one\r\n\r\n\r\n")
	writeBS(bs, "\x1b]133;D;0\x07")

	last := bs.activeLocked()
	if last.cachedText != "line one" {
		t.Errorf("expected trailing blank lines trimmed, got %q", last.cachedText)
	}
}
