package blockterm

// LineDamageBounds tracks the dirty column range of a single viewport row.
// Left/Right are inclusive-exclusive column bounds; Dirty is false when the
// row has not changed since the last snapshot.
type LineDamageBounds struct {
	Dirty bool
	Left  int
	Right int
}

// expand grows the bounds to cover [left, right), marking the row dirty.
func (l *LineDamageBounds) expand(left, right int) {
	if !l.Dirty {
		l.Dirty = true
		l.Left = left
		l.Right = right
		return
	}
	if left < l.Left {
		l.Left = left
	}
	if right > l.Right {
		l.Right = right
	}
}

func (l *LineDamageBounds) reset() {
	l.Dirty = false
	l.Left = 0
	l.Right = 0
}

// SnapshotDamageKind distinguishes a fully-redrawn snapshot from one carrying
// only a set of changed row ranges.
type SnapshotDamageKind int

const (
	// DamageNone means nothing changed since the previous snapshot.
	DamageNone SnapshotDamageKind = iota
	// DamageFull means the consumer should redraw the entire viewport
	// (e.g. after a resize or an alt-screen swap).
	DamageFull
	// DamagePartial means only the rows in SnapshotDamage.Rows changed.
	DamagePartial
)

// SnapshotDamage describes what changed in a Snapshot relative to the one
// published before it.
type SnapshotDamage struct {
	Kind SnapshotDamageKind
	// Rows maps viewport row index to its dirty column bounds; only
	// populated when Kind == DamagePartial.
	Rows map[int]LineDamageBounds
}
