package encode

// Arena hands out Picture slots from a fixed-capacity ring keyed by
// encode order. The back-link graph (Prev pointers and DPB snapshots)
// only ever looks backward in encode order, so a ring deep enough to
// cover the reorder window plus DPB keeps every reachable picture in a
// live slot while bounding per-picture state.
type Arena struct {
	slots []Picture
}

// NewArena creates a ring with n slots. n must cover the maximum
// B-pyramid reorder window plus the DPB capacity.
func NewArena(n int) *Arena {
	if n < 1 {
		n = 1
	}
	return &Arena{slots: make([]Picture, n)}
}

// New returns a cleared Picture slot for the given encode order. The
// slot previously held the picture n encode orders back, which by
// construction is no longer reachable.
func (a *Arena) New(encodeOrder int64) *Picture {
	p := &a.slots[int(encodeOrder)%len(a.slots)]
	*p = Picture{EncodeOrder: encodeOrder}
	return p
}

// Cap returns the ring capacity.
func (a *Arena) Cap() int { return len(a.slots) }
