// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package frame

// hasSubframeMetrics reports whether the query includes a metric kind
// whose value depends on ctx.DisplayIndex. A present with DisplayedCount > 1 produces one
// blob per displayed subframe only when the query actually asked for
// one of these; a query with none of them gathers a single blob for
// the top-level frame regardless of how many subframes it displayed.
func (q *FrameQuery) hasSubframeMetrics() bool {
	for _, c := range q.Commands {
		switch c.Kind {
		case kindDisplayDifference, kindDisplayLatency, kindClickToPhoton, kindAnimationError:
			return true
		}
	}
	return false
}

// GatherToBlob runs every compiled command against ctx and returns the
// resulting blob(s). A present that reached the screen across several
// vblank intervals (DisplayedCount > 1) yields one blob per displayed
// subframe when the query includes a subframe-indexed metric;
// otherwise a single blob is produced for the top-level frame, using
// subframe index 0.
//
// dst, if non-nil and large enough, is reused for the first returned
// blob to avoid an allocation on the common single-blob path.
func GatherToBlob(ctx *Context, q *FrameQuery, dst []byte) [][]byte {
	count := uint32(1)
	if q.hasSubframeMetrics() && ctx.SourceFrameData.PresentEvent.DisplayedCount > 0 {
		count = ctx.SourceFrameData.PresentEvent.DisplayedCount
	}

	blobs := make([][]byte, 0, count)
	ctx.displayIndex = 0
	for i := uint32(0); i < count; i++ {
		var blob []byte
		if i == 0 && uint32(len(dst)) >= q.BlobSize {
			blob = dst[:q.BlobSize]
		} else {
			blob = make([]byte, q.BlobSize)
		}
		for ci := range q.Commands {
			q.Commands[ci].Gather(ctx, blob)
		}
		blobs = append(blobs, blob)
		if i+1 < count {
			ctx.AdvanceDisplaySubframe()
		}
	}
	return blobs
}
