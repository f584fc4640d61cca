// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package frame

import "github.com/DealsBeam/PresentMon/internal/tracesource"

// Context is the transient scratchpad a gather command reads from. It
// lives for exactly one frame: the streaming worker rebuilds it (via
// Update) before every GatherToBlob call.
//
// displayIndex tracks which entry of the current frame's
// Displayed_ScreenTime/Displayed_FrameType arrays is being gathered.
// It resets to 0 at the start of every frame (Update) and is advanced
// by the gather engine across displayed subframes within one present,
// per the multi-display redesign (a present with DisplayedCount > 1
// produces DisplayedCount blobs, one per subframe, when the query
// includes a subframe-indexed metric).
type Context struct {
	SourceFrameData *tracesource.FrameData

	// Dropped is true when the frame's present did not reach the
	// screen (FinalState != Presented).
	Dropped bool

	// CPUStart is the QPC timestamp of the last-presented neighbour's
	// CPU frame start: PresentStartTime + TimeInPresent. Zero when
	// that neighbour is unavailable.
	CPUStart uint64

	// NextDisplayedQpc is the screen-time QPC of the next frame that
	// reaches the display. Zero when unavailable.
	NextDisplayedQpc uint64

	// PreviousDisplayedQpc is the screen-time QPC of the last displayed
	// subframe of the previous displayed frame. Zero when unavailable.
	PreviousDisplayedQpc uint64

	// PreviousDisplayedCpuStartQpc is the CPUStart of the frame that
	// produced PreviousDisplayedQpc. Zero when unavailable.
	PreviousDisplayedCpuStartQpc uint64

	// QpcStart is the session-anchor timestamp: the QPC value the
	// client's stream began at, used by StartDifference commands.
	QpcStart uint64

	// PerformanceCounterPeriodMs is the duration of one QPC tick in
	// milliseconds.
	PerformanceCounterPeriodMs float64

	// displayIndex is the current subframe index into
	// Displayed_ScreenTime / Displayed_FrameType. Reset to 0 by
	// Update; advanced by the gather engine between subframes.
	displayIndex uint32
}

// Update recomputes the derived scalars for a new top-level frame. The
// neighbours may be nil when unavailable (e.g. at the start of a
// stream); any derived field whose source neighbour is absent is left
// at zero, matching the "0 means missing" policy in §4.2.
func (c *Context) Update(source, nextDisplayed, lastPresented, lastDisplayed, previousLastDisplayed *tracesource.FrameData) {
	c.SourceFrameData = source
	c.displayIndex = 0
	c.Dropped = source.PresentEvent.FinalState != tracesource.PresentResultPresented

	if lastPresented != nil {
		c.CPUStart = lastPresented.PresentEvent.PresentStartTime + lastPresented.PresentEvent.TimeInPresent
	} else {
		c.CPUStart = 0
	}

	if nextDisplayed != nil && nextDisplayed.PresentEvent.DisplayedCount > 0 {
		c.NextDisplayedQpc = nextDisplayed.PresentEvent.DisplayedScreenTime[0]
	} else {
		c.NextDisplayedQpc = 0
	}

	if lastDisplayed != nil && lastDisplayed.PresentEvent.DisplayedCount > 0 {
		lastIndex := lastDisplayed.PresentEvent.DisplayedCount - 1
		c.PreviousDisplayedQpc = lastDisplayed.PresentEvent.DisplayedScreenTime[lastIndex]
	} else {
		c.PreviousDisplayedQpc = 0
	}

	if previousLastDisplayed != nil {
		c.PreviousDisplayedCpuStartQpc = previousLastDisplayed.PresentEvent.PresentStartTime + previousLastDisplayed.PresentEvent.TimeInPresent
	} else {
		c.PreviousDisplayedCpuStartQpc = 0
	}
}

// DisplayIndex returns the subframe index currently being gathered.
func (c *Context) DisplayIndex() uint32 { return c.displayIndex }

// AdvanceDisplaySubframe moves to the next displayed subframe within
// the current present. GatherToBlob calls this between successive
// subframes of the same top-level frame within one call, when the
// query targets a per-subframe metric for a present with
// DisplayedCount > 1; each GatherToBlob call starts again from index 0.
func (c *Context) AdvanceDisplaySubframe() {
	c.displayIndex++
}

// currentScreenTime returns the screen-time QPC for the subframe at
// displayIndex, or 0 if out of range.
func (c *Context) currentScreenTime() uint64 {
	present := &c.SourceFrameData.PresentEvent
	if c.displayIndex >= present.DisplayedCount {
		return 0
	}
	return present.DisplayedScreenTime[c.displayIndex]
}

// nextScreenTime returns the screen-time QPC of the subframe after
// displayIndex within the same present, or NextDisplayedQpc if
// displayIndex is the last subframe of the present.
func (c *Context) nextScreenTime() uint64 {
	present := &c.SourceFrameData.PresentEvent
	if present.DisplayedCount == 0 {
		return c.NextDisplayedQpc
	}
	if c.displayIndex+1 >= present.DisplayedCount {
		return c.NextDisplayedQpc
	}
	return present.DisplayedScreenTime[c.displayIndex+1]
}

// currentFrameType returns the frame-type tag for the subframe at
// displayIndex, or 0 if out of range.
func (c *Context) currentFrameType() uint32 {
	present := &c.SourceFrameData.PresentEvent
	if c.displayIndex >= present.DisplayedCount {
		return 0
	}
	return present.DisplayedFrameType[c.displayIndex]
}
