// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package frame

import (
	"testing"

	"github.com/DealsBeam/PresentMon/internal/tracesource"
)

func frameAt(presentStart, timeInPresent uint64, final tracesource.PresentResult, screenTimes ...uint64) *tracesource.FrameData {
	fd := &tracesource.FrameData{}
	fd.PresentEvent.PresentStartTime = presentStart
	fd.PresentEvent.TimeInPresent = timeInPresent
	fd.PresentEvent.FinalState = final
	fd.PresentEvent.DisplayedCount = uint32(len(screenTimes))
	for i, t := range screenTimes {
		fd.PresentEvent.DisplayedScreenTime[i] = t
	}
	return fd
}

func TestContextUpdateDropped(t *testing.T) {
	var ctx Context
	source := frameAt(100, 5, tracesource.PresentResultDiscarded)
	ctx.Update(source, nil, nil, nil, nil)
	if !ctx.Dropped {
		t.Fatal("Dropped = false, want true for discarded present")
	}
}

func TestContextUpdatePresentedNotDropped(t *testing.T) {
	var ctx Context
	source := frameAt(100, 5, tracesource.PresentResultPresented, 120)
	ctx.Update(source, nil, nil, nil, nil)
	if ctx.Dropped {
		t.Fatal("Dropped = true, want false for presented present")
	}
}

func TestContextUpdateMissingNeighboursLeaveZero(t *testing.T) {
	var ctx Context
	source := frameAt(100, 5, tracesource.PresentResultPresented, 120)
	ctx.Update(source, nil, nil, nil, nil)
	if ctx.CPUStart != 0 {
		t.Errorf("CPUStart = %d, want 0 with nil lastPresented", ctx.CPUStart)
	}
	if ctx.NextDisplayedQpc != 0 {
		t.Errorf("NextDisplayedQpc = %d, want 0 with nil nextDisplayed", ctx.NextDisplayedQpc)
	}
	if ctx.PreviousDisplayedQpc != 0 {
		t.Errorf("PreviousDisplayedQpc = %d, want 0 with nil lastDisplayed", ctx.PreviousDisplayedQpc)
	}
	if ctx.PreviousDisplayedCpuStartQpc != 0 {
		t.Errorf("PreviousDisplayedCpuStartQpc = %d, want 0 with nil previousLastDisplayed", ctx.PreviousDisplayedCpuStartQpc)
	}
}

func TestContextUpdateDerivesFromNeighbours(t *testing.T) {
	var ctx Context
	source := frameAt(200, 5, tracesource.PresentResultPresented, 220)
	lastPresented := frameAt(150, 10, tracesource.PresentResultPresented, 170)
	nextDisplayed := frameAt(250, 5, tracesource.PresentResultPresented, 260)
	lastDisplayed := frameAt(100, 5, tracesource.PresentResultPresented, 110, 115)
	previousLastDisplayed := frameAt(80, 5, tracesource.PresentResultPresented, 90)

	ctx.Update(source, nextDisplayed, lastPresented, lastDisplayed, previousLastDisplayed)

	if want := uint64(150 + 10); ctx.CPUStart != want {
		t.Errorf("CPUStart = %d, want %d", ctx.CPUStart, want)
	}
	if ctx.NextDisplayedQpc != 260 {
		t.Errorf("NextDisplayedQpc = %d, want 260", ctx.NextDisplayedQpc)
	}
	if ctx.PreviousDisplayedQpc != 115 {
		t.Errorf("PreviousDisplayedQpc = %d, want 115 (last subframe)", ctx.PreviousDisplayedQpc)
	}
	if want := uint64(80 + 5); ctx.PreviousDisplayedCpuStartQpc != want {
		t.Errorf("PreviousDisplayedCpuStartQpc = %d, want %d", ctx.PreviousDisplayedCpuStartQpc, want)
	}
}

func TestContextAdvanceDisplaySubframeResetsOnUpdate(t *testing.T) {
	var ctx Context
	source := frameAt(100, 5, tracesource.PresentResultPresented, 110, 115, 120)
	ctx.Update(source, nil, nil, nil, nil)
	ctx.AdvanceDisplaySubframe()
	ctx.AdvanceDisplaySubframe()
	if ctx.DisplayIndex() != 2 {
		t.Fatalf("DisplayIndex() = %d, want 2 after two advances", ctx.DisplayIndex())
	}
	ctx.Update(source, nil, nil, nil, nil)
	if ctx.DisplayIndex() != 0 {
		t.Fatalf("DisplayIndex() = %d, want 0 after Update resets", ctx.DisplayIndex())
	}
}
