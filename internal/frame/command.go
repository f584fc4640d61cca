// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package frame

import (
	"encoding/binary"
	"math"

	"github.com/DealsBeam/PresentMon/internal/tracesource"
)

// GatherCommand is a single compiled step of a FrameQuery: read one
// value out of a Context and write it at a fixed offset in the
// destination blob. Commands are tagged by Kind and dispatched with a
// switch on Kind in Gather rather than through an interface hierarchy, so
// compiling a query never allocates more than one slice of commands.
type GatherCommand struct {
	Kind   commandKind
	Metric MetricID

	// DataOffset/DataSize locate this command's output within the
	// destination blob, computed by the Frame Query Compiler.
	DataOffset uint32
	DataSize   uint32

	// ArrayIndex selects an element of GPUFanSpeedRPM. Unused
	// otherwise: the displayed-subframe metrics read the Context's
	// display index instead.
	ArrayIndex uint32
}

// Gather executes the command against ctx, writing its result into
// blob at [DataOffset, DataOffset+DataSize). blob must be at least
// DataOffset+DataSize bytes long.
func (g *GatherCommand) Gather(ctx *Context, blob []byte) {
	out := blob[g.DataOffset : g.DataOffset+g.DataSize]
	switch g.Kind {
	case kindCopy:
		g.gatherCopy(ctx, out)
	case kindQpcDuration:
		writeF64(out, g.gatherQpcDuration(ctx))
	case kindQpcDifference:
		writeF64(out, g.gatherQpcDifference(ctx))
	case kindStartDifference:
		writeF64(out, g.gatherStartDifference(ctx))
	case kindCpuFrameQpc:
		g.gatherCpuFrameQpc(ctx, out)
	case kindCpuFrameQpcDifference:
		writeF64(out, g.gatherCpuFrameQpcDifference(ctx))
	case kindCpuFrameQpcFrameTime:
		writeF64(out, g.gatherCpuFrameQpcFrameTime(ctx))
	case kindGpuWait:
		writeF64(out, g.gatherGpuWait(ctx))
	case kindDisplayDifference:
		writeF64(out, g.gatherDisplayDifference(ctx))
	case kindDisplayLatency:
		writeF64(out, g.gatherDisplayLatency(ctx))
	case kindClickToPhoton:
		writeF64(out, g.gatherClickToPhoton(ctx))
	case kindAnimationError:
		writeF64(out, g.gatherAnimationError(ctx))
	case kindDropped:
		writeBool(out, ctx.Dropped)
	}
}

func writeF64(dst []byte, v float64) {
	binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
}

func (g *GatherCommand) toMs(qpc uint64, ctx *Context) float64 {
	return float64(qpc) * ctx.PerformanceCounterPeriodMs
}

// unsignedDeltaMs converts the magnitude of the difference between two
// QPC values to milliseconds. QPC fields are nominally monotonic in
// the direction the caller expects, but deriving a signed difference
// from two potentially-absent (zero) fields can otherwise wrap to a
// huge unsigned value; taking the magnitude keeps the result a small,
// well-defined number regardless of which field the caller passes
// first.
func (g *GatherCommand) unsignedDeltaMs(a, b uint64, ctx *Context) float64 {
	var diff uint64
	if a > b {
		diff = a - b
	} else {
		diff = b - a
	}
	return float64(diff) * ctx.PerformanceCounterPeriodMs
}

// gatherCopy copies a raw field out of the present event or telemetry
// substructs. A present with no matching metric leaves out zeroed,
// which the compiler guards against by rejecting unknown metrics
// before any command is ever built.
func (g *GatherCommand) gatherCopy(ctx *Context, out []byte) {
	p := &ctx.SourceFrameData.PresentEvent
	gpu := &ctx.SourceFrameData.GPU
	cpu := &ctx.SourceFrameData.CPU
	switch g.Metric {
	case MetricApplication:
		copy(out, p.Application[:])
	case MetricSwapChainAddress:
		binary.LittleEndian.PutUint64(out, p.SwapChainAddress)
	case MetricPresentMode:
		binary.LittleEndian.PutUint32(out, uint32(p.PresentMode))
	case MetricRuntime:
		binary.LittleEndian.PutUint32(out, uint32(p.Runtime))
	case MetricPresentFlags:
		binary.LittleEndian.PutUint32(out, p.PresentFlags)
	case MetricSyncInterval:
		binary.LittleEndian.PutUint32(out, uint32(p.SyncInterval))
	case MetricAllowsTearing:
		writeBool(out, p.SupportsTearing)
	case MetricPresentQpc:
		binary.LittleEndian.PutUint64(out, p.PresentStartTime)
	case MetricGPUMemTotalSizeBytes:
		binary.LittleEndian.PutUint64(out, gpu.MemTotalSizeBytes)
	case MetricGPUMemMaxBandwidthBps:
		binary.LittleEndian.PutUint64(out, gpu.MemMaxBandwidthBps)
	case MetricGPUPowerWatts:
		writeF64(out, gpu.PowerWatts)
	case MetricGPUVoltageVolts:
		writeF64(out, gpu.VoltageVolts)
	case MetricGPUFrequencyMHz:
		writeF64(out, gpu.FrequencyMHz)
	case MetricGPUTemperatureC:
		writeF64(out, gpu.TemperatureC)
	case MetricGPUFanSpeedRPM:
		if g.ArrayIndex < tracesource.MaxGPUFans {
			writeF64(out, gpu.FanSpeedRPM[g.ArrayIndex])
		} else {
			writeF64(out, math.NaN())
		}
	case MetricGPUUtilization:
		writeF64(out, gpu.Utilization)
	case MetricGPURenderComputeUtilization:
		writeF64(out, gpu.RenderComputeUtilization)
	case MetricGPUMediaUtilization:
		writeF64(out, gpu.MediaUtilization)
	case MetricGPUMemPowerWatts:
		writeF64(out, gpu.MemPowerWatts)
	case MetricGPUMemVoltageVolts:
		writeF64(out, gpu.MemVoltageVolts)
	case MetricGPUMemFrequencyMHz:
		writeF64(out, gpu.MemFrequencyMHz)
	case MetricGPUMemEffectiveFrequencyGbps:
		writeF64(out, gpu.MemEffectiveFrequencyGbps)
	case MetricGPUMemTemperatureC:
		writeF64(out, gpu.MemTemperatureC)
	case MetricGPUMemUsedBytes:
		binary.LittleEndian.PutUint64(out, gpu.MemUsedBytes)
	case MetricGPUMemWriteBandwidthBps:
		writeF64(out, gpu.MemWriteBandwidthBps)
	case MetricGPUMemReadBandwidthBps:
		writeF64(out, gpu.MemReadBandwidthBps)
	case MetricGPUPowerLimited:
		writeBool(out, gpu.PowerLimited)
	case MetricGPUTemperatureLimited:
		writeBool(out, gpu.TemperatureLimited)
	case MetricGPUCurrentLimited:
		writeBool(out, gpu.CurrentLimited)
	case MetricGPUVoltageLimited:
		writeBool(out, gpu.VoltageLimited)
	case MetricGPUUtilizationLimited:
		writeBool(out, gpu.UtilizationLimited)
	case MetricGPUMemPowerLimited:
		writeBool(out, gpu.MemPowerLimited)
	case MetricGPUMemTemperatureLimited:
		writeBool(out, gpu.MemTemperatureLimited)
	case MetricGPUMemCurrentLimited:
		writeBool(out, gpu.MemCurrentLimited)
	case MetricGPUMemVoltageLimited:
		writeBool(out, gpu.MemVoltageLimited)
	case MetricGPUMemUtilizationLimited:
		writeBool(out, gpu.MemUtilizationLimited)
	case MetricCPUUtilizationPercent:
		writeF64(out, cpu.UtilizationPercent)
	case MetricCPUPowerWatts:
		writeF64(out, cpu.PowerWatts)
	case MetricCPUTemperatureC:
		writeF64(out, cpu.TemperatureC)
	case MetricCPUFrequencyMHz:
		writeF64(out, cpu.FrequencyMHz)
	}
}

func writeBool(out []byte, v bool) {
	out[0] = 0
	if v {
		out[0] = 1
	}
}

// gatherQpcDuration computes the elapsed time, in milliseconds, from a
// raw QPC field on the same present event: 0 if the field is 0, else
// periodMs * field.
func (g *GatherCommand) gatherQpcDuration(ctx *Context) float64 {
	p := &ctx.SourceFrameData.PresentEvent
	switch g.Metric {
	case MetricTimeInPresentMs, MetricCPUWaitMs:
		return g.toMs(p.TimeInPresent, ctx)
	case MetricGPUDurationMs:
		return g.toMs(p.GPUDuration, ctx)
	}
	return math.NaN()
}

// gatherQpcDifference is the generic QpcDifference(start, end, Z, D, N)
// variant: a difference between two raw QPC fields on the same present
// event, gated by per-metric Z/D/N flags. GPU_TIME is the only metric
// routed through it, with Z=0, D=0, N=0: no dropped gate, no
// zero-start gate, and a clamped (not signed) subtraction — end <=
// start writes 0 rather than going negative.
func (g *GatherCommand) gatherQpcDifference(ctx *Context) float64 {
	p := &ctx.SourceFrameData.PresentEvent
	switch g.Metric {
	case MetricGPUTimeMs:
		if p.ReadyTime <= p.GPUStartTime {
			return 0
		}
		return g.toMs(p.ReadyTime-p.GPUStartTime, ctx)
	}
	return math.NaN()
}

// gatherStartDifference computes the elapsed time, in milliseconds,
// between a field on this present and the session anchor QpcStart.
func (g *GatherCommand) gatherStartDifference(ctx *Context) float64 {
	p := &ctx.SourceFrameData.PresentEvent
	if ctx.QpcStart == 0 || p.PresentStartTime < ctx.QpcStart {
		return math.NaN()
	}
	return g.toMs(p.PresentStartTime-ctx.QpcStart, ctx)
}

// gatherCpuFrameQpc reports the raw or millisecond-converted CPU frame
// start timestamp, unconditionally: ctx.CPUStart is itself 0 when no
// neighbour could supply it, which is a valid value to report rather
// than a condition to mask with NaN.
func (g *GatherCommand) gatherCpuFrameQpc(ctx *Context, out []byte) {
	switch g.Metric {
	case MetricCPUStartQpc:
		binary.LittleEndian.PutUint64(out, ctx.CPUStart)
	case MetricCPUStartTimeMs:
		writeF64(out, g.toMs(ctx.CPUStart, ctx))
	}
}

// gatherCpuFrameQpcDifference is the unsigned delta, in milliseconds,
// from the CPU-frame-qpc anchor to this present's own start.
// MetricCPUBusyMs is unconditional; every other metric through this
// variant is gated on ctx.Dropped.
func (g *GatherCommand) gatherCpuFrameQpcDifference(ctx *Context) float64 {
	p := &ctx.SourceFrameData.PresentEvent
	if g.Metric != MetricCPUBusyMs && ctx.Dropped {
		return math.NaN()
	}
	return g.unsignedDeltaMs(ctx.CPUStart, p.PresentStartTime, ctx)
}

// gatherCpuFrameQpcFrameTime is the full CPU frame time: the unsigned
// delta from ctx.cpuStart to this present's start, plus the time the
// present itself spent in flight.
func (g *GatherCommand) gatherCpuFrameQpcFrameTime(ctx *Context) float64 {
	p := &ctx.SourceFrameData.PresentEvent
	return g.unsignedDeltaMs(ctx.CPUStart, p.PresentStartTime, ctx) + g.toMs(p.TimeInPresent, ctx)
}

// gatherGpuWait is the delay between the present becoming ready to
// submit to the GPU and the GPU actually starting work on it, net of
// the GPU's own busy duration, floored at 0.
func (g *GatherCommand) gatherGpuWait(ctx *Context) float64 {
	p := &ctx.SourceFrameData.PresentEvent
	wait := g.unsignedDeltaMs(p.GPUStartTime, p.ReadyTime, ctx) - g.toMs(p.GPUDuration, ctx)
	if wait < 0 {
		return 0
	}
	return wait
}

// gatherDisplayDifference is the on-screen duration of the subframe at
// ctx.DisplayIndex: the gap to the next screen-time, or, on the
// present's last subframe, the gap to the next present's first
// screen-time. A zero-length gap between two distinct, present
// screen-times is itself unmeasurable (not "instant"), so the computed
// delta is NaN'd when it comes out to exactly 0, same as an absent
// input.
func (g *GatherCommand) gatherDisplayDifference(ctx *Context) float64 {
	if ctx.Dropped {
		return math.NaN()
	}
	current := ctx.currentScreenTime()
	next := ctx.nextScreenTime()
	if current == 0 || next == 0 || next < current {
		return math.NaN()
	}
	val := g.toMs(next-current, ctx)
	if val == 0 {
		return math.NaN()
	}
	return val
}

// gatherDisplayLatency is the time from CPU frame start to the
// subframe actually appearing on screen.
func (g *GatherCommand) gatherDisplayLatency(ctx *Context) float64 {
	if ctx.Dropped || ctx.CPUStart == 0 {
		return math.NaN()
	}
	current := ctx.currentScreenTime()
	if current == 0 || current < ctx.CPUStart {
		return math.NaN()
	}
	return g.toMs(current-ctx.CPUStart, ctx)
}

// gatherClickToPhoton is the time from the captured input event to the
// subframe appearing on screen. NaN when no input was captured for
// this present.
func (g *GatherCommand) gatherClickToPhoton(ctx *Context) float64 {
	p := &ctx.SourceFrameData.PresentEvent
	if ctx.Dropped || p.InputTime == 0 {
		return math.NaN()
	}
	current := ctx.currentScreenTime()
	if current == 0 || current < p.InputTime {
		return math.NaN()
	}
	return g.toMs(current-p.InputTime, ctx)
}

// gatherAnimationError is the deviation of this subframe's actual
// cadence from the expected cadence implied by the CPU frame starts:
// (currentScreenTime - PreviousDisplayedQpc) - (CPUStart -
// PreviousDisplayedCpuStartQpc), expressed as a signed delta-of-deltas
// in milliseconds.
//
// previousDisplayedCpuStartQpc == 0 means there is no second prior
// sample to form an expected cadence from; that is a legitimately
// unmeasurable case, reported as 0.0 rather than NaN since the metric
// is an error term and a missing baseline implies no detectable error
// yet.
func (g *GatherCommand) gatherAnimationError(ctx *Context) float64 {
	if ctx.Dropped {
		return math.NaN()
	}
	if ctx.PreviousDisplayedCpuStartQpc == 0 {
		return 0.0
	}
	current := ctx.currentScreenTime()
	if current == 0 || ctx.PreviousDisplayedQpc == 0 || ctx.CPUStart == 0 {
		return math.NaN()
	}
	actualCadence := int64(current) - int64(ctx.PreviousDisplayedQpc)
	expectedCadence := int64(ctx.CPUStart) - int64(ctx.PreviousDisplayedCpuStartQpc)
	return float64(actualCadence-expectedCadence) * ctx.PerformanceCounterPeriodMs
}
