// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package frame

import "github.com/DealsBeam/PresentMon/internal/tracesource"

// MetricID identifies one queryable metric. The numeric values are
// arbitrary (not wire-compatible with any external enumeration); only
// the mapping from MetricID to gather command kind, enumerated in
// metricTable, is load-bearing.
type MetricID uint32

const (
	MetricUnknown MetricID = iota

	// Direct copies out of the present event / telemetry structs.
	MetricApplication
	MetricSwapChainAddress
	MetricPresentMode
	MetricRuntime
	MetricPresentFlags
	MetricSyncInterval
	MetricAllowsTearing
	MetricPresentQpc
	MetricGPUMemTotalSizeBytes
	MetricGPUMemMaxBandwidthBps
	MetricGPUPowerWatts
	MetricGPUVoltageVolts
	MetricGPUFrequencyMHz
	MetricGPUTemperatureC
	MetricGPUFanSpeedRPM
	MetricGPUUtilization
	MetricGPURenderComputeUtilization
	MetricGPUMediaUtilization
	MetricGPUMemPowerWatts
	MetricGPUMemVoltageVolts
	MetricGPUMemFrequencyMHz
	MetricGPUMemEffectiveFrequencyGbps
	MetricGPUMemTemperatureC
	MetricGPUMemUsedBytes
	MetricGPUMemWriteBandwidthBps
	MetricGPUMemReadBandwidthBps
	MetricGPUPowerLimited
	MetricGPUTemperatureLimited
	MetricGPUCurrentLimited
	MetricGPUVoltageLimited
	MetricGPUUtilizationLimited
	MetricGPUMemPowerLimited
	MetricGPUMemTemperatureLimited
	MetricGPUMemCurrentLimited
	MetricGPUMemVoltageLimited
	MetricGPUMemUtilizationLimited
	MetricCPUUtilizationPercent
	MetricCPUPowerWatts
	MetricCPUTemperatureC
	MetricCPUFrequencyMHz

	// Present-event timings in milliseconds: raw QPC duration fields
	// (TimeInPresent, GPUDuration), the GPU wait composite, and the
	// difference between two QPC fields on the same present (GPU_TIME).
	MetricTimeInPresentMs
	MetricGPUDurationMs
	MetricGPUWaitMs
	MetricGPUTimeMs

	// CPU busy/wait: CPU_BUSY is the delta from the CPU frame start
	// (derived from the last-presented neighbour) to this present's
	// start; CPU_WAIT is the raw TimeInPresent duration.
	MetricCPUBusyMs
	MetricCPUWaitMs

	// Start-difference: a field on this present minus QpcStart, the
	// session anchor.
	MetricTimeSinceStartMs

	// CPU-frame-qpc family.
	MetricCPUStartQpc
	MetricCPUStartTimeMs
	MetricCPUFrameQpcDifferenceMs
	MetricCPUFrameQpcFrameTimeMs

	// Display-derived family (multi-display aware).
	MetricDisplayedTimeMs
	MetricDisplayLatencyMs
	MetricClickToPhotonLatencyMs
	MetricAnimationErrorMs

	// Dropped-frame boolean.
	MetricDropped

	metricCount
)

// commandKind identifies which gather command variant implements a
// metric. Kept distinct from MetricID so several metrics can share one
// variant differing only by field selector.
type commandKind int

const (
	kindCopy commandKind = iota
	kindQpcDuration
	kindQpcDifference
	kindStartDifference
	kindCpuFrameQpc
	kindCpuFrameQpcDifference
	kindCpuFrameQpcFrameTime
	kindGpuWait
	kindDisplayDifference
	kindAnimationError
	kindDropped
	kindDisplayLatency
	kindClickToPhoton
)

// metricSpec is the static, per-metric entry of the dispatch table:
// which command variant implements the metric and (where relevant)
// which field of the present/telemetry structs it reads. Every
// queryable metric has exactly one entry here; the Frame Query
// Compiler rejects anything not listed.
type metricSpec struct {
	kind commandKind
	size uint32
	// arrayCapable marks metrics backed by a fixed-size array
	// (GPUFanSpeedRPM, the Displayed_* subframe arrays). For
	// GPUFanSpeedRPM, QueryElement.ArrayIndex selects the element; the
	// displayed-subframe metrics read the Context's display index and
	// ignore ArrayIndex.
	arrayCapable bool
}

// metricTable is the exhaustive metric-to-gather-command mapping. Every
// case mirrors one branch of the original tracer's translation from
// metric enumerant to gather command; unlisted metrics are rejected by
// the compiler as unknown rather than silently defaulting to a zero
// command.
var metricTable = map[MetricID]metricSpec{
	MetricApplication:      {kind: kindCopy, size: tracesource.ApplicationNameBytes},
	MetricSwapChainAddress: {kind: kindCopy, size: 8},
	MetricPresentMode:      {kind: kindCopy, size: 4},
	MetricRuntime:          {kind: kindCopy, size: 4},
	MetricPresentFlags:     {kind: kindCopy, size: 4},
	MetricSyncInterval:     {kind: kindCopy, size: 4},
	MetricAllowsTearing:    {kind: kindCopy, size: 1},
	MetricPresentQpc:       {kind: kindCopy, size: 8},

	MetricGPUMemTotalSizeBytes:  {kind: kindCopy, size: 8},
	MetricGPUMemMaxBandwidthBps: {kind: kindCopy, size: 8},
	MetricGPUPowerWatts:         {kind: kindCopy, size: 8},
	MetricGPUVoltageVolts:       {kind: kindCopy, size: 8},
	MetricGPUFrequencyMHz:       {kind: kindCopy, size: 8},
	MetricGPUTemperatureC:       {kind: kindCopy, size: 8},
	MetricGPUFanSpeedRPM:        {kind: kindCopy, size: 8, arrayCapable: true},

	MetricGPUUtilization:               {kind: kindCopy, size: 8},
	MetricGPURenderComputeUtilization:  {kind: kindCopy, size: 8},
	MetricGPUMediaUtilization:          {kind: kindCopy, size: 8},
	MetricGPUMemPowerWatts:             {kind: kindCopy, size: 8},
	MetricGPUMemVoltageVolts:           {kind: kindCopy, size: 8},
	MetricGPUMemFrequencyMHz:           {kind: kindCopy, size: 8},
	MetricGPUMemEffectiveFrequencyGbps: {kind: kindCopy, size: 8},
	MetricGPUMemTemperatureC:           {kind: kindCopy, size: 8},
	MetricGPUMemUsedBytes:              {kind: kindCopy, size: 8},
	MetricGPUMemWriteBandwidthBps:      {kind: kindCopy, size: 8},
	MetricGPUMemReadBandwidthBps:       {kind: kindCopy, size: 8},

	MetricGPUPowerLimited:             {kind: kindCopy, size: 1},
	MetricGPUTemperatureLimited:       {kind: kindCopy, size: 1},
	MetricGPUCurrentLimited:           {kind: kindCopy, size: 1},
	MetricGPUVoltageLimited:           {kind: kindCopy, size: 1},
	MetricGPUUtilizationLimited:       {kind: kindCopy, size: 1},
	MetricGPUMemPowerLimited:          {kind: kindCopy, size: 1},
	MetricGPUMemTemperatureLimited:    {kind: kindCopy, size: 1},
	MetricGPUMemCurrentLimited:        {kind: kindCopy, size: 1},
	MetricGPUMemVoltageLimited:        {kind: kindCopy, size: 1},
	MetricGPUMemUtilizationLimited:    {kind: kindCopy, size: 1},

	MetricCPUUtilizationPercent: {kind: kindCopy, size: 8},
	MetricCPUPowerWatts:         {kind: kindCopy, size: 8},
	MetricCPUTemperatureC:       {kind: kindCopy, size: 8},
	MetricCPUFrequencyMHz:       {kind: kindCopy, size: 8},

	MetricTimeInPresentMs: {kind: kindQpcDuration, size: 8},
	MetricGPUDurationMs:   {kind: kindQpcDuration, size: 8},
	MetricGPUWaitMs:       {kind: kindGpuWait, size: 8},

	// GPU_TIME: QpcDifference(GPUStartTime, ReadyTime, Z=0, D=0, N=0) —
	// no dropped gate, no zero-start gate, clamped (not signed)
	// subtraction. Distinct from GPU_BUSY (raw GPUDuration) and
	// GPU_WAIT (the same delta net of GPUDuration, floored at 0).
	MetricGPUTimeMs: {kind: kindQpcDifference, size: 8},

	// CPU_BUSY is the CPU-frame-qpc difference to this present's own
	// start (unconditional, never dropped-gated); CPU_WAIT is the raw
	// TimeInPresent duration, the same field MetricTimeInPresentMs
	// reads.
	MetricCPUBusyMs: {kind: kindCpuFrameQpcDifference, size: 8},
	MetricCPUWaitMs: {kind: kindQpcDuration, size: 8},

	MetricTimeSinceStartMs: {kind: kindStartDifference, size: 8},

	MetricCPUStartQpc:             {kind: kindCpuFrameQpc, size: 8},
	MetricCPUStartTimeMs:          {kind: kindCpuFrameQpc, size: 8},
	MetricCPUFrameQpcDifferenceMs: {kind: kindCpuFrameQpcDifference, size: 8},
	MetricCPUFrameQpcFrameTimeMs:  {kind: kindCpuFrameQpcFrameTime, size: 8},

	MetricDisplayedTimeMs:        {kind: kindDisplayDifference, size: 8, arrayCapable: true},
	MetricDisplayLatencyMs:       {kind: kindDisplayLatency, size: 8, arrayCapable: true},
	MetricClickToPhotonLatencyMs: {kind: kindClickToPhoton, size: 8, arrayCapable: true},
	MetricAnimationErrorMs:       {kind: kindAnimationError, size: 8, arrayCapable: true},

	MetricDropped: {kind: kindDropped, size: 1},
}
