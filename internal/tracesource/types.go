// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

// Package tracesource models the external tracing source that the
// core consumes: an opaque frame-event record produced by the
// operating system's presentation tracer. The tracing source itself
// (ETW/ftrace capture, GPU/CPU telemetry sampling) is out of scope —
// this package only defines the shape of the data the gather engine
// reads.
package tracesource

// ApplicationNameBytes is the fixed size of the application-name
// buffer in a PresentEvent, matching the 260-byte bound the original
// tracer's CopyGatherCommand_ uses for its char-array fields.
const ApplicationNameBytes = 260

// MaxDisplayedSubframes bounds the per-present displayed-subframe
// arrays (Displayed_ScreenTime, Displayed_FrameType). A present can
// produce more than one displayed frame when the compositor splits a
// single application present across several vblank intervals; this
// bound is generous for any known display configuration.
const MaxDisplayedSubframes = 8

// MaxGPUFans bounds the per-device fan-speed array. GPUFanSpeedRPM is
// addressed by QueryElement.ArrayIndex.
const MaxGPUFans = 5

// PresentResult is the terminal disposition of a present event.
type PresentResult uint32

const (
	PresentResultUnknown PresentResult = iota
	// PresentResultPresented means the frame was actually flipped to
	// the screen. Any other value means the frame was dropped.
	PresentResultPresented
	PresentResultDiscarded
	PresentResultError
)

// PresentEvent carries the fields of a single present captured by the
// tracing source, including the subframe arrays produced when one
// present displays across multiple vblank intervals.
type PresentEvent struct {
	Application      [ApplicationNameBytes]byte
	SwapChainAddress uint64
	PresentMode      int32
	Runtime          int32
	PresentFlags     uint32
	SyncInterval     int32
	SupportsTearing  bool

	PresentStartTime uint64
	TimeInPresent    uint64
	GPUStartTime     uint64
	ReadyTime        uint64
	GPUDuration      uint64
	InputTime        uint64
	FinalState       PresentResult

	// DisplayedCount is the number of valid entries in
	// DisplayedScreenTime/DisplayedFrameType. Zero for a dropped
	// present.
	DisplayedCount      uint32
	DisplayedScreenTime [MaxDisplayedSubframes]uint64
	DisplayedFrameType  [MaxDisplayedSubframes]uint32
}

// GPUTelemetry carries the per-frame GPU power/clock/utilization
// substructure sampled alongside the present event.
type GPUTelemetry struct {
	MemTotalSizeBytes      uint64
	MemMaxBandwidthBps     uint64
	PowerWatts             float64
	VoltageVolts           float64
	FrequencyMHz           float64
	TemperatureC           float64
	FanSpeedRPM            [MaxGPUFans]float64
	Utilization            float64
	RenderComputeUtilization float64
	MediaUtilization       float64
	MemPowerWatts          float64
	MemVoltageVolts        float64
	MemFrequencyMHz        float64
	MemEffectiveFrequencyGbps float64
	MemTemperatureC        float64
	MemUsedBytes           uint64
	MemWriteBandwidthBps   float64
	MemReadBandwidthBps    float64

	PowerLimited          bool
	TemperatureLimited    bool
	CurrentLimited        bool
	VoltageLimited        bool
	UtilizationLimited    bool
	MemPowerLimited       bool
	MemTemperatureLimited bool
	MemCurrentLimited     bool
	MemVoltageLimited     bool
	MemUtilizationLimited bool
}

// CPUTelemetry carries the per-frame CPU power/clock/utilization
// substructure sampled alongside the present event.
type CPUTelemetry struct {
	UtilizationPercent float64
	PowerWatts         float64
	TemperatureC       float64
	FrequencyMHz       float64
}

// FrameData is the opaque per-frame record the gather engine reads
// from. It groups the present event with the device telemetry
// captured at roughly the same instant.
type FrameData struct {
	PresentEvent PresentEvent
	GPU          GPUTelemetry
	CPU          CPUTelemetry
}
