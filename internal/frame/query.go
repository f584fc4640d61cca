// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package frame

import (
	"fmt"
	"log/slog"
)

// blobAlignment is the final padding boundary every compiled blob size
// is rounded up to, so that a blob can be reinterpreted as an array of
// itself (e.g. batched into a ring buffer) without straddling a cache
// line on common architectures.
const blobAlignment = 16

// QueryElement is one requested metric in a client's query, as
// received over the control channel. DeviceID, when non-zero, names
// the physical device a device-scoped metric (GPU_*, CPU_*) should
// read from. A query may name at most one distinct non-zero DeviceID
// across all of its elements — the query's "referenced device" — since
// the tracing source is only ever scoped to a single device at a time;
// mixing two different non-zero device ids in one query is rejected.
//
// DataOffset and DataSize are zero on input and filled in by Compile;
// the client uses them to decode the blob it receives back.
type QueryElement struct {
	Metric     MetricID
	DeviceID   uint32
	ArrayIndex uint32

	DataOffset uint32
	DataSize   uint32
}

// FrameQuery is a compiled, ready-to-run set of gather commands plus
// the total blob size they write into. ReferencedDevice is the single
// non-zero device id named across the query's elements, or nil if
// every element left DeviceID unset.
type FrameQuery struct {
	Commands         []GatherCommand
	BlobSize         uint32
	ReferencedDevice *uint32
}

// Compile validates elements and produces a FrameQuery. elements is
// mutated in place: each element's DataOffset/DataSize fields are
// backfilled so the caller can give them back to the client describing
// where to find each metric in the gathered blob.
//
// An element naming an unrecognized MetricID is dropped from the
// compiled command list (its DataSize is left at 0, signalling to the
// client that no data will appear for it) and logged at Warn, rather
// than failing the whole query: one client's bad metric id should not
// prevent the rest of the query from running.
func Compile(logger *slog.Logger, elements []QueryElement) (*FrameQuery, error) {
	commands := make([]GatherCommand, 0, len(elements))
	var offset uint32
	var referencedDevice *uint32

	for i := range elements {
		el := &elements[i]

		if el.DeviceID != 0 {
			if referencedDevice == nil {
				referencedDevice = &el.DeviceID
			} else if *referencedDevice != el.DeviceID {
				return nil, &DuplicateDeviceError{Metric: el.Metric, DeviceID: el.DeviceID}
			}
		}

		spec, ok := metricTable[el.Metric]
		if !ok {
			logger.Warn("unknown metric requested", "metric", el.Metric)
			el.DataOffset = 0
			el.DataSize = 0
			continue
		}

		align := alignmentFor(spec.size)
		offset += padding(offset, align)

		el.DataOffset = offset
		el.DataSize = spec.size

		commands = append(commands, GatherCommand{
			Kind:       spec.kind,
			Metric:     el.Metric,
			DataOffset: offset,
			DataSize:   spec.size,
			ArrayIndex: el.ArrayIndex,
		})

		offset += spec.size
	}

	offset += padding(offset, blobAlignment)

	return &FrameQuery{Commands: commands, BlobSize: offset, ReferencedDevice: referencedDevice}, nil
}

func alignmentFor(size uint32) uint32 {
	switch size {
	case 1:
		return alignByte
	case 4:
		return alignUint32
	case 8:
		return alignUint64
	default:
		// Variable-length copies (e.g. the application name buffer)
		// carry no stronger alignment requirement than a byte.
		return alignByte
	}
}

// DuplicateDeviceError is returned by Compile when a query's elements
// name more than one distinct non-zero device id.
type DuplicateDeviceError struct {
	Metric   MetricID
	DeviceID uint32
}

func (e *DuplicateDeviceError) Error() string {
	return fmt.Sprintf("metric %d requests device %d, conflicting with the query's referenced device", e.Metric, e.DeviceID)
}
