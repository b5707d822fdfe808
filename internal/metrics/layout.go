// Package metrics decodes the fixed-size binary metrics record written by the
// agent's sampler.
package metrics

// The record is twelve little-endian IEEE-754 float64 values. Offsets are in
// bytes. Layout v2 retired the GPU fields; their slots are kept so v1
// writers still decode.
const (
	RecordSize = 96

	offsetTimestamp   = 0
	offsetSystemCPU   = 8
	offsetSystemRAM   = 16
	offsetDisk        = 24
	offsetPrimaryCPU  = 32
	offsetPrimaryRAM  = 40
	offsetWorkerCPU   = 48
	offsetWorkerRAM   = 56
	offsetHelperCPU   = 64
	offsetHelperRAM   = 72
	offsetReservedGPU = 80
	offsetReservedMem = 88
)
