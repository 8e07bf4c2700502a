// Package silence implements energy-based silence detection and chunk
// assembly for audio splitting.
//
// Detector computes RMS energy over sliding frames of a bounded window and
// reports intervals whose energy stays below a threshold. Assembler merges
// intervals across window boundaries and derives the non-silent chunk spans
// between them. Both are pure, synchronous transforms: memory use depends
// only on the window size, never on total file duration.
package silence
