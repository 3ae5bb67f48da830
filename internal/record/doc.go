// Package record is the engine's history sink: every state transition,
// notification event, and remediation attempt is appended here. Recording
// is fire-and-forget: writes go through a buffered background writer, and
// a failed or backlogged write is logged and counted, never surfaced to the
// alert pipeline.
package record
