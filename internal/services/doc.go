// Package services defines shared utilities consumed by the pipeline stages
// and external adapter clients.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - The error taxonomy (transient, permanent, capacity, not-found,
//     cancelled) plus the Wrap helper that tags failures so the state machine
//     can apply the correct degrade-or-abort policy.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
