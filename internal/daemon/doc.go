// Package daemon coordinates the long-running ClaimLens process.
//
// It wires configuration, the job store, the result cache, the event hub, the
// fact-check pipeline, and the scheduler into a single lifecycle with
// flock-based locking to prevent multiple instances. The daemon exposes the
// queue maintenance and diagnostic operations the IPC control plane serves.
//
// Keep orchestration logic here: individual pipeline stages should live in
// their respective packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
