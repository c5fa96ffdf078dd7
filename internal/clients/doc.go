// Package clients wraps the external AI services the pipeline depends on:
// transcription, speaker diarization, claim extraction, and claim
// verification.
//
// Each client issues exactly one HTTP call per method and classifies
// failures through the services error markers, so callers can tell transient
// faults (timeouts, 429, 5xx, network errors) from permanent ones (other
// 4xx, malformed payloads). Retry policy lives in the stage executor, not
// here.
//
// Claim extraction and verification speak the OpenAI-compatible chat
// completion protocol with JSON-only responses; transcription and
// diarization speak plain JSON over REST.
package clients
