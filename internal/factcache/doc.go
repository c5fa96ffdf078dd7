// Package factcache stores fact-check verdicts keyed by normalized claim
// text so identical claims are verified once across jobs.
//
// Lookups consult two tiers: a bounded in-process LRU for the fast path and
// an optional durable key-value tier (SQLite by default, Redis when
// configured) that survives restarts. Durable hits are promoted into the
// LRU. Degraded verdicts are never cached; a claim that could not be
// verified this time should be retried on its next appearance.
package factcache
