// Package textutil provides text processing utilities for claim
// normalization and near-duplicate detection.
//
// The primary use cases are:
//   - Producing the canonical form of a claim sentence for cache keying
//   - Creating token-based fingerprints from claim text for comparison
//   - Computing cosine similarity between fingerprints to drop duplicates
//
// Fingerprints use term frequency vectors normalized for efficient comparison.
// The tokenization process case-folds text, splits on non-alphanumeric
// characters, and filters tokens shorter than 3 characters.
package textutil
