package factcache_test

import (
	"context"
	"errors"
	"testing"

	"claimlens/internal/factcache"
	"claimlens/internal/jobs"
	"claimlens/internal/testsupport"
)

type fakeKV struct {
	entries map[string]factcache.Entry
	gets    int
	puts    int
	failAll bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{entries: make(map[string]factcache.Entry)}
}

func (f *fakeKV) Get(ctx context.Context, key string) (factcache.Entry, bool, error) {
	f.gets++
	if f.failAll {
		return factcache.Entry{}, false, errors.New("kv unavailable")
	}
	entry, ok := f.entries[key]
	return entry, ok, nil
}

func (f *fakeKV) Put(ctx context.Context, key string, entry factcache.Entry) error {
	f.puts++
	if f.failAll {
		return errors.New("kv unavailable")
	}
	f.entries[key] = entry
	return nil
}

func (f *fakeKV) Close() error { return nil }

func TestGetNormalizesKeys(t *testing.T) {
	ctx := context.Background()
	cache := factcache.New(8, nil, nil)

	if err := cache.Put(ctx, "The Earth is round!", jobs.FactCheck{Verdict: jobs.VerdictTrue, Confidence: 0.99}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	variants := []string{
		"the earth is round",
		"  The Earth   is ROUND?  ",
		"The Earth is round.",
	}
	for _, variant := range variants {
		entry, ok := cache.Get(ctx, variant)
		if !ok {
			t.Fatalf("expected hit for %q", variant)
		}
		if entry.Verdict != jobs.VerdictTrue {
			t.Fatalf("unexpected verdict for %q: %s", variant, entry.Verdict)
		}
	}
}

func TestDurableHitPromotesToLRU(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	cache := factcache.New(8, kv, nil)

	if err := kv.Put(ctx, factcache.Key("inflation reached nine percent"), factcache.Entry{Verdict: jobs.VerdictTrue}); err != nil {
		t.Fatalf("seed kv: %v", err)
	}

	if _, ok := cache.Get(ctx, "Inflation reached nine percent"); !ok {
		t.Fatal("expected durable-tier hit")
	}
	getsAfterFirst := kv.gets

	if _, ok := cache.Get(ctx, "Inflation reached nine percent"); !ok {
		t.Fatal("expected LRU hit")
	}
	if kv.gets != getsAfterFirst {
		t.Fatalf("expected second lookup to stay in-process, kv gets went %d -> %d", getsAfterFirst, kv.gets)
	}
}

func TestDurableErrorDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	kv.failAll = true
	cache := factcache.New(8, kv, nil)

	if _, ok := cache.Get(ctx, "anything at all"); ok {
		t.Fatal("expected miss when durable tier errors")
	}
}

func TestPutSkipsDegradedResults(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	cache := factcache.New(8, kv, nil)

	if err := cache.Put(ctx, "unverifiable claim", jobs.FactCheck{
		Verdict:  jobs.VerdictUnverifiable,
		Degraded: true,
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if kv.puts != 0 {
		t.Fatalf("expected no durable write for degraded result, got %d", kv.puts)
	}
	if _, ok := cache.Get(ctx, "unverifiable claim"); ok {
		t.Fatal("expected degraded result to stay uncached")
	}
}

func TestPartition(t *testing.T) {
	ctx := context.Background()
	cache := factcache.New(8, nil, nil)

	if err := cache.Put(ctx, "taxes fell last year", jobs.FactCheck{Verdict: jobs.VerdictFalse}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	claims := []jobs.Claim{
		{ID: "c1", Text: "Taxes fell last year."},
		{ID: "c2", Text: "Unemployment is at a record low."},
		{ID: "c3", Text: "Crime doubled since 2019."},
	}
	hits, misses := cache.Partition(ctx, claims)

	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	entry, ok := hits["c1"]
	if !ok || entry.Verdict != jobs.VerdictFalse {
		t.Fatalf("unexpected hit entry: %#v", hits)
	}
	if len(misses) != 2 || misses[0].ID != "c2" || misses[1].ID != "c3" {
		t.Fatalf("unexpected misses: %#v", misses)
	}

	result := entry.Result("c1")
	if !result.FromCache || result.ClaimID != "c1" || result.Verdict != jobs.VerdictFalse {
		t.Fatalf("unexpected converted result: %#v", result)
	}
}

func TestLRUEviction(t *testing.T) {
	ctx := context.Background()
	cache := factcache.New(2, nil, nil)

	claims := []string{"claim number one", "claim number two", "claim number three"}
	for _, text := range claims {
		if err := cache.Put(ctx, text, jobs.FactCheck{Verdict: jobs.VerdictTrue}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	if cache.Len() != 2 {
		t.Fatalf("expected capacity-bound LRU of 2 entries, got %d", cache.Len())
	}
	if _, ok := cache.Get(ctx, "claim number one"); ok {
		t.Fatal("expected oldest entry evicted")
	}
	if _, ok := cache.Get(ctx, "claim number three"); !ok {
		t.Fatal("expected newest entry retained")
	}
}

func TestSQLiteKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)

	kv, err := factcache.OpenSQLiteKV(cfg)
	if err != nil {
		t.Fatalf("OpenSQLiteKV failed: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	key := factcache.Key("The moon landing happened in 1969.")
	if _, found, err := kv.Get(ctx, key); err != nil || found {
		t.Fatalf("expected clean miss, got found=%v err=%v", found, err)
	}

	entry := factcache.Entry{
		Verdict:    jobs.VerdictTrue,
		Confidence: 0.97,
		Sources:    []jobs.Source{{URL: "https://example.com/apollo11", Title: "Apollo 11", Relevance: 0.95}},
	}
	if err := kv.Put(ctx, key, entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, found, err := kv.Get(ctx, key)
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	if got.Verdict != jobs.VerdictTrue || got.Confidence != 0.97 || len(got.Sources) != 1 {
		t.Fatalf("unexpected entry: %#v", got)
	}

	// Upsert overwrites.
	entry.Verdict = jobs.VerdictMixed
	if err := kv.Put(ctx, key, entry); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	got, _, err = kv.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Verdict != jobs.VerdictMixed {
		t.Fatalf("expected overwrite, got %s", got.Verdict)
	}
}
