package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"claimlens/internal/config"
	"claimlens/internal/events"
	"claimlens/internal/factcache"
	"claimlens/internal/jobs"
	"claimlens/internal/logging"
	"claimlens/internal/testsupport"
)

type pipelineEnv struct {
	cfg   *config.Config
	store *jobs.Store
	hub   *events.Hub
	cache *factcache.Cache
	pipe  *Pipeline
}

func newPipelineEnv(t *testing.T, cfg *config.Config) *pipelineEnv {
	t.Helper()
	cfg.Stages.RetryMaxAttempts = 2
	cfg.Stages.RetryBaseDelayMillis = 1
	cfg.Stages.RetryMaxDelayMillis = 2
	cfg.Cache.VerifyBatchDelayMillis = 1

	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(0)
	cache, err := factcache.FromConfig(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	return &pipelineEnv{
		cfg:   cfg,
		store: store,
		hub:   hub,
		cache: cache,
		pipe:  New(cfg, store, cache, hub, logging.NewNop()),
	}
}

func (e *pipelineEnv) claimJob(t *testing.T, sourceRef string) *jobs.Job {
	t.Helper()
	ctx := context.Background()
	if _, err := e.store.NewJob(ctx, sourceRef, 0); err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	job, err := e.store.ClaimNextQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimed job")
	}
	return job
}

func newAdapterServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

// writeChatContent wraps a model payload in the chat completion envelope.
func writeChatContent(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	writeJSON(t, w, map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
}

// chatUserContent extracts the user message from a chat completion request.
func chatUserContent(t *testing.T, r *http.Request) string {
	t.Helper()
	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("decode chat request: %v", err)
		return ""
	}
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			return msg.Content
		}
	}
	return ""
}

func stubTranscribe(t *testing.T, cfg *config.Config) {
	srv := newAdapterServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"language": "en",
			"duration": 12.5,
			"segments": []map[string]any{
				{"start": 0.0, "end": 6.0, "text": "The earth is round."},
				{"start": 6.0, "end": 12.5, "text": "Water boils at ninety degrees."},
			},
		})
	})
	cfg.Transcribe.BaseURL = srv.URL
}

func stubDiarize(t *testing.T, cfg *config.Config) {
	srv := newAdapterServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"segments": []map[string]any{
				{"index": 0, "speaker": "HOST"},
				{"index": 1, "speaker": "GUEST"},
			},
		})
	})
	cfg.Diarize.BaseURL = srv.URL
}

func stubClaims(t *testing.T, cfg *config.Config) {
	srv := newAdapterServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChatContent(t, w, `{"claims":[
			{"text":"The earth is round","segment_index":0,"confidence":0.95},
			{"text":"Water boils at 90 degrees Celsius","segment_index":1,"confidence":0.9}
		]}`)
	})
	cfg.Claims.BaseURL = srv.URL
	cfg.Claims.APIKey = "test-key"
	cfg.Claims.Model = "test-model"
}

func stubVerify(t *testing.T, cfg *config.Config, calls *atomic.Int64) {
	srv := newAdapterServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		claim := chatUserContent(t, r)
		verdict := "true"
		if claim == "Water boils at 90 degrees Celsius" {
			verdict = "false"
		}
		writeChatContent(t, w, fmt.Sprintf(
			`{"verdict":%q,"confidence":0.85,"explanation":"checked","sources":[{"url":"https://example.org/ref","title":"Reference","relevance":0.8}]}`, verdict))
	})
	cfg.Verify.BaseURL = srv.URL
	cfg.Verify.APIKey = "test-key"
	cfg.Verify.Model = "test-model"
}

func stubAllAdapters(t *testing.T, cfg *config.Config, verifyCalls *atomic.Int64) {
	stubTranscribe(t, cfg)
	stubDiarize(t, cfg)
	stubClaims(t, cfg)
	stubVerify(t, cfg, verifyCalls)
}

func collectEvents(sub *events.Subscription) []events.Event {
	var got []events.Event
	for evt := range sub.C {
		got = append(got, evt)
	}
	return got
}

func hasEventKind(got []events.Event, kind events.Kind) bool {
	for _, evt := range got {
		if evt.Kind == kind {
			return true
		}
	}
	return false
}

func TestProcessCompletesJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stubAllAdapters(t, cfg, nil)
	env := newPipelineEnv(t, cfg)

	job := env.claimJob(t, "https://example.org/episode.mp3")
	sub := env.hub.Subscribe(job.ID, 128)

	if err := env.pipe.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}

	final, err := env.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.ErrorMessage)
	}
	if final.ProgressPercent != 100 {
		t.Fatalf("expected progress 100, got %.1f", final.ProgressPercent)
	}
	if final.FinishedAt == nil {
		t.Fatal("expected finished timestamp")
	}

	segments, err := final.SegmentList()
	if err != nil {
		t.Fatalf("SegmentList: %v", err)
	}
	if len(segments) != 2 || segments[0].Speaker != "HOST" || segments[1].Speaker != "GUEST" {
		t.Fatalf("unexpected segments: %+v", segments)
	}

	claims, err := final.ClaimList()
	if err != nil {
		t.Fatalf("ClaimList: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(claims))
	}

	results, err := final.ResultList()
	if err != nil {
		t.Fatalf("ResultList: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, result := range results {
		if result.ClaimID != claims[i].ID {
			t.Fatalf("result %d claim id %q does not match claim %q", i, result.ClaimID, claims[i].ID)
		}
		if result.Degraded || result.FromCache {
			t.Fatalf("unexpected degraded/cached flags on %+v", result)
		}
	}
	if results[0].Verdict != jobs.VerdictTrue || results[1].Verdict != jobs.VerdictFalse {
		t.Fatalf("unexpected verdicts: %s / %s", results[0].Verdict, results[1].Verdict)
	}

	got := collectEvents(sub)
	if !hasEventKind(got, events.KindJobCompleted) {
		t.Fatal("expected job_completed event")
	}
	if !hasEventKind(got, events.KindClaimDetected) {
		t.Fatal("expected claim_detected events")
	}
	if !hasEventKind(got, events.KindFactCheckResult) {
		t.Fatal("expected fact_check_result events")
	}
	stageCompletions := 0
	lastPercent := -1.0
	for _, evt := range got {
		if evt.Kind == events.KindStageCompleted {
			stageCompletions++
		}
		switch evt.Kind {
		case events.KindStageStarted, events.KindStageProgress, events.KindStageCompleted, events.KindJobCompleted:
			if evt.Percent < lastPercent {
				t.Fatalf("progress moved backward: %.1f after %.1f (%s)", evt.Percent, lastPercent, evt.Kind)
			}
			lastPercent = evt.Percent
		}
	}
	if stageCompletions != 4 {
		t.Fatalf("expected 4 stage completions, got %d", stageCompletions)
	}
}

func TestDiarizationFailureDegradesAndContinues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stubAllAdapters(t, cfg, nil)
	srv := newAdapterServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "diarization backend down", http.StatusInternalServerError)
	})
	cfg.Diarize.BaseURL = srv.URL
	env := newPipelineEnv(t, cfg)

	job := env.claimJob(t, "https://example.org/episode.mp3")
	sub := env.hub.Subscribe(job.ID, 128)

	if err := env.pipe.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}

	final, err := env.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.ErrorMessage)
	}
	degraded, err := final.DegradedStages()
	if err != nil {
		t.Fatalf("DegradedStages: %v", err)
	}
	if _, ok := degraded["diarize"]; !ok {
		t.Fatalf("expected diarize in degraded stages, got %v", degraded)
	}
	segments, err := final.SegmentList()
	if err != nil {
		t.Fatalf("SegmentList: %v", err)
	}
	for _, segment := range segments {
		if segment.Speaker != "" {
			t.Fatalf("expected unlabeled segments, got %+v", segment)
		}
	}
	got := collectEvents(sub)
	if !hasEventKind(got, events.KindStageDegraded) {
		t.Fatal("expected stage_degraded event")
	}
	if !hasEventKind(got, events.KindJobCompleted) {
		t.Fatal("expected job_completed event")
	}
}

func TestDiarizationFatalFailsJob(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDiarizationFatal())
	stubAllAdapters(t, cfg, nil)
	srv := newAdapterServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "diarization backend down", http.StatusInternalServerError)
	})
	cfg.Diarize.BaseURL = srv.URL
	env := newPipelineEnv(t, cfg)

	job := env.claimJob(t, "https://example.org/episode.mp3")
	sub := env.hub.Subscribe(job.ID, 128)

	if err := env.pipe.Process(context.Background(), job); err == nil {
		t.Fatal("expected Process to report the failure")
	}

	final, err := env.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.ErrorMessage == "" {
		t.Fatal("expected an error message")
	}
	if !hasEventKind(collectEvents(sub), events.KindJobFailed) {
		t.Fatal("expected job_failed event")
	}
}

func TestTranscriptionFailureFailsJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var claimCalls atomic.Int64
	stubAllAdapters(t, cfg, nil)
	transcribeSrv := newAdapterServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported media format", http.StatusUnprocessableEntity)
	})
	cfg.Transcribe.BaseURL = transcribeSrv.URL
	claimsSrv := newAdapterServer(t, func(w http.ResponseWriter, r *http.Request) {
		claimCalls.Add(1)
		writeChatContent(t, w, `{"claims":[]}`)
	})
	cfg.Claims.BaseURL = claimsSrv.URL
	env := newPipelineEnv(t, cfg)

	job := env.claimJob(t, "https://example.org/episode.mp3")
	if err := env.pipe.Process(context.Background(), job); err == nil {
		t.Fatal("expected Process to report the failure")
	}

	final, err := env.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if claimCalls.Load() != 0 {
		t.Fatalf("claim extraction should not run after transcription failure, saw %d calls", claimCalls.Load())
	}
}

func TestVerificationFailureDegradesClaimsNotJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stubAllAdapters(t, cfg, nil)
	srv := newAdapterServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "verification backend down", http.StatusInternalServerError)
	})
	cfg.Verify.BaseURL = srv.URL
	cfg.Verify.APIKey = "test-key"
	env := newPipelineEnv(t, cfg)

	job := env.claimJob(t, "https://example.org/episode.mp3")
	if err := env.pipe.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}

	final, err := env.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.ErrorMessage)
	}
	results, err := final.ResultList()
	if err != nil {
		t.Fatalf("ResultList: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, result := range results {
		if result.Verdict != jobs.VerdictUnverifiable || !result.Degraded {
			t.Fatalf("expected degraded unverifiable result, got %+v", result)
		}
	}
	if env.cache.Len() != 0 {
		t.Fatalf("degraded results must not be cached, cache holds %d entries", env.cache.Len())
	}
}

func TestCachedVerdictsSkipVerificationCalls(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var verifyCalls atomic.Int64
	stubAllAdapters(t, cfg, &verifyCalls)
	env := newPipelineEnv(t, cfg)

	first := env.claimJob(t, "https://example.org/episode-1.mp3")
	if err := env.pipe.Process(context.Background(), first); err != nil {
		t.Fatalf("Process first: %v", err)
	}
	callsAfterFirst := verifyCalls.Load()
	if callsAfterFirst == 0 {
		t.Fatal("expected verification calls for the first job")
	}

	second := env.claimJob(t, "https://example.org/episode-2.mp3")
	if err := env.pipe.Process(context.Background(), second); err != nil {
		t.Fatalf("Process second: %v", err)
	}
	if verifyCalls.Load() != callsAfterFirst {
		t.Fatalf("expected no new verification calls, went from %d to %d", callsAfterFirst, verifyCalls.Load())
	}

	final, err := env.store.GetByID(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	results, err := final.ResultList()
	if err != nil {
		t.Fatalf("ResultList: %v", err)
	}
	for _, result := range results {
		if !result.FromCache {
			t.Fatalf("expected cached result, got %+v", result)
		}
	}
}

func TestNonFactClaimsSkipVerification(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var verifyCalls atomic.Int64
	stubAllAdapters(t, cfg, &verifyCalls)
	srv := newAdapterServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChatContent(t, w, `{"claims":[
			{"text":"The earth is round","segment_index":0,"category":"fact","confidence":0.95},
			{"text":"The earth is the prettiest planet","segment_index":0,"category":"opinion","confidence":0.9},
			{"text":"Sea levels will rise a meter by 2100","segment_index":1,"category":"prediction","confidence":0.85}
		]}`)
	})
	cfg.Claims.BaseURL = srv.URL
	cfg.Claims.APIKey = "test-key"
	env := newPipelineEnv(t, cfg)

	job := env.claimJob(t, "https://example.org/episode.mp3")
	if err := env.pipe.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}

	final, err := env.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.ErrorMessage)
	}
	claims, err := final.ClaimList()
	if err != nil {
		t.Fatalf("ClaimList: %v", err)
	}
	if len(claims) != 3 {
		t.Fatalf("expected all 3 claims carried, got %d", len(claims))
	}
	results, err := final.ResultList()
	if err != nil {
		t.Fatalf("ResultList: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected only the fact verified, got %d results", len(results))
	}
	if results[0].ClaimID != claims[0].ID {
		t.Fatalf("verdict attached to %q, want %q", results[0].ClaimID, claims[0].ID)
	}
	if verifyCalls.Load() != 1 {
		t.Fatalf("expected 1 verification call, got %d", verifyCalls.Load())
	}
}

func TestCancelHonoredAtStageBoundary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stubAllAdapters(t, cfg, nil)
	env := newPipelineEnv(t, cfg)

	job := env.claimJob(t, "https://example.org/episode.mp3")

	// Request the cancel mid-transcription; it should take effect before the
	// diarization stage starts.
	transcribeSrv := newAdapterServer(t, func(w http.ResponseWriter, r *http.Request) {
		if _, err := env.store.RequestCancel(context.Background(), job.ID); err != nil {
			t.Errorf("RequestCancel: %v", err)
		}
		writeJSON(t, w, map[string]any{
			"language": "en",
			"segments": []map[string]any{{"start": 0.0, "end": 1.0, "text": "hello"}},
		})
	})
	cfg.Transcribe.BaseURL = transcribeSrv.URL
	env.pipe = New(cfg, env.store, env.cache, env.hub, logging.NewNop())

	sub := env.hub.Subscribe(job.ID, 128)
	if err := env.pipe.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}

	final, err := env.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != jobs.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", final.Status)
	}
	if final.ErrorMessage != jobs.UserCancelReason {
		t.Fatalf("unexpected cancel reason %q", final.ErrorMessage)
	}
	if !hasEventKind(collectEvents(sub), events.KindJobCancelled) {
		t.Fatal("expected job_cancelled event")
	}
}

func TestNoClaimsCompletesWithEmptyResults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var verifyCalls atomic.Int64
	stubAllAdapters(t, cfg, &verifyCalls)
	claimsSrv := newAdapterServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeChatContent(t, w, `{"claims":[]}`)
	})
	cfg.Claims.BaseURL = claimsSrv.URL
	env := newPipelineEnv(t, cfg)

	job := env.claimJob(t, "https://example.org/episode.mp3")
	if err := env.pipe.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}

	final, err := env.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.ErrorMessage)
	}
	results, err := final.ResultList()
	if err != nil {
		t.Fatalf("ResultList: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
	if verifyCalls.Load() != 0 {
		t.Fatalf("expected no verification calls, saw %d", verifyCalls.Load())
	}
}

func TestHealthReportsEveryStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stubAllAdapters(t, cfg, nil)
	healthSrv := newAdapterServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"status": "ok"})
	})
	cfg.Transcribe.BaseURL = healthSrv.URL
	cfg.Diarize.BaseURL = healthSrv.URL
	env := newPipelineEnv(t, cfg)

	health := env.pipe.Health(context.Background())
	for _, name := range []string{"transcribe", "diarize", "extract_claims", "fact_check"} {
		if _, ok := health[name]; !ok {
			t.Fatalf("missing health entry for %s", name)
		}
	}
	if !health["transcribe"].Ready {
		t.Fatalf("expected transcribe ready, got %+v", health["transcribe"])
	}
}
