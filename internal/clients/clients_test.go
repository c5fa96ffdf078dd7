package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"claimlens/internal/config"
	"claimlens/internal/jobs"
	"claimlens/internal/services"
)

func adapterFor(server *httptest.Server) config.Adapter {
	return config.Adapter{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	}
}

func chatContent(t *testing.T, content string) []byte {
	t.Helper()
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal chat payload: %v", err)
	}
	return encoded
}

func TestTranscribeParsesSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transcribe" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req struct {
			SourceRef string `json:"source_ref"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.SourceRef != "clip.mp4" {
			t.Errorf("unexpected source ref %q", req.SourceRef)
		}
		_, _ = w.Write([]byte(`{
			"language": "en",
			"duration": 8.2,
			"segments": [
				{"start": 0, "end": 4.1, "text": "Taxes fell last year."},
				{"start": 4.1, "end": 8.2, "text": "  "},
				{"start": 4.1, "end": 8.2, "text": "Unemployment is at a record low."}
			]
		}`))
	}))
	defer server.Close()

	client := NewTranscribeClient(adapterFor(server))
	transcript, err := client.Transcribe(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if transcript.Language != "en" || transcript.Duration != 8.2 {
		t.Fatalf("unexpected transcript metadata: %#v", transcript)
	}
	if len(transcript.Segments) != 2 {
		t.Fatalf("expected 2 segments (blank dropped), got %d", len(transcript.Segments))
	}
	if transcript.Segments[1].Text != "Unemployment is at a record low." {
		t.Fatalf("unexpected segment: %#v", transcript.Segments[1])
	}
}

func TestTranscribeNoSpeechIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"language":"en","segments":[]}`))
	}))
	defer server.Close()

	client := NewTranscribeClient(adapterFor(server))
	_, err := client.Transcribe(context.Background(), "silent.mp4")
	if err == nil {
		t.Fatal("expected error for empty transcript")
	}
	if services.Classify(err) != services.KindPermanent {
		t.Fatalf("expected permanent classification, got %s", services.Classify(err))
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewTranscribeClient(adapterFor(server))
	_, err := client.Transcribe(context.Background(), "clip.mp4")
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if !services.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestClientRejectionIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported media format", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewTranscribeClient(adapterFor(server))
	_, err := client.Transcribe(context.Background(), "clip.bin")
	if err == nil {
		t.Fatal("expected error for 422")
	}
	if services.IsRetryable(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestRetryAfterHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewTranscribeClient(adapterFor(server))
	_, err := client.Transcribe(context.Background(), "clip.mp4")
	if err == nil {
		t.Fatal("expected error for 429")
	}
	if !services.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	hint, ok := RetryAfterHint(err)
	if !ok || hint != 7*time.Second {
		t.Fatalf("expected 7s retry hint, got (%v, %v)", hint, ok)
	}
}

func TestDiarizeMergesSpeakers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/diarize" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"segments":[{"index":0,"speaker":"SPEAKER_00"},{"index":2,"speaker":"SPEAKER_01"}]}`))
	}))
	defer server.Close()

	segments := []jobs.Segment{
		{Index: 0, Text: "Hello."},
		{Index: 1, Text: "Welcome back."},
		{Index: 2, Text: "Thanks for having me."},
	}

	client := NewDiarizeClient(adapterFor(server))
	got, err := client.Diarize(context.Background(), "clip.mp4", segments)
	if err != nil {
		t.Fatalf("Diarize failed: %v", err)
	}
	if got[0].Speaker != "SPEAKER_00" || got[2].Speaker != "SPEAKER_01" {
		t.Fatalf("unexpected speakers: %#v", got)
	}
	if got[1].Speaker != "" {
		t.Fatalf("expected unlabeled segment to stay empty, got %q", got[1].Speaker)
	}
	// Input slice must not be mutated.
	if segments[0].Speaker != "" {
		t.Fatal("input segments mutated")
	}
}

func TestClaimsExtract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		content := "```json\n{\"claims\":[" +
			"{\"text\":\"Taxes fell last year.\",\"segment_index\":1,\"category\":\"fact\",\"confidence\":0.95}," +
			"{\"text\":\"   \",\"segment_index\":0,\"confidence\":0.5}," +
			"{\"text\":\"Taxes will fall again next year.\",\"segment_index\":1,\"category\":\"prediction\",\"confidence\":0.8}" +
			"]}\n```"
		_, _ = w.Write(chatContent(t, content))
	}))
	defer server.Close()

	segments := []jobs.Segment{
		{Index: 0, Speaker: "HOST", Text: "Welcome back."},
		{Index: 1, Speaker: "GUEST", Text: "Taxes fell last year."},
	}

	client := NewClaimsClient(adapterFor(server))
	claims, err := client.Extract(context.Background(), "job-1", segments)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("expected 2 claims (blank dropped), got %d", len(claims))
	}
	claim := claims[0]
	if claim.ID != "job-1-c1" {
		t.Fatalf("unexpected claim id %q", claim.ID)
	}
	if claim.Normalized != "taxes fell last year" {
		t.Fatalf("unexpected normalized text %q", claim.Normalized)
	}
	if claim.Speaker != "GUEST" {
		t.Fatalf("expected speaker resolved from segment, got %q", claim.Speaker)
	}
	if claim.Category != jobs.CategoryFact {
		t.Fatalf("unexpected category %q", claim.Category)
	}
	if claims[1].Category != jobs.CategoryPrediction {
		t.Fatalf("expected prediction carried with its category, got %q", claims[1].Category)
	}
}

func TestClaimsExtractDropsNearDuplicates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"claims":[
			{"text":"Unemployment hit a record low in March.","segment_index":0,"confidence":0.9},
			{"text":"unemployment hit a RECORD low in March!","segment_index":1,"confidence":0.8},
			{"text":"In March, unemployment hit a record low.","segment_index":2,"confidence":0.7},
			{"text":"Inflation doubled over two years.","segment_index":3,"confidence":0.9}
		]}`
		_, _ = w.Write(chatContent(t, content))
	}))
	defer server.Close()

	segments := []jobs.Segment{
		{Index: 0, Text: "a"}, {Index: 1, Text: "b"},
		{Index: 2, Text: "c"}, {Index: 3, Text: "d"},
	}

	client := NewClaimsClient(adapterFor(server))
	claims, err := client.Extract(context.Background(), "job-1", segments)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("expected 2 claims after dedup, got %d: %#v", len(claims), claims)
	}
	if claims[0].SegmentIndex != 0 {
		t.Fatalf("expected first occurrence kept, got %#v", claims[0])
	}
	if claims[1].Text != "Inflation doubled over two years." {
		t.Fatalf("unexpected surviving claim: %#v", claims[1])
	}
}

func TestClaimsExtractNoClaims(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatContent(t, `{"claims":[]}`))
	}))
	defer server.Close()

	client := NewClaimsClient(adapterFor(server))
	claims, err := client.Extract(context.Background(), "job-1", []jobs.Segment{{Index: 0, Text: "So how was your weekend?"}})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(claims) != 0 {
		t.Fatalf("expected no claims, got %#v", claims)
	}
}

func TestVerifyParsesVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatContent(t, `{"verdict":"False","confidence":1.4,"explanation":"Taxes rose.","sources":[{"url":"https://example.com/data","title":"Tax tables","relevance":0.9},{"url":"  "}]}`))
	}))
	defer server.Close()

	client := NewVerifyClient(adapterFor(server))
	result, err := client.Verify(context.Background(), jobs.Claim{ID: "c1", Text: "Taxes fell last year."})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.ClaimID != "c1" || result.Verdict != jobs.VerdictFalse {
		t.Fatalf("unexpected result: %#v", result)
	}
	if result.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", result.Confidence)
	}
	if len(result.Sources) != 1 {
		t.Fatalf("expected source without a URL dropped, got %#v", result.Sources)
	}
	if result.Sources[0].URL != "https://example.com/data" || result.Sources[0].Title != "Tax tables" || result.Sources[0].Relevance != 0.9 {
		t.Fatalf("unexpected source: %#v", result.Sources[0])
	}
}

func TestVerifyMixedVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatContent(t, `{"verdict":"mixed","confidence":0.7,"explanation":"Partly accurate."}`))
	}))
	defer server.Close()

	client := NewVerifyClient(adapterFor(server))
	result, err := client.Verify(context.Background(), jobs.Claim{ID: "c1", Text: "Inflation rose last year."})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Verdict != jobs.VerdictMixed {
		t.Fatalf("expected mixed, got %s", result.Verdict)
	}
}

func TestVerifyUnknownVerdictMapsToUnverifiable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatContent(t, `{"verdict":"mostly-true","confidence":0.6}`))
	}))
	defer server.Close()

	client := NewVerifyClient(adapterFor(server))
	result, err := client.Verify(context.Background(), jobs.Claim{ID: "c1", Text: "Some claim."})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Verdict != jobs.VerdictUnverifiable {
		t.Fatalf("expected unverifiable, got %s", result.Verdict)
	}
}

func TestEmptyCompletionIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer server.Close()

	client := NewVerifyClient(adapterFor(server))
	_, err := client.Verify(context.Background(), jobs.Claim{ID: "c1", Text: "Some claim."})
	if err == nil {
		t.Fatal("expected error for empty content")
	}
	if !services.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestDecodeModelJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"plain object", `{"ok":true}`, false},
		{"code fenced", "```json\n{\"ok\":true}\n```", false},
		{"prose wrapped", `Here is the result: {"ok":true} as requested.`, false},
		{"empty", "", true},
		{"not json", "I cannot answer that.", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var target struct {
				OK bool `json:"ok"`
			}
			err := DecodeModelJSON(tt.content, &target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeModelJSON(%q) error = %v, wantErr %v", tt.content, err, tt.wantErr)
			}
			if err == nil && !target.OK {
				t.Fatalf("DecodeModelJSON(%q) did not populate target", tt.content)
			}
		})
	}
}
