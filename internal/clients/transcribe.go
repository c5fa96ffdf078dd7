package clients

import (
	"context"
	"strings"

	"claimlens/internal/config"
	"claimlens/internal/jobs"
	"claimlens/internal/services"
)

// TranscribeClient talks to the speech-to-text service.
type TranscribeClient struct {
	core httpCore
}

// NewTranscribeClient constructs a transcription client.
func NewTranscribeClient(cfg config.Adapter, opts ...Option) *TranscribeClient {
	return &TranscribeClient{core: newHTTPCore(cfg, "transcribe", opts...)}
}

type transcribeRequest struct {
	SourceRef string `json:"source_ref"`
}

type transcribeResponse struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe converts the referenced media into a transcript. An empty
// transcript is a permanent failure: there is nothing downstream to check.
func (c *TranscribeClient) Transcribe(ctx context.Context, sourceRef string) (jobs.Transcript, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return jobs.Transcript{}, services.Wrap(services.ErrPermanent, "transcribe", "transcribe", "source ref required", nil)
	}

	var resp transcribeResponse
	if err := c.core.postJSON(ctx, "/v1/transcribe", "transcribe", transcribeRequest{SourceRef: sourceRef}, &resp); err != nil {
		return jobs.Transcript{}, err
	}

	transcript := jobs.Transcript{
		Language: strings.TrimSpace(resp.Language),
		Duration: resp.Duration,
	}
	for i, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		transcript.Segments = append(transcript.Segments, jobs.Segment{
			Index: i,
			Start: seg.Start,
			End:   seg.End,
			Text:  text,
		})
	}
	if len(transcript.Segments) == 0 {
		return jobs.Transcript{}, services.Wrap(services.ErrPermanent, "transcribe", "transcribe", "no speech recognized", nil)
	}
	return transcript, nil
}

// HealthCheck verifies the transcription service is reachable.
func (c *TranscribeClient) HealthCheck(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.core.postJSON(ctx, "/v1/health", "health", struct{}{}, &resp); err != nil {
		return err
	}
	if !strings.EqualFold(resp.Status, "ok") {
		return services.Wrap(services.ErrTransient, "transcribe", "health", "service not ready", nil)
	}
	return nil
}
