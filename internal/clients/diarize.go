package clients

import (
	"context"
	"strings"

	"claimlens/internal/config"
	"claimlens/internal/jobs"
	"claimlens/internal/services"
)

// DiarizeClient talks to the speaker diarization service.
type DiarizeClient struct {
	core httpCore
}

// NewDiarizeClient constructs a diarization client.
func NewDiarizeClient(cfg config.Adapter, opts ...Option) *DiarizeClient {
	return &DiarizeClient{core: newHTTPCore(cfg, "diarize", opts...)}
}

type diarizeRequest struct {
	SourceRef string         `json:"source_ref"`
	Segments  []jobs.Segment `json:"segments"`
}

type diarizeResponse struct {
	Segments []struct {
		Index   int    `json:"index"`
		Speaker string `json:"speaker"`
	} `json:"segments"`
}

// Diarize attributes transcript segments to speakers. Segments the service
// does not label keep an empty speaker.
func (c *DiarizeClient) Diarize(ctx context.Context, sourceRef string, segments []jobs.Segment) ([]jobs.Segment, error) {
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrPermanent, "diarize", "diarize", "no segments to attribute", nil)
	}

	var resp diarizeResponse
	req := diarizeRequest{SourceRef: strings.TrimSpace(sourceRef), Segments: segments}
	if err := c.core.postJSON(ctx, "/v1/diarize", "diarize", req, &resp); err != nil {
		return nil, err
	}

	speakers := make(map[int]string, len(resp.Segments))
	for _, seg := range resp.Segments {
		if speaker := strings.TrimSpace(seg.Speaker); speaker != "" {
			speakers[seg.Index] = speaker
		}
	}

	out := make([]jobs.Segment, len(segments))
	copy(out, segments)
	for i := range out {
		if speaker, ok := speakers[out[i].Index]; ok {
			out[i].Speaker = speaker
		}
	}
	return out, nil
}

// HealthCheck verifies the diarization service is reachable.
func (c *DiarizeClient) HealthCheck(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.core.postJSON(ctx, "/v1/health", "health", struct{}{}, &resp); err != nil {
		return err
	}
	if !strings.EqualFold(resp.Status, "ok") {
		return services.Wrap(services.ErrTransient, "diarize", "health", "service not ready", nil)
	}
	return nil
}
