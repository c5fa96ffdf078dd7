package clients

import (
	"context"
	"strings"

	"claimlens/internal/config"
	"claimlens/internal/jobs"
	"claimlens/internal/services"
)

// VerifyClient renders verdicts for individual claims using a
// search-grounded chat-completion model.
type VerifyClient struct {
	core httpCore
}

// NewVerifyClient constructs a claim verification client.
func NewVerifyClient(cfg config.Adapter, opts ...Option) *VerifyClient {
	return &VerifyClient{core: newHTTPCore(cfg, "fact_check", opts...)}
}

type verifyPayload struct {
	Verdict     string  `json:"verdict"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
	Sources     []struct {
		URL       string  `json:"url"`
		Title     string  `json:"title"`
		Relevance float64 `json:"relevance"`
	} `json:"sources"`
}

// Verify checks one claim and returns its verdict. The returned result
// carries the claim's ID so callers can collate batches.
func (c *VerifyClient) Verify(ctx context.Context, claim jobs.Claim) (jobs.FactCheck, error) {
	text := strings.TrimSpace(claim.Text)
	if text == "" {
		return jobs.FactCheck{}, services.Wrap(services.ErrPermanent, "fact_check", "verify", "claim text required", nil)
	}

	content, err := c.core.completeJSON(ctx, "verify", ClaimVerificationPrompt, text)
	if err != nil {
		return jobs.FactCheck{}, err
	}

	var parsed verifyPayload
	if err := DecodeModelJSON(content, &parsed); err != nil {
		return jobs.FactCheck{}, services.Wrap(services.ErrPermanent, "fact_check", "verify", "parse payload", err)
	}

	sources := make([]jobs.Source, 0, len(parsed.Sources))
	for _, source := range parsed.Sources {
		url := strings.TrimSpace(source.URL)
		if url == "" {
			continue
		}
		sources = append(sources, jobs.Source{
			URL:       url,
			Title:     strings.TrimSpace(source.Title),
			Relevance: clampUnit(source.Relevance),
		})
	}
	if len(sources) == 0 {
		sources = nil
	}

	return jobs.FactCheck{
		ClaimID:     claim.ID,
		Verdict:     jobs.ParseVerdict(parsed.Verdict),
		Confidence:  clampUnit(parsed.Confidence),
		Explanation: strings.TrimSpace(parsed.Explanation),
		Sources:     sources,
	}, nil
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *VerifyClient) HealthCheck(ctx context.Context) error {
	content, err := c.core.completeJSON(ctx, "health",
		"You must respond with JSON only.",
		`Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeModelJSON(content, &parsed); err != nil {
		return services.Wrap(services.ErrPermanent, "fact_check", "health", "parse payload", err)
	}
	if !parsed.OK {
		return services.Wrap(services.ErrTransient, "fact_check", "health", "unexpected response", nil)
	}
	return nil
}
