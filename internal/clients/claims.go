package clients

import (
	"context"
	"fmt"
	"strings"

	"claimlens/internal/config"
	"claimlens/internal/jobs"
	"claimlens/internal/services"
	"claimlens/internal/textutil"
)

// ClaimsClient extracts checkable factual claims from a transcript using a
// chat-completion model.
type ClaimsClient struct {
	core httpCore
}

// NewClaimsClient constructs a claim extraction client.
func NewClaimsClient(cfg config.Adapter, opts ...Option) *ClaimsClient {
	return &ClaimsClient{core: newHTTPCore(cfg, "extract_claims", opts...)}
}

type extractedClaims struct {
	Claims []struct {
		Text         string  `json:"text"`
		SegmentIndex int     `json:"segment_index"`
		Category     string  `json:"category"`
		Confidence   float64 `json:"confidence"`
	} `json:"claims"`
}

// duplicateSimilarity is the cosine similarity above which two extracted
// claims are treated as restatements of each other.
const duplicateSimilarity = 0.9

// Extract returns the claims asserted in the given segments. Claims come
// back categorized as fact, opinion, or prediction, with normalized text
// filled in, speakers resolved from their source segment, and near-duplicate
// restatements dropped. A transcript with no claims returns an empty slice,
// not an error.
func (c *ClaimsClient) Extract(ctx context.Context, jobID string, segments []jobs.Segment) ([]jobs.Claim, error) {
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrPermanent, "extract_claims", "extract", "no transcript segments", nil)
	}

	content, err := c.core.completeJSON(ctx, "extract", ClaimExtractionPrompt, formatSegments(segments))
	if err != nil {
		return nil, err
	}

	var parsed extractedClaims
	if err := DecodeModelJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrPermanent, "extract_claims", "extract", "parse payload", err)
	}

	speakerByIndex := make(map[int]string, len(segments))
	for _, seg := range segments {
		speakerByIndex[seg.Index] = seg.Speaker
	}

	var claims []jobs.Claim
	var fingerprints []*textutil.Fingerprint
	for _, raw := range parsed.Claims {
		text := strings.TrimSpace(raw.Text)
		if text == "" {
			continue
		}
		normalized := textutil.NormalizeClaim(text)
		if normalized == "" {
			continue
		}
		fp := textutil.NewFingerprint(normalized)
		if isDuplicateClaim(claims, fingerprints, normalized, fp) {
			continue
		}
		claim := jobs.Claim{
			ID:           fmt.Sprintf("%s-c%d", jobID, len(claims)+1),
			Text:         text,
			Normalized:   normalized,
			SegmentIndex: raw.SegmentIndex,
			Speaker:      speakerByIndex[raw.SegmentIndex],
			Category:     jobs.ParseCategory(raw.Category),
			Confidence:   clampUnit(raw.Confidence),
		}
		claims = append(claims, claim)
		fingerprints = append(fingerprints, fp)
	}
	return claims, nil
}

func isDuplicateClaim(kept []jobs.Claim, fingerprints []*textutil.Fingerprint, normalized string, fp *textutil.Fingerprint) bool {
	for i, claim := range kept {
		if claim.Normalized == normalized {
			return true
		}
		if textutil.CosineSimilarity(fp, fingerprints[i]) >= duplicateSimilarity {
			return true
		}
	}
	return false
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *ClaimsClient) HealthCheck(ctx context.Context) error {
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
		return services.Wrap(services.ErrPermanent, "extract_claims", "health", "parse payload", err)
	}
	if !parsed.OK {
		return services.Wrap(services.ErrTransient, "extract_claims", "health", "unexpected response", nil)
	}
	return nil
}

func formatSegments(segments []jobs.Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "[%d]", seg.Index)
		if seg.Speaker != "" {
			fmt.Fprintf(&b, " %s:", seg.Speaker)
		}
		b.WriteByte(' ')
		b.WriteString(seg.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

func clampUnit(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
