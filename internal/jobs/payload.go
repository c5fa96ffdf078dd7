package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Verdict is the outcome of checking a single claim.
type Verdict string

const (
	VerdictTrue         Verdict = "true"
	VerdictFalse        Verdict = "false"
	VerdictMixed        Verdict = "mixed"
	VerdictUnverifiable Verdict = "unverifiable"
)

// ParseVerdict converts a string into a known Verdict. Unknown values map to
// unverifiable so a misbehaving verification backend cannot invent states.
func ParseVerdict(value string) Verdict {
	switch Verdict(strings.ToLower(strings.TrimSpace(value))) {
	case VerdictTrue:
		return VerdictTrue
	case VerdictFalse:
		return VerdictFalse
	case VerdictMixed, "misleading":
		// "misleading" is what older verification backends call mixed.
		return VerdictMixed
	default:
		return VerdictUnverifiable
	}
}

// Category classifies what kind of assertion a claim is. Only facts are
// verifiable; opinions and predictions are carried for the record but never
// sent to the verification stage.
type Category string

const (
	CategoryFact       Category = "fact"
	CategoryOpinion    Category = "opinion"
	CategoryPrediction Category = "prediction"
)

// ParseCategory converts a string into a known Category. Unknown values map
// to fact so an uncategorized claim is still checked rather than dropped.
func ParseCategory(value string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(value))) {
	case CategoryOpinion:
		return CategoryOpinion
	case CategoryPrediction:
		return CategoryPrediction
	default:
		return CategoryFact
	}
}

// Segment is one speaker-attributed span of the transcript.
type Segment struct {
	Index   int     `json:"index"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
}

// Claim is an assertion extracted from the transcript.
type Claim struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Normalized   string   `json:"normalized"`
	SegmentIndex int      `json:"segment_index"`
	Speaker      string   `json:"speaker,omitempty"`
	Category     Category `json:"category,omitempty"`
	Confidence   float64  `json:"confidence,omitempty"`
}

// Checkable reports whether the claim should be sent for verification.
// Claims stored before categories existed carry an empty category and are
// treated as facts.
func (c Claim) Checkable() bool {
	switch c.Category {
	case CategoryOpinion, CategoryPrediction:
		return false
	}
	return true
}

// Source is one piece of evidence backing a verdict, ordered by relevance.
type Source struct {
	URL       string  `json:"url"`
	Title     string  `json:"title,omitempty"`
	Relevance float64 `json:"relevance,omitempty"`
}

// FactCheck is the verification outcome for one claim.
type FactCheck struct {
	ClaimID     string   `json:"claim_id"`
	Verdict     Verdict  `json:"verdict"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation,omitempty"`
	Sources     []Source `json:"sources,omitempty"`
	FromCache   bool     `json:"from_cache,omitempty"`
	Degraded    bool     `json:"degraded,omitempty"`
}

// Transcript is the output of the transcription stage.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments"`
}

// SetTranscript stores the transcript payload on the job.
func (j *Job) SetTranscript(t Transcript) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	j.TranscriptJSON = string(data)
	return nil
}

// TranscriptPayload decodes the stored transcript, returning a zero value
// when no transcript has been recorded yet.
func (j *Job) TranscriptPayload() (Transcript, error) {
	if strings.TrimSpace(j.TranscriptJSON) == "" {
		return Transcript{}, nil
	}
	var t Transcript
	if err := json.Unmarshal([]byte(j.TranscriptJSON), &t); err != nil {
		return Transcript{}, fmt.Errorf("unmarshal transcript: %w", err)
	}
	return t, nil
}

// SetSegments stores diarized segments on the job.
func (j *Job) SetSegments(segments []Segment) error {
	data, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	j.SegmentsJSON = string(data)
	return nil
}

// SegmentList decodes the stored diarized segments.
func (j *Job) SegmentList() ([]Segment, error) {
	if strings.TrimSpace(j.SegmentsJSON) == "" {
		return nil, nil
	}
	var segments []Segment
	if err := json.Unmarshal([]byte(j.SegmentsJSON), &segments); err != nil {
		return nil, fmt.Errorf("unmarshal segments: %w", err)
	}
	return segments, nil
}

// SetClaims stores extracted claims on the job.
func (j *Job) SetClaims(claims []Claim) error {
	data, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("marshal claims: %w", err)
	}
	j.ClaimsJSON = string(data)
	return nil
}

// ClaimList decodes the stored claims.
func (j *Job) ClaimList() ([]Claim, error) {
	if strings.TrimSpace(j.ClaimsJSON) == "" {
		return nil, nil
	}
	var claims []Claim
	if err := json.Unmarshal([]byte(j.ClaimsJSON), &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}
	return claims, nil
}

// SetResults stores fact-check outcomes on the job.
func (j *Job) SetResults(results []FactCheck) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	j.ResultsJSON = string(data)
	return nil
}

// ResultList decodes the stored fact-check outcomes.
func (j *Job) ResultList() ([]FactCheck, error) {
	if strings.TrimSpace(j.ResultsJSON) == "" {
		return nil, nil
	}
	var results []FactCheck
	if err := json.Unmarshal([]byte(j.ResultsJSON), &results); err != nil {
		return nil, fmt.Errorf("unmarshal results: %w", err)
	}
	return results, nil
}

// MarkDegraded records that a stage completed in degraded mode with the
// reason it degraded. Repeated calls for the same stage overwrite the reason.
func (j *Job) MarkDegraded(stage, reason string) error {
	degraded, err := j.DegradedStages()
	if err != nil {
		degraded = nil
	}
	if degraded == nil {
		degraded = make(map[string]string, 1)
	}
	degraded[stage] = reason
	data, err := json.Marshal(degraded)
	if err != nil {
		return fmt.Errorf("marshal degraded stages: %w", err)
	}
	j.DegradedJSON = string(data)
	return nil
}

// DegradedStages returns the stages that completed in degraded mode keyed by
// stage name with the degradation reason as the value.
func (j *Job) DegradedStages() (map[string]string, error) {
	if strings.TrimSpace(j.DegradedJSON) == "" {
		return nil, nil
	}
	var degraded map[string]string
	if err := json.Unmarshal([]byte(j.DegradedJSON), &degraded); err != nil {
		return nil, fmt.Errorf("unmarshal degraded stages: %w", err)
	}
	return degraded, nil
}
