package jobs_test

import (
	"testing"

	"claimlens/internal/jobs"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		in   string
		want jobs.Verdict
	}{
		{"true", jobs.VerdictTrue},
		{"  False ", jobs.VerdictFalse},
		{"mixed", jobs.VerdictMixed},
		{"Misleading", jobs.VerdictMixed},
		{"unverifiable", jobs.VerdictUnverifiable},
		{"mostly-true", jobs.VerdictUnverifiable},
		{"", jobs.VerdictUnverifiable},
	}
	for _, tt := range tests {
		if got := jobs.ParseVerdict(tt.in); got != tt.want {
			t.Errorf("ParseVerdict(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want jobs.Category
	}{
		{"fact", jobs.CategoryFact},
		{"Opinion", jobs.CategoryOpinion},
		{" prediction ", jobs.CategoryPrediction},
		{"", jobs.CategoryFact},
		{"speculation", jobs.CategoryFact},
	}
	for _, tt := range tests {
		if got := jobs.ParseCategory(tt.in); got != tt.want {
			t.Errorf("ParseCategory(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestClaimCheckable(t *testing.T) {
	if !(jobs.Claim{Category: jobs.CategoryFact}).Checkable() {
		t.Error("fact claims must be checkable")
	}
	if !(jobs.Claim{}).Checkable() {
		t.Error("uncategorized claims must stay checkable")
	}
	if (jobs.Claim{Category: jobs.CategoryOpinion}).Checkable() {
		t.Error("opinions must not be checkable")
	}
	if (jobs.Claim{Category: jobs.CategoryPrediction}).Checkable() {
		t.Error("predictions must not be checkable")
	}
}
