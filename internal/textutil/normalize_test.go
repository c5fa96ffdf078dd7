package textutil

import "testing"

func TestNormalizeClaim(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercases",
			input: "The Eiffel Tower Is In Paris",
			want:  "the eiffel tower is in paris",
		},
		{
			name:  "strips punctuation",
			input: "The Earth is round!",
			want:  "the earth is round",
		},
		{
			name:  "collapses whitespace",
			input: "water   boils\tat  100   degrees",
			want:  "water boils at 100 degrees",
		},
		{
			name:  "equivalent variants converge",
			input: "  Water boils, at 100 degrees.  ",
			want:  "water boils at 100 degrees",
		},
		{
			name:  "unicode case folding",
			input: "CAFÉ prices ROSE 5%",
			want:  "café prices rose 5",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "punctuation only",
			input: "?!... --",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeClaim(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeClaim(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeClaimStable(t *testing.T) {
	once := NormalizeClaim("Vaccines Cause   Autism?")
	twice := NormalizeClaim(once)
	if once != twice {
		t.Errorf("normalization not idempotent: %q vs %q", once, twice)
	}
}
