package textutil

import (
	"math"
	"testing"
)

func TestCosineSimilarityNil(t *testing.T) {
	tests := []struct {
		name string
		a    *Fingerprint
		b    *Fingerprint
		want float64
	}{
		{"both nil", nil, nil, 0},
		{"a nil", nil, NewFingerprint("hello world"), 0},
		{"b nil", NewFingerprint("hello world"), nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarityIdentical(t *testing.T) {
	text := "The unemployment rate fell to four percent last quarter"
	a := NewFingerprint(text)
	b := NewFingerprint(text)

	got := CosineSimilarity(a, b)
	if math.Abs(got-1.0) > 0.0001 {
		t.Errorf("CosineSimilarity(identical) = %v, want 1.0", got)
	}
}

func TestCosineSimilarityCompleteDifferent(t *testing.T) {
	a := NewFingerprint("apple banana cherry")
	b := NewFingerprint("dog elephant frog")

	got := CosineSimilarity(a, b)
	if got != 0 {
		t.Errorf("CosineSimilarity(different) = %v, want 0", got)
	}
}

func TestCosineSimilarityParaphrasedClaims(t *testing.T) {
	a := NewFingerprint("The unemployment rate fell below four percent")
	b := NewFingerprint("Unemployment fell below four percent this year")

	got := CosineSimilarity(a, b)
	if got <= 0.5 || got >= 1 {
		t.Errorf("CosineSimilarity(paraphrase) = %v, want high but below 1", got)
	}
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	a := NewFingerprint("inflation reached nine percent")
	b := NewFingerprint("inflation peaked at nine percent")

	ab := CosineSimilarity(a, b)
	ba := CosineSimilarity(b, a)

	if ab != ba {
		t.Errorf("CosineSimilarity not symmetric: (%v, %v)", ab, ba)
	}
}

func TestNewFingerprintEmpty(t *testing.T) {
	if fp := NewFingerprint(""); fp != nil {
		t.Error("expected nil for empty text")
	}
	if fp := NewFingerprint("a an it to"); fp != nil {
		t.Error("expected nil for text with only short tokens")
	}
}

func TestNewFingerprintNormCalculation(t *testing.T) {
	// "taxes taxes rose" -> taxes:2, rose:1
	// norm = sqrt(2^2 + 1^2) = sqrt(5)
	fp := NewFingerprint("taxes taxes rose")
	if fp == nil {
		t.Fatal("expected fingerprint")
	}

	expectedNorm := math.Sqrt(5)
	if math.Abs(fp.norm-expectedNorm) > 0.0001 {
		t.Errorf("norm = %v, want %v", fp.norm, expectedNorm)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple words",
			input: "Crime Rates Doubled",
			want:  []string{"crime", "rates", "doubled"},
		},
		{
			name:  "filters short",
			input: "a to the city grew",
			want:  []string{"the", "city", "grew"},
		},
		{
			name:  "handles punctuation",
			input: "Taxes rose, then fell again!",
			want:  []string{"taxes", "rose", "then", "fell", "again"},
		},
		{
			name:  "handles numbers",
			input: "grew 300 percent since 2019",
			want:  []string{"grew", "300", "percent", "since", "2019"},
		},
		{
			name:  "empty string",
			input: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize() = %v (len %d), want %v (len %d)",
					got, len(got), tt.want, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFingerprintTokenCount(t *testing.T) {
	tests := []struct {
		name string
		fp   *Fingerprint
		want int
	}{
		{"nil fingerprint", nil, 0},
		{"unique tokens", NewFingerprint("budget deficit widened"), 3},
		{"repeated tokens", NewFingerprint("budget budget deficit deficit deficit"), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fp.TokenCount(); got != tt.want {
				t.Errorf("TokenCount() = %d, want %d", got, tt.want)
			}
		})
	}
}
