package simhash

import "testing"

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	text := "OpenAI launches GPT-5 with major improvements for advertisers"
	if Fingerprint(text) != Fingerprint(text) {
		t.Fatalf("expected identical fingerprints for identical input")
	}
}

func TestFingerprint_Empty(t *testing.T) {
	t.Parallel()

	if fp := Fingerprint(""); fp != 0 {
		t.Fatalf("expected zero fingerprint for empty text, got %x", fp)
	}
	if fp := Fingerprint("a an the"); fp != 0 {
		t.Fatalf("expected zero fingerprint for stop-word-only text, got %x", fp)
	}
}

func TestFingerprint_ShortTitle(t *testing.T) {
	t.Parallel()

	// Fewer tokens than one shingle must still produce a fingerprint.
	if fp := Fingerprint("GPT-5 launched"); fp == 0 {
		t.Fatalf("expected non-zero fingerprint for short title")
	}
}

func TestDistance_Symmetric(t *testing.T) {
	t.Parallel()

	a := Fingerprint("Anthropic announces new enterprise pricing for Claude models today")
	b := Fingerprint("Google expands search generative experience to more advertisers worldwide")
	if Distance(a, b) != Distance(b, a) {
		t.Fatalf("distance must be symmetric")
	}
	if Distance(a, a) != 0 {
		t.Fatalf("distance to self must be zero")
	}
}

func TestDistance_SimilarTextsCloserThanUnrelated(t *testing.T) {
	t.Parallel()

	base := "OpenAI launches GPT-5 model with new creative generation tools for marketing teams across every major advertising platform"
	similar := "OpenAI launches GPT-5 model with new creative generation tools for marketing teams across all major advertising platforms"
	unrelated := "Local council approves budget for renovating the harbour footbridge after winter storm damage closed it last year"

	similarDist := Distance(Fingerprint(base), Fingerprint(similar))
	unrelatedDist := Distance(Fingerprint(base), Fingerprint(unrelated))

	if similarDist >= unrelatedDist {
		t.Fatalf("expected similar distance (%d) below unrelated distance (%d)", similarDist, unrelatedDist)
	}
	if unrelatedDist < 10 {
		t.Fatalf("unrelated texts unexpectedly close: %d bits", unrelatedDist)
	}
}

func TestTokenize_DropsStopWordsAndPunctuation(t *testing.T) {
	t.Parallel()

	tokens := Tokenize("The quick, brown fox -- and the lazy dog!")
	want := []string{"quick", "brown", "fox", "lazy", "dog"}
	if len(tokens) != len(want) {
		t.Fatalf("unexpected token count: got %v want %v", tokens, want)
	}
	for i, token := range tokens {
		if token != want[i] {
			t.Fatalf("token %d: got %q want %q", i, token, want[i])
		}
	}
}
