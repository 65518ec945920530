// Package simhash computes 64-bit similarity fingerprints over news text.
// Texts describing the same event land within a small Hamming distance of
// each other; unrelated texts sit near 32 bits apart.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"
)

const shingleSize = 3

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"being": {}, "have": {}, "has": {}, "had": {}, "do": {}, "does": {},
	"did": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"may": {}, "might": {},
}

// Fingerprint returns the simhash of the text: shingle into overlapping
// 3-word grams, hash each shingle, and accumulate a signed weight per bit
// position scaled by shingle frequency. Deterministic, no state.
func Fingerprint(text string) uint64 {
	shingles := shingleCounts(Tokenize(text))
	if len(shingles) == 0 {
		return 0
	}

	var bitWeights [64]int
	for shingle, count := range shingles {
		h := hashShingle(shingle)
		for bit := 0; bit < 64; bit++ {
			if h&(uint64(1)<<bit) != 0 {
				bitWeights[bit] += count
			} else {
				bitWeights[bit] -= count
			}
		}
	}

	var result uint64
	for bit := 0; bit < 64; bit++ {
		if bitWeights[bit] > 0 {
			result |= uint64(1) << bit
		}
	}
	return result
}

// Distance is the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Tokenize lower-cases, strips punctuation, and drops stop words and very
// short tokens.
func Tokenize(text string) []string {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if trimmed == "" {
		return nil
	}

	parts := strings.FieldsFunc(trimmed, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) <= 2 {
			continue
		}
		if _, skip := stopWords[p]; skip {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}

// shingleCounts maps each overlapping 3-gram to its occurrence count. A text
// shorter than one shingle contributes its tokens as a single shingle so that
// very short titles still fingerprint.
func shingleCounts(tokens []string) map[string]int {
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]int)
	if len(tokens) < shingleSize {
		counts[strings.Join(tokens, " ")] = 1
		return counts
	}
	for i := 0; i+shingleSize <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+shingleSize], " ")]++
	}
	return counts
}

func hashShingle(shingle string) uint64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(shingle))
	return hasher.Sum64()
}
