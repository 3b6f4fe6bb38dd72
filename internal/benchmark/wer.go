package benchmark

import "strings"

// WER is the word-level edit distance between the lower-cased,
// whitespace-tokenized reference and hypothesis, divided by the reference
// length. An empty reference scores 0 against an empty hypothesis and 1
// against anything else.
func WER(reference, hypothesis string) float64 {
	ref := strings.Fields(strings.ToLower(reference))
	hyp := strings.Fields(strings.ToLower(hypothesis))
	if len(ref) == 0 {
		if len(hyp) == 0 {
			return 0
		}
		return 1
	}

	// Two rolling rows of the Levenshtein table.
	prev := make([]int, len(hyp)+1)
	cur := make([]int, len(hyp)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ref); i++ {
		cur[0] = i
		for j := 1; j <= len(hyp); j++ {
			if ref[i-1] == hyp[j-1] {
				cur[j] = prev[j-1]
				continue
			}
			cur[j] = 1 + min(prev[j], cur[j-1], prev[j-1])
		}
		prev, cur = cur, prev
	}
	return float64(prev[len(hyp)]) / float64(max(1, len(ref)))
}

// WordsPerSecond counts whitespace-separated words in text over seconds.
func WordsPerSecond(text string, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(len(strings.Fields(text))) / seconds
}
