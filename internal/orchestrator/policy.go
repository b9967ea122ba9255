package orchestrator

import "adswap/internal/classifier"

// DefaultThreshold is the confidence above which the classifier alone marks
// an element as an ad.
const DefaultThreshold = 0.7

// Decide is the replacement policy: a confident classifier score strictly
// above threshold, or a rule match. An unavailable score never counts.
func Decide(res classifier.Result, threshold float64, ruleMatch bool) bool {
	return (res.Available && res.Confidence > threshold) || ruleMatch
}
