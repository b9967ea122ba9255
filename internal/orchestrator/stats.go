package orchestrator

import "sync/atomic"

type counters struct {
	detections   atomic.Int64
	skipped      atomic.Int64
	unavailable  atomic.Int64
	ruleMatches  atomic.Int64
	replacements atomic.Int64
	notAd        atomic.Int64
	emptyPool    atomic.Int64
	failures     atomic.Int64
}

// Stats is a snapshot of the orchestrator counters.
type Stats struct {
	ClassifierState string `json:"classifier_state"`
	Rules           int    `json:"rules"`
	Detections      int64  `json:"detections"`
	Skipped         int64  `json:"skipped"`
	Unavailable     int64  `json:"classifier_unavailable"`
	RuleMatches     int64  `json:"rule_matches"`
	Replacements    int64  `json:"replacements"`
	NotAd           int64  `json:"not_ad"`
	EmptyPool       int64  `json:"empty_pool"`
	Failures        int64  `json:"publish_failures"`
}

func (c *counters) snapshot() Stats {
	return Stats{
		Detections:   c.detections.Load(),
		Skipped:      c.skipped.Load(),
		Unavailable:  c.unavailable.Load(),
		RuleMatches:  c.ruleMatches.Load(),
		Replacements: c.replacements.Load(),
		NotAd:        c.notAd.Load(),
		EmptyPool:    c.emptyPool.Load(),
		Failures:     c.failures.Load(),
	}
}
