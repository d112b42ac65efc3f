// Package optimizer derives a better confidence threshold for a rule from
// historical human decisions on requests the rule matched. It only ever
// recommends; applying a recommendation is an explicit operator action.
package optimizer

import (
	"sort"

	"github.com/google/uuid"
)

// OutcomeRecord is one historical data point: the confidence the rule saw and
// the verdict a human ultimately gave (directly, via escalation, or by
// overriding an auto-approval in audit).
type OutcomeRecord struct {
	Confidence    float64
	HumanApproved bool
}

// Recommendation is a proposed threshold with the error rates it would have
// produced on the observed history.
type Recommendation struct {
	RuleID            uuid.UUID `json:"rule_id"`
	Threshold         float64   `json:"threshold"`
	SampleSize        int       `json:"sample_size"`
	FalseApproveRate  float64   `json:"false_approve_rate"`
	FalseEscalateRate float64   `json:"false_escalate_rate"`
	Cost              float64   `json:"cost"`
}

// Config tunes the recommendation. FalseApproveWeight is expected to exceed
// FalseEscalateWeight: approving something a human would have rejected is
// costlier than escalating something a human would have approved.
type Config struct {
	MinSamples          int
	FalseApproveWeight  float64
	FalseEscalateWeight float64
}

// DefaultConfig returns conservative defaults favoring under-automation.
func DefaultConfig() Config {
	return Config{MinSamples: 20, FalseApproveWeight: 5.0, FalseEscalateWeight: 1.0}
}

// Recommend chooses the candidate threshold minimizing the weighted error
// cost over the history. Returns false when the sample is too small for a
// recommendation to be meaningful.
func Recommend(ruleID uuid.UUID, records []OutcomeRecord, cfg Config) (*Recommendation, bool) {
	if len(records) < cfg.MinSamples {
		return nil, false
	}

	candidates := candidateThresholds(records)

	best := Recommendation{RuleID: ruleID, SampleSize: len(records)}
	first := true
	for _, t := range candidates {
		falseApproves, falseEscalates := 0, 0
		for _, rec := range records {
			wouldApprove := rec.Confidence >= t
			switch {
			case wouldApprove && !rec.HumanApproved:
				falseApproves++
			case !wouldApprove && rec.HumanApproved:
				falseEscalates++
			}
		}
		cost := cfg.FalseApproveWeight*float64(falseApproves) + cfg.FalseEscalateWeight*float64(falseEscalates)

		// Ties break toward the higher threshold: when two cutoffs perform
		// identically, trust the humans less.
		if first || cost < best.Cost || (cost == best.Cost && t > best.Threshold) {
			best.Threshold = t
			best.Cost = cost
			best.FalseApproveRate = float64(falseApproves) / float64(len(records))
			best.FalseEscalateRate = float64(falseEscalates) / float64(len(records))
			first = false
		}
	}
	return &best, true
}

// candidateThresholds returns the distinct observed confidences plus a cutoff
// above the maximum, which represents "never auto-approve".
func candidateThresholds(records []OutcomeRecord) []float64 {
	seen := make(map[float64]struct{}, len(records))
	out := make([]float64, 0, len(records)+1)
	max := 0.0
	for _, rec := range records {
		if _, dup := seen[rec.Confidence]; !dup {
			seen[rec.Confidence] = struct{}{}
			out = append(out, rec.Confidence)
		}
		if rec.Confidence > max {
			max = rec.Confidence
		}
	}
	out = append(out, max+1)
	sort.Float64s(out)
	return out
}
