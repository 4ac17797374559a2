package xp

import "github.com/dlovans/charsheet/pkg/ruleset"

// Summary is the fold of a transaction log.
type Summary struct {
	EarnedTotal     float64  `json:"earned_total"`
	EarnedSession   float64  `json:"earned_session"`
	XPUsedConfirmed float64  `json:"xp_used_confirmed"`
	XPUsedPending   float64  `json:"xp_used_pending"`
	XPLeftover      float64  `json:"xp_leftover"`
	Level           int      `json:"level"`
	NextLevelAt     *float64 `json:"next_level_at"`
}

// Summarize folds txs into a Summary. Only confirmed awards count as
// earned; spends count by status; unlocked and reverted entries count
// nowhere, which is how a cost is refunded. Level is read from table
// against earned_total.
func Summarize(txs []Transaction, table *ruleset.XPProgression) Summary {
	var s Summary
	var latest *Transaction
	for i := range txs {
		t := &txs[i]
		switch t.Type {
		case TypeSessionAward:
			if t.Status == StatusConfirmed {
				s.EarnedTotal += t.Amount
			}
			if t.Status == StatusPending || t.Status == StatusConfirmed {
				// Later entries win ties so log order breaks equal timestamps.
				if latest == nil || !t.CreatedAt.Before(latest.CreatedAt) {
					latest = t
				}
			}
		case TypeSpend:
			switch t.Status {
			case StatusConfirmed:
				s.XPUsedConfirmed += t.Cost
			case StatusPending:
				s.XPUsedPending += t.Cost
			}
		}
	}
	if latest != nil {
		s.EarnedSession = latest.Amount
	}
	s.XPLeftover = s.EarnedTotal - (s.XPUsedConfirmed + s.XPUsedPending)
	s.Level, s.NextLevelAt = ruleset.LevelFor(table, s.EarnedTotal)
	return s
}
