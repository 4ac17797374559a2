// Package xp implements the experience-point ledger of a character: an
// ordered transaction log, the summary folded from it, and the state
// machine that moves awards and spends between statuses.
package xp

import "time"

// Type is the kind of a transaction.
type Type string

const (
	TypeSessionAward Type = "session_award"
	TypeSpend        Type = "spend"
)

// Status is the lifecycle state of a transaction.
//
//	session_award: pending -> confirmed -> reverted (reassign)
//	               pending -> reverted (cancel)
//	spend:         pending -> confirmed -> unlocked
//	               pending -> reverted (cancel)
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusUnlocked  Status = "unlocked"
	StatusReverted  Status = "reverted"
)

// MaxTransactions is the number of most recent transactions a sheet keeps.
const MaxTransactions = 1000

// Transaction is one entry in a character's XP log. Entries are never
// edited in place: transitions return a new value that replaces the old
// one at the same position.
type Transaction struct {
	ID     string `json:"id"`
	Type   Type   `json:"type"`
	Status Status `json:"status"`

	// Award fields.
	Amount     float64 `json:"amount,omitempty"`
	SessionTag string  `json:"session_tag,omitempty"`
	ReplacesID string  `json:"replaces_id,omitempty"`

	// Spend fields.
	FieldID string  `json:"field_id,omitempty"`
	Cost    float64 `json:"cost,omitempty"`
	Step    float64 `json:"step,omitempty"`

	// For spends Before/After are the target field's value around the
	// increment; for awards they are xp_leftover around confirmation.
	Before   *float64 `json:"before,omitempty"`
	After    *float64 `json:"after,omitempty"`
	XPBefore *float64 `json:"xp_before,omitempty"`
	XPAfter  *float64 `json:"xp_after,omitempty"`

	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedBy string     `json:"confirmed_by,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	UnlockedBy  string     `json:"unlocked_by,omitempty"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
	RevertedBy  string     `json:"reverted_by,omitempty"`
	RevertedAt  *time.Time `json:"reverted_at,omitempty"`
}

func (t Transaction) confirmed(actor string, at time.Time) Transaction {
	t.Status = StatusConfirmed
	t.ConfirmedBy = actor
	t.ConfirmedAt = &at
	return t
}

func (t Transaction) unlocked(actor string, at time.Time) Transaction {
	t.Status = StatusUnlocked
	t.UnlockedBy = actor
	t.UnlockedAt = &at
	return t
}

func (t Transaction) reverted(actor string, at time.Time) Transaction {
	t.Status = StatusReverted
	t.RevertedBy = actor
	t.RevertedAt = &at
	return t
}

func ptr(f float64) *float64 { return &f }
