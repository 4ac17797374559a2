package xp

import (
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dlovans/charsheet/pkg/expr"
	"github.com/dlovans/charsheet/pkg/ruleset"
	"github.com/dlovans/charsheet/pkg/runtime"
)

// Actor is whoever performs a ledger operation.
type Actor struct {
	ID   string
	Role ruleset.Role
}

// Sheet is the persisted state of a character: its raw field values and
// its XP log.
type Sheet struct {
	Values       map[string]any `json:"values"`
	Transactions []Transaction  `json:"xp_transactions"`
}

// Payload is the state after a ledger operation, as persisted and sent to
// clients. Values holds the raw values to store; Resolved holds what the
// sheet displays.
type Payload struct {
	Values        map[string]any     `json:"values"`
	Resolved      map[string]any     `json:"resolved"`
	Computed      map[string]any     `json:"computed"`
	DerivedTotals map[string]float64 `json:"derived_totals"`
	Enabled       map[string]bool    `json:"enabled"`
	Transactions  []Transaction      `json:"xp_transactions"`
	Summary       Summary            `json:"xp_summary"`
	Affected      []Transaction      `json:"affected,omitempty"`
	Errors        []string           `json:"errors,omitempty"`
}

// Sheet returns the persisted part of p, ready for the next operation.
func (p *Payload) Sheet() Sheet {
	return Sheet{Values: p.Values, Transactions: p.Transactions}
}

// Ledger applies XP operations to sheets of one ruleset. Every operation
// is a pure function of the sheet it is given: the sheet is never
// modified, and a rejected operation returns a *Rejection and no payload.
type Ledger struct {
	schema *ruleset.Schema
	table  *ruleset.XPProgression
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source for transaction timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator sets the transaction id source.
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// WithLogger sets the logger for transitions and rejections.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger returns a ledger for schema. A nil schema behaves as the empty
// schema.
func NewLedger(schema *ruleset.Schema, opts ...Option) *Ledger {
	if schema == nil {
		schema = ruleset.EmptySchema()
	}
	l := &Ledger{
		schema: schema,
		table:  schema.GlobalProgression(),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Snapshot resolves sheet with the pool field synced to the log, without
// any transition.
func (l *Ledger) Snapshot(sheet Sheet) *Payload {
	return l.settle(l.begin(sheet))
}

// Award creates a pending session award (DM only).
func (l *Ledger) Award(actor Actor, sheet Sheet, amount float64, sessionTag string) (*Payload, error) {
	if r := requireDM(actor, "award XP"); r != nil {
		return nil, l.rejected("award", actor, r)
	}
	if r := checkAmount(amount); r != nil {
		return nil, l.rejected("award", actor, r)
	}

	d := l.begin(sheet)
	tx := Transaction{
		ID:         l.newID(),
		Type:       TypeSessionAward,
		Status:     StatusPending,
		Amount:     amount,
		SessionTag: sessionTag,
		CreatedBy:  actor.ID,
		CreatedAt:  l.now(),
	}
	d.txs = append(d.txs, tx)
	l.accepted("award", actor, tx)
	return l.settle(d, tx.ID), nil
}

// ConfirmAward confirms a pending session award (DM only). Before and
// After record xp_leftover around the confirmation.
func (l *Ledger) ConfirmAward(actor Actor, sheet Sheet, txID string) (*Payload, error) {
	if r := requireDM(actor, "confirm awards"); r != nil {
		return nil, l.rejected("confirm_award", actor, r)
	}

	d := l.begin(sheet)
	i, r := d.find(txID, TypeSessionAward)
	if r == nil && d.txs[i].Status != StatusPending {
		r = reject(CodeInvalidStatus, "only pending transactions can be confirmed (transaction '%s' is %s)", txID, d.txs[i].Status)
	}
	if r != nil {
		return nil, l.rejected("confirm_award", actor, r)
	}

	before := d.summary.XPLeftover
	tx := d.txs[i].confirmed(actor.ID, l.now())
	tx.Before = ptr(before)
	tx.After = ptr(before + tx.Amount)
	d.txs[i] = tx
	l.accepted("confirm_award", actor, tx)
	return l.settle(d, tx.ID), nil
}

// ReassignAward supersedes a confirmed award: the award is reverted and a
// new pending award for amount takes its place (DM only).
func (l *Ledger) ReassignAward(actor Actor, sheet Sheet, txID string, amount float64) (*Payload, error) {
	if r := requireDM(actor, "reassign awards"); r != nil {
		return nil, l.rejected("reassign_award", actor, r)
	}
	if r := checkAmount(amount); r != nil {
		return nil, l.rejected("reassign_award", actor, r)
	}

	d := l.begin(sheet)
	i, r := d.find(txID, TypeSessionAward)
	if r == nil && d.txs[i].Status != StatusConfirmed {
		r = reject(CodeInvalidStatus, "only confirmed awards can be reassigned (transaction '%s' is %s)", txID, d.txs[i].Status)
	}
	if r != nil {
		return nil, l.rejected("reassign_award", actor, r)
	}

	now := l.now()
	old := d.txs[i].reverted(actor.ID, now)
	d.txs[i] = old
	replacement := Transaction{
		ID:         l.newID(),
		Type:       TypeSessionAward,
		Status:     StatusPending,
		Amount:     amount,
		SessionTag: old.SessionTag,
		ReplacesID: old.ID,
		CreatedBy:  actor.ID,
		CreatedAt:  now,
	}
	d.txs = append(d.txs, replacement)
	l.accepted("reassign_award", actor, old)
	l.accepted("reassign_award", actor, replacement)
	return l.settle(d, old.ID, replacement.ID), nil
}

// RequestSpend buys one step of an XP-upgradable field. The field is
// incremented immediately and the cost counts as pending until the DM
// confirms it.
func (l *Ledger) RequestSpend(actor Actor, sheet Sheet, fieldID string) (*Payload, error) {
	box := l.schema.BoxByID()[fieldID]
	if box == nil || !box.IsField() || box.FieldType != ruleset.FieldNumber || !box.XPUpgradable {
		return nil, l.rejected("request_spend", actor,
			reject(CodeFieldNotUpgradable, "field '%s' is not XP-upgradable", fieldID))
	}

	d := l.begin(sheet)
	leftover := d.summary.XPLeftover
	if leftover < box.XPCost {
		return nil, l.rejected("request_spend", actor,
			reject(CodeNotEnough, "not enough XP: %g available, %g needed", leftover, box.XPCost))
	}
	before := expr.ToNumber(d.values[fieldID])
	after := before + box.XPStep
	if box.XPMax != nil && after > *box.XPMax {
		return nil, l.rejected("request_spend", actor,
			reject(CodeMaxExceeded, "field '%s' would exceed its maximum of %g", fieldID, *box.XPMax))
	}

	d.values[fieldID] = after
	tx := Transaction{
		ID:        l.newID(),
		Type:      TypeSpend,
		Status:    StatusPending,
		FieldID:   fieldID,
		Cost:      box.XPCost,
		Step:      box.XPStep,
		Before:    ptr(before),
		After:     ptr(after),
		XPBefore:  ptr(leftover),
		XPAfter:   ptr(leftover - box.XPCost),
		CreatedBy: actor.ID,
		CreatedAt: l.now(),
	}
	d.txs = append(d.txs, tx)
	l.accepted("request_spend", actor, tx)
	return l.settle(d, tx.ID), nil
}

// ConfirmSpend confirms a pending spend (DM only). The increment is applied
// again only when the field has fallen below the recorded After, so
// confirming twice against a racing write never double-applies it.
func (l *Ledger) ConfirmSpend(actor Actor, sheet Sheet, txID string) (*Payload, error) {
	if r := requireDM(actor, "confirm spends"); r != nil {
		return nil, l.rejected("confirm_spend", actor, r)
	}

	d := l.begin(sheet)
	i, r := d.find(txID, TypeSpend)
	if r == nil && d.txs[i].Status != StatusPending {
		r = reject(CodeInvalidStatus, "only pending transactions can be confirmed (transaction '%s' is %s)", txID, d.txs[i].Status)
	}
	if r != nil {
		return nil, l.rejected("confirm_spend", actor, r)
	}

	tx := d.txs[i].confirmed(actor.ID, l.now())
	d.txs[i] = tx
	if live := expr.ToNumber(d.values[tx.FieldID]); tx.After != nil && live < *tx.After {
		d.values[tx.FieldID] = live + tx.Step
	}
	l.accepted("confirm_spend", actor, tx)
	return l.settle(d, tx.ID), nil
}

// UnlockSpend reverses a confirmed spend (DM only). The field loses the
// step and the cost drops out of xp_used_confirmed.
func (l *Ledger) UnlockSpend(actor Actor, sheet Sheet, txID string) (*Payload, error) {
	if r := requireDM(actor, "unlock spends"); r != nil {
		return nil, l.rejected("unlock_spend", actor, r)
	}

	d := l.begin(sheet)
	i, r := d.find(txID, TypeSpend)
	if r == nil && d.txs[i].Status != StatusConfirmed {
		r = reject(CodeInvalidStatus, "only confirmed spends can be unlocked (transaction '%s' is %s)", txID, d.txs[i].Status)
	}
	if r != nil {
		return nil, l.rejected("unlock_spend", actor, r)
	}

	tx := d.txs[i].unlocked(actor.ID, l.now())
	d.txs[i] = tx
	d.values[tx.FieldID] = expr.ToNumber(d.values[tx.FieldID]) - tx.Step
	l.accepted("unlock_spend", actor, tx)
	return l.settle(d, tx.ID), nil
}

// Cancel reverts a pending award or spend (DM only). A cancelled spend
// gives back its step.
func (l *Ledger) Cancel(actor Actor, sheet Sheet, txID string) (*Payload, error) {
	if r := requireDM(actor, "cancel transactions"); r != nil {
		return nil, l.rejected("cancel", actor, r)
	}

	d := l.begin(sheet)
	i, r := d.find(txID, "")
	if r == nil && d.txs[i].Status != StatusPending {
		r = reject(CodeInvalidStatus, "only pending transactions can be cancelled (transaction '%s' is %s)", txID, d.txs[i].Status)
	}
	if r != nil {
		return nil, l.rejected("cancel", actor, r)
	}

	tx := d.txs[i].reverted(actor.ID, l.now())
	d.txs[i] = tx
	if tx.Type == TypeSpend {
		d.values[tx.FieldID] = expr.ToNumber(d.values[tx.FieldID]) - tx.Step
	}
	l.accepted("cancel", actor, tx)
	return l.settle(d, tx.ID), nil
}

// draft is the working copy of a sheet during one operation.
type draft struct {
	values  map[string]any
	txs     []Transaction
	summary Summary
}

// begin is the first resolver pass: it turns the stored values into a
// complete coerced raw map and folds the log as it stands.
func (l *Ledger) begin(sheet Sheet) *draft {
	res := runtime.Resolve(l.schema, sheet.Values, ruleset.RoleDM)
	txs := append([]Transaction(nil), sheet.Transactions...)
	return &draft{
		values:  res.RawValues,
		txs:     txs,
		summary: Summarize(txs, l.table),
	}
}

// settle trims the log, feeds xp_leftover into the pool field and runs the
// second resolver pass.
func (l *Ledger) settle(d *draft, affected ...string) *Payload {
	if n := len(d.txs); n > MaxTransactions {
		d.txs = append([]Transaction(nil), d.txs[n-MaxTransactions:]...)
	}
	summary := Summarize(d.txs, l.table)
	if pool := l.schema.XPPoolField(); pool != nil {
		d.values[pool.ID] = summary.XPLeftover
	}
	res := runtime.Resolve(l.schema, d.values, ruleset.RoleDM)

	p := &Payload{
		Values:        res.RawValues,
		Resolved:      res.Values,
		Computed:      res.ComputedValues,
		DerivedTotals: res.DerivedTotals,
		Enabled:       res.Enabled,
		Transactions:  d.txs,
		Summary:       summary,
		Errors:        res.Errors,
	}
	for _, id := range affected {
		for _, tx := range d.txs {
			if tx.ID == id {
				p.Affected = append(p.Affected, tx)
				break
			}
		}
	}
	return p
}

// find returns the index of txID. An empty want accepts any type.
func (d *draft) find(txID string, want Type) (int, *Rejection) {
	for i := len(d.txs) - 1; i >= 0; i-- {
		if d.txs[i].ID != txID {
			continue
		}
		if want != "" && d.txs[i].Type != want {
			return i, reject(CodeWrongType, "transaction '%s' is a %s, not a %s", txID, d.txs[i].Type, want)
		}
		return i, nil
	}
	return -1, reject(CodeTransactionNotFound, "transaction '%s' not found", txID)
}

func requireDM(actor Actor, action string) *Rejection {
	if actor.Role != ruleset.RoleDM {
		return reject(CodeForbidden, "only the DM can %s", action)
	}
	return nil
}

func checkAmount(amount float64) *Rejection {
	if !(amount > 0) || math.IsInf(amount, 0) {
		return reject(CodeInvalidAmount, "award amount must be a positive number, got %g", amount)
	}
	return nil
}

func (l *Ledger) accepted(op string, actor Actor, tx Transaction) {
	l.logger.Debug("xp transition",
		zap.String("op", op),
		zap.String("actor", actor.ID),
		zap.String("transaction_id", tx.ID),
		zap.String("type", string(tx.Type)),
		zap.String("status", string(tx.Status)),
	)
}

func (l *Ledger) rejected(op string, actor Actor, r *Rejection) error {
	l.logger.Debug("xp operation rejected",
		zap.String("op", op),
		zap.String("actor", actor.ID),
		zap.String("code", r.Code),
		zap.String("reason", r.Message),
	)
	return r
}
