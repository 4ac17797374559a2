package xp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dlovans/charsheet/pkg/ruleset"
)

func TestSummarize(t *testing.T) {
	at := func(min int) time.Time { return time.Date(2026, 3, 1, 18, min, 0, 0, time.UTC) }
	txs := []Transaction{
		{ID: "a1", Type: TypeSessionAward, Status: StatusConfirmed, Amount: 10, CreatedAt: at(0)},
		{ID: "a2", Type: TypeSessionAward, Status: StatusReverted, Amount: 50, CreatedAt: at(5)},
		{ID: "a3", Type: TypeSessionAward, Status: StatusPending, Amount: 7, CreatedAt: at(3)},
		{ID: "s1", Type: TypeSpend, Status: StatusPending, Cost: 4},
		{ID: "s2", Type: TypeSpend, Status: StatusConfirmed, Cost: 2},
		{ID: "s3", Type: TypeSpend, Status: StatusUnlocked, Cost: 8},
		{ID: "s4", Type: TypeSpend, Status: StatusReverted, Cost: 16},
	}

	got := Summarize(txs, nil)
	assert.Equal(t, float64(10), got.EarnedTotal)
	assert.Equal(t, float64(7), got.EarnedSession, "most recent live award by timestamp")
	assert.Equal(t, float64(2), got.XPUsedConfirmed)
	assert.Equal(t, float64(4), got.XPUsedPending)
	assert.Equal(t, float64(4), got.XPLeftover)
	assert.Equal(t, 1, got.Level)
	assert.Nil(t, got.NextLevelAt)
}

func TestSummarizeEmptyLog(t *testing.T) {
	table := &ruleset.XPProgression{Levels: []*ruleset.XPLevel{
		{Level: 1, Cumulative: 0},
		{Level: 2, Cumulative: 5},
	}}
	got := Summarize(nil, table)
	assert.Equal(t, Summary{Level: 1, NextLevelAt: ptr(5)}, got)
}
