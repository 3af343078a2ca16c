package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSortReviewQueue(t *testing.T) {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	item := func(name string, p Priority, offset time.Duration, withIssue bool) ReviewQueueItem {
		q := ReviewQueueItem{Report: Report{Remarks: name, SubmittedAt: base.Add(offset)}}
		if withIssue {
			q.Issue = &Issue{Priority: p}
		}
		return q
	}

	items := []ReviewQueueItem{
		item("medium-old", PriorityMedium, 0, true),
		item("urgent-new", PriorityUrgent, 3*time.Hour, true),
		item("orphan", "", time.Minute, false),
		item("urgent-old", PriorityUrgent, time.Hour, true),
		item("low", PriorityLow, -time.Hour, true),
		item("high", PriorityHigh, 5*time.Hour, true),
	}
	SortReviewQueue(items)

	var got []string
	for _, it := range items {
		got = append(got, it.Report.Remarks)
	}
	assert.Equal(t, []string{"urgent-old", "urgent-new", "high", "medium-old", "low", "orphan"}, got)
}

func TestPriorityRank(t *testing.T) {
	assert.Greater(t, PriorityUrgent.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Equal(t, PriorityLow.Rank(), Priority("bogus").Rank())
}

func TestTotalCost(t *testing.T) {
	items := []ResourceItem{
		{Name: "asphalt", Quantity: 4, EstimatedCost: 250},
		{Name: "cones", Quantity: 10, EstimatedCost: 12.5},
	}
	assert.Equal(t, 1125.0, TotalCost(items))
}

func TestNewVerificationTally(t *testing.T) {
	assert.False(t, NewVerificationTally(2, 0).QuorumReached)
	tally := NewVerificationTally(2, 1)
	assert.True(t, tally.QuorumReached)
	assert.True(t, tally.Accurate)
	assert.False(t, NewVerificationTally(1, 2).Accurate)
}
