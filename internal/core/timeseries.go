package core

import (
	"fmt"
	"iter"
	"time"
)

// Period is the calendar bucket size for cost projections.
type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// IsValid returns true for a supported bucket size.
func (p Period) IsValid() bool {
	return p == PeriodMonthly || p == PeriodYearly
}

// CostPoint is one bucket of the projected series.
type CostPoint struct {
	Label string
	Total Money
}

// Project buckets every event's total cost (direct plus hidden, taken from
// its decomposition when resolved, the direct amount otherwise) into the
// calendar period containing its timestamp. Periods inside the range with
// no events are still emitted with a zero total so charts keep their gaps.
//
// The returned sequence is lazy, finite and restartable: it depends only on
// its arguments, so ranging over it twice yields the same points.
func Project(events []UsageEvent, decomps []CostDecomposition, bucket Period, from, to Date) (iter.Seq[CostPoint], error) {
	if !bucket.IsValid() {
		return nil, fmt.Errorf("unsupported period %q", bucket)
	}
	if err := from.Validate(); err != nil {
		return nil, fmt.Errorf("range start: %w", err)
	}
	if err := to.Validate(); err != nil {
		return nil, fmt.Errorf("range end: %w", err)
	}
	if to.Before(from.Time) {
		return nil, fmt.Errorf("range end %s before start %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	totalByEvent := make(map[int64]Money, len(decomps))
	for _, d := range decomps {
		totalByEvent[d.EventID] = d.TotalCost
	}

	byLabel := make(map[string]Money)
	endExclusive := to.AddDate(0, 0, 1)
	for _, e := range events {
		occurred := e.OccurredAt.UTC()
		if occurred.Before(from.Time) || !occurred.Before(endExclusive) {
			continue
		}
		total, resolved := totalByEvent[e.ID]
		if !resolved {
			total = e.DirectAmount
		}
		label := bucket.label(occurred)
		byLabel[label] = byLabel[label].Add(total)
	}

	return func(yield func(CostPoint) bool) {
		for cursor := from.Time; !cursor.After(to.Time); cursor = bucket.next(cursor) {
			label := bucket.label(cursor)
			if !yield(CostPoint{Label: label, Total: byLabel[label]}) {
				return
			}
		}
	}, nil
}

func (p Period) label(t time.Time) string {
	if p == PeriodYearly {
		return t.Format("2006")
	}
	return t.Format("2006-01")
}

func (p Period) next(t time.Time) time.Time {
	if p == PeriodYearly {
		return time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
