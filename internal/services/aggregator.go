// Package services provides business logic and orchestration services.
//
// This file implements the daily cash-flow aggregation: transactions are
// bucketed by calendar day in core.ReferenceZone over a window that ends on
// the reference day.
package services

import (
	"fmt"
	"time"

	"warung/internal/core"
)

// MaxWindowDays is the longest window Aggregate accepts, about a century.
const MaxWindowDays = 36600

// ErrInvalidWindow is returned for a window outside 1..MaxWindowDays.
var ErrInvalidWindow = fmt.Errorf("%w: window must be between 1 and %d days", core.ErrInvalidArgument, MaxWindowDays)

// Aggregate buckets transactions into windowDays consecutive calendar days,
// oldest first, the last bucket being the day of now.
//
// Transactions outside the window are ignored. Every transaction is
// validated; a single invalid record or an overflowing sum fails the whole
// call and no buckets are returned.
func Aggregate(transactions []core.Transaction, windowDays int, now time.Time) ([]core.DayBucket, error) {
	if windowDays <= 0 || windowDays > MaxWindowDays {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, windowDays)
	}

	last := core.DateOf(now)
	first := last.AddDays(-(windowDays - 1))

	buckets := make([]core.DayBucket, windowDays)
	for i := range buckets {
		buckets[i].Date = first.AddDays(i)
	}

	for _, t := range transactions {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %q: %w", t.ID, err)
		}
		idx := core.DateOf(t.OccurredAt).DaysSince(first)
		if idx < 0 || idx >= windowDays {
			continue
		}
		b := &buckets[idx]
		var err error
		switch t.Kind {
		case core.KindIncome:
			b.Income, err = b.Income.Add(t.Amount)
		case core.KindExpense:
			b.Expense, err = b.Expense.Add(t.Amount)
		}
		if err != nil {
			return nil, fmt.Errorf("bucket %s: %w", b.Date, err)
		}
	}

	for i := range buckets {
		balance, err := buckets[i].Income.Sub(buckets[i].Expense)
		if err != nil {
			return nil, fmt.Errorf("bucket %s: %w", buckets[i].Date, err)
		}
		buckets[i].Balance = balance
	}

	return buckets, nil
}

// MaxMagnitude returns the largest income or expense across buckets, the
// value a chart scales its bars against. It is zero for no buckets.
func MaxMagnitude(buckets []core.DayBucket) core.Money {
	var m core.Money
	for _, b := range buckets {
		m = max(m, b.Income, b.Expense)
	}
	return m
}
