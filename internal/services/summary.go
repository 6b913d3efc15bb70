package services

import (
	"fmt"
	"time"

	"warung/internal/core"
)

// SummarizeTransactions reduces the transactions of now's calendar day.
// It shares the bucketing rule of Aggregate.
func SummarizeTransactions(transactions []core.Transaction, now time.Time) (core.TransactionSummary, error) {
	buckets, err := Aggregate(transactions, 1, now)
	if err != nil {
		return core.TransactionSummary{}, err
	}
	today := buckets[0]
	return core.TransactionSummary{
		Income:  today.Income,
		Expense: today.Expense,
		Balance: today.Balance,
	}, nil
}

// SummarizeOrders counts the orders placed on now's calendar day, whatever
// their status, and sums the totals of those already delivered. Revenue is
// only realized on delivery.
func SummarizeOrders(orders []core.Order, now time.Time) (core.OrderSummary, error) {
	today := core.DateOf(now)

	var s core.OrderSummary
	for _, o := range orders {
		if err := o.Validate(); err != nil {
			return core.OrderSummary{}, fmt.Errorf("order %q: %w", o.ID, err)
		}
		if core.DateOf(o.PlacedAt).DaysSince(today) != 0 {
			continue
		}
		s.Count++
		if o.Status != core.StatusDelivered {
			continue
		}
		revenue, err := s.Revenue.Add(o.Total)
		if err != nil {
			return core.OrderSummary{}, err
		}
		s.Revenue = revenue
	}
	return s, nil
}
