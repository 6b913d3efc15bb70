package core

// DayBucket holds the income, expense and balance of one calendar day.
type DayBucket struct {
	Date    Date  `json:"date"`
	Income  Money `json:"income"`
	Expense Money `json:"expense"`
	Balance Money `json:"balance"`
}

// TransactionSummary is the money movement of a single day.
type TransactionSummary struct {
	Income  Money `json:"income"`
	Expense Money `json:"expense"`
	Balance Money `json:"balance"`
}

// OrderSummary counts today's orders and the revenue realized by delivery.
type OrderSummary struct {
	Count   int   `json:"count"`
	Revenue Money `json:"revenue"`
}

// Dashboard is the compact overview shown on the home screen.
type Dashboard struct {
	Date         Date               `json:"date"`
	ProductCount int                `json:"product_count"`
	Transactions TransactionSummary `json:"transactions"`
	Orders       OrderSummary       `json:"orders"`
}
