// Package http serves the ledger as a JSON API.
//
// This file decodes request bodies and query parameters into core inputs.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"warung/internal/core"
)

const maxBodyBytes = 1 << 20

// amountField accepts a JSON number or a typed string such as "Rp 150.000".
type amountField core.Money

func (a *amountField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		m, err := core.ParseAmount(s)
		if err != nil {
			return err
		}
		*a = amountField(m)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: amount must be a whole number", core.ErrInvalidAmount)
	}
	if n < 0 {
		return core.ErrInvalidAmount
	}
	*a = amountField(n)
	return nil
}

type transactionRequest struct {
	Kind     string      `json:"kind"`
	Amount   amountField `json:"amount"`
	Category string      `json:"category"`
	Note     string      `json:"note"`
}

func (r transactionRequest) toInput() (core.TransactionInput, error) {
	kind, err := core.ParseKind(r.Kind)
	if err != nil {
		return core.TransactionInput{}, err
	}
	return core.TransactionInput{
		Kind:     kind,
		Amount:   core.Money(r.Amount),
		Category: sanitizeInput(r.Category),
		Note:     sanitizeInput(r.Note),
	}, nil
}

type orderItemRequest struct {
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	Quantity    int64       `json:"quantity"`
	UnitPrice   amountField `json:"unit_price"`
}

type orderRequest struct {
	CustomerName   string             `json:"customer_name"`
	CustomerPhone  string             `json:"customer_phone"`
	DeliveryMethod string             `json:"delivery_method"`
	Items          []orderItemRequest `json:"items"`
}

func (r orderRequest) toInput() (core.OrderInput, error) {
	method, err := core.ParseDeliveryMethod(r.DeliveryMethod)
	if err != nil {
		return core.OrderInput{}, err
	}
	items := make([]core.OrderItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, core.OrderItem{
			ProductID:   sanitizeInput(it.ProductID),
			ProductName: sanitizeInput(it.ProductName),
			Quantity:    it.Quantity,
			UnitPrice:   core.Money(it.UnitPrice),
		})
	}
	return core.OrderInput{
		CustomerName:   sanitizeInput(r.CustomerName),
		CustomerPhone:  sanitizeInput(r.CustomerPhone),
		DeliveryMethod: method,
		Items:          items,
	}, nil
}

type productRequest struct {
	Name        string      `json:"name"`
	Price       amountField `json:"price"`
	Stock       int64       `json:"stock"`
	Unit        string      `json:"unit"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
}

func (r productRequest) toInput() core.ProductInput {
	return core.ProductInput{
		Name:        sanitizeInput(r.Name),
		Price:       core.Money(r.Price),
		Stock:       r.Stock,
		Unit:        core.Unit(strings.ToLower(strings.TrimSpace(r.Unit))),
		Category:    sanitizeInput(r.Category),
		Description: sanitizeInput(r.Description),
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

// decodeJSON reads a single JSON object from the body. Unknown fields and
// trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, core.ErrInvalidArgument) {
			return err
		}
		return fmt.Errorf("%w: malformed request body: %v", core.ErrInvalidArgument, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: request body must contain a single object", core.ErrInvalidArgument)
	}
	return nil
}

// queryInt parses an optional integer parameter.
func queryInt(query url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", core.ErrInvalidArgument, key)
	}
	return n, nil
}

// queryDate parses an optional YYYY-MM-DD parameter; absent means the zero Date.
func queryDate(query url.Values, key string) (core.Date, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(v)
}
