package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

type (
	// Kind tells whether a transaction brings money in or takes it out.
	Kind uint8

	// OrderStatus is the position of an order in its lifecycle.
	OrderStatus uint8

	// DeliveryMethod is how the customer receives an order.
	DeliveryMethod uint8

	// Unit is the selling unit of a product.
	Unit string

	// TransactionInput is a transaction candidate coming from the input layer,
	// before an identifier and a timestamp are assigned.
	TransactionInput struct {
		Kind     Kind   `json:"kind"`
		Amount   Money  `json:"amount"`
		Category string `json:"category"`
		Note     string `json:"note"`
	}

	Transaction struct {
		ID         string    `json:"id"`
		Kind       Kind      `json:"kind"`
		Amount     Money     `json:"amount"`
		Category   string    `json:"category"`
		Note       string    `json:"note"`
		OccurredAt time.Time `json:"occurred_at"`
	}

	OrderItem struct {
		ProductID   string `json:"product_id"`
		ProductName string `json:"product_name"`
		Quantity    int64  `json:"quantity"`
		UnitPrice   Money  `json:"unit_price"`
	}

	// OrderInput is an order candidate; Total is derived from Items.
	OrderInput struct {
		CustomerName   string         `json:"customer_name"`
		CustomerPhone  string         `json:"customer_phone"`
		Items          []OrderItem    `json:"items"`
		DeliveryMethod DeliveryMethod `json:"delivery_method"`
	}

	Order struct {
		ID             string         `json:"id"`
		CustomerName   string         `json:"customer_name"`
		CustomerPhone  string         `json:"customer_phone"`
		Items          []OrderItem    `json:"items"`
		Total          Money          `json:"total"`
		Status         OrderStatus    `json:"status"`
		DeliveryMethod DeliveryMethod `json:"delivery_method"`
		PlacedAt       time.Time      `json:"placed_at"`
	}

	ProductInput struct {
		Name        string `json:"name"`
		Price       Money  `json:"price"`
		Stock       int64  `json:"stock"`
		Unit        Unit   `json:"unit"`
		Category    string `json:"category"`
		Description string `json:"description"`
	}

	Product struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Price       Money     `json:"price"`
		Stock       int64     `json:"stock"`
		Unit        Unit      `json:"unit"`
		Category    string    `json:"category"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
	}
)

const (
	KindIncome Kind = iota + 1
	KindExpense
)

const (
	StatusPending OrderStatus = iota + 1
	StatusConfirmed
	StatusDelivered
)

const (
	DeliveryPickup DeliveryMethod = iota + 1
	DeliveryCourier
)

const (
	UnitKilogram Unit = "kg"
	UnitGram     Unit = "gram"
	UnitBunch    Unit = "ikat"
	UnitPiece    Unit = "buah"
	UnitPack     Unit = "bungkus"
)

const maxNoteLength = 500

var (
	// ErrInvalidArgument is the kind of every validation failure.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidTransition is returned for an order status move outside the lifecycle.
	ErrInvalidTransition = errors.New("invalid transition")

	ErrInvalidKind           = fmt.Errorf("%w: unknown transaction kind", ErrInvalidArgument)
	ErrInvalidStatus         = fmt.Errorf("%w: unknown order status", ErrInvalidArgument)
	ErrInvalidDeliveryMethod = fmt.Errorf("%w: unknown delivery method", ErrInvalidArgument)
	ErrInvalidUnit           = fmt.Errorf("%w: unknown unit", ErrInvalidArgument)
	ErrInvalidAmount         = fmt.Errorf("%w: amount must not be negative", ErrInvalidArgument)
	ErrInvalidQuantity       = fmt.Errorf("%w: quantity must be positive", ErrInvalidArgument)
	ErrInvalidStock          = fmt.Errorf("%w: stock must not be negative", ErrInvalidArgument)
	ErrInvalidTotal          = fmt.Errorf("%w: order total does not match its items", ErrInvalidArgument)
	ErrEmptyCategory         = fmt.Errorf("%w: empty category", ErrInvalidArgument)
	ErrEmptyCustomer         = fmt.Errorf("%w: empty customer name", ErrInvalidArgument)
	ErrEmptyItems            = fmt.Errorf("%w: order has no items", ErrInvalidArgument)
	ErrEmptyProductName      = fmt.Errorf("%w: empty product name", ErrInvalidArgument)
	ErrEmptyID               = fmt.Errorf("%w: empty identifier", ErrInvalidArgument)
	ErrZeroTimestamp         = fmt.Errorf("%w: missing timestamp", ErrInvalidArgument)
	ErrNoteTooLong           = fmt.Errorf("%w: note too long (max %d characters)", ErrInvalidArgument, maxNoteLength)
)

var kindNames = map[Kind]string{
	KindIncome:  "income",
	KindExpense: "expense",
}

var statusNames = map[OrderStatus]string{
	StatusPending:   "pending",
	StatusConfirmed: "confirmed",
	StatusDelivered: "delivered",
}

var deliveryNames = map[DeliveryMethod]string{
	DeliveryPickup:  "pickup",
	DeliveryCourier: "delivery",
}

// Units lists the selling units offered by the product form.
var Units = []Unit{UnitKilogram, UnitGram, UnitBunch, UnitPiece, UnitPack}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind accepts the canonical names and the Indonesian form labels.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "pemasukan":
		return KindIncome, nil
	case "expense", "pengeluaran":
		return KindExpense, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, ErrInvalidKind
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

func (s OrderStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("OrderStatus(%d)", uint8(s))
}

func (s OrderStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for status, name := range statusNames {
		if name == key {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, ErrInvalidStatus
	}
	return []byte(s.String()), nil
}

func (s *OrderStatus) UnmarshalText(b []byte) error {
	v, err := ParseOrderStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (d DeliveryMethod) String() string {
	if name, ok := deliveryNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DeliveryMethod(%d)", uint8(d))
}

func (d DeliveryMethod) Valid() bool {
	_, ok := deliveryNames[d]
	return ok
}

func ParseDeliveryMethod(s string) (DeliveryMethod, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for method, name := range deliveryNames {
		if name == key {
			return method, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDeliveryMethod, s)
}

func (d DeliveryMethod) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, ErrInvalidDeliveryMethod
	}
	return []byte(d.String()), nil
}

func (d *DeliveryMethod) UnmarshalText(b []byte) error {
	v, err := ParseDeliveryMethod(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (u Unit) Valid() bool {
	return slices.Contains(Units, u)
}

func (in TransactionInput) Validate() error {
	if !in.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(in.Category) == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(in.Note) > maxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}

// NewTransaction turns a validated candidate into a record.
func NewTransaction(id string, in TransactionInput, at time.Time) (Transaction, error) {
	t := Transaction{
		ID:         id,
		Kind:       in.Kind,
		Amount:     in.Amount,
		Category:   strings.TrimSpace(in.Category),
		Note:       strings.TrimSpace(in.Note),
		OccurredAt: at,
	}
	if err := t.Validate(); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if t.OccurredAt.IsZero() {
		return ErrZeroTimestamp
	}
	return TransactionInput{Kind: t.Kind, Amount: t.Amount, Category: t.Category, Note: t.Note}.Validate()
}

func (it OrderItem) Validate() error {
	if it.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return it.UnitPrice.Validate()
}

// Subtotal returns quantity * unit price, failing on overflow.
func (it OrderItem) Subtotal() (Money, error) {
	return it.UnitPrice.Times(it.Quantity)
}

// ItemsTotal sums the subtotals of items.
func ItemsTotal(items []OrderItem) (Money, error) {
	var total Money
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return 0, fmt.Errorf("item %d: %w", i, err)
		}
		sub, err := it.Subtotal()
		if err != nil {
			return 0, fmt.Errorf("item %d: %w", i, err)
		}
		if total, err = total.Add(sub); err != nil {
			return 0, err
		}
	}
	return total, nil
}

func (in OrderInput) Validate() error {
	if strings.TrimSpace(in.CustomerName) == "" {
		return ErrEmptyCustomer
	}
	if len(in.Items) == 0 {
		return ErrEmptyItems
	}
	if !in.DeliveryMethod.Valid() {
		return ErrInvalidDeliveryMethod
	}
	_, err := ItemsTotal(in.Items)
	return err
}

// NewOrder builds a Pending order whose total is computed from its items.
func NewOrder(id string, in OrderInput, at time.Time) (Order, error) {
	if err := in.Validate(); err != nil {
		return Order{}, err
	}
	total, err := ItemsTotal(in.Items)
	if err != nil {
		return Order{}, err
	}
	o := Order{
		ID:             id,
		CustomerName:   strings.TrimSpace(in.CustomerName),
		CustomerPhone:  strings.TrimSpace(in.CustomerPhone),
		Items:          slices.Clone(in.Items),
		Total:          total,
		Status:         StatusPending,
		DeliveryMethod: in.DeliveryMethod,
		PlacedAt:       at,
	}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Validate checks every invariant, recomputing the total from the items
// instead of trusting the stored field.
func (o Order) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return ErrEmptyID
	}
	if o.PlacedAt.IsZero() {
		return ErrZeroTimestamp
	}
	if !o.Status.Valid() {
		return ErrInvalidStatus
	}
	in := OrderInput{
		CustomerName:   o.CustomerName,
		CustomerPhone:  o.CustomerPhone,
		Items:          o.Items,
		DeliveryMethod: o.DeliveryMethod,
	}
	if err := in.Validate(); err != nil {
		return err
	}
	total, err := ItemsTotal(o.Items)
	if err != nil {
		return err
	}
	if total != o.Total {
		return fmt.Errorf("%w: stored %d, items sum to %d", ErrInvalidTotal, o.Total, total)
	}
	return nil
}

// Clone returns a copy that shares no memory with o.
func (o Order) Clone() Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func (in ProductInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrEmptyProductName
	}
	if err := in.Price.Validate(); err != nil {
		return err
	}
	if in.Stock < 0 {
		return ErrInvalidStock
	}
	if !in.Unit.Valid() {
		return ErrInvalidUnit
	}
	if strings.TrimSpace(in.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func NewProduct(id string, in ProductInput, at time.Time) (Product, error) {
	if strings.TrimSpace(id) == "" {
		return Product{}, ErrEmptyID
	}
	if at.IsZero() {
		return Product{}, ErrZeroTimestamp
	}
	if err := in.Validate(); err != nil {
		return Product{}, err
	}
	return Product{
		ID:          id,
		Name:        strings.TrimSpace(in.Name),
		Price:       in.Price,
		Stock:       in.Stock,
		Unit:        in.Unit,
		Category:    strings.TrimSpace(in.Category),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   at,
	}, nil
}

// DefaultCategories returns the categories offered by the transaction form.
func DefaultCategories(k Kind) []string {
	switch k {
	case KindIncome:
		return []string{"Penjualan", "Jasa", "Lain-lain"}
	case KindExpense:
		return []string{"Bahan Baku", "Transportasi", "Makan", "Operasional", "Lain-lain"}
	}
	return nil
}
