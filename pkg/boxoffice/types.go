package boxoffice

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AmountCents is a fixed-point currency amount in minor units.
type AmountCents int64

// NewAmountCents validates a non-negative amount.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return AmountCents(raw), nil
}

// ParseAmount converts a decimal string such as "100.00" into minor units.
func ParseAmount(raw string) (AmountCents, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if value.IsNegative() {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	if value.Exponent() < -minorUnitDigits && !value.Equal(value.Truncate(minorUnitDigits)) {
		return 0, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, minorUnitDigits)
	}
	return AmountCents(value.Shift(minorUnitDigits).IntPart()), nil
}

// Int64 returns the raw minor-unit value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Decimal returns the amount in major units.
func (amount AmountCents) Decimal() decimal.Decimal {
	return decimal.New(int64(amount), -minorUnitDigits)
}

// String renders the amount with two decimal places.
func (amount AmountCents) String() string {
	return amount.Decimal().StringFixed(minorUnitDigits)
}

// Reference is the globally unique payment reference shared by a transaction and its reservation.
type Reference struct {
	value string
}

// NewReference validates and normalizes a payment reference.
func NewReference(raw string) (Reference, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Reference{}, fmt.Errorf("%w: empty value", ErrInvalidReference)
	}
	if len(trimmed) > maxReferenceLength {
		return Reference{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidReference, maxReferenceLength)
	}
	return Reference{value: trimmed}, nil
}

// String returns the normalized reference.
func (reference Reference) String() string {
	return reference.value
}

// IsZero reports whether the reference is unset.
func (reference Reference) IsZero() bool {
	return reference.value == ""
}

// ProviderID names a payment provider integration.
type ProviderID string

// NewProviderID validates and lower-cases a provider name.
func NewProviderID(raw string) (ProviderID, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidProvider)
	}
	return ProviderID(normalized), nil
}

// String returns the provider name.
func (provider ProviderID) String() string {
	return string(provider)
}

// InventoryKind distinguishes ticket inventory from vote inventory.
type InventoryKind string

const (
	InventoryKindTicket InventoryKind = "ticket"
	InventoryKindVote   InventoryKind = "vote"
)

// ParseInventoryKind validates a stored inventory kind.
func ParseInventoryKind(raw string) (InventoryKind, error) {
	switch InventoryKind(raw) {
	case InventoryKindTicket, InventoryKindVote:
		return InventoryKind(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown inventory kind %q", ErrInvalidMetadata, raw)
	}
}

// InventoryUnit is a sellable unit: a ticket type or a voting candidate.
type InventoryUnit struct {
	UnitID       string
	EventID      string
	Kind         InventoryKind
	Name         string
	Bounded      bool
	Capacity     int64
	Sold         int64
	PriceCents   AmountCents
	Active       bool
	SalesEndAt   time.Time
	NominationID string
}

// checkOpen rejects units that are deactivated or past their sales window.
func (unit InventoryUnit) checkOpen(now time.Time) error {
	if !unit.Active {
		return fmt.Errorf("%w: sales closed for unit %s", ErrUnitInactive, unit.UnitID)
	}
	if !unit.SalesEndAt.IsZero() && !now.Before(unit.SalesEndAt) {
		return fmt.Errorf("%w: sales window for unit %s ended at %s", ErrUnitInactive, unit.UnitID, unit.SalesEndAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// ReservationStatus defines the reservation lifecycle.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "reserved"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// ParseReservationStatus validates a stored reservation status.
func ParseReservationStatus(raw string) (ReservationStatus, error) {
	switch ReservationStatus(raw) {
	case ReservationStatusReserved, ReservationStatusConfirmed, ReservationStatusExpired, ReservationStatusCancelled:
		return ReservationStatus(raw), nil
	default:
		return "", fmt.Errorf("%w: reservation status %q", ErrInvalidStatus, raw)
	}
}

// String returns the status value.
func (status ReservationStatus) String() string {
	return string(status)
}

// Reservation holds inventory while a buyer completes payment.
type Reservation struct {
	ReservationID string
	UnitID        string
	Quantity      int64
	Status        ReservationStatus
	ExpiresAt     time.Time
	Reference     Reference
	CreatedAt     time.Time
}

// TransactionStatus defines the payment lifecycle.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// ParseTransactionStatus validates a transaction status.
func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	switch TransactionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case TransactionStatusPending:
		return TransactionStatusPending, nil
	case TransactionStatusSuccess:
		return TransactionStatusSuccess, nil
	case TransactionStatusFailed:
		return TransactionStatusFailed, nil
	default:
		return "", fmt.Errorf("%w: transaction status %q", ErrInvalidStatus, raw)
	}
}

// String returns the status value.
func (status TransactionStatus) String() string {
	return string(status)
}

// Terminal reports whether no further transition is permitted.
func (status TransactionStatus) Terminal() bool {
	return status == TransactionStatusSuccess || status == TransactionStatusFailed
}

// MetadataJSON stores the free-form metadata attached to a transaction.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// OrderMetadata is what fulfillment needs to know about a purchase.
type OrderMetadata struct {
	UnitID   string        `json:"unit_id"`
	Quantity int64         `json:"quantity"`
	Kind     InventoryKind `json:"kind"`
	Reserved bool          `json:"reserved"`
}

// NewOrderMetadata encodes order metadata as transaction metadata.
func NewOrderMetadata(order OrderMetadata) (MetadataJSON, error) {
	if err := order.validate(); err != nil {
		return MetadataJSON{}, err
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return MetadataJSON{}, fmt.Errorf("%w: %v", ErrInvalidMetadataJSON, err)
	}
	return MetadataJSON{value: string(raw)}, nil
}

// Order decodes the order metadata, failing with ErrInvalidMetadata when fields are missing.
func (metadata MetadataJSON) Order() (OrderMetadata, error) {
	var order OrderMetadata
	if err := json.Unmarshal([]byte(metadata.String()), &order); err != nil {
		return OrderMetadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if err := order.validate(); err != nil {
		return OrderMetadata{}, err
	}
	return order, nil
}

func (order OrderMetadata) validate() error {
	if strings.TrimSpace(order.UnitID) == "" {
		return fmt.Errorf("%w: unit_id missing", ErrInvalidMetadata)
	}
	if order.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidMetadata)
	}
	if _, err := ParseInventoryKind(string(order.Kind)); err != nil {
		return err
	}
	return nil
}

// Transaction is a payment intent and its outcome.
type Transaction struct {
	Reference       Reference
	Provider        ProviderID
	EventID         string
	OrganizerID     string
	AmountCents     AmountCents
	CommissionCents AmountCents
	NetCents        AmountCents
	Currency        string
	Status          TransactionStatus
	PayerContact    string
	Metadata        MetadataJSON
	CreatedAt       time.Time
	CompletedAt     time.Time
}

// FulfilledUnit is a minted ticket or vote.
type FulfilledUnit struct {
	UnitCode  string
	Reference Reference
	UnitID    string
	EventID   string
	Kind      InventoryKind
	Sequence  int64
	CheckedIn bool
	CreatedAt time.Time
}

// Event groups inventory units and carries aggregate revenue.
type Event struct {
	EventID           string
	OrganizerID       string
	Name              string
	VotePriceCents    AmountCents
	GrossRevenueCents AmountCents
}

// Organizer owns events and receives the net of their sales.
type Organizer struct {
	OrganizerID      string
	Name             string
	Email            string
	NetEarningsCents AmountCents
}

// GatewayHealth is the router's view of one payment provider.
type GatewayHealth struct {
	Provider      ProviderID
	Enabled       bool
	Priority      int
	FailureCount  int
	LastFailureAt time.Time
}

// PayoutStatus defines the payout lifecycle.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusCancelled  PayoutStatus = "cancelled"
)

// ParsePayoutStatus validates a payout status.
func ParsePayoutStatus(raw string) (PayoutStatus, error) {
	switch PayoutStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case PayoutStatusPending:
		return PayoutStatusPending, nil
	case PayoutStatusProcessing:
		return PayoutStatusProcessing, nil
	case PayoutStatusCompleted:
		return PayoutStatusCompleted, nil
	case PayoutStatusFailed:
		return PayoutStatusFailed, nil
	case PayoutStatusCancelled:
		return PayoutStatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: payout status %q", ErrInvalidStatus, raw)
	}
}

// Payout is a withdrawal of organizer earnings.
type Payout struct {
	PayoutID    string
	OrganizerID string
	AmountCents AmountCents
	Status      PayoutStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NominationStatus defines the nomination review lifecycle.
type NominationStatus string

const (
	NominationStatusPending   NominationStatus = "pending"
	NominationStatusApproved  NominationStatus = "approved"
	NominationStatusRejected  NominationStatus = "rejected"
	NominationStatusWithdrawn NominationStatus = "withdrawn"
)

// ParseNominationStatus validates a stored nomination status.
func ParseNominationStatus(raw string) (NominationStatus, error) {
	switch NominationStatus(raw) {
	case NominationStatusPending, NominationStatusApproved, NominationStatusRejected, NominationStatusWithdrawn:
		return NominationStatus(raw), nil
	default:
		return "", fmt.Errorf("%w: nomination status %q", ErrInvalidStatus, raw)
	}
}

// Nomination is a candidacy submission awaiting review.
type Nomination struct {
	NominationID     string
	EventID          string
	NomineeName      string
	NomineeEmail     string
	Status           NominationStatus
	ReviewedBy       string
	ReviewedAt       time.Time
	Reason           string
	ContestantUnitID string
	CreatedAt        time.Time
}

// TransactionTotals aggregates an organizer's successful transactions.
type TransactionTotals struct {
	GrossCents      AmountCents
	CommissionCents AmountCents
	NetCents        AmountCents
}
