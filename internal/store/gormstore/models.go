package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Organizer mirrors the organizers table.
type Organizer struct {
	OrganizerID      string    `gorm:"primaryKey"`
	Name             string    `gorm:"not null"`
	Email            string    `gorm:"not null;default:''"`
	NetEarningsCents int64     `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (Organizer) TableName() string { return "organizers" }

// Event mirrors the events table.
type Event struct {
	EventID           string    `gorm:"primaryKey"`
	OrganizerID       string    `gorm:"not null;index:idx_events_organizer"`
	Name              string    `gorm:"not null"`
	VotePriceCents    int64     `gorm:"not null;default:0"`
	GrossRevenueCents int64     `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (Event) TableName() string { return "events" }

// InventoryUnit mirrors the inventory_units table.
type InventoryUnit struct {
	UnitID       string     `gorm:"primaryKey"`
	EventID      string     `gorm:"not null;index:idx_inventory_units_event"`
	Kind         string     `gorm:"not null"`
	Name         string     `gorm:"not null"`
	Bounded      bool       `gorm:"not null"`
	Capacity     int64      `gorm:"not null;default:0"`
	SoldCount    int64      `gorm:"not null;default:0"`
	PriceCents   int64      `gorm:"not null"`
	Active       bool       `gorm:"not null"`
	SalesEndAt   *time.Time `gorm:""`
	NominationID *string    `gorm:"uniqueIndex:uniq_inventory_units_nomination"`
	CreatedAt    time.Time  `gorm:"not null"`
	UpdatedAt    time.Time  `gorm:"not null"`
}

func (InventoryUnit) TableName() string { return "inventory_units" }

func (unit *InventoryUnit) BeforeCreate(tx *gorm.DB) error {
	if unit.UnitID == "" {
		unit.UnitID = uuid.NewString()
	}
	return nil
}

// Reservation mirrors the reservations table.
type Reservation struct {
	ReservationID string    `gorm:"primaryKey"`
	UnitID        string    `gorm:"not null;index:idx_reservations_unit_status,priority:1"`
	Quantity      int64     `gorm:"not null"`
	Status        string    `gorm:"not null;index:idx_reservations_unit_status,priority:2;index:idx_reservations_status_expiry,priority:1"`
	ExpiresAt     time.Time `gorm:"not null;index:idx_reservations_status_expiry,priority:2"`
	Reference     string    `gorm:"not null;uniqueIndex:uniq_reservations_reference"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (Reservation) TableName() string { return "reservations" }

func (reservation *Reservation) BeforeCreate(tx *gorm.DB) error {
	if reservation.ReservationID == "" {
		reservation.ReservationID = uuid.NewString()
	}
	return nil
}

// Transaction mirrors the transactions table.
type Transaction struct {
	Reference       string         `gorm:"primaryKey"`
	Provider        string         `gorm:"not null"`
	EventID         string         `gorm:"not null"`
	OrganizerID     string         `gorm:"not null;index:idx_transactions_organizer_status,priority:1"`
	AmountCents     int64          `gorm:"not null"`
	CommissionCents int64          `gorm:"not null"`
	NetCents        int64          `gorm:"not null"`
	Currency        string         `gorm:"not null"`
	Status          string         `gorm:"not null;index:idx_transactions_organizer_status,priority:2"`
	PayerContact    string         `gorm:"not null;default:''"`
	Metadata        datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt       time.Time      `gorm:"not null"`
	UpdatedAt       time.Time      `gorm:"not null"`
	CompletedAt     *time.Time     `gorm:""`
}

func (Transaction) TableName() string { return "transactions" }

// FulfilledUnit mirrors the fulfilled_units table.
type FulfilledUnit struct {
	UnitCode             string    `gorm:"primaryKey"`
	TransactionReference string    `gorm:"not null;uniqueIndex:uniq_fulfilled_units_reference_sequence,priority:1"`
	Sequence             int64     `gorm:"not null;uniqueIndex:uniq_fulfilled_units_reference_sequence,priority:2"`
	UnitID               string    `gorm:"not null;index:idx_fulfilled_units_unit"`
	EventID              string    `gorm:"not null"`
	Kind                 string    `gorm:"not null"`
	CheckedIn            bool      `gorm:"not null;default:false"`
	CreatedAt            time.Time `gorm:"not null"`
}

func (FulfilledUnit) TableName() string { return "fulfilled_units" }

// GatewayHealth mirrors the gateway_health table.
type GatewayHealth struct {
	Provider      string     `gorm:"primaryKey"`
	Enabled       bool       `gorm:"not null"`
	Priority      int        `gorm:"not null;default:0"`
	FailureCount  int        `gorm:"not null;default:0"`
	LastFailureAt *time.Time `gorm:""`
	UpdatedAt     time.Time  `gorm:"not null"`
}

func (GatewayHealth) TableName() string { return "gateway_health" }

// Payout mirrors the payouts table.
type Payout struct {
	PayoutID    string    `gorm:"primaryKey"`
	OrganizerID string    `gorm:"not null;index:idx_payouts_organizer_status,priority:1"`
	AmountCents int64     `gorm:"not null"`
	Status      string    `gorm:"not null;index:idx_payouts_organizer_status,priority:2"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (Payout) TableName() string { return "payouts" }

// Nomination mirrors the nominations table.
type Nomination struct {
	NominationID     string     `gorm:"primaryKey"`
	EventID          string     `gorm:"not null;index:idx_nominations_event"`
	NomineeName      string     `gorm:"not null"`
	NomineeEmail     string     `gorm:"not null;default:''"`
	Status           string     `gorm:"not null"`
	ReviewedBy       string     `gorm:"not null;default:''"`
	ReviewedAt       *time.Time `gorm:""`
	Reason           string     `gorm:"not null;default:''"`
	ContestantUnitID string     `gorm:"not null;default:''"`
	CreatedAt        time.Time  `gorm:"not null"`
	UpdatedAt        time.Time  `gorm:"not null"`
}

func (Nomination) TableName() string { return "nominations" }

// Models lists every table managed by the store, in dependency order.
func Models() []any {
	return []any{
		&Organizer{},
		&Event{},
		&InventoryUnit{},
		&Reservation{},
		&Transaction{},
		&FulfilledUnit{},
		&GatewayHealth{},
		&Payout{},
		&Nomination{},
	}
}
