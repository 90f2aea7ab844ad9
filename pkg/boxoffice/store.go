package boxoffice

import (
	"context"
	"time"
)

// Store is the persistence contract behind every engine service.
// Methods suffixed ForUpdate take a row lock and are only meaningful inside WithTx.
// Update*Status methods are compare-and-swap: they fail when the row is not in the from state.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	GetEvent(ctx context.Context, eventID string) (Event, error)
	AddEventRevenue(ctx context.Context, eventID string, amount AmountCents) error
	GetOrganizerForUpdate(ctx context.Context, organizerID string) (Organizer, error)
	AddOrganizerEarnings(ctx context.Context, organizerID string, amount AmountCents) error

	GetInventoryUnit(ctx context.Context, unitID string) (InventoryUnit, error)
	GetInventoryUnitForUpdate(ctx context.Context, unitID string) (InventoryUnit, error)
	CreateInventoryUnit(ctx context.Context, unit InventoryUnit) error
	IncrementSold(ctx context.Context, unitID string, quantity int64) error

	CreateReservation(ctx context.Context, reservation Reservation) error
	GetReservationByReference(ctx context.Context, reference Reference) (Reservation, error)
	SumActiveReservations(ctx context.Context, unitID string, at time.Time) (int64, error)
	ExpireUnitReservations(ctx context.Context, unitID string, at time.Time) (int64, error)
	ListStaleReservations(ctx context.Context, at time.Time, limit int) ([]Reservation, error)
	UpdateReservationStatus(ctx context.Context, reservationID string, from, to ReservationStatus) error

	CreateTransaction(ctx context.Context, transaction Transaction) error
	GetTransaction(ctx context.Context, reference Reference) (Transaction, error)
	GetTransactionForUpdate(ctx context.Context, reference Reference) (Transaction, error)
	UpdateTransactionStatus(ctx context.Context, reference Reference, from, to TransactionStatus, at time.Time) error
	CountFulfilledUnits(ctx context.Context, reference Reference) (int64, error)
	InsertFulfilledUnits(ctx context.Context, units []FulfilledUnit) error
	ListFulfilledUnits(ctx context.Context, reference Reference) ([]FulfilledUnit, error)

	SumOrganizerTransactions(ctx context.Context, organizerID string) (TransactionTotals, error)
	SumCommittedPayouts(ctx context.Context, organizerID string) (AmountCents, error)
	CreatePayout(ctx context.Context, payout Payout) error
	GetPayoutForUpdate(ctx context.Context, payoutID string) (Payout, error)
	UpdatePayoutStatus(ctx context.Context, payoutID string, from, to PayoutStatus, at time.Time) error

	EnsureGateway(ctx context.Context, health GatewayHealth) error
	ListGateways(ctx context.Context) ([]GatewayHealth, error)
	RecordGatewaySuccess(ctx context.Context, provider ProviderID) error
	RecordGatewayFailure(ctx context.Context, provider ProviderID, at time.Time) (GatewayHealth, error)
	SetGatewayPrimary(ctx context.Context, provider ProviderID) error

	CreateNomination(ctx context.Context, nomination Nomination) error
	GetNominationForUpdate(ctx context.Context, nominationID string) (Nomination, error)
	UpdateNomination(ctx context.Context, nomination Nomination, from NominationStatus) error
}
