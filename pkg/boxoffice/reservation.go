package boxoffice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// ReservationManager holds inventory for the duration of a checkout.
type ReservationManager struct {
	store   Store
	nowFn   func() time.Time
	options serviceOptions
}

// NewReservationManager wires a ReservationManager.
func NewReservationManager(store Store, now func() time.Time, options ...ServiceOption) (*ReservationManager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &ReservationManager{store: store, nowFn: now, options: newServiceOptions(options)}, nil
}

// Reserve holds quantity units of a bounded inventory unit until now+ttl.
// The unit row stays locked from the availability check through the insert, so concurrent
// reservations can never push sold plus held above capacity.
func (manager *ReservationManager) Reserve(ctx context.Context, unitID string, quantity int64, ttl time.Duration, reference Reference) (Reservation, error) {
	ctx, endSpan := startSpan(ctx, "boxoffice.Reserve",
		attribute.String("unit.id", unitID),
		attribute.Int64("unit.quantity", quantity),
		attribute.String("payment.reference", reference.String()),
	)
	var reservation Reservation
	err := manager.reserve(ctx, strings.TrimSpace(unitID), quantity, ttl, reference, &reservation)
	endSpan(err)
	manager.options.logOperation(ctx, OperationLog{
		Operation: operationReserve,
		Reference: reference,
		UnitID:    unitID,
		Quantity:  quantity,
		Error:     err,
	})
	if err != nil {
		return Reservation{}, err
	}
	return reservation, nil
}

func (manager *ReservationManager) reserve(ctx context.Context, unitID string, quantity int64, ttl time.Duration, reference Reference, reservation *Reservation) error {
	if unitID == "" {
		return fmt.Errorf("%w: unit id is empty", ErrInvalidRequest)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: must be positive", ErrInvalidQuantity)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: must be positive", ErrInvalidTTL)
	}
	if reference.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidReference)
	}
	ctx, cancel := context.WithTimeout(ctx, manager.options.txTimeout)
	defer cancel()
	return manager.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		now := manager.nowFn().UTC()
		unit, err := txStore.GetInventoryUnitForUpdate(ctx, unitID)
		if err != nil {
			return err
		}
		if err := unit.checkOpen(now); err != nil {
			return err
		}
		if _, err := txStore.ExpireUnitReservations(ctx, unitID, now); err != nil {
			return err
		}
		if unit.Bounded {
			held, err := txStore.SumActiveReservations(ctx, unitID, now)
			if err != nil {
				return err
			}
			available := unit.Capacity - unit.Sold - held
			if available < quantity {
				if available < 0 {
					available = 0
				}
				return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientInventory, quantity, available)
			}
		}
		*reservation = Reservation{
			ReservationID: manager.options.newID(),
			UnitID:        unitID,
			Quantity:      quantity,
			Status:        ReservationStatusReserved,
			ExpiresAt:     now.Add(ttl),
			Reference:     reference,
			CreatedAt:     now,
		}
		return txStore.CreateReservation(ctx, *reservation)
	})
}

// Cancel releases a held reservation immediately. Reservations that are no longer held are left untouched.
func (manager *ReservationManager) Cancel(ctx context.Context, reference Reference) error {
	err := manager.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		reservation, err := txStore.GetReservationByReference(ctx, reference)
		if err != nil {
			return err
		}
		if reservation.Status != ReservationStatusReserved {
			return nil
		}
		return txStore.UpdateReservationStatus(ctx, reservation.ReservationID, ReservationStatusReserved, ReservationStatusCancelled)
	})
	manager.options.logOperation(ctx, OperationLog{
		Operation: operationCancel,
		Reference: reference,
		Error:     err,
	})
	return err
}

// ExpireStale marks every held reservation whose deadline has passed as expired.
// A row that fails to update is logged and skipped; it will be picked up by a later pass.
func (manager *ReservationManager) ExpireStale(ctx context.Context) (int, error) {
	expired := 0
	for {
		now := manager.nowFn().UTC()
		stale, err := manager.store.ListStaleReservations(ctx, now, manager.options.expireBatchSize)
		if err != nil {
			manager.options.logOperation(ctx, OperationLog{Operation: operationExpireStale, Quantity: int64(expired), Error: err})
			return expired, err
		}
		progressed := 0
		for _, reservation := range stale {
			updateErr := manager.store.UpdateReservationStatus(ctx, reservation.ReservationID, ReservationStatusReserved, ReservationStatusExpired)
			if errors.Is(updateErr, ErrReservationClosed) {
				continue
			}
			if updateErr != nil {
				manager.options.logOperation(ctx, OperationLog{
					Operation: operationExpireStale,
					Reference: reservation.Reference,
					UnitID:    reservation.UnitID,
					Error:     updateErr,
				})
				continue
			}
			progressed++
		}
		expired += progressed
		if len(stale) < manager.options.expireBatchSize || progressed == 0 || ctx.Err() != nil {
			break
		}
	}
	manager.options.logOperation(ctx, OperationLog{Operation: operationExpireStale, Quantity: int64(expired)})
	return expired, nil
}
