package boxoffice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// FulfillmentResult reports what a Fulfill call did.
type FulfillmentResult struct {
	Reference        Reference
	AlreadyProcessed bool
	LateConfirmation bool
	Kind             InventoryKind
	Units            []FulfilledUnit
}

// Codes returns the minted unit codes in sequence order.
func (result FulfillmentResult) Codes() []string {
	codes := make([]string, 0, len(result.Units))
	for _, unit := range result.Units {
		codes = append(codes, unit.UnitCode)
	}
	return codes
}

// FulfillmentEngine turns a successful transaction into tickets or votes exactly once.
type FulfillmentEngine struct {
	store   Store
	nowFn   func() time.Time
	options serviceOptions
}

// NewFulfillmentEngine wires a FulfillmentEngine.
func NewFulfillmentEngine(store Store, now func() time.Time, options ...ServiceOption) (*FulfillmentEngine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &FulfillmentEngine{store: store, nowFn: now, options: newServiceOptions(options)}, nil
}

// Fulfill mints the units paid for by a successful transaction, confirms its reservation,
// and credits event revenue and organizer earnings. Repeated or concurrent calls for the same
// reference after the first commit return AlreadyProcessed without side effects.
func (engine *FulfillmentEngine) Fulfill(ctx context.Context, reference Reference) (FulfillmentResult, error) {
	ctx, endSpan := startSpan(ctx, "boxoffice.Fulfill", attribute.String("payment.reference", reference.String()))
	result, transaction, err := engine.fulfill(ctx, reference)
	endSpan(err)

	entry := OperationLog{
		Operation: operationFulfill,
		Reference: reference,
		UnitID:    transaction.orderUnitID(),
		Quantity:  int64(len(result.Units)),
		Amount:    transaction.AmountCents,
		Provider:  transaction.Provider,
		Error:     err,
	}
	switch {
	case result.AlreadyProcessed:
		entry.Detail = "already processed"
	case result.LateConfirmation:
		entry.Detail = "late confirmation: reservation was no longer held"
	}
	engine.options.logOperation(ctx, entry)

	if errors.Is(err, ErrInvalidMetadata) {
		engine.options.notifier.Notify(ctx, Notification{
			Kind:       NotificationFulfillment,
			Subject:    fmt.Sprintf("Transaction %s cannot be fulfilled", reference),
			Body:       err.Error(),
			Attributes: map[string]string{"reference": reference.String()},
		})
	}
	if err != nil {
		return FulfillmentResult{}, err
	}
	if !result.AlreadyProcessed {
		engine.notifyBuyer(ctx, transaction, result)
	}
	return result, nil
}

func (engine *FulfillmentEngine) fulfill(ctx context.Context, reference Reference) (FulfillmentResult, Transaction, error) {
	result := FulfillmentResult{Reference: reference}
	if reference.IsZero() {
		return result, Transaction{}, fmt.Errorf("%w: empty value", ErrInvalidReference)
	}
	ctx, cancel := context.WithTimeout(ctx, engine.options.txTimeout)
	defer cancel()

	var transaction Transaction
	err := engine.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		result = FulfillmentResult{Reference: reference}
		current, err := txStore.GetTransactionForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		transaction = current
		if current.Status != TransactionStatusSuccess {
			return fmt.Errorf("%w: %s is %s", ErrTransactionNotSuccessful, reference, current.Status)
		}
		existing, err := txStore.CountFulfilledUnits(ctx, reference)
		if err != nil {
			return err
		}
		if existing > 0 {
			result.AlreadyProcessed = true
			return nil
		}
		order, err := current.Metadata.Order()
		if err != nil {
			return err
		}
		result.Kind = order.Kind

		unit, err := txStore.GetInventoryUnitForUpdate(ctx, order.UnitID)
		if err != nil {
			return err
		}
		if order.Reserved {
			late, err := confirmReservation(ctx, txStore, reference)
			if err != nil {
				return err
			}
			result.LateConfirmation = late
		}

		now := engine.nowFn().UTC()
		units := make([]FulfilledUnit, 0, order.Quantity)
		for sequence := int64(1); sequence <= order.Quantity; sequence++ {
			units = append(units, FulfilledUnit{
				UnitCode:  MintUnitCode(order.Kind, reference, sequence),
				Reference: reference,
				UnitID:    unit.UnitID,
				EventID:   unit.EventID,
				Kind:      order.Kind,
				Sequence:  sequence,
				CreatedAt: now,
			})
		}
		if err := txStore.InsertFulfilledUnits(ctx, units); err != nil {
			return err
		}
		if err := txStore.IncrementSold(ctx, unit.UnitID, order.Quantity); err != nil {
			return err
		}
		if err := txStore.AddEventRevenue(ctx, current.EventID, current.AmountCents); err != nil {
			return err
		}
		if err := txStore.AddOrganizerEarnings(ctx, current.OrganizerID, current.NetCents); err != nil {
			return err
		}
		result.Units = units
		return nil
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		return FulfillmentResult{Reference: reference, AlreadyProcessed: true}, transaction, nil
	}
	if err != nil {
		return FulfillmentResult{}, transaction, err
	}
	if result.AlreadyProcessed {
		units, listErr := engine.store.ListFulfilledUnits(ctx, reference)
		if listErr == nil {
			result.Units = units
		}
	}
	return result, transaction, nil
}

// confirmReservation flips the held reservation to confirmed. A reservation that already expired or
// was never stored is reported as a late confirmation; the payment is honored anyway.
func confirmReservation(ctx context.Context, txStore Store, reference Reference) (bool, error) {
	reservation, err := txStore.GetReservationByReference(ctx, reference)
	if errors.Is(err, ErrReservationNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	switch reservation.Status {
	case ReservationStatusReserved:
		return false, txStore.UpdateReservationStatus(ctx, reservation.ReservationID, ReservationStatusReserved, ReservationStatusConfirmed)
	case ReservationStatusConfirmed:
		return false, nil
	default:
		return true, nil
	}
}

func (engine *FulfillmentEngine) notifyBuyer(ctx context.Context, transaction Transaction, result FulfillmentResult) {
	if strings.TrimSpace(transaction.PayerContact) == "" || len(result.Units) == 0 {
		return
	}
	noun := "ticket"
	if result.Kind == InventoryKindVote {
		noun = "vote"
	}
	engine.options.notifier.Notify(ctx, Notification{
		Kind:      NotificationUnitsIssued,
		Recipient: transaction.PayerContact,
		Subject:   fmt.Sprintf("Your %s codes for %s", noun, transaction.Reference),
		Body:      strings.Join(result.Codes(), "\n"),
		Attributes: map[string]string{
			"reference": transaction.Reference.String(),
			"kind":      string(result.Kind),
			"quantity":  strconv.Itoa(len(result.Units)),
		},
	})
}

func (transaction Transaction) orderUnitID() string {
	order, err := transaction.Metadata.Order()
	if err != nil {
		return ""
	}
	return order.UnitID
}
