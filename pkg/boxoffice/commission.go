package boxoffice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred    = decimal.NewFromInt(100)
	maxPercent = decimal.NewFromInt(100)
)

// CommissionSplit divides a gross amount between the platform and the organizer.
type CommissionSplit struct {
	Gross        AmountCents
	PlatformFee  AmountCents
	OrganizerNet AmountCents
}

// ParseRate validates a commission percentage in [0, 100].
func ParseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidRate, err)
	}
	if err := validateRate(rate); err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

func validateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(maxPercent) {
		return fmt.Errorf("%w: %s is outside [0, 100]", ErrInvalidRate, rate.String())
	}
	return nil
}

// Split computes the platform fee as amount*rate/100 rounded half away from zero to the minor unit.
// The organizer receives the remainder, so fee plus net always equals the gross amount.
func Split(amount AmountCents, ratePercent decimal.Decimal) (CommissionSplit, error) {
	if amount < 0 {
		return CommissionSplit{}, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	if err := validateRate(ratePercent); err != nil {
		return CommissionSplit{}, err
	}
	fee := decimal.NewFromInt(amount.Int64()).Mul(ratePercent).Div(hundred).Round(0).IntPart()
	return CommissionSplit{
		Gross:        amount,
		PlatformFee:  AmountCents(fee),
		OrganizerNet: AmountCents(amount.Int64() - fee),
	}, nil
}

// LedgerView summarizes an organizer's earnings.
type LedgerView struct {
	OrganizerID     string
	GrossCents      AmountCents
	CommissionCents AmountCents
	NetCents        AmountCents
	PayoutsCents    AmountCents
	AvailableCents  AmountCents
}

// CommissionLedger reports organizer earnings and manages payouts.
type CommissionLedger struct {
	store   Store
	nowFn   func() time.Time
	options serviceOptions
}

// NewCommissionLedger wires a CommissionLedger.
func NewCommissionLedger(store Store, now func() time.Time, options ...ServiceOption) (*CommissionLedger, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &CommissionLedger{store: store, nowFn: now, options: newServiceOptions(options)}, nil
}

// Balance aggregates successful transactions and committed payouts for an organizer.
func (ledger *CommissionLedger) Balance(ctx context.Context, organizerID string) (LedgerView, error) {
	organizerID = strings.TrimSpace(organizerID)
	if organizerID == "" {
		return LedgerView{}, fmt.Errorf("%w: organizer id is empty", ErrInvalidRequest)
	}
	return balanceOf(ctx, ledger.store, organizerID)
}

func balanceOf(ctx context.Context, store Store, organizerID string) (LedgerView, error) {
	totals, err := store.SumOrganizerTransactions(ctx, organizerID)
	if err != nil {
		return LedgerView{}, err
	}
	payouts, err := store.SumCommittedPayouts(ctx, organizerID)
	if err != nil {
		return LedgerView{}, err
	}
	return LedgerView{
		OrganizerID:     organizerID,
		GrossCents:      totals.GrossCents,
		CommissionCents: totals.CommissionCents,
		NetCents:        totals.NetCents,
		PayoutsCents:    payouts,
		AvailableCents:  totals.NetCents - payouts,
	}, nil
}

// RequestPayout records a pending payout when the organizer's available balance covers it.
func (ledger *CommissionLedger) RequestPayout(ctx context.Context, organizerID string, amount AmountCents) (Payout, error) {
	var payout Payout
	organizerID = strings.TrimSpace(organizerID)
	err := func() error {
		if organizerID == "" {
			return fmt.Errorf("%w: organizer id is empty", ErrInvalidRequest)
		}
		if amount <= 0 {
			return fmt.Errorf("%w: payout must be positive", ErrInvalidAmount)
		}
		return ledger.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			if _, err := txStore.GetOrganizerForUpdate(ctx, organizerID); err != nil {
				return err
			}
			view, err := balanceOf(ctx, txStore, organizerID)
			if err != nil {
				return err
			}
			if view.AvailableCents < amount {
				return fmt.Errorf("%w: requested %s, available %s", ErrInsufficientBalance, amount, view.AvailableCents)
			}
			now := ledger.nowFn().UTC()
			payout = Payout{
				PayoutID:    ledger.options.newID(),
				OrganizerID: organizerID,
				AmountCents: amount,
				Status:      PayoutStatusPending,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			return txStore.CreatePayout(ctx, payout)
		})
	}()
	ledger.options.logOperation(ctx, OperationLog{
		Operation: operationRequestPayout,
		Subject:   organizerID,
		Amount:    amount,
		Error:     err,
	})
	if err != nil {
		return Payout{}, err
	}
	return payout, nil
}

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:    {PayoutStatusProcessing, PayoutStatusCancelled},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
}

func payoutTransitionAllowed(from, to PayoutStatus) bool {
	for _, allowed := range payoutTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionPayout moves a payout along pending, processing, then completed or failed.
// Pending payouts may also be cancelled. Failed and cancelled payouts release their amount.
func (ledger *CommissionLedger) TransitionPayout(ctx context.Context, payoutID string, to PayoutStatus) (Payout, error) {
	var payout Payout
	err := ledger.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		current, err := txStore.GetPayoutForUpdate(ctx, payoutID)
		if err != nil {
			return err
		}
		if !payoutTransitionAllowed(current.Status, to) {
			return fmt.Errorf("%w: payout %s cannot move from %s to %s", ErrInvalidTransition, payoutID, current.Status, to)
		}
		now := ledger.nowFn().UTC()
		if err := txStore.UpdatePayoutStatus(ctx, payoutID, current.Status, to, now); err != nil {
			return err
		}
		current.Status = to
		current.UpdatedAt = now
		payout = current
		return nil
	})
	ledger.options.logOperation(ctx, OperationLog{
		Operation: operationPayoutStatus,
		Subject:   payoutID,
		Amount:    payout.AmountCents,
		Detail:    string(to),
		Error:     err,
	})
	if err != nil {
		return Payout{}, err
	}
	return payout, nil
}
