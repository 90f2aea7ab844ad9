package boxoffice

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// NominationRequest is a public candidacy submission.
type NominationRequest struct {
	EventID      string
	NomineeName  string
	NomineeEmail string
}

// NominationReviewer moves nominations through review and turns approvals into voting candidates.
type NominationReviewer struct {
	store   Store
	nowFn   func() time.Time
	options serviceOptions
}

// NewNominationReviewer wires a NominationReviewer.
func NewNominationReviewer(store Store, now func() time.Time, options ...ServiceOption) (*NominationReviewer, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &NominationReviewer{store: store, nowFn: now, options: newServiceOptions(options)}, nil
}

// Submit records a pending nomination for an existing event.
func (reviewer *NominationReviewer) Submit(ctx context.Context, request NominationRequest) (Nomination, error) {
	var nomination Nomination
	err := func() error {
		request.EventID = strings.TrimSpace(request.EventID)
		request.NomineeName = strings.TrimSpace(request.NomineeName)
		request.NomineeEmail = strings.TrimSpace(request.NomineeEmail)
		if request.EventID == "" || request.NomineeName == "" {
			return fmt.Errorf("%w: event id and nominee name are required", ErrInvalidRequest)
		}
		if request.NomineeEmail != "" {
			if _, err := mail.ParseAddress(request.NomineeEmail); err != nil {
				return fmt.Errorf("%w: nominee email: %v", ErrInvalidRequest, err)
			}
		}
		return reviewer.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			if _, err := txStore.GetEvent(ctx, request.EventID); err != nil {
				return err
			}
			nomination = Nomination{
				NominationID: reviewer.options.newID(),
				EventID:      request.EventID,
				NomineeName:  request.NomineeName,
				NomineeEmail: request.NomineeEmail,
				Status:       NominationStatusPending,
				CreatedAt:    reviewer.nowFn().UTC(),
			}
			return txStore.CreateNomination(ctx, nomination)
		})
	}()
	reviewer.options.logOperation(ctx, OperationLog{
		Operation: operationSubmitNominee,
		Subject:   nomination.NominationID,
		Detail:    request.EventID,
		Error:     err,
	})
	if err != nil {
		return Nomination{}, err
	}
	return nomination, nil
}

// Approve accepts a pending nomination and creates its unbounded vote inventory unit in the
// same transaction. A second approval fails with ErrAlreadyApproved and creates nothing.
func (reviewer *NominationReviewer) Approve(ctx context.Context, nominationID string, reviewerID string) (Nomination, error) {
	nomination, err := reviewer.review(ctx, nominationID, reviewerID, NominationStatusApproved, "", func(ctx context.Context, txStore Store, nomination *Nomination) error {
		event, err := txStore.GetEvent(ctx, nomination.EventID)
		if err != nil {
			return err
		}
		unit := InventoryUnit{
			UnitID:       reviewer.options.newID(),
			EventID:      nomination.EventID,
			Kind:         InventoryKindVote,
			Name:         nomination.NomineeName,
			Bounded:      false,
			PriceCents:   event.VotePriceCents,
			Active:       true,
			NominationID: nomination.NominationID,
		}
		if err := txStore.CreateInventoryUnit(ctx, unit); err != nil {
			return err
		}
		nomination.ContestantUnitID = unit.UnitID
		return nil
	})
	reviewer.options.logOperation(ctx, OperationLog{
		Operation: operationApproveNominee,
		Subject:   nominationID,
		UnitID:    nomination.ContestantUnitID,
		Detail:    reviewerID,
		Error:     err,
	})
	if err == nil {
		reviewer.notifyNominee(ctx, nomination)
	}
	return nomination, err
}

// Reject declines a pending nomination with an optional reason.
func (reviewer *NominationReviewer) Reject(ctx context.Context, nominationID string, reviewerID string, reason string) (Nomination, error) {
	nomination, err := reviewer.review(ctx, nominationID, reviewerID, NominationStatusRejected, reason, nil)
	reviewer.options.logOperation(ctx, OperationLog{
		Operation: operationRejectNominee,
		Subject:   nominationID,
		Detail:    reviewerID,
		Error:     err,
	})
	if err == nil {
		reviewer.notifyNominee(ctx, nomination)
	}
	return nomination, err
}

// Withdraw retracts a pending nomination.
func (reviewer *NominationReviewer) Withdraw(ctx context.Context, nominationID string, reviewerID string) (Nomination, error) {
	nomination, err := reviewer.review(ctx, nominationID, reviewerID, NominationStatusWithdrawn, "", nil)
	reviewer.options.logOperation(ctx, OperationLog{
		Operation: operationWithdrawNominee,
		Subject:   nominationID,
		Detail:    reviewerID,
		Error:     err,
	})
	return nomination, err
}

// AccessToken returns the token a nominee presents to withdraw their own nomination.
func (reviewer *NominationReviewer) AccessToken(nominationID string) string {
	return reviewer.options.tokens.issue(accessScopeNomination, strings.TrimSpace(nominationID))
}

// WithdrawWithToken retracts a pending nomination for a caller holding its access token.
func (reviewer *NominationReviewer) WithdrawWithToken(ctx context.Context, nominationID string, token string) (Nomination, error) {
	nominationID = strings.TrimSpace(nominationID)
	if !reviewer.options.tokens.verify(accessScopeNomination, nominationID, token) {
		err := fmt.Errorf("%w: nomination %s", ErrInvalidAccessToken, nominationID)
		reviewer.options.logOperation(ctx, OperationLog{
			Operation: operationWithdrawNominee,
			Subject:   nominationID,
			Detail:    nomineeActor,
			Error:     err,
		})
		return Nomination{}, err
	}
	return reviewer.Withdraw(ctx, nominationID, nomineeActor)
}

type reviewEffect func(ctx context.Context, txStore Store, nomination *Nomination) error

func (reviewer *NominationReviewer) review(ctx context.Context, nominationID string, reviewerID string, to NominationStatus, reason string, effect reviewEffect) (Nomination, error) {
	nominationID = strings.TrimSpace(nominationID)
	if nominationID == "" {
		return Nomination{}, fmt.Errorf("%w: nomination id is empty", ErrInvalidRequest)
	}
	var nomination Nomination
	err := reviewer.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		current, err := txStore.GetNominationForUpdate(ctx, nominationID)
		if err != nil {
			return err
		}
		switch {
		case current.Status == NominationStatusApproved:
			return fmt.Errorf("%w: nomination %s", ErrAlreadyApproved, nominationID)
		case current.Status != NominationStatusPending:
			return fmt.Errorf("%w: nomination %s is %s", ErrInvalidTransition, nominationID, current.Status)
		}
		current.Status = to
		current.ReviewedBy = strings.TrimSpace(reviewerID)
		current.ReviewedAt = reviewer.nowFn().UTC()
		current.Reason = strings.TrimSpace(reason)
		if effect != nil {
			if err := effect(ctx, txStore, &current); err != nil {
				return err
			}
		}
		if err := txStore.UpdateNomination(ctx, current, NominationStatusPending); err != nil {
			return err
		}
		nomination = current
		return nil
	})
	if err != nil {
		return Nomination{}, err
	}
	return nomination, nil
}

func (reviewer *NominationReviewer) notifyNominee(ctx context.Context, nomination Nomination) {
	if nomination.NomineeEmail == "" {
		return
	}
	body := fmt.Sprintf("Your nomination for event %s was %s.", nomination.EventID, nomination.Status)
	if nomination.Reason != "" {
		body += " Reason: " + nomination.Reason
	}
	reviewer.options.notifier.Notify(ctx, Notification{
		Kind:      NotificationNominationDone,
		Recipient: nomination.NomineeEmail,
		Subject:   "Nomination " + string(nomination.Status),
		Body:      body,
		Attributes: map[string]string{
			"nomination_id": nomination.NominationID,
			"status":        string(nomination.Status),
		},
	})
}
