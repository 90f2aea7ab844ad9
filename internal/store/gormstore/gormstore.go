package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMetadataJSON      = "{}"
	pgUniqueViolationCode    = "23505"
	sqliteConstraintCode     = 19
	errorOperationStore      = "store"
	errorSubjectEvent        = "event"
	errorSubjectOrganizer    = "organizer"
	errorSubjectUnit         = "inventory_unit"
	errorSubjectReservation  = "reservation"
	errorSubjectTransaction  = "transaction"
	errorSubjectFulfilled    = "fulfilled_unit"
	errorSubjectPayout       = "payout"
	errorSubjectGateway      = "gateway"
	errorSubjectNomination   = "nomination"
	errorCodeCreate          = "create"
	errorCodeDuplicate       = "duplicate"
	errorCodeGet             = "get"
	errorCodeInsert          = "insert"
	errorCodeInvalid         = "invalid"
	errorCodeList            = "list"
	errorCodeSum             = "sum"
	errorCodeUpdate          = "update"
	errorCodeUpdateStatus    = "update_status"
	lockStrengthUpdate       = "UPDATE"
	columnSoldCount          = "sold_count"
	columnFailureCount       = "failure_count"
	committedPayoutStatusSQL = "status IN ?"
)

var committedPayoutStatuses = []string{
	string(boxoffice.PayoutStatusPending),
	string(boxoffice.PayoutStatusProcessing),
	string(boxoffice.PayoutStatusCompleted),
}

// Store implements boxoffice.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates every table the store uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore boxoffice.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// Ping checks that the database answers.
func (store *Store) Ping(ctx context.Context) error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (store *Store) locked(ctx context.Context) *gorm.DB {
	return store.db.WithContext(ctx).Clauses(clause.Locking{Strength: lockStrengthUpdate})
}

func (store *Store) GetEvent(ctx context.Context, eventID string) (boxoffice.Event, error) {
	var model Event
	err := store.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&model).Error
	if err != nil {
		return boxoffice.Event{}, wrapLookupError(errorSubjectEvent, err, boxoffice.ErrEventNotFound)
	}
	return boxoffice.Event{
		EventID:           model.EventID,
		OrganizerID:       model.OrganizerID,
		Name:              model.Name,
		VotePriceCents:    boxoffice.AmountCents(model.VotePriceCents),
		GrossRevenueCents: boxoffice.AmountCents(model.GrossRevenueCents),
	}, nil
}

func (store *Store) AddEventRevenue(ctx context.Context, eventID string, amount boxoffice.AmountCents) error {
	result := store.db.WithContext(ctx).
		Model(&Event{}).
		Where("event_id = ?", eventID).
		Update("gross_revenue_cents", gorm.Expr("gross_revenue_cents + ?", amount.Int64()))
	return checkUpdated(errorSubjectEvent, result, boxoffice.ErrEventNotFound)
}

func (store *Store) GetOrganizerForUpdate(ctx context.Context, organizerID string) (boxoffice.Organizer, error) {
	var model Organizer
	err := store.locked(ctx).Where("organizer_id = ?", organizerID).Take(&model).Error
	if err != nil {
		return boxoffice.Organizer{}, wrapLookupError(errorSubjectOrganizer, err, boxoffice.ErrOrganizerNotFound)
	}
	return boxoffice.Organizer{
		OrganizerID:      model.OrganizerID,
		Name:             model.Name,
		Email:            model.Email,
		NetEarningsCents: boxoffice.AmountCents(model.NetEarningsCents),
	}, nil
}

func (store *Store) AddOrganizerEarnings(ctx context.Context, organizerID string, amount boxoffice.AmountCents) error {
	result := store.db.WithContext(ctx).
		Model(&Organizer{}).
		Where("organizer_id = ?", organizerID).
		Update("net_earnings_cents", gorm.Expr("net_earnings_cents + ?", amount.Int64()))
	return checkUpdated(errorSubjectOrganizer, result, boxoffice.ErrOrganizerNotFound)
}

func (store *Store) GetInventoryUnit(ctx context.Context, unitID string) (boxoffice.InventoryUnit, error) {
	return store.getInventoryUnit(store.db.WithContext(ctx), unitID)
}

func (store *Store) GetInventoryUnitForUpdate(ctx context.Context, unitID string) (boxoffice.InventoryUnit, error) {
	return store.getInventoryUnit(store.locked(ctx), unitID)
}

func (store *Store) getInventoryUnit(db *gorm.DB, unitID string) (boxoffice.InventoryUnit, error) {
	var model InventoryUnit
	if err := db.Where("unit_id = ?", unitID).Take(&model).Error; err != nil {
		return boxoffice.InventoryUnit{}, wrapLookupError(errorSubjectUnit, err, boxoffice.ErrUnitNotFound)
	}
	unit, err := mapInventoryUnit(model)
	if err != nil {
		return boxoffice.InventoryUnit{}, wrapStoreError(errorSubjectUnit, errorCodeInvalid, err)
	}
	return unit, nil
}

func (store *Store) CreateInventoryUnit(ctx context.Context, unit boxoffice.InventoryUnit) error {
	model := inventoryUnitModel(unit)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectUnit, errorCodeDuplicate, fmt.Errorf("%w: unit for nomination %s exists", boxoffice.ErrAlreadyApproved, unit.NominationID))
	}
	if err != nil {
		return wrapStoreError(errorSubjectUnit, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) IncrementSold(ctx context.Context, unitID string, quantity int64) error {
	result := store.db.WithContext(ctx).
		Model(&InventoryUnit{}).
		Where("unit_id = ?", unitID).
		Updates(map[string]any{
			columnSoldCount: gorm.Expr(columnSoldCount+" + ?", quantity),
			"updated_at":    time.Now().UTC(),
		})
	return checkUpdated(errorSubjectUnit, result, boxoffice.ErrUnitNotFound)
}

func (store *Store) CreateReservation(ctx context.Context, reservation boxoffice.Reservation) error {
	model := Reservation{
		ReservationID: reservation.ReservationID,
		UnitID:        reservation.UnitID,
		Quantity:      reservation.Quantity,
		Status:        reservation.Status.String(),
		ExpiresAt:     reservation.ExpiresAt.UTC(),
		Reference:     reservation.Reference.String(),
		CreatedAt:     reservation.CreatedAt.UTC(),
		UpdatedAt:     reservation.CreatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, boxoffice.ErrDuplicateReference)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetReservationByReference(ctx context.Context, reference boxoffice.Reference) (boxoffice.Reservation, error) {
	var model Reservation
	err := store.db.WithContext(ctx).Where("reference = ?", reference.String()).Take(&model).Error
	if err != nil {
		return boxoffice.Reservation{}, wrapLookupError(errorSubjectReservation, err, boxoffice.ErrReservationNotFound)
	}
	reservation, err := mapReservation(model)
	if err != nil {
		return boxoffice.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	return reservation, nil
}

func (store *Store) SumActiveReservations(ctx context.Context, unitID string, at time.Time) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Select("coalesce(sum(quantity),0) as total").
		Where("unit_id = ? AND status = ? AND expires_at > ?", unitID, boxoffice.ReservationStatusReserved.String(), at.UTC()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeSum, err)
	}
	return sum.Total, nil
}

func (store *Store) ExpireUnitReservations(ctx context.Context, unitID string, at time.Time) (int64, error) {
	result := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("unit_id = ? AND status = ? AND expires_at <= ?", unitID, boxoffice.ReservationStatusReserved.String(), at.UTC()).
		Updates(map[string]any{"status": boxoffice.ReservationStatusExpired.String(), "updated_at": at.UTC()})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, result.Error)
	}
	return result.RowsAffected, nil
}

func (store *Store) ListStaleReservations(ctx context.Context, at time.Time, limit int) ([]boxoffice.Reservation, error) {
	var rows []Reservation
	err := store.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", boxoffice.ReservationStatusReserved.String(), at.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	reservations := make([]boxoffice.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapReservation(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

func (store *Store) UpdateReservationStatus(ctx context.Context, reservationID string, from, to boxoffice.ReservationStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("reservation_id = ? AND status = ?", reservationID, from.String()).
		Updates(map[string]any{"status": to.String(), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, boxoffice.ErrReservationClosed)
	}
	return nil
}

func (store *Store) CreateTransaction(ctx context.Context, transaction boxoffice.Transaction) error {
	model := Transaction{
		Reference:       transaction.Reference.String(),
		Provider:        transaction.Provider.String(),
		EventID:         transaction.EventID,
		OrganizerID:     transaction.OrganizerID,
		AmountCents:     transaction.AmountCents.Int64(),
		CommissionCents: transaction.CommissionCents.Int64(),
		NetCents:        transaction.NetCents.Int64(),
		Currency:        transaction.Currency,
		Status:          transaction.Status.String(),
		PayerContact:    transaction.PayerContact,
		Metadata:        datatypesJSON(transaction.Metadata.String()),
		CreatedAt:       transaction.CreatedAt.UTC(),
		UpdatedAt:       transaction.CreatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, boxoffice.ErrDuplicateReference)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetTransaction(ctx context.Context, reference boxoffice.Reference) (boxoffice.Transaction, error) {
	return store.getTransaction(store.db.WithContext(ctx), reference)
}

func (store *Store) GetTransactionForUpdate(ctx context.Context, reference boxoffice.Reference) (boxoffice.Transaction, error) {
	return store.getTransaction(store.locked(ctx), reference)
}

func (store *Store) getTransaction(db *gorm.DB, reference boxoffice.Reference) (boxoffice.Transaction, error) {
	var model Transaction
	if err := db.Where("reference = ?", reference.String()).Take(&model).Error; err != nil {
		return boxoffice.Transaction{}, wrapLookupError(errorSubjectTransaction, err, boxoffice.ErrTransactionNotFound)
	}
	transaction, err := mapTransaction(model)
	if err != nil {
		return boxoffice.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return transaction, nil
}

func (store *Store) UpdateTransactionStatus(ctx context.Context, reference boxoffice.Reference, from, to boxoffice.TransactionStatus, at time.Time) error {
	updates := map[string]any{"status": to.String(), "updated_at": at.UTC()}
	if to.Terminal() {
		updates["completed_at"] = at.UTC()
	}
	result := store.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("reference = ? AND status = ?", reference.String(), from.String()).
		Updates(updates)
	if result.Error != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, fmt.Errorf("%w: %s is not %s", boxoffice.ErrInvalidTransition, reference, from))
	}
	return nil
}

func (store *Store) CountFulfilledUnits(ctx context.Context, reference boxoffice.Reference) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&FulfilledUnit{}).
		Where("transaction_reference = ?", reference.String()).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectFulfilled, errorCodeSum, err)
	}
	return count, nil
}

func (store *Store) InsertFulfilledUnits(ctx context.Context, units []boxoffice.FulfilledUnit) error {
	if len(units) == 0 {
		return nil
	}
	models := make([]FulfilledUnit, 0, len(units))
	for _, unit := range units {
		models = append(models, FulfilledUnit{
			UnitCode:             unit.UnitCode,
			TransactionReference: unit.Reference.String(),
			Sequence:             unit.Sequence,
			UnitID:               unit.UnitID,
			EventID:              unit.EventID,
			Kind:                 string(unit.Kind),
			CheckedIn:            unit.CheckedIn,
			CreatedAt:            unit.CreatedAt.UTC(),
		})
	}
	err := store.db.WithContext(ctx).Create(&models).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectFulfilled, errorCodeDuplicate, boxoffice.ErrAlreadyProcessed)
	}
	if err != nil {
		return wrapStoreError(errorSubjectFulfilled, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListFulfilledUnits(ctx context.Context, reference boxoffice.Reference) ([]boxoffice.FulfilledUnit, error) {
	var rows []FulfilledUnit
	err := store.db.WithContext(ctx).
		Where("transaction_reference = ?", reference.String()).
		Order("sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectFulfilled, errorCodeList, err)
	}
	units := make([]boxoffice.FulfilledUnit, 0, len(rows))
	for _, row := range rows {
		kind, err := boxoffice.ParseInventoryKind(row.Kind)
		if err != nil {
			return nil, wrapStoreError(errorSubjectFulfilled, errorCodeInvalid, err)
		}
		units = append(units, boxoffice.FulfilledUnit{
			UnitCode:  row.UnitCode,
			Reference: reference,
			UnitID:    row.UnitID,
			EventID:   row.EventID,
			Kind:      kind,
			Sequence:  row.Sequence,
			CheckedIn: row.CheckedIn,
			CreatedAt: row.CreatedAt,
		})
	}
	return units, nil
}

func (store *Store) SumOrganizerTransactions(ctx context.Context, organizerID string) (boxoffice.TransactionTotals, error) {
	var totals struct {
		Gross      int64
		Commission int64
		Net        int64
	}
	err := store.db.WithContext(ctx).
		Model(&Transaction{}).
		Select("coalesce(sum(amount_cents),0) as gross, coalesce(sum(commission_cents),0) as commission, coalesce(sum(net_cents),0) as net").
		Where("organizer_id = ? AND status = ?", organizerID, boxoffice.TransactionStatusSuccess.String()).
		Scan(&totals).Error
	if err != nil {
		return boxoffice.TransactionTotals{}, wrapStoreError(errorSubjectTransaction, errorCodeSum, err)
	}
	return boxoffice.TransactionTotals{
		GrossCents:      boxoffice.AmountCents(totals.Gross),
		CommissionCents: boxoffice.AmountCents(totals.Commission),
		NetCents:        boxoffice.AmountCents(totals.Net),
	}, nil
}

func (store *Store) SumCommittedPayouts(ctx context.Context, organizerID string) (boxoffice.AmountCents, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&Payout{}).
		Select("coalesce(sum(amount_cents),0) as total").
		Where("organizer_id = ?", organizerID).
		Where(committedPayoutStatusSQL, committedPayoutStatuses).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectPayout, errorCodeSum, err)
	}
	return boxoffice.AmountCents(sum.Total), nil
}

func (store *Store) CreatePayout(ctx context.Context, payout boxoffice.Payout) error {
	model := Payout{
		PayoutID:    payout.PayoutID,
		OrganizerID: payout.OrganizerID,
		AmountCents: payout.AmountCents.Int64(),
		Status:      string(payout.Status),
		CreatedAt:   payout.CreatedAt.UTC(),
		UpdatedAt:   payout.UpdatedAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectPayout, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetPayoutForUpdate(ctx context.Context, payoutID string) (boxoffice.Payout, error) {
	var model Payout
	if err := store.locked(ctx).Where("payout_id = ?", payoutID).Take(&model).Error; err != nil {
		return boxoffice.Payout{}, wrapLookupError(errorSubjectPayout, err, boxoffice.ErrPayoutNotFound)
	}
	status, err := boxoffice.ParsePayoutStatus(model.Status)
	if err != nil {
		return boxoffice.Payout{}, wrapStoreError(errorSubjectPayout, errorCodeInvalid, err)
	}
	return boxoffice.Payout{
		PayoutID:    model.PayoutID,
		OrganizerID: model.OrganizerID,
		AmountCents: boxoffice.AmountCents(model.AmountCents),
		Status:      status,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}, nil
}

func (store *Store) UpdatePayoutStatus(ctx context.Context, payoutID string, from, to boxoffice.PayoutStatus, at time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&Payout{}).
		Where("payout_id = ? AND status = ?", payoutID, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": at.UTC()})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPayout, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPayout, errorCodeUpdateStatus, boxoffice.ErrInvalidTransition)
	}
	return nil
}

func (store *Store) EnsureGateway(ctx context.Context, health boxoffice.GatewayHealth) error {
	model := GatewayHealth{
		Provider:     health.Provider.String(),
		Enabled:      health.Enabled,
		Priority:     health.Priority,
		FailureCount: health.FailureCount,
		UpdatedAt:    time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "provider"}}, DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectGateway, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) ListGateways(ctx context.Context) ([]boxoffice.GatewayHealth, error) {
	var rows []GatewayHealth
	if err := store.db.WithContext(ctx).Order("provider ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectGateway, errorCodeList, err)
	}
	gateways := make([]boxoffice.GatewayHealth, 0, len(rows))
	for _, row := range rows {
		gateways = append(gateways, mapGateway(row))
	}
	return gateways, nil
}

func (store *Store) RecordGatewaySuccess(ctx context.Context, provider boxoffice.ProviderID) error {
	result := store.db.WithContext(ctx).
		Model(&GatewayHealth{}).
		Where("provider = ?", provider.String()).
		Updates(map[string]any{columnFailureCount: 0, "updated_at": time.Now().UTC()})
	return checkUpdated(errorSubjectGateway, result, boxoffice.ErrUnknownProvider)
}

func (store *Store) RecordGatewayFailure(ctx context.Context, provider boxoffice.ProviderID, at time.Time) (boxoffice.GatewayHealth, error) {
	result := store.db.WithContext(ctx).
		Model(&GatewayHealth{}).
		Where("provider = ?", provider.String()).
		Updates(map[string]any{
			columnFailureCount: gorm.Expr(columnFailureCount + " + 1"),
			"last_failure_at":  at.UTC(),
			"updated_at":       at.UTC(),
		})
	if err := checkUpdated(errorSubjectGateway, result, boxoffice.ErrUnknownProvider); err != nil {
		return boxoffice.GatewayHealth{}, err
	}
	var model GatewayHealth
	if err := store.db.WithContext(ctx).Where("provider = ?", provider.String()).Take(&model).Error; err != nil {
		return boxoffice.GatewayHealth{}, wrapLookupError(errorSubjectGateway, err, boxoffice.ErrUnknownProvider)
	}
	return mapGateway(model), nil
}

func (store *Store) SetGatewayPrimary(ctx context.Context, provider boxoffice.ProviderID) error {
	var count int64
	if err := store.db.WithContext(ctx).Model(&GatewayHealth{}).Where("provider = ?", provider.String()).Count(&count).Error; err != nil {
		return wrapStoreError(errorSubjectGateway, errorCodeGet, err)
	}
	if count == 0 {
		return wrapStoreError(errorSubjectGateway, errorCodeGet, fmt.Errorf("%w: %s", boxoffice.ErrUnknownProvider, provider))
	}
	now := time.Now().UTC()
	err := store.db.WithContext(ctx).
		Model(&GatewayHealth{}).
		Where("provider <> ?", provider.String()).
		Updates(map[string]any{"enabled": false, "updated_at": now}).Error
	if err != nil {
		return wrapStoreError(errorSubjectGateway, errorCodeUpdate, err)
	}
	err = store.db.WithContext(ctx).
		Model(&GatewayHealth{}).
		Where("provider = ?", provider.String()).
		Updates(map[string]any{"enabled": true, "updated_at": now}).Error
	if err != nil {
		return wrapStoreError(errorSubjectGateway, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) CreateNomination(ctx context.Context, nomination boxoffice.Nomination) error {
	model := Nomination{
		NominationID: nomination.NominationID,
		EventID:      nomination.EventID,
		NomineeName:  nomination.NomineeName,
		NomineeEmail: nomination.NomineeEmail,
		Status:       string(nomination.Status),
		CreatedAt:    nomination.CreatedAt.UTC(),
		UpdatedAt:    nomination.CreatedAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectNomination, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetNominationForUpdate(ctx context.Context, nominationID string) (boxoffice.Nomination, error) {
	var model Nomination
	if err := store.locked(ctx).Where("nomination_id = ?", nominationID).Take(&model).Error; err != nil {
		return boxoffice.Nomination{}, wrapLookupError(errorSubjectNomination, err, boxoffice.ErrNominationNotFound)
	}
	status, err := boxoffice.ParseNominationStatus(model.Status)
	if err != nil {
		return boxoffice.Nomination{}, wrapStoreError(errorSubjectNomination, errorCodeInvalid, err)
	}
	return boxoffice.Nomination{
		NominationID:     model.NominationID,
		EventID:          model.EventID,
		NomineeName:      model.NomineeName,
		NomineeEmail:     model.NomineeEmail,
		Status:           status,
		ReviewedBy:       model.ReviewedBy,
		ReviewedAt:       timeOrZero(model.ReviewedAt),
		Reason:           model.Reason,
		ContestantUnitID: model.ContestantUnitID,
		CreatedAt:        model.CreatedAt,
	}, nil
}

func (store *Store) UpdateNomination(ctx context.Context, nomination boxoffice.Nomination, from boxoffice.NominationStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Nomination{}).
		Where("nomination_id = ? AND status = ?", nomination.NominationID, string(from)).
		Updates(map[string]any{
			"status":             string(nomination.Status),
			"reviewed_by":        nomination.ReviewedBy,
			"reviewed_at":        timePointer(nomination.ReviewedAt),
			"reason":             nomination.Reason,
			"contestant_unit_id": nomination.ContestantUnitID,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectNomination, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectNomination, errorCodeUpdateStatus, boxoffice.ErrInvalidTransition)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return boxoffice.WrapError(errorOperationStore, subject, code, err)
}

func wrapLookupError(subject string, err error, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wrapStoreError(subject, errorCodeGet, notFound)
	}
	return wrapStoreError(subject, errorCodeGet, err)
}

func checkUpdated(subject string, result *gorm.DB, notFound error) error {
	if result.Error != nil {
		return wrapStoreError(subject, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(subject, errorCodeUpdate, notFound)
	}
	return nil
}

type sqlSum struct {
	Total int64
}

func mapInventoryUnit(model InventoryUnit) (boxoffice.InventoryUnit, error) {
	kind, err := boxoffice.ParseInventoryKind(model.Kind)
	if err != nil {
		return boxoffice.InventoryUnit{}, err
	}
	unit := boxoffice.InventoryUnit{
		UnitID:     model.UnitID,
		EventID:    model.EventID,
		Kind:       kind,
		Name:       model.Name,
		Bounded:    model.Bounded,
		Capacity:   model.Capacity,
		Sold:       model.SoldCount,
		PriceCents: boxoffice.AmountCents(model.PriceCents),
		Active:     model.Active,
		SalesEndAt: timeOrZero(model.SalesEndAt),
	}
	if model.NominationID != nil {
		unit.NominationID = *model.NominationID
	}
	return unit, nil
}

func inventoryUnitModel(unit boxoffice.InventoryUnit) InventoryUnit {
	now := time.Now().UTC()
	model := InventoryUnit{
		UnitID:     unit.UnitID,
		EventID:    unit.EventID,
		Kind:       string(unit.Kind),
		Name:       unit.Name,
		Bounded:    unit.Bounded,
		Capacity:   unit.Capacity,
		SoldCount:  unit.Sold,
		PriceCents: unit.PriceCents.Int64(),
		Active:     unit.Active,
		SalesEndAt: timePointer(unit.SalesEndAt),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if unit.NominationID != "" {
		nominationID := unit.NominationID
		model.NominationID = &nominationID
	}
	return model
}

func mapReservation(model Reservation) (boxoffice.Reservation, error) {
	status, err := boxoffice.ParseReservationStatus(model.Status)
	if err != nil {
		return boxoffice.Reservation{}, err
	}
	reference, err := boxoffice.NewReference(model.Reference)
	if err != nil {
		return boxoffice.Reservation{}, err
	}
	return boxoffice.Reservation{
		ReservationID: model.ReservationID,
		UnitID:        model.UnitID,
		Quantity:      model.Quantity,
		Status:        status,
		ExpiresAt:     model.ExpiresAt.UTC(),
		Reference:     reference,
		CreatedAt:     model.CreatedAt.UTC(),
	}, nil
}

func mapTransaction(model Transaction) (boxoffice.Transaction, error) {
	reference, err := boxoffice.NewReference(model.Reference)
	if err != nil {
		return boxoffice.Transaction{}, err
	}
	status, err := boxoffice.ParseTransactionStatus(model.Status)
	if err != nil {
		return boxoffice.Transaction{}, err
	}
	metadata, err := boxoffice.NewMetadataJSON(string(model.Metadata))
	if err != nil {
		return boxoffice.Transaction{}, err
	}
	return boxoffice.Transaction{
		Reference:       reference,
		Provider:        boxoffice.ProviderID(model.Provider),
		EventID:         model.EventID,
		OrganizerID:     model.OrganizerID,
		AmountCents:     boxoffice.AmountCents(model.AmountCents),
		CommissionCents: boxoffice.AmountCents(model.CommissionCents),
		NetCents:        boxoffice.AmountCents(model.NetCents),
		Currency:        model.Currency,
		Status:          status,
		PayerContact:    model.PayerContact,
		Metadata:        metadata,
		CreatedAt:       model.CreatedAt.UTC(),
		CompletedAt:     timeOrZero(model.CompletedAt),
	}, nil
}

func mapGateway(model GatewayHealth) boxoffice.GatewayHealth {
	return boxoffice.GatewayHealth{
		Provider:      boxoffice.ProviderID(model.Provider),
		Enabled:       model.Enabled,
		Priority:      model.Priority,
		FailureCount:  model.FailureCount,
		LastFailureAt: timeOrZero(model.LastFailureAt),
	}
}

func timeOrZero(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return value.UTC()
}

func timePointer(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

// SaveOrganizer upserts an organizer without touching accumulated earnings.
func (store *Store) SaveOrganizer(ctx context.Context, organizer boxoffice.Organizer) error {
	model := Organizer{
		OrganizerID: organizer.OrganizerID,
		Name:        organizer.Name,
		Email:       organizer.Email,
		CreatedAt:   time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organizer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "email"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectOrganizer, errorCodeCreate, err)
	}
	return nil
}

// SaveEvent upserts an event without touching accumulated revenue.
func (store *Store) SaveEvent(ctx context.Context, event boxoffice.Event) error {
	model := Event{
		EventID:        event.EventID,
		OrganizerID:    event.OrganizerID,
		Name:           event.Name,
		VotePriceCents: event.VotePriceCents.Int64(),
		CreatedAt:      time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"organizer_id", "name", "vote_price_cents"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeCreate, err)
	}
	return nil
}

// SaveInventoryUnit upserts a unit; the sold count and nomination link survive re-imports.
func (store *Store) SaveInventoryUnit(ctx context.Context, unit boxoffice.InventoryUnit) error {
	model := inventoryUnitModel(unit)
	model.SoldCount = 0
	model.NominationID = nil
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "unit_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"event_id", "kind", "name", "bounded", "capacity", "price_cents", "active", "sales_end_at", "updated_at",
			}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectUnit, errorCodeCreate, err)
	}
	return nil
}
