package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolationCode   = "23505"
	errorOperationStore     = "store"
	errorSubjectEvent       = "event"
	errorSubjectOrganizer   = "organizer"
	errorSubjectUnit        = "inventory_unit"
	errorSubjectReservation = "reservation"
	errorSubjectTransaction = "transaction"
	errorSubjectFulfilled   = "fulfilled_unit"
	errorSubjectPayout      = "payout"
	errorSubjectGateway     = "gateway"
	errorSubjectNomination  = "nomination"
	errorSubjectTx          = "tx"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeCreate         = "create"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeSum            = "sum"
	errorCodeUpdate         = "update"
	errorCodeUpdateStatus   = "update_status"

	sqlSelectEvent = `
		select event_id, organizer_id, name, vote_price_cents, gross_revenue_cents
		from events where event_id = $1
	`

	sqlAddEventRevenue = `
		update events set gross_revenue_cents = gross_revenue_cents + $2 where event_id = $1
	`

	sqlSelectOrganizerForUpdate = `
		select organizer_id, name, email, net_earnings_cents
		from organizers where organizer_id = $1
		for update
	`

	sqlAddOrganizerEarnings = `
		update organizers set net_earnings_cents = net_earnings_cents + $2 where organizer_id = $1
	`

	sqlSelectUnit = `
		select unit_id, event_id, kind, name, bounded, capacity, sold_count, price_cents, active,
			sales_end_at, coalesce(nomination_id, '')
		from inventory_units where unit_id = $1
	`

	sqlInsertUnit = `
		insert into inventory_units(
			unit_id, event_id, kind, name, bounded, capacity, sold_count, price_cents, active, sales_end_at, nomination_id
		)
		values($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, nullif($11, ''))
	`

	sqlIncrementSold = `
		update inventory_units set sold_count = sold_count + $2, updated_at = now() where unit_id = $1
	`

	sqlInsertReservation = `
		insert into reservations(reservation_id, unit_id, quantity, status, expires_at, reference, created_at, updated_at)
		values($1, $2, $3, $4, $5, $6, $7, $7)
	`

	sqlSelectReservationByReference = `
		select reservation_id, unit_id, quantity, status, expires_at, reference, created_at
		from reservations where reference = $1
	`

	sqlSumActiveReservations = `
		select coalesce(sum(quantity), 0) from reservations
		where unit_id = $1 and status = 'reserved' and expires_at > $2
	`

	sqlExpireUnitReservations = `
		update reservations set status = 'expired', updated_at = $2
		where unit_id = $1 and status = 'reserved' and expires_at <= $2
	`

	sqlListStaleReservations = `
		select reservation_id, unit_id, quantity, status, expires_at, reference, created_at
		from reservations
		where status = 'reserved' and expires_at <= $1
		order by expires_at asc
		limit $2
	`

	sqlUpdateReservationStatus = `
		update reservations set status = $3, updated_at = now()
		where reservation_id = $1 and status = $2
	`

	sqlInsertTransaction = `
		insert into transactions(
			reference, provider, event_id, organizer_id, amount_cents, commission_cents, net_cents,
			currency, status, payer_contact, metadata, created_at, updated_at
		)
		values($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, coalesce(nullif($11, ''), '{}')::jsonb, $12, $12)
	`

	sqlSelectTransaction = `
		select reference, provider, event_id, organizer_id, amount_cents, commission_cents, net_cents,
			currency, status, payer_contact, metadata::text, created_at, completed_at
		from transactions where reference = $1
	`

	sqlUpdateTransactionStatus = `
		update transactions
		set status = $3, updated_at = $4, completed_at = case when $5::boolean then $4 else completed_at end
		where reference = $1 and status = $2
	`

	sqlCountFulfilledUnits = `
		select count(*) from fulfilled_units where transaction_reference = $1
	`

	sqlListFulfilledUnits = `
		select unit_code, unit_id, event_id, kind, sequence, checked_in, created_at
		from fulfilled_units where transaction_reference = $1
		order by sequence asc
	`

	sqlSumOrganizerTransactions = `
		select coalesce(sum(amount_cents), 0), coalesce(sum(commission_cents), 0), coalesce(sum(net_cents), 0)
		from transactions where organizer_id = $1 and status = 'success'
	`

	sqlSumCommittedPayouts = `
		select coalesce(sum(amount_cents), 0) from payouts
		where organizer_id = $1 and status in ('pending', 'processing', 'completed')
	`

	sqlInsertPayout = `
		insert into payouts(payout_id, organizer_id, amount_cents, status, created_at, updated_at)
		values($1, $2, $3, $4, $5, $6)
	`

	sqlSelectPayoutForUpdate = `
		select payout_id, organizer_id, amount_cents, status, created_at, updated_at
		from payouts where payout_id = $1
		for update
	`

	sqlUpdatePayoutStatus = `
		update payouts set status = $3, updated_at = $4 where payout_id = $1 and status = $2
	`

	sqlEnsureGateway = `
		insert into gateway_health(provider, enabled, priority, failure_count)
		values($1, $2, $3, $4)
		on conflict (provider) do nothing
	`

	sqlListGateways = `
		select provider, enabled, priority, failure_count, last_failure_at
		from gateway_health order by provider asc
	`

	sqlRecordGatewaySuccess = `
		update gateway_health set failure_count = 0, updated_at = now() where provider = $1
	`

	sqlRecordGatewayFailure = `
		update gateway_health
		set failure_count = failure_count + 1, last_failure_at = $2, updated_at = $2
		where provider = $1
		returning provider, enabled, priority, failure_count, last_failure_at
	`

	sqlSetGatewayPrimary = `
		update gateway_health set enabled = (provider = $1), updated_at = now()
		where exists (select 1 from gateway_health where provider = $1)
	`

	sqlInsertNomination = `
		insert into nominations(nomination_id, event_id, nominee_name, nominee_email, status, created_at, updated_at)
		values($1, $2, $3, $4, $5, $6, $6)
	`

	sqlSelectNominationForUpdate = `
		select nomination_id, event_id, nominee_name, nominee_email, status, reviewed_by, reviewed_at,
			reason, contestant_unit_id, created_at
		from nominations where nomination_id = $1
		for update
	`

	sqlUpdateNomination = `
		update nominations
		set status = $3, reviewed_by = $4, reviewed_at = $5, reason = $6, contestant_unit_id = $7, updated_at = now()
		where nomination_id = $1 and status = $2
	`

	sqlSaveOrganizer = `
		insert into organizers(organizer_id, name, email) values($1, $2, $3)
		on conflict (organizer_id) do update set name = excluded.name, email = excluded.email
	`

	sqlSaveEvent = `
		insert into events(event_id, organizer_id, name, vote_price_cents) values($1, $2, $3, $4)
		on conflict (event_id) do update
		set organizer_id = excluded.organizer_id, name = excluded.name, vote_price_cents = excluded.vote_price_cents
	`

	sqlSaveUnit = `
		insert into inventory_units(unit_id, event_id, kind, name, bounded, capacity, price_cents, active, sales_end_at)
		values($1, $2, $3, $4, $5, $6, $7, $8, $9)
		on conflict (unit_id) do update
		set event_id = excluded.event_id, kind = excluded.kind, name = excluded.name, bounded = excluded.bounded,
			capacity = excluded.capacity, price_cents = excluded.price_cents, active = excluded.active,
			sales_end_at = excluded.sales_end_at, updated_at = now()
	`
)

// querier is the subset of pgx shared by the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store implements boxoffice.Store using a pgx connection pool.
// Inside WithTx the same type runs against the open transaction.
type Store struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// WithTx executes fn within a transaction. Nested calls join the outer transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore boxoffice.Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeBegin, err)
	}
	if err := fn(ctx, &Store{pool: store.pool, db: tx, inTx: true}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeCommit, err)
	}
	return nil
}

// Ping checks that the database answers.
func (store *Store) Ping(ctx context.Context) error {
	return store.pool.Ping(ctx)
}

func (store *Store) GetEvent(ctx context.Context, eventID string) (boxoffice.Event, error) {
	var event boxoffice.Event
	var votePrice, gross int64
	err := store.db.QueryRow(ctx, sqlSelectEvent, eventID).Scan(&event.EventID, &event.OrganizerID, &event.Name, &votePrice, &gross)
	if err != nil {
		return boxoffice.Event{}, wrapLookupError(errorSubjectEvent, err, boxoffice.ErrEventNotFound)
	}
	event.VotePriceCents = boxoffice.AmountCents(votePrice)
	event.GrossRevenueCents = boxoffice.AmountCents(gross)
	return event, nil
}

func (store *Store) AddEventRevenue(ctx context.Context, eventID string, amount boxoffice.AmountCents) error {
	tag, err := store.db.Exec(ctx, sqlAddEventRevenue, eventID, amount.Int64())
	return checkUpdated(errorSubjectEvent, tag, err, boxoffice.ErrEventNotFound)
}

func (store *Store) GetOrganizerForUpdate(ctx context.Context, organizerID string) (boxoffice.Organizer, error) {
	var organizer boxoffice.Organizer
	var earnings int64
	err := store.db.QueryRow(ctx, sqlSelectOrganizerForUpdate, organizerID).Scan(&organizer.OrganizerID, &organizer.Name, &organizer.Email, &earnings)
	if err != nil {
		return boxoffice.Organizer{}, wrapLookupError(errorSubjectOrganizer, err, boxoffice.ErrOrganizerNotFound)
	}
	organizer.NetEarningsCents = boxoffice.AmountCents(earnings)
	return organizer, nil
}

func (store *Store) AddOrganizerEarnings(ctx context.Context, organizerID string, amount boxoffice.AmountCents) error {
	tag, err := store.db.Exec(ctx, sqlAddOrganizerEarnings, organizerID, amount.Int64())
	return checkUpdated(errorSubjectOrganizer, tag, err, boxoffice.ErrOrganizerNotFound)
}

func (store *Store) GetInventoryUnit(ctx context.Context, unitID string) (boxoffice.InventoryUnit, error) {
	return store.getInventoryUnit(ctx, sqlSelectUnit, unitID)
}

func (store *Store) GetInventoryUnitForUpdate(ctx context.Context, unitID string) (boxoffice.InventoryUnit, error) {
	return store.getInventoryUnit(ctx, sqlSelectUnit+" for update", unitID)
}

func (store *Store) getInventoryUnit(ctx context.Context, query string, unitID string) (boxoffice.InventoryUnit, error) {
	var unit boxoffice.InventoryUnit
	var kind string
	var price int64
	var salesEnd *time.Time
	err := store.db.QueryRow(ctx, query, unitID).Scan(
		&unit.UnitID, &unit.EventID, &kind, &unit.Name, &unit.Bounded, &unit.Capacity, &unit.Sold,
		&price, &unit.Active, &salesEnd, &unit.NominationID,
	)
	if err != nil {
		return boxoffice.InventoryUnit{}, wrapLookupError(errorSubjectUnit, err, boxoffice.ErrUnitNotFound)
	}
	parsedKind, err := boxoffice.ParseInventoryKind(kind)
	if err != nil {
		return boxoffice.InventoryUnit{}, wrapStoreError(errorSubjectUnit, errorCodeInvalid, err)
	}
	unit.Kind = parsedKind
	unit.PriceCents = boxoffice.AmountCents(price)
	unit.SalesEndAt = timeOrZero(salesEnd)
	return unit, nil
}

func (store *Store) CreateInventoryUnit(ctx context.Context, unit boxoffice.InventoryUnit) error {
	_, err := store.db.Exec(ctx, sqlInsertUnit,
		unit.UnitID, unit.EventID, string(unit.Kind), unit.Name, unit.Bounded, unit.Capacity, unit.Sold,
		unit.PriceCents.Int64(), unit.Active, timePointer(unit.SalesEndAt), unit.NominationID,
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectUnit, errorCodeDuplicate, fmt.Errorf("%w: unit for nomination %s exists", boxoffice.ErrAlreadyApproved, unit.NominationID))
	}
	if err != nil {
		return wrapStoreError(errorSubjectUnit, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) IncrementSold(ctx context.Context, unitID string, quantity int64) error {
	tag, err := store.db.Exec(ctx, sqlIncrementSold, unitID, quantity)
	return checkUpdated(errorSubjectUnit, tag, err, boxoffice.ErrUnitNotFound)
}

func (store *Store) CreateReservation(ctx context.Context, reservation boxoffice.Reservation) error {
	_, err := store.db.Exec(ctx, sqlInsertReservation,
		reservation.ReservationID, reservation.UnitID, reservation.Quantity, reservation.Status.String(),
		reservation.ExpiresAt.UTC(), reservation.Reference.String(), reservation.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, boxoffice.ErrDuplicateReference)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetReservationByReference(ctx context.Context, reference boxoffice.Reference) (boxoffice.Reservation, error) {
	reservation, err := scanReservation(store.db.QueryRow(ctx, sqlSelectReservationByReference, reference.String()))
	if err != nil {
		return boxoffice.Reservation{}, wrapLookupError(errorSubjectReservation, err, boxoffice.ErrReservationNotFound)
	}
	return reservation, nil
}

func (store *Store) SumActiveReservations(ctx context.Context, unitID string, at time.Time) (int64, error) {
	var total int64
	if err := store.db.QueryRow(ctx, sqlSumActiveReservations, unitID, at.UTC()).Scan(&total); err != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeSum, err)
	}
	return total, nil
}

func (store *Store) ExpireUnitReservations(ctx context.Context, unitID string, at time.Time) (int64, error) {
	tag, err := store.db.Exec(ctx, sqlExpireUnitReservations, unitID, at.UTC())
	if err != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, err)
	}
	return tag.RowsAffected(), nil
}

func (store *Store) ListStaleReservations(ctx context.Context, at time.Time, limit int) ([]boxoffice.Reservation, error) {
	rows, err := store.db.Query(ctx, sqlListStaleReservations, at.UTC(), limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	defer rows.Close()
	var reservations []boxoffice.Reservation
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	return reservations, nil
}

func (store *Store) UpdateReservationStatus(ctx context.Context, reservationID string, from, to boxoffice.ReservationStatus) error {
	tag, err := store.db.Exec(ctx, sqlUpdateReservationStatus, reservationID, from.String(), to.String())
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, boxoffice.ErrReservationClosed)
	}
	return nil
}

func (store *Store) CreateTransaction(ctx context.Context, transaction boxoffice.Transaction) error {
	_, err := store.db.Exec(ctx, sqlInsertTransaction,
		transaction.Reference.String(), transaction.Provider.String(), transaction.EventID, transaction.OrganizerID,
		transaction.AmountCents.Int64(), transaction.CommissionCents.Int64(), transaction.NetCents.Int64(),
		transaction.Currency, transaction.Status.String(), transaction.PayerContact, transaction.Metadata.String(),
		transaction.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, boxoffice.ErrDuplicateReference)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetTransaction(ctx context.Context, reference boxoffice.Reference) (boxoffice.Transaction, error) {
	return store.getTransaction(ctx, sqlSelectTransaction, reference)
}

func (store *Store) GetTransactionForUpdate(ctx context.Context, reference boxoffice.Reference) (boxoffice.Transaction, error) {
	return store.getTransaction(ctx, sqlSelectTransaction+" for update", reference)
}

func (store *Store) getTransaction(ctx context.Context, query string, reference boxoffice.Reference) (boxoffice.Transaction, error) {
	var (
		referenceValue, provider, status, metadata string
		amount, commission, net                    int64
		completedAt                                *time.Time
		transaction                                boxoffice.Transaction
	)
	err := store.db.QueryRow(ctx, query, reference.String()).Scan(
		&referenceValue, &provider, &transaction.EventID, &transaction.OrganizerID, &amount, &commission, &net,
		&transaction.Currency, &status, &transaction.PayerContact, &metadata, &transaction.CreatedAt, &completedAt,
	)
	if err != nil {
		return boxoffice.Transaction{}, wrapLookupError(errorSubjectTransaction, err, boxoffice.ErrTransactionNotFound)
	}
	parsedReference, err := boxoffice.NewReference(referenceValue)
	if err != nil {
		return boxoffice.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	parsedStatus, err := boxoffice.ParseTransactionStatus(status)
	if err != nil {
		return boxoffice.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	parsedMetadata, err := boxoffice.NewMetadataJSON(metadata)
	if err != nil {
		return boxoffice.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	transaction.Reference = parsedReference
	transaction.Provider = boxoffice.ProviderID(provider)
	transaction.AmountCents = boxoffice.AmountCents(amount)
	transaction.CommissionCents = boxoffice.AmountCents(commission)
	transaction.NetCents = boxoffice.AmountCents(net)
	transaction.Status = parsedStatus
	transaction.Metadata = parsedMetadata
	transaction.CreatedAt = transaction.CreatedAt.UTC()
	transaction.CompletedAt = timeOrZero(completedAt)
	return transaction, nil
}

func (store *Store) UpdateTransactionStatus(ctx context.Context, reference boxoffice.Reference, from, to boxoffice.TransactionStatus, at time.Time) error {
	tag, err := store.db.Exec(ctx, sqlUpdateTransactionStatus, reference.String(), from.String(), to.String(), at.UTC(), to.Terminal())
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, fmt.Errorf("%w: %s is not %s", boxoffice.ErrInvalidTransition, reference, from))
	}
	return nil
}

func (store *Store) CountFulfilledUnits(ctx context.Context, reference boxoffice.Reference) (int64, error) {
	var count int64
	if err := store.db.QueryRow(ctx, sqlCountFulfilledUnits, reference.String()).Scan(&count); err != nil {
		return 0, wrapStoreError(errorSubjectFulfilled, errorCodeSum, err)
	}
	return count, nil
}

func (store *Store) InsertFulfilledUnits(ctx context.Context, units []boxoffice.FulfilledUnit) error {
	if len(units) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(units))
	for _, unit := range units {
		rows = append(rows, []any{
			unit.UnitCode, unit.Reference.String(), unit.Sequence, unit.UnitID, unit.EventID,
			string(unit.Kind), unit.CheckedIn, unit.CreatedAt.UTC(),
		})
	}
	_, err := store.db.CopyFrom(ctx,
		pgx.Identifier{"fulfilled_units"},
		[]string{"unit_code", "transaction_reference", "sequence", "unit_id", "event_id", "kind", "checked_in", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectFulfilled, errorCodeDuplicate, boxoffice.ErrAlreadyProcessed)
	}
	if err != nil {
		return wrapStoreError(errorSubjectFulfilled, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListFulfilledUnits(ctx context.Context, reference boxoffice.Reference) ([]boxoffice.FulfilledUnit, error) {
	rows, err := store.db.Query(ctx, sqlListFulfilledUnits, reference.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectFulfilled, errorCodeList, err)
	}
	defer rows.Close()
	var units []boxoffice.FulfilledUnit
	for rows.Next() {
		unit := boxoffice.FulfilledUnit{Reference: reference}
		var kind string
		if err := rows.Scan(&unit.UnitCode, &unit.UnitID, &unit.EventID, &kind, &unit.Sequence, &unit.CheckedIn, &unit.CreatedAt); err != nil {
			return nil, wrapStoreError(errorSubjectFulfilled, errorCodeList, err)
		}
		parsedKind, err := boxoffice.ParseInventoryKind(kind)
		if err != nil {
			return nil, wrapStoreError(errorSubjectFulfilled, errorCodeInvalid, err)
		}
		unit.Kind = parsedKind
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectFulfilled, errorCodeList, err)
	}
	return units, nil
}

func (store *Store) SumOrganizerTransactions(ctx context.Context, organizerID string) (boxoffice.TransactionTotals, error) {
	var gross, commission, net int64
	if err := store.db.QueryRow(ctx, sqlSumOrganizerTransactions, organizerID).Scan(&gross, &commission, &net); err != nil {
		return boxoffice.TransactionTotals{}, wrapStoreError(errorSubjectTransaction, errorCodeSum, err)
	}
	return boxoffice.TransactionTotals{
		GrossCents:      boxoffice.AmountCents(gross),
		CommissionCents: boxoffice.AmountCents(commission),
		NetCents:        boxoffice.AmountCents(net),
	}, nil
}

func (store *Store) SumCommittedPayouts(ctx context.Context, organizerID string) (boxoffice.AmountCents, error) {
	var total int64
	if err := store.db.QueryRow(ctx, sqlSumCommittedPayouts, organizerID).Scan(&total); err != nil {
		return 0, wrapStoreError(errorSubjectPayout, errorCodeSum, err)
	}
	return boxoffice.AmountCents(total), nil
}

func (store *Store) CreatePayout(ctx context.Context, payout boxoffice.Payout) error {
	_, err := store.db.Exec(ctx, sqlInsertPayout,
		payout.PayoutID, payout.OrganizerID, payout.AmountCents.Int64(), string(payout.Status),
		payout.CreatedAt.UTC(), payout.UpdatedAt.UTC(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectPayout, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetPayoutForUpdate(ctx context.Context, payoutID string) (boxoffice.Payout, error) {
	var payout boxoffice.Payout
	var amount int64
	var status string
	err := store.db.QueryRow(ctx, sqlSelectPayoutForUpdate, payoutID).Scan(
		&payout.PayoutID, &payout.OrganizerID, &amount, &status, &payout.CreatedAt, &payout.UpdatedAt,
	)
	if err != nil {
		return boxoffice.Payout{}, wrapLookupError(errorSubjectPayout, err, boxoffice.ErrPayoutNotFound)
	}
	parsedStatus, err := boxoffice.ParsePayoutStatus(status)
	if err != nil {
		return boxoffice.Payout{}, wrapStoreError(errorSubjectPayout, errorCodeInvalid, err)
	}
	payout.AmountCents = boxoffice.AmountCents(amount)
	payout.Status = parsedStatus
	return payout, nil
}

func (store *Store) UpdatePayoutStatus(ctx context.Context, payoutID string, from, to boxoffice.PayoutStatus, at time.Time) error {
	tag, err := store.db.Exec(ctx, sqlUpdatePayoutStatus, payoutID, string(from), string(to), at.UTC())
	if err != nil {
		return wrapStoreError(errorSubjectPayout, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectPayout, errorCodeUpdateStatus, boxoffice.ErrInvalidTransition)
	}
	return nil
}

func (store *Store) EnsureGateway(ctx context.Context, health boxoffice.GatewayHealth) error {
	_, err := store.db.Exec(ctx, sqlEnsureGateway, health.Provider.String(), health.Enabled, health.Priority, health.FailureCount)
	if err != nil {
		return wrapStoreError(errorSubjectGateway, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) ListGateways(ctx context.Context) ([]boxoffice.GatewayHealth, error) {
	rows, err := store.db.Query(ctx, sqlListGateways)
	if err != nil {
		return nil, wrapStoreError(errorSubjectGateway, errorCodeList, err)
	}
	defer rows.Close()
	var gateways []boxoffice.GatewayHealth
	for rows.Next() {
		health, err := scanGateway(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectGateway, errorCodeList, err)
		}
		gateways = append(gateways, health)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectGateway, errorCodeList, err)
	}
	return gateways, nil
}

func (store *Store) RecordGatewaySuccess(ctx context.Context, provider boxoffice.ProviderID) error {
	tag, err := store.db.Exec(ctx, sqlRecordGatewaySuccess, provider.String())
	return checkUpdated(errorSubjectGateway, tag, err, boxoffice.ErrUnknownProvider)
}

func (store *Store) RecordGatewayFailure(ctx context.Context, provider boxoffice.ProviderID, at time.Time) (boxoffice.GatewayHealth, error) {
	health, err := scanGateway(store.db.QueryRow(ctx, sqlRecordGatewayFailure, provider.String(), at.UTC()))
	if err != nil {
		return boxoffice.GatewayHealth{}, wrapLookupError(errorSubjectGateway, err, boxoffice.ErrUnknownProvider)
	}
	return health, nil
}

func (store *Store) SetGatewayPrimary(ctx context.Context, provider boxoffice.ProviderID) error {
	tag, err := store.db.Exec(ctx, sqlSetGatewayPrimary, provider.String())
	if err != nil {
		return wrapStoreError(errorSubjectGateway, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectGateway, errorCodeUpdate, fmt.Errorf("%w: %s", boxoffice.ErrUnknownProvider, provider))
	}
	return nil
}

func (store *Store) CreateNomination(ctx context.Context, nomination boxoffice.Nomination) error {
	_, err := store.db.Exec(ctx, sqlInsertNomination,
		nomination.NominationID, nomination.EventID, nomination.NomineeName, nomination.NomineeEmail,
		string(nomination.Status), nomination.CreatedAt.UTC(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectNomination, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetNominationForUpdate(ctx context.Context, nominationID string) (boxoffice.Nomination, error) {
	var nomination boxoffice.Nomination
	var status string
	var reviewedAt *time.Time
	err := store.db.QueryRow(ctx, sqlSelectNominationForUpdate, nominationID).Scan(
		&nomination.NominationID, &nomination.EventID, &nomination.NomineeName, &nomination.NomineeEmail, &status,
		&nomination.ReviewedBy, &reviewedAt, &nomination.Reason, &nomination.ContestantUnitID, &nomination.CreatedAt,
	)
	if err != nil {
		return boxoffice.Nomination{}, wrapLookupError(errorSubjectNomination, err, boxoffice.ErrNominationNotFound)
	}
	parsedStatus, err := boxoffice.ParseNominationStatus(status)
	if err != nil {
		return boxoffice.Nomination{}, wrapStoreError(errorSubjectNomination, errorCodeInvalid, err)
	}
	nomination.Status = parsedStatus
	nomination.ReviewedAt = timeOrZero(reviewedAt)
	return nomination, nil
}

func (store *Store) UpdateNomination(ctx context.Context, nomination boxoffice.Nomination, from boxoffice.NominationStatus) error {
	tag, err := store.db.Exec(ctx, sqlUpdateNomination,
		nomination.NominationID, string(from), string(nomination.Status), nomination.ReviewedBy,
		timePointer(nomination.ReviewedAt), nomination.Reason, nomination.ContestantUnitID,
	)
	if err != nil {
		return wrapStoreError(errorSubjectNomination, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectNomination, errorCodeUpdateStatus, boxoffice.ErrInvalidTransition)
	}
	return nil
}

// SaveOrganizer upserts an organizer without touching accumulated earnings.
func (store *Store) SaveOrganizer(ctx context.Context, organizer boxoffice.Organizer) error {
	if _, err := store.db.Exec(ctx, sqlSaveOrganizer, organizer.OrganizerID, organizer.Name, organizer.Email); err != nil {
		return wrapStoreError(errorSubjectOrganizer, errorCodeCreate, err)
	}
	return nil
}

// SaveEvent upserts an event without touching accumulated revenue.
func (store *Store) SaveEvent(ctx context.Context, event boxoffice.Event) error {
	if _, err := store.db.Exec(ctx, sqlSaveEvent, event.EventID, event.OrganizerID, event.Name, event.VotePriceCents.Int64()); err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeCreate, err)
	}
	return nil
}

// SaveInventoryUnit upserts a unit; the sold count and nomination link survive re-imports.
func (store *Store) SaveInventoryUnit(ctx context.Context, unit boxoffice.InventoryUnit) error {
	_, err := store.db.Exec(ctx, sqlSaveUnit,
		unit.UnitID, unit.EventID, string(unit.Kind), unit.Name, unit.Bounded, unit.Capacity,
		unit.PriceCents.Int64(), unit.Active, timePointer(unit.SalesEndAt),
	)
	if err != nil {
		return wrapStoreError(errorSubjectUnit, errorCodeCreate, err)
	}
	return nil
}

func scanReservation(row pgx.Row) (boxoffice.Reservation, error) {
	var reservation boxoffice.Reservation
	var status, reference string
	if err := row.Scan(&reservation.ReservationID, &reservation.UnitID, &reservation.Quantity, &status, &reservation.ExpiresAt, &reference, &reservation.CreatedAt); err != nil {
		return boxoffice.Reservation{}, err
	}
	parsedStatus, err := boxoffice.ParseReservationStatus(status)
	if err != nil {
		return boxoffice.Reservation{}, err
	}
	parsedReference, err := boxoffice.NewReference(reference)
	if err != nil {
		return boxoffice.Reservation{}, err
	}
	reservation.Status = parsedStatus
	reservation.Reference = parsedReference
	reservation.ExpiresAt = reservation.ExpiresAt.UTC()
	reservation.CreatedAt = reservation.CreatedAt.UTC()
	return reservation, nil
}

func scanGateway(row pgx.Row) (boxoffice.GatewayHealth, error) {
	var health boxoffice.GatewayHealth
	var provider string
	var lastFailure *time.Time
	if err := row.Scan(&provider, &health.Enabled, &health.Priority, &health.FailureCount, &lastFailure); err != nil {
		return boxoffice.GatewayHealth{}, err
	}
	health.Provider = boxoffice.ProviderID(provider)
	health.LastFailureAt = timeOrZero(lastFailure)
	return health, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return boxoffice.WrapError(errorOperationStore, subject, code, err)
}

func wrapLookupError(subject string, err error, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return wrapStoreError(subject, errorCodeGet, notFound)
	}
	return wrapStoreError(subject, errorCodeGet, err)
}

func checkUpdated(subject string, tag pgconn.CommandTag, err error, notFound error) error {
	if err != nil {
		return wrapStoreError(subject, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(subject, errorCodeUpdate, notFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode
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
