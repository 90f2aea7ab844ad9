package boxoffice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var testEpoch = time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (clock *testClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *testClock) Advance(duration time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(duration)
}

type memoryState struct {
	events       map[string]Event
	organizers   map[string]Organizer
	units        map[string]InventoryUnit
	reservations map[string]Reservation
	transactions map[string]Transaction
	fulfilled    []FulfilledUnit
	payouts      map[string]Payout
	gateways     map[ProviderID]GatewayHealth
	nominations  map[string]Nomination
	failures     map[string]error
}

func (state *memoryState) clone() *memoryState {
	copied := &memoryState{
		events:       make(map[string]Event, len(state.events)),
		organizers:   make(map[string]Organizer, len(state.organizers)),
		units:        make(map[string]InventoryUnit, len(state.units)),
		reservations: make(map[string]Reservation, len(state.reservations)),
		transactions: make(map[string]Transaction, len(state.transactions)),
		fulfilled:    append([]FulfilledUnit(nil), state.fulfilled...),
		payouts:      make(map[string]Payout, len(state.payouts)),
		gateways:     make(map[ProviderID]GatewayHealth, len(state.gateways)),
		nominations:  make(map[string]Nomination, len(state.nominations)),
		failures:     state.failures,
	}
	for key, value := range state.events {
		copied.events[key] = value
	}
	for key, value := range state.organizers {
		copied.organizers[key] = value
	}
	for key, value := range state.units {
		copied.units[key] = value
	}
	for key, value := range state.reservations {
		copied.reservations[key] = value
	}
	for key, value := range state.transactions {
		copied.transactions[key] = value
	}
	for key, value := range state.payouts {
		copied.payouts[key] = value
	}
	for key, value := range state.gateways {
		copied.gateways[key] = value
	}
	for key, value := range state.nominations {
		copied.nominations[key] = value
	}
	return copied
}

// memoryStore serializes transactions with a single lock and restores a snapshot on rollback.
type memoryStore struct {
	dataLock *sync.Mutex
	txLock   *sync.Mutex
	state    **memoryState
	inTx     bool
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	state := &memoryState{
		events:       map[string]Event{},
		organizers:   map[string]Organizer{},
		units:        map[string]InventoryUnit{},
		reservations: map[string]Reservation{},
		transactions: map[string]Transaction{},
		payouts:      map[string]Payout{},
		gateways:     map[ProviderID]GatewayHealth{},
		nominations:  map[string]Nomination{},
		failures:     map[string]error{},
	}
	return &memoryStore{dataLock: &sync.Mutex{}, txLock: &sync.Mutex{}, state: &state}
}

func (store *memoryStore) read(fn func(state *memoryState) error) error {
	store.dataLock.Lock()
	defer store.dataLock.Unlock()
	return fn(*store.state)
}

func (store *memoryStore) failOn(method string, err error) {
	store.dataLock.Lock()
	defer store.dataLock.Unlock()
	(*store.state).failures[method] = err
}

func (store *memoryStore) failure(state *memoryState, method string) error {
	return state.failures[method]
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	store.txLock.Lock()
	defer store.txLock.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	store.dataLock.Lock()
	snapshot := (*store.state).clone()
	store.dataLock.Unlock()

	txStore := &memoryStore{dataLock: store.dataLock, txLock: store.txLock, state: store.state, inTx: true}
	if err := fn(ctx, txStore); err != nil {
		store.dataLock.Lock()
		*store.state = snapshot
		store.dataLock.Unlock()
		return err
	}
	return nil
}

func (store *memoryStore) GetEvent(_ context.Context, eventID string) (Event, error) {
	var event Event
	err := store.read(func(state *memoryState) error {
		found, ok := state.events[eventID]
		if !ok {
			return ErrEventNotFound
		}
		event = found
		return nil
	})
	return event, err
}

func (store *memoryStore) AddEventRevenue(_ context.Context, eventID string, amount AmountCents) error {
	return store.read(func(state *memoryState) error {
		if err := store.failure(state, "AddEventRevenue"); err != nil {
			return err
		}
		event, ok := state.events[eventID]
		if !ok {
			return ErrEventNotFound
		}
		event.GrossRevenueCents += amount
		state.events[eventID] = event
		return nil
	})
}

func (store *memoryStore) GetOrganizerForUpdate(_ context.Context, organizerID string) (Organizer, error) {
	var organizer Organizer
	err := store.read(func(state *memoryState) error {
		found, ok := state.organizers[organizerID]
		if !ok {
			return ErrOrganizerNotFound
		}
		organizer = found
		return nil
	})
	return organizer, err
}

func (store *memoryStore) AddOrganizerEarnings(_ context.Context, organizerID string, amount AmountCents) error {
	return store.read(func(state *memoryState) error {
		organizer, ok := state.organizers[organizerID]
		if !ok {
			return ErrOrganizerNotFound
		}
		organizer.NetEarningsCents += amount
		state.organizers[organizerID] = organizer
		return nil
	})
}

func (store *memoryStore) GetInventoryUnit(_ context.Context, unitID string) (InventoryUnit, error) {
	var unit InventoryUnit
	err := store.read(func(state *memoryState) error {
		found, ok := state.units[unitID]
		if !ok {
			return ErrUnitNotFound
		}
		unit = found
		return nil
	})
	return unit, err
}

func (store *memoryStore) GetInventoryUnitForUpdate(ctx context.Context, unitID string) (InventoryUnit, error) {
	return store.GetInventoryUnit(ctx, unitID)
}

func (store *memoryStore) CreateInventoryUnit(_ context.Context, unit InventoryUnit) error {
	return store.read(func(state *memoryState) error {
		if err := store.failure(state, "CreateInventoryUnit"); err != nil {
			return err
		}
		for _, existing := range state.units {
			if unit.NominationID != "" && existing.NominationID == unit.NominationID {
				return fmt.Errorf("%w: nomination %s already has a unit", ErrAlreadyApproved, unit.NominationID)
			}
		}
		state.units[unit.UnitID] = unit
		return nil
	})
}

func (store *memoryStore) IncrementSold(_ context.Context, unitID string, quantity int64) error {
	return store.read(func(state *memoryState) error {
		unit, ok := state.units[unitID]
		if !ok {
			return ErrUnitNotFound
		}
		unit.Sold += quantity
		state.units[unitID] = unit
		return nil
	})
}

func (store *memoryStore) CreateReservation(_ context.Context, reservation Reservation) error {
	return store.read(func(state *memoryState) error {
		for _, existing := range state.reservations {
			if existing.Reference == reservation.Reference {
				return ErrDuplicateReference
			}
		}
		state.reservations[reservation.ReservationID] = reservation
		return nil
	})
}

func (store *memoryStore) GetReservationByReference(_ context.Context, reference Reference) (Reservation, error) {
	var reservation Reservation
	err := store.read(func(state *memoryState) error {
		for _, existing := range state.reservations {
			if existing.Reference == reference {
				reservation = existing
				return nil
			}
		}
		return ErrReservationNotFound
	})
	return reservation, err
}

func (store *memoryStore) SumActiveReservations(_ context.Context, unitID string, at time.Time) (int64, error) {
	var total int64
	err := store.read(func(state *memoryState) error {
		for _, reservation := range state.reservations {
			if reservation.UnitID == unitID && reservation.Status == ReservationStatusReserved && reservation.ExpiresAt.After(at) {
				total += reservation.Quantity
			}
		}
		return nil
	})
	return total, err
}

func (store *memoryStore) ExpireUnitReservations(_ context.Context, unitID string, at time.Time) (int64, error) {
	var expired int64
	err := store.read(func(state *memoryState) error {
		for id, reservation := range state.reservations {
			if reservation.UnitID == unitID && reservation.Status == ReservationStatusReserved && !reservation.ExpiresAt.After(at) {
				reservation.Status = ReservationStatusExpired
				state.reservations[id] = reservation
				expired++
			}
		}
		return nil
	})
	return expired, err
}

func (store *memoryStore) ListStaleReservations(_ context.Context, at time.Time, limit int) ([]Reservation, error) {
	var stale []Reservation
	err := store.read(func(state *memoryState) error {
		if err := store.failure(state, "ListStaleReservations"); err != nil {
			return err
		}
		for _, reservation := range state.reservations {
			if reservation.Status == ReservationStatusReserved && !reservation.ExpiresAt.After(at) {
				stale = append(stale, reservation)
			}
		}
		sort.Slice(stale, func(left, right int) bool {
			return stale[left].ExpiresAt.Before(stale[right].ExpiresAt)
		})
		if len(stale) > limit {
			stale = stale[:limit]
		}
		return nil
	})
	return stale, err
}

func (store *memoryStore) UpdateReservationStatus(_ context.Context, reservationID string, from, to ReservationStatus) error {
	return store.read(func(state *memoryState) error {
		if err := store.failure(state, "UpdateReservationStatus"); err != nil {
			return err
		}
		reservation, ok := state.reservations[reservationID]
		if !ok {
			return ErrReservationNotFound
		}
		if reservation.Status != from {
			return ErrReservationClosed
		}
		reservation.Status = to
		state.reservations[reservationID] = reservation
		return nil
	})
}

func (store *memoryStore) CreateTransaction(_ context.Context, transaction Transaction) error {
	return store.read(func(state *memoryState) error {
		if _, exists := state.transactions[transaction.Reference.String()]; exists {
			return ErrDuplicateReference
		}
		state.transactions[transaction.Reference.String()] = transaction
		return nil
	})
}

func (store *memoryStore) GetTransaction(_ context.Context, reference Reference) (Transaction, error) {
	var transaction Transaction
	err := store.read(func(state *memoryState) error {
		found, ok := state.transactions[reference.String()]
		if !ok {
			return ErrTransactionNotFound
		}
		transaction = found
		return nil
	})
	return transaction, err
}

func (store *memoryStore) GetTransactionForUpdate(ctx context.Context, reference Reference) (Transaction, error) {
	return store.GetTransaction(ctx, reference)
}

func (store *memoryStore) UpdateTransactionStatus(_ context.Context, reference Reference, from, to TransactionStatus, at time.Time) error {
	return store.read(func(state *memoryState) error {
		transaction, ok := state.transactions[reference.String()]
		if !ok {
			return ErrTransactionNotFound
		}
		if transaction.Status != from {
			return fmt.Errorf("%w: transaction is %s", ErrInvalidTransition, transaction.Status)
		}
		transaction.Status = to
		transaction.CompletedAt = at
		state.transactions[reference.String()] = transaction
		return nil
	})
}

func (store *memoryStore) CountFulfilledUnits(_ context.Context, reference Reference) (int64, error) {
	var count int64
	err := store.read(func(state *memoryState) error {
		for _, unit := range state.fulfilled {
			if unit.Reference == reference {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (store *memoryStore) InsertFulfilledUnits(_ context.Context, units []FulfilledUnit) error {
	return store.read(func(state *memoryState) error {
		if err := store.failure(state, "InsertFulfilledUnits"); err != nil {
			return err
		}
		for _, unit := range units {
			for _, existing := range state.fulfilled {
				if existing.Reference == unit.Reference && existing.Sequence == unit.Sequence {
					return ErrAlreadyProcessed
				}
			}
		}
		state.fulfilled = append(state.fulfilled, units...)
		return nil
	})
}

func (store *memoryStore) ListFulfilledUnits(_ context.Context, reference Reference) ([]FulfilledUnit, error) {
	var units []FulfilledUnit
	err := store.read(func(state *memoryState) error {
		for _, unit := range state.fulfilled {
			if unit.Reference == reference {
				units = append(units, unit)
			}
		}
		return nil
	})
	sort.Slice(units, func(left, right int) bool { return units[left].Sequence < units[right].Sequence })
	return units, err
}

func (store *memoryStore) SumOrganizerTransactions(_ context.Context, organizerID string) (TransactionTotals, error) {
	var totals TransactionTotals
	err := store.read(func(state *memoryState) error {
		for _, transaction := range state.transactions {
			if transaction.OrganizerID == organizerID && transaction.Status == TransactionStatusSuccess {
				totals.GrossCents += transaction.AmountCents
				totals.CommissionCents += transaction.CommissionCents
				totals.NetCents += transaction.NetCents
			}
		}
		return nil
	})
	return totals, err
}

func (store *memoryStore) SumCommittedPayouts(_ context.Context, organizerID string) (AmountCents, error) {
	var total AmountCents
	err := store.read(func(state *memoryState) error {
		for _, payout := range state.payouts {
			if payout.OrganizerID != organizerID {
				continue
			}
			switch payout.Status {
			case PayoutStatusPending, PayoutStatusProcessing, PayoutStatusCompleted:
				total += payout.AmountCents
			}
		}
		return nil
	})
	return total, err
}

func (store *memoryStore) CreatePayout(_ context.Context, payout Payout) error {
	return store.read(func(state *memoryState) error {
		state.payouts[payout.PayoutID] = payout
		return nil
	})
}

func (store *memoryStore) GetPayoutForUpdate(_ context.Context, payoutID string) (Payout, error) {
	var payout Payout
	err := store.read(func(state *memoryState) error {
		found, ok := state.payouts[payoutID]
		if !ok {
			return ErrPayoutNotFound
		}
		payout = found
		return nil
	})
	return payout, err
}

func (store *memoryStore) UpdatePayoutStatus(_ context.Context, payoutID string, from, to PayoutStatus, at time.Time) error {
	return store.read(func(state *memoryState) error {
		payout, ok := state.payouts[payoutID]
		if !ok {
			return ErrPayoutNotFound
		}
		if payout.Status != from {
			return ErrInvalidTransition
		}
		payout.Status = to
		payout.UpdatedAt = at
		state.payouts[payoutID] = payout
		return nil
	})
}

func (store *memoryStore) EnsureGateway(_ context.Context, health GatewayHealth) error {
	return store.read(func(state *memoryState) error {
		if _, exists := state.gateways[health.Provider]; !exists {
			state.gateways[health.Provider] = health
		}
		return nil
	})
}

func (store *memoryStore) ListGateways(_ context.Context) ([]GatewayHealth, error) {
	var gateways []GatewayHealth
	err := store.read(func(state *memoryState) error {
		if err := store.failure(state, "ListGateways"); err != nil {
			return err
		}
		for _, gateway := range state.gateways {
			gateways = append(gateways, gateway)
		}
		return nil
	})
	sort.Slice(gateways, func(left, right int) bool { return gateways[left].Provider < gateways[right].Provider })
	return gateways, err
}

func (store *memoryStore) RecordGatewaySuccess(_ context.Context, provider ProviderID) error {
	return store.read(func(state *memoryState) error {
		if err := store.failure(state, "RecordGatewaySuccess"); err != nil {
			return err
		}
		gateway, ok := state.gateways[provider]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
		}
		gateway.FailureCount = 0
		state.gateways[provider] = gateway
		return nil
	})
}

func (store *memoryStore) RecordGatewayFailure(_ context.Context, provider ProviderID, at time.Time) (GatewayHealth, error) {
	var gateway GatewayHealth
	err := store.read(func(state *memoryState) error {
		if err := store.failure(state, "RecordGatewayFailure"); err != nil {
			return err
		}
		found, ok := state.gateways[provider]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
		}
		found.FailureCount++
		found.LastFailureAt = at
		state.gateways[provider] = found
		gateway = found
		return nil
	})
	return gateway, err
}

func (store *memoryStore) SetGatewayPrimary(_ context.Context, provider ProviderID) error {
	return store.read(func(state *memoryState) error {
		if _, ok := state.gateways[provider]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
		}
		for id, gateway := range state.gateways {
			gateway.Enabled = id == provider
			state.gateways[id] = gateway
		}
		return nil
	})
}

func (store *memoryStore) CreateNomination(_ context.Context, nomination Nomination) error {
	return store.read(func(state *memoryState) error {
		state.nominations[nomination.NominationID] = nomination
		return nil
	})
}

func (store *memoryStore) GetNominationForUpdate(_ context.Context, nominationID string) (Nomination, error) {
	var nomination Nomination
	err := store.read(func(state *memoryState) error {
		found, ok := state.nominations[nominationID]
		if !ok {
			return ErrNominationNotFound
		}
		nomination = found
		return nil
	})
	return nomination, err
}

func (store *memoryStore) UpdateNomination(_ context.Context, nomination Nomination, from NominationStatus) error {
	return store.read(func(state *memoryState) error {
		current, ok := state.nominations[nomination.NominationID]
		if !ok {
			return ErrNominationNotFound
		}
		if current.Status != from {
			return ErrInvalidTransition
		}
		state.nominations[nomination.NominationID] = nomination
		return nil
	})
}

func (store *memoryStore) seedEvent(test *testing.T, eventID string, organizerID string, votePrice AmountCents) {
	test.Helper()
	store.dataLock.Lock()
	defer store.dataLock.Unlock()
	(*store.state).organizers[organizerID] = Organizer{OrganizerID: organizerID, Name: "Organizer " + organizerID}
	(*store.state).events[eventID] = Event{EventID: eventID, OrganizerID: organizerID, Name: "Event " + eventID, VotePriceCents: votePrice}
}

func (store *memoryStore) seedUnit(test *testing.T, unit InventoryUnit) {
	test.Helper()
	store.dataLock.Lock()
	defer store.dataLock.Unlock()
	(*store.state).units[unit.UnitID] = unit
}

func (store *memoryStore) seedTransaction(test *testing.T, transaction Transaction) {
	test.Helper()
	store.dataLock.Lock()
	defer store.dataLock.Unlock()
	(*store.state).transactions[transaction.Reference.String()] = transaction
}

func (store *memoryStore) seedReservation(test *testing.T, reservation Reservation) {
	test.Helper()
	store.dataLock.Lock()
	defer store.dataLock.Unlock()
	(*store.state).reservations[reservation.ReservationID] = reservation
}

func (store *memoryStore) snapshot() *memoryState {
	store.dataLock.Lock()
	defer store.dataLock.Unlock()
	return (*store.state).clone()
}

type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) find(operation string) []OperationLog {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	var matched []OperationLog
	for _, entry := range logger.entries {
		if entry.Operation == operation {
			matched = append(matched, entry)
		}
	}
	return matched
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (notifier *recordingNotifier) Notify(_ context.Context, notification Notification) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.notifications = append(notifier.notifications, notification)
}

func (notifier *recordingNotifier) ofKind(kind NotificationKind) []Notification {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	var matched []Notification
	for _, notification := range notifier.notifications {
		if notification.Kind == kind {
			matched = append(matched, notification)
		}
	}
	return matched
}

const fakeSignatureHeader = "X-Fake-Signature"

type fakeProvider struct {
	id            ProviderID
	secret        string
	initializeErr error
	mu            sync.Mutex
	initialized   []InitializeRequest
}

func (provider *fakeProvider) ID() ProviderID {
	return provider.id
}

func (provider *fakeProvider) Initialize(_ context.Context, request InitializeRequest) (InitializeResult, error) {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	provider.initialized = append(provider.initialized, request)
	if provider.initializeErr != nil {
		return InitializeResult{}, provider.initializeErr
	}
	return InitializeResult{PaymentURL: "https://pay.example/" + request.Reference.String()}, nil
}

func (provider *fakeProvider) VerifyCallback(payload []byte, headers http.Header) bool {
	return VerifySignature(payload, headers.Get(fakeSignatureHeader), provider.secret)
}

func (provider *fakeProvider) ParseCallback(payload []byte) (CallbackEvent, error) {
	var body struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    *int64 `json:"amount"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return CallbackEvent{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	reference, err := NewReference(body.Reference)
	if err != nil {
		return CallbackEvent{}, err
	}
	if body.Status == "pending" {
		return CallbackEvent{Reference: reference}, ErrCallbackIgnored
	}
	status, err := ParseTransactionStatus(body.Status)
	if err != nil {
		return CallbackEvent{}, err
	}
	event := CallbackEvent{Reference: reference, Outcome: status}
	if body.Amount != nil {
		event.Amount = AmountCents(*body.Amount)
		event.HasAmount = true
	}
	return event, nil
}

func (provider *fakeProvider) signedCallback(test *testing.T, body string) ([]byte, http.Header) {
	test.Helper()
	payload := []byte(body)
	headers := http.Header{}
	headers.Set(fakeSignatureHeader, SignPayload(payload, provider.secret))
	return payload, headers
}

type providerMap map[ProviderID]PaymentProvider

func (providers providerMap) Provider(id ProviderID) (PaymentProvider, bool) {
	provider, ok := providers[id]
	return provider, ok
}

func mustReference(test *testing.T, raw string) Reference {
	test.Helper()
	reference, err := NewReference(raw)
	if err != nil {
		test.Fatalf("reference %q: %v", raw, err)
	}
	return reference
}

func mustOrderMetadata(test *testing.T, order OrderMetadata) MetadataJSON {
	test.Helper()
	metadata, err := NewOrderMetadata(order)
	if err != nil {
		test.Fatalf("order metadata: %v", err)
	}
	return metadata
}

func mustRate(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	rate, err := ParseRate(raw)
	if err != nil {
		test.Fatalf("rate %q: %v", raw, err)
	}
	return rate
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("%s-%d", prefix, next)
	}
}

type engineFixture struct {
	store        *memoryStore
	clock        *testClock
	logger       *recorderLogger
	notifier     *recordingNotifier
	reservations *ReservationManager
	router       *GatewayRouter
	fulfillment  *FulfillmentEngine
	ledger       *CommissionLedger
	nominations  *NominationReviewer
}

func newEngineFixture(test *testing.T) *engineFixture {
	test.Helper()
	fixture := &engineFixture{
		store:    newMemoryStore(test),
		clock:    newTestClock(),
		logger:   &recorderLogger{},
		notifier: &recordingNotifier{},
	}
	options := []ServiceOption{
		WithOperationLogger(fixture.logger),
		WithNotifier(fixture.notifier),
		WithIDGenerator(sequentialIDs("id")),
	}
	var err error
	if fixture.reservations, err = NewReservationManager(fixture.store, fixture.clock.Now, options...); err != nil {
		test.Fatalf("reservation manager: %v", err)
	}
	if fixture.router, err = NewGatewayRouter(fixture.store, fixture.clock.Now, "", options...); err != nil {
		test.Fatalf("gateway router: %v", err)
	}
	if fixture.fulfillment, err = NewFulfillmentEngine(fixture.store, fixture.clock.Now, options...); err != nil {
		test.Fatalf("fulfillment engine: %v", err)
	}
	if fixture.ledger, err = NewCommissionLedger(fixture.store, fixture.clock.Now, options...); err != nil {
		test.Fatalf("commission ledger: %v", err)
	}
	if fixture.nominations, err = NewNominationReviewer(fixture.store, fixture.clock.Now, options...); err != nil {
		test.Fatalf("nomination reviewer: %v", err)
	}
	return fixture
}

func (fixture *engineFixture) checkout(test *testing.T, providers providerMap, rate string) *Checkout {
	test.Helper()
	checkout, err := NewCheckout(CheckoutDependencies{
		Store:        fixture.store,
		Reservations: fixture.reservations,
		Router:       fixture.router,
		Fulfillment:  fixture.fulfillment,
		Providers:    providers,
		Now:          fixture.clock.Now,
	}, CheckoutSettings{
		ReservationTTL: 10 * time.Minute,
		CommissionRate: mustRate(test, rate),
		Currency:       "ngn",
	}, WithOperationLogger(fixture.logger), WithNotifier(fixture.notifier))
	if err != nil {
		test.Fatalf("checkout: %v", err)
	}
	return checkout
}

func (store *memoryStore) SaveOrganizer(_ context.Context, organizer Organizer) error {
	return store.read(func(state *memoryState) error {
		if existing, ok := state.organizers[organizer.OrganizerID]; ok {
			organizer.NetEarningsCents = existing.NetEarningsCents
		}
		state.organizers[organizer.OrganizerID] = organizer
		return nil
	})
}

func (store *memoryStore) SaveEvent(_ context.Context, event Event) error {
	return store.read(func(state *memoryState) error {
		if existing, ok := state.events[event.EventID]; ok {
			event.GrossRevenueCents = existing.GrossRevenueCents
		}
		state.events[event.EventID] = event
		return nil
	})
}

func (store *memoryStore) SaveInventoryUnit(_ context.Context, unit InventoryUnit) error {
	return store.read(func(state *memoryState) error {
		if err := store.failure(state, "SaveInventoryUnit"); err != nil {
			return err
		}
		if existing, ok := state.units[unit.UnitID]; ok {
			unit.Sold = existing.Sold
			unit.NominationID = existing.NominationID
		}
		state.units[unit.UnitID] = unit
		return nil
	})
}
