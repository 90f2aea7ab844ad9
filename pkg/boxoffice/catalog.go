package boxoffice

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CatalogStore persists the organizers, events and inventory units that sales draw from.
// Saves are upserts keyed by id; saving an existing unit never touches its sold count.
type CatalogStore interface {
	SaveOrganizer(ctx context.Context, organizer Organizer) error
	SaveEvent(ctx context.Context, event Event) error
	SaveInventoryUnit(ctx context.Context, unit InventoryUnit) error
}

// CatalogDocument is an importable catalog, typically decoded from a YAML or JSON file.
type CatalogDocument struct {
	Organizers []CatalogOrganizer `mapstructure:"organizers" json:"organizers"`
	Events     []CatalogEvent     `mapstructure:"events" json:"events"`
	Units      []CatalogUnit      `mapstructure:"units" json:"units"`
}

// CatalogOrganizer describes one organizer.
type CatalogOrganizer struct {
	ID    string `mapstructure:"id" json:"id"`
	Name  string `mapstructure:"name" json:"name"`
	Email string `mapstructure:"email" json:"email"`
}

// CatalogEvent describes one event. VotePrice is a decimal major-unit amount.
type CatalogEvent struct {
	ID          string `mapstructure:"id" json:"id"`
	OrganizerID string `mapstructure:"organizer_id" json:"organizer_id"`
	Name        string `mapstructure:"name" json:"name"`
	VotePrice   string `mapstructure:"vote_price" json:"vote_price"`
}

// CatalogUnit describes one ticket type or voting candidate.
// A zero Capacity means unbounded; Inactive closes sales.
type CatalogUnit struct {
	ID       string    `mapstructure:"id" json:"id"`
	EventID  string    `mapstructure:"event_id" json:"event_id"`
	Kind     string    `mapstructure:"kind" json:"kind"`
	Name     string    `mapstructure:"name" json:"name"`
	Capacity int64     `mapstructure:"capacity" json:"capacity"`
	Price    string    `mapstructure:"price" json:"price"`
	Inactive bool      `mapstructure:"inactive" json:"inactive"`
	SalesEnd time.Time `mapstructure:"sales_end" json:"sales_end"`
}

// CatalogSummary counts what an import saved.
type CatalogSummary struct {
	Organizers int
	Events     int
	Units      int
}

type preparedCatalog struct {
	organizers []Organizer
	events     []Event
	units      []InventoryUnit
}

// ImportCatalog validates the whole document before saving anything, then upserts
// organizers, events and units in that order. Re-importing the same document is a no-op.
func ImportCatalog(ctx context.Context, store CatalogStore, document CatalogDocument) (CatalogSummary, error) {
	if store == nil {
		return CatalogSummary{}, fmt.Errorf("%w: catalog store is nil", ErrInvalidServiceConfig)
	}
	prepared, err := prepareCatalog(document)
	if err != nil {
		return CatalogSummary{}, err
	}
	for _, organizer := range prepared.organizers {
		if err := store.SaveOrganizer(ctx, organizer); err != nil {
			return CatalogSummary{}, fmt.Errorf("save organizer %s: %w", organizer.OrganizerID, err)
		}
	}
	for _, event := range prepared.events {
		if err := store.SaveEvent(ctx, event); err != nil {
			return CatalogSummary{}, fmt.Errorf("save event %s: %w", event.EventID, err)
		}
	}
	for _, unit := range prepared.units {
		if err := store.SaveInventoryUnit(ctx, unit); err != nil {
			return CatalogSummary{}, fmt.Errorf("save unit %s: %w", unit.UnitID, err)
		}
	}
	return CatalogSummary{
		Organizers: len(prepared.organizers),
		Events:     len(prepared.events),
		Units:      len(prepared.units),
	}, nil
}

func prepareCatalog(document CatalogDocument) (preparedCatalog, error) {
	var prepared preparedCatalog
	organizers := make(map[string]bool, len(document.Organizers))
	for index, entry := range document.Organizers {
		id := strings.TrimSpace(entry.ID)
		name := strings.TrimSpace(entry.Name)
		if id == "" || name == "" {
			return preparedCatalog{}, fmt.Errorf("%w: organizers[%d] needs id and name", ErrInvalidRequest, index)
		}
		if organizers[id] {
			return preparedCatalog{}, fmt.Errorf("%w: organizer %s listed twice", ErrInvalidRequest, id)
		}
		organizers[id] = true
		prepared.organizers = append(prepared.organizers, Organizer{OrganizerID: id, Name: name, Email: strings.TrimSpace(entry.Email)})
	}
	events := make(map[string]bool, len(document.Events))
	for index, entry := range document.Events {
		id := strings.TrimSpace(entry.ID)
		organizerID := strings.TrimSpace(entry.OrganizerID)
		if id == "" || organizerID == "" || strings.TrimSpace(entry.Name) == "" {
			return preparedCatalog{}, fmt.Errorf("%w: events[%d] needs id, organizer_id and name", ErrInvalidRequest, index)
		}
		if !organizers[organizerID] {
			return preparedCatalog{}, fmt.Errorf("%w: event %s references unlisted organizer %s", ErrInvalidRequest, id, organizerID)
		}
		if events[id] {
			return preparedCatalog{}, fmt.Errorf("%w: event %s listed twice", ErrInvalidRequest, id)
		}
		votePrice, err := parseOptionalAmount(entry.VotePrice)
		if err != nil {
			return preparedCatalog{}, fmt.Errorf("event %s vote_price: %w", id, err)
		}
		events[id] = true
		prepared.events = append(prepared.events, Event{
			EventID:        id,
			OrganizerID:    organizerID,
			Name:           strings.TrimSpace(entry.Name),
			VotePriceCents: votePrice,
		})
	}
	units := make(map[string]bool, len(document.Units))
	for index, entry := range document.Units {
		id := strings.TrimSpace(entry.ID)
		eventID := strings.TrimSpace(entry.EventID)
		if id == "" || eventID == "" || strings.TrimSpace(entry.Name) == "" {
			return preparedCatalog{}, fmt.Errorf("%w: units[%d] needs id, event_id and name", ErrInvalidRequest, index)
		}
		if !events[eventID] {
			return preparedCatalog{}, fmt.Errorf("%w: unit %s references unlisted event %s", ErrInvalidRequest, id, eventID)
		}
		if units[id] {
			return preparedCatalog{}, fmt.Errorf("%w: unit %s listed twice", ErrInvalidRequest, id)
		}
		kind, err := ParseInventoryKind(strings.ToLower(strings.TrimSpace(entry.Kind)))
		if err != nil {
			return preparedCatalog{}, fmt.Errorf("%w: unit %s kind %q", ErrInvalidRequest, id, entry.Kind)
		}
		if entry.Capacity < 0 {
			return preparedCatalog{}, fmt.Errorf("%w: unit %s capacity %d", ErrInvalidQuantity, id, entry.Capacity)
		}
		price, err := ParseAmount(entry.Price)
		if err != nil {
			return preparedCatalog{}, fmt.Errorf("unit %s price: %w", id, err)
		}
		if price <= 0 {
			return preparedCatalog{}, fmt.Errorf("%w: unit %s price must be positive", ErrInvalidAmount, id)
		}
		units[id] = true
		prepared.units = append(prepared.units, InventoryUnit{
			UnitID:     id,
			EventID:    eventID,
			Kind:       kind,
			Name:       strings.TrimSpace(entry.Name),
			Bounded:    entry.Capacity > 0,
			Capacity:   entry.Capacity,
			PriceCents: price,
			Active:     !entry.Inactive,
			SalesEndAt: entry.SalesEnd.UTC(),
		})
	}
	return prepared, nil
}

func parseOptionalAmount(raw string) (AmountCents, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return ParseAmount(raw)
}
