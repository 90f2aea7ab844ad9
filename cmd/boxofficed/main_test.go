package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/internal/daemon"
)

func writeFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadCatalogFromYAML(t *testing.T) {
	path := writeFile(t, "catalog.yaml", `
organizers:
  - id: org-1
    name: Accra Nights
    email: hello@accranights.example
events:
  - id: event-1
    organizer_id: org-1
    name: Highlife Awards
    vote_price: "2.00"
units:
  - id: vip
    event_id: event-1
    kind: ticket
    name: VIP
    capacity: 150
    price: 250
    sales_end: "2026-12-31T20:00:00Z"
  - id: fan-vote
    event_id: event-1
    kind: vote
    name: Fan vote
    price: "1.50"
`)
	document, err := loadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(document.Organizers) != 1 || len(document.Events) != 1 || len(document.Units) != 2 {
		t.Fatalf("unexpected document %+v", document)
	}
	vip := document.Units[0]
	if vip.Capacity != 150 || vip.Price != "250" || !vip.SalesEnd.Equal(time.Date(2026, time.December, 31, 20, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected vip unit %+v", vip)
	}
	if document.Units[1].Capacity != 0 || document.Events[0].VotePrice != "2.00" {
		t.Fatalf("unexpected document %+v", document)
	}
}

func TestLoadCatalogFromJSON(t *testing.T) {
	path := writeFile(t, "catalog.json", `{"organizers":[{"id":"org-1","name":"Accra Nights"}],"events":[{"id":"event-1","organizer_id":"org-1","name":"Gala"}],"units":[{"id":"ga","event_id":"event-1","kind":"ticket","name":"GA","capacity":10,"price":"25.50","inactive":true}]}`)
	document, err := loadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(document.Units) != 1 || !document.Units[0].Inactive || document.Units[0].Price != "25.50" {
		t.Fatalf("unexpected document %+v", document)
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	if _, err := loadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadConfigReadsFlagsAndEnvironment(t *testing.T) {
	t.Setenv("BOXOFFICE_CURRENCY", "ngn")
	t.Setenv("BOXOFFICE_SIMULATOR_SECRET", "sim_secret")
	cmd := newRootCommand()
	err := cmd.ParseFlags([]string{
		"--database-url", filepath.Join(t.TempDir(), "boxoffice.db"),
		"--simulator-enabled",
		"--default-provider", "simulator",
		"--reservation-ttl", "5m",
		"--allowed-origins", "https://a.example,https://b.example",
	})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	var cfg daemon.Config
	if err := loadConfig(cmd, &cfg); err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Currency != "NGN" || cfg.SimulatorSecret != "sim_secret" || !cfg.SimulatorEnabled {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ReservationTTL != 5*time.Minute || len(cfg.AllowedOrigins) != 2 || cfg.StoreDriver != daemon.StoreDriverGORM {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadConfigRejectsMissingProvider(t *testing.T) {
	cmd := newRootCommand()
	if err := cmd.ParseFlags([]string{"--database-url", filepath.Join(t.TempDir(), "boxoffice.db")}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	var cfg daemon.Config
	if err := loadConfig(cmd, &cfg); err == nil {
		t.Fatalf("expected validation error without a provider")
	}
}
