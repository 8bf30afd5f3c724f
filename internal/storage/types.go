package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config selects a driver. An empty Driver or "none" disables storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// Application is one submission attempt for a listing.
type Application struct {
	RunID     string    `json:"run_id"`
	ListingID string    `json:"listing_id"`
	Address   string    `json:"address,omitempty"`
	Price     float64   `json:"price,omitempty"`
	At        time.Time `json:"at"`
	OK        bool      `json:"ok"`
	DryRun    bool      `json:"dry_run,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Run summarizes one bot session.
type Run struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Error      string    `json:"error,omitempty"`
}

// Prefs are the last options the user ran with. Secrets never go here.
type Prefs struct {
	Mode       string   `json:"mode,omitempty"`
	Count      int      `json:"count,omitempty"`
	Max        bool     `json:"max,omitempty"`
	ListingIDs []string `json:"listing_ids,omitempty"`
	TestID     string   `json:"test_id,omitempty"`
	TestApply  bool     `json:"test_apply,omitempty"`
}
