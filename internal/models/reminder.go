package models

import (
	"errors"
	"strings"
	"time"
)

// Vehicle represents a customer vehicle in the workshop registry.
// LastOdo and LastServiceDate are the last-service snapshot; both are
// optional because a vehicle may be registered before its first service.
type Vehicle struct {
	Plate           string    `json:"plate"`
	OwnerName       string    `json:"owner_name"`
	Phone           string    `json:"phone"`
	Make            string    `json:"make,omitempty"`
	Model           string    `json:"model,omitempty"`
	Year            string    `json:"year,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	LastOdo         *int      `json:"last_odo"`
	LastServiceDate *string   `json:"last_service_date"` // ISO date (2006-01-02)
	CreatedAt       time.Time `json:"created_at"`
}

// NormalizePlate canonicalizes a plate the way the registry stores it.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// Rules is the active reminder scheduling policy. A single row, edited by
// the administrative screen; the engine reads it as a snapshot.
type Rules struct {
	DistanceIntervalKm int    `json:"distance_interval_km"`
	TimeIntervalDays   int    `json:"time_interval_days"`
	LeadDays           int    `json:"lead_days"`
	Template           string `json:"template"`
	DiscountText       string `json:"discount_text"`
}

// DefaultRules returns the policy used when nothing has been configured.
func DefaultRules() Rules {
	return Rules{
		DistanceIntervalKm: 5000,
		TimeIntervalDays:   180,
		LeadDays:           7,
		Template:           "Dear customer, your vehicle {plate} is due for an oil change. Last at {lastOdo} km on {lastDate}. Visit us and get {discount} off.",
		DiscountText:       "5%",
	}
}

// Normalize coerces a rules snapshot into a usable one: negative intervals
// become 0 and empty template/discount fall back to the defaults. Never
// rejects, matching the form's save-side guarding.
func (r Rules) Normalize() Rules {
	def := DefaultRules()
	if r.DistanceIntervalKm < 0 {
		r.DistanceIntervalKm = 0
	}
	if r.TimeIntervalDays < 0 {
		r.TimeIntervalDays = 0
	}
	if r.LeadDays < 0 {
		r.LeadDays = 0
	}
	if strings.TrimSpace(r.Template) == "" {
		r.Template = def.Template
	}
	if r.DiscountText == "" {
		r.DiscountText = def.DiscountText
	}
	return r
}

// Status is the reminder delivery lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDismissed Status = "dismissed"
)

// ErrInvalidTransition is returned when a status change would leave a
// terminal state.
var ErrInvalidTransition = errors.New("invalid status transition")

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDismissed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted out of s.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusDismissed
}

// CanTransition reports whether s may move to next. Re-applying the current
// state is always allowed as a no-op; sent and dismissed are terminal
// otherwise.
func (s Status) CanTransition(next Status) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	return s == StatusPending
}

// Reminder is one generated queue entry. Contact fields are copied from the
// vehicle at generation time; later vehicle edits do not update them.
type Reminder struct {
	ID        string    `json:"id"`
	Plate     string    `json:"plate"`
	OwnerName string    `json:"owner_name"`
	Phone     string    `json:"phone"`
	DueKey    string    `json:"due_key"`
	DueDate   string    `json:"due_date"` // ISO date
	DueKm     *int      `json:"due_km"`   // display only, never used for dedup
	Message   string    `json:"message"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// DedupKey identifies the due-event this entry answers for. At most one
// entry per key may exist in the queue, regardless of status.
func (r Reminder) DedupKey() string {
	return r.Plate + "|" + r.DueKey
}

// ReminderQuery represents listing filters for the reminder queue.
type ReminderQuery struct {
	Status Status
	Search string
	Limit  int
	Offset int
}
