// Package domain defines the case-management entities, field-delta value
// objects, and persistence interfaces shared by the caseboard core.
package domain

import "time"

// ClientStatus identifies the workflow state of a client case.
type ClientStatus string

// Canonical workflow states carried over from the case-tracking vocabulary.
const (
	StatusOpen       ClientStatus = "offen"
	StatusInProgress ClientStatus = "inBearbeitung"
	StatusCompleted  ClientStatus = "abgeschlossen"
	StatusArchived   ClientStatus = "archiviert"
)

// Priority identifies the urgency assigned to a client case.
type Priority string

// Canonical priorities, lowest to highest.
const (
	PriorityLow    Priority = "niedrig"
	PriorityMedium Priority = "mittel"
	PriorityHigh   Priority = "hoch"
)

// NextPriority returns the priority following p in the low -> medium -> high
// -> low cycle. Unknown values restart at low.
func NextPriority(p Priority) Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	case PriorityHigh:
		return PriorityLow
	default:
		return PriorityLow
	}
}

// Base contains common fields for all persisted records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Client represents a tracked client case on the board.
//
// Besides the primary ID, a record may carry up to three alternate
// identifiers: a client-assigned number, a UUID, and an external reference
// issued by an upstream system. Imported records are not guaranteed to agree
// on which of these holds the canonical key, so lookups fall back across
// them (see internal/upsert).
type Client struct {
	Base
	ClientNumber  string       `json:"client_number,omitempty"`
	UUID          string       `json:"uuid,omitempty"`
	ExternalRef   string       `json:"external_ref,omitempty"`
	Name          string       `json:"name"`
	Email         string       `json:"email,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	Status        ClientStatus `json:"status"`
	Priority      Priority     `json:"priority,omitempty"`
	AssignedTo    *string      `json:"assigned_to"`
	ContactCount  int          `json:"contact_count"`
	LastContactAt *time.Time   `json:"last_contact_at"`
	Notes         string       `json:"notes,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
}

// Clone returns a deep copy of the client.
func (c Client) Clone() Client {
	cp := c
	if c.AssignedTo != nil {
		v := *c.AssignedTo
		cp.AssignedTo = &v
	}
	if c.LastContactAt != nil {
		v := *c.LastContactAt
		cp.LastContactAt = &v
	}
	cp.Tags = append([]string(nil), c.Tags...)
	return cp
}
