package models

import (
	"fmt"
	"time"
)

// IncidentStatus represents incident workflow state
type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentMitigated     IncidentStatus = "mitigated"
	IncidentClosed        IncidentStatus = "closed"
)

// IncidentStatuses lists every incident status in workflow order
var IncidentStatuses = []IncidentStatus{
	IncidentOpen,
	IncidentInvestigating,
	IncidentMitigated,
	IncidentClosed,
}

// Valid reports whether s is a known incident status
func (s IncidentStatus) Valid() bool {
	for _, known := range IncidentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Incident is a tracked response workflow created from a correlated event
type Incident struct {
	ID                int64          `json:"-" db:"id"`
	IncidentID        string         `json:"incident_id" db:"incident_id"`
	Year              int            `json:"-" db:"incident_year"`
	Sequence          int            `json:"-" db:"incident_seq"`
	CorrelatedEventID int64          `json:"correlated_event_id" db:"correlated_event_id"`
	AttackType        AttackType     `json:"attack_type" db:"attack_type"`
	RiskScore         float64        `json:"risk_score" db:"risk_score"`
	CurrentStatus     IncidentStatus `json:"current_status" db:"current_status"`
	AssignedTo        string         `json:"assigned_to,omitempty" db:"assigned_to"`
	CreatedBy         string         `json:"created_by,omitempty" db:"created_by"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// FormatIncidentID renders the human-readable identifier, e.g. INC-2025-0007
func FormatIncidentID(year, seq int) string {
	return fmt.Sprintf("INC-%d-%04d", year, seq)
}

// IncidentHistory is one append-only entry in an incident's status trail
type IncidentHistory struct {
	ID         int64          `json:"id" db:"id"`
	IncidentID int64          `json:"-" db:"incident_id"`
	Timestamp  time.Time      `json:"timestamp" db:"timestamp"`
	ChangedBy  string         `json:"changed_by,omitempty" db:"changed_by"`
	OldStatus  IncidentStatus `json:"old_status" db:"old_status"`
	NewStatus  IncidentStatus `json:"new_status" db:"new_status"`
	Notes      string         `json:"notes" db:"notes"`
}
