package models

import (
	"strconv"
	"time"
)

// AuditAction represents the kind of mutating action recorded in the ledger
type AuditAction string

const (
	ActionLogin                  AuditAction = "login"
	ActionLogout                 AuditAction = "logout"
	ActionLogUpload              AuditAction = "log_upload"
	ActionManualLogEntry         AuditAction = "manual_log_entry"
	ActionAnalysisRun            AuditAction = "analysis_run"
	ActionCorrelationRun         AuditAction = "correlation_run"
	ActionIncidentCreate         AuditAction = "incident_create"
	ActionIncidentUpdate         AuditAction = "incident_update"
	ActionAdminUserCreate        AuditAction = "admin_user_create"
	ActionAdminUserUpdate        AuditAction = "admin_user_update"
	ActionAdminUserPasswordReset AuditAction = "admin_user_password_reset"
	ActionAdminConfigUpdate      AuditAction = "admin_config_update"
)

// AuditActions lists every action kind
var AuditActions = []AuditAction{
	ActionLogin,
	ActionLogout,
	ActionLogUpload,
	ActionManualLogEntry,
	ActionAnalysisRun,
	ActionCorrelationRun,
	ActionIncidentCreate,
	ActionIncidentUpdate,
	ActionAdminUserCreate,
	ActionAdminUserUpdate,
	ActionAdminUserPasswordReset,
	ActionAdminConfigUpdate,
}

// Valid reports whether a is a known action kind
func (a AuditAction) Valid() bool {
	for _, known := range AuditActions {
		if a == known {
			return true
		}
	}
	return false
}

// RelatedKind tags the type of object an audit entry concerns
type RelatedKind string

const (
	RelatedNone            RelatedKind = ""
	RelatedEvidence        RelatedKind = "raw_evidence"
	RelatedLogSource       RelatedKind = "log_source"
	RelatedCorrelatedEvent RelatedKind = "correlated_event"
	RelatedIncident        RelatedKind = "incident"
	RelatedConfig          RelatedKind = "detection_config"
	RelatedUser            RelatedKind = "user"
)

// RelatedRef is a loose (kind, id) pointer to the object an audit entry concerns.
// Build it with the constructors below rather than by hand.
type RelatedRef struct {
	Kind RelatedKind `json:"type"`
	ID   string      `json:"id"`
}

func NoRef() RelatedRef { return RelatedRef{} }

func EvidenceRef(id int64) RelatedRef {
	return RelatedRef{Kind: RelatedEvidence, ID: strconv.FormatInt(id, 10)}
}

func LogSourceRef(source string) RelatedRef {
	return RelatedRef{Kind: RelatedLogSource, ID: source}
}

func CorrelatedEventRef(id int64) RelatedRef {
	return RelatedRef{Kind: RelatedCorrelatedEvent, ID: strconv.FormatInt(id, 10)}
}

func IncidentRef(incidentID string) RelatedRef {
	return RelatedRef{Kind: RelatedIncident, ID: incidentID}
}

func ConfigRef() RelatedRef {
	return RelatedRef{Kind: RelatedConfig, ID: "1"}
}

func UserRef(userID string) RelatedRef {
	return RelatedRef{Kind: RelatedUser, ID: userID}
}

// AuditLogEntry is one immutable link in the hash-chained audit ledger
type AuditLogEntry struct {
	SequenceNumber int64       `json:"sequence_number" db:"sequence_number"`
	Timestamp      time.Time   `json:"timestamp" db:"timestamp"`
	Actor          string      `json:"actor,omitempty" db:"actor"`
	Action         AuditAction `json:"action" db:"action"`
	Description    string      `json:"description" db:"description"`
	IPAddress      string      `json:"ip_address,omitempty" db:"ip_address"`
	Related        RelatedRef  `json:"related"`
	PrevHash       string      `json:"prev_hash" db:"prev_hash"`
	ContentHash    string      `json:"content_hash" db:"content_hash"`
}
