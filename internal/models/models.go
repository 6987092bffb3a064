package models

import (
	"strings"
	"time"
)

// ProcessingStatus represents the processing lifecycle of a raw evidence record
type ProcessingStatus string

const (
	StatusUnprocessed ProcessingStatus = "unprocessed"
	StatusProcessed   ProcessingStatus = "processed"
)

// Valid reports whether s is a known processing status
func (s ProcessingStatus) Valid() bool {
	return s == StatusUnprocessed || s == StatusProcessed
}

// RawEvidence is a single raw log line stored exactly as received.
// Source, Message, IngestedAt and UploadedBy never change after creation.
type RawEvidence struct {
	ID               int64            `json:"id" db:"id"`
	Source           string           `json:"source" db:"source"`
	Message          string           `json:"message" db:"message"`
	IngestedAt       time.Time        `json:"ingested_at" db:"ingested_at"`
	UploadedBy       string           `json:"uploaded_by" db:"uploaded_by"`
	ProcessingStatus ProcessingStatus `json:"processing_status" db:"processing_status"`
}

// SameContent reports whether the evidentiary fields of e and other match
func (e *RawEvidence) SameContent(other *RawEvidence) bool {
	return e.Source == other.Source &&
		e.Message == other.Message &&
		e.UploadedBy == other.UploadedBy &&
		e.IngestedAt.Equal(other.IngestedAt)
}

// AttackType is the category assigned by the rule classifier
type AttackType string

const (
	AttackBruteForce         AttackType = "brute_force"
	AttackAccountEnum        AttackType = "account_enum"
	AttackWebScanning        AttackType = "web_scanning"
	AttackUnauthorizedAccess AttackType = "unauthorized_access"
	AttackUnknown            AttackType = "unknown"
)

// AttackTypes lists every attack type in display order
var AttackTypes = []AttackType{
	AttackBruteForce,
	AttackAccountEnum,
	AttackWebScanning,
	AttackUnauthorizedAccess,
	AttackUnknown,
}

// Valid reports whether a is a known attack type
func (a AttackType) Valid() bool {
	for _, known := range AttackTypes {
		if a == known {
			return true
		}
	}
	return false
}

// Severity represents classification severity level
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight returns the numeric weight used for risk scoring and threshold selection.
// Unknown severities weigh like low.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Verdict is the outcome of classifying one evidence record
type Verdict struct {
	AttackType   AttackType `json:"attack_type"`
	Severity     Severity   `json:"severity"`
	IsSuspicious bool       `json:"is_suspicious"`
	RuleName     string     `json:"rule_name"`
	Notes        string     `json:"notes"`
}

// Classification is the stored verdict for a raw evidence record.
// Source is read from the linked evidence and is not persisted on the row.
type Classification struct {
	ID           int64      `json:"id" db:"id"`
	EvidenceID   int64      `json:"evidence_id" db:"evidence_id"`
	AttackType   AttackType `json:"attack_type" db:"attack_type"`
	Severity     Severity   `json:"severity" db:"severity"`
	IsSuspicious bool       `json:"is_suspicious" db:"is_suspicious"`
	RuleName     string     `json:"rule_name" db:"rule_name"`
	Notes        string     `json:"notes" db:"notes"`
	DetectedAt   time.Time  `json:"detected_at" db:"detected_at"`
	Source       string     `json:"source,omitempty"`
}

// DetectionConfig is the process-wide detection configuration singleton
type DetectionConfig struct {
	WindowMinutes            int       `json:"window_minutes" db:"window_minutes" validate:"min=1,max=10080"`
	ThresholdLow             int       `json:"threshold_low" db:"threshold_low" validate:"min=1"`
	ThresholdMedium          int       `json:"threshold_medium" db:"threshold_medium" validate:"min=1"`
	ThresholdHigh            int       `json:"threshold_high" db:"threshold_high" validate:"min=1"`
	ThresholdCritical        int       `json:"threshold_critical" db:"threshold_critical" validate:"min=1"`
	EnableBruteForce         bool      `json:"enable_brute_force" db:"enable_brute_force"`
	EnableScanning           bool      `json:"enable_scanning" db:"enable_scanning"`
	EnableUnauthorizedAccess bool      `json:"enable_unauthorized_access" db:"enable_unauthorized_access"`
	UpdatedAt                time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultDetectionConfig returns the configuration used when none is stored
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		WindowMinutes:            15,
		ThresholdLow:             5,
		ThresholdMedium:          3,
		ThresholdHigh:            2,
		ThresholdCritical:        1,
		EnableBruteForce:         true,
		EnableScanning:           true,
		EnableUnauthorizedAccess: true,
	}
}

// Threshold returns the minimum alert volume for a group whose highest severity is s
func (c DetectionConfig) Threshold(s Severity) int {
	switch s {
	case SeverityCritical:
		return c.ThresholdCritical
	case SeverityHigh:
		return c.ThresholdHigh
	case SeverityMedium:
		return c.ThresholdMedium
	default:
		return c.ThresholdLow
	}
}

// CorrelatedEvent groups suspicious classifications sharing attack type, source and window
type CorrelatedEvent struct {
	ID                   int64      `json:"id" db:"id"`
	AttackType           AttackType `json:"attack_type" db:"attack_type"`
	Source               string     `json:"source" db:"source"`
	StartTime            time.Time  `json:"start_time" db:"start_time"`
	EndTime              time.Time  `json:"end_time" db:"end_time"`
	TotalAlerts          int        `json:"total_alerts" db:"total_alerts"`
	RiskScore            float64    `json:"risk_score" db:"risk_score"`
	IsPromotedToIncident bool       `json:"is_promoted_to_incident" db:"is_promoted_to_incident"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	ClassificationIDs    []int64    `json:"classification_ids,omitempty"`
}

// Attribution identifies who performed a mutating call and from where.
// An empty Actor means the action has no attributable analyst.
type Attribution struct {
	Actor string `json:"actor"`
	IP    string `json:"ip"`
}

// System is the attribution used by unattended callers such as the CLI
func System(actor string) Attribution {
	return Attribution{Actor: strings.TrimSpace(actor)}
}
