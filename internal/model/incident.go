package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IncidentSeverity grades how serious a cheating incident is.
type IncidentSeverity string

const (
	SeverityLow      IncidentSeverity = "LOW"
	SeverityMedium   IncidentSeverity = "MEDIUM"
	SeverityHigh     IncidentSeverity = "HIGH"
	SeverityCritical IncidentSeverity = "CRITICAL"
)

// IncidentType is either one of the violation kinds or a synthetic type
// produced by the lifecycle controller itself.
type IncidentType string

// IncidentSubmissionFlagged documents an attempt whose final risk at
// submission exceeded the flagging threshold. Violation-driven incidents
// use the violation type itself as their IncidentType.
const IncidentSubmissionFlagged IncidentType = "SUBMISSION_FLAGGED"

// CheatingIncident is an immutable audit record of a rule violation tied to
// one attempt. Incidents are never updated or deleted, only accumulated.
type CheatingIncident struct {
	ID           uuid.UUID        `json:"id"`
	AttemptID    uuid.UUID        `json:"attempt_id"`
	ExamID       uuid.UUID        `json:"exam_id"`
	StudentID    int              `json:"student_id"`
	IncidentType IncidentType     `json:"incident_type"`
	Description  string           `json:"description"`
	Severity     IncidentSeverity `json:"severity"`
	// Evidence holds the raw violation details plus the risk score at the
	// time of recording; its shape is discriminated by IncidentType.
	Evidence  json.RawMessage `json:"evidence"`
	Timestamp time.Time       `json:"timestamp"`
}

// IncidentCount aggregates incidents per student for teacher dashboards.
type IncidentCount struct {
	StudentID int   `json:"student_id"`
	Count     int64 `json:"count"`
}
