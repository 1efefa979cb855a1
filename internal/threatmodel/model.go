// Package threatmodel defines the entities the generation pipeline
// reads and writes: the threat model record itself, its uploaded
// context files and imported tickets, and the generated threats.
package threatmodel

import "time"

// Status is the lifecycle state of a threat model's generation.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Category is one of the six STRIDE buckets.
type Category string

const (
	CategorySpoofing        Category = "spoofing"
	CategoryTampering       Category = "tampering"
	CategoryRepudiation     Category = "repudiation"
	CategoryInfoDisclosure  Category = "information_disclosure"
	CategoryDenialOfService Category = "denial_of_service"
	CategoryElevationPriv   Category = "elevation_of_privilege"
)

// Severity buckets, ordered info < low < medium < high < critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type MitigationPriority string

const (
	PriorityImmediate MitigationPriority = "immediate"
	PriorityShortTerm MitigationPriority = "short_term"
	PriorityLongTerm  MitigationPriority = "long_term"
)

type MitigationEffort string

const (
	EffortLow    MitigationEffort = "low"
	EffortMedium MitigationEffort = "medium"
	EffortHigh   MitigationEffort = "high"
)

type MitigationStatus string

const (
	MitigationProposed    MitigationStatus = "proposed"
	MitigationAccepted    MitigationStatus = "accepted"
	MitigationImplemented MitigationStatus = "implemented"
	MitigationRejected    MitigationStatus = "rejected"
)

// QuestionAnswer is one questionnaire entry, kept in answer order.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ThreatModel is the unit of work for a generation attempt.
type ThreatModel struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	SystemDescription string           `json:"system_description"`
	Questions         []QuestionAnswer `json:"questions"`
	Status            Status           `json:"status"`
	Threats           []Threat         `json:"threats"`
	Summary           string           `json:"summary"`
	Recommendations   []string         `json:"recommendations"`
	GenerationStarted *time.Time       `json:"generation_started,omitempty"`
	GenerationEnded   *time.Time       `json:"generation_ended,omitempty"`
	GenerationError   string           `json:"generation_error,omitempty"`
}

// FileTag is the semantic role of an uploaded file.
type FileTag string

const (
	TagRequirements FileTag = "requirements"
	TagDiagram      FileTag = "diagram"
	TagScreenshot   FileTag = "screenshot"
	TagOther        FileTag = "other"
)

// ContextFile references an uploaded artifact. The pipeline never
// mutates it; the storage key is opaque and resolved on demand.
type ContextFile struct {
	ID            string  `json:"id"`
	ThreatModelID string  `json:"threat_model_id"`
	FileName      string  `json:"file_name"`
	MimeType      string  `json:"mime_type"`
	StorageKey    string  `json:"storage_key"`
	Tag           FileTag `json:"tag"`
}

// TicketComment is a single comment on an imported ticket.
type TicketComment struct {
	Author  string    `json:"author"`
	Body    string    `json:"body"`
	Created time.Time `json:"created"`
}

// TicketLink points at another issue related to the ticket.
type TicketLink struct {
	Relation string `json:"relation"`
	Key      string `json:"key"`
	Title    string `json:"title"`
}

// TicketAttachment is metadata only; attachment bytes are never fetched.
type TicketAttachment struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
}

// TicketRecord is a denormalized snapshot of an imported issue,
// immutable after import.
type TicketRecord struct {
	ID            string             `json:"id"`
	ThreatModelID string             `json:"threat_model_id"`
	Key           string             `json:"key"`
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	Type          string             `json:"type"`
	Status        string             `json:"status"`
	Priority      string             `json:"priority"`
	Labels        []string           `json:"labels"`
	Reporter      string             `json:"reporter"`
	Assignee      string             `json:"assignee"`
	Comments      []TicketComment    `json:"comments"`
	Links         []TicketLink       `json:"links"`
	RemoteLinks   []string           `json:"remote_links"`
	Attachments   []TicketAttachment `json:"attachments"`
}

// Threat is one generated (and later editable) finding.
type Threat struct {
	ID                 string       `json:"id"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	Category           Category     `json:"category"`
	Severity           Severity     `json:"severity"`
	SeverityOverridden bool         `json:"severity_overridden"`
	Likelihood         int          `json:"likelihood"` // 1-5
	Impact             int          `json:"impact"`     // 1-5
	RiskScore          int          `json:"risk_score"` // likelihood * impact
	AffectedComponents []string     `json:"affected_components"`
	AttackVector       string       `json:"attack_vector,omitempty"`
	Mitigations        []Mitigation `json:"mitigations"`
}

// Mitigation is a proposed control attached to a single threat.
type Mitigation struct {
	ID          string             `json:"id"`
	Description string             `json:"description"`
	Priority    MitigationPriority `json:"priority"`
	Effort      MitigationEffort   `json:"effort"`
	Status      MitigationStatus   `json:"status"`
}

// RiskScore is the sole input to derived severity.
func RiskScore(likelihood, impact int) int {
	return likelihood * impact
}

// SeverityForScore maps a risk score onto the fixed severity buckets.
func SeverityForScore(score int) Severity {
	switch {
	case score >= 20:
		return SeverityCritical
	case score >= 15:
		return SeverityHigh
	case score >= 10:
		return SeverityMedium
	case score >= 5:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// ValidCategory reports whether c is one of the six STRIDE values.
func ValidCategory(c Category) bool {
	switch c {
	case CategorySpoofing, CategoryTampering, CategoryRepudiation,
		CategoryInfoDisclosure, CategoryDenialOfService, CategoryElevationPriv:
		return true
	}
	return false
}
