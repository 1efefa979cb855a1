// Package normalizer turns the provider's free-form response text into
// a ranked, schema-conformant threat list: parse (with balanced-object
// fallback), enrich every threat with identifiers and derived scoring,
// rank by risk score, and truncate to the top five.
package normalizer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"threatforge/internal/jsonutil"
	"threatforge/internal/threatmodel"
)

// MaxThreats bounds how many ranked threats survive normalization.
const MaxThreats = 5

// ErrParse marks responses that could not be decoded or that carry
// threats with missing required fields. It always fails the attempt.
var ErrParse = errors.New("normalizer: unparsable model response")

// Result is the structured outcome of one generation attempt.
type Result struct {
	Threats         []threatmodel.Threat
	Summary         string
	Recommendations []string
}

type wireMitigation struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Effort      string `json:"effort"`
	Status      string `json:"status"`
}

type wireThreat struct {
	ID                 string           `json:"id"`
	Title              string           `json:"title"`
	Description        string           `json:"description"`
	Category           string           `json:"category"`
	Likelihood         *int             `json:"likelihood"`
	Impact             *int             `json:"impact"`
	AffectedComponents []string         `json:"affected_components"`
	AttackVector       string           `json:"attack_vector"`
	Mitigations        []wireMitigation `json:"mitigations"`
}

type wireResponse struct {
	Threats         []wireThreat `json:"threats"`
	Summary         string       `json:"summary"`
	Recommendations []string     `json:"recommendations"`
}

// Normalize parses rawText and returns the enriched, ranked result.
// Any decode failure or missing required threat field is a hard error.
func Normalize(rawText string) (*Result, error) {
	var wire wireResponse
	if err := jsonutil.Unmarshal([]byte(rawText), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	threats := make([]threatmodel.Threat, 0, len(wire.Threats))
	for i, wt := range wire.Threats {
		t, err := enrichThreat(wt)
		if err != nil {
			return nil, fmt.Errorf("%w: threat %d: %v", ErrParse, i, err)
		}
		threats = append(threats, t)
	}

	// Rank by risk score descending; input order breaks ties.
	sort.SliceStable(threats, func(i, j int) bool {
		return threats[i].RiskScore > threats[j].RiskScore
	})
	if len(threats) > MaxThreats {
		threats = threats[:MaxThreats]
	}

	recs := wire.Recommendations
	if recs == nil {
		recs = []string{}
	}
	return &Result{
		Threats:         threats,
		Summary:         wire.Summary,
		Recommendations: recs,
	}, nil
}

func enrichThreat(wt wireThreat) (threatmodel.Threat, error) {
	if strings.TrimSpace(wt.Title) == "" {
		return threatmodel.Threat{}, errors.New("missing title")
	}
	if strings.TrimSpace(wt.Description) == "" {
		return threatmodel.Threat{}, errors.New("missing description")
	}
	category := normalizeCategory(wt.Category)
	if !threatmodel.ValidCategory(category) {
		return threatmodel.Threat{}, fmt.Errorf("invalid category %q", wt.Category)
	}
	if wt.Likelihood == nil {
		return threatmodel.Threat{}, errors.New("missing likelihood")
	}
	if wt.Impact == nil {
		return threatmodel.Threat{}, errors.New("missing impact")
	}

	likelihood := clampScale(*wt.Likelihood)
	impact := clampScale(*wt.Impact)
	score := threatmodel.RiskScore(likelihood, impact)

	id := strings.TrimSpace(wt.ID)
	if id == "" {
		id = uuid.NewString()
	}

	mitigations := make([]threatmodel.Mitigation, 0, len(wt.Mitigations))
	for _, wm := range wt.Mitigations {
		mitigations = append(mitigations, enrichMitigation(wm))
	}

	return threatmodel.Threat{
		ID:                 id,
		Title:              wt.Title,
		Description:        wt.Description,
		Category:           category,
		Severity:           threatmodel.SeverityForScore(score),
		SeverityOverridden: false,
		Likelihood:         likelihood,
		Impact:             impact,
		RiskScore:          score,
		AffectedComponents: wt.AffectedComponents,
		AttackVector:       wt.AttackVector,
		Mitigations:        mitigations,
	}, nil
}

func enrichMitigation(wm wireMitigation) threatmodel.Mitigation {
	id := strings.TrimSpace(wm.ID)
	if id == "" {
		id = uuid.NewString()
	}
	status := threatmodel.MitigationStatus(strings.ToLower(strings.TrimSpace(wm.Status)))
	switch status {
	case threatmodel.MitigationProposed, threatmodel.MitigationAccepted,
		threatmodel.MitigationImplemented, threatmodel.MitigationRejected:
	default:
		status = threatmodel.MitigationProposed
	}
	return threatmodel.Mitigation{
		ID:          id,
		Description: wm.Description,
		Priority:    threatmodel.MitigationPriority(strings.ToLower(strings.TrimSpace(wm.Priority))),
		Effort:      threatmodel.MitigationEffort(strings.ToLower(strings.TrimSpace(wm.Effort))),
		Status:      status,
	}
}

func normalizeCategory(raw string) threatmodel.Category {
	c := strings.ToLower(strings.TrimSpace(raw))
	c = strings.ReplaceAll(c, " ", "_")
	c = strings.ReplaceAll(c, "-", "_")
	return threatmodel.Category(c)
}

func clampScale(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}
