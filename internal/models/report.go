package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// Severity grades a finding from unusable to informational.
type Severity string

const (
	SeverityBlocker Severity = "blocker"
	SeverityMajor   Severity = "major"
	SeverityMinor   Severity = "minor"
	SeverityOK      Severity = "ok"
)

// Pipeline phases, stamped on every finding.
const (
	PhaseBlockers    = "phase0_blockers"
	PhaseStructure   = "phase1_structure"
	PhaseColumns     = "phase2_columns"
	PhaseContent     = "phase3_content"
	PhaseCodes       = "phase4_codes"
	PhaseMetadata    = "phase5_metadata"
	PhaseConsistency = "phase6_consistency"
)

// Verdict is the overall judgment derived from finding severities.
// Its integer value doubles as the process exit code.
type Verdict int

const (
	VerdictGood     Verdict = 0
	VerdictCaution  Verdict = 1
	VerdictUnusable Verdict = 2
)

func (v Verdict) String() string {
	switch v {
	case VerdictUnusable:
		return "UNUSABLE"
	case VerdictCaution:
		return "USABLE WITH CAUTION"
	default:
		return "GOOD"
	}
}

// Finding is one observation about a file or dataset. Detail carries
// evidence (offending columns, sample values), Fix a remediation hint.
type Finding struct {
	Severity Severity
	Phase    string
	Code     string
	Message  string
	Detail   string
	Fix      string
}

// ScoreDimension is one scored axis of the report. Notes explain
// deductions in rendering order.
type ScoreDimension struct {
	Name     string
	MaxScore int
	Score    int
	Notes    []string
}

// Dimension names shared by the file and dataset pipelines. File-only
// runs carry the first three; dataset runs add the last two.
const (
	DimFileFormat    = "File format compliance"
	DimStructure     = "Data structure quality"
	DimContent       = "Data content quality"
	DimMetadata      = "Metadata completeness"
	DimAccessibility = "Accessibility"
)

// QualityReport accumulates findings and score dimensions across the
// validation pipeline. Metadata is scratch space for validators and is
// never exported.
type QualityReport struct {
	Source     string
	Profile    string
	Mode       string
	Findings   []Finding
	Dimensions []ScoreDimension
	Metadata   map[string]any
}

// NewReport returns an empty report for source with default profile
// and mode.
func NewReport(source string) *QualityReport {
	return &QualityReport{
		Source:   source,
		Profile:  "unknown",
		Mode:     "standard",
		Metadata: map[string]any{},
	}
}

// Add appends a finding as-is.
func (r *QualityReport) Add(f Finding) {
	r.Findings = append(r.Findings, f)
}

// OK records a passed check.
func (r *QualityReport) OK(phase, code, message string) {
	r.Add(Finding{Severity: SeverityOK, Phase: phase, Code: code, Message: message})
}

// Blocker records a finding that makes the source unusable.
func (r *QualityReport) Blocker(phase, code, message, detail, fix string) {
	r.Add(Finding{Severity: SeverityBlocker, Phase: phase, Code: code, Message: message, Detail: detail, Fix: fix})
}

// Major records a significant quality problem.
func (r *QualityReport) Major(phase, code, message, detail, fix string) {
	r.Add(Finding{Severity: SeverityMajor, Phase: phase, Code: code, Message: message, Detail: detail, Fix: fix})
}

// Minor records a cosmetic or low-impact problem.
func (r *QualityReport) Minor(phase, code, message, detail, fix string) {
	r.Add(Finding{Severity: SeverityMinor, Phase: phase, Code: code, Message: message, Detail: detail, Fix: fix})
}

// Suppress removes every finding carrying code, whatever its severity.
// Later checks use it to retract earlier false positives.
func (r *QualityReport) Suppress(code string) {
	kept := r.Findings[:0]
	for _, f := range r.Findings {
		if f.Code != code {
			kept = append(kept, f)
		}
	}
	r.Findings = kept
}

func (r *QualityReport) bySeverity(sev Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}

// Blockers returns all blocker findings.
func (r *QualityReport) Blockers() []Finding { return r.bySeverity(SeverityBlocker) }

// Majors returns all major findings.
func (r *QualityReport) Majors() []Finding { return r.bySeverity(SeverityMajor) }

// Minors returns all minor findings.
func (r *QualityReport) Minors() []Finding { return r.bySeverity(SeverityMinor) }

// HasBlockers reports whether any blocker finding is present. It is the
// only authority for the unusable verdict.
func (r *QualityReport) HasBlockers() bool {
	return len(r.Blockers()) > 0
}

// AddDimension appends a scored dimension.
func (r *QualityReport) AddDimension(d ScoreDimension) {
	r.Dimensions = append(r.Dimensions, d)
}

// TotalScore sums earned points across dimensions.
func (r *QualityReport) TotalScore() int {
	total := 0
	for _, d := range r.Dimensions {
		total += d.Score
	}
	return total
}

// MaxScore sums the ceilings of all dimensions present.
func (r *QualityReport) MaxScore() int {
	max := 0
	for _, d := range r.Dimensions {
		max += d.MaxScore
	}
	return max
}

// ScorePct is the rounded percentage of earned points, 0 when no
// dimension has been scored yet.
func (r *QualityReport) ScorePct() int {
	max := r.MaxScore()
	if max == 0 {
		return 0
	}
	return int(math.Round(float64(r.TotalScore()) / float64(max) * 100))
}

// Verdict derives the overall judgment from severities alone.
func (r *QualityReport) Verdict() Verdict {
	switch {
	case r.HasBlockers():
		return VerdictUnusable
	case len(r.Majors()) > 0:
		return VerdictCaution
	default:
		return VerdictGood
	}
}

// ExportFinding is the serialized form of a non-ok finding.
type ExportFinding struct {
	Severity string `json:"severity"`
	Phase    string `json:"phase"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Detail   string `json:"detail"`
	Fix      string `json:"fix"`
}

// ExportDimension is the serialized form of a score dimension.
type ExportDimension struct {
	Name  string   `json:"name"`
	Score int      `json:"score"`
	Max   int      `json:"max"`
	Notes []string `json:"notes"`
}

// Export is the machine-readable report document.
type Export struct {
	Source     string            `json:"source"`
	Profile    string            `json:"profile"`
	Mode       string            `json:"mode"`
	Score      int               `json:"score"`
	ScoreRaw   string            `json:"score_raw"`
	Findings   []ExportFinding   `json:"findings"`
	Dimensions []ExportDimension `json:"dimensions"`
}

// Export builds the machine-readable document. OK findings and the
// Metadata scratch map are excluded.
func (r *QualityReport) Export() Export {
	findings := []ExportFinding{}
	for _, f := range r.Findings {
		if f.Severity == SeverityOK {
			continue
		}
		findings = append(findings, ExportFinding{
			Severity: string(f.Severity),
			Phase:    f.Phase,
			Code:     f.Code,
			Message:  f.Message,
			Detail:   f.Detail,
			Fix:      f.Fix,
		})
	}
	dims := []ExportDimension{}
	for _, d := range r.Dimensions {
		notes := d.Notes
		if notes == nil {
			notes = []string{}
		}
		dims = append(dims, ExportDimension{
			Name:  d.Name,
			Score: d.Score,
			Max:   d.MaxScore,
			Notes: notes,
		})
	}
	return Export{
		Source:     r.Source,
		Profile:    r.Profile,
		Mode:       r.Mode,
		Score:      r.ScorePct(),
		ScoreRaw:   fmt.Sprintf("%d/%d", r.TotalScore(), r.MaxScore()),
		Findings:   findings,
		Dimensions: dims,
	}
}

// ExportJSON renders the export document as indented JSON.
func (r *QualityReport) ExportJSON() ([]byte, error) {
	b, err := json.MarshalIndent(r.Export(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}
	return b, nil
}

// ReportFromExport reconstructs a report from its export document, for
// re-rendering stored runs. OK findings are not exported and stay gone;
// scores and verdict survive the round trip.
func ReportFromExport(e Export) *QualityReport {
	r := &QualityReport{
		Source:   e.Source,
		Profile:  e.Profile,
		Mode:     e.Mode,
		Metadata: map[string]any{},
	}
	for _, f := range e.Findings {
		r.Add(Finding{
			Severity: Severity(f.Severity),
			Phase:    f.Phase,
			Code:     f.Code,
			Message:  f.Message,
			Detail:   f.Detail,
			Fix:      f.Fix,
		})
	}
	for _, d := range e.Dimensions {
		r.AddDimension(ScoreDimension{Name: d.Name, MaxScore: d.Max, Score: d.Score, Notes: d.Notes})
	}
	return r
}
