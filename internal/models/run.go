package models

import "time"

// Run is a stored validation run. ReportJSON holds the full export
// document so past reports can be re-rendered.
type Run struct {
	ID         string
	Source     string
	Mode       string
	Profile    string
	Score      int // percentage 0-100
	Blockers   int
	Majors     int
	Minors     int
	Verdict    int
	ReportJSON string
	CreatedAt  time.Time
}

// NewRunFromReport flattens a report into a run row. The full export
// document rides along as JSON for later re-rendering.
func NewRunFromReport(r *QualityReport) (*Run, error) {
	data, err := r.ExportJSON()
	if err != nil {
		return nil, err
	}
	return &Run{
		Source:     r.Source,
		Mode:       r.Mode,
		Profile:    r.Profile,
		Score:      r.ScorePct(),
		Blockers:   len(r.Blockers()),
		Majors:     len(r.Majors()),
		Minors:     len(r.Minors()),
		Verdict:    int(r.Verdict()),
		ReportJSON: string(data),
	}, nil
}
