package metadata

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/openquality/odq/internal/ckan"
	"github.com/openquality/odq/internal/models"
)

// accessibilityBudget is the Accessibility dimension ceiling.
const accessibilityBudget = 20

// AccessibilityChecker probes distribution URLs. An unreachable file is
// the one metadata problem that makes a dataset unusable outright, so a
// non-200 answer is a blocker.
type AccessibilityChecker struct {
	client *ckan.Client
	report *models.QualityReport
}

// NewAccessibilityChecker wraps a portal client and a report to extend.
func NewAccessibilityChecker(client *ckan.Client, report *models.QualityReport) *AccessibilityChecker {
	return &AccessibilityChecker{client: client, report: report}
}

// Run probes every resource URL and appends the Accessibility dimension.
func (c *AccessibilityChecker) Run(ctx context.Context, ds *ckan.Dataset) {
	r, p := c.report, models.PhaseMetadata

	if len(ds.Resources) == 0 {
		r.Major(p, "no_resources", "Dataset has no distributions (dcat:distribution)", "",
			"Attach at least one downloadable resource")
		r.AddDimension(models.ScoreDimension{Name: models.DimAccessibility, MaxScore: accessibilityBudget})
		return
	}

	score := accessibilityBudget
	accessible, checked := 0, 0
	for _, res := range ds.Resources {
		if res.URL == "" {
			continue
		}
		checked++
		prefix := resourcePrefix("access", res.ID)
		name := resourceName(res)

		status, err := c.client.HeadOrGet(ctx, res.URL)
		switch {
		case err != nil && isTimeout(err):
			r.Major(p, prefix+"_timeout", fmt.Sprintf("Resource %q timed out", name),
				res.URL, "Serve the file from infrastructure that answers within seconds")
			score -= 5
		case err != nil:
			r.Major(p, prefix+"_error", fmt.Sprintf("Resource %q unreachable: %v", name, err),
				res.URL, "Fix the URL or the hosting")
			score -= 3
		case status == http.StatusOK:
			r.OK(p, prefix+"_accessible", fmt.Sprintf("Resource %q is reachable", name))
			accessible++
		default:
			r.Blocker(p, prefix+"_not_accessible",
				fmt.Sprintf("Resource %q returns HTTP %d", name, status),
				res.URL, fmt.Sprintf("Fix the URL or restore the file. HTTP %d.", status))
			score -= 5
		}
	}

	r.OK(p, "accessibility_summary",
		fmt.Sprintf("Accessibility: %d/%d resources reachable", accessible, checked))

	// A dataset whose files all fail earns nothing here no matter how
	// few resources it has.
	if accessible == 0 && checked > 0 {
		score = 0
	}
	if score < 0 {
		score = 0
	}
	r.AddDimension(models.ScoreDimension{
		Name:     models.DimAccessibility,
		MaxScore: accessibilityBudget,
		Score:    score,
	})
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
