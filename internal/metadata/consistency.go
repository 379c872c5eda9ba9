package metadata

import (
	"fmt"
	"strings"
	"time"

	"github.com/openquality/odq/internal/ckan"
	"github.com/openquality/odq/internal/models"
	"github.com/openquality/odq/internal/probe"
	"github.com/openquality/odq/internal/ruleset"
)

// ConsistencyChecker cross-checks metadata claims against the downloaded
// file. It only ever adds majors and minors; a lie in the metadata does
// not make the data itself unusable.
type ConsistencyChecker struct {
	rules  *ruleset.Rules
	report *models.QualityReport
}

// NewConsistencyChecker wraps a ruleset and a report to extend.
func NewConsistencyChecker(rules *ruleset.Rules, report *models.QualityReport) *ConsistencyChecker {
	if rules == nil {
		rules = ruleset.Default()
	}
	return &ConsistencyChecker{rules: rules, report: report}
}

// Run compares the dataset record with the file at filePath.
func (c *ConsistencyChecker) Run(ds *ckan.Dataset, filePath string) {
	c.checkEncoding(ds, filePath)
	c.checkFreshness(ds)
}

// checkEncoding compares declared and detected charsets. Names are
// normalized ("UTF-8", "utf8" and "Utf_8" all agree) and substring
// containment counts as a match so "ISO-8859-1" passes for "latin1"
// aliases the detector expands.
func (c *ConsistencyChecker) checkEncoding(ds *ckan.Dataset, filePath string) {
	r, p := c.report, models.PhaseConsistency

	declared := ds.Extra("encoding")
	if declared == "" || filePath == "" {
		return
	}
	actual, _ := probe.DetectEncoding(filePath)
	if actual == "unknown" {
		return
	}

	normDeclared, normActual := normalizeEncoding(declared), normalizeEncoding(actual)
	if strings.Contains(normActual, normDeclared) || strings.Contains(normDeclared, normActual) {
		r.OK(p, "encoding_consistent", fmt.Sprintf("Declared encoding matches the file (%s)", actual))
		return
	}
	r.Major(p, "encoding_mismatch",
		fmt.Sprintf("Declared encoding %q but the file reads as %q", declared, actual), "",
		"Fix the encoding metadata or re-encode the file")
}

// checkFreshness holds the declared update frequency against the days
// since last modification.
func (c *ConsistencyChecker) checkFreshness(ds *ckan.Dataset) {
	r, p := c.report, models.PhaseConsistency

	freq := ds.Extra("frequency")
	if freq == "" {
		freq = ds.Extra("accrualPeriodicity")
	}
	modified := dateField(ds, "modified")
	if freq == "" || modified == "" {
		return
	}
	mod, ok := parseISODate(modified)
	if !ok {
		return
	}

	days := int(time.Since(mod).Hours() / 24)
	if limit, known := c.rules.StalenessDays(freq); known && days > limit {
		r.Minor(p, "stale_data",
			fmt.Sprintf("Declared %s updates, but last modified %d days ago", freq, days), "",
			"Update the dataset or correct the declared frequency")
		return
	}
	r.OK(p, "freshness_ok", fmt.Sprintf("Freshness OK: %s, modified %d days ago", freq, days))
}

func normalizeEncoding(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
}

// parseISODate reads the date part of an ISO 8601 value.
func parseISODate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !isoDateRe.MatchString(s) {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
