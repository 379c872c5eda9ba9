// Package metadata validates portal dataset records against the DCAT-AP
// baseline and national profile rules, probes distribution reachability,
// and cross-checks declared metadata against the validated file.
package metadata

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/openquality/odq/internal/ckan"
	"github.com/openquality/odq/internal/models"
	"github.com/openquality/odq/internal/ruleset"
)

// Portals emit both "2021-12-07" and "2021-12-07T15:20:47.883135"; both
// count as ISO 8601 here.
var (
	isoDateRe    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?)?$`)
	nonISODateRe = regexp.MustCompile(`^\d{1,2}[-/.]\d{1,2}[-/.]\d{4}$`)
	ipaIDRe      = regexp.MustCompile(`^[a-z]_[a-z0-9]+:`)
)

// metadataBudget is the Metadata completeness dimension ceiling.
const metadataBudget = 20

// Options configure a Validator.
type Options struct {
	// Rules overrides the default profile and vocabulary tables.
	Rules *ruleset.Rules
	// Report, when set, is extended instead of starting a fresh one.
	Report *models.QualityReport
}

// Validator checks one dataset record.
type Validator struct {
	ds     *ckan.Dataset
	portal string
	rules  *ruleset.Rules
	report *models.QualityReport

	penalty int
}

// NewValidator builds a validator for a fetched dataset. portalURL
// drives profile detection.
func NewValidator(ds *ckan.Dataset, portalURL string, opts Options) *Validator {
	if opts.Rules == nil {
		opts.Rules = ruleset.Default()
	}
	if opts.Report == nil {
		opts.Report = models.NewReport(portalURL + "/dataset/" + ds.Name)
	}
	return &Validator{
		ds:     ds,
		portal: portalURL,
		rules:  opts.Rules,
		report: opts.Report,
	}
}

// Run checks the record and appends the Metadata completeness dimension.
func (v *Validator) Run() *models.QualityReport {
	profile := DetectProfile(v.ds, v.portal, v.rules)
	v.report.Profile = profile
	v.ok("profile_detected", "DCAT-AP profile detected: "+profile)

	v.checkTitle()
	v.checkDescription()
	v.checkPublisher()
	v.checkLicense()
	v.checkTags()
	v.checkDate("issued")
	v.checkDate("modified")
	v.checkFrequency()
	v.checkCoverage()
	v.checkLanguage()
	v.checkIdentifier()
	v.checkProfileFields(profile)
	v.checkResources()

	score := metadataBudget - v.penalty
	if score < 0 {
		score = 0
	}
	v.report.AddDimension(models.ScoreDimension{
		Name:     models.DimMetadata,
		MaxScore: metadataBudget,
		Score:    score,
	})
	return v.report
}

// DetectProfile names the DCAT-AP profile governing a dataset. Portal
// URL rules win; otherwise Italian conventions (IPA-prefixed identifier,
// holder_name extras) are recognized before falling back to the generic
// European profile.
func DetectProfile(ds *ckan.Dataset, portalURL string, rules *ruleset.Rules) string {
	if p, ok := rules.ProfileForPortal(portalURL); ok {
		return p
	}
	if ipaIDRe.MatchString(ds.Extra("identifier")) {
		return "DCAT-AP_IT"
	}
	if ds.Extra("holder_name") != "" {
		return "DCAT-AP_IT"
	}
	return "DCAT-AP_2x"
}

func (v *Validator) checkTitle() {
	title := strings.TrimSpace(v.ds.Title)
	switch {
	case title == "":
		v.major("missing_title", "Dataset has no title (dct:title)", "",
			"Give the dataset a descriptive title", 4)
	case utf8.RuneCountInString(title) < 10:
		v.minor("short_title", fmt.Sprintf("Title is very short: %q", title), "",
			"Expand the title so the dataset is findable", 0)
	default:
		v.ok("title_ok", "Title: "+clip(title, 60))
	}
}

func (v *Validator) checkDescription() {
	notes := strings.TrimSpace(v.ds.Notes)
	switch {
	case notes == "":
		v.major("missing_description", "Dataset has no description (dct:description)", "",
			"Describe content, methodology and collection period", 4)
	case notes == strings.TrimSpace(v.ds.Title):
		v.major("description_equals_title", "Description merely repeats the title", "",
			"Write a real description: content, methodology, caveats", 3)
	default:
		v.ok("description_ok", fmt.Sprintf("Description present (%d chars)", utf8.RuneCountInString(notes)))
	}
}

func (v *Validator) checkPublisher() {
	if v.ds.Organization == nil || strings.TrimSpace(v.ds.Organization.Title) == "" {
		v.major("missing_publisher", "No publisher (dct:publisher)", "",
			"Attach the dataset to a publishing organization", 4)
		return
	}
	v.ok("publisher_ok", "Publisher: "+v.ds.Organization.Title)
}

func (v *Validator) checkLicense() {
	license := v.ds.LicenseID
	if license == "" {
		license = v.ds.LicenseTitle
	}
	if license == "" {
		v.major("missing_license", "No license (dct:license)", "",
			"Declare an open license, e.g. CC-BY 4.0", 4)
		return
	}
	v.ok("license_ok", "License: "+license)
}

func (v *Validator) checkTags() {
	if len(v.ds.Tags) < 3 {
		v.minor("few_tags", fmt.Sprintf("Only %d tag(s), at least 3 recommended", len(v.ds.Tags)), "",
			"Add descriptive keywords (dcat:keyword)", 1)
		return
	}
	names := make([]string, 0, 5)
	for _, tag := range v.ds.Tags[:min(5, len(v.ds.Tags))] {
		names = append(names, tag.Name)
	}
	v.ok("tags_ok", fmt.Sprintf("%d tags: %s", len(v.ds.Tags), strings.Join(names, ", ")))
}

// checkDate validates one of the issued/modified DCAT dates.
func (v *Validator) checkDate(key string) {
	value := dateField(v.ds, key)
	switch {
	case value == "":
		v.major("missing_"+key, fmt.Sprintf("No %s date (dct:%s)", key, key), "",
			"Publish the date so consumers can judge freshness", 2)
	case nonISODateRe.MatchString(value):
		v.major("non_iso_"+key, fmt.Sprintf("European date format in %s: %q", key, value), "",
			"Use ISO 8601 (YYYY-MM-DD)", 2)
	case !isoDateRe.MatchString(value):
		v.minor("invalid_"+key, fmt.Sprintf("Unrecognized %s date: %q", key, value), "",
			"Use ISO 8601 (YYYY-MM-DD)", 1)
	default:
		v.ok(key+"_ok", fmt.Sprintf("%s: %s", key, value))
	}
}

func (v *Validator) checkFrequency() {
	freq := v.ds.Extra("frequency")
	if freq == "" {
		freq = v.ds.Extra("accrualPeriodicity")
	}
	if freq == "" {
		v.minor("missing_frequency", "No update frequency declared (dct:accrualPeriodicity)", "",
			"Declare how often the dataset is refreshed", 0)
		return
	}
	v.ok("frequency_ok", "Update frequency: "+freq)
}

func (v *Validator) checkCoverage() {
	if v.ds.Extra("temporal_coverage") == "" {
		v.minor("missing_temporal_coverage", "No temporal coverage (dct:temporal)", "", "", 0)
	}
	if v.ds.Extra("geographical_geonames_url") == "" && v.ds.Extra("spatial") == "" {
		v.minor("missing_spatial", "No spatial coverage (dct:spatial)", "", "", 0)
	}
}

func (v *Validator) checkLanguage() {
	if v.ds.Extra("language") == "" {
		v.minor("missing_language", "No language declared (dct:language)", "", "", 0)
		return
	}
	v.ok("language_ok", "Language: "+v.ds.Extra("language"))
}

func (v *Validator) checkIdentifier() {
	if v.ds.Extra("identifier") == "" {
		v.minor("missing_identifier", "No identifier (dct:identifier)", "", "", 0)
		return
	}
	v.ok("identifier_ok", "Identifier: "+v.ds.Extra("identifier"))
}

// checkProfileFields applies national-profile requirements beyond the
// DCAT-AP baseline.
func (v *Validator) checkProfileFields(profile string) {
	for _, f := range v.rules.ProfileFields(profile) {
		if v.ds.Extra(f.Key) != "" {
			continue
		}
		if f.Mandatory {
			v.major("missing_"+f.Key,
				fmt.Sprintf("[%s] Mandatory field missing: %s", profile, f.Label), "",
				"Populate the field required by the national profile", 3)
		} else {
			v.minor("missing_"+f.Key,
				fmt.Sprintf("[%s] Recommended field missing: %s", profile, f.Label), "", "", 0)
		}
	}
}

func (v *Validator) checkResources() {
	for _, res := range v.ds.Resources {
		prefix := resourcePrefix("resource", res.ID)
		name := resourceName(res)

		if strings.TrimSpace(res.Format) == "" {
			v.major(prefix+"_missing_format", fmt.Sprintf("Resource %q has no format", name), "",
				"Set the format field (CSV, JSON, ...)", 1)
		}
		if strings.TrimSpace(res.Mimetype) == "" {
			v.minor(prefix+"_missing_mime", fmt.Sprintf("Resource %q has no mimetype", name), "", "", 0)
		}
		if strings.TrimSpace(res.License) == "" {
			v.major(prefix+"_missing_license", fmt.Sprintf("Resource %q has no license", name),
				"DCAT-AP requires licensing information at the distribution level",
				"Set the license on the resource, not only on the dataset", 2)
		}
		if res.Size == 0 {
			v.minor(prefix+"_size_zero", fmt.Sprintf("Resource %q declares no size", name), "", "", 0)
		}
		switch {
		case strings.TrimSpace(res.URL) == "":
			v.major(prefix+"_missing_url", fmt.Sprintf("Resource %q has no download URL", name), "",
				"Set dcat:accessURL on the distribution", 0)
		case v.rules.UnstableURL.MatchString(res.URL):
			v.major(prefix+"_unstable_url",
				fmt.Sprintf("Resource %q is hosted on an unstable service", name),
				res.URL, "Host the file on the portal or a stable institutional URL", 2)
		}
	}
}

func (v *Validator) ok(code, message string) {
	v.report.OK(models.PhaseMetadata, code, message)
}

func (v *Validator) major(code, message, detail, fix string, penalty int) {
	v.report.Major(models.PhaseMetadata, code, message, detail, fix)
	v.penalty += penalty
}

func (v *Validator) minor(code, message, detail, fix string, penalty int) {
	v.report.Minor(models.PhaseMetadata, code, message, detail, fix)
	v.penalty += penalty
}

// dateField resolves issued/modified across the places portals put them:
// the top-level field, extras, then the dcat_-prefixed alias some
// harvesters write.
func dateField(ds *ckan.Dataset, key string) string {
	var field string
	switch key {
	case "issued":
		field = ds.Issued
	case "modified":
		field = ds.Modified
	}
	if s := strings.TrimSpace(field); s != "" {
		return s
	}
	if s := ds.Extra(key); s != "" {
		return s
	}
	return ds.Extra("dcat_" + key)
}

// resourcePrefix builds the per-resource finding code prefix from the
// first 8 id characters.
func resourcePrefix(kind, id string) string {
	if id == "" {
		id = "unknown"
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return kind + "_" + id
}

func resourceName(res ckan.Resource) string {
	if res.Name != "" {
		return res.Name
	}
	if res.ID != "" {
		return res.ID
	}
	return "unnamed"
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
