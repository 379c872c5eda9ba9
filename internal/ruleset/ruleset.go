// Package ruleset holds the heuristic vocabularies the validators match
// against: placeholder sentinels, multilingual keyword patterns, code-column
// hints, portal profile tables, staleness thresholds. They are loaded as
// read-only data so tests can substitute vocabularies without touching
// process-wide state.
package ruleset

import (
	_ "embed"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultYAML []byte

// ProfileField is one profile-specific metadata field requirement layered
// on top of the DCAT-AP baseline.
type ProfileField struct {
	Key       string `yaml:"key"`
	Label     string `yaml:"label"`
	Mandatory bool   `yaml:"mandatory"`
}

// PortalRule maps a portal URL pattern to a metadata profile id. Rules are
// evaluated in order; the first match wins.
type PortalRule struct {
	Pattern string `yaml:"pattern"`
	Profile string `yaml:"profile"`

	re *regexp.Regexp
}

// StalenessRule pairs a declared update frequency with the maximum
// acceptable days since last modification.
type StalenessRule struct {
	Frequency string `yaml:"frequency"`
	Days      int    `yaml:"days"`
}

type rulesYAML struct {
	PlaceholderValues   []string                  `yaml:"placeholder_values"`
	AggregateKeywords   []string                  `yaml:"aggregate_keywords"`
	MonthPrefixes       []string                  `yaml:"month_prefixes"`
	UnitSuffixes        []string                  `yaml:"unit_suffixes"`
	CodeColumnHints     []string                  `yaml:"code_column_hints"`
	UnstableURLPatterns []string                  `yaml:"unstable_url_patterns"`
	Staleness           []StalenessRule           `yaml:"staleness"`
	Portals             []PortalRule              `yaml:"portals"`
	ProfileFields       map[string][]ProfileField `yaml:"profile_fields"`
}

// Rules is an immutable, compiled heuristic vocabulary.
type Rules struct {
	// Aggregate matches total/average keywords in a line of text.
	Aggregate *regexp.Regexp
	// MonthPrefix matches column names starting with a month name.
	MonthPrefix *regexp.Regexp
	// UnitValue matches a cell holding a number with an embedded unit.
	UnitValue *regexp.Regexp
	// CodeColumn matches column names likely to hold administrative codes.
	CodeColumn *regexp.Regexp
	// UnstableURL matches shortener/consumer-cloud hosting URLs.
	UnstableURL *regexp.Regexp

	placeholders  map[string]struct{}
	staleness     []StalenessRule
	portals       []PortalRule
	profileFields map[string][]ProfileField
}

var (
	defaultOnce  sync.Once
	defaultRules *Rules
)

// Default returns the shared ruleset compiled from the embedded tables.
func Default() *Rules {
	defaultOnce.Do(func() {
		r, err := parse(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("ruleset: embedded rules.yaml invalid: %v", err))
		}
		defaultRules = r
	})
	return defaultRules
}

// Load compiles a custom ruleset, typically for tests or per-portal
// overrides.
func Load(r io.Reader) (*Rules, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading ruleset: %w", err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Rules, error) {
	var doc rulesYAML
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing ruleset: %w", err)
	}

	rules := &Rules{
		placeholders:  make(map[string]struct{}, len(doc.PlaceholderValues)),
		staleness:     doc.Staleness,
		profileFields: doc.ProfileFields,
	}
	for _, v := range doc.PlaceholderValues {
		rules.placeholders[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}

	var err error
	if rules.Aggregate, err = alternation(`(?i)\b(`, doc.AggregateKeywords, `)\b`); err != nil {
		return nil, fmt.Errorf("aggregate_keywords: %w", err)
	}
	if rules.MonthPrefix, err = alternation(`(?i)^(`, doc.MonthPrefixes, `)`); err != nil {
		return nil, fmt.Errorf("month_prefixes: %w", err)
	}
	if rules.UnitValue, err = alternation(`(?i)^\d+[.,]?\d*\s*(`, doc.UnitSuffixes, `)\s*$`); err != nil {
		return nil, fmt.Errorf("unit_suffixes: %w", err)
	}
	if rules.CodeColumn, err = alternation(`(?i)(`, doc.CodeColumnHints, `)`); err != nil {
		return nil, fmt.Errorf("code_column_hints: %w", err)
	}
	if rules.UnstableURL, err = alternation(`(?i)(`, doc.UnstableURLPatterns, `)`); err != nil {
		return nil, fmt.Errorf("unstable_url_patterns: %w", err)
	}

	for i := range doc.Portals {
		re, err := regexp.Compile(`(?i)` + doc.Portals[i].Pattern)
		if err != nil {
			return nil, fmt.Errorf("portal pattern %q: %w", doc.Portals[i].Pattern, err)
		}
		doc.Portals[i].re = re
	}
	rules.portals = doc.Portals

	return rules, nil
}

// alternation joins regex fragments into one compiled pattern.
func alternation(prefix string, fragments []string, suffix string) (*regexp.Regexp, error) {
	if len(fragments) == 0 {
		// Match nothing rather than everything.
		return regexp.Compile(`\A\z.`)
	}
	return regexp.Compile(prefix + strings.Join(fragments, "|") + suffix)
}

// IsPlaceholder reports whether v, normalized, belongs to the sentinel set.
func (r *Rules) IsPlaceholder(v string) bool {
	_, ok := r.placeholders[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// PlaceholderCount returns the size of the sentinel set.
func (r *Rules) PlaceholderCount() int { return len(r.placeholders) }

// StalenessDays returns the staleness threshold for a declared frequency.
// Lookup is exact after uppercasing, so URI-style frequency values do not
// match.
func (r *Rules) StalenessDays(frequency string) (int, bool) {
	up := strings.ToUpper(strings.TrimSpace(frequency))
	for _, s := range r.staleness {
		if s.Frequency == up {
			return s.Days, true
		}
	}
	return 0, false
}

// ProfileForPortal returns the profile id for a portal URL, if any rule
// matches.
func (r *Rules) ProfileForPortal(portalURL string) (string, bool) {
	for _, p := range r.portals {
		if p.re.MatchString(portalURL) {
			return p.Profile, true
		}
	}
	return "", false
}

// ProfileFields returns the extra field requirements for a profile id.
func (r *Rules) ProfileFields(profile string) []ProfileField {
	return r.profileFields[profile]
}
