package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules holds the curated lists and thresholds the engine evaluates.
// Every list is matched case-insensitively.
type Rules struct {
	TrustedDomains     []string `yaml:"trusted_domains"`
	HighRiskPatterns   []string `yaml:"high_risk_patterns"`
	HighRiskTLDs       []string `yaml:"high_risk_tlds"`
	Brands             []string `yaml:"brands"`
	RiskyExtensions    []string `yaml:"risky_extensions"`
	MediumRiskPatterns []string `yaml:"medium_risk_patterns"`
	ShortenerHosts     []string `yaml:"shortener_hosts"`
	FileSharingHosts   []string `yaml:"file_sharing_hosts"`

	MinHostHyphens   int `yaml:"min_host_hyphens"`
	MinHostDigits    int `yaml:"min_host_digits"`
	MaxURLLength     int `yaml:"max_url_length"`
	MaxEncodedOctets int `yaml:"max_encoded_octets"`
	MaxHostDots      int `yaml:"max_host_dots"`
}

// DefaultRules returns a fresh copy of the built-in rule set.
func DefaultRules() *Rules {
	return &Rules{
		TrustedDomains:     clone(defaultTrustedDomains),
		HighRiskPatterns:   clone(defaultHighRiskPatterns),
		HighRiskTLDs:       clone(defaultHighRiskTLDs),
		Brands:             clone(defaultBrands),
		RiskyExtensions:    clone(defaultRiskyExtensions),
		MediumRiskPatterns: clone(defaultMediumRiskPatterns),
		ShortenerHosts:     clone(defaultShortenerHosts),
		FileSharingHosts:   clone(defaultFileSharingHosts),
		MinHostHyphens:     3,
		MinHostDigits:      4,
		MaxURLLength:       200,
		MaxEncodedOctets:   10,
		MaxHostDots:        4,
	}
}

// LoadRules reads a YAML rule file and merges it over the defaults.
// A list present in the file replaces the default list; zero thresholds keep
// the default.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules merges YAML rule data over the defaults.
func ParseRules(data []byte) (*Rules, error) {
	var override Rules
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	r := DefaultRules()
	mergeList(&r.TrustedDomains, override.TrustedDomains)
	mergeList(&r.HighRiskPatterns, override.HighRiskPatterns)
	mergeList(&r.HighRiskTLDs, override.HighRiskTLDs)
	mergeList(&r.Brands, override.Brands)
	mergeList(&r.RiskyExtensions, override.RiskyExtensions)
	mergeList(&r.MediumRiskPatterns, override.MediumRiskPatterns)
	mergeList(&r.ShortenerHosts, override.ShortenerHosts)
	mergeList(&r.FileSharingHosts, override.FileSharingHosts)
	mergeInt(&r.MinHostHyphens, override.MinHostHyphens)
	mergeInt(&r.MinHostDigits, override.MinHostDigits)
	mergeInt(&r.MaxURLLength, override.MaxURLLength)
	mergeInt(&r.MaxEncodedOctets, override.MaxEncodedOctets)
	mergeInt(&r.MaxHostDots, override.MaxHostDots)
	return r, nil
}

func (r *Rules) normalize() *Rules {
	n := *r
	n.TrustedDomains = lowerAll(r.TrustedDomains)
	n.HighRiskPatterns = lowerAll(r.HighRiskPatterns)
	n.HighRiskTLDs = lowerAll(r.HighRiskTLDs)
	n.Brands = lowerAll(r.Brands)
	n.RiskyExtensions = lowerAll(r.RiskyExtensions)
	n.MediumRiskPatterns = lowerAll(r.MediumRiskPatterns)
	n.ShortenerHosts = lowerAll(r.ShortenerHosts)
	n.FileSharingHosts = lowerAll(r.FileSharingHosts)
	return &n
}

func mergeList(dst *[]string, src []string) {
	if src != nil {
		*dst = clone(src)
	}
}

func mergeInt(dst *int, src int) {
	if src > 0 {
		*dst = src
	}
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}

func lowerAll(s []string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
