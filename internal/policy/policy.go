// Package policy holds the compliance rules applied to every answer: the
// recommendation disclaimer and the decline rule for numeric market predictions.
package policy

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDisclaimer = "This information is based on research reports and should not be considered " +
		"personalized investment advice. Consult with a licensed financial advisor before making investment decisions."
	DefaultDeclineMessage = "I can't predict specific future prices or index levels. " +
		"I can summarize what the research reports say about the outlook, targets and risks instead."
	DefaultFallbackMessage    = "No relevant information found in the available reports."
	DefaultDisclaimerReminder = "Your previous answer contained investment recommendations without the required disclaimer. " +
		"Rewrite it and include this disclaimer verbatim: "
)

var defaultRecommendationTerms = []string{
	"recommend", "recommends", "recommended", "recommendation", "recommendations",
	"overweight", "underweight",
	"buy", "sell", "hold",
	"should invest", "consider investing", "we prefer", "prefer",
	"allocate", "allocation", "asset allocation",
}

var defaultPredictionHorizon = []string{
	`\btomorrow\b`,
	`\bnext (day|week|month|quarter|year)\b`,
	`\bby (the )?end of (the )?(day|week|month|quarter|year)\b`,
	`\bon (monday|tuesday|wednesday|thursday|friday)\b`,
	`\bin \d+ (days?|weeks?|months?)\b`,
	`\bpredict(ion)?\b`,
}

var defaultPredictionQuantity = []string{
	`\b(price|prices|close|closing|level|worth)\b`,
	`\btrade (at|above|below)\b`,
	`\bexact(ly)?\b`,
	`\bhow (much|high|low)\b`,
	`%|\bpercent\b`,
}

// File is the YAML layout of a policy file. Empty fields keep their defaults.
type File struct {
	Disclaimer          string   `yaml:"disclaimer"`
	DeclineMessage      string   `yaml:"decline_message"`
	FallbackMessage     string   `yaml:"fallback_message"`
	DisclaimerReminder  string   `yaml:"disclaimer_reminder"`
	RecommendationTerms []string `yaml:"recommendation_terms"`
	Prediction          struct {
		Horizon  []string `yaml:"horizon"`
		Quantity []string `yaml:"quantity"`
	} `yaml:"prediction"`
}

// Policy is a compiled, read-only rule set safe for concurrent use.
type Policy struct {
	Disclaimer         string
	DeclineMessage     string
	FallbackMessage    string
	DisclaimerReminder string

	terms    [][]string
	horizon  []*regexp.Regexp
	quantity []*regexp.Regexp
}

// Default returns the built-in policy.
func Default() *Policy {
	p, err := compile(File{})
	if err != nil {
		panic(err)
	}
	return p
}

// Load reads a YAML policy file. An empty path or a missing file yields Default().
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	return compile(f)
}

func compile(f File) (*Policy, error) {
	p := &Policy{
		Disclaimer:         orDefault(f.Disclaimer, DefaultDisclaimer),
		DeclineMessage:     orDefault(f.DeclineMessage, DefaultDeclineMessage),
		FallbackMessage:    orDefault(f.FallbackMessage, DefaultFallbackMessage),
		DisclaimerReminder: orDefault(f.DisclaimerReminder, DefaultDisclaimerReminder),
	}

	terms := f.RecommendationTerms
	if len(terms) == 0 {
		terms = defaultRecommendationTerms
	}
	for _, term := range terms {
		if toks := tokenize(term); len(toks) > 0 {
			p.terms = append(p.terms, toks)
		}
	}

	var err error
	if p.horizon, err = compilePatterns(f.Prediction.Horizon, defaultPredictionHorizon); err != nil {
		return nil, err
	}
	if p.quantity, err = compilePatterns(f.Prediction.Quantity, defaultPredictionQuantity); err != nil {
		return nil, err
	}
	return p, nil
}

func compilePatterns(patterns, defaults []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		patterns = defaults
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pat := range patterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			return nil, fmt.Errorf("invalid prediction pattern %q: %w", pat, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// IsForwardLookingPrediction reports whether the question asks for a specific
// future number, such as an index level next week. Both a time horizon and a
// quantity must be present.
func (p *Policy) IsForwardLookingPrediction(question string) bool {
	return anyMatch(p.horizon, question) && anyMatch(p.quantity, question)
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// ContainsRecommendation reports whether answer uses recommendation language.
// Terms match whole words, so "household" does not trigger "hold".
func (p *Policy) ContainsRecommendation(answer string) bool {
	tokens := tokenize(answer)
	for _, term := range p.terms {
		if containsSequence(tokens, term) {
			return true
		}
	}
	return false
}

// HasDisclaimer reports whether answer already carries the disclaimer, ignoring case and spacing.
func (p *Policy) HasDisclaimer(answer string) bool {
	return strings.Contains(normalize(answer), normalize(p.Disclaimer))
}

// NeedsDisclaimer reports whether answer recommends without the disclaimer.
func (p *Policy) NeedsDisclaimer(answer string) bool {
	return p.ContainsRecommendation(answer) && !p.HasDisclaimer(answer)
}

// EnsureDisclaimer prepends the disclaimer when answer needs it.
func (p *Policy) EnsureDisclaimer(answer string) string {
	if !p.NeedsDisclaimer(answer) {
		return answer
	}
	return p.Disclaimer + "\n\n" + answer
}
