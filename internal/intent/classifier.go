package intent

import (
	"regexp"
	"sort"
	"strings"
)

// Intent is the classified purpose of an inbound customer message.
type Intent string

const (
	Greeting  Intent = "greeting"
	Booking   Intent = "booking"
	Status    Intent = "status"
	Complaint Intent = "complaint"
	FAQ       Intent = "faq"
	Unknown   Intent = "unknown"
)

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case Greeting, Booking, Status, Complaint, FAQ, Unknown:
		return true
	}
	return false
}

// Rule matches an intent when any of its patterns matches.
type Rule struct {
	Intent   Intent
	Priority int
	Patterns []*regexp.Regexp
}

func (r Rule) matches(text string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// DefaultRules is the keyword cascade used in production.
func DefaultRules() []Rule {
	return []Rule{
		{
			Intent:   Greeting,
			Priority: 10,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`^(hi|hello|hey|good morning|good afternoon|good evening)\b`),
			},
		},
		{
			Intent:   Booking,
			Priority: 9,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(book|schedule|appointment|reserve|slot|available|availability)\b`),
				regexp.MustCompile(`\b(tomorrow|today|next week|this weekend)\b.*\b(time|slot|appointment)\b`),
			},
		},
		{
			Intent:   Status,
			Priority: 8,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(where|status|arrived|on the way|coming|reached|done|finished)\b`),
				regexp.MustCompile(`\b(track|tracking)\b`),
			},
		},
		{
			Intent:   Complaint,
			Priority: 7,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(issue|problem|wrong|broken|cancel|refund|not working|bad|terrible)\b`),
				regexp.MustCompile(`\b(complaint|complain|disappointed|unhappy)\b`),
			},
		},
		{
			Intent:   FAQ,
			Priority: 5,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(how much|price|cost|rate|pricing|charge|fee)\b`),
				regexp.MustCompile(`\b(what|how|when|where|which|why)\b`),
				regexp.MustCompile(`\b(service|offer|provide|available|coverage|area)\b`),
			},
		},
	}
}

// Classifier maps message text to an intent without calling any model.
// It is safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier over rules, evaluated highest priority
// first. Rules with equal priority keep their given order. With no rules the
// default cascade is used.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return &Classifier{rules: sorted}
}

// Classify returns the intent of the first matching rule, or Unknown.
func (c *Classifier) Classify(text string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Unknown
	}
	for _, rule := range c.rules {
		if rule.matches(normalized) {
			return rule.Intent
		}
	}
	return Unknown
}
