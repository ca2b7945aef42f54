package services

import (
	"regexp"
	"strings"

	"mailsort-be/internal/models"
)

// confidenceThreshold is the minimum winning score for a message to be
// assigned to a flag at all.
const confidenceThreshold = 0.15

// MarketingLabelName is the synthetic label that junk/marketing winners are
// routed to instead of the flag's own label.
const MarketingLabelName = "Marketing Mails"

// MarketingLabelColor is the color stored with the synthetic label mapping.
const MarketingLabelColor = "#ff6b35"

// defaultDescriptions are the placeholder descriptions shipped with the
// built-in flags. A flag whose description (trimmed, lowercased) is one of
// these — or empty — is scored on the predefined keyword tables; anything
// else is treated as a custom description.
var defaultDescriptions = map[string]bool{
	"high priority emails":             true,
	"important business emails":        true,
	"emails requiring follow-up":       true,
	"marketing and promotional emails": true,
	"business and work-related emails": true,
	"emails to archive":                true,
}

// strategyKind selects which of the two scoring paths runs for a flag.
type strategyKind int

const (
	strategyPredefined strategyKind = iota
	strategyCustom
)

// scoringStrategy is the tagged variant for one flag: either a predefined
// category (keyword tables + patterns) or a custom free-text description.
type scoringStrategy struct {
	kind        strategyKind
	category    string // normalized flag name, predefined path
	description string // trimmed lowercase description, custom path
}

func strategyFor(flag models.Flag) scoringStrategy {
	description := strings.ToLower(strings.TrimSpace(flag.Description))
	if description != "" && !defaultDescriptions[description] {
		return scoringStrategy{kind: strategyCustom, description: description}
	}
	return scoringStrategy{kind: strategyPredefined, category: normalizeFlagName(flag.Name)}
}

// normalizeFlagName maps a display name onto a keyword-table key.
func normalizeFlagName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")
	return strings.ReplaceAll(name, "_", "-")
}

// stopWords are dropped from custom descriptions before keyword matching.
var stopWords = map[string]bool{
	"or": true, "and": true, "the": true, "a": true, "an": true,
	"to": true, "for": true, "of": true, "in": true, "on": true,
	"at": true, "with": true, "by": true,
}

// keywordSet is one predefined category's keyword table, one facet per
// message field.
type keywordSet struct {
	Subject []string
	Body    []string
	Sender  []string
}

var categoryKeywords = map[string]keywordSet{
	"urgent": {
		Subject: []string{"urgent", "asap", "immediate", "emergency", "critical", "deadline", "rush", "priority"},
		Body:    []string{"urgent", "asap", "immediately", "emergency", "critical", "deadline", "rush", "priority", "time-sensitive"},
		Sender:  []string{"boss", "manager", "ceo", "director", "admin", "support"},
	},
	"important": {
		Subject: []string{"important", "meeting", "conference", "presentation", "project", "report", "review", "approval"},
		Body:    []string{"important", "meeting", "conference", "presentation", "project", "report", "review", "approval", "decision"},
		Sender:  []string{"client", "customer", "partner", "vendor", "stakeholder"},
	},
	"business": {
		Subject: []string{"business", "meeting", "conference", "presentation", "project", "report", "review", "approval", "client", "work"},
		Body:    []string{"business", "meeting", "conference", "presentation", "project", "report", "review", "approval", "decision", "client", "work", "professional"},
		Sender:  []string{"client", "customer", "partner", "vendor", "stakeholder", "business", "company"},
	},
	"follow-up": {
		Subject: []string{"follow up", "follow-up", "reminder", "checking in", "status", "update", "progress"},
		Body:    []string{"follow up", "follow-up", "reminder", "checking in", "status", "update", "progress", "next steps"},
		Sender:  []string{"team", "colleague", "coordinator"},
	},
	"junk": {
		Subject: []string{"newsletter", "notification", "receipt", "confirmation", "invoice", "statement", "update"},
		Body:    []string{"newsletter", "notification", "receipt", "confirmation", "invoice", "statement", "unsubscribe"},
		Sender:  []string{"no-reply", "noreply", "automated", "system", "notification"},
	},
}

var domainKeywords = map[string][]string{
	"urgent":    {"emergency", "alert", "critical"},
	"important": {"business", "corporate", "company"},
	"business":  {"business", "corporate", "company", "work", "professional"},
	"follow-up": {"team", "project", "collaboration"},
	"junk":      {"newsletter", "marketing", "promo", "deals", "promotion", "sale", "discount", "offer", "coupon", "advertisement", "unsubscribe"},
}

// Pattern families per category, each matching pattern adds a fixed
// increment; totals are capped at 1.0 before the 0.3 weighting.
var urgentPatterns = compileAll(
	`\b(urgent|asap|immediate|emergency)\b`,
	`\b(deadline|due|expires?)\b`,
	`\b(action required|time sensitive)\b`,
	`[!]{2,}`,
	`\b(final notice|last chance)\b`,
)

var importantPatterns = compileAll(
	`\b(meeting|conference|presentation)\b`,
	`\b(project|proposal|contract)\b`,
	`\b(approval|decision|review)\b`,
	`\b(client|customer|partner)\b`,
)

var followupPatterns = compileAll(
	`\b(follow.?up|reminder|checking in)\b`,
	`\b(status|update|progress)\b`,
	`\b(next steps|action items)\b`,
	`\bre:\s`,
	`\bfwd:\s`,
)

var junkPatterns = compileAll(
	`\b(newsletter|notification|receipt)\b`,
	`\b(confirmation|invoice|statement)\b`,
	`\b(unsubscribe|opt.?out|preferences)\b`,
	`\b(automated|system|no.?reply|noreply)\b`,
	`\b(marketing|promo|promotion|promotional)\b`,
	`\b(sale|discount|offer|deal|coupon)\b`,
	`\b(advertisement|ad|sponsor|featured)\b`,
	`\b(limited.?time|expires?|hurry)\b`,
	`\b(free.?shipping|%\s*off|save\s*\$)\b`,
	`\b(subscribe|mailing.?list|newsletter)\b`,
)

var marketingSenderPatterns = compileAll(
	`@.*marketing\.`,
	`@.*promo\.`,
	`@.*newsletter\.`,
	`@.*deals\.`,
	`@.*offers?\.`,
	`noreply@`,
	`no-reply@`,
	`donotreply@`,
)

// Urgency vocabularies and time expressions for the urgency sub-score.
var (
	highUrgencyTerms   = []string{"urgent", "asap", "immediate", "emergency", "critical"}
	mediumUrgencyTerms = []string{"important", "priority", "deadline", "time-sensitive"}

	timePatterns = compileAll(
		`\b(today|tonight|tomorrow)\b`,
		`\b(this week|next week)\b`,
		`\b(deadline|due date|expires?)\b`,
	)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(`(?i)` + p)
	}
	return compiled
}

// patternScore returns the category's pattern bonus in [0,1]. The junk
// family also inspects the sender and weighs marketing senders higher.
func patternScore(subject, body, sender, category string) float64 {
	score := 0.0
	text := subject + " " + body

	switch category {
	case "urgent":
		for _, re := range urgentPatterns {
			if re.MatchString(text) {
				score += 0.2
			}
		}
	case "important":
		for _, re := range importantPatterns {
			if re.MatchString(text) {
				score += 0.15
			}
		}
	case "follow-up":
		for _, re := range followupPatterns {
			if re.MatchString(text) {
				score += 0.2
			}
		}
	case "junk":
		withSender := text + " " + sender
		for _, re := range junkPatterns {
			if re.MatchString(withSender) {
				score += 0.3
			}
		}
		for _, re := range marketingSenderPatterns {
			if re.MatchString(sender) {
				score += 0.4
			}
		}
	}

	return capScore(score)
}

// urgencyScore measures urgency indicators across subject and body, in [0,1].
func urgencyScore(subject, body string) float64 {
	score := 0.0
	text := subject + " " + body

	for _, term := range highUrgencyTerms {
		if strings.Contains(text, term) {
			score += 0.3
		}
	}
	for _, term := range mediumUrgencyTerms {
		if strings.Contains(text, term) {
			score += 0.2
		}
	}

	if strings.Contains(text, "!!!") || strings.Contains(text, "???") {
		score += 0.2
	}

	for _, re := range timePatterns {
		if re.MatchString(text) {
			score += 0.15
		}
	}

	return capScore(score)
}

func capScore(score float64) float64 {
	if score > 1.0 {
		return 1.0
	}
	return score
}
