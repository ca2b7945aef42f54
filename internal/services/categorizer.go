package services

import (
	"context"
	"sort"
	"strings"

	"mailsort-be/internal/models"
	"mailsort-be/internal/utils"
)

// Categorizer assigns a message to at most one flag with a confidence in
// [0,1]. It never returns an error: any internal failure, including an
// unavailable keyword enhancer, degrades to ("", 0).
type Categorizer struct {
	enhancer KeywordEnhancer
}

func NewCategorizer(enhancer KeywordEnhancer) *Categorizer {
	return &Categorizer{enhancer: enhancer}
}

// IsJunkCategory reports whether a winning flag should be routed to the
// synthetic marketing label instead of its own.
func IsJunkCategory(flagName string) bool {
	return normalizeFlagName(flagName) == "junk"
}

// Categorize scores every active flag against the message and returns the
// best one, or ("", 0) when no flag reaches the confidence threshold.
// Flags are scored in name-ascending order and the first maximum wins, so
// results are deterministic regardless of store ordering.
func (c *Categorizer) Categorize(ctx context.Context, msg models.Message, activeFlags []models.Flag) (flagName string, confidence float64) {
	defer func() {
		if r := recover(); r != nil {
			flagName = ""
			confidence = 0.0
		}
	}()

	if len(activeFlags) == 0 {
		return "", 0.0
	}

	subject := utils.NormalizeText(msg.Subject)
	sender := utils.NormalizeText(msg.From)
	body := utils.NormalizeText(msg.Body)
	if body == "" {
		body = utils.NormalizeText(msg.Snippet)
	}

	domain := ""
	if at := strings.LastIndex(sender, "@"); at >= 0 {
		domain = sender[at+1:]
	}

	flags := make([]models.Flag, len(activeFlags))
	copy(flags, activeFlags)
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })

	bestName := ""
	bestScore := 0.0
	for _, flag := range flags {
		score := c.scoreFlag(ctx, flag, subject, body, sender, domain)
		if score > bestScore {
			bestName = flag.Name
			bestScore = score
		}
	}

	if bestScore < confidenceThreshold {
		return "", 0.0
	}
	return bestName, bestScore
}

// Scores returns the per-flag score breakdown for one message. Used by the
// suggestion endpoints; the sort run only needs the winner.
func (c *Categorizer) Scores(ctx context.Context, msg models.Message, activeFlags []models.Flag) []models.CategoryScore {
	subject := utils.NormalizeText(msg.Subject)
	sender := utils.NormalizeText(msg.From)
	body := utils.NormalizeText(msg.Body)
	if body == "" {
		body = utils.NormalizeText(msg.Snippet)
	}

	domain := ""
	if at := strings.LastIndex(sender, "@"); at >= 0 {
		domain = sender[at+1:]
	}

	scores := make([]models.CategoryScore, 0, len(activeFlags))
	for _, flag := range activeFlags {
		scores = append(scores, models.CategoryScore{
			FlagName: flag.Name,
			Score:    c.scoreFlag(ctx, flag, subject, body, sender, domain),
		})
	}
	return scores
}

func (c *Categorizer) scoreFlag(ctx context.Context, flag models.Flag, subject, body, sender, domain string) float64 {
	strategy := strategyFor(flag)
	category := normalizeFlagName(flag.Name)

	score := 0.0
	switch strategy.kind {
	case strategyCustom:
		score = c.scoreCustom(ctx, strategy.description, subject, body)
		if category == "urgent" {
			score += urgencyScore(subject, body) * 0.2
		}

	case strategyPredefined:
		score = scorePredefined(category, subject, body, sender, domain)
		score += patternScore(subject, body, sender, category) * 0.3
		if category == "urgent" {
			score += urgencyScore(subject, body) * 0.3
		}
	}

	return capScore(score)
}

// scoreCustom matches the user's own description (plus AI-enhanced keywords
// when available) against subject and body. Enhanced keywords raise the
// facet weights from 0.5/0.3 to 0.6/0.4.
func (c *Categorizer) scoreCustom(ctx context.Context, description, subject, body string) float64 {
	var enhanced []string
	if c.enhancer != nil && c.enhancer.Available() {
		enhanced = c.enhancer.EnhanceKeywords(ctx, description, subject, body)
	}

	keywords := make([]string, 0, len(enhanced)+8)
	keywords = append(keywords, enhanced...)
	for _, word := range strings.Fields(description) {
		word = strings.TrimSpace(word)
		if len(word) < 2 || stopWords[word] {
			continue
		}
		keywords = append(keywords, word)
	}

	if len(keywords) == 0 {
		return 0.0
	}

	subjectWeight, bodyWeight := 0.5, 0.3
	if len(enhanced) > 0 {
		subjectWeight, bodyWeight = 0.6, 0.4
	}

	score := 0.0
	if n := countFuzzyMatches(keywords, subject); n > 0 {
		ratio := float64(n) / float64(len(keywords))
		score += minFloat(ratio*subjectWeight, subjectWeight)
	}
	if n := countFuzzyMatches(keywords, body); n > 0 {
		ratio := float64(n) / float64(len(keywords))
		score += minFloat(ratio*bodyWeight, bodyWeight)
	}

	return score
}

// scorePredefined applies the static per-category keyword table: subject,
// body, sender, and sender-domain facets with fixed per-match weights and
// caps.
func scorePredefined(category, subject, body, sender, domain string) float64 {
	keywords, ok := categoryKeywords[category]
	if !ok {
		return 0.0
	}

	score := 0.0
	if n := countSubstrings(keywords.Subject, subject); n > 0 {
		score += minFloat(float64(n)*0.2, 0.5)
	}
	if n := countSubstrings(keywords.Body, body); n > 0 {
		score += minFloat(float64(n)*0.15, 0.4)
	}
	if n := countSubstrings(keywords.Sender, sender); n > 0 {
		score += minFloat(float64(n)*0.1, 0.2)
	}
	if domains, ok := domainKeywords[category]; ok {
		if n := countSubstrings(domains, domain); n > 0 {
			score += minFloat(float64(n)*0.05, 0.1)
		}
	}

	return score
}

// countFuzzyMatches counts keywords found in text verbatim, as the singular
// form (trailing "s" dropped), or as the pluralized form ("s" appended).
func countFuzzyMatches(keywords []string, text string) int {
	matches := 0
	for _, keyword := range keywords {
		keyword = strings.ToLower(keyword)
		switch {
		case strings.Contains(text, keyword):
			matches++
		case strings.HasSuffix(keyword, "s") && len(keyword) > 1 && strings.Contains(text, keyword[:len(keyword)-1]):
			matches++
		case !strings.HasSuffix(keyword, "s") && strings.Contains(text, keyword+"s"):
			matches++
		}
	}
	return matches
}

func countSubstrings(keywords []string, text string) int {
	matches := 0
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			matches++
		}
	}
	return matches
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
