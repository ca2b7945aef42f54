package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"mailsort-be/config"
	"mailsort-be/internal/models"
)

const (
	maxEnhancedKeywords = 15
	maxFlagSuggestions  = 3
	suggestionThreshold = 0.3
)

// KeywordEnhancer is the AI capability the scoring engine consumes. Both
// methods are safe to call when the backing service is unconfigured: they
// return empty results and never an error.
type KeywordEnhancer interface {
	EnhanceKeywords(ctx context.Context, prompt, subject, body string) []string
	SuggestFlags(ctx context.Context, content string, candidates []string) []models.FlagSuggestion
	Available() bool
}

// GeminiService implements KeywordEnhancer against the Gemini REST API.
type GeminiService struct {
	apiKey string
	model  string
	client *http.Client
}

func NewGeminiService(cfg *config.Config) *GeminiService {
	return &GeminiService{
		apiKey: cfg.GeminiAPIKey,
		model:  cfg.GeminiModel,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Available reports whether an API key is configured.
func (s *GeminiService) Available() bool {
	return s.apiKey != ""
}

// EnhanceKeywords asks Gemini for keywords matching the user's flag
// description, optionally grounded in the message being scored. Unconfigured
// or failing calls yield an empty list.
func (s *GeminiService) EnhanceKeywords(ctx context.Context, prompt, subject, body string) []string {
	if !s.Available() || strings.TrimSpace(prompt) == "" {
		return nil
	}

	if len(body) > 500 {
		body = body[:500]
	}

	instruction := fmt.Sprintf(`You are an email categorization expert. A user wants to flag emails about: %q

Email context (if provided):
Subject: %s
Body excerpt: %s

Generate 10-15 relevant keywords, phrases, and synonyms that would help identify emails matching the user's intent. Include direct keywords from the description, synonyms, and common phrases used in such emails.

Return only the keywords, one per line, without numbering or bullet points.`, prompt, subject, body)

	text, err := s.generate(ctx, instruction)
	if err != nil {
		return nil
	}

	var keywords []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 1 {
			keywords = append(keywords, strings.ToLower(line))
		}
		if len(keywords) == maxEnhancedKeywords {
			break
		}
	}

	return keywords
}

// SuggestFlags asks Gemini which of the candidate flag names fit the given
// message content. Results are filtered to known candidates with confidence
// above the threshold, best first, at most three.
func (s *GeminiService) SuggestFlags(ctx context.Context, content string, candidates []string) []models.FlagSuggestion {
	if !s.Available() || len(candidates) == 0 {
		return nil
	}

	if len(content) > 1000 {
		content = content[:1000]
	}

	instruction := fmt.Sprintf(`Analyze this email content and suggest which flags from the available list would be most appropriate:

Available flags: %s

Email content:
%s

For each relevant flag, answer one line formatted as FLAG_NAME|CONFIDENCE|REASON, for example: Urgent|0.8|Contains time-sensitive deadline language

Only suggest flags with confidence above %.1f. Maximum %d suggestions.`,
		strings.Join(candidates, ", "), content, suggestionThreshold, maxFlagSuggestions)

	text, err := s.generate(ctx, instruction)
	if err != nil {
		return nil
	}

	known := make(map[string]bool, len(candidates))
	for _, name := range candidates {
		known[name] = true
	}

	var suggestions []models.FlagSuggestion
	for _, line := range strings.Split(text, "\n") {
		parts := strings.SplitN(line, "|", 3)
		if len(parts) < 3 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		confidence, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || !known[name] || confidence <= suggestionThreshold {
			continue
		}
		suggestions = append(suggestions, models.FlagSuggestion{
			Flag:       name,
			Confidence: confidence,
			Reason:     strings.TrimSpace(parts[2]),
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	if len(suggestions) > maxFlagSuggestions {
		suggestions = suggestions[:maxFlagSuggestions]
	}

	return suggestions
}

// generate calls the generateContent endpoint and returns the first
// candidate's text.
func (s *GeminiService) generate(ctx context.Context, prompt string) (string, error) {
	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", s.model, s.apiKey)

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     0.2,
			"maxOutputTokens": 300,
		},
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content in gemini response")
	}

	return strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text), nil
}
