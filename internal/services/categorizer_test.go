package services

import (
	"context"
	"testing"

	"mailsort-be/internal/models"
)

type fakeEnhancer struct {
	keywords    []string
	suggestions []models.FlagSuggestion
}

func (f *fakeEnhancer) EnhanceKeywords(ctx context.Context, prompt, subject, body string) []string {
	return f.keywords
}

func (f *fakeEnhancer) SuggestFlags(ctx context.Context, content string, candidates []string) []models.FlagSuggestion {
	return f.suggestions
}

func (f *fakeEnhancer) Available() bool {
	return true
}

func predefinedFlag(name, description string) models.Flag {
	return models.Flag{Name: name, Description: description, IsActive: true}
}

func TestCategorizeUrgentMessage(t *testing.T) {
	c := NewCategorizer(nil)
	flags := []models.Flag{
		predefinedFlag("Urgent", "High priority emails"),
		predefinedFlag("Important", "Important business emails"),
	}
	msg := models.Message{
		ID:      "m1",
		Subject: "URGENT: server outage!!!",
		From:    "boss@example.com",
		Body:    "Critical issue, action required immediately. Deadline is today.",
	}

	name, confidence := c.Categorize(context.Background(), msg, flags)
	if name != "Urgent" {
		t.Fatalf("expected Urgent, got %q (confidence %v)", name, confidence)
	}
	if confidence < confidenceThreshold || confidence > 1.0 {
		t.Fatalf("confidence %v out of range [%v, 1.0]", confidence, confidenceThreshold)
	}
}

func TestCategorizeBelowThreshold(t *testing.T) {
	c := NewCategorizer(nil)
	flags := []models.Flag{predefinedFlag("Urgent", "High priority emails")}
	msg := models.Message{
		ID:      "m1",
		Subject: "Lunch on Saturday",
		From:    "friend@gmail.com",
		Body:    "See you at noon.",
	}

	name, confidence := c.Categorize(context.Background(), msg, flags)
	if name != "" || confidence != 0.0 {
		t.Fatalf("expected no assignment, got %q with %v", name, confidence)
	}
}

func TestCategorizeNoActiveFlags(t *testing.T) {
	c := NewCategorizer(nil)
	msg := models.Message{ID: "m1", Subject: "URGENT"}

	name, confidence := c.Categorize(context.Background(), msg, nil)
	if name != "" || confidence != 0.0 {
		t.Fatalf("expected no assignment, got %q with %v", name, confidence)
	}
}

func TestCategorizeCustomDescriptionFuzzyPlural(t *testing.T) {
	c := NewCategorizer(nil)
	// Custom description: keywords are stored plural, the message uses the
	// singular forms.
	flags := []models.Flag{predefinedFlag("Billing", "invoices payments receipts")}
	msg := models.Message{
		ID:      "m1",
		Subject: "Your invoice is attached",
		From:    "billing@vendor.com",
		Body:    "Payment received last week.",
	}

	name, confidence := c.Categorize(context.Background(), msg, flags)
	if name != "Billing" {
		t.Fatalf("expected Billing, got %q (confidence %v)", name, confidence)
	}
	if confidence < confidenceThreshold {
		t.Fatalf("confidence %v below threshold", confidence)
	}
}

func TestCategorizeTieBreakIsNameAscending(t *testing.T) {
	c := NewCategorizer(nil)
	// Identical custom descriptions give identical scores; the winner must
	// not depend on store ordering.
	flags := []models.Flag{
		predefinedFlag("Beta", "quarterly budget summary"),
		predefinedFlag("Alpha", "quarterly budget summary"),
	}
	msg := models.Message{
		ID:      "m1",
		Subject: "Quarterly budget summary attached",
		From:    "finance@example.com",
	}

	for i := 0; i < 2; i++ {
		name, _ := c.Categorize(context.Background(), msg, flags)
		if name != "Alpha" {
			t.Fatalf("expected Alpha to win the tie, got %q", name)
		}
		// Same flags in the opposite order.
		flags[0], flags[1] = flags[1], flags[0]
	}
}

func TestCategorizeNewsletterPrefersJunk(t *testing.T) {
	c := NewCategorizer(nil)
	flags := []models.Flag{
		predefinedFlag("Junk", "Marketing and promotional emails"),
		predefinedFlag("Important", "Important business emails"),
	}
	msg := models.Message{
		ID:      "m1",
		Subject: "Weekly Newsletter",
		From:    "noreply@deals.example.com",
		Body:    "Huge sale this week. Unsubscribe anytime.",
	}

	name, confidence := c.Categorize(context.Background(), msg, flags)
	if name != "Junk" {
		t.Fatalf("expected Junk, got %q (confidence %v)", name, confidence)
	}
	if !IsJunkCategory(name) {
		t.Fatalf("expected %q to be routed as junk", name)
	}
}

func TestCategorizeEnhancedKeywords(t *testing.T) {
	enhancer := &fakeEnhancer{keywords: []string{"flight", "hotel", "itinerary"}}
	c := NewCategorizer(enhancer)
	flags := []models.Flag{predefinedFlag("Travel", "trips and bookings")}
	msg := models.Message{
		ID:      "m1",
		Subject: "Your flight itinerary",
		From:    "bookings@airline.com",
		Body:    "Hotel confirmation enclosed.",
	}

	name, confidence := c.Categorize(context.Background(), msg, flags)
	if name != "Travel" {
		t.Fatalf("expected Travel, got %q (confidence %v)", name, confidence)
	}
	if confidence < confidenceThreshold {
		t.Fatalf("confidence %v below threshold", confidence)
	}
}

func TestScoresStayWithinRange(t *testing.T) {
	c := NewCategorizer(nil)
	flags := []models.Flag{
		predefinedFlag("Urgent", "High priority emails"),
		predefinedFlag("Junk", "Marketing and promotional emails"),
		predefinedFlag("Custom", "project alpha deliverables"),
	}
	messages := []models.Message{
		{Subject: "URGENT!!! deadline today, critical emergency, asap", Body: "urgent urgent deadline immediately critical priority", From: "boss@critical.com"},
		{Subject: "newsletter sale discount offer", Body: "unsubscribe promo marketing advertisement", From: "noreply@marketing.example.com"},
		{Subject: "", Body: "", From: ""},
	}

	for _, msg := range messages {
		for _, s := range c.Scores(context.Background(), msg, flags) {
			if s.Score < 0.0 || s.Score > 1.0 {
				t.Fatalf("score %v for %s out of [0,1]", s.Score, s.FlagName)
			}
		}
	}
}

func TestCategorizeUsesSnippetWhenBodyEmpty(t *testing.T) {
	c := NewCategorizer(nil)
	flags := []models.Flag{predefinedFlag("Billing", "invoices payments receipts")}
	msg := models.Message{
		ID:      "m1",
		Subject: "Your invoice is attached",
		Snippet: "Payment received last week.",
	}

	name, _ := c.Categorize(context.Background(), msg, flags)
	if name != "Billing" {
		t.Fatalf("expected Billing via snippet fallback, got %q", name)
	}
}

func TestIsJunkCategory(t *testing.T) {
	if !IsJunkCategory("Junk") || !IsJunkCategory("junk") {
		t.Fatal("junk names must be routed to the marketing label")
	}
	if IsJunkCategory("Urgent") || IsJunkCategory("") {
		t.Fatal("non-junk names must keep their own label")
	}
}

func TestCategorizeNewsletterWithoutJunkFlagReturnsNone(t *testing.T) {
	c := NewCategorizer(nil)
	flags := []models.Flag{
		predefinedFlag("Urgent", "High priority emails"),
		predefinedFlag("Important", "Important business emails"),
		predefinedFlag("Follow-up", "Emails requiring follow-up"),
	}
	msg := models.Message{
		ID:      "m1",
		Subject: "Weekly Newsletter",
		From:    "noreply@shop.com",
	}

	name, confidence := c.Categorize(context.Background(), msg, flags)
	if name != "" || confidence != 0.0 {
		t.Fatalf("expected no assignment without a junk flag, got %q with %v", name, confidence)
	}
}
