package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"mailsort-be/config"
	"mailsort-be/internal/models"
	"mailsort-be/internal/utils"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// bodyExcerptLimit bounds how much sanitized body text a message snapshot
// carries into scoring.
const bodyExcerptLimit = 2000

// GmailService builds per-user Gmail clients from stored OAuth tokens.
type GmailService struct {
	cfg *config.Config
}

func NewGmailService(cfg *config.Config) *GmailService {
	return &GmailService{
		cfg: cfg,
	}
}

func (s *GmailService) getOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.cfg.GoogleClientID,
		ClientSecret: s.cfg.GoogleClientSecret,
		RedirectURL:  s.cfg.FrontendURL,
		Scopes: []string{
			gmail.GmailModifyScope,
			gmail.GmailLabelsScope,
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// ClientFor returns a Gmail client bound to the given user's mailbox.
func (s *GmailService) ClientFor(ctx context.Context, user *models.User) (*GmailClient, error) {
	if user.GoogleRefreshToken == "" {
		return nil, errors.New("no google refresh token found")
	}

	config := s.getOAuthConfig()
	token := &oauth2.Token{
		AccessToken:  user.GoogleAccessToken,
		RefreshToken: user.GoogleRefreshToken,
		Expiry:       user.GoogleTokenExpiry,
		TokenType:    "Bearer",
	}

	tokenSource := config.TokenSource(ctx, token)

	srv, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &GmailClient{srv: srv}, nil
}

// GmailClient is the mailbox provider capability for one user: labels,
// message listing, and per-message label modification.
type GmailClient struct {
	srv *gmail.Service
}

// Profile returns the mailbox owner's email address.
func (c *GmailClient) Profile(ctx context.Context) (string, error) {
	profile, err := c.srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return profile.EmailAddress, nil
}

// ListLabels returns all labels of the mailbox.
func (c *GmailClient) ListLabels(ctx context.Context) ([]models.ProviderLabel, error) {
	resp, err := c.srv.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	var labels []models.ProviderLabel
	for _, l := range resp.Labels {
		labels = append(labels, models.ProviderLabel{
			ID:   l.Id,
			Name: l.Name,
			Type: strings.ToLower(l.Type),
		})
	}

	return labels, nil
}

// CreateLabel creates a user label shown in both the label and message lists.
func (c *GmailClient) CreateLabel(ctx context.Context, name string) (models.ProviderLabel, error) {
	label := &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}

	created, err := c.srv.Users.Labels.Create("me", label).Context(ctx).Do()
	if err != nil {
		return models.ProviderLabel{}, err
	}

	return models.ProviderLabel{ID: created.Id, Name: created.Name, Type: strings.ToLower(created.Type)}, nil
}

// RenameLabel renames an existing label in place, keeping its id.
func (c *GmailClient) RenameLabel(ctx context.Context, labelID, newName string) (models.ProviderLabel, error) {
	label := &gmail.Label{
		Name:                  newName,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}

	updated, err := c.srv.Users.Labels.Patch("me", labelID, label).Context(ctx).Do()
	if err != nil {
		return models.ProviderLabel{}, err
	}

	return models.ProviderLabel{ID: updated.Id, Name: updated.Name, Type: strings.ToLower(updated.Type)}, nil
}

// ListInboxMessages fetches up to max recent inbox messages as immutable
// snapshots: headers, snippet, and a sanitized body excerpt.
func (c *GmailClient) ListInboxMessages(ctx context.Context, max int64) ([]models.Message, error) {
	resp, err := c.srv.Users.Messages.List("me").Q("in:inbox").MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	for _, header := range resp.Messages {
		msg, err := c.srv.Users.Messages.Get("me", header.Id).Format("full").Context(ctx).Do()
		if err != nil {
			continue
		}
		messages = append(messages, mapMessage(msg))
	}

	return messages, nil
}

// AddLabel applies one label to one message.
func (c *GmailClient) AddLabel(ctx context.Context, messageID, labelID string) error {
	req := &gmail.ModifyMessageRequest{AddLabelIds: []string{labelID}}
	_, err := c.srv.Users.Messages.Modify("me", messageID, req).Context(ctx).Do()
	return err
}

// RemoveLabel removes one label from one message.
func (c *GmailClient) RemoveLabel(ctx context.Context, messageID, labelID string) error {
	req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{labelID}}
	_, err := c.srv.Users.Messages.Modify("me", messageID, req).Context(ctx).Do()
	return err
}

func mapMessage(msg *gmail.Message) models.Message {
	var subject, from string
	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			subject = header.Value
		case "From":
			from = header.Value
		}
	}

	body := utils.SanitizeHTML(extractBody(msg.Payload))
	body = utils.Truncate(body, bodyExcerptLimit)

	return models.Message{
		ID:      msg.Id,
		Subject: utils.ToValidUTF8(subject),
		From:    utils.ToValidUTF8(from),
		Body:    utils.ToValidUTF8(body),
		Snippet: utils.ToValidUTF8(msg.Snippet),
	}
}

// extractBody walks the MIME tree and returns the best body part it finds,
// preferring text/plain over text/html.
func extractBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}

	decode := func(data string) ([]byte, error) {
		// Try RawURLEncoding first (no padding)
		decoded, err := base64.RawURLEncoding.DecodeString(data)
		if err == nil {
			return decoded, nil
		}
		// Fallback to standard URLEncoding (with padding)
		return base64.URLEncoding.DecodeString(data)
	}

	if part.Body != nil && part.Body.Data != "" {
		if data, err := decode(part.Body.Data); err == nil {
			return string(data)
		}
	}

	var htmlBody, plainBody string
	for _, p := range part.Parts {
		switch p.MimeType {
		case "text/plain":
			if p.Body != nil && p.Body.Data != "" {
				if data, err := decode(p.Body.Data); err == nil {
					plainBody = string(data)
				}
			}
		case "text/html":
			if p.Body != nil && p.Body.Data != "" {
				if data, err := decode(p.Body.Data); err == nil {
					htmlBody = string(data)
				}
			}
		default:
			if len(p.Parts) > 0 && plainBody == "" && htmlBody == "" {
				htmlBody = extractBody(p)
			}
		}
	}

	if plainBody != "" {
		return plainBody
	}
	return htmlBody
}
