package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mailsort-be/internal/models"
)

type fakeMail struct {
	*fakeProvider
	messages []models.Message
	// messageID -> applied label ids
	applied map[string][]string
	failAdd bool
}

func newFakeMail(messages ...models.Message) *fakeMail {
	return &fakeMail{
		fakeProvider: &fakeProvider{},
		messages:     messages,
		applied:      map[string][]string{},
	}
}

func (f *fakeMail) ListInboxMessages(ctx context.Context, max int64) ([]models.Message, error) {
	if int64(len(f.messages)) > max {
		return f.messages[:max], nil
	}
	return f.messages, nil
}

func (f *fakeMail) AddLabel(ctx context.Context, messageID, labelID string) error {
	if f.failAdd {
		return errors.New("modify rejected")
	}
	f.applied[messageID] = append(f.applied[messageID], labelID)
	return nil
}

func (f *fakeMail) RemoveLabel(ctx context.Context, messageID, labelID string) error {
	kept := f.applied[messageID][:0]
	for _, id := range f.applied[messageID] {
		if id != labelID {
			kept = append(kept, id)
		}
	}
	f.applied[messageID] = kept
	return nil
}

type fakeFlagStore struct {
	flags []models.Flag
}

func (f *fakeFlagStore) GetActiveFlags(ctx context.Context, email string) ([]models.Flag, error) {
	var active []models.Flag
	for _, flag := range f.flags {
		if flag.IsActive {
			active = append(active, flag)
		}
	}
	return active, nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions []*models.SortingSession
}

func (s *fakeSessionStore) Create(ctx context.Context, session *models.SortingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.Status = models.SessionRunning
	session.StartTime = time.Now()
	s.sessions = append(s.sessions, session)
	return nil
}

func (s *fakeSessionStore) Update(ctx context.Context, sessionID string, upd models.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.SessionID != sessionID {
			continue
		}
		if upd.Status != nil {
			// Terminal states are final, same rule the repository enforces.
			if session.Status != models.SessionRunning {
				return nil
			}
			session.Status = *upd.Status
			if *upd.Status == models.SessionCompleted || *upd.Status == models.SessionFailed {
				now := time.Now()
				session.EndTime = &now
			}
		}
		if upd.TotalEmails != nil {
			session.TotalEmails = *upd.TotalEmails
		}
		if upd.ProcessedEmails != nil {
			session.ProcessedEmails = *upd.ProcessedEmails
		}
		if upd.ErrorMessage != nil {
			session.ErrorMessage = *upd.ErrorMessage
		}
		return nil
	}
	return errors.New("session not found")
}

func (s *fakeSessionStore) BySessionID(ctx context.Context, sessionID string) (*models.SortingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.SessionID == sessionID {
			return session, nil
		}
	}
	return nil, nil
}

func (s *fakeSessionStore) LatestCompletedSort(ctx context.Context, email string) (*models.SortingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sessions) - 1; i >= 0; i-- {
		session := s.sessions[i]
		if session.Email == email &&
			session.Status == models.SessionCompleted &&
			!strings.HasPrefix(session.FlagsUsed, models.RevertPrefix) {
			return session, nil
		}
	}
	return nil, nil
}

type fakeRunLog struct {
	entries []models.ProcessingLogEntry
}

func (f *fakeRunLog) Append(ctx context.Context, entry models.ProcessingLogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeRunLog) SuccessesBySession(ctx context.Context, sessionID string) ([]models.ProcessingLogEntry, error) {
	var out []models.ProcessingLogEntry
	for _, e := range f.entries {
		if e.SessionID == sessionID && e.Status == models.ProcessingSuccess && e.AssignedLabel != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

func newSortRun(sessionID string, mail *fakeMail, flags []models.Flag, sessions *fakeSessionStore, runLog *fakeRunLog, cache *fakeCache) *sortRun {
	return &sortRun{
		sessionID:   sessionID,
		email:       testEmail,
		client:      mail,
		flags:       &fakeFlagStore{flags: flags},
		sessions:    sessions,
		runLog:      runLog,
		categorizer: NewCategorizer(nil),
		reconciler:  NewReconciler(mail, cache),
		maxEmails:   100,
	}
}

func createRunning(t *testing.T, sessions *fakeSessionStore, sessionID, flagsUsed string) {
	t.Helper()
	err := sessions.Create(context.Background(), &models.SortingSession{
		SessionID: sessionID,
		Email:     testEmail,
		FlagsUsed: flagsUsed,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSortRunCompletesAndLogs(t *testing.T) {
	mail := newFakeMail(
		models.Message{ID: "m1", Subject: "URGENT: server outage!!!", From: "boss@example.com", Body: "Critical issue, action required immediately."},
		models.Message{ID: "m2", Subject: "Lunch on Saturday", From: "friend@gmail.com", Body: "See you at noon."},
	)
	flags := []models.Flag{{Name: "Urgent", Description: "High priority emails", IsActive: true}}
	sessions := &fakeSessionStore{}
	runLog := &fakeRunLog{}
	createRunning(t, sessions, "s1", "Urgent")

	newSortRun("s1", mail, flags, sessions, runLog, &fakeCache{}).run(context.Background())

	session, _ := sessions.BySessionID(context.Background(), "s1")
	if session.Status != models.SessionCompleted {
		t.Fatalf("expected completed session, got %s (%s)", session.Status, session.ErrorMessage)
	}
	if session.TotalEmails != 2 || session.ProcessedEmails != 2 {
		t.Fatalf("expected 2/2 progress, got %d/%d", session.ProcessedEmails, session.TotalEmails)
	}
	if session.EndTime == nil {
		t.Fatal("terminal session must carry an end time")
	}

	if len(runLog.entries) != 2 {
		t.Fatalf("expected one log entry per message, got %d", len(runLog.entries))
	}
	byID := map[string]models.ProcessingLogEntry{}
	for _, e := range runLog.entries {
		byID[e.MessageID] = e
	}
	if e := byID["m1"]; e.Status != models.ProcessingSuccess || e.AssignedLabel != "Urgent" {
		t.Fatalf("unexpected entry for m1: %+v", e)
	}
	if e := byID["m2"]; e.Status != models.ProcessingSkipped {
		t.Fatalf("unexpected entry for m2: %+v", e)
	}
	if len(mail.applied["m1"]) != 1 {
		t.Fatalf("expected one label on m1, got %v", mail.applied["m1"])
	}
	if len(mail.applied["m2"]) != 0 {
		t.Fatalf("expected no labels on m2, got %v", mail.applied["m2"])
	}
}

func TestSortRunRoutesJunkToMarketingLabel(t *testing.T) {
	mail := newFakeMail(
		models.Message{ID: "m1", Subject: "Weekly Newsletter", From: "noreply@deals.example.com", Body: "Huge sale this week. Unsubscribe anytime."},
	)
	flags := []models.Flag{{Name: "Junk", Description: "Marketing and promotional emails", IsActive: true}}
	sessions := &fakeSessionStore{}
	runLog := &fakeRunLog{}
	createRunning(t, sessions, "s1", "Junk")

	newSortRun("s1", mail, flags, sessions, runLog, &fakeCache{}).run(context.Background())

	if len(runLog.entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(runLog.entries))
	}
	entry := runLog.entries[0]
	if entry.Status != models.ProcessingSuccess || entry.AssignedLabel != MarketingLabelName {
		t.Fatalf("expected success with %q, got %+v", MarketingLabelName, entry)
	}

	var marketingID string
	for _, label := range mail.labels {
		if label.Name == MarketingLabelName {
			marketingID = label.ID
		}
	}
	if marketingID == "" {
		t.Fatalf("expected %q label to be created, created %v", MarketingLabelName, mail.created)
	}
	if len(mail.applied["m1"]) != 1 || mail.applied["m1"][0] != marketingID {
		t.Fatalf("expected the marketing label on m1, got %v", mail.applied["m1"])
	}
}

func TestSortRunFailsWithoutActiveFlags(t *testing.T) {
	mail := newFakeMail()
	sessions := &fakeSessionStore{}
	createRunning(t, sessions, "s1", "")

	newSortRun("s1", mail, nil, sessions, &fakeRunLog{}, &fakeCache{}).run(context.Background())

	session, _ := sessions.BySessionID(context.Background(), "s1")
	if session.Status != models.SessionFailed {
		t.Fatalf("expected failed session, got %s", session.Status)
	}
	if session.ErrorMessage == "" {
		t.Fatal("failed session must carry an error message")
	}
}

func TestSortRunLabelFailureIsPerMessage(t *testing.T) {
	mail := newFakeMail(
		models.Message{ID: "m1", Subject: "URGENT: server outage!!!", From: "boss@example.com", Body: "Critical issue, action required immediately."},
	)
	mail.failAdd = true
	flags := []models.Flag{{Name: "Urgent", Description: "High priority emails", IsActive: true}}
	sessions := &fakeSessionStore{}
	runLog := &fakeRunLog{}
	createRunning(t, sessions, "s1", "Urgent")

	newSortRun("s1", mail, flags, sessions, runLog, &fakeCache{}).run(context.Background())

	session, _ := sessions.BySessionID(context.Background(), "s1")
	if session.Status != models.SessionCompleted {
		t.Fatalf("per-message failure must not fail the run, got %s", session.Status)
	}
	if runLog.entries[0].Status != models.ProcessingFailed {
		t.Fatalf("expected failed entry, got %+v", runLog.entries[0])
	}
}

func TestRevertRemovesAppliedLabels(t *testing.T) {
	mail := newFakeMail(
		models.Message{ID: "m1", Subject: "URGENT: server outage!!!", From: "boss@example.com", Body: "Critical issue, action required immediately."},
		models.Message{ID: "m2", Subject: "Weekly Newsletter", From: "noreply@deals.example.com", Body: "Huge sale this week. Unsubscribe anytime."},
	)
	flags := []models.Flag{
		{Name: "Urgent", Description: "High priority emails", IsActive: true},
		{Name: "Junk", Description: "Marketing and promotional emails", IsActive: true},
	}
	sessions := &fakeSessionStore{}
	runLog := &fakeRunLog{}
	cache := &fakeCache{}
	createRunning(t, sessions, "s1", "Urgent,Junk")
	newSortRun("s1", mail, flags, sessions, runLog, cache).run(context.Background())

	if len(mail.applied["m1"]) != 1 || len(mail.applied["m2"]) != 1 {
		t.Fatalf("precondition: both messages labeled, got %v", mail.applied)
	}

	target, _ := sessions.LatestCompletedSort(context.Background(), testEmail)
	if target == nil || target.SessionID != "s1" {
		t.Fatalf("expected s1 as revert target, got %+v", target)
	}

	createRunning(t, sessions, "s2", models.RevertPrefix+target.SessionID)
	revert := &revertRun{
		sessionID:  "s2",
		email:      testEmail,
		target:     target,
		client:     mail,
		sessions:   sessions,
		runLog:     runLog,
		reconciler: NewReconciler(mail, cache),
	}
	revert.run(context.Background())

	if len(mail.applied["m1"]) != 0 || len(mail.applied["m2"]) != 0 {
		t.Fatalf("expected all labels removed, got %v", mail.applied)
	}

	session, _ := sessions.BySessionID(context.Background(), "s2")
	if session.Status != models.SessionCompleted {
		t.Fatalf("expected completed revert, got %s (%s)", session.Status, session.ErrorMessage)
	}
	if session.TotalEmails != 2 || session.ProcessedEmails != 2 {
		t.Fatalf("expected 2/2 reverted, got %d/%d", session.ProcessedEmails, session.TotalEmails)
	}
}

func TestRevertSessionsAreNotRevertTargets(t *testing.T) {
	sessions := &fakeSessionStore{}
	createRunning(t, sessions, "s1", "Urgent")
	status := models.SessionCompleted
	_ = sessions.Update(context.Background(), "s1", models.SessionUpdate{Status: &status})

	createRunning(t, sessions, "s2", models.RevertPrefix+"s1")
	_ = sessions.Update(context.Background(), "s2", models.SessionUpdate{Status: &status})

	target, err := sessions.LatestCompletedSort(context.Background(), testEmail)
	if err != nil {
		t.Fatal(err)
	}
	if target == nil || target.SessionID != "s1" {
		t.Fatalf("expected s1, got %+v", target)
	}
}

func TestRevertWithNothingEligibleCompletes(t *testing.T) {
	mail := newFakeMail()
	sessions := &fakeSessionStore{}
	createRunning(t, sessions, "s1", "Urgent")
	status := models.SessionCompleted
	_ = sessions.Update(context.Background(), "s1", models.SessionUpdate{Status: &status})
	target, _ := sessions.BySessionID(context.Background(), "s1")

	createRunning(t, sessions, "s2", models.RevertPrefix+"s1")
	revert := &revertRun{
		sessionID:  "s2",
		email:      testEmail,
		target:     target,
		client:     mail,
		sessions:   sessions,
		runLog:     &fakeRunLog{},
		reconciler: NewReconciler(mail, &fakeCache{}),
	}
	revert.run(context.Background())

	session, _ := sessions.BySessionID(context.Background(), "s2")
	if session.Status != models.SessionCompleted {
		t.Fatalf("zero eligible entries is still a completed revert, got %s", session.Status)
	}
	if session.TotalEmails != 0 || session.ProcessedEmails != 0 {
		t.Fatalf("expected 0/0, got %d/%d", session.ProcessedEmails, session.TotalEmails)
	}
}

func TestSessionTerminalStateIsFinal(t *testing.T) {
	sessions := &fakeSessionStore{}
	createRunning(t, sessions, "s1", "Urgent")

	completed := models.SessionCompleted
	failed := models.SessionFailed
	_ = sessions.Update(context.Background(), "s1", models.SessionUpdate{Status: &completed})
	_ = sessions.Update(context.Background(), "s1", models.SessionUpdate{Status: &failed})

	session, _ := sessions.BySessionID(context.Background(), "s1")
	if session.Status != models.SessionCompleted {
		t.Fatalf("terminal state must be final, got %s", session.Status)
	}
}
