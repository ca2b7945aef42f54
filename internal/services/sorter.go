package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"mailsort-be/config"
	"mailsort-be/internal/models"
)

// MailClient is the full mailbox capability a run needs. *GmailClient
// implements it; tests substitute an in-memory fake.
type MailClient interface {
	LabelProvider
	ListInboxMessages(ctx context.Context, max int64) ([]models.Message, error)
	AddLabel(ctx context.Context, messageID, labelID string) error
	RemoveLabel(ctx context.Context, messageID, labelID string) error
}

// FlagStore reads the user's flag set. The engine never writes flags.
type FlagStore interface {
	GetActiveFlags(ctx context.Context, email string) ([]models.Flag, error)
}

// SessionStore persists run sessions.
type SessionStore interface {
	Create(ctx context.Context, session *models.SortingSession) error
	Update(ctx context.Context, sessionID string, upd models.SessionUpdate) error
	BySessionID(ctx context.Context, sessionID string) (*models.SortingSession, error)
	LatestCompletedSort(ctx context.Context, email string) (*models.SortingSession, error)
}

// RunLog is the append-only per-message processing log.
type RunLog interface {
	Append(ctx context.Context, entry models.ProcessingLogEntry) error
	SuccessesBySession(ctx context.Context, sessionID string) ([]models.ProcessingLogEntry, error)
}

// UserStore resolves the stored user record, which carries the Gmail tokens.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// Runner executes queued sort and revert runs. One Runner serves all users;
// per-run state (client, reconciler) is built fresh for every request.
type Runner struct {
	cfg      *config.Config
	users    UserStore
	flags    FlagStore
	sessions SessionStore
	runLog   RunLog
	labels   LabelCache
	gmail    *GmailService
	enhancer KeywordEnhancer
}

func NewRunner(cfg *config.Config, users UserStore, flags FlagStore, sessions SessionStore, runLog RunLog, labels LabelCache, gmail *GmailService, enhancer KeywordEnhancer) *Runner {
	return &Runner{
		cfg:      cfg,
		users:    users,
		flags:    flags,
		sessions: sessions,
		runLog:   runLog,
		labels:   labels,
		gmail:    gmail,
		enhancer: enhancer,
	}
}

// Execute runs one queued request to completion. Errors end up on the
// session record; Execute itself never fails the worker.
func (r *Runner) Execute(ctx context.Context, req RunRequest) {
	switch req.Kind {
	case RunRevert:
		r.executeRevert(ctx, req)
	default:
		r.executeSort(ctx, req)
	}
}

func (r *Runner) executeSort(ctx context.Context, req RunRequest) {
	// The session is created before any mailbox work so a crashed run still
	// leaves a durable running record.
	session := &models.SortingSession{
		SessionID: req.SessionID,
		Email:     req.Email,
		FlagsUsed: strings.Join(req.FlagNames, ","),
	}
	if err := r.sessions.Create(ctx, session); err != nil {
		log.Printf("sort run %s: failed to create session: %v", req.SessionID, err)
		return
	}

	client, err := r.clientFor(ctx, req.Email)
	if err != nil {
		markFailed(ctx, r.sessions, req.SessionID, "failed to open mailbox: "+err.Error())
		return
	}

	run := &sortRun{
		sessionID:   req.SessionID,
		email:       req.Email,
		client:      client,
		flags:       r.flags,
		sessions:    r.sessions,
		runLog:      r.runLog,
		categorizer: NewCategorizer(r.enhancer),
		reconciler:  NewReconciler(client, r.labels),
		maxEmails:   r.cfg.SortMaxEmails,
		apiDelay:    r.cfg.SortAPIDelay,
	}
	run.run(ctx)
}

func (r *Runner) executeRevert(ctx context.Context, req RunRequest) {
	session := &models.SortingSession{
		SessionID: req.SessionID,
		Email:     req.Email,
		FlagsUsed: models.RevertPrefix + req.TargetSessionID,
	}
	if err := r.sessions.Create(ctx, session); err != nil {
		log.Printf("revert run %s: failed to create session: %v", req.SessionID, err)
		return
	}

	target, err := r.sessions.BySessionID(ctx, req.TargetSessionID)
	if err != nil {
		markFailed(ctx, r.sessions, req.SessionID, "failed to load revert target: "+err.Error())
		return
	}
	if target == nil {
		markFailed(ctx, r.sessions, req.SessionID, "revert target session not found")
		return
	}

	client, err := r.clientFor(ctx, req.Email)
	if err != nil {
		markFailed(ctx, r.sessions, req.SessionID, "failed to open mailbox: "+err.Error())
		return
	}

	run := &revertRun{
		sessionID:  req.SessionID,
		email:      req.Email,
		target:     target,
		client:     client,
		sessions:   r.sessions,
		runLog:     r.runLog,
		reconciler: NewReconciler(client, r.labels),
		apiDelay:   r.cfg.SortAPIDelay,
	}
	run.run(ctx)
}

func (r *Runner) clientFor(ctx context.Context, email string) (MailClient, error) {
	user, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", email)
	}
	return r.gmail.ClientFor(ctx, user)
}

func markFailed(ctx context.Context, sessions SessionStore, sessionID, msg string) {
	status := models.SessionFailed
	err := sessions.Update(ctx, sessionID, models.SessionUpdate{Status: &status, ErrorMessage: &msg})
	if err != nil {
		log.Printf("session %s: failed to record failure %q: %v", sessionID, msg, err)
		return
	}
	log.Printf("session %s failed: %s", sessionID, msg)
}

// sortRun is one sorting execution over a single user's inbox.
type sortRun struct {
	sessionID   string
	email       string
	client      MailClient
	flags       FlagStore
	sessions    SessionStore
	runLog      RunLog
	categorizer *Categorizer
	reconciler  *Reconciler
	maxEmails   int64
	apiDelay    time.Duration

	marketingID   string
	marketingErr  error
	marketingOnce bool
}

func (r *sortRun) fail(ctx context.Context, msg string) {
	markFailed(ctx, r.sessions, r.sessionID, msg)
}

func (r *sortRun) run(ctx context.Context) {
	activeFlags, err := r.flags.GetActiveFlags(ctx, r.email)
	if err != nil {
		r.fail(ctx, "failed to load flags: "+err.Error())
		return
	}
	if len(activeFlags) == 0 {
		r.fail(ctx, "no active flags found")
		return
	}

	refs := make([]FlagRef, 0, len(activeFlags))
	for _, f := range activeFlags {
		refs = append(refs, FlagRef{Name: f.Name, Color: f.Color})
	}

	mapping, err := r.reconciler.Reconcile(ctx, r.email, refs)
	if err != nil {
		r.fail(ctx, "failed to reconcile labels: "+err.Error())
		return
	}
	if len(mapping) == 0 {
		r.fail(ctx, "no labels could be created or verified")
		return
	}

	messages, err := r.client.ListInboxMessages(ctx, r.maxEmails)
	if err != nil {
		r.fail(ctx, "failed to fetch inbox: "+err.Error())
		return
	}

	total := len(messages)
	if err := r.sessions.Update(ctx, r.sessionID, models.SessionUpdate{TotalEmails: &total}); err != nil {
		log.Printf("sort run %s: failed to record total: %v", r.sessionID, err)
	}

	processed := 0
	for _, msg := range messages {
		entry := r.processMessage(ctx, msg, activeFlags, mapping)
		entry.SessionID = r.sessionID
		if err := r.runLog.Append(ctx, entry); err != nil {
			log.Printf("sort run %s: failed to log message %s: %v", r.sessionID, msg.ID, err)
		}

		processed++
		if err := r.sessions.Update(ctx, r.sessionID, models.SessionUpdate{ProcessedEmails: &processed}); err != nil {
			log.Printf("sort run %s: failed to record progress: %v", r.sessionID, err)
		}

		if r.apiDelay > 0 {
			time.Sleep(r.apiDelay)
		}
	}

	status := models.SessionCompleted
	if err := r.sessions.Update(ctx, r.sessionID, models.SessionUpdate{Status: &status, ProcessedEmails: &processed}); err != nil {
		log.Printf("sort run %s: failed to record completion: %v", r.sessionID, err)
	}
	log.Printf("sort run %s completed: %d/%d messages", r.sessionID, processed, total)
}

// processMessage categorizes and labels one message and returns its log
// entry. It never lets a single message take down the run.
func (r *sortRun) processMessage(ctx context.Context, msg models.Message, activeFlags []models.Flag, mapping map[string]string) (entry models.ProcessingLogEntry) {
	entry = models.ProcessingLogEntry{
		MessageID: msg.ID,
		Subject:   msg.Subject,
		From:      msg.From,
	}
	defer func() {
		if rec := recover(); rec != nil {
			entry.Status = models.ProcessingError
			entry.ErrorDetails = fmt.Sprintf("panic: %v", rec)
		}
	}()

	category, confidence := r.categorizer.Categorize(ctx, msg, activeFlags)
	if category == "" {
		entry.Status = models.ProcessingSkipped
		entry.ErrorDetails = "no matching category or low confidence"
		return entry
	}
	entry.ConfidenceScore = confidence

	if IsJunkCategory(category) {
		labelID, err := r.marketingLabel(ctx)
		if err != nil {
			entry.Status = models.ProcessingFailed
			entry.ErrorDetails = "failed to get marketing label: " + err.Error()
			return entry
		}
		if err := r.client.AddLabel(ctx, msg.ID, labelID); err != nil {
			entry.Status = models.ProcessingFailed
			entry.ErrorDetails = "failed to apply label: " + err.Error()
			return entry
		}
		entry.AssignedLabel = MarketingLabelName
		entry.Status = models.ProcessingSuccess
		return entry
	}

	labelID, ok := mapping[category]
	if !ok {
		entry.Status = models.ProcessingSkipped
		entry.ErrorDetails = "no label mapping for flag " + category
		return entry
	}
	if err := r.client.AddLabel(ctx, msg.ID, labelID); err != nil {
		entry.Status = models.ProcessingFailed
		entry.ErrorDetails = "failed to apply label: " + err.Error()
		return entry
	}

	entry.AssignedLabel = category
	entry.Status = models.ProcessingSuccess
	return entry
}

// marketingLabel resolves the synthetic marketing label once per run.
func (r *sortRun) marketingLabel(ctx context.Context) (string, error) {
	if !r.marketingOnce {
		r.marketingOnce = true
		r.marketingID, r.marketingErr = r.reconciler.EnsureLabel(ctx, r.email, MarketingLabelName, MarketingLabelColor)
	}
	return r.marketingID, r.marketingErr
}

// revertRun removes the labels a previous completed sort run applied.
type revertRun struct {
	sessionID  string
	email      string
	target     *models.SortingSession
	client     MailClient
	sessions   SessionStore
	runLog     RunLog
	reconciler *Reconciler
	apiDelay   time.Duration
}

func (r *revertRun) fail(ctx context.Context, msg string) {
	markFailed(ctx, r.sessions, r.sessionID, msg)
}

func (r *revertRun) run(ctx context.Context) {
	// Only messages that actually got a label are eligible.
	entries, err := r.runLog.SuccessesBySession(ctx, r.target.SessionID)
	if err != nil {
		r.fail(ctx, "failed to load processing log: "+err.Error())
		return
	}

	total := len(entries)
	if err := r.sessions.Update(ctx, r.sessionID, models.SessionUpdate{TotalEmails: &total}); err != nil {
		log.Printf("revert run %s: failed to record total: %v", r.sessionID, err)
	}

	// Re-derive the flag-name -> label-id mapping the original run used,
	// without touching the cache state of the current flag set.
	mapping := map[string]string{}
	if flagNames := SplitFlagNames(r.target.FlagsUsed); len(flagNames) > 0 {
		mapping, err = r.reconciler.Resolve(ctx, r.email, FlagRefsFromNames(flagNames))
		if err != nil {
			r.fail(ctx, "failed to resolve labels: "+err.Error())
			return
		}
	}
	if id, err := r.reconciler.EnsureLabel(ctx, r.email, MarketingLabelName, MarketingLabelColor); err == nil {
		mapping[MarketingLabelName] = id
	}

	reverted := 0
	for _, entry := range entries {
		labelID, ok := mapping[entry.AssignedLabel]
		if !ok {
			log.Printf("revert run %s: no label mapping for %q, leaving message %s", r.sessionID, entry.AssignedLabel, entry.MessageID)
			continue
		}
		if err := r.client.RemoveLabel(ctx, entry.MessageID, labelID); err != nil {
			log.Printf("revert run %s: failed to unlabel message %s: %v", r.sessionID, entry.MessageID, err)
			continue
		}

		reverted++
		if err := r.sessions.Update(ctx, r.sessionID, models.SessionUpdate{ProcessedEmails: &reverted}); err != nil {
			log.Printf("revert run %s: failed to record progress: %v", r.sessionID, err)
		}

		if r.apiDelay > 0 {
			time.Sleep(r.apiDelay)
		}
	}

	// A revert with nothing eligible still completes; zero work is a valid
	// outcome, not a failure.
	status := models.SessionCompleted
	if err := r.sessions.Update(ctx, r.sessionID, models.SessionUpdate{Status: &status, ProcessedEmails: &reverted}); err != nil {
		log.Printf("revert run %s: failed to record completion: %v", r.sessionID, err)
	}
	log.Printf("revert run %s completed: removed labels from %d/%d messages", r.sessionID, reverted, total)
}

// SplitFlagNames parses a session's stored flags_used string.
func SplitFlagNames(flagsUsed string) []string {
	var names []string
	for _, part := range strings.Split(flagsUsed, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}
