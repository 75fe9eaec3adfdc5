// Package tracker coordinates inbound group messages: it extracts events with
// the oracle, reconciles clocks, fans them out to every tenant registered for
// the group, flushes the touched partitions and republishes live summaries.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/edgard/uptimebot/internal/config"
	"github.com/edgard/uptimebot/internal/database"
	"github.com/edgard/uptimebot/internal/ledger"
	"github.com/edgard/uptimebot/internal/metrics"
	"github.com/edgard/uptimebot/internal/report"
	"github.com/edgard/uptimebot/internal/storage"
)

var (
	// ErrInvalidAccessKey is returned by Login for an unknown access key.
	ErrInvalidAccessKey = errors.New("invalid access key")
	// ErrNotLoggedIn is returned for chats that are not bound to a tenant.
	ErrNotLoggedIn = errors.New("chat is not logged in")
	// ErrUntracked marks messages from groups no tracking tenant registered.
	ErrUntracked = errors.New("group is not tracked")
)

// Extractor turns message text into a raw extraction.
type Extractor interface {
	Extract(ctx context.Context, text string, ec ledger.ExtractionContext) (ledger.RawExtraction, error)
}

// Registry stores tenant groups, admin chat bindings and summary views.
type Registry interface {
	AddTenantGroup(ctx context.Context, group *database.TenantGroup) error
	RemoveTenantGroup(ctx context.Context, tenant ledger.TenantKey, groupID int64) (bool, error)
	ListTenantGroups(ctx context.Context, tenant ledger.TenantKey) ([]database.TenantGroup, error)
	ListAllTenantGroups(ctx context.Context) ([]database.TenantGroup, error)
	SaveAdminChat(ctx context.Context, chat *database.AdminChat) error
	GetAdminChat(ctx context.Context, chatID int64) (*database.AdminChat, error)
	ListActiveAdminChats(ctx context.Context) ([]database.AdminChat, error)
	GetSummaryMessage(ctx context.Context, tenant ledger.TenantKey, chatID, groupID int64) (*database.SummaryMessage, error)
	DeleteSummaryMessages(ctx context.Context, tenant ledger.TenantKey, chatID int64) error
}

// SummaryUpdate is one rendered summary addressed to an admin chat.
// Fresh asks for a new message instead of editing the previous one.
type SummaryUpdate struct {
	Tenant  ledger.TenantKey
	ChatID  int64
	GroupID int64
	View    report.View
	Text    string
	Fresh   bool
}

// Notifier delivers summaries to admin chats.
type Notifier interface {
	PublishSummary(ctx context.Context, update SummaryUpdate) error
}

// Message is an inbound group message. Edited messages are processed like new ones.
type Message struct {
	Text      string
	GroupID   int64
	TopicID   int64
	ChatTitle string
	SentAt    time.Time
	Edited    bool
}

// Result describes what happened to one message.
type Result struct {
	CorrelationID string
	Phone         ledger.PhoneID
	TopicID       int64
	Remembered    bool
	Outcomes      map[ledger.TenantKey]ledger.Outcome
	// Dropped is the reason the message caused no transition, if any.
	Dropped error
}

// Deps holds the collaborators of a Tracker.
type Deps struct {
	Logger    *slog.Logger
	Config    *config.Config
	Extractor Extractor
	Store     storage.LedgerStore
	Registry  Registry
	Notifier  Notifier
	// Now defaults to time.Now.
	Now func() time.Time
}

type chatGroup struct {
	chatID  int64
	groupID int64
}

// Tracker owns the ledger and all per-process tracking state.
type Tracker struct {
	log       *slog.Logger
	cfg       *config.Config
	loc       *time.Location
	extractor Extractor
	store     storage.LedgerStore
	registry  Registry
	notifier  Notifier
	renderer  *report.Renderer
	now       func() time.Time
	sem       *semaphore.Weighted
	dispatch  *dispatcher
	memory    *ledger.Memory

	// mu guards the fields below and serializes ledger mutation with its flush.
	mu         sync.Mutex
	ledger     *ledger.Ledger
	groups     map[int64][]ledger.TenantKey
	groupNames map[ledger.TenantKey]map[int64]string
	titles     map[int64]string
	topicNames map[ledger.Conversation]string
	admins     map[ledger.TenantKey]map[int64]struct{}
	chats      map[int64]ledger.TenantKey
	views      map[chatGroup]report.View

	// publishMu keeps summary edits in the order their snapshots were taken.
	publishMu sync.Mutex
}

// New creates a tracker. Call Start before submitting messages.
func New(deps Deps) *Tracker {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	loc := deps.Config.Tracker.Location
	if loc == nil {
		loc = time.Local
	}
	limit := deps.Config.Tracker.MaxConcurrentExtractions
	if limit < 1 {
		limit = 1
	}
	rc := deps.Config.Report
	labels := report.Labels{
		Topic:       rc.Topic,
		Average:     rc.Average,
		Placed:      rc.Placed,
		StandingNow: rc.StandingNow,
		NoData:      rc.NoData,
	}

	return &Tracker{
		log:        deps.Logger.With("component", "tracker"),
		cfg:        deps.Config,
		loc:        loc,
		extractor:  deps.Extractor,
		store:      deps.Store,
		registry:   deps.Registry,
		notifier:   deps.Notifier,
		renderer:   report.NewRenderer(labels, rc.CriticalBelow, rc.WarningBelow),
		now:        now,
		sem:        semaphore.NewWeighted(limit),
		dispatch:   newDispatcher(),
		memory:     ledger.NewMemory(),
		ledger:     ledger.New(),
		groups:     make(map[int64][]ledger.TenantKey),
		groupNames: make(map[ledger.TenantKey]map[int64]string),
		titles:     make(map[int64]string),
		topicNames: make(map[ledger.Conversation]string),
		admins:     make(map[ledger.TenantKey]map[int64]struct{}),
		chats:      make(map[int64]ledger.TenantKey),
		views:      make(map[chatGroup]report.View),
	}
}

// Start restores the group index and admin sessions from the registry and
// loads today's ledger of every tracking tenant.
func (t *Tracker) Start(ctx context.Context) error {
	groups, err := t.registry.ListAllTenantGroups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenant groups: %w", err)
	}
	chats, err := t.registry.ListActiveAdminChats(ctx)
	if err != nil {
		return fmt.Errorf("failed to list admin chats: %w", err)
	}

	t.mu.Lock()
	for _, g := range groups {
		t.indexGroupLocked(ledger.TenantKey(g.TenantKey), g.GroupID, g.GroupName)
	}
	for _, c := range chats {
		if _, ok := t.cfg.TenantByID(c.TenantKey); !ok {
			t.log.WarnContext(ctx, "Skipping admin chat of unknown tenant", "chat_id", c.ChatID, "tenant", c.TenantKey)
			continue
		}
		t.bindChatLocked(ledger.TenantKey(c.TenantKey), c.ChatID)
	}
	tenants := t.trackingTenantsLocked()
	t.mu.Unlock()

	for _, tenant := range tenants {
		if err := t.LoadTenant(ctx, tenant); err != nil {
			t.log.ErrorContext(ctx, "Failed to load tenant ledger", "tenant", tenant, "error", err)
		}
	}

	t.log.InfoContext(ctx, "Tracker started", "groups", len(groups), "admin_chats", len(chats), "tracking_tenants", len(tenants))
	return nil
}

// Run blocks until ctx is done, then drains the queued messages.
func (t *Tracker) Run(ctx context.Context) error {
	<-ctx.Done()
	t.Close()
	return nil
}

// Close stops accepting messages and waits for the queued ones.
func (t *Tracker) Close() {
	t.dispatch.close()
	t.log.Info("Tracker stopped")
}

// Wait blocks until every submitted message has been processed.
func (t *Tracker) Wait() {
	t.dispatch.wait()
}

// Submit queues msg behind earlier messages of the same topic. Processing
// outlives the cancellation of ctx so accepted messages are not lost.
func (t *Tracker) Submit(ctx context.Context, msg Message) bool {
	conv := ledger.Conversation{GroupID: msg.GroupID, TopicID: msg.TopicID}
	jobCtx := context.WithoutCancel(ctx)
	return t.dispatch.submit(conv, func() {
		res := t.HandleMessage(jobCtx, msg)
		if res.Dropped != nil && !errors.Is(res.Dropped, ErrUntracked) {
			t.log.DebugContext(jobCtx, "Message produced no transition",
				"correlation_id", res.CorrelationID, "group_id", msg.GroupID, "topic_id", msg.TopicID, "reason", res.Dropped)
		}
	})
}

// HandleMessage runs the full pipeline for one message and reports the result.
// Failures are logged and absorbed; they never leave the tracker.
func (t *Tracker) HandleMessage(ctx context.Context, msg Message) Result {
	id := uuid.NewString()
	ctx = metrics.WithCorrelation(ctx, id)
	log := t.log.With("correlation_id", id, "group_id", msg.GroupID, "topic_id", msg.TopicID)
	res := Result{CorrelationID: id, TopicID: msg.TopicID}

	t.recordTitle(msg.GroupID, msg.ChatTitle)

	if phone, ok := ledger.BarePhone(msg.Text, t.cfg.Tracker.MinPhoneDigits); ok {
		t.memory.Remember(msg.GroupID, msg.TopicID, phone)
		res.Phone, res.Remembered = phone, true
		res.Dropped = ledger.ErrNoSignal
		log.DebugContext(ctx, "Remembered bare phone", "phone", phone)
		return res
	}

	tenants := t.trackingTenants(msg.GroupID)
	if len(tenants) == 0 {
		res.Dropped = ErrUntracked
		return res
	}
	if strings.TrimSpace(msg.Text) == "" {
		res.Dropped = ledger.ErrNoSignal
		return res
	}

	sentAt := msg.SentAt.In(t.loc)
	raw, err := t.extract(ctx, msg.Text, ledger.ExtractionContext{DefaultTopicID: msg.TopicID, SentAt: sentAt})
	if err != nil {
		log.WarnContext(ctx, "Extraction failed, message ignored", "error", err)
		metrics.IncDropped("oracle")
		res.Dropped = err
		return res
	}
	raw = raw.Normalize()
	if raw.TopicID == 0 {
		raw.TopicID = msg.TopicID
	}
	res.TopicID = raw.TopicID

	if !raw.HasSignal() {
		metrics.IncDropped("no_signal")
		res.Dropped = ledger.ErrNoSignal
		return res
	}

	if raw.Phone != "" {
		t.memory.Remember(msg.GroupID, raw.TopicID, raw.Phone)
		res.Phone, res.Remembered = raw.Phone, true
		if !raw.HasEvent() {
			res.Dropped = ledger.ErrNoSignal
			return res
		}
	} else {
		phone, ok := t.memory.Recall(msg.GroupID, raw.TopicID)
		if !ok {
			log.InfoContext(ctx, "No phone in message and none remembered for topic")
			metrics.IncDropped("missing_identifier")
			res.Dropped = ledger.ErrMissingIdentifier
			return res
		}
		res.Phone = phone
	}

	rec := ledger.Reconcile(ledger.Reported{
		Started:     raw.Started,
		Stopped:     raw.Stopped,
		StartedTime: raw.StartedTime,
		StoppedTime: raw.StoppedTime,
	}, sentAt, t.cfg.Tracker.CorrectionThreshold)
	if rec.Corrected {
		log.InfoContext(ctx, "Reported clock corrected by one hour",
			"started_reported", raw.StartedTime, "stopped_reported", raw.StoppedTime,
			"started", rec.StartedTime, "stopped", rec.StoppedTime)
	}

	ev := ledger.Event{
		GroupID:   msg.GroupID,
		TopicID:   raw.TopicID,
		Phone:     res.Phone,
		Started:   raw.Started,
		Stopped:   raw.Stopped,
		StartedAt: rec.StartedTime,
		StoppedAt: rec.StoppedTime,
		Day:       sentAt,
	}
	res.Outcomes, res.Dropped = t.apply(ctx, log, ev, tenants)
	return res
}

func (t *Tracker) extract(ctx context.Context, text string, ec ledger.ExtractionContext) (ledger.RawExtraction, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return ledger.RawExtraction{}, err
	}
	defer t.sem.Release(1)
	return t.extractor.Extract(ctx, text, ec)
}

// apply fans ev out to tenants, archives superseded intervals, flushes every
// touched tenant and publishes their summaries of the group.
func (t *Tracker) apply(ctx context.Context, log *slog.Logger, ev ledger.Event, tenants []ledger.TenantKey) (map[ledger.TenantKey]ledger.Outcome, error) {
	outcomes := make(map[ledger.TenantKey]ledger.Outcome, len(tenants))
	var lastErr error

	t.mu.Lock()
	for _, tenant := range tenants {
		ev.Tenant = tenant
		out, err := t.ledger.Apply(ev)
		if err != nil {
			log.InfoContext(ctx, "Event not applied", "tenant", tenant, "phone", ev.Phone, "error", err)
			metrics.IncDropped(dropReason(err))
			lastErr = err
			continue
		}
		if out.Warning != nil {
			log.WarnContext(ctx, "Event applied with malformed time", "tenant", tenant, "error", out.Warning)
		}
		if out.Recovered {
			log.InfoContext(ctx, "Stop attributed to latest open interval", "tenant", tenant,
				"reported_phone", ev.Phone, "phone", out.Record.Key.Phone)
		}
		metrics.IncApplied(string(tenant), eventKind(ev, out))
		outcomes[tenant] = out

		if out.Superseded != nil {
			t.archiveLocked(ctx, tenant, []ledger.Record{*out.Superseded})
		}
		t.flushLocked(ctx, tenant)
	}

	var updates []SummaryUpdate
	for tenant := range outcomes {
		updates = append(updates, t.summariesLocked(ctx, tenant, ev.GroupID, false)...)
	}
	t.publishMu.Lock()
	t.mu.Unlock()
	t.publish(ctx, updates)
	t.publishMu.Unlock()

	if len(outcomes) == 0 {
		return outcomes, lastErr
	}
	log.InfoContext(ctx, "Event applied", "phone", ev.Phone, "started", ev.Started, "stopped", ev.Stopped,
		"started_at", ev.StartedAt, "stopped_at", ev.StoppedAt, "tenants", len(outcomes))
	return outcomes, nil
}

func eventKind(ev ledger.Event, out ledger.Outcome) string {
	switch {
	case out.Recovered:
		return "recovered"
	case ev.Started && ev.Stopped:
		return "started_stopped"
	case ev.Started:
		return "started"
	default:
		return "stopped"
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNoOpenInterval):
		return "no_open_interval"
	case errors.Is(err, ledger.ErrMissingIdentifier):
		return "missing_identifier"
	case errors.Is(err, ledger.ErrNoSignal):
		return "no_signal"
	default:
		return "invalid"
	}
}

// Login binds chatID to the tenant owning accessKey and activates tracking.
// A tenant that was not tracking yet reloads today's ledger first. Every
// group summary of the tenant is then posted to the chat.
func (t *Tracker) Login(ctx context.Context, chatID int64, accessKey string) (config.TenantConfig, error) {
	tc, ok := t.cfg.TenantByAccessKey(strings.TrimSpace(accessKey))
	if !ok {
		return config.TenantConfig{}, ErrInvalidAccessKey
	}
	tenant := ledger.TenantKey(tc.ID)

	err := t.registry.SaveAdminChat(ctx, &database.AdminChat{
		ChatID:    chatID,
		TenantKey: tc.ID,
		Active:    true,
		UpdatedAt: t.now().UTC(),
	})
	if err != nil {
		return config.TenantConfig{}, fmt.Errorf("failed to save admin chat: %w", err)
	}

	t.mu.Lock()
	if prev, ok := t.chats[chatID]; ok && prev != tenant {
		t.unbindChatLocked(chatID)
	}
	wasTracking := len(t.admins[tenant]) > 0
	t.bindChatLocked(tenant, chatID)
	t.mu.Unlock()

	if !wasTracking {
		if err := t.LoadTenant(ctx, tenant); err != nil {
			t.log.ErrorContext(ctx, "Failed to load tenant ledger", "tenant", tenant, "error", err)
		}
	}

	t.log.InfoContext(ctx, "Admin chat logged in", "chat_id", chatID, "tenant", tenant)
	t.PublishAll(ctx, tenant, chatID, true)
	return tc, nil
}

// Logout deactivates chatID. The tenant stops tracking when it was its last chat.
func (t *Tracker) Logout(ctx context.Context, chatID int64) error {
	chat, err := t.registry.GetAdminChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to get admin chat: %w", err)
	}
	if chat == nil || !chat.Active {
		return ErrNotLoggedIn
	}

	chat.Active = false
	chat.UpdatedAt = t.now().UTC()
	if err := t.registry.SaveAdminChat(ctx, chat); err != nil {
		return fmt.Errorf("failed to save admin chat: %w", err)
	}
	if err := t.registry.DeleteSummaryMessages(ctx, ledger.TenantKey(chat.TenantKey), chatID); err != nil {
		t.log.WarnContext(ctx, "Failed to delete summary messages", "chat_id", chatID, "error", err)
	}

	t.mu.Lock()
	t.unbindChatLocked(chatID)
	t.mu.Unlock()

	t.log.InfoContext(ctx, "Admin chat logged out", "chat_id", chatID, "tenant", chat.TenantKey)
	return nil
}

// TenantForChat returns the tenant an active admin chat is bound to.
func (t *Tracker) TenantForChat(chatID int64) (ledger.TenantKey, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tenant, ok := t.chats[chatID]
	return tenant, ok
}

// Tracking reports whether tenant has at least one active admin chat.
func (t *Tracker) Tracking(tenant ledger.TenantKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.admins[tenant]) > 0
}

// AddGroup registers groupID under tenant and posts its summary to the tenant's chats.
func (t *Tracker) AddGroup(ctx context.Context, tenant ledger.TenantKey, groupID int64, name string) error {
	err := t.registry.AddTenantGroup(ctx, &database.TenantGroup{
		TenantKey: string(tenant),
		GroupID:   groupID,
		GroupName: name,
		CreatedAt: t.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to add group: %w", err)
	}

	t.mu.Lock()
	t.indexGroupLocked(tenant, groupID, name)
	updates := t.summariesLocked(ctx, tenant, groupID, true)
	t.publishMu.Lock()
	t.mu.Unlock()
	t.publish(ctx, updates)
	t.publishMu.Unlock()

	t.log.InfoContext(ctx, "Group added", "tenant", tenant, "group_id", groupID, "name", name)
	return nil
}

// RemoveGroup unregisters groupID from tenant. It reports whether the group was registered.
func (t *Tracker) RemoveGroup(ctx context.Context, tenant ledger.TenantKey, groupID int64) (bool, error) {
	removed, err := t.registry.RemoveTenantGroup(ctx, tenant, groupID)
	if err != nil {
		return false, fmt.Errorf("failed to remove group: %w", err)
	}
	if !removed {
		return false, nil
	}

	t.mu.Lock()
	tenants := t.groups[groupID][:0]
	for _, tk := range t.groups[groupID] {
		if tk != tenant {
			tenants = append(tenants, tk)
		}
	}
	if len(tenants) == 0 {
		delete(t.groups, groupID)
	} else {
		t.groups[groupID] = tenants
	}
	delete(t.groupNames[tenant], groupID)
	t.mu.Unlock()

	t.log.InfoContext(ctx, "Group removed", "tenant", tenant, "group_id", groupID)
	return true, nil
}

// ListGroups returns the groups registered under tenant.
func (t *Tracker) ListGroups(ctx context.Context, tenant ledger.TenantKey) ([]database.TenantGroup, error) {
	groups, err := t.registry.ListTenantGroups(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

// SwitchView changes the view of the group summary in chatID and re-renders it.
func (t *Tracker) SwitchView(ctx context.Context, chatID, groupID int64, view report.View) error {
	t.mu.Lock()
	tenant, ok := t.chats[chatID]
	if !ok {
		t.mu.Unlock()
		return ErrNotLoggedIn
	}
	t.views[chatGroup{chatID: chatID, groupID: groupID}] = view
	update := SummaryUpdate{
		Tenant:  tenant,
		ChatID:  chatID,
		GroupID: groupID,
		View:    view,
		Text:    t.renderLocked(tenant, groupID, view),
	}
	t.publishMu.Lock()
	t.mu.Unlock()
	t.publish(ctx, []SummaryUpdate{update})
	t.publishMu.Unlock()
	return nil
}

// RecordTopicName stores the display name of a forum topic.
func (t *Tracker) RecordTopicName(groupID, topicID int64, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	t.mu.Lock()
	t.topicNames[ledger.Conversation{GroupID: groupID, TopicID: topicID}] = name
	t.mu.Unlock()
}

// LoadTenant replaces the in-memory partition of tenant with today's stored rows.
func (t *Tracker) LoadTenant(ctx context.Context, tenant ledger.TenantKey) error {
	day := t.today()
	rows, err := t.store.LoadIntervals(ctx, tenant, day)
	if err != nil {
		return fmt.Errorf("failed to load intervals of %s: %w", tenant, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.ledger.Load(tenant, storage.RecordsFromRows(tenant, rows, t.loc))
	for _, row := range rows {
		conv := ledger.Conversation{GroupID: row.GroupID, TopicID: row.TopicID}
		if row.GroupTitle != "" && t.titles[row.GroupID] == "" {
			t.titles[row.GroupID] = row.GroupTitle
		}
		if row.TopicName != "" && t.topicNames[conv] == "" {
			t.topicNames[conv] = row.TopicName
		}
		if row.LastPhone != "" {
			if _, ok := t.memory.Recall(row.GroupID, row.TopicID); !ok {
				t.memory.Remember(row.GroupID, row.TopicID, ledger.PhoneID(row.LastPhone))
			}
		}
	}
	metrics.SetOpenIntervals(string(tenant), t.ledger.OpenCount(tenant))
	t.log.InfoContext(ctx, "Tenant ledger loaded", "tenant", tenant, "day", storage.DayKey(day), "records", n)
	return nil
}

// Rollover starts a new day: every tenant's records are archived and reset,
// today's rows are reloaded and fresh summaries are posted.
func (t *Tracker) Rollover(ctx context.Context) error {
	t.mu.Lock()
	tenants := t.knownTenantsLocked()
	for _, tenant := range tenants {
		if recs := t.ledger.Reset(tenant); len(recs) > 0 {
			t.archiveLocked(ctx, tenant, recs)
		}
		t.flushLocked(ctx, tenant)
	}
	t.mu.Unlock()

	var errs []error
	for _, tenant := range tenants {
		if err := t.LoadTenant(ctx, tenant); err != nil {
			errs = append(errs, err)
		}
	}

	t.mu.Lock()
	var updates []SummaryUpdate
	for _, tenant := range t.trackingTenantsLocked() {
		for _, groupID := range t.tenantGroupsLocked(tenant) {
			updates = append(updates, t.summariesLocked(ctx, tenant, groupID, true)...)
		}
	}
	t.publishMu.Lock()
	t.mu.Unlock()
	t.publish(ctx, updates)
	t.publishMu.Unlock()

	t.log.InfoContext(ctx, "Daily rollover completed", "day", storage.DayKey(t.today()), "tenants", len(tenants))
	return errors.Join(errs...)
}

// PublishAll posts every group summary of tenant to chatID.
func (t *Tracker) PublishAll(ctx context.Context, tenant ledger.TenantKey, chatID int64, fresh bool) {
	t.mu.Lock()
	var updates []SummaryUpdate
	for _, groupID := range t.tenantGroupsLocked(tenant) {
		view := t.viewLocked(ctx, tenant, chatID, groupID)
		updates = append(updates, SummaryUpdate{
			Tenant:  tenant,
			ChatID:  chatID,
			GroupID: groupID,
			View:    view,
			Text:    t.renderLocked(tenant, groupID, view),
			Fresh:   fresh,
		})
	}
	t.publishMu.Lock()
	t.mu.Unlock()
	t.publish(ctx, updates)
	t.publishMu.Unlock()
}

// Render returns the current summary of one group for tenant.
func (t *Tracker) Render(tenant ledger.TenantKey, groupID int64, view report.View) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renderLocked(tenant, groupID, view)
}

// Records returns the current records of tenant.
func (t *Tracker) Records(tenant ledger.TenantKey) []ledger.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.Records(tenant)
}

func (t *Tracker) publish(ctx context.Context, updates []SummaryUpdate) {
	if t.notifier == nil {
		return
	}
	for _, u := range updates {
		if err := t.notifier.PublishSummary(ctx, u); err != nil {
			t.log.WarnContext(ctx, "Failed to publish summary", "tenant", u.Tenant, "chat_id", u.ChatID, "group_id", u.GroupID, "error", err)
		}
	}
}

func (t *Tracker) summariesLocked(ctx context.Context, tenant ledger.TenantKey, groupID int64, fresh bool) []SummaryUpdate {
	chatIDs := make([]int64, 0, len(t.admins[tenant]))
	for chatID := range t.admins[tenant] {
		chatIDs = append(chatIDs, chatID)
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })

	updates := make([]SummaryUpdate, 0, len(chatIDs))
	for _, chatID := range chatIDs {
		view := t.viewLocked(ctx, tenant, chatID, groupID)
		updates = append(updates, SummaryUpdate{
			Tenant:  tenant,
			ChatID:  chatID,
			GroupID: groupID,
			View:    view,
			Text:    t.renderLocked(tenant, groupID, view),
			Fresh:   fresh,
		})
	}
	return updates
}

func (t *Tracker) renderLocked(tenant ledger.TenantKey, groupID int64, view report.View) string {
	meta := report.GroupMeta{ID: groupID, Title: t.titleLocked(tenant, groupID), TopicNames: map[int64]string{}}
	for conv, name := range t.topicNames {
		if conv.GroupID == groupID {
			meta.TopicNames[conv.TopicID] = name
		}
	}
	return t.renderer.Render(view, meta, t.ledger.Scope(tenant, groupID))
}

func (t *Tracker) viewLocked(ctx context.Context, tenant ledger.TenantKey, chatID, groupID int64) report.View {
	key := chatGroup{chatID: chatID, groupID: groupID}
	if view, ok := t.views[key]; ok {
		return view
	}
	view := report.ViewGrouped
	msg, err := t.registry.GetSummaryMessage(ctx, tenant, chatID, groupID)
	if err != nil {
		t.log.WarnContext(ctx, "Failed to get summary message", "chat_id", chatID, "group_id", groupID, "error", err)
	} else if msg != nil {
		if v, ok := report.ParseView(msg.View); ok {
			view = v
		}
	}
	t.views[key] = view
	return view
}

func (t *Tracker) titleLocked(tenant ledger.TenantKey, groupID int64) string {
	if name := t.groupNames[tenant][groupID]; name != "" {
		return name
	}
	return t.titles[groupID]
}

func (t *Tracker) archiveLocked(ctx context.Context, tenant ledger.TenantKey, recs []ledger.Record) {
	rows := make([]storage.IntervalRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, storage.RowFromRecord(rec, t.metaLocked(tenant, rec.Key)))
	}
	if err := t.store.ArchiveIntervals(ctx, tenant, rows); err != nil {
		t.log.ErrorContext(ctx, "Failed to archive intervals", "tenant", tenant, "rows", len(rows), "error", err)
	}
}

func (t *Tracker) flushLocked(ctx context.Context, tenant ledger.TenantKey) {
	recs := t.ledger.Records(tenant)
	rows := make([]storage.IntervalRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, storage.RowFromRecord(rec, t.metaLocked(tenant, rec.Key)))
	}
	if err := t.store.SaveIntervals(ctx, tenant, rows); err != nil {
		t.log.ErrorContext(ctx, "Failed to flush tenant ledger", "tenant", tenant, "rows", len(rows), "error", err)
		metrics.IncFlush("error")
		return
	}
	metrics.IncFlush("ok")
	metrics.SetOpenIntervals(string(tenant), t.ledger.OpenCount(tenant))
}

func (t *Tracker) metaLocked(tenant ledger.TenantKey, key ledger.Key) storage.RowMeta {
	meta := storage.RowMeta{
		TopicName:  t.topicNames[key.Conversation()],
		GroupTitle: t.titleLocked(tenant, key.GroupID),
	}
	if phone, ok := t.memory.Recall(key.GroupID, key.TopicID); ok {
		meta.LastPhone = string(phone)
	}
	return meta
}

func (t *Tracker) recordTitle(groupID int64, title string) {
	if title == "" {
		return
	}
	t.mu.Lock()
	t.titles[groupID] = title
	t.mu.Unlock()
}

func (t *Tracker) trackingTenants(groupID int64) []ledger.TenantKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ledger.TenantKey
	for _, tenant := range t.groups[groupID] {
		if len(t.admins[tenant]) > 0 {
			out = append(out, tenant)
		}
	}
	return out
}

func (t *Tracker) trackingTenantsLocked() []ledger.TenantKey {
	var out []ledger.TenantKey
	for tenant, chats := range t.admins {
		if len(chats) > 0 {
			out = append(out, tenant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// knownTenantsLocked returns every configured tenant.
func (t *Tracker) knownTenantsLocked() []ledger.TenantKey {
	out := make([]ledger.TenantKey, 0, len(t.cfg.Tenants))
	for _, tc := range t.cfg.Tenants {
		out = append(out, ledger.TenantKey(tc.ID))
	}
	return out
}

func (t *Tracker) tenantGroupsLocked(tenant ledger.TenantKey) []int64 {
	var out []int64
	for groupID, tenants := range t.groups {
		for _, tk := range tenants {
			if tk == tenant {
				out = append(out, groupID)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Tracker) indexGroupLocked(tenant ledger.TenantKey, groupID int64, name string) {
	found := false
	for _, tk := range t.groups[groupID] {
		if tk == tenant {
			found = true
			break
		}
	}
	if !found {
		t.groups[groupID] = append(t.groups[groupID], tenant)
	}
	if t.groupNames[tenant] == nil {
		t.groupNames[tenant] = make(map[int64]string)
	}
	if name != "" {
		t.groupNames[tenant][groupID] = name
	}
}

func (t *Tracker) bindChatLocked(tenant ledger.TenantKey, chatID int64) {
	if t.admins[tenant] == nil {
		t.admins[tenant] = make(map[int64]struct{})
	}
	t.admins[tenant][chatID] = struct{}{}
	t.chats[chatID] = tenant
}

func (t *Tracker) unbindChatLocked(chatID int64) {
	tenant, ok := t.chats[chatID]
	if !ok {
		return
	}
	delete(t.chats, chatID)
	delete(t.admins[tenant], chatID)
	for key := range t.views {
		if key.chatID == chatID {
			delete(t.views, key)
		}
	}
}

func (t *Tracker) today() time.Time {
	return t.now().In(t.loc)
}
