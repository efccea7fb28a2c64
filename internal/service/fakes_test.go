package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"autoleads/internal/gateway"
	"autoleads/internal/lock"
	"autoleads/internal/models"
	"autoleads/internal/repository"
)

var (
	testOrgID   = 1
	testUserID  = uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000001")
	testUser2ID = uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000002")
	testActor   = Actor{UserID: testUserID, Role: "admin", OrganizationID: testOrgID}
)

// memStore is an in-memory backing store shared by the fake repositories
type memStore struct {
	mu sync.Mutex

	nextID    int
	nextLogID int64
	campaigns map[int]*models.Campaign
	leads     map[int][]*models.CampaignLead
	logs      []*models.CampaignLog
	threads   map[string]*models.Thread
	messages  []*models.Message
	orgs      map[int]*models.Organization
	profiles  []*models.Profile
	leases    map[int]string

	statusCalls int
	onGetStatus func(campaignID, call int)

	createMessageErr error
	findPhonesErr    error
	createErr        error
}

func newMemStore() *memStore {
	return &memStore{
		nextID:    100,
		campaigns: map[int]*models.Campaign{},
		leads:     map[int][]*models.CampaignLead{},
		threads:   map[string]*models.Thread{},
		orgs: map[int]*models.Organization{
			1: {ID: 1, Name: "Northside Motors", SMSAPIKey: "demo-api-key", SMSFromNumber: "+15875550100"},
			2: {ID: 2, Name: "No Gateway Autos"},
		},
		profiles: []*models.Profile{
			{ID: testUserID, OrganizationID: 1, FullName: "Alex Admin", Role: "admin", IsActive: true},
			{ID: testUser2ID, OrganizationID: 1, FullName: "Sam Sales", Role: "member", IsActive: true},
		},
		leases: map[int]string{},
	}
}

func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

// seedCampaign stores a campaign with one pending lead per phone
func (s *memStore) seedCampaign(c models.Campaign, phones ...string) *models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.id()
	c.TotalLeads = len(phones)
	if c.OrganizationID == 0 {
		c.OrganizationID = testOrgID
	}
	s.campaigns[c.ID] = &c
	for i, p := range phones {
		s.leads[c.ID] = append(s.leads[c.ID], &models.CampaignLead{
			ID:          s.id(),
			CampaignID:  c.ID,
			LeadOrder:   i,
			PhoneNumber: p,
			Name:        fmt.Sprintf("Lead %d", i+1),
			AssignedTo:  testUserID,
			Status:      models.LeadStatusPending,
		})
	}
	out := c
	return &out
}

func (s *memStore) campaign(id int) models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaigns[id]
}

func (s *memStore) setStatus(id int, status models.CampaignStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[id].Status = status
}

func (s *memStore) leadStatuses(campaignID int) []models.LeadStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.LeadStatus{}
	for _, l := range s.leads[campaignID] {
		out = append(out, l.Status)
	}
	return out
}

func (s *memStore) campaignLogs(campaignID int) []*models.CampaignLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.CampaignLog{}
	for _, l := range s.logs {
		if l.CampaignID == campaignID {
			out = append(out, l)
		}
	}
	return out
}

// fakeCampaignRepo implements repository.CampaignRepository
type fakeCampaignRepo struct{ s *memStore }

func (r fakeCampaignRepo) CreateWithLeads(_ context.Context, c *models.Campaign, leads []*models.CampaignLead) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}

	c.ID = s.id()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	stored := *c
	s.campaigns[c.ID] = &stored
	for _, l := range leads {
		l.ID = s.id()
		l.CampaignID = c.ID
		copied := *l
		s.leads[c.ID] = append(s.leads[c.ID], &copied)
	}
	return nil
}

func (r fakeCampaignRepo) GetByID(_ context.Context, id int) (*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %d: %w", id, repository.ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (r fakeCampaignRepo) GetWithStats(ctx context.Context, id int) (*models.CampaignWithStats, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := models.CampaignStats{}
	for _, l := range r.s.leads[id] {
		stats.Total++
		switch l.Status {
		case models.LeadStatusPending:
			stats.Pending++
		case models.LeadStatusSent:
			stats.Sent++
		case models.LeadStatusFailed:
			stats.Failed++
		case models.LeadStatusSkipped:
			stats.Skipped++
		}
	}
	return &models.CampaignWithStats{Campaign: *c, Stats: stats}, nil
}

func (r fakeCampaignRepo) GetStatus(_ context.Context, id int) (models.CampaignStatus, error) {
	r.s.mu.Lock()
	r.s.statusCalls++
	call := r.s.statusCalls
	hook := r.s.onGetStatus
	r.s.mu.Unlock()

	if hook != nil {
		hook(id, call)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return "", fmt.Errorf("campaign %d: %w", id, repository.ErrNotFound)
	}
	return c.Status, nil
}

func (r fakeCampaignRepo) List(_ context.Context, f repository.CampaignFilters) ([]*models.Campaign, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Campaign{}
	for _, c := range r.s.campaigns {
		if c.OrganizationID != f.OrganizationID || (f.Status != nil && c.Status != *f.Status) {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (r fakeCampaignRepo) TransitionStatus(_ context.Context, id int, from []models.CampaignStatus, to models.CampaignStatus) (*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %d: %w", id, repository.ErrNotFound)
	}
	allowed := false
	for _, f := range from {
		if c.Status == f {
			allowed = true
		}
	}
	if !allowed {
		return nil, fmt.Errorf("campaign %d: %w", id, repository.ErrStatusConflict)
	}

	now := time.Now()
	c.Status = to
	if to == models.CampaignStatusRunning && c.StartedAt == nil {
		c.StartedAt = &now
	}
	if to.IsTerminal() {
		c.CompletedAt = &now
	}
	out := *c
	return &out, nil
}

func (r fakeCampaignRepo) increment(id int, next int, sent bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	if sent {
		c.SentCount++
	} else {
		c.FailedCount++
	}
	if next > c.CurrentLeadIndex {
		c.CurrentLeadIndex = next
	}
	return nil
}

func (r fakeCampaignRepo) IncrementSent(_ context.Context, id int, next int) error {
	return r.increment(id, next, true)
}

func (r fakeCampaignRepo) IncrementFailed(_ context.Context, id int, next int) error {
	return r.increment(id, next, false)
}

func (r fakeCampaignRepo) ListUnleasedRunning(_ context.Context) ([]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := []int{}
	for id, c := range r.s.campaigns {
		if _, leased := r.s.leases[id]; c.Status == models.CampaignStatusRunning && !leased {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (r fakeCampaignRepo) AcquireLease(_ context.Context, id int, owner string, _ time.Duration) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if holder, ok := r.s.leases[id]; ok && holder != owner {
		return false, nil
	}
	r.s.leases[id] = owner
	return true, nil
}

func (r fakeCampaignRepo) RenewLease(_ context.Context, id int, owner string, _ time.Duration) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.leases[id] == owner, nil
}

func (r fakeCampaignRepo) ReleaseLease(_ context.Context, id int, owner string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.leases[id] == owner {
		delete(r.s.leases, id)
	}
	return nil
}

// fakeLeadRepo implements repository.LeadRepository
type fakeLeadRepo struct{ s *memStore }

func (r fakeLeadRepo) ListPending(_ context.Context, campaignID int) ([]*models.CampaignLead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.CampaignLead{}
	for _, l := range r.s.leads[campaignID] {
		if l.Status == models.LeadStatusPending {
			copied := *l
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeadOrder < out[j].LeadOrder })
	return out, nil
}

func (r fakeLeadRepo) ListByCampaign(_ context.Context, campaignID int, limit, offset int) ([]*models.CampaignLead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.CampaignLead{}
	for _, l := range r.s.leads[campaignID] {
		copied := *l
		out = append(out, &copied)
	}
	return out, nil
}

func (r fakeLeadRepo) find(id int) *models.CampaignLead {
	for _, leads := range r.s.leads {
		for _, l := range leads {
			if l.ID == id {
				return l
			}
		}
	}
	return nil
}

func (r fakeLeadRepo) MarkSent(_ context.Context, id int, messageID *int, sentAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l := r.find(id)
	if l == nil || (l.Status != models.LeadStatusPending && l.Status != models.LeadStatusSkipped) {
		return repository.ErrLeadNotPending
	}
	l.Status = models.LeadStatusSent
	l.SentAt = &sentAt
	l.MessageID = messageID
	return nil
}

func (r fakeLeadRepo) MarkFailed(_ context.Context, id int, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l := r.find(id)
	if l == nil || l.Status != models.LeadStatusPending {
		return repository.ErrLeadNotPending
	}
	l.Status = models.LeadStatusFailed
	l.ErrorMessage = &reason
	return nil
}

func (r fakeLeadRepo) SkipPending(_ context.Context, campaignID int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, l := range r.s.leads[campaignID] {
		if l.Status == models.LeadStatusPending {
			l.Status = models.LeadStatusSkipped
			n++
		}
	}
	return n, nil
}

// fakeLogRepo implements repository.LogRepository
type fakeLogRepo struct{ s *memStore }

func (r fakeLogRepo) Append(_ context.Context, entry *models.CampaignLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextLogID++
	entry.ID = r.s.nextLogID
	entry.CreatedAt = time.Now()
	copied := *entry
	r.s.logs = append(r.s.logs, &copied)
	return nil
}

func (r fakeLogRepo) ListAfter(_ context.Context, campaignID int, afterID int64, since *time.Time, limit int) ([]*models.CampaignLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.CampaignLog{}
	for _, l := range r.s.logs {
		if l.CampaignID != campaignID || l.ID <= afterID || (since != nil && !l.CreatedAt.After(*since)) {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// fakeThreadRepo implements repository.ThreadRepository
type fakeThreadRepo struct{ s *memStore }

func (r fakeThreadRepo) upsert(t *models.Thread, inbound bool) bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.threads[t.ID]
	if !ok {
		stored := *t
		stored.Metadata = models.Metadata{}.Merge(t.Metadata)
		if inbound {
			stored.UnreadCount = 1
		}
		stored.CreatedAt = time.Now()
		stored.UpdatedAt = stored.CreatedAt
		r.s.threads[t.ID] = &stored
		*t = stored
		return true
	}

	if existing.ContactName == "" {
		existing.ContactName = t.ContactName
	}
	existing.LastMessageAt = t.LastMessageAt
	existing.LastMessagePreview = t.LastMessagePreview
	if inbound {
		existing.UnreadCount++
	}
	if existing.AssignedTo == nil {
		existing.AssignedTo = t.AssignedTo
	}
	patch := models.Metadata{}.Merge(t.Metadata)
	delete(patch, "initiated_at")
	existing.Metadata = existing.Metadata.Merge(patch)
	existing.UpdatedAt = time.Now()
	*t = *existing
	return false
}

func (r fakeThreadRepo) UpsertOutbound(_ context.Context, t *models.Thread) (bool, error) {
	return r.upsert(t, false), nil
}

func (r fakeThreadRepo) UpsertInbound(_ context.Context, t *models.Thread) (bool, error) {
	return r.upsert(t, true), nil
}

func (r fakeThreadRepo) GetByID(_ context.Context, id string) (*models.Thread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", id, repository.ErrNotFound)
	}
	out := *t
	return &out, nil
}

func (r fakeThreadRepo) FindByPhones(_ context.Context, phones []string) ([]*models.Thread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.findPhonesErr != nil {
		return nil, r.s.findPhonesErr
	}
	out := []*models.Thread{}
	for _, t := range r.s.threads {
		for _, p := range phones {
			if t.ID == p || t.ContactPhone == p {
				copied := *t
				out = append(out, &copied)
				break
			}
		}
	}
	return out, nil
}

func (r fakeThreadRepo) MarkRead(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.threads[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.UnreadCount = 0
	return nil
}

// fakeMessageRepo implements repository.MessageRepository
type fakeMessageRepo struct{ s *memStore }

func (r fakeMessageRepo) Create(_ context.Context, m *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createMessageErr != nil {
		return r.s.createMessageErr
	}
	m.ID = r.s.id()
	m.CreatedAt = time.Now()
	copied := *m
	r.s.messages = append(r.s.messages, &copied)
	return nil
}

func (r fakeMessageRepo) UpdateStatusByExternalID(_ context.Context, externalID string, status models.MessageStatus) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.messages {
		if m.ExternalID != nil && *m.ExternalID == externalID && m.Status == models.MessageStatusPending {
			m.Status = status
			n++
		}
	}
	return n, nil
}

func (r fakeMessageRepo) ListByThread(_ context.Context, threadID string, limit int) ([]*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Message{}
	for _, m := range r.s.messages {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out, nil
}

// fakeOrgRepo implements repository.OrganizationRepository
type fakeOrgRepo struct{ s *memStore }

func (r fakeOrgRepo) GetByID(_ context.Context, id int) (*models.Organization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orgs[id]
	if !ok {
		return nil, fmt.Errorf("organization %d: %w", id, repository.ErrNotFound)
	}
	out := *o
	return &out, nil
}

func (r fakeOrgRepo) GetProfile(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.profiles {
		if p.ID == id {
			out := *p
			return &out, nil
		}
	}
	return nil, fmt.Errorf("profile %s: %w", id, repository.ErrNotFound)
}

func (r fakeOrgRepo) ListActiveProfiles(_ context.Context, orgID int) ([]*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Profile{}
	for _, p := range r.s.profiles {
		if p.OrganizationID == orgID && p.IsActive {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

// fakeSender records requests and answers with SendFunc
type fakeSender struct {
	mu       sync.Mutex
	requests []gateway.Request
	SendFunc func(n int, req gateway.Request) (*gateway.Result, error)
}

func (f *fakeSender) Send(_ context.Context, req gateway.Request) (*gateway.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	fn := f.SendFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(n, req)
	}
	return &gateway.Result{ID: fmt.Sprintf("gw-%d", n), Status: gateway.StatusSuccess}, nil
}

func (f *fakeSender) sent() []gateway.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.Request(nil), f.requests...)
}

// fakeResolver hands every organization with credentials the same sender
type fakeResolver struct{ sender gateway.Sender }

func (r fakeResolver) For(org *models.Organization) (gateway.Sender, error) {
	if !org.HasGatewayCredentials() {
		return nil, gateway.ErrMissingCredentials
	}
	return r.sender, nil
}

// fakePublisher records published run jobs
type fakePublisher struct {
	mu        sync.Mutex
	published []int
	err       error
}

func (p *fakePublisher) PublishRun(_ context.Context, campaignID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, campaignID)
	return nil
}

// testEnv wires services over one memStore
type testEnv struct {
	store      *memStore
	sender     *fakeSender
	publisher  *fakePublisher
	templates  *TemplateService
	logs       *LogSink
	leads      *LeadService
	threads    *ThreadService
	campaigns  *CampaignService
	dispatcher *Dispatcher
	sleeps     []time.Duration
}

func newTestEnv() *testEnv {
	store := newMemStore()
	env := &testEnv{
		store:     store,
		sender:    &fakeSender{},
		publisher: &fakePublisher{},
		templates: NewTemplateService(),
	}
	campaignRepo := fakeCampaignRepo{store}

	env.logs = NewLogSink(fakeLogRepo{store})
	env.leads = NewLeadService(fakeThreadRepo{store})
	env.threads = NewThreadService(fakeThreadRepo{store}, fakeMessageRepo{store})
	env.campaigns = NewCampaignService(campaignRepo, fakeLeadRepo{store}, fakeOrgRepo{store},
		env.leads, env.templates, env.logs, nil, env.publisher, 65)
	env.dispatcher = NewDispatcher(DispatcherDeps{
		Campaigns: campaignRepo,
		Leads:     fakeLeadRepo{store},
		Orgs:      fakeOrgRepo{store},
		Gateways:  fakeResolver{sender: env.sender},
		Threads:   env.threads,
		Templates: env.templates,
		Logs:      env.logs,
		Locker:    lock.NewPostgresLocker(campaignRepo, "test-worker", 5*time.Minute),
	})
	env.dispatcher.sleep = func(ctx context.Context, d time.Duration) error {
		env.sleeps = append(env.sleeps, d)
		return ctx.Err()
	}
	return env
}

var errGateway = errors.New("gateway unavailable")
