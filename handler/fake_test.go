package handler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"outreach/config"
	"outreach/dep"
	"outreach/dispatch"
	"outreach/entity"
	"outreach/pkg/goutil"
	"outreach/pkg/unsubscribe"
	"outreach/repo"
)

type scriptedDispatcher struct {
	mu       sync.Mutex
	failures map[string]string
	calls    [][]*dep.Email
}

func (d *scriptedDispatcher) SendAll(_ context.Context, emails []*dep.Email) []*dep.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, emails)

	outcomes := make([]*dep.Outcome, len(emails))
	for i, email := range emails {
		if msg, ok := d.failures[email.To]; ok {
			outcomes[i] = &dep.Outcome{Email: email.To, Error: msg, Timestamp: 10}
			continue
		}
		outcomes[i] = &dep.Outcome{Email: email.To, Success: true, MessageID: "<" + email.To + ">", Timestamp: 10}
	}
	return outcomes
}

func (d *scriptedDispatcher) lastCall() []*dep.Email {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.calls) == 0 {
		return nil
	}
	return d.calls[len(d.calls)-1]
}

type stubEmailService struct {
	connErr error
}

func (s *stubEmailService) SendEmail(_ context.Context, email *dep.Email) *dep.Outcome {
	return &dep.Outcome{Email: email.To, Success: true}
}

func (s *stubEmailService) TestConnection(_ context.Context) error {
	return s.connErr
}

func (s *stubEmailService) Close(_ context.Context) error {
	return nil
}

type fakeTemplateRepo struct {
	mu        sync.Mutex
	templates map[uint64]*entity.Template
	usage     map[uint64]uint64
	nextID    uint64
}

func newFakeTemplateRepo(templates ...*entity.Template) *fakeTemplateRepo {
	r := &fakeTemplateRepo{
		templates: make(map[uint64]*entity.Template),
		usage:     make(map[uint64]uint64),
		nextID:    100,
	}
	for _, t := range templates {
		r.templates[t.GetID()] = t
	}
	return r
}

func (r *fakeTemplateRepo) Create(_ context.Context, template *entity.Template) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	template.ID = goutil.Uint64(id)
	r.templates[id] = template
	return id, nil
}

func (r *fakeTemplateRepo) GetByID(_ context.Context, id uint64) (*entity.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.templates[id]; ok {
		return t, nil
	}
	return nil, repo.ErrTemplateNotFound
}

func (r *fakeTemplateRepo) GetActiveByType(_ context.Context, templateType entity.TemplateType) (*entity.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.templates {
		if t.Type == templateType && t.GetIsActive() {
			return t, nil
		}
	}
	return nil, repo.ErrTemplateNotFound
}

func (r *fakeTemplateRepo) GetMany(_ context.Context, f *entity.TemplateFilter, _ *repo.Pagination) ([]*entity.Template, *repo.Pagination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	templates := make([]*entity.Template, 0)
	for _, t := range r.templates {
		if f.Type != nil && t.Type != *f.Type {
			continue
		}
		templates = append(templates, t)
	}
	return templates, &repo.Pagination{Total: goutil.Uint32(uint32(len(templates)))}, nil
}

func (r *fakeTemplateRepo) IncrUsageCount(_ context.Context, id uint64, delta uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.usage[id] += delta
	return nil
}

func (r *fakeTemplateRepo) usageOf(id uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.usage[id]
}

type fakeContactRepo struct {
	mu           sync.Mutex
	contacts     []*entity.Contact
	lookupErr    error
	unsubscribed []uint64
}

func (r *fakeContactRepo) Create(_ context.Context, contact *entity.Contact) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uint64(len(r.contacts) + 1)
	contact.ID = goutil.Uint64(id)
	r.contacts = append(r.contacts, contact)
	return id, nil
}

func (r *fakeContactRepo) GetByID(_ context.Context, id uint64) (*entity.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.contacts {
		if c.GetID() == id {
			return c, nil
		}
	}
	return nil, repo.ErrContactNotFound
}

func (r *fakeContactRepo) GetByEmail(_ context.Context, email string) (*entity.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	for _, c := range r.contacts {
		if c.GetEmail() == strings.ToLower(email) {
			return c, nil
		}
	}
	return nil, repo.ErrContactNotFound
}

func (r *fakeContactRepo) GetSubscribed(_ context.Context, f *entity.ContactFilter) ([]*entity.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contacts := make([]*entity.Contact, 0)
	for _, c := range r.contacts {
		if !c.GetSubscribed() {
			continue
		}
		if f.Department != nil && c.GetDepartment() != *f.Department {
			continue
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

func (r *fakeContactRepo) Unsubscribe(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.contacts {
		if c.GetID() == id {
			c.Subscribed = goutil.Bool(false)
			r.unsubscribed = append(r.unsubscribed, id)
			return nil
		}
	}
	return repo.ErrContactNotFound
}

type fakeEmailLogRepo struct {
	mu     sync.Mutex
	logs   map[uint64]*entity.EmailLog
	nextID uint64
	since  uint64

	topTemplates []*entity.TemplateStats
}

func newFakeEmailLogRepo() *fakeEmailLogRepo {
	return &fakeEmailLogRepo{logs: make(map[uint64]*entity.EmailLog), nextID: 1}
}

func (r *fakeEmailLogRepo) Create(_ context.Context, emailLog *entity.EmailLog) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	emailLog.ID = goutil.Uint64(id)
	emailLog.Version = goutil.Uint64(1)
	r.logs[id] = emailLog
	return id, nil
}

func (r *fakeEmailLogRepo) GetByID(_ context.Context, id uint64) (*entity.EmailLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if emailLog, ok := r.logs[id]; ok {
		return emailLog, nil
	}
	return nil, repo.ErrEmailLogNotFound
}

func (r *fakeEmailLogRepo) GetMany(_ context.Context, f *entity.EmailLogFilter, _ *repo.Pagination) ([]*entity.EmailLog, *repo.Pagination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	emailLogs := make([]*entity.EmailLog, 0)
	for _, emailLog := range r.logs {
		if f.Campaign != nil && emailLog.GetCampaign() != *f.Campaign {
			continue
		}
		emailLogs = append(emailLogs, emailLog)
	}
	return emailLogs, &repo.Pagination{Total: goutil.Uint32(uint32(len(emailLogs)))}, nil
}

func (r *fakeEmailLogRepo) SaveRecipients(_ context.Context, emailLog *entity.EmailLog, _ []*entity.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	emailLog.Version = goutil.Uint64(emailLog.GetVersion() + 1)
	return nil
}

func (r *fakeEmailLogRepo) GetStats(_ context.Context, since uint64) (*entity.EmailStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.since = since
	topTemplates := make([]*entity.TemplateStats, len(r.topTemplates))
	for i, ts := range r.topTemplates {
		cp := *ts
		topTemplates[i] = &cp
	}
	return &entity.EmailStats{
		Overview:     &entity.StatsOverview{TotalEmails: uint64(len(r.logs))},
		TopTemplates: topTemplates,
	}, nil
}

func (r *fakeEmailLogRepo) only(t *testing.T) *entity.EmailLog {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	require.Len(t, r.logs, 1)
	for _, emailLog := range r.logs {
		return emailLog
	}
	return nil
}

var testOperator = &entity.Operator{
	ID:     goutil.Uint64(7),
	Status: entity.OperatorStatusNormal,
}

func operatorContext() ContextInfo {
	return ContextInfo{Operator: testOperator}
}

type handlerFixture struct {
	dispatcher     *scriptedDispatcher
	emailService   *stubEmailService
	templateRepo   *fakeTemplateRepo
	contactRepo    *fakeContactRepo
	emailLogRepo   *fakeEmailLogRepo
	footerInjector *dispatch.FooterInjector
	signer         *unsubscribe.Signer
	reconciler     dispatch.Reconciler
}

func newHandlerFixture(t *testing.T, templates ...*entity.Template) *handlerFixture {
	t.Helper()

	signer, err := unsubscribe.NewSigner("handler-secret", time.Hour)
	require.NoError(t, err)

	f := &handlerFixture{
		dispatcher:   &scriptedDispatcher{failures: make(map[string]string)},
		emailService: new(stubEmailService),
		templateRepo: newFakeTemplateRepo(templates...),
		contactRepo:  new(fakeContactRepo),
		emailLogRepo: newFakeEmailLogRepo(),
		signer:       signer,
		footerInjector: dispatch.NewFooterInjector(signer,
			config.WebPages{FrontendURL: "https://ecell.example.com"},
			config.Footer{OrgName: "E-Cell", OrgAddress: "Thane"},
		),
	}
	f.reconciler = dispatch.NewReconciler(f.emailLogRepo, f.contactRepo, repo.NewMemLockRepo(context.Background()),
		f.dispatcher, f.footerInjector, time.Minute)

	return f
}

func (f *handlerFixture) emailHandler() *emailHandler {
	return NewEmailHandler(f.emailService, f.dispatcher, f.reconciler, f.footerInjector,
		f.emailLogRepo, f.templateRepo, f.contactRepo).(*emailHandler)
}

func (f *handlerFixture) addContact(t *testing.T, email, firstName, lastName, department string) *entity.Contact {
	t.Helper()

	contact := entity.NewContact(email, firstName, lastName, department, "", "manual")
	_, err := f.contactRepo.Create(context.Background(), contact)
	require.NoError(t, err)
	return contact
}

func newWelcomeTemplate(id uint64) *entity.Template {
	t := entity.NewTemplate(1, "welcome", "Welcome {{firstName}}", "<p>Hi {{fullName}}, see {{site}}</p>",
		"Hi {{fullName}}", entity.TemplateTypeWelcome, []*entity.Placeholder{
			{Key: goutil.String("site"), DefaultValue: goutil.String("https://ecell.example.com")},
		})
	t.ID = goutil.Uint64(id)
	return t
}

func newEventTemplate(id uint64) *entity.Template {
	t := entity.NewTemplate(1, "event", "Hi {{firstName}}", "<p>Hi {{firstName}}, your dept is {{department}}</p>",
		"", entity.TemplateTypeEvent, []*entity.Placeholder{
			{Key: goutil.String("department"), DefaultValue: goutil.String("all departments")},
		})
	t.ID = goutil.Uint64(id)
	return t
}
