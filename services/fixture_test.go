package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/citizenvoice/citizenvoice-api/api/testhelpers"
	"github.com/citizenvoice/citizenvoice-api/config"
	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
)

type pushed struct {
	user    string
	payload interface{}
}

type fakePusher struct {
	mu   sync.Mutex
	sent []pushed
}

func (p *fakePusher) Push(userID string, payload interface{}) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, pushed{userID, payload})
	return true
}

type sentMail struct {
	to, subject string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, _, toEmail, subject, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{toEmail, subject})
	return nil
}

type fixture struct {
	store     *testhelpers.Store
	pusher    *fakePusher
	mailer    *fakeMailer
	notifier  *services.NotificationService
	issues    *services.IssueService
	review    *services.ReviewService
	rep       *services.ReputationService
	community *services.CommunityService
	tasks     *services.TaskService
	auth      *services.AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testhelpers.NewStore()
	pusher := &fakePusher{}
	mailer := &fakeMailer{}
	notifier := services.NewNotificationService(store.Notifications(), pusher)
	return &fixture{
		store:    store,
		pusher:   pusher,
		mailer:   mailer,
		notifier: notifier,
		issues: &services.IssueService{
			Issues:        store.Issues(),
			Users:         store.Users(),
			Communities:   store.Communities(),
			Events:        store.Events(),
			Verifications: store.Verifications(),
			Tx:            store,
			Notifier:      notifier,
		},
		review: &services.ReviewService{
			Reports:     store.Reports(),
			Issues:      store.Issues(),
			Events:      store.Events(),
			Communities: store.Communities(),
			Users:       store.Users(),
			Tx:          store,
			Notifier:    notifier,
			Mailer:      mailer,
			ClientURL:   "http://localhost:3000",
		},
		rep:       services.NewReputationService(store.Events(), store.Users()),
		community: services.NewCommunityService(store.Communities(), store.Users(), pusher),
		tasks: &services.TaskService{
			WorkOrders:       store.WorkOrders(),
			Inspections:      store.Inspections(),
			ResourceRequests: store.ResourceRequests(),
			Issues:           store.Issues(),
			Users:            store.Users(),
			Notifier:         notifier,
		},
		auth: services.NewAuthService(store.Users(), config.AuthConfig{
			JWTSecret:   "test-secret",
			TokenTTL:    time.Hour,
			AdminEmails: []string{"chief@city.gov"},
		}),
	}
}

func (f *fixture) user(t *testing.T, name string, role models.UserRole) models.User {
	t.Helper()
	u := models.User{
		ID:    primitive.NewObjectID(),
		Name:  name,
		Email: name + "@example.com",
		Role:  role,
	}
	require.NoError(t, f.store.Users().Insert(context.Background(), u))
	return u
}

func (f *fixture) issue(t *testing.T, reporter primitive.ObjectID, status models.IssueStatus, priority models.Priority) models.Issue {
	t.Helper()
	at := time.Now().UTC().Truncate(time.Millisecond)
	is := models.Issue{
		ID:          primitive.NewObjectID(),
		Title:       "Deep pothole on Main St",
		Description: "Big enough to swallow a tyre",
		Category:    models.CategoryPothole,
		Priority:    priority,
		Status:      status,
		Location:    models.Location{Address: "Main St", Lat: 18.52, Lng: 73.85, State: "Maharashtra", District: "Pune"},
		DistrictID:  "MAH-PUNE",
		ReportedBy:  reporter,
		Images:      []string{},
		Upvotes:     []primitive.ObjectID{},
		Comments:    []models.Comment{},
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	require.NoError(t, f.store.Issues().Insert(context.Background(), is))
	return is
}

func (f *fixture) currentIssue(t *testing.T, id primitive.ObjectID) models.Issue {
	t.Helper()
	is, err := f.store.Issues().FindByID(context.Background(), id)
	require.NoError(t, err)
	return *is
}

func (f *fixture) currentReport(t *testing.T, id primitive.ObjectID) models.Report {
	t.Helper()
	r, err := f.store.Reports().FindByID(context.Background(), id)
	require.NoError(t, err)
	return *r
}

func float(v float64) *float64 { return &v }
