package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/api"
	"github.com/citizenvoice/citizenvoice-api/api/scheduler"
	"github.com/citizenvoice/citizenvoice-api/clients"
	"github.com/citizenvoice/citizenvoice-api/config"
	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
)

// App stores the router and its collaborators, so it can be reused.
// Unset collaborators are built from Config by New.
type App struct {
	Router *mux.Router
	Config config.Config
	Stores databases.Stores

	Counter   api.Counter
	Hub       *NotificationHub
	Metrics   func() *api.MetricsCollector
	Predictor services.Predictor
	TextGen   services.TextGenerator
	Geocoder  services.Geocoder
	Mailer    services.Mailer

	client    databases.ClientHelper
	scheduler *scheduler.Scheduler
}

func (a *App) defaults() {
	if a.Hub == nil {
		a.Hub = NewNotificationHub()
	}
	if a.Metrics == nil {
		a.Metrics = api.GetMetrics
	}
	if a.Predictor == nil {
		a.Predictor = clients.NewMLClient(a.Config.ML)
	}
	if a.TextGen == nil {
		a.TextGen = clients.NewTextGenClient(a.Config.TextGen)
	}
	if a.Geocoder == nil {
		a.Geocoder = clients.NewGeocodeClient(a.Config.Geocoding)
	}
	if a.Mailer == nil {
		a.Mailer = services.NewMailer(a.Config.SendGrid)
	}
}

// chain wraps h in mws, the first one outermost
func chain(h http.HandlerFunc, mws ...func(http.Handler) http.Handler) http.Handler {
	var out http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	a.defaults()
	s := a.Stores

	authService := services.NewAuthService(s.Users, a.Config.Auth)
	authn := api.NewAuthenticator(context.Background(), authService)
	notifier := services.NewNotificationService(s.Notifications, a.Hub)

	issueService := &services.IssueService{
		Issues:        s.Issues,
		Users:         s.Users,
		Communities:   s.Communities,
		Events:        s.Events,
		Verifications: s.Verifications,
		Tx:            s.Tx,
		Notifier:      notifier,
		Geocoder:      a.Geocoder,
	}
	reviewService := &services.ReviewService{
		Reports:     s.Reports,
		Issues:      s.Issues,
		Events:      s.Events,
		Communities: s.Communities,
		Users:       s.Users,
		Tx:          s.Tx,
		Notifier:    notifier,
		Mailer:      a.Mailer,
		ClientURL:   a.Config.SendGrid.ClientURL,
	}
	taskService := &services.TaskService{
		WorkOrders:       s.WorkOrders,
		Inspections:      s.Inspections,
		ResourceRequests: s.ResourceRequests,
		Issues:           s.Issues,
		Users:            s.Users,
		Notifier:         notifier,
	}

	au := Auth{Service: authService, Login: authn}
	is := Issue{Service: issueService}
	rp := Report{Service: reviewService}
	t := Task{Service: taskService}
	c := Community{Service: services.NewCommunityService(s.Communities, s.Users, a.Hub)}
	rep := Reputation{Service: services.NewReputationService(s.Events, s.Users)}
	cls := Classification{Service: services.NewClassificationService(a.Predictor, a.TextGen)}
	n := Notification{Service: notifier, Hub: a.Hub}
	cld := Cloudinary{Config: a.Config.Cloudinary}
	m := Metrics{Collector: a.Metrics}

	timeout := a.Config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	withTimeout := api.TimeoutMiddleware(timeout)
	issueLimit := api.RateLimit(a.Counter, "ratelimit:issues", a.Config.Redis.IssueLimit, a.Config.Redis.IssueWindow)

	// any signed in user
	user := func(h http.HandlerFunc) http.Handler {
		return chain(h, withTimeout, authn.Middleware)
	}
	official := func(h http.HandlerFunc) http.Handler {
		return chain(h, withTimeout, authn.Middleware, api.RequireOfficial)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return chain(h, withTimeout, authn.Middleware, api.RequireAdmin)
	}

	r := mux.NewRouter()
	r.Use(api.RequestLogger, api.MetricsMiddleware(a.Metrics))

	// healthchex
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/auth/register", chain(au.RegisterHandler, withTimeout)).Methods("POST")
	apiCreate.Handle("/auth/token", chain(au.CreateTokenHandler, withTimeout)).Methods("POST")
	apiCreate.Handle("/users/me", user(au.MeHandler)).Methods("GET")

	apiCreate.Handle("/issues", chain(is.CreateIssueHandler, withTimeout, authn.Middleware, api.RequireResident, issueLimit)).Methods("POST")
	apiCreate.Handle("/issues", user(is.ListIssuesHandler)).Methods("GET")
	apiCreate.Handle("/issues/mine", user(is.MyIssuesHandler)).Methods("GET")
	apiCreate.Handle("/issues/nearby", user(is.NearbyIssuesHandler)).Methods("GET")
	apiCreate.Handle("/issues/{id}", user(is.IssueByIDHandler)).Methods("GET")
	apiCreate.Handle("/issues/{id}/upvote", user(is.UpvoteHandler)).Methods("POST")
	apiCreate.Handle("/issues/{id}/comments", user(is.CommentHandler)).Methods("POST")
	apiCreate.Handle("/issues/{id}/verifications", user(is.VerificationHandler)).Methods("POST")
	apiCreate.Handle("/issues/{id}/reports", official(rp.SubmitReportHandler)).Methods("POST")
	apiCreate.Handle("/issues/{id}/reports", official(rp.IssueReportsHandler)).Methods("GET")

	apiCreate.Handle("/officials/issues/{id}/assign", admin(is.AssignHandler)).Methods("POST")
	apiCreate.Handle("/officials/issues/{id}/reject", admin(is.RejectHandler)).Methods("POST")
	apiCreate.Handle("/officials/issues/{id}/flag-fake", admin(is.FlagFakeHandler)).Methods("POST")
	apiCreate.Handle("/officials/reports/pending", admin(rp.PendingReportsHandler)).Methods("GET")
	apiCreate.Handle("/officials/reports/{id}", official(rp.ReportByIDHandler)).Methods("GET")
	apiCreate.Handle("/officials/reports/{id}/review", admin(rp.ReviewReportHandler)).Methods("POST")

	apiCreate.Handle("/workorders", official(t.CreateWorkOrderHandler)).Methods("POST")
	apiCreate.Handle("/workorders", official(t.ListWorkOrdersHandler)).Methods("GET")
	apiCreate.Handle("/workorders/{id}", official(t.WorkOrderByIDHandler)).Methods("GET")
	apiCreate.Handle("/workorders/{id}/status", official(t.WorkOrderStatusHandler)).Methods("POST")

	apiCreate.Handle("/inspections", official(t.CreateInspectionHandler)).Methods("POST")
	apiCreate.Handle("/inspections", official(t.ListInspectionsHandler)).Methods("GET")
	apiCreate.Handle("/inspections/{id}", official(t.InspectionByIDHandler)).Methods("GET")
	apiCreate.Handle("/inspections/{id}/status", official(t.InspectionStatusHandler)).Methods("POST")

	apiCreate.Handle("/resource-requests", official(t.CreateResourceRequestHandler)).Methods("POST")
	apiCreate.Handle("/resource-requests", official(t.ListResourceRequestsHandler)).Methods("GET")
	apiCreate.Handle("/resource-requests/{id}", official(t.ResourceRequestByIDHandler)).Methods("GET")
	apiCreate.Handle("/resource-requests/{id}/review", admin(t.ReviewResourceRequestHandler)).Methods("POST")
	apiCreate.Handle("/resource-requests/{id}/status", official(t.ResourceRequestStatusHandler)).Methods("POST")

	apiCreate.Handle("/communities", user(c.ListCommunitiesHandler)).Methods("GET")
	apiCreate.Handle("/communities/district", user(c.DistrictCommunityHandler)).Methods("POST")
	apiCreate.Handle("/communities/{code}", user(c.CommunityHandler)).Methods("GET")
	apiCreate.Handle("/communities/{code}/join", user(c.JoinHandler)).Methods("POST")
	apiCreate.Handle("/communities/{code}/leave", user(c.LeaveHandler)).Methods("POST")
	apiCreate.Handle("/communities/{code}/members/{userId}/role", admin(c.MemberRoleHandler)).Methods("PUT")
	apiCreate.Handle("/communities/{code}/messages", user(c.MessagesHandler)).Methods("GET")
	apiCreate.Handle("/communities/{code}/messages", user(c.PostMessageHandler)).Methods("POST")

	apiCreate.Handle("/gamification/profile", user(rep.ProfileHandler)).Methods("GET")
	apiCreate.Handle("/gamification/history", user(rep.HistoryHandler)).Methods("GET")
	apiCreate.Handle("/gamification/leaderboard/{districtId}", user(rep.LeaderboardHandler)).Methods("GET")

	apiCreate.Handle("/classification/classify", user(cls.ClassifyHandler)).Methods("POST")
	apiCreate.Handle("/classification/describe", user(cls.DescribeHandler)).Methods("POST")
	apiCreate.Handle("/classification/departments/{category}", user(cls.DepartmentHandler)).Methods("GET")

	apiCreate.Handle("/notifications", user(n.ListHandler)).Methods("GET")
	apiCreate.Handle("/notifications/{id}/read", user(n.MarkReadHandler)).Methods("PUT")
	// no timeout, the socket outlives the request
	apiCreate.Handle("/notifications/ws", chain(n.SocketHandler, authn.Middleware)).Methods("GET")

	apiCreate.Handle("/uploads/signature", user(cld.GenerateSignatureHandler)).Methods("POST")

	apiCreate.Handle("/admin/metrics", admin(m.DashboardHandler)).Methods("GET")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}
	if err = client.Connect(ctx); err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	a.client = client
	db := databases.NewDatabase(&a.Config, client)
	a.Stores = databases.NewStores(db)
	zap.S().Info("citizenvoice-api has connected to the database")

	rdb, err := api.NewRedisClient(ctx, a.Config.Redis)
	switch {
	case err != nil:
		zap.S().Warnw("redis unavailable, issue rate limiting is off", "error", err)
	case rdb == nil:
		zap.S().Info("REDIS_ADDR not set, issue rate limiting is off")
	default:
		a.Counter = api.RedisCounter{Client: rdb}
	}

	// initialize api router
	a.initializeRoutes()

	if a.Config.EnableScheduler {
		a.scheduler = scheduler.NewScheduler(a.Stores, a.Mailer, a.Config.SendGrid.ClientURL)
		a.scheduler.Start()
	}
	return nil
}

// Close stops background work and disconnects from the database
func (a *App) Close(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.client != nil {
		return a.client.Disconnect(ctx)
	}
	return nil
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthCheckResponse{
		Alive: true,
	})
}
