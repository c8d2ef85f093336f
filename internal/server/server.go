package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"crowdfund/internal/auth"
	"crowdfund/internal/funding"
	"crowdfund/internal/payments"
	"crowdfund/internal/projects"
	"crowdfund/internal/storage"
	"crowdfund/internal/users"
	"crowdfund/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/go-playground/form/v4"
	"github.com/gorilla/securecookie"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var decoder = form.NewDecoder()

type Authenticator interface {
	Register(ctx context.Context, input auth.RegisterInput) (string, error)
	ConfirmRegistration(ctx context.Context, email, code string) error
	Login(ctx context.Context, email, password string) (*types.AuthSession, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, userID, secret, newPassword string) error
	Logout(ctx context.Context, accessToken string) error
}

type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (*auth.Identity, error)
}

type ProjectService interface {
	CreateProject(ctx context.Context, creatorID string, input projects.ProjectInput) (*types.Project, error)
	UpdateProject(ctx context.Context, projectID, actorID string, input projects.ProjectInput) (*types.Project, error)
	PublishProject(ctx context.Context, projectID, actorID string) (*types.Project, error)
	CancelProject(ctx context.Context, projectID, actorID string) (*types.Project, error)
	CompleteProject(ctx context.Context, projectID, actorID string) (*types.Project, error)
	DeleteProject(ctx context.Context, projectID, actorID string) error
	AddProjectImage(ctx context.Context, projectID, actorID, key string) (*types.Project, error)
	Project(ctx context.Context, projectID, viewerID string) (*types.Project, error)
	ListProjects(ctx context.Context, filter types.ProjectFilter, viewerID string) ([]*types.Project, error)

	CreateTier(ctx context.Context, projectID, actorID string, input projects.TierInput) (*types.RewardTier, error)
	UpdateTier(ctx context.Context, tierID, actorID string, input projects.TierInput) (*types.RewardTier, error)
	DeleteTier(ctx context.Context, tierID, actorID string) error
	TiersByProject(ctx context.Context, projectID string) ([]*types.RewardTier, error)

	SetMilestones(ctx context.Context, projectID, actorID string, inputs []projects.MilestoneInput) ([]*types.Milestone, error)
	MilestonesByProject(ctx context.Context, projectID string) ([]*types.Milestone, error)
	UpdateMilestoneStatus(ctx context.Context, milestoneID, actorID string, status types.MilestoneStatus) (*types.Milestone, error)
	AddMilestoneEvidence(ctx context.Context, milestoneID, actorID, key string) (*types.Milestone, error)
	SubmitFeedback(ctx context.Context, milestoneID, backerID string, score int) (*types.Milestone, error)
	MilestoneProgress(ctx context.Context, projectID string) (*types.MilestoneProgress, error)
}

type FundingService interface {
	payments.BackingSettler

	CreateBacking(ctx context.Context, input funding.CreateBackingInput) (*types.Backing, error)
	CancelBacking(ctx context.Context, backingID, actorID string) (*types.Backing, error)
	FulfillBacking(ctx context.Context, backingID, actorID string) (*types.Backing, error)
	Backing(ctx context.Context, backingID, viewerID string) (*types.Backing, error)
	BackingsByProject(ctx context.Context, projectID, viewerID string) ([]*types.Backing, error)
	BackingsByBacker(ctx context.Context, backerID string) ([]*types.Backing, error)
	CheckTierAvailability(ctx context.Context, tierID string) (*types.TierAvailability, error)
	ProjectDashboard(ctx context.Context, projectID string) (*types.ProjectDashboard, error)
}

type UserService interface {
	EnsureUser(ctx context.Context, userID, email, givenName, familyName string) error
	Profile(ctx context.Context, userID string) (*types.User, error)
	UpdateProfile(ctx context.Context, userID string, input users.ProfileInput) (*types.User, error)
	SetAvatar(ctx context.Context, userID, key string) (*types.User, error)
}

type ObjectStorage interface {
	Upload(ctx context.Context, bucket storage.Bucket, ownerID, fileName string, size int64, body io.Reader) (*storage.Object, error)
	Delete(ctx context.Context, bucket storage.Bucket, key string) error
	URL(ctx context.Context, bucket storage.Bucket, key string) (string, error)
}

type PaymentWebhooks interface {
	HandleWebhook(ctx context.Context, settler payments.BackingSettler, payload []byte, signature string) (*payments.WebhookEvent, error)
}

// Dependencies are the services the API is built on. Webhooks may be nil when
// payments are not configured.
type Dependencies struct {
	Auth     Authenticator
	Verifier TokenVerifier
	Projects ProjectService
	Funding  FundingService
	Users    UserService
	Objects  ObjectStorage
	Webhooks PaymentWebhooks

	// Health is optional; when set /healthz reports 503 while it fails.
	Health func(ctx context.Context) error
}

type Service struct {
	logger *logrus.Logger
	config *types.Config

	auth     Authenticator
	verifier TokenVerifier
	projects ProjectService
	funding  FundingService
	users    UserService
	objects  ObjectStorage
	webhooks PaymentWebhooks
	health   func(ctx context.Context) error

	cookie      *securecookie.SecureCookie
	authLimiter *ipLimiter

	handler http.Handler
	server  *http.Server
}

func New(config *types.Config, logger *logrus.Logger, deps Dependencies) (*Service, error) {
	if deps.Auth == nil || deps.Verifier == nil || deps.Projects == nil || deps.Funding == nil || deps.Users == nil || deps.Objects == nil {
		return nil, errors.New("server: auth, verifier, projects, funding, users and objects are required")
	}

	hashKey, err := base64.StdEncoding.DecodeString(config.CookieHashKey)
	if err != nil || len(hashKey) < 32 {
		return nil, errors.New("server: COOKIE_HASH_KEY must be base64 encoded and at least 32 bytes")
	}

	var blockKey []byte
	if config.CookieBlockKey != "" {
		blockKey, err = base64.StdEncoding.DecodeString(config.CookieBlockKey)
		if err != nil {
			return nil, fmt.Errorf("server: COOKIE_BLOCK_KEY is not valid base64: %w", err)
		}
	}

	cookie := securecookie.New(hashKey, blockKey)
	cookie.MaxAge(config.SessionMaxAgeSec)

	mux := flow.New()

	s := &Service{
		logger:   logger,
		config:   config,
		auth:     deps.Auth,
		verifier: deps.Verifier,
		projects: deps.Projects,
		funding:  deps.Funding,
		users:    deps.Users,
		objects:  deps.Objects,
		webhooks: deps.Webhooks,
		health:   deps.Health,

		cookie:      cookie,
		authLimiter: newIPLimiter(config.AuthRateLimitPerMin, time.Minute),

		handler: mux,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.ServerPort),
			Handler:           mux,
			ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
			ReadHeaderTimeout: time.Duration(config.ReadTimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}

	s.buildRouter(mux)

	return s, nil
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Service) Handler() http.Handler {
	return s.handler
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.StripTrailingSlash)
	r.Use(s.LoggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)
	r.Handle("/metrics", promhttp.Handler(), http.MethodGet)
	r.HandleFunc("/webhooks/stripe", s.handleStripeWebhook, http.MethodPost)

	r.Group(func(r *flow.Mux) {
		r.Use(s.RateLimit)

		r.HandleFunc("/auth/register", s.handleRegister, http.MethodPost)
		r.HandleFunc("/auth/register/confirm", s.handleConfirmRegistration, http.MethodPost)
		r.HandleFunc("/auth/login", s.handleLogin, http.MethodPost)
		r.HandleFunc("/auth/password/forgot", s.handleForgotPassword, http.MethodPost)
		r.HandleFunc("/auth/password/reset", s.handleResetPassword, http.MethodPost)
	})

	r.Group(func(r *flow.Mux) {
		r.Use(s.OptionalAuth)

		r.HandleFunc("/projects", s.handleListProjects, http.MethodGet)
		r.HandleFunc("/projects/:id", s.handleGetProject, http.MethodGet)
		r.HandleFunc("/projects/:id/dashboard", s.handleProjectDashboard, http.MethodGet)
		r.HandleFunc("/projects/:id/tiers", s.handleListTiers, http.MethodGet)
		r.HandleFunc("/projects/:id/milestones", s.handleListMilestones, http.MethodGet)
		r.HandleFunc("/projects/:id/milestones/progress", s.handleMilestoneProgress, http.MethodGet)
		r.HandleFunc("/tiers/:id/availability", s.handleTierAvailability, http.MethodGet)
	})

	r.Group(func(r *flow.Mux) {
		r.Use(s.RequireAuth)

		r.HandleFunc("/auth/logout", s.handleLogout, http.MethodPost)

		r.HandleFunc("/projects", s.handleCreateProject, http.MethodPost)
		r.HandleFunc("/projects/:id", s.handleUpdateProject, http.MethodPatch)
		r.HandleFunc("/projects/:id", s.handleDeleteProject, http.MethodDelete)
		r.HandleFunc("/projects/:id/publish", s.handlePublishProject, http.MethodPost)
		r.HandleFunc("/projects/:id/cancel", s.handleCancelProject, http.MethodPost)
		r.HandleFunc("/projects/:id/complete", s.handleCompleteProject, http.MethodPost)
		r.HandleFunc("/projects/:id/images", s.handleUploadProjectImage, http.MethodPost)

		r.HandleFunc("/projects/:id/tiers", s.handleCreateTier, http.MethodPost)
		r.HandleFunc("/tiers/:id", s.handleUpdateTier, http.MethodPatch)
		r.HandleFunc("/tiers/:id", s.handleDeleteTier, http.MethodDelete)

		r.HandleFunc("/projects/:id/milestones", s.handleSetMilestones, http.MethodPut)
		r.HandleFunc("/milestones/:id", s.handleUpdateMilestone, http.MethodPatch)
		r.HandleFunc("/milestones/:id/evidence", s.handleUploadEvidence, http.MethodPost)
		r.HandleFunc("/milestones/:id/feedback", s.handleSubmitFeedback, http.MethodPost)

		r.HandleFunc("/projects/:id/backings", s.handleCreateBacking, http.MethodPost)
		r.HandleFunc("/projects/:id/backings", s.handleListProjectBackings, http.MethodGet)
		r.HandleFunc("/backings/:id", s.handleGetBacking, http.MethodGet)
		r.HandleFunc("/backings/:id/cancel", s.handleCancelBacking, http.MethodPost)
		r.HandleFunc("/backings/:id/fulfill", s.handleFulfillBacking, http.MethodPost)

		r.HandleFunc("/me", s.handleGetMe, http.MethodGet)
		r.HandleFunc("/me", s.handleUpdateMe, http.MethodPatch)
		r.HandleFunc("/me/avatar", s.handleUploadAvatar, http.MethodPost)
		r.HandleFunc("/me/backings", s.handleMyBackings, http.MethodGet)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.WithError(err).Warn("health check failed")
			s.writeEnvelope(w, http.StatusServiceUnavailable, envelope{Message: "service unavailable"})
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
