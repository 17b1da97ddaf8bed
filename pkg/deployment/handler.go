package deployment

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/deployify/internal/apperr"
	"github.com/wisbric/deployify/internal/httpserver"
	"github.com/wisbric/deployify/internal/ratelimit"
	"github.com/wisbric/deployify/internal/telemetry"
	"github.com/wisbric/deployify/pkg/builder"
	"github.com/wisbric/deployify/pkg/detect"
	"github.com/wisbric/deployify/pkg/logbus"
	"github.com/wisbric/deployify/pkg/provider"
	"github.com/wisbric/deployify/pkg/queue"
	"github.com/wisbric/deployify/pkg/selector"
)

// repoURLPattern enforces spec.md §4.1's intake contract: a plain GitHub
// HTTPS URL, with an optional ".git" suffix.
var repoURLPattern = regexp.MustCompile(`^https://github\.com/[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+(\.git)?$`)

// Handler provides HTTP handlers for the deployment intake, status, cancel,
// and log-reading surface.
type Handler struct {
	store       *Store
	queue       *queue.Queue
	bus         *logbus.Bus
	builder     *builder.Builder
	registry    *provider.Registry
	logger      *slog.Logger
	maxAttempts int
	jobTimeout  time.Duration
	intakeLimit *ratelimit.Limiter
}

// NewHandler creates a deployment Handler. maxAttempts and jobTimeout seed
// each enqueued JobItem; pass zero values to fall back to pkg/queue's
// defaults. intakeLimit throttles handleIntake per spec.md §4.1's intake
// rate limit; pass nil to disable throttling. b and registry back the
// recommend endpoint's scratch clone + provider selection.
func NewHandler(store *Store, q *queue.Queue, bus *logbus.Bus, b *builder.Builder, registry *provider.Registry, logger *slog.Logger, maxAttempts int, jobTimeout time.Duration, intakeLimit *ratelimit.Limiter) *Handler {
	return &Handler{store: store, queue: q, bus: bus, builder: b, registry: registry, logger: logger, maxAttempts: maxAttempts, jobTimeout: jobTimeout, intakeLimit: intakeLimit}
}

// Routes returns a chi.Router with the deployment routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleIntake)
	r.Get("/", h.handleList)
	r.Get("/recommend", h.handleRecommend)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/cancel", h.handleCancel)
		r.Get("/logs", h.handleLogs)
		r.Get("/logs/sse", h.handleLogsStream)
	})
	return r
}

// handleIntake implements spec.md §4.1: validate, persist a queued
// Deployment, enqueue its work item, and return its id.
func (h *Handler) handleIntake(w http.ResponseWriter, r *http.Request) {
	if h.intakeLimit != nil {
		allowed, err := h.intakeLimit.Allow(r.Context(), clientIP(r))
		if err != nil {
			h.logger.Warn("checking intake rate limit", "error", err)
		} else if !allowed {
			telemetry.IntakeThrottledTotal.Inc()
			httpserver.RespondError(w, http.StatusTooManyRequests, "rate_limited", "too many deployment requests, try again later")
			return
		}
	}

	var req IntakeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if !repoURLPattern.MatchString(req.RepoURL) {
		httpserver.RespondValidationError(w, []httpserver.ValidationError{
			{Field: "repo_url", Message: "must be an https://github.com/<owner>/<repo> URL"},
		})
		return
	}

	d := Deployment{
		RepoURL:              req.RepoURL,
		Branch:                req.Branch,
		Environment:           Environment(req.Environment),
		Budget:                Budget(req.Budget),
		PreferredProviders:    providerKinds(req.PreferredProviders),
		ExplicitProvider:      provider.Kind(req.ExplicitProvider),
		ExplicitCredentialID:  parseOptionalUUID(req.ExplicitCredentialID),
		Config: Config{
			Name:           req.Name,
			BuildCommand:   req.BuildCommand,
			BuildDirectory: req.BuildDirectory,
			EnvVars:        req.EnvVars,
		},
	}

	created, err := h.store.Create(r.Context(), d)
	if err != nil {
		h.logger.Error("creating deployment", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create deployment")
		return
	}
	telemetry.DeploymentsCreatedTotal.WithLabelValues(string(created.Environment)).Inc()

	item := queue.JobItem{
		JobID:        uuid.New(),
		DeploymentID: created.ID,
		MaxAttempts:  h.maxAttempts,
		Timeout:      h.jobTimeout,
		Payload: queue.Payload{
			RepoURL:              created.RepoURL,
			Branch:               created.Branch,
			Environment:          string(created.Environment),
			Budget:               string(created.Budget),
			PreferredProviders:   req.PreferredProviders,
			ExplicitProvider:     req.ExplicitProvider,
			ExplicitCredentialID: req.ExplicitCredentialID,
			Name:                 created.Config.Name,
			BuildCommand:         created.Config.BuildCommand,
			BuildDirectory:       created.Config.BuildDirectory,
			EnvVars:              created.Config.EnvVars,
		},
	}
	if err := h.queue.Enqueue(r.Context(), item); err != nil {
		h.logger.Error("enqueueing deployment job", "error", err, "deployment_id", created.ID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to enqueue deployment")
		return
	}

	httpserver.Respond(w, http.StatusAccepted, created)
}

// recommendResponse is the shape returned by handleRecommend.
type recommendResponse struct {
	RecommendedProvider provider.Kind `json:"recommended_provider"`
	Detected            detect.Result `json:"detected"`
}

// handleRecommend implements the supplemental `GET /deploy/recommend`
// surface: clone the repo into a scratch workspace, run detection and the
// Provider Selector, then discard the workspace without building or
// deploying anything.
func (h *Handler) handleRecommend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	repoURL := q.Get("repo_url")
	if !repoURLPattern.MatchString(repoURL) {
		httpserver.RespondValidationError(w, []httpserver.ValidationError{
			{Field: "repo_url", Message: "must be an https://github.com/<owner>/<repo> URL"},
		})
		return
	}

	scratchID := uuid.New()
	workspace, err := h.builder.Clone(r.Context(), scratchID, repoURL, q.Get("branch"), func(string, string) {})
	if workspace != "" {
		defer func() {
			if cleanupErr := h.builder.Cleanup(workspace); cleanupErr != nil {
				h.logger.Warn("cleaning up recommend scratch workspace", "error", cleanupErr, "workspace", workspace)
			}
		}()
	}
	if err != nil {
		h.logger.Warn("cloning repo for recommendation", "error", err, "repo_url", repoURL)
		httpserver.RespondError(w, http.StatusBadRequest, "clone_failed", "could not clone the repository to analyze it")
		return
	}

	detected := detect.Detect(workspace)

	policy := selector.Policy{
		Environment:        q.Get("environment"),
		Budget:             q.Get("budget"),
		PreferredProviders: providerKinds(splitCSV(q.Get("preferred_providers"))),
		ExplicitProvider:   provider.Kind(q.Get("provider")),
	}

	kind, ok := selector.Select(detected, policy, h.registry)
	if !ok {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "no_provider", "no registered provider could be recommended for this repository")
		return
	}

	httpserver.Respond(w, http.StatusOK, recommendResponse{RecommendedProvider: kind, Detected: detected})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment id")
		return
	}

	d, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, "loading deployment", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, d)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		if n > httpserver.MaxPageSize {
			n = httpserver.MaxPageSize
		}
		params.PageSize = n
		params.Offset = (params.Page - 1) * params.PageSize
	}

	filter := ListFilter{
		State:    State(r.URL.Query().Get("status")),
		Provider: provider.Kind(r.URL.Query().Get("provider")),
	}

	items, total, err := h.store.List(r.Context(), filter, params)
	if err != nil {
		h.logger.Error("listing deployments", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list deployments")
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}

// handleCancel implements spec.md §4.9's cancellation contract: mark intent
// on the Deployment record; the worker observes it at its next checkpoint.
// The queued job item itself is not marked or removed, so a job that is not
// yet leased stays queued until a worker leases it and sees the flag.
func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment id")
		return
	}

	if err := h.store.RequestCancel(r.Context(), id); err != nil {
		h.respondStoreError(w, "requesting cancellation", err)
		return
	}

	httpserver.Respond(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment id")
		return
	}

	opts := logbus.ReadOptions{
		Level:  logbus.Level(r.URL.Query().Get("level")),
		Search: r.URL.Query().Get("search"),
	}
	if v := r.URL.Query().Get("since_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			opts.SinceID = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if n > httpserver.MaxPageSize {
				n = httpserver.MaxPageSize
			}
			opts.Limit = n
		}
	}

	events, err := h.bus.Read(r.Context(), id, opts)
	if err != nil {
		h.logger.Error("reading deployment logs", "error", err, "deployment_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to read logs")
		return
	}

	summary, err := h.bus.Summary(r.Context(), id)
	if err != nil {
		h.logger.Error("summarizing deployment logs", "error", err, "deployment_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to summarize logs")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"events":  events,
		"summary": summary,
	})
}

// handleLogsStream streams live log events via Server-Sent Events
// (spec.md §4.6), replaying the durable backlog first.
func (h *Handler) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment id")
		return
	}

	events, cancel, err := h.bus.Subscribe(r.Context(), id)
	if err != nil {
		h.logger.Error("subscribing to deployment logs", "error", err, "deployment_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to subscribe to logs")
		return
	}
	defer cancel()

	stream, err := httpserver.NewSSEStream(w)
	if err != nil {
		h.logger.Error("opening sse stream", "error", err, "deployment_id", id)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			event := "log"
			if e.Metadata["kind"] == "heartbeat" {
				event = "heartbeat"
			}
			if err := stream.Send(event, e); err != nil {
				return
			}
		case <-time.After(heartbeatTimeout):
			if err := stream.Ping(); err != nil {
				return
			}
		}
	}
}

// heartbeatTimeout bounds how long handleLogsStream waits for an event
// before sending a `heartbeat` event of its own, independent of the Bus's
// internal heartbeat (which only fires while the subscription is alive).
const heartbeatTimeout = 20 * time.Second

func (h *Handler) respondStoreError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "deployment not found")
		return
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		httpserver.RespondError(w, http.StatusBadRequest, "validation_error", appErr.Message)
		return
	}
	h.logger.Error(action, "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to process request")
}

func providerKinds(raw []string) []provider.Kind {
	out := make([]provider.Kind, 0, len(raw))
	for _, s := range raw {
		out = append(out, provider.Kind(s))
	}
	return out
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func parseOptionalUUID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
