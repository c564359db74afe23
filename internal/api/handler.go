package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Loofy147/Lsp/internal/capability"
	"github.com/Loofy147/Lsp/internal/domain"
	"github.com/Loofy147/Lsp/internal/pipeline"
	"github.com/Loofy147/Lsp/internal/profile"
	"github.com/Loofy147/Lsp/internal/repository"
	"github.com/Loofy147/Lsp/internal/rules"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	pipeline *pipeline.Pipeline
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	validate *validator.Validate
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(p *pipeline.Pipeline, repo domain.Repository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		pipeline: p,
		repo:     repo,
		cache:    cache,
		bus:      bus,
		validate: validator.New(),
		version:  version,
	}
}

// ActivityResponse is the response for POST /activities.
type ActivityResponse struct {
	*pipeline.ProcessResult
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// SubmitActivity handles POST /activities: the activity is assessed and
// applied synchronously.
func (h *Handler) SubmitActivity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.ActivityRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.pipeline.Process(ctx, tenantID, toEvent(&req), req.Context)
	if err != nil {
		h.writeError(w, "activity processing failed", err)
		return
	}

	resp := ActivityResponse{ProcessResult: res}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// SubmitActivityAsync handles POST /activities/async: the activity is
// queued on the event bus for the worker.
func (h *Handler) SubmitActivityAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.ActivityRequest
	if !h.decode(w, r, &req) {
		return
	}

	ev := toEvent(&req)
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	ev.TenantID = tenantID

	payload, err := json.Marshal(domain.IngestEnvelope{Activity: *ev, Context: req.Context})
	if err != nil {
		h.writeError(w, "failed to encode activity", err)
		return
	}
	if err := h.bus.Publish(ctx, tenantID, domain.TopicActivityIngested, payload); err != nil {
		slog.Error("failed to queue activity", "tenant_id", tenantID, "activity_id", ev.ID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to queue activity",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"activityId": ev.ID,
		"status":     "queued",
	})
}

// StructuredAssessmentRequest is the request body for
// POST /assessments/structured.
type StructuredAssessmentRequest struct {
	UserID    string                        `json:"userId" validate:"required"`
	Activity  capability.StructuredActivity `json:"activity"`
	Responses []capability.GradedResponse   `json:"responses" validate:"required,min=1,dive"`
}

// AssessStructured updates a user's language estimates from graded responses.
func (h *Handler) AssessStructured(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req StructuredAssessmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	scores, err := h.pipeline.AssessStructured(ctx, tenantID, req.UserID, &req.Activity, req.Responses)
	if err != nil {
		h.writeError(w, "structured assessment failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId": req.UserID,
		"scores": scores,
	})
}

// GetCapabilities returns a user's capability estimates and learning curves.
func (h *Handler) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	view, err := h.pipeline.Capabilities(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "failed to load capabilities", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetWellbeing assesses a user's wellbeing. The optional days query
// parameter narrows the trailing window.
func (h *Handler) GetWellbeing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "days must be a positive integer",
			})
			return
		}
		days = n
	}

	assessment, err := h.pipeline.AssessWellbeing(ctx, GetTenantID(ctx), chi.URLParam(r, "id"), days)
	if err != nil {
		h.writeError(w, "wellbeing assessment failed", err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

// ListPatterns returns the tenant's most recently discovered patterns.
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	patterns, err := h.pipeline.Patterns(ctx, GetTenantID(ctx))
	if err != nil {
		h.writeError(w, "failed to list patterns", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// DiscoverPatterns runs pattern discovery for the tenant.
func (h *Handler) DiscoverPatterns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.pipeline.RunDiscovery(ctx, GetTenantID(ctx))
	if err != nil {
		h.writeError(w, "pattern discovery failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether the event bus can accept work.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns the tenant's active alert rule set.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	set, err := h.pipeline.Rules(ctx, GetTenantID(ctx))
	if err != nil {
		h.writeError(w, "failed to list rules", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": set,
		"count": len(set),
	})
}

// GetRule retrieves one of the tenant's alert rules by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rule, err := h.pipeline.Rule(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "failed to get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRuleRequest is the request body for creating an alert rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name" validate:"required"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version,omitempty"`
	Expression  string            `json:"expression" validate:"required"`
	Bands       []domain.RuleBand `json:"bands" validate:"required,min=1"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule stores a tenant alert rule and reloads the tenant's rule set.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateRuleRequest
	if !h.decode(w, r, &req) {
		return
	}

	rule := &domain.AlertRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}
	if err := h.pipeline.SaveRule(ctx, tenantID, rule); err != nil {
		h.writeError(w, "failed to save rule", err)
		return
	}

	slog.Info("rule created", "tenant_id", tenantID, "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule": rule,
	})
}

// ReloadRules reloads the tenant's alert rules from the repository.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.pipeline.ReloadRules(ctx, GetTenantID(ctx))
	if err != nil {
		h.writeError(w, "failed to reload rules", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   n,
	})
}

// decode reads and validates a JSON body into v, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "validation failed",
			"fields": validationFields(err),
		})
		return false
	}
	return true
}

func validationFields(err error) map[string]string {
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["_"] = err.Error()
		return fields
	}
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			fields[fe.Namespace()] = "this field is required"
		case "min":
			fields[fe.Namespace()] = fmt.Sprintf("minimum is %s", fe.Param())
		case "gte", "lte":
			fields[fe.Namespace()] = fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param())
		default:
			fields[fe.Namespace()] = fmt.Sprintf("failed %s validation", fe.Tag())
		}
	}
	return fields
}

// writeError maps pipeline errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrInvalidActivity), errors.Is(err, rules.ErrInvalidRule):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrUnknownUser), errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, profile.ErrDuplicateSequence):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		slog.Error(msg, "error", err)
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func toEvent(req *domain.ActivityRequest) *domain.ActivityEvent {
	ev := &domain.ActivityEvent{
		ID:                 req.ID,
		UserID:             req.UserID,
		Domain:             req.Domain,
		ActivityType:       req.ActivityType,
		PerformanceMetrics: req.PerformanceMetrics,
		EngagementLevel:    req.EngagementLevel,
		SessionID:          req.SessionID,
		SequencePosition:   req.SequencePosition,
		Difficulty:         req.Difficulty,
		TargetDimensions:   req.TargetDimensions,
	}
	if req.Timestamp != nil {
		ev.Timestamp = *req.Timestamp
	}
	return ev
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
