package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/internal/dispatcher"
	"tracekeeper/internal/lookup"
	"tracekeeper/internal/migrator"
	"tracekeeper/internal/quality"
	"tracekeeper/internal/schema"
	"tracekeeper/internal/trace/models"
	"tracekeeper/internal/validator"
	dErrors "tracekeeper/pkg/domain-errors"
	"tracekeeper/pkg/platform/httputil"
	"tracekeeper/pkg/requestcontext"
)

// Dispatcher admits candidate records into a region.
type Dispatcher interface {
	DispatchCandidate(ctx context.Context, regionID string, rec *models.TraceRecord) (*dispatcher.Result, error)
}

// Migrator runs paged version migrations.
type Migrator interface {
	MigrateVersion(ctx context.Context, from, to string, batchSize int) (*migrator.JobReport, error)
}

// Auditor runs a corpus quality audit.
type Auditor interface {
	Audit(ctx context.Context) (quality.Report, error)
}

// Finder looks records up by attribute value.
type Finder interface {
	Find(ctx context.Context, q lookup.Query) (*lookup.Result, error)
}

// RegionChecker checks region availability.
type RegionChecker interface {
	CheckAll(ctx context.Context) []dispatcher.RegionStatus
}

// DiagnosticsReader exposes the recent diagnostic log.
type DiagnosticsReader interface {
	Entries() []diagnostics.Entry
}

// Handler is the thin HTTP layer over the pipeline services.
type Handler struct {
	dispatcher   Dispatcher
	migrator     Migrator
	auditor      Auditor
	registry     *schema.Registry
	diagnostics  DiagnosticsReader
	finder       Finder
	checker      RegionChecker
	logger       *slog.Logger
	defaultBatch int
}

// HandlerOption enables optional endpoints.
type HandlerOption func(*Handler)

// WithFinder mounts POST /v1/traces/search.
func WithFinder(f Finder) HandlerOption {
	return func(h *Handler) {
		h.finder = f
	}
}

// WithRegionChecker mounts GET /v1/regions/status.
func WithRegionChecker(c RegionChecker) HandlerOption {
	return func(h *Handler) {
		h.checker = c
	}
}

// New constructs the handler. diagnostics may be nil, in which case the
// diagnostics endpoint returns an empty list.
func New(d Dispatcher, m Migrator, a Auditor, registry *schema.Registry, diag DiagnosticsReader, logger *slog.Logger, defaultBatch int, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if defaultBatch <= 0 {
		defaultBatch = 500
	}
	h := &Handler{
		dispatcher:   d,
		migrator:     m,
		auditor:      a,
		registry:     registry,
		diagnostics:  diag,
		logger:       logger,
		defaultBatch: defaultBatch,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the producer-facing endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/regions/{region}/traces", h.HandleDispatch)
	r.Get("/v1/schema", h.HandleSchema)
	r.Get("/v1/schema/changes", h.HandleSchemaChanges)
}

// RegisterAdmin mounts the operator endpoints.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/v1/migrations", h.HandleMigrate)
	r.Get("/v1/audit", h.HandleAudit)
	r.Get("/v1/diagnostics", h.HandleDiagnostics)
	if h.finder != nil {
		r.Post("/v1/traces/search", h.HandleSearch)
	}
	if h.checker != nil {
		r.Get("/v1/regions/status", h.HandleRegionStatus)
	}
}

// HandleDispatch handles POST /v1/regions/{region}/traces.
func (h *Handler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	region := chi.URLParam(r, "region")

	body, err := httputil.ReadBody(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := validator.ParseCandidate(body)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.dispatcher.DispatchCandidate(ctx, region, rec)
	if err != nil {
		h.logger.WarnContext(ctx, "dispatch failed",
			"request_id", requestcontext.RequestID(ctx),
			"region", region,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, dispatchResponse{
		ID:       result.ID.String(),
		Region:   result.Region,
		Attempts: result.Attempts,
	})
}

// HandleMigrate handles POST /v1/migrations.
func (h *Handler) HandleMigrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[migrationRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	batch := req.BatchSize
	if batch == 0 {
		batch = h.defaultBatch
	}

	job, err := h.migrator.MigrateVersion(ctx, req.From, req.To, batch)
	if err != nil {
		h.logger.ErrorContext(ctx, "migration job failed",
			"request_id", requestcontext.RequestID(ctx),
			"from", req.From,
			"to", req.To,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "migration job finished",
		"request_id", requestcontext.RequestID(ctx),
		"from", req.From,
		"to", req.To,
		"records", job.Records,
		"duration_ms", time.Since(requestcontext.Now(ctx)).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, fromJobReport(job))
}

// HandleAudit handles GET /v1/audit.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.auditor.Audit(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleDiagnostics handles GET /v1/diagnostics?component=&event=&limit=.
func (h *Handler) HandleDiagnostics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	var entries []diagnostics.Entry
	if h.diagnostics != nil {
		entries = h.diagnostics.Entries()
	}
	out := make([]diagnosticEntry, 0, limit)
	// Newest first.
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := entries[i]
		if c := q.Get("component"); c != "" && e.Component != c {
			continue
		}
		if ev := q.Get("event"); ev != "" && e.Event != ev {
			continue
		}
		out = append(out, fromEntry(e))
	}
	httputil.WriteJSON(w, http.StatusOK, diagnosticsResponse{Entries: out})
}

// HandleSchema handles GET /v1/schema.
func (h *Handler) HandleSchema(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, schemaResponse{
		Current: h.registry.Current(),
		Known:   h.registry.Known(),
		Targets: h.registry.Targets(),
	})
}

// HandleSchemaChanges handles GET /v1/schema/changes?from=&to=.
func (h *Handler) HandleSchemaChanges(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" || to == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "from and to are required"))
		return
	}
	renames, err := h.registry.DescribeChanges(from, to)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, err.Error()))
		return
	}
	resp := changesResponse{From: from, To: to, Renames: make([]renameDTO, 0, len(renames))}
	for _, rn := range renames {
		resp.Renames = append(resp.Renames, renameDTO{From: rn.From, To: rn.To})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleSearch handles POST /v1/traces/search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[searchRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q, err := req.toQuery()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.finder.Find(ctx, q)
	if err != nil {
		h.logger.WarnContext(ctx, "attribute lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"version", q.Version,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromLookupResult(res))
}

// HandleRegionStatus handles GET /v1/regions/status. It answers 200 even when
// regions are down; the body carries the per-region outcome.
func (h *Handler) HandleRegionStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	statuses := h.checker.CheckAll(ctx)
	resp := regionStatusResponse{Regions: make([]regionStatusDTO, 0, len(statuses))}
	for _, st := range statuses {
		resp.Regions = append(resp.Regions, fromRegionStatus(st))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
