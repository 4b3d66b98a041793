// Package admin serves the audit HTTP API used by workspace administrators,
// auditors and compliance staff.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"workspace-audit/internal/platform/metrics"
	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/analytics"
	"workspace-audit/pkg/platform/audit/integrity"
	"workspace-audit/pkg/platform/audit/retention"
	"workspace-audit/pkg/platform/audit/search"
	"workspace-audit/pkg/platform/httputil"
	adminmw "workspace-audit/pkg/platform/middleware/admin"
	"workspace-audit/pkg/platform/middleware/requesttime"
	"workspace-audit/pkg/requestcontext"
)

type Searcher interface {
	SearchAudits(ctx context.Context, q search.Query) (*search.Result, error)
	GetAuditTrail(ctx context.Context, resourceType, resourceID string) ([]audit.Event, error)
}

type Exporter interface {
	ExportAudits(ctx context.Context, q search.Query, format, requestedBy string) (*search.Job, error)
	GetExport(ctx context.Context, id string) (*search.Job, error)
	Download(ctx context.Context, id string) ([]byte, string, error)
}

type Analyzer interface {
	GetAuditSummary(ctx context.Context, q analytics.SummaryQuery) (*analytics.Summary, error)
	DetectAnomalies(ctx context.Context, adminID string, windowHours int) (*analytics.AnomalyReport, error)
	GenerateComplianceReport(ctx context.Context, reportType string, from, to time.Time) (*analytics.ComplianceReport, error)
}

type Verifier interface {
	VerifyAuditIntegrity(ctx context.Context, eventID string) (*integrity.Report, error)
	ValidateAuditChain(ctx context.Context, from, to time.Time) (*integrity.ChainReport, error)
}

type Cleaner interface {
	CleanupExpiredAudits(ctx context.Context) (*retention.Result, error)
}

// ComplianceLogger records audit reads that are themselves audited.
// *loggers.ComplianceAudit implements it.
type ComplianceLogger interface {
	LogAuditExport(ctx context.Context, exportID, format string, filters map[string]any, opErr error) (audit.Event, error)
	LogComplianceReport(ctx context.Context, reportType string, from, to time.Time, opErr error) (audit.Event, error)
}

// Services bundles the audit operations the handler exposes.
type Services struct {
	Search     Searcher
	Exports    Exporter
	Analytics  Analyzer
	Integrity  Verifier
	Retention  Cleaner
	Compliance ComplianceLogger
}

// Handler serves /admin/audit.
type Handler struct {
	svc     Services
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Handler. metrics may be nil.
func New(svc Services, logger *slog.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger, metrics: m}
}

// Register mounts the audit routes. auth authenticates the admin principal;
// role checks are applied here.
func (h *Handler) Register(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/admin/audit", func(r chi.Router) {
		r.Use(auth)
		r.Use(adminmw.RequireRole(h.logger, adminmw.AuditRoles...))

		r.Get("/events", h.handleSearch)
		r.Get("/events/{id}/integrity", h.handleVerifyEvent)
		r.Get("/trail/{resourceType}/{resourceID}", h.handleTrail)

		r.Post("/exports", h.handleStartExport)
		r.Get("/exports/{id}", h.handleGetExport)
		r.Get("/exports/{id}/download", h.handleDownloadExport)

		r.Get("/summary", h.handleSummary)
		r.Get("/anomalies/{adminID}", h.handleAnomalies)
		r.Get("/compliance/{reportType}", h.handleCompliance)
		r.Get("/chain", h.handleChain)

		r.With(adminmw.RequireRole(h.logger, adminmw.RoleAdmin, adminmw.RoleCompliance)).
			Post("/retention/cleanup", h.handleRetentionCleanup)
	})
}

func (h *Handler) timed(endpoint string) func() {
	start := time.Now()
	return func() {
		h.metrics.ObserveEndpointLatency(endpoint, time.Since(start).Seconds())
	}
}

// fail logs err at a level matching its code and writes the error response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"error", err,
		"status", httputil.StatusFor(err),
		"elapsed_ms", requesttime.Since(ctx).Milliseconds(),
		"request_id", requestcontext.RequestID(ctx),
	}
	if dErrors.IsServerFault(err) {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	defer h.timed("search")()
	ctx := r.Context()

	q, err := parseSearchQuery(r.URL.Query())
	if err != nil {
		h.fail(ctx, w, "invalid search parameters", err)
		return
	}
	result, err := h.svc.Search.SearchAudits(ctx, q)
	if err != nil {
		h.fail(ctx, w, "audit search failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleTrail(w http.ResponseWriter, r *http.Request) {
	defer h.timed("trail")()
	ctx := r.Context()

	resourceType, resourceID := chi.URLParam(r, "resourceType"), chi.URLParam(r, "resourceID")
	if err := checkPathParams(map[string]string{"resource type": resourceType, "resource id": resourceID}); err != nil {
		h.fail(ctx, w, "invalid trail parameters", err)
		return
	}
	events, err := h.svc.Search.GetAuditTrail(ctx, resourceType, resourceID)
	if err != nil {
		h.fail(ctx, w, "audit trail lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trailResponse{Events: events, Count: len(events)})
}

func (h *Handler) handleVerifyEvent(w http.ResponseWriter, r *http.Request) {
	defer h.timed("verify_event")()
	ctx := r.Context()

	report, err := h.svc.Integrity.VerifyAuditIntegrity(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "integrity check failed", err)
		return
	}
	h.metrics.IncIntegrityCheck(report.Valid)
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleChain(w http.ResponseWriter, r *http.Request) {
	defer h.timed("chain")()
	ctx := r.Context()

	from, to, err := parseRange(r.URL.Query(), false)
	if err != nil {
		h.fail(ctx, w, "invalid chain parameters", err)
		return
	}
	report, err := h.svc.Integrity.ValidateAuditChain(ctx, from, to)
	if err != nil {
		h.fail(ctx, w, "chain validation failed", err)
		return
	}
	h.metrics.AddChainBreaks(len(report.Breaks))
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleStartExport(w http.ResponseWriter, r *http.Request) {
	defer h.timed("export_start")()
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[exportRequest](w, r, h.logger)
	if !ok {
		return
	}
	requestedBy := ""
	if principal, ok := requestcontext.AdminFrom(ctx); ok {
		requestedBy = principal.ID
	}

	job, err := h.svc.Exports.ExportAudits(ctx, req.Query, req.Format, requestedBy)
	exportID := ""
	if job != nil {
		exportID = job.ID
	}
	if _, logErr := h.svc.Compliance.LogAuditExport(ctx, exportID, req.Format, filterSummary(req.Query), err); logErr != nil {
		h.logger.ErrorContext(ctx, "failed to record audit export",
			"error", logErr,
			"request_id", requestID,
		)
	}
	if err != nil {
		h.fail(ctx, w, "export request rejected", err)
		return
	}
	h.metrics.IncExportRequested(string(job.Format))
	h.logger.InfoContext(ctx, "audit export started",
		"export_id", job.ID,
		"format", job.Format,
		"requested_by", requestedBy,
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusAccepted, job)
}

func (h *Handler) handleGetExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job, err := h.svc.Exports.GetExport(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "export lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) handleDownloadExport(w http.ResponseWriter, r *http.Request) {
	defer h.timed("export_download")()
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	job, err := h.svc.Exports.GetExport(ctx, id)
	if err != nil {
		h.fail(ctx, w, "export lookup failed", err)
		return
	}
	data, contentType, err := h.svc.Exports.Download(ctx, id)
	if err != nil {
		h.fail(ctx, w, "export download failed", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export-`+job.ID+"."+string(job.Format)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.WarnContext(ctx, "failed to write export artifact",
			"error", err,
			"export_id", id,
		)
	}
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	defer h.timed("summary")()
	ctx := r.Context()

	q, err := parseSummaryQuery(r.URL.Query())
	if err != nil {
		h.fail(ctx, w, "invalid summary parameters", err)
		return
	}
	summary, err := h.svc.Analytics.GetAuditSummary(ctx, q)
	if err != nil {
		h.metrics.IncReportFailure("summary")
		h.fail(ctx, w, "audit summary failed", err)
		return
	}
	h.metrics.IncReport("summary")
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	defer h.timed("anomalies")()
	ctx := r.Context()

	adminID := chi.URLParam(r, "adminID")
	windowHours, err := parseInt(r.URL.Query(), "windowHours")
	if err == nil {
		err = checkPathParams(map[string]string{"admin id": adminID})
	}
	if err != nil {
		h.fail(ctx, w, "invalid anomaly parameters", err)
		return
	}
	report, err := h.svc.Analytics.DetectAnomalies(ctx, adminID, windowHours)
	if err != nil {
		h.metrics.IncReportFailure("anomalies")
		h.fail(ctx, w, "anomaly detection failed", err)
		return
	}
	h.metrics.IncReport("anomalies")
	h.metrics.IncAnomalyReport(string(report.RiskLevel))
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleCompliance(w http.ResponseWriter, r *http.Request) {
	defer h.timed("compliance")()
	ctx := r.Context()
	reportType := chi.URLParam(r, "reportType")

	from, to, err := parseRange(r.URL.Query(), true)
	if err != nil {
		h.fail(ctx, w, "invalid compliance parameters", err)
		return
	}
	report, err := h.svc.Analytics.GenerateComplianceReport(ctx, reportType, from, to)
	if _, logErr := h.svc.Compliance.LogComplianceReport(ctx, reportType, from, to, err); logErr != nil {
		h.logger.ErrorContext(ctx, "failed to record compliance report",
			"error", logErr,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if err != nil {
		h.metrics.IncReportFailure("compliance")
		h.fail(ctx, w, "compliance report failed", err)
		return
	}
	h.metrics.IncReport("compliance")
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleRetentionCleanup(w http.ResponseWriter, r *http.Request) {
	defer h.timed("retention_cleanup")()
	ctx := r.Context()

	result, err := h.svc.Retention.CleanupExpiredAudits(ctx)
	if err != nil {
		h.fail(ctx, w, "retention cleanup failed", err)
		return
	}
	h.logger.InfoContext(ctx, "retention cleanup triggered over http",
		"total_deleted", result.TotalDeleted,
		"archived", result.Archived,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}
