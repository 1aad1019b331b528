package control

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"mvrv/internal/domain/mvrv"
	"mvrv/internal/workers"
	"mvrv/pkg/errors"
	"mvrv/pkg/logger"
)

const (
	defaultHistoryLimit = 24
	maxHistoryLimit     = 1000
	dateLayout          = "2006-01-02"
)

// Scheduler is the part of the worker scheduler the API drives
type Scheduler interface {
	Status() workers.Status
	ManualUpdate(ctx context.Context) error
}

// Valuation aggregates and summarizes stored records
type Valuation interface {
	Aggregate(ctx context.Context, day time.Time) (*mvrv.Record, error)
	Insights(ctx context.Context, window int) (*mvrv.Insights, error)
}

// RecordReader reads persisted records
type RecordReader interface {
	QueryHistory(ctx context.Context, tf mvrv.Timeframe, limit int) ([]mvrv.Record, error)
	GetLatest(ctx context.Context, tf mvrv.Timeframe) (*mvrv.Record, error)
}

// Handler serves the /api/v1 control surface
type Handler struct {
	scheduler      Scheduler
	valuation      Valuation
	records        RecordReader
	insightsWindow int
	log            *logger.Logger
	now            func() time.Time

	// background runs manual updates outside the request lifetime
	background func(func())
}

// New creates the control handler
func New(scheduler Scheduler, valuation Valuation, records RecordReader, insightsWindow int) *Handler {
	if insightsWindow <= 0 {
		insightsWindow = 168
	}
	return &Handler{
		scheduler:      scheduler,
		valuation:      valuation,
		records:        records,
		insightsWindow: insightsWindow,
		log:            logger.Get().Component("control_api"),
		now:            time.Now,
		background:     func(fn func()) { go fn() },
	}
}

// Register mounts the routes on mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/status", h.HandleStatus)
	mux.HandleFunc("POST /api/v1/update", h.HandleUpdate)
	mux.HandleFunc("POST /api/v1/aggregate", h.HandleAggregate)
	mux.HandleFunc("GET /api/v1/records", h.HandleRecords)
	mux.HandleFunc("GET /api/v1/records/latest", h.HandleLatest)
	mux.HandleFunc("GET /api/v1/insights", h.HandleInsights)
}

// HandleStatus returns the scheduler status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// HandleUpdate starts one estimation cycle and returns immediately
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	h.background(func() {
		if err := h.scheduler.ManualUpdate(ctx); err != nil {
			h.log.Errorw("Manual update failed", "error", err)
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// HandleAggregate aggregates one day (default: yesterday, UTC)
func (h *Handler) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	day := mvrv.DayStart(h.now()).Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			h.writeError(w, errors.NewValidationError("date", "expected YYYY-MM-DD", raw))
			return
		}
		day = parsed
	}

	record, err := h.valuation.Aggregate(r.Context(), day)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// HandleRecords returns recent records in chronological order
func (h *Handler) HandleRecords(w http.ResponseWriter, r *http.Request) {
	tf, err := timeframe(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxHistoryLimit {
			h.writeError(w, errors.NewValidationError("limit", "must be between 1 and 1000", raw))
			return
		}
	}

	records, err := h.records.QueryHistory(r.Context(), tf, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if records == nil {
		records = []mvrv.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleLatest returns the newest record of a timeframe
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	tf, err := timeframe(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	record, err := h.records.GetLatest(r.Context(), tf)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// HandleInsights returns statistics over recent hourly records
func (h *Handler) HandleInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := h.valuation.Insights(r.Context(), h.insightsWindow)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

func timeframe(r *http.Request) (mvrv.Timeframe, error) {
	raw := r.URL.Query().Get("timeframe")
	if raw == "" {
		return mvrv.TimeframeHourly, nil
	}
	tf := mvrv.Timeframe(raw)
	if !tf.Valid() {
		return "", errors.NewValidationError("timeframe", "must be hourly or daily", raw)
	}
	return tf, nil
}

// StatusCode maps an error to an HTTP status
func StatusCode(err error) int {
	switch {
	case errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound), errors.Is(err, errors.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrProviderUnavailable), errors.Is(err, errors.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, errors.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		h.log.Errorw("Control request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
