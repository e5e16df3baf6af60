package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ricesearch/quickquery/internal/app"
	"github.com/ricesearch/quickquery/internal/fallback"
	"github.com/ricesearch/quickquery/internal/manager"
	"github.com/ricesearch/quickquery/internal/metrics"
	apperrors "github.com/ricesearch/quickquery/internal/pkg/errors"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
)

// maxBodyBytes bounds request bodies; history and attachments included.
const maxBodyBytes = 1 << 20

type handlers struct {
	app     *app.App
	version string
	log     *logger.Logger
}

// AnswerRequest is the body of POST /v1/answer.
type AnswerRequest struct {
	Query       string                `json:"query"`
	UserID      string                `json:"user_id,omitempty"`
	BypassCache bool                  `json:"bypass_cache,omitempty"`
	History     []fallback.Message    `json:"history,omitempty"`
	Attachments []fallback.Attachment `json:"attachments,omitempty"`
}

// CompareRequest is the body of POST /v1/compare.
type CompareRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

// CacheStatsResponse is the body of GET /v1/cache/stats.
type CacheStatsResponse struct {
	Enabled           bool    `json:"enabled"`
	Entries           int     `json:"entries"`
	Hits              int64   `json:"hits"`
	Misses            int64   `json:"misses"`
	HitRate           float64 `json:"hit_rate"`
	AverageSimilarity float64 `json:"average_similarity"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperrors.InvalidRequestError("request body too large")
		case errors.Is(err, io.EOF):
			return apperrors.InvalidRequestError("request body is empty")
		default:
			return apperrors.InvalidRequestError("invalid request body: " + err.Error())
		}
	}
	return nil
}

func window(r *http.Request) (metrics.Window, error) {
	w, err := metrics.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		return "", apperrors.ValidationError(err.Error())
	}
	return w, nil
}

func (h *handlers) answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := decode(w, r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		apperrors.WriteError(w, apperrors.ValidationError("query is required"))
		return
	}

	ans := h.app.Manager.ProcessQuery(r.Context(), req.Query, manager.Options{
		UserID:      req.UserID,
		BypassCache: req.BypassCache,
		History:     req.History,
		Attachments: req.Attachments,
	})
	writeJSON(w, http.StatusOK, ans)
}

func (h *handlers) compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := decode(w, r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		apperrors.WriteError(w, apperrors.ValidationError("query is required"))
		return
	}

	cmp := h.app.Manager.CompareVersions(r.Context(), req.Query, manager.Options{
		UserID:          req.UserID,
		ForceComparison: req.Force,
	})
	writeJSON(w, http.StatusOK, cmp)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status, err := h.app.Manager.Health(r.Context())
	code := http.StatusOK
	if err != nil {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *handlers) versionInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	win, err := window(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Metrics.Stats(r.Context(), win))
}

func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	win, err := window(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.app.Metrics.Report(r.Context(), win))
}

func (h *handlers) exportCSV(w http.ResponseWriter, r *http.Request) {
	win, err := window(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	out, err := h.app.Metrics.ExportCSV(r.Context(), win)
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Error("CSV export failed")
		apperrors.WriteError(w, apperrors.Wrap(apperrors.CodeInternal, "export failed", err))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "quickquery-metrics-"+string(win)+".csv"))
	_, _ = io.WriteString(w, out)
}

func (h *handlers) cacheStats(w http.ResponseWriter, r *http.Request) {
	if h.app.Cache == nil {
		writeJSON(w, http.StatusOK, CacheStatsResponse{})
		return
	}
	st := h.app.Cache.Stats(r.Context())
	writeJSON(w, http.StatusOK, CacheStatsResponse{
		Enabled:           true,
		Entries:           st.Entries,
		Hits:              st.Hits,
		Misses:            st.Misses,
		HitRate:           st.HitRate(),
		AverageSimilarity: st.AverageSimilarity(),
	})
}

func (h *handlers) clearCache(w http.ResponseWriter, r *http.Request) {
	if h.app.Cache != nil {
		h.app.Cache.Clear(r.Context())
		h.log.WithContext(r.Context()).Info("Cache cleared")
	}
	w.WriteHeader(http.StatusNoContent)
}
