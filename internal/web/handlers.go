package web

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"socialchef-insights/internal/db"
	"socialchef-insights/internal/report"
	"socialchef-insights/internal/stats"
)

const maxBodyBytes = 1 << 20

// writeJSON encodes v before touching the response, so an encoding failure still yields
// a 500 with a body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(map[string]string{"error": "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

type snapshotResponse struct {
	ID         int64  `json:"id"`
	UUID       string `json:"uuid"`
	BrandID    string `json:"brand_id"`
	SyncedAt   string `json:"synced_at"`
	WindowDays int    `json:"window_days"`
	Timezone   string `json:"timezone"`
	Source     string `json:"source"`
	Notes      string `json:"notes"`
	PostCount  int    `json:"post_count"`
}

func toSnapshotResponse(sn db.Snapshot) snapshotResponse {
	return snapshotResponse{
		ID:         sn.ID,
		UUID:       sn.UUID,
		BrandID:    sn.BrandID,
		SyncedAt:   sn.SyncedAt.Format(time.RFC3339),
		WindowDays: sn.WindowDays,
		Timezone:   sn.Timezone,
		Source:     sn.Source,
		Notes:      sn.Notes,
		PostCount:  sn.PostCount,
	}
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := parseSince(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: use RFC 3339 or YYYY-MM-DD")
			return
		}
		since = t
	}

	snapshots, err := s.db.ListSnapshots(limit, r.URL.Query().Get("brand"), since)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}

	response := make([]snapshotResponse, 0, len(snapshots))
	for _, sn := range snapshots {
		response = append(response, toSnapshotResponse(sn))
	}
	writeJSON(w, http.StatusOK, response)
}

func parseSince(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func parseSnapshotID(w http.ResponseWriter, idStr string) (int64, bool) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid snapshot id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, idStr string) {
	if !allowMethods(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	id, ok := parseSnapshotID(w, idStr)
	if !ok {
		return
	}

	sn, err := s.db.GetSnapshot(id)
	if err != nil {
		s.writeLookupError(w, r, err, "snapshot not found")
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.db.DeleteSnapshot(id); err != nil {
			s.writeLookupError(w, r, err, "snapshot not found")
			return
		}
		if err := s.reports.Forget(sn.UUID); err != nil {
			s.logger.Warn("failed to drop cached reports", zap.Int64("snapshot_id", id), zap.Error(err))
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, toSnapshotResponse(*sn))
}

func (s *Server) handleSnapshotReport(w http.ResponseWriter, r *http.Request, idStr, name string) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	id, ok := parseSnapshotID(w, idStr)
	if !ok {
		return
	}
	s.writeReport(w, r, id, name)
}

func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, id int64, name string) {
	data, err := s.reports.Render(id, name)
	if err != nil {
		switch {
		case errors.Is(err, report.ErrUnknownReport):
			writeError(w, http.StatusNotFound, "unknown report "+strconv.Quote(name))
		case errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, "snapshot not found")
		default:
			s.writeInternal(w, r, err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// handleBrandReport serves /api/brands/{brand}/{report} from the brand's latest snapshot.
func (s *Server) handleBrandReport(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/brands/"), "/")
	brand, name, ok := strings.Cut(rest, "/")
	if !ok || brand == "" || name == "" {
		writeError(w, http.StatusNotFound, "expected /api/brands/{brand}/{report}")
		return
	}

	sn, err := s.db.LatestSnapshot(brand)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "no snapshot for brand")
			return
		}
		s.writeInternal(w, r, err)
		return
	}
	s.writeReport(w, r, sn.ID, name)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	baseID, errBase := strconv.ParseInt(r.URL.Query().Get("base"), 10, 64)
	targetID, errTarget := strconv.ParseInt(r.URL.Query().Get("target"), 10, 64)
	if errBase != nil || errTarget != nil {
		writeError(w, http.StatusBadRequest, "invalid snapshot ids")
		return
	}

	base, _, err := s.reports.AnalyzerFor(baseID)
	if err != nil {
		s.writeLookupError(w, r, err, "base snapshot not found")
		return
	}
	target, _, err := s.reports.AnalyzerFor(targetID)
	if err != nil {
		s.writeLookupError(w, r, err, "target snapshot not found")
		return
	}

	writeJSON(w, http.StatusOK, report.Compare(baseID, base, targetID, target))
}

func (s *Server) writeLookupError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	s.writeInternal(w, r, err)
}

// SampleSummary describes a sample with every estimator.
type SampleSummary struct {
	N                      int                   `json:"n"`
	Mean                   float64               `json:"mean"`
	StandardDeviation      float64               `json:"standard_deviation"`
	StandardError          float64               `json:"standard_error"`
	ConfidenceInterval     stats.Interval        `json:"confidence_interval"`
	CoefficientOfVariation float64               `json:"coefficient_of_variation"`
	ConfidenceLevel        stats.ConfidenceLevel `json:"confidence_level"`
}

// ParseValues parses a comma separated list of numbers. Empty input is an empty sample.
func ParseValues(raw string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q", errNonFinite, strings.TrimSpace(p))
		}
		values = append(values, v)
	}
	return values, nil
}

var errNonFinite = errors.New("value is not a finite number")

// Finite reports whether every estimate is a finite number. Samples near the float64
// range can overflow in the interval bounds.
func (s SampleSummary) Finite() bool {
	for _, v := range []float64{s.Mean, s.StandardDeviation, s.StandardError, s.CoefficientOfVariation, s.ConfidenceInterval.Lower(), s.ConfidenceInterval.Upper()} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Describe summarises a sample with every estimator.
func Describe(values []float64) SampleSummary {
	cv := stats.CoefficientOfVariation(values)
	return SampleSummary{
		N:                      len(values),
		Mean:                   stats.Mean(values),
		StandardDeviation:      stats.StandardDeviation(values),
		StandardError:          stats.StandardError(values),
		ConfidenceInterval:     stats.ConfidenceInterval95(values),
		CoefficientOfVariation: cv,
		ConfidenceLevel:        stats.ConfidenceLevelFor(len(values), cv),
	}
}

func (s *Server) handleInterval(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	values, err := ParseValues(r.URL.Query().Get("values"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "values must be comma separated finite numbers")
		return
	}
	summary := Describe(values)
	if !summary.Finite() {
		writeError(w, http.StatusBadRequest, "values are too large to summarise")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type correlationRequest struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

type correlationResponse struct {
	R float64 `json:"r"`
	N int     `json:"n"`
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req correlationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	writeJSON(w, http.StatusOK, correlationResponse{
		R: stats.PearsonCorrelation(req.X, req.Y),
		N: min(len(req.X), len(req.Y)),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
