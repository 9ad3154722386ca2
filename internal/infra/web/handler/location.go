package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/DioGolang/GoTracker/internal/application/usecase/location"
	"github.com/DioGolang/GoTracker/internal/infra/web/middleware"
	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// MaxReportBodyBytes caps a single location report.
const MaxReportBodyBytes = 16 << 10

type Location struct {
	IngestUseCase    location.IngestUseCase
	NearestUseCase   location.NearestUseCase
	GetDriverUseCase location.GetDriverUseCase
	Rebuilder        location.IndexRebuilder
	Logger           logger.Logger
}

func NewLocationHandler(
	ingest location.IngestUseCase,
	nearest location.NearestUseCase,
	getDriver location.GetDriverUseCase,
	rebuilder location.IndexRebuilder,
	log logger.Logger,
) *Location {
	return &Location{
		IngestUseCase:    ingest,
		NearestUseCase:   nearest,
		GetDriverUseCase: getDriver,
		Rebuilder:        rebuilder,
		Logger:           log,
	}
}

// Report handles POST /api/v1/locations.
// 202 accepted, 200 discarded as stale, 422 rejected, 503 backlog saturated.
func (h *Location) Report(w http.ResponseWriter, r *http.Request) {
	var input location.IngestInput
	body := http.MaxBytesReader(w, r.Body, MaxReportBodyBytes)
	if err := json.NewDecoder(body).Decode(&input); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "report body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if input.SourceIP == "" && input.Latitude == nil && input.Longitude == nil {
		input.SourceIP = middleware.ClientIP(r)
	}

	output, err := h.IngestUseCase.Execute(r.Context(), input)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.Logger.Error(r.Context(), "ingest failed",
				logger.String("driver_id", input.DriverID), logger.WithError(err))
		}
		writeError(w, err)
		return
	}

	status := http.StatusAccepted
	if output.Status == location.StatusDiscarded {
		status = http.StatusOK
	}
	writeJSON(w, status, output)
}

// GetDriver handles GET /api/v1/drivers/{driverID}.
func (h *Location) GetDriver(w http.ResponseWriter, r *http.Request) {
	output, err := h.GetDriverUseCase.Execute(r.Context(), location.GetDriverInput{
		DriverID: chi.URLParam(r, "driverID"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

// Nearest handles GET /api/v1/dispatch/nearest?lat=&lng=&k=&radius_km=.
func (h *Location) Nearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		input location.NearestInput
		err   error
	)
	if input.Latitude, err = strconv.ParseFloat(q.Get("lat"), 64); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lat must be a number"})
		return
	}
	if input.Longitude, err = strconv.ParseFloat(q.Get("lng"), 64); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lng must be a number"})
		return
	}
	if v := q.Get("k"); v != "" {
		if input.K, err = strconv.Atoi(v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "k must be an integer"})
			return
		}
	}
	if v := q.Get("radius_km"); v != "" {
		if input.MaxRadiusKm, err = strconv.ParseFloat(v, 64); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "radius_km must be a number"})
			return
		}
	}

	output, err := h.NearestUseCase.Execute(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

// RebuildIndex handles POST /api/v1/admin/index/rebuild.
func (h *Location) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	n, err := h.Rebuilder.Rebuild(r.Context())
	if err != nil {
		h.Logger.Error(r.Context(), "manual index rebuild failed", logger.WithError(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"indexed": n})
}
