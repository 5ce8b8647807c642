package chw

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ict4d/chwmonitor/pkg/pagination"
)

// DefaultRecentVisitDays is the window of a worker's visit history when the
// caller does not pass days.
const DefaultRecentVisitDays = 30

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/workers", h.ListWorkers)
	api.GET("/workers/:id", h.GetWorker)
	api.GET("/workers/:id/patients", h.WorkerPatients)
	api.GET("/workers/:id/visits", h.WorkerVisits)
	api.GET("/workers/:id/visit-stats", h.WorkerVisitStats)
	api.GET("/workers/:id/profile", h.WorkerProfile)
	api.POST("/workers", h.CreateWorker)
	api.PUT("/workers/:id", h.UpdateWorker)
	api.PATCH("/workers/:id", h.UpdateWorker)
	api.DELETE("/workers/:id", h.DeleteWorker)

	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.GET("/patients/:id/worker", h.PatientWorker)
	api.GET("/patients/:id/visits", h.PatientVisits)
	api.GET("/patients/:id/visit-stats", h.PatientVisitStats)
	api.GET("/patients/:id/profile", h.PatientProfile)
	api.POST("/patients", h.CreatePatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.PATCH("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)

	api.GET("/visits", h.ListVisits)
	api.GET("/visits/:id", h.GetVisit)
	api.POST("/visits", h.CreateVisit)
	api.PUT("/visits/:id", h.UpdateVisit)
	api.PATCH("/visits/:id", h.UpdateVisit)
	api.DELETE("/visits/:id", h.DeleteVisit)

	api.GET("/districts", h.DistrictBreakdown)
	api.GET("/districts/:district/summary", h.DistrictSummary)
	api.GET("/offline-sync", h.OfflineSync)
	api.GET("/visit-stats", h.VisitStats)
	api.GET("/stats", h.Dashboard)
}

// -- Response shapes --

type workerResponse struct {
	Worker
	YearsActive float64 `json:"years_active"`
}

type patientResponse struct {
	Patient
	NeedsVisit bool `json:"needs_visit"`
}

type visitResponse struct {
	Visit
	Summary string `json:"summary"`
}

func (h *Handler) worker(w Worker) workerResponse {
	return workerResponse{Worker: w, YearsActive: w.YearsActive(h.svc.Now())}
}

func (h *Handler) workers(ws []Worker) []workerResponse {
	out := make([]workerResponse, len(ws))
	for i, w := range ws {
		out[i] = h.worker(w)
	}
	return out
}

func (h *Handler) patient(p Patient) patientResponse {
	return patientResponse{Patient: p, NeedsVisit: p.NeedsVisit(h.svc.Now(), h.svc.NeedsVisitDays())}
}

func (h *Handler) patients(ps []Patient) []patientResponse {
	out := make([]patientResponse, len(ps))
	for i, p := range ps {
		out[i] = h.patient(p)
	}
	return out
}

func visits(vs []Visit) []visitResponse {
	out := make([]visitResponse, len(vs))
	for i, v := range vs {
		out[i] = visitResponse{Visit: v, Summary: v.Summary()}
	}
	return out
}

// -- Workers --

func (h *Handler) ListWorkers(c echo.Context) error {
	f := WorkerFilter{District: c.QueryParam("district")}
	active, err := statusParam(c)
	if err != nil {
		return httpError(err)
	}
	f.Active = active
	pg := pagination.FromContext(c)
	items := h.svc.ListWorkers(c.Request().Context(), f)
	return c.JSON(http.StatusOK, pagination.Page(h.workers(items), pg))
}

func (h *Handler) GetWorker(c echo.Context) error {
	w, err := h.svc.GetWorker(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.worker(w))
}

func (h *Handler) WorkerPatients(c echo.Context) error {
	ps, err := h.svc.WorkerPatients(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.patients(ps))
}

func (h *Handler) WorkerVisits(c echo.Context) error {
	days, err := intParam(c, "days", DefaultRecentVisitDays)
	if err != nil {
		return httpError(err)
	}
	vs, err := h.svc.WorkerVisits(c.Request().Context(), c.Param("id"), days)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, visits(LatestVisits(vs, 0)))
}

func (h *Handler) WorkerVisitStats(c echo.Context) error {
	stats, err := h.svc.WorkerVisitStats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) WorkerProfile(c echo.Context) error {
	p, err := h.svc.WorkerProfile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreateWorker(c echo.Context) error {
	var in NewWorker
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	id, err := h.svc.CreateWorker(ctx, in)
	if err != nil {
		return httpError(err)
	}
	w, err := h.svc.GetWorker(ctx, id)
	if err != nil {
		return httpError(err)
	}
	setLocation(c, id)
	return c.JSON(http.StatusCreated, h.worker(w))
}

func (h *Handler) UpdateWorker(c echo.Context) error {
	var u WorkerUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	w, err := h.svc.UpdateWorker(c.Request().Context(), c.Param("id"), u)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.worker(w))
}

func (h *Handler) DeleteWorker(c echo.Context) error {
	if err := h.svc.DeleteWorker(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Patients --

func (h *Handler) ListPatients(c echo.Context) error {
	f := PatientFilter{WorkerID: c.QueryParam("worker_id")}
	if f.WorkerID == "" {
		f.WorkerID = c.QueryParam("chw_id")
	}
	needs, err := boolParam(c, "needs_visit")
	if err != nil {
		return httpError(err)
	}
	f.NeedsVisit = needs != nil && *needs
	if f.ThresholdDays, err = intParam(c, "days", 0); err != nil {
		return httpError(err)
	}
	pg := pagination.FromContext(c)
	items := h.svc.ListPatients(c.Request().Context(), f)
	return c.JSON(http.StatusOK, pagination.Page(h.patients(items), pg))
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.patient(p))
}

// PatientWorker responds with the assigned worker, or JSON null when the
// assignment dangles.
func (h *Handler) PatientWorker(c echo.Context) error {
	w, err := h.svc.PatientWorker(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	if w == nil {
		return c.JSON(http.StatusOK, nil)
	}
	return c.JSON(http.StatusOK, h.worker(*w))
}

func (h *Handler) PatientVisits(c echo.Context) error {
	vs, err := h.svc.PatientVisits(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, visits(LatestVisits(vs, 0)))
}

func (h *Handler) PatientVisitStats(c echo.Context) error {
	stats, err := h.svc.PatientVisitStats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) PatientProfile(c echo.Context) error {
	p, err := h.svc.PatientProfile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var in NewPatient
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	id, err := h.svc.CreatePatient(ctx, in)
	if err != nil {
		return httpError(err)
	}
	p, err := h.svc.GetPatient(ctx, id)
	if err != nil {
		return httpError(err)
	}
	setLocation(c, id)
	return c.JSON(http.StatusCreated, h.patient(p))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var u PatientUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), c.Param("id"), u)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.patient(p))
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.svc.DeletePatient(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Visits --

// visitRequest is the wire form of a visit write. visit_date accepts
// RFC 3339 or a bare YYYY-MM-DD date.
type visitRequest struct {
	PatientID   *string    `json:"patient_id"`
	WorkerID    *string    `json:"chw_id"`
	VisitDate   *string    `json:"visit_date"`
	VisitType   *VisitType `json:"visit_type"`
	Notes       *string    `json:"notes"`
	Latitude    *float64   `json:"location_lat"`
	Longitude   *float64   `json:"location_lon"`
	OfflineSync *bool      `json:"is_offline_sync"`
}

func (r visitRequest) update() (VisitUpdate, error) {
	u := VisitUpdate{
		PatientID:   r.PatientID,
		WorkerID:    r.WorkerID,
		VisitType:   r.VisitType,
		Notes:       r.Notes,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		OfflineSync: r.OfflineSync,
	}
	if r.VisitDate != nil {
		t, err := ParseVisitDate(*r.VisitDate)
		if err != nil {
			return VisitUpdate{}, err
		}
		u.VisitDate = &t
	}
	return u, nil
}

func (r visitRequest) create() (NewVisit, error) {
	u, err := r.update()
	if err != nil {
		return NewVisit{}, err
	}
	in := NewVisit{Latitude: u.Latitude, Longitude: u.Longitude}
	if u.PatientID != nil {
		in.PatientID = *u.PatientID
	}
	if u.WorkerID != nil {
		in.WorkerID = *u.WorkerID
	}
	if u.VisitDate != nil {
		in.VisitDate = *u.VisitDate
	}
	if u.VisitType != nil {
		in.VisitType = *u.VisitType
	}
	if u.Notes != nil {
		in.Notes = *u.Notes
	}
	if u.OfflineSync != nil {
		in.OfflineSync = *u.OfflineSync
	}
	return in, nil
}

// ParseVisitDate accepts an RFC 3339 timestamp or a YYYY-MM-DD date (UTC
// midnight).
func ParseVisitDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, invalid("visit_date", "expected RFC 3339 or YYYY-MM-DD, got %q", s)
}

func (h *Handler) ListVisits(c echo.Context) error {
	f := VisitFilter{
		WorkerID:  c.QueryParam("worker_id"),
		PatientID: c.QueryParam("patient_id"),
		VisitType: VisitType(c.QueryParam("type")),
	}
	if f.VisitType != "" && !f.VisitType.Valid() {
		return httpError(invalid("type", "unknown visit type %q", f.VisitType))
	}
	var err error
	if f.WithinDays, err = intParam(c, "days", 0); err != nil {
		return httpError(err)
	}
	if f.OfflineSync, err = boolParam(c, "offline"); err != nil {
		return httpError(err)
	}
	pg := pagination.FromContext(c)
	items := h.svc.ListVisits(c.Request().Context(), f)
	return c.JSON(http.StatusOK, pagination.Page(visits(items), pg))
}

func (h *Handler) GetVisit(c echo.Context) error {
	v, err := h.svc.GetVisit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, visits([]Visit{v})[0])
}

func (h *Handler) CreateVisit(c echo.Context) error {
	var req visitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in, err := req.create()
	if err != nil {
		return httpError(err)
	}
	ctx := c.Request().Context()
	id, err := h.svc.CreateVisit(ctx, in)
	if err != nil {
		return httpError(err)
	}
	v, err := h.svc.GetVisit(ctx, id)
	if err != nil {
		return httpError(err)
	}
	setLocation(c, id)
	return c.JSON(http.StatusCreated, visits([]Visit{v})[0])
}

func (h *Handler) UpdateVisit(c echo.Context) error {
	var req visitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := req.update()
	if err != nil {
		return httpError(err)
	}
	v, err := h.svc.UpdateVisit(c.Request().Context(), c.Param("id"), u)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, visits([]Visit{v})[0])
}

func (h *Handler) DeleteVisit(c echo.Context) error {
	if err := h.svc.DeleteVisit(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Reports --

func (h *Handler) DistrictSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.DistrictSummary(c.Request().Context(), c.Param("district")))
}

func (h *Handler) DistrictBreakdown(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.DistrictBreakdown(c.Request().Context()))
}

func (h *Handler) OfflineSync(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.OfflineSyncReport(c.Request().Context()))
}

func (h *Handler) VisitStats(c echo.Context) error {
	f := VisitFilter{WorkerID: c.QueryParam("worker_id"), PatientID: c.QueryParam("patient_id")}
	return c.JSON(http.StatusOK, h.svc.VisitStats(c.Request().Context(), f))
}

func (h *Handler) Dashboard(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Dashboard(c.Request().Context()))
}

// -- Helpers --

func setLocation(c echo.Context, id string) {
	c.Response().Header().Set(echo.HeaderLocation, strings.TrimSuffix(c.Request().URL.Path, "/")+"/"+id)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// statusParam reads the worker status filter from status=active|inactive or
// active=true|false.
func statusParam(c echo.Context) (*bool, error) {
	switch status := c.QueryParam("status"); status {
	case "":
		return boolParam(c, "active")
	case "active":
		v := true
		return &v, nil
	case "inactive":
		v := false
		return &v, nil
	default:
		return nil, invalid("status", "must be active or inactive, got %q", status)
	}
}

func boolParam(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, invalid(name, "must be a boolean, got %q", raw)
	}
	return &v, nil
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, invalid(name, "must be a non-negative integer, got %q", raw)
	}
	return v, nil
}
