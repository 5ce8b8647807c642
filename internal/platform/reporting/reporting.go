package reporting

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ict4d/chwmonitor/internal/domain/chw"
)

// ErrUnknownMeasure is returned when a measure id is not in the catalog.
var ErrUnknownMeasure = errors.New("measure not found")

// Source is the read side of the programme data that measures evaluate
// against. *chw.Service satisfies it.
type Source interface {
	DistrictSummary(ctx context.Context, district string) chw.DistrictSummary
	DistrictBreakdown(ctx context.Context) map[string]chw.DistrictTally
	OfflineSyncReport(ctx context.Context) chw.OfflineSyncReport
	VisitStats(ctx context.Context, f chw.VisitFilter) chw.VisitStats
	ListPatients(ctx context.Context, f chw.PatientFilter) []chw.Patient
	VisitVolumeByType(ctx context.Context) map[string]int
	Now() time.Time
}

// Row is one result row of an evaluated measure.
type Row map[string]interface{}

// MeasureDefinition describes a MEAL measure and the query parameters it
// accepts.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
	Required    []string `json:"required,omitempty"`

	evaluate func(ctx context.Context, src Source, params map[string]string) ([]Row, error)
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string            `json:"measure_id"`
	MeasureName string            `json:"measure_name"`
	GeneratedAt time.Time         `json:"generated_at"`
	Results     []Row             `json:"results"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// PredefinedMeasures is the measure catalog.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "district-summary",
		Name:        "District Summary",
		Description: "Workers, patients and visits counted for one district, with the patient to worker ratio",
		Parameters:  []string{"district"},
		Required:    []string{"district"},
		evaluate:    evalDistrictSummary,
	},
	{
		ID:          "district-breakdown",
		Name:        "District Breakdown",
		Description: "Workers per district, with patients and visits attributed through their worker",
		Parameters:  []string{},
		evaluate:    evalDistrictBreakdown,
	},
	{
		ID:          "offline-sync",
		Name:        "Offline Sync Adoption",
		Description: "Visits captured offline, the workers capturing them and the adoption rate",
		Parameters:  []string{},
		evaluate:    evalOfflineSync,
	},
	{
		ID:          "visit-stats",
		Name:        "Visit Statistics",
		Description: "Visit counts by type and routine completion rate, optionally for one worker or patient",
		Parameters:  []string{"worker_id", "patient_id"},
		evaluate:    evalVisitStats,
	},
	{
		ID:          "patients-needing-visits",
		Name:        "Patients Needing Visits",
		Description: "Patients never visited or not visited within the threshold, per assigned worker",
		Parameters:  []string{"days"},
		evaluate:    evalPatientsNeedingVisits,
	},
	{
		ID:          "visit-volume-by-type",
		Name:        "Visit Volume by Type",
		Description: "Number of visits grouped by visit type",
		Parameters:  []string{},
		evaluate:    evalVisitVolumeByType,
	},
}

// FindMeasure looks up a measure by id.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// Evaluate runs the measure id against src. Only parameters the measure
// declares are read from params.
func Evaluate(ctx context.Context, src Source, id string, params map[string]string) (*MeasureReport, error) {
	m := FindMeasure(id)
	if m == nil {
		return nil, ErrUnknownMeasure
	}

	used := map[string]string{}
	for _, p := range m.Parameters {
		if v := params[p]; v != "" {
			used[p] = v
		}
	}
	for _, p := range m.Required {
		if used[p] == "" {
			return nil, &chw.ValidationError{Field: p, Message: "is required"}
		}
	}

	rows, err := m.evaluate(ctx, src, used)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Row{}
	}
	return &MeasureReport{
		MeasureID:   m.ID,
		MeasureName: m.Name,
		GeneratedAt: src.Now(),
		Results:     rows,
		Parameters:  used,
	}, nil
}

func evalDistrictSummary(ctx context.Context, src Source, params map[string]string) ([]Row, error) {
	s := src.DistrictSummary(ctx, params["district"])
	return []Row{{
		"district":             s.District,
		"total_chws":           s.WorkerCount,
		"active_chws":          s.ActiveWorkerCount,
		"total_patients":       s.PatientCount,
		"total_visits":         s.VisitCount,
		"patient_to_chw_ratio": s.PatientToWorkerRatio,
	}}, nil
}

func evalDistrictBreakdown(ctx context.Context, src Source, _ map[string]string) ([]Row, error) {
	breakdown := src.DistrictBreakdown(ctx)
	districts := make([]string, 0, len(breakdown))
	for d := range breakdown {
		districts = append(districts, d)
	}
	sort.Strings(districts)

	rows := make([]Row, 0, len(districts))
	for _, d := range districts {
		t := breakdown[d]
		rows = append(rows, Row{"district": d, "chws": t.Workers, "patients": t.Patients, "visits": t.Visits})
	}
	return rows, nil
}

func evalOfflineSync(ctx context.Context, src Source, _ map[string]string) ([]Row, error) {
	r := src.OfflineSyncReport(ctx)
	return []Row{{
		"total_offline_visits":  r.TotalOffline,
		"unique_chws_offline":   r.UniqueWorkersOffline,
		"last_week_offline":     r.LastWeekOffline,
		"offline_adoption_rate": r.OfflineAdoptionRate,
	}}, nil
}

func evalVisitStats(ctx context.Context, src Source, params map[string]string) ([]Row, error) {
	s := src.VisitStats(ctx, chw.VisitFilter{WorkerID: params["worker_id"], PatientID: params["patient_id"]})
	return []Row{{
		"total_visits":        s.Total,
		"routine_visits":      s.Routine,
		"follow_up_visits":    s.FollowUp,
		"emergency_visits":    s.Emergency,
		"offline_sync_visits": s.OfflineSync,
		"completion_rate":     s.CompletionRate,
	}}, nil
}

func evalPatientsNeedingVisits(ctx context.Context, src Source, params map[string]string) ([]Row, error) {
	days := 0
	if v, ok := params["days"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &chw.ValidationError{Field: "days", Message: "must be a non-negative integer"}
		}
		days = n
	}
	patients := src.ListPatients(ctx, chw.PatientFilter{NeedsVisit: true, ThresholdDays: days})
	byWorker := chw.CountBy(patients, func(p chw.Patient) (string, bool) { return p.WorkerID, true })
	return countRows("chw_id", "patients", byWorker), nil
}

func evalVisitVolumeByType(ctx context.Context, src Source, _ map[string]string) ([]Row, error) {
	return countRows("visit_type", "total", src.VisitVolumeByType(ctx)), nil
}

// countRows turns a tally into rows ordered by count descending, then key.
func countRows(keyCol, countCol string, counts map[string]int) []Row {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	rows := make([]Row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, Row{keyCol: k, countCol: counts[k]})
	}
	return rows
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	src Source
}

// NewHandler creates a new reporting handler.
func NewHandler(src Source) *Handler {
	return &Handler{src: src}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports")
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure evaluates a measure with parameters from the query string.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	params := map[string]string{}
	for k, v := range c.QueryParams() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	report, err := Evaluate(c.Request().Context(), h.src, c.Param("id"), params)
	switch {
	case errors.Is(err, ErrUnknownMeasure):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case chw.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}
