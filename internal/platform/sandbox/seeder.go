// Package sandbox generates synthetic programme data for demos and
// development. Generation is reproducible for a fixed seed and clock, and
// every record is inserted through the service so its relationship upkeep
// applies.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ict4d/chwmonitor/internal/domain/chw"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume of generated data.
type SeedConfig struct {
	Workers  int   `json:"workers"`
	Patients int   `json:"patients"`
	Visits   int   `json:"visits"`
	Seed     int64 `json:"seed"`
}

// DefaultSeedConfig returns the demo volumes: 30 workers, 150 patients and
// 300 visits.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{Workers: 30, Patients: 150, Visits: 300}
}

// MaxSeedRecords bounds each generated collection.
const MaxSeedRecords = 100000

// Validate checks that counts are non-negative and at most MaxSeedRecords,
// and that every patient can be given a worker and every visit a patient.
func (c SeedConfig) Validate() error {
	switch {
	case c.Workers < 0 || c.Patients < 0 || c.Visits < 0:
		return fmt.Errorf("seed counts must be non-negative")
	case c.Workers > MaxSeedRecords || c.Patients > MaxSeedRecords || c.Visits > MaxSeedRecords:
		return fmt.Errorf("seed counts must not exceed %d per collection", MaxSeedRecords)
	case c.Patients > 0 && c.Workers == 0:
		return fmt.Errorf("seeding %d patients requires at least one worker", c.Patients)
	case c.Visits > 0 && c.Patients == 0:
		return fmt.Errorf("seeding %d visits requires at least one patient", c.Visits)
	}
	return nil
}

// SeedResult summarises a seeding run.
type SeedResult struct {
	Workers  int           `json:"workers"`
	Patients int           `json:"patients"`
	Visits   int           `json:"visits"`
	Seed     int64         `json:"seed"`
	Duration time.Duration `json:"duration_ns"`
}

// Total returns the number of records inserted.
func (r SeedResult) Total() int { return r.Workers + r.Patients + r.Visits }

// ---------------------------------------------------------------------------
// Reference data
// ---------------------------------------------------------------------------

// Districts lists the programme districts in generation order.
var Districts = []string{"Turkana", "Elgeyo-Marakwet", "Kajiado", "Nairobi"}

// Villages maps each district to its villages.
var Villages = map[string][]string{
	"Turkana":         {"Lodwar", "Kakuma", "Lokitaung"},
	"Elgeyo-Marakwet": {"Iten", "Kapsowar", "Tambach"},
	"Kajiado":         {"Kajiado Town", "Ngong", "Kitengela"},
	"Nairobi":         {"Kibera", "Mathare", "Kawangware"},
}

var (
	givenNames = []string{
		"Akai", "Amina", "Achieng", "Chebet", "Ekal", "Esther", "Faith", "Grace",
		"Jepkosgei", "Kamau", "Kiprono", "Lokol", "Mercy", "Naipanoi", "Nakiru",
		"Njeri", "Otieno", "Sankale", "Wanjiru", "Wekesa",
	}
	familyNames = []string{
		"Ekiru", "Ewoi", "Kamau", "Kiplagat", "Koech", "Lemayian", "Lotieng",
		"Mwangi", "Njoroge", "Nyambura", "Ochieng", "Odhiambo", "Ole Sankale",
		"Rotich", "Tanui", "Wafula",
	}
	visitNotes = []string{
		"Checked vital signs and discussed nutrition with the household.",
		"Antenatal follow-up, advised on clinic attendance.",
		"Reviewed medication adherence for chronic condition.",
		"Child growth monitoring and immunization card review.",
		"Referred to the nearest health facility for further assessment.",
		"Distributed water treatment tablets and hygiene guidance.",
		"Malaria rapid test performed, result negative.",
		"Follow-up after discharge, patient recovering well.",
		"Counselled on family planning options.",
		"Screened household members for tuberculosis symptoms.",
	}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator draws synthetic records from a seeded source. Dates are
// placed relative to now.
type DataGenerator struct {
	rng *rand.Rand
	now time.Time
}

// NewDataGenerator returns a generator seeded for reproducibility.
func NewDataGenerator(seed int64, now time.Time) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
		now: now,
	}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) name() string {
	return g.pick(givenNames) + " " + g.pick(familyNames)
}

func (g *DataGenerator) phone() string {
	return fmt.Sprintf("+2547%08d", g.rng.Intn(100000000))
}

// within returns a time between now minus span and now, at second
// granularity.
func (g *DataGenerator) within(span time.Duration) time.Time {
	offset := time.Duration(g.rng.Int63n(int64(span/time.Second))) * time.Second
	return g.now.Add(-offset)
}

// GenerateWorker produces a worker in a random district and village; 90% are
// active and all registered within the last two years.
func (g *DataGenerator) GenerateWorker() chw.NewWorker {
	district := g.pick(Districts)
	active := g.rng.Float64() > 0.1
	registered := g.within(2 * 365 * 24 * time.Hour)
	return chw.NewWorker{
		Name:         g.name(),
		Village:      g.pick(Villages[district]),
		District:     district,
		Phone:        g.phone(),
		Active:       &active,
		RegisteredAt: &registered,
	}
}

// GeneratePatient produces a patient living in the worker's village.
func (g *DataGenerator) GeneratePatient(workerID, village string) chw.NewPatient {
	return chw.NewPatient{
		Name:                g.name(),
		Age:                 1 + g.rng.Intn(80),
		Village:             village,
		WorkerID:            workerID,
		Pregnant:            g.rng.Float64() > 0.7,
		HasChronicCondition: g.rng.Float64() > 0.8,
	}
}

// GenerateVisit produces a visit within the last six months. Types are
// weighted 60/30/10 routine, follow-up, emergency and 60% are offline-synced.
func (g *DataGenerator) GenerateVisit(patientID, workerID string) chw.NewVisit {
	return chw.NewVisit{
		PatientID:   patientID,
		WorkerID:    workerID,
		VisitDate:   g.within(183 * 24 * time.Hour),
		VisitType:   g.visitType(),
		Notes:       g.pick(visitNotes),
		OfflineSync: g.rng.Float64() > 0.4,
	}
}

func (g *DataGenerator) visitType() chw.VisitType {
	switch r := g.rng.Float64(); {
	case r < 0.6:
		return chw.VisitRoutine
	case r < 0.9:
		return chw.VisitFollowUp
	default:
		return chw.VisitEmergency
	}
}

// ---------------------------------------------------------------------------
// Seeding
// ---------------------------------------------------------------------------

// Target receives generated records. *chw.Service satisfies it.
type Target interface {
	CreateWorker(ctx context.Context, in chw.NewWorker) (string, error)
	CreatePatient(ctx context.Context, in chw.NewPatient) (string, error)
	CreateVisit(ctx context.Context, in chw.NewVisit) (string, error)
	Reset(ctx context.Context)
	Now() time.Time
}

// Progress is called after each inserted record with the running count and
// the total to insert.
type Progress func(done, total int)

// Seed resets target and fills it according to cfg. A zero cfg.Seed picks a
// time-based seed, reported in the result.
func Seed(ctx context.Context, target Target, cfg SeedConfig, progress Progress) (*SeedResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	seed := cfg.Seed
	if seed == 0 {
		seed = start.UnixNano()
	}
	if progress == nil {
		progress = func(int, int) {}
	}

	target.Reset(ctx)
	g := NewDataGenerator(seed, target.Now())
	result := &SeedResult{Seed: seed}
	total := cfg.Workers + cfg.Patients + cfg.Visits

	type seededWorker struct{ id, village string }
	type seededPatient struct{ id, workerID string }

	workers := make([]seededWorker, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		in := g.GenerateWorker()
		id, err := target.CreateWorker(ctx, in)
		if err != nil {
			return result, fmt.Errorf("seeding worker %d: %w", i, err)
		}
		workers = append(workers, seededWorker{id: id, village: in.Village})
		result.Workers++
		progress(result.Total(), total)
	}

	patients := make([]seededPatient, 0, cfg.Patients)
	for i := 0; i < cfg.Patients; i++ {
		w := workers[g.rng.Intn(len(workers))]
		id, err := target.CreatePatient(ctx, g.GeneratePatient(w.id, w.village))
		if err != nil {
			return result, fmt.Errorf("seeding patient %d: %w", i, err)
		}
		patients = append(patients, seededPatient{id: id, workerID: w.id})
		result.Patients++
		progress(result.Total(), total)
	}

	for i := 0; i < cfg.Visits; i++ {
		p := patients[g.rng.Intn(len(patients))]
		if _, err := target.CreateVisit(ctx, g.GenerateVisit(p.id, p.workerID)); err != nil {
			return result, fmt.Errorf("seeding visit %d: %w", i, err)
		}
		result.Visits++
		progress(result.Total(), total)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// ---------------------------------------------------------------------------
// NDJSON export
// ---------------------------------------------------------------------------

// ExportLine is one line of the NDJSON export.
type ExportLine struct {
	Type   string      `json:"type"` // worker, patient, visit
	Record interface{} `json:"record"`
}

// ExportNDJSON writes snap as newline-delimited JSON, workers first, then
// patients, then visits.
func ExportNDJSON(w io.Writer, snap chw.Snapshot, progress Progress) error {
	if progress == nil {
		progress = func(int, int) {}
	}
	total := len(snap.Workers) + len(snap.Patients) + len(snap.Visits)
	enc := json.NewEncoder(w)
	done := 0
	write := func(kind string, rec interface{}) error {
		if err := enc.Encode(ExportLine{Type: kind, Record: rec}); err != nil {
			return fmt.Errorf("encoding %s: %w", kind, err)
		}
		done++
		progress(done, total)
		return nil
	}

	for _, r := range snap.Workers {
		if err := write("worker", r); err != nil {
			return err
		}
	}
	for _, r := range snap.Patients {
		if err := write("patient", r); err != nil {
			return err
		}
	}
	for _, r := range snap.Visits {
		if err := write("visit", r); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// SeedHandler — Echo HTTP handlers
// ---------------------------------------------------------------------------

// Service is the programme service the sandbox endpoints drive.
type Service interface {
	Target
	Snapshot(ctx context.Context) chw.Snapshot
}

// SeedHandler provides HTTP endpoints for sandbox data management.
type SeedHandler struct {
	svc      Service
	defaults SeedConfig
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewSeedHandler creates a handler that seeds svc. Request bodies override
// fields of defaults.
func NewSeedHandler(svc Service, defaults SeedConfig, logger zerolog.Logger) *SeedHandler {
	return &SeedHandler{svc: svc, defaults: defaults, logger: logger}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
	g.GET("/export", h.handleExport)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	cfg := h.defaults
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := Seed(c.Request().Context(), h.svc, cfg, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info().
		Int("workers", result.Workers).
		Int("patients", result.Patients).
		Int("visits", result.Visits).
		Int64("seed", result.Seed).
		Dur("duration", result.Duration).
		Msg("sandbox seeded")
	return c.JSON(http.StatusOK, result)
}

func (h *SeedHandler) handleExport(c echo.Context) error {
	snap := h.svc.Snapshot(c.Request().Context())
	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().WriteHeader(http.StatusOK)
	return ExportNDJSON(c.Response().Writer, snap, nil)
}
