package chw

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Service is the data-access API over a Store. It applies the cross-record
// side effects of every mutation (worker assignment lists, patient last
// visit dates) and serializes access with a read/write lock, since neither
// the store nor the query and aggregation functions lock.
type Service struct {
	mu             sync.RWMutex
	store          Store
	logger         zerolog.Logger
	now            func() time.Time
	needsVisitDays int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for recency calculations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNeedsVisitDays sets the default needs-visit threshold.
func WithNeedsVisitDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.needsVisitDays = days
		}
	}
}

func NewService(store Store, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:          store,
		logger:         logger,
		now:            time.Now,
		needsVisitDays: DefaultNeedsVisitDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NeedsVisitDays returns the default needs-visit threshold.
func (s *Service) NeedsVisitDays() int { return s.needsVisitDays }

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.now() }

// Snapshot copies all three collections.
func (s *Service) Snapshot(_ context.Context) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return takeSnapshot(s.store)
}

// Reset drops every record and restarts the identifier sequences.
func (s *Service) Reset(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Reset()
	s.logger.Info().Msg("record store reset")
}

// -- Workers --

func (s *Service) ListWorkers(_ context.Context, f WorkerFilter) []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterWorkers(s.store.Workers().All(), f)
}

func (s *Service) GetWorker(_ context.Context, id string) (Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.store.Workers().Get(id)
	if !ok {
		return Worker{}, ErrNotFound
	}
	return w, nil
}

func (s *Service) CreateWorker(_ context.Context, in NewWorker) (string, error) {
	w := Worker{
		Name:             strings.TrimSpace(in.Name),
		Village:          strings.TrimSpace(in.Village),
		District:         strings.TrimSpace(in.District),
		Phone:            strings.TrimSpace(in.Phone),
		Active:           true,
		PatientsAssigned: []string{},
	}
	if in.Active != nil {
		w.Active = *in.Active
	}
	if err := validateWorker(w); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	w.RegisteredAt = s.now()
	if in.RegisteredAt != nil {
		w.RegisteredAt = *in.RegisteredAt
	}
	id := s.store.Workers().Insert(w)
	s.logger.Debug().Str("chw_id", id).Str("district", w.District).Msg("worker created")
	return id, nil
}

func (s *Service) UpdateWorker(_ context.Context, id string, u WorkerUpdate) (Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.store.Workers().Get(id)
	if !ok {
		return Worker{}, ErrNotFound
	}
	setTrimmed(&cur.Name, u.Name)
	setTrimmed(&cur.Village, u.Village)
	setTrimmed(&cur.District, u.District)
	setTrimmed(&cur.Phone, u.Phone)
	if u.Active != nil {
		cur.Active = *u.Active
	}
	if err := validateWorker(cur); err != nil {
		return Worker{}, err
	}
	updated, _ := s.store.Workers().Update(id, func(w *Worker) { *w = cur })
	s.logger.Debug().Str("chw_id", id).Msg("worker updated")
	return updated, nil
}

// DeleteWorker removes the worker only. Assigned patients and recorded
// visits keep their now-dangling reference.
func (s *Service) DeleteWorker(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.store.Workers().Delete(id) {
		return ErrNotFound
	}
	s.logger.Debug().Str("chw_id", id).Msg("worker deleted")
	return nil
}

// WorkerPatients resolves the worker's patients from Patient.WorkerID. A
// disagreeing cached assignment list is logged and resynchronised.
func (s *Service) WorkerPatients(_ context.Context, id string) ([]Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.store.Workers().Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	patients := s.store.Patients().All()
	resolved := PatientsOf(w, patients)
	if drift := assignmentDrift(w, patients); len(drift) > 0 {
		s.logger.Warn().Str("chw_id", id).Strs("patient_ids", drift).Msg("assignment list out of sync, rebuilding")
		ids := make([]string, 0, len(resolved))
		for _, p := range resolved {
			ids = append(ids, p.ID)
		}
		s.store.Workers().Update(id, func(w *Worker) { w.PatientsAssigned = ids })
	}
	return resolved, nil
}

// WorkerVisits returns the worker's visits; days > 0 restricts them to that
// recency window.
func (s *Service) WorkerVisits(_ context.Context, id string, days int) ([]Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.store.Workers().Get(id); !ok {
		return nil, ErrNotFound
	}
	return FilterVisits(s.store.Visits().All(), VisitFilter{WorkerID: id, WithinDays: days}, s.now()), nil
}

func (s *Service) WorkerProfile(_ context.Context, id string) (WorkerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.store.Workers().Get(id)
	if !ok {
		return WorkerProfile{}, ErrNotFound
	}
	return ComputeWorkerProfile(w, takeSnapshot(s.store), s.now(), s.needsVisitDays), nil
}

// -- Patients --

func (s *Service) ListPatients(_ context.Context, f PatientFilter) []Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f.ThresholdDays <= 0 {
		f.ThresholdDays = s.needsVisitDays
	}
	return FilterPatients(s.store.Patients().All(), f, s.now())
}

func (s *Service) GetPatient(_ context.Context, id string) (Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.store.Patients().Get(id)
	if !ok {
		return Patient{}, ErrNotFound
	}
	return p, nil
}

// CreatePatient registers a patient and appends it to the assigned worker's
// list.
func (s *Service) CreatePatient(_ context.Context, in NewPatient) (string, error) {
	p := Patient{
		Name:                strings.TrimSpace(in.Name),
		Age:                 in.Age,
		Village:             strings.TrimSpace(in.Village),
		WorkerID:            strings.TrimSpace(in.WorkerID),
		Pregnant:            in.Pregnant,
		HasChronicCondition: in.HasChronicCondition,
	}
	if err := validatePatient(p); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.store.Workers().Get(p.WorkerID); !ok {
		return "", invalid("chw_id", "worker %q does not exist", p.WorkerID)
	}
	id := s.store.Patients().Insert(p)
	s.assign(id, p.WorkerID)
	s.logger.Debug().Str("patient_id", id).Str("chw_id", p.WorkerID).Msg("patient created")
	return id, nil
}

// UpdatePatient applies u. A changed worker id moves the patient between the
// two workers' assignment lists in the same critical section.
func (s *Service) UpdatePatient(_ context.Context, id string, u PatientUpdate) (Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.store.Patients().Get(id)
	if !ok {
		return Patient{}, ErrNotFound
	}
	oldWorker := cur.WorkerID
	setTrimmed(&cur.Name, u.Name)
	setTrimmed(&cur.Village, u.Village)
	setTrimmed(&cur.WorkerID, u.WorkerID)
	if u.Age != nil {
		cur.Age = *u.Age
	}
	if u.Pregnant != nil {
		cur.Pregnant = *u.Pregnant
	}
	if u.HasChronicCondition != nil {
		cur.HasChronicCondition = *u.HasChronicCondition
	}
	if err := validatePatient(cur); err != nil {
		return Patient{}, err
	}
	reassigned := cur.WorkerID != oldWorker
	if reassigned {
		if _, ok := s.store.Workers().Get(cur.WorkerID); !ok {
			return Patient{}, invalid("chw_id", "worker %q does not exist", cur.WorkerID)
		}
	}

	updated, _ := s.store.Patients().Update(id, func(p *Patient) {
		lastVisit := p.LastVisitDate
		*p = cur
		p.LastVisitDate = lastVisit
	})
	if reassigned {
		s.unassign(id, oldWorker)
		s.assign(id, cur.WorkerID)
		s.logger.Debug().Str("patient_id", id).Str("from", oldWorker).Str("to", cur.WorkerID).Msg("patient reassigned")
	}
	return updated, nil
}

// DeletePatient removes the patient and drops it from its worker's list.
// Recorded visits keep their dangling reference.
func (s *Service) DeletePatient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.store.Patients().Get(id)
	if !ok {
		return ErrNotFound
	}
	s.store.Patients().Delete(id)
	s.unassign(id, p.WorkerID)
	s.logger.Debug().Str("patient_id", id).Msg("patient deleted")
	return nil
}

// PatientWorker returns the patient's worker, or nil when the reference
// dangles.
func (s *Service) PatientWorker(_ context.Context, id string) (*Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.store.Patients().Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return WorkerOf(p, s.store.Workers().All()), nil
}

func (s *Service) PatientVisits(_ context.Context, id string) ([]Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.store.Patients().Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return VisitsOfPatient(p, s.store.Visits().All()), nil
}

func (s *Service) PatientProfile(_ context.Context, id string) (PatientProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.store.Patients().Get(id)
	if !ok {
		return PatientProfile{}, ErrNotFound
	}
	return ComputePatientProfile(p, takeSnapshot(s.store), s.now(), s.needsVisitDays), nil
}

// -- Visits --

func (s *Service) ListVisits(_ context.Context, f VisitFilter) []Visit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterVisits(s.store.Visits().All(), f, s.now())
}

func (s *Service) GetVisit(_ context.Context, id string) (Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.store.Visits().Get(id)
	if !ok {
		return Visit{}, ErrNotFound
	}
	return v, nil
}

// CreateVisit records a visit and advances the patient's last visit date
// when the new visit is later than it.
func (s *Service) CreateVisit(_ context.Context, in NewVisit) (string, error) {
	v := Visit{
		PatientID:   strings.TrimSpace(in.PatientID),
		WorkerID:    strings.TrimSpace(in.WorkerID),
		VisitDate:   in.VisitDate,
		VisitType:   in.VisitType,
		Notes:       in.Notes,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		OfflineSync: in.OfflineSync,
	}
	if err := validateVisit(v); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVisitRefs(v); err != nil {
		return "", err
	}
	id := s.store.Visits().Insert(v)
	s.store.Patients().Update(v.PatientID, func(p *Patient) {
		if p.LastVisitDate == nil || v.VisitDate.After(*p.LastVisitDate) {
			t := v.VisitDate
			p.LastVisitDate = &t
		}
	})
	s.logger.Debug().Str("visit_id", id).Str("patient_id", v.PatientID).Str("visit_type", string(v.VisitType)).Msg("visit recorded")
	return id, nil
}

// UpdateVisit applies u and recomputes the last visit date of every patient
// the change touches.
func (s *Service) UpdateVisit(_ context.Context, id string, u VisitUpdate) (Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.store.Visits().Get(id)
	if !ok {
		return Visit{}, ErrNotFound
	}
	oldPatient, oldDate := cur.PatientID, cur.VisitDate
	setTrimmed(&cur.PatientID, u.PatientID)
	setTrimmed(&cur.WorkerID, u.WorkerID)
	if u.VisitDate != nil {
		cur.VisitDate = *u.VisitDate
	}
	if u.VisitType != nil {
		cur.VisitType = *u.VisitType
	}
	if u.Notes != nil {
		cur.Notes = *u.Notes
	}
	if u.Latitude != nil {
		cur.Latitude = u.Latitude
	}
	if u.Longitude != nil {
		cur.Longitude = u.Longitude
	}
	if u.OfflineSync != nil {
		cur.OfflineSync = *u.OfflineSync
	}
	if err := validateVisit(cur); err != nil {
		return Visit{}, err
	}
	if err := s.checkVisitRefs(cur); err != nil {
		return Visit{}, err
	}

	updated, _ := s.store.Visits().Update(id, func(v *Visit) { *v = cur })
	if cur.PatientID != oldPatient || !cur.VisitDate.Equal(oldDate) {
		s.refreshLastVisit(oldPatient)
		s.refreshLastVisit(cur.PatientID)
	}
	s.logger.Debug().Str("visit_id", id).Msg("visit updated")
	return updated, nil
}

// DeleteVisit removes a visit and recomputes its patient's last visit date.
func (s *Service) DeleteVisit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.store.Visits().Get(id)
	if !ok {
		return ErrNotFound
	}
	s.store.Visits().Delete(id)
	s.refreshLastVisit(v.PatientID)
	s.logger.Debug().Str("visit_id", id).Msg("visit deleted")
	return nil
}

// -- Reports --

// DistrictSummary summarises one district over the current records.
func (s *Service) DistrictSummary(ctx context.Context, district string) DistrictSummary {
	snap := s.Snapshot(ctx)
	return ComputeDistrictSummary(district, snap.Workers, snap.Patients, snap.Visits)
}

// DistrictBreakdown tallies every district through worker assignment.
func (s *Service) DistrictBreakdown(ctx context.Context) map[string]DistrictTally {
	snap := s.Snapshot(ctx)
	return ComputeDistrictBreakdown(snap.Workers, snap.Patients, snap.Visits)
}

func (s *Service) OfflineSyncReport(_ context.Context) OfflineSyncReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ComputeOfflineSyncReport(s.store.Visits().All(), s.now())
}

// VisitStats aggregates the visits matching f; an empty filter covers every
// visit.
func (s *Service) VisitStats(ctx context.Context, f VisitFilter) VisitStats {
	return ComputeVisitStats(s.ListVisits(ctx, f))
}

// WorkerVisitStats aggregates every visit recorded by the worker.
func (s *Service) WorkerVisitStats(ctx context.Context, id string) (VisitStats, error) {
	visits, err := s.WorkerVisits(ctx, id, 0)
	if err != nil {
		return VisitStats{}, err
	}
	return ComputeVisitStats(visits), nil
}

// PatientVisitStats aggregates every visit recorded against the patient.
func (s *Service) PatientVisitStats(ctx context.Context, id string) (VisitStats, error) {
	visits, err := s.PatientVisits(ctx, id)
	if err != nil {
		return VisitStats{}, err
	}
	return ComputeVisitStats(visits), nil
}

// VisitVolumeByType counts visits per visit type.
func (s *Service) VisitVolumeByType(ctx context.Context) map[string]int {
	return CountBy(s.ListVisits(ctx, VisitFilter{}), func(v Visit) (string, bool) {
		return string(v.VisitType), true
	})
}

// Dashboard returns the programme headline numbers with the ten most recent
// visits.
func (s *Service) Dashboard(ctx context.Context) DashboardStats {
	snap := s.Snapshot(ctx)
	return ComputeDashboard(snap, s.now(), s.needsVisitDays, 10)
}

// -- internal helpers; callers hold s.mu --

func (s *Service) assign(patientID, workerID string) {
	s.store.Workers().Update(workerID, func(w *Worker) {
		for _, id := range w.PatientsAssigned {
			if id == patientID {
				return
			}
		}
		w.PatientsAssigned = append(w.PatientsAssigned, patientID)
	})
}

func (s *Service) unassign(patientID, workerID string) {
	s.store.Workers().Update(workerID, func(w *Worker) {
		kept := make([]string, 0, len(w.PatientsAssigned))
		for _, id := range w.PatientsAssigned {
			if id != patientID {
				kept = append(kept, id)
			}
		}
		w.PatientsAssigned = kept
	})
}

func (s *Service) refreshLastVisit(patientID string) {
	var latest *time.Time
	for _, v := range s.store.Visits().All() {
		if v.PatientID != patientID {
			continue
		}
		if latest == nil || v.VisitDate.After(*latest) {
			t := v.VisitDate
			latest = &t
		}
	}
	s.store.Patients().Update(patientID, func(p *Patient) { p.LastVisitDate = latest })
}

func (s *Service) checkVisitRefs(v Visit) error {
	if _, ok := s.store.Patients().Get(v.PatientID); !ok {
		return invalid("patient_id", "patient %q does not exist", v.PatientID)
	}
	if _, ok := s.store.Workers().Get(v.WorkerID); !ok {
		return invalid("chw_id", "worker %q does not exist", v.WorkerID)
	}
	return nil
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func validateWorker(w Worker) error {
	switch {
	case w.Name == "":
		return invalid("name", "is required")
	case w.Village == "":
		return invalid("village", "is required")
	case w.District == "":
		return invalid("district", "is required")
	}
	return nil
}

func validatePatient(p Patient) error {
	switch {
	case p.Name == "":
		return invalid("name", "is required")
	case p.Age < 0 || p.Age > 130:
		return invalid("age", "must be between 0 and 130, got %d", p.Age)
	case p.Village == "":
		return invalid("village", "is required")
	case p.WorkerID == "":
		return invalid("chw_id", "is required")
	}
	return nil
}

func validateVisit(v Visit) error {
	switch {
	case v.PatientID == "":
		return invalid("patient_id", "is required")
	case v.WorkerID == "":
		return invalid("chw_id", "is required")
	case v.VisitDate.IsZero():
		return invalid("visit_date", "is required")
	case !v.VisitType.Valid():
		return invalid("visit_type", "must be routine, follow-up or emergency, got %q", v.VisitType)
	case v.Latitude != nil && (*v.Latitude < -90 || *v.Latitude > 90):
		return invalid("location_lat", "must be between -90 and 90")
	case v.Longitude != nil && (*v.Longitude < -180 || *v.Longitude > 180):
		return invalid("location_lon", "must be between -180 and 180")
	}
	return nil
}
