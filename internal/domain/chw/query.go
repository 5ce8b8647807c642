package chw

import "time"

// WorkerFilter selects workers. Zero-valued fields impose no constraint.
type WorkerFilter struct {
	District string
	Active   *bool
}

// PatientFilter selects patients. Zero-valued fields impose no constraint.
type PatientFilter struct {
	WorkerID string
	// NeedsVisit keeps only patients due a visit under ThresholdDays;
	// a threshold <= 0 means DefaultNeedsVisitDays.
	NeedsVisit    bool
	ThresholdDays int
}

// Threshold returns the effective needs-visit threshold in days.
func (f PatientFilter) Threshold() int {
	if f.ThresholdDays <= 0 {
		return DefaultNeedsVisitDays
	}
	return f.ThresholdDays
}

// VisitFilter selects visits. Zero-valued fields impose no constraint.
type VisitFilter struct {
	// WithinDays keeps visits dated strictly after now minus that many days.
	WithinDays  int
	WorkerID    string
	PatientID   string
	VisitType   VisitType
	OfflineSync *bool
}

// Predicate is a single filter condition over a record.
type Predicate[T any] func(T) bool

// Filter returns the records satisfying every predicate, preserving order.
// With no predicates every record is kept.
func Filter[T any](records []T, preds ...Predicate[T]) []T {
	out := make([]T, 0, len(records))
next:
	for _, r := range records {
		for _, p := range preds {
			if !p(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}

// Predicates turns the filter into its conjunctive predicate set.
func (f WorkerFilter) Predicates() []Predicate[Worker] {
	var preds []Predicate[Worker]
	if f.District != "" {
		district := f.District
		preds = append(preds, func(w Worker) bool { return w.District == district })
	}
	if f.Active != nil {
		active := *f.Active
		preds = append(preds, func(w Worker) bool { return w.Active == active })
	}
	return preds
}

// Predicates turns the filter into its conjunctive predicate set, evaluating
// recency against now.
func (f PatientFilter) Predicates(now time.Time) []Predicate[Patient] {
	var preds []Predicate[Patient]
	if f.WorkerID != "" {
		workerID := f.WorkerID
		preds = append(preds, func(p Patient) bool { return p.WorkerID == workerID })
	}
	if f.NeedsVisit {
		threshold := f.Threshold()
		preds = append(preds, func(p Patient) bool { return p.NeedsVisit(now, threshold) })
	}
	return preds
}

// Predicates turns the filter into its conjunctive predicate set, evaluating
// the recency window against now.
func (f VisitFilter) Predicates(now time.Time) []Predicate[Visit] {
	var preds []Predicate[Visit]
	if f.WithinDays > 0 {
		preds = append(preds, VisitedWithin(now, f.WithinDays))
	}
	if f.WorkerID != "" {
		workerID := f.WorkerID
		preds = append(preds, func(v Visit) bool { return v.WorkerID == workerID })
	}
	if f.PatientID != "" {
		patientID := f.PatientID
		preds = append(preds, func(v Visit) bool { return v.PatientID == patientID })
	}
	if f.VisitType != "" {
		vt := f.VisitType
		preds = append(preds, func(v Visit) bool { return v.VisitType == vt })
	}
	if f.OfflineSync != nil {
		offline := *f.OfflineSync
		preds = append(preds, func(v Visit) bool { return v.OfflineSync == offline })
	}
	return preds
}

// VisitedWithin keeps visits dated after now minus days.
func VisitedWithin(now time.Time, days int) Predicate[Visit] {
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	return func(v Visit) bool { return v.VisitDate.After(cutoff) }
}

// FilterWorkers applies f to workers.
func FilterWorkers(workers []Worker, f WorkerFilter) []Worker {
	return Filter(workers, f.Predicates()...)
}

// FilterPatients applies f to patients.
func FilterPatients(patients []Patient, f PatientFilter, now time.Time) []Patient {
	return Filter(patients, f.Predicates(now)...)
}

// FilterVisits applies f to visits.
func FilterVisits(visits []Visit, f VisitFilter, now time.Time) []Visit {
	return Filter(visits, f.Predicates(now)...)
}
