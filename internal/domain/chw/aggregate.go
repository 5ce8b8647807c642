package chw

import (
	"sort"
	"time"
)

// Aggregations are stateless functions over already-filtered collections.
// Rates with a zero denominator are 0.

// CountBy tallies records per key. Records for which key reports false are
// left out of the tally rather than bucketed as unknown.
func CountBy[T any](records []T, key func(T) (string, bool)) map[string]int {
	counts := map[string]int{}
	for _, r := range records {
		if k, ok := key(r); ok {
			counts[k]++
		}
	}
	return counts
}

// VisitStats summarises a set of visits by type.
type VisitStats struct {
	Total       int `json:"total_visits"`
	Routine     int `json:"routine_visits"`
	FollowUp    int `json:"follow_up_visits"`
	Emergency   int `json:"emergency_visits"`
	OfflineSync int `json:"offline_sync_visits"`
	// CompletionRate is the routine share of all visits as a percentage.
	CompletionRate float64 `json:"completion_rate"`
}

// ComputeVisitStats counts visits by type and offline flag.
func ComputeVisitStats(visits []Visit) VisitStats {
	var s VisitStats
	for _, v := range visits {
		s.Total++
		switch v.VisitType {
		case VisitRoutine:
			s.Routine++
		case VisitFollowUp:
			s.FollowUp++
		case VisitEmergency:
			s.Emergency++
		}
		if v.OfflineSync {
			s.OfflineSync++
		}
	}
	s.CompletionRate = percent(s.Routine, s.Total)
	return s
}

// DistrictSummary is the headline view of one district.
type DistrictSummary struct {
	District             string  `json:"district"`
	WorkerCount          int     `json:"total_chws"`
	PatientCount         int     `json:"total_patients"`
	VisitCount           int     `json:"total_visits"`
	ActiveWorkerCount    int     `json:"active_chws"`
	PatientToWorkerRatio float64 `json:"patient_to_chw_ratio"`
}

// ComputeDistrictSummary counts a district's workers, patients and visits.
//
// Patients are attributed by village: a patient counts when they live in a
// village where any of the district's workers lives, whoever they are
// assigned to. Visits are attributed by the recording worker's district.
// The two rules disagree for patients assigned across district lines; both
// are kept as-is.
func ComputeDistrictSummary(district string, workers []Worker, patients []Patient, visits []Visit) DistrictSummary {
	s := DistrictSummary{District: district}
	villages := map[string]bool{}
	workerIDs := map[string]bool{}
	for _, w := range workers {
		if w.District != district {
			continue
		}
		s.WorkerCount++
		if w.Active {
			s.ActiveWorkerCount++
		}
		villages[w.Village] = true
		workerIDs[w.ID] = true
	}
	for _, p := range patients {
		if villages[p.Village] {
			s.PatientCount++
		}
	}
	for _, v := range visits {
		if workerIDs[v.WorkerID] {
			s.VisitCount++
		}
	}
	if s.WorkerCount > 0 {
		s.PatientToWorkerRatio = round1(float64(s.PatientCount) / float64(s.WorkerCount))
	}
	return s
}

// OfflineSyncReport measures adoption of offline data capture.
type OfflineSyncReport struct {
	TotalOffline         int     `json:"total_offline_visits"`
	UniqueWorkersOffline int     `json:"unique_chws_offline"`
	LastWeekOffline      int     `json:"last_week_offline"`
	OfflineAdoptionRate  float64 `json:"offline_adoption_rate"`
}

// ComputeOfflineSyncReport reports on offline-synced visits. visits must be
// the whole visit collection: it is the denominator of the adoption rate.
func ComputeOfflineSyncReport(visits []Visit, now time.Time) OfflineSyncReport {
	var r OfflineSyncReport
	workers := map[string]bool{}
	lastWeek := VisitedWithin(now, 7)
	for _, v := range visits {
		if !v.OfflineSync {
			continue
		}
		r.TotalOffline++
		workers[v.WorkerID] = true
		if lastWeek(v) {
			r.LastWeekOffline++
		}
	}
	r.UniqueWorkersOffline = len(workers)
	r.OfflineAdoptionRate = percent(r.TotalOffline, len(visits))
	return r
}

// DistrictTally is one row of the per-district breakdown.
type DistrictTally struct {
	Workers  int `json:"chws"`
	Patients int `json:"patients"`
	Visits   int `json:"visits"`
}

// ComputeDistrictBreakdown tallies workers per district and attributes
// patients and visits through their assigned or recording worker. Records
// whose worker does not resolve are not counted. Only districts with at least
// one worker appear.
func ComputeDistrictBreakdown(workers []Worker, patients []Patient, visits []Visit) map[string]DistrictTally {
	districtOf := make(map[string]string, len(workers))
	for _, w := range workers {
		districtOf[w.ID] = w.District
	}
	viaWorker := func(workerID string) (string, bool) {
		d, ok := districtOf[workerID]
		return d, ok
	}

	byWorker := CountBy(workers, func(w Worker) (string, bool) { return w.District, true })
	byPatient := CountBy(patients, func(p Patient) (string, bool) { return viaWorker(p.WorkerID) })
	byVisit := CountBy(visits, func(v Visit) (string, bool) { return viaWorker(v.WorkerID) })

	out := make(map[string]DistrictTally, len(byWorker))
	for d, n := range byWorker {
		out[d] = DistrictTally{Workers: n, Patients: byPatient[d], Visits: byVisit[d]}
	}
	return out
}

// Districts returns the distinct worker districts in sorted order.
func Districts(workers []Worker) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range workers {
		if !seen[w.District] {
			seen[w.District] = true
			out = append(out, w.District)
		}
	}
	sort.Strings(out)
	return out
}

// DashboardStats are the headline numbers of the programme dashboard.
type DashboardStats struct {
	TotalWorkers          int     `json:"total_chws"`
	TotalPatients         int     `json:"total_patients"`
	TotalVisits           int     `json:"total_visits"`
	ActiveWorkers         int     `json:"active_chws"`
	VisitsThisWeek        int     `json:"visits_this_week"`
	PatientsNeedingVisits int     `json:"patients_needing_visits"`
	RecentVisits          []Visit `json:"recent_visits"`
}

// ComputeDashboard builds the dashboard numbers. recent bounds the number of
// latest visits included.
func ComputeDashboard(snap Snapshot, now time.Time, thresholdDays, recent int) DashboardStats {
	active := true
	return DashboardStats{
		TotalWorkers:          len(snap.Workers),
		TotalPatients:         len(snap.Patients),
		TotalVisits:           len(snap.Visits),
		ActiveWorkers:         len(FilterWorkers(snap.Workers, WorkerFilter{Active: &active})),
		VisitsThisWeek:        len(FilterVisits(snap.Visits, VisitFilter{WithinDays: 7}, now)),
		PatientsNeedingVisits: len(FilterPatients(snap.Patients, PatientFilter{NeedsVisit: true, ThresholdDays: thresholdDays}, now)),
		RecentVisits:          LatestVisits(snap.Visits, recent),
	}
}

// LatestVisits returns up to n visits ordered newest first. n <= 0 returns
// all of them.
func LatestVisits(visits []Visit, n int) []Visit {
	out := append([]Visit(nil), visits...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].VisitDate.After(out[j].VisitDate) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	if out == nil {
		out = []Visit{}
	}
	return out
}

// WorkerProfile is the detail view of a single worker.
type WorkerProfile struct {
	Worker                Worker    `json:"chw"`
	YearsActive           float64   `json:"years_active"`
	Patients              []Patient `json:"patients"`
	RecentVisits          []Visit   `json:"visits"`
	TotalPatients         int       `json:"total_patients"`
	TotalVisits           int       `json:"total_visits"`
	VisitsThisMonth       int       `json:"visits_this_month"`
	PatientsNeedingVisits int       `json:"patients_needing_visits"`
}

// ComputeWorkerProfile assembles w's patients and visit activity.
func ComputeWorkerProfile(w Worker, snap Snapshot, now time.Time, thresholdDays int) WorkerProfile {
	patients := PatientsOf(w, snap.Patients)
	visits := VisitsOfWorker(w, snap.Visits)
	return WorkerProfile{
		Worker:                w,
		YearsActive:           w.YearsActive(now),
		Patients:              patients,
		RecentVisits:          LatestVisits(visits, 20),
		TotalPatients:         len(patients),
		TotalVisits:           len(visits),
		VisitsThisMonth:       len(Filter(visits, VisitedWithin(now, 30))),
		PatientsNeedingVisits: len(FilterPatients(patients, PatientFilter{NeedsVisit: true, ThresholdDays: thresholdDays}, now)),
	}
}

// PatientProfile is the detail view of a single patient.
type PatientProfile struct {
	Patient    Patient `json:"patient"`
	Worker     *Worker `json:"chw"`
	Visits     []Visit `json:"visits"`
	NeedsVisit bool    `json:"needs_visit"`
}

// ComputePatientProfile joins p to its worker and visit history.
func ComputePatientProfile(p Patient, snap Snapshot, now time.Time, thresholdDays int) PatientProfile {
	return PatientProfile{
		Patient:    p,
		Worker:     WorkerOf(p, snap.Workers),
		Visits:     LatestVisits(VisitsOfPatient(p, snap.Visits), 0),
		NeedsVisit: p.NeedsVisit(now, thresholdDays),
	}
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
