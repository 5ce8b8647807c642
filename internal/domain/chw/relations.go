package chw

import "sort"

// Relationship resolution is done by scanning foreign-key fields. A key that
// does not resolve yields nil or an empty slice, never an error.

// WorkerOf returns the worker assigned to p, or nil when p.WorkerID is
// dangling.
func WorkerOf(p Patient, workers []Worker) *Worker {
	return findWorker(p.WorkerID, workers)
}

// PatientsOf returns the patients whose WorkerID is w.ID. The worker's cached
// PatientsAssigned list is not consulted.
func PatientsOf(w Worker, patients []Patient) []Patient {
	out := []Patient{}
	for _, p := range patients {
		if p.WorkerID == w.ID {
			out = append(out, p)
		}
	}
	return out
}

// VisitsOfPatient returns the visits recorded against p.
func VisitsOfPatient(p Patient, visits []Visit) []Visit {
	out := []Visit{}
	for _, v := range visits {
		if v.PatientID == p.ID {
			out = append(out, v)
		}
	}
	return out
}

// VisitsOfWorker returns the visits recorded by w.
func VisitsOfWorker(w Worker, visits []Visit) []Visit {
	out := []Visit{}
	for _, v := range visits {
		if v.WorkerID == w.ID {
			out = append(out, v)
		}
	}
	return out
}

// PatientOfVisit returns the visited patient, or nil when dangling.
func PatientOfVisit(v Visit, patients []Patient) *Patient {
	for i := range patients {
		if patients[i].ID == v.PatientID {
			p := patients[i]
			return &p
		}
	}
	return nil
}

// WorkerOfVisit returns the worker who recorded v, or nil when dangling.
func WorkerOfVisit(v Visit, workers []Worker) *Worker {
	return findWorker(v.WorkerID, workers)
}

func findWorker(id string, workers []Worker) *Worker {
	for i := range workers {
		if workers[i].ID == id {
			w := workers[i]
			return &w
		}
	}
	return nil
}

// assignmentDrift lists the ids on which a worker's cached assignment list
// and the authoritative patient scan disagree.
func assignmentDrift(w Worker, patients []Patient) []string {
	want := map[string]bool{}
	for _, p := range PatientsOf(w, patients) {
		want[p.ID] = true
	}
	var drift []string
	seen := map[string]bool{}
	for _, id := range w.PatientsAssigned {
		seen[id] = true
		if !want[id] {
			drift = append(drift, id)
		}
	}
	for id := range want {
		if !seen[id] {
			drift = append(drift, id)
		}
	}
	sort.Strings(drift)
	return drift
}
