package chw

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// DefaultNeedsVisitDays is the follow-up threshold used when a caller does
// not supply one.
const DefaultNeedsVisitDays = 30

// VisitType enumerates the kinds of household visit a worker records.
type VisitType string

const (
	VisitRoutine   VisitType = "routine"
	VisitFollowUp  VisitType = "follow-up"
	VisitEmergency VisitType = "emergency"
)

// Valid reports whether t is one of the known visit types.
func (t VisitType) Valid() bool {
	switch t {
	case VisitRoutine, VisitFollowUp, VisitEmergency:
		return true
	}
	return false
}

// Worker is a community health worker (CHW).
type Worker struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Village          string    `json:"village"`
	District         string    `json:"district"`
	Phone            string    `json:"phone"`
	Active           bool      `json:"is_active"`
	RegisteredAt     time.Time `json:"date_registered"`
	PatientsAssigned []string  `json:"patients_assigned"`
}

// YearsActive returns the worker's service length in years, rounded to one
// decimal place.
func (w Worker) YearsActive(now time.Time) float64 {
	days := wholeDays(now.Sub(w.RegisteredAt))
	return round1(float64(days) / 365.25)
}

func (w Worker) clone() Worker {
	if w.PatientsAssigned != nil {
		w.PatientsAssigned = append(w.PatientsAssigned[:0:0], w.PatientsAssigned...)
	}
	return w
}

// Patient is a household member followed by a worker. WorkerID is the
// authoritative side of the worker/patient link.
type Patient struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Age                 int        `json:"age"`
	Village             string     `json:"village"`
	WorkerID            string     `json:"chw_id"`
	Pregnant            bool       `json:"is_pregnant"`
	HasChronicCondition bool       `json:"has_chronic_condition"`
	LastVisitDate       *time.Time `json:"last_visit_date"`
}

// NeedsVisit reports whether the patient is due a visit: never visited, or
// last visited more than thresholdDays whole days before now.
func (p Patient) NeedsVisit(now time.Time, thresholdDays int) bool {
	if p.LastVisitDate == nil {
		return true
	}
	return wholeDays(now.Sub(*p.LastVisitDate)) > thresholdDays
}

func (p Patient) clone() Patient {
	if p.LastVisitDate != nil {
		t := *p.LastVisitDate
		p.LastVisitDate = &t
	}
	return p
}

// Visit is a single recorded household visit.
type Visit struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id"`
	WorkerID    string    `json:"chw_id"`
	VisitDate   time.Time `json:"visit_date"`
	VisitType   VisitType `json:"visit_type"`
	Notes       string    `json:"notes"`
	Latitude    *float64  `json:"location_lat,omitempty"`
	Longitude   *float64  `json:"location_lon,omitempty"`
	OfflineSync bool      `json:"is_offline_sync"`
}

// Summary renders the one-line description used on report pages.
func (v Visit) Summary() string {
	notes := []rune(v.Notes)
	if len(notes) > 50 {
		notes = notes[:50]
	}
	return fmt.Sprintf("%s visit on %s: %s...", v.VisitType, v.VisitDate.Format("2006-01-02"), string(notes))
}

func (v Visit) clone() Visit {
	if v.Latitude != nil {
		lat := *v.Latitude
		v.Latitude = &lat
	}
	if v.Longitude != nil {
		lon := *v.Longitude
		v.Longitude = &lon
	}
	return v
}

// NewWorker holds caller-supplied fields for worker creation.
type NewWorker struct {
	Name         string     `json:"name"`
	Village      string     `json:"village"`
	District     string     `json:"district"`
	Phone        string     `json:"phone"`
	Active       *bool      `json:"is_active"`
	RegisteredAt *time.Time `json:"date_registered"`
}

// WorkerUpdate carries the mutable worker fields; nil means unchanged.
type WorkerUpdate struct {
	Name     *string `json:"name"`
	Village  *string `json:"village"`
	District *string `json:"district"`
	Phone    *string `json:"phone"`
	Active   *bool   `json:"is_active"`
}

// NewPatient holds caller-supplied fields for patient registration.
type NewPatient struct {
	Name                string `json:"name"`
	Age                 int    `json:"age"`
	Village             string `json:"village"`
	WorkerID            string `json:"chw_id"`
	Pregnant            bool   `json:"is_pregnant"`
	HasChronicCondition bool   `json:"has_chronic_condition"`
}

// PatientUpdate carries the mutable patient fields; nil means unchanged.
// A changed WorkerID is a reassignment.
type PatientUpdate struct {
	Name                *string `json:"name"`
	Age                 *int    `json:"age"`
	Village             *string `json:"village"`
	WorkerID            *string `json:"chw_id"`
	Pregnant            *bool   `json:"is_pregnant"`
	HasChronicCondition *bool   `json:"has_chronic_condition"`
}

// NewVisit holds caller-supplied fields for recording a visit.
type NewVisit struct {
	PatientID   string    `json:"patient_id"`
	WorkerID    string    `json:"chw_id"`
	VisitDate   time.Time `json:"visit_date"`
	VisitType   VisitType `json:"visit_type"`
	Notes       string    `json:"notes"`
	Latitude    *float64  `json:"location_lat"`
	Longitude   *float64  `json:"location_lon"`
	OfflineSync bool      `json:"is_offline_sync"`
}

// VisitUpdate carries the mutable visit fields; nil means unchanged.
type VisitUpdate struct {
	PatientID   *string    `json:"patient_id"`
	WorkerID    *string    `json:"chw_id"`
	VisitDate   *time.Time `json:"visit_date"`
	VisitType   *VisitType `json:"visit_type"`
	Notes       *string    `json:"notes"`
	Latitude    *float64   `json:"location_lat"`
	Longitude   *float64   `json:"location_lon"`
	OfflineSync *bool      `json:"is_offline_sync"`
}

// wholeDays truncates a duration to whole days, flooring negative values the
// same way a calendar day difference does.
func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

// round1 rounds the exact binary value of f to one decimal, ties to even.
func round1(f float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', 1, 64), 64)
	if err != nil {
		return f
	}
	return r
}
