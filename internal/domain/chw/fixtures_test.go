package chw

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return testNow.Add(-time.Duration(n) * 24 * time.Hour)
}

func ptr[T any](v T) *T { return &v }

func newTestService(opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewService(NewMemStore(), zerolog.Nop(), opts...)
}

func mustWorker(t *testing.T, svc *Service, name, village, district string, active bool) string {
	t.Helper()
	id, err := svc.CreateWorker(context.Background(), NewWorker{
		Name:         name,
		Village:      village,
		District:     district,
		Phone:        "+254700000000",
		Active:       ptr(active),
		RegisteredAt: ptr(daysAgo(400)),
	})
	require.NoError(t, err)
	return id
}

func mustPatient(t *testing.T, svc *Service, name, village, workerID string) string {
	t.Helper()
	id, err := svc.CreatePatient(context.Background(), NewPatient{
		Name:     name,
		Age:      34,
		Village:  village,
		WorkerID: workerID,
	})
	require.NoError(t, err)
	return id
}

func mustVisit(t *testing.T, svc *Service, patientID, workerID string, at time.Time, vt VisitType, offline bool) string {
	t.Helper()
	id, err := svc.CreateVisit(context.Background(), NewVisit{
		PatientID:   patientID,
		WorkerID:    workerID,
		VisitDate:   at,
		VisitType:   vt,
		Notes:       "household check",
		OfflineSync: offline,
	})
	require.NoError(t, err)
	return id
}

func visitsOfTypes(workerID string, counts map[VisitType]int) []Visit {
	var out []Visit
	for _, vt := range []VisitType{VisitRoutine, VisitFollowUp, VisitEmergency} {
		for i := 0; i < counts[vt]; i++ {
			out = append(out, Visit{WorkerID: workerID, VisitType: vt, VisitDate: testNow})
		}
	}
	return out
}
