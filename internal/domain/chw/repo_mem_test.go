package chw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_IdentifierFormat(t *testing.T) {
	s := NewMemStore()

	assert.Equal(t, "CHW001", s.Workers().Insert(Worker{Name: "Amina"}))
	assert.Equal(t, "CHW002", s.Workers().Insert(Worker{Name: "Brian"}))
	assert.Equal(t, "PAT0001", s.Patients().Insert(Patient{Name: "Chebet"}))
	assert.Equal(t, "VIS00001", s.Visits().Insert(Visit{VisitType: VisitRoutine}))
}

func TestMemStore_IdentifiersNeverReused(t *testing.T) {
	s := NewMemStore()
	workers := s.Workers()

	first := workers.Insert(Worker{Name: "a"})
	second := workers.Insert(Worker{Name: "b"})
	require.True(t, workers.Delete(second))
	require.True(t, workers.Delete(first))

	assert.Equal(t, "CHW003", workers.Insert(Worker{Name: "c"}))
	assert.Equal(t, 1, workers.Len())
}

func TestMemStore_InsertionOrder(t *testing.T) {
	s := NewMemStore()
	patients := s.Patients()
	for _, name := range []string{"a", "b", "c", "d"} {
		patients.Insert(Patient{Name: name})
	}
	patients.Delete("PAT0002")

	var names []string
	for _, p := range patients.All() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"a", "c", "d"}, names)
}

func TestMemStore_ReadsReturnCopies(t *testing.T) {
	s := NewMemStore()
	id := s.Workers().Insert(Worker{Name: "Amina", PatientsAssigned: []string{"PAT0001"}})

	w, ok := s.Workers().Get(id)
	require.True(t, ok)
	w.Name = "changed"
	w.PatientsAssigned[0] = "PAT9999"

	again, _ := s.Workers().Get(id)
	assert.Equal(t, "Amina", again.Name)
	assert.Equal(t, []string{"PAT0001"}, again.PatientsAssigned)

	all := s.Workers().All()
	all[0].PatientsAssigned[0] = "PAT8888"
	again, _ = s.Workers().Get(id)
	assert.Equal(t, []string{"PAT0001"}, again.PatientsAssigned)
}

func TestMemStore_UpdateKeepsIdentifier(t *testing.T) {
	s := NewMemStore()
	id := s.Patients().Insert(Patient{Name: "Chebet", Age: 20})

	updated, ok := s.Patients().Update(id, func(p *Patient) {
		p.ID = "PAT9999"
		p.Age = 21
	})
	require.True(t, ok)
	assert.Equal(t, id, updated.ID)
	assert.Equal(t, 21, updated.Age)

	_, ok = s.Patients().Get("PAT9999")
	assert.False(t, ok)
}

func TestMemStore_MissingIdentifier(t *testing.T) {
	s := NewMemStore()

	_, ok := s.Visits().Get("VIS00001")
	assert.False(t, ok)
	_, ok = s.Visits().Update("VIS00001", func(*Visit) {})
	assert.False(t, ok)
	assert.False(t, s.Visits().Delete("VIS00001"))
	assert.Empty(t, s.Visits().All())
}

func TestMemStore_Reset(t *testing.T) {
	s := NewMemStore()
	s.Workers().Insert(Worker{Name: "a"})
	s.Patients().Insert(Patient{Name: "b"})
	s.Visits().Insert(Visit{})

	s.Reset()

	assert.Zero(t, s.Workers().Len())
	assert.Zero(t, s.Patients().Len())
	assert.Zero(t, s.Visits().Len())
	assert.Equal(t, "CHW001", s.Workers().Insert(Worker{Name: "again"}))
}
