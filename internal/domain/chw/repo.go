package chw

// Collection is an ordered set of records keyed by a store-assigned
// identifier. Records are values; every read returns a copy.
type Collection[T any] interface {
	// Insert assigns the next identifier to rec, stores it and returns the id.
	Insert(rec T) string
	// Update applies fn to the stored record in place. The identifier is
	// restored after fn returns, so it cannot be changed.
	Update(id string, fn func(*T)) (T, bool)
	Delete(id string) bool
	Get(id string) (T, bool)
	// All returns every record in insertion order.
	All() []T
	Len() int
}

// Store owns the three record collections.
type Store interface {
	Workers() Collection[Worker]
	Patients() Collection[Patient]
	Visits() Collection[Visit]
	// Reset drops every record and restarts identifier sequences.
	Reset()
}

// Snapshot is a point-in-time copy of all three collections.
type Snapshot struct {
	Workers  []Worker  `json:"workers"`
	Patients []Patient `json:"patients"`
	Visits   []Visit   `json:"visits"`
}

func takeSnapshot(s Store) Snapshot {
	return Snapshot{
		Workers:  s.Workers().All(),
		Patients: s.Patients().All(),
		Visits:   s.Visits().All(),
	}
}
