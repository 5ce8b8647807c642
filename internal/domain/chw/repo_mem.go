package chw

import "fmt"

// memCollection keeps records in insertion order. Identifiers come from a
// monotonically increasing counter so a deleted id is never handed out again.
type memCollection[T any] struct {
	prefix string
	width  int
	seq    int
	order  []string
	items  map[string]T
	setID  func(*T, string)
	clone  func(T) T
}

func newMemCollection[T any](prefix string, width int, setID func(*T, string), clone func(T) T) *memCollection[T] {
	return &memCollection[T]{
		prefix: prefix,
		width:  width,
		items:  make(map[string]T),
		setID:  setID,
		clone:  clone,
	}
}

func (c *memCollection[T]) nextID() string {
	c.seq++
	return fmt.Sprintf("%s%0*d", c.prefix, c.width, c.seq)
}

func (c *memCollection[T]) Insert(rec T) string {
	id := c.nextID()
	rec = c.clone(rec)
	c.setID(&rec, id)
	c.items[id] = rec
	c.order = append(c.order, id)
	return id
}

func (c *memCollection[T]) Update(id string, fn func(*T)) (T, bool) {
	rec, ok := c.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	fn(&rec)
	c.setID(&rec, id)
	c.items[id] = rec
	return c.clone(rec), true
}

func (c *memCollection[T]) Delete(id string) bool {
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *memCollection[T]) Get(id string) (T, bool) {
	rec, ok := c.items[id]
	if !ok {
		return rec, false
	}
	return c.clone(rec), true
}

func (c *memCollection[T]) All() []T {
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.clone(c.items[id]))
	}
	return out
}

func (c *memCollection[T]) Len() int { return len(c.order) }

func (c *memCollection[T]) reset() {
	c.seq = 0
	c.order = nil
	c.items = make(map[string]T)
}

type memStore struct {
	workers  *memCollection[Worker]
	patients *memCollection[Patient]
	visits   *memCollection[Visit]
}

// NewMemStore returns an empty in-memory Store. Ids are zero-padded:
// CHW001, PAT0001, VIS00001.
//
// The store does no locking of its own; Service serializes access.
func NewMemStore() Store {
	return &memStore{
		workers: newMemCollection("CHW", 3,
			func(w *Worker, id string) { w.ID = id },
			Worker.clone),
		patients: newMemCollection("PAT", 4,
			func(p *Patient, id string) { p.ID = id },
			Patient.clone),
		visits: newMemCollection("VIS", 5,
			func(v *Visit, id string) { v.ID = id },
			Visit.clone),
	}
}

func (s *memStore) Workers() Collection[Worker]   { return s.workers }
func (s *memStore) Patients() Collection[Patient] { return s.patients }
func (s *memStore) Visits() Collection[Visit]     { return s.visits }

func (s *memStore) Reset() {
	s.workers.reset()
	s.patients.reset()
	s.visits.reset()
}
