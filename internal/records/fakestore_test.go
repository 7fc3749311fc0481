package records

import (
	"context"
	"strings"
	"sync"

	"recordhub/internal/model"
	"recordhub/internal/storage"
)

// fakeStore is an in-memory Store double for unit tests. Read queries are
// dispatched on a distinctive substring to a handler that may inspect the
// bound parameters.
type fakeStore struct {
	mu       sync.Mutex
	handlers map[string]func(params map[string]any) []map[string]any

	existing  map[string]bool
	persisted []*model.Record
	merged    []*model.Record
	phases    map[string]model.Phase
	detached  []string
	removed   []string

	questionWrites map[string]int
	questionLinks  [][2]string
	batchCalls     int
	batchWrites    int

	// ops records the order of write operations for sequencing assertions
	ops []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		handlers:       map[string]func(map[string]any) []map[string]any{},
		existing:       map[string]bool{},
		phases:         map[string]model.Phase{},
		questionWrites: map[string]int{},
	}
}

func (f *fakeStore) stub(substr string, rows []map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[substr] = func(map[string]any) []map[string]any { return rows }
}

func (f *fakeStore) stubFunc(substr string, fn func(params map[string]any) []map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[substr] = fn
}

func (f *fakeStore) Run(_ context.Context, query string, params map[string]any) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for substr, fn := range f.handlers {
		if strings.Contains(query, substr) {
			return fn(params), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Exists(_ context.Context, uri string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[uri], nil
}

func (f *fakeStore) PersistRecord(_ context.Context, rec *model.Record, _ storage.AttributePlacement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *rec
	f.persisted = append(f.persisted, &copied)
	f.existing[rec.URI] = true
	f.ops = append(f.ops, "persist:"+rec.URI)
	return nil
}

func (f *fakeStore) MergeRecord(_ context.Context, rec *model.Record, _ storage.AttributePlacement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *rec
	f.merged = append(f.merged, &copied)
	f.ops = append(f.ops, "merge:"+rec.URI)
	return nil
}

func (f *fakeStore) SetRecordPhase(_ context.Context, uri string, phase model.Phase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phases[uri] = phase
	f.ops = append(f.ops, "phase:"+uri)
	return nil
}

func (f *fakeStore) DetachQuestionTree(_ context.Context, recordURI, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = append(f.detached, recordURI)
	f.ops = append(f.ops, "detach:"+recordURI)
	return nil
}

func (f *fakeStore) RemoveRecord(_ context.Context, uri, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, uri)
	delete(f.existing, uri)
	f.ops = append(f.ops, "remove:"+uri)
	return nil
}

func (f *fakeStore) BatchWrite(_ context.Context, fn func(run func(query string, params map[string]any) error) error) error {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()
	return fn(func(string, map[string]any) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.batchWrites++
		return nil
	})
}

func (f *fakeStore) WriteQuestion(_ context.Context, q *model.Question, parentURI, _ string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionWrites[q.URI]++
	f.questionLinks = append(f.questionLinks, [2]string{parentURI, q.URI})
	f.ops = append(f.ops, "question:"+q.URI)
	return nil
}

func (f *fakeStore) LinkQuestion(_ context.Context, parentURI, childURI, _ string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionLinks = append(f.questionLinks, [2]string{parentURI, childURI})
	return nil
}
