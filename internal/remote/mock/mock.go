// Package mock provides an in-memory remote.Store for testing.
package mock

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/remote"
)

// Op names a store operation for call counting and error injection.
type Op string

const (
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpGet       Op = "get"
	OpGetByPath Op = "getByPath"
	OpList      Op = "list"
	OpDelete    Op = "delete"
)

type failure struct {
	op        Op
	id        string
	err       error
	remaining int
}

// Store is an in-memory content hub for one kind. Revisions are integers
// incremented on every write; updates carrying a stale rev are rejected with 409.
type Store struct {
	mu       sync.Mutex
	kind     model.Kind
	caps     remote.Capabilities
	items    map[string]model.Artifact
	pageSize int
	clock    func() time.Time
	nextID   int
	failures []*failure
	calls    map[Op]int
	callsFor map[Op]map[string]int
}

// New creates an empty store.
func New(kind model.Kind) *Store {
	return &Store{
		kind:     kind,
		items:    make(map[string]model.Artifact),
		clock:    time.Now,
		calls:    make(map[Op]int),
		callsFor: make(map[Op]map[string]int),
	}
}

// WithCapabilities sets the reported capabilities.
func (s *Store) WithCapabilities(caps remote.Capabilities) *Store {
	s.caps = caps
	return s
}

// WithItems seeds the store. Items keep their rev, or get "1".
func (s *Store) WithItems(items ...model.Artifact) *Store {
	for _, it := range items {
		s.Put(it)
	}
	return s
}

// WithPageSize caps the number of items per listing page.
func (s *Store) WithPageSize(n int) *Store {
	s.pageSize = n
	return s
}

// WithClock overrides the time source used to stamp lastModified.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// FailOn makes op fail with err for id (or any id when empty) every time.
func (s *Store) FailOn(op Op, id string, err error) *Store {
	return s.FailTimes(op, id, -1, err)
}

// FailTimes makes op fail with err for id the next n times.
func (s *Store) FailTimes(op Op, id string, n int, err error) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{op: op, id: id, err: err, remaining: n})
	return s
}

// ClearFailures removes every injected failure.
func (s *Store) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = nil
}

// Put stores a copy of item as-is, assigning rev "1" when absent.
func (s *Store) Put(item model.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := item.Clone()
	if c.Rev() == "" {
		c[model.FieldRev] = "1"
	}
	s.items[c.ID()] = c
}

// Touch bumps the rev and lastModified of id without changing content.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[id]; ok {
		s.stamp(it)
	}
}

// Item returns a copy of the stored item.
func (s *Store) Item(id string) (model.Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return it.Clone(), true
}

// Items returns copies of every stored item ordered by id.
func (s *Store) Items() []model.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]model.Artifact, len(ids))
	for i, id := range ids {
		out[i] = s.items[id].Clone()
	}
	return out
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Calls returns how often op was invoked.
func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// CallsFor returns how often op was invoked for id.
func (s *Store) CallsFor(op Op, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callsFor[op][id]
}

// Reset clears the call counters.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[Op]int)
	s.callsFor = make(map[Op]map[string]int)
}

// Kind implements remote.Store.
func (s *Store) Kind() model.Kind { return s.kind }

// Capabilities implements remote.Store.
func (s *Store) Capabilities() remote.Capabilities { return s.caps }

// Create implements remote.Store.
func (s *Store) Create(_ context.Context, item model.Artifact) (model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := item.ID()
	if err := s.record(OpCreate, id); err != nil {
		return nil, err
	}
	if _, exists := s.items[id]; exists && id != "" {
		return nil, remote.NewError(http.StatusConflict, "item already exists")
	}

	c := item.Clone()
	if id == "" {
		s.nextID++
		id = fmt.Sprintf("%s-%d", strings.TrimSuffix(string(s.kind), "s"), s.nextID)
		c[model.FieldID] = id
	}
	c[model.FieldRev] = "0"
	s.stamp(c)
	s.items[id] = c
	return c.Clone(), nil
}

// Update implements remote.Store.
func (s *Store) Update(_ context.Context, item model.Artifact) (model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := item.ID()
	if err := s.record(OpUpdate, id); err != nil {
		return nil, err
	}
	if s.caps.CreateOnly {
		return nil, remote.NewError(http.StatusMethodNotAllowed, "store is create only")
	}
	cur, ok := s.items[id]
	if !ok {
		return nil, remote.NewError(http.StatusNotFound, "item not found")
	}
	if !s.caps.ForceOverride && item.Rev() != "" && item.Rev() != cur.Rev() {
		return nil, remote.NewError(http.StatusConflict, "revision mismatch")
	}

	c := item.Clone()
	c[model.FieldRev] = cur.Rev()
	s.stamp(c)
	s.items[id] = c
	return c.Clone(), nil
}

// Get implements remote.Store.
func (s *Store) Get(_ context.Context, id string) (model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpGet, id); err != nil {
		return nil, err
	}
	it, ok := s.items[id]
	if !ok {
		return nil, remote.NewError(http.StatusNotFound, "item not found")
	}
	return it.Clone(), nil
}

// GetByPath implements remote.Store.
func (s *Store) GetByPath(_ context.Context, path string) (model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpGetByPath, path); err != nil {
		return nil, err
	}
	if !s.caps.ItemByPath {
		return nil, remote.ErrNotSupported
	}
	for _, it := range s.items {
		if it.Path() == path {
			return it.Clone(), nil
		}
	}
	return nil, remote.NewError(http.StatusNotFound, "item not found")
}

// ListAll implements remote.Store.
func (s *Store) ListAll(_ context.Context, opts remote.PageOptions) (remote.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpList, opts.Continuation); err != nil {
		return remote.Page{}, err
	}
	return s.page(time.Time{}, opts)
}

// ListModifiedSince implements remote.Store.
func (s *Store) ListModifiedSince(_ context.Context, since time.Time, opts remote.PageOptions) (remote.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpList, opts.Continuation); err != nil {
		return remote.Page{}, err
	}
	return s.page(since, opts)
}

// Delete implements remote.Store.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(OpDelete, id); err != nil {
		return err
	}
	if _, ok := s.items[id]; !ok {
		return remote.NewError(http.StatusNotFound, "item not found")
	}
	delete(s.items, id)
	return nil
}

func (s *Store) page(since time.Time, opts remote.PageOptions) (remote.Page, error) {
	ids := make([]string, 0, len(s.items))
	for id, it := range s.items {
		if !opts.Status.Matches(it.Status()) {
			continue
		}
		if !since.IsZero() && !it.LastModifiedTime().After(since) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if opts.Continuation != "" {
		n, err := strconv.Atoi(opts.Continuation)
		if err != nil || n < 0 {
			return remote.Page{}, remote.NewError(http.StatusBadRequest, "bad continuation")
		}
		start = n
	}
	limit := opts.Limit
	if s.pageSize > 0 && (limit <= 0 || limit > s.pageSize) {
		limit = s.pageSize
	}

	end := len(ids)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	if start > end {
		start = end
	}

	page := remote.Page{Items: make([]model.Artifact, 0, end-start)}
	for _, id := range ids[start:end] {
		page.Items = append(page.Items, s.items[id].Clone())
	}
	if end < len(ids) {
		page.Continuation = strconv.Itoa(end)
	}
	return page, nil
}

// stamp bumps rev and lastModified. Callers hold s.mu.
func (s *Store) stamp(it model.Artifact) {
	rev, _ := strconv.Atoi(it.Rev())
	it[model.FieldRev] = strconv.Itoa(rev + 1)
	it[model.FieldLastModified] = s.clock().UTC().Format(time.RFC3339Nano)
}

// record counts a call and returns an injected failure, if any. Callers hold s.mu.
func (s *Store) record(op Op, id string) error {
	s.calls[op]++
	if s.callsFor[op] == nil {
		s.callsFor[op] = make(map[string]int)
	}
	s.callsFor[op][id]++

	for _, f := range s.failures {
		if f.op != op || (f.id != "" && f.id != id) || f.remaining == 0 {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
		}
		return f.err
	}
	return nil
}
