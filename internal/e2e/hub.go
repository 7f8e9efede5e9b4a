package e2e

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/remote"
	"github.com/klauern/hubsync/internal/remote/mock"
	hubsync "github.com/klauern/hubsync/internal/sync"
)

// Hub is a content hub served over HTTP from in-memory stores, one per kind.
// Pages are only created when their parent page exists.
type Hub struct {
	server *httptest.Server
	stores map[model.Kind]*mock.Store

	mu      sync.Mutex
	headers []http.Header
}

// NewHub starts a hub that is shut down when the test ends.
func NewHub(t *testing.T) *Hub {
	t.Helper()

	h := &Hub{stores: make(map[model.Kind]*mock.Store)}
	for kind, desc := range hubsync.DefaultDescriptors() {
		h.stores[kind] = mock.New(kind).WithCapabilities(desc.Capabilities)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/{kind}", h.list)
	mux.HandleFunc("POST /api/v1/{kind}", h.create)
	mux.HandleFunc("GET /api/v1/{kind}/{id}", h.get)
	mux.HandleFunc("PUT /api/v1/{kind}/{id}", h.update)
	mux.HandleFunc("DELETE /api/v1/{kind}/{id}", h.delete)

	h.server = httptest.NewServer(h.record(mux))
	t.Cleanup(h.server.Close)
	return h
}

// URL is the base URL of the hub.
func (h *Hub) URL() string {
	return h.server.URL
}

// Store returns the backing store of kind for seeding and inspection.
func (h *Hub) Store(kind model.Kind) *mock.Store {
	return h.stores[kind]
}

// LastHeader returns the value of key on the most recent request.
func (h *Hub) LastHeader(key string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.headers) == 0 {
		return ""
	}
	return h.headers[len(h.headers)-1].Get(key)
}

// Requests returns the number of requests served.
func (h *Hub) Requests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.headers)
}

func (h *Hub) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.headers = append(h.headers, r.Header.Clone())
		h.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (h *Hub) store(w http.ResponseWriter, r *http.Request) (*mock.Store, bool) {
	s, ok := h.stores[model.Kind(r.PathValue("kind"))]
	if !ok {
		writeError(w, remote.NewError(http.StatusNotFound, "unknown collection"))
	}
	return s, ok
}

func (h *Hub) list(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	if p := q.Get("path"); p != "" {
		item, err := s.GetByPath(r.Context(), p)
		respond(w, item, err)
		return
	}

	opts := remote.PageOptions{
		Continuation: q.Get("continuation"),
		Status:       model.StatusFilter(q.Get("status")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, remote.NewError(http.StatusBadRequest, "bad limit"))
			return
		}
		opts.Limit = n
	}

	var (
		page remote.Page
		err  error
	)
	if v := q.Get("modifiedSince"); v != "" {
		since, perr := time.Parse(time.RFC3339Nano, v)
		if perr != nil {
			writeError(w, remote.NewError(http.StatusBadRequest, "bad modifiedSince"))
			return
		}
		page, err = s.ListModifiedSince(r.Context(), since, opts)
	} else {
		page, err = s.ListAll(r.Context(), opts)
	}
	respond(w, page, err)
}

func (h *Hub) create(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	item, ok := decodeItem(w, r)
	if !ok {
		return
	}
	if s.Kind() == model.Pages && !h.parentExists(item.Path()) {
		writeError(w, remote.NewError(http.StatusUnprocessableEntity, "Parent page does not exist"))
		return
	}
	created, err := s.Create(r.Context(), item)
	respond(w, created, err)
}

func (h *Hub) get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	item, err := s.Get(r.Context(), r.PathValue("id"))
	respond(w, item, err)
}

func (h *Hub) update(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	item, ok := decodeItem(w, r)
	if !ok {
		return
	}
	item[model.FieldID] = r.PathValue("id")
	if rev := r.Header.Get("If-Match"); rev != "" {
		item[model.FieldRev] = rev
	}
	updated, err := s.Update(r.Context(), item)
	respond(w, updated, err)
}

func (h *Hub) delete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	if err := s.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parentExists reports whether the parent of a hierarchical page path is on the hub.
func (h *Hub) parentExists(p string) bool {
	p = strings.TrimRight(p, "/")
	parent := path.Dir(p)
	if p == "" || parent == "/" || parent == "." {
		return true
	}
	for _, it := range h.stores[model.Pages].Items() {
		if strings.TrimRight(it.Path(), "/") == parent {
			return true
		}
	}
	return false
}

func decodeItem(w http.ResponseWriter, r *http.Request) (model.Artifact, bool) {
	var item model.Artifact
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, remote.NewError(http.StatusBadRequest, "invalid JSON body"))
		return nil, false
	}
	return item, true
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var re *remote.Error
	switch {
	case errors.As(err, &re) && re.StatusCode != 0:
		status = re.StatusCode
	case errors.Is(err, remote.ErrNotSupported):
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": messageOf(err)})
}

func messageOf(err error) string {
	var re *remote.Error
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}
