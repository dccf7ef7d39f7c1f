package adaptive

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testAPIVersion  = "v42"
	testInstanceID  = 23
	testAccessToken = "this-is-not-a-test"
)

// recordedRequest is a request received by fakeService.
type recordedRequest struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	Form          url.Values
}

// fakeService emulates the adaptive learning service for one instance.
type fakeService struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	students []map[string]any
	links    []map[string]any
	reviews  []map[string]any
	requests []recordedRequest
	nextID   int

	// failures maps "METHOD path-suffix" to a forced status code.
	failures map[string]int
	// rawBodies maps "METHOD path-suffix" to a raw response body.
	rawBodies map[string]string
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{
		t:         t,
		nextID:    100,
		failures:  make(map[string]int),
		rawBodies: make(map[string]string),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeService) settings() map[string]any {
	return map[string]any{
		KeyURL:         f.server.URL,
		KeyAPIVersion:  testAPIVersion,
		KeyInstanceID:  testInstanceID,
		KeyAccessToken: testAccessToken,
	}
}

func (f *fakeService) client() *Client {
	f.t.Helper()
	c, err := NewClient(DefaultClientConfig(MustConfiguration(f.settings())))
	require.NoError(f.t, err)
	return c
}

func (f *fakeService) instancePath() string {
	return fmt.Sprintf("/%s/instances/%d", testAPIVersion, testInstanceID)
}

func (f *fakeService) addStudents(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.students = append(f.students, map[string]any{"id": i, "uid": fmt.Sprintf("student-%d", i)})
	}
}

func (f *fakeService) addLinks(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.links = append(f.links, map[string]any{
			"id":                 i,
			"knowledge_node_id":  i,
			"knowledge_node_uid": fmt.Sprintf("knowledge-node-%d", i),
			"student_id":         i,
			"student_uid":        fmt.Sprintf("student-%d", i),
		})
	}
}

func (f *fakeService) fail(method, suffix string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" "+suffix] = status
}

func (f *fakeService) respondRaw(method, suffix, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawBodies[method+" "+suffix] = body
}

// count returns how many requests were made with method to the given resource suffix.
func (f *fakeService) count(method, suffix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == f.instancePath()+suffix {
			n++
		}
	}
	return n
}

// last returns the last request made with method to the given resource suffix.
func (f *fakeService) last(method, suffix string) recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		r := f.requests[i]
		if r.Method == method && r.Path == f.instancePath()+suffix {
			return r
		}
	}
	f.t.Fatalf("no %s request to %s", method, suffix)
	return recordedRequest{}
}

func (f *fakeService) sequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Method+" "+strings.TrimPrefix(r.Path, f.instancePath()))
	}
	return out
}

func (f *fakeService) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(body))

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, recordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
		Form:          form,
	})

	suffix := strings.TrimPrefix(r.URL.Path, f.instancePath())
	key := r.Method + " " + suffix
	if status, ok := f.failures[key]; ok {
		http.Error(w, "forced failure", status)
		return
	}
	if raw, ok := f.rawBodies[key]; ok {
		_, _ = w.Write([]byte(raw))
		return
	}

	switch key {
	case "GET /students":
		f.writeJSON(w, f.students)
	case "POST /students":
		student := map[string]any{"id": f.id(), "uid": form.Get("uid")}
		f.students = append(f.students, student)
		f.writeJSON(w, student)
	case "GET /knowledge_node_students":
		f.writeJSON(w, f.links)
	case "POST /knowledge_node_students":
		link := map[string]any{
			"id":                 f.id(),
			"knowledge_node_uid": form.Get("knowledge_node_uid"),
			"student_uid":        form.Get("student_uid"),
		}
		f.links = append(f.links, link)
		f.writeJSON(w, link)
	case "POST /events":
		event := map[string]any{
			"id":                        f.id(),
			"knowledge_node_student_id": form.Get("knowledge_node_student_id"),
			"type":                      form.Get("event_type"),
		}
		if form.Has("payload") {
			event["payload"] = form.Get("payload")
		}
		f.writeJSON(w, event)
	case "GET /review_utils/fetch_reviews":
		var reviews []map[string]any
		for _, review := range f.reviews {
			if review["student_uid"] == form.Get("student_uid") {
				reviews = append(reviews, review)
			}
		}
		if reviews == nil {
			reviews = []map[string]any{}
		}
		f.writeJSON(w, reviews)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeService) id() int {
	f.nextID++
	return f.nextID
}

func (f *fakeService) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		f.t.Errorf("encode response: %v", err)
	}
}
