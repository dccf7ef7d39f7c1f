// Package adaptivetest provides an in-memory adaptive.API for tests.
package adaptivetest

import (
	"context"
	"strconv"
	"sync"

	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive"
)

// Call is a recorded API call.
type Call struct {
	Method string
	Args   []string
}

// Fake implements adaptive.API in memory and records every call.
// Errors set in Errors are returned by the method of the same name.
type Fake struct {
	mu sync.Mutex

	Calls   []Call
	Errors  map[string]error
	Reviews map[string][]adaptive.PendingReview

	students []adaptive.Student
	links    []adaptive.KnowledgeNodeStudent
	events   []adaptive.Event
	nextID   int
}

var _ adaptive.API = (*Fake)(nil)

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		Errors:  make(map[string]error),
		Reviews: make(map[string][]adaptive.PendingReview),
	}
}

// Methods returns the names of the recorded calls, in order.
func (f *Fake) Methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		out = append(out, c.Method)
	}
	return out
}

// Events returns the events created so far.
func (f *Fake) Events() []adaptive.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]adaptive.Event, len(f.events))
	copy(out, f.events)
	return out
}

func (f *Fake) record(method string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Method: method, Args: args})
	return f.Errors[method]
}

func (f *Fake) id() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return strconv.Itoa(f.nextID)
}

func (f *Fake) GetStudents(context.Context) ([]adaptive.Student, error) {
	if err := f.record("GetStudents"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]adaptive.Student, len(f.students))
	copy(out, f.students)
	return out, nil
}

func (f *Fake) GetStudent(_ context.Context, uid string) (adaptive.Student, error) {
	if err := f.record("GetStudent", uid); err != nil {
		return nil, err
	}
	return f.findStudent(uid), nil
}

func (f *Fake) CreateStudent(_ context.Context, uid string) (adaptive.Student, error) {
	if err := f.record("CreateStudent", uid); err != nil {
		return nil, err
	}
	student := adaptive.Student{adaptive.FieldID: f.id(), adaptive.FieldUID: uid}
	f.mu.Lock()
	f.students = append(f.students, student)
	f.mu.Unlock()
	return student, nil
}

func (f *Fake) GetOrCreateStudent(ctx context.Context, uid string) (adaptive.Student, error) {
	if err := f.record("GetOrCreateStudent", uid); err != nil {
		return nil, err
	}
	if student := f.findStudent(uid); student != nil {
		return student, nil
	}
	return f.CreateStudent(ctx, uid)
}

func (f *Fake) GetKnowledgeNodeStudents(context.Context) ([]adaptive.KnowledgeNodeStudent, error) {
	if err := f.record("GetKnowledgeNodeStudents"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]adaptive.KnowledgeNodeStudent, len(f.links))
	copy(out, f.links)
	return out, nil
}

func (f *Fake) GetKnowledgeNodeStudent(_ context.Context, blockID, uid string) (adaptive.KnowledgeNodeStudent, error) {
	if err := f.record("GetKnowledgeNodeStudent", blockID, uid); err != nil {
		return nil, err
	}
	return f.findLink(blockID, uid), nil
}

func (f *Fake) CreateKnowledgeNodeStudent(_ context.Context, blockID, uid string) (adaptive.KnowledgeNodeStudent, error) {
	if err := f.record("CreateKnowledgeNodeStudent", blockID, uid); err != nil {
		return nil, err
	}
	link := adaptive.KnowledgeNodeStudent{
		adaptive.FieldID:               f.id(),
		adaptive.FieldKnowledgeNodeUID: blockID,
		adaptive.FieldStudentUID:       uid,
	}
	f.mu.Lock()
	f.links = append(f.links, link)
	f.mu.Unlock()
	return link, nil
}

func (f *Fake) CreateKnowledgeNodeStudents(ctx context.Context, blockIDs []string, uid string) ([]adaptive.KnowledgeNodeStudent, error) {
	args := append([]string{uid}, blockIDs...)
	if err := f.record("CreateKnowledgeNodeStudents", args...); err != nil {
		return nil, err
	}
	links := make([]adaptive.KnowledgeNodeStudent, 0, len(blockIDs))
	for _, blockID := range blockIDs {
		link, err := f.GetOrCreateKnowledgeNodeStudent(ctx, blockID, uid)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

func (f *Fake) GetOrCreateKnowledgeNodeStudent(ctx context.Context, blockID, uid string) (adaptive.KnowledgeNodeStudent, error) {
	if err := f.record("GetOrCreateKnowledgeNodeStudent", blockID, uid); err != nil {
		return nil, err
	}
	if _, err := f.GetOrCreateStudent(ctx, uid); err != nil {
		return nil, err
	}
	if link := f.findLink(blockID, uid); link != nil {
		return link, nil
	}
	return f.CreateKnowledgeNodeStudent(ctx, blockID, uid)
}

func (f *Fake) GetKnowledgeNodeStudentID(ctx context.Context, blockID, uid string) (string, error) {
	if err := f.record("GetKnowledgeNodeStudentID", blockID, uid); err != nil {
		return "", err
	}
	link, err := f.GetOrCreateKnowledgeNodeStudent(ctx, blockID, uid)
	if err != nil {
		return "", err
	}
	return link.ID(), nil
}

func (f *Fake) CreateEvent(ctx context.Context, blockID, uid, eventType string) (adaptive.Event, error) {
	if err := f.record("CreateEvent", blockID, uid, eventType); err != nil {
		return nil, err
	}
	return f.createEvent(ctx, blockID, uid, eventType, "")
}

func (f *Fake) CreateReadEvent(ctx context.Context, blockID, uid string) (adaptive.Event, error) {
	if err := f.record("CreateReadEvent", blockID, uid); err != nil {
		return nil, err
	}
	return f.createEvent(ctx, blockID, uid, adaptive.EventRead, "")
}

func (f *Fake) CreateResultEvent(ctx context.Context, blockID, uid, result string) (adaptive.Event, error) {
	if err := f.record("CreateResultEvent", blockID, uid, result); err != nil {
		return nil, err
	}
	return f.createEvent(ctx, blockID, uid, adaptive.EventResult, result)
}

func (f *Fake) createEvent(ctx context.Context, blockID, uid, eventType, payload string) (adaptive.Event, error) {
	linkID, err := f.GetKnowledgeNodeStudentID(ctx, blockID, uid)
	if err != nil {
		return nil, err
	}
	event := adaptive.Event{
		adaptive.FieldID:                     f.id(),
		adaptive.FieldKnowledgeNodeStudentID: linkID,
		"type":                               eventType,
	}
	if payload != "" {
		event[adaptive.FieldPayload] = payload
	}
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	return event, nil
}

func (f *Fake) GetPendingReviews(_ context.Context, uid string) ([]adaptive.PendingReview, error) {
	if err := f.record("GetPendingReviews", uid); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reviews[uid], nil
}

func (f *Fake) findStudent(uid string) adaptive.Student {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.students {
		if s.Matches(adaptive.FieldUID, uid) {
			return s
		}
	}
	return nil
}

func (f *Fake) findLink(blockID, uid string) adaptive.KnowledgeNodeStudent {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.Matches(adaptive.FieldKnowledgeNodeUID, blockID) && l.Matches(adaptive.FieldStudentUID, uid) {
			return l
		}
	}
	return nil
}
