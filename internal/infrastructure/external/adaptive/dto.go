package adaptive

import (
	"errors"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// Record is an entity as returned by the adaptive learning service.
// The service may add properties at any time, so records are kept as plain
// maps. JSON numbers are preserved as json.Number.
type Record map[string]any

// Student is a learner known to the service: {id, uid, ...}.
type Student = Record

// KnowledgeNodeStudent links a learner to a knowledge node (a course block):
// {id, knowledge_node_id, knowledge_node_uid, student_id, student_uid, ...}.
type KnowledgeNodeStudent = Record

// Event is an immutable fact recorded against a knowledge node student:
// {id, knowledge_node_student_id, type, payload}.
type Event = Record

// PendingReview recommends that a learner revisits a problem:
// {id, student_uid, knowledge_node_uid, review_question_uid, next_review_at, ...}.
type PendingReview = Record

// Field names used by the service.
const (
	FieldID                     = "id"
	FieldUID                    = "uid"
	FieldKnowledgeNodeUID       = "knowledge_node_uid"
	FieldStudentUID             = "student_uid"
	FieldKnowledgeNodeStudentID = "knowledge_node_student_id"
	FieldEventType              = "event_type"
	FieldPayload                = "payload"
	FieldReviewQuestionUID      = "review_question_uid"
	FieldNextReviewAt           = "next_review_at"
)

// Event types understood by the service.
const (
	EventRead   = "EventRead"
	EventResult = "EventResult"
)

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// String returns the field rendered as a string, or "" when absent.
func (r Record) String(key string) string {
	return FormatValue(r[key])
}

// Matches reports whether the field stored under key renders as value.
// Absent fields never match.
func (r Record) Matches(key, value string) bool {
	raw, ok := r[key]
	if !ok || raw == nil {
		return false
	}
	return FormatValue(raw) == value
}

// ID returns the record id rendered as a string, or "" when the record has none.
func (r Record) ID() string {
	return r.String(FieldID)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ErrMalformedResponse is returned when a response body is not valid JSON
// or does not have the expected shape.
var ErrMalformedResponse = errors.New("adaptive: malformed response")

// APIError is returned when the service answers with a non-2xx status.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("adaptive: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("adaptive: %s %s: status %d", e.Method, e.URL, e.StatusCode)
}

// Temporary reports whether the failure is on the service side.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500
}
