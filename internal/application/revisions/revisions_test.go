package revisions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julAtWork/edx-platform/config"
	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive"
	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive/adaptivetest"
	"github.com/julAtWork/edx-platform/pkg/timeutil"
)

// stubProvider hands out one fake per course.
type stubProvider struct {
	fakes map[string]*adaptivetest.Fake
	asked []string
	err   error
}

func (p *stubProvider) ClientFor(courseID string, _ map[string]any) (adaptive.API, error) {
	p.asked = append(p.asked, courseID)
	if p.err != nil {
		return nil, p.err
	}
	fake, ok := p.fakes[courseID]
	if !ok {
		fake = adaptivetest.New()
		p.fakes[courseID] = fake
	}
	return fake, nil
}

func meaningfulSettings() map[string]any {
	return map[string]any{
		"url":          "https://adaptive.example.com",
		"api_version":  "v1",
		"instance_id":  1,
		"access_token": "secret",
	}
}

func testCourse(id string, settings map[string]any) config.Course {
	return config.Course{
		ID:                            id,
		AdaptiveLearningConfiguration: settings,
		AdaptiveContentBlocks: []config.ContentBlock{
			{
				ID:     "acb-1",
				UnitID: "unit-1",
				Children: []config.Child{
					{BlockID: "problem-1", DisplayName: "Problem 1", URL: "/courses/" + id + "/courseware/1"},
					{BlockID: "problem-2", DisplayName: "Problem 2"},
				},
			},
			{
				ID:       "acb-2",
				UnitID:   "unit-2",
				Children: []config.Child{{BlockID: "problem-3", DisplayName: "Problem 3", URL: "/p/3"}},
			},
		},
	}
}

func mustUnix(t *testing.T, s string) int64 {
	t.Helper()
	v, err := timeutil.Unix(s)
	require.NoError(t, err)
	return v
}

func TestPendingReviews(t *testing.T) {
	fake := adaptivetest.New()
	fake.Reviews["23"] = []adaptive.PendingReview{
		{"review_question_uid": "problem-1", "next_review_at": "2026-05-01T10:00:00Z"},
		{"review_question_uid": "problem-3", "next_review_at": "2026-05-02T10:00:00Z"},
		{"next_review_at": "2026-05-03T10:00:00Z"},
	}

	pending, err := PendingReviews(context.Background(), fake, "23")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"problem-1": "2026-05-01T10:00:00Z",
		"problem-3": "2026-05-02T10:00:00Z",
	}, pending)
}

func TestRevisions(t *testing.T) {
	course := testCourse("course-v1:org+a+run", meaningfulSettings())
	pending := map[string]string{
		"problem-3":     "2026-05-02T10:00:00Z",
		"problem-2":     "2026-05-01T10:00:00+05:00",
		"other-problem": "2026-05-01T10:00:00Z",
	}

	revisions, err := Revisions(course, pending)
	require.NoError(t, err)
	require.Len(t, revisions, 2)

	assert.Equal(t, Revision{
		URL:     "/courses/course-v1:org+a+run/jump_to_id/problem-2",
		Name:    "Problem 2",
		DueDate: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC).Unix(),
	}, revisions[0])
	assert.Equal(t, Revision{URL: "/p/3", Name: "Problem 3", DueDate: mustUnix(t, "2026-05-02T10:00:00Z")}, revisions[1])
}

func TestRevisions_UnparsableDueDate(t *testing.T) {
	_, err := Revisions(testCourse("c", nil), map[string]string{"problem-1": "someday"})
	assert.ErrorIs(t, err, timeutil.ErrUnparsable)
}

func TestService_PendingRevisions(t *testing.T) {
	catalogue, err := config.NewCatalogue([]config.Course{
		testCourse("course-a", meaningfulSettings()),
		testCourse("course-unconfigured", map[string]any{"url": "", "instance_id": 1}),
		testCourse("course-empty", nil),
		testCourse("course-b", meaningfulSettings()),
	})
	require.NoError(t, err)

	fakeA := adaptivetest.New()
	fakeA.Reviews["23"] = []adaptive.PendingReview{
		{"review_question_uid": "problem-1", "next_review_at": "2026-05-01T10:00:00Z"},
	}
	fakeB := adaptivetest.New()
	fakeB.Reviews["23"] = []adaptive.PendingReview{
		{"review_question_uid": "problem-3", "next_review_at": "2026-06-01T10:00:00Z"},
	}
	provider := &stubProvider{fakes: map[string]*adaptivetest.Fake{"course-a": fakeA, "course-b": fakeB}}

	revisions, err := NewService(catalogue, provider, nil).PendingRevisions(context.Background(), "23")
	require.NoError(t, err)

	assert.Equal(t, []string{"course-a", "course-b"}, provider.asked)
	assert.Equal(t, []Revision{
		{URL: "/courses/course-a/courseware/1", Name: "Problem 1", DueDate: mustUnix(t, "2026-05-01T10:00:00Z")},
		{URL: "/p/3", Name: "Problem 3", DueDate: mustUnix(t, "2026-06-01T10:00:00Z")},
	}, revisions)
}

func TestService_PendingRevisions_NoCourses(t *testing.T) {
	catalogue, err := config.NewCatalogue(nil)
	require.NoError(t, err)

	revisions, err := NewService(catalogue, &stubProvider{}, nil).PendingRevisions(context.Background(), "23")
	require.NoError(t, err)
	assert.NotNil(t, revisions)
	assert.Empty(t, revisions)
}

func TestService_PendingRevisions_ServiceError(t *testing.T) {
	catalogue, err := config.NewCatalogue([]config.Course{testCourse("course-a", meaningfulSettings())})
	require.NoError(t, err)

	boom := errors.New("connection refused")
	fake := adaptivetest.New()
	fake.Errors["GetPendingReviews"] = boom
	provider := &stubProvider{fakes: map[string]*adaptivetest.Fake{"course-a": fake}}

	_, err = NewService(catalogue, provider, nil).PendingRevisions(context.Background(), "23")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "course-a")
}
