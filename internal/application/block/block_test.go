package block

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julAtWork/edx-platform/config"
	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive"
	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive/adaptivetest"
)

func testContentBlock() config.ContentBlock {
	return config.ContentBlock{
		ID:     "acb-1",
		UnitID: "unit-1",
		Children: []config.Child{
			{BlockID: "problem-1", DisplayName: "Problem 1", URL: "/p/1"},
			{BlockID: "problem-2", DisplayName: "Problem 2", URL: "/p/2"},
			{BlockID: "problem-3", DisplayName: "Problem 3", URL: "/p/3"},
		},
	}
}

func TestBlock_Accessors(t *testing.T) {
	b := New(adaptivetest.New(), testContentBlock(), nil)

	assert.Equal(t, "acb-1", b.ID())
	assert.Equal(t, "unit-1", b.UnitID())
	assert.Equal(t, []string{"problem-1", "problem-2", "problem-3"}, b.ChildBlockIDs())
	assert.Len(t, b.Children(), 3)
}

func TestBlock_ChildBlockIDsFollowCatalogueOrder(t *testing.T) {
	content := testContentBlock()
	b := New(adaptivetest.New(), content, nil)
	assert.Equal(t, content.ChildIDs(), b.ChildBlockIDs())

	content.Children[0].BlockID = "changed"
	assert.Equal(t, "problem-1", b.ChildBlockIDs()[0])
}

func TestBlock_SendUnitViewedEvent(t *testing.T) {
	fake := adaptivetest.New()
	b := New(fake, testContentBlock(), nil)

	event, err := b.SendUnitViewedEvent(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, adaptive.EventRead, event.String("type"))

	require.NotEmpty(t, fake.Calls)
	assert.Equal(t, adaptivetest.Call{Method: "CreateReadEvent", Args: []string{"unit-1", "42"}}, fake.Calls[0])
}

func TestBlock_LinkUserToChildren(t *testing.T) {
	fake := adaptivetest.New()
	b := New(fake, testContentBlock(), nil)

	links, err := b.LinkUserToChildren(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, "problem-2", links[1].String(adaptive.FieldKnowledgeNodeUID))

	assert.Equal(t, adaptivetest.Call{
		Method: "CreateKnowledgeNodeStudents",
		Args:   []string{"42", "problem-1", "problem-2", "problem-3"},
	}, fake.Calls[0])
}

func TestBlock_SelectionsForUser(t *testing.T) {
	fake := adaptivetest.New()
	fake.Reviews["42"] = []adaptive.PendingReview{
		{"knowledge_node_uid": "unit-1", "review_question_uid": "problem-3"},
		{"knowledge_node_uid": "unit-1", "review_question_uid": "problem-1"},
		{"knowledge_node_uid": "elsewhere", "review_question_uid": "review-question-7"},
		{"knowledge_node_uid": "elsewhere"},
	}
	b := New(fake, testContentBlock(), nil)

	selected, err := b.SelectionsForUser(context.Background(), "42", b.Children())
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "problem-1", selected[0].BlockID)
	assert.Equal(t, "problem-3", selected[1].BlockID)
	assert.Equal(t, []string{"GetPendingReviews"}, fake.Methods())
}

func TestBlock_SelectionsForUser_NoReviews(t *testing.T) {
	b := New(adaptivetest.New(), testContentBlock(), nil)

	selected, err := b.SelectionsForUser(context.Background(), "42", b.Children())
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestBlock_StudentView(t *testing.T) {
	fake := adaptivetest.New()
	fake.Reviews["42"] = []adaptive.PendingReview{{"review_question_uid": "problem-2"}}
	b := New(fake, testContentBlock(), nil)

	selected, err := b.StudentView(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "Problem 2", selected[0].DisplayName)

	methods := fake.Methods()
	assert.Equal(t, "CreateReadEvent", methods[0])
	assert.Contains(t, methods, "CreateKnowledgeNodeStudents")
	assert.Equal(t, "GetPendingReviews", methods[len(methods)-1])
	assert.Len(t, fake.Events(), 1)
}

func TestBlock_StudentView_StopsOnFailure(t *testing.T) {
	fake := adaptivetest.New()
	boom := errors.New("service down")
	fake.Errors["CreateReadEvent"] = boom
	b := New(fake, testContentBlock(), nil)

	_, err := b.StudentView(context.Background(), "42")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"CreateReadEvent"}, fake.Methods())
}

func TestSendResultEvent(t *testing.T) {
	fake := adaptivetest.New()

	event, err := SendResultEvent(context.Background(), fake, "problem-1", "42", "100")
	require.NoError(t, err)
	assert.Equal(t, "100", event.String(adaptive.FieldPayload))
	assert.Equal(t, adaptivetest.Call{Method: "CreateResultEvent", Args: []string{"problem-1", "42", "100"}}, fake.Calls[0])
}

func TestFetchPendingReviews_ReturnsResultsUnchanged(t *testing.T) {
	fake := adaptivetest.New()
	expected := make([]adaptive.PendingReview, 0, 5)
	for _, n := range []string{"0", "1", "2", "3", "4"} {
		expected = append(expected, adaptive.PendingReview{
			"knowledge_node_uid":  "knowledge-node-" + n,
			"review_question_uid": "review-question-" + n,
		})
	}
	fake.Reviews["42"] = expected

	reviews, err := FetchPendingReviews(context.Background(), fake, "42")
	require.NoError(t, err)
	assert.Equal(t, expected, reviews)
	assert.Equal(t, []adaptivetest.Call{{Method: "GetPendingReviews", Args: []string{"42"}}}, fake.Calls)
}

func TestFetchPendingReviews_Error(t *testing.T) {
	fake := adaptivetest.New()
	fake.Errors["GetPendingReviews"] = &adaptive.APIError{StatusCode: 503}

	_, err := FetchPendingReviews(context.Background(), fake, "42")
	var apiErr *adaptive.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.StatusCode)
}
