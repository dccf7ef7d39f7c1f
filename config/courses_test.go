package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCourses = `
courses:
  - id: course-v1:org+adaptive+2026
    name: Adaptive Demo
    adaptive_learning_configuration:
      url: https://adaptive.example.com
      api_version: v1
      instance_id: 7
      access_token: secret
    adaptive_content_blocks:
      - id: acb-1
        unit_id: unit-1
        children:
          - block_id: problem-1
            display_name: Problem 1
            url: /courses/course-v1:org+adaptive+2026/courseware/ch1/seq1/1
          - block_id: problem-2
            display_name: Problem 2
            url: /courses/course-v1:org+adaptive+2026/courseware/ch1/seq1/2
  - id: course-v1:org+plain+2026
    name: Plain
`

func TestParseCourses(t *testing.T) {
	catalogue, err := ParseCourses([]byte(sampleCourses))
	require.NoError(t, err)
	require.Equal(t, 2, catalogue.Len())

	course, err := catalogue.Course("course-v1:org+adaptive+2026")
	require.NoError(t, err)
	assert.Equal(t, "Adaptive Demo", course.Name)
	assert.Equal(t, 7, course.Settings()["instance_id"])
	require.Len(t, course.AdaptiveContentBlocks, 1)
	assert.Equal(t, []string{"problem-1", "problem-2"}, course.AdaptiveContentBlocks[0].ChildIDs())

	block, err := catalogue.ContentBlock(course.ID, "acb-1")
	require.NoError(t, err)
	assert.Equal(t, "unit-1", block.UnitID)

	_, err = catalogue.ContentBlock(course.ID, "acb-404")
	assert.ErrorIs(t, err, ErrContentBlockNotFound)

	plain, err := catalogue.Course("course-v1:org+plain+2026")
	require.NoError(t, err)
	assert.Empty(t, plain.Settings())

	_, err = catalogue.Course("missing")
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestCourse_SettingsIsCopy(t *testing.T) {
	catalogue, err := ParseCourses([]byte(sampleCourses))
	require.NoError(t, err)

	course, _ := catalogue.Course("course-v1:org+adaptive+2026")
	course.Settings()["url"] = "https://changed.example"

	again, _ := catalogue.Course("course-v1:org+adaptive+2026")
	assert.Equal(t, "https://adaptive.example.com", again.Settings()["url"])
}

func TestNewCatalogue_RejectsBadCourses(t *testing.T) {
	_, err := NewCatalogue([]Course{
		{ID: "a"},
		{ID: "a"},
		{Name: "nameless"},
		{ID: "b", AdaptiveContentBlocks: []ContentBlock{{ID: "acb"}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate course id "a"`)
	assert.Contains(t, err.Error(), "course #3 has no id")
	assert.Contains(t, err.Error(), "needs id and unit_id")
}

func TestLoadCourses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courses.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCourses), 0o600))

	catalogue, err := LoadCourses(path)
	require.NoError(t, err)
	assert.Len(t, catalogue.Courses(), 2)

	_, err = LoadCourses(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseCourses([]byte("courses: [unclosed"))
	assert.Error(t, err)
}
