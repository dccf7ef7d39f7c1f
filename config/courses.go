package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lookup errors returned by Catalogue.
var (
	ErrCourseNotFound       = errors.New("course not found")
	ErrContentBlockNotFound = errors.New("adaptive content block not found")
)

// Catalogue is the read-only list of courses the hub serves.
type Catalogue struct {
	courses []Course
	byID    map[string]int
}

// Course describes a course and its adaptive learning setup.
type Course struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// AdaptiveLearningConfiguration holds url, api_version, instance_id and access_token.
	AdaptiveLearningConfiguration map[string]any `yaml:"adaptive_learning_configuration"`

	AdaptiveContentBlocks []ContentBlock `yaml:"adaptive_content_blocks"`
}

// ContentBlock is an adaptive content block placed inside a unit.
type ContentBlock struct {
	ID       string  `yaml:"id"`
	UnitID   string  `yaml:"unit_id"`
	Children []Child `yaml:"children"`
}

// Child is a problem or other leaf block selected by an adaptive content block.
type Child struct {
	BlockID     string `yaml:"block_id" json:"block_id"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	URL         string `yaml:"url" json:"url"`
}

// ChildIDs returns the block ids of the children, in order.
func (b ContentBlock) ChildIDs() []string {
	ids := make([]string, 0, len(b.Children))
	for _, child := range b.Children {
		ids = append(ids, child.BlockID)
	}
	return ids
}

// Settings returns a copy of the adaptive learning configuration.
func (c Course) Settings() map[string]any {
	settings := make(map[string]any, len(c.AdaptiveLearningConfiguration))
	for key, value := range c.AdaptiveLearningConfiguration {
		settings[key] = value
	}
	return settings
}

type catalogueFile struct {
	Courses []Course `yaml:"courses"`
}

// LoadCourses reads the catalogue from a YAML file.
func LoadCourses(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading courses: %w", err)
	}
	return ParseCourses(data)
}

// ParseCourses builds a catalogue from YAML.
func ParseCourses(data []byte) (*Catalogue, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing courses: %w", err)
	}
	return NewCatalogue(file.Courses)
}

// NewCatalogue indexes courses by id. Ids must be present and unique.
func NewCatalogue(courses []Course) (*Catalogue, error) {
	c := &Catalogue{
		courses: make([]Course, 0, len(courses)),
		byID:    make(map[string]int, len(courses)),
	}

	var errs []string
	for i, course := range courses {
		if strings.TrimSpace(course.ID) == "" {
			errs = append(errs, fmt.Sprintf("course #%d has no id", i+1))
			continue
		}
		if _, dup := c.byID[course.ID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate course id %q", course.ID))
			continue
		}
		for j, block := range course.AdaptiveContentBlocks {
			if block.ID == "" || block.UnitID == "" {
				errs = append(errs, fmt.Sprintf("course %q: adaptive content block #%d needs id and unit_id", course.ID, j+1))
			}
		}
		c.byID[course.ID] = len(c.courses)
		c.courses = append(c.courses, course)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid courses:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return c, nil
}

// Courses returns all courses in file order.
func (c *Catalogue) Courses() []Course {
	out := make([]Course, len(c.courses))
	copy(out, c.courses)
	return out
}

// Course returns the course identified by id.
func (c *Catalogue) Course(id string) (Course, error) {
	i, ok := c.byID[id]
	if !ok {
		return Course{}, fmt.Errorf("%w: %s", ErrCourseNotFound, id)
	}
	return c.courses[i], nil
}

// ContentBlock returns the adaptive content block identified by blockID within a course.
func (c *Catalogue) ContentBlock(courseID, blockID string) (ContentBlock, error) {
	course, err := c.Course(courseID)
	if err != nil {
		return ContentBlock{}, err
	}
	for _, block := range course.AdaptiveContentBlocks {
		if block.ID == blockID {
			return block, nil
		}
	}
	return ContentBlock{}, fmt.Errorf("course %s: %w: %s", courseID, ErrContentBlockNotFound, blockID)
}

// Len returns the number of courses.
func (c *Catalogue) Len() int {
	return len(c.courses)
}
