package attempt

import (
	"slices"
	"strings"
)

// TagNoArtifacts opts a test out of screenshot, trace and video capture.
const TagNoArtifacts = "no-artifacts"

// Test identifies the test being attempted. Class and Method mirror the
// two-level naming most runners report (suite and case); Tags carry per-test
// switches such as TagNoArtifacts.
type Test struct {
	Class  string
	Method string
	Tags   []string
}

// HasTag reports whether the test carries tag.
func (t Test) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// String returns "Class.Method", or whichever half is present.
func (t Test) String() string {
	switch {
	case t.Class == "":
		return t.Method
	case t.Method == "":
		return t.Class
	default:
		return t.Class + "." + t.Method
	}
}

// FromName splits a hierarchical test name such as the one returned by
// testing.T.Name ("TestHome/loads_title") into a Test. The first segment is the
// class; the remainder is the method. A name without a separator is used for
// both.
func FromName(name string, tags ...string) Test {
	class, method, found := strings.Cut(name, "/")
	if !found {
		method = class
	}

	return Test{
		Class:  class,
		Method: method,
		Tags:   tags,
	}
}
