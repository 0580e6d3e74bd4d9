package reporting

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescendancyReport_NumberedOutline(t *testing.T) {
	t.Parallel()

	gen := NewDescendancyReport(loadSample(t))
	job := &Job{TreeID: 1, TreeName: "Smith Family", Xref: "I1", Generations: 3}
	r := buildReport(t, gen, job)

	assert.Contains(t, r.out, "Descendants of John Smith (1823-1901)")

	assert.Contains(t, r.out, "1 ")
	assert.Contains(t, r.out, "John Smith (1823-1901)")
	assert.Contains(t, r.out, "1.1 ")
	assert.Contains(t, r.out, "Peter Smith (b. 1850)")
	assert.Contains(t, r.out, "1.1.1 ")
	assert.Contains(t, r.out, "Alice Smith")
}

func TestDescendancyReport_MarriageRows(t *testing.T) {
	t.Parallel()

	gen := NewDescendancyReport(loadSample(t))
	job := &Job{TreeID: 1, Xref: "I1", Generations: 3}
	r := buildReport(t, gen, job)

	text := r.text()
	assert.Contains(t, text, "m. Mary Jones (1825-1910), 10 JUN 1848, London, England")
	assert.Contains(t, text, "m. Jane Green, 1875")
}

func TestDescendancyReport_GenerationLimit(t *testing.T) {
	t.Parallel()

	gen := NewDescendancyReport(loadSample(t))
	job := &Job{TreeID: 1, Xref: "I1", Generations: 2}
	r := buildReport(t, gen, job)

	assert.Contains(t, r.out, "1.1 ")
	assert.NotContains(t, r.out, "1.1.1 ")
}

func TestDescendancyReport_OrderFollowsOutline(t *testing.T) {
	t.Parallel()

	gen := NewDescendancyReport(loadSample(t))
	job := &Job{TreeID: 1, Xref: "I4", Generations: 3}
	r := buildReport(t, gen, job)

	text := r.text()
	root := strings.Index(text, "Robert Smith (b. 1798)")
	child := strings.LastIndex(text, "John Smith (1823-1901)")
	grandchild := strings.Index(text, "Peter Smith (b. 1850)")
	assert.True(t, root >= 0 && child > root && grandchild > child,
		"outline out of order in %q", text)
}

func TestDescendancyReport_LeafHasNoMarriageRow(t *testing.T) {
	t.Parallel()

	gen := NewDescendancyReport(loadSample(t))
	job := &Job{TreeID: 1, Xref: "I7", Generations: 2}
	r := buildReport(t, gen, job)

	assert.Contains(t, r.out, "Alice Smith")
	assert.NotContains(t, r.text(), "m. ")
}
