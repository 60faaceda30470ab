package tooling

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveSandboxedRejectsTraversal(t *testing.T) {
	_, err := resolveSandboxed("/home/agent", "../../etc/passwd")
	assert.Error(t, err)
}

func TestResolveSandboxedAllowsNested(t *testing.T) {
	path, err := resolveSandboxed("/home/agent", "src/main.go")
	assert.NoError(t, err)
	assert.Equal(t, "/home/agent/src/main.go", path)
}

func TestCorrectProjectPathStripsPrefix(t *testing.T) {
	list := func(string) []string { return []string{"billing"} }
	assert.Equal(t, "billing/main.go", correctProjectPath("/root", "/projects/billing/main.go", list))
}

func TestCorrectProjectPathFuzzyMatchesPrefix(t *testing.T) {
	list := func(string) []string { return []string{"billing-service"} }
	assert.Equal(t, "billing-service/main.go", correctProjectPath("/root", "billing/main.go", list))
}

func TestCorrectProjectPathDropsProjectIDSegment(t *testing.T) {
	list := func(string) []string { return []string{"billing"} }
	assert.Equal(t, "billing/main.go", correctProjectPath("/root", "projects/acct-42/billing/main.go", list))
}

func TestCorrectProjectPathLeavesAmbiguousUnchanged(t *testing.T) {
	list := func(string) []string { return []string{"billing-a", "billing-b"} }
	assert.Equal(t, "billing/main.go", correctProjectPath("/root", "billing/main.go", list))
}

func TestFuzzyUniquePrefixRequiresSingleMatch(t *testing.T) {
	_, ok := fuzzyUniquePrefix("svc", []string{"svc-a", "svc-b"})
	assert.False(t, ok)

	match, ok := fuzzyUniquePrefix("svc", []string{"svc-a"})
	assert.True(t, ok)
	assert.Equal(t, "svc-a", match)
}
