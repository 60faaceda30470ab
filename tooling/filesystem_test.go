package tooling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysochos/society-agent-sub001/apperr"
)

func newTestFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	dir := t.TempDir()
	return NewFilesystem(dir)
}

func TestWriteThenReadFile(t *testing.T) {
	fs := newTestFilesystem(t)
	_, err := fs.WriteFile([]byte(`{"path":"notes.txt","content":"hello"}`))
	require.NoError(t, err)

	out, err := fs.ReadFile([]byte(`{"path":"notes.txt"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestReadFileNotFound(t *testing.T) {
	fs := newTestFilesystem(t)
	_, err := fs.ReadFile([]byte(`{"path":"missing.txt"}`))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestResolveRejectsEscapingPath(t *testing.T) {
	fs := newTestFilesystem(t)
	_, err := fs.ReadFile([]byte(`{"path":"../outside.txt"}`))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBlocked))
}

func TestResolveRejectsAbsolutePath(t *testing.T) {
	fs := newTestFilesystem(t)
	_, err := fs.ReadFile([]byte(`{"path":"/etc/passwd"}`))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBlocked))
}

func TestPatchFileRequiresUniqueMatch(t *testing.T) {
	fs := newTestFilesystem(t)
	_, err := fs.WriteFile([]byte(`{"path":"f.txt","content":"foo foo"}`))
	require.NoError(t, err)

	_, err = fs.PatchFile([]byte(`{"path":"f.txt","old_text":"foo","new_text":"bar"}`))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	_, err = fs.PatchFile([]byte(`{"path":"f.txt","old_text":"foo foo","new_text":"bar"}`))
	require.NoError(t, err)
	out, err := fs.ReadFile([]byte(`{"path":"f.txt"}`))
	require.NoError(t, err)
	assert.Equal(t, "bar", out)
}

func TestPatchFileMissingOldText(t *testing.T) {
	fs := newTestFilesystem(t)
	_, err := fs.WriteFile([]byte(`{"path":"f.txt","content":"abc"}`))
	require.NoError(t, err)

	_, err = fs.PatchFile([]byte(`{"path":"f.txt","old_text":"zzz","new_text":"y"}`))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListFilesSkipsExcludedDirs(t *testing.T) {
	fs := newTestFilesystem(t)
	require.NoError(t, os.Mkdir(filepath.Join(fs.root, "node_modules"), 0755))
	require.NoError(t, os.Mkdir(filepath.Join(fs.root, "src"), 0755))

	out, err := fs.ListFiles([]byte(`{"path":""}`))
	require.NoError(t, err)
	assert.Contains(t, out, "src/")
	assert.NotContains(t, out, "node_modules")
}

func TestMoveFile(t *testing.T) {
	fs := newTestFilesystem(t)
	_, err := fs.WriteFile([]byte(`{"path":"a.txt","content":"x"}`))
	require.NoError(t, err)

	_, err = fs.MoveFile([]byte(`{"from":"a.txt","to":"sub/b.txt"}`))
	require.NoError(t, err)

	_, err = fs.ReadFile([]byte(`{"path":"a.txt"}`))
	require.Error(t, err)

	out, err := fs.ReadFile([]byte(`{"path":"sub/b.txt"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestFindFilesMatchesSubstring(t *testing.T) {
	fs := newTestFilesystem(t)
	_, err := fs.WriteFile([]byte(`{"path":"src/service.go","content":"package src"}`))
	require.NoError(t, err)

	out, err := fs.FindFiles([]byte(`{"pattern":"service"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "service.go")
}

func TestSearchInFilesReportsLineNumbers(t *testing.T) {
	fs := newTestFilesystem(t)
	_, err := fs.WriteFile([]byte(`{"path":"f.txt","content":"one\ntwo needle\nthree"}`))
	require.NoError(t, err)

	out, err := fs.SearchInFiles([]byte(`{"query":"needle"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "f.txt:2:two needle")
}

func TestCompareFilesIdenticalAndDiffering(t *testing.T) {
	fs := newTestFilesystem(t)
	_, err := fs.WriteFile([]byte(`{"path":"a.txt","content":"x\ny"}`))
	require.NoError(t, err)
	_, err = fs.WriteFile([]byte(`{"path":"b.txt","content":"x\ny"}`))
	require.NoError(t, err)

	out, err := fs.CompareFiles([]byte(`{"a":"a.txt","b":"b.txt"}`))
	require.NoError(t, err)
	assert.Equal(t, "identical", out)

	_, err = fs.WriteFile([]byte(`{"path":"b.txt","content":"x\nz"}`))
	require.NoError(t, err)
	out, err = fs.CompareFiles([]byte(`{"a":"a.txt","b":"b.txt"}`))
	require.NoError(t, err)
	assert.Equal(t, "differ at line 2", out)
}

func TestProjectViewFuzzyCorrectsPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "alpha-project", "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "alpha-project", "src", "main.go"), []byte("package main"), 0644))

	pv := NewProjectView(root)
	out, err := pv.ReadProjectFile([]byte(`{"path":"alpha/src/main.go"}`))
	require.NoError(t, err)
	assert.Equal(t, "package main", out)
}
