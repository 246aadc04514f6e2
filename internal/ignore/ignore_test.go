package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_BasicPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{"exact file", "notes.md", "notes.md", false, true},
		{"exact file in subdir", "notes.md", "docs/notes.md", false, true},
		{"star extension", "*.log", "server.log", false, true},
		{"star extension nested", "*.log", "logs/server.log", false, true},
		{"star no match", "*.log", "server.txt", false, false},
		{"question mark", "draft?.md", "draft1.md", false, true},
		{"question mark no slash", "draft?.md", "drafts/a.md", false, false},
		{"dir only matches dir", "build/", "build", true, true},
		{"dir only matches contents", "build/", "build/out.txt", false, true},
		{"dir only skips file", "build/", "build", false, false},
		{"anchored", "/top.md", "top.md", false, true},
		{"anchored not nested", "/top.md", "sub/top.md", false, false},
		{"inner slash anchors", "docs/drafts", "docs/drafts", true, true},
		{"double star prefix", "**/archive", "a/b/archive", true, true},
		{"double star middle", "docs/**/old.md", "docs/a/b/old.md", false, true},
		{"character class", "chapter[0-9].md", "chapter3.md", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.AddPattern(tt.pattern)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatch_NegationReincludes(t *testing.T) {
	// Given a broad ignore with a negated exception
	m := New()
	m.AddPattern("*.log")
	m.AddPattern("!keep.log")

	assert.True(t, m.Match("server.log", false))
	assert.False(t, m.Match("keep.log", false))
}

func TestMatch_LaterRuleWins(t *testing.T) {
	m := New()
	m.AddPattern("!keep.log")
	m.AddPattern("*.log")

	// The ignore comes after the negation, so it wins.
	assert.True(t, m.Match("keep.log", false))
}

func TestAddPattern_SkipsCommentsAndBlanks(t *testing.T) {
	m := New()
	m.AddPattern("")
	m.AddPattern("   ")
	m.AddPattern("# a comment")

	assert.True(t, m.Empty())
}

func TestAddFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, IgnoreFileName)
	content := "# ignore generated files\n*.tmp\nbuild/\n\n!important.tmp\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := New()
	require.NoError(t, m.AddFromFile(path))

	assert.True(t, m.Match("scratch.tmp", false))
	assert.True(t, m.Match("build/out.md", false))
	assert.False(t, m.Match("important.tmp", false))
	assert.False(t, m.Match("notes.md", false))
}

func TestLoad_CollectsFromRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rootA, IgnoreFileName), []byte("*.bak\n"), 0o644))
	// rootB has no ignore file

	m, err := Load(rootA, rootB)

	require.NoError(t, err)
	assert.True(t, m.Match("old.bak", false))
	assert.False(t, m.Match("old.md", false))
}

func TestLoad_NoFilesYieldsEmptyMatcher(t *testing.T) {
	m, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.True(t, m.Empty())
	assert.False(t, m.Match("anything.md", false))
}
