package retrieval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

func testLog() *logger.Logger {
	return logger.New(logger.Config{Level: "INFO", Format: "text"})
}

func writeKB(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestQueryReturnsEmptyWhenNoKnowledgeBasePath(t *testing.T) {
	idx := New("", "", 800, 80, testLog())
	assert.Empty(t, idx.Query("spoofing", 3))
}

func TestQueryReturnsEmptyWhenKnowledgeBasePathMissing(t *testing.T) {
	idx := New(filepath.Join(t.TempDir(), "does-not-exist"), "", 800, 80, testLog())
	assert.Empty(t, idx.Query("spoofing", 3))
}

func TestQueryRanksByTermOverlap(t *testing.T) {
	dir := t.TempDir()
	writeKB(t, dir, map[string]string{
		"spoofing.md":  "Spoofing occurs when an attacker impersonates a trusted identity in the system.",
		"tampering.md": "Tampering involves unauthorized modification of data in transit or at rest.",
	})

	idx := New(dir, "", 800, 80, testLog())
	results := idx.Query("attacker impersonates identity spoofing", 1)

	require.Len(t, results, 1)
	assert.Equal(t, "spoofing.md", results[0].Source)
}

func TestQueryTopKCapsResultCount(t *testing.T) {
	dir := t.TempDir()
	writeKB(t, dir, map[string]string{
		"a.md": "threat modeling architecture diagram trust boundary",
		"b.md": "threat modeling architecture diagram data flow",
		"c.md": "threat modeling architecture diagram gateway",
	})

	idx := New(dir, "", 800, 80, testLog())
	results := idx.Query("threat modeling architecture diagram", 2)
	assert.Len(t, results, 2)
}

func TestIndexIsBuiltOnlyOnce(t *testing.T) {
	dir := t.TempDir()
	writeKB(t, dir, map[string]string{"a.md": "spoofing tampering repudiation"})

	idx := New(dir, "", 800, 80, testLog())
	idx.Query("spoofing", 5)

	// Removing the knowledge base after the first build must not affect a
	// second query: the index is memoized for the process lifetime.
	require.NoError(t, os.RemoveAll(dir))
	results := idx.Query("spoofing", 5)
	assert.NotEmpty(t, results)
}

func TestPersistedIndexSurvivesRebuildFromDisk(t *testing.T) {
	dir := t.TempDir()
	writeKB(t, dir, map[string]string{"a.md": "denial of service elevation of privilege"})
	persistPath := filepath.Join(t.TempDir(), "index.json")

	first := New(dir, persistPath, 800, 80, testLog())
	first.Query("denial of service", 5)
	assert.FileExists(t, persistPath)

	// Rewriting the knowledge base after the first build must not affect a
	// new Index: it loads the persisted chunks instead of re-walking files.
	writeKB(t, dir, map[string]string{"a.md": "unrelated content"})

	second := New(dir, persistPath, 800, 80, testLog())
	results := second.Query("denial of service", 5)
	assert.NotEmpty(t, results)
}

func TestSplitOverlappingProducesOverlappingWindows(t *testing.T) {
	chunks := splitOverlapping("0123456789", 4, 2)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "0123", chunks[0])
	assert.Equal(t, "2345", chunks[1])
}

func TestTokenizeDropsShortTokens(t *testing.T) {
	counts := tokenize("A to be or not")
	assert.NotContains(t, counts, "a")
	assert.NotContains(t, counts, "to")
	assert.NotContains(t, counts, "be")
	assert.NotContains(t, counts, "or")
	assert.Contains(t, counts, "not")
}
