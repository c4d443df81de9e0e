// Package retrieval implements the knowledge-base lookup (C3) that gives
// the STRIDE stage extra context. The original service persisted a Chroma
// vector store built from embeddings; nothing in the retrieval pack wires a
// vector database or an embeddings SDK, so this is a chunked keyword index
// instead, built once per process and memoized exactly like the original
// RAGService's cached retriever property, with the chunk set persisted to
// disk as JSON so a restart doesn't have to re-walk and re-split the
// knowledge base.
package retrieval

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

// Chunk is one overlapping slice of a knowledge-base document.
type Chunk struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Index is a lazily-built, process-memoized keyword index over a markdown
// knowledge base. A zero-value Index with no KnowledgeBasePath behaves as
// "no RAG available" everywhere, matching the original's fail-open when the
// knowledge base path doesn't exist.
type Index struct {
	KnowledgeBasePath string
	PersistPath       string
	ChunkSize         int
	ChunkOverlap      int
	Log               *logger.Logger

	mu     sync.Mutex
	chunks []Chunk
	built  bool
}

// New builds an Index configuration. Call Query to trigger the lazy build.
func New(kbPath, persistPath string, chunkSize, chunkOverlap int, log *logger.Logger) *Index {
	return &Index{
		KnowledgeBasePath: kbPath,
		PersistPath:       persistPath,
		ChunkSize:         chunkSize,
		ChunkOverlap:      chunkOverlap,
		Log:               log,
	}
}

// Query returns the topK chunks most relevant to the question, ranked by a
// simple term-overlap score. Returns an empty slice (never an error) when
// the knowledge base is unavailable, mirroring the original's "running
// without RAG" fallback.
func (idx *Index) Query(question string, topK int) []Chunk {
	idx.ensureBuilt()

	idx.mu.Lock()
	chunks := idx.chunks
	idx.mu.Unlock()
	if len(chunks) == 0 {
		return nil
	}

	terms := tokenize(question)
	type scored struct {
		chunk Chunk
		score int
	}
	results := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		score := overlapScore(terms, tokenize(c.Text))
		if score > 0 {
			results = append(results, scored{chunk: c, score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	if topK <= 0 || topK > len(results) {
		topK = len(results)
	}
	out := make([]Chunk, topK)
	for i := 0; i < topK; i++ {
		out[i] = results[i].chunk
	}
	return out
}

func (idx *Index) ensureBuilt() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.built {
		return
	}
	idx.built = true

	if idx.KnowledgeBasePath == "" {
		if idx.Log != nil {
			idx.Log.Warn("knowledge base path not configured, running without RAG")
		}
		return
	}
	if _, err := os.Stat(idx.KnowledgeBasePath); err != nil {
		idx.Log.WithField("path", idx.KnowledgeBasePath).Warn("knowledge base path not found, running without RAG")
		return
	}

	if idx.loadPersisted() {
		return
	}

	chunks, err := buildChunks(idx.KnowledgeBasePath, idx.ChunkSize, idx.ChunkOverlap)
	if err != nil {
		idx.Log.WithError(err).Warn("RAG setup failed")
		return
	}
	idx.chunks = chunks
	idx.persist()
}

func (idx *Index) loadPersisted() bool {
	if idx.PersistPath == "" {
		return false
	}
	data, err := os.ReadFile(idx.PersistPath)
	if err != nil {
		return false
	}
	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		idx.Log.WithError(err).Warn("RAG persisted index is corrupt, rebuilding")
		return false
	}
	idx.chunks = chunks
	return true
}

func (idx *Index) persist() {
	if idx.PersistPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(idx.PersistPath), 0o755); err != nil {
		idx.Log.WithError(err).Warn("failed to create RAG persist directory")
		return
	}
	data, err := json.Marshal(idx.chunks)
	if err != nil {
		idx.Log.WithError(err).Warn("failed to marshal RAG index")
		return
	}
	if err := os.WriteFile(idx.PersistPath, data, 0o644); err != nil {
		idx.Log.WithError(err).Warn("failed to persist RAG index")
	}
}

func buildChunks(kbPath string, chunkSize, chunkOverlap int) ([]Chunk, error) {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}

	var chunks []Chunk
	err := filepath.WalkDir(kbPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".md") {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		for _, text := range splitOverlapping(string(data), chunkSize, chunkOverlap) {
			chunks = append(chunks, Chunk{Source: filepath.Base(path), Text: text})
		}
		return nil
	})
	return chunks, err
}

func splitOverlapping(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var out []string
	step := size - overlap
	for start := 0; start < len(text); start += step {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		out = append(out, text[start:end])
		if end == len(text) {
			break
		}
	}
	return out
}

func tokenize(s string) map[string]int {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	counts := make(map[string]int, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			counts[f]++
		}
	}
	return counts
}

func overlapScore(a, b map[string]int) int {
	score := 0
	for term, count := range a {
		if bc, ok := b[term]; ok {
			score += count * bc
		}
	}
	return score
}
