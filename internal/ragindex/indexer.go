package ragindex

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Indexer chunks documents, embeds each chunk and upserts it into the index.
type Indexer struct {
	embed    EmbeddingProvider
	index    Index
	maxChars int
	overlap  int
	log      zerolog.Logger
}

// NewIndexer wires an Indexer with default chunking parameters.
func NewIndexer(embed EmbeddingProvider, index Index, log zerolog.Logger) *Indexer {
	return &Indexer{embed: embed, index: index, maxChars: 1200, overlap: 120, log: log}
}

// IndexDocument replaces all chunks previously indexed for source and returns
// how many chunks were written.
func (ix *Indexer) IndexDocument(ctx context.Context, source, text string) (int, error) {
	chunks := SplitText(text, ix.maxChars, ix.overlap)
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := ix.index.DeleteSource(ctx, source); err != nil {
		ix.log.Warn().Err(err).Str("source", source).Msg("stale chunk cleanup failed")
	}

	docID := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	for i, chunk := range chunks {
		vec, err := ix.embed.Embed(ctx, chunk)
		if err != nil {
			return i, fmt.Errorf("embed chunk %d of %s: %w", i, source, err)
		}
		payload := map[string]interface{}{
			"docId":     docID,
			"source":    source,
			"chunk":     i,
			"text":      chunk,
			"indexedAt": now,
		}
		if err := ix.index.UpsertChunk(ctx, uuid.New().String(), vec, payload); err != nil {
			return i, fmt.Errorf("upsert chunk %d of %s: %w", i, source, err)
		}
	}
	return len(chunks), nil
}

// IndexDir indexes every .md and .txt file under dir. Per-file failures are
// logged and skipped so one bad file never aborts the walk.
func (ix *Indexer) IndexDir(ctx context.Context, dir string) (int, error) {
	total := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			ix.log.Warn().Err(err).Str("file", path).Msg("read failed, skipping")
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		n, err := ix.IndexDocument(ctx, rel, string(data))
		if err != nil {
			ix.log.Warn().Err(err).Str("file", path).Msg("indexing failed, skipping")
			return nil
		}
		total += n
		return nil
	})
	return total, err
}

// SearchDocuments embeds the query and runs a hybrid search.
func (ix *Indexer) SearchDocuments(ctx context.Context, query string, topK int, alpha float32) ([]Hit, error) {
	vec, err := ix.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return ix.index.Search(ctx, query, vec, topK, alpha)
}
