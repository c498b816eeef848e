package ragindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSplitText_ShortTextIsOneChunk(t *testing.T) {
	chunks := SplitText("hello world", 1200, 120)
	require.Equal(t, []string{"hello world"}, chunks)

	require.Nil(t, SplitText("   \n\n  ", 1200, 120))
}

func TestSplitText_RespectsMaxChars(t *testing.T) {
	var paras []string
	for i := 0; i < 20; i++ {
		paras = append(paras, strings.Repeat("a", 80))
	}
	text := strings.Join(paras, "\n\n")

	chunks := SplitText(text, 200, 0)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		require.LessOrEqual(t, len(c), 200, "chunk %d exceeds the limit", i)
	}
}

func TestSplitText_OverlapCarriesTailForward(t *testing.T) {
	text := strings.Repeat("x", 300) + "\n\n" + strings.Repeat("y", 300)
	chunks := SplitText(text, 320, 50)
	require.Len(t, chunks, 2)
	require.True(t, strings.HasPrefix(chunks[1], strings.Repeat("x", 50)),
		"second chunk should start with the previous chunk's tail")
}

func TestSplitText_OverlapKeepsRuneBoundaries(t *testing.T) {
	// 3-byte runes with an overlap that is not a multiple of 3
	text := strings.Repeat("日", 100) + "\n\n" + strings.Repeat("語", 100)
	chunks := SplitText(text, 320, 50)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		require.True(t, utf8.ValidString(c), "chunk %d carries a split rune", i)
	}

	// hard-split of an oversized single paragraph must also cut on boundaries
	for i, c := range SplitText(strings.Repeat("日", 400), 100, 0) {
		require.True(t, utf8.ValidString(c), "hard-split chunk %d carries a split rune", i)
	}
}

func TestSplitText_HardSplitsOversizedParagraph(t *testing.T) {
	chunks := SplitText(strings.Repeat("z", 1000), 300, 0)
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		require.LessOrEqual(t, len(c), 300)
	}
}

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return []float32{0.1, 0.2}, nil
}

type fakeIndex struct {
	upserts []map[string]interface{}
	deleted []string
	hits    []Hit
}

func (f *fakeIndex) UpsertChunk(_ context.Context, _ string, _ []float32, payload map[string]interface{}) error {
	f.upserts = append(f.upserts, payload)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ []float32, _ int, _ float32) ([]Hit, error) {
	return f.hits, nil
}

func (f *fakeIndex) DeleteSource(_ context.Context, source string) error {
	f.deleted = append(f.deleted, source)
	return nil
}

func TestIndexDocument(t *testing.T) {
	embed := &fakeEmbedder{}
	idx := &fakeIndex{}
	ix := NewIndexer(embed, idx, zerolog.Nop())

	text := strings.Repeat("a", 1100) + "\n\n" + strings.Repeat("b", 1100)
	n, err := ix.IndexDocument(context.Background(), "runbook.md", text)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"runbook.md"}, idx.deleted, "stale chunks are removed first")
	require.Equal(t, 2, embed.calls)
	require.Len(t, idx.upserts, 2)

	first := idx.upserts[0]
	require.Equal(t, "runbook.md", first["source"])
	require.Equal(t, 0, first["chunk"])
	require.Equal(t, first["docId"], idx.upserts[1]["docId"], "chunks of one document share a doc id")
}

func TestIndexDocument_EmptyTextDoesNothing(t *testing.T) {
	idx := &fakeIndex{}
	ix := NewIndexer(&fakeEmbedder{}, idx, zerolog.Nop())
	n, err := ix.IndexDocument(context.Background(), "empty.md", "  ")
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, idx.deleted)
}

func TestIndexDir_FiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("alpha doc"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("bravo doc"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.bin"), []byte{0x00, 0x01}, 0o644))

	idx := &fakeIndex{}
	ix := NewIndexer(&fakeEmbedder{}, idx, zerolog.Nop())
	n, err := ix.IndexDir(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	sources := map[string]bool{}
	for _, p := range idx.upserts {
		sources[p["source"].(string)] = true
	}
	require.True(t, sources["a.md"] && sources["b.txt"])
	require.False(t, sources["c.bin"])
}

func TestSearchDocuments(t *testing.T) {
	embed := &fakeEmbedder{}
	idx := &fakeIndex{hits: []Hit{{Source: "runbook.md", Text: "restart the worker", Score: 0.9}}}
	ix := NewIndexer(embed, idx, zerolog.Nop())

	hits, err := ix.SearchDocuments(context.Background(), "how to restart", 5, 0.6)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "runbook.md", hits[0].Source)
	require.Equal(t, 1, embed.calls, "the query is embedded once")
}
