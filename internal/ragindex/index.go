package ragindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	filters "github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const className = "OpsDocument"

// Hit is one retrieval result.
type Hit struct {
	DocID  string  `json:"docId"`
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// Index stores and retrieves embedded document chunks.
type Index interface {
	UpsertChunk(ctx context.Context, chunkID string, vec []float32, payload map[string]interface{}) error
	Search(ctx context.Context, query string, vec []float32, topK int, alpha float32) ([]Hit, error)
	DeleteSource(ctx context.Context, source string) error
}

type weaviateIndex struct{ client *weaviate.Client }

// NewWeaviateIndex constructs an Index backed by Weaviate at baseURL
// (host:port, no scheme).
func NewWeaviateIndex(baseURL string) (Index, error) {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &weaviateIndex{client: cl}, nil
}

// Bootstrap ensures the OpsDocument class exists. Vectors come from the
// embedding provider, so the class vectorizer stays "none".
func Bootstrap(ctx context.Context, baseURL string) error {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	desired := &models.Class{
		Class:      className,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "docId", DataType: []string{"text"}},
			{Name: "source", DataType: []string{"text"}},
			{Name: "chunk", DataType: []string{"int"}},
			{Name: "text", DataType: []string{"text"}},
			{Name: "indexedAt", DataType: []string{"date"}},
		},
	}

	ex, err := cl.Schema().ClassGetter().WithClassName(className).Do(cctx)
	if err == nil && ex != nil {
		return nil
	}
	if err := cl.Schema().ClassCreator().WithClass(desired).Do(cctx); err != nil {
		return fmt.Errorf("create class %s: %w", className, err)
	}
	return nil
}

func (w *weaviateIndex) UpsertChunk(ctx context.Context, chunkID string, vec []float32, payload map[string]interface{}) error {
	_, err := w.client.Data().Creator().
		WithClassName(className).
		WithID(chunkID).
		WithProperties(payload).
		WithVector(vec).
		Do(ctx)
	return err
}

func (w *weaviateIndex) Search(ctx context.Context, query string, vec []float32, topK int, alpha float32) ([]Hit, error) {
	hy := (&gql.HybridArgumentBuilder{}).
		WithQuery(query).
		WithVector(vec).
		WithAlpha(alpha).
		WithProperties([]string{"text"})

	resp, err := w.client.GraphQL().Get().
		WithClassName(className).
		WithHybrid(hy).
		WithLimit(topK).
		WithFields(
			gql.Field{Name: "docId"},
			gql.Field{Name: "source"},
			gql.Field{Name: "text"},
			gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "score"}}},
		).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(resp.Errors))
	}

	getData, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	raw, ok := getData[className].([]interface{})
	if !ok {
		return []Hit{}, nil
	}
	out := make([]Hit, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var score float64
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			switch v := add["score"].(type) {
			case float64:
				score = v
			case string:
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					score = f
				}
			}
		}
		h := Hit{Score: score}
		h.DocID, _ = m["docId"].(string)
		h.Source, _ = m["source"].(string)
		h.Text, _ = m["text"].(string)
		out = append(out, h)
	}
	return out, nil
}

func (w *weaviateIndex) DeleteSource(ctx context.Context, source string) error {
	where := filters.Where().WithPath([]string{"source"}).WithOperator(filters.Equal).WithValueText(source)
	req := w.client.GraphQL().Get().
		WithClassName(className).
		WithWhere(where).
		WithFields(gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "id"}}})
	resp, err := req.Do(ctx)
	if err != nil || len(resp.Errors) > 0 {
		return err
	}
	getData, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	arr, ok := getData[className].([]interface{})
	if !ok {
		return nil
	}
	for _, item := range arr {
		m, _ := item.(map[string]interface{})
		add, _ := m["_additional"].(map[string]interface{})
		id, _ := add["id"].(string)
		if id != "" {
			_ = w.client.Data().Deleter().WithClassName(className).WithID(id).Do(ctx)
		}
	}
	return nil
}

func formatGraphQLErrors(errs interface{}) string {
	if b, err := json.Marshal(errs); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", errs)
}
