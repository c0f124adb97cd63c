package weaviate

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the single class holding every document's chunks. Chunks are
// scoped to their document through the docId property.
const ClassName = "DocumentChunk"

const DefaultQueryLimit = 5

// SDK encapsulates all Weaviate operations
type SDK struct {
	client *weaviate.Client
}

// NewSDK creates a new instance of SDK
func NewSDK(client *weaviate.Client) *SDK {
	return &SDK{
		client: client,
	}
}

// Chunk is one stored span of a document together with its embedding
type Chunk struct {
	DocID  string
	Index  int
	Text   string
	Start  int
	End    int
	Vector []float32
}

// ChunkResult is a retrieved chunk with its similarity distance
type ChunkResult struct {
	DocID    string
	Index    int
	Text     string
	Distance float64
}

// EnsureSchema creates the chunk class if it does not exist yet
func (w *SDK) EnsureSchema(ctx context.Context) error {
	exists, err := w.classExists(ctx, ClassName)
	if err != nil {
		return fmt.Errorf("failed to check if class exists: %v", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class: ClassName,
		Properties: []*models.Property{
			{
				Name:        "docId",
				DataType:    []string{"text"},
				Description: "ID of the owning document",
			},
			{
				Name:        "chunkIndex",
				DataType:    []string{"int"},
				Description: "0-based position of the chunk within the document",
			},
			{
				Name:        "content",
				DataType:    []string{"text"},
				Description: "The chunk text",
			},
			{
				Name:        "startOffset",
				DataType:    []string{"int"},
				Description: "Rune offset where the chunk starts",
			},
			{
				Name:        "endOffset",
				DataType:    []string{"int"},
				Description: "Rune offset where the chunk ends",
			},
		},
		Vectorizer: "none",
	}

	err = w.client.Schema().ClassCreator().WithClass(class).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate class: %v", err)
	}

	return nil
}

func (w *SDK) classExists(ctx context.Context, className string) (bool, error) {
	schema, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get schema: %v", err)
	}

	for _, class := range schema.Classes {
		if class.Class == className {
			return true, nil
		}
	}

	return false, nil
}

// ChunkObjectID derives a stable object id from the chunk's identity, so
// writing the same (document, index) pair twice replaces instead of
// duplicating.
func ChunkObjectID(docID string, index int) string {
	name := fmt.Sprintf("%s#%d", docID, index)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// UpsertChunks writes the chunks in a single batch. Object ids are derived
// from (docId, chunkIndex), which makes redelivered jobs overwrite their
// earlier writes.
func (w *SDK) UpsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	objs := make([]*models.Object, len(chunks))
	for i, c := range chunks {
		objs[i] = &models.Object{
			ID:    strfmt.UUID(ChunkObjectID(c.DocID, c.Index)),
			Class: ClassName,
			Properties: map[string]interface{}{
				"docId":       c.DocID,
				"chunkIndex":  c.Index,
				"content":     c.Text,
				"startOffset": c.Start,
				"endOffset":   c.End,
			},
			Vector: c.Vector,
		}
	}

	batcher := w.client.Batch().ObjectsBatcher()
	resp, err := batcher.WithObjects(objs...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch upsert chunks: %v", err)
	}
	if len(resp) == 0 {
		return fmt.Errorf("batch operation returned no results")
	}
	for _, obj := range resp {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("failed to upsert chunk %s: %s", obj.ID, obj.Result.Errors.Error[0].Message)
		}
	}

	return nil
}

// QueryChunks performs vector similarity search restricted to one document,
// returning at most limit chunks ordered by ascending distance with ties
// broken by lower chunk index
func (w *SDK) QueryChunks(ctx context.Context, docID string, vector []float32, limit int) ([]ChunkResult, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	fields := []graphql.Field{
		{Name: "docId"},
		{Name: "chunkIndex"},
		{Name: "content"},
		{Name: "_additional { id distance }"},
	}

	where := filters.Where().
		WithPath([]string{"docId"}).
		WithOperator(filters.Equal).
		WithValueText(docID)

	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	result, err := w.client.GraphQL().Get().
		WithClassName(ClassName).
		WithFields(fields...).
		WithWhere(where).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %v", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("failed to query chunks: %s", result.Errors[0].Message)
	}

	var results []ChunkResult
	if data, ok := result.Data["Get"].(map[string]interface{}); ok {
		if objects, ok := data[ClassName].([]interface{}); ok {
			for _, obj := range objects {
				objMap, ok := obj.(map[string]interface{})
				if !ok {
					continue
				}

				r := ChunkResult{}
				if v, ok := objMap["docId"].(string); ok {
					r.DocID = v
				}
				if v, ok := objMap["chunkIndex"].(float64); ok {
					r.Index = int(v)
				}
				if v, ok := objMap["content"].(string); ok {
					r.Text = v
				}
				if additional, ok := objMap["_additional"].(map[string]interface{}); ok {
					if v, ok := additional["distance"].(float64); ok {
						r.Distance = v
					}
				}
				results = append(results, r)
			}
		}
	}

	// Weaviate orders by distance; make equal-distance ordering deterministic
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Index < results[j].Index
	})

	return results, nil
}

// DeleteDocumentChunks removes every chunk belonging to a document
func (w *SDK) DeleteDocumentChunks(ctx context.Context, docID string) error {
	where := filters.Where().
		WithPath([]string{"docId"}).
		WithOperator(filters.Equal).
		WithValueText(docID)

	_, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(ClassName).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete document chunks: %v", err)
	}

	return nil
}
