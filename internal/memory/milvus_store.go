package memory

import (
	"context"
	"fmt"
	"time"

	"Minerva_2.0/internal/database/milvus"
)

// MilvusSemanticStore is a SemanticStore backed by Milvus. Inputs are keyed
// by fingerprint so re-saving the same task overwrites rather than
// duplicates the row.
type MilvusSemanticStore struct {
	client *milvus.MilvusClient
}

// NewMilvusSemanticStore creates a store on top of an existing Milvus client.
func NewMilvusSemanticStore(client *milvus.MilvusClient) *MilvusSemanticStore {
	return &MilvusSemanticStore{client: client}
}

func (s *MilvusSemanticStore) Put(ctx context.Context, entry Entry, vector []float32) error {
	return s.client.Upsert(ctx, entry.Fingerprint, vector, entry.Input, entry.Output, entry.CreatedAt.Unix())
}

func (s *MilvusSemanticStore) Search(ctx context.Context, vector []float32, topK int) ([]Candidate, error) {
	results, err := s.client.Search(ctx, topK, vector)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, result := range results {
		outCol := result.Fields.GetColumn(milvus.FieldOutput)
		tsCol := result.Fields.GetColumn(milvus.FieldCreatedAt)
		if outCol == nil || tsCol == nil {
			return nil, fmt.Errorf("milvus result missing expected fields")
		}
		for i := 0; i < result.ResultCount; i++ {
			fp, _ := result.IDs.GetAsString(i)
			output, _ := outCol.GetAsString(i)
			createdAt, _ := tsCol.GetAsInt64(i)

			candidates = append(candidates, Candidate{
				Entry: Entry{
					Fingerprint: fp,
					Output:      output,
					CreatedAt:   time.Unix(createdAt, 0),
				},
				// Milvus reports cosine similarity; convert to distance so
				// smaller always means closer.
				Distance: 1 - float64(result.Scores[i]),
			})
		}
	}
	return candidates, nil
}
