package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/user/checkforge/pkg/llm"
)

// Document is one indexable unit: a natural-language rendering of a check's
// metadata plus a side table of fields used for post-retrieval filtering.
// Document identity is stable across rebuilds ("{provider}_{checkID}").
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// ScoredDocument is a retrieval hit with its similarity score.
type ScoredDocument struct {
	Document Document
	Score    float64
}

// SemanticIndex is an embedding-based vector index over check metadata
// documents. Vectors are kept in memory and persisted next to the store's
// sidecar file.
type SemanticIndex struct {
	embedder llm.Embedder
	docs     map[string]Document
	vectors  map[string][]float32
}

func NewSemanticIndex(embedder llm.Embedder) *SemanticIndex {
	return &SemanticIndex{
		embedder: embedder,
		docs:     make(map[string]Document),
		vectors:  make(map[string][]float32),
	}
}

// Len returns the number of indexed documents.
func (ix *SemanticIndex) Len() int {
	return len(ix.docs)
}

// Upsert inserts a document or replaces it in place when the ID is already
// indexed. Re-embedding is skipped when the text is unchanged, since that
// would only spend embedding cost to produce the same vector.
func (ix *SemanticIndex) Upsert(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document has no ID")
	}
	if existing, ok := ix.docs[doc.ID]; ok && existing.Text == doc.Text {
		ix.docs[doc.ID] = doc
		return nil
	}
	vector, err := ix.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return fmt.Errorf("embedding document %s: %w", doc.ID, err)
	}
	ix.docs[doc.ID] = doc
	ix.vectors[doc.ID] = vector
	return nil
}

// Delete removes a document. Returns false if it was already absent.
func (ix *SemanticIndex) Delete(id string) bool {
	if _, ok := ix.docs[id]; !ok {
		return false
	}
	delete(ix.docs, id)
	delete(ix.vectors, id)
	return true
}

// Retrieve returns up to topK documents by cosine similarity to the query,
// highest first. Hits scoring below the cutoff are dropped entirely rather
// than ranked low: a weakly related check would mislead generation more than
// no check at all.
func (ix *SemanticIndex) Retrieve(ctx context.Context, query string, topK int, cutoff float64) ([]ScoredDocument, error) {
	if len(ix.docs) == 0 {
		return nil, nil
	}
	queryVector, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits := make([]ScoredDocument, 0, len(ix.docs))
	for id, doc := range ix.docs {
		hits = append(hits, ScoredDocument{Document: doc, Score: cosineSimilarity(queryVector, ix.vectors[id])})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Document.ID < hits[j].Document.ID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	filtered := hits[:0]
	for _, hit := range hits {
		if hit.Score >= cutoff {
			filtered = append(filtered, hit)
		}
	}
	return filtered, nil
}

// Exists asks the model a closed yes/no question over the retrieved context:
// does any indexed check already cover the description? Any answer other
// than an exact "yes" counts as "no", so an unclear model answer never
// blocks check creation.
func (ix *SemanticIndex) Exists(ctx context.Context, client llm.Client, description string, cutoff float64) (bool, error) {
	hits, err := ix.Retrieve(ctx, description, 5, cutoff)
	if err != nil {
		return false, err
	}
	if len(hits) == 0 {
		return false, nil
	}

	var sb strings.Builder
	sb.WriteString("SYSTEM CONTEXT: You are reviewing the metadata of existing automated cloud security checks. ")
	sb.WriteString("Based only on the context below, answer whether one or more of these checks already cover the following description. You MUST answer with 'yes' or 'no'.\n\nContext:\n")
	for _, hit := range hits {
		sb.WriteString("---\n")
		sb.WriteString(hit.Document.Text)
		sb.WriteString("\n")
	}
	sb.WriteString("\nCheck description: ")
	sb.WriteString(description)

	answer, err := client.Complete(ctx, sb.String())
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(answer), "yes"), nil
}

type indexArtifact struct {
	Documents []Document           `json:"documents"`
	Vectors   map[string][]float32 `json:"vectors"`
}

// SaveTo writes the index artifacts to a file.
func (ix *SemanticIndex) SaveTo(path string) error {
	artifact := indexArtifact{Vectors: ix.vectors}
	for _, doc := range ix.docs {
		artifact.Documents = append(artifact.Documents, doc)
	}
	sort.Slice(artifact.Documents, func(i, j int) bool { return artifact.Documents[i].ID < artifact.Documents[j].ID })

	raw, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

// LoadFrom restores the index artifacts from a file.
func (ix *SemanticIndex) LoadFrom(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var artifact indexArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return fmt.Errorf("parsing index artifact %s: %w", path, err)
	}
	ix.docs = make(map[string]Document, len(artifact.Documents))
	for _, doc := range artifact.Documents {
		ix.docs[doc.ID] = doc
	}
	ix.vectors = artifact.Vectors
	if ix.vectors == nil {
		ix.vectors = make(map[string][]float32)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
