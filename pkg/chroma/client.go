package chroma

import (
	"context"
	"fmt"
	"os"

	"advisor-backend/pkg/config"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	"go.uber.org/zap"
)

const collectionName = "advisor_records"

// maxDocumentLength keeps documents within the embedding model's token limit.
const maxDocumentLength = 10000

type ChromaClient struct {
	client     chroma.Client
	collection chroma.Collection
	log        *zap.Logger
}

func NewChromaClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (*ChromaClient, error) {
	if cfg.ChromaAPIKey == "" {
		return nil, fmt.Errorf("CHROMA_API_KEY is required")
	}

	// The embedding function reads its key from the environment
	if cfg.GeminiApiKey != "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiApiKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel(cfg.GeminiEmbedModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	opts := []chroma.ClientOption{
		chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
		chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
	}
	switch {
	case cfg.ChromaDatabase != "" && cfg.ChromaTenant != "":
		opts = append(opts, chroma.WithDatabaseAndTenant(cfg.ChromaDatabase, cfg.ChromaTenant))
	case cfg.ChromaTenant != "":
		opts = append(opts, chroma.WithTenant(cfg.ChromaTenant))
	}

	client, err := chroma.NewHTTPClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		ctx,
		collectionName,
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Named("chroma").Info("collection ready", zap.String("collection", collectionName))

	return &ChromaClient{
		client:     client,
		collection: collection,
		log:        log.Named("chroma"),
	}, nil
}

// scope combines owner and record kind into a single metadata field so a
// query can be filtered with one equality clause.
func scope(ownerEmail, kind string) string {
	return ownerEmail + "/" + kind
}

// UpsertRecord indexes a record under its natural key. Re-ingesting the same
// key replaces the document instead of duplicating it.
func (c *ChromaClient) UpsertRecord(ctx context.Context, kind, naturalKey, ownerEmail, text string) error {
	if len(text) > maxDocumentLength {
		text = text[:maxDocumentLength]
	}

	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"owner_email": ownerEmail,
		"kind":        kind,
		"scope":       scope(ownerEmail, kind),
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	err = c.collection.Upsert(
		ctx,
		chroma.WithIDs(chroma.DocumentID(kind+":"+naturalKey)),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(text),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// SemanticSearch returns the natural keys of the closest records of one kind
// for an owner, nearest first.
func (c *ChromaClient) SemanticSearch(ctx context.Context, ownerEmail, kind, query string, limit int) ([]string, error) {
	results, err := c.collection.Query(
		ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(limit),
		chroma.WithWhereQuery(chroma.EqString("scope", scope(ownerEmail, kind))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	if results == nil || results.CountGroups() == 0 {
		return []string{}, nil
	}

	idGroups := results.GetIDGroups()
	if len(idGroups) == 0 {
		return []string{}, nil
	}

	prefix := kind + ":"
	keys := make([]string, 0, len(idGroups[0]))
	for _, id := range idGroups[0] {
		key := string(id)
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			key = key[len(prefix):]
		}
		keys = append(keys, key)
	}

	c.log.Debug("semantic search", zap.String("kind", kind), zap.Int("results", len(keys)))
	return keys, nil
}
