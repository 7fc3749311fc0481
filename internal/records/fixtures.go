package records

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"recordhub/internal/model"
	"recordhub/pkg/errors"
)

// GenerateTestRecords writes a batch of generated records into one fresh
// context as a single unit of work. Used for seeding demo and test data.
// Returns the keys of the generated records.
func (r *Repository) GenerateTestRecords(ctx context.Context, count int, institution *model.Institution, author *model.User) ([]string, error) {
	if institution == nil || author == nil {
		return nil, errors.NewValidationError("fixtures", "institution and author are required")
	}

	fixtureContext := r.contexts.RecordContextBase() + "fixtures/" + r.keys.Next()
	now := time.Now().UTC().Format(time.RFC3339)
	keys := make([]string, 0, count)

	err := r.store.BatchWrite(ctx, func(run func(query string, params map[string]any) error) error {
		query := `
			CREATE (record:Record {
				uri: $uri, key: $key, local_name: $localName,
				created_at: datetime($now), phase: $phase, graph_ctx: $graphContext
			})
			WITH record
			MERGE (author:User {uri: $authorUri})
			SET author.username = $authorUsername, author.graph_ctx = $sharedContext
			MERGE (record)-[:HAS_AUTHOR]->(author)
			WITH record
			MERGE (institution:Institution {uri: $institutionUri})
			SET institution.key = $institutionKey, institution.graph_ctx = $sharedContext
			MERGE (record)-[:OF_INSTITUTION]->(institution)
		`
		for i := 0; i < count; i++ {
			key := r.keys.Next()
			err := run(query, map[string]any{
				"uri":            r.contexts.RecordURI(key),
				"key":            key,
				"localName":      fmt.Sprintf("generated-%d-%s", i, key),
				"now":            now,
				"phase":          string(model.PhaseOpen),
				"graphContext":   fixtureContext,
				"authorUri":      author.URI,
				"authorUsername": author.Username,
				"institutionUri": institution.URI,
				"institutionKey": institution.Key,
				"sharedContext":  r.contexts.SharedContext(),
			})
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewPersistenceError("generate test records", err)
	}

	r.logger.Info("Test records generated",
		zap.Int("count", count),
		zap.String("context", fixtureContext),
	)
	return keys, nil
}
