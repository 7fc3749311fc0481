package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"recordhub/internal/model"
	"recordhub/pkg/errors"
	"recordhub/pkg/logger"
)

// GraphStore handles all graph database operations. Every write is scoped to
// a context through the AttributePlacement passed by the caller; reads and
// writes must use the same placement.
type GraphStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewGraphStore creates a graph store client over the given driver.
func NewGraphStore(driver neo4j.DriverWithContext) *GraphStore {
	return &GraphStore{
		driver: driver,
		logger: logger.Get(),
	}
}

// Close closes the underlying driver connection.
func (s *GraphStore) Close() error {
	return s.driver.Close(context.Background())
}

// Run executes a bound, parameterized read query and returns its rows as
// key/value maps.
func (s *GraphStore) Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	var rows []map[string]any
	for result.Next(ctx) {
		record := result.Record()
		row := make(map[string]any, len(record.Keys))
		for i, key := range record.Keys {
			row[key] = record.Values[i]
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch rows: %w", err)
	}
	return rows, nil
}

// Write executes a bound, parameterized write query.
func (s *GraphStore) Write(ctx context.Context, query string, params map[string]any) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	if _, err := session.Run(ctx, query, params); err != nil {
		return fmt.Errorf("failed to execute write: %w", err)
	}
	return nil
}

// WriteTx runs fn inside a single managed write transaction. Used for batched
// multi-record writes that must land as one unit of work.
func (s *GraphStore) WriteTx(ctx context.Context, fn func(tx neo4j.ManagedTransaction) error) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return err
}

// BatchWrite runs a sequence of parameterized writes inside one managed
// transaction. The run callback binds each statement's parameters the same
// way Run does.
func (s *GraphStore) BatchWrite(ctx context.Context, fn func(run func(query string, params map[string]any) error) error) error {
	return s.WriteTx(ctx, func(tx neo4j.ManagedTransaction) error {
		return fn(func(query string, params map[string]any) error {
			_, err := tx.Run(ctx, query, params)
			return err
		})
	})
}

// Exists reports whether any node with the given URI is present in the store.
func (s *GraphStore) Exists(ctx context.Context, uri string) (bool, error) {
	rows, err := s.Run(ctx, `MATCH (n {uri: $uri}) RETURN count(n) > 0 AS present`, map[string]any{"uri": uri})
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	present, _ := rows[0]["present"].(bool)
	return present, nil
}

// PersistRecord writes a record's core attributes into its own context and
// resolves author, institution and last-modified-by into the shared context
// declared by the placement.
func (s *GraphStore) PersistRecord(ctx context.Context, rec *model.Record, placement AttributePlacement) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (record:Record {uri: $uri})
		SET record.key = $key,
		    record.local_name = $localName,
		    record.created_at = datetime($created),
		    record.template_id = $templateId,
		    record.form_version = $formVersion,
		    record.phase = $phase,
		    record.reject_reason = $rejectReason,
		    record.graph_ctx = $graphContext
		RETURN record.uri AS uri
	`
	params := map[string]any{
		"uri":          rec.URI,
		"key":          rec.Key,
		"localName":    rec.LocalName,
		"created":      rec.Created.UTC().Format(time.RFC3339),
		"templateId":   rec.FormTemplateID,
		"formVersion":  rec.FormVersion,
		"phase":        string(rec.Phase),
		"rejectReason": rec.RejectReason,
		"graphContext": placement.Context,
	}
	if !rec.LastModified.IsZero() {
		query = `
		MERGE (record:Record {uri: $uri})
		SET record.key = $key,
		    record.local_name = $localName,
		    record.created_at = datetime($created),
		    record.modified_at = datetime($modified),
		    record.template_id = $templateId,
		    record.form_version = $formVersion,
		    record.phase = $phase,
		    record.reject_reason = $rejectReason,
		    record.graph_ctx = $graphContext
		RETURN record.uri AS uri
	`
		params["modified"] = rec.LastModified.UTC().Format(time.RFC3339)
	}

	if _, err := session.Run(ctx, query, params); err != nil {
		return errors.NewPersistenceError("persist record", err)
	}

	if err := s.linkReferences(ctx, session, rec, placement); err != nil {
		return err
	}

	s.logger.Info("Record persisted",
		zap.String("uri", rec.URI),
		zap.String("context", placement.Context),
	)
	return nil
}

// MergeRecord updates an existing record's core attributes and re-links its
// shared references under the same placement used for reads.
func (s *GraphStore) MergeRecord(ctx context.Context, rec *model.Record, placement AttributePlacement) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (record:Record {uri: $uri})
		SET record.local_name = $localName,
		    record.modified_at = datetime($modified),
		    record.template_id = $templateId,
		    record.form_version = $formVersion,
		    record.phase = $phase,
		    record.reject_reason = $rejectReason
		WITH record
		OPTIONAL MATCH (record)-[rel:HAS_AUTHOR|LAST_MODIFIED_BY|OF_INSTITUTION]->()
		DELETE rel
	`
	params := map[string]any{
		"uri":          rec.URI,
		"localName":    rec.LocalName,
		"modified":     rec.LastModified.UTC().Format(time.RFC3339),
		"templateId":   rec.FormTemplateID,
		"formVersion":  rec.FormVersion,
		"phase":        string(rec.Phase),
		"rejectReason": rec.RejectReason,
	}
	if _, err := session.Run(ctx, query, params); err != nil {
		return errors.NewPersistenceError("merge record", err)
	}

	if err := s.linkReferences(ctx, session, rec, placement); err != nil {
		return err
	}

	s.logger.Info("Record updated",
		zap.String("uri", rec.URI),
		zap.String("context", placement.Context),
	)
	return nil
}

// linkReferences writes the shared-context reference entities and their links
// from the record. Entities are merged by URI so the same User/Institution is
// never duplicated across records.
func (s *GraphStore) linkReferences(ctx context.Context, session neo4j.SessionWithContext, rec *model.Record, placement AttributePlacement) error {
	if rec.Author != nil && placement.IsShared(AttrAuthor) {
		query := `
			MATCH (record:Record {uri: $recordUri})
			MERGE (author:User {uri: $uri})
			SET author.username = $username,
			    author.first_name = $firstName,
			    author.last_name = $lastName,
			    author.graph_ctx = $sharedContext
			MERGE (record)-[:HAS_AUTHOR]->(author)
		`
		_, err := session.Run(ctx, query, map[string]any{
			"recordUri":     rec.URI,
			"uri":           rec.Author.URI,
			"username":      rec.Author.Username,
			"firstName":     rec.Author.FirstName,
			"lastName":      rec.Author.LastName,
			"sharedContext": placement.SharedContext,
		})
		if err != nil {
			return errors.NewPersistenceError("link author", err)
		}
	}

	if rec.LastModifiedBy != nil && placement.IsShared(AttrLastModifiedBy) {
		query := `
			MATCH (record:Record {uri: $recordUri})
			MERGE (editor:User {uri: $uri})
			SET editor.username = $username,
			    editor.graph_ctx = $sharedContext
			MERGE (record)-[:LAST_MODIFIED_BY]->(editor)
		`
		_, err := session.Run(ctx, query, map[string]any{
			"recordUri":     rec.URI,
			"uri":           rec.LastModifiedBy.URI,
			"username":      rec.LastModifiedBy.Username,
			"sharedContext": placement.SharedContext,
		})
		if err != nil {
			return errors.NewPersistenceError("link editor", err)
		}
	}

	if rec.Institution != nil && placement.IsShared(AttrInstitution) {
		query := `
			MATCH (record:Record {uri: $recordUri})
			MERGE (institution:Institution {uri: $uri})
			SET institution.key = $key,
			    institution.name = $name,
			    institution.graph_ctx = $sharedContext
			MERGE (record)-[:OF_INSTITUTION]->(institution)
		`
		_, err := session.Run(ctx, query, map[string]any{
			"recordUri":     rec.URI,
			"uri":           rec.Institution.URI,
			"key":           rec.Institution.Key,
			"name":          rec.Institution.Name,
			"sharedContext": placement.SharedContext,
		})
		if err != nil {
			return errors.NewPersistenceError("link institution", err)
		}
	}

	return nil
}

// SetRecordPhase updates only the record's phase. The modification timestamp
// is left untouched so a status change never moves the record across
// date-range filters or the default ordering; Update is the path that
// refreshes last-modified metadata.
func (s *GraphStore) SetRecordPhase(ctx context.Context, uri string, phase model.Phase) error {
	query := `
		MATCH (record:Record {uri: $uri})
		SET record.phase = $phase
	`
	err := s.Write(ctx, query, map[string]any{
		"uri":   uri,
		"phase": string(phase),
	})
	if err != nil {
		return errors.NewPersistenceError("set record phase", err)
	}

	s.logger.Info("Record phase updated",
		zap.String("uri", uri),
		zap.String("phase", string(phase)),
	)
	return nil
}

// DetachQuestionTree removes a record's question tree from its own context.
// Shared-context entities are never touched by this path.
func (s *GraphStore) DetachQuestionTree(ctx context.Context, recordURI, graphContext string) error {
	query := `
		MATCH (record:Record {uri: $uri})-[:HAS_QUESTION]->(root:Question)
		MATCH (root)-[:HAS_SUBQUESTION*0..]->(q:Question {graph_ctx: $graphContext})
		DETACH DELETE q
	`
	err := s.Write(ctx, query, map[string]any{
		"uri":          recordURI,
		"graphContext": graphContext,
	})
	if err != nil {
		return errors.NewPersistenceError("detach question tree", err)
	}
	return nil
}

// RemoveRecord deletes the record node and its question tree from the
// record's own context, leaving shared reference entities in place.
func (s *GraphStore) RemoveRecord(ctx context.Context, uri, graphContext string) error {
	if err := s.DetachQuestionTree(ctx, uri, graphContext); err != nil {
		return err
	}
	query := `
		MATCH (record:Record {uri: $uri, graph_ctx: $graphContext})
		DETACH DELETE record
	`
	err := s.Write(ctx, query, map[string]any{
		"uri":          uri,
		"graphContext": graphContext,
	})
	if err != nil {
		return errors.NewPersistenceError("remove record", err)
	}

	s.logger.Info("Record removed",
		zap.String("uri", uri),
		zap.String("context", graphContext),
	)
	return nil
}

// Question link relationship types, selected by the persister. Relationship
// types cannot be bound as parameters, so they are validated against this
// fixed set before being spliced into the query text.
var questionLinkTypes = map[bool]string{
	true:  "HAS_QUESTION",
	false: "HAS_SUBQUESTION",
}

// WriteQuestion writes one question node into the target context and links it
// to its parent (the record for the root, the parent question otherwise).
func (s *GraphStore) WriteQuestion(ctx context.Context, q *model.Question, parentURI, graphContext string, root bool) error {
	query := fmt.Sprintf(`
		MERGE (q:Question {uri: $uri})
		SET q.label = $label,
		    q.answers = $answers,
		    q.graph_ctx = $graphContext
		WITH q
		MATCH (parent {uri: $parentUri})
		MERGE (parent)-[:%s]->(q)
	`, questionLinkTypes[root])

	err := s.Write(ctx, query, map[string]any{
		"uri":          q.URI,
		"label":        q.Label,
		"answers":      q.Answers,
		"graphContext": graphContext,
		"parentUri":    parentURI,
	})
	if err != nil {
		return errors.NewPersistenceError("write question", err)
	}
	return nil
}

// LinkQuestion links an already-persisted question to an additional parent
// without rewriting the node. Used for shared nodes reachable from multiple
// parents.
func (s *GraphStore) LinkQuestion(ctx context.Context, parentURI, childURI, graphContext string, root bool) error {
	query := fmt.Sprintf(`
		MATCH (parent {uri: $parentUri})
		MATCH (q:Question {uri: $childUri, graph_ctx: $graphContext})
		MERGE (parent)-[:%s]->(q)
	`, questionLinkTypes[root])

	err := s.Write(ctx, query, map[string]any{
		"parentUri":    parentURI,
		"childUri":     childURI,
		"graphContext": graphContext,
	})
	if err != nil {
		return errors.NewPersistenceError("link question", err)
	}
	return nil
}
