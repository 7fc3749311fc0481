package storage

import (
	"context"

	"go.uber.org/zap"

	"recordhub/internal/model"
)

// NodeWriter writes single question nodes and parent links into a context.
// Implemented by GraphStore.
type NodeWriter interface {
	WriteQuestion(ctx context.Context, q *model.Question, parentURI, graphContext string, root bool) error
	LinkQuestion(ctx context.Context, parentURI, childURI, graphContext string, root bool) error
}

// RecursivePersister persists a question tree into a target context, visiting
// each distinct node (by URI) exactly once. Shared nodes reachable from
// multiple parents are written once and linked from each parent; true cycles
// terminate because a visited ancestor is never descended into again.
//
// The persister does not manage transactions: a store failure aborts the call
// and any partially-written nodes commit or roll back with the caller's
// enclosing unit of work.
type RecursivePersister struct {
	writer NodeWriter
	newURI func() string
	logger *zap.Logger
}

// NewRecursivePersister creates a persister. newURI mints identities for
// question nodes that arrive without one.
func NewRecursivePersister(writer NodeWriter, newURI func() string, logger *zap.Logger) *RecursivePersister {
	return &RecursivePersister{writer: writer, newURI: newURI, logger: logger}
}

// Persist writes root and its descendants into graphContext, linked from the
// record at recordURI. A nil root is a no-op. The visited set is scoped to
// this single invocation.
func (p *RecursivePersister) Persist(ctx context.Context, root *model.Question, recordURI, graphContext string) error {
	if root == nil {
		return nil
	}
	visited := make(map[string]struct{})
	if err := p.persistNode(ctx, root, recordURI, graphContext, true, visited); err != nil {
		return err
	}
	p.logger.Debug("Question tree persisted",
		zap.String("record", recordURI),
		zap.Int("nodes", len(visited)),
	)
	return nil
}

func (p *RecursivePersister) persistNode(ctx context.Context, q *model.Question, parentURI, graphContext string, root bool, visited map[string]struct{}) error {
	if q.URI == "" {
		q.URI = p.newURI()
	}

	if _, seen := visited[q.URI]; seen {
		// Already persisted in this invocation: link only, do not descend.
		return p.writer.LinkQuestion(ctx, parentURI, q.URI, graphContext, root)
	}
	visited[q.URI] = struct{}{}

	if err := p.writer.WriteQuestion(ctx, q, parentURI, graphContext, root); err != nil {
		return err
	}

	for _, sub := range q.SubQuestions {
		if sub == nil {
			continue
		}
		if err := p.persistNode(ctx, sub, q.URI, graphContext, false, visited); err != nil {
			return err
		}
	}
	return nil
}
