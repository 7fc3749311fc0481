package records

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"recordhub/internal/model"
	"recordhub/pkg/errors"
)

// ImportPolicy decides whether a caller may import records on behalf of
// another author. The role combination granting that privilege is policy
// logic external to this package, so it is injected rather than hard-coded.
type ImportPolicy interface {
	CanImportOnBehalf(actor *model.User) bool
}

// ImportPolicyFunc adapts a plain function to an ImportPolicy.
type ImportPolicyFunc func(actor *model.User) bool

func (f ImportPolicyFunc) CanImportOnBehalf(actor *model.User) bool { return f(actor) }

// ImportOptions carries the provenance inputs of an import call.
type ImportOptions struct {
	// Actor is the caller performing the import. Ordinary callers always
	// become the author of every imported record.
	Actor *model.User
	// OnBehalfOf names the declared original author. Honored only when the
	// policy grants the actor that privilege; the author must exist.
	OnBehalfOf string
	// TargetPhase forces the phase of imported records. Empty means open.
	TargetPhase model.Phase
}

// ImportResult reports the outcome of a batch import. BatchID correlates the
// result with the log entries written during the run.
type ImportResult struct {
	BatchID      string   `json:"batch_id"`
	Total        int      `json:"total"`
	Imported     int      `json:"imported"`
	ImportedKeys []string `json:"imported_keys"`
	Errors       []string `json:"errors"`
}

// ImportRecords imports a batch of records with partial-failure semantics: a
// record whose URI already exists is recorded as an error entry and skipped,
// and the batch never aborts on per-record failures. The one batch-fatal
// condition is a privileged import whose declared author cannot be resolved,
// since the author is looked up before per-record iteration.
func (r *Repository) ImportRecords(ctx context.Context, recs []*model.Record, opts ImportOptions) (*ImportResult, error) {
	if opts.Actor == nil {
		return nil, errors.NewValidationError("actor", "import requires an acting user")
	}

	phase := opts.TargetPhase
	if phase == "" {
		phase = model.PhaseOpen
	}
	if !phase.IsValid() {
		return nil, errors.NewValidationError("phase", "unknown phase: "+string(phase))
	}

	author := opts.Actor
	if opts.OnBehalfOf != "" && r.policy.CanImportOnBehalf(opts.Actor) {
		resolved, err := r.FindUserByUsername(ctx, opts.OnBehalfOf)
		if err != nil {
			return nil, err
		}
		if resolved == nil {
			return nil, errors.NewRecordAuthorNotFound(opts.OnBehalfOf)
		}
		author = resolved
	}

	result := &ImportResult{
		BatchID:      uuid.NewString(),
		Total:        len(recs),
		ImportedKeys: []string{},
		Errors:       []string{},
	}
	now := time.Now().UTC()

	for _, rec := range recs {
		if rec.Key == "" && rec.URI != "" {
			rec.Key = r.contexts.KeyFromURI(rec.URI)
		}
		if rec.URI == "" && rec.Key != "" {
			rec.URI = r.contexts.RecordURI(rec.Key)
		}

		if rec.URI != "" {
			exists, err := r.store.Exists(ctx, rec.URI)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			if exists {
				result.Errors = append(result.Errors, errors.NewRecordExists(rec.URI).Error())
				continue
			}
		}

		rec.Author = author
		rec.LastModifiedBy = opts.Actor
		rec.Created = now
		rec.LastModified = time.Time{}
		rec.Phase = phase

		if err := r.Persist(ctx, rec); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Imported++
		result.ImportedKeys = append(result.ImportedKeys, rec.Key)
	}

	r.logger.Info("Records imported",
		zap.String("batch_id", result.BatchID),
		zap.Int("total", result.Total),
		zap.Int("imported", result.Imported),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}
