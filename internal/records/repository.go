package records

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"recordhub/internal/model"
	"recordhub/internal/query"
	"recordhub/internal/storage"
	"recordhub/pkg/errors"
	"recordhub/pkg/logger"
)

// Store is the graph-store surface the repository depends on. Implemented by
// storage.GraphStore; tests substitute fakes.
type Store interface {
	Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
	Exists(ctx context.Context, uri string) (bool, error)
	PersistRecord(ctx context.Context, rec *model.Record, placement storage.AttributePlacement) error
	MergeRecord(ctx context.Context, rec *model.Record, placement storage.AttributePlacement) error
	SetRecordPhase(ctx context.Context, uri string, phase model.Phase) error
	DetachQuestionTree(ctx context.Context, recordURI, graphContext string) error
	RemoveRecord(ctx context.Context, uri, graphContext string) error
	BatchWrite(ctx context.Context, fn func(run func(query string, params map[string]any) error) error) error

	storage.NodeWriter
}

// Options configures a Repository.
type Options struct {
	CacheTTL     time.Duration
	CacheSweep   time.Duration
	ImportPolicy ImportPolicy
}

// Repository orchestrates record reads and writes: filter/page listing,
// context-scoped persistence, question-tree persistence, uniqueness
// enforcement, phase transitions and cache invalidation.
type Repository struct {
	store     Store
	contexts  *storage.ContextManager
	persister *storage.RecursivePersister
	builder   *query.FilterBuilder
	engine    *query.Engine
	keys      *KeyGenerator
	cache     *gocache.Cache
	policy    ImportPolicy
	logger    *zap.Logger
}

// New creates a record repository over the given store.
func New(store Store, contexts *storage.ContextManager, keys *KeyGenerator, opts Options) *Repository {
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.CacheSweep == 0 {
		opts.CacheSweep = time.Minute
	}
	policy := opts.ImportPolicy
	if policy == nil {
		policy = ImportPolicyFunc(func(*model.User) bool { return false })
	}

	log := logger.Get()
	r := &Repository{
		store:    store,
		contexts: contexts,
		builder:  query.NewFilterBuilder(contexts.RecordContextBase(), contexts.InstitutionsContext()),
		engine:   query.NewEngine(store, log),
		keys:     keys,
		cache:    gocache.New(opts.CacheTTL, opts.CacheSweep),
		policy:   policy,
		logger:   log,
	}
	r.persister = storage.NewRecursivePersister(store, r.newQuestionURI, log)
	return r
}

func (r *Repository) recordURI(keyOrURI string) string {
	return r.contexts.RecordURI(r.contexts.KeyFromURI(keyOrURI))
}

func (r *Repository) newQuestionURI() string {
	return r.contexts.RecordContextBase() + "question/" + r.keys.Next()
}

// Find resolves the record's context and reads it with the corresponding
// attribute placement, question tree included. Returns (nil, nil) when no
// record with the given key or URI exists.
func (r *Repository) Find(ctx context.Context, keyOrURI string) (*model.Record, error) {
	uri := r.recordURI(keyOrURI)

	if cached, ok := r.cache.Get(recordCacheKey(uri)); ok {
		return cached.(*model.Record), nil
	}

	desc := r.contexts.DescriptorFor(r.contexts.ContextFor(uri))

	rows, err := r.store.Run(ctx, `
		MATCH (record:Record {uri: $uri, graph_ctx: $graphContext})
		OPTIONAL MATCH (record)-[:HAS_AUTHOR]->(author:User)
		OPTIONAL MATCH (record)-[:OF_INSTITUTION]->(institution:Institution)
		OPTIONAL MATCH (record)-[:LAST_MODIFIED_BY]->(editor:User)
		RETURN record.key AS key, record.uri AS uri, record.local_name AS localName,
		       record.created_at AS created, record.modified_at AS modified,
		       record.template_id AS templateId, record.form_version AS formVersion,
		       record.phase AS phase, record.reject_reason AS rejectReason,
		       author.uri AS authorUri, author.username AS authorUsername,
		       author.first_name AS authorFirstName, author.last_name AS authorLastName,
		       institution.uri AS institutionUri, institution.key AS institutionKey,
		       institution.name AS institutionName,
		       editor.uri AS editorUri, editor.username AS editorUsername
	`, map[string]any{
		"uri":          uri,
		"graphContext": desc.Context,
	})
	if err != nil {
		return nil, errors.NewQueryFailed("find record", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	rec := scanRecordRow(rows[0])
	rec.Question, err = r.loadQuestionTree(ctx, uri, desc.Context)
	if err != nil {
		return nil, err
	}

	r.cache.SetDefault(recordCacheKey(uri), rec)
	return rec, nil
}

// Persist writes a new record. If key/URI are absent a key is generated and
// the URI derived; a record arriving with a preassigned identity that already
// exists in the store is rejected rather than overwritten.
func (r *Repository) Persist(ctx context.Context, rec *model.Record) error {
	if rec.Institution == nil {
		return errors.NewValidationError("institution", "record requires an institution")
	}

	preassigned := rec.Key != "" || rec.URI != ""
	if rec.Key == "" && rec.URI != "" {
		rec.Key = r.contexts.KeyFromURI(rec.URI)
	}
	if rec.Key == "" {
		rec.Key = r.keys.Next()
	}
	if rec.URI == "" {
		rec.URI = r.contexts.RecordURI(rec.Key)
	}

	if preassigned {
		exists, err := r.store.Exists(ctx, rec.URI)
		if err != nil {
			return err
		}
		if exists {
			return errors.NewRecordExists(rec.URI)
		}
	}

	if err := r.RequireUniqueNonEmptyLocalName(ctx, rec); err != nil {
		return err
	}

	if rec.Created.IsZero() {
		rec.Created = time.Now().UTC()
	}
	if rec.Phase == "" {
		rec.Phase = model.PhaseOpen
	}

	desc := r.contexts.DescriptorFor(r.contexts.ContextFor(rec.Key))
	if err := r.store.PersistRecord(ctx, rec, desc); err != nil {
		return err
	}
	return r.persister.Persist(ctx, rec.Question, rec.URI, desc.Context)
}

// Update merges changes into an existing record. The original question tree
// is detached before the new one is persisted, so the recursive persister
// writes a clean replacement tree rather than merging with stale links.
// Cached copies keyed by the URI are evicted after the write.
func (r *Repository) Update(ctx context.Context, rec *model.Record) error {
	if rec.URI == "" {
		if rec.Key == "" {
			return errors.NewValidationError("key", "record has no identity")
		}
		rec.URI = r.contexts.RecordURI(rec.Key)
	}

	r.evict(rec.URI)
	original, err := r.Find(ctx, rec.URI)
	if err != nil {
		return err
	}
	if original == nil {
		return errors.NewValidationError("uri", "record does not exist: "+rec.URI)
	}
	if err := r.RequireUniqueNonEmptyLocalName(ctx, rec); err != nil {
		return err
	}

	if rec.Created.IsZero() {
		rec.Created = original.Created
	}
	rec.LastModified = time.Now().UTC()

	desc := r.contexts.DescriptorFor(r.contexts.ContextFor(rec.URI))
	if err := r.store.DetachQuestionTree(ctx, rec.URI, desc.Context); err != nil {
		return err
	}
	if err := r.store.MergeRecord(ctx, rec, desc); err != nil {
		return err
	}
	if err := r.persister.Persist(ctx, rec.Question, rec.URI, desc.Context); err != nil {
		return err
	}

	r.evict(rec.URI)
	return nil
}

// UpdateStatus sets only the record's phase and evicts cached copies. A
// missing record is a no-op.
func (r *Repository) UpdateStatus(ctx context.Context, keyOrURI string, phase model.Phase) error {
	if !phase.IsValid() {
		return errors.NewValidationError("phase", "unknown phase: "+string(phase))
	}

	uri := r.recordURI(keyOrURI)
	exists, err := r.store.Exists(ctx, uri)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	if err := r.store.SetRecordPhase(ctx, uri, phase); err != nil {
		return err
	}
	r.evict(uri)
	return nil
}

// Remove deletes the record and its question tree from the record's own
// context. Shared reference entities stay in place.
func (r *Repository) Remove(ctx context.Context, keyOrURI string) error {
	uri := r.recordURI(keyOrURI)
	desc := r.contexts.DescriptorFor(r.contexts.ContextFor(uri))
	if err := r.store.RemoveRecord(ctx, uri, desc.Context); err != nil {
		return err
	}
	r.evict(uri)
	return nil
}

// RequireUniqueNonEmptyLocalName fails when the record's local name is empty
// or another record of the same institution and form template already carries
// it. The check is read-modify-write and not isolated from concurrent
// writers; a race can slip a duplicate past it.
func (r *Repository) RequireUniqueNonEmptyLocalName(ctx context.Context, rec *model.Record) error {
	if rec.LocalName == "" {
		return errors.NewValidationError("localName", "local name must not be empty")
	}
	if rec.Institution == nil {
		return errors.NewValidationError("institution", "record requires an institution")
	}

	rows, err := r.store.Run(ctx, `
		MATCH (record:Record)-[:OF_INSTITUTION]->(institution:Institution {key: $institutionKey})
		RETURN record.uri AS uri, record.local_name AS localName, record.template_id AS templateId
	`, map[string]any{
		"institutionKey": rec.Institution.Key,
	})
	if err != nil {
		return errors.NewQueryFailed("load institution records", err)
	}

	for _, row := range rows {
		if getStringFromRow(row, "uri") == rec.URI {
			continue
		}
		if getStringFromRow(row, "templateId") != rec.FormTemplateID {
			continue
		}
		if getStringFromRow(row, "localName") == rec.LocalName {
			return errors.NewValidationError("localName",
				"local name already used within institution and form template: "+rec.LocalName)
		}
	}
	return nil
}

// FindUserByUsername resolves a user from the shared context. Returns
// (nil, nil) when no such user exists.
func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (u:User {username: $username, graph_ctx: $sharedContext})
		RETURN u.uri AS uri, u.username AS username,
		       u.first_name AS firstName, u.last_name AS lastName
	`, map[string]any{
		"username":      username,
		"sharedContext": r.contexts.SharedContext(),
	})
	if err != nil {
		return nil, errors.NewQueryFailed("find user", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	return &model.User{
		URI:       getStringFromRow(row, "uri"),
		Username:  getStringFromRow(row, "username"),
		FirstName: getStringFromRow(row, "firstName"),
		LastName:  getStringFromRow(row, "lastName"),
	}, nil
}

func (r *Repository) loadQuestionTree(ctx context.Context, recordURI, graphContext string) (*model.Question, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (record:Record {uri: $uri})-[:HAS_QUESTION]->(root:Question {graph_ctx: $graphContext})
		RETURN root.uri AS uri, root.label AS label, root.answers AS answers
	`, map[string]any{
		"uri":          recordURI,
		"graphContext": graphContext,
	})
	if err != nil {
		return nil, errors.NewQueryFailed("load question root", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	root := &model.Question{
		URI:     getStringFromRow(rows[0], "uri"),
		Label:   getStringFromRow(rows[0], "label"),
		Answers: getStringSliceFromRow(rows[0], "answers"),
	}
	nodes := map[string]*model.Question{root.URI: root}

	edges, err := r.store.Run(ctx, `
		MATCH (record:Record {uri: $uri})-[:HAS_QUESTION]->(root:Question)
		MATCH (root)-[:HAS_SUBQUESTION*0..]->(parent:Question)-[:HAS_SUBQUESTION]->(child:Question {graph_ctx: $graphContext})
		RETURN DISTINCT parent.uri AS parentUri, child.uri AS childUri,
		       child.label AS childLabel, child.answers AS childAnswers
	`, map[string]any{
		"uri":          recordURI,
		"graphContext": graphContext,
	})
	if err != nil {
		return nil, errors.NewQueryFailed("load question tree", err)
	}

	// Two passes: materialize every node once, then attach edges, so a shared
	// sub-question resolves to a single instance regardless of edge order.
	for _, row := range edges {
		childURI := getStringFromRow(row, "childUri")
		if _, ok := nodes[childURI]; !ok {
			nodes[childURI] = &model.Question{
				URI:     childURI,
				Label:   getStringFromRow(row, "childLabel"),
				Answers: getStringSliceFromRow(row, "childAnswers"),
			}
		}
	}
	for _, row := range edges {
		parent, ok := nodes[getStringFromRow(row, "parentUri")]
		if !ok {
			continue
		}
		child := nodes[getStringFromRow(row, "childUri")]
		if !containsQuestion(parent.SubQuestions, child.URI) {
			parent.SubQuestions = append(parent.SubQuestions, child)
		}
	}
	return root, nil
}

func containsQuestion(questions []*model.Question, uri string) bool {
	for _, q := range questions {
		if q.URI == uri {
			return true
		}
	}
	return false
}

func scanRecordRow(row map[string]any) *model.Record {
	rec := &model.Record{
		Key:            getStringFromRow(row, "key"),
		URI:            getStringFromRow(row, "uri"),
		LocalName:      getStringFromRow(row, "localName"),
		Created:        getTimeFromRow(row, "created"),
		LastModified:   getTimeFromRow(row, "modified"),
		FormTemplateID: getStringFromRow(row, "templateId"),
		FormVersion:    getStringFromRow(row, "formVersion"),
		Phase:          model.Phase(getStringFromRow(row, "phase")),
		RejectReason:   getStringFromRow(row, "rejectReason"),
	}
	if uri := getStringFromRow(row, "authorUri"); uri != "" {
		rec.Author = &model.User{
			URI:       uri,
			Username:  getStringFromRow(row, "authorUsername"),
			FirstName: getStringFromRow(row, "authorFirstName"),
			LastName:  getStringFromRow(row, "authorLastName"),
		}
	}
	if uri := getStringFromRow(row, "institutionUri"); uri != "" {
		rec.Institution = &model.Institution{
			URI:  uri,
			Key:  getStringFromRow(row, "institutionKey"),
			Name: getStringFromRow(row, "institutionName"),
		}
	}
	if uri := getStringFromRow(row, "editorUri"); uri != "" {
		rec.LastModifiedBy = &model.User{
			URI:      uri,
			Username: getStringFromRow(row, "editorUsername"),
		}
	}
	return rec
}

func recordCacheKey(uri string) string { return "record:" + uri }
func dtoCacheKey(uri string) string    { return "dto:" + uri }

func (r *Repository) evict(uri string) {
	r.cache.Delete(recordCacheKey(uri))
	r.cache.Delete(dtoCacheKey(uri))
}
