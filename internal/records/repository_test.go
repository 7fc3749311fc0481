package records

import (
	"context"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"recordhub/internal/model"
	"recordhub/internal/storage"
)

// These tests require a running Neo4j instance.
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables.

func createTestDriver() (neo4j.DriverWithContext, error) {
	uri := "bolt://localhost:7687"
	user := "neo4j"
	password := "password"

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}

	return driver, nil
}

func integrationRepository(t *testing.T) (*Repository, *storage.GraphStore, func()) {
	t.Helper()
	driver, err := createTestDriver()
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}

	store := storage.NewGraphStore(driver)
	contexts := storage.NewContextManager(testBaseIRI, testSharedCtx, testInstitutions)
	repo := New(store, contexts, NewKeyGenerator(), Options{})

	cleanup := func() {
		ctx := context.Background()
		session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		_, _ = session.Run(ctx, `
			MATCH (n) WHERE n.uri STARTS WITH $prefix DETACH DELETE n
		`, map[string]any{"prefix": "http://onto.example.org/"})
		driver.Close(ctx)
	}
	return repo, store, cleanup
}

func suffix() string {
	return time.Now().Format("20060102150405.000")
}

func TestRepository_RoundTripWithQuestionTree(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	repo, _, cleanup := integrationRepository(t)
	defer cleanup()

	shared := &model.Question{URI: "http://onto.example.org/question/shared-" + suffix(), Label: "Shared"}
	rec := &model.Record{
		LocalName:   "roundtrip-" + suffix(),
		Institution: testInstitution(),
		Author:      testActor(),
		Question: &model.Question{
			URI:   "http://onto.example.org/question/root-" + suffix(),
			Label: "Root",
			SubQuestions: []*model.Question{
				{URI: "http://onto.example.org/question/a-" + suffix(), Label: "A", SubQuestions: []*model.Question{shared}},
				shared,
			},
		},
	}

	if err := repo.Persist(ctx, rec); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	found, err := repo.Find(ctx, rec.Key)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found == nil {
		t.Fatal("Record not found after persist")
	}
	if found.Question == nil {
		t.Fatal("Question tree not loaded")
	}
	if len(found.Question.SubQuestions) != 2 {
		t.Fatalf("Expected 2 sub-questions on root, got %d", len(found.Question.SubQuestions))
	}

	// the shared node must come back as one instance reachable from both parents
	var fromRoot, fromBranch *model.Question
	for _, sub := range found.Question.SubQuestions {
		if sub.URI == shared.URI {
			fromRoot = sub
		}
		for _, nested := range sub.SubQuestions {
			if nested.URI == shared.URI {
				fromBranch = nested
			}
		}
	}
	if fromRoot == nil || fromBranch == nil {
		t.Fatal("Shared sub-question not reachable from both parents")
	}
	if fromRoot != fromBranch {
		t.Error("Shared sub-question duplicated instead of resolved to one node")
	}
}

func TestRepository_SharedQuestionPersistedOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	repo, store, cleanup := integrationRepository(t)
	defer cleanup()

	shared := &model.Question{URI: "http://onto.example.org/question/dedup-" + suffix(), Label: "Shared"}
	rec := &model.Record{
		LocalName:   "dedup-" + suffix(),
		Institution: testInstitution(),
		Question: &model.Question{
			URI: "http://onto.example.org/question/dedup-root-" + suffix(),
			SubQuestions: []*model.Question{
				{URI: "http://onto.example.org/question/dedup-a-" + suffix(), SubQuestions: []*model.Question{shared}},
				shared,
			},
		},
	}

	if err := repo.Persist(ctx, rec); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	rows, err := store.Run(ctx, `MATCH (q:Question {uri: $uri}) RETURN count(q) AS nodes`, map[string]any{"uri": shared.URI})
	if err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if nodes, _ := rows[0]["nodes"].(int64); nodes != 1 {
		t.Errorf("Expected shared question written exactly once, found %d nodes", nodes)
	}
}

func TestRepository_FilterByInstitution(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	repo, _, cleanup := integrationRepository(t)
	defer cleanup()

	instA := &model.Institution{URI: "http://onto.example.org/institution/filter-a", Key: "filter-a"}
	instB := &model.Institution{URI: "http://onto.example.org/institution/filter-b", Key: "filter-b"}

	for i, inst := range []*model.Institution{instA, instA, instB} {
		rec := &model.Record{
			LocalName:   suffix() + "-inst-" + string(rune('a'+i)),
			Institution: inst,
			Author:      testActor(),
		}
		if err := repo.Persist(ctx, rec); err != nil {
			t.Fatalf("Persist failed: %v", err)
		}
	}

	page, err := repo.FindAllRecords(ctx, model.FilterCriteria{InstitutionKeys: []string{"filter-a"}}, nil)
	if err != nil {
		t.Fatalf("FindAllRecords failed: %v", err)
	}
	if page.TotalElements != 2 {
		t.Errorf("Expected 2 records for institution filter-a, got %d", page.TotalElements)
	}
	for _, dto := range page.Content {
		if dto.InstitutionKey != "filter-a" {
			t.Errorf("Record %s belongs to %s, not filter-a", dto.Key, dto.InstitutionKey)
		}
	}
}

func TestRepository_UniqueLocalNamePerInstitutionAndTemplate(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	repo, _, cleanup := integrationRepository(t)
	defer cleanup()

	name := "unique-" + suffix()
	first := &model.Record{LocalName: name, FormTemplateID: "tpl-1", Institution: testInstitution()}
	if err := repo.Persist(ctx, first); err != nil {
		t.Fatalf("First persist failed: %v", err)
	}

	dup := &model.Record{LocalName: name, FormTemplateID: "tpl-1", Institution: testInstitution()}
	if err := repo.Persist(ctx, dup); err == nil {
		t.Error("Expected validation error for duplicate local name")
	}

	other := &model.Record{
		LocalName:      name,
		FormTemplateID: "tpl-1",
		Institution:    &model.Institution{URI: "http://onto.example.org/institution/other", Key: "other"},
	}
	if err := repo.Persist(ctx, other); err != nil {
		t.Errorf("Same local name in a different institution must succeed: %v", err)
	}
}

func TestRepository_PhaseUpdateCacheCoherence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	repo, _, cleanup := integrationRepository(t)
	defer cleanup()

	rec := &model.Record{LocalName: "phase-" + suffix(), Institution: testInstitution()}
	if err := repo.Persist(ctx, rec); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	// warm the cache
	if _, err := repo.Find(ctx, rec.Key); err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	if err := repo.UpdateStatus(ctx, rec.Key, model.PhasePublished); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	found, err := repo.Find(ctx, rec.Key)
	if err != nil {
		t.Fatalf("Find after UpdateStatus failed: %v", err)
	}
	if found.Phase != model.PhasePublished {
		t.Errorf("Expected phase published after update, got %s", found.Phase)
	}

	// a status change must not touch modification metadata, so the record
	// keeps its place in date-range filters and the default ordering
	if !found.LastModified.IsZero() {
		t.Errorf("Phase update must not set a modification timestamp, got %v", found.LastModified)
	}
	if !found.EffectiveDate().Equal(found.Created) {
		t.Errorf("Effective date changed by phase update: created %v, effective %v", found.Created, found.EffectiveDate())
	}
}
