package query

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recordhub/internal/model"
	"recordhub/pkg/errors"
)

// fakeExecutor records the queries it receives and serves canned rows.
// FetchPage issues the data and count queries concurrently, so access is
// guarded.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []call
	byMatch map[string][]map[string]any
}

type call struct {
	query  string
	params map[string]any
}

func (f *fakeExecutor) Run(_ context.Context, query string, params map[string]any) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{query: query, params: params})
	for substr, rows := range f.byMatch {
		if strings.Contains(query, substr) {
			return rows, nil
		}
	}
	return nil, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testPattern() Pattern {
	return Pattern{
		Match:  "MATCH (record:Record)\nWITH record, record.created_at AS effectiveDate",
		Params: map[string]any{"minDate": "1970-01-01T00:00:00Z"},
	}
}

func scanURI(row map[string]any) (string, error) {
	uri, _ := row["uri"].(string)
	return uri, nil
}

func TestResolveOrder_DefaultIsEffectiveDateDescending(t *testing.T) {
	e := NewEngine(&fakeExecutor{}, zap.NewNop())

	order, err := e.ResolveOrder(nil)
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY effectiveDate DESC", order)

	order, err = e.ResolveOrder(&model.PageSpec{Page: 0, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY effectiveDate DESC", order)
}

func TestResolveOrder_WhitelistedProperty(t *testing.T) {
	e := NewEngine(&fakeExecutor{}, zap.NewNop())

	order, err := e.ResolveOrder(&model.PageSpec{
		Sort: []model.SortOrder{{Property: "date", Direction: model.SortAsc}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY effectiveDate ASC", order)
}

func TestFetchPage_UnsupportedSortFailsBeforeAnyQuery(t *testing.T) {
	exec := &fakeExecutor{}
	e := NewEngine(exec, zap.NewNop())

	spec := &model.PageSpec{
		Page: 0, Size: 10,
		Sort: []model.SortOrder{{Property: "color", Direction: model.SortAsc}},
	}
	_, err := FetchPage(context.Background(), e, testPattern(), "RETURN record.uri AS uri", "RETURN count(record) AS total", spec, scanURI)

	var sortErr *errors.UnsupportedSortPropertyError
	require.ErrorAs(t, err, &sortErr)
	assert.Equal(t, "color", sortErr.Property)
	assert.Equal(t, 0, exec.callCount(), "no query may execute for an unsupported sort property")
}

func TestFetchPage_PagedRunsDataAndCountQueries(t *testing.T) {
	exec := &fakeExecutor{byMatch: map[string][]map[string]any{
		"SKIP":  {{"uri": "r1"}, {"uri": "r2"}},
		"count": {{"total": int64(7)}},
	}}
	e := NewEngine(exec, zap.NewNop())

	spec := &model.PageSpec{Page: 2, Size: 5}
	page, err := FetchPage(context.Background(), e, testPattern(), "RETURN record.uri AS uri", "RETURN count(record) AS total", spec, scanURI)
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r2"}, page.Content)
	assert.Equal(t, int64(7), page.TotalElements)
	require.Equal(t, 2, exec.callCount())

	var dataCall, countCall *call
	for i := range exec.calls {
		if strings.Contains(exec.calls[i].query, "SKIP") {
			dataCall = &exec.calls[i]
		} else {
			countCall = &exec.calls[i]
		}
	}
	require.NotNil(t, dataCall)
	require.NotNil(t, countCall)

	// offset = page * size
	assert.Equal(t, 10, dataCall.params["skip"])
	assert.Equal(t, 5, dataCall.params["limit"])
	assert.Contains(t, dataCall.query, "ORDER BY effectiveDate DESC")

	// count query carries neither ordering nor limits
	assert.NotContains(t, countCall.query, "ORDER BY")
	assert.NotContains(t, countCall.query, "SKIP")
	assert.NotContains(t, countCall.params, "skip")
	assert.NotContains(t, countCall.params, "limit")
}

func TestFetchPage_UnpagedReturnsAllWithTotalEqualToPageSize(t *testing.T) {
	exec := &fakeExecutor{byMatch: map[string][]map[string]any{
		"RETURN record.uri": {{"uri": "r1"}, {"uri": "r2"}, {"uri": "r3"}},
	}}
	e := NewEngine(exec, zap.NewNop())

	page, err := FetchPage(context.Background(), e, testPattern(), "RETURN record.uri AS uri", "RETURN count(record) AS total", nil, scanURI)
	require.NoError(t, err)

	assert.Len(t, page.Content, 3)
	assert.Equal(t, int64(3), page.TotalElements)
	assert.Equal(t, 1, exec.callCount(), "unpaged requests run no separate count query")
}
