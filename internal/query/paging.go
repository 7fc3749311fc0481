package query

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"recordhub/internal/model"
	"recordhub/pkg/errors"
)

// Executor runs a bound, parameterized graph query and returns its rows.
// Implemented by the storage layer's graph client.
type Executor interface {
	Run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

// sortProperties whitelists the sort properties accepted from callers and
// maps each to the query alias it orders by.
var sortProperties = map[string]string{
	"date": "effectiveDate",
}

// defaultOrder is applied when the page spec requests no explicit sort.
const defaultOrder = "ORDER BY effectiveDate DESC"

// Engine appends ordering to compiled patterns and runs the two-step
// data + count retrieval against the store.
type Engine struct {
	exec   Executor
	logger *zap.Logger
}

// NewEngine creates a paging/sort engine over the given executor.
func NewEngine(exec Executor, logger *zap.Logger) *Engine {
	return &Engine{exec: exec, logger: logger}
}

// ResolveOrder validates the requested sort properties against the whitelist
// and builds the ORDER BY fragment. An unrecognized property is a caller
// error, surfaced before any query executes.
func (e *Engine) ResolveOrder(spec *model.PageSpec) (string, error) {
	if spec == nil || len(spec.Sort) == 0 {
		return defaultOrder, nil
	}

	parts := make([]string, 0, len(spec.Sort))
	for _, order := range spec.Sort {
		alias, ok := sortProperties[order.Property]
		if !ok {
			return "", errors.NewUnsupportedSortProperty(order.Property)
		}
		dir := "ASC"
		if order.Direction == model.SortDesc {
			dir = "DESC"
		}
		parts = append(parts, alias+" "+dir)
	}
	return "ORDER BY " + strings.Join(parts, ", "), nil
}

// FetchPage executes the compiled pattern and returns one page of results.
//
// Paged requests run two independent executions: the data query with the
// resolved ordering plus SKIP/LIMIT, and a total-count query over the same
// pattern without ordering or limits. The two reads are not wrapped in a
// single snapshot, so the total may lag concurrent writers (eventual-count
// semantics). Unpaged requests run a single query and report the page length
// as the total.
func FetchPage[T any](ctx context.Context, e *Engine, p Pattern, returnClause, countClause string, spec *model.PageSpec, scan func(map[string]any) (T, error)) (model.Page[T], error) {
	page := model.Page[T]{Content: []T{}, Pageable: spec}

	order, err := e.ResolveOrder(spec)
	if err != nil {
		return page, err
	}

	dataQuery := p.Match + "\n" + returnClause + "\n" + order
	dataParams := make(map[string]any, len(p.Params)+2)
	for k, v := range p.Params {
		dataParams[k] = v
	}

	if spec == nil {
		rows, err := e.exec.Run(ctx, dataQuery, dataParams)
		if err != nil {
			return page, errors.NewQueryFailed(dataQuery, err)
		}
		if page.Content, err = scanRows(rows, scan); err != nil {
			return page, err
		}
		page.TotalElements = int64(len(page.Content))
		return page, nil
	}

	dataQuery += "\nSKIP $skip LIMIT $limit"
	dataParams["skip"] = spec.Offset()
	dataParams["limit"] = spec.Size

	countQuery := p.Match + "\n" + countClause

	var rows, countRows []map[string]any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if rows, err = e.exec.Run(gctx, dataQuery, dataParams); err != nil {
			return errors.NewQueryFailed(dataQuery, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if countRows, err = e.exec.Run(gctx, countQuery, p.Params); err != nil {
			return errors.NewQueryFailed(countQuery, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return page, err
	}

	if page.Content, err = scanRows(rows, scan); err != nil {
		return page, err
	}
	if len(countRows) > 0 {
		if total, ok := countRows[0]["total"].(int64); ok {
			page.TotalElements = total
		}
	}

	e.logger.Debug("page fetched",
		zap.Int("rows", len(page.Content)),
		zap.Int64("total", page.TotalElements),
	)
	return page, nil
}

func scanRows[T any](rows []map[string]any, scan func(map[string]any) (T, error)) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		item, err := scan(row)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
