package query

import (
	"strings"
	"time"

	"recordhub/internal/model"
)

// Pattern is a compiled graph-pattern fragment plus its bound parameters.
// Callers append a RETURN clause (and ordering/limits) before execution.
type Pattern struct {
	Match  string
	Params map[string]any
}

// FilterBuilder compiles FilterCriteria into a Cypher match fragment and a
// parameter map. Every filter value is passed as a bound parameter, never
// concatenated into the pattern text; the single exception is the fixed
// institutions-context identifier, which is assembled from configuration, not
// from user input.
type FilterBuilder struct {
	recordContextBase   string
	institutionsContext string
}

// NewFilterBuilder creates a filter builder. recordContextBase is the IRI
// prefix of per-record contexts; institutionsContext is the fixed context the
// raw-export institution lookup is scoped to.
func NewFilterBuilder(recordContextBase, institutionsContext string) *FilterBuilder {
	return &FilterBuilder{
		recordContextBase:   recordContextBase,
		institutionsContext: institutionsContext,
	}
}

const filterMatch = `MATCH (record:Record)
MATCH (record)-[:HAS_AUTHOR]->(author:User)
MATCH (record)-[:OF_INSTITUTION]->(institution:Institution)
WHERE record.created_at IS NOT NULL`

const rawFilterMatch = `MATCH (record:Record)
MATCH (record)-[:HAS_AUTHOR]->(author:User)
MATCH (record)-[:OF_INSTITUTION]->(institution:Institution)
WHERE record.created_at IS NOT NULL
  AND record.graph_ctx = $recordContextBase + record.key
  AND institution.graph_ctx = $institutionsContext`

// Build compiles criteria into the standard listing pattern. Record type,
// author, creation date and institution are always bound; phase, form
// template, author name and the effective-date range are appended only when
// the criteria restrict them.
func (b *FilterBuilder) Build(criteria model.FilterCriteria) Pattern {
	return b.build(filterMatch, nil, criteria)
}

// BuildRaw compiles criteria for the join-free raw export. The record match is
// additionally scoped to each record's own context and the institution lookup
// to the fixed institutions context, because raw records are read without
// resolving object references across contexts.
func (b *FilterBuilder) BuildRaw(criteria model.FilterCriteria) Pattern {
	scoped := map[string]any{
		"recordContextBase":   b.recordContextBase,
		"institutionsContext": b.institutionsContext,
	}
	return b.build(rawFilterMatch, scoped, criteria)
}

func (b *FilterBuilder) build(match string, extra map[string]any, criteria model.FilterCriteria) Pattern {
	params := map[string]any{
		"minDate": criteria.MinDate().Format(time.RFC3339),
		"maxDate": criteria.MaxDateExclusive().Format(time.RFC3339),
	}
	for k, v := range extra {
		params[k] = v
	}

	var sb strings.Builder
	sb.WriteString(match)
	sb.WriteString("\nWITH record, author, institution, coalesce(record.modified_at, record.created_at) AS effectiveDate")
	sb.WriteString("\nWHERE effectiveDate >= datetime($minDate) AND effectiveDate < datetime($maxDate)")

	if len(criteria.InstitutionKeys) > 0 {
		sb.WriteString("\n  AND institution.key IN $institutionKeys")
		params["institutionKeys"] = criteria.InstitutionKeys
	}
	if criteria.Author != "" {
		// Exact, case-sensitive match on username
		sb.WriteString("\n  AND author.username = $authorUsername")
		params["authorUsername"] = criteria.Author
	}
	if len(criteria.PhaseIDs) > 0 {
		sb.WriteString("\n  AND record.phase IN $phaseIds")
		params["phaseIds"] = criteria.PhaseIDs
	}
	if len(criteria.FormTemplateIDs) > 0 {
		sb.WriteString("\n  AND record.template_id IN $templateIds")
		params["templateIds"] = criteria.FormTemplateIDs
	}

	return Pattern{Match: sb.String(), Params: params}
}
