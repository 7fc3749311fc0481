package storage

import "strings"

// Record attribute names used by attribute placement.
const (
	AttrAuthor         = "author"
	AttrLastModifiedBy = "lastModifiedBy"
	AttrInstitution    = "institution"
)

// AttributePlacement states, for one record context, where each attribute
// lives: the listed shared attributes are read from and written to the
// default shared context so the referenced User/Institution entity is not
// duplicated per record; everything else lives in the record's own context.
// The same placement value must be threaded through every read and write of a
// record; reading with one placement and writing with another is a bug.
type AttributePlacement struct {
	Context          string
	SharedContext    string
	SharedAttributes []string
}

// IsShared reports whether attr is stored in the shared context.
func (p AttributePlacement) IsShared(attr string) bool {
	for _, a := range p.SharedAttributes {
		if a == attr {
			return true
		}
	}
	return false
}

// ContextManager derives a record's named-graph identifier from its key and
// declares which attributes are dereferenced from the shared context.
type ContextManager struct {
	baseIRI             string
	sharedContext       string
	institutionsContext string
}

// NewContextManager creates a context manager. baseIRI is the prefix of
// record URIs and per-record contexts.
func NewContextManager(baseIRI, sharedContext, institutionsContext string) *ContextManager {
	return &ContextManager{
		baseIRI:             strings.TrimRight(baseIRI, "/"),
		sharedContext:       sharedContext,
		institutionsContext: institutionsContext,
	}
}

// RecordURI derives the record URI for a key: fixed base + "/" + key.
func (m *ContextManager) RecordURI(key string) string {
	return m.baseIRI + "/" + key
}

// KeyFromURI extracts the record key from a record URI. Returns the input
// unchanged if it does not carry the base prefix (callers may pass bare keys).
func (m *ContextManager) KeyFromURI(uri string) string {
	return strings.TrimPrefix(strings.TrimPrefix(uri, m.baseIRI), "/")
}

// ContextFor derives the context identifier owning a record's private data.
// The derivation is deterministic: base IRI + "/" + key, accepting either a
// bare key or a full record URI.
func (m *ContextManager) ContextFor(keyOrURI string) string {
	return m.RecordURI(m.KeyFromURI(keyOrURI))
}

// DescriptorFor returns the attribute placement for a record context. Author,
// last-modified-by and institution are resolved against the shared context.
func (m *ContextManager) DescriptorFor(context string) AttributePlacement {
	return AttributePlacement{
		Context:          context,
		SharedContext:    m.sharedContext,
		SharedAttributes: []string{AttrAuthor, AttrLastModifiedBy, AttrInstitution},
	}
}

// RecordContextBase returns the per-record context prefix (base IRI + "/").
func (m *ContextManager) RecordContextBase() string {
	return m.baseIRI + "/"
}

// SharedContext returns the default context holding shared reference entities.
func (m *ContextManager) SharedContext() string {
	return m.sharedContext
}

// InstitutionsContext returns the fixed context institution lookups are
// scoped to in raw-export reads.
func (m *ContextManager) InstitutionsContext() string {
	return m.institutionsContext
}
