package model

import "time"

// ============================================================================
// Record Graph Types
// ============================================================================

// User represents a registered user referenced by records
type User struct {
	URI       string `json:"uri"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Institution represents an organisation records belong to
type Institution struct {
	URI  string `json:"uri"`
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

// Question is a node in a record's question tree. Two Question values with the
// same URI represent the same store node even if their attributes differ; a
// sub-question reachable from two parents must be persisted once only.
type Question struct {
	URI          string      `json:"uri"`
	Label        string      `json:"label,omitempty"`
	Answers      []string    `json:"answers,omitempty"`
	SubQuestions []*Question `json:"sub_questions,omitempty"`
}

// Record is the central entity. Key and URI are immutable once assigned and
// derived from each other by a fixed rule (base IRI + "/" + key).
type Record struct {
	Key             string       `json:"key"`
	URI             string       `json:"uri"`
	LocalName       string       `json:"local_name"`
	Author          *User        `json:"author,omitempty"`
	LastModifiedBy  *User        `json:"last_modified_by,omitempty"`
	Institution     *Institution `json:"institution,omitempty"`
	Created         time.Time    `json:"created"`
	LastModified    time.Time    `json:"last_modified,omitempty"`
	FormTemplateID  string       `json:"form_template_id,omitempty"`
	FormVersion     string       `json:"form_version,omitempty"`
	Phase           Phase        `json:"phase"`
	RejectReason    string       `json:"reject_reason,omitempty"`
	Question        *Question    `json:"question,omitempty"`
}

// EffectiveDate is the record's last-modified date when present, otherwise its
// creation date. Range filtering and the default sort both use it.
func (r *Record) EffectiveDate() time.Time {
	if !r.LastModified.IsZero() {
		return r.LastModified
	}
	return r.Created
}

// RawRecord is a denormalized projection of Record used for bulk export.
// Fields are raw references (URIs) rather than resolved entities.
type RawRecord struct {
	URI            string    `json:"uri"`
	Key            string    `json:"key"`
	LocalName      string    `json:"local_name"`
	AuthorURI      string    `json:"author_uri,omitempty"`
	InstitutionURI string    `json:"institution_uri,omitempty"`
	InstitutionKey string    `json:"institution_key,omitempty"`
	FormTemplateID string    `json:"form_template_id,omitempty"`
	Phase          Phase     `json:"phase"`
	EffectiveDate  time.Time `json:"effective_date"`
}

// RecordDto is the reduced shape used for list views, cached alongside the
// full entity and evicted by the same URI key.
type RecordDto struct {
	Key            string    `json:"key"`
	URI            string    `json:"uri"`
	LocalName      string    `json:"local_name"`
	AuthorName     string    `json:"author_name,omitempty"`
	InstitutionKey string    `json:"institution_key,omitempty"`
	FormTemplateID string    `json:"form_template_id,omitempty"`
	Phase          Phase     `json:"phase"`
	EffectiveDate  time.Time `json:"effective_date"`
}
