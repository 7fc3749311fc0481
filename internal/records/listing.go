package records

import (
	"context"

	"recordhub/internal/model"
	"recordhub/internal/query"
)

const recordCountClause = `RETURN count(DISTINCT record) AS total`

const recordDtoReturn = `RETURN DISTINCT record.key AS key, record.uri AS uri, record.local_name AS localName,
       author.username AS authorName, institution.key AS institutionKey,
       record.template_id AS templateId, record.phase AS phase, effectiveDate`

const recordFullReturn = `RETURN DISTINCT record.key AS key, record.uri AS uri, record.local_name AS localName,
       record.created_at AS created, record.modified_at AS modified,
       record.template_id AS templateId, record.form_version AS formVersion,
       record.phase AS phase, record.reject_reason AS rejectReason,
       author.uri AS authorUri, author.username AS authorUsername,
       author.first_name AS authorFirstName, author.last_name AS authorLastName,
       institution.uri AS institutionUri, institution.key AS institutionKey,
       institution.name AS institutionName, effectiveDate`

const rawRecordReturn = `RETURN DISTINCT record.uri AS uri, record.key AS key, record.local_name AS localName,
       author.uri AS authorUri, institution.uri AS institutionUri, institution.key AS institutionKey,
       record.template_id AS templateId, record.phase AS phase, effectiveDate`

// FindAllRecords returns a DTO-shaped page of records matching the criteria.
func (r *Repository) FindAllRecords(ctx context.Context, criteria model.FilterCriteria, spec *model.PageSpec) (model.Page[model.RecordDto], error) {
	p := r.builder.Build(criteria)
	return query.FetchPage(ctx, r.engine, p, recordDtoReturn, recordCountClause, spec, r.scanDto)
}

// FindAllRecordsFull returns a page of full record entities with resolved
// author and institution references. Question trees are not loaded on list
// reads; use Find for a single complete record.
func (r *Repository) FindAllRecordsFull(ctx context.Context, criteria model.FilterCriteria, spec *model.PageSpec) (model.Page[*model.Record], error) {
	p := r.builder.Build(criteria)
	return query.FetchPage(ctx, r.engine, p, recordFullReturn, recordCountClause, spec, scanFullRecord)
}

// FindAllRecordsRaw returns a page of raw-reference records for bulk export.
// The read is scoped to each record's own context and the fixed institutions
// context, without resolving object references across contexts.
func (r *Repository) FindAllRecordsRaw(ctx context.Context, criteria model.FilterCriteria, spec *model.PageSpec) (model.Page[model.RawRecord], error) {
	p := r.builder.BuildRaw(criteria)
	return query.FetchPage(ctx, r.engine, p, rawRecordReturn, recordCountClause, spec, scanRawRecord)
}

// FindDto returns the list-view projection of a single record, served from
// the DTO cache when warm. Returns (nil, nil) when the record is absent.
func (r *Repository) FindDto(ctx context.Context, keyOrURI string) (*model.RecordDto, error) {
	uri := r.recordURI(keyOrURI)
	if cached, ok := r.cache.Get(dtoCacheKey(uri)); ok {
		return cached.(*model.RecordDto), nil
	}

	rec, err := r.Find(ctx, uri)
	if err != nil || rec == nil {
		return nil, err
	}

	dto := &model.RecordDto{
		Key:            rec.Key,
		URI:            rec.URI,
		LocalName:      rec.LocalName,
		FormTemplateID: rec.FormTemplateID,
		Phase:          rec.Phase,
		EffectiveDate:  rec.EffectiveDate(),
	}
	if rec.Author != nil {
		dto.AuthorName = rec.Author.Username
	}
	if rec.Institution != nil {
		dto.InstitutionKey = rec.Institution.Key
	}
	r.cache.SetDefault(dtoCacheKey(uri), dto)
	return dto, nil
}

func (r *Repository) scanDto(row map[string]any) (model.RecordDto, error) {
	dto := model.RecordDto{
		Key:            getStringFromRow(row, "key"),
		URI:            getStringFromRow(row, "uri"),
		LocalName:      getStringFromRow(row, "localName"),
		AuthorName:     getStringFromRow(row, "authorName"),
		InstitutionKey: getStringFromRow(row, "institutionKey"),
		FormTemplateID: getStringFromRow(row, "templateId"),
		Phase:          model.Phase(getStringFromRow(row, "phase")),
		EffectiveDate:  getTimeFromRow(row, "effectiveDate"),
	}
	r.cache.SetDefault(dtoCacheKey(dto.URI), &dto)
	return dto, nil
}

func scanFullRecord(row map[string]any) (*model.Record, error) {
	rec := scanRecordRow(row)
	return rec, nil
}

func scanRawRecord(row map[string]any) (model.RawRecord, error) {
	return model.RawRecord{
		URI:            getStringFromRow(row, "uri"),
		Key:            getStringFromRow(row, "key"),
		LocalName:      getStringFromRow(row, "localName"),
		AuthorURI:      getStringFromRow(row, "authorUri"),
		InstitutionURI: getStringFromRow(row, "institutionUri"),
		InstitutionKey: getStringFromRow(row, "institutionKey"),
		FormTemplateID: getStringFromRow(row, "templateId"),
		Phase:          model.Phase(getStringFromRow(row, "phase")),
		EffectiveDate:  getTimeFromRow(row, "effectiveDate"),
	}, nil
}
