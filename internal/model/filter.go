package model

import "time"

// FilterCriteria carries normalized filter values for record listing. All
// fields are optional; date bounds fall back to epoch / today.
type FilterCriteria struct {
	InstitutionKeys []string  `json:"institution_keys,omitempty"`
	Author          string    `json:"author,omitempty"`
	MinModifiedDate time.Time `json:"min_modified_date,omitempty"`
	MaxModifiedDate time.Time `json:"max_modified_date,omitempty"`
	PhaseIDs        []string  `json:"phase_ids,omitempty"`
	FormTemplateIDs []string  `json:"form_template_ids,omitempty"`
}

// MinDate returns the lower bound of the effective-date range, truncated to
// the start of its day in UTC. Defaults to the epoch.
func (f FilterCriteria) MinDate() time.Time {
	min := f.MinModifiedDate
	if min.IsZero() {
		min = time.Unix(0, 0)
	}
	return startOfDayUTC(min)
}

// MaxDateExclusive returns the exclusive upper bound of the effective-date
// range: the start of the day after the requested max date, so the max date is
// inclusive of its whole day. Defaults to today.
func (f FilterCriteria) MaxDateExclusive() time.Time {
	max := f.MaxModifiedDate
	if max.IsZero() {
		max = time.Now().UTC()
	}
	return startOfDayUTC(max).AddDate(0, 0, 1)
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
