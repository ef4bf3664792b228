package database

import (
	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// CandidateQuery selects (id, embedding) for every user holding a reference
// embedding. With an event id the set is narrowed to that event's registrants.
func CandidateQuery(eventID *uint) sq.SelectBuilder {
	query := psql.Select("u.id", "u.embedding").
		From("users u").
		Where(sq.NotEq{"u.embedding": nil}).
		Where("length(u.embedding) > 0")

	if eventID != nil {
		query = query.
			Join("event_registrations er ON er.user_id = u.id").
			Where(sq.Eq{"er.event_id": *eventID})
	}

	return query.OrderBy("u.id ASC")
}

// PhotosByEventQuery selects photo ids for an event, optionally only those
// without any persisted face record.
func PhotosByEventQuery(eventID uint, untaggedOnly bool) sq.SelectBuilder {
	query := psql.Select("p.id").
		From("photos p").
		Where(sq.Eq{"p.event_id": eventID})

	if untaggedOnly {
		query = query.Where("NOT EXISTS (SELECT 1 FROM photo_faces pf WHERE pf.photo_id = p.id)")
	}

	return query.OrderBy("p.id ASC")
}
