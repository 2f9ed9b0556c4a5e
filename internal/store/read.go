package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

// publicationColumnNames is the fixed projection scanned by scanPublication.
var publicationColumnNames = []string{
	"id", "publication_id", "publication", "subscription_matches",
}

// payloadColumnNames are the sensor columns of a publication. Their storage
// types vary per row, so they are checked for presence and never scanned.
var payloadColumnNames = []string{
	"timestamp", "deveui", "temperature", "humidity", "light", "motion",
	"co2", "battery", "sound_avg", "sound_peak", "moisture", "pressure",
	"acceleration_x", "acceleration_y", "acceleration_z",
	"rssi", "lsnr", "chan", "port", "rfch", "seqn", "fcnt",
	"sensor_type", "floor", "location", "timestamp_unix",
}

var subscriptionColumnNames = []string{
	"id", "complexity", "sql_subscription", "nlp_subscription", "publication_match_count",
}

func columns(names []string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = goqu.C(n)
	}
	return out
}

// PublicationBounds returns the id range and row count of the publications table.
// An empty table yields the zero Bounds.
func (s *Store) PublicationBounds(ctx context.Context) (model.Bounds, error) {
	query, args, err := s.dialect.From(publicationsTable).
		Select(goqu.MIN("id"), goqu.MAX("id"), goqu.COUNT(goqu.Star())).
		ToSQL()
	if err != nil {
		return model.Bounds{}, fmt.Errorf("build bounds query: %w", err)
	}

	var minID, maxID sql.NullInt64
	var b model.Bounds
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&minID, &maxID, &b.Count); err != nil {
		return model.Bounds{}, unavailable("query publication bounds", err)
	}
	b.MinID = minID.Int64
	b.MaxID = maxID.Int64
	return b, nil
}

// PublicationsByIDs returns the publications whose surrogate key is in ids.
// Missing keys are silently absent; results are ordered by id ascending.
// len(ids) must not exceed MaxPageSize.
func (s *Store) PublicationsByIDs(ctx context.Context, ids []int64) ([]model.Publication, error) {
	if len(ids) == 0 {
		return []model.Publication{}, nil
	}
	if len(ids) > MaxPageSize {
		return nil, fmt.Errorf("%w: %d ids exceeds page limit %d", model.ErrInvalidArgument, len(ids), MaxPageSize)
	}

	query, args, err := s.dialect.From(publicationsTable).
		Select(columns(publicationColumnNames)...).
		Where(goqu.C("id").In(ids)).
		Order(goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build publications query: %w", err)
	}
	return s.queryPublications(ctx, query, args)
}

// PublicationsAfter returns up to limit publications with id > after, ascending.
// after == model.FirstPage starts at the lowest id.
func (s *Store) PublicationsAfter(ctx context.Context, after int64, limit int) ([]model.Publication, error) {
	if limit <= 0 || limit > MaxPageSize {
		return nil, fmt.Errorf("%w: page limit %d outside [1, %d]", model.ErrInvalidArgument, limit, MaxPageSize)
	}

	query, args, err := s.dialect.From(publicationsTable).
		Select(columns(publicationColumnNames)...).
		Where(afterKey(after)...).
		Order(goqu.C("id").Asc()).
		Limit(uint(limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build publications page query: %w", err)
	}
	return s.queryPublications(ctx, query, args)
}

func (s *Store) queryPublications(ctx context.Context, query string, args []any) ([]model.Publication, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query publications", err)
	}
	defer rows.Close()

	pubs := []model.Publication{}
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate publications", err)
	}

	return pubs, nil
}

// SubscriptionTexts returns the text of each subscription in ids for the given
// version, keyed by id. Ids without a row are absent from the map.
func (s *Store) SubscriptionTexts(ctx context.Context, ids []int64, version model.Version) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	if len(ids) > MaxPageSize {
		return nil, fmt.Errorf("%w: %d ids exceeds page limit %d", model.ErrInvalidArgument, len(ids), MaxPageSize)
	}
	if _, err := model.ParseVersion(string(version)); err != nil {
		return nil, err
	}

	query, args, err := s.dialect.From(subscriptionsTable).
		Select(goqu.C("id"), goqu.C(version.Column())).
		Where(goqu.C("id").In(ids)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build subscription text query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query subscription texts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var text sql.NullString
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scan subscription text: %w", err)
		}
		out[id] = text.String
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate subscription texts", err)
	}

	return out, nil
}

// SubscriptionsAfter returns up to limit (id, text) pairs with id > after,
// ordered by id ascending, projecting the column for version.
func (s *Store) SubscriptionsAfter(ctx context.Context, after int64, limit int, version model.Version) ([]model.SubscriptionText, error) {
	if limit <= 0 || limit > MaxPageSize {
		return nil, fmt.Errorf("%w: page limit %d outside [1, %d]", model.ErrInvalidArgument, limit, MaxPageSize)
	}
	if _, err := model.ParseVersion(string(version)); err != nil {
		return nil, err
	}

	query, args, err := s.dialect.From(subscriptionsTable).
		Select(goqu.C("id"), goqu.C(version.Column())).
		Where(afterKey(after)...).
		Order(goqu.C("id").Asc()).
		Limit(uint(limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build subscriptions page query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query subscriptions", err)
	}
	defer rows.Close()

	page := []model.SubscriptionText{}
	for rows.Next() {
		var entry model.SubscriptionText
		var text sql.NullString
		if err := rows.Scan(&entry.ID, &text); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		entry.Text = text.String
		page = append(page, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate subscriptions", err)
	}

	return page, nil
}

// SubscriptionRecordsAfter returns up to limit full subscription records with
// id > after, ordered by id ascending.
func (s *Store) SubscriptionRecordsAfter(ctx context.Context, after int64, limit int) ([]model.Subscription, error) {
	if limit <= 0 || limit > MaxPageSize {
		return nil, fmt.Errorf("%w: page limit %d outside [1, %d]", model.ErrInvalidArgument, limit, MaxPageSize)
	}

	query, args, err := s.dialect.From(subscriptionsTable).
		Select(columns(subscriptionColumnNames)...).
		Where(afterKey(after)...).
		Order(goqu.C("id").Asc()).
		Limit(uint(limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build subscription records query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query subscription records", err)
	}
	defer rows.Close()

	page := []model.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate subscription records", err)
	}

	return page, nil
}

// CountSubscriptions returns the number of rows in the subscriptions table.
func (s *Store) CountSubscriptions(ctx context.Context) (int64, error) {
	query, args, err := s.dialect.From(subscriptionsTable).
		Select(goqu.COUNT(goqu.Star())).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, unavailable("count subscriptions", err)
	}
	return n, nil
}

// afterKey is the keyset predicate for rows following after.
func afterKey(after int64) []exp.Expression {
	if after == model.FirstPage {
		return nil
	}
	return []exp.Expression{goqu.C("id").Gt(after)}
}

// scanPublication scans a row produced with publicationColumnNames.
func scanPublication(rows *sql.Rows) (model.Publication, error) {
	var p model.Publication
	var text sql.NullString

	if err := rows.Scan(&p.RowID, &p.PublicationID, &text, &p.SubscriptionMatches); err != nil {
		return model.Publication{}, fmt.Errorf("scan publication: %w", err)
	}

	p.Publication = text.String
	return p, nil
}

// scanSubscription scans a row produced with subscriptionColumnNames.
func scanSubscription(rows *sql.Rows) (model.Subscription, error) {
	var sub model.Subscription
	var complexity, sqlText, nlpText sql.NullString
	var count sql.NullInt64

	if err := rows.Scan(&sub.ID, &complexity, &sqlText, &nlpText, &count); err != nil {
		return model.Subscription{}, fmt.Errorf("scan subscription: %w", err)
	}

	sub.Complexity = complexity.String
	sub.SQLSubscription = sqlText.String
	sub.NLPSubscription = nlpText.String
	sub.PublicationMatchCount = count.Int64
	return sub, nil
}
