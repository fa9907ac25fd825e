package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one matched record before output flattening: the multi-valued
// tag field plus the free-form attribute map.
type Entry struct {
	ID         string
	Tags       []string
	Attributes map[string]any
}

// Query is a validated structured-search request against one collection.
// Filters are ANDed equality predicates on filterable fields; Tag matches
// the dedicated tag field; Text is the ranked free-text fallback across
// SearchFields, used only when neither filter nor tag is given.
type Query struct {
	Collection   string
	Filters      map[string]string
	Tag          string
	Text         string
	SearchFields []string
	Limit        int
}

// Store is the data-plane behind structured search. The live store also
// feeds the instruction assembler with entry counts and tag vocabularies.
type Store interface {
	Search(ctx context.Context, q Query) ([]Entry, error)
	Count(ctx context.Context, collection string) (int, error)
	DistinctTags(ctx context.Context, collection string) ([]string, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// PGStore implements Store against PostgreSQL. All collections share one
// table with a JSONB attribute column and a text[] tag column; the schema
// catalog, not the database layout, decides which fields are reachable.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an existing connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Search runs the declarative dispatch described on Query.
func (s *PGStore) Search(ctx context.Context, q Query) ([]Entry, error) {
	sql, args := buildSearchSQL(q)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Tags, &e.Attributes); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading entries: %w", err)
	}
	return entries, nil
}

// buildSearchSQL translates a Query into SQL. Filter and tag predicates are
// ANDed; with neither present, the text predicate ranks matches across the
// declared searchable fields. Field names are validated against the schema
// before this point, so interpolating them into jsonb path expressions is
// safe.
func buildSearchSQL(q Query) (string, []any) {
	var (
		where []string
		args  []any
		order = "id"
	)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "collection = "+arg(q.Collection))

	names := make([]string, 0, len(q.Filters))
	for name := range q.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		where = append(where, fmt.Sprintf("attributes->>'%s' = %s", name, arg(q.Filters[name])))
	}

	if q.Tag != "" {
		where = append(where, arg(q.Tag)+" = ANY(tags)")
	}

	if len(q.Filters) == 0 && q.Tag == "" && q.Text != "" && len(q.SearchFields) > 0 {
		var parts []string
		pattern := arg("%" + q.Text + "%")
		for _, f := range q.SearchFields {
			parts = append(parts, fmt.Sprintf("attributes->>'%s' ILIKE %s", f, pattern))
		}
		where = append(where, "("+strings.Join(parts, " OR ")+")")

		// Rank exact-ish matches first: shorter matching fields are more
		// likely to be the name the user asked about.
		order = fmt.Sprintf("length(attributes->>'%s'), id", q.SearchFields[0])
	}

	sql := fmt.Sprintf(
		"SELECT id, tags, attributes FROM directory_entries WHERE %s ORDER BY %s LIMIT %s",
		strings.Join(where, " AND "), order, arg(q.Limit),
	)
	return sql, args
}

// Count returns the number of entries in a collection.
func (s *PGStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		"SELECT count(*) FROM directory_entries WHERE collection = $1", collection,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting collection %s: %w", collection, err)
	}
	return n, nil
}

// DistinctTags returns the tag vocabulary of a collection, sorted.
func (s *PGStore) DistinctTags(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT DISTINCT unnest(tags) AS tag FROM directory_entries WHERE collection = $1 ORDER BY tag",
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tags for %s: %w", collection, err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// HealthCheck verifies the database connection.
func (s *PGStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op: the pool is shared with the recorder and closed by the
// owner.
func (s *PGStore) Close() error {
	return nil
}
