package directory

import (
	"context"
	"fmt"
	"strings"
)

// RenderDocs produces the capability-documentation instruction fragment for
// the tenant's enabled collections. It queries the live store for entry
// counts and tag vocabularies so the rendered text never goes stale
// relative to the data; nothing here is cached across requests.
//
// An error means the data source is unavailable; callers degrade by
// omitting the fragment rather than failing the request.
func (s *Searcher) RenderDocs(ctx context.Context) (string, error) {
	if !s.Enabled() {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("You can look up records with the search_records tool. Available collections:\n")

	for _, schema := range s.schemas {
		count, err := s.store.Count(ctx, schema.Name)
		if err != nil {
			return "", fmt.Errorf("counting %s: %w", schema.Name, err)
		}
		tags, err := s.store.DistinctTags(ctx, schema.Name)
		if err != nil {
			return "", fmt.Errorf("listing tags for %s: %w", schema.Name, err)
		}

		fmt.Fprintf(&b, "\n## %s (%d entries)\n%s\n", schema.Name, count, schema.Description)

		if fields := schema.FilterableFields(); len(fields) > 0 {
			fmt.Fprintf(&b, "Filterable fields: %s\n", strings.Join(fields, ", "))
		}
		if fields := schema.SearchableFields(); len(fields) > 0 {
			fmt.Fprintf(&b, "Free-text search covers: %s\n", strings.Join(fields, ", "))
		}
		if len(tags) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n", strings.Join(tags, ", "))
		}

		fmt.Fprintf(&b, "Example: {\"collection\": %q", schema.Name)
		if fields := schema.FilterableFields(); len(fields) > 0 {
			fmt.Fprintf(&b, ", \"filters\": {%q: \"...\"}", fields[0])
		}
		b.WriteString("}\n")
	}

	return b.String(), nil
}
