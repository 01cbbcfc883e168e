package search

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Search returns the IDs of the owner's cars matching the keyword, newest
// first. A car matches when the keyword is a case-insensitive substring of
// its title or description, or exactly equals one of its tags. An empty
// keyword matches all of the owner's cars.
func (s *SearchIndex) Search(ctx context.Context, ownerID, keyword string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ownerQuery := query.NewTermQuery(ownerID)
	ownerQuery.SetField("owner_id")

	var searchQuery query.Query = ownerQuery
	if keyword != "" {
		// Regexp instead of wildcard: Bleve wildcards have no escape
		// syntax, so QuoteMeta is the only way to match the keyword's
		// own metacharacters literally.
		pattern := ".*" + regexp.QuoteMeta(strings.ToLower(keyword)) + ".*"

		titleQuery := query.NewRegexpQuery(pattern)
		titleQuery.SetField("title")

		descQuery := query.NewRegexpQuery(pattern)
		descQuery.SetField("description")

		// Tags match exactly, preserving case.
		tagQuery := query.NewTermQuery(keyword)
		tagQuery.SetField("tags")

		matchQuery := query.NewDisjunctionQuery([]query.Query{titleQuery, descQuery, tagQuery})
		searchQuery = query.NewConjunctionQuery([]query.Query{ownerQuery, matchQuery})
	}

	count, err := s.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	limit := int(count)
	if limit < 1 {
		limit = 1
	}

	searchRequest := bleve.NewSearchRequestOptions(searchQuery, limit, 0, false)
	searchRequest.SortBy([]string{"-created_at"})

	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	ids := make([]string, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}
