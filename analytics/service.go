// Package analytics builds the hierarchical filter tree over the tagged
// image set and answers filter queries whose result counts match the
// tree. The two sides share one predicate; keeping them in agreement is
// the package's reason to exist.
package analytics

import (
	"context"
	"log"

	"go.mongodb.org/mongo-driver/v2/bson"

	"trendgallery/models"
)

// PageSize is the infinite-scroll page of the filtered gallery.
const PageSize = 50

// RecordSource is the slice of the image store the service reads.
type RecordSource interface {
	FindTagged(ctx context.Context) ([]models.ImageRecord, error)
	Find(ctx context.Context, filter bson.M, projection bson.M, sort bson.D, skip, limit int64) ([]models.ImageRecord, error)
	Count(ctx context.Context, filter bson.M) (int64, error)
}

// Page is one page of filtered results.
type Page struct {
	Images     []models.ImageRecord `json:"images"`
	Offset     int64                `json:"offset"`
	Limit      int64                `json:"limit"`
	TotalCount int64                `json:"total_count"`
	HasMore    bool                 `json:"has_more"`
}

// Service serves the filter tree and filtered image pages.
type Service struct {
	source RecordSource
	cache  *Cache
}

func NewService(source RecordSource, cache *Cache) *Service {
	return &Service{source: source, cache: cache}
}

// FilterTree returns the current tree, rebuilt from the store when the
// cache is cold.
func (s *Service) FilterTree(ctx context.Context) (FilterTree, error) {
	if tree, ok := s.cache.Get(); ok {
		return tree, nil
	}

	records, err := s.source.FindTagged(ctx)
	if err != nil {
		return nil, err
	}
	tree := BuildFilterTree(records)
	s.cache.Set(tree)
	log.Printf("analytics: filter tree rebuilt over %d tagged records", len(records))
	return tree, nil
}

// FilteredImages returns one page of the records behind a tree leaf.
// A selection whose leaf is absent from the tree yields an empty page.
func (s *Service) FilteredImages(ctx context.Context, sel Selection, page int) (Page, error) {
	result := Page{Images: []models.ImageRecord{}, Limit: PageSize}
	if page > 0 {
		result.Offset = int64(page) * PageSize
	}

	tree, err := s.FilterTree(ctx)
	if err != nil {
		return result, err
	}
	leaf, ok := tree.Leaf(sel.Category, sel.Subcategory)
	if !ok {
		return result, nil
	}

	filter := BuildFilterQuery(sel, leaf.RawNames)

	total, err := s.source.Count(ctx, filter)
	if err != nil {
		return result, err
	}
	result.TotalCount = total

	images, err := s.source.Find(ctx, filter, nil, FilterSort(), result.Offset, PageSize)
	if err != nil {
		return result, err
	}
	result.Images = images
	result.HasMore = result.Offset+int64(len(images)) < total
	return result, nil
}

// Invalidate drops the cached tree; every count-affecting mutation calls
// this.
func (s *Service) Invalidate() {
	s.cache.Clear()
}
