// Package store persists image records and image bytes. The two surfaces
// (MongoDB documents, file bytes) are deliberately not transactional:
// readers tolerate a document without bytes and ignore files without a
// document.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"trendgallery/models"
	"trendgallery/phash"
)

// ImageStore owns the images collection and enforces the one-image,
// one-record invariant.
type ImageStore struct {
	coll *mongo.Collection
}

func NewImageStore(coll *mongo.Collection) *ImageStore {
	return &ImageStore{coll: coll}
}

// VisibleFilter matches records that may appear in a gallery.
func VisibleFilter() bson.M {
	return bson.M{
		"hidden":       bson.M{"$ne": true},
		"is_duplicate": bson.M{"$ne": true},
	}
}

// TaggedFilter matches visible records carrying an attribute payload.
func TaggedFilter() bson.M {
	f := VisibleFilter()
	f["objects"] = bson.M{"$exists": true, "$ne": bson.A{}}
	return f
}

// Insert writes a new record. Collisions on local_name or source_image_url
// fail with the corresponding sentinel; a duplicate-key error from the
// database itself (a race that slipped past the pre-checks) maps to
// ErrConflict.
func (s *ImageStore) Insert(ctx context.Context, rec *models.ImageRecord) error {
	n, err := s.coll.CountDocuments(ctx, bson.M{"local_name": rec.LocalName})
	if err != nil {
		return fmt.Errorf("check local_name: %w", err)
	}
	if n > 0 {
		return ErrDuplicateLocalName
	}

	n, err = s.coll.CountDocuments(ctx, bson.M{"source_image_url": rec.SourceImageURL})
	if err != nil {
		return fmt.Errorf("check source_image_url: %w", err)
	}
	if n > 0 {
		return ErrDuplicateURL
	}

	res, err := s.coll.InsertOne(ctx, rec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert record: %w", err)
	}
	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		rec.ID = id
	}
	return nil
}

func (s *ImageStore) Get(ctx context.Context, id bson.ObjectID) (*models.ImageRecord, error) {
	var rec models.ImageRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

// Find runs a standard document read. Zero values disable projection, sort
// and paging.
func (s *ImageStore) Find(ctx context.Context, filter bson.M, projection bson.M, sort bson.D, skip, limit int64) ([]models.ImageRecord, error) {
	opts := options.Find()
	if projection != nil {
		opts.SetProjection(projection)
	}
	if sort != nil {
		opts.SetSort(sort)
	}
	if skip > 0 {
		opts.SetSkip(skip)
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.ImageRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

func (s *ImageStore) Count(ctx context.Context, filter bson.M) (int64, error) {
	return s.coll.CountDocuments(ctx, filter)
}

// Update applies a partial $set to mutable fields of one record.
func (s *ImageStore) Update(ctx context.Context, id bson.ObjectID, changes bson.M) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": changes})
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ImageStore) ExistsByURL(ctx context.Context, url string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"source_image_url": url})
	return n > 0, err
}

func (s *ImageStore) ExistsByPostSlot(ctx context.Context, postID, slot string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"source_post_id": postID, "slot": slot})
	return n > 0, err
}

// FindNearPhash scans phash-bearing records for one within threshold of
// hash. Linear over the collection; fine for the tens of thousands of
// records in scope.
func (s *ImageStore) FindNearPhash(ctx context.Context, hash string, threshold int) (*models.ImageRecord, error) {
	cursor, err := s.coll.Find(ctx,
		bson.M{"phash": bson.M{"$exists": true, "$ne": ""}},
		options.Find().SetProjection(bson.M{"_id": 1, "phash": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("scan phashes: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var rec models.ImageRecord
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode phash record: %w", err)
		}
		if phash.IsDuplicate(hash, rec.PHash, threshold) {
			return &rec, nil
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("scan phashes: %w", err)
	}
	return nil, nil
}

// FindSelectedForTagging returns untagged, visible records queued for the
// tagging adapter.
func (s *ImageStore) FindSelectedForTagging(ctx context.Context, limit int64) ([]models.ImageRecord, error) {
	filter := VisibleFilter()
	filter["selected_for_tagging"] = true
	filter["objects"] = bson.M{"$exists": false}
	return s.Find(ctx, filter,
		bson.M{"_id": 1, "local_name": 1},
		bson.D{{Key: "ingested_at", Value: 1}}, 0, limit)
}

// WriteTagPayload overwrites the attribute payload in full and clears the
// tagging queue flag. Overwriting is what makes retries idempotent.
func (s *ImageStore) WriteTagPayload(ctx context.Context, id bson.ObjectID, objects []models.TaggedObject, taggedAt time.Time) error {
	return s.Update(ctx, id, bson.M{
		"objects":              objects,
		"tagged_at":            taggedAt,
		"selected_for_tagging": false,
		"tagging_error":        "",
	})
}

// WriteTagError records a terminal tagging failure and dequeues the record.
func (s *ImageStore) WriteTagError(ctx context.Context, id bson.ObjectID, msg string) error {
	return s.Update(ctx, id, bson.M{
		"tagging_error":        msg,
		"selected_for_tagging": false,
	})
}

// FindTagged returns every record eligible for the attribute index:
// visible and carrying a payload. Projection keeps the scan light.
func (s *ImageStore) FindTagged(ctx context.Context) ([]models.ImageRecord, error) {
	return s.Find(ctx, TaggedFilter(), bson.M{"_id": 1, "objects": 1}, nil, 0, 0)
}

// FindHashed returns phash-bearing records in insert order, as the
// duplicate sweeper consumes them.
func (s *ImageStore) FindHashed(ctx context.Context) ([]models.ImageRecord, error) {
	return s.Find(ctx,
		bson.M{"phash": bson.M{"$exists": true, "$ne": ""}},
		bson.M{"_id": 1, "phash": 1, "is_duplicate": 1, "ingested_at": 1},
		bson.D{{Key: "ingested_at", Value: 1}}, 0, 0)
}

func (s *ImageStore) MarkDuplicate(ctx context.Context, id, of bson.ObjectID, distance int) error {
	return s.Update(ctx, id, bson.M{
		"is_duplicate":            true,
		"duplicate_of":            of,
		"duplicate_hash_distance": distance,
	})
}

func (s *ImageStore) UnmarkAllDuplicates(ctx context.Context) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"is_duplicate": true},
		bson.M{
			"$set":   bson.M{"is_duplicate": false},
			"$unset": bson.M{"duplicate_of": "", "duplicate_hash_distance": ""},
		})
	if err != nil {
		return 0, fmt.Errorf("unmark duplicates: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *ImageStore) SetHidden(ctx context.Context, ids []bson.ObjectID, hidden bool) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"hidden": hidden}})
	if err != nil {
		return 0, fmt.Errorf("set hidden: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *ImageStore) SetSelectedForTagging(ctx context.Context, ids []bson.ObjectID, selected bool) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"selected_for_tagging": selected}})
	if err != nil {
		return 0, fmt.Errorf("set selected_for_tagging: %w", err)
	}
	return res.ModifiedCount, nil
}

// AccountStats summarizes one harvested account.
type AccountStats struct {
	Account        string    `bson:"_id" json:"account"`
	LatestPostDate time.Time `bson:"latest_post_date" json:"latest_post_date"`
	TotalImages    int64     `bson:"total_images" json:"total_images"`
}

// AccountStatsAll groups records per source account with the latest post
// timestamp, newest account first.
func (s *ImageStore) AccountStatsAll(ctx context.Context) ([]AccountStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"source_account": bson.M{"$exists": true, "$ne": ""}}}},
		{{Key: "$group", Value: bson.M{
			"_id":              "$source_account",
			"latest_post_date": bson.M{"$max": "$post_timestamp"},
			"total_images":     bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"latest_post_date": -1}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate account stats: %w", err)
	}
	defer cursor.Close(ctx)

	var stats []AccountStats
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("decode account stats: %w", err)
	}
	return stats, nil
}
