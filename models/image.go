package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ImageRecord is the single document kept per ingested image. One image,
// one record: the ingestion pipeline deduplicates by source URL, by
// (post, slot) and by perceptual hash before inserting.
type ImageRecord struct {
	ID             bson.ObjectID `json:"id" bson:"_id,omitempty"`
	SourceAccount  string        `json:"source_account" bson:"source_account"`
	SourcePostID   string        `json:"source_post_id" bson:"source_post_id"`
	Slot           string        `json:"slot" bson:"slot"` // "main", "gallery" or "child"
	SourceImageURL string        `json:"source_image_url" bson:"source_image_url"`
	LocalName      string        `json:"local_name" bson:"local_name"`

	// PHash is the 64-bit perceptual hash as 16 lowercase hex characters.
	// Present iff the image bytes were successfully decoded.
	PHash string `json:"phash,omitempty" bson:"phash,omitempty"`

	FileSize   int64     `json:"file_size" bson:"file_size"`
	FetchedAt  time.Time `json:"fetched_at" bson:"fetched_at"`
	IngestedAt time.Time `json:"ingested_at" bson:"ingested_at"`

	Hidden             bool `json:"hidden" bson:"hidden"`
	SelectedForTagging bool `json:"selected_for_tagging" bson:"selected_for_tagging"`

	IsDuplicate           bool          `json:"is_duplicate" bson:"is_duplicate"`
	DuplicateOf           bson.ObjectID `json:"duplicate_of,omitempty" bson:"duplicate_of,omitempty"`
	DuplicateHashDistance int           `json:"duplicate_hash_distance,omitempty" bson:"duplicate_hash_distance,omitempty"`

	Engagement    Engagement `json:"engagement" bson:"engagement"`
	Caption       string     `json:"caption,omitempty" bson:"caption,omitempty"`
	PostTimestamp time.Time  `json:"post_timestamp" bson:"post_timestamp"`

	// Attribute payload, present iff the record has been tagged.
	Objects      []TaggedObject `json:"objects,omitempty" bson:"objects,omitempty"`
	TaggedAt     *time.Time     `json:"tagged_at,omitempty" bson:"tagged_at,omitempty"`
	TaggingError string         `json:"tagging_error,omitempty" bson:"tagging_error,omitempty"`
}

// Engagement holds the clamped like/comment counts. Source values of -1
// mean "hidden by the platform" and are stored as 0.
type Engagement struct {
	Likes    int `json:"likes" bson:"likes"`
	Comments int `json:"comments" bson:"comments"`
}

// AttributeTag is one name+confidence pair inside a tag group. Order within
// a group is meaningful: the first element is the canonical one.
type AttributeTag struct {
	Name       string  `json:"name" bson:"name"`
	Confidence float64 `json:"confidence" bson:"confidence"`
}

// TaggedObject is one detected fashion object, normalized from the raw
// tagger response into a fixed set of tag groups. Groups that match none of
// the known kinds land in Other, keyed by the raw group name.
type TaggedObject struct {
	TopCategory string  `json:"top_category" bson:"top_category"`
	Name        string  `json:"name,omitempty" bson:"name,omitempty"`
	Confidence  float64 `json:"confidence" bson:"confidence"`
	BoundBox    []int   `json:"bound_box,omitempty" bson:"bound_box,omitempty"`

	Subcategory []AttributeTag `json:"Subcategory,omitempty" bson:"Subcategory,omitempty"`
	Category    []AttributeTag `json:"Category,omitempty" bson:"Category,omitempty"`
	Color       []AttributeTag `json:"Color,omitempty" bson:"Color,omitempty"`
	Material    []AttributeTag `json:"Material,omitempty" bson:"Material,omitempty"`
	Style       []AttributeTag `json:"Style,omitempty" bson:"Style,omitempty"`

	Other map[string][]AttributeTag `json:"other,omitempty" bson:"other,omitempty"`
}

// DisplaySubcategory returns the name the object is counted and filtered
// under: the first Subcategory element, else the first Category element,
// else empty.
func (o *TaggedObject) DisplaySubcategory() string {
	if len(o.Subcategory) > 0 {
		return o.Subcategory[0].Name
	}
	if len(o.Category) > 0 {
		return o.Category[0].Name
	}
	return ""
}

// Visible reports whether the record may appear in any gallery.
func (r *ImageRecord) Visible() bool {
	return !r.Hidden && !r.IsDuplicate
}

// Tagged reports whether an attribute payload exists.
func (r *ImageRecord) Tagged() bool {
	return len(r.Objects) > 0
}
