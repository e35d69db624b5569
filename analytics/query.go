package analytics

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"trendgallery/models"
)

// Selection is one fully-qualified filter-tree leaf, with optional
// attribute refinements.
type Selection struct {
	Category    string `json:"category" form:"category" binding:"required"`
	Subcategory string `json:"subcategory" form:"subcategory" binding:"required"`
	Color       string `json:"color" form:"color"`
	Material    string `json:"material" form:"material"`
	Style       string `json:"style" form:"style"`
}

// BuildFilterQuery expresses a selection as a server-side document filter.
// rawNames is the leaf's accepted set of display names, taken from the
// tree that reported the count the caller is drilling into.
//
// The category predicate binds top category and display name to one and
// the same object. Each attribute is a separate document-level existence
// test: the tree credits the image-wide attribute union to the leaf, so
// the attribute may sit on a different object than the one that placed
// the image under the leaf.
func BuildFilterQuery(sel Selection, rawNames []string) bson.M {
	conditions := bson.A{
		bson.M{"hidden": bson.M{"$ne": true}},
		bson.M{"is_duplicate": bson.M{"$ne": true}},
		bson.M{"objects": bson.M{
			"$exists": true,
			"$ne":     bson.A{},
			"$elemMatch": bson.M{
				"top_category": sel.Category,
				// Display name is Subcategory[0], falling back to
				// Category[0] only when Subcategory is absent. The
				// $exists guard keeps the fallback from matching
				// objects whose Subcategory[0] points elsewhere.
				"$or": bson.A{
					bson.M{"Subcategory.0.name": bson.M{"$in": rawNames}},
					bson.M{
						"Subcategory.0":   bson.M{"$exists": false},
						"Category.0.name": bson.M{"$in": rawNames},
					},
				},
			},
		}},
	}

	if sel.Color != "" {
		conditions = append(conditions, bson.M{"objects.Color.name": sel.Color})
	}
	if sel.Material != "" {
		conditions = append(conditions, bson.M{"objects.Material.name": sel.Material})
	}
	if sel.Style != "" {
		conditions = append(conditions, bson.M{"objects.Style.name": sel.Style})
	}

	return bson.M{"$and": conditions}
}

// FilterSort is the pagination order of filtered results.
func FilterSort() bson.D {
	return bson.D{{Key: "tagged_at", Value: -1}, {Key: "_id", Value: 1}}
}

// MatchesSelection evaluates the exact predicate BuildFilterQuery
// expresses, in memory. The two must never drift apart: the tree counts,
// this evaluator and the document filter are three readings of one
// predicate, and the agreement tests lean on that.
func MatchesSelection(rec *models.ImageRecord, sel Selection, rawNames []string) bool {
	if !rec.Visible() || !rec.Tagged() {
		return false
	}

	accepted := make(map[string]bool, len(rawNames))
	for _, n := range rawNames {
		accepted[n] = true
	}

	categoryHit := false
	colorHit := sel.Color == ""
	materialHit := sel.Material == ""
	styleHit := sel.Style == ""

	for i := range rec.Objects {
		obj := &rec.Objects[i]

		if !categoryHit && obj.TopCategory == sel.Category && accepted[obj.DisplaySubcategory()] {
			categoryHit = true
		}
		if !colorHit {
			for _, t := range obj.Color {
				if t.Name == sel.Color {
					colorHit = true
					break
				}
			}
		}
		if !materialHit {
			for _, t := range obj.Material {
				if t.Name == sel.Material {
					materialHit = true
					break
				}
			}
		}
		if !styleHit {
			for _, t := range obj.Style {
				if t.Name == sel.Style {
					styleHit = true
					break
				}
			}
		}
	}

	return categoryHit && colorHit && materialHit && styleHit
}
