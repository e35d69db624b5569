package analytics

import (
	"encoding/json"
	"sort"

	"trendgallery/models"
)

// Leaf is one (category, subcategory) node of the filter tree. Every
// count is a number of distinct images, never a sum over objects.
type Leaf struct {
	ImageCount int            `json:"_image_count"`
	Colors     map[string]int `json:"colors"`
	Materials  map[string]int `json:"materials"`
	Styles     map[string]int `json:"styles"`

	// RawNames are the tagger-supplied display names that normalized into
	// this leaf. The filter query accepts exactly this set, which is what
	// keeps tree counts and query results in agreement.
	RawNames []string `json:"raw_names"`
}

// CategoryMeta summarizes one top-level category.
type CategoryMeta struct {
	ImageCount    int            `json:"image_count"`
	Subcategories map[string]int `json:"subcategories"`
}

// CategoryNode is one category with its leaves.
type CategoryNode struct {
	Meta   CategoryMeta
	Leaves map[string]*Leaf
}

// FilterTree maps category name to its node.
type FilterTree map[string]*CategoryNode

// MarshalJSON flattens a category node so leaves sit next to "_meta",
// which is the payload shape the gallery UI consumes.
func (n *CategoryNode) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(n.Leaves)+1)
	flat["_meta"] = n.Meta
	for name, leaf := range n.Leaves {
		flat[name] = leaf
	}
	return json.Marshal(flat)
}

// membership is the set of leaves one image participates in, with the raw
// display names that put it there.
type membership struct {
	rawNames map[string]bool
}

// BuildFilterTree aggregates the filter tree over the given records.
// Only visible records with an attribute payload contribute. Per image:
//
//   - each object projects to its display subcategory, normalized in the
//     context of the object's top category; the image joins every distinct
//     (category, normalized subcategory) leaf exactly once, no matter how
//     many objects land there;
//   - color, material and style names are unioned across all of the
//     image's objects and credited to every leaf the image joined. The
//     filter query tests attribute existence at document level, so the
//     union must be image-wide for counts and results to agree.
func BuildFilterTree(records []models.ImageRecord) FilterTree {
	tree := make(FilterTree)
	// categoryImages tracks distinct images per category for _meta.
	categoryImages := make(map[string]map[string]bool)

	for i := range records {
		rec := &records[i]
		if !rec.Visible() || !rec.Tagged() {
			continue
		}
		id := rec.ID.Hex()

		leaves := make(map[string]map[string]*membership) // category -> sub -> raw names
		colors := make(map[string]bool)
		materials := make(map[string]bool)
		styles := make(map[string]bool)

		for j := range rec.Objects {
			obj := &rec.Objects[j]

			raw := obj.DisplaySubcategory()
			if raw != "" && obj.TopCategory != "" {
				sub := NormalizeSubcategory(obj.TopCategory, raw)
				subs := leaves[obj.TopCategory]
				if subs == nil {
					subs = make(map[string]*membership)
					leaves[obj.TopCategory] = subs
				}
				m := subs[sub]
				if m == nil {
					m = &membership{rawNames: make(map[string]bool)}
					subs[sub] = m
				}
				m.rawNames[raw] = true
			}

			for _, t := range obj.Color {
				colors[t.Name] = true
			}
			for _, t := range obj.Material {
				materials[t.Name] = true
			}
			for _, t := range obj.Style {
				styles[t.Name] = true
			}
		}

		for category, subs := range leaves {
			node := tree[category]
			if node == nil {
				node = &CategoryNode{
					Meta:   CategoryMeta{Subcategories: make(map[string]int)},
					Leaves: make(map[string]*Leaf),
				}
				tree[category] = node
			}
			if categoryImages[category] == nil {
				categoryImages[category] = make(map[string]bool)
			}
			categoryImages[category][id] = true

			for sub, m := range subs {
				leaf := node.Leaves[sub]
				if leaf == nil {
					leaf = &Leaf{
						Colors:    make(map[string]int),
						Materials: make(map[string]int),
						Styles:    make(map[string]int),
					}
					node.Leaves[sub] = leaf
				}

				leaf.ImageCount++
				for name := range colors {
					leaf.Colors[name]++
				}
				for name := range materials {
					leaf.Materials[name]++
				}
				for name := range styles {
					leaf.Styles[name]++
				}
				for raw := range m.rawNames {
					leaf.RawNames = appendUnique(leaf.RawNames, raw)
				}
			}
		}
	}

	for category, node := range tree {
		node.Meta.ImageCount = len(categoryImages[category])
		for sub, leaf := range node.Leaves {
			node.Meta.Subcategories[sub] = leaf.ImageCount
			sort.Strings(leaf.RawNames)
		}
	}
	return tree
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}

// Leaf returns the node for a (category, subcategory) selection.
func (t FilterTree) Leaf(category, subcategory string) (*Leaf, bool) {
	node, ok := t[category]
	if !ok {
		return nil, false
	}
	leaf, ok := node.Leaves[subcategory]
	return leaf, ok
}
