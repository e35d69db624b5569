package analytics

import "strings"

// bucket is one normalized subcategory with the keywords that map raw
// tagger names into it.
type bucket struct {
	name     string
	keywords []string
}

// normalizationRules groups raw subcategory names into the buckets the
// filter UI shows, always in context of the parent category: "Tops" under
// Clothing and "Tops" under Accessories are different buckets. The table
// is not exhaustive; raw names that match nothing pass through unchanged.
var normalizationRules = map[string][]bucket{
	"Accessories": {
		{"Bags", []string{"bag", "handbag", "tote", "clutch", "crossbody", "purse", "wallet"}},
		{"Hats", []string{"hat", "cap", "beanie", "fedora"}},
		{"Sunglasses", []string{"sunglass", "eyewear"}},
		{"Belts", []string{"belt"}},
		{"Jewelry", []string{"jewelry", "jewellery", "necklace", "bracelet", "ring", "earring"}},
		{"Watches", []string{"watch"}},
		{"Scarves", []string{"scarf", "scarves"}},
		{"Gloves", []string{"glove", "mitten"}},
	},
	"Clothing": {
		{"Dresses", []string{"dress"}},
		{"Pants", []string{"pant", "trouser", "jean"}},
		{"Skirts", []string{"skirt"}},
		{"Tops", []string{"top", "blouse", "shirt", "t-shirt", "tank"}},
		{"Jackets", []string{"jacket", "coat", "blazer", "cardigan"}},
		{"Shorts", []string{"short"}},
	},
	"Footwear": {
		{"Shoes", []string{"shoe"}},
		{"Sneakers", []string{"sneaker", "trainer"}},
		{"Boots", []string{"boot"}},
		{"Heels", []string{"heel", "stiletto", "pump"}},
		{"Sandals", []string{"sandal", "flip-flop"}},
		{"Flats", []string{"flat", "loafer", "ballet"}},
	},
}

// NormalizeSubcategory maps a raw tagger subcategory name to its bucket
// within the given category. First keyword hit wins; no hit returns the
// raw name unchanged.
func NormalizeSubcategory(category, raw string) string {
	lower := strings.ToLower(raw)
	for _, b := range normalizationRules[category] {
		for _, kw := range b.keywords {
			if strings.Contains(lower, kw) {
				return b.name
			}
		}
	}
	return raw
}
