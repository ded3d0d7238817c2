package content

import "regexp"

// ImageRules is the data behind main-image ranking.
type ImageRules struct {
	Version string

	OpenGraphScore      float64
	PinOpenGraph        bool
	StructuredDataScore float64
	StructuredDataKeys  []string

	// Exclude matches src paths, class and id values of images that are
	// page chrome rather than product shots.
	Exclude *regexp.Regexp
	// ExcludeAncestors are containers whose images are never products.
	ExcludeAncestors string
	// MinDimension drops images whose explicit width or height is smaller.
	MinDimension int

	// AreaCap is the pixel area at which the area score saturates at
	// AreaScore points.
	AreaCap   int
	AreaScore float64

	ProductTokens []string
	ClassBonus    float64
	AltBonus      float64
	URLBonus      float64
}

var defaultExclude = regexp.MustCompile(`(?i)(^|[^a-z])(icons?|logos?|avatars?|banners?|nav|navbar|navigation|footer|header|sprites?|spinner|loader|loading|placeholder|badge|flags?|social|share|rating|stars?|payment|pixel|tracking|spacer|blank)([^a-z]|$)`)

func DefaultImageRules() ImageRules {
	return ImageRules{
		Version:             "v1",
		OpenGraphScore:      100,
		PinOpenGraph:        true,
		StructuredDataScore: 80,
		StructuredDataKeys:  []string{"image", "images", "primaryImage", "productImage"},
		Exclude:             defaultExclude,
		ExcludeAncestors:    "nav, footer, header",
		MinDimension:        50,
		AreaCap:             800 * 800,
		AreaScore:           100,
		ProductTokens: []string{
			"product", "main", "primary", "hero", "gallery", "zoom", "detail",
			"pdp", "item", "large", "featured", "packshot",
		},
		ClassBonus: 50,
		AltBonus:   30,
		URLBonus:   20,
	}
}
