package pipeline

import (
	"net/url"
	"strings"

	"github.com/UncleMcDonald/SmartScrape/internal/fields"
	"github.com/UncleMcDonald/SmartScrape/internal/model"
)

// DefaultImageKeywords mark an instruction as asking for an image.
var DefaultImageKeywords = []string{
	"图片", "image", "picture", "photo", "img", "主图",
	"图像", "url", "链接", "link", "src", "source", "图片链接",
	"主图url", "main image", "product image",
}

// placeholders are image values models return instead of admitting nothing.
var placeholders = map[string]struct{}{
	"":              {},
	"null":          {},
	"none":          {},
	"n/a":           {},
	"na":            {},
	"not found":     {},
	"unavailable":   {},
	"not available": {},
}

// WantsImage reports whether instruction mentions any keyword, ignoring case.
func WantsImage(instruction string, keywords []string) bool {
	if instruction == "" {
		return false
	}
	lower := strings.ToLower(instruction)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// RequiredFields drops image fields from required when instruction does not
// ask for an image, so normalization does not reintroduce a key the image
// policy removed.
func RequiredFields(required []string, instruction string, table *fields.Table) []string {
	if WantsImage(instruction, DefaultImageKeywords) {
		return required
	}
	if table == nil {
		table = fields.DefaultTable()
	}
	image := table.Canonical(ImageField)
	out := make([]string, 0, len(required))
	for _, f := range required {
		if table.Canonical(f) != image {
			out = append(out, f)
		}
	}
	return out
}

// UsableImage reports whether v is an absolute http(s) URL rather than a
// placeholder.
func UsableImage(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	if _, bad := placeholders[strings.ToLower(s)]; bad {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// applyImagePolicy strips image fields when the instruction did not ask for
// an image. Otherwise an unusable or missing image is replaced by top.
func (p *Pipeline) applyImagePolicy(records []model.Record, wantImage bool, top string) {
	for _, rec := range records {
		var imageKeys []string
		for k := range rec {
			if p.table.Canonical(k) == p.table.Canonical(ImageField) {
				imageKeys = append(imageKeys, k)
			}
		}

		if !wantImage {
			for _, k := range imageKeys {
				delete(rec, k)
			}
			continue
		}
		if top == "" {
			continue
		}

		usable := false
		for _, k := range imageKeys {
			if UsableImage(rec[k]) {
				usable = true
				continue
			}
			delete(rec, k)
		}
		if !usable {
			rec[ImageField] = top
		}
	}
}
