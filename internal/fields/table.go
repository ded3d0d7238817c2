package fields

import (
	"sort"
	"strings"

	"github.com/UncleMcDonald/SmartScrape/internal/model"
)

// DefaultFields are used when field analysis yields nothing usable.
var DefaultFields = []string{"name", "price", "description", "delivery"}

// defaultSynonyms maps each canonical field to the keys models commonly
// return for it. Keys are written in folded form.
var defaultSynonyms = map[string][]string{
	"name":             {"title", "product_name", "product_title", "item_name", "productname", "item_title"},
	"price":            {"cost", "amount", "current_price", "sale_price", "product_price", "price_value", "unit_price"},
	"description":      {"specs", "specifications", "details", "product_description", "product_details", "desc", "features", "summary"},
	"delivery":         {"shipping", "shipping_info", "shipping_information", "delivery_info", "delivery_information", "shipping_details", "delivery_details"},
	"delivery_in_days": {"estimated_delivery", "delivery_time", "delivery_days", "shipping_time", "estimated_delivery_days", "estimated_delivery_time"},
	"main_image_url":   {"image", "image_url", "main_image", "product_image", "product_image_url", "picture", "img", "photo"},
	"currency":         {"currency_code"},
	"availability":     {"stock", "in_stock", "stock_status", "availability_status"},
	"brand":            {"manufacturer", "vendor", "brand_name"},
	"sku":              {"product_id", "item_number", "model_number", "item_id"},
	"rating":           {"stars", "average_rating", "review_score"},
	"review_count":     {"reviews", "number_of_reviews", "ratings_count", "num_reviews"},
	"url":              {"link", "product_url", "product_link"},
}

// Table maps field names to canonical names.
type Table struct {
	Version string
	lookup  map[string]string
}

// NewTable builds a table from canonical name to aliases. Every canonical
// name maps to itself.
func NewTable(version string, synonyms map[string][]string) *Table {
	t := &Table{Version: version, lookup: make(map[string]string)}
	for canonical, aliases := range synonyms {
		c := fold(canonical)
		t.lookup[c] = c
		for _, a := range aliases {
			t.lookup[fold(a)] = c
		}
	}
	return t
}

func DefaultTable() *Table {
	return NewTable("v1", defaultSynonyms)
}

// Canonical returns the canonical name for key, or key trimmed and
// lower-cased when the table does not know it.
func (t *Table) Canonical(key string) string {
	lower := strings.ToLower(strings.TrimSpace(key))
	if c, ok := t.lookup[lower]; ok {
		return c
	}
	if c, ok := t.lookup[fold(lower)]; ok {
		return c
	}
	return lower
}

// CanonicalList canonicalizes names and drops empties and duplicates,
// keeping first-seen order.
func (t *Table) CanonicalList(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		c := t.Canonical(n)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Normalize rewrites every record to canonical keys and inserts a null for
// each required field a record lacks. It returns new records and is
// idempotent.
func (t *Table) Normalize(records []model.Record, required []string) []model.Record {
	req := t.CanonicalList(required)
	out := make([]model.Record, len(records))
	for i, rec := range records {
		out[i] = t.normalizeOne(rec, req)
	}
	return out
}

func (t *Table) normalizeOne(rec model.Record, required []string) model.Record {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	// Keys already in canonical form claim their slot before aliases do.
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := t.Canonical(keys[i]) == keys[i], t.Canonical(keys[j]) == keys[j]
		if ci != cj {
			return ci
		}
		return keys[i] < keys[j]
	})

	out := make(model.Record, len(rec)+len(required))
	for _, k := range keys {
		c := t.Canonical(k)
		if c == "" {
			continue
		}
		v := rec[k]
		if existing, ok := out[c]; ok && (existing != nil || v == nil) {
			continue
		}
		out[c] = v
	}
	for _, f := range required {
		if _, ok := out[f]; !ok {
			out[f] = nil
		}
	}
	return out
}

// fold lower-cases key and joins words with underscores.
func fold(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.Join(strings.FieldsFunc(key, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	}), "_")
}
