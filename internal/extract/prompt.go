package extract

import (
	"fmt"
	"strings"
)

// DefaultContentLimit is the number of content characters sent to the model.
const DefaultContentLimit = 3000

// Request is one data-extraction call for a single page.
type Request struct {
	Content     string
	Instruction string
	// RequiredFields are appended as a directive every record must satisfy.
	RequiredFields []string
	// ImageCandidates are ranked image URLs offered to the model as hints.
	ImageCandidates []string
}

// DataPrompt renders the data-extraction prompt. Content is cut to its
// first limit characters.
func DataPrompt(req Request, limit int) string {
	if limit <= 0 {
		limit = DefaultContentLimit
	}

	var b strings.Builder
	b.WriteString("You are given the visible text of a product page.\n")
	fmt.Fprintf(&b, "Based on this instruction: %q, extract the relevant data and return it as a JSON array of objects.\n", req.Instruction)

	if d := requiredDirective(req.RequiredFields); d != "" {
		b.WriteString(d)
	}
	if len(req.ImageCandidates) > 0 {
		b.WriteString("\nCandidate main image URLs found on the page, best first:\n")
		for _, u := range req.ImageCandidates {
			b.WriteString("- ")
			b.WriteString(u)
			b.WriteByte('\n')
		}
		b.WriteString("Put the best matching one in the \"Main Image URL\" field.\n")
	}

	b.WriteString(`
IMPORTANT RULES:
1. You MUST ONLY respond with a valid JSON array.
2. Use the same field names in every object of the array.
3. Only if nothing can be extracted, return an array with one error object: [{"error": "Unable to extract data", "reason": "Your reason here"}]
4. Properly escape all special characters in the JSON.

CONTENT:
`)
	b.WriteString(truncate(req.Content, limit))
	return b.String()
}

// FieldPrompt renders the field-analysis prompt. It carries no page content.
func FieldPrompt(instruction string) string {
	var b strings.Builder
	b.WriteString("A user wants to extract structured product data with this instruction:\n")
	fmt.Fprintf(&b, "%q\n\n", instruction)
	b.WriteString(`List the field names every extracted record should contain.
Use short snake_case names such as "name", "price", "description", "delivery".

IMPORTANT RULES:
1. You MUST ONLY respond with a JSON array of strings, for example ["name", "price"].
2. Do not add explanations.`)
	return b.String()
}

func requiredDirective(fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = fmt.Sprintf("%q", f)
	}
	return fmt.Sprintf("Every object MUST include these fields: %s. Use null for any value that is not on the page.\n", strings.Join(quoted, ", "))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
