package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/raine/resale-pricer/internal/pricing"
	"github.com/xeipuuv/gojsonschema"
)

// attributesSchema accepts any object whose known keys are strings or null.
// Numeric and boolean keywords are stringified.
const attributesSchema = `{
  "type": "object",
  "properties": {
    "item_type": {"type": ["string", "null"]},
    "brand": {"type": ["string", "null"]},
    "model": {"type": ["string", "null"]},
    "condition": {"type": ["string", "null"]},
    "keywords": {
      "type": ["array", "null"],
      "items": {"type": ["string", "number", "boolean"]}
    },
    "notes": {"type": ["string", "null"]}
  }
}`

var attributesSchemaLoader = gojsonschema.NewStringLoader(attributesSchema)

// rawAttributes is the extraction payload as returned by the model.
type rawAttributes struct {
	ItemType  *string `json:"item_type"`
	Brand     *string `json:"brand"`
	Model     *string `json:"model"`
	Condition *string `json:"condition"`
	Keywords  []any   `json:"keywords"`
	Notes     *string `json:"notes"`
}

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting. Returns the extracted JSON string or an error.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("%w: %s", ErrNoJSONObject, truncate(text, 200))
	}
	return text[start : end+1], nil
}

// parseAttributes locates, validates and normalizes the extraction payload.
func parseAttributes(text string) (pricing.Attributes, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return pricing.Attributes{}, ErrEmptyResponse
	}

	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return pricing.Attributes{}, err
	}

	result, err := gojsonschema.Validate(attributesSchemaLoader, gojsonschema.NewStringLoader(jsonStr))
	if err != nil {
		return pricing.Attributes{}, fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, truncate(jsonStr, 200))
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return pricing.Attributes{}, fmt.Errorf("extraction payload failed validation: %s", strings.Join(msgs, "; "))
	}

	// UseNumber keeps numeric keywords in their literal form
	var raw rawAttributes
	dec := json.NewDecoder(strings.NewReader(jsonStr))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return pricing.Attributes{}, fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, truncate(jsonStr, 200))
	}

	return pricing.Attributes{
		ItemType:  trimmed(raw.ItemType),
		Brand:     trimmed(raw.Brand),
		Model:     trimmed(raw.Model),
		Condition: normalizeCondition(trimmed(raw.Condition)),
		Keywords:  normalizeKeywords(raw.Keywords),
		Notes:     trimmed(raw.Notes),
	}, nil
}

// normalizeCondition maps free-form condition labels onto the known set.
// "Like New" and "like-new" both become like_new; anything unknown is "".
func normalizeCondition(s string) pricing.Condition {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	c := pricing.Condition(s)
	if !c.Valid() {
		return ""
	}
	return c
}

// normalizeKeywords stringifies and trims keywords, dropping blanks.
// Repeats are kept; the query builder de-duplicates after truncating.
func normalizeKeywords(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case json.Number:
			s = t.String()
		case bool:
			s = strconv.FormatBool(t)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseListingCopy parses a {"title","description"} reply. The title is
// upper-cased.
func parseListingCopy(text string) (title, description string, err error) {
	text = cleanJSONBlock(text)
	if text == "" {
		return "", "", ErrEmptyResponse
	}

	var parsed struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return "", "", fmt.Errorf("failed to parse AI response as JSON: %w", err)
	}

	title = strings.TrimSpace(parsed.Title)
	description = strings.TrimSpace(parsed.Description)
	if title == "" || description == "" {
		return "", "", ErrIncompleteListing
	}
	return strings.ToUpper(title), description, nil
}

// cleanJSONBlock removes a surrounding markdown code fence, if any.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
