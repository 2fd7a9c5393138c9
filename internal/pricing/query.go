package pricing

import "strings"

// FallbackQuery is searched when neither the attributes nor the title hint
// yield any terms.
const FallbackQuery = "dorm item"

// maxQueryKeywords is how many extracted keywords are appended after
// brand, model and item type.
const maxQueryKeywords = 5

// BuildQuery derives the marketplace search string from extracted attributes.
// Brand and model come first so that exact-match listings rank higher than
// generic keyword hits. A blank item type is replaced by the title hint.
// The first five keywords are taken, then candidates are de-duplicated
// keeping the first occurrence.
func BuildQuery(attrs Attributes, titleHint string) string {
	itemType := attrs.ItemType
	if strings.TrimSpace(itemType) == "" {
		itemType = titleHint
	}

	var candidates []string
	for _, p := range []string{attrs.Brand, attrs.Model, itemType} {
		if p = strings.TrimSpace(p); p != "" {
			candidates = append(candidates, p)
		}
	}

	added := 0
	for _, kw := range attrs.Keywords {
		if added == maxQueryKeywords {
			break
		}
		if kw = strings.TrimSpace(kw); kw != "" {
			candidates = append(candidates, kw)
			added++
		}
	}

	query := strings.Join(dedupe(candidates), " ")
	if query != "" {
		return query
	}
	if hint := strings.TrimSpace(titleHint); hint != "" {
		return hint
	}
	return FallbackQuery
}

// dedupe removes repeated strings while preserving first-occurrence order.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
