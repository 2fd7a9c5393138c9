package llm

import (
	"fmt"
	"strings"
)

const extractPrompt = `You are extracting structured attributes for price comparison.
Look at the images and produce STRICT JSON only (no prose).
Return keys:
- "item_type": string (e.g. "desk lamp", "mini fridge")
- "brand": string|null
- "model": string|null
- "condition": one of ["new","like_new","good","fair","parts"]
- "keywords": string[] (3-8 search keywords)
- "notes": string|null (short, <= 1 sentence)

Title hint: %s
Category hints: %s
`

const describePrompt = `You write marketplace listings for college students.
Analyze the image(s) and generate BOTH a title and description for this listing.

Requirements:
- Title: Short, descriptive, ALL CAPS (e.g., 'BLACK PATAGONIA DOWN JACKET'). Include brand if visible.
- Description: 2 short paragraphs max. Write confidently using direct statements like 'The bag has...' or 'Features include...'. NEVER use passive or uncertain language like 'appears to', 'seems to', 'looks like', or 'may have'. Mention key visible features, brand/model if obvious, approximate size, and condition. Only describe what is clearly visible. Do not mention accessories or features you cannot see.
- No emojis in either field

%sRespond with ONLY valid JSON in this exact format (no markdown, no explanation):
{"title": "YOUR TITLE HERE", "description": "Your description here."}`

func buildExtractPrompt(titleHint string, categoryHints []string) string {
	return fmt.Sprintf(extractPrompt, strings.TrimSpace(titleHint), strings.Join(categoryHints, ", "))
}

func buildDescribePrompt(categoryHints []string) string {
	var catsLine string
	if cats := strings.Join(categoryHints, ", "); cats != "" {
		catsLine = "Category hints: " + cats + "\n"
	}
	return fmt.Sprintf(describePrompt, catsLine)
}
