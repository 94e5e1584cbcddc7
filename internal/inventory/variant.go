package inventory

import "strings"

// VariantKey builds the canonical key for a size/color choice. The base
// product, with neither chosen, uses the empty key.
func VariantKey(size, color string) string {
	size = normalize(size)
	color = normalize(color)

	parts := make([]string, 0, 2)
	if size != "" {
		parts = append(parts, "size="+size)
	}
	if color != "" {
		parts = append(parts, "color="+color)
	}
	return strings.Join(parts, ";")
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
