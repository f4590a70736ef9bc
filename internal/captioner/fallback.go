package captioner

import (
	"fmt"
	"strings"
)

// Fallback derives basic metadata from the filename when the captioner is
// unavailable or returns garbage. The result is degraded but valid.
func Fallback(downloadFileName, categoryName string) Metadata {
	base := stripExtension(downloadFileName)
	name := titleCase(strings.NewReplacer("-", " ", "_", " ").Replace(base))
	if name == "" {
		name = "Product"
	}

	keywords := []string{strings.ToLower(categoryName)}
	for _, token := range splitTokens(base) {
		keywords = append(keywords, token)
		if len(keywords) >= 6 {
			break
		}
	}

	return Metadata{
		Name:        name,
		Description: fmt.Sprintf("High-quality %s product: %s", strings.ToLower(categoryName), downloadFileName),
		Keywords:    keywords,
	}
}

func stripExtension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx == -1 {
		return name
	}
	return name[:idx]
}

func splitTokens(base string) []string {
	fields := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func titleCase(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = strings.ToUpper(f[:1]) + f[1:]
	}
	return strings.Join(fields, " ")
}
