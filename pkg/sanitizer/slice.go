package sanitizer

func NormalizeStringSlice(items []string, normalizer func(string) string) []string {
	if len(items) == 0 {
		return []string{}
	}

	seen := make(map[string]bool)
	result := make([]string, 0, len(items))

	for _, item := range items {
		normalized := normalizer(item)

		if normalized == "" {
			continue
		}

		if seen[normalized] {
			continue
		}

		seen[normalized] = true
		result = append(result, normalized)
	}

	return result
}

// NormalizeSlice is NormalizeStringSlice for string-kinded types such as
// roles or equipment keys.
func NormalizeSlice[T ~string](items []T, normalizer func(string) string) []T {
	if len(items) == 0 {
		return items
	}
	raw := make([]string, len(items))
	for i, item := range items {
		raw[i] = string(item)
	}
	normalized := NormalizeStringSlice(raw, normalizer)
	out := make([]T, len(normalized))
	for i, s := range normalized {
		out[i] = T(s)
	}
	return out
}
