package utils

// ToStringSlice flattens a decoded JSON claim into strings. A lone string
// becomes a one element slice; non-string members are skipped.
func ToStringSlice(v any) []string {
	stringSlice := make([]string, 0)
	switch t := v.(type) {
	case string:
		if t != "" {
			stringSlice = append(stringSlice, t)
		}
	case []string:
		stringSlice = append(stringSlice, t...)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				stringSlice = append(stringSlice, s)
			}
		}
	}
	return stringSlice
}
