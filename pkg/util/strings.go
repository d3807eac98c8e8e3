package util

import "strings"

// SplitCommands splits a ';' or newline separated command string, trimming
// whitespace and dropping empty entries. Empty input returns nil.
func SplitCommands(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == '\n' || r == '\r'
	})
	var result []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			result = append(result, f)
		}
	}
	return result
}

// SanitizeName replaces characters outside [A-Za-z0-9-_.] with hyphens so
// the result is safe in a device file name.
func SanitizeName(name string) string {
	result := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' {
			result = append(result, c)
		} else {
			result = append(result, '-')
		}
	}
	return string(result)
}

// ParseBool accepts the platform's attribute spellings ("True", "true",
// "yes", "1"). Anything else is false; an empty value yields def.
func ParseBool(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def
	case "true", "yes", "1", "on":
		return true
	default:
		return false
	}
}
