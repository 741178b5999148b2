package pkg

import "strings"

// Contains check source have target
func Contains[T comparable](slice []T, val T) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}

// OriginAllowed 空白名單或 "*" 代表全部允許, 比對時忽略大小寫與結尾 /
func OriginAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	origin = normalizeOrigin(origin)
	for _, a := range allowed {
		if a == "*" || normalizeOrigin(a) == origin {
			return true
		}
	}
	return false
}

func normalizeOrigin(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "/")
}
