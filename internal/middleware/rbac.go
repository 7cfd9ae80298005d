package middleware

import (
	"fmt"
	"strings"
)

// roleRank orders session roles; a higher rank satisfies every lower role
// except that guests and students never act for one another.
var roleRank = map[string]int{
	"guest":   0,
	"student": 1,
	"admin":   2,
	"owner":   3,
}

// roleSatisfies reports whether a session holding current may act as required.
// Privileged roles (admin and above) are ranked; the rest must match exactly.
func roleSatisfies(current, required string) bool {
	if current == "" {
		return false
	}
	if current == required {
		return true
	}
	have, knownHave := roleRank[current]
	want, knownWant := roleRank[required]
	if !knownHave || !knownWant {
		return false
	}
	return want >= roleRank["admin"] && have >= want
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []string:
		if len(v) == 0 {
			return ""
		}
		return highestRole(v)
	case []interface{}:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			roles = append(roles, fmt.Sprint(item))
		}
		return highestRole(roles)
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
	}
}

func highestRole(roles []string) string {
	best := ""
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if best == "" || roleRank[role] > roleRank[best] {
			best = role
		}
	}
	return best
}
