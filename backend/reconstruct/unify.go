package reconstruct

import "regexp"

// Operation names embed variable path segments (timestamps, account ids,
// tokens) that would explode the statistics key space. Each rule rewrites
// one segment shape to a canonical placeholder.
var operationRewrites = []struct {
	label string
	re    *regexp.Regexp
}{
	{"/{TIME}", regexp.MustCompile(`/T\d{4}-\d{2}-\d{2}_\d{5,10}`)},
	{"/{TIME2}", regexp.MustCompile(`/\d{4}-\d{2}-\d{2}_\d{5,10}`)},
	{"/{SAVINGS}", regexp.MustCompile(`/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)},
	{"/{BASE}/", regexp.MustCompile(`/[a-zA-Z0-9\-_]{39,40}={0,1}/`)},
	{"-{VIEW}", regexp.MustCompile(`-\d{5,9}-20\d{2}`)},
	{"/{ACCOUNT}", regexp.MustCompile(`/\d{6,10}`)},
}

// UnifyOperationName maps variable path segments to canonical placeholders.
// When any rule fires the original name is returned as well, for audit.
func UnifyOperationName(operation string) (unified string, original string) {
	unified = operation
	replaced := false
	for _, rule := range operationRewrites {
		next := rule.re.ReplaceAllString(unified, rule.label)
		if next != unified {
			replaced = true
			unified = next
		}
	}
	if replaced {
		return unified, operation
	}
	return unified, ""
}
