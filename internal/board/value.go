package board

import (
	"strconv"
	"strings"

	"github.com/leadboard/leadboard-go/internal/errors"
)

// coerceScalar converts a raw update value into its stored string form.
// Numeric and boolean inputs are accepted because JSON decoding produces
// them for NUMBER and CHECKBOX fields.
func coerceScalar(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", errors.Newf("unsupported value type %T", raw).
			Component("board").
			Category(errors.CategoryValidation).
			Build()
	}
}

// NormalizeMultiselect turns a raw multiselect value into a deduplicated
// ordered token list. It accepts an array or a comma-separated string; tokens
// are trimmed and empties dropped. Normalizing an already-normalized list is
// a no-op, which keeps repeated writes stable.
func NormalizeMultiselect(raw any) ([]string, error) {
	var tokens []string
	switch v := raw.(type) {
	case nil:
	case string:
		tokens = strings.Split(v, ",")
	case []string:
		tokens = v
	case []any:
		tokens = make([]string, 0, len(v))
		for _, item := range v {
			s, err := coerceScalar(item)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, s)
		}
	default:
		return nil, errors.Newf("unsupported multiselect value type %T", raw).
			Component("board").
			Category(errors.CategoryValidation).
			Build()
	}

	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out, nil
}

// NormalizeKey canonicalizes a field name or CSV header for lookup: lowered,
// with all whitespace runs collapsed away.
func NormalizeKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}

// recordNameCandidates is the header priority list used to pick a display
// name for imported rows.
var recordNameCandidates = []string{"Name of Organization", "Company Name", "Organization", "Org Name"}

// ResolveRecordName picks a record display name from a raw row using the
// candidate header priority list, falling back to a fixed placeholder.
func ResolveRecordName(row map[string]string) string {
	normalized := make(map[string]string, len(row))
	for header, value := range row {
		normalized[NormalizeKey(header)] = strings.TrimSpace(value)
	}
	for _, candidate := range recordNameCandidates {
		if value := normalized[NormalizeKey(candidate)]; value != "" {
			return value
		}
	}
	return "Untitled Lead"
}
