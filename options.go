package audittrail

import "fmt"

// Options carries caller-supplied settings for building an audit query.
// It is validated against a fixed schema plus one entry per configured
// extra index field of the entity being queried.
type Options map[string]any

// Recognized option keys. Extra index fields add one key each, named
// after their column.
const (
	OptType            = "type"
	OptObjectID        = "object_id"
	OptBlameID         = "blame_id"
	OptUserID          = "user_id"
	OptTransactionHash = "transaction_hash"
	OptPage            = "page"
	OptPageSize        = "page_size"
	OptStrict          = "strict"
)

// ResolvedOptions is the validated, defaulted view of an Options map.
// Filter-shaped values are nil, a scalar, or a []any list. A nil Page or
// PageSize means pagination was explicitly switched off.
type ResolvedOptions struct {
	Type            any
	ObjectID        any
	BlameID         any
	TransactionHash any
	Page            *int
	PageSize        *int
	Strict          bool
	Extra           map[string]any
}

// ResolveOptions validates opts against the recognized schema. Unknown
// keys and ill-typed values are rejected. Absent page and page_size
// default to 1 and defaultPageSize; passing either explicitly as nil
// disables pagination instead. The blame_id option takes precedence over
// its user_id alias when both carry a value.
func ResolveOptions(opts Options, extraFields []string, defaultPageSize int) (*ResolvedOptions, error) {
	extras := make(map[string]struct{}, len(extraFields))
	for _, f := range extraFields {
		extras[f] = struct{}{}
	}

	page := 1
	pageSize := defaultPageSize
	resolved := &ResolvedOptions{
		Page:     &page,
		PageSize: &pageSize,
		Strict:   true,
		Extra:    make(map[string]any),
	}

	// user_id is collected separately so precedence does not depend on
	// map iteration order.
	var userID any

	for key, raw := range opts {
		switch key {
		case OptType:
			v, err := filterOption(key, raw)
			if err != nil {
				return nil, err
			}
			resolved.Type = v
		case OptObjectID:
			v, err := filterOption(key, raw)
			if err != nil {
				return nil, err
			}
			resolved.ObjectID = v
		case OptBlameID:
			v, err := filterOption(key, raw)
			if err != nil {
				return nil, err
			}
			resolved.BlameID = v
		case OptUserID:
			v, err := filterOption(key, raw)
			if err != nil {
				return nil, err
			}
			userID = v
		case OptTransactionHash:
			v, err := filterOption(key, raw)
			if err != nil {
				return nil, err
			}
			resolved.TransactionHash = v
		case OptPage:
			p, err := pageOption(key, raw)
			if err != nil {
				return nil, err
			}
			resolved.Page = p
		case OptPageSize:
			p, err := pageOption(key, raw)
			if err != nil {
				return nil, err
			}
			resolved.PageSize = p
		case OptStrict:
			b, ok := raw.(bool)
			if !ok {
				return nil, fmt.Errorf("option %q: want bool, got %T: %w", key, raw, ErrInvalidOption)
			}
			resolved.Strict = b
		default:
			if _, ok := extras[key]; !ok {
				return nil, fmt.Errorf("option %q: %w", key, ErrInvalidOption)
			}
			v, err := filterOption(key, raw)
			if err != nil {
				return nil, err
			}
			if v != nil {
				resolved.Extra[key] = v
			}
		}
	}

	if resolved.BlameID == nil && userID != nil {
		resolved.BlameID = userID
	}

	return resolved, nil
}

// filterOption validates a filter-shaped option: null, int, string, or a
// non-empty list of ints and strings.
func filterOption(key string, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if list, ok := valueList(raw); ok {
		if len(list) == 0 {
			return nil, fmt.Errorf("option %q: empty list: %w", key, ErrInvalidOption)
		}
		out := make([]any, len(list))
		for i, e := range list {
			v, err := scalarOption(key, e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	return scalarOption(key, raw)
}

func scalarOption(key string, v any) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case Operation:
		return string(s), nil
	case int:
		return int64(s), nil
	case int32:
		return int64(s), nil
	case int64:
		return s, nil
	default:
		return nil, fmt.Errorf("option %q: unsupported type %T: %w", key, v, ErrInvalidOption)
	}
}

// pageOption validates a pagination option: null, or an int from 1 up.
// Null switches pagination off.
func pageOption(key string, raw any) (*int, error) {
	var n int
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case int:
		n = v
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	default:
		return nil, fmt.Errorf("option %q: want int, got %T: %w", key, raw, ErrInvalidOption)
	}
	if n < 1 {
		return nil, fmt.Errorf("option %q: %d is below 1: %w", key, n, ErrInvalidOption)
	}
	return &n, nil
}
