package quassel

import "github.com/soyeahso/qbridge/internal/domain"

// AsString converts QString and QByteArray values to a Go string. Anything
// else yields "".
func AsString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

// AsInt widens any integral variant to int64.
func AsInt(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case domain.NetworkID:
		return int64(n)
	case domain.BufferID:
		return int64(n)
	case domain.MsgID:
		return int64(n)
	case IdentityID:
		return int64(n)
	default:
		return 0
	}
}

func AsBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func AsMap(v any) VariantMap {
	m, _ := v.(VariantMap)
	return m
}

func AsList(v any) VariantList {
	l, _ := v.(VariantList)
	return l
}

// AsStrings accepts a QStringList or a QVariantList of strings.
func AsStrings(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case VariantList:
		out := make([]string, 0, len(l))
		for _, item := range l {
			out = append(out, AsString(item))
		}
		return out
	default:
		return nil
	}
}
