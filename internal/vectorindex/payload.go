package vectorindex

import "github.com/qdrant/go-client/qdrant"

// normalizePayload converts typed slices into []any, the only list shape
// qdrant.NewValueMap accepts.
func normalizePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case []string:
		list := make([]any, len(t))
		for i, s := range t {
			list[i] = s
		}
		return list
	case []int:
		list := make([]any, len(t))
		for i, n := range t {
			list[i] = int64(n)
		}
		return list
	case []float64:
		list := make([]any, len(t))
		for i, f := range t {
			list[i] = f
		}
		return list
	case []any:
		list := make([]any, len(t))
		for i, e := range t {
			list[i] = normalizeValue(e)
		}
		return list
	case map[string]any:
		return normalizePayload(t)
	case int:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

// fromValueMap converts a Qdrant payload into plain Go values: strings,
// int64, float64, bool, []any, map[string]any and nil.
func fromValueMap(m map[string]*qdrant.Value) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_ListValue:
		vals := k.ListValue.GetValues()
		list := make([]any, len(vals))
		for i, e := range vals {
			list[i] = fromValue(e)
		}
		return list
	case *qdrant.Value_StructValue:
		return fromValueMap(k.StructValue.GetFields())
	default:
		return nil
	}
}
