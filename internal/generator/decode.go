package generator

import "fmt"

// decodeFunc converts a coerced argument value into the shape providers
// expect: input objects keyed by property name, enums as host values.
type decodeFunc func(v any) (any, error)

func decodeList(elem decodeFunc) decodeFunc {
	if elem == nil {
		return nil
	}
	return func(v any) (any, error) {
		items, ok := v.([]any)
		if !ok {
			return v, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			d, err := elem(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = d
		}
		return out, nil
	}
}

// decoderFor returns the decoder of a named input type, or nil when values
// pass through unchanged.
func (g *Generator) decoderFor(name string) decodeFunc {
	if shape, ok := g.enums[name]; ok {
		return func(v any) (any, error) {
			if v == nil {
				return nil, nil
			}
			s, _ := v.(string)
			value, ok := shape.values[s]
			if !ok {
				return nil, fmt.Errorf("%v is not a value of %s", v, name)
			}
			return value, nil
		}
	}
	if shape, ok := g.inputs[name]; ok {
		return func(v any) (any, error) {
			if v == nil {
				return nil, nil
			}
			m, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s expects an object, got %T", name, v)
			}
			out := make(map[string]any, len(m))
			for k, fv := range m {
				f, ok := shape.fields[k]
				if !ok {
					return nil, fmt.Errorf("%s has no field %s", name, k)
				}
				if f.decode != nil {
					d, err := f.decode(fv)
					if err != nil {
						return nil, fmt.Errorf("%s.%s: %w", name, k, err)
					}
					fv = d
				}
				out[f.property] = fv
			}
			return out, nil
		}
	}
	return nil
}
