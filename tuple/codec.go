package tuple

import (
	"fmt"
	"strconv"
)

// EncodeColumn renders a single column value to its wire form, per spec.md
// §4.5: strings are identity, booleans are "true"/"false", and numbers use
// the platform's canonical decimal form.
func EncodeColumn(typ ColumnType, v any) ([]byte, error) {
	switch typ {
	case String, Address:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("tuple: expected string for %s column, got %T", typ, v)
		}
		return []byte(s), nil
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("tuple: expected bool column, got %T", v)
		}
		if b {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case Int64:
		switch n := v.(type) {
		case int64:
			return []byte(strconv.FormatInt(n, 10)), nil
		case int:
			return []byte(strconv.Itoa(n)), nil
		default:
			return nil, fmt.Errorf("tuple: expected int64 column, got %T", v)
		}
	case Float64:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("tuple: expected float64 column, got %T", v)
		}
		return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
	default:
		return nil, fmt.Errorf("tuple: unknown column type %v", typ)
	}
}

// DecodeColumn parses a single column's wire form. Decode failures are
// reported to the caller, who (per spec.md §4.4) treats them as fatal only
// to the message being decoded, never to the node.
func DecodeColumn(typ ColumnType, raw []byte) (any, error) {
	switch typ {
	case String, Address:
		return string(raw), nil
	case Bool:
		switch string(raw) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, fmt.Errorf("tuple: invalid bool column %q", raw)
		}
	case Int64:
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tuple: invalid int64 column %q: %w", raw, err)
		}
		return n, nil
	case Float64:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("tuple: invalid float64 column %q: %w", raw, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("tuple: unknown column type %v", typ)
	}
}

// EncodeColumns encodes every column of t per schema, in order.
func EncodeColumns(schema Schema, t Tuple) ([][]byte, error) {
	if len(t) != schema.Arity() {
		return nil, fmt.Errorf("tuple: arity mismatch encoding columns: tuple has %d, schema has %d", len(t), schema.Arity())
	}
	out := make([][]byte, len(t))
	for i, v := range t {
		enc, err := EncodeColumn(schema.Types[i], v)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// DecodeColumns parses every frame in raw against schema, in order.
func DecodeColumns(schema Schema, raw [][]byte) (Tuple, error) {
	if len(raw) != schema.Arity() {
		return nil, fmt.Errorf("tuple: arity mismatch decoding columns: got %d frames, schema has %d", len(raw), schema.Arity())
	}
	out := make(Tuple, len(raw))
	for i, frame := range raw {
		v, err := DecodeColumn(schema.Types[i], frame)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
