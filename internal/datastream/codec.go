package datastream

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Encode ABI-encodes values in schema field order. Every field is required.
// Numbers may be given as Go integers, JSON numbers or decimal strings.
func Encode(s Schema, values map[string]any) ([]byte, error) {
	args, err := s.arguments()
	if err != nil {
		return nil, err
	}
	ordered := make([]any, len(s.Fields))
	for i, f := range s.Fields {
		v, ok := values[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrInvalidValue, f.Name)
		}
		ordered[i], err = convert(f.Type, v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidValue, f.Name, err)
		}
	}
	return args.Pack(ordered...)
}

// Decode unpacks data into a map keyed by field name. uint256 values are
// *big.Int, addresses and bytes32 are hex strings.
func Decode(s Schema, data []byte) (map[string]any, error) {
	args, err := s.arguments()
	if err != nil {
		return nil, err
	}
	out, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	values := make(map[string]any, len(out))
	for i, f := range s.Fields {
		switch v := out[i].(type) {
		case common.Address:
			values[f.Name] = v.Hex()
		case [32]byte:
			values[f.Name] = hexutil.Encode(v[:])
		default:
			values[f.Name] = v
		}
	}
	return values, nil
}

func convert(t FieldType, v any) (any, error) {
	switch t {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", v)
		}
		return s, nil
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", v)
		}
		return b, nil
	case TypeAddress:
		s, ok := v.(string)
		if !ok || !common.IsHexAddress(s) {
			return nil, fmt.Errorf("want hex address, got %v", v)
		}
		return common.HexToAddress(s), nil
	case TypeBytes32:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want bytes32 hex, got %T", v)
		}
		return hexBytes32(s)
	case TypeUint64:
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		if !n.IsUint64() {
			return nil, fmt.Errorf("%s out of uint64 range", n)
		}
		return n.Uint64(), nil
	case TypeUint256:
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		if n.Sign() < 0 || n.BitLen() > 256 {
			return nil, fmt.Errorf("%s out of uint256 range", n)
		}
		return n, nil
	}
	return nil, fmt.Errorf("unsupported type %q", t)
}

func toBig(v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return new(big.Int).Set(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case float64:
		if n != math.Trunc(n) || n < 0 || n > 1<<53 {
			return nil, fmt.Errorf("number %v is not a safe integer", n)
		}
		return big.NewInt(int64(n)), nil
	case json.Number:
		return parseBig(n.String())
	case string:
		return parseBig(n)
	}
	return nil, fmt.Errorf("want integer, got %T", v)
}

func parseBig(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func hexBytes32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hexutil.Decode(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("want 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

