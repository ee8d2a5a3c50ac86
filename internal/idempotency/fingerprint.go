package idempotency

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/text/unicode/norm"
)

// excludedKeys never contribute to a fingerprint: they hold marketplace-side
// identifiers that differ between a dry run and a real publish.
var excludedKeys = map[string]struct{}{
	"photo_ids": {},
	"pictures":  {},
}

var encMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("idempotency: CBOR encoder initialization failed: " + err.Error())
	}
	return mode
}()

// Fingerprint returns the canonical content hash of a listing payload.
// Equal payloads always produce the same fingerprint regardless of key order,
// Unicode composition, surrounding whitespace, or whole-number float encoding.
func Fingerprint(payload map[string]any) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	data, err := encMode.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("encode canonical payload: %w", err)
	}
	return keyedHash(payloadDomainKey, data), nil
}

// FingerprintOf converts v to a generic map through JSON and fingerprints it.
func FingerprintOf(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	var payload map[string]any
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}
	return Fingerprint(payload)
}

// Canonicalize returns the normalized form that Fingerprint encodes.
func Canonicalize(payload map[string]any) (map[string]any, error) {
	out, err := canonicalValue(payload)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func isExcludedKey(key string) bool {
	if _, ok := excludedKeys[key]; ok {
		return true
	}
	return strings.HasPrefix(key, "_") || strings.HasPrefix(key, "transient_")
}

func canonicalValue(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			if isExcludedKey(key) {
				continue
			}
			normalized, err := canonicalValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[norm.NFC.String(key)] = normalized
		}
		return out, nil
	case map[string]string:
		generic := make(map[string]any, len(v))
		for key, item := range v {
			generic[key] = item
		}
		return canonicalValue(generic)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			normalized, err := canonicalValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = normalized
		}
		return out, nil
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = canonicalString(item)
		}
		return out, nil
	case string:
		return canonicalString(v), nil
	case bool:
		return v, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", v, err)
		}
		return canonicalFloat(f), nil
	case float64:
		return canonicalFloat(v), nil
	case float32:
		return canonicalFloat(float64(v)), nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return canonicalUint(uint64(v)), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return canonicalUint(v), nil
	default:
		return nil, fmt.Errorf("unsupported payload value of type %T", value)
	}
}

func canonicalString(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// canonicalFloat turns whole floats into integers so 10.0 and 10 hash alike.
func canonicalFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

func canonicalUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}
