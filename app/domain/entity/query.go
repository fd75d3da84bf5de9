package entity

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"
)

// rawStringMarker prefixes the hex form of strings that JSON cannot carry
// verbatim. Valid strings starting with it are hex-encoded as well.
const rawStringMarker = "\x00raw:"

// QueryKey is an ordered token sequence addressing one cache entry.
// Tokens must be JSON-encodable; struct tokens are compared by their encoded fields.
type QueryKey []any

// Hash returns the canonical encoding of the key. Structurally equal keys
// hash equal, whatever Go types were used to build them.
func (k QueryKey) Hash() string {
	if k == nil {
		k = QueryKey{}
	}
	tokens := make([]any, len(k))
	for i, t := range k {
		tokens[i] = t
		if t == nil {
			continue
		}
		if v, changed := escapeStrings(reflect.ValueOf(t)); changed {
			tokens[i] = v.Interface()
		}
	}
	raw, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Sprintf("%#v", []any(k))
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return string(raw)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return string(raw)
	}
	return string(canonical)
}

// escapeStrings returns a copy of v in which every string that is not valid
// UTF-8 is replaced by its hex form, so json.Marshal cannot fold distinct
// strings into U+FFFD. It reports whether anything was replaced.
func escapeStrings(v reflect.Value) (reflect.Value, bool) {
	switch v.Kind() {
	case reflect.String:
		s := v.String()
		if utf8.ValidString(s) && !strings.HasPrefix(s, rawStringMarker) {
			return v, false
		}
		out := reflect.New(v.Type()).Elem()
		out.SetString(rawStringMarker + hex.EncodeToString([]byte(s)))
		return out, true

	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return v, false
		}
		inner, changed := escapeStrings(v.Elem())
		if !changed {
			return v, false
		}
		if v.Kind() == reflect.Pointer {
			p := reflect.New(v.Elem().Type())
			p.Elem().Set(inner)
			return p, true
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out, true

	case reflect.Struct:
		var out reflect.Value
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			field, changed := escapeStrings(v.Field(i))
			if !changed {
				continue
			}
			if !out.IsValid() {
				out = reflect.New(v.Type()).Elem()
				out.Set(v)
			}
			out.Field(i).Set(field)
		}
		if out.IsValid() {
			return out, true
		}
		return v, false

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() || v.Type().Elem().Kind() == reflect.Uint8 {
			return v, false
		}
		var out reflect.Value
		for i := 0; i < v.Len(); i++ {
			item, changed := escapeStrings(v.Index(i))
			if !changed {
				continue
			}
			if !out.IsValid() {
				if v.Kind() == reflect.Slice {
					out = reflect.MakeSlice(v.Type(), v.Len(), v.Len())
					reflect.Copy(out, v)
				} else {
					out = reflect.New(v.Type()).Elem()
					out.Set(v)
				}
			}
			out.Index(i).Set(item)
		}
		if out.IsValid() {
			return out, true
		}
		return v, false

	case reflect.Map:
		if v.IsNil() {
			return v, false
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		replaced := false
		iter := v.MapRange()
		for iter.Next() {
			key, keyChanged := escapeStrings(iter.Key())
			val, valChanged := escapeStrings(iter.Value())
			replaced = replaced || keyChanged || valChanged
			out.SetMapIndex(key, val)
		}
		if replaced {
			return out, true
		}
		return v, false
	}
	return v, false
}

// Equal reports structural equality.
func (k QueryKey) Equal(other QueryKey) bool {
	return k.Hash() == other.Hash()
}

// HasPrefix reports whether prefix matches the leading tokens of k.
func (k QueryKey) HasPrefix(prefix QueryKey) bool {
	return HashHasPrefix(k.Hash(), prefix.Hash())
}

func (k QueryKey) String() string {
	return k.Hash()
}

// HashHasPrefix matches canonical hashes token-wise: ["teams"] matches
// ["teams","list",{}] but not ["teamsX"].
func HashHasPrefix(hash, prefixHash string) bool {
	if prefixHash == "[]" {
		return strings.HasPrefix(hash, "[")
	}
	if hash == prefixHash {
		return true
	}
	open := strings.TrimSuffix(prefixHash, "]")
	return strings.HasPrefix(hash, open+",")
}

type QueryStatus string

const (
	QueryStatusPending QueryStatus = "pending"
	QueryStatusSuccess QueryStatus = "success"
	QueryStatusError   QueryStatus = "error"
)

type FetchStatus string

const (
	FetchStatusIdle     FetchStatus = "idle"
	FetchStatusFetching FetchStatus = "fetching"
)

type MutationStatus string

const (
	MutationStatusIdle    MutationStatus = "idle"
	MutationStatusPending MutationStatus = "pending"
	MutationStatusSuccess MutationStatus = "success"
	MutationStatusError   MutationStatus = "error"
)
