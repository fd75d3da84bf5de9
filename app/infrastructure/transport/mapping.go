package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/usecase"
)

// toQueryKeys reads [[token, ...], ...].
func toQueryKeys(req *structpb.ListValue) ([]entity.QueryKey, error) {
	var keys []entity.QueryKey
	for i, v := range req.GetValues() {
		lv := v.GetListValue()
		if lv == nil {
			return nil, fmt.Errorf("key %d is not a list", i)
		}
		keys = append(keys, entity.QueryKey(lv.AsSlice()))
	}
	return keys, nil
}

// FromQueryKeys builds the Invalidate request.
func FromQueryKeys(keys ...entity.QueryKey) (*structpb.ListValue, error) {
	out := &structpb.ListValue{}
	for _, k := range keys {
		tokens, err := plainTokens(k.Hash())
		if err != nil {
			return nil, err
		}
		lv, err := structpb.NewList(tokens)
		if err != nil {
			return nil, fmt.Errorf("encode key %s: %w", k.Hash(), err)
		}
		out.Values = append(out.Values, structpb.NewListValue(lv))
	}
	return out, nil
}

// plainTokens decodes a canonical key hash into JSON-native tokens.
func plainTokens(hash string) ([]any, error) {
	var tokens []any
	if err := json.Unmarshal([]byte(hash), &tokens); err != nil {
		return nil, fmt.Errorf("decode key %s: %w", hash, err)
	}
	return tokens, nil
}

func toQueryList(infos []usecase.QueryInfo) (*structpb.ListValue, error) {
	out := &structpb.ListValue{}
	for _, info := range infos {
		tokens, err := plainTokens(info.Hash)
		if err != nil {
			return nil, err
		}
		m := map[string]any{
			"key":           tokens,
			"hash":          info.Hash,
			"status":        string(info.Status),
			"fetch_status":  string(info.FetchStatus),
			"fresh":         info.Fresh,
			"invalidated":   info.Invalidated,
			"observers":     info.Observers,
			"fetch_count":   info.FetchCount,
			"failure_count": info.FailureCount,
		}
		if !info.UpdatedAt.IsZero() {
			m["updated_at"] = info.UpdatedAt.UTC().Format(time.RFC3339Nano)
		}
		if info.Err != nil {
			m["error"] = info.Err.Error()
		}
		st, err := structpb.NewStruct(m)
		if err != nil {
			return nil, fmt.Errorf("encode query %s: %w", info.Hash, err)
		}
		out.Values = append(out.Values, structpb.NewStructValue(st))
	}
	return out, nil
}

func toReadRequest(req *structpb.Struct) (usecase.ReadRequest, error) {
	fields := req.GetFields()
	rr := usecase.ReadRequest{
		Resource: fields["resource"].GetStringValue(),
		Op:       fields["op"].GetStringValue(),
		ID:       fields["id"].GetStringValue(),
	}
	if rr.Resource == "" || rr.Op == "" {
		return rr, fmt.Errorf("resource and op are required")
	}
	if f := fields["filters"].GetStructValue(); f != nil {
		rr.Filters = make(map[string]string, len(f.GetFields()))
		for k, v := range f.GetFields() {
			switch kind := v.GetKind().(type) {
			case *structpb.Value_StringValue:
				rr.Filters[k] = kind.StringValue
			case *structpb.Value_NumberValue:
				rr.Filters[k] = fmt.Sprint(kind.NumberValue)
			case *structpb.Value_BoolValue:
				rr.Filters[k] = fmt.Sprint(kind.BoolValue)
			default:
				return rr, fmt.Errorf("filter %s must be a scalar", k)
			}
		}
	}
	return rr, nil
}

// FromReadRequest builds the Fetch request.
func FromReadRequest(rr usecase.ReadRequest) (*structpb.Struct, error) {
	m := map[string]any{
		"resource": rr.Resource,
		"op":       rr.Op,
	}
	if rr.ID != "" {
		m["id"] = rr.ID
	}
	if len(rr.Filters) > 0 {
		filters := make(map[string]any, len(rr.Filters))
		for k, v := range rr.Filters {
			filters[k] = v
		}
		m["filters"] = filters
	}
	return structpb.NewStruct(m)
}

func toReadResultValue(res usecase.ReadResult) (*structpb.Value, error) {
	tokens, err := plainTokens(res.Key.Hash())
	if err != nil {
		return nil, err
	}
	m := map[string]any{
		"key":          tokens,
		"status":       string(res.Status),
		"fetch_status": string(res.FetchStatus),
		"stale":        res.IsStale,
		"has_data":     res.HasData,
	}
	if res.HasData {
		data, err := plainJSON(res.Data)
		if err != nil {
			return nil, err
		}
		m["data"] = data
	}
	if res.Err != nil {
		m["error"] = res.Err.Error()
	}
	return structpb.NewValue(m)
}

// plainJSON converts typed data into maps, slices and scalars.
func plainJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return out, nil
}
