package entity

import (
	"encoding/json"
	"fmt"
)

// Page is the list envelope of the ERP API.
type Page[T any] struct {
	Data    []T `json:"data"`
	Total   int `json:"total"`
	Page    int `json:"page,omitempty"`
	PerPage int `json:"per_page,omitempty"`
}

// Document is a schemaless record of the reference API store.
type Document map[string]any

func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

func (d Document) String(field string) string {
	v, _ := d[field].(string)
	return v
}

// ToDocument converts a JSON-tagged struct into a Document.
func ToDocument(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// FromDocument converts a Document into a JSON-tagged struct.
func FromDocument[T any](doc Document) (T, error) {
	var out T
	raw, err := json.Marshal(doc)
	if err != nil {
		return out, fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}
