// Package extract pulls the result array out of an arbitrary query response.
//
// Query endpoints return whatever shape the database query produces, usually
// an object with one array-valued property ({"doctors": [...]}). Extraction is
// an ordered chain of strategies; the first one that yields a non-empty array
// wins, and a response no strategy understands counts as zero results.
package extract

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Extractor tries to find the result array in a raw JSON body.
type Extractor interface {
	Name() string
	Extract(raw []byte) ([]any, bool)
}

// Func adapts a function to Extractor.
type Func struct {
	Label string
	Fn    func(raw []byte) ([]any, bool)
}

func (f Func) Name() string { return f.Label }

func (f Func) Extract(raw []byte) ([]any, bool) { return f.Fn(raw) }

// Chain tries extractors in order.
type Chain []Extractor

// Default is the chain used for query results: the first array-valued
// top-level property, then a bare top-level array.
var Default = Chain{FirstArrayProperty(), WholeArray()}

// Extract returns the first non-empty array found and the name of the
// extractor that produced it. It never fails; an unknown shape yields nil.
func (c Chain) Extract(raw []byte) ([]any, string) {
	for _, e := range c {
		items, ok := e.Extract(raw)
		if ok && len(items) > 0 {
			return items, e.Name()
		}
	}
	return nil, ""
}

// FirstArrayProperty walks the top-level object in document order and
// returns the first property whose value is an array.
func FirstArrayProperty() Extractor {
	return Func{Label: "first-array-property", Fn: func(raw []byte) ([]any, bool) {
		iter := jsoniter.ParseBytes(json, raw)
		if iter.WhatIsNext() != jsoniter.ObjectValue {
			return nil, false
		}
		var found []any
		iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
			if found != nil {
				it.Skip()
				return true
			}
			if it.WhatIsNext() != jsoniter.ArrayValue {
				it.Skip()
				return true
			}
			var arr []any
			it.ReadVal(&arr)
			if arr == nil {
				arr = []any{}
			}
			found = arr
			return true
		})
		if iter.Error != nil && found == nil {
			return nil, false
		}
		return found, found != nil
	}}
}

// WholeArray accepts a body that is itself an array.
func WholeArray() Extractor {
	return Func{Label: "whole-array", Fn: func(raw []byte) ([]any, bool) {
		iter := jsoniter.ParseBytes(json, raw)
		if iter.WhatIsNext() != jsoniter.ArrayValue {
			return nil, false
		}
		var arr []any
		iter.ReadVal(&arr)
		if iter.Error != nil {
			return nil, false
		}
		return arr, true
	}}
}

// Property returns the array stored under one of the given keys, in key
// order. A value of the form {"values": [...]} is unwrapped.
func Property(keys ...string) Extractor {
	return Func{Label: "property", Fn: func(raw []byte) ([]any, bool) {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, false
		}
		for _, k := range keys {
			if arr, ok := Unwrap(obj[k]); ok {
				return arr, true
			}
		}
		return nil, false
	}}
}

// Unwrap returns v as an array, accepting either a plain array or an object
// holding it under "values".
func Unwrap(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		if arr, ok := t["values"].([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

// TopK truncates items to at most k entries. k <= 0 means no cap.
func TopK(items []any, k int) []any {
	if k <= 0 || len(items) <= k {
		return items
	}
	return items[:k]
}
