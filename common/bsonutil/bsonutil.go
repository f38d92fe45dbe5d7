// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package bsonutil provides helpers for reading and rewriting ordered
// BSON documents.
package bsonutil

import (
	"bytes"
	"math"
	"math/big"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Get returns the value of the top-level key in doc.
func Get(doc bson.D, key string) (interface{}, bool) {
	for _, elem := range doc {
		if elem.Key == key {
			return elem.Value, true
		}
	}
	return nil, false
}

// Lookup follows path through nested documents, returning the value at the
// end of it. Nested documents may be decoded as bson.D or as maps.
func Lookup(doc interface{}, path ...string) (interface{}, bool) {
	current := doc
	for _, key := range path {
		var ok bool
		switch d := current.(type) {
		case bson.D:
			current, ok = Get(d, key)
		case bson.M:
			current, ok = d[key]
		case map[string]interface{}:
			current, ok = d[key]
		default:
			return nil, false
		}
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set returns doc with key set to value. An existing key keeps its position;
// a new key is appended.
func Set(doc bson.D, key string, value interface{}) bson.D {
	for i := range doc {
		if doc[i].Key == key {
			doc[i].Value = value
			return doc
		}
	}
	return append(doc, bson.E{Key: key, Value: value})
}

// WithoutKey returns a copy of doc with every element named key removed.
func WithoutKey(doc bson.D, key string) bson.D {
	out := make(bson.D, 0, len(doc))
	for _, elem := range doc {
		if elem.Key != key {
			out = append(out, elem)
		}
	}
	return out
}

// Copy returns a shallow copy of doc.
func Copy(doc bson.D) bson.D {
	out := make(bson.D, len(doc))
	copy(out, doc)
	return out
}

// ValuesEqual reports whether two BSON values encode to the same bytes, so a
// string never equals an ObjectID holding the same hex digits.
func ValuesEqual(a, b interface{}) bool {
	aBytes, err := bson.Marshal(bson.D{{Key: "v", Value: a}})
	if err != nil {
		return false
	}
	bBytes, err := bson.Marshal(bson.D{{Key: "v", Value: b}})
	if err != nil {
		return false
	}
	return bytes.Equal(aBytes, bBytes)
}

// Bson2Float64 converts a numeric BSON value to a float64.
func Bson2Float64(data interface{}) (float64, bool) {
	switch v := data.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case primitive.Decimal128:
		bi, exp, err := v.BigInt()
		if err != nil {
			return 0, false
		}
		f, _ := new(big.Float).SetInt(bi).Float64()
		return f * math.Pow10(exp), true
	}
	return 0, false
}

// CreateExtJSONString stringifies doc as relaxed Extended JSON. It does not
// error if it's unable to marshal the doc.
func CreateExtJSONString(doc interface{}) string {
	JSONBytes, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return "<unable to format document>"
	}
	return string(JSONBytes)
}
