// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsonutil

import (
	"math"

	"go.mongodb.org/mongo-driver/bson"
)

const epsilon = 1e-9

// TextIndexKeys is the key a text index is stored under, whatever fields it
// was created over.
var TextIndexKeys = bson.D{{Key: "_fts", Value: "text"}, {Key: "_ftsx", Value: int32(1)}}

// IsIndexKeysEqual compares two index keys, treating numeric values of
// different types as equal.
func IsIndexKeysEqual(indexKey1 bson.D, indexKey2 bson.D) bool {
	if len(indexKey1) != len(indexKey2) {
		return false
	}

	for j, elem := range indexKey1 {
		if elem.Key != indexKey2[j].Key {
			return false
		}

		switch key1Value := elem.Value.(type) {
		case string:
			if key2Value, ok := indexKey2[j].Value.(string); ok {
				if key1Value == key2Value {
					continue
				}
			}
			return false
		default:
			if key1Value, ok := Bson2Float64(key1Value); ok {
				if key2Value, ok := Bson2Float64(indexKey2[j].Value); ok {
					if math.Abs(key1Value-key2Value) < epsilon {
						continue
					}
				}
			}
			return false
		}
	}
	return true
}

// IsTextIndexKey reports whether indexKey belongs to a text index. Compound
// text indexes carry extra fields around the _fts/_ftsx pair.
func IsTextIndexKey(indexKey bson.D) bool {
	for i := 0; i+len(TextIndexKeys) <= len(indexKey); i++ {
		if IsIndexKeysEqual(indexKey[i:i+len(TextIndexKeys)], TextIndexKeys) {
			return true
		}
	}
	return false
}
