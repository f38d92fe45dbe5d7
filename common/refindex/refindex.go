// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package refindex finds the documents of a collection that hold a given
// string value in one of their top-level fields, without knowing the
// collection's schema.
package refindex

import (
	"context"

	"github.com/vulcanjs/mongo-rekey/common/bsonutil"
	"go.mongodb.org/mongo-driver/bson"
)

// Fields that are never treated as references. _id cannot be rewritten in
// place and legacyId is the document's own audit value.
const (
	idField       = "_id"
	LegacyIDField = "legacyId"
)

// Ref names one field of one document.
type Ref struct {
	DocID interface{}
	Field string
}

// DocFunc is called for each document visited by a scan or a search.
type DocFunc func(doc bson.D) error

// ScanFunc visits every document of a collection.
type ScanFunc func(ctx context.Context, fn DocFunc) error

// SearchFunc visits the documents that may contain value. It may return
// documents that do not hold value exactly.
type SearchFunc func(ctx context.Context, value string, fn DocFunc) error

// Index answers which documents hold a value. Lookup returns at most one Ref
// per document: the first matching field in the document's stored order.
type Index interface {
	Lookup(ctx context.Context, value string) ([]Ref, error)

	// Update records that ref now holds newValue instead of oldValue.
	Update(ref Ref, oldValue, newValue string)
}

// FirstReference returns the first top-level field of doc holding value.
func FirstReference(doc bson.D, value string) (Ref, bool) {
	for _, elem := range doc {
		if elem.Key == idField || elem.Key == LegacyIDField {
			continue
		}
		if s, ok := elem.Value.(string); ok && s == value {
			id, _ := bsonutil.Get(doc, idField)
			return Ref{DocID: id, Field: elem.Key}, true
		}
	}
	return Ref{}, false
}

// docKey identifies a document by its _id, whatever the _id's type.
func docKey(id interface{}) string {
	return bsonutil.CreateExtJSONString(bson.D{{Key: idField, Value: id}})
}
