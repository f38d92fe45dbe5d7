// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
)

// DeferredQuery represents a deferred query.
type DeferredQuery struct {
	Coll       *mongo.Collection
	Filter     interface{}
	Projection interface{}
	Sort       interface{}
}

// Count issues an EstimatedDocumentCount command when there is no Filter in
// the query and a CountDocuments command otherwise.
func (q *DeferredQuery) Count(ctx context.Context) (int64, error) {
	if isEmptyFilter(q.Filter) {
		return q.Coll.EstimatedDocumentCount(ctx)
	}
	return q.Coll.CountDocuments(ctx, q.Filter)
}

// Iter executes a find query and returns a cursor.
func (q *DeferredQuery) Iter(ctx context.Context) (*mongo.Cursor, error) {
	opts := mopt.Find()
	if q.Projection != nil {
		opts.SetProjection(q.Projection)
	}
	if q.Sort != nil {
		opts.SetSort(q.Sort)
	}
	filter := q.Filter
	if isEmptyFilter(filter) {
		filter = bson.D{}
	}
	return q.Coll.Find(ctx, filter, opts)
}

// Each iterates the query's results in order, stopping at the first error
// returned by fn.
func (q *DeferredQuery) Each(ctx context.Context, fn func(bson.D) error) error {
	cursor, err := q.Iter(ctx)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return cursor.Err()
}

func isEmptyFilter(filter interface{}) bool {
	switch val := filter.(type) {
	case nil:
		return true
	case bson.D:
		return len(val) == 0
	case bson.M:
		return len(val) == 0
	}
	return false
}
