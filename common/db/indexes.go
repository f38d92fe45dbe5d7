// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vulcanjs/mongo-rekey/common/bsonutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// WildcardTextIndexName is the name given to the all-fields text index.
const WildcardTextIndexName = "$**_text"

// IndexDocument holds information about a collection's index.
type IndexDocument struct {
	Options bson.M `bson:",inline"`
	Key     bson.D `bson:"key"`
}

// IsWildcardText reports whether the index is a text index over every field.
// The server stores such an index's key as {_fts: "text", _ftsx: 1} with a
// "$**" weight, so the weights are what identify it.
func (idx IndexDocument) IsWildcardText() bool {
	weights, ok := idx.Options["weights"]
	if !ok {
		return false
	}
	switch w := weights.(type) {
	case bson.M:
		_, ok = w["$**"]
		return ok
	case bson.D:
		for _, e := range w {
			if e.Key == "$**" {
				return true
			}
		}
	}
	return false
}

// ListIndexes returns every index of the collection.
func ListIndexes(ctx context.Context, coll *mongo.Collection) ([]IndexDocument, error) {
	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "listing indexes of %v", coll.Name())
	}

	var indexes []IndexDocument
	if err := cursor.All(ctx, &indexes); err != nil {
		return nil, errors.Wrapf(err, "decoding indexes of %v", coll.Name())
	}
	return indexes, nil
}

// EnsureWildcardTextIndex creates the {"$**": "text"} index on the
// collection unless one already exists. A collection can hold a single text
// index, so an existing text index over other fields is an error.
func EnsureWildcardTextIndex(ctx context.Context, coll *mongo.Collection) error {
	indexes, err := ListIndexes(ctx, coll)
	if err != nil && !IsNamespaceNotFound(err) {
		return err
	}
	for _, idx := range indexes {
		if idx.IsWildcardText() {
			return nil
		}
		if bsonutil.IsTextIndexKey(idx.Key) {
			return errors.Errorf("collection %v already has a text index %v that does not cover every field", coll.Name(), idx.Options["name"])
		}
	}

	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "$**", Value: "text"}},
		Options: options.Index().SetName(WildcardTextIndexName),
	})
	return errors.Wrapf(err, "creating wildcard text index on %v", coll.Name())
}
