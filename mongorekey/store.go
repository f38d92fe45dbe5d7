// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongorekey

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/vulcanjs/mongo-rekey/common/db"
	"github.com/vulcanjs/mongo-rekey/common/log"
	"github.com/vulcanjs/mongo-rekey/common/refindex"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
)

// FieldUpdate sets one top-level field of one document to a string.
type FieldUpdate struct {
	DocID interface{}
	Field string
	Value string
}

// Store is the set of document operations the migration needs. Documents are
// ordered, so the first field of a document is well defined.
type Store interface {
	// CollectionNames lists the regular collections of the database.
	CollectionNames(ctx context.Context) ([]string, error)

	// IDs returns the _id of every document in coll.
	IDs(ctx context.Context, coll string) ([]interface{}, error)

	// Count returns the number of documents in coll.
	Count(ctx context.Context, coll string) (int64, error)

	// FindOne returns the first document matching filter, or ErrNotFound.
	FindOne(ctx context.Context, coll string, filter bson.D) (bson.D, error)

	// Each calls fn for every document of coll matching filter.
	Each(ctx context.Context, coll string, filter bson.D, fn refindex.DocFunc) error

	// SetFields $sets fields on the document with the given _id.
	SetFields(ctx context.Context, coll string, id interface{}, fields bson.D) error

	// Delete removes the document with the given _id and reports whether
	// a document was removed.
	Delete(ctx context.Context, coll string, id interface{}) (bool, error)

	// Insert inserts doc and returns its _id. A doc without an _id
	// gets a generated ObjectID.
	Insert(ctx context.Context, coll string, doc bson.D) (interface{}, error)

	// Put replaces or inserts the document with doc's _id.
	Put(ctx context.Context, coll string, doc bson.D) error

	// UpdateFields applies a batch of field updates to coll.
	UpdateFields(ctx context.Context, coll string, updates []FieldUpdate) (int64, error)

	// EnsureTextIndex makes sure coll has a text index over every field.
	EnsureTextIndex(ctx context.Context, coll string) error

	// TextSearch calls fn for every document of coll the text index
	// matches value with.
	TextSearch(ctx context.Context, coll, value string, fn refindex.DocFunc) error

	// Rename renames a collection of the database.
	Rename(ctx context.Context, from, to string) error
}

// MongoStore implements Store over one database of a MongoDB deployment.
type MongoStore struct {
	provider  *db.SessionProvider
	database  string
	batchSize int
}

// NewMongoStore returns a Store for the named database.
func NewMongoStore(provider *db.SessionProvider, database string, batchSize int) *MongoStore {
	return &MongoStore{provider: provider, database: database, batchSize: batchSize}
}

func (s *MongoStore) collection(name string) *mongo.Collection {
	return s.provider.DB(s.database).Collection(name)
}

func (s *MongoStore) CollectionNames(ctx context.Context) ([]string, error) {
	names, err := s.provider.DB(s.database).ListCollectionNames(ctx, bson.D{{Key: "type", Value: "collection"}})
	if err != nil {
		return nil, classify(errors.Wrapf(err, "listing collections of %v", s.database))
	}
	return names, nil
}

func (s *MongoStore) IDs(ctx context.Context, coll string) ([]interface{}, error) {
	var ids []interface{}
	query := &db.DeferredQuery{
		Coll:       s.collection(coll),
		Projection: bson.D{{Key: "_id", Value: 1}},
	}
	err := query.Each(ctx, func(doc bson.D) error {
		if len(doc) > 0 && doc[0].Key == "_id" {
			ids = append(ids, doc[0].Value)
		}
		return nil
	})
	if err != nil {
		return nil, classify(errors.Wrapf(err, "reading ids of %v", coll))
	}
	return ids, nil
}

func (s *MongoStore) Count(ctx context.Context, coll string) (int64, error) {
	n, err := (&db.DeferredQuery{Coll: s.collection(coll)}).Count(ctx)
	return n, classify(err)
}

func (s *MongoStore) FindOne(ctx context.Context, coll string, filter bson.D) (bson.D, error) {
	var doc bson.D
	err := s.collection(coll).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(errors.Wrapf(err, "finding document in %v", coll))
	}
	return doc, nil
}

func (s *MongoStore) Each(ctx context.Context, coll string, filter bson.D, fn refindex.DocFunc) error {
	query := &db.DeferredQuery{Coll: s.collection(coll), Filter: filter}
	return classify(query.Each(ctx, fn))
}

func (s *MongoStore) SetFields(ctx context.Context, coll string, id interface{}, fields bson.D) error {
	_, err := s.collection(coll).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: fields}},
	)
	return classify(errors.Wrapf(err, "updating %v in %v", id, coll))
}

func (s *MongoStore) Delete(ctx context.Context, coll string, id interface{}) (bool, error) {
	res, err := s.collection(coll).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return false, classify(errors.Wrapf(err, "deleting %v from %v", id, coll))
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) Insert(ctx context.Context, coll string, doc bson.D) (interface{}, error) {
	res, err := s.collection(coll).InsertOne(ctx, doc)
	if err != nil {
		return nil, classify(errors.Wrapf(err, "inserting into %v", coll))
	}
	return res.InsertedID, nil
}

func (s *MongoStore) Put(ctx context.Context, coll string, doc bson.D) error {
	if len(doc) == 0 || doc[0].Key != "_id" {
		return fmt.Errorf("document put into %v must start with _id", coll)
	}
	_, err := s.collection(coll).ReplaceOne(ctx,
		bson.D{doc[0]},
		doc,
		mopt.Replace().SetUpsert(true),
	)
	return classify(errors.Wrapf(err, "writing to %v", coll))
}

func (s *MongoStore) UpdateFields(ctx context.Context, coll string, updates []FieldUpdate) (int64, error) {
	var modified int64
	count := func(res *mongo.BulkWriteResult) {
		if res != nil {
			modified += res.ModifiedCount
		}
	}

	bulk := db.NewOrderedBufferedBulkInserter(s.collection(coll), s.batchSize)
	for _, u := range updates {
		log.Logvf(log.DebugHigh, "queueing update of %v.%v in %v", u.DocID, u.Field, coll)
		res, err := bulk.Update(ctx,
			bson.D{{Key: "_id", Value: u.DocID}},
			bson.D{{Key: "$set", Value: bson.D{{Key: u.Field, Value: u.Value}}}},
		)
		count(res)
		if err != nil {
			return modified, classify(errors.Wrapf(err, "updating references in %v", coll))
		}
	}
	res, err := bulk.Flush(ctx)
	count(res)
	return modified, classify(errors.Wrapf(err, "updating references in %v", coll))
}

func (s *MongoStore) EnsureTextIndex(ctx context.Context, coll string) error {
	return classify(db.EnsureWildcardTextIndex(ctx, s.collection(coll)))
}

func (s *MongoStore) TextSearch(ctx context.Context, coll, value string, fn refindex.DocFunc) error {
	// A quoted phrase only matches the whole token.
	query := &db.DeferredQuery{
		Coll: s.collection(coll),
		Filter: bson.D{{Key: "$text", Value: bson.D{
			{Key: "$search", Value: `"` + value + `"`},
		}}},
	}
	return classify(query.Each(ctx, fn))
}

func (s *MongoStore) Rename(ctx context.Context, from, to string) error {
	cmd := bson.D{
		{Key: "renameCollection", Value: s.database + "." + from},
		{Key: "to", Value: s.database + "." + to},
	}
	err := s.provider.DB("admin").RunCommand(ctx, cmd).Err()
	return classify(errors.Wrapf(err, "renaming %v to %v", from, to))
}
