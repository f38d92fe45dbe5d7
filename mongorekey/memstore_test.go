// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongorekey

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/vulcanjs/mongo-rekey/common/bsonutil"
	"github.com/vulcanjs/mongo-rekey/common/refindex"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// memStore is an in-memory Store. Documents keep their insertion order.
type memStore struct {
	colls map[string][]bson.D

	// touched records every collection an operation was issued against.
	touched map[string]int

	// Injected failures, keyed by collection.
	failEach   map[string]error
	failInsert map[string]error
	failSearch map[string]error

	textIndexes map[string]bool
	down        bool
}

func newMemStore() *memStore {
	return &memStore{
		colls:       map[string][]bson.D{},
		touched:     map[string]int{},
		failEach:    map[string]error{},
		failInsert:  map[string]error{},
		failSearch:  map[string]error{},
		textIndexes: map[string]bool{},
	}
}

var errConnRefused = &StoreConnectivityError{Err: errors.New("connection refused")}

func duplicateKey(coll string) error {
	return mongo.WriteException{WriteErrors: mongo.WriteErrors{{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: app.%v", coll),
	}}}
}

func (s *memStore) seed(coll string, docs ...bson.D) *memStore {
	for _, doc := range docs {
		s.colls[coll] = append(s.colls[coll], bsonutil.Copy(doc))
	}
	return s
}

func (s *memStore) docs(coll string) []bson.D {
	out := make([]bson.D, 0, len(s.colls[coll]))
	for _, doc := range s.colls[coll] {
		out = append(out, bsonutil.Copy(doc))
	}
	return out
}

func (s *memStore) find(coll string, id interface{}) int {
	for i, doc := range s.colls[coll] {
		if docID, _ := bsonutil.Get(doc, "_id"); bsonutil.ValuesEqual(docID, id) {
			return i
		}
	}
	return -1
}

func (s *memStore) op(coll string) error {
	s.touched[coll]++
	if s.down {
		return errConnRefused
	}
	return nil
}

// matches supports equality, $ne and $exists on top-level fields.
func matches(doc, filter bson.D) bool {
	for _, cond := range filter {
		value, present := bsonutil.Get(doc, cond.Key)
		if ops, ok := cond.Value.(bson.D); ok && len(ops) > 0 && strings.HasPrefix(ops[0].Key, "$") {
			for _, op := range ops {
				switch op.Key {
				case "$ne":
					if present && bsonutil.ValuesEqual(value, op.Value) {
						return false
					}
				case "$exists":
					if present != op.Value.(bool) {
						return false
					}
				default:
					panic("unsupported operator " + op.Key)
				}
			}
			continue
		}
		if !present || !bsonutil.ValuesEqual(value, cond.Value) {
			return false
		}
	}
	return true
}

func (s *memStore) CollectionNames(context.Context) ([]string, error) {
	if s.down {
		return nil, errConnRefused
	}
	names := make([]string, 0, len(s.colls))
	for name := range s.colls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStore) IDs(_ context.Context, coll string) ([]interface{}, error) {
	if err := s.op(coll); err != nil {
		return nil, err
	}
	var ids []interface{}
	for _, doc := range s.colls[coll] {
		id, _ := bsonutil.Get(doc, "_id")
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) Count(_ context.Context, coll string) (int64, error) {
	if err := s.op(coll); err != nil {
		return 0, err
	}
	return int64(len(s.colls[coll])), nil
}

func (s *memStore) FindOne(_ context.Context, coll string, filter bson.D) (bson.D, error) {
	if err := s.op(coll); err != nil {
		return nil, err
	}
	for _, doc := range s.colls[coll] {
		if matches(doc, filter) {
			return bsonutil.Copy(doc), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) Each(_ context.Context, coll string, filter bson.D, fn refindex.DocFunc) error {
	if err := s.op(coll); err != nil {
		return err
	}
	if err := s.failEach[coll]; err != nil {
		return err
	}
	for _, doc := range s.docs(coll) {
		if !matches(doc, filter) {
			continue
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) SetFields(_ context.Context, coll string, id interface{}, fields bson.D) error {
	if err := s.op(coll); err != nil {
		return err
	}
	if i := s.find(coll, id); i >= 0 {
		for _, f := range fields {
			s.colls[coll][i] = bsonutil.Set(s.colls[coll][i], f.Key, f.Value)
		}
	}
	return nil
}

func (s *memStore) Delete(_ context.Context, coll string, id interface{}) (bool, error) {
	if err := s.op(coll); err != nil {
		return false, err
	}
	i := s.find(coll, id)
	if i < 0 {
		return false, nil
	}
	s.colls[coll] = append(s.colls[coll][:i:i], s.colls[coll][i+1:]...)
	return true, nil
}

func (s *memStore) Insert(_ context.Context, coll string, doc bson.D) (interface{}, error) {
	if err := s.op(coll); err != nil {
		return nil, err
	}
	if err := s.failInsert[coll]; err != nil {
		return nil, err
	}
	id, ok := bsonutil.Get(doc, "_id")
	if !ok {
		id = primitive.NewObjectID()
		doc = append(bson.D{{Key: "_id", Value: id}}, doc...)
	}
	if s.find(coll, id) >= 0 {
		return nil, duplicateKey(coll)
	}
	s.colls[coll] = append(s.colls[coll], bsonutil.Copy(doc))
	return id, nil
}

func (s *memStore) Put(_ context.Context, coll string, doc bson.D) error {
	if err := s.op(coll); err != nil {
		return err
	}
	id, _ := bsonutil.Get(doc, "_id")
	if i := s.find(coll, id); i >= 0 {
		s.colls[coll][i] = bsonutil.Copy(doc)
		return nil
	}
	s.colls[coll] = append(s.colls[coll], bsonutil.Copy(doc))
	return nil
}

func (s *memStore) UpdateFields(_ context.Context, coll string, updates []FieldUpdate) (int64, error) {
	if err := s.op(coll); err != nil {
		return 0, err
	}
	var modified int64
	for _, u := range updates {
		i := s.find(coll, u.DocID)
		if i < 0 {
			continue
		}
		if old, _ := bsonutil.Get(s.colls[coll][i], u.Field); old != u.Value {
			modified++
		}
		s.colls[coll][i] = bsonutil.Set(s.colls[coll][i], u.Field, u.Value)
	}
	return modified, nil
}

func (s *memStore) EnsureTextIndex(_ context.Context, coll string) error {
	if err := s.op(coll); err != nil {
		return err
	}
	s.textIndexes[coll] = true
	return nil
}

// TextSearch matches on whitespace-separated tokens of string fields, as a
// server text index would.
func (s *memStore) TextSearch(_ context.Context, coll, value string, fn refindex.DocFunc) error {
	if err := s.op(coll); err != nil {
		return err
	}
	if !s.textIndexes[coll] {
		return errors.New("text index required for $text query")
	}
	if err := s.failSearch[coll]; err != nil {
		return err
	}
	for _, doc := range s.docs(coll) {
		for _, elem := range doc {
			str, ok := elem.Value.(string)
			if ok && containsToken(str, value) {
				if err := fn(doc); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

func containsToken(s, token string) bool {
	for _, field := range strings.Fields(s) {
		if field == token {
			return true
		}
	}
	return false
}

func (s *memStore) Rename(_ context.Context, from, to string) error {
	if err := s.op(from); err != nil {
		return err
	}
	s.touched[to]++
	if _, ok := s.colls[from]; !ok {
		return fmt.Errorf("source namespace %v does not exist", from)
	}
	if _, ok := s.colls[to]; ok {
		return fmt.Errorf("target namespace %v exists", to)
	}
	s.colls[to] = s.colls[from]
	delete(s.colls, from)
	return nil
}
