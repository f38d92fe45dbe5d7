// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package refindex

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vulcanjs/mongo-rekey/common/bsonutil"
	"go.mongodb.org/mongo-driver/bson"
)

// Memory is an Index held entirely in memory, built with one scan of the
// collection.
type Memory struct {
	values map[string][]Ref
	docs   int
}

// NewMemory returns an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]Ref)}
}

// BuildMemory scans a collection once and indexes every string field of
// every document.
func BuildMemory(ctx context.Context, scan ScanFunc) (*Memory, error) {
	idx := NewMemory()
	err := scan(ctx, func(doc bson.D) error {
		idx.Add(doc)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "building reference index")
	}
	return idx, nil
}

// Add indexes the string fields of doc in document order.
func (m *Memory) Add(doc bson.D) {
	id, ok := bsonutil.Get(doc, idField)
	if !ok {
		return
	}
	m.docs++
	for _, elem := range doc {
		if elem.Key == idField || elem.Key == LegacyIDField {
			continue
		}
		if s, ok := elem.Value.(string); ok {
			m.values[s] = append(m.values[s], Ref{DocID: id, Field: elem.Key})
		}
	}
}

// Docs returns the number of documents indexed.
func (m *Memory) Docs() int {
	return m.docs
}

// Lookup implements Index.
func (m *Memory) Lookup(_ context.Context, value string) ([]Ref, error) {
	refs := m.values[value]
	if len(refs) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(refs))
	out := make([]Ref, 0, len(refs))
	for _, ref := range refs {
		key := docKey(ref.DocID)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ref)
	}
	return out, nil
}

// Update implements Index.
func (m *Memory) Update(ref Ref, oldValue, newValue string) {
	key := docKey(ref.DocID)
	refs := m.values[oldValue]
	for i, r := range refs {
		if r.Field == ref.Field && docKey(r.DocID) == key {
			refs = append(refs[:i:i], refs[i+1:]...)
			break
		}
	}
	if len(refs) == 0 {
		delete(m.values, oldValue)
	} else {
		m.values[oldValue] = refs
	}
	m.values[newValue] = append(m.values[newValue], ref)
}

