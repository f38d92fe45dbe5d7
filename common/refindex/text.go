// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package refindex

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// Text is an Index backed by a server-side text index over every field. The
// server keeps the index current, so Update has nothing to do.
type Text struct {
	search SearchFunc
}

// NewText returns an Index that answers lookups with search, keeping only
// the candidates that hold the value exactly.
func NewText(search SearchFunc) *Text {
	return &Text{search: search}
}

// Lookup implements Index.
func (t *Text) Lookup(ctx context.Context, value string) ([]Ref, error) {
	var refs []Ref
	err := t.search(ctx, value, func(doc bson.D) error {
		if ref, ok := FirstReference(doc, value); ok {
			refs = append(refs, ref)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "text search for %#q", value)
	}
	return refs, nil
}

// Update implements Index.
func (t *Text) Update(Ref, string, string) {}
