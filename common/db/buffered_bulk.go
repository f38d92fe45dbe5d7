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
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BufferedBulkInserter implements a bufio.Writer-like design for queuing up
// single-document updates and writing them in one bulk when the doc limit is
// reached. Must be flushed at the end to ensure that all updates are written.
type BufferedBulkInserter struct {
	collection    *mongo.Collection
	writeModels   []mongo.WriteModel
	docLimit      int
	bulkWriteOpts *options.BulkWriteOptions
}

// NewOrderedBufferedBulkInserter returns a BufferedBulkInserter whose bulks stop
// at the first failed write.
func NewOrderedBufferedBulkInserter(collection *mongo.Collection, docLimit int) *BufferedBulkInserter {
	if docLimit < 1 {
		docLimit = 1
	}
	return &BufferedBulkInserter{
		collection:    collection,
		bulkWriteOpts: options.BulkWrite().SetOrdered(true),
		docLimit:      docLimit,
		writeModels:   make([]mongo.WriteModel, 0, docLimit),
	}
}

// Len returns the number of buffered writes.
func (bb *BufferedBulkInserter) Len() int {
	return len(bb.writeModels)
}

// Update adds an update of the single document matching selector to the
// buffer. If the buffer becomes full, the bulk write is performed, returning
// any error that occurs.
func (bb *BufferedBulkInserter) Update(ctx context.Context, selector, update bson.D) (*mongo.BulkWriteResult, error) {
	bb.writeModels = append(bb.writeModels, mongo.NewUpdateOneModel().SetFilter(selector).SetUpdate(update))

	if len(bb.writeModels) >= bb.docLimit {
		return bb.Flush(ctx)
	}
	return nil, nil
}

// Flush writes all buffered updates in one bulk write and then resets the buffer.
func (bb *BufferedBulkInserter) Flush(ctx context.Context) (*mongo.BulkWriteResult, error) {
	if len(bb.writeModels) == 0 {
		return nil, nil
	}
	defer func() { bb.writeModels = bb.writeModels[:0] }()

	return bb.collection.BulkWrite(ctx, bb.writeModels, bb.bulkWriteOpts)
}
