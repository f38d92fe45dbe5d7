// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongorekey

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vulcanjs/mongo-rekey/common/bsonutil"
	"github.com/vulcanjs/mongo-rekey/common/log"
	"github.com/vulcanjs/mongo-rekey/common/refindex"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const legacyIDField = refindex.LegacyIDField

// Mapping pairs the legacy id of a rewritten document with its new id.
type Mapping struct {
	Collection string
	LegacyID   string
	NewID      primitive.ObjectID
}

// Rewriter recreates documents under generated ObjectIDs.
//
// The swap is delete then insert, so before the delete the document is
// stamped with legacyId and a copy is written to the journal collection. A
// crash between the two steps leaves a journal entry that Recover resolves.
type Rewriter struct {
	Store   Store
	Journal string
	RunID   string
}

// IsMigrated reports whether doc was already recreated under a new id.
// A document whose legacyId equals its _id was only stamped.
func IsMigrated(doc bson.D) bool {
	legacy, ok := bsonutil.Get(doc, legacyIDField)
	if !ok {
		return false
	}
	id, _ := bsonutil.Get(doc, "_id")
	return !bsonutil.ValuesEqual(legacy, id)
}

// journalKey is the _id of the journal entry for a document.
func journalKey(coll, legacyID string) bson.D {
	return bson.D{
		{Key: "collection", Value: coll},
		{Key: "legacyId", Value: legacyID},
	}
}

// Rewrite recreates the document of coll whose _id is legacyID under a new
// ObjectID, adding legacyId and the staged fields. It returns ErrNotFound
// if there is no such document or it was already migrated. The journal entry
// of a successful rewrite is kept until Finish is called.
func (r *Rewriter) Rewrite(ctx context.Context, coll, legacyID string, staged bson.D) (Mapping, error) {
	idFilter := bson.D{{Key: "_id", Value: legacyID}}
	doc, err := r.Store.FindOne(ctx, coll, idFilter)
	if err != nil {
		return Mapping{}, err
	}
	if IsMigrated(doc) {
		return Mapping{}, errors.Wrap(ErrNotFound, "already migrated")
	}

	checkpoint := append(bson.D{{Key: legacyIDField, Value: legacyID}}, staged...)
	if err := r.Store.SetFields(ctx, coll, legacyID, checkpoint); err != nil {
		return Mapping{}, errors.Wrap(err, "stamping legacyId")
	}

	stamped := bsonutil.WithoutKey(doc, "_id")
	for _, elem := range checkpoint {
		stamped = bsonutil.Set(stamped, elem.Key, elem.Value)
	}

	key := journalKey(coll, legacyID)
	entry := bson.D{
		{Key: "_id", Value: key},
		{Key: "collection", Value: coll},
		{Key: "legacyId", Value: legacyID},
		{Key: "doc", Value: stamped},
		{Key: "runId", Value: r.RunID},
		{Key: "startedAt", Value: primitive.NewDateTimeFromTime(time.Now())},
	}
	if err := r.Store.Put(ctx, r.Journal, entry); err != nil {
		return Mapping{}, errors.Wrap(err, "writing journal entry")
	}

	deleted, err := r.Store.Delete(ctx, coll, legacyID)
	if err != nil {
		return Mapping{}, err
	}
	if !deleted {
		r.dropJournalEntry(ctx, key)
		return Mapping{}, errors.Wrap(ErrNotFound, "removed before it could be rewritten")
	}

	newID, err := r.Store.Insert(ctx, coll, stamped)
	if err != nil {
		if IsFatal(err) {
			return Mapping{}, err
		}
		return Mapping{}, &PostDeleteInsertError{Collection: coll, LegacyID: legacyID, Err: err}
	}
	oid, ok := newID.(primitive.ObjectID)
	if !ok {
		return Mapping{}, errors.Errorf("inserted document got a %T _id", newID)
	}

	log.Logvf(log.DebugLow, "rewrote %v.%v as %v", coll, legacyID, oid.Hex())
	return Mapping{Collection: coll, LegacyID: legacyID, NewID: oid}, nil
}

// Finish removes the journal entry of a mapping once its references have
// been propagated.
func (r *Rewriter) Finish(ctx context.Context, m Mapping) {
	r.dropJournalEntry(ctx, journalKey(m.Collection, m.LegacyID))
}

// dropJournalEntry removes a journal entry. A leftover entry is harmless:
// Recover propagates the mapping of a live document again and drops it.
func (r *Rewriter) dropJournalEntry(ctx context.Context, key bson.D) {
	if _, err := r.Store.Delete(ctx, r.Journal, key); err != nil {
		log.Logvf(log.Always, "could not remove journal entry %v: %v", bsonutil.CreateExtJSONString(key), err)
	}
}
