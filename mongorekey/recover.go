// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongorekey

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/vulcanjs/mongo-rekey/common/bsonutil"
	"github.com/vulcanjs/mongo-rekey/common/db"
	"github.com/vulcanjs/mongo-rekey/common/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// journalEntry is a document copy written before its original was deleted.
type journalEntry struct {
	Key        bson.D `bson:"_id"`
	Collection string `bson:"collection"`
	LegacyID   string `bson:"legacyId"`
	Doc        bson.D `bson:"doc"`
	RunID      string `bson:"runId"`
}

// RecoveryStats counts what Recover did with each journal entry.
type RecoveryStats struct {
	Reinserted int
	Resolved   int
	Failed     int
}

// Recover resolves the journal entries left by an interrupted run. An entry
// whose original was never deleted is dropped. Every other entry yields a
// mapping: either its migrated copy is live, or its document is reinserted
// under a new id. Mappings are propagated into targets once every orphan is
// back, so that references between stranded documents are rewritten too.
func (r *MongoRekey) Recover(ctx context.Context, targets Targets) (RecoveryStats, error) {
	var stats RecoveryStats

	var entries []journalEntry
	err := r.Store.Each(ctx, r.Options.JournalCollection, bson.D{}, func(raw bson.D) error {
		var entry journalEntry
		b, err := bson.Marshal(raw)
		if err == nil {
			err = bson.Unmarshal(b, &entry)
		}
		if err != nil {
			log.Logvf(log.Always, "skipping unreadable journal entry %v: %v", bsonutil.CreateExtJSONString(raw), err)
			stats.Failed++
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return stats, errors.Wrap(err, "reading journal")
	}
	if len(entries) == 0 {
		return stats, nil
	}
	log.Logvf(log.Always, "found %v journal entries from an interrupted run", len(entries))

	names, err := r.Store.CollectionNames(ctx)
	if err != nil {
		return stats, err
	}

	var pending []recovered
	for _, entry := range entries {
		rec, err := r.recoverEntry(ctx, names, entry)
		if err != nil {
			if IsFatal(err) {
				return stats, err
			}
			log.Logvf(log.Always, "could not recover %v.%v: %v", entry.Collection, entry.LegacyID, err)
			stats.Failed++
			continue
		}
		if rec == nil {
			stats.Resolved++
			continue
		}
		pending = append(pending, *rec)
	}

	for _, coll := range lo.Uniq(lo.FilterMap(pending, func(rec recovered, _ int) (string, bool) {
		return rec.collection, rec.reinserted
	})) {
		r.propagator.Forget(coll)
	}

	for _, rec := range pending {
		n, err := r.propagator.Propagate(ctx, targets, rec.collection, rec.entry.LegacyID, rec.newID.Hex())
		r.stats.RefsUpdated += n
		if err == nil {
			err = r.dropEntry(ctx, rec.entry)
		}
		if err != nil {
			if IsFatal(err) {
				return stats, err
			}
			log.Logvf(log.Always, "could not finish recovery of %v.%v: %v", rec.collection, rec.entry.LegacyID, err)
			stats.Failed++
			continue
		}
		if rec.reinserted {
			stats.Reinserted++
		} else {
			stats.Resolved++
		}
	}

	log.Logvf(log.Always, "recovery: %v document(s) reinserted, %v entries already resolved, %v failed",
		stats.Reinserted, stats.Resolved, stats.Failed)
	return stats, nil
}

// recovered is a journal entry whose document is live under newID.
type recovered struct {
	entry      journalEntry
	collection string
	newID      primitive.ObjectID
	reinserted bool
}

// recoverEntry brings the document of entry back if it is missing. It
// returns nil and drops the entry if the original was never deleted.
func (r *MongoRekey) recoverEntry(ctx context.Context, names []string, entry journalEntry) (*recovered, error) {
	coll := entry.Collection
	// The user collection is renamed once migrated.
	if coll == r.Options.UserCollection && !lo.Contains(names, coll) && lo.Contains(names, r.Options.UserMarker) {
		coll = r.Options.UserMarker
	}

	migrated := bson.D{
		{Key: legacyIDField, Value: entry.LegacyID},
		{Key: "_id", Value: bson.D{{Key: "$ne", Value: entry.LegacyID}}},
	}
	live, err := r.Store.FindOne(ctx, coll, migrated)
	switch {
	case err == nil:
		id, _ := bsonutil.Get(live, "_id")
		oid, ok := id.(primitive.ObjectID)
		if !ok {
			return nil, errors.Errorf("migrated document has a %T _id", id)
		}
		log.Logvf(log.DebugLow, "%v.%v was reinserted as %v before the interruption", coll, entry.LegacyID, oid.Hex())
		return &recovered{entry: entry, collection: coll, newID: oid}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if _, err := r.Store.FindOne(ctx, coll, bson.D{{Key: "_id", Value: entry.LegacyID}}); err == nil {
		log.Logvf(log.DebugLow, "%v.%v was never deleted", coll, entry.LegacyID)
		return nil, r.dropEntry(ctx, entry)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	newID, err := r.Store.Insert(ctx, coll, bsonutil.WithoutKey(entry.Doc, "_id"))
	if err != nil {
		if db.IsDuplicateKey(err) {
			return nil, errors.Wrap(err, "journaled document collides with a unique index")
		}
		return nil, errors.Wrap(err, "reinserting journaled document")
	}
	oid, ok := newID.(primitive.ObjectID)
	if !ok {
		return nil, errors.Errorf("reinserted document got a %T _id", newID)
	}
	log.Logvf(log.Always, "reinserted %v.%v as %v", coll, entry.LegacyID, oid.Hex())
	return &recovered{entry: entry, collection: coll, newID: oid, reinserted: true}, nil
}

func (r *MongoRekey) dropEntry(ctx context.Context, entry journalEntry) error {
	_, err := r.Store.Delete(ctx, r.Options.JournalCollection, entry.Key)
	return err
}
