// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongorekey

import (
	"context"

	"github.com/vulcanjs/mongo-rekey/common/bsonutil"
	"github.com/vulcanjs/mongo-rekey/common/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sweep propagates the legacy id of every migrated document of the sweep
// source into the sweep targets again. Only the first matching field of a
// document is rewritten per propagation, so a document that referenced the
// same legacy id twice keeps one stale field after the migration; a sweep
// fixes it. Sweeping again finds nothing left to rewrite.
func (r *MongoRekey) Sweep(ctx context.Context) error {
	source := r.Options.SweepSource
	targets := Targets(r.Options.SweepTargets).Without(source)
	log.Logvf(log.Always, "sweeping %v for legacy ids of %v", targets, source)

	var mappings []Mapping
	filter := bson.D{{Key: legacyIDField, Value: bson.D{{Key: "$exists", Value: true}}}}
	err := r.Store.Each(ctx, source, filter, func(doc bson.D) error {
		legacy, _ := bsonutil.Get(doc, legacyIDField)
		legacyID, ok := legacy.(string)
		if !ok || !IsMigrated(doc) {
			return nil
		}
		id, _ := bsonutil.Get(doc, "_id")
		oid, ok := id.(primitive.ObjectID)
		if !ok {
			log.Logvf(log.DebugLow, "skipping %v.%v: _id is a %T", source, legacyID, id)
			return nil
		}
		mappings = append(mappings, Mapping{Collection: source, LegacyID: legacyID, NewID: oid})
		return nil
	})
	if err != nil {
		return err
	}

	for _, m := range mappings {
		n, err := r.propagator.Propagate(ctx, targets, source, m.LegacyID, m.NewID.Hex())
		r.stats.RefsUpdated += n
		if err != nil {
			return err
		}
	}

	log.Logvf(log.Always, "sweep checked %v document(s) of %v and updated %v reference(s)",
		len(mappings), source, r.stats.RefsUpdated)
	return nil
}
