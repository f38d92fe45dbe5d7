// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mongorekey replaces the legacy string ids of a database's documents
// with generated ObjectIDs and rewrites the references other collections hold
// to them.
package mongorekey

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/vulcanjs/mongo-rekey/common/log"
	"github.com/vulcanjs/mongo-rekey/common/options"
	"github.com/vulcanjs/mongo-rekey/common/text"
	"go.mongodb.org/mongo-driver/bson"
)

// Stats counts the outcome of a run.
type Stats struct {
	Rewritten   int
	Skipped     int
	Failed      int
	RefsUpdated int
}

func (s Stats) String() string {
	return fmt.Sprintf("%v document(s) rewritten, %v skipped, %v failed, %v reference(s) updated",
		s.Rewritten, s.Skipped, s.Failed, s.RefsUpdated)
}

// MongoRekey is a container for the user-specified options and
// internal state used for running mongorekey.
type MongoRekey struct {
	ToolOptions *options.ToolOptions
	Options     *RekeyOptions
	Store       Store

	// RunID is stamped into the journal entries written by this run.
	RunID string

	excluded   mapset.Set[string]
	rewriter   *Rewriter
	propagator *Propagator
	stats      Stats
}

// New returns a MongoRekey running opts against store.
func New(opts Options, store Store) *MongoRekey {
	runID := uuid.NewString()
	return &MongoRekey{
		ToolOptions: opts.ToolOptions,
		Options:     opts.RekeyOptions,
		Store:       store,
		RunID:       runID,
		excluded:    exclusionSet(opts.RekeyOptions),
		rewriter: &Rewriter{
			Store:   store,
			Journal: opts.JournalCollection,
			RunID:   runID,
		},
		propagator: NewPropagator(store, opts.TextIndex),
	}
}

// Run executes the mode selected by the options and returns the run's
// counts, which are also logged.
func (r *MongoRekey) Run(ctx context.Context) (Stats, error) {
	log.Logvf(log.DebugLow, "starting run %v", r.RunID)

	var err error
	switch {
	case r.Options.Recover:
		var targets Targets
		if _, targets, err = r.resolve(ctx); err == nil {
			_, err = r.Recover(ctx, targets)
		}
	case r.Options.Sweep:
		err = r.Sweep(ctx)
	default:
		err = r.Migrate(ctx)
	}

	log.Logvf(log.Always, "%v", r.stats)
	return r.stats, err
}

// resolve returns the collections to migrate and the collections references
// are propagated into. The renamed user collection of an earlier run is a
// target but is never migrated again.
func (r *MongoRekey) resolve(ctx context.Context) ([]string, Targets, error) {
	names, err := ResolveCollections(ctx, r.Store, r.excluded)
	if err != nil {
		return nil, nil, err
	}
	all, err := r.Store.CollectionNames(ctx)
	if err != nil {
		return nil, nil, err
	}

	targets := Targets(names)
	if !lo.Contains(all, r.Options.UserCollection) && lo.Contains(all, r.Options.UserMarker) {
		targets = append(targets, r.Options.UserMarker)
	}
	log.Logvf(log.Info, "collections to migrate: %v", names)
	return names, targets, nil
}

// Migrate rewrites the documents of every collection, then renames the user
// collection to the marker name.
func (r *MongoRekey) Migrate(ctx context.Context) error {
	names, targets, err := r.resolve(ctx)
	if err != nil {
		return err
	}

	if r.Options.DryRun {
		return r.dryRun(ctx, names)
	}

	if _, err := r.Recover(ctx, targets); err != nil {
		if IsFatal(err) {
			return err
		}
		log.Logvf(log.Always, "recovery failed, continuing with the migration: %v", err)
	}

	for _, coll := range names {
		if err := r.migrateCollection(ctx, coll, targets); err != nil {
			return err
		}
		// Documents of coll have new ids now.
		r.propagator.Forget(coll)

		if coll == r.Options.UserCollection {
			if err := r.Store.Rename(ctx, coll, r.Options.UserMarker); err != nil {
				if IsFatal(err) {
					return err
				}
				log.Logvf(log.Always, "could not rename %v to %v: %v", coll, r.Options.UserMarker, err)
				continue
			}
			log.Logvf(log.Always, "renamed %v to %v", coll, r.Options.UserMarker)
			targets = targets.Renamed(coll, r.Options.UserMarker)
			r.propagator.Forget(r.Options.UserMarker)
		}
	}
	return nil
}

func (r *MongoRekey) dryRun(ctx context.Context, names []string) error {
	grid := &text.GridWriter{ColumnPadding: 2}
	grid.WriteCells("collection", "documents", "legacy ids")
	grid.EndRow()
	for _, coll := range names {
		count, err := r.Store.Count(ctx, coll)
		if err != nil {
			return err
		}
		ids, err := r.Store.IDs(ctx, coll)
		if err != nil {
			return err
		}
		legacy := lo.CountBy(ids, func(id interface{}) bool {
			_, ok := id.(string)
			return ok
		})
		grid.WriteCells(coll, count, legacy)
		grid.EndRow()
	}

	var report bytes.Buffer
	grid.Flush(&report)
	log.Logvf(log.Always, "dry run, nothing was written:\n%v", strings.TrimRight(report.String(), "\n"))
	return nil
}

// migrateCollection rewrites every document of coll that still has a legacy
// id. The ids are read up front so reinserted documents are not visited.
func (r *MongoRekey) migrateCollection(ctx context.Context, coll string, targets Targets) error {
	ids, err := r.Store.IDs(ctx, coll)
	if err != nil {
		return err
	}
	log.Logvf(log.Always, "found %v document(s) in collection %v", len(ids), coll)

	before := r.stats
	for _, id := range ids {
		legacyID, ok := id.(string)
		if !ok {
			log.Logvf(log.DebugHigh, "skipping %v.%v: _id is a %T, not a legacy id", coll, id, id)
			r.stats.Skipped++
			continue
		}

		err := r.migrateDocument(ctx, coll, legacyID, targets)
		switch {
		case err == nil:
			r.stats.Rewritten++
		case IsFatal(err):
			return err
		case errors.Is(err, ErrNotFound):
			log.Logvf(log.Info, "skipping %v.%v: %v", coll, legacyID, err)
			r.stats.Skipped++
		default:
			log.Logvf(log.Always, "failed to migrate %v.%v: %v", coll, legacyID, err)
			r.stats.Failed++
		}
	}

	log.Logvf(log.Always, "%v: %v document(s) rewritten, %v reference(s) updated",
		coll, r.stats.Rewritten-before.Rewritten, r.stats.RefsUpdated-before.RefsUpdated)
	return nil
}

func (r *MongoRekey) migrateDocument(ctx context.Context, coll, legacyID string, targets Targets) error {
	var staged bson.D
	if coll == r.Options.UserCollection {
		user, err := r.Store.FindOne(ctx, coll, bson.D{{Key: "_id", Value: legacyID}})
		if err != nil {
			return err
		}
		if IsMigrated(user) {
			return errors.Wrap(ErrNotFound, "already migrated")
		}
		cred, err := LegacyCredential(user)
		if err != nil {
			log.Logvf(log.Always, "user %v: %v, migrating without salt and hash", legacyID, err)
		} else {
			log.Logvf(log.DebugLow, "user %v: split bcrypt password into salt and hash", legacyID)
			staged = cred.Fields()
		}
	}

	mapping, err := r.rewriter.Rewrite(ctx, coll, legacyID, staged)
	if err != nil {
		return err
	}

	n, err := r.propagator.Propagate(ctx, targets, coll, mapping.LegacyID, mapping.NewID.Hex())
	r.stats.RefsUpdated += n
	if err != nil {
		// The journal entry stays so Recover can propagate again.
		return err
	}
	r.rewriter.Finish(ctx, mapping)
	log.Logvf(log.Info, "%v.%v is now %v, %v reference(s) updated",
		coll, legacyID, mapping.NewID.Hex(), n)
	return nil
}

