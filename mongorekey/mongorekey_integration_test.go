// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongorekey

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulcanjs/mongo-rekey/common/testtype"
	"github.com/vulcanjs/mongo-rekey/common/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func seedDatabase(t *testing.T, database *mongo.Database) {
	ctx := context.Background()
	for coll, docs := range map[string][]interface{}{
		"users": {
			bson.D{{"_id", "m1"}, {"services", bson.D{{"password", bson.D{{"bcrypt", testBcrypt}}}}}},
		},
		"orders": {
			bson.D{{"_id", "o1"}, {"userId", "m1"}, {"total", int32(10)}},
			bson.D{{"_id", "o2"}, {"note", "m1 ordered twice"}},
		},
		"samples": {
			bson.D{{"_id", "s1"}, {"userId", "m1"}},
		},
	} {
		_, err := database.Collection(coll).InsertMany(ctx, docs)
		require.NoError(t, err, "seeding %v", coll)
	}
}

func runAgainst(t *testing.T, database *mongo.Database, args ...string) Stats {
	provider, _, err := testutil.GetBareSessionProvider()
	require.NoError(t, err)
	t.Cleanup(provider.Close)

	opts, err := ParseOptions(append([]string{"--db", database.Name()}, args...), "", "")
	require.NoError(t, err)
	require.NoError(t, opts.Validate())

	stats, err := New(opts, NewMongoStore(provider, database.Name(), opts.BatchSize)).Run(context.Background())
	require.NoError(t, err)
	return stats
}

func TestMigrateMongoDB(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.IntegrationTestType)
	captureLog(t)
	ctx := context.Background()

	for _, mode := range [][]string{nil, {"--textIndex"}} {
		t.Run("args="+modeName(mode), func(t *testing.T) {
			_, database := testutil.TempDatabase(t)
			seedDatabase(t, database)

			stats := runAgainst(t, database, mode...)
			assert.Equal(t, Stats{Rewritten: 3, RefsUpdated: 1}, stats)

			names, err := database.ListCollectionNames(ctx, bson.D{})
			require.NoError(t, err)
			assert.Contains(t, names, "vulcanusers")
			assert.NotContains(t, names, "users")

			var user bson.D
			require.NoError(t, database.Collection("vulcanusers").
				FindOne(ctx, bson.D{{"legacyId", "m1"}}).Decode(&user))
			userID := objectID(t, user)
			assert.Equal(t, testSalt, field(user, "salt"))
			assert.Equal(t, testHash, field(user, "hash"))

			var order bson.D
			require.NoError(t, database.Collection("orders").
				FindOne(ctx, bson.D{{"legacyId", "o1"}}).Decode(&order))
			assert.Equal(t, userID.Hex(), field(order, "userId"))
			assert.Equal(t, int32(10), field(order, "total"))

			var note bson.D
			require.NoError(t, database.Collection("orders").
				FindOne(ctx, bson.D{{"legacyId", "o2"}}).Decode(&note))
			assert.Equal(t, "m1 ordered twice", field(note, "note"))

			var sample bson.D
			require.NoError(t, database.Collection("samples").
				FindOne(ctx, bson.D{{"_id", "s1"}}).Decode(&sample))
			assert.Equal(t, "m1", field(sample, "userId"))

			n, err := database.Collection("mongorekey.journal").CountDocuments(ctx, bson.D{})
			require.NoError(t, err)
			assert.Zero(t, n)

			again := runAgainst(t, database, mode...)
			assert.Zero(t, again.Rewritten)
			assert.Zero(t, again.RefsUpdated)
		})
	}
}

func TestMongoStore(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.IntegrationTestType)
	ctx := context.Background()

	provider, database := testutil.TempDatabase(t)
	store := NewMongoStore(provider, database.Name(), 2)

	id, err := store.Insert(ctx, "letters", bson.D{{"authorId", "m1"}, {"editorId", "m1"}})
	require.NoError(t, err)
	oid, ok := id.(primitive.ObjectID)
	require.True(t, ok)

	_, err = store.FindOne(ctx, "letters", bson.D{{"_id", "missing"}})
	assert.ErrorIs(t, err, ErrNotFound)

	modified, err := store.UpdateFields(ctx, "letters", []FieldUpdate{
		{DocID: oid, Field: "authorId", Value: "A1"},
		{DocID: oid, Field: "editorId", Value: "A1"},
		{DocID: "missing", Field: "authorId", Value: "A1"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, modified)

	doc, err := store.FindOne(ctx, "letters", bson.D{{"_id", oid}})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{"_id", oid}, {"authorId", "A1"}, {"editorId", "A1"}}, doc)

	require.NoError(t, store.EnsureTextIndex(ctx, "letters"))
	require.NoError(t, store.EnsureTextIndex(ctx, "letters"), "ensuring twice is a no-op")

	var found int
	require.NoError(t, store.TextSearch(ctx, "letters", "A1", func(bson.D) error {
		found++
		return nil
	}))
	assert.Equal(t, 1, found)

	require.NoError(t, store.Put(ctx, "mongorekey.journal", bson.D{{"_id", journalKey("letters", "l1")}, {"n", 1}}))
	require.NoError(t, store.Put(ctx, "mongorekey.journal", bson.D{{"_id", journalKey("letters", "l1")}, {"n", 2}}))
	count, err := store.Count(ctx, "mongorekey.journal")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	deleted, err := store.Delete(ctx, "mongorekey.journal", journalKey("letters", "l1"))
	require.NoError(t, err)
	assert.True(t, deleted)

	require.NoError(t, store.Rename(ctx, "letters", "archivedletters"))
	names, err := store.CollectionNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "archivedletters")
	assert.NotContains(t, names, "letters")
}

func modeName(args []string) string {
	if len(args) == 0 {
		return "default"
	}
	return args[0]
}
