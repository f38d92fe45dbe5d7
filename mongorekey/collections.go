// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongorekey

import (
	"context"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
	"github.com/vulcanjs/mongo-rekey/common/util"
)

// DefaultExcludedCollections hold operational data or samples with no
// references worth rewriting.
var DefaultExcludedCollections = []string{
	"cronHistory",
	"meteor_accounts_loginServiceConfiguration",
	"samples",
	"restaurants",
	"vulcanusers",
	"vulcanstorabletokens",
}

// ResolveCollections returns the sorted names of the collections to migrate:
// every regular collection except system collections and excluded ones.
func ResolveCollections(ctx context.Context, store Store, excluded mapset.Set[string]) ([]string, error) {
	names, err := store.CollectionNames(ctx)
	if err != nil {
		return nil, err
	}

	names = lo.Filter(names, func(name string, _ int) bool {
		return !util.IsSystemCollection(name) && !excluded.Contains(name)
	})
	sort.Strings(names)
	return names, nil
}

// exclusionSet builds the set of collections the migration never touches.
func exclusionSet(opts *RekeyOptions) mapset.Set[string] {
	set := mapset.NewSet(DefaultExcludedCollections...)
	set.Append(opts.Exclude...)
	set.Add(opts.JournalCollection)
	set.Add(opts.UserMarker)
	return set
}
