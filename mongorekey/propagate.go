// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongorekey

import (
	"context"

	"github.com/samber/lo"
	"github.com/vulcanjs/mongo-rekey/common/log"
	"github.com/vulcanjs/mongo-rekey/common/refindex"
	"go.mongodb.org/mongo-driver/bson"
)

// Targets is the list of collections references are propagated into. It is
// never modified in place.
type Targets []string

// Without returns the targets other than name.
func (t Targets) Without(name string) Targets {
	return Targets(lo.Without(t, name))
}

// Renamed returns a copy of t with from replaced by to.
func (t Targets) Renamed(from, to string) Targets {
	return lo.Map(t, func(name string, _ int) string {
		if name == from {
			return to
		}
		return name
	})
}

// Propagator rewrites the references held by other collections to a
// document whose id changed.
type Propagator struct {
	Store Store

	// UseTextIndex answers lookups with a server-side text index instead
	// of an index built in memory.
	UseTextIndex bool

	// indexes holds the reference index of every target built so far.
	indexes map[string]refindex.Index
}

// NewPropagator returns a Propagator with no reference index built yet.
func NewPropagator(store Store, useTextIndex bool) *Propagator {
	return &Propagator{
		Store:        store,
		UseTextIndex: useTextIndex,
		indexes:      map[string]refindex.Index{},
	}
}

// Propagate replaces oldValue with newValue in the first matching field of
// every document of every target except current. It returns the number of
// fields updated. Failures on one target are logged and the next target is
// tried; only connectivity errors are returned.
func (p *Propagator) Propagate(ctx context.Context, targets Targets, current, oldValue, newValue string) (int, error) {
	total := 0
	for _, target := range targets.Without(current) {
		n, err := p.propagateTo(ctx, target, oldValue, newValue)
		total += n
		if err != nil {
			if IsFatal(err) {
				return total, err
			}
			log.Logvf(log.Always, "%v", &IndexOrSearchError{Collection: target, Err: err})
		}
	}
	return total, nil
}

func (p *Propagator) propagateTo(ctx context.Context, target, oldValue, newValue string) (int, error) {
	idx, err := p.index(ctx, target)
	if err != nil {
		return 0, err
	}

	refs, err := idx.Lookup(ctx, oldValue)
	if err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}
	log.Logvf(log.Info, "found %v reference(s) to %v in %v", len(refs), oldValue, target)

	updates := lo.Map(refs, func(ref refindex.Ref, _ int) FieldUpdate {
		return FieldUpdate{DocID: ref.DocID, Field: ref.Field, Value: newValue}
	})
	if _, err := p.Store.UpdateFields(ctx, target, updates); err != nil {
		// The index may no longer match the collection.
		p.Forget(target)
		return 0, err
	}

	for _, ref := range refs {
		idx.Update(ref, oldValue, newValue)
		log.Logvf(log.DebugLow, "updated %v.%v field %v from %v to %v", target, ref.DocID, ref.Field, oldValue, newValue)
	}
	return len(refs), nil
}

// index returns the reference index of coll, building it on first use.
func (p *Propagator) index(ctx context.Context, coll string) (refindex.Index, error) {
	if idx, ok := p.indexes[coll]; ok {
		return idx, nil
	}
	idx, err := p.build(ctx, coll)
	if err != nil {
		return nil, err
	}
	p.indexes[coll] = idx
	return idx, nil
}

func (p *Propagator) build(ctx context.Context, coll string) (refindex.Index, error) {
	if p.UseTextIndex {
		if err := p.Store.EnsureTextIndex(ctx, coll); err != nil {
			return nil, err
		}
		return refindex.NewText(func(ctx context.Context, value string, fn refindex.DocFunc) error {
			return p.Store.TextSearch(ctx, coll, value, fn)
		}), nil
	}

	idx, err := refindex.BuildMemory(ctx, func(ctx context.Context, fn refindex.DocFunc) error {
		return p.Store.Each(ctx, coll, bson.D{}, fn)
	})
	if err != nil {
		return nil, err
	}
	log.Logvf(log.DebugLow, "indexed %v document(s) of %v", idx.Docs(), coll)
	return idx, nil
}

// Forget drops the reference index of coll. It must be called once the
// documents of coll have new ids.
func (p *Propagator) Forget(coll string) {
	delete(p.indexes, coll)
}
