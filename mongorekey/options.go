// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongorekey

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vulcanjs/mongo-rekey/common/options"
	"github.com/vulcanjs/mongo-rekey/common/util"
)

var Usage = `<options> <connection-string>

Replace the legacy string _id of every document of a database with a
generated ObjectID, and rewrite the fields of other collections that
referenced the legacy id.

Connection strings must begin with mongodb:// or mongodb+srv://.`

type Options struct {
	*options.ToolOptions
	*RekeyOptions
}

// RekeyOptions defines the set of options for running the migration.
type RekeyOptions struct {
	UserCollection    string   `long:"userCollection" value-name:"<collection-name>" default:"users" description:"collection holding Meteor accounts"`
	UserMarker        string   `long:"userMarker" value-name:"<collection-name>" default:"vulcanusers" description:"name the user collection is renamed to once migrated"`
	Exclude           []string `long:"exclude" value-name:"<collection-name>" description:"collection to leave untouched (may be specified multiple times)"`
	TextIndex         bool     `long:"textIndex" description:"find references with a server-side text index on every field instead of an in-memory index"`
	DryRun            bool     `long:"dryRun" description:"list the collections and document counts that would be migrated, without writing"`
	Sweep             bool     `long:"sweep" description:"only repair references left behind in documents holding the same legacy id twice"`
	SweepSource       string   `long:"sweepSource" value-name:"<collection-name>" default:"vulcanusers" description:"migrated collection whose legacy ids are swept for"`
	SweepTargets      []string `long:"sweepTarget" value-name:"<collection-name>" default:"letters" default:"publications" description:"collection to sweep (may be specified multiple times)"`
	Recover           bool     `long:"recover" description:"only reinsert documents left deleted by an interrupted run"`
	JournalCollection string   `long:"journalCollection" value-name:"<collection-name>" default:"mongorekey.journal" description:"collection holding copies of documents being rewritten"`
	BatchSize         int      `long:"batchSize" value-name:"<count>" default:"1000" hidden:"true" description:"number of reference updates sent per bulk write"`
}

// Name returns a human-readable group name for rekey options.
func (*RekeyOptions) Name() string {
	return "rekey"
}

// ParseOptions reads the command line into Options.
func ParseOptions(rawArgs []string, versionStr, gitCommit string) (Options, error) {
	opts := options.New("mongorekey", versionStr, gitCommit, Usage, true,
		options.EnabledOptions{Auth: true, Connection: true, Namespace: true, URI: true})

	rekeyOpts := &RekeyOptions{}
	opts.AddOptions(rekeyOpts)

	extraArgs, err := opts.ParseArgs(rawArgs)
	if err != nil {
		return Options{}, err
	}

	if len(extraArgs) > 0 {
		return Options{}, fmt.Errorf("error parsing positional arguments: " +
			"provide only one MongoDB connection string. " +
			"Connection strings must begin with mongodb:// or mongodb+srv:// schemes",
		)
	}

	return Options{opts, rekeyOpts}, nil
}

// Validate checks the options that only make sense together. It is not
// part of ParseOptions so that --help and --version work alone.
func (opts Options) Validate() error {
	if opts.DB == "" {
		return fmt.Errorf("a database is required, set it with --db or in the connection string")
	}
	if err := util.ValidateDBName(opts.DB); err != nil {
		return errors.Wrap(err, "invalid --db")
	}

	for _, named := range []struct{ flag, name string }{
		{"--userCollection", opts.UserCollection},
		{"--userMarker", opts.UserMarker},
		{"--sweepSource", opts.SweepSource},
		{"--journalCollection", opts.JournalCollection},
	} {
		if err := util.ValidateCollectionName(named.name); err != nil {
			return errors.Wrapf(err, "invalid %v", named.flag)
		}
	}
	for _, name := range opts.SweepTargets {
		if err := util.ValidateCollectionName(name); err != nil {
			return errors.Wrap(err, "invalid --sweepTarget")
		}
	}

	if opts.UserCollection == opts.UserMarker {
		return fmt.Errorf("--userCollection and --userMarker must differ")
	}
	if opts.Sweep && opts.Recover {
		return fmt.Errorf("--sweep and --recover cannot be used together")
	}
	if opts.DryRun && (opts.Sweep || opts.Recover) {
		return fmt.Errorf("--dryRun only applies to a migration")
	}
	if opts.BatchSize < 1 {
		return fmt.Errorf("--batchSize must be positive")
	}
	return nil
}
