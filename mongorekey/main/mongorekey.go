// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Main package for the mongorekey tool.
package main

import (
	"context"
	"os"

	"github.com/vulcanjs/mongo-rekey/common/db"
	"github.com/vulcanjs/mongo-rekey/common/log"
	"github.com/vulcanjs/mongo-rekey/common/util"
	"github.com/vulcanjs/mongo-rekey/mongorekey"
)

var (
	VersionStr = "built-without-version-string"
	GitCommit  = "build-without-git-commit"
)

func main() {
	os.Exit(run())
}

func run() int {
	// initialize command-line opts
	opts, err := mongorekey.ParseOptions(os.Args[1:], VersionStr, GitCommit)
	if err != nil {
		log.Logvf(log.Always, "error parsing command line options: %s", err.Error())
		log.Logvf(log.Always, util.ShortUsage("mongorekey"))
		return util.ExitBadOptions
	}

	// print help, if specified
	if opts.PrintHelp(false) {
		return util.ExitClean
	}

	// print version, if specified
	if opts.PrintVersion() {
		return util.ExitClean
	}

	log.SetVerbosity(opts.Verbosity)

	// verify uri options and log them
	opts.URI.LogUnsupportedOptions()

	if err := opts.Validate(); err != nil {
		log.Logvf(log.Always, "%v", err)
		log.Logvf(log.Always, util.ShortUsage("mongorekey"))
		return util.ExitBadOptions
	}

	// create a session provider to connect to the db
	sessionProvider, err := db.NewSessionProvider(*opts.ToolOptions)
	if err != nil {
		log.Logvf(log.Always, "error connecting to host: %v", err)
		return util.ExitFailure
	}
	defer sessionProvider.Close()

	store := mongorekey.NewMongoStore(sessionProvider, opts.DB, opts.BatchSize)
	rekey := mongorekey.New(opts, store)

	if _, err := rekey.Run(context.Background()); err != nil {
		log.Logvf(log.Always, "Failed: %v", err)
		return util.ExitFailure
	}
	return util.ExitClean
}
