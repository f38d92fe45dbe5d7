// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package testutil implements functions for filtering and configuring tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vulcanjs/mongo-rekey/common/db"
	"github.com/vulcanjs/mongo-rekey/common/options"
	"github.com/vulcanjs/mongo-rekey/common/testtype"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	CreatedUserNameEnv     = "TOOLS_TESTING_AUTH_USERNAME"
	CreatedUserPasswordEnv = "TOOLS_TESTING_AUTH_PASSWORD"
)

const uriEnvVar = "TOOLS_TESTING_MONGOD"

// GetBareSession returns a mongo.Client from the environment or
// from a default host and port.
func GetBareSession() (*mongo.Client, error) {
	sessionProvider, _, err := GetBareSessionProvider()
	if err != nil {
		return nil, err
	}
	return sessionProvider.GetSession()
}

// GetBareSessionProvider returns a session provider from the environment or
// from a default host and port.
func GetBareSessionProvider() (*db.SessionProvider, *options.ToolOptions, error) {
	toolOptions, err := GetToolOptions()
	if err != nil {
		return nil, nil, fmt.Errorf(
			"error getting tool options to create a bare session provider: %w",
			err,
		)
	}

	sessionProvider, err := db.NewSessionProvider(*toolOptions)
	if err != nil {
		return nil, nil, err
	}

	return sessionProvider, toolOptions, nil
}

// GetToolOptions returns options pointing at TOOLS_TESTING_MONGOD, or at
// localhost on the default test port.
func GetToolOptions() (*options.ToolOptions, error) {
	var toolOptions *options.ToolOptions
	if uri := os.Getenv(uriEnvVar); uri != "" {
		opts := options.EnabledOptions{Auth: true, Connection: true, Namespace: true, URI: true}
		toolOptions = options.New("mongorekey", "", "", "", true, opts)

		_, err := toolOptions.ParseArgs([]string{"--uri=" + uri})
		if err != nil {
			return nil, fmt.Errorf(
				"could not create toolOptions with %#q from the %#q env var: %w",
				uri,
				uriEnvVar,
				err,
			)
		}
		return toolOptions, nil
	}

	ssl := GetSSLOptions()
	auth := GetAuthOptions()
	toolOptions = &options.ToolOptions{
		AppName: "mongorekey",
		SSL:     &ssl,
		Connection: &options.Connection{
			Host:    "localhost",
			Port:    db.DefaultTestPort,
			Timeout: 3,
		},
		Auth:      &auth,
		Verbosity: &options.Verbosity{},
		URI:       &options.URI{},
		Namespace: &options.Namespace{},
	}

	if err := toolOptions.NormalizeOptionsAndURI(); err != nil {
		return nil, err
	}
	return toolOptions, nil
}

// GetAuthOptions returns the credentials of the test user when auth tests
// are enabled.
func GetAuthOptions() options.Auth {
	if testtype.HasTestType(testtype.AuthTestType) {
		return options.Auth{
			Username: os.Getenv(CreatedUserNameEnv),
			Password: os.Getenv(CreatedUserPasswordEnv),
			Source:   "admin",
		}
	}
	return options.Auth{}
}

// GetSSLOptions returns the test client certificate settings when SSL tests
// are enabled.
func GetSSLOptions() options.SSL {
	if testtype.HasTestType(testtype.SSLTestType) {
		return options.SSL{
			UseSSL:        true,
			SSLCAFile:     "../db/testdata/ca-ia.pem",
			SSLPEMKeyFile: "../db/testdata/test-client.pem",
		}
	}
	return options.SSL{}
}

// TempDatabase returns a uniquely named database on the test server that is
// dropped when the test finishes.
func TempDatabase(t *testing.T) (*db.SessionProvider, *mongo.Database) {
	require := require.New(t)

	provider, _, err := GetBareSessionProvider()
	require.NoError(err, "can connect to the test server")

	name := "mongorekey_test_" + uuid.NewString()[:8]
	database := provider.DB(name)
	t.Cleanup(func() {
		if os.Getenv("TOOLS_TESTING_NO_CLEANUP") == "" {
			_ = database.Drop(context.Background())
		}
		provider.Close()
	})
	return provider, database
}
