// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package testtype gates tests on environment variables so that unit tests
// run everywhere and integration tests only run against a live mongod.
package testtype

import (
	"os"
	"testing"
)

const (
	// UnitTestType runs tests with no external dependencies.
	UnitTestType = "TOOLS_TESTING_UNIT"

	// IntegrationTestType runs tests that need a mongod on
	// TOOLS_TESTING_MONGOD or localhost:33333.
	IntegrationTestType = "TOOLS_TESTING_INTEGRATION"

	// AuthTestType runs integration tests as the user named by
	// TOOLS_TESTING_AUTH_USERNAME.
	AuthTestType = "TOOLS_TESTING_AUTH"

	// SSLTestType runs integration tests over TLS.
	SSLTestType = "TOOLS_TESTING_SSL"
)

// HasTestType returns true if the test type's env var is set to a true value.
func HasTestType(testType string) bool {
	switch os.Getenv(testType) {
	case "", "0", "false", "no":
		return false
	}
	return true
}

// SkipUnlessTestType skips the current test unless the given test type is
// enabled.
func SkipUnlessTestType(t *testing.T, testType string) {
	t.Helper()
	if !HasTestType(testType) {
		t.SkipNow()
	}
}
