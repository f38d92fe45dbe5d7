// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	InvalidDBChars         = "/\\. \"\x00$"
	InvalidCollectionChars = "$\x00"
	DefaultHost            = "localhost"

	maxDBNameLen = 63
)

// SplitHostArg extracts the replica set name from a --host value of the form
// "setName/host1,host2" and returns the seed list and the set name.
func SplitHostArg(connString string) ([]string, string) {
	slashIndex := strings.Index(connString, "/")
	if slashIndex == -1 {
		return strings.Split(connString, ","), ""
	}

	setName := connString[:slashIndex]
	return strings.Split(connString[slashIndex+1:], ","), setName
}

// BuildURI assembles a mongodb:// connection string from --host and --port.
func BuildURI(host, port string) string {
	seedlist, setName := SplitHostArg(host)

	for i := range seedlist {
		if seedlist[i] == "" {
			seedlist[i] = DefaultHost
		}
		if port != "" && !strings.Contains(seedlist[i], ":") {
			seedlist[i] = seedlist[i] + ":" + port
		}
	}

	uri := "mongodb://" + strings.Join(seedlist, ",") + "/"
	if setName != "" {
		uri += "?replicaSet=" + setName
	}
	return uri
}

var userInfoRegexp = regexp.MustCompile(`^(mongodb(?:\+srv)?://)[^/?]*@`)

// SanitizeURI redacts any credentials embedded in a connection string so it
// can be logged.
func SanitizeURI(uri string) string {
	return userInfoRegexp.ReplaceAllString(uri, "${1}[**REDACTED**]@")
}

// ValidateDBName returns an error if the database name is not usable.
func ValidateDBName(database string) error {
	if len(database) == 0 {
		return fmt.Errorf("database name cannot be empty")
	}
	if len(database) > maxDBNameLen {
		return fmt.Errorf("db name '%v' is longer than %v characters", database, maxDBNameLen)
	}
	if strings.ContainsAny(database, InvalidDBChars) {
		return fmt.Errorf(`illegal character in db name '%v'; db names cannot contain any of %q`, database, InvalidDBChars)
	}
	return nil
}

// ValidateCollectionName returns an error if the collection name is not usable.
func ValidateCollectionName(collection string) error {
	if len(collection) == 0 {
		return fmt.Errorf("collection name cannot be empty")
	}
	if strings.ContainsAny(collection, InvalidCollectionChars) {
		return fmt.Errorf(`illegal character in collection name '%v'; collection names cannot contain any of %q`, collection, InvalidCollectionChars)
	}
	return nil
}

// IsSystemCollection reports whether the collection is server-owned.
func IsSystemCollection(collection string) bool {
	return strings.HasPrefix(collection, "system.")
}
