// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"strings"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	ErrLostConnection     = "lost connection to server"
	ErrNoReachableServers = "no reachable servers"
	ErrServerSelection    = "server selection error"
	ErrNsNotFound         = "ns not found"

	ErrNamespaceNotFoundCode = 26
	ErrDuplicateKeyCode      = 11000
)

// IsConnectionError reports whether err means the server can no longer be
// reached. Any other error is local to the operation that returned it.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsNetworkError(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}

	msg := err.Error()
	for _, s := range []string{ErrLostConnection, ErrNoReachableServers, ErrServerSelection} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// IsNamespaceNotFound reports whether err is the server's "ns not found".
func IsNamespaceNotFound(err error) bool {
	if err == nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == ErrNamespaceNotFoundCode {
		return true
	}
	return strings.Contains(err.Error(), ErrNsNotFound)
}

// IsDuplicateKey reports whether err carries a duplicate key write error.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
