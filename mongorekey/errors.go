// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongorekey

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vulcanjs/mongo-rekey/common/db"
)

var (
	// ErrNotFound means the document to rewrite is gone or already migrated.
	ErrNotFound = errors.New("document not found")

	// ErrMissingCredential means a user document has no usable legacy bcrypt
	// password.
	ErrMissingCredential = errors.New("no legacy bcrypt credential")
)

// IndexOrSearchError is returned when the reference index of a target
// collection cannot be built or queried, or its updates cannot be written.
type IndexOrSearchError struct {
	Collection string
	Err        error
}

func (e *IndexOrSearchError) Error() string {
	return fmt.Sprintf("reference search in %v failed: %v", e.Collection, e.Err)
}

func (e *IndexOrSearchError) Unwrap() error {
	return e.Err
}

// StoreConnectivityError is returned when the server cannot be reached. It
// aborts the run.
type StoreConnectivityError struct {
	Err error
}

func (e *StoreConnectivityError) Error() string {
	return fmt.Sprintf("lost connection to the server: %v", e.Err)
}

func (e *StoreConnectivityError) Unwrap() error {
	return e.Err
}

// PostDeleteInsertError is returned when a document was deleted under its
// legacy id but could not be inserted again. Its copy stays in the journal.
type PostDeleteInsertError struct {
	Collection string
	LegacyID   string
	Err        error
}

func (e *PostDeleteInsertError) Error() string {
	return fmt.Sprintf("document %v.%v was deleted but could not be reinserted (run with --recover): %v",
		e.Collection, e.LegacyID, e.Err)
}

func (e *PostDeleteInsertError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must stop the run.
func IsFatal(err error) bool {
	var connErr *StoreConnectivityError
	return errors.As(err, &connErr)
}

// classify turns driver errors caused by a lost server into
// StoreConnectivityError. Other errors are returned unchanged.
func classify(err error) error {
	if err == nil || IsFatal(err) {
		return err
	}
	if db.IsConnectionError(err) {
		return &StoreConnectivityError{Err: err}
	}
	return err
}
