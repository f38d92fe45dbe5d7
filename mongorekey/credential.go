// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongorekey

import (
	"github.com/pkg/errors"
	"github.com/vulcanjs/mongo-rekey/common/bsonutil"
	"go.mongodb.org/mongo-driver/bson"
)

// A bcrypt modular crypt string is "$2b$10$" followed by 22 characters of
// salt and 31 of hash.
const (
	bcryptPrefixLen = 7
	bcryptSaltEnd   = bcryptPrefixLen + 22
)

// Where Meteor accounts keep the bcrypt password of a user.
var credentialPath = []string{"services", "password", "bcrypt"}

// Credential is a bcrypt password split into its parts.
type Credential struct {
	Prefix string
	Salt   string
	Hash   string
}

// String returns the combined bcrypt string.
func (c Credential) String() string {
	return c.Prefix + c.Salt + c.Hash
}

// Fields returns the salt and hash fields to stage on the user document.
func (c Credential) Fields() bson.D {
	return bson.D{
		{Key: "salt", Value: c.Salt},
		{Key: "hash", Value: c.Hash},
	}
}

// SplitCredential splits a bcrypt string at its fixed offsets.
func SplitCredential(bcrypt string) (Credential, error) {
	if len(bcrypt) < bcryptSaltEnd {
		return Credential{}, errors.Wrapf(ErrMissingCredential, "bcrypt string is %v bytes long", len(bcrypt))
	}
	return Credential{
		Prefix: bcrypt[:bcryptPrefixLen],
		Salt:   bcrypt[bcryptPrefixLen:bcryptSaltEnd],
		Hash:   bcrypt[bcryptSaltEnd:],
	}, nil
}

// LegacyCredential reads and splits the bcrypt password of a user document.
func LegacyCredential(user bson.D) (Credential, error) {
	v, ok := bsonutil.Lookup(user, credentialPath...)
	if !ok {
		return Credential{}, ErrMissingCredential
	}
	bcrypt, ok := v.(string)
	if !ok {
		return Credential{}, errors.Wrapf(ErrMissingCredential, "bcrypt field holds a %T", v)
	}
	return SplitCredential(bcrypt)
}
