// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package db implements the connection to MongoDB and the small set of
// collection helpers the tool builds on.
package db

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vulcanjs/mongo-rekey/common/log"
	"github.com/vulcanjs/mongo-rekey/common/options"
	"github.com/vulcanjs/mongo-rekey/common/util"
	"github.com/youmark/pkcs8"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Default port for integration tests
const (
	DefaultTestPort = "33333"
)

// SessionProvider owns the single client used for the whole run.
type SessionProvider struct {
	sync.Mutex

	// the master client used for operations
	client *mongo.Client
}

// Returns a mongo.Client connected to the database server for which the
// session provider is configured.
func (sp *SessionProvider) GetSession() (*mongo.Client, error) {
	sp.Lock()
	defer sp.Unlock()

	if sp.client == nil {
		return nil, errors.New("SessionProvider already closed")
	}

	return sp.client, nil
}

// Close closes the master session in the connection pool
func (sp *SessionProvider) Close() {
	sp.Lock()
	defer sp.Unlock()
	if sp.client != nil {
		_ = sp.client.Disconnect(context.Background())
		sp.client = nil
	}
}

// DB provides a database with the default read preference
func (sp *SessionProvider) DB(name string) *mongo.Database {
	return sp.client.Database(name)
}

// NewSessionProvider constructs a session provider, including a connected client.
func NewSessionProvider(opts options.ToolOptions) (*SessionProvider, error) {
	clientopt, err := configureClient(opts)
	if err != nil {
		return nil, fmt.Errorf("error configuring the connector: %v", err)
	}
	client, err := mongo.Connect(context.Background(), clientopt)
	if err != nil {
		return nil, err
	}
	err = client.Ping(context.Background(), nil)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("could not connect to server: %v", err)
	}
	log.Logvf(log.DebugLow, "connected to %v", util.SanitizeURI(opts.URI.ConnectionString))

	return &SessionProvider{client: client}, nil
}

// configure the client according to the options set in the uri and in the
// provided ToolOptions, with ToolOptions having precedence.
func configureClient(opts options.ToolOptions) (*mopt.ClientOptions, error) {
	if opts.URI == nil || opts.URI.ConnectionString == "" {
		// Tests construct options by hand and generally don't carry a URI.
		if err := opts.NormalizeOptionsAndURI(); err != nil {
			return nil, err
		}
	}

	clientopt := mopt.Client().ApplyURI(opts.URI.ConnectionString)
	clientopt.SetAppName(opts.AppName)

	if opts.Connection != nil {
		clientopt.SetConnectTimeout(time.Duration(opts.Timeout) * time.Second)
		if opts.Connection.ServerSelectionTimeout > 0 {
			clientopt.SetServerSelectionTimeout(time.Duration(opts.Connection.ServerSelectionTimeout) * time.Second)
		}
	}
	if opts.Direct && len(opts.URI.Hosts) == 1 {
		clientopt.SetDirect(true)
	}
	if opts.ReplicaSetName != "" {
		clientopt.SetReplicaSet(opts.ReplicaSetName)
	}

	// Writes are acknowledged by a majority of the replica set.
	clientopt.SetWriteConcern(writeconcern.Majority())

	if opts.Auth != nil && opts.Auth.Username != "" {
		cred := mopt.Credential{
			Username:      opts.Auth.Username,
			Password:      opts.Auth.Password,
			AuthSource:    opts.GetAuthenticationDatabase(),
			AuthMechanism: opts.Auth.Mechanism,
		}
		// Technically, an empty password is possible, but the tools don't have the
		// means to easily distinguish and so require a non-empty password.
		if cred.Password != "" {
			cred.PasswordSet = true
		}
		clientopt.SetAuth(cred)
	}

	if opts.SSL != nil && opts.UseSSL {
		tlsConfig := &tls.Config{}
		if opts.SSLAllowInvalidCert || opts.TLSInsecure {
			tlsConfig.InsecureSkipVerify = true
		}
		if opts.SSLPEMKeyFile != "" {
			if err := addClientCertFromFile(tlsConfig, opts.SSLPEMKeyFile, opts.SSLPEMKeyPassword); err != nil {
				return nil, fmt.Errorf("error configuring client, can't load client certificate: %v", err)
			}
		}
		if opts.SSLCAFile != "" {
			if err := addCACertsFromFile(tlsConfig, opts.SSLCAFile); err != nil {
				return nil, fmt.Errorf("error configuring client, can't load CA file: %v", err)
			}
		}
		clientopt.SetTLSConfig(tlsConfig)
	}

	return clientopt, clientopt.Validate()
}

// addClientCertFromFile adds a client certificate to the configuration given
// a path to a PEM file holding both the certificate and its private key.
func addClientCertFromFile(cfg *tls.Config, clientFile, keyPasswd string) error {
	data, err := os.ReadFile(clientFile)
	if err != nil {
		return err
	}

	var certBlock, keyBlock []byte
	for remaining := data; ; {
		var block *pem.Block
		block, remaining = pem.Decode(remaining)
		if block == nil {
			break
		}

		switch {
		case block.Type == "CERTIFICATE":
			certBlock = append(certBlock, pem.EncodeToMemory(block)...)
		case block.Type == "ENCRYPTED PRIVATE KEY":
			if keyPasswd == "" {
				return fmt.Errorf("no password provided to decrypt private key")
			}
			// The pkcs8 package only handles the PKCS #5 v2.0 scheme.
			decrypted, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(keyPasswd))
			if err != nil {
				return err
			}
			keyBytes, err := x509.MarshalPKCS8PrivateKey(decrypted)
			if err != nil {
				return err
			}
			var encoded bytes.Buffer
			if err := pem.Encode(&encoded, &pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes}); err != nil {
				return err
			}
			keyBlock = encoded.Bytes()
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			keyBlock = pem.EncodeToMemory(block)
		}
	}

	if len(certBlock) == 0 {
		return fmt.Errorf("failed to find CERTIFICATE")
	}
	if len(keyBlock) == 0 {
		return fmt.Errorf("failed to find PRIVATE KEY")
	}

	cert, err := tls.X509KeyPair(certBlock, keyBlock)
	if err != nil {
		return err
	}
	cfg.Certificates = append(cfg.Certificates, cert)
	return nil
}

// addCACertsFromFile adds root CA certificate and all the intermediate
// certificates in the same file to the configuration.
func addCACertsFromFile(cfg *tls.Config, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	if cfg.RootCAs == nil {
		cfg.RootCAs = x509.NewCertPool()
	}

	if !cfg.RootCAs.AppendCertsFromPEM(data) {
		return fmt.Errorf("SSL trusted server certificates file does not contain any valid certificates. File: `%v`", file)
	}
	return nil
}
