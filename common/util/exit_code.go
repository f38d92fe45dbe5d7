// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import "fmt"

// Exit codes. A run that skipped or lost documents still exits with
// ExitClean; the log is the only per-document report.
const (
	ExitClean      int = 0
	ExitFailure    int = 1
	ExitBadOptions int = 3
)

// ShortUsage returns the one-line pointer printed after an options error.
func ShortUsage(tool string) string {
	return fmt.Sprintf("try '%v --help' for more information", tool)
}
