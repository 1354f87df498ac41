// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for
// security-critical values.
//
// Source IDs become path segments in the report store, so they must be
// validated before any filesystem operation to prevent path traversal.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// sourceIDPattern matches path-safe source identifiers: letters, digits,
// dots, underscores, and hyphens. Max length: 64 characters.
var sourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// ValidateSourceID validates a source identifier for use as a report
// store path segment.
//
// Valid IDs:
//   - 1-64 characters
//   - Letters A-Z, a-z
//   - Digits 0-9
//   - Dots (.), underscores (_), hyphens (-)
//
// Dot-only names are rejected separately because "." and ".." match the
// character class but still traverse directories.
func ValidateSourceID(id string) error {
	if id == "" {
		return fmt.Errorf("source id cannot be empty")
	}
	if strings.Trim(id, ".") == "" {
		return fmt.Errorf("invalid source id %q: dot-only names are reserved", id)
	}
	if !sourceIDPattern.MatchString(id) {
		return fmt.Errorf("invalid source id %q (must be 1-64 alphanumeric chars, dots, underscores, or hyphens)", id)
	}
	return nil
}

// ValidateSourceIDs validates multiple source identifiers. Returns an
// error listing all invalid IDs if any fail validation.
func ValidateSourceIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateSourceID(id); err != nil {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid source ids: %s", strings.Join(invalid, ", "))
	}
	return nil
}
