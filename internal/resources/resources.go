/*
SPDX-License-Identifier: Apache-2.0

Copyright 2026 Project Shepherd

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package resources holds the canonical domain records Shepherd stores on disk
and their wire-form counterparts as the Rancher management API ships them.

Every kind exists in two shapes:

  - the canonical form: flat, server-managed noise stripped, the thing a
    human edits in the Git tree and the diff engine compares;
  - the wire form: nested metadata/spec mirroring the API schema.

Conversion is total in the canonical->wire direction and fails in the
wire->canonical direction only when a required field (metadata,
metadata.name, spec) is absent.
*/
package resources

import (
	"fmt"

	"github.com/projectshepherd/shepherd/internal/types"
)

// APIVersion is the apiVersion stamped on every wire-form object.
const APIVersion = "management.cattle.io/v3"

// Generate-name prefixes the server uses when a record is POSTed without a
// metadata.name.
const (
	ProjectGeneratePrefix = "p-"
	PRTBGeneratePrefix    = "prtb-"
)

// ConversionError reports a wire <-> canonical mapping failure. Field is the
// dot-notation path of the offending field.
type ConversionError struct {
	Kind   types.Kind
	Field  string
	Reason string
}

// Error keeps the message free of the kind prefix; callers that need the
// kind wrap the error or inspect the struct.
func (e *ConversionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid value for field %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("missing required field: %s", e.Field)
}

func missingField(kind types.Kind, field string) error {
	return &ConversionError{Kind: kind, Field: field}
}

// copyStringMap clones a map, preserving nil so round-trips stay identities.
func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
