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

package resources

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/projectshepherd/shepherd/internal/fileformat"
	"github.com/projectshepherd/shepherd/internal/types"
)

// identityFields is the loose decode target for recovering an identity from
// a stored record of any kind without committing to its full schema.
type identityFields struct {
	ID          string `json:"id"`
	Namespace   string `json:"namespace"`
	ClusterName string `json:"clusterName"`
}

// IdentityFromFile recovers the minimal identity (id, namespace, kind) of a
// stored record. Used by the delete phase, which only has the pre-deletion
// file contents the Git worker captured at HEAD. Falls back to the filename
// stem and parent directory when the record itself carries no id.
func IdentityFromFile(kind types.Kind, path string, contents []byte) (types.ObjectRef, error) {
	var fields identityFields
	if err := fileformat.Decode(path, contents, &fields); err != nil {
		return types.ObjectRef{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	ref := types.ObjectRef{Kind: kind, ID: fields.ID}
	switch kind {
	case types.KindProject:
		ref.Namespace = fields.ClusterName
	case types.KindPRTB:
		ref.Namespace = fields.Namespace
	}

	if ref.ID == "" {
		ref.ID = fileStem(path)
	}
	if ref.Namespace == "" {
		// The tree layout encodes the parent id in the path:
		// <cluster>/<project>/<prtb-id>.prtb.<ext> for bindings and
		// <cluster>/<project>/<project-id>.project.<ext> for projects.
		switch kind {
		case types.KindPRTB:
			ref.Namespace = dirName(filepath.Dir(path))
		case types.KindProject:
			ref.Namespace = dirName(filepath.Dir(filepath.Dir(path)))
		}
	}
	return ref, nil
}

func dirName(dir string) string {
	base := filepath.Base(dir)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return base
}

// fileStem strips the format extension and the type suffix:
// "prtb-alice.prtb.yaml" -> "prtb-alice".
func fileStem(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
