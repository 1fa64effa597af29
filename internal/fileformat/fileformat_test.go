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

package fileformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	DisplayName string            `json:"displayName"`
	Count       int               `json:"count,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

func TestParse(t *testing.T) {
	testCases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "yaml", want: YAML},
		{in: "JSON", want: JSON},
		{in: "toml", want: TOML},
		{in: "xml", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFromPath(t *testing.T) {
	testCases := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{path: "c-local/c-local.cluster.yaml", want: YAML},
		{path: "roles/rt-view.rt.yml", want: YAML},
		{path: "p-abc/p-abc.project.json", want: JSON},
		{path: "p-abc/prtb-x.prtb.toml", want: TOML},
		{path: "README.md", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			got, err := FromPath(tc.path)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	in := sample{
		DisplayName: "Team A",
		Count:       3,
		Labels:      map[string]string{"env": "prod"},
	}

	for _, format := range []Format{YAML, JSON, TOML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := format.Marshal(in)
			require.NoError(t, err)

			var out sample
			require.NoError(t, format.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestKeysFollowJSONTags(t *testing.T) {
	in := sample{DisplayName: "Team A"}

	for _, format := range []Format{YAML, JSON, TOML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := format.Marshal(in)
			require.NoError(t, err)
			assert.Contains(t, string(data), "displayName")
		})
	}
}

func TestDecodePicksCodecFromExtension(t *testing.T) {
	var out sample
	require.NoError(t, Decode("x.project.yaml", []byte("displayName: Team A\n"), &out))
	assert.Equal(t, "Team A", out.DisplayName)

	require.NoError(t, Decode("x.project.json", []byte(`{"displayName":"Team B"}`), &out))
	assert.Equal(t, "Team B", out.DisplayName)

	assert.Error(t, Decode("x.project.ini", nil, &out))
}
