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

// Package version carries the build identity stamped into API requests and
// Git signatures.
package version

import "fmt"

// ClientName identifies this daemon to the management API and in commit
// signatures.
const ClientName = "shepherd"

// Version is overridden at build time via -ldflags.
var Version = "dev"

// UserAgent returns "<client>/<version>".
func UserAgent() string {
	return fmt.Sprintf("%s/%s", ClientName, Version)
}
