/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package version holds build-time identifiers, overridable via -ldflags.
package version

// Version, Commit and BuildDate are meant to be set with -ldflags
// "-X github.com/aledro/docreaderd/internal/version.Version=...". They default
// to "dev" values for local builds.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// String renders a single-line identifier suitable for logs and health responses.
func String() string {
	return Version + " (" + Commit + ", " + BuildDate + ")"
}
