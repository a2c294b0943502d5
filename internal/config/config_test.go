/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"testing"
)

func TestEnvOverridesRenderConcurrency(t *testing.T) {
	old := os.Getenv(EnvRenderConcurrency)
	_ = os.Setenv(EnvRenderConcurrency, "8")
	t.Cleanup(func() { _ = os.Setenv(EnvRenderConcurrency, old) })
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Cache.RenderConcurrency, 8; got != want {
		t.Fatalf("Cache.RenderConcurrency = %d, want %d", got, want)
	}
}

func TestEnvOverridesPostgresDSN(t *testing.T) {
	old := os.Getenv(EnvPostgresDSN)
	_ = os.Setenv(EnvPostgresDSN, "postgres://u:p@localhost/docreaderd")
	t.Cleanup(func() { _ = os.Setenv(EnvPostgresDSN, old) })
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Store.PostgresDSN, "postgres://u:p@localhost/docreaderd"; got != want {
		t.Fatalf("Store.PostgresDSN = %q, want %q", got, want)
	}
}

func TestMergeIncludesStorePaths(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Store.SQLitePath = "/tmp/custom.db"
	mergeInto(&dst, &src)
	if dst.Store.SQLitePath != "/tmp/custom.db" {
		t.Fatalf("Store.SQLitePath not merged, got %q", dst.Store.SQLitePath)
	}
}

func TestDefaultsMatchComponentBudgets(t *testing.T) {
	d := Defaults()
	if d.Cache.ParserCapacity != 50 || d.Cache.RendererCapacity != 50 {
		t.Fatalf("parser/renderer capacity defaults changed: %+v", d.Cache)
	}
	if d.Cache.RenderCapacity != 500 || d.Cache.StextCapacity != 1000 {
		t.Fatalf("render/stext capacity defaults changed: %+v", d.Cache)
	}
	if d.Cache.RenderConcurrency != 4 {
		t.Fatalf("render concurrency default changed: %d", d.Cache.RenderConcurrency)
	}
	if d.Timeouts.ParseMs != 30_000 || d.Timeouts.RenderMs != 30_000 {
		t.Fatalf("timeout defaults changed: %+v", d.Timeouts)
	}
}
