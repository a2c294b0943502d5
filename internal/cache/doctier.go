/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cache

import (
	"sync"

	"github.com/aledro/docreaderd/internal/domain"
)

// docTier is the unbounded metadata tier: one small entry per open
// document, guarded by a plain RWMutex with short critical sections.
type docTier struct {
	mu sync.RWMutex
	m  map[string]*domain.ParsedDocument
}

func newDocTier() *docTier {
	return &docTier{m: make(map[string]*domain.ParsedDocument)}
}

func (t *docTier) put(id string, doc *domain.ParsedDocument) {
	t.mu.Lock()
	t.m[id] = doc
	t.mu.Unlock()
}

func (t *docTier) get(id string) (*domain.ParsedDocument, bool) {
	t.mu.RLock()
	doc, ok := t.m[id]
	t.mu.RUnlock()
	return doc, ok
}

func (t *docTier) remove(id string) {
	t.mu.Lock()
	delete(t.m, id)
	t.mu.Unlock()
}

func (t *docTier) len() int {
	t.mu.RLock()
	n := len(t.m)
	t.mu.RUnlock()
	return n
}
