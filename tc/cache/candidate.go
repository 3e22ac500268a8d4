// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"sort"
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/vtnc/tc/model"
)

type changeKey struct {
	controller string
	keyType    model.KeyType
	key        string
}

// Candidate is the list of changes staged by one config session.
// Changes to the same object are merged, in order of first appearance.
type Candidate struct {
	changes []model.ConfigChange
	index   map[changeKey]int
}

// NewCandidate returns an empty candidate.
func NewCandidate() *Candidate {
	return &Candidate{index: make(map[changeKey]int)}
}

// Stage validates and merges the changes into the candidate. Nothing is
// staged if any change is invalid.
func (c *Candidate) Stage(changes ...model.ConfigChange) error {
	for _, ch := range changes {
		if err := ch.Validate(); err != nil {
			return errors.Trace(err)
		}
	}
	for _, ch := range changes {
		c.merge(ch)
	}
	return nil
}

func (c *Candidate) merge(ch model.ConfigChange) {
	ch.Node = ch.Node.Clone()
	k := changeKey{controller: ch.Controller, keyType: ch.Node.KeyType, key: ch.Node.Key}
	i, ok := c.index[k]
	if !ok {
		c.index[k] = len(c.changes)
		c.changes = append(c.changes, ch)
		return
	}
	prev := &c.changes[i]
	switch {
	case prev.Op == model.OpCreate && ch.Op == model.OpUpdate:
		prev.Node = ch.Node
	case prev.Op == model.OpCreate && ch.Op == model.OpDelete:
		// the object never existed, drop both.
		c.remove(i)
	case prev.Op == model.OpDelete && ch.Op == model.OpCreate:
		prev.Op, prev.Node = model.OpUpdate, ch.Node
	default:
		*prev = ch
	}
}

func (c *Candidate) remove(i int) {
	c.changes = append(c.changes[:i], c.changes[i+1:]...)
	c.index = make(map[changeKey]int, len(c.changes))
	for j, ch := range c.changes {
		c.index[changeKey{controller: ch.Controller, keyType: ch.Node.KeyType, key: ch.Node.Key}] = j
	}
}

// Len returns the number of staged changes.
func (c *Candidate) Len() int {
	return len(c.changes)
}

// Changes returns a copy of the staged changes.
func (c *Candidate) Changes() []model.ConfigChange {
	return append([]model.ConfigChange(nil), c.changes...)
}

// GroupByController splits changes per controller, keeping their order.
// The returned names are sorted.
func GroupByController(changes []model.ConfigChange) ([]string, map[string][]model.ConfigChange) {
	groups := make(map[string][]model.ConfigChange)
	for _, ch := range changes {
		groups[ch.Controller] = append(groups[ch.Controller], ch)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, groups
}

// CandidateStore keeps the candidate of every config session.
type CandidateStore struct {
	mu         sync.Mutex
	candidates map[model.SessionID]*Candidate
}

// NewCandidateStore returns an empty store.
func NewCandidateStore() *CandidateStore {
	return &CandidateStore{candidates: make(map[model.SessionID]*Candidate)}
}

// Stage merges changes into the candidate of the session.
func (s *CandidateStore) Stage(id model.SessionID, changes ...model.ConfigChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		c = NewCandidate()
	}
	if err := c.Stage(changes...); err != nil {
		return errors.Trace(err)
	}
	s.candidates[id] = c
	return nil
}

// Peek returns a copy of the changes staged by the session.
func (s *CandidateStore) Peek(id model.SessionID) []model.ConfigChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.candidates[id]; ok {
		return c.Changes()
	}
	return nil
}

// Discard drops the candidate of the session.
func (s *CandidateStore) Discard(id model.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.candidates, id)
}
