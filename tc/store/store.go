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

// Package store persists the startup configuration of every controller and the
// autosave flag in an embedded leveldb.
package store

import (
	"bytes"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/vtnc/pkg/db"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/cache"
	"github.com/pingcap/vtnc/tc/model"
	"go.uber.org/zap"
)

const (
	dirName = "startup"

	startupPrefix = "startup/"
	keyAutosave   = "meta/autosave"
	keySavedAt    = "meta/saved-at"
	keyCount      = "meta/object-count"
)

// Store is the startup configuration store.
type Store struct {
	// mu serializes Save and Clear, a save is a delete-then-put of the whole
	// startup range.
	mu sync.Mutex
	db db.DB
}

// Open opens the store under dataDir.
func Open(dataDir string, opts db.Options) (*Store, error) {
	ldb, err := db.OpenLevelDB(filepath.Join(dataDir, dirName), opts)
	if err != nil {
		return nil, cerrors.WrapError(cerrors.ErrStartupStoreFailed, err)
	}
	return New(ldb), nil
}

// New creates a store on an opened db. The store owns it from now on.
func New(d db.DB) *Store {
	return &Store{db: d}
}

// Close closes the underlying db.
func (s *Store) Close() error {
	return cerrors.WrapError(cerrors.ErrStartupStoreFailed, s.db.Close())
}

func nodeKey(controller string, node model.ConfigNode) []byte {
	return []byte(startupPrefix + controller + "/" + node.KeyType.String() + ":" + node.Key)
}

func controllerOf(key []byte) string {
	rest := key[len(startupPrefix):]
	if i := bytes.IndexByte(rest, '/'); i >= 0 {
		return string(rest[:i])
	}
	return string(rest)
}

// prefixEnd returns the smallest key greater than every key with the prefix.
func prefixEnd(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}

// Save replaces the startup configuration with the given key-trees. The write
// is atomic.
func (s *Store) Save(trees map[string]*cache.KeyTree, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.Batch(0)
	if err := s.deleteStartupLocked(batch); err != nil {
		return err
	}
	count := 0
	for controller, tree := range trees {
		var marshalErr error
		tree.Ascend(func(node model.ConfigNode) bool {
			value, err := json.Marshal(node)
			if err != nil {
				marshalErr = errors.Trace(err)
				return false
			}
			batch.Put(nodeKey(controller, node), value)
			count++
			return true
		})
		if marshalErr != nil {
			return cerrors.WrapError(cerrors.ErrStartupStoreFailed, marshalErr)
		}
	}
	batch.Put([]byte(keySavedAt), []byte(strconv.FormatInt(at.UnixNano(), 10)))
	batch.Put([]byte(keyCount), []byte(strconv.Itoa(count)))
	if err := batch.Commit(); err != nil {
		return cerrors.WrapError(cerrors.ErrStartupStoreFailed, err)
	}
	log.Info("startup configuration saved",
		zap.Int("controllers", len(trees)), zap.Int("objects", count))
	return nil
}

// Clear deletes the startup configuration. The autosave flag is kept.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.Batch(0)
	if err := s.deleteStartupLocked(batch); err != nil {
		return err
	}
	batch.Delete([]byte(keySavedAt))
	batch.Delete([]byte(keyCount))
	if err := batch.Commit(); err != nil {
		return cerrors.WrapError(cerrors.ErrStartupStoreFailed, err)
	}
	log.Info("startup configuration cleared")
	return nil
}

func (s *Store) deleteStartupLocked(batch db.Batch) error {
	iter := s.db.Iterator([]byte(startupPrefix), prefixEnd(startupPrefix))
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		_ = iter.Release()
		return cerrors.WrapError(cerrors.ErrStartupStoreFailed, err)
	}
	return cerrors.WrapError(cerrors.ErrStartupStoreFailed, iter.Release())
}

// Load reads the startup configuration back, one key-tree per controller.
func (s *Store) Load() (map[string]*cache.KeyTree, error) {
	builders := make(map[string]*cache.Builder)
	iter := s.db.Iterator([]byte(startupPrefix), prefixEnd(startupPrefix))
	for iter.Next() {
		var node model.ConfigNode
		if err := json.Unmarshal(iter.Value(), &node); err != nil {
			_ = iter.Release()
			return nil, cerrors.WrapError(cerrors.ErrStartupStoreFailed, err)
		}
		controller := controllerOf(iter.Key())
		b, ok := builders[controller]
		if !ok {
			b = cache.NewBuilder()
			builders[controller] = b
		}
		b.Add(node)
	}
	if err := iter.Error(); err != nil {
		_ = iter.Release()
		return nil, cerrors.WrapError(cerrors.ErrStartupStoreFailed, err)
	}
	if err := iter.Release(); err != nil {
		return nil, cerrors.WrapError(cerrors.ErrStartupStoreFailed, err)
	}

	trees := make(map[string]*cache.KeyTree, len(builders))
	for controller, b := range builders {
		tree, err := b.Build()
		if err != nil {
			return nil, cerrors.WrapError(cerrors.ErrStartupStoreFailed, err)
		}
		trees[controller] = tree
	}
	return trees, nil
}

// Controllers returns the names of the controllers present in the startup
// configuration, sorted.
func (s *Store) Controllers() ([]string, error) {
	trees, err := s.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(trees))
	for name := range trees {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Status reports whether a startup configuration exists.
func (s *Store) Status() (model.StartupStatus, error) {
	raw, ok, err := s.db.Get([]byte(keySavedAt))
	if err != nil {
		return model.StartupStatus{}, cerrors.WrapError(cerrors.ErrStartupStoreFailed, err)
	}
	if !ok {
		return model.StartupStatus{}, nil
	}
	nanos, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return model.StartupStatus{}, cerrors.WrapError(cerrors.ErrStartupStoreFailed, err)
	}
	status := model.StartupStatus{Present: true, SavedAt: time.Unix(0, nanos)}
	raw, ok, err = s.db.Get([]byte(keyCount))
	if err != nil {
		return model.StartupStatus{}, cerrors.WrapError(cerrors.ErrStartupStoreFailed, err)
	}
	if ok {
		if status.ObjectCount, err = strconv.Atoi(string(raw)); err != nil {
			return model.StartupStatus{}, cerrors.WrapError(cerrors.ErrStartupStoreFailed, err)
		}
	}
	return status, nil
}

// Autosave returns the persisted autosave flag, false when never set.
func (s *Store) Autosave() (bool, error) {
	raw, ok, err := s.db.Get([]byte(keyAutosave))
	if err != nil {
		return false, cerrors.WrapError(cerrors.ErrStartupStoreFailed, err)
	}
	return ok && string(raw) == "1", nil
}

// SetAutosave persists the autosave flag.
func (s *Store) SetAutosave(enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	batch := s.db.Batch(1)
	batch.Put([]byte(keyAutosave), []byte(value))
	return cerrors.WrapError(cerrors.ErrStartupStoreFailed, batch.Commit())
}

// CollectMetrics exports the db statistics.
func (s *Store) CollectMetrics() {
	s.db.CollectMetrics(dirName)
}
