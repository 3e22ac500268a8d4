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

package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

func TestLevelDB(t *testing.T) {
	t.Parallel()

	db, err := OpenLevelDBWithStorage(storage.NewMemStorage(), Options{})
	require.NoError(t, err)
	defer db.Close()

	_, ok, err := db.Get([]byte("k1"))
	require.NoError(t, err)
	require.False(t, ok)

	batch := db.Batch(0)
	batch.Put([]byte("a/1"), []byte("v1"))
	batch.Put([]byte("a/2"), []byte("v2"))
	batch.Put([]byte("b/1"), []byte("v3"))
	require.Equal(t, uint32(3), batch.Count())
	require.NoError(t, batch.Commit())
	batch.Reset()
	require.Zero(t, batch.Count())

	value, ok, err := db.Get([]byte("a/2"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), value)

	iter := db.Iterator([]byte("a/"), []byte("a0"))
	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	require.NoError(t, iter.Error())
	require.NoError(t, iter.Release())
	require.Equal(t, []string{"a/1", "a/2"}, keys)

	batch.Delete([]byte("a/1"))
	require.NoError(t, batch.Commit())
	_, ok, err = db.Get([]byte("a/1"))
	require.NoError(t, err)
	require.False(t, ok)

	db.CollectMetrics("test")
}

func TestOpenLevelDBReopen(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "store")
	db, err := OpenLevelDB(dir, Options{Compression: "snappy"})
	require.NoError(t, err)
	batch := db.Batch(1)
	batch.Put([]byte("k"), []byte("v"))
	require.NoError(t, batch.Commit())
	require.NoError(t, db.Close())

	db, err = OpenLevelDB(dir, Options{})
	require.NoError(t, err)
	defer db.Close()
	value, ok, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), value)
}
