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
	"os"
	"strconv"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

// Options tunes the leveldb instance.
type Options struct {
	BlockCacheSize int
	WriteBuffer    int
	Compression    string
}

func (o Options) toLevelDB() *opt.Options {
	option := &opt.Options{
		BlockCacheCapacity: o.BlockCacheSize,
		WriteBuffer:        o.WriteBuffer,
		Compression:        opt.NoCompression,
	}
	if o.Compression == "snappy" {
		option.Compression = opt.SnappyCompression
	}
	return option
}

// OpenLevelDB opens a leveldb under dir, creating the directory if needed.
func OpenLevelDB(dir string, opts Options) (DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Trace(err)
	}
	db, err := leveldb.OpenFile(dir, opts.toLevelDB())
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Info("leveldb opened", zap.String("dir", dir))
	return &levelDB{db: db}, nil
}

// OpenLevelDBWithStorage opens a leveldb on top of stor, mostly a
// storage.NewMemStorage in tests.
func OpenLevelDBWithStorage(stor storage.Storage, opts Options) (DB, error) {
	db, err := leveldb.Open(stor, opts.toLevelDB())
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &levelDB{db: db}, nil
}

type levelDB struct {
	db *leveldb.DB
}

var _ DB = (*levelDB)(nil)

func (p *levelDB) Get(key []byte) ([]byte, bool, error) {
	value, err := p.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	return value, true, nil
}

func (p *levelDB) Iterator(lowerBound, upperBound []byte) Iterator {
	return leveldbIter{Iterator: p.db.NewIterator(&util.Range{
		Start: lowerBound,
		Limit: upperBound,
	}, nil)}
}

func (p *levelDB) Batch(cap int) Batch {
	return leveldbBatch{
		db:    p.db,
		Batch: leveldb.MakeBatch(cap),
	}
}

func (p *levelDB) Close() error {
	return errors.Trace(p.db.Close())
}

func (p *levelDB) CollectMetrics(id string) {
	stats := leveldb.DBStats{}
	if err := p.db.Stats(&stats); err != nil {
		log.Panic("leveldb error", zap.Error(err), zap.String("db", id))
	}
	dbSnapshotGauge.WithLabelValues(id).Set(float64(stats.AliveSnapshots))
	dbIteratorGauge.WithLabelValues(id).Set(float64(stats.AliveIterators))
	dbReadBytes.WithLabelValues(id).Set(float64(stats.IORead))
	dbWriteBytes.WithLabelValues(id).Set(float64(stats.IOWrite))
	dbWriteDelayCount.WithLabelValues(id).Set(float64(stats.WriteDelayCount))
	dbWriteDelayDuration.WithLabelValues(id).Set(stats.WriteDelayDuration.Seconds())
	for level, count := range stats.LevelTablesCounts {
		dbLevelCount.WithLabelValues(strconv.Itoa(level), id).Set(float64(count))
	}
}

type leveldbBatch struct {
	db *leveldb.DB
	*leveldb.Batch
}

var _ Batch = (*leveldbBatch)(nil)

func (b leveldbBatch) Put(key, value []byte) {
	b.Batch.Put(key, value)
}

func (b leveldbBatch) Delete(key []byte) {
	b.Batch.Delete(key)
}

func (b leveldbBatch) Commit() error {
	return errors.Trace(b.db.Write(b.Batch, &opt.WriteOptions{Sync: true}))
}

func (b leveldbBatch) Count() uint32 {
	return uint32(b.Batch.Len())
}

func (b leveldbBatch) Reset() {
	b.Batch.Reset()
}

type leveldbIter struct {
	iterator.Iterator
}

var _ Iterator = (*leveldbIter)(nil)

func (i leveldbIter) Valid() bool {
	return i.Iterator.Valid()
}

func (i leveldbIter) Seek(key []byte) bool {
	return i.Iterator.Seek(key)
}

func (i leveldbIter) Next() bool {
	return i.Iterator.Next()
}

func (i leveldbIter) Key() []byte {
	return i.Iterator.Key()
}

func (i leveldbIter) Value() []byte {
	return i.Iterator.Value()
}

func (i leveldbIter) Error() error {
	return errors.Trace(i.Iterator.Error())
}

func (i leveldbIter) Release() error {
	i.Iterator.Release()
	return nil
}
