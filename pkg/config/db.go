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

package config

import (
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/pkg/db"
)

// DBConfig represents the startup store config.
type DBConfig struct {
	// BlockCacheSize is the size of the block cache of the startup store.
	//
	// The default value is 8388608, 8MB.
	BlockCacheSize int `toml:"block-cache-size" json:"block-cache-size"`
	// WriterBufferSize is the size of memory table of db.
	//
	// The default value is 4194304, 4MB.
	WriterBufferSize int `toml:"writer-buffer-size" json:"writer-buffer-size"`
	// Compression is the compression algorithm that is used by db.
	// Valid values are "none" or "snappy".
	//
	// The default value is "snappy".
	Compression string `toml:"compression" json:"compression"`
}

// NewDefaultDBConfig returns the default db config.
func NewDefaultDBConfig() *DBConfig {
	return &DBConfig{
		BlockCacheSize:   8 * 1024 * 1024,
		WriterBufferSize: 4 * 1024 * 1024,
		Compression:      "snappy",
	}
}

// ValidateAndAdjust validates and adjusts the db configuration
func (c *DBConfig) ValidateAndAdjust() error {
	if c.Compression != "none" && c.Compression != "snappy" {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs(
			"db.compression must be \"none\" or \"snappy\"")
	}
	if c.BlockCacheSize < 0 || c.WriterBufferSize < 0 {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs(
			"db sizes must not be negative")
	}
	return nil
}

// Options converts the config into store options.
func (c *DBConfig) Options() db.Options {
	return db.Options{
		BlockCacheSize: c.BlockCacheSize,
		WriteBuffer:    c.WriterBufferSize,
		Compression:    c.Compression,
	}
}
