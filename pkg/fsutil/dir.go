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

package fsutil

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/pingcap/errors"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
)

// IsDirAndWritable checks a given path is directory and writable
func IsDirAndWritable(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return cerrors.WrapError(cerrors.ErrCheckDirWritable, err)
	}
	if !st.IsDir() {
		return cerrors.WrapError(cerrors.ErrCheckDirWritable, errors.Errorf("%s is not a directory", path))
	}
	return IsDirWritable(path)
}

// IsDirWritable checks if a dir is writable, return error nil means it is writable
func IsDirWritable(dir string) error {
	f := filepath.Join(dir, ".writable.test")
	if err := os.WriteFile(f, []byte(""), 0o600); err != nil {
		return cerrors.WrapError(cerrors.ErrCheckDirWritable, err)
	}
	return cerrors.WrapError(cerrors.ErrCheckDirWritable, os.Remove(f))
}

// EnsureDir creates dir when missing and checks it is writable.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cerrors.WrapError(cerrors.ErrCheckDirWritable, err)
	}
	return IsDirAndWritable(dir)
}

// GetDiskAvailableSpace returns the available space of dir in MB.
// The caller should guarantee that dir is a valid directory.
func GetDiskAvailableSpace(dir string) (uint64, error) {
	fs := syscall.Statfs_t{}
	if err := syscall.Statfs(dir, &fs); err != nil {
		return 0, cerrors.WrapError(cerrors.ErrGetDiskAvailableSpace, err)
	}
	available := fs.Bavail * uint64(fs.Bsize)
	return available / 1024 / 1024, nil
}
