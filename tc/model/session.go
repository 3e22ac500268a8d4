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

package model

import (
	"fmt"
	"strconv"
	"strings"

	cerrors "github.com/pingcap/vtnc/pkg/errors"
)

// SessionID identifies a client session.
type SessionID uint32

// ConfigID is the token handed out on a successful config acquire. A commit
// must present it, a mismatch means the lock was lost in the meantime.
type ConfigID uint64

// InvalidConfigID is never handed out.
const InvalidConfigID ConfigID = 0

// ConfigMode is the exclusion mode held by a config session.
type ConfigMode int

// Config modes.
const (
	ModeNone ConfigMode = iota
	ModeGlobal
	ModePartial
	ModeForce
)

func (m ConfigMode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeGlobal:
		return "global"
	case ModePartial:
		return "partial"
	case ModeForce:
		return "force"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// PartialScope is the part of the configuration tree locked by a partial session.
type PartialScope int

// Partial scopes.
const (
	ScopeNone PartialScope = iota
	ScopeReal
	ScopeVirtual
	ScopeVTN
)

func (s PartialScope) String() string {
	switch s {
	case ScopeNone:
		return "none"
	case ScopeReal:
		return "real"
	case ScopeVirtual:
		return "virtual"
	case ScopeVTN:
		return "vtn"
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// ParsePartialScope parses "real", "virtual" or "vtn". An empty string is ScopeNone.
func ParsePartialScope(s string) (PartialScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ScopeNone, nil
	case "real":
		return ScopeReal, nil
	case "virtual":
		return ScopeVirtual, nil
	case "vtn":
		return ScopeVTN, nil
	}
	return ScopeNone, cerrors.ErrInvalidOption.GenWithStackByArgs("unknown partial scope " + s)
}

// LockScope is what a config session holds. For ModeGlobal and ModeForce the
// scope fields are ignored.
type LockScope struct {
	Mode  ConfigMode
	Scope PartialScope
	// VTN is the vtn name when Scope is ScopeVTN.
	VTN string
}

// Validate checks the scope fields are consistent with the mode.
func (l LockScope) Validate() error {
	switch l.Mode {
	case ModeGlobal, ModeForce:
		return nil
	case ModePartial:
		switch l.Scope {
		case ScopeReal, ScopeVirtual:
			return nil
		case ScopeVTN:
			if l.VTN == "" {
				return cerrors.ErrInvalidOption.GenWithStackByArgs("vtn scope without vtn name")
			}
			return nil
		}
		return cerrors.ErrInvalidOption.GenWithStackByArgs("partial mode without scope")
	}
	return cerrors.ErrInvalidOption.GenWithStackByArgs("mode " + l.Mode.String())
}

// ConflictsWith returns true if two sessions holding l and o can not coexist.
func (l LockScope) ConflictsWith(o LockScope) bool {
	if l.Mode != ModePartial || o.Mode != ModePartial {
		return true
	}
	switch l.Scope {
	case ScopeReal:
		return o.Scope == ScopeReal
	case ScopeVirtual:
		return o.Scope == ScopeVirtual || o.Scope == ScopeVTN
	case ScopeVTN:
		return o.Scope == ScopeVirtual || (o.Scope == ScopeVTN && o.VTN == l.VTN)
	}
	return true
}

// Allows returns true if a session holding l may change the node.
func (l LockScope) Allows(node ConfigNode) bool {
	if l.Mode != ModePartial {
		return true
	}
	switch l.Scope {
	case ScopeReal:
		return !node.KeyType.IsVirtual()
	case ScopeVirtual:
		return node.KeyType.IsVirtual()
	case ScopeVTN:
		return node.KeyType.IsVirtual() && node.VTNName() == l.VTN
	}
	return false
}

func (l LockScope) String() string {
	switch {
	case l.Mode != ModePartial:
		return l.Mode.String()
	case l.Scope == ScopeVTN:
		return "partial/vtn:" + l.VTN
	}
	return "partial/" + l.Scope.String()
}

// ConfigSession is a session holding a config lock.
type ConfigSession struct {
	SessionID SessionID
	Lock      LockScope
	ConfigID  ConfigID
}

// SessionIDString formats a session id.
func SessionIDString(id SessionID) string {
	return strconv.FormatUint(uint64(id), 10)
}
