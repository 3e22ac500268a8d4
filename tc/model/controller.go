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
	"regexp"

	cerrors "github.com/pingcap/vtnc/pkg/errors"
)

// ControllerType selects the driver serving a controller.
type ControllerType string

// Supported controller types.
const (
	ControllerTypeODC    ControllerType = "odc"
	ControllerTypeMemory ControllerType = "memory"
)

// ConnectionStatus is the connection state of a controller.
type ConnectionStatus int32

// Connection status.
const (
	ConnectionDown ConnectionStatus = iota
	ConnectionUp
)

func (s ConnectionStatus) String() string {
	if s == ConnectionUp {
		return "up"
	}
	return "down"
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AuditResult is the outcome of the last audit of a controller.
type AuditResult int32

// Audit results.
const (
	AuditNone AuditResult = iota
	AuditSuccess
	AuditCancelled
	AuditFailure
)

func (r AuditResult) String() string {
	switch r {
	case AuditSuccess:
		return "success"
	case AuditCancelled:
		return "cancelled"
	case AuditFailure:
		return "failure"
	}
	return "none"
}

// MarshalText implements encoding.TextMarshaler.
func (r AuditResult) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

var controllerNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ControllerInfo is the user supplied configuration of a controller.
type ControllerInfo struct {
	Name        string         `toml:"name" json:"name"`
	Type        ControllerType `toml:"type" json:"type"`
	Address     string         `toml:"address" json:"address"`
	Port        int            `toml:"port" json:"port"`
	Username    string         `toml:"username" json:"username,omitempty"`
	Password    string         `toml:"password" json:"password,omitempty"`
	Version     string         `toml:"version" json:"version,omitempty"`
	Description string         `toml:"description" json:"description,omitempty"`
}

// Validate checks the controller name and type.
func (c *ControllerInfo) Validate() error {
	if len(c.Name) == 0 || len(c.Name) > MaxNameLength || !controllerNameRe.MatchString(c.Name) {
		return cerrors.ErrInvalidArgument.GenWithStackByArgs(
			fmt.Sprintf("invalid controller name %q", c.Name))
	}
	if c.Type == "" {
		return cerrors.ErrInvalidArgument.GenWithStackByArgs(
			fmt.Sprintf("controller %s has no type", c.Name))
	}
	if c.Port < 0 || c.Port > 65535 {
		return cerrors.ErrInvalidArgument.GenWithStackByArgs(
			fmt.Sprintf("controller %s has invalid port %d", c.Name, c.Port))
	}
	return nil
}

// Redacted returns a copy without the password.
func (c ControllerInfo) Redacted() ControllerInfo {
	if c.Password != "" {
		c.Password = "******"
	}
	return c
}
