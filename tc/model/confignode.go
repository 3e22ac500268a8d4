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
	"strings"

	cerrors "github.com/pingcap/vtnc/pkg/errors"
)

// KeySeparator joins the names along the path of a key.
const KeySeparator = "/"

// MaxNameLength is the maximum length of a controller name and of every key segment.
const MaxNameLength = 31

// ConfigNode is one configuration object. Key is the path of names from the
// top-level ancestor, "vtn1/vbr1/if1" for a vbridge interface.
type ConfigNode struct {
	KeyType KeyType           `json:"key_type"`
	Key     string            `json:"key"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// NewConfigNode builds a node from its path of names.
func NewConfigNode(kt KeyType, attrs map[string]string, names ...string) ConfigNode {
	return ConfigNode{KeyType: kt, Key: strings.Join(names, KeySeparator), Attrs: attrs}
}

// Names splits the key into its path segments.
func (n ConfigNode) Names() []string {
	if n.Key == "" {
		return nil
	}
	return strings.Split(n.Key, KeySeparator)
}

// Name is the last segment of the key.
func (n ConfigNode) Name() string {
	if i := strings.LastIndex(n.Key, KeySeparator); i >= 0 {
		return n.Key[i+1:]
	}
	return n.Key
}

// ParentKey returns the key of the parent object, "" for top-level objects.
func (n ConfigNode) ParentKey() string {
	if i := strings.LastIndex(n.Key, KeySeparator); i >= 0 {
		return n.Key[:i]
	}
	return ""
}

// Parent returns the identity of the parent object with no attributes.
func (n ConfigNode) Parent() ConfigNode {
	return ConfigNode{KeyType: n.KeyType.Parent(), Key: n.ParentKey()}
}

// VTNName returns the vtn a virtual object belongs to, "" otherwise.
func (n ConfigNode) VTNName() string {
	if !n.KeyType.IsVirtual() {
		return ""
	}
	if i := strings.Index(n.Key, KeySeparator); i >= 0 {
		return n.Key[:i]
	}
	return n.Key
}

// Validate checks the key matches the depth of the key type.
func (n ConfigNode) Validate() error {
	if n.KeyType == KeyTypeRoot || !n.KeyType.valid() {
		return cerrors.ErrInvalidArgument.GenWithStackByArgs(
			fmt.Sprintf("key type %s can not be configured", n.KeyType))
	}
	names := n.Names()
	if len(names) != n.KeyType.Depth() {
		return cerrors.ErrInvalidArgument.GenWithStackByArgs(
			fmt.Sprintf("key %q of %s must have %d segments", n.Key, n.KeyType, n.KeyType.Depth()))
	}
	for _, name := range names {
		if name == "" || len(name) > MaxNameLength {
			return cerrors.ErrInvalidArgument.GenWithStackByArgs(
				fmt.Sprintf("invalid segment %q in key %q", name, n.Key))
		}
	}
	return nil
}

// Clone returns a deep copy.
func (n ConfigNode) Clone() ConfigNode {
	c := n
	if n.Attrs != nil {
		c.Attrs = make(map[string]string, len(n.Attrs))
		for k, v := range n.Attrs {
			c.Attrs[k] = v
		}
	}
	return c
}

func (n ConfigNode) String() string {
	return n.KeyType.String() + ":" + n.Key
}

// ConfigOp is the kind of a configuration change.
type ConfigOp int

// Config operations.
const (
	OpCreate ConfigOp = iota + 1
	OpUpdate
	OpDelete
)

func (o ConfigOp) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (o ConfigOp) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *ConfigOp) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "create":
		*o = OpCreate
	case "update":
		*o = OpUpdate
	case "delete":
		*o = OpDelete
	default:
		return cerrors.ErrInvalidArgument.GenWithStackByArgs("unknown config operation " + string(text))
	}
	return nil
}

// ConfigChange is one staged change targeted at one controller.
type ConfigChange struct {
	Controller string     `json:"controller"`
	Op         ConfigOp   `json:"op"`
	Node       ConfigNode `json:"node"`
}

// Validate checks the change is well formed.
func (c ConfigChange) Validate() error {
	if c.Controller == "" {
		return cerrors.ErrInvalidArgument.GenWithStackByArgs("change without controller")
	}
	switch c.Op {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return cerrors.ErrInvalidArgument.GenWithStackByArgs("change without operation")
	}
	return c.Node.Validate()
}
