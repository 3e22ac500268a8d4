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
	"strings"

	cerrors "github.com/pingcap/vtnc/pkg/errors"
)

// KeyType is a category of configuration object.
type KeyType int

// All key types. KeyTypeRoot is the implicit parent of every top-level type.
const (
	KeyTypeRoot KeyType = iota
	KeyTypeVTN
	KeyTypeVBridge
	KeyTypeVBrIf
	KeyTypeVBrVlanMap
	KeyTypeVTerminal
	KeyTypeVTermIf
	KeyTypeBoundary
	keyTypeCount
)

type keyTypeNode struct {
	name    string
	parent  KeyType
	virtual bool
}

// keyTypeTable is the containment hierarchy, indexed by key type.
var keyTypeTable = [keyTypeCount]keyTypeNode{
	KeyTypeRoot:       {name: "ROOT", parent: KeyTypeRoot},
	KeyTypeVTN:        {name: "VTN", parent: KeyTypeRoot, virtual: true},
	KeyTypeVBridge:    {name: "VBRIDGE", parent: KeyTypeVTN, virtual: true},
	KeyTypeVBrIf:      {name: "VBR_IF", parent: KeyTypeVBridge, virtual: true},
	KeyTypeVBrVlanMap: {name: "VBR_VLANMAP", parent: KeyTypeVBridge, virtual: true},
	KeyTypeVTerminal:  {name: "VTERMINAL", parent: KeyTypeVTN, virtual: true},
	KeyTypeVTermIf:    {name: "VTERM_IF", parent: KeyTypeVTerminal, virtual: true},
	KeyTypeBoundary:   {name: "BOUNDARY", parent: KeyTypeRoot},
}

var (
	topDownOrder  []KeyType
	bottomUpOrder []KeyType
	childrenOf    [keyTypeCount][]KeyType
)

func init() {
	for kt := KeyTypeVTN; kt < keyTypeCount; kt++ {
		p := keyTypeTable[kt].parent
		childrenOf[p] = append(childrenOf[p], kt)
	}
	// breadth first from the root, so every type comes after its parent.
	queue := []KeyType{KeyTypeRoot}
	for len(queue) > 0 {
		kt := queue[0]
		queue = queue[1:]
		if kt != KeyTypeRoot {
			topDownOrder = append(topDownOrder, kt)
		}
		queue = append(queue, childrenOf[kt]...)
	}
	bottomUpOrder = make([]KeyType, len(topDownOrder))
	for i, kt := range topDownOrder {
		bottomUpOrder[len(topDownOrder)-1-i] = kt
	}
}

func (k KeyType) String() string {
	if !k.valid() {
		return "UNKNOWN"
	}
	return keyTypeTable[k].name
}

func (k KeyType) valid() bool {
	return k >= KeyTypeRoot && k < keyTypeCount
}

// Parent returns the parent key type. The parent of the root is the root.
func (k KeyType) Parent() KeyType {
	if !k.valid() {
		return KeyTypeRoot
	}
	return keyTypeTable[k].parent
}

// Children returns the direct child key types.
func (k KeyType) Children() []KeyType {
	if !k.valid() {
		return nil
	}
	return append([]KeyType(nil), childrenOf[k]...)
}

// IsVirtual returns true for the key types of the virtual network tree.
func (k KeyType) IsVirtual() bool {
	return k.valid() && keyTypeTable[k].virtual
}

// Depth is the number of key segments identifying an object of this type.
func (k KeyType) Depth() int {
	d := 0
	for kt := k; kt != KeyTypeRoot && kt.valid(); kt = kt.Parent() {
		d++
	}
	return d
}

// TopDown returns all key types except the root, parents before children.
// Creates and updates are applied in this order.
func TopDown() []KeyType {
	return append([]KeyType(nil), topDownOrder...)
}

// BottomUp returns all key types except the root, children before parents.
// Deletes are applied in this order.
func BottomUp() []KeyType {
	return append([]KeyType(nil), bottomUpOrder...)
}

// ParseKeyType parses a key type name such as "VBR_IF" or "vbr_if".
func ParseKeyType(s string) (KeyType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for kt := KeyTypeVTN; kt < keyTypeCount; kt++ {
		if keyTypeTable[kt].name == name {
			return kt, nil
		}
	}
	return KeyTypeRoot, cerrors.ErrInvalidArgument.GenWithStackByArgs("unknown key type " + s)
}

// MarshalText implements encoding.TextMarshaler.
func (k KeyType) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *KeyType) UnmarshalText(text []byte) error {
	kt, err := ParseKeyType(string(text))
	if err != nil {
		return err
	}
	*k = kt
	return nil
}
