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

	"github.com/google/btree"
	"github.com/pingcap/errors"
	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/model"
)

const defaultDegree = 16

// lessNode orders nodes by key, so that an ascending walk visits every node
// after its parent. Nodes sharing a key are ordered by key type.
func lessNode(a, b model.ConfigNode) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	return a.KeyType < b.KeyType
}

// KeyTree holds the configuration objects known on one controller.
// Every node but the top-level ones has its parent in the tree.
// It is not thread-safe. Nodes returned by it must not be modified.
type KeyTree struct {
	tree *btree.BTreeG[model.ConfigNode]
}

// NewKeyTree returns an empty KeyTree.
func NewKeyTree() *KeyTree {
	return &KeyTree{tree: btree.NewG(defaultDegree, lessNode)}
}

// Len returns the number of nodes.
func (t *KeyTree) Len() int {
	return t.tree.Len()
}

// Get returns the node of the given type and key.
func (t *KeyTree) Get(kt model.KeyType, key string) (model.ConfigNode, bool) {
	return t.tree.Get(model.ConfigNode{KeyType: kt, Key: key})
}

// Has returns true if the node of the given type and key is in the tree.
func (t *KeyTree) Has(kt model.KeyType, key string) bool {
	return t.tree.Has(model.ConfigNode{KeyType: kt, Key: key})
}

// Put inserts or replaces a node. It fails if the parent of the node is missing.
func (t *KeyTree) Put(node model.ConfigNode) error {
	if err := node.Validate(); err != nil {
		return errors.Trace(err)
	}
	if parent := node.Parent(); parent.KeyType != model.KeyTypeRoot && !t.tree.Has(parent) {
		return cerrors.ErrOrphanConfigNode.GenWithStackByArgs(node, parent)
	}
	t.tree.ReplaceOrInsert(node.Clone())
	return nil
}

// Delete removes a node together with all of its descendants, and returns the
// removed nodes, children before parents.
func (t *KeyTree) Delete(kt model.KeyType, key string) []model.ConfigNode {
	root, ok := t.Get(kt, key)
	if !ok {
		return nil
	}
	removed := append(t.Descendants(kt, key), root)
	sort.SliceStable(removed, func(i, j int) bool {
		return removed[i].KeyType.Depth() > removed[j].KeyType.Depth()
	})
	for _, n := range removed {
		t.tree.Delete(n)
	}
	return removed
}

// Descendants returns every node below the given one, parents before children.
func (t *KeyTree) Descendants(kt model.KeyType, key string) []model.ConfigNode {
	var nodes []model.ConfigNode
	depth := kt.Depth()
	// every key below "a/b" is in ["a/b/", "a/b0").
	lo := model.ConfigNode{Key: key + model.KeySeparator}
	hi := model.ConfigNode{Key: key + string(rune(model.KeySeparator[0]+1))}
	t.tree.AscendRange(lo, hi, func(n model.ConfigNode) bool {
		if ancestorType(n.KeyType, depth) == kt {
			nodes = append(nodes, n)
		}
		return true
	})
	return nodes
}

// Children returns the direct children of the given node.
func (t *KeyTree) Children(kt model.KeyType, key string) []model.ConfigNode {
	var nodes []model.ConfigNode
	for _, n := range t.Descendants(kt, key) {
		if n.KeyType.Parent() == kt && n.ParentKey() == key {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Ascend calls fn for every node, parents before children, until fn returns false.
func (t *KeyTree) Ascend(fn func(model.ConfigNode) bool) {
	t.tree.Ascend(fn)
}

// Nodes returns all nodes, parents before children.
func (t *KeyTree) Nodes() []model.ConfigNode {
	nodes := make([]model.ConfigNode, 0, t.tree.Len())
	t.tree.Ascend(func(n model.ConfigNode) bool {
		nodes = append(nodes, n)
		return true
	})
	return nodes
}

// Clone returns a copy of the tree. The copy is lazy, both trees may be
// modified afterwards without affecting each other.
func (t *KeyTree) Clone() *KeyTree {
	return &KeyTree{tree: t.tree.Clone()}
}

func ancestorType(kt model.KeyType, depth int) model.KeyType {
	for kt.Depth() > depth {
		kt = kt.Parent()
	}
	return kt
}

// Builder collects nodes in any order and builds a KeyTree out of them.
// It owns the collected nodes until Build hands them to the tree.
type Builder struct {
	nodes []model.ConfigNode
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add collects a node.
func (b *Builder) Add(nodes ...model.ConfigNode) {
	b.nodes = append(b.nodes, nodes...)
}

// Len returns the number of collected nodes.
func (b *Builder) Len() int {
	return len(b.nodes)
}

// Build inserts the collected nodes top-down. It fails on the first node whose
// parent was not collected.
func (b *Builder) Build() (*KeyTree, error) {
	nodes := b.nodes
	b.nodes = nil
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].KeyType.Depth() < nodes[j].KeyType.Depth()
	})
	tree := NewKeyTree()
	for _, n := range nodes {
		if err := tree.Put(n); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return tree, nil
}
