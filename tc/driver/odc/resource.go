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

package odc

import (
	"net/url"
	"strings"

	"github.com/pingcap/vtnc/tc/model"
)

// resource describes how objects of one key type are laid out in the REST
// tree of the controller.
type resource struct {
	keyType    model.KeyType
	collection string
	element    string
	nameField  string
}

var resources = map[model.KeyType]resource{
	model.KeyTypeVTN:        {model.KeyTypeVTN, "vtns", "vtn", "name"},
	model.KeyTypeVBridge:    {model.KeyTypeVBridge, "vbridges", "vbridge", "name"},
	model.KeyTypeVBrIf:      {model.KeyTypeVBrIf, "interfaces", "interface", "name"},
	model.KeyTypeVBrVlanMap: {model.KeyTypeVBrVlanMap, "vlanmaps", "vlanmap", "id"},
	model.KeyTypeVTerminal:  {model.KeyTypeVTerminal, "vterminals", "vterminal", "name"},
	model.KeyTypeVTermIf:    {model.KeyTypeVTermIf, "interfaces", "interface", "name"},
}

// chain returns the key types from the top-level ancestor down to kt.
func chain(kt model.KeyType) []model.KeyType {
	var kts []model.KeyType
	for ; kt != model.KeyTypeRoot; kt = kt.Parent() {
		kts = append(kts, kt)
	}
	for i, j := 0, len(kts)-1; i < j; i, j = i+1, j-1 {
		kts[i], kts[j] = kts[j], kts[i]
	}
	return kts
}

// objectPath returns the path of a node, "/vtns/v/vbridges/b" for a vbridge.
func objectPath(kt model.KeyType, key string) string {
	var sb strings.Builder
	names := strings.Split(key, model.KeySeparator)
	for i, t := range chain(kt) {
		sb.WriteString("/")
		sb.WriteString(resources[t].collection)
		sb.WriteString("/")
		sb.WriteString(url.PathEscape(names[i]))
	}
	return sb.String()
}

// collectionPath returns the path listing the objects of kt below parentKey.
func collectionPath(kt model.KeyType, parentKey string) string {
	prefix := ""
	if parent := kt.Parent(); parent != model.KeyTypeRoot {
		prefix = objectPath(parent, parentKey)
	}
	return prefix + "/" + resources[kt].collection
}
