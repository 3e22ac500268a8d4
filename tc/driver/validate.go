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

package driver

import (
	"fmt"
	"strconv"

	cerrors "github.com/pingcap/vtnc/pkg/errors"
	"github.com/pingcap/vtnc/tc/model"
)

const (
	maxDescriptionLength = 63
	maxVlanID            = 4095
)

// ValidateNode checks the attributes every controller type has in common.
func ValidateNode(node model.ConfigNode) error {
	if len(node.Attrs["description"]) > maxDescriptionLength {
		return cerrors.ErrInvalidArgument.GenWithStackByArgs(
			fmt.Sprintf("description of %s is longer than %d", node, maxDescriptionLength))
	}
	if node.KeyType == model.KeyTypeVBrVlanMap {
		// the name of a vlan map is its vlan id, 0 maps untagged frames.
		id, err := strconv.Atoi(node.Name())
		if err != nil || id < 0 || id > maxVlanID {
			return cerrors.ErrInvalidArgument.GenWithStackByArgs(
				fmt.Sprintf("invalid vlan id %q", node.Name()))
		}
	}
	if v, ok := node.Attrs["admin-status"]; ok && v != "enable" && v != "disable" {
		return cerrors.ErrInvalidArgument.GenWithStackByArgs(
			fmt.Sprintf("invalid admin-status %q of %s", v, node))
	}
	return nil
}
