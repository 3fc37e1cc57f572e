// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package column holds the core data-model primitives of spec.md §3:
// typed, role-tagged, unit-tagged columns and the append-only string
// encodings they are built against.
package column

// Role classifies what a Column is used for by the rest of the engine.
type Role int

const (
	RoleCategorical Role = iota
	RoleDiscrete
	RoleNumerical
	RoleJoinKey
	RoleTarget
	RoleTimeStamp
	RoleText
	RoleUnused
)

func (r Role) String() string {
	switch r {
	case RoleCategorical:
		return "categorical"
	case RoleDiscrete:
		return "discrete"
	case RoleNumerical:
		return "numerical"
	case RoleJoinKey:
		return "join_key"
	case RoleTarget:
		return "target"
	case RoleTimeStamp:
		return "time_stamp"
	case RoleText:
		return "text"
	case RoleUnused:
		return "unused"
	default:
		return "unknown"
	}
}
