// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dataframe

import "github.com/relboost/engine/internal/errs"

// Subview is the result of DataFrame.CreateSubview: a View plus the
// resolved join-key and (optional) time-stamp columns nominated for
// one join edge. Per spec.md §4.1, this is what the matching algorithm
// consumes on both the population and peripheral side of an edge.
type Subview struct {
	View View

	JoinKeyName string
	joinKey     []int32

	HasTimeStamp  bool
	TimeStampName string
	timeStamp     []float64

	HasUpperTimeStamp  bool
	UpperTimeStampName string
	upperTimeStamp     []float64
}

// JoinKeyAt returns the join-key code at view-position i.
func (s Subview) JoinKeyAt(i int) int32 { return s.joinKey[s.View.Rows[i]] }

// TimeStampAt returns the time-stamp value at view-position i. Only
// valid if HasTimeStamp.
func (s Subview) TimeStampAt(i int) float64 { return s.timeStamp[s.View.Rows[i]] }

// UpperTimeStampAt returns the upper-time-stamp bound at view-position
// i. Only valid if HasUpperTimeStamp.
func (s Subview) UpperTimeStampAt(i int) float64 { return s.upperTimeStamp[s.View.Rows[i]] }

// CreateSubview returns a Subview over df restricted (for matching
// purposes) to the nominated join-key column joinKey, and optionally a
// time-stamp column and an upper-time-stamp column. The backing
// DataFrame's other columns remain fully accessible through
// Subview.View for aggregation; only the matching-relevant columns are
// resolved eagerly here.
func (df *DataFrame) CreateSubview(joinKey, timeStamp, upperTimeStamp string) (Subview, error) {
	jkCol, ok := df.Int32Column(joinKey)
	if !ok {
		return Subview{}, errs.WithPath(errs.SchemaError, "DATAFRAME/SUBVIEW", df.Name+"."+joinKey,
			"join key column not found")
	}

	sv := Subview{
		View:        NewView(df),
		JoinKeyName: joinKey,
		joinKey:     jkCol.Values,
	}

	if timeStamp != "" {
		tsCol, ok := df.FloatColumn(timeStamp)
		if !ok {
			return Subview{}, errs.WithPath(errs.SchemaError, "DATAFRAME/SUBVIEW", df.Name+"."+timeStamp,
				"time stamp column not found")
		}
		sv.HasTimeStamp = true
		sv.TimeStampName = timeStamp
		sv.timeStamp = tsCol.Values
	}

	if upperTimeStamp != "" {
		utsCol, ok := df.FloatColumn(upperTimeStamp)
		if !ok {
			return Subview{}, errs.WithPath(errs.SchemaError, "DATAFRAME/SUBVIEW", df.Name+"."+upperTimeStamp,
				"upper time stamp column not found")
		}
		sv.HasUpperTimeStamp = true
		sv.UpperTimeStampName = upperTimeStamp
		sv.upperTimeStamp = utsCol.Values
	}

	return sv, nil
}
