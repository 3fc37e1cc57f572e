// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ensemble

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/relboost/engine/internal/aggregation"
	"github.com/relboost/engine/internal/column"
	"github.com/relboost/engine/internal/errs"
	"github.com/relboost/engine/internal/tree"
)

// metadataFile records the byte order the encoding files were written
// with, per spec.md §6: readers detect it at open time and never
// swap, even when the host's own order differs.
const metadataFile = "meta.json"

type diskMeta struct {
	Endianness string `json:"endianness"` // "little" or "big"
}

// hostOrder reports this host's native byte order.
func hostOrder() binary.ByteOrder {
	if [2]byte(binary.NativeEndian.AppendUint16(nil, 1))[0] == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// wireSplit/wireNode/wireTree/wireEnsemble are obj.json's JSON shape:
// ordered trees {feature_index, root, update_rate}, each node
// {split, left, right, weight} with a single scalar weight and no
// intercept, and each split naming its peripheral table by name rather
// than by an edge index.
type wireSplit struct {
	DataUsed      string  `json:"data_used"`
	Aggregation   string  `json:"aggregation"`
	Column        string  `json:"column"`
	Key           string  `json:"key"`
	ColumnIndex   int     `json:"column_index"`
	Peripheral    string  `json:"peripheral"`
	IsCategorical bool    `json:"is_categorical"`
	IsNaNDummy    bool    `json:"is_nan_dummy"`
	Threshold     float64 `json:"threshold"`
	Categories    []int32 `json:"categories,omitempty"`
}

type wireNode struct {
	Split  *wireSplit `json:"split,omitempty"`
	Left   *wireNode  `json:"left,omitempty"`
	Right  *wireNode  `json:"right,omitempty"`
	Weight float64    `json:"weight"`
}

type wireTree struct {
	FeatureIndex int      `json:"feature_index"`
	Root         wireNode `json:"root"`
	UpdateRate   float64  `json:"update_rate"`
}

type wireEnsemble struct {
	Hyperparams       Hyperparams             `json:"hyperparams"`
	InitialPrediction float64                 `json:"initial_prediction"`
	Trees             []wireTree              `json:"trees"`
	SubEnsembles      map[string]wireEnsemble `json:"sub_ensembles,omitempty"`
}

func toWireSplit(s *tree.Split) *wireSplit {
	if s == nil {
		return nil
	}
	return &wireSplit{
		DataUsed: s.DataUsed.String(), Aggregation: s.Aggregation.String(), Column: s.Column,
		Key: s.Key, ColumnIndex: s.ColumnIndex, Peripheral: s.Peripheral,
		IsCategorical: s.IsCategorical, IsNaNDummy: s.IsNaNDummy,
		Threshold: s.Threshold, Categories: s.Categories,
	}
}

func fromWireSplit(w *wireSplit) (*tree.Split, error) {
	if w == nil {
		return nil, nil
	}
	d, err := aggregation.ParseInternalDataUsed(w.DataUsed)
	if err != nil {
		return nil, err
	}
	k, err := aggregation.Parse(w.Aggregation)
	if err != nil {
		return nil, err
	}
	return &tree.Split{
		DataUsed: d, Aggregation: k, Column: w.Column, Key: w.Key, ColumnIndex: w.ColumnIndex,
		Peripheral: w.Peripheral, IsCategorical: w.IsCategorical, IsNaNDummy: w.IsNaNDummy,
		Threshold: w.Threshold, Categories: w.Categories,
	}, nil
}

func toWireNode(n *tree.Node) wireNode {
	w := wireNode{Split: toWireSplit(n.Split), Weight: n.Weight}
	if !n.IsLeaf() {
		l := toWireNode(n.Left)
		r := toWireNode(n.Right)
		w.Left, w.Right = &l, &r
	}
	return w
}

func fromWireNode(w wireNode) (*tree.Node, error) {
	s, err := fromWireSplit(w.Split)
	if err != nil {
		return nil, err
	}
	n := &tree.Node{Split: s, Weight: w.Weight}
	if s != nil {
		left, err := fromWireNode(*w.Left)
		if err != nil {
			return nil, err
		}
		right, err := fromWireNode(*w.Right)
		if err != nil {
			return nil, err
		}
		n.Left, n.Right = left, right
	}
	return n, nil
}

func toWireEnsemble(ens *Ensemble) wireEnsemble {
	w := wireEnsemble{
		Hyperparams: ens.Hyperparams, InitialPrediction: ens.InitialPrediction,
		SubEnsembles: make(map[string]wireEnsemble, len(ens.SubEnsembles)),
	}
	for _, ft := range ens.Trees {
		w.Trees = append(w.Trees, wireTree{
			FeatureIndex: ft.FeatureIndex, Root: toWireNode(ft.Root), UpdateRate: ft.UpdateRate,
		})
	}
	for name, sub := range ens.SubEnsembles {
		w.SubEnsembles[name] = toWireEnsemble(sub)
	}
	return w
}

func fromWireEnsemble(w wireEnsemble) (*Ensemble, error) {
	ens := &Ensemble{
		Hyperparams: w.Hyperparams, InitialPrediction: w.InitialPrediction,
		SubEnsembles: make(map[string]*Ensemble, len(w.SubEnsembles)),
	}
	for _, wt := range w.Trees {
		root, err := fromWireNode(wt.Root)
		if err != nil {
			return nil, err
		}
		ens.Trees = append(ens.Trees, FeatureTree{FeatureIndex: wt.FeatureIndex, Root: root, UpdateRate: wt.UpdateRate})
	}
	for name, sw := range w.SubEnsembles {
		sub, err := fromWireEnsemble(sw)
		if err != nil {
			return nil, err
		}
		ens.SubEnsembles[name] = sub
	}
	return ens, nil
}

// Save writes ens plus the categorical and join-key encodings to dir
// as obj.json, categories, and join_keys_encoding, per spec.md §6's
// on-disk persisted ensemble format. The two encoding files are
// length-prefixed UTF-8 strings written in the host's native byte
// order, recorded in meta.json so Load never has to guess.
func Save(dir string, ens *Ensemble, categories, joinKeys *column.Encoding) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New(errs.IOFailure, "ENSEMBLE/SAVE", "mkdir %s: %v", dir, err)
	}

	objBytes, err := json.MarshalIndent(toWireEnsemble(ens), "", "  ")
	if err != nil {
		return errs.New(errs.IOFailure, "ENSEMBLE/SAVE", "marshal obj.json: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "obj.json"), objBytes, 0o644); err != nil {
		return errs.New(errs.IOFailure, "ENSEMBLE/SAVE", "write obj.json: %v", err)
	}

	order := hostOrder()
	orderName := "little"
	if order == binary.BigEndian {
		orderName = "big"
	}
	meta, err := json.Marshal(diskMeta{Endianness: orderName})
	if err != nil {
		return errs.New(errs.IOFailure, "ENSEMBLE/SAVE", "marshal meta.json: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), meta, 0o644); err != nil {
		return errs.New(errs.IOFailure, "ENSEMBLE/SAVE", "write meta.json: %v", err)
	}

	if err := writeEncoding(filepath.Join(dir, "categories"), categories, order); err != nil {
		return err
	}
	if err := writeEncoding(filepath.Join(dir, "join_keys_encoding"), joinKeys, order); err != nil {
		return err
	}
	return nil
}

// Load reads back what Save wrote. The encoding files are read using
// the byte order meta.json recorded at save time, never the loading
// host's native order.
func Load(dir string) (*Ensemble, *column.Encoding, *column.Encoding, error) {
	objBytes, err := os.ReadFile(filepath.Join(dir, "obj.json"))
	if err != nil {
		return nil, nil, nil, errs.New(errs.IOFailure, "ENSEMBLE/LOAD", "read obj.json: %v", err)
	}
	var w wireEnsemble
	if err := json.Unmarshal(objBytes, &w); err != nil {
		return nil, nil, nil, errs.New(errs.IOFailure, "ENSEMBLE/LOAD", "unmarshal obj.json: %v", err)
	}
	ens, err := fromWireEnsemble(w)
	if err != nil {
		return nil, nil, nil, err
	}

	metaBytes, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, nil, nil, errs.New(errs.IOFailure, "ENSEMBLE/LOAD", "read meta.json: %v", err)
	}
	var meta diskMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, nil, errs.New(errs.IOFailure, "ENSEMBLE/LOAD", "unmarshal meta.json: %v", err)
	}
	order := binary.ByteOrder(binary.LittleEndian)
	if meta.Endianness == "big" {
		order = binary.BigEndian
	}

	categories, err := readEncoding(filepath.Join(dir, "categories"), order)
	if err != nil {
		return nil, nil, nil, err
	}
	joinKeys, err := readEncoding(filepath.Join(dir, "join_keys_encoding"), order)
	if err != nil {
		return nil, nil, nil, err
	}

	return ens, categories, joinKeys, nil
}

// writeEncoding writes e's strings as a sequence of
// (uint32 length, UTF-8 bytes) records in order.
func writeEncoding(path string, e *column.Encoding, order binary.ByteOrder) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.New(errs.IOFailure, "ENSEMBLE/SAVE", "create %s: %v", path, err)
	}
	defer f.Close()

	for _, s := range e.Snapshot() {
		var lenBuf [4]byte
		order.PutUint32(lenBuf[:], uint32(len(s)))
		if _, err := f.Write(lenBuf[:]); err != nil {
			return errs.New(errs.IOFailure, "ENSEMBLE/SAVE", "write length in %s: %v", path, err)
		}
		if _, err := f.WriteString(s); err != nil {
			return errs.New(errs.IOFailure, "ENSEMBLE/SAVE", "write string in %s: %v", path, err)
		}
	}
	return nil
}

// readEncoding reads back what writeEncoding wrote, rebuilding an
// Encoding whose codes match the original insertion order exactly.
func readEncoding(path string, order binary.ByteOrder) (*column.Encoding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.IOFailure, "ENSEMBLE/LOAD", "read %s: %v", path, err)
	}
	e := column.NewEncoding()
	pos := 0
	for pos < len(data) {
		if pos+4 > len(data) {
			return nil, errs.New(errs.IOFailure, "ENSEMBLE/LOAD", "truncated length prefix in %s", path)
		}
		n := int(order.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+n > len(data) {
			return nil, errs.New(errs.IOFailure, "ENSEMBLE/LOAD", "truncated string in %s", path)
		}
		e.Lookup(string(data[pos : pos+n]))
		pos += n
	}
	return e, nil
}
