// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore is a single-file StoreConn for standalone deployments: the
// whole entity table set is one JSON document rewritten atomically
// (write-temp-then-rename) on every mutation. It honors the same
// command surface a relational backing store would, so the bridge and
// the daemon are indifferent to which one is behind the pool.
type FileStore struct {
	mu   sync.Mutex
	path string
	rows map[string]fileRow
}

type fileRow struct {
	Kind         string            `json:"kind"`
	Name         string            `json:"name"`
	State        int               `json:"state"`
	Substate     int               `json:"substate"`
	Flags        uint32            `json:"flags"`
	JobIDCounter int64             `json:"jobid_counter,omitempty"`
	Attrs        map[string]string `json:"attrs"`
	AttrFlags    map[string]uint32 `json:"attr_flags,omitempty"`
}

// OpenFileStore loads (or initializes) the store file at path. DSNs of
// the form "file://PATH" are accepted as-is.
func OpenFileStore(path string) (*FileStore, error) {
	path = strings.TrimPrefix(path, "file://")
	s := &FileStore{path: path, rows: map[string]fileRow{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.rows); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FileStore) Close() error                   { return nil }
func (s *FileStore) Ping(ctx context.Context) error { return nil }

func (s *FileStore) InsertRow(ctx context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr := fileRow{
		Kind:         row.Kind,
		Name:         row.Name,
		State:        row.State,
		Substate:     row.Substate,
		Flags:        row.Flags,
		JobIDCounter: row.JobIDCounter,
		Attrs:        map[string]string{},
		AttrFlags:    map[string]uint32{},
	}
	s.rows[rowKey(row.Kind, row.Name)] = fr
	return s.persistLocked()
}

func (s *FileStore) TruncateAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = map[string]fileRow{}
	return s.persistLocked()
}

func (s *FileStore) UpsertAttrs(ctx context.Context, kind, name string, attrs []AttrEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.rows[rowKey(kind, name)]
	if !ok {
		fr = fileRow{Kind: kind, Name: name, Attrs: map[string]string{}, AttrFlags: map[string]uint32{}}
	}
	if fr.Attrs == nil {
		fr.Attrs = map[string]string{}
	}
	if fr.AttrFlags == nil {
		fr.AttrFlags = map[string]uint32{}
	}
	for _, a := range attrs {
		fr.Attrs[attrKey(a.Name, a.Resource)] = a.Value
		fr.AttrFlags[attrKey(a.Name, a.Resource)] = a.Flags
	}
	s.rows[rowKey(kind, name)] = fr
	return s.persistLocked()
}

func (s *FileStore) DeleteAttrs(ctx context.Context, kind, name string, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.rows[rowKey(kind, name)]
	if !ok {
		return nil
	}
	for _, n := range names {
		// A bare name removes the attribute and every resource under it.
		for k := range fr.Attrs {
			if k == n || strings.HasPrefix(k, n+".") {
				delete(fr.Attrs, k)
				delete(fr.AttrFlags, k)
			}
		}
	}
	s.rows[rowKey(kind, name)] = fr
	return s.persistLocked()
}

func (s *FileStore) UpdateQuickSave(ctx context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.rows[rowKey(row.Kind, row.Name)]
	if !ok {
		fr = fileRow{Kind: row.Kind, Name: row.Name, Attrs: map[string]string{}}
	}
	fr.State = row.State
	fr.Substate = row.Substate
	fr.Flags = row.Flags
	fr.JobIDCounter = row.JobIDCounter
	s.rows[rowKey(row.Kind, row.Name)] = fr
	return s.persistLocked()
}

func (s *FileStore) LoadRow(ctx context.Context, kind, name string) (Row, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.rows[rowKey(kind, name)]
	if !ok {
		return Row{}, false, nil
	}
	row := Row{
		Kind:         fr.Kind,
		Name:         fr.Name,
		State:        fr.State,
		Substate:     fr.Substate,
		Flags:        fr.Flags,
		JobIDCounter: fr.JobIDCounter,
	}
	for k, v := range fr.Attrs {
		name, resource := splitAttrKey(k)
		row.Attrs = append(row.Attrs, AttrEntry{Name: name, Resource: resource, Value: v, Flags: fr.AttrFlags[k]})
	}
	return row, true, nil
}

func (s *FileStore) persistLocked() error {
	data, err := json.MarshalIndent(s.rows, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func rowKey(kind, name string) string { return kind + "/" + name }

func attrKey(name, resource string) string {
	if resource == "" {
		return name
	}
	return name + "." + resource
}

func splitAttrKey(k string) (name, resource string) {
	if i := strings.IndexByte(k, '.'); i >= 0 {
		return k[:i], k[i+1:]
	}
	return k, ""
}
