// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package controller

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/samber/oops"

	"github.com/explosivegaming/expcluster/internal/groups"
	"github.com/explosivegaming/expcluster/internal/message"
)

// File names inside the controller data directory.
const (
	GroupsFile     = "exp_groups.json"
	UserGroupsFile = "exp_user_groups.json"
)

// ExportGroups returns every group record across all origins, tombstones
// included, as one flat slice. This is the persisted shape.
func (c *Coordinator) ExportGroups() []groups.PermissionGroup {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Non-nil so an empty controller persists as [] rather than null.
	out := make([]groups.PermissionGroup, 0)
	for _, store := range c.groupStores {
		out = append(out, store.Snapshot()...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Origin != out[j].Origin {
			return out[i].Origin < out[j].Origin
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ImportGroups loads persisted records into the stores, creating origin
// stores lazily. Loaded records already satisfy the order invariant, so
// sibling ranks are not touched.
func (c *Coordinator) ImportGroups(records []groups.PermissionGroup) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range records {
		rec := records[i]
		store, ok := c.groupStores[rec.Origin]
		if !ok {
			store = groups.NewGroupSet(rec.Origin)
			c.groupStores[rec.Origin] = store
		}
		store.Put(&rec)
	}
	c.setOriginsGauge()
}

// ExportUserGroups returns the persisted [userId, originId] pairs.
func (c *Coordinator) ExportUserGroups() [][2]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][2]string, 0, len(c.userToGroup))
	for user, origin := range c.userToGroup {
		out = append(out, [2]string{user, string(origin)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// ImportUserGroups restores the user→group map from persisted pairs.
func (c *Coordinator) ImportUserGroups(pairs [][2]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, pair := range pairs {
		c.userToGroup[pair[0]] = groups.Origin(pair[1])
	}
}

// Persistence round-trips controller state through two independent JSON
// files in dir. A missing file reads as an empty store; any other read
// failure aborts startup. Writes are atomic (temp file + rename) so a crash
// mid-write never leaves a torn file.
type Persistence struct {
	dir                    string
	allowRoleInconsistency bool
}

// NewPersistence creates a Persistence rooted at dir. The user-group file is
// only read and written when allowRoleInconsistency is set.
func NewPersistence(dir string, allowRoleInconsistency bool) *Persistence {
	return &Persistence{dir: dir, allowRoleInconsistency: allowRoleInconsistency}
}

// Load reads both files into the coordinator.
func (p *Persistence) Load(c *Coordinator) error {
	if err := p.loadGroups(c); err != nil {
		return err
	}
	return p.loadUserGroups(c)
}

func (p *Persistence) loadGroups(c *Coordinator) error {
	path := filepath.Join(p.dir, GroupsFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return oops.In("controller").Code("LOAD_FAILED").With("path", path).Wrap(err)
	}
	if err := message.ValidateGroupFile(data); err != nil {
		return oops.In("controller").Code("LOAD_FAILED").With("path", path).Wrap(err)
	}
	var records []groups.PermissionGroup
	if err := json.Unmarshal(data, &records); err != nil {
		return oops.In("controller").Code("LOAD_FAILED").With("path", path).Wrap(err)
	}
	c.ImportGroups(records)
	return nil
}

func (p *Persistence) loadUserGroups(c *Coordinator) error {
	if !p.allowRoleInconsistency {
		return nil
	}
	path := filepath.Join(p.dir, UserGroupsFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return oops.In("controller").Code("LOAD_FAILED").With("path", path).Wrap(err)
	}
	var pairs [][2]string
	if err := json.Unmarshal(data, &pairs); err != nil {
		return oops.In("controller").Code("LOAD_FAILED").With("path", path).Wrap(err)
	}
	c.ImportUserGroups(pairs)
	return nil
}

// Save checkpoints both files. The two writers run concurrently since the
// files are independent, but each individual write is atomic.
func (p *Persistence) Save(c *Coordinator) error {
	if err := os.MkdirAll(p.dir, 0o750); err != nil {
		return oops.In("controller").Code("SAVE_FAILED").With("dir", p.dir).Wrap(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = p.saveGroups(c)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = p.saveUserGroups(c)
	}()
	wg.Wait()

	return errors.Join(errs...)
}

func (p *Persistence) saveGroups(c *Coordinator) error {
	data, err := json.Marshal(c.ExportGroups())
	if err != nil {
		return oops.In("controller").Code("SAVE_FAILED").Wrap(err)
	}
	return atomicWrite(filepath.Join(p.dir, GroupsFile), data)
}

func (p *Persistence) saveUserGroups(c *Coordinator) error {
	if !p.allowRoleInconsistency {
		return nil
	}
	data, err := json.Marshal(c.ExportUserGroups())
	if err != nil {
		return oops.In("controller").Code("SAVE_FAILED").Wrap(err)
	}
	return atomicWrite(filepath.Join(p.dir, UserGroupsFile), data)
}

// atomicWrite writes to a temp file in the target directory and renames it
// over the destination.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return oops.In("controller").Code("SAVE_FAILED").With("path", path).Wrap(err)
	}
	tmpName := tmp.Name()
	defer func() {
		// Best effort: the temp file only survives on an earlier failure.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return oops.In("controller").Code("SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return oops.In("controller").Code("SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return oops.In("controller").Code("SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return oops.In("controller").Code("SAVE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
