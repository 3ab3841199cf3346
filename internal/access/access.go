// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

// Package access provides capability checks for replication requests.
//
// Capabilities use dot-separated identifiers, e.g.
// "expcluster.groups.modify_permissions". Role definitions may use glob
// patterns ("expcluster.groups.*") compiled with '.' as the separator.
package access

import (
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/explosivegaming/expcluster/internal/message"
)

// Capabilities guarding the replicated permission-group operations.
const (
	CapSubscribe         = "expcluster.groups.list.subscribe"
	CapModifyPermissions = "expcluster.groups.modify_permissions"
	CapAssignPlayers     = "expcluster.groups.assign_players"
)

// Checker decides whether a subject holds a capability. Deny by default:
// unknown subjects or capabilities check false.
type Checker interface {
	Check(subject, capability string) bool
}

// CheckEdit maps an edit type to its guarding capability and checks it.
// Returns a PERMISSION_DENIED error when the check fails or the edit type is
// unknown; the caller aborts with no partial effect.
func CheckEdit(c Checker, subject string, editType message.EditType) error {
	var capability string
	switch editType {
	case message.EditAddPermissions, message.EditRemovePermissions:
		capability = CapModifyPermissions
	case message.EditAssignPlayers:
		capability = CapAssignPlayers
	default:
		return oops.In("access").Code("PERMISSION_DENIED").
			With("edit_type", string(editType)).New("permission denied")
	}
	if !c.Check(subject, capability) {
		return oops.In("access").Code("PERMISSION_DENIED").
			With("subject", subject).
			With("capability", capability).New("permission denied")
	}
	return nil
}

// compiledPattern pairs a capability pattern with its compiled glob.
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// StaticChecker implements Checker with static role definitions.
//
// Role patterns are immutable after construction; only the subject → role
// assignment is mutable and guarded by mu.
type StaticChecker struct {
	roles    map[string][]compiledPattern
	mu       sync.RWMutex
	subjects map[string]string
}

// DefaultRoles returns the built-in role → capability-pattern table.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		"admin":  {"expcluster.groups.*"},
		"member": {CapSubscribe},
	}
}

// NewStaticChecker compiles the given role definitions. Returns an error if
// any pattern has invalid glob syntax.
func NewStaticChecker(roles map[string][]string) (*StaticChecker, error) {
	compiled := make(map[string][]compiledPattern, len(roles))
	for role, patterns := range roles {
		list := make([]compiledPattern, 0, len(patterns))
		for _, p := range patterns {
			g, err := glob.Compile(p, '.')
			if err != nil {
				return nil, oops.In("access").Code("INVALID_PATTERN").
					With("role", role).
					With("pattern", p).Wrap(err)
			}
			list = append(list, compiledPattern{pattern: p, glob: g})
		}
		compiled[role] = list
	}
	return &StaticChecker{
		roles:    compiled,
		subjects: make(map[string]string),
	}, nil
}

// AssignRole sets the role for a subject. Unknown roles are rejected.
func (s *StaticChecker) AssignRole(subject, role string) error {
	if subject == "" {
		return oops.In("access").Code("INVALID_SUBJECT").New("subject cannot be empty")
	}
	if _, ok := s.roles[role]; !ok {
		return oops.In("access").Code("UNKNOWN_ROLE").With("role", role).New("unknown role")
	}
	s.mu.Lock()
	s.subjects[subject] = role
	s.mu.Unlock()
	return nil
}

// Check implements Checker.
func (s *StaticChecker) Check(subject, capability string) bool {
	if subject == "system" {
		return true
	}
	if subject == "" {
		return false
	}

	s.mu.RLock()
	role := s.subjects[subject]
	s.mu.RUnlock()
	if role == "" {
		return false
	}

	for _, p := range s.roles[role] {
		if p.glob.Match(capability) {
			return true
		}
	}
	return false
}

// AllowAll is a Checker that grants everything. Used by the controller when
// the request already passed transport-level authentication.
type AllowAll struct{}

// Check always returns true.
func (AllowAll) Check(string, string) bool { return true }
