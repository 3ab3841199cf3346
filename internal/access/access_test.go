// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/explosivegaming/expcluster/internal/message"
	"github.com/explosivegaming/expcluster/pkg/errutil"
)

func newChecker(t *testing.T) *StaticChecker {
	t.Helper()
	c, err := NewStaticChecker(DefaultRoles())
	require.NoError(t, err)
	return c
}

func TestStaticChecker_Check(t *testing.T) {
	c := newChecker(t)
	require.NoError(t, c.AssignRole("user:alice", "admin"))
	require.NoError(t, c.AssignRole("user:bob", "member"))

	tests := []struct {
		name       string
		subject    string
		capability string
		want       bool
	}{
		{"admin matches wildcard", "user:alice", CapModifyPermissions, true},
		{"admin matches subscribe", "user:alice", CapSubscribe, true},
		{"member can subscribe", "user:bob", CapSubscribe, true},
		{"member cannot modify", "user:bob", CapModifyPermissions, false},
		{"unknown subject denied", "user:mallory", CapSubscribe, false},
		{"empty subject denied", "", CapSubscribe, false},
		{"system always allowed", "system", CapModifyPermissions, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Check(tt.subject, tt.capability))
		})
	}
}

func TestStaticChecker_AssignRole(t *testing.T) {
	c := newChecker(t)
	assert.Error(t, c.AssignRole("", "admin"))
	assert.Error(t, c.AssignRole("user:alice", "archwizard"))
}

func TestNewStaticChecker_BadPattern(t *testing.T) {
	_, err := NewStaticChecker(map[string][]string{"broken": {"expcluster.[groups"}})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_PATTERN")
}

func TestCheckEdit(t *testing.T) {
	c := newChecker(t)
	require.NoError(t, c.AssignRole("user:alice", "admin"))
	require.NoError(t, c.AssignRole("user:bob", "member"))

	assert.NoError(t, CheckEdit(c, "user:alice", message.EditAddPermissions))
	assert.NoError(t, CheckEdit(c, "user:alice", message.EditAssignPlayers))

	err := CheckEdit(c, "user:bob", message.EditRemovePermissions)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "PERMISSION_DENIED")

	err = CheckEdit(c, "user:alice", message.EditType("vaporize"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "PERMISSION_DENIED")
}

func TestAllowAll(t *testing.T) {
	assert.True(t, AllowAll{}.Check("", ""))
	assert.NoError(t, CheckEdit(AllowAll{}, "anyone", message.EditAddPermissions))
}
