// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/explosivegaming/expcluster/internal/groups"
)

func TestEnvelope_GroupUpdateRoundTrip(t *testing.T) {
	g := groups.NewPermissionGroup(groups.GlobalOrigin, "Admin")
	g.Permissions["build"] = struct{}{}
	g.UpdatedAtMs = 42

	env := NewGroupUpdate([]groups.PermissionGroup{*g})
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var back Envelope
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, KindGroupUpdate, back.Kind)
	require.NotNil(t, back.GroupUpdate)
	require.Len(t, back.GroupUpdate.Updates, 1)
	assert.Equal(t, "Admin", back.GroupUpdate.Updates[0].Name)
	assert.Contains(t, back.GroupUpdate.Updates[0].Permissions, "build")
	assert.Nil(t, back.GroupEdit)
	assert.Nil(t, back.StringsUpdate)
}

func TestEnvelope_GroupEditRoundTrip(t *testing.T) {
	env := NewGroupEdit(GroupEdit{
		Src:     InstanceAddress("7"),
		Type:    EditAddPermissions,
		Group:   "Admin",
		Changes: []string{"build", "craft"},
	})
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var back Envelope
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, KindGroupEdit, back.Kind)
	require.NotNil(t, back.GroupEdit)
	assert.True(t, back.GroupEdit.Src.Equal(InstanceAddress("7")))
	assert.Equal(t, EditAddPermissions, back.GroupEdit.Type)
	assert.Equal(t, []string{"build", "craft"}, back.GroupEdit.Changes)
}

func TestEnvelope_EmptyGroupUpdateIsValid(t *testing.T) {
	env := NewGroupUpdate(nil)
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var back Envelope
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.GroupUpdate)
	assert.Empty(t, back.GroupUpdate.Updates)
}

func TestEnvelope_UnknownKind(t *testing.T) {
	var env Envelope
	err := json.Unmarshal([]byte(`{"kind":"mystery","data":{}}`), &env)
	assert.Error(t, err)

	_, err = json.Marshal(Envelope{Kind: "mystery"})
	assert.Error(t, err)
}

func TestEditType_Valid(t *testing.T) {
	assert.True(t, EditAssignPlayers.Valid())
	assert.True(t, EditAddPermissions.Valid())
	assert.True(t, EditRemovePermissions.Valid())
	assert.False(t, EditType("drop_table").Valid())
}

func TestGenerateSchemas(t *testing.T) {
	schemas, err := GenerateSchemas()
	require.NoError(t, err)
	require.Contains(t, schemas, "permission_group.schema.json")
	require.Contains(t, schemas, "permission_strings.schema.json")
	require.Contains(t, schemas, "group_file.schema.json")

	for name, raw := range schemas {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(raw, &doc), "schema %s must be valid JSON", name)
		assert.Contains(t, doc, "$id")
	}
}

func TestValidateGroupFile(t *testing.T) {
	good := `[{"instanceId":"Global","name":"Default","order":0,"roleIds":[1],"permissions":["build"]}]`
	assert.NoError(t, ValidateGroupFile([]byte(good)))

	// Wrong top-level shape.
	assert.Error(t, ValidateGroupFile([]byte(`{"instanceId":"Global"}`)))

	// Wrong element types.
	bad := `[{"instanceId":"Global","name":"Default","order":"first","roleIds":[],"permissions":[]}]`
	assert.Error(t, ValidateGroupFile([]byte(bad)))
}
