// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

// Package message defines the closed set of replication messages exchanged
// between the controller, instances, and control clients.
//
// Dispatch is a tagged union: every message travels inside an Envelope whose
// Kind selects exactly one payload field, and consumers switch on Kind. There
// is no dynamic handler registration, so a missed case is visible at the
// switch site.
package message

import (
	"encoding/json"

	"github.com/samber/oops"

	"github.com/explosivegaming/expcluster/internal/groups"
)

// Kind discriminates the envelope payload.
type Kind string

const (
	// KindGroupUpdate carries a batch of permission-group records.
	KindGroupUpdate Kind = "permission_group_update"
	// KindStringsUpdate carries a batch of permission-string records.
	KindStringsUpdate Kind = "permission_strings_update"
	// KindGroupEdit carries a single in-game edit event.
	KindGroupEdit Kind = "permission_group_edit"
)

// AddressType classifies the parties of the replication protocol.
type AddressType string

const (
	// AddressController is the central authority.
	AddressController AddressType = "controller"
	// AddressInstance is one game-server process.
	AddressInstance AddressType = "instance"
	// AddressControl is a controller-side client (UI, CLI).
	AddressControl AddressType = "control"
)

// Address identifies a protocol party. ID is empty for the controller and
// the instance id (decimal string) or client id otherwise.
type Address struct {
	Type AddressType `json:"type"`
	ID   string      `json:"id,omitempty"`
}

// Equal reports whether two addresses name the same party.
func (a Address) Equal(b Address) bool { return a.Type == b.Type && a.ID == b.ID }

// InstanceAddress builds the address of a game-server instance.
func InstanceAddress(id string) Address {
	return Address{Type: AddressInstance, ID: id}
}

// ControllerAddress is the address of the central authority.
func ControllerAddress() Address { return Address{Type: AddressController} }

// GroupUpdate is a batch of merged permission-group records. An empty batch
// is valid: subscribers treat it as a no-op heartbeat.
type GroupUpdate struct {
	Updates []groups.PermissionGroup `json:"updates"`
}

// StringsUpdate is a batch of permission-string records.
type StringsUpdate struct {
	Updates []groups.PermissionStrings `json:"updates"`
}

// EditType enumerates the in-game edit operations replicated as events.
type EditType string

const (
	// EditAssignPlayers moves the listed players into the group.
	EditAssignPlayers EditType = "assign_players"
	// EditAddPermissions grants the listed permissions to the group.
	EditAddPermissions EditType = "add_permissions"
	// EditRemovePermissions revokes the listed permissions from the group.
	EditRemovePermissions EditType = "remove_permissions"
)

// Valid reports whether t is a known edit type.
func (t EditType) Valid() bool {
	switch t {
	case EditAssignPlayers, EditAddPermissions, EditRemovePermissions:
		return true
	}
	return false
}

// GroupEdit is a single edit that originated in a game process or client.
// Src is the originating party, used by instances for loop suppression.
type GroupEdit struct {
	Src     Address  `json:"src"`
	Type    EditType `json:"type"`
	Group   string   `json:"group"`
	Changes []string `json:"changes"`
}

// SnapshotRequest asks for every in-scope record changed after the
// watermark. It is a request/response call, not an envelope payload.
type SnapshotRequest struct {
	LastRequestTimeMs int64   `json:"lastRequestTimeMs"`
	Requester         Address `json:"requester"`
}

// Envelope is the tagged union. Exactly one payload field matching Kind is
// non-nil.
type Envelope struct {
	Kind          Kind
	GroupUpdate   *GroupUpdate
	StringsUpdate *StringsUpdate
	GroupEdit     *GroupEdit
}

// NewGroupUpdate wraps a group batch in an envelope.
func NewGroupUpdate(updates []groups.PermissionGroup) Envelope {
	return Envelope{Kind: KindGroupUpdate, GroupUpdate: &GroupUpdate{Updates: updates}}
}

// NewStringsUpdate wraps a permission-strings batch in an envelope.
func NewStringsUpdate(updates []groups.PermissionStrings) Envelope {
	return Envelope{Kind: KindStringsUpdate, StringsUpdate: &StringsUpdate{Updates: updates}}
}

// NewGroupEdit wraps an edit event in an envelope.
func NewGroupEdit(edit GroupEdit) Envelope {
	return Envelope{Kind: KindGroupEdit, GroupEdit: &edit}
}

// envelopeJSON is the wire shape of an Envelope.
type envelopeJSON struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the envelope as {"kind": ..., "data": ...}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var payload any
	switch e.Kind {
	case KindGroupUpdate:
		payload = e.GroupUpdate
	case KindStringsUpdate:
		payload = e.StringsUpdate
	case KindGroupEdit:
		payload = e.GroupEdit
	default:
		return nil, oops.In("message").Code("INVALID_RECORD").
			With("kind", string(e.Kind)).New("unknown message kind")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, oops.In("message").Code("INVALID_RECORD").Wrap(err)
	}
	return json.Marshal(envelopeJSON{Kind: e.Kind, Data: data})
}

// UnmarshalJSON decodes the tagged payload for the declared kind.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return oops.In("message").Code("INVALID_RECORD").Wrap(err)
	}
	e.Kind = raw.Kind
	e.GroupUpdate = nil
	e.StringsUpdate = nil
	e.GroupEdit = nil
	switch raw.Kind {
	case KindGroupUpdate:
		e.GroupUpdate = &GroupUpdate{}
		return decodePayload(raw.Data, e.GroupUpdate)
	case KindStringsUpdate:
		e.StringsUpdate = &StringsUpdate{}
		return decodePayload(raw.Data, e.StringsUpdate)
	case KindGroupEdit:
		e.GroupEdit = &GroupEdit{}
		return decodePayload(raw.Data, e.GroupEdit)
	default:
		return oops.In("message").Code("INVALID_RECORD").
			With("kind", string(raw.Kind)).New("unknown message kind")
	}
}

func decodePayload(data json.RawMessage, into any) error {
	if err := json.Unmarshal(data, into); err != nil {
		return oops.In("message").Code("INVALID_RECORD").Wrap(err)
	}
	return nil
}
