// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package message

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
)

// GroupRecord is the wire/persist shape of a permission group, kept as an
// explicit struct so JSON Schemas can be generated from it.
type GroupRecord struct {
	InstanceID  string   `json:"instanceId"`
	Name        string   `json:"name"`
	Order       int      `json:"order"`
	RoleIDs     []int    `json:"roleIds"`
	Permissions []string `json:"permissions"`
	UpdatedAtMs int64    `json:"updatedAtMs,omitempty"`
	IsDeleted   bool     `json:"isDeleted,omitempty"`
}

// StringsRecord is the wire/persist shape of a permission-strings record.
type StringsRecord struct {
	InstanceID  string   `json:"instanceId"`
	Permissions []string `json:"permissions"`
	UpdatedAtMs int64    `json:"updatedAtMs,omitempty"`
	IsDeleted   bool     `json:"isDeleted,omitempty"`
}

// GroupFile is the persisted group database: a flat array of group records
// across all origins.
type GroupFile []GroupRecord

const schemaIDBase = "https://schemas.explosivegaming.nl/expcluster/"

// GenerateSchemas produces the JSON Schema documents for the replicated
// record shapes, keyed by output filename.
func GenerateSchemas() (map[string][]byte, error) {
	targets := []struct {
		file  string
		title string
		value any
	}{
		{"permission_group.schema.json", "Permission Group Record", &GroupRecord{}},
		{"permission_strings.schema.json", "Permission Strings Record", &StringsRecord{}},
		{"group_file.schema.json", "Permission Group Database File", &GroupFile{}},
	}

	out := make(map[string][]byte, len(targets))
	for _, t := range targets {
		r := jsonschema.Reflector{DoNotReference: true}
		schema := r.Reflect(t.value)
		schema.ID = jsonschema.ID(schemaIDBase + t.file)
		schema.Title = t.title

		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return nil, oops.In("message").Code("INVALID_RECORD").
				With("schema", t.file).Wrap(err)
		}
		out[t.file] = data
	}
	return out, nil
}

var (
	groupFileSchemaOnce sync.Once
	groupFileSchema     *jschema.Schema
	groupFileSchemaErr  error
)

// ValidateGroupFile checks persisted group-database content against the
// generated schema before it is loaded into the store.
func ValidateGroupFile(data []byte) error {
	groupFileSchemaOnce.Do(func() {
		groupFileSchema, groupFileSchemaErr = compileSchema("group_file.schema.json")
	})
	if groupFileSchemaErr != nil {
		return groupFileSchemaErr
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return oops.In("message").Code("INVALID_RECORD").Wrap(err)
	}
	if err := groupFileSchema.Validate(doc); err != nil {
		return oops.In("message").Code("INVALID_RECORD").Wrap(err)
	}
	return nil
}

func compileSchema(name string) (*jschema.Schema, error) {
	schemas, err := GenerateSchemas()
	if err != nil {
		return nil, err
	}
	raw, ok := schemas[name]
	if !ok {
		return nil, oops.In("message").Code("INVALID_RECORD").
			With("schema", name).New("unknown schema")
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, oops.In("message").Code("INVALID_RECORD").Wrap(err)
	}
	c := jschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, oops.In("message").Code("INVALID_RECORD").Wrap(err)
	}
	sch, err := c.Compile(name)
	if err != nil {
		return nil, oops.In("message").Code("INVALID_RECORD").Wrap(err)
	}
	return sch, nil
}
