// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

// Command gen-schema generates the JSON Schema files for the replicated
// record shapes.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/explosivegaming/expcluster/internal/message"
)

func main() {
	schemas, err := message.GenerateSchemas()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schemas: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll("schemas", 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	for name, data := range schemas {
		outPath := filepath.Join("schemas", name)
		if err := os.WriteFile(outPath, data, 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
}
