// Copyright 2025 The Witness Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"github.com/timestamper/go-timestamper/config"
	"github.com/timestamper/go-timestamper/receipt"
)

const schemaBaseID = "https://timestamper.dev/schemas/"

type schemaItem struct {
	name        string
	title       string
	description string
	value       interface{}
}

var items = []schemaItem{
	{
		name:        "config",
		title:       "timestamper configuration",
		description: "Settings read from ~/.timestamper.yaml or the file given with --config",
		value:       &config.Config{},
	},
	{
		name:        "receipt",
		title:       "timestamp receipt",
		description: "A timestamp issued by the authority, saved with what is needed to verify it later",
		value:       &receipt.Receipt{},
	},
}

func main() {
	outputDir := "schemas"
	if len(os.Args) > 1 && os.Args[1] != "" {
		outputDir = os.Args[1]
	}

	if err := generate(outputDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: false,
		DoNotReference:             true,
		ExpandedStruct:             true,
	}
}

func generate(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %v: %w", outputDir, err)
	}

	reflector := newReflector()
	for _, item := range items {
		schema := reflector.Reflect(item.value)
		schema.ID = jsonschema.ID(schemaBaseID + item.name + ".json")
		schema.Title = item.title
		schema.Description = item.description

		data, err := schema.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to encode %v schema: %w", item.name, err)
		}

		filename := filepath.Join(outputDir, item.name+".json")
		if err := os.WriteFile(filename, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %v: %w", filename, err)
		}
	}

	return nil
}
