// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
This file is the bridge between the build system and the runtime logic. It
uses the Go embed package to bake defense_rules.yaml directly into the
compiled binary so the default rule set is immutable at runtime and travels
with the executable.
*/

package enforcement

import (
	_ "embed"
)

// DefenseRules holds the raw byte content of the 'defense_rules.yaml' file.
//
// Populated at compile time via the Go 'embed' directive. Baking the YAML
// into the binary means the default detection and replacement rules cannot
// be tampered with on the host filesystem without recompiling.
//
// Usage:
//
//	// Pass these bytes directly to yaml.Unmarshal
//	err := yaml.Unmarshal(enforcement.DefenseRules, &targetStruct)
//
//go:embed defense_rules.yaml
var DefenseRules []byte
