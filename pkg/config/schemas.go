package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages the CUE schemas manifests are validated against.
// Struct-tag validation catches shape errors; the CUE layer enforces the
// value constraints tags cannot express, like exact version syntax.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in schemas loaded.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	sr.RegisterSchema("manifest", builtinManifestSchema)
	sr.RegisterSchema("runtime", builtinRuntimeSchema)
	return sr
}

// RegisterSchema compiles and stores a CUE schema under the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema unifies data with the named schema and reports any
// constraint violation.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#" + titleCase(schemaName))).Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateManifest validates a manifest against the manifest schema.
func (sr *SchemaRegistry) ValidateManifest(ctx context.Context, m *Manifest) error {
	return sr.ValidateAgainstSchema(ctx, "manifest", m)
}

// ValidateRuntime validates a single runtime spec.
func (sr *SchemaRegistry) ValidateRuntime(ctx context.Context, r RuntimeSpec) error {
	return sr.ValidateAgainstSchema(ctx, "runtime", r)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// Built-in schema definitions

const builtinManifestSchema = `
#Manifest: {
	toolchain: {
		version_manager: {
			// docs_url is the page the release tag is resolved from
			docs_url: string & =~"^https://"

			// git_repo is the repository cloned during bootstrap
			git_repo: string & =~"^https://.*\\.git$"

			// install_dir is the asdf root
			install_dir: string & !=""

			resolve_timeout?: int | string
		}

		// runtimes pin exact versions: no ranges, no "latest"
		runtimes: [...{
			name:        string & =~"^[a-z][a-z0-9]*$"
			version:     string & =~"^\\d+\\.\\d+\\.\\d+([.-].+)?$"
			plugin_url?: string & =~"^https://"
		}]

		packages: [...string & !=""]

		editor?: string

		mix: {
			hex_bootstrap: bool
			phoenix: {
				version?: string & =~"^\\d+\\.\\d+\\.\\d+([.-].+)?$"
			}
		}
	}

	profiles?: [...{
		path: string & !=""
		blocks: [...{
			marker: string & !=""
			lines: [...string]
		}]
	}]

	policy?: {
		enabled: bool
		paths?: [...string]
		mode?: "advisory" | "enforcing"
		watch?: bool
	}

	store?: {
		path?: string
	}

	telemetry?: {...}

	overlay?: string
}
`

const builtinRuntimeSchema = `
#Runtime: {
	name:        string & =~"^[a-z][a-z0-9]*$"
	version:     string & =~"^\\d+\\.\\d+\\.\\d+([.-].+)?$"
	plugin_url?: string & =~"^https://"
}
`
