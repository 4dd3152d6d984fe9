package config

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// manifestSchema is the CUE schema every CUE manifest is unified with
// before decoding. YAML manifests skip unification and rely on the struct
// validation alone.
const manifestSchema = `
#Manifest: {
	environment: string
	engines: [...("meilisearch" | "opensearch" | "solr" | "elasticsearch")]
	base_image: string | *"ubuntu:22.04"
	profile?: {
		name?:        string
		cpu?:         int & >0
		memory?:      string
		disk_path?:   string
		disk_pool?:   string
		description?: string
	}
	admin_password?: string
	versions?: {
		solr?:          string
		elasticsearch?: string
	}
	remote?: {
		host:      string
		port?:     int & >0 & <65536
		user:      string
		key_path?: string
		password?: string
	}
	store_path?:  string
	concurrency?: int & >=0 & <=8
	telemetry?: {...}
}
`

// Load reads, decodes and validates a manifest file. The format is chosen
// by extension: .cue, or .yaml/.yml.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest: %w", err)
	}

	var m Manifest
	switch ext := filepath.Ext(path); ext {
	case ".cue":
		if err := decodeCUE(data, path, &m); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("cannot parse YAML manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format %q (want .cue, .yaml or .yml)", ext)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// decodeCUE compiles the manifest, unifies it with the built-in schema and
// decodes the result.
func decodeCUE(data []byte, path string, out *Manifest) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(manifestSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("internal schema error: %w", err)
	}

	val := ctx.CompileBytes(data, cue.Filename(path))
	if err := val.Err(); err != nil {
		return fmt.Errorf("cannot parse CUE manifest: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("manifest does not satisfy schema: %w", err)
	}

	if err := unified.Decode(out); err != nil {
		return fmt.Errorf("cannot decode manifest: %w", err)
	}
	return nil
}
