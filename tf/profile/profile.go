// Package profile loads named sets of column format scripts ("display
// profiles") from YAML, so a host configures a whole player skin's worth
// of columns in one file instead of scattering literal scripts through UI
// code.
package profile

import (
	"fmt"

	"github.com/kts-audio/titlefmt/tf"
	"sigs.k8s.io/yaml"
)

// Profile is a named map of column/role id to script source.
type Profile struct {
	Name    string            `json:"name"`
	Columns map[string]string `json:"columns"`
}

// Load decodes a Profile from a YAML document.
func Load(doc []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("titlefmt/profile: decode: %w", err)
	}
	return &p, nil
}

// CompileError names the column whose script failed to compile.
type CompileError struct {
	Column string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("titlefmt/profile: column %q: %v", e.Column, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Compile compiles every column script in the profile, returning the
// first failure annotated with the column id it came from.
func (p *Profile) Compile() (map[string]*tf.Bytecode, error) {
	out := make(map[string]*tf.Bytecode, len(p.Columns))
	for col, script := range p.Columns {
		bc, err := tf.Compile(script)
		if err != nil {
			return nil, &CompileError{Column: col, Err: err}
		}
		out[col] = bc
	}
	return out, nil
}
