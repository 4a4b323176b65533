package fixture

import (
	"bytes"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks fixtures against a compiled JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

// LoadSchema compiles the JSON schema stored at path.
func LoadSchema(path string) (*Validator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return CompileSchema(path, data)
}

// CompileSchema compiles schema bytes registered under name.
func CompileSchema(name string, data []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	s, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Validator{schema: s}, nil
}

// Validate returns one error per schema violation found in ev.
func (v *Validator) Validate(ev Event) []error {
	doc, err := Decode(ev)
	if err != nil {
		return []error{err}
	}
	if err := v.schema.Validate(doc); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			var errs []error
			for _, e := range ve.Causes {
				errs = append(errs, fmt.Errorf("%s: %s", instance(e.InstanceLocation), e.Message))
			}
			if len(errs) == 0 {
				errs = append(errs, err)
			}
			return errs
		}
		return []error{err}
	}
	return nil
}

func instance(loc string) string {
	if loc == "" {
		return "/"
	}
	return loc
}
