package envfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/joho/godotenv"
)

// DefaultPath is the dotenv file read from the working directory.
const DefaultPath = ".env"

// Env holds the key/value pairs declared by a dotenv file.
type Env struct {
	vars   map[string]string
	lookup func(string) (string, bool)
}

// Load parses the dotenv file at path. A missing file yields an empty Env.
func Load(path string) (Env, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(nil), nil
		}
		return Env{}, fmt.Errorf("read env file %s: %w", path, err)
	}
	return New(vars), nil
}

// New wraps vars, resolving lookups against the process environment first.
func New(vars map[string]string) Env {
	if vars == nil {
		vars = map[string]string{}
	}
	return Env{vars: vars, lookup: os.LookupEnv}
}

// WithLookup returns a copy of e that consults lookup instead of the
// process environment.
func (e Env) WithLookup(lookup func(string) (string, bool)) Env {
	e.lookup = lookup
	return e
}

// Lookup returns the value for key. Values already present in the
// environment take precedence over the file.
func (e Env) Lookup(key string) (string, bool) {
	if e.lookup != nil {
		if v, ok := e.lookup(key); ok {
			return v, true
		}
	}
	v, ok := e.vars[key]
	return v, ok
}

// Get is Lookup without the presence flag.
func (e Env) Get(key string) string {
	v, _ := e.Lookup(key)
	return v
}

// Keys returns the declared keys in sorted order.
func (e Env) Keys() []string {
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply sets each declared key that lookup reports as unset and returns
// the keys it set.
func (e Env) Apply(setenv func(string, string) error, lookup func(string) (string, bool)) ([]string, error) {
	var set []string
	for _, k := range e.Keys() {
		if _, ok := lookup(k); ok {
			continue
		}
		if err := setenv(k, e.vars[k]); err != nil {
			return set, fmt.Errorf("set %s: %w", k, err)
		}
		set = append(set, k)
	}
	return set, nil
}

// Apply copies e into the process environment without overriding
// existing variables.
func Apply(e Env) ([]string, error) {
	return e.Apply(os.Setenv, os.LookupEnv)
}
