package config

import (
	"fmt"
	"os"
	"strings"
)

// Secrets resolves credentials by variable name. A variable NAME may instead
// be given as NAME_FILE, the path of a file holding the value; the file wins
// when both are set. Values read from files are trimmed.
type Secrets struct {
	Lookup   func(name string) (string, bool)
	ReadFile func(path string) ([]byte, error)
}

// EnvSecrets reads the process environment and the filesystem.
var EnvSecrets = Secrets{Lookup: os.LookupEnv, ReadFile: os.ReadFile}

// Resolve returns the value of name, or "" when neither name nor name_FILE
// is set.
func (s Secrets) Resolve(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	fileVar := name + "_FILE"
	if path, ok := s.Lookup(fileVar); ok && path != "" {
		content, err := s.ReadFile(path)
		if err != nil {
			// Report the path only; the content is never logged.
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileVar, path, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	v, _ := s.Lookup(name)
	return v, nil
}

// ResolveAll resolves names in order and stops at the first failure.
func (s Secrets) ResolveAll(names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		v, err := s.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", name, err)
		}
		out[i] = v
	}
	return out, nil
}

// ResolveSecret resolves name from the environment.
func ResolveSecret(name string) (string, error) {
	return EnvSecrets.Resolve(name)
}

// Secret returns inline when it is set and resolves envName otherwise.
func Secret(inline, envName string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	return ResolveSecret(envName)
}
