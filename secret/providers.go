package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider resolves references against the process environment. The ref
// is the variable name.
type EnvProvider struct{}

// Name returns the provider name used in secretref values.
func (EnvProvider) Name() string { return "env" }

// Resolve looks the ref up in the environment. An unset variable is an
// error; empty-but-set is the resolver's strictness call.
func (EnvProvider) Resolve(ctx context.Context, ref string) (string, error) {
	value, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("environment variable %q is not set", ref)
	}
	return value, nil
}

// Close is a no-op: the environment holds no resources.
func (EnvProvider) Close() error { return nil }

// FileProvider resolves references as filesystem paths, the shape used by
// container secret mounts. The ref is the file path.
type FileProvider struct{}

// Name returns the provider name used in secretref values.
func (FileProvider) Name() string { return "file" }

// Resolve reads the file and strips one trailing newline, which secret
// files written by editors and orchestrators almost always carry.
func (FileProvider) Resolve(ctx context.Context, ref string) (string, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("reading secret file: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// Close is a no-op.
func (FileProvider) Close() error { return nil }

// DefaultResolver returns a strict resolver with the env and file
// providers registered: the configuration every command starts from.
func DefaultResolver() *Resolver {
	return NewResolver(true, EnvProvider{}, FileProvider{})
}
