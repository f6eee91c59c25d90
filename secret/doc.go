// Package secret resolves credential values supplied on the command line
// or in configuration, so tokens and passwords never have to be written
// out in plain text.
//
// It supports:
//   - Strict environment expansion (see ExpandEnvStrict)
//   - Pluggable secret providers (see Provider)
//   - Resolving secret references in configuration values (see Resolver)
//
// References use the prefix "secretref:":
//   - Full value:  secretref:env:SEARCHCTL_PASSWORD
//   - File-backed: secretref:file:/run/secrets/search-token
//   - Inline use:  Bearer secretref:env:SEARCHCTL_TOKEN
package secret
