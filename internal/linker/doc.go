// Package linker defines the shared types, collaborator interfaces and error
// taxonomy of the reconciliation pipeline that links canonical catalog entries
// to pages on third-party streaming sites.
package linker
