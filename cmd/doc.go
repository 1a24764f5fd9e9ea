// Package cmd defines and implements the CLI commands for the linker
// executable: serve runs the trigger API, sweep and search run a single
// reconciliation pass and exit.
package cmd
