// Package cli builds the tilestack command tree and maps failures to process
// exit codes: 1 when a tile failed, was cancelled or is corrupt, and 2 for bad
// flags or configuration.
package cli
