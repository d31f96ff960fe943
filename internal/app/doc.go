// Package app contains the core application logic. It loads and validates the
// run configuration, builds the catalog view, wires the assembler, store and
// run driver together and reports the outcome, decoupled from any specific
// entrypoint like a CLI.
package app
