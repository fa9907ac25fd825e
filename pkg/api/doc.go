// Package api defines the core domain types shared across the colloquy
// pipeline: conversation turns, tool traces, token usage, assembled
// instruction sets, request/reply shapes, error types, and ID generation.
//
// The package has zero external dependencies (Go standard library only)
// and performs no I/O.
package api
