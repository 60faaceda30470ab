// Package types defines the wire vocabulary shared by every other package
// in this module: conversation messages, tool schemas, and tool results.
//
// It has zero dependencies on any other package in this module, so that
// store, registry, bus, tooling, loop, and llm can all import it without
// creating an import cycle.
package types
