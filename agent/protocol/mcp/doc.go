// Package mcp implements the client side of the Model Context Protocol:
// the JSON-RPC 2.0 message shapes, the tool/resource/prompt catalog types
// (Resource, ToolDefinition, PromptTemplate), and the MCPClient contract
// that tooling.MCP dispatches list_mcps, list_mcp_tools, and use_mcp calls
// through.
//
// DefaultMCPClient is the concrete transport: it speaks Content-Length
// framed JSON-RPC 2.0 over an arbitrary io.Reader/io.Writer pair (a
// subprocess's stdio, typically), correlating requests to responses by
// ID and delivering unsolicited resource-update notifications to any
// subscriber channel still open for that URI.
package mcp
