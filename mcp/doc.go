// Package mcp declares the wire-level data model of the Model Context
// Protocol surface this library implements: method names, capability
// advertisements, tool and resource descriptors, and the request/result
// payloads exchanged during the initialize handshake and steady-state
// dispatch. The types here are pure data; all behavior lives in the
// transport and service packages.
package mcp
