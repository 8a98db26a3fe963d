// Package mcpservice exposes the building blocks for implementing the server
// side of the protocol: the capability interfaces the transport dispatches
// against, a functional-option server constructor, and container types that
// own ordered, duplicate-rejecting sets of tools and resources.
//
// Registration is a startup-time activity. The transport freezes the
// containers before steady-state processing begins, after which the registry
// is read-only and requires no locking for lookups. Attempts to register
// after the freeze fail with ErrRegistryFrozen rather than racing the
// dispatcher.
//
// Tool argument validation is descriptor-driven: before a handler is invoked,
// the raw arguments are checked against the tool's declared input schema
// (required properties, types, enums, numeric bounds) and declared defaults
// are substituted for missing optional properties. Unknown properties are
// permitted and ignored for forward compatibility.
package mcpservice
