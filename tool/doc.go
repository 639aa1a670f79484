// Package tool defines the contract between service tool modules and the
// dispatch/export layers.
//
// The package is intentionally split by concern:
//   - definition: declarative tool metadata (name, description, parameters)
//     plus the handler that executes it
//   - validate: mechanical argument validation against declared parameters
//   - error: the shared error taxonomy that flows from handlers through the
//     dispatcher to callers without losing its kind
//
// A tool is declared once at startup and is immutable afterwards. Handlers
// are stateless; the only shared mutable state in the system is the token
// cache owned by the auth package.
package tool
