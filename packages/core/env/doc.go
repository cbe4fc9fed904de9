// Package env handles environments and {{variable}} resolution for reqly.
//
// It provides functionality for:
//   - Single-pass {{name}} substitution against ordered scopes
//   - Listing referenced and unresolved variables
//   - Optional strict resolution that fails on unresolved tokens
//   - Loading YAML environment files and .env files
package env
