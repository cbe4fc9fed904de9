// Package http dispatches reqly requests.
//
// It wraps the standard library's http package with additional features:
//   - Direct and relayed dispatch from one resolved request
//   - Auth, body and multipart building from the request model
//   - Content-Encoding and charset normalization of responses
//   - A fixed per-call timeout and a failure taxonomy that turns transport
//     errors into a status-0 response
//   - A per-request in-flight guard
package http
