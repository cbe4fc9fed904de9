// Package model defines the request, response, script and result types shared
// by the resolver, dispatcher, sandbox and recorder.
//
// Request bodies and auth schemes are closed sum types: a RequestBody is one of
// NoBody, TextBody, JSONBody, FileBody or FormDataBody, and an Auth is one of
// NoAuth, BasicAuth, BearerAuth or APIKeyAuth. Consumers switch on the concrete
// type.
package model
