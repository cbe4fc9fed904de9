// Package builtin provides dynamic variables for reqly requests.
//
// A Scope resolves tokens that start with $ and is consulted after the
// environment, so an environment key never collides with it:
//   - {{$guid}}, {{$randomUUID}}: a random UUID v4
//   - {{$timestamp}}, {{$timestampMs}}, {{$isoTimestamp}}: the current time
//   - {{$randomInt}}, {{$randomInt(1, 6)}}: a random integer
//   - {{$randomString(12)}}, {{$randomAlphaNumeric}}, {{$randomEmail}}
//   - {{$base64(text)}}, {{$md5(text)}}, {{$sha256(text)}}, {{$urlEncode(text)}}
//   - {{$date(2006-01-02)}}: the current UTC date in a Go layout
//
// Every token is evaluated on its own, so repeated tokens differ.
package builtin
