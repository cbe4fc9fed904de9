// Package curl converts curl command lines into reqly request files.
//
// Supported flags:
//   - -X/--request, -H/--header, -u/--user, --url
//   - -d/--data, --data-raw, --data-binary, --json
//   - -F/--form with @file references
//   - -A/--user-agent, -e/--referer, -b/--cookie as headers
//
// Transport flags such as -k and -L are accepted and ignored.
package curl
