// Package workspace reads and writes reqly request files.
//
// A workspace is a directory of YAML request files plus environments:
//   - Request files hold method, URL, headers, params, body, auth, proxy and scripts
//   - Scripts are inline code or paths relative to the request file
//   - Environments live in environments/<name>.yaml or dotenv files
//
// Example request file:
//
//	name: Get user
//	method: GET
//	url: "{{baseUrl}}/users/1"
//	headers:
//	  Accept: application/json
//	scripts:
//	  test:
//	    - name: status
//	      code: |
//	        pm.test("ok", () => pm.response.to.have.status(200));
package workspace
