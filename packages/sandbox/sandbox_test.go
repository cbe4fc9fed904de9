package sandbox

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

func testScript(code string) model.TestScript {
	return model.TestScript{ID: "s1", Name: "checks", Code: code, Type: model.ScriptTest, RequestID: "r1"}
}

func jsonResponse(status int, body string) *model.ResponseData {
	return &model.ResponseData{
		Status:     status,
		StatusText: "OK",
		Headers:    map[string]string{"content-type": "application/json", "x-request-id": "abc"},
		Body:       body,
		Time:       42,
		Size:       int64(len(body)),
	}
}

func runTest(t *testing.T, sb *Sandbox, code string, resp *model.ResponseData) TestOutcome {
	t.Helper()
	return sb.RunTest(context.Background(), TestRun{
		Script:   testScript(code),
		Request:  model.RequestConfig{ID: "r1", Method: "GET", URL: "https://api.example.com/users"},
		Response: resp,
	})
}

func TestRunTest_StatusMismatch(t *testing.T) {
	out := runTest(t, New(), `pm.test("ok", () => pm.response.to.have.status(200));`, jsonResponse(404, "{}"))

	require.Len(t, out.Results, 1)
	r := out.Results[0]
	assert.Equal(t, "ok", r.TestName)
	assert.False(t, r.Passed)
	assert.Equal(t, "Expected status 404 to equal 200", r.Message)
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.Timestamp.IsZero())
}

func TestRunTest_ResultsInCallOrder(t *testing.T) {
	code := `
pm.test("status", function () { pm.response.to.have.status(200); });
pm.test("fast", function () { pm.expect(pm.response.responseTime).to.be.below(10); });
pm.test("header", function () { pm.response.to.have.header("Content-Type"); });
`
	out := runTest(t, New(), code, jsonResponse(200, `{}`))

	require.Len(t, out.Results, 3)
	assert.Equal(t, []string{"status", "fast", "header"},
		[]string{out.Results[0].TestName, out.Results[1].TestName, out.Results[2].TestName})
	assert.True(t, out.Results[0].Passed)
	assert.False(t, out.Results[1].Passed)
	assert.Equal(t, "Expected 42 to be below 10", out.Results[1].Message)
	assert.True(t, out.Results[2].Passed)
}

func TestRunTest_ExpectChains(t *testing.T) {
	code := `
const body = pm.response.json();
pm.test("property", () => pm.expect(body).to.have.property("id", 7));
pm.test("deep", () => pm.expect(body.tags).to.deep.equal(["a", "b"]));
pm.test("not", () => pm.expect(body.name).to.not.equal("bob"));
pm.test("include", () => pm.expect(body.name).to.include("da"));
pm.test("match", () => pm.expect(body.name).to.match(/^AD/i));
pm.test("type", () => pm.expect(body.tags).to.be.an("array").and.have.lengthOf(2));
pm.test("exist", () => pm.expect(body.missing).to.not.exist);
pm.test("oneOf", () => pm.expect(pm.response.code).to.be.oneOf([200, 201]));
pm.test("least", () => pm.expect(body.id).to.be.at.least(7));
`
	out := runTest(t, New(), code, jsonResponse(200, `{"id": 7, "name": "ada", "tags": ["a", "b"]}`))

	require.Len(t, out.Results, 9)
	for _, r := range out.Results {
		assert.True(t, r.Passed, "%s: %s", r.TestName, r.Message)
	}
}

func TestRunTest_InvalidJSON(t *testing.T) {
	out := runTest(t, New(), `pm.test("json", () => pm.response.json());`, jsonResponse(200, "<html>"))

	require.Len(t, out.Results, 1)
	assert.False(t, out.Results[0].Passed)
	assert.Equal(t, "Response body is not valid JSON", out.Results[0].Message)
}

func TestRunTest_JSONPathAndHeaders(t *testing.T) {
	code := `
pm.test("path", () => pm.expect(pm.response.jsonPath("data.items.#")).to.equal(3));
pm.test("header", () => pm.expect(pm.response.headers.get("X-Request-Id")).to.equal("abc"));
pm.test("missing", () => pm.expect(pm.response.headers.has("etag")).to.be.false);
`
	out := runTest(t, New(), code, jsonResponse(200, `{"data": {"items": [1, 2, 3]}}`))

	require.Len(t, out.Results, 3)
	for _, r := range out.Results {
		assert.True(t, r.Passed, "%s: %s", r.TestName, r.Message)
	}
}

func TestRunTest_JSONSchema(t *testing.T) {
	code := `
pm.test("schema", () => pm.response.to.have.jsonSchema({
	type: "object",
	required: ["id"],
	properties: { id: { type: "integer" } }
}));
`
	out := runTest(t, New(), code, jsonResponse(200, `{"id": "seven"}`))

	require.Len(t, out.Results, 1)
	assert.False(t, out.Results[0].Passed)
	assert.Contains(t, out.Results[0].Message, "Expected body to match schema")
}

func TestRunTest_ScriptErrorReplacesResults(t *testing.T) {
	code := `
pm.test("first", () => {});
pm.test("second", () => { throw new Error("nope"); });
pm.environment.set("token", "abc");
undefinedFunction();
pm.test("never", () => {});
`
	out := runTest(t, New(), code, jsonResponse(200, "{}"))

	require.Len(t, out.Results, 1)
	assert.Equal(t, "Script Execution", out.Results[0].TestName)
	assert.False(t, out.Results[0].Passed)
	assert.Contains(t, out.Results[0].Message, "undefinedFunction")
	assert.Empty(t, out.EnvironmentWrites)
}

func TestRunTest_CompilationError(t *testing.T) {
	out := runTest(t, New(), `pm.test("broken", () => {`, jsonResponse(200, "{}"))

	require.Len(t, out.Results, 1)
	assert.Equal(t, "Script Compilation", out.Results[0].TestName)
	assert.False(t, out.Results[0].Passed)
	assert.NotEmpty(t, out.Results[0].Message)
}

func TestRunTest_ThrownValues(t *testing.T) {
	code := `
pm.test("string", () => { throw "boom"; });
pm.test("error", () => { throw new Error("bad thing"); });
`
	out := runTest(t, New(), code, jsonResponse(200, "{}"))

	require.Len(t, out.Results, 2)
	assert.Equal(t, "boom", out.Results[0].Message)
	assert.Equal(t, "bad thing", out.Results[1].Message)
}

func TestRunTest_Timeout(t *testing.T) {
	sb := New(WithTimeout(50 * time.Millisecond))
	out := runTest(t, sb, `pm.test("spin", () => { while (true) {} });`, jsonResponse(200, "{}"))

	require.Len(t, out.Results, 1)
	assert.Equal(t, "Script Timeout", out.Results[0].TestName)
	assert.False(t, out.Results[0].Passed)
}

func TestRunTest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := New().RunTest(ctx, TestRun{Script: testScript(`pm.test("a", () => {});`), Response: jsonResponse(200, "{}")})

	require.Len(t, out.Results, 1)
	assert.Equal(t, "Script Cancelled", out.Results[0].TestName)
}

func TestRunTest_NoAmbientCapabilities(t *testing.T) {
	code := `
pm.test("require", () => pm.expect(typeof require).to.equal("undefined"));
pm.test("process", () => pm.expect(typeof process).to.equal("undefined"));
pm.test("global pm", () => pm.expect(typeof globalThis.pm).to.equal("undefined"));
`
	out := runTest(t, New(), code, jsonResponse(200, "{}"))

	require.Len(t, out.Results, 3)
	for _, r := range out.Results {
		assert.True(t, r.Passed, "%s: %s", r.TestName, r.Message)
	}
}

func TestRunTest_EnvironmentWrites(t *testing.T) {
	environment := &model.Environment{Name: "dev", Variables: []model.KeyValue{
		{Key: "token", Value: "old", Enabled: true},
		{Key: "hidden", Value: "x", Enabled: false},
	}}
	code := `
pm.test("read", () => pm.expect(pm.environment.get("token")).to.equal("old"));
pm.test("disabled", () => pm.expect(pm.environment.get("hidden")).to.be.undefined);
pm.environment.set("token", pm.response.json().token);
pm.environment.set("count", 3);
pm.test("read own write", () => pm.expect(pm.environment.get("token")).to.equal("new"));
`
	out := New().RunTest(context.Background(), TestRun{
		Script:      testScript(code),
		Response:    jsonResponse(200, `{"token": "new"}`),
		Environment: environment,
	})

	for _, r := range out.Results {
		assert.True(t, r.Passed, "%s: %s", r.TestName, r.Message)
	}
	assert.Equal(t, []model.KeyValue{
		{Key: "token", Value: "new", Enabled: true},
		{Key: "count", Value: "3", Enabled: true},
	}, out.EnvironmentWrites)
	assert.Equal(t, "old", environment.Variables[0].Value)
}

func TestRunTest_GlobalsArePrivate(t *testing.T) {
	sb := New()
	first := runTest(t, sb, `pm.globals.set("seen", true); pm.test("set", () => pm.expect(pm.globals.get("seen")).to.be.true);`, jsonResponse(200, "{}"))
	second := runTest(t, sb, `pm.test("fresh", () => pm.expect(pm.globals.has("seen")).to.be.false);`, jsonResponse(200, "{}"))

	require.Len(t, first.Results, 1)
	require.Len(t, second.Results, 1)
	assert.True(t, first.Results[0].Passed)
	assert.True(t, second.Results[0].Passed, second.Results[0].Message)
}

func TestRunTest_ConsoleLogsThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	runTest(t, New(WithLogger(logger)), `console.log("user id", {id: 7});`, jsonResponse(200, "{}"))

	assert.Contains(t, buf.String(), `user id {\"id\":7}`)
	assert.Contains(t, buf.String(), "script=checks")
}

func TestRunPreRequest_HeaderUpsert(t *testing.T) {
	req := model.RequestConfig{
		ID:      "r1",
		Method:  "GET",
		URL:     "https://api.example.com",
		Headers: []model.KeyValue{{ID: "h1", Key: "Accept", Value: "text/plain", Enabled: true}},
	}
	code := `
pm.request.headers.upsert({key: "X-Trace", value: "1"});
pm.request.headers.upsert({key: "X-Trace", value: "2"});
pm.request.headers.add({key: "X-Extra", value: "yes"});
pm.request.headers.upsert({key: "Accept", value: pm.request.headers.get("accept") + ", application/json"});
`
	out := New().RunPreRequest(context.Background(), model.TestScript{Name: "pre", Code: code, Type: model.ScriptPreRequest}, req, nil)

	require.NoError(t, out.Err)
	headers := out.Request.Headers
	require.Len(t, headers, 3)
	assert.Equal(t, "text/plain, application/json", headers[0].Value)
	assert.Equal(t, "X-Trace", headers[1].Key)
	assert.Equal(t, "2", headers[1].Value)
	assert.Equal(t, "X-Extra", headers[2].Key)
	assert.Len(t, req.Headers, 1, "original request must not change")
}

func TestRunPreRequest_FailureReturnsOriginal(t *testing.T) {
	req := model.RequestConfig{ID: "r1", Method: "GET", URL: "https://api.example.com"}
	code := `
pm.request.headers.add({key: "X-Partial", value: "1"});
pm.environment.set("token", "abc");
throw new Error("nope");
`
	out := New().RunPreRequest(context.Background(), model.TestScript{Name: "pre", Code: code}, req, nil)

	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "nope")
	assert.Empty(t, out.Request.Headers)
	assert.Empty(t, out.EnvironmentWrites)
}

func TestRunPreRequest_EnvironmentWrites(t *testing.T) {
	req := model.RequestConfig{ID: "r1", Method: "GET", URL: "https://api.example.com"}
	out := New().RunPreRequest(context.Background(), model.TestScript{Name: "pre", Code: `pm.environment.set("ts", "123");`}, req, nil)

	require.NoError(t, out.Err)
	assert.Equal(t, []model.KeyValue{{Key: "ts", Value: "123", Enabled: true}}, out.EnvironmentWrites)
}

func TestRunPreRequest_HeaderArgumentValidation(t *testing.T) {
	req := model.RequestConfig{ID: "r1", Method: "GET", URL: "https://api.example.com"}
	out := New().RunPreRequest(context.Background(), model.TestScript{Name: "pre", Code: `pm.request.headers.add({value: "x"});`}, req, nil)

	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "header key is required")
}
