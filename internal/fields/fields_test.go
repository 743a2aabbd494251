package fields

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(list []Field) []string {
	out := make([]string, len(list))
	for i, f := range list {
		out[i] = f.Name
	}
	return out
}

func TestParseTarget(t *testing.T) {
	for _, name := range []string{"ARGS", " args ", "request_headers", "REQUEST_BODY"} {
		_, err := ParseTarget(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseTarget("RESPONSE_BODY")
	assert.Error(t, err)
}

func TestParseArgsKeepsOrder(t *testing.T) {
	got := ParseArgs("b=foobar&a=foobaz&&c=%66oo&bad=%zz&flag")
	require.Len(t, got, 5)
	assert.Equal(t, []string{"b", "a", "c", "bad", "flag"}, names(got))
	assert.Equal(t, "foo", string(got[2].Value))
	assert.Equal(t, "%zz", string(got[3].Value))
	assert.Empty(t, got[4].Value)
	assert.Nil(t, ParseArgs(""))
}

func TestExtractArgsIncludesFormBody(t *testing.T) {
	body := "d=barfoo&e=arf"
	r := httptest.NewRequest(http.MethodPost, "/?a=foobaz&b=foobar", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

	got := Extract(r, []byte(body), TargetArgs)
	assert.Equal(t, []string{"a", "b", "d", "e"}, names(got))

	got = Extract(r, []byte(body), TargetArgsNames)
	require.Len(t, got, 4)
	assert.Equal(t, "d", string(got[2].Value))
}

func TestExtractArgsFromJSONBody(t *testing.T) {
	body := `{"user":"alice","count":2,"admin":true,"nested":{"a":"b"}}`
	r := httptest.NewRequest(http.MethodPost, "/?q=1", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	got := Extract(r, []byte(body), TargetArgs)
	assert.Equal(t, []string{"q", "admin", "count", "user"}, names(got))
	assert.Equal(t, "true", string(got[1].Value))
	assert.Equal(t, "2", string(got[2].Value))

	got = Extract(r, []byte("[1,2]"), TargetArgs)
	assert.Equal(t, []string{"q"}, names(got))
}

func TestExtractArgsIgnoresOtherBodies(t *testing.T) {
	body := `a=foo`
	r := httptest.NewRequest(http.MethodPost, "/?q=1", strings.NewReader(body))
	r.Header.Set("Content-Type", "text/plain")

	assert.Equal(t, []string{"q"}, names(Extract(r, []byte(body), TargetArgs)))
	whole := Extract(r, []byte(body), TargetRequestBody)
	require.Len(t, whole, 1)
	assert.Equal(t, body, string(whole[0].Value))
}

func TestExtractRequestLineAndURI(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/a/b?x=1", nil)

	line := Extract(r, nil, TargetRequestLine)
	require.Len(t, line, 1)
	assert.Equal(t, "GET /a/b?x=1 HTTP/1.1", string(line[0].Value))

	uri := Extract(r, nil, TargetRequestURI)
	require.Len(t, uri, 1)
	assert.Equal(t, "/a/b?x=1", string(uri[0].Value))

	query := Extract(r, nil, TargetQuery)
	require.Len(t, query, 1)
	assert.Equal(t, "x=1", string(query[0].Value))
	assert.Nil(t, Extract(r, nil, TargetRequestBody))
}

func TestExtractHeadersRedactsCredentials(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer secret")
	r.Header.Add("X-Test", "one")
	r.Header.Add("X-Test", "two")

	got := Extract(r, nil, TargetRequestHeaders)
	assert.Equal(t, []string{"Authorization", "X-Test", "X-Test"}, names(got))
	assert.True(t, got[0].Sensitive)
	assert.Equal(t, "<redacted>", string(got[0].Value))
	assert.Equal(t, "two", string(got[2].Value))
}
