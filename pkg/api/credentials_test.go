package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peer-hub/pkg/auth"
)

func postVerify(t *testing.T, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/api/v1/credentials/verify", strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("X-Auth-Token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestVerifyChecksLivePolicy(t *testing.T) {
	policy, err := auth.NewPolicy(map[string]string{"admin": "pw"})
	require.NoError(t, err)
	h := &CredentialHandler{Token: "s3cret", Policy: func() auth.Policy { return policy }}
	srv := httptest.NewServer(http.HandlerFunc(h.Verify))
	defer srv.Close()

	valid := func(body string) bool {
		resp := postVerify(t, srv.URL, "s3cret", body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out map[string]bool
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out["valid"]
	}
	assert.True(t, valid(`{"username":"admin","password":"pw"}`))
	assert.False(t, valid(`{"username":"admin","password":"nope"}`))
	assert.False(t, valid(`{"username":"ghost","password":"pw"}`))

	assert.Equal(t, http.StatusUnauthorized, postVerify(t, srv.URL, "", `{"username":"admin","password":"pw"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, postVerify(t, srv.URL, "s3cret", `{}`).StatusCode)
}

func TestVerifyWithoutPolicyRejects(t *testing.T) {
	h := &CredentialHandler{}
	srv := httptest.NewServer(http.HandlerFunc(h.Verify))
	defer srv.Close()

	resp := postVerify(t, srv.URL, "", `{"username":"admin","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out["valid"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credentials/verify", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
