package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatdispatch/internal/config"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if field != "" {
		part, err := writer.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, writer.WriteField("note", "no file here"))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func postUpload(t *testing.T, env *testEnv, body io.Reader, contentType, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/upload", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := env.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadStoresAndServesFile(t *testing.T) {
	env := startTestServer(t, nil)

	body, contentType := multipartBody(t, "file", "Cat.PNG", pngHeader)
	resp := postUpload(t, env, body, contentType, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	assert.Equal(t, "Cat.PNG", uploaded.OriginalName)
	assert.Equal(t, int64(len(pngHeader)), uploaded.FileSize)
	assert.Equal(t, "image/png", uploaded.MimeType)
	assert.Regexp(t, `^/uploads/[0-9a-f-]{36}\.png$`, uploaded.URL)

	served, err := env.ts.Client().Get(env.ts.URL + uploaded.URL)
	require.NoError(t, err)
	defer served.Body.Close()
	assert.Equal(t, http.StatusOK, served.StatusCode)
	content, err := io.ReadAll(served.Body)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, content)
}

func TestUploadWithoutFile(t *testing.T) {
	env := startTestServer(t, nil)

	body, contentType := multipartBody(t, "", "", nil)
	resp := postUpload(t, env, body, contentType, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, "No file uploaded", errResp.Error)
}

func TestUploadTooLarge(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.Upload.MaxBytes = 16
	})

	body, contentType := multipartBody(t, "file", "big.bin", bytes.Repeat([]byte("x"), 64))
	resp := postUpload(t, env, body, contentType, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUploadRequiresToken(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.JWT.Secret = testJWTSecret
		cfg.Upload.RequireToken = true
	})

	body, contentType := multipartBody(t, "file", "a.txt", []byte("hello"))
	resp := postUpload(t, env, body, contentType, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body, contentType = multipartBody(t, "file", "a.txt", []byte("hello"))
	resp = postUpload(t, env, body, contentType, "garbage")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := env.auth.IssueUploadToken("alice")
	require.NoError(t, err)
	body, contentType = multipartBody(t, "file", "a.txt", []byte("hello"))
	resp = postUpload(t, env, body, contentType, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
