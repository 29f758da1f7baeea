package grader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-pdf/fpdf"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	gateway "github.com/mathfe/grader/apigateway"
	"github.com/mathfe/grader/sessions"
	"github.com/mathfe/grader/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	App     *fiber.App
	Service *Service
	Redis   *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.OpenFromConfig("", filepath.Join(t.TempDir(), "grader.db"), "sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	svc := &Service{
		Store:    store.New(db),
		Sessions: sessions.NewRegistry(client, time.Hour),
		Logger:   logger,
	}
	app := fiber.New(fiber.Config{ErrorHandler: gateway.ErrorHandler(logger)})
	svc.Register(app)
	return &testEnv{App: app, Service: svc, Redis: server}
}

func (e *testEnv) do(t *testing.T, method, path, sid string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(fiber.HeaderContentType, contentType)
	}
	if sid != "" {
		req.Header.Set(gateway.SessionIDHeader, sid)
	}
	resp, err := e.App.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) doJSON(t *testing.T, method, path, sid string, payload interface{}) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return e.do(t, method, path, sid, body, fiber.MIMEApplicationJSON)
}

func decode(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst), string(raw))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var payload struct {
		Code string `json:"code"`
	}
	decode(t, resp, &payload)
	return payload.Code
}

func (e *testEnv) newSession(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/sessions", "", nil, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sess store.Session
	decode(t, resp, &sess)
	require.NotEmpty(t, sess.ID)
	return sess.ID
}

func samplePDF(t *testing.T, pages int) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		doc.AddPage()
		doc.Cell(40, 10, fmt.Sprintf("answer page %d", i+1))
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

type uploadPart struct {
	name    string
	content []byte
}

func (e *testEnv) upload(t *testing.T, sid string, parts ...uploadPart) *http.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range parts {
		fw, err := w.CreateFormFile("files", p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return e.do(t, http.MethodPost, "/uploads", sid, &body, w.FormDataContentType())
}

// gradedSession uploads two single-page scripts, the first named after a
// student, and saves a two-question scheme worth 4 and 6 marks.
func (e *testEnv) gradedSession(t *testing.T) string {
	t.Helper()
	sid := e.newSession(t)
	resp := e.upload(t, sid,
		uploadPart{name: "hw1_A0000001B.pdf", content: samplePDF(t, 1)},
		uploadPart{name: "scan.pdf", content: samplePDF(t, 1)},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = e.doJSON(t, http.MethodPut, "/scheme", sid, map[string]any{
		"total":     10,
		"questions": map[string]int{"1": 4, "2": 6},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return sid
}
