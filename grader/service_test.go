package grader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mathfe/grader/grading"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/files", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", errorCode(t, resp))

	resp = env.do(t, http.MethodGet, "/files", uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "session_expired", errorCode(t, resp))
}

func TestSessionExpires(t *testing.T) {
	env := newTestEnv(t)
	sid := env.newSession(t)

	resp := env.do(t, http.MethodGet, "/files", sid, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.Redis.FastForward(2 * time.Hour)
	resp = env.do(t, http.MethodGet, "/files", sid, nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	sid := env.gradedSession(t)

	resp := env.do(t, http.MethodDelete, "/sessions", sid, nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/files", sid, nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	files, err := env.Service.Store.ListFiles(context.Background(), sid)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUploadAndFiles(t *testing.T) {
	env := newTestEnv(t)
	sid := env.newSession(t)

	resp := env.upload(t, sid,
		uploadPart{name: "tutorial3_a0123456x.pdf", content: samplePDF(t, 2)},
		uploadPart{name: "anonymous.pdf", content: samplePDF(t, 1)},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Files []FileView `json:"files"`
	}
	decode(t, resp, &listing)
	require.Len(t, listing.Files, 2)
	assert.Equal(t, 0, listing.Files[0].Idx)
	assert.Equal(t, "A0123456X", listing.Files[0].StudentNumber)
	assert.Equal(t, 2, listing.Files[0].PageCount)
	assert.NotEmpty(t, listing.Files[0].Size)
	assert.Empty(t, listing.Files[1].StudentNumber)
	assert.False(t, listing.Files[1].Completed)

	resp = env.do(t, http.MethodGet, "/files/1", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var one FileView
	decode(t, resp, &one)
	assert.Equal(t, "anonymous.pdf", one.Name)

	resp = env.do(t, http.MethodGet, "/files/1/pdf", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get(fiber.HeaderContentType))

	resp = env.do(t, http.MethodGet, "/files/0/pages/1", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(page), "%PDF-"))

	resp = env.do(t, http.MethodGet, "/files/0/pages/2", sid, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/files/5", sid, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/files/x/pdf", sid, nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	env := newTestEnv(t)
	sid := env.newSession(t)

	resp := env.upload(t, sid, uploadPart{name: "notes.txt", content: []byte("not a pdf")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_pdf", errorCode(t, resp))

	resp = env.upload(t, sid)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadLimit(t *testing.T) {
	env := newTestEnv(t)
	env.Service.Limits.UploadBytes = 10
	sid := env.newSession(t)

	resp := env.upload(t, sid, uploadPart{name: "a.pdf", content: samplePDF(t, 1)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", errorCode(t, resp))
}

func TestReuploadResetsGrading(t *testing.T) {
	env := newTestEnv(t)
	sid := env.gradedSession(t)

	resp := env.doJSON(t, http.MethodPost, "/files/0/questions/1/rubric", sid, map[string]any{"marks": 1, "description": "sign error"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.upload(t, sid, uploadPart{name: "again.pdf", content: samplePDF(t, 1)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/files/0/questions/1/rubric", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var qr QuestionRubric
	decode(t, resp, &qr)
	assert.Empty(t, qr.Items)
	assert.Equal(t, 4, qr.Score)
}

func TestSchemeFlow(t *testing.T) {
	env := newTestEnv(t)
	sid := env.newSession(t)

	var scheme grading.Scheme
	resp := env.do(t, http.MethodGet, "/scheme", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &scheme)
	assert.Equal(t, grading.NewScheme(), scheme)

	resp = env.doJSON(t, http.MethodPut, "/scheme/questions", sid, map[string]int{"count": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &scheme)
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1}, scheme.Questions)

	resp = env.doJSON(t, http.MethodPut, "/scheme/questions/2", sid, map[string]int{"score": 9})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "scheme_overflow", errorCode(t, resp))

	resp = env.doJSON(t, http.MethodPut, "/scheme/questions/2", sid, map[string]int{"score": 8})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.doJSON(t, http.MethodPut, "/scheme/questions/4", sid, map[string]int{"score": 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/scheme/validate", sid, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.doJSON(t, http.MethodPut, "/scheme/total", sid, map[string]int{"total": 12})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/scheme/validate", sid, nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "scheme_incomplete", errorCode(t, resp))

	resp = env.doJSON(t, http.MethodPut, "/scheme/total", sid, map[string]int{"total": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", errorCode(t, resp))

	resp = env.doJSON(t, http.MethodPut, "/scheme", sid, map[string]any{"total": 5, "questions": map[string]int{"1": 3, "2": 3}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "scheme_overflow", errorCode(t, resp))

	resp = env.doJSON(t, http.MethodPut, "/scheme", sid, map[string]any{"total": 10, "questions": map[string]int{"1": 5, "7": 5}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", errorCode(t, resp))

	resp = env.do(t, http.MethodGet, "/scheme", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &scheme)
	assert.Equal(t, 12, scheme.Total)
	assert.NotContains(t, scheme.Questions, 7)
}

func addRubric(t *testing.T, env *testEnv, sid string, file, q, marks int, desc string) QuestionRubric {
	t.Helper()
	resp := env.doJSON(t, http.MethodPost, fmt.Sprintf("/files/%d/questions/%d/rubric", file, q), sid,
		map[string]any{"marks": marks, "description": desc})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var qr QuestionRubric
	decode(t, resp, &qr)
	return qr
}

func getRubric(t *testing.T, env *testEnv, sid string, file, q int) QuestionRubric {
	t.Helper()
	resp := env.do(t, http.MethodGet, fmt.Sprintf("/files/%d/questions/%d/rubric", file, q), sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var qr QuestionRubric
	decode(t, resp, &qr)
	return qr
}

func TestRubricAddAndDelete(t *testing.T) {
	env := newTestEnv(t)
	sid := env.gradedSession(t)

	qr := addRubric(t, env, sid, 0, 1, 2, "sign error")
	require.Len(t, qr.Items, 1)
	assert.Equal(t, -2, qr.Items[0].Marks)
	assert.Equal(t, 4, qr.Total)
	assert.Equal(t, 2, qr.Score)
	assert.False(t, qr.Overdrawn)

	qr = addRubric(t, env, sid, 0, 1, 5, "no working")
	assert.Equal(t, -3, qr.Score)
	assert.True(t, qr.Overdrawn)

	resp := env.doJSON(t, http.MethodPost, "/files/0/questions/1/rubric", sid, map[string]any{"marks": 0, "description": " "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var payload struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	}
	decode(t, resp, &payload)
	assert.Equal(t, "validation_error", payload.Code)
	assert.Equal(t, "marks cannot be 0", payload.Fields["marks"])
	assert.Equal(t, "rubric description cannot be empty", payload.Fields["description"])

	resp = env.do(t, http.MethodGet, "/files/0/questions/7/rubric", sid, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.Len(t, qr.Items, 2)
	path := fmt.Sprintf("/files/0/questions/1/rubric/%d", qr.Items[1].ItemIdx)
	resp = env.do(t, http.MethodDelete, path, sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var after QuestionRubric
	decode(t, resp, &after)
	require.Len(t, after.Items, 1)
	assert.Equal(t, "sign error", after.Items[0].Description)
	assert.Equal(t, 2, after.Score)
	assert.False(t, after.Overdrawn)

	resp = env.do(t, http.MethodDelete, path, sid, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRubricEditScopes(t *testing.T) {
	env := newTestEnv(t)
	sid := env.gradedSession(t)

	edited := addRubric(t, env, sid, 0, 1, 2, "sign error").Items[0]
	addRubric(t, env, sid, 1, 1, 2, "sign error")
	addRubric(t, env, sid, 1, 2, 2, "sign error")
	addRubric(t, env, sid, 1, 2, 1, "no units")

	itemPath := fmt.Sprintf("/files/0/questions/1/rubric/%d", edited.ItemIdx)
	resp := env.doJSON(t, http.MethodPost, itemPath+"/edit", sid, map[string]any{"marks": 3, "description": "sign slip"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p grading.EditProposal
	decode(t, resp, &p)
	require.Len(t, p.New, 1)
	assert.Equal(t, -3, p.New[0].Marks)
	assert.Len(t, p.Matched, 2)
	require.NotNil(t, p.OriginalMarks)
	assert.Equal(t, -2, *p.OriginalMarks)

	resp = env.doJSON(t, http.MethodPut, itemPath, sid, map[string]any{"marks": 3, "description": "sign slip", "scope": "everything"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.doJSON(t, http.MethodPut, itemPath, sid, map[string]any{"marks": 3, "description": "sign slip", "scope": "question"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var applied struct {
		Rubric  QuestionRubric `json:"rubric"`
		Updated int64          `json:"updated"`
	}
	decode(t, resp, &applied)
	assert.Equal(t, int64(2), applied.Updated)
	assert.Equal(t, "sign slip", applied.Rubric.Items[0].Description)
	assert.Equal(t, 1, applied.Rubric.Score)

	q1 := getRubric(t, env, sid, 1, 1)
	assert.Equal(t, -3, q1.Items[0].Marks)
	assert.Equal(t, "sign error", q1.Items[0].Description)

	q2 := getRubric(t, env, sid, 1, 2)
	assert.Equal(t, -2, q2.Items[0].Marks)
	assert.Equal(t, -1, q2.Items[1].Marks)
}

func TestRubricEditAllScope(t *testing.T) {
	env := newTestEnv(t)
	sid := env.gradedSession(t)

	edited := addRubric(t, env, sid, 0, 1, 2, "sign error").Items[0]
	addRubric(t, env, sid, 1, 2, 2, "sign error")

	itemPath := fmt.Sprintf("/files/0/questions/1/rubric/%d", edited.ItemIdx)
	resp := env.doJSON(t, http.MethodPut, itemPath, sid, map[string]any{"marks": 1, "description": "sign error", "scope": "everywhere"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", errorCode(t, resp))

	resp = env.doJSON(t, http.MethodPut, itemPath, sid, map[string]any{"marks": 1, "description": "sign error", "scope": "ALL"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var applied struct {
		Scope   string `json:"scope"`
		Updated int64  `json:"updated"`
	}
	decode(t, resp, &applied)
	assert.Equal(t, "all", applied.Scope)
	assert.Equal(t, int64(2), applied.Updated)

	assert.Equal(t, -1, getRubric(t, env, sid, 1, 2).Items[0].Marks)
}

func TestStudentNumberAndSubmit(t *testing.T) {
	env := newTestEnv(t)
	sid := env.gradedSession(t)

	resp := env.do(t, http.MethodPost, "/files/1/submit", sid, nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "student_number_required", errorCode(t, resp))

	resp = env.doJSON(t, http.MethodPut, "/files/1/student", sid, map[string]string{"student_number": "12345"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", errorCode(t, resp))

	resp = env.doJSON(t, http.MethodPut, "/files/1/student", sid, map[string]string{"student_number": " a0000002b "})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var set map[string]any
	decode(t, resp, &set)
	assert.Equal(t, "A0000002B", set["student_number"])

	resp = env.do(t, http.MethodPost, "/files/1/submit", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/files/1", sid, nil, "")
	var view FileView
	decode(t, resp, &view)
	assert.True(t, view.Completed)
	assert.NotNil(t, view.CompletedAt)

	resp = env.do(t, http.MethodPost, "/files/9/submit", sid, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	sid := env.newSession(t)

	resp := env.do(t, http.MethodGet, "/stats/overall", sid, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no_grading_data", errorCode(t, resp))

	sid = env.gradedSession(t)
	resp = env.do(t, http.MethodGet, "/stats/overall", sid, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	addRubric(t, env, sid, 0, 1, 1, "sign error")
	resp = env.doJSON(t, http.MethodPut, "/files/1/student", sid, map[string]string{"student_number": "A0000002B"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/files/1/submit", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/stats/overall", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var overall struct {
		Total   int                 `json:"total"`
		Scripts int                 `json:"scripts"`
		Stats   grading.OverallStat `json:"stats"`
	}
	decode(t, resp, &overall)
	assert.Equal(t, 2, overall.Scripts)
	assert.Equal(t, 9, overall.Stats.Lowest)
	assert.Equal(t, 10, overall.Stats.Highest)
	assert.Equal(t, 9.5, overall.Stats.Median)

	resp = env.do(t, http.MethodGet, "/stats/questions", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var table grading.QuestionStatsTable
	decode(t, resp, &table)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, 3, *table.Rows[0].Lowest)

	resp = env.do(t, http.MethodGet, "/stats/rubric?question=1", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var breakdown struct {
		Rows []grading.RubricBreakdownRow `json:"rows"`
	}
	decode(t, resp, &breakdown)
	require.Len(t, breakdown.Rows, 2)
	assert.Equal(t, "Correct", breakdown.Rows[0].Rubric)
	assert.Equal(t, 0.5, breakdown.Rows[0].Proportion)
	assert.Equal(t, "sign error", breakdown.Rows[1].Rubric)

	resp = env.do(t, http.MethodGet, "/stats/rubric", sid, nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/stats/histogram", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hist struct {
		Bins []grading.HistogramBin `json:"bins"`
	}
	decode(t, resp, &hist)
	require.Len(t, hist.Bins, 2)
	assert.Equal(t, 9, hist.Bins[0].Lower)

	resp = env.do(t, http.MethodGet, "/stats/histogram?question=1", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &hist)
	assert.Equal(t, 3, hist.Bins[0].Lower)

	resp = env.do(t, http.MethodGet, "/stats/histogram?question=7", sid, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReport(t *testing.T) {
	env := newTestEnv(t)
	sid := env.gradedSession(t)
	addRubric(t, env, sid, 0, 2, 2, "no units")

	resp := env.do(t, http.MethodGet, "/files/0/report", sid, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get(fiber.HeaderContentType))
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "A0000001B.pdf")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "%PDF-"))

	resp = env.do(t, http.MethodGet, "/files/1/report", sid, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no_grading_data", errorCode(t, resp))
}

func TestReportNeedsScheme(t *testing.T) {
	env := newTestEnv(t)
	sid := env.newSession(t)
	resp := env.upload(t, sid, uploadPart{name: "A0000001B.pdf", content: samplePDF(t, 1)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/files/0/report", sid, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
