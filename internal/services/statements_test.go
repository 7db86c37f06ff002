package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/statement-extract/bank-statement-api/internal/gemini"
	"github.com/statement-extract/bank-statement-api/internal/models"
	"github.com/statement-extract/bank-statement-api/internal/utils"
)

type fakeRepo struct {
	created []*models.Statement
	byID    map[string]*models.Statement
}

func (f *fakeRepo) Create(ctx context.Context, st *models.Statement) error {
	f.created = append(f.created, st)
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*models.Statement, error) {
	return f.byID[id], nil
}

func (f *fakeRepo) List(ctx context.Context, limit int) ([]*models.Statement, error) {
	return f.created, nil
}

type fakeStorage struct {
	uploads   int
	downloads int
	deletes   int
	objects   map[string][]byte
}

func (f *fakeStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	f.uploads++
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = data
	return nil
}

func (f *fakeStorage) Download(ctx context.Context, key string) ([]byte, error) {
	f.downloads++
	return f.objects[key], nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.deletes++
	return nil
}

type fakeAI struct {
	calls int
	resp  *gemini.Response
	err   error
}

func (f *fakeAI) GenerateContent(ctx context.Context, document []byte) (*gemini.Response, error) {
	f.calls++
	return f.resp, f.err
}

func testLogger() *utils.Logger {
	return utils.NewLogger("error")
}

func samplePDF(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/sample.pdf")
	if err != nil {
		t.Fatalf("failed to read sample PDF: %v", err)
	}
	return data
}

func candidateWithText(text string) map[string]any {
	return map[string]any{
		"content": map[string]any{
			"parts": []any{
				map[string]any{"text": text},
			},
		},
	}
}

func responseWithText(text string) *gemini.Response {
	cand := candidateWithText(text)
	return &gemini.Response{
		Payload: map[string]any{
			"candidates":    []any{cand},
			"usageMetadata": map[string]any{"totalTokenCount": 100.0},
		},
		Candidate:     cand,
		UsageMetadata: map[string]any{"totalTokenCount": 100.0},
	}
}

func TestExtractStatementMissingFile(t *testing.T) {
	ai := &fakeAI{}
	svc := NewService(&fakeRepo{}, &fakeStorage{}, ai, testLogger())

	_, err := svc.ExtractStatement(context.Background(), &models.UploadRequest{Filename: "empty.pdf"})
	if err == nil {
		t.Fatal("expected error for missing file")
	}

	appErr, ok := err.(*utils.AppError)
	if !ok || appErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
	if ai.calls != 0 {
		t.Errorf("upstream was called %d times for a missing file", ai.calls)
	}
}

func TestExtractStatementRejectsNonPDF(t *testing.T) {
	ai := &fakeAI{}
	svc := NewService(&fakeRepo{}, &fakeStorage{}, ai, testLogger())

	_, err := svc.ExtractStatement(context.Background(), &models.UploadRequest{
		File:     []byte("this is not a pdf"),
		Filename: "junk.pdf",
	})
	if err == nil {
		t.Fatal("expected error for unreadable PDF")
	}

	appErr, ok := err.(*utils.AppError)
	if !ok || appErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
	if ai.calls != 0 {
		t.Errorf("upstream was called %d times for a bad upload", ai.calls)
	}
}

func TestExtractStatementSuccess(t *testing.T) {
	repo := &fakeRepo{}
	store := &fakeStorage{}
	ai := &fakeAI{resp: responseWithText(
		`{"statement_info":{"bank_name":"First National","account_number":"1234"},` +
			`"account_summary":{"closing_balance":99.5},` +
			`"transactions":[{"id":"t1","date":"2026-01-02","amount":-10.0,"description":"COFFEE","balance":89.5}]}`,
	)}
	svc := NewService(repo, store, ai, testLogger())

	resp, err := svc.ExtractStatement(context.Background(), &models.UploadRequest{
		File:     samplePDF(t),
		Filename: "january.pdf",
	})
	if err != nil {
		t.Fatalf("ExtractStatement returned error: %v", err)
	}

	if resp.StatementInfo["bank_name"] != "First National" {
		t.Errorf("statement_info = %#v", resp.StatementInfo)
	}
	if resp.AccountSummary["closing_balance"] != 99.5 {
		t.Errorf("account_summary = %#v", resp.AccountSummary)
	}
	if len(resp.Transactions) != 1 {
		t.Errorf("transactions = %#v", resp.Transactions)
	}
	if resp.PageCount != 1 {
		t.Errorf("page_count = %d", resp.PageCount)
	}

	if ai.calls != 1 {
		t.Errorf("upstream calls = %d", ai.calls)
	}
	if store.uploads != 1 {
		t.Errorf("storage uploads = %d", store.uploads)
	}
	if len(repo.created) != 1 {
		t.Fatalf("repo records = %d", len(repo.created))
	}
	if repo.created[0].UsageMetadata["totalTokenCount"] != 100.0 {
		t.Errorf("usage metadata not persisted: %#v", repo.created[0].UsageMetadata)
	}
}

func TestExtractStatementSalvagesWrappedJSON(t *testing.T) {
	ai := &fakeAI{resp: responseWithText(
		"Here is the statement data you asked for:\n" +
			`{"statement_info":{"bank_name":"Credit Union"}}` +
			"\nI hope this helps!",
	)}
	svc := NewService(&fakeRepo{}, &fakeStorage{}, ai, testLogger())

	resp, err := svc.ExtractStatement(context.Background(), &models.UploadRequest{
		File:     samplePDF(t),
		Filename: "wrapped.pdf",
	})
	if err != nil {
		t.Fatalf("ExtractStatement returned error: %v", err)
	}
	if resp.StatementInfo["bank_name"] != "Credit Union" {
		t.Errorf("statement_info = %#v", resp.StatementInfo)
	}
}

func TestExtractStatementNoCandidate(t *testing.T) {
	ai := &fakeAI{resp: &gemini.Response{
		Payload: map[string]any{"promptFeedback": map[string]any{"blockReason": "SAFETY"}},
	}}
	svc := NewService(&fakeRepo{}, &fakeStorage{}, ai, testLogger())

	_, err := svc.ExtractStatement(context.Background(), &models.UploadRequest{
		File:     samplePDF(t),
		Filename: "blocked.pdf",
	})
	if err == nil {
		t.Fatal("expected error when no candidate is returned")
	}

	appErr, ok := err.(*utils.AppError)
	if !ok || appErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %v", err)
	}
	if appErr.Detail["raw_preview"] == "" {
		t.Errorf("no-candidate error should carry a raw preview")
	}
}

func TestExtractStatementSalvageExhausted(t *testing.T) {
	ai := &fakeAI{resp: responseWithText("I could not read this document, sorry.")}
	repo := &fakeRepo{}
	svc := NewService(repo, &fakeStorage{}, ai, testLogger())

	_, err := svc.ExtractStatement(context.Background(), &models.UploadRequest{
		File:     samplePDF(t),
		Filename: "prose.pdf",
	})
	if err == nil {
		t.Fatal("expected salvage failure")
	}

	appErr, ok := err.(*utils.AppError)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d", appErr.StatusCode)
	}
	if appErr.Detail["pieces_collected"] != 1 {
		t.Errorf("pieces_collected = %v", appErr.Detail["pieces_collected"])
	}
	if appErr.Detail["parse_error"] == "" {
		t.Errorf("detail missing parse_error: %#v", appErr.Detail)
	}
	if len(repo.created) != 0 {
		t.Errorf("failed extraction must not be persisted")
	}
}

func TestExtractStatementTransportError(t *testing.T) {
	ai := &fakeAI{err: utils.NewUpstreamError("Gemini API returned status 500", nil)}
	svc := NewService(&fakeRepo{}, &fakeStorage{}, ai, testLogger())

	_, err := svc.ExtractStatement(context.Background(), &models.UploadRequest{
		File:     samplePDF(t),
		Filename: "boom.pdf",
	})
	if err == nil {
		t.Fatal("expected transport error to propagate")
	}

	appErr, ok := err.(*utils.AppError)
	if !ok || appErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %v", err)
	}
}

func TestExtractStatementEndToEnd(t *testing.T) {
	// Real gemini client against a canned upstream, fake persistence
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":` +
			`"{\"statement_info\":{\"bank_name\":\"E2E Bank\"},\"account_summary\":{},\"transactions\":[]}"` +
			`}]}}],"usageMetadata":{"totalTokenCount":42}}`))
	}))
	defer upstream.Close()

	client := gemini.NewClient("key", "gemini-2.0-flash", upstream.URL, 65536, 0, 10*time.Second, testLogger())
	svc := NewService(&fakeRepo{}, &fakeStorage{}, client, testLogger())

	resp, err := svc.ExtractStatement(context.Background(), &models.UploadRequest{
		File:     samplePDF(t),
		Filename: "e2e.pdf",
	})
	if err != nil {
		t.Fatalf("ExtractStatement returned error: %v", err)
	}
	if resp.StatementInfo["bank_name"] != "E2E Bank" {
		t.Errorf("statement_info = %#v", resp.StatementInfo)
	}
}

func TestExtractStatementPayloadFallback(t *testing.T) {
	// Candidate carries no text-like keys; the usable text sits elsewhere in
	// the payload
	cand := map[string]any{"finishReason": "STOP"}
	ai := &fakeAI{resp: &gemini.Response{
		Payload: map[string]any{
			"candidates": []any{cand},
			"outputText": `{"statement_info":{"bank_name":"Fallback Bank"}}`,
		},
		Candidate: cand,
	}}
	svc := NewService(&fakeRepo{}, &fakeStorage{}, ai, testLogger())

	resp, err := svc.ExtractStatement(context.Background(), &models.UploadRequest{
		File:     samplePDF(t),
		Filename: "fallback.pdf",
	})
	if err != nil {
		t.Fatalf("ExtractStatement returned error: %v", err)
	}
	if resp.StatementInfo["bank_name"] != "Fallback Bank" {
		t.Errorf("statement_info = %#v", resp.StatementInfo)
	}
}

func TestExtractStatementNoTextAnywhere(t *testing.T) {
	cand := map[string]any{"finishReason": "MAX_TOKENS"}
	ai := &fakeAI{resp: &gemini.Response{
		Payload:   map[string]any{"candidates": []any{cand}},
		Candidate: cand,
	}}
	svc := NewService(&fakeRepo{}, &fakeStorage{}, ai, testLogger())

	_, err := svc.ExtractStatement(context.Background(), &models.UploadRequest{
		File:     samplePDF(t),
		Filename: "silent.pdf",
	})
	if err == nil {
		t.Fatal("expected salvage failure when no text is collected")
	}

	appErr, ok := err.(*utils.AppError)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d", appErr.StatusCode)
	}
	if appErr.Detail["pieces_collected"] != 0 {
		t.Errorf("pieces_collected = %v", appErr.Detail["pieces_collected"])
	}
}

func TestDownloadStatement(t *testing.T) {
	pdf := samplePDF(t)
	repo := &fakeRepo{byID: map[string]*models.Statement{
		"abc": {ID: "abc", Filename: "jan.pdf", S3Key: "statements/abc/jan.pdf"},
	}}
	store := &fakeStorage{objects: map[string][]byte{
		"statements/abc/jan.pdf": pdf,
	}}
	svc := NewService(repo, store, &fakeAI{}, testLogger())

	st, data, err := svc.DownloadStatement(context.Background(), "abc")
	if err != nil {
		t.Fatalf("DownloadStatement returned error: %v", err)
	}
	if st.Filename != "jan.pdf" {
		t.Errorf("filename = %q", st.Filename)
	}
	if len(data) != len(pdf) {
		t.Errorf("data length = %d, want %d", len(data), len(pdf))
	}
	if store.downloads != 1 {
		t.Errorf("storage downloads = %d", store.downloads)
	}
}

func TestDownloadStatementNotFound(t *testing.T) {
	store := &fakeStorage{}
	svc := NewService(&fakeRepo{byID: map[string]*models.Statement{}}, store, &fakeAI{}, testLogger())

	_, _, err := svc.DownloadStatement(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected not-found error")
	}

	appErr, ok := err.(*utils.AppError)
	if !ok || appErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
	if store.downloads != 0 {
		t.Errorf("storage was queried for a missing record")
	}
}

func TestGetStatementNotFound(t *testing.T) {
	svc := NewService(&fakeRepo{byID: map[string]*models.Statement{}}, &fakeStorage{}, &fakeAI{}, testLogger())

	_, err := svc.GetStatement(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected not-found error")
	}

	appErr, ok := err.(*utils.AppError)
	if !ok || appErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}
