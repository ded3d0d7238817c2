package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/UncleMcDonald/SmartScrape/internal/batch"
	"github.com/UncleMcDonald/SmartScrape/internal/config"
	"github.com/UncleMcDonald/SmartScrape/internal/fields"
	"github.com/UncleMcDonald/SmartScrape/internal/model"
	"github.com/UncleMcDonald/SmartScrape/internal/pipeline"
)

type fakeProcessor struct {
	configured bool
	outcome    model.Outcome
	panicWith  string

	gotURL string
	gotReq pipeline.Request
}

func (f *fakeProcessor) Configured() bool     { return f.configured }
func (f *fakeProcessor) Table() *fields.Table { return fields.DefaultTable() }

func (f *fakeProcessor) Process(_ context.Context, rawURL string, req pipeline.Request) model.Outcome {
	if f.panicWith != "" {
		panic(f.panicWith)
	}
	f.gotURL, f.gotReq = rawURL, req
	out := f.outcome
	out.URL = rawURL
	return out
}

type fakeRunner struct {
	err    error
	called bool
	urls   []string
	prompt string
	opts   batch.Options
}

func (f *fakeRunner) Run(_ context.Context, urls []string, instruction string, opts batch.Options) (*model.BatchOutcome, error) {
	f.called = true
	f.urls, f.prompt, f.opts = urls, instruction, opts
	if f.err != nil {
		return nil, f.err
	}
	out := &model.BatchOutcome{Total: len(urls), Metadata: model.BatchMetadata{BatchID: "batch_test", OptimizationMode: opts.OptimizationMode}}
	for _, u := range urls {
		out.Results = append(out.Results, model.Outcome{URL: u, Status: model.StatusSuccess})
		out.Successful++
	}
	return out, nil
}

func newTestServer(proc URLProcessor, runner BatchRunner) *Server {
	cfg := config.Default()
	cfg.Batch.MaxURLs = 3
	return NewServer(Deps{Config: cfg, Pipeline: proc, Batch: runner, Engine: "fake"})
}

func doJSON(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, raw)
	}
	return resp.StatusCode, out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	if body["success"] != false {
		t.Fatalf("expected success=false, got %v", body["success"])
	}
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %#v", body["error"])
	}
	code, _ := e["code"].(string)
	return code
}

func TestProcessSuccessNormalizes(t *testing.T) {
	proc := &fakeProcessor{configured: true, outcome: model.Outcome{
		Status: model.StatusSuccess,
		Data:   []model.Record{{"Title": "Kettle", "Main Image URL": "https://cdn.example/k.jpg"}},
	}}
	s := newTestServer(proc, &fakeRunner{})

	status, body := doJSON(t, s, http.MethodPost, "/process", `{"url":"https://shop.example/p/1","prompt":"name and image url","is_production":true}`)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}
	data, ok := body["data"].([]any)
	if !ok || len(data) != 1 {
		t.Fatalf("expected one record, got %#v", body["data"])
	}
	rec := data[0].(map[string]any)
	if rec["name"] != "Kettle" || rec["main_image_url"] != "https://cdn.example/k.jpg" {
		t.Fatalf("unexpected record %#v", rec)
	}
	if proc.gotReq.Instruction != "name and image url" || !proc.gotReq.Production {
		t.Fatalf("unexpected pipeline request %#v", proc.gotReq)
	}
}

func TestProcessValidation(t *testing.T) {
	s := newTestServer(&fakeProcessor{configured: true}, &fakeRunner{})

	status, body := doJSON(t, s, http.MethodPost, "/process", `{"prompt":"x"}`)
	if status != http.StatusBadRequest || errorCode(t, body) != CodeInvalidInput {
		t.Fatalf("expected 400 INVALID_INPUT, got %d %v", status, body)
	}
	if msg := body["error"].(map[string]any)["message"]; msg != "URL is required" {
		t.Fatalf("unexpected message %v", msg)
	}

	status, body = doJSON(t, s, http.MethodPost, "/process", `{not json`)
	if status != http.StatusBadRequest || errorCode(t, body) != CodeInvalidInput {
		t.Fatalf("expected 400 for malformed JSON, got %d", status)
	}
}

func TestProcessPromptCoercion(t *testing.T) {
	proc := &fakeProcessor{configured: true, outcome: model.Outcome{Status: model.StatusSuccess}}
	s := newTestServer(proc, &fakeRunner{})

	doJSON(t, s, http.MethodPost, "/process", `{"url":"https://a.example","prompt":{"fields":["price"]}}`)
	if proc.gotReq.Instruction != `{"fields":["price"]}` {
		t.Fatalf("expected JSON text prompt, got %q", proc.gotReq.Instruction)
	}

	doJSON(t, s, http.MethodPost, "/process", `{"url":"https://a.example"}`)
	if proc.gotReq.Instruction != DefaultPrompt {
		t.Fatalf("expected default prompt, got %q", proc.gotReq.Instruction)
	}
}

func TestProcessFailures(t *testing.T) {
	proc := &fakeProcessor{configured: true, outcome: model.Outcome{
		Status: model.StatusFailed, Error: "Failed to fetch page", Details: "context deadline exceeded",
	}}
	status, body := doJSON(t, newTestServer(proc, nil), http.MethodPost, "/process", `{"url":"https://slow.example"}`)
	if status != http.StatusInternalServerError || errorCode(t, body) != CodeProcessingError {
		t.Fatalf("expected 500 PROCESSING_ERROR, got %d %v", status, body)
	}
	e := body["error"].(map[string]any)
	if e["message"] != "Failed to fetch page" || e["url"] != "https://slow.example" {
		t.Fatalf("unexpected error body %#v", e)
	}

	status, body = doJSON(t, newTestServer(&fakeProcessor{configured: false}, nil), http.MethodPost, "/process", `{"url":"https://a.example"}`)
	if status != http.StatusInternalServerError || errorCode(t, body) != CodeProcessingError {
		t.Fatalf("expected PROCESSING_ERROR without LLM, got %d %v", status, body)
	}

	status, body = doJSON(t, newTestServer(&fakeProcessor{configured: true, panicWith: "boom"}, nil), http.MethodPost, "/process", `{"url":"https://a.example"}`)
	if status != http.StatusInternalServerError || errorCode(t, body) != CodeInternalError {
		t.Fatalf("expected INTERNAL_ERROR on panic, got %d %v", status, body)
	}
}

func TestBatchProcess(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(&fakeProcessor{configured: true}, runner)

	status, body := doJSON(t, s, http.MethodPost, "/api/batch-process",
		`{"urls":["https://a.example","https://b.example"],"prompt":"price","options":{"parallel":"fast","is_production":false}}`)
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("expected 200 success, got %d %v", status, body)
	}
	data := body["data"].(map[string]any)
	if data["total"].(float64) != 2 {
		t.Fatalf("expected total 2, got %v", data["total"])
	}
	meta := data["metadata"].(map[string]any)
	if meta["optimization_mode"] != "local" || meta["batch_id"] != "batch_test" {
		t.Fatalf("unexpected metadata %#v", meta)
	}
	if runner.opts.Parallel != 0 || runner.opts.Production || runner.prompt != "price" {
		t.Fatalf("unexpected runner inputs %#v %q", runner.opts, runner.prompt)
	}

	doJSON(t, s, http.MethodPost, "/api/batch-process", `{"urls":["https://a.example"],"options":{"parallel":5}}`)
	if runner.opts.Parallel != 5 || runner.opts.OptimizationMode != "default" || runner.prompt != DefaultPrompt {
		t.Fatalf("unexpected runner inputs %#v %q", runner.opts, runner.prompt)
	}
}

func TestBatchProcessValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing urls", `{"prompt":"x"}`},
		{"empty urls", `{"urls":[]}`},
		{"urls not a list", `{"urls":"https://a.example"}`},
		{"urls wrong element type", `{"urls":[1,2]}`},
		{"too many urls", `{"urls":["a","b","c","d"]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{}
			status, body := doJSON(t, newTestServer(&fakeProcessor{configured: true}, runner), http.MethodPost, "/api/batch-process", tc.body)
			if status != http.StatusBadRequest || errorCode(t, body) != CodeInvalidInput {
				t.Fatalf("expected 400 INVALID_INPUT, got %d %v", status, body)
			}
			if runner.called {
				t.Fatalf("runner must not start for invalid input")
			}
		})
	}
}

func TestBatchProcessRunnerErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&batch.InputError{Msg: "bad"}, http.StatusBadRequest, CodeInvalidInput},
		{&batch.ProcessingError{Msg: pipeline.ErrNoProcessor}, http.StatusInternalServerError, CodeProcessingError},
		{errors.New("unexpected"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tc := range cases {
		s := newTestServer(&fakeProcessor{configured: true}, &fakeRunner{err: tc.err})
		status, body := doJSON(t, s, http.MethodPost, "/api/batch-process", `{"urls":["https://a.example"]}`)
		if status != tc.status || errorCode(t, body) != tc.code {
			t.Fatalf("%v: expected %d %s, got %d %v", tc.err, tc.status, tc.code, status, body)
		}
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeProcessor{configured: true}, nil)

	status, body := doJSON(t, s, http.MethodGet, "/healthz", "")
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected shallow health %d %v", status, body)
	}

	status, body = doJSON(t, s, http.MethodGet, "/healthz?deep=true", "")
	if status != http.StatusOK || body["redis"] != "disabled" || body["llm"] != "ok" || body["browser"] != "fake" {
		t.Fatalf("unexpected deep health %d %v", status, body)
	}
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	status, body := doJSON(t, newTestServer(nil, nil), http.MethodGet, "/nope", "")
	if status != http.StatusNotFound || errorCode(t, body) != "NOT_FOUND" {
		t.Fatalf("expected 404 envelope, got %d %v", status, body)
	}
}
