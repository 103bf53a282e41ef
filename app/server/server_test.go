package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legischat/app/agent"
	"legischat/app/filter"
	"legischat/app/pipeline"
	"legischat/model"
	"legischat/model/modeltest"
	"legischat/store"
	"legischat/types"
)

type askerFunc func(ctx context.Context, s *pipeline.Session, question string, scope []types.DocType) (pipeline.Result, error)

func (f askerFunc) Ask(ctx context.Context, s *pipeline.Session, question string, scope []types.DocType) (pipeline.Result, error) {
	return f(ctx, s, question, scope)
}

func corpus() map[string]types.DocType {
	return map[string]types.DocType{
		"01_constitucion": types.DocTypeConstitution,
		"03_leyes":        types.DocTypeStatute,
	}
}

func newTestApp(t *testing.T, asker askerFunc) (*fiber.App, *pipeline.Registry, string) {
	t.Helper()
	sessions := pipeline.NewRegistry()
	dataPath := t.TempDir()
	app := NewApp(Options{Asker: asker, Sessions: sessions, DataPath: dataPath, Corpus: corpus()})
	return app, sessions, dataPath
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp.StatusCode, out
}

func answering(answer string) askerFunc {
	return func(_ context.Context, s *pipeline.Session, question string, scope []types.DocType) (pipeline.Result, error) {
		s.Append(
			types.Turn{Role: types.RoleUser, Content: question},
			types.Turn{Role: types.RoleAssistant, Content: answer},
		)
		return pipeline.Result{
			Answer:            answer,
			CondensedQuestion: question,
			Evidence: []types.Record{{Chunk: types.Chunk{
				DocType:    types.DocTypeConstitution,
				Filename:   "constitución.pdf",
				PageLabel:  "12",
				SearchText: "optimizado",
				FullText:   "Tipo: constitucion. Archivo: constitución.pdf. Página: 12. Art. 66.-",
			}, Score: 0.9}},
		}, nil
	}
}

func TestHealthyAndSources(t *testing.T) {
	app, _, _ := newTestApp(t, answering("ok"))

	code, body := do(t, app, http.MethodGet, "/check/healthy", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["result"])
	assert.EqualValues(t, 0, body["sessions"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var options []struct {
		Value string `json:"value"`
		Label string `json:"label"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&options))
	require.Len(t, options, 5)
	assert.Equal(t, "todos", options[0].Value)
	assert.Equal(t, "Constitución", options[1].Label)
}

func TestSessionConversation(t *testing.T) {
	var scopes [][]types.DocType
	base := answering("El artículo 66 reconoce el derecho a la vida.")
	app, sessions, _ := newTestApp(t, func(ctx context.Context, s *pipeline.Session, q string, scope []types.DocType) (pipeline.Result, error) {
		scopes = append(scopes, scope)
		return base(ctx, s, q, scope)
	})

	code, body := do(t, app, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, code)
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, sessions.Len())

	code, body = do(t, app, http.MethodPost, "/api/v1/request", map[string]any{
		"session_id": id,
		"question":   "¿Qué dice la Constitución sobre la vida?",
		"sources":    []string{"constitucion", "ley"},
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "El artículo 66 reconoce el derecho a la vida.", body["answer"])
	assert.Equal(t, id, body["session_id"])

	evidence, _ := body["evidence"].([]any)
	require.Len(t, evidence, 1)
	first := evidence[0].(map[string]any)
	assert.Equal(t, "constitución.pdf", first["source"])
	assert.Equal(t, "12", first["page"])
	assert.Contains(t, first["content"], "Art. 66.-")
	assert.NotContains(t, first["content"], "optimizado")

	code, body = do(t, app, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["history"], 2)

	code, _ = do(t, app, http.MethodPost, "/api/v1/request", map[string]any{"question": "¿Y el divorcio?"})
	require.Equal(t, http.StatusOK, code)

	require.Len(t, scopes, 2)
	assert.Equal(t, []types.DocType{types.DocTypeConstitution, types.DocTypeStatute}, scopes[0])
	assert.Equal(t, []types.DocType{types.DocTypeAll}, scopes[1])

	code, _ = do(t, app, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, app, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRequestValidation(t *testing.T) {
	app, _, _ := newTestApp(t, answering("ok"))

	cases := []struct {
		name string
		body map[string]any
		code int
	}{
		{"blank question", map[string]any{"question": "   "}, http.StatusUnprocessableEntity},
		{"unknown source", map[string]any{"question": "¿Qué?", "sources": []string{"reglamento"}}, http.StatusUnprocessableEntity},
		{"malformed session", map[string]any{"question": "¿Qué?", "session_id": "abc"}, http.StatusUnprocessableEntity},
		{"unknown session", map[string]any{"question": "¿Qué?", "session_id": uuid.NewString()}, http.StatusNotFound},
		{"bad role", map[string]any{"question": "¿Qué?", "history": []map[string]string{{"role": "system", "content": "x"}}}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := do(t, app, http.MethodPost, "/api/v1/request", tc.body)
			assert.Equal(t, tc.code, code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/request", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequestErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: timeout", types.ErrSynthesisFailed), http.StatusBadGateway},
		{fmt.Errorf("%w: index down", types.ErrRetrievalFailed), http.StatusBadGateway},
		{types.ErrSessionBusy, http.StatusConflict},
		{fmt.Errorf("%w: empty question", types.ErrInvalidQuery), http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		app, _, _ := newTestApp(t, func(context.Context, *pipeline.Session, string, []types.DocType) (pipeline.Result, error) {
			return pipeline.Result{Answer: "parcial"}, tc.err
		})
		code, body := do(t, app, http.MethodPost, "/api/v1/request", map[string]any{"question": "¿Qué?"})
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.NotContains(t, body, "answer")
		assert.EqualValues(t, tc.code, body["code"])
	}
}

func TestRequestEndToEnd(t *testing.T) {
	embedder := modeltest.NewHashEmbedder(64)
	index := store.NewMemoryStore()
	content := "Art. 66.- Se reconoce y garantizará a las personas el derecho a la inviolabilidad de la vida."
	vec, err := embedder.Embed(context.Background(), content)
	require.NoError(t, err)
	require.NoError(t, index.Upsert(context.Background(), []types.Record{{
		Chunk: types.Chunk{
			ID:         "constitucion:constitucionpdf:11:0a1b2c3d",
			DocType:    types.DocTypeConstitution,
			Filename:   "constitución.pdf",
			Page:       11,
			PageLabel:  "12",
			SearchText: content,
			FullText:   types.BuildFullText(types.DocTypeConstitution, "constitución.pdf", "12", content),
		},
		Embedding: vec,
	}}))

	chat := &modeltest.Completer{Fn: func(p model.Prompt) (string, error) {
		if p.System == "" {
			return "¿Qué dice la Constitución sobre el derecho a la vida?", nil
		}
		return "La Constitución, en su artículo 66, garantiza la inviolabilidad de la vida.", nil
	}}
	p := pipeline.New(agent.New(chat), filter.New(false, nil), embedder, index, 4, model.RetryPolicy{MaxAttempts: 1}, nil)
	app, _, _ := newTestApp(t, p.Ask)

	code, body := do(t, app, http.MethodPost, "/api/v1/request", map[string]any{"question": "¿y sobre la vida?"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "¿Qué dice la Constitución sobre el derecho a la vida?", body["condensed_question"])
	assert.Len(t, body["evidence"], 1)
}

func upload(t *testing.T, app *fiber.App, docType, name, content string) int {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+docType, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestUpload(t *testing.T) {
	app, _, dataPath := newTestApp(t, answering("ok"))

	assert.Equal(t, http.StatusCreated, upload(t, app, "ley", "Ley_Humanitaria.txt", "Art. 1.- Objeto."))
	data, err := os.ReadFile(filepath.Join(dataPath, "03_leyes", "Ley_Humanitaria.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Art. 1.- Objeto.", string(data))

	assert.Equal(t, http.StatusConflict, upload(t, app, "ley", "Ley_Humanitaria.txt", "otra vez"))
	assert.Equal(t, http.StatusUnprocessableEntity, upload(t, app, "todos", "x.txt", "x"))
	assert.Equal(t, http.StatusUnprocessableEntity, upload(t, app, "reglamento", "x.txt", "x"))
	assert.Equal(t, http.StatusNotFound, upload(t, app, "codigo", "x.txt", "x"))
	assert.Equal(t, http.StatusUnsupportedMediaType, upload(t, app, "ley", "virus.exe", "x"))
	assert.Equal(t, http.StatusCreated, upload(t, app, "constitucion", "../../escape.md", "x"))
	_, err = os.Stat(filepath.Join(dataPath, "01_constitucion", "escape.md"))
	assert.NoError(t, err)
}

func TestRunUntilReportsListenError(t *testing.T) {
	s := NewServer("256.0.0.1:http-alt-invalid", Options{Sessions: pipeline.NewRegistry()})
	assert.Error(t, s.RunUntil(nil))
}
