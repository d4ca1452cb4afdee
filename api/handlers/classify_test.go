package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/interiorlens/api"
	"github.com/BaSui01/interiorlens/dispatch"
	"github.com/BaSui01/interiorlens/inference"
	"github.com/BaSui01/interiorlens/testutil/fixtures"
	"github.com/BaSui01/interiorlens/types"
)

const testModel = `
version: "9.9.9"
backbone: tiny-linear
labels: [A0, A1, B0, B1, C0, C1, D0, D1]
input_size: 8
grid: 1
weights:
  - [0, 0, 0]
  - [0, 0, 0]
  - [0, 0, 0]
  - [0, 0, 0]
  - [0, 0, 0]
  - [1, 1, 1]
  - [0, 0, 0]
  - [0, 0, 0]
`

func newTestService(t *testing.T, maxBatch int) *inference.Service {
	t.Helper()
	m, err := inference.ParseLinearModel([]byte(testModel))
	require.NoError(t, err)
	return inference.NewService(inference.StaticModel(m), inference.Config{MaxBatchSize: maxBatch, DecodeWorkers: 2})
}

type upload struct {
	field string
	name  string
	data  []byte
}

func multipartBody(t *testing.T, files ...upload) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		w, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postClassify(t *testing.T, h *ClassifyHandler, files ...upload) *httptest.ResponseRecorder {
	t.Helper()
	body, ctype := multipartBody(t, files...)
	r := httptest.NewRequest(http.MethodPost, api.ClassifyPath, body)
	r.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	h.HandleClassify(w, r)
	return w
}

func decodeClassify(t *testing.T, w *httptest.ResponseRecorder) api.ClassifyResponse {
	t.Helper()
	var resp api.ClassifyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

// domainResults converts wire results so tests can assert on plain values.
func domainResults(resp api.ClassifyResponse) []types.ClassificationResult {
	out := make([]types.ClassificationResult, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = r.ToResult(i)
	}
	return out
}

func TestClassifyHandler_OrderedResults(t *testing.T) {
	h := NewClassifyHandler(newTestService(t, 10), 0, zap.NewNop())

	w := postClassify(t, h,
		upload{"images", "kitchen.png", fixtures.PNG(10, 10, fixtures.Gray)},
		upload{"images", "broken.png", fixtures.Corrupt()},
		upload{"ignored", "other.png", fixtures.PNG(4, 4, fixtures.Gray)},
		upload{"images", "hall.jpg", fixtures.JPEG(10, 10, fixtures.Gray)},
	)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeClassify(t, w)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 3, resp.Meta.Count)
	assert.Equal(t, "9.9.9", resp.Meta.ModelVersion)
	assert.Equal(t, "tiny-linear", resp.Meta.Backbone)
	res := domainResults(resp)

	assert.Equal(t, "kitchen.png", res[0].ItemName)
	assert.NotEmpty(t, res[0].PredictedLabel)
	assert.Len(t, res[0].Confidences, 8)

	assert.Equal(t, "broken.png", res[1].ItemName)
	assert.Equal(t, inference.DecodeErrorMessage(), res[1].Error)
	assert.Empty(t, res[1].PredictedLabel)

	assert.Equal(t, "hall.jpg", res[2].ItemName)
	assert.NotEmpty(t, res[2].PredictedLabel)
}

func TestClassifyHandler_BatchLimit(t *testing.T) {
	h := NewClassifyHandler(newTestService(t, 1), 0, zap.NewNop())
	png := fixtures.PNG(4, 4, fixtures.Gray)

	w := postClassify(t, h, upload{"images", "a.png", png}, upload{"images", "b.png", png})
	require.Equal(t, http.StatusOK, w.Code)

	res := domainResults(decodeClassify(t, w))
	assert.Empty(t, res[0].Error)
	assert.Equal(t, inference.MsgBatchLimit(1), res[1].Error)
}

func TestClassifyHandler_ResultKeysAlwaysPresent(t *testing.T) {
	h := NewClassifyHandler(newTestService(t, 10), 0, zap.NewNop())

	w := postClassify(t, h,
		upload{"images", "kitchen.png", fixtures.PNG(10, 10, fixtures.Gray)},
		upload{"images", "broken.png", fixtures.Corrupt()},
	)
	require.Equal(t, http.StatusOK, w.Code)

	var raw struct {
		Results []map[string]json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.Len(t, raw.Results, 2)

	keys := []string{"predicted_label", "top_confidence", "per_label_confidences", "item_name", "error"}
	for i, r := range raw.Results {
		for _, k := range keys {
			assert.Contains(t, r, k, "result %d", i)
		}
	}

	assert.Equal(t, "null", string(raw.Results[0]["error"]))
	assert.Equal(t, "null", string(raw.Results[1]["predicted_label"]))
	assert.Equal(t, "null", string(raw.Results[1]["top_confidence"]))
	assert.Equal(t, "{}", string(raw.Results[1]["per_label_confidences"]))
}

// rowsModel answers each forward pass with fixed logit rows.
type rowsModel struct {
	rows [][]float32
}

func (m rowsModel) Info() inference.ModelInfo {
	return inference.ModelInfo{Version: "r1", Backbone: "rows", Labels: []string{"A0", "A1"}, InputSize: 4}
}

func (m rowsModel) Forward(_ context.Context, input *inference.Tensor) ([][]float32, error) {
	return m.rows[:input.Rows()], nil
}

func TestClassifyHandler_NonFiniteLogitsKeepOtherResults(t *testing.T) {
	model := rowsModel{rows: [][]float32{{float32(math.Inf(1)), 0}, {1, 0}}}
	svc := inference.NewService(inference.StaticModel(model), inference.DefaultConfig())
	h := NewClassifyHandler(svc, 0, zap.NewNop())

	png := fixtures.PNG(6, 6, fixtures.Gray)
	w := postClassify(t, h, upload{"images", "a.png", png}, upload{"images", "b.png", png})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotZero(t, w.Body.Len())

	res := domainResults(decodeClassify(t, w))
	require.Len(t, res, 2)
	assert.Equal(t, inference.MsgInferenceFailed, res[0].Error)
	require.True(t, res[1].OK())
	assert.Equal(t, "A0", res[1].PredictedLabel)
	assert.InDelta(t, 0.7311, res[1].TopConfidence, 1e-4)
}

func TestClassifyHandler_RequestErrors(t *testing.T) {
	h := NewClassifyHandler(newTestService(t, 10), 1024, zap.NewNop())

	t.Run("no files", func(t *testing.T) {
		w := postClassify(t, h, upload{"other", "x.png", []byte("x")})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, api.ClassifyPath, strings.NewReader(`{}`))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		h.HandleClassify(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too large", func(t *testing.T) {
		w := postClassify(t, h, upload{"images", "big.png", bytes.Repeat([]byte{1}, 4096)})
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

		var resp Response
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, string(types.ErrPayloadTooLarge), resp.Error.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.HandleClassify(w, httptest.NewRequest(http.MethodGet, api.ClassifyPath, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestClassifyHandler_ModelUnavailable(t *testing.T) {
	svc := inference.NewService(inference.NewLazyModel(func() (inference.Model, error) {
		return nil, errors.New("weights missing")
	}), inference.DefaultConfig())
	h := NewClassifyHandler(svc, 0, zap.NewNop())

	w := postClassify(t, h, upload{"images", "a.png", fixtures.PNG(4, 4, fixtures.Gray)})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(types.ErrModelUnavailable), resp.Error.Code)
}

// The dispatcher and the handler agree on the wire format end to end.
func TestClassifyHandler_WithDispatcher(t *testing.T) {
	h := NewClassifyHandler(newTestService(t, 10), 0, zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+api.ClassifyPath, h.HandleClassify)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := dispatch.DefaultConfig()
	cfg.BackendURL = srv.URL
	cfg.Timeout = 5 * time.Second
	d := dispatch.New(cfg, dispatch.WithHTTPClient(srv.Client()))

	batch := &types.FinalizedBatch{ID: "b1", GroupID: "g", Items: []types.Item{
		{Name: "a.png", Payload: fixtures.PNG(6, 6, fixtures.Gray), Seq: 1},
		{Name: "doc.pdf", Payload: []byte("%PDF-1.4"), Seq: 2},
		{Name: "c.png", Payload: fixtures.Corrupt(), Seq: 3},
		{Payload: fixtures.JPEG(6, 6, fixtures.Gray), Seq: 4},
	}}
	resp, err := d.Dispatch(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeOK, resp.Outcome)
	assert.Equal(t, "9.9.9", resp.Meta.ModelVersion)
	require.Len(t, resp.Results, 4)

	assert.True(t, resp.Results[0].OK())
	assert.Equal(t, "a.png", resp.Results[0].ItemName)
	assert.Contains(t, resp.Results[1].Error, "Unsupported file format")
	assert.Equal(t, inference.DecodeErrorMessage(), resp.Results[2].Error)
	assert.True(t, resp.Results[3].OK())
	assert.Equal(t, "image_4.jpg", resp.Results[3].ItemName)
}
