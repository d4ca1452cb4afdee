package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/interiorlens/api"
	"github.com/BaSui01/interiorlens/testutil/fixtures"
	"github.com/BaSui01/interiorlens/types"
)

// echoServer answers each uploaded file with a label derived from its name.
type echoServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	calls    int32
	received [][]string
	ctypes   []string
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	e := &echoServer{}
	e.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&e.calls, 1)
		if r.URL.Path != api.ClassifyPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		files := r.MultipartForm.File[api.ClassifyFormField]
		names := make([]string, 0, len(files))
		resp := api.ClassifyResponse{Meta: api.ClassifyMeta{Count: len(files), ModelVersion: "1.0.0", Backbone: "EfficientNet-B3"}}
		for _, fh := range files {
			names = append(names, fh.Filename)
			e.mu.Lock()
			e.ctypes = append(e.ctypes, fh.Header.Get("Content-Type"))
			e.mu.Unlock()
			label := strings.TrimSuffix(fh.Filename, path.Ext(fh.Filename))
			resp.Results = append(resp.Results,
				api.PredictionResult(fh.Filename, label, 0.9, map[string]float64{label: 0.9}))
		}
		e.mu.Lock()
		e.received = append(e.received, names)
		e.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *echoServer) Calls() int {
	return int(atomic.LoadInt32(&e.calls))
}

func (e *echoServer) Received() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.received...)
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.BackendURL = url
	cfg.Timeout = 2 * time.Second
	return cfg
}

func namedItem(name string, payload []byte) types.Item {
	return types.Item{Name: name, Payload: payload, ChatID: 1}
}

func batchOf(items ...types.Item) *types.FinalizedBatch {
	for i := range items {
		items[i].Seq = int64(i + 1)
	}
	return &types.FinalizedBatch{ID: "batch-1", GroupID: "g", Reason: types.FinalizeQuiet, Items: items}
}

func pngBytes() []byte {
	return fixtures.PNG(4, 4, fixtures.Gray)
}

func TestDispatch_PreservesOrder(t *testing.T) {
	es := newEchoServer(t)
	d := New(testConfig(es.srv.URL), WithHTTPClient(es.srv.Client()))

	batch := batchOf(
		namedItem("kitchen.png", pngBytes()),
		namedItem("bath.png", pngBytes()),
		namedItem("hall.jpg", fixtures.JPEG(4, 4, fixtures.Gray)),
	)
	resp, err := d.Dispatch(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeOK, resp.Outcome)
	assert.Equal(t, "batch-1", resp.BatchID)
	assert.Equal(t, 3, resp.Meta.Count)
	assert.Equal(t, "1.0.0", resp.Meta.ModelVersion)
	assert.Equal(t, "EfficientNet-B3", resp.Meta.Backbone)
	require.Len(t, resp.Results, 3)

	for i, want := range []string{"kitchen", "bath", "hall"} {
		r := resp.Results[i]
		assert.Equal(t, i, r.Index)
		assert.Equal(t, want, r.PredictedLabel)
		assert.Equal(t, batch.Items[i].Name, r.ItemName)
		assert.True(t, r.OK())
	}

	assert.Equal(t, 1, es.Calls())
	assert.Equal(t, [][]string{{"kitchen.png", "bath.png", "hall.jpg"}}, es.Received())
}

func TestDispatch_LocalRejectsKeepTheirIndex(t *testing.T) {
	es := newEchoServer(t)
	cfg := testConfig(es.srv.URL)
	cfg.MaxFileSize = 1 << 20
	d := New(cfg, WithHTTPClient(es.srv.Client()))

	big := make([]byte, 2<<20)
	copy(big, pngBytes())

	batch := batchOf(
		namedItem("a.png", pngBytes()),
		namedItem("anim.gif", fixtures.GIF(4, 4, fixtures.Gray)),
		namedItem("b.png", pngBytes()),
		namedItem("notes.png", fixtures.Text()),
		namedItem("huge.png", big),
		namedItem("empty.png", nil),
	)
	resp, err := d.Dispatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, resp.Results, 6)

	assert.Equal(t, types.OutcomeOK, resp.Outcome)
	assert.Equal(t, "a", resp.Results[0].PredictedLabel)
	assert.Equal(t, MsgUnsupportedFormat([]string{"jpg", "jpeg", "png", "webp"}), resp.Results[1].Error)
	assert.Equal(t, "b", resp.Results[2].PredictedLabel)
	assert.Equal(t, MsgNotAnImage, resp.Results[3].Error)
	assert.Equal(t, MsgFileTooLarge(1<<20), resp.Results[4].Error)
	assert.Equal(t, MsgEmptyFile, resp.Results[5].Error)
	assert.Equal(t, 4, resp.Failed())

	for i, r := range resp.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, batch.Items[i].Name, r.ItemName)
	}
	assert.Equal(t, [][]string{{"a.png", "b.png"}}, es.Received())
}

func TestDispatch_AllRejectedSendsNothing(t *testing.T) {
	es := newEchoServer(t)
	d := New(testConfig(es.srv.URL), WithHTTPClient(es.srv.Client()))

	resp, err := d.Dispatch(context.Background(), batchOf(
		namedItem("doc.pdf", []byte("%PDF-1.4")),
		namedItem("x.png", fixtures.Text()),
	))
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeRejected, resp.Outcome)
	assert.Equal(t, 2, resp.Failed())
	assert.Zero(t, es.Calls())
}

func TestDispatch_EmptyBatch(t *testing.T) {
	d := New(testConfig("http://127.0.0.1:1"))

	_, err := d.Dispatch(context.Background(), &types.FinalizedBatch{ID: "x"})
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = d.Dispatch(context.Background(), nil)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestDispatch_CapsItemsPerRequest(t *testing.T) {
	es := newEchoServer(t)
	cfg := testConfig(es.srv.URL)
	cfg.MaxItems = 2
	d := New(cfg, WithHTTPClient(es.srv.Client()))

	resp, err := d.Dispatch(context.Background(), batchOf(
		namedItem("bad.txt", fixtures.Text()),
		namedItem("a.png", pngBytes()),
		namedItem("b.png", pngBytes()),
		namedItem("c.png", pngBytes()),
	))
	require.NoError(t, err)

	assert.Equal(t, "a", resp.Results[1].PredictedLabel)
	assert.Equal(t, "b", resp.Results[2].PredictedLabel)
	assert.Equal(t, MsgTooManyItems(2), resp.Results[3].Error)
	assert.Equal(t, [][]string{{"a.png", "b.png"}}, es.Received())
}

func TestDispatch_GeneratedNamesAndContentType(t *testing.T) {
	es := newEchoServer(t)
	d := New(testConfig(es.srv.URL), WithHTTPClient(es.srv.Client()))

	jpg := fixtures.JPEG(4, 4, fixtures.Gray)
	resp, err := d.Dispatch(context.Background(), batchOf(
		types.Item{Payload: jpg},
		types.Item{Payload: jpg, MIMEType: "image/jpeg"},
	))
	require.NoError(t, err)

	assert.Equal(t, "image_1.jpg", resp.Results[0].ItemName)
	assert.Equal(t, "image_2.jpg", resp.Results[1].ItemName)
	assert.Equal(t, [][]string{{"image_1.jpg", "image_2.jpg"}}, es.Received())

	es.mu.Lock()
	defer es.mu.Unlock()
	assert.Equal(t, []string{"image/jpeg", "image/jpeg"}, es.ctypes)
}

func TestDispatch_ServerErrorFailsSentItemsOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	d := New(testConfig(srv.URL), WithHTTPClient(srv.Client()))

	resp, err := d.Dispatch(context.Background(), batchOf(
		namedItem("a.png", pngBytes()),
		namedItem("b.bmp", pngBytes()),
	))
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeServerError, resp.Outcome)
	assert.Equal(t, MsgServerError, resp.Results[0].Error)
	assert.Contains(t, resp.Results[1].Error, "Unsupported file format")
}

func TestDispatch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	d := New(cfg, WithHTTPClient(srv.Client()))

	start := time.Now()
	resp, err := d.Dispatch(context.Background(), batchOf(
		namedItem("a.png", pngBytes()),
		namedItem("scan.bmp", pngBytes()),
		namedItem("c.png", pngBytes()),
	))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, types.OutcomeTimeout, resp.Outcome)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, MsgTimeout, resp.Results[0].Error)
	assert.Equal(t, MsgUnsupportedFormat(DefaultConfig().SupportedFormats), resp.Results[1].Error)
	assert.Equal(t, "scan.bmp", resp.Results[1].ItemName)
	assert.Equal(t, MsgTimeout, resp.Results[2].Error)
}

func TestDispatch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := New(testConfig(url))
	resp, err := d.Dispatch(context.Background(), batchOf(
		namedItem("a.png", pngBytes()),
		namedItem("b.png", pngBytes()),
	))
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeTransportError, resp.Outcome)
	for _, r := range resp.Results {
		assert.Equal(t, MsgNetworkError, r.Error)
	}
}

func TestDispatch_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway</html>"))
	}))
	defer srv.Close()
	d := New(testConfig(srv.URL), WithHTTPClient(srv.Client()))

	resp, err := d.Dispatch(context.Background(), batchOf(namedItem("a.png", pngBytes())))
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeServerError, resp.Outcome)
	assert.Equal(t, MsgServerError, resp.Results[0].Error)
}

func TestDispatch_ShortResultListAndPerItemErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.ClassifyResponse{
			Results: []api.ClassifyResult{
				api.ErrorResult("a.png", "File is not a supported image format"),
				api.PredictionResult("b.png", "C1", 0.7, nil),
			},
		})
	}))
	defer srv.Close()
	d := New(testConfig(srv.URL), WithHTTPClient(srv.Client()))

	resp, err := d.Dispatch(context.Background(), batchOf(
		namedItem("a.png", pngBytes()),
		namedItem("b.png", pngBytes()),
		namedItem("c.png", pngBytes()),
	))
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeOK, resp.Outcome)
	assert.Equal(t, "File is not a supported image format", resp.Results[0].Error)
	assert.Equal(t, "C1", resp.Results[1].PredictedLabel)
	assert.Equal(t, MsgServerError, resp.Results[2].Error)
	assert.Equal(t, "c.png", resp.Results[2].ItemName)
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name  string
		index int
		total int
		item  types.Item
		want  string
	}{
		{"named", 0, 3, types.Item{Name: "room.png"}, "room.png"},
		{"single photo", 0, 1, types.Item{}, "image.jpg"},
		{"first in album", 0, 3, types.Item{}, "image_1.jpg"},
		{"third in album", 2, 3, types.Item{}, "image_3.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.index, tt.total, tt.item))
		})
	}
}

func TestDispatch_Properties(t *testing.T) {
	es := newEchoServer(t)
	d := New(testConfig(es.srv.URL), WithHTTPClient(es.srv.Client()))
	valid := pngBytes()

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(t, "n")
		items := make([]types.Item, n)
		good := make([]bool, n)
		for i := range items {
			good[i] = rapid.Bool().Draw(t, "good")
			if good[i] {
				items[i] = namedItem("ok.png", valid)
			} else {
				items[i] = namedItem("bad.txt", fixtures.Text())
			}
		}

		before := es.Calls()
		resp, err := d.Dispatch(context.Background(), batchOf(items...))
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
		if len(resp.Results) != n {
			t.Fatalf("got %d results for %d items", len(resp.Results), n)
		}

		anyGood := false
		for i, r := range resp.Results {
			if r.Index != i {
				t.Fatalf("result %d carries index %d", i, r.Index)
			}
			if good[i] != r.OK() {
				t.Fatalf("item %d: good=%v ok=%v (%q)", i, good[i], r.OK(), r.Error)
			}
			if (r.PredictedLabel == "") == (r.Error == "") {
				t.Fatalf("item %d must carry exactly one of label or error", i)
			}
			anyGood = anyGood || good[i]
		}

		sent := es.Calls() - before
		if anyGood && sent != 1 {
			t.Fatalf("expected exactly one request, got %d", sent)
		}
		if !anyGood && sent != 0 {
			t.Fatalf("expected no request, got %d", sent)
		}
	})
}

func TestClient_Endpoint(t *testing.T) {
	c := NewClient("http://backend:8000/", http.DefaultClient, nil)
	assert.Equal(t, "http://backend:8000"+api.ClassifyPath, c.Endpoint())
}
