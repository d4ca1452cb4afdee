package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/interiorlens/album"
	"github.com/BaSui01/interiorlens/testutil"
	"github.com/BaSui01/interiorlens/testutil/fixtures"
	"github.com/BaSui01/interiorlens/testutil/mocks"
	"github.com/BaSui01/interiorlens/types"
)

// fakeDispatcher labels every item C1 and records the batches it saw.
type fakeDispatcher struct {
	err   error
	delay time.Duration

	mu      sync.Mutex
	batches []*types.FinalizedBatch

	active    int32
	maxActive int32
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, batch *types.FinalizedBatch) (*types.BatchResponse, error) {
	n := atomic.AddInt32(&d.active, 1)
	defer atomic.AddInt32(&d.active, -1)
	for {
		cur := atomic.LoadInt32(&d.maxActive)
		if n <= cur || atomic.CompareAndSwapInt32(&d.maxActive, cur, n) {
			break
		}
	}

	d.mu.Lock()
	d.batches = append(d.batches, batch)
	d.mu.Unlock()

	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return nil, d.err
	}

	resp := &types.BatchResponse{
		BatchID: batch.ID,
		Outcome: types.OutcomeOK,
		Results: make([]types.ClassificationResult, batch.Len()),
		Meta:    types.BatchMeta{Count: batch.Len()},
	}
	for i, it := range batch.Items {
		resp.Results[i] = types.ClassificationResult{
			Index:          i,
			ItemName:       it.Name,
			PredictedLabel: "C1",
			TopConfidence:  0.9,
			Confidences:    map[string]float64{"C1": 0.9, "C0": 0.1},
		}
	}
	return resp, nil
}

func (d *fakeDispatcher) Batches() []*types.FinalizedBatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*types.FinalizedBatch(nil), d.batches...)
}

func testPipelineConfig(window time.Duration) Config {
	cfg := DefaultConfig()
	cfg.Album.Window = window
	return cfg
}

func collectReplies(t *testing.T, r *mocks.MockReplier, n int) []mocks.Reply {
	t.Helper()
	out := make([]mocks.Reply, 0, n)
	for i := 0; i < n; i++ {
		reply, ok := testutil.WaitForChannel(r.Notify(), 2*time.Second)
		require.True(t, ok, "timed out waiting for reply %d of %d", i+1, n)
		out = append(out, reply)
	}
	return out
}

func TestPipeline_AlbumRepliesInOrder(t *testing.T) {
	d := &fakeDispatcher{}
	r := mocks.NewMockReplier(16)
	p := NewPipeline(testPipelineConfig(30*time.Millisecond), d, r)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	for _, seq := range []int64{12, 10, 11} {
		require.NoError(t, p.Submit(fixtures.PNGItem(7, seq, "album-1", "")))
	}

	replies := collectReplies(t, r, 3)
	for i, want := range []int64{10, 11, 12} {
		assert.Equal(t, int64(7), replies[i].ChatID)
		assert.Equal(t, want, replies[i].ReplyTo)
		assert.Contains(t, replies[i].Text, "<code>C1</code>")
	}

	batches := d.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, "album-1", batches[0].GroupID)
	assert.Equal(t, 3, batches[0].Len())
}

func TestPipeline_SingleItem(t *testing.T) {
	d := &fakeDispatcher{}
	r := mocks.NewMockReplier(4)
	p := NewPipeline(testPipelineConfig(time.Hour), d, r)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	require.NoError(t, p.Submit(fixtures.PNGItem(3, 99, "", "living.png")))

	replies := collectReplies(t, r, 1)
	assert.Equal(t, int64(99), replies[0].ReplyTo)
	assert.Contains(t, replies[0].Text, "living.png")
}

func TestPipeline_DispatchErrorSendsNothing(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("empty batch")}
	r := mocks.NewMockReplier(4)
	p := NewPipeline(testPipelineConfig(time.Hour), d, r)

	require.NoError(t, p.Submit(fixtures.PNGItem(3, 1, "", "a.png")))
	require.NoError(t, p.Close(testutil.TestContext(t)))

	assert.Len(t, d.Batches(), 1)
	assert.Empty(t, r.Replies())
}

func TestPipeline_CloseFlushesOpenAlbums(t *testing.T) {
	d := &fakeDispatcher{}
	r := mocks.NewMockReplier(8)
	p := NewPipeline(testPipelineConfig(time.Hour), d, r)

	require.NoError(t, p.Submit(fixtures.PNGItem(1, 2, "g", "b.png")))
	require.NoError(t, p.Submit(fixtures.PNGItem(1, 1, "g", "a.png")))
	assert.Equal(t, 1, p.Pending())

	require.NoError(t, p.Close(testutil.TestContext(t)))

	replies := r.Replies()
	require.Len(t, replies, 2)
	assert.Equal(t, int64(1), replies[0].ReplyTo)
	assert.Equal(t, int64(2), replies[1].ReplyTo)
	assert.Equal(t, types.FinalizeFlush, d.Batches()[0].Reason)

	assert.ErrorIs(t, p.Submit(fixtures.PNGItem(1, 3, "", "c.png")), album.ErrClosed)
}

func TestPipeline_WorkersBoundConcurrency(t *testing.T) {
	d := &fakeDispatcher{delay: 20 * time.Millisecond}
	r := mocks.NewMockReplier(8)
	cfg := testPipelineConfig(time.Hour)
	cfg.Workers = 1
	p := NewPipeline(cfg, d, r)

	for i := int64(1); i <= 4; i++ {
		require.NoError(t, p.Submit(fixtures.PNGItem(i, i, "", "x.png")))
	}
	require.NoError(t, p.Close(testutil.TestContext(t)))

	assert.Len(t, r.Replies(), 4)
	assert.Equal(t, int32(1), atomic.LoadInt32(&d.maxActive))
}

func TestPipeline_ProcessJoinsReplyErrors(t *testing.T) {
	d := &fakeDispatcher{}
	r := mocks.NewMockReplier(4).WithError(errors.New("chat gone"))
	p := NewPipeline(testPipelineConfig(time.Hour), d, r)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	batch := &types.FinalizedBatch{ID: "b", Items: fixtures.Album(1, "g", 1, 2)}
	err := p.process(context.Background(), batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reply to message 1")
	assert.Contains(t, err.Error(), "reply to message 2")
}
