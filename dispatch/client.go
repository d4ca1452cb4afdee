package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/BaSui01/interiorlens/api"
	"github.com/BaSui01/interiorlens/types"
)

// maxResponseBytes bounds the JSON body read from the inference service.
const maxResponseBytes = 8 << 20

// part is one file of the multipart request.
type part struct {
	name        string
	contentType string
	payload     []byte
}

// Client posts image batches to the inference service.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates a client for baseURL (e.g. http://inference:8000).
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + api.ClassifyPath,
		http:     httpClient,
		logger:   logger,
	}
}

// Endpoint returns the full classify URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// classify sends one multipart request and decodes the response. Errors are
// *types.Error with code UPSTREAM_TIMEOUT, UPSTREAM_ERROR or TRANSPORT_ERROR.
func (c *Client) classify(ctx context.Context, parts []part) (*api.ClassifyResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeParts(mw, parts))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		_ = pr.Close()
		return nil, types.NewError(types.ErrTransport, "build request").WithCause(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		_ = pr.Close()
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("inference service returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(snippet)),
		)
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("status %d", resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}

	var out api.ClassifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return nil, classifyTransportError(ctx, err)
		}
		return nil, types.NewError(types.ErrUpstreamError, "decode response").WithCause(err)
	}
	return &out, nil
}

func writeParts(mw *multipart.Writer, parts []part) error {
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, api.ClassifyFormField, p.name))
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := w.Write(p.payload); err != nil {
			return err
		}
	}
	return mw.Close()
}

// classifyTransportError maps a failed round trip to timeout or transport.
func classifyTransportError(ctx context.Context, err error) *types.Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrUpstreamTimeout, "request timed out").WithCause(err).WithRetryable(true)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NewError(types.ErrUpstreamTimeout, "request timed out").WithCause(err).WithRetryable(true)
	}
	return types.NewError(types.ErrTransport, "transport failure").WithCause(err).WithRetryable(true)
}
