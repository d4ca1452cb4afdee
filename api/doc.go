// Package api defines the wire types of the InteriorLens HTTP and websocket
// surfaces.
//
// # API Overview
//
// The inference service exposes:
//   - POST /classify_batch: multipart upload, field "images", one file per
//     image; the response carries one result per file in upload order
//   - GET /health, /healthz, /ready, /readyz: liveness and readiness
//   - GET /version: build information
//
// The chat gateway exposes GET /ws, a websocket carrying InboundFrame
// messages from the chat transport adapter and OutboundFrame replies.
//
// # Authentication
//
// When API keys are configured, requests must carry the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the inference service is:
//
//	http://localhost:8000
package api
