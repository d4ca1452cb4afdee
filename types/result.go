package types

// ClassificationResult is the outcome for one item of a batch. Exactly one of
// PredictedLabel or Error is set.
type ClassificationResult struct {
	// Index is the sequence index inside the originating batch.
	Index          int                `json:"index"`
	ItemName       string             `json:"item_name"`
	PredictedLabel string             `json:"predicted_label,omitempty"`
	TopConfidence  float64            `json:"top_confidence,omitempty"`
	Confidences    map[string]float64 `json:"per_label_confidences,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// OK reports whether the result carries a prediction.
func (r ClassificationResult) OK() bool {
	return r.Error == ""
}

// ErrorResult builds an error variant for the item at index.
func ErrorResult(index int, name, message string) ClassificationResult {
	return ClassificationResult{Index: index, ItemName: name, Error: message}
}

// DispatchOutcome classifies how a batch left the dispatcher.
type DispatchOutcome string

const (
	OutcomeOK             DispatchOutcome = "ok"
	OutcomeServerError    DispatchOutcome = "server_error"
	OutcomeTimeout        DispatchOutcome = "timeout"
	OutcomeTransportError DispatchOutcome = "transport_error"
	// OutcomeRejected means every item failed local validation and nothing
	// was sent.
	OutcomeRejected DispatchOutcome = "rejected"
)

// BatchMeta carries batch-level information with no per-item semantics.
type BatchMeta struct {
	Count        int    `json:"count"`
	LatencyMS    int64  `json:"latency_ms"`
	ModelVersion string `json:"model_version,omitempty"`
	Backbone     string `json:"backbone,omitempty"`
}

// BatchResponse holds one result per submitted item, in submission order.
type BatchResponse struct {
	BatchID string                 `json:"batch_id"`
	Outcome DispatchOutcome        `json:"outcome"`
	Results []ClassificationResult `json:"results"`
	Meta    BatchMeta              `json:"meta"`
}

// Failed returns the number of error results.
func (r *BatchResponse) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}
