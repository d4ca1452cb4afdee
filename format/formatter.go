package format

import (
	"fmt"
	"html"
	"math"
	"sort"
	"strings"

	"github.com/BaSui01/interiorlens/types"
)

const (
	barWidth   = 20
	barStep    = 5.0 // percent per bar cell
	barFull    = "█"
	barEmpty   = "░"
	errorMark  = "❌"
	headerLine = "🏠 <b>Classification result</b>\n"
)

// Format renders one result as an HTML chat message.
func Format(r types.ClassificationResult) string {
	name := r.ItemName
	if name == "" {
		name = "Image"
	}

	lines := []string{
		headerLine,
		"📸 <b>File:</b> " + html.EscapeString(name),
	}

	if !r.OK() {
		msg := r.Error
		if !strings.HasPrefix(msg, errorMark) {
			msg = errorMark + " " + msg
		}
		lines = append(lines, html.EscapeString(msg))
		return strings.Join(lines, "\n")
	}

	info := Lookup(r.PredictedLabel)
	lines = append(lines,
		fmt.Sprintf("%s <b>Interior class:</b> <code>%s</code> — %.1f%%",
			info.Emoji, html.EscapeString(r.PredictedLabel), r.TopConfidence*100),
		fmt.Sprintf("ℹ️ <b>Description:</b> [%s]\n", html.EscapeString(info.Description)),
		"📊 <b>Probability distribution:</b>",
		Distribution(r.Confidences),
	)
	return strings.Join(lines, "\n")
}

// FormatBatch renders every result of a batch, keeping length and order.
func FormatBatch(resp *types.BatchResponse) []string {
	if resp == nil {
		return nil
	}
	out := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = Format(r)
	}
	return out
}

// Distribution renders one line per label: catalogue labels first in
// catalogue order, then unknown labels alphabetically.
func Distribution(confidences map[string]float64) string {
	labels := make([]string, 0, len(confidences))
	for _, info := range Catalogue {
		if _, ok := confidences[info.Label]; ok {
			labels = append(labels, info.Label)
		}
	}
	var extra []string
	for l := range confidences {
		if _, known := catalogueIndex[l]; !known {
			extra = append(extra, l)
		}
	}
	sort.Strings(extra)
	labels = append(labels, extra...)

	lines := make([]string, len(labels))
	for i, l := range labels {
		pct := confidences[l] * 100
		lines[i] = fmt.Sprintf("%s %s: %s %s", Lookup(l).Emoji, html.EscapeString(l), percent(pct), Bar(pct))
	}
	return strings.Join(lines, "\n")
}

// Bar draws a 20-cell bar, one cell per 5 percent.
func Bar(pct float64) string {
	n := int(math.RoundToEven(pct / barStep))
	n = max(0, min(barWidth, n))
	return strings.Repeat(barFull, n) + strings.Repeat(barEmpty, barWidth-n)
}

// percent pads values below 10 so the bars line up.
func percent(pct float64) string {
	if pct < 10 {
		return fmt.Sprintf(" %.1f%%", pct)
	}
	return fmt.Sprintf("%.1f%%", pct)
}
