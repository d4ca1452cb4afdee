package api

import (
	"github.com/BaSui01/interiorlens/types"
)

// =============================================================================
// 批量分类类型
// =============================================================================

// ClassifyFormField 是 POST /classify_batch 中承载图片的 multipart 字段名。
const ClassifyFormField = "images"

// ClassifyPath 是批量分类接口路径。
const ClassifyPath = "/classify_batch"

// ClassifyResponse 表示批量分类响应。results 与请求中的文件一一对应、顺序一致。
// @Description 批量分类响应结构
type ClassifyResponse struct {
	// 每张图片一个结果
	Results []ClassifyResult `json:"results"`
	// 批次元数据
	Meta ClassifyMeta `json:"meta"`
}

// ClassifyResult 是单张图片的结果，预测与错误二选一。
// 所有字段始终输出：失败项的 predicted_label/top_confidence 为 null，
// per_label_confidences 为空对象；成功项的 error 为 null。
// @Description 单张图片分类结果
type ClassifyResult struct {
	// 预测标签
	PredictedLabel *string `json:"predicted_label" example:"C1"`
	// 最高置信度
	TopConfidence *float64 `json:"top_confidence" example:"0.8123"`
	// 每个标签的置信度，成功时覆盖全部标签
	PerLabelConfidences map[string]float64 `json:"per_label_confidences"`
	// 文件名
	ItemName string `json:"item_name" example:"kitchen.jpg"`
	// 单项错误信息
	Error *string `json:"error"`
}

// PredictionResult 构造成功结果。
func PredictionResult(name, label string, top float64, confidences map[string]float64) ClassifyResult {
	if confidences == nil {
		confidences = map[string]float64{}
	}
	return ClassifyResult{
		PredictedLabel:      &label,
		TopConfidence:       &top,
		PerLabelConfidences: confidences,
		ItemName:            name,
	}
}

// ErrorResult 构造失败结果。
func ErrorResult(name, message string) ClassifyResult {
	return ClassifyResult{
		PerLabelConfidences: map[string]float64{},
		ItemName:            name,
		Error:               &message,
	}
}

// ClassifyMeta 是批次级元数据。
// @Description 批次元数据
type ClassifyMeta struct {
	// 文件数量
	Count int `json:"count" example:"3"`
	// 服务端处理耗时（毫秒）
	LatencyMS int64 `json:"latency_ms" example:"42"`
	// 模型版本
	ModelVersion string `json:"model_version,omitempty" example:"1.0.0"`
	// 主干网络
	Backbone string `json:"backbone,omitempty" example:"EfficientNet-B3"`
}

// =============================================================================
// 转换
// =============================================================================

// FromResults 把领域结果转换为接口结果。
func FromResults(results []types.ClassificationResult) []ClassifyResult {
	out := make([]ClassifyResult, len(results))
	for i, r := range results {
		if r.OK() {
			out[i] = PredictionResult(r.ItemName, r.PredictedLabel, r.TopConfidence, r.Confidences)
		} else {
			out[i] = ErrorResult(r.ItemName, r.Error)
		}
	}
	return out
}

// ToResult 把接口结果转换为位于 index 的领域结果。
func (r ClassifyResult) ToResult(index int) types.ClassificationResult {
	res := types.ClassificationResult{
		Index:       index,
		ItemName:    r.ItemName,
		Confidences: r.PerLabelConfidences,
	}
	if r.Error != nil {
		res.Error = *r.Error
	}
	if r.PredictedLabel != nil {
		res.PredictedLabel = *r.PredictedLabel
	}
	if r.TopConfidence != nil {
		res.TopConfidence = *r.TopConfidence
	}
	if len(res.Confidences) == 0 {
		res.Confidences = nil
	}
	return res
}

// ToMeta 转换为领域元数据。
func (m ClassifyMeta) ToMeta() types.BatchMeta {
	return types.BatchMeta{
		Count:        m.Count,
		LatencyMS:    m.LatencyMS,
		ModelVersion: m.ModelVersion,
		Backbone:     m.Backbone,
	}
}

// =============================================================================
// 网关帧类型
// =============================================================================

// InboundFrame 是聊天传输适配器发往网关的一条图片消息。
// @Description 网关入站帧
type InboundFrame struct {
	// 会话 ID
	ChatID int64 `json:"chat_id"`
	// 消息 ID，同时作为相册内的排序序号
	MessageID int64 `json:"message_id"`
	// 相册 ID，单张图片为空
	MediaGroupID string `json:"media_group_id,omitempty"`
	// 文件名
	FileName string `json:"file_name,omitempty"`
	// MIME 类型提示
	MIMEType string `json:"mime_type,omitempty"`
	// 文件内容（base64）
	Data []byte `json:"data"`
}

// OutboundFrame 是网关发回适配器的一条回复。
// @Description 网关出站帧
type OutboundFrame struct {
	// 会话 ID
	ChatID int64 `json:"chat_id"`
	// 被回复的消息 ID
	ReplyToMessageID int64 `json:"reply_to_message_id"`
	// 回复文本
	Text string `json:"text"`
}
