package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/interiorlens/api"
	"github.com/BaSui01/interiorlens/inference"
	"github.com/BaSui01/interiorlens/types"
)

// =============================================================================
// 🖼️ 批量分类 Handler
// =============================================================================

// Classifier 是分类处理器依赖的推理能力，*inference.Service 实现该接口
type Classifier interface {
	Infer(ctx context.Context, images []inference.Image) ([]types.ClassificationResult, error)
	Info() (inference.ModelInfo, error)
}

// ClassifyHandler 批量分类处理器
type ClassifyHandler struct {
	classifier     Classifier
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewClassifyHandler 创建批量分类处理器；maxUploadBytes <= 0 表示不限制请求体
func NewClassifyHandler(classifier Classifier, maxUploadBytes int64, logger *zap.Logger) *ClassifyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassifyHandler{
		classifier:     classifier,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(zap.String("handler", "classify")),
	}
}

// HandleClassify 处理 POST /classify_batch
// @Summary 批量图片分类
// @Description 对 multipart 字段 images 中的每张图片分类，结果与上传顺序一致
// @Tags 分类
// @Accept multipart/form-data
// @Produce json
// @Param images formData file true "图片，可重复"
// @Success 200 {object} api.ClassifyResponse "分类结果"
// @Failure 400 {object} Response "请求无效"
// @Failure 413 {object} Response "请求体过大"
// @Failure 503 {object} Response "模型不可用"
// @Router /classify_batch [post]
func (h *ClassifyHandler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	start := time.Now()
	images, err := h.readImages(w, r)
	if err != nil {
		WriteError(w, r, AsError(err), h.logger)
		return
	}

	results, err := h.classifier.Infer(r.Context(), images)
	if err != nil {
		WriteError(w, r, AsError(err), h.logger)
		return
	}

	meta := api.ClassifyMeta{
		Count:     len(results),
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if info, err := h.classifier.Info(); err == nil {
		meta.ModelVersion = info.Version
		meta.Backbone = info.Backbone
	}

	h.logger.Debug("batch classified",
		zap.Int("images", len(images)),
		zap.Int64("latency_ms", meta.LatencyMS),
	)

	WriteJSON(w, http.StatusOK, api.ClassifyResponse{
		Results: api.FromResults(results),
		Meta:    meta,
	})
}

// readImages 流式读取 multipart 请求中的所有图片部件
func (h *ClassifyHandler) readImages(w http.ResponseWriter, r *http.Request) ([]inference.Image, error) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "expected multipart/form-data body").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
	}

	var images []inference.Image
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, uploadError(err)
		}

		if part.FormName() != api.ClassifyFormField {
			_ = part.Close()
			continue
		}

		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, uploadError(err)
		}
		name := part.FileName()
		if name == "" {
			name = fmt.Sprintf("image_%d", len(images)+1)
		}
		images = append(images, inference.Image{Name: name, Payload: data})
	}

	if len(images) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "no images provided in field \""+api.ClassifyFormField+"\"").
			WithHTTPStatus(http.StatusBadRequest)
	}
	return images, nil
}

func uploadError(err error) *types.Error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return types.NewError(types.ErrPayloadTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)).
			WithHTTPStatus(http.StatusRequestEntityTooLarge)
	}
	return types.NewError(types.ErrInvalidRequest, "malformed multipart body").
		WithCause(err).
		WithHTTPStatus(http.StatusBadRequest)
}
