// Package fixtures 提供测试用的图片与聊天条目样例。
package fixtures

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"time"

	"github.com/BaSui01/interiorlens/types"
)

// Solid 返回单色 RGBA 图像
func Solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// PNG 返回编码后的单色 PNG
func PNG(w, h int, c color.Color) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Solid(w, h, c)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG 返回编码后的单色 JPEG
func JPEG(w, h int, c color.Color) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Solid(w, h, c), &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// GIF 返回编码后的单色 GIF
func GIF(w, h int, c color.Color) []byte {
	var buf bytes.Buffer
	if err := gif.Encode(&buf, Solid(w, h, c), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Corrupt 返回以 PNG 签名开头但无法解码的数据
func Corrupt() []byte {
	return []byte("\x89PNG\r\n\x1a\n-this-is-not-an-image")
}

// Text 返回纯文本负载
func Text() []byte {
	return []byte("hello, this is a text file and not a picture")
}

// =============================================================================
// 📨 条目构造
// =============================================================================

// Gray 是测试中常用的中性色
var Gray = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// PNGItem 构造一个带 PNG 负载的条目
func PNGItem(chatID, seq int64, groupID, name string) types.Item {
	return types.Item{
		Payload:   PNG(8, 8, Gray),
		Name:      name,
		MIMEType:  "image/png",
		GroupID:   groupID,
		Seq:       seq,
		ChatID:    chatID,
		ArrivedAt: time.Now(),
	}
}

// Album 构造同一分组内按 seqs 顺序的 PNG 条目
func Album(chatID int64, groupID string, seqs ...int64) []types.Item {
	items := make([]types.Item, 0, len(seqs))
	for _, seq := range seqs {
		items = append(items, PNGItem(chatID, seq, groupID, "photo.png"))
	}
	return items
}
