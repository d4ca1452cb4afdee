package dispatch

import (
	"net/http"
	"strings"

	"github.com/BaSui01/interiorlens/types"
)

// Validator performs the checks that can reject an item before any network
// I/O: empty payload, extension, size and content sniffing.
type Validator struct {
	maxSize int64
	formats map[string]struct{}
	list    []string
}

// NewValidator creates a validator. formats are extensions without the dot;
// maxSize <= 0 disables the size check.
func NewValidator(maxSize int64, formats []string) *Validator {
	v := &Validator{
		maxSize: maxSize,
		formats: make(map[string]struct{}, len(formats)),
	}
	for _, f := range formats {
		f = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(f)), ".")
		if f == "" {
			continue
		}
		if _, dup := v.formats[f]; !dup {
			v.formats[f] = struct{}{}
			v.list = append(v.list, f)
		}
	}
	return v
}

// Supports reports whether the extension is accepted.
func (v *Validator) Supports(ext string) bool {
	_, ok := v.formats[strings.ToLower(ext)]
	return ok
}

// Validate returns nil for an acceptable item, or a *types.Error whose
// Message is the text shown to the user.
func (v *Validator) Validate(item types.Item) *types.Error {
	if item.Size() == 0 {
		return types.NewError(types.ErrCorruptPayload, MsgEmptyFile)
	}
	if !v.Supports(item.Extension()) {
		return types.NewError(types.ErrUnsupportedFormat, MsgUnsupportedFormat(v.list))
	}
	if v.maxSize > 0 && item.Size() > v.maxSize {
		return types.NewError(types.ErrPayloadTooLarge, MsgFileTooLarge(v.maxSize))
	}
	if !strings.HasPrefix(SniffContentType(item.Payload), "image/") {
		return types.NewError(types.ErrCorruptPayload, MsgNotAnImage)
	}
	return nil
}

// SniffContentType detects the MIME type from the leading bytes.
func SniffContentType(payload []byte) string {
	return http.DetectContentType(payload)
}
