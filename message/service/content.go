package service

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/AdventureDe/LinkIM/message/errs"
	"github.com/AdventureDe/LinkIM/message/repo/model"
)

const (
	DefaultMaxMessageLength = 1000
	MaxImagePayloadLength   = 2000
)

// Payload 校验通过的消息内容
type Payload struct {
	Kind     model.MessageKind
	Content  string // 原样保存
	ImageURL string // 仅图片消息
}

// imageRef 图片消息的 JSON 格式：{"type":"image","url":"https://..."}
type imageRef struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Classify returns KindImage only for a flat JSON object whose "type" is
// "image" and which carries a "url" field. Everything else is text.
func Classify(content string) model.MessageKind {
	if _, ok := parseImageRef(content); ok {
		return model.KindImage
	}
	return model.KindText
}

// Validate checks content against the rules of its kind. maxTextLength <= 0
// means DefaultMaxMessageLength.
func Validate(kind model.MessageKind, content string, maxTextLength int) (Payload, error) {
	if strings.TrimSpace(content) == "" {
		return Payload{}, errs.ErrEmptyContent
	}
	if maxTextLength <= 0 {
		maxTextLength = DefaultMaxMessageLength
	}

	switch kind {
	case model.KindImage:
		if utf8.RuneCountInString(content) > MaxImagePayloadLength {
			return Payload{}, errs.ErrMalformedImage
		}
		ref, ok := parseImageRef(content)
		if !ok || !strings.HasPrefix(ref.URL, "http") {
			return Payload{}, errs.ErrMalformedImage
		}
		return Payload{Kind: model.KindImage, Content: content, ImageURL: ref.URL}, nil
	default:
		if utf8.RuneCountInString(content) > maxTextLength {
			return Payload{}, errs.ErrContentTooLong(maxTextLength)
		}
		return Payload{Kind: model.KindText, Content: content}, nil
	}
}

func parseImageRef(content string) (imageRef, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return imageRef{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return imageRef{}, false
	}
	// 只接受扁平对象
	for _, raw := range fields {
		if len(raw) > 0 && (raw[0] == '{' || raw[0] == '[') {
			return imageRef{}, false
		}
	}
	if _, ok := fields["url"]; !ok {
		return imageRef{}, false
	}
	var ref imageRef
	if err := json.Unmarshal([]byte(trimmed), &ref); err != nil {
		return imageRef{}, false
	}
	if ref.Type != "image" {
		return imageRef{}, false
	}
	return ref, true
}
