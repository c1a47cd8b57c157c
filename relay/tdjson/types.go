package tdjson

import "fmt"

// envelope carries the routing fields present on every TDLib JSON object.
type envelope struct {
	Type  string `json:"@type"`
	Extra string `json:"@extra"`
}

// apiError is the TDLib "error" object returned instead of a result.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("tdjson: api error %d: %s", e.Code, e.Message)
}

type authorizationStateUpdate struct {
	AuthorizationState struct {
		Type string `json:"@type"`
	} `json:"authorization_state"`
}

type tdChat struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type tdFormattedText struct {
	Text string `json:"text"`
}

type tdMessageContent struct {
	Text    tdFormattedText `json:"text"`
	Caption tdFormattedText `json:"caption"`
}

type tdImportInfo struct {
	SenderName string `json:"sender_name"`
}

type tdMessage struct {
	ID             int64            `json:"id"`
	ChatID         int64            `json:"chat_id"`
	CanBeForwarded bool             `json:"can_be_forwarded"`
	Content        tdMessageContent `json:"content"`
	ImportInfo     *tdImportInfo    `json:"import_info"`
}

type tdFoundMessages struct {
	Messages []tdMessage `json:"messages"`
}

func (m tdMessage) text() string {
	if m.Content.Text.Text != "" {
		return m.Content.Text.Text
	}
	return m.Content.Caption.Text
}

func (m tdMessage) sender() string {
	if m.ImportInfo != nil {
		return m.ImportInfo.SenderName
	}
	return ""
}
