package backend

import (
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/tidwall/gjson"
)

// extractor pulls reply text out of a decoded response, or returns "".
type extractor func(doc gjson.Result) string

// replyExtractors are tried in order; the first non-empty text wins.
var replyExtractors = []extractor{
	latestAssistantTurn("chat"),
	stringField("assistant.content"),
	stringField("content"),
}

// sessionIDPaths are the fields a create response may carry the chat id in.
var sessionIDPaths = []string{"id", "chat_id", "chat.id"}

// latestAssistantTurn reads a turn object and accepts it only when authored by the assistant.
func latestAssistantTurn(path string) extractor {
	return func(doc gjson.Result) string {
		turn := doc.Get(path)
		if !turn.IsObject() {
			return ""
		}
		if schema.RoleType(turn.Get("role").String()) != schema.Assistant {
			return ""
		}
		return textOf(turn.Get("content"))
	}
}

func stringField(path string) extractor {
	return func(doc gjson.Result) string {
		return textOf(doc.Get(path))
	}
}

func textOf(v gjson.Result) string {
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}

// ExtractReply returns the assistant text from a send-message response body.
// Bodies that are not JSON, or match no known shape, yield "".
func ExtractReply(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	doc := gjson.ParseBytes(body)
	for _, extract := range replyExtractors {
		if text := extract(doc); text != "" {
			return text
		}
	}
	return ""
}

// extractSessionID returns the chat identifier from a create response body.
func extractSessionID(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	doc := gjson.ParseBytes(body)
	for _, path := range sessionIDPaths {
		v := doc.Get(path)
		switch v.Type {
		case gjson.String:
			if id := strings.TrimSpace(v.Str); id != "" {
				return id
			}
		case gjson.Number:
			return v.Raw
		}
	}
	return ""
}
