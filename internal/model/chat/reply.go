package chat

// Reply is the synchronous response body the platform renders.
// An empty Text encodes as {} which the platform treats as "no reply".
type Reply struct {
	Text string `json:"text,omitempty"`
}

// TextReply builds a visible reply.
func TextReply(text string) Reply {
	return Reply{Text: text}
}

// NoReply is the empty acknowledgement.
func NoReply() Reply {
	return Reply{}
}

// Empty reports whether the reply renders nothing.
func (r Reply) Empty() bool {
	return r.Text == ""
}
