package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/zhouzirui/gchat-relay/internal/model/chat"
	"github.com/zhouzirui/gchat-relay/internal/service/session"
)

// Reply texts shown to chat users.
const (
	MsgSessionFailed = "Sorry, I couldn't start a session with the AI."
	MsgUnavailable   = "⚠️ Error: The AI service is unavailable at the moment."
	MsgNoContent     = "*(No response from AI)*"
)

const (
	defaultBotName   = "OpenWebUI"
	defaultAddressee = "there"
	greetingTemplate = "Hello %s, I'm your %s bot! Ask me anything."
)

// Backend is the AI service the relay forwards messages to.
type Backend interface {
	CreateSession(ctx context.Context) (string, error)
	SendMessage(ctx context.Context, sessionID, text string) (string, error)
}

// Dispatcher turns verified platform events into replies.
type Dispatcher struct {
	sessions *session.Directory
	backend  Backend
	botName  string
}

// New creates a dispatcher. An empty botName uses the default.
func New(sessions *session.Directory, backend Backend, botName string) *Dispatcher {
	if strings.TrimSpace(botName) == "" {
		botName = defaultBotName
	}
	return &Dispatcher{
		sessions: sessions,
		backend:  backend,
		botName:  botName,
	}
}

// Dispatch handles one event. It always returns a well-formed reply.
func (d *Dispatcher) Dispatch(ctx context.Context, ev chat.Event) chat.Reply {
	switch ev.Kind() {
	case chat.KindAdded:
		return d.handleAdded(ev)
	case chat.KindRemoved:
		return d.handleRemoved(ev)
	case chat.KindMessage:
		return d.handleMessage(ctx, ev)
	default:
		log.Printf("[dispatch] ignoring unhandled event type=%q space=%s", ev.Type, ev.ConversationID())
		return chat.NoReply()
	}
}

func (d *Dispatcher) handleAdded(ev chat.Event) chat.Reply {
	name := strings.TrimSpace(ev.User.DisplayName)
	if name == "" {
		name = defaultAddressee
	}
	log.Printf("[dispatch] added to space=%s by %s", ev.ConversationID(), name)
	return chat.TextReply(fmt.Sprintf(greetingTemplate, name, d.botName))
}

func (d *Dispatcher) handleRemoved(ev chat.Event) chat.Reply {
	conversationID := ev.ConversationID()
	if conversationID == "" {
		log.Printf("[dispatch] removal event without space name, ignoring")
		return chat.NoReply()
	}
	if d.sessions.Remove(conversationID) {
		log.Printf("[dispatch] removed from space=%s, session dropped", conversationID)
	} else {
		log.Printf("[dispatch] removed from space=%s, no session held", conversationID)
	}
	return chat.NoReply()
}

func (d *Dispatcher) handleMessage(ctx context.Context, ev chat.Event) chat.Reply {
	text := ev.Text()
	if text == "" {
		return chat.NoReply()
	}

	conversationID := ev.ConversationID()
	if conversationID == "" {
		log.Printf("[dispatch] message event without space name, ignoring")
		return chat.NoReply()
	}

	// Backend calls outlive the inbound request; each is bounded by the client's own timeout.
	callCtx := context.WithoutCancel(ctx)

	record, created, err := d.sessions.GetOrCreate(callCtx, conversationID, d.backend.CreateSession)
	if err != nil {
		log.Printf("[dispatch] failed to create backend session for space=%s: %v", conversationID, err)
		return chat.TextReply(MsgSessionFailed)
	}
	if created {
		log.Printf("[dispatch] started backend session=%s for space=%s", record.BackendSessionID, conversationID)
	}

	reply, err := d.backend.SendMessage(callCtx, record.BackendSessionID, text)
	if err != nil {
		log.Printf("[dispatch] backend send failed for space=%s session=%s: %v", conversationID, record.BackendSessionID, err)
		return chat.TextReply(MsgUnavailable)
	}
	d.sessions.Touch(conversationID)

	if reply == "" {
		reply = MsgNoContent
	}
	log.Printf("[dispatch] replying to space=%s (%d chars)", conversationID, len(reply))
	return chat.TextReply(reply)
}
