// Package persona turns a connection into a conversation with either the shop
// assistant or the improv host.
package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/cipher/pkg/agent"
	"github.com/harunnryd/cipher/pkg/errorsx"
	"github.com/harunnryd/cipher/pkg/improv"
	"github.com/harunnryd/cipher/pkg/logging"
	"github.com/harunnryd/cipher/pkg/redact"
	"github.com/harunnryd/cipher/pkg/session"
	"github.com/harunnryd/cipher/pkg/shop"
)

type Kind string

const (
	KindShop   Kind = "shop"
	KindImprov Kind = "improv"
)

var (
	ErrUnknownPersona    = errors.New("persona: unknown persona")
	ErrNoLanguageModel   = errors.New("persona: no language model configured")
	ErrUnsupportedAction = errors.New("persona: actions are not supported by this persona")
)

const (
	notCaughtReply = "Sorry, I didn't catch that. Could you say it again?"
	degradedReply  = "Sorry, I'm having trouble thinking right now. You can still ask me to show the catalog or your cart."
)

// Conversation is one connected user talking to one persona.
type Conversation interface {
	Kind() Kind
	SessionID() string
	Greeting() string
	// Respond answers free-form user speech.
	Respond(ctx context.Context, text string) (string, error)
	// Invoke runs a named action directly, bypassing the model.
	Invoke(ctx context.Context, action string, args map[string]any) (string, error)
}

// ParseKind maps a hello frame persona to a Kind. Empty means shop.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(KindShop):
		return KindShop, nil
	case string(KindImprov):
		return KindImprov, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPersona, raw)
	}
}

type Factory struct {
	Controller *shop.Controller
	// Agent may be nil; shop utterances then fail with ErrNoLanguageModel
	// while actions keep working.
	Agent     *agent.Agent
	Chooser   improv.Chooser
	MaxRounds int
	Logger    *slog.Logger
}

// New starts a conversation for kind. identity is optional.
func (f Factory) New(kind Kind, identity string) (Conversation, error) {
	logger := logging.NewComponentLogger(f.Logger, "persona")
	switch kind {
	case KindShop:
		if f.Controller == nil {
			return nil, errors.New("persona: shop controller is required")
		}
		s := session.New(strings.TrimSpace(identity))
		tools := shop.NewTools(f.Controller, s)
		c := &shopConversation{
			controller: f.Controller,
			session:    s,
			tools:      tools,
			logger:     logger.With("session_id", s.ID),
		}
		if f.Agent != nil {
			c.agent = f.Agent.NewConversation(tools, s.ID)
		}
		logger.Info("conversation_started", "session_id", s.ID, "persona", string(kind), redact.IdentityAttr(identity))
		return c, nil
	case KindImprov:
		chooser := f.Chooser
		if chooser == nil {
			chooser = improv.NewRandomChooser(nil, nil)
		}
		c := &improvConversation{
			id:    session.New("").ID,
			host:  improv.NewHost(chooser),
			state: improv.NewState(f.MaxRounds),
		}
		logger.Info("conversation_started", "session_id", c.id, "persona", string(kind))
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPersona, kind)
	}
}

type shopConversation struct {
	controller *shop.Controller
	session    *session.Session
	tools      *shop.Tools
	agent      *agent.Conversation
	logger     *slog.Logger
}

func (c *shopConversation) Kind() Kind        { return KindShop }
func (c *shopConversation) SessionID() string { return c.session.ID }

// Session exposes the underlying shop session.
func (c *shopConversation) Session() *session.Session { return c.session }

func (c *shopConversation) Greeting() string {
	return fmt.Sprintf("Welcome to %s! I'm Cipher. Ask me to show the catalog, or tell me what you're looking for.", c.controller.StoreName())
}

func (c *shopConversation) Respond(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return notCaughtReply, nil
	}
	if c.agent == nil {
		return "", ErrNoLanguageModel
	}
	reply, err := c.agent.Send(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Warn("shop_reply_degraded", "reason_code", errorsx.LogValue(err), "error", err)
		return degradedReply, nil
	}
	if strings.TrimSpace(reply) == "" {
		return notCaughtReply, nil
	}
	return reply, nil
}

func (c *shopConversation) Invoke(ctx context.Context, action string, args map[string]any) (string, error) {
	return c.tools.HandleTool(ctx, action, args)
}

type improvConversation struct {
	id    string
	host  *improv.Host
	state *improv.State
}

func (c *improvConversation) Kind() Kind        { return KindImprov }
func (c *improvConversation) SessionID() string { return c.id }
func (c *improvConversation) Greeting() string  { return improv.Welcome }

// State exposes the game state.
func (c *improvConversation) State() *improv.State { return c.state }

func (c *improvConversation) Respond(_ context.Context, text string) (string, error) {
	return c.host.Turn(c.state, text), nil
}

func (c *improvConversation) Invoke(context.Context, string, map[string]any) (string, error) {
	return "", ErrUnsupportedAction
}
