package live

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vidfriends/watchparty/internal/apierr"
	"github.com/vidfriends/watchparty/internal/chat"
	"github.com/vidfriends/watchparty/internal/logging"
)

// Client commands.
const (
	CmdRoute            = "route"
	CmdVisibility       = "visibility"
	CmdChatFetch        = "chat.fetch"
	CmdChatSend         = "chat.send"
	CmdChatPrivateFetch = "chat.private.fetch"
	CmdChatPrivateSend  = "chat.private.send"
	CmdChatEdit         = "chat.edit"
	CmdChatDelete       = "chat.delete"
	CmdChatClear        = "chat.clear"
	CmdChatUnreadClear  = "chat.unread.clear"
	CmdVideoMount       = "video.mount"
	CmdVideoUnmount     = "video.unmount"
	CmdVideoReact       = "video.react"
	CmdVideoPlayback    = "video.playback"
	CmdVideoPosition    = "video.position"
)

type routePayload struct {
	Path string `json:"path"`
}

type visibilityPayload struct {
	Visible bool `json:"visible"`
}

type sendPayload struct {
	Content string `json:"content"`
	ReplyTo string `json:"replyTo"`
}

type privatePayload struct {
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

type editPayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type videoPayload struct {
	VideoID  string  `json:"videoId"`
	Position float64 `json:"position"`
	Playing  bool    `json:"playing"`
	HeldMS   int64   `json:"heldMs"`
}

// Handle runs one client command. Failures are reported to the client as an
// error event and returned.
func (c *Conn) Handle(ctx context.Context, env Envelope) error {
	err := c.dispatch(ctx, env)
	if err != nil {
		logging.FromContext(ctx).Warn("live command failed", "command", env.Type, "error", err)
		c.Emit(EventError, ErrorPayload{Command: env.Type, Status: apierr.Status(err), Error: apierr.Message(err)})
	}
	return err
}

func (c *Conn) dispatch(ctx context.Context, env Envelope) error {
	switch env.Type {
	case CmdRoute:
		var p routePayload
		if err := decode(env, &p); err != nil {
			return err
		}
		c.chat.SetRoute(p.Path)
	case CmdVisibility:
		var p visibilityPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		c.session.SetVisibility(ctx, p.Visible)
	case CmdChatFetch:
		return c.chat.FetchGlobalMessages(ctx)
	case CmdChatSend:
		var p sendPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		if err := c.allow("chat"); err != nil {
			return err
		}
		_, err := c.chat.SendGlobalMessage(ctx, p.Content, p.ReplyTo, chat.SendOptions{})
		return err
	case CmdChatPrivateFetch:
		var p privatePayload
		if err := decode(env, &p); err != nil {
			return err
		}
		return c.chat.FetchPrivateMessages(ctx, p.UserID)
	case CmdChatPrivateSend:
		var p privatePayload
		if err := decode(env, &p); err != nil {
			return err
		}
		if err := c.allow("chat"); err != nil {
			return err
		}
		_, err := c.chat.SendPrivateMessage(ctx, p.UserID, p.Content)
		return err
	case CmdChatEdit:
		var p editPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		_, err := c.chat.EditMessage(ctx, p.ID, p.Content)
		return err
	case CmdChatDelete:
		var p editPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		return c.chat.DeleteMessage(ctx, p.ID)
	case CmdChatClear:
		_, err := c.chat.ClearGlobal(ctx)
		return err
	case CmdChatUnreadClear:
		c.chat.ClearUnread()
	case CmdVideoMount:
		p, err := decodeVideo(env)
		if err != nil {
			return err
		}
		return c.mount(c.ctx, p.VideoID)
	case CmdVideoUnmount:
		p, err := decodeVideo(env)
		if err != nil {
			return err
		}
		c.unmount(ctx, p.VideoID)
	case CmdVideoReact:
		p, err := decodeVideo(env)
		if err != nil {
			return err
		}
		if err := c.allow("react"); err != nil {
			return err
		}
		held := time.Duration(p.HeldMS) * time.Millisecond
		_, err = c.deps.Reactions.Record(ctx, c.identity, p.VideoID, p.Position, held)
		return err
	case CmdVideoPlayback:
		p, err := decodeVideo(env)
		if err != nil {
			return err
		}
		if store, ok := c.Player(p.VideoID); ok {
			store.SetPlaying(c.ctx, p.Playing)
		}
	case CmdVideoPosition:
		p, err := decodeVideo(env)
		if err != nil {
			return err
		}
		if store, ok := c.Player(p.VideoID); ok {
			store.SetPosition(p.Position)
		}
	default:
		return fmt.Errorf("%w: unknown command %q", apierr.ErrInvalidInput, env.Type)
	}
	return nil
}

func (c *Conn) allow(scope string) error {
	if c.deps.Limiter == nil {
		return nil
	}
	if !c.deps.Limiter.Allow(scope + ":" + c.identity.UserID) {
		return apierr.ErrRateLimited
	}
	return nil
}

func decode(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", apierr.ErrInvalidInput, env.Type, err)
	}
	return nil
}

func decodeVideo(env Envelope) (videoPayload, error) {
	var p videoPayload
	if err := decode(env, &p); err != nil {
		return videoPayload{}, err
	}
	p.VideoID = strings.TrimSpace(p.VideoID)
	if p.VideoID == "" {
		return videoPayload{}, fmt.Errorf("%w: %s requires videoId", apierr.ErrInvalidInput, env.Type)
	}
	return p, nil
}
