package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/constant"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/tg"

	"github.com/danhigham/tgupload/internal/domain"
)

// Dialogs iterates the dialog list and caches every input peer it sees so
// later sends can address those conversations.
func (c *gotdConn) Dialogs(ctx context.Context, limit int, fn func(domain.RawDialog) error) error {
	batch := 100
	if limit > 0 && limit < batch {
		batch = limit
	}
	iter := dialogs.NewQueryBuilder(c.api).GetDialogs().BatchSize(batch).Iter()

	seen := 0
	for iter.Next(ctx) {
		elem := iter.Value()
		raw, ok := rawFromElem(elem)
		if !ok {
			continue
		}
		c.cachePeer(raw.ID, elem.Peer)

		if err := fn(raw); err != nil {
			if errors.Is(err, ErrStopDialogs) {
				return nil
			}
			return err
		}
		seen++
		if limit > 0 && seen >= limit {
			return nil
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("iterate dialogs: %w", classifyError(err))
	}
	return nil
}

// rawFromElem resolves the dialog's peer against the batch entities.
func rawFromElem(elem dialogs.Elem) (domain.RawDialog, bool) {
	if elem.Peer == nil || elem.Dialog == nil {
		return domain.RawDialog{}, false
	}

	entities := elem.Entities
	switch p := elem.Dialog.GetPeer().(type) {
	case *tg.PeerUser:
		if u, ok := entities.User(p.UserID); ok {
			return rawFromUser(u), true
		}
	case *tg.PeerChat:
		if ch, ok := entities.Chat(p.ChatID); ok {
			return rawFromChat(ch), true
		}
	case *tg.PeerChannel:
		if ch, ok := entities.Channel(p.ChannelID); ok {
			return rawFromChannel(ch), true
		}
	}
	return domain.RawDialog{}, false
}

func rawFromUser(u *tg.User) domain.RawDialog {
	kind := domain.PeerUser
	if u.Bot {
		kind = domain.PeerBot
	}
	return domain.RawDialog{
		ID:         userID(u.ID),
		Kind:       kind,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Username:   u.Username,
		Self:       u.Self,
		Support:    u.Support,
		Verified:   u.Verified,
		Deleted:    u.Deleted,
		Restricted: u.Restricted,
		CanSend:    !u.Deleted,
	}
}

func rawFromChat(ch *tg.Chat) domain.RawDialog {
	canSend := !ch.Deactivated && !ch.Left
	if rights, ok := ch.GetDefaultBannedRights(); ok && rights.SendMedia && !ch.Creator {
		if _, admin := ch.GetAdminRights(); !admin {
			canSend = false
		}
	}
	return domain.RawDialog{
		ID:      chatID(ch.ID),
		Kind:    domain.PeerChat,
		Title:   ch.Title,
		CanSend: canSend,
	}
}

func rawFromChannel(ch *tg.Channel) domain.RawDialog {
	kind := domain.PeerMegagroup
	if ch.Broadcast {
		kind = domain.PeerBroadcast
	}

	canSend := !ch.Left
	if rights, ok := ch.GetDefaultBannedRights(); ok && rights.SendMedia && !ch.Creator {
		if _, admin := ch.GetAdminRights(); !admin {
			canSend = false
		}
	}
	if rights, ok := ch.GetBannedRights(); ok && rights.SendMedia {
		canSend = false
	}

	return domain.RawDialog{
		ID:         channelID(ch.ID),
		Kind:       kind,
		Title:      ch.Title,
		Username:   ch.Username,
		Verified:   ch.Verified,
		Restricted: ch.Restricted,
		CanSend:    canSend,
	}
}

// Conversation ids are TDLib-style marked ids, so users, basic groups and
// channels never share a number.

func userID(id int64) int64 {
	var p constant.TDLibPeerID
	p.User(id)
	return int64(p)
}

func chatID(id int64) int64 {
	var p constant.TDLibPeerID
	p.Chat(id)
	return int64(p)
}

func channelID(id int64) int64 {
	var p constant.TDLibPeerID
	p.Channel(id)
	return int64(p)
}
