// Package telegram adapts telebot updates and the bot API to the chat
// package's event union and Channel.
package telegram

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/datingbot/core/telegram/callbacks"
	"github.com/m3rciful/datingbot/internal/chat"
)

// FromUpdate converts a raw update into a chat event. Updates the engine does
// not handle become chat.Other.
func FromUpdate(u tele.Update) chat.Event {
	switch {
	case u.Callback != nil:
		cb := u.Callback
		unique, payload := callbacks.ParseCallbackData(cb)
		ev := chat.Callback{UpdateID: u.ID, ID: cb.ID, Data: unique, Payload: payload}
		if cb.Sender != nil {
			ev.FromID = cb.Sender.ID
		}
		return ev
	case u.Message != nil:
		return fromMessage(u.ID, u.Message)
	}
	return chat.Other{UpdateID: u.ID, Kind: updateKind(u)}
}

func fromMessage(updateID int, m *tele.Message) chat.Event {
	var chatID, senderID int64
	if m.Chat != nil {
		chatID = m.Chat.ID
	}
	if m.Sender != nil {
		senderID = m.Sender.ID
	}
	switch {
	case m.Photo != nil && m.Photo.FileID != "":
		return chat.Photo{UpdateID: updateID, ChatID: chatID, SenderID: senderID, FileID: m.Photo.FileID, Caption: m.Caption}
	case m.Text != "":
		return chat.TextMessage{UpdateID: updateID, ChatID: chatID, SenderID: senderID, Text: m.Text}
	}
	return chat.Other{UpdateID: updateID, ChatID: chatID, Kind: "unsupported_message"}
}

func updateKind(u tele.Update) string {
	switch {
	case u.EditedMessage != nil:
		return "edited_message"
	case u.ChannelPost != nil:
		return "channel_post"
	case u.Query != nil:
		return "inline_query"
	case u.MyChatMember != nil:
		return "my_chat_member"
	}
	return "other"
}

// Pipe converts updates into events until updates is closed or ctx is done.
// The returned channel is closed when Pipe stops.
func Pipe(ctx context.Context, updates <-chan tele.Update) <-chan chat.Event {
	out := make(chan chat.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				select {
				case out <- FromUpdate(u):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
