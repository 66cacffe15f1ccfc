package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/datingbot/core/telegram/keyboard"
	tgsender "github.com/m3rciful/datingbot/core/telegram/sender"
	"github.com/m3rciful/datingbot/internal/chat"
)

// API is the subset of *tele.Bot the channel needs.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
	File(file *tele.File) (io.ReadCloser, error)
}

// Channel sends replies through the bot API. Sends go through the sender's
// retry policy synchronously; callback answers are queued.
type Channel struct {
	api    API
	sender *tgsender.Dispatcher
}

var (
	_ chat.Channel    = (*Channel)(nil)
	_ chat.FileSource = (*Channel)(nil)
)

// NewChannel creates a Channel.
func NewChannel(api API, sender *tgsender.Dispatcher) (*Channel, error) {
	if api == nil || sender == nil {
		return nil, errors.New("telegram: api and sender are required")
	}
	return &Channel{api: api, sender: sender}, nil
}

// SendText sends a plain message.
func (c *Channel) SendText(ctx context.Context, target int64, text string) error {
	return c.sender.Do(ctx, "send_text", "sendMessage", func() error {
		_, err := c.api.Send(tele.ChatID(target), text)
		return err
	})
}

// choicesPerRow caps the inline buttons placed side by side.
const choicesPerRow = 3

// SendChoice sends text with the choices as inline buttons.
func (c *Channel) SendChoice(ctx context.Context, target int64, text string, choices []chat.Choice) error {
	buttons := make([]keyboard.InlineBtn, 0, len(choices))
	for _, ch := range choices {
		buttons = append(buttons, keyboard.InlineBtn{Text: ch.Label, Unique: ch.Data})
	}
	markup := keyboard.InlineButtonsNPerRow(buttons, choicesPerRow)
	return c.sender.Do(ctx, "send_choice", "sendMessage", func() error {
		_, err := c.api.Send(tele.ChatID(target), text, markup)
		return err
	})
}

// AnswerCallback queues the acknowledgement. It outlives the handler's context.
func (c *Channel) AnswerCallback(ctx context.Context, callbackID string) error {
	return c.sender.Enqueue(context.WithoutCancel(ctx), "answer_callback", "answerCallbackQuery", func() error {
		return c.api.Respond(&tele.Callback{ID: callbackID})
	})
}

// SendPhoto uploads the photo. The stream is buffered so retries can resend it.
func (c *Channel) SendPhoto(ctx context.Context, target int64, photo io.Reader) error {
	data, err := io.ReadAll(photo)
	if err != nil {
		return fmt.Errorf("telegram: read photo: %w", err)
	}
	return c.sender.Do(ctx, "send_photo", "sendPhoto", func() error {
		_, err := c.api.Send(tele.ChatID(target), &tele.Photo{File: tele.FromReader(bytes.NewReader(data))})
		return err
	})
}

// Download opens the file referenced by fileID.
func (c *Channel) Download(_ context.Context, fileID string) (io.ReadCloser, error) {
	rc, err := c.api.File(&tele.File{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("telegram: download %s: %w", fileID, err)
	}
	return rc, nil
}
