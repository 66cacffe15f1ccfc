package dialog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/datingbot/internal/chat"
	"github.com/m3rciful/datingbot/internal/session"
)

const maxAge = 150

// Geocoder resolves a free-form place name. It reports false without an
// error when nothing matches.
type Geocoder interface {
	Lookup(ctx context.Context, query string) (session.Location, bool, error)
}

// textOf returns the trimmed text of a text message event.
func textOf(ev chat.Event) (string, bool) {
	msg, ok := ev.(chat.TextMessage)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(msg.Text), true
}

// reprompt answers a stray callback before re-asking, so the client spinner stops.
func reprompt(ctx context.Context, ch chat.Channel, s *session.Session, ev chat.Event, text string) error {
	if cb, ok := ev.(chat.Callback); ok {
		if err := ch.AnswerCallback(ctx, cb.ID); err != nil {
			return err
		}
	}
	return ch.SendText(ctx, s.ID, text)
}

func askName(ctx context.Context, ch chat.Channel, s *session.Session, ev chat.Event) error {
	name, ok := textOf(ev)
	if !ok || name == "" {
		return reprompt(ctx, ch, s, ev, PromptNameAgain)
	}
	s.Name = &name
	s.State = session.WaitingForAge
	return ch.SendText(ctx, s.ID, ackNameAskAge(name))
}

func askAge(ctx context.Context, ch chat.Channel, s *session.Session, ev chat.Event) error {
	text, ok := textOf(ev)
	if !ok {
		return reprompt(ctx, ch, s, ev, PromptAgeAgain)
	}
	age, err := strconv.Atoi(text)
	if err != nil || age <= 0 || age > maxAge {
		return ch.SendText(ctx, s.ID, PromptAgeAgain)
	}
	s.Age = &age
	s.State = session.WaitingForPlace
	return ch.SendText(ctx, s.ID, ackAgeAskPlace(s))
}

// PlaceStep geocodes the user's town.
type PlaceStep struct {
	geo Geocoder
}

// NewPlaceStep returns the WaitingForPlace step.
func NewPlaceStep(geo Geocoder) *PlaceStep {
	return &PlaceStep{geo: geo}
}

// Handle looks the text up and offers the description choice on a match.
func (p *PlaceStep) Handle(ctx context.Context, ch chat.Channel, s *session.Session, ev chat.Event) error {
	text, ok := textOf(ev)
	if !ok || text == "" {
		return reprompt(ctx, ch, s, ev, PromptPlaceAgain)
	}
	if p.geo == nil {
		return fmt.Errorf("dialog: no geocoder configured")
	}
	loc, found, err := p.geo.Lookup(ctx, text)
	if err != nil {
		return fmt.Errorf("dialog: geocode: %w", err)
	}
	if !found {
		return ch.SendText(ctx, s.ID, placeNotFound(s))
	}
	s.Location = &loc
	s.State = session.WaitingForAddDescription
	return ch.SendChoice(ctx, s.ID, ackPlaceAskDescription(loc), DescriptionChoices)
}

func askAddDescription(ctx context.Context, ch chat.Channel, s *session.Session, ev chat.Event) error {
	cb, ok := ev.(chat.Callback)
	if !ok {
		return ch.SendChoice(ctx, s.ID, PromptAddDescr, DescriptionChoices)
	}
	if err := ch.AnswerCallback(ctx, cb.ID); err != nil {
		return err
	}
	switch cb.Data {
	case ChoiceAgree:
		s.State = session.WaitingForDescription
		return ch.SendText(ctx, s.ID, PromptDescription)
	case ChoiceDisagree:
		s.State = session.Done
		return ch.SendText(ctx, s.ID, SetupComplete)
	default:
		return ch.SendChoice(ctx, s.ID, PromptAddDescr, DescriptionChoices)
	}
}

func askDescription(ctx context.Context, ch chat.Channel, s *session.Session, ev chat.Event) error {
	text, ok := textOf(ev)
	if !ok || text == "" {
		return reprompt(ctx, ch, s, ev, PromptDescrAgain)
	}
	s.Description = &text
	s.State = session.Done
	return ch.SendText(ctx, s.ID, SetupComplete)
}
