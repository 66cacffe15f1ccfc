package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/datingbot/core/buildinfo"
	"github.com/m3rciful/datingbot/internal/chat"
	"github.com/m3rciful/datingbot/internal/dialog"
	"github.com/m3rciful/datingbot/internal/photos"
	"github.com/m3rciful/datingbot/internal/session"
)

const (
	noPhotos  = "You have no photos yet. Send one once your profile is set up."
	photoGone = "Photo %d is no longer available."
)

// Builtins registers the bot's standard commands. photoStore may be nil, in
// which case the photo commands report that no photos exist.
func Builtins(reg *Registry, photoStore photos.Store) error {
	b := &builtins{reg: reg, photos: photoStore}
	for _, cmd := range []Command{
		{Name: "start", Description: "Start or resume profile setup", Handler: HandlerFunc(b.start)},
		{Name: "reset", Description: "Fill in the profile from scratch", Aliases: []string{"restart"}, Handler: HandlerFunc(b.reset)},
		{Name: "profile", Description: "Show your profile", Aliases: []string{"me"}, Handler: HandlerFunc(b.profile)},
		{Name: "photos", Description: "Show all your photos", Handler: HandlerFunc(b.allPhotos)},
		{Name: "photo", Description: "Show one photo: /photo <n>", Handler: HandlerFunc(b.onePhoto)},
		{Name: "help", Description: "List commands", Handler: HandlerFunc(b.help)},
		{Name: "version", Hidden: true, Handler: HandlerFunc(b.version)},
	} {
		if err := reg.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

type builtins struct {
	reg    *Registry
	photos photos.Store
}

// start resumes nothing for onboarded users; it shows their profile instead.
func (b *builtins) start(ctx context.Context, ch chat.Channel, s *session.Session, _ Invocation) error {
	if s.Onboarded() {
		return ch.SendText(ctx, s.ID, ProfileSummary(s))
	}
	s.Restart()
	return ch.SendText(ctx, s.ID, dialog.GreetAndAskName())
}

func (b *builtins) reset(ctx context.Context, ch chat.Channel, s *session.Session, _ Invocation) error {
	s.Restart()
	return ch.SendText(ctx, s.ID, dialog.GreetAndAskName())
}

func (b *builtins) profile(ctx context.Context, ch chat.Channel, s *session.Session, _ Invocation) error {
	return ch.SendText(ctx, s.ID, ProfileSummary(s))
}

func (b *builtins) allPhotos(ctx context.Context, ch chat.Channel, s *session.Session, _ Invocation) error {
	if b.photos == nil || len(s.PictureRefs) == 0 {
		return ch.SendText(ctx, s.ID, noPhotos)
	}
	streams, err := b.photos.GetAll(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("load photos: %w", err)
	}
	defer func() {
		for _, rc := range streams {
			_ = rc.Close()
		}
	}()
	if len(streams) == 0 {
		return ch.SendText(ctx, s.ID, noPhotos)
	}
	for _, rc := range streams {
		if err := ch.SendPhoto(ctx, s.ID, rc); err != nil {
			return err
		}
	}
	return nil
}

func (b *builtins) onePhoto(ctx context.Context, ch chat.Channel, s *session.Session, inv Invocation) error {
	if b.photos == nil || len(s.PictureRefs) == 0 {
		return ch.SendText(ctx, s.ID, noPhotos)
	}
	n := 0
	if len(inv.Args) == 1 {
		n, _ = strconv.Atoi(inv.Args[0])
	}
	if n < 1 || n > len(s.PictureRefs) {
		return ch.SendText(ctx, s.ID, fmt.Sprintf("Usage: /photo <n>, where n is from 1 to %d.", len(s.PictureRefs)))
	}
	rc, err := b.photos.Get(ctx, s.PictureRefs[n-1])
	if errors.Is(err, photos.ErrNotFound) {
		return ch.SendText(ctx, s.ID, fmt.Sprintf(photoGone, n))
	}
	if err != nil {
		return fmt.Errorf("load photo %d: %w", n, err)
	}
	defer rc.Close()
	return ch.SendPhoto(ctx, s.ID, rc)
}

func (b *builtins) help(ctx context.Context, ch chat.Channel, s *session.Session, _ Invocation) error {
	var sb strings.Builder
	sb.WriteString("Commands:")
	for _, cmd := range b.reg.List(true) {
		fmt.Fprintf(&sb, "\n/%s - %s", cmd.Name, cmd.Description)
	}
	return ch.SendText(ctx, s.ID, sb.String())
}

func (b *builtins) version(ctx context.Context, ch chat.Channel, s *session.Session, _ Invocation) error {
	text := fmt.Sprintf("datingbot %s (%s)", buildinfo.Version, buildinfo.Commit)
	if buildinfo.Date != "" {
		text += ", built " + buildinfo.Date
	}
	return ch.SendText(ctx, s.ID, text)
}

// ProfileSummary renders the profile fields of s.
func ProfileSummary(s *session.Session) string {
	const unset = "not set"
	name, age, place, descr := unset, unset, unset, unset
	if s.Name != nil {
		name = *s.Name
	}
	if s.Age != nil {
		age = strconv.Itoa(*s.Age)
	}
	if s.Location != nil {
		place = dialog.FormatLocation(*s.Location)
	}
	if s.Description != nil {
		descr = *s.Description
	}
	return fmt.Sprintf("Your profile:\nName: %s\nAge: %s\nLocation: %s\nDescription: %s\nPhotos: %d",
		name, age, place, descr, len(s.PictureRefs))
}
