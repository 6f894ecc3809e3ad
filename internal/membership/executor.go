package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"membership-bridge/internal/config"
	"membership-bridge/internal/identity"
	"membership-bridge/internal/telegram"
)

const (
	defaultInviteTTL = 30 * time.Minute

	inviteTemplate = "Your <b>%s</b> is now active! Tap to join the group: %s"
)

// Platform is the slice of the messaging API the executor drives.
type Platform interface {
	CreateInviteLink(ctx context.Context, chatID int64, memberLimit int, expiresAt time.Time) (*telegram.InviteLink, error)
	SendMessage(ctx context.Context, chatID int64, text, parseMode string) error
	BanChatMember(ctx context.Context, chatID, userID int64) error
	UnbanChatMember(ctx context.Context, chatID, userID int64) error
}

// Executor turns classified membership actions into platform calls. All
// failures are returned as explicit errors for the caller to absorb; no
// retries happen here.
type Executor struct {
	platform  Platform
	groupID   int64
	inviteTTL time.Duration
	logger    *slog.Logger
}

func NewExecutor(platform Platform, cfg config.Telegram, logger *slog.Logger) *Executor {
	inviteTTL := defaultInviteTTL
	if cfg.InviteTTLSec > 0 {
		inviteTTL = time.Duration(cfg.InviteTTLSec) * time.Second
	}

	return &Executor{
		platform:  platform,
		groupID:   cfg.GroupID,
		inviteTTL: inviteTTL,
		logger:    logger,
	}
}

// IssueInvite creates a single-use invite link for the group and delivers
// it to the subscriber by direct message. On creation failure nothing is
// delivered; on delivery failure the link is left valid (single-use and
// short-lived, so a dangling link is an acceptable leak).
func (e *Executor) IssueInvite(ctx context.Context, id identity.Identity, tier string) error {
	link, err := e.platform.CreateInviteLink(ctx, e.groupID, 1, time.Now().Add(e.inviteTTL))
	if err != nil {
		e.logger.ErrorContext(ctx, "Error creating invite link", "chatId", id.ChatID, "error", err)
		return err
	}

	e.logger.InfoContext(ctx, "Created invite link", "chatId", id.ChatID, "tier", tier)

	text := fmt.Sprintf(inviteTemplate, tier, link.URL)
	if err := e.platform.SendMessage(ctx, id.ChatID, text, "HTML"); err != nil {
		e.logger.ErrorContext(ctx, "Error delivering invite", "chatId", id.ChatID, "error", err)
		return err
	}

	e.logger.InfoContext(ctx, "Delivered invite", "chatId", id.ChatID, "tier", tier)
	return nil
}

// RevokeMembership evicts the subscriber from the group with a ban
// immediately followed by an unban, leaving them able to rejoin later via
// a fresh invite. The unban is attempted even when the ban fails, since a
// failed ban call may still have taken effect platform-side.
func (e *Executor) RevokeMembership(ctx context.Context, id identity.Identity) error {
	banErr := e.platform.BanChatMember(ctx, e.groupID, id.ChatID)
	if banErr != nil {
		e.logger.ErrorContext(ctx, "Error banning member", "chatId", id.ChatID, "error", banErr)
	}

	unbanErr := e.platform.UnbanChatMember(ctx, e.groupID, id.ChatID)
	if unbanErr != nil {
		e.logger.ErrorContext(ctx, "Error unbanning member", "chatId", id.ChatID, "error", unbanErr)
	}

	if banErr == nil && unbanErr == nil {
		e.logger.InfoContext(ctx, "Revoked membership", "chatId", id.ChatID)
	}

	return errors.Join(banErr, unbanErr)
}
