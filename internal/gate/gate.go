// Package gate decides whether a user may talk to the bot. Access requires
// membership in the configured channel; owners always pass. When no channel
// is configured the bot is open to everyone.
package gate

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

// MemberChecker answers channel membership questions.
type MemberChecker interface {
	IsChannelMember(ctx context.Context, channel string, userID int64) (bool, error)
}

// Gate checks users against the channel and the owner allowlist.
type Gate struct {
	logger  *slog.Logger
	checker MemberChecker
	channel string
	owners  map[int64]struct{}
}

func New(log *slog.Logger, checker MemberChecker, channel string, ownerIDs string) *Gate {
	return &Gate{
		logger:  log.With(slog.String("service", "gate")),
		checker: checker,
		channel: channel,
		owners:  ParseOwnerIDs(ownerIDs),
	}
}

// ParseOwnerIDs splits a comma-separated id list, skipping blanks and junk.
func ParseOwnerIDs(raw string) map[int64]struct{} {
	owners := make(map[int64]struct{})
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		owners[id] = struct{}{}
	}
	return owners
}

// Allow reports whether userID may use the bot. A membership lookup failure
// falls back to owners-only rather than letting everyone through.
func (g *Gate) Allow(ctx context.Context, userID int64) bool {
	if g.channel == "" {
		return true
	}
	if _, ok := g.owners[userID]; ok {
		return true
	}
	member, err := g.checker.IsChannelMember(ctx, g.channel, userID)
	if err != nil {
		g.logger.Warn("membership check failed",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return member
}

// Channel returns the gating channel username without the @ prefix.
func (g *Gate) Channel() string {
	return g.channel
}
