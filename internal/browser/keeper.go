package browser

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Opener creates a fresh session.
type Opener func(ctx context.Context) (Session, error)

// Keeper hands out a live session, recreating it once when the current one
// stops answering.
type Keeper struct {
	open    Opener
	current Session
	log     *zap.Logger
}

// NewKeeper returns a Keeper that uses open to create sessions.
func NewKeeper(open Opener, log *zap.Logger) *Keeper {
	return &Keeper{open: open, log: log.Named("keeper")}
}

// Live returns the current session if it still responds, otherwise it opens
// a replacement. Failure to obtain a responsive session wraps ErrSessionDead.
func (k *Keeper) Live(ctx context.Context) (Session, error) {
	if k.current != nil {
		if k.current.Alive(ctx) {
			return k.current, nil
		}
		k.log.Warn("session stopped responding, recreating")
		if err := k.current.Close(); err != nil {
			k.log.Debug("closing dead session", zap.Error(err))
		}
		k.current = nil
	}

	s, err := k.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionDead, err)
	}
	if !s.Alive(ctx) {
		_ = s.Close()
		return nil, fmt.Errorf("%w: new session does not respond", ErrSessionDead)
	}
	k.current = s
	return s, nil
}

// Close closes the current session, if any.
func (k *Keeper) Close() error {
	if k.current == nil {
		return nil
	}
	err := k.current.Close()
	k.current = nil
	return err
}

// EnsureAt navigates p to url unless it is already there or below it.
// An empty url leaves the page alone.
func EnsureAt(ctx context.Context, p Page, url string) error {
	if url == "" {
		return nil
	}
	info, err := p.Info(ctx)
	if err == nil && strings.HasPrefix(info.URL, strings.TrimSuffix(url, "/")) {
		return nil
	}
	if err := p.Navigate(ctx, url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}
