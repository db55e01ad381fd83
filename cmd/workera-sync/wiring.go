package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/nhle/workera/internal/credential"
	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/localstate"
	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
	"github.com/nhle/workera/internal/store"
	wsync "github.com/nhle/workera/internal/sync"
)

// tokenEnv overrides the keyring token.
const tokenEnv = "WORKERA_TOKEN"

// session is an open engine plus the resources it was built on.
type session struct {
	engine  *wsync.Engine
	closers []io.Closer
}

func (s *session) Close() error {
	errs := []error{s.engine.Close()}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// apiToken returns the bearer token for the configured user.
func apiToken(userID string) (string, error) {
	if t := os.Getenv(tokenEnv); t != "" {
		return t, nil
	}
	vault, err := credential.Open()
	if err != nil {
		return "", err
	}
	token, err := vault.Token(userID)
	if errors.Is(err, credential.ErrNoToken) {
		return "", fmt.Errorf("no API token for user %s: run `workera-sync token set` or export %s", userID, tokenEnv)
	}
	return token, err
}

// openRemote builds the configured backend and anything to close with it.
func openRemote(c *model.AppConfig, token string) (remote.Remote, io.Closer, error) {
	switch c.Remote.Driver {
	case "http":
		client := remote.NewHTTPClient(c.Remote.BaseURL, token, &http.Client{Timeout: c.Remote.Timeout()})
		return client, nopCloser{}, nil
	case "sqlite", "postgres":
		s, err := store.Open(c.Remote.Driver, c.Remote.DSN, store.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unknown remote driver %q", c.Remote.Driver)
}

// openFeed builds the configured change feed. A nil source runs the engine
// on reloads only.
func openFeed(c *model.AppConfig, token string) (feed.Source, io.Closer, error) {
	switch c.Feed.Kind {
	case "", "none":
		return nil, nopCloser{}, nil
	case "websocket":
		return feed.NewWebsocketSource(c.Feed.URL, token, logger), nopCloser{}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: c.Feed.RedisAddr})
		return feed.NewRedisSource(client, c.Feed.Channel, logger), client, nil
	case "postgres":
		return feed.NewPostgresSource(c.Remote.DSN, c.Feed.Channel, logger), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown feed kind %q", c.Feed.Kind)
}

// openSession wires an engine from the config and starts it.
func openSession(ctx context.Context, c *model.AppConfig) (*session, error) {
	if c.UserID == "" {
		return nil, errors.New("user_id is not configured")
	}
	token := ""
	if c.Remote.Driver == "http" || c.Feed.Kind == "websocket" {
		t, err := apiToken(c.UserID)
		if err != nil {
			return nil, err
		}
		token = t
	}

	r, remoteCloser, err := openRemote(c, token)
	if err != nil {
		return nil, err
	}
	source, feedCloser, err := openFeed(c, token)
	if err != nil {
		_ = remoteCloser.Close()
		return nil, err
	}

	e := wsync.New(r, wsync.Config{
		UserID:         c.UserID,
		GraceWindow:    c.Sync.GraceWindow(),
		ReloadInterval: c.Sync.ReloadInterval(),
		QueueSize:      c.Sync.WriteQueueSize,
		WriteTimeout:   c.Remote.Timeout(),
		Feed:           source,
		State:          localstate.Open(c.StatePath),
		Logger:         logger,
	})
	s := &session{engine: e, closers: []io.Closer{remoteCloser, feedCloser}}
	if err := e.Start(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("starting session: %w", err)
	}
	return s, nil
}
