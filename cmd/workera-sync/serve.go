package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nhle/workera/internal/devserver"
	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/store"
)

var (
	serveDriver  string
	serveDSN     string
	serveFeed    string
	serveAddr    string
	serveOrigins string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local development backend",
	Long: `Serve a SQL store over the REST and realtime endpoints the http remote
and websocket feed speak. Committed rows fan out through the chosen feed:
an in-process hub, a redis channel or postgres LISTEN/NOTIFY.

Examples:
  workera-sync serve --db dev.db
  workera-sync serve --driver postgres --db postgres://localhost/workera --feed postgres`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveDriver, "driver", "sqlite", "sql driver (sqlite or postgres)")
	serveCmd.Flags().StringVar(&serveDSN, "db", "workera.db", "database path or DSN")
	serveCmd.Flags().StringVar(&serveFeed, "feed", "hub", "change fan-out (hub, redis or postgres)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to server.addr)")
	serveCmd.Flags().StringVar(&serveOrigins, "origins", "*", "comma-separated allowed CORS origins")
	rootCmd.AddCommand(serveCmd)
}

// fanout returns the publisher the store writes to and the source the
// realtime endpoint reads from.
func fanout() (feed.Publisher, feed.Source, io.Closer, error) {
	channel := cfg.Feed.Channel
	switch serveFeed {
	case "hub":
		hub := feed.NewHub(logger)
		return hub, hub, nopCloser{}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Feed.RedisAddr})
		return feed.NewRedisPublisher(client, channel), feed.NewRedisSource(client, channel, logger), client, nil
	case "postgres":
		if serveDriver != "postgres" {
			return nil, nil, nil, fmt.Errorf("the postgres feed needs the postgres driver")
		}
		db, err := sqlx.Connect("postgres", serveDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting notify publisher: %w", err)
		}
		return feed.NewPostgresPublisher(db, channel), feed.NewPostgresSource(serveDSN, channel, logger), db, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown feed %q", serveFeed)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth, err := devserver.NewAuth(cfg.Server.JWTSecret)
	if err != nil {
		return fmt.Errorf("%w (set server.jwt_secret or WORKERA_SERVER_JWT_SECRET)", err)
	}

	pub, source, closer, err := fanout()
	if err != nil {
		return err
	}
	defer closer.Close()

	s, err := store.Open(serveDriver, serveDSN, store.WithPublisher(pub), store.WithLogger(logger))
	if err != nil {
		return err
	}
	defer s.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	srv := devserver.New(s, source, auth, devserver.Config{
		Addr:           addr,
		AllowedOrigins: strings.Split(serveOrigins, ","),
		Logger:         logger,
	})
	return srv.ListenAndServe(ctx)
}
