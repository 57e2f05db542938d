package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/touka-aoi/snakey/game"
	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/lang"
	"github.com/touka-aoi/snakey/server"
	"github.com/touka-aoi/snakey/server/application"
	"github.com/touka-aoi/snakey/server/domain"
)

type options struct {
	addr         string
	logLevel     string
	coord        string
	width        int
	height       int
	lang         string
	exaggeration float64
	bots         int
	botEvery     int
	tick         time.Duration
	targets      int
	rooms        int
}

func main() {
	var o options
	flag.StringVar(&o.addr, "addr", ":8080", "listen address")
	flag.StringVar(&o.logLevel, "log-level", "info", "debug|info|warn|error")
	flag.StringVar(&o.coord, "coord", string(floor.SystemEuclid2), "coordinate system: EUCLID2|BEEHIVE")
	flag.IntVar(&o.width, "width", 16, "floor width")
	flag.IntVar(&o.height, "height", 12, "floor height")
	flag.StringVar(&o.lang, "lang", "engl-low", "language id")
	flag.Float64Var(&o.exaggeration, "weight-exaggeration", 1, "exponent applied to character frequencies")
	flag.IntVar(&o.bots, "bots", 0, "bots per room")
	flag.IntVar(&o.botEvery, "bot-every", 30, "ticks between bot actions")
	flag.DurationVar(&o.tick, "tick", domain.DefaultTickInterval, "room tick interval")
	flag.IntVar(&o.targets, "targets", game.DefaultConfig().Targets, "score tiles on the floor")
	flag.IntVar(&o.rooms, "rooms", 1, "number of rooms")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(o.logLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, o); err != nil {
		logger.Error("server: exited", "err", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, o options) error {
	if o.rooms < 1 {
		return fmt.Errorf("rooms must be positive, got %d", o.rooms)
	}
	desc, err := lang.DefaultCatalog().Lookup(o.lang)
	if err != nil {
		return err
	}
	cfg := game.DefaultConfig()
	cfg.Targets = o.targets

	pubsub := domain.NewSimplePubSub()
	store := application.NewStore()
	metrics := application.NewMemoryMetrics()
	roomManager := domain.NewSimpleRoomManager()
	resetters := make(map[domain.RoomID]server.Resetter, o.rooms)
	var rooms []*domain.Room

	for i := 0; i < o.rooms; i++ {
		grid, err := floor.DefaultRegistry().NewGrid(floor.System(strings.ToUpper(o.coord)),
			floor.Dimensions{Width: o.width, Height: o.height})
		if err != nil {
			return err
		}
		tree, err := lang.NewTree(desc.Build(), o.exaggeration)
		if err != nil {
			return err
		}
		id := domain.NewRoomID()
		app, err := application.NewGameApplication(id, grid, tree, cfg,
			application.WithStore(store),
			application.WithMetrics(metrics),
			application.WithBots(o.bots, o.botEvery),
			application.WithLang(desc.ID),
		)
		if err != nil {
			return fmt.Errorf("room %d: %w", i, err)
		}
		rooms = append(rooms, domain.NewRoom(id, pubsub, app, domain.WithTickInterval(o.tick)))
		roomManager.Add(id)
		resetters[id] = app
		slog.InfoContext(ctx, "server: room created", "roomID", id, "coord", grid.System(),
			"width", o.width, "height", o.height, "lang", desc.ID, "bots", o.bots)
	}

	mux := server.Route(server.Deps{
		PubSub:      pubsub,
		RoomManager: roomManager,
		Store:       store,
		Metrics:     metrics,
		Rooms:       resetters,
		PubSubStats: pubsub,
	})
	srv := server.NewServer(o.addr, mux)

	eg, egCtx := errgroup.WithContext(ctx)
	for _, room := range rooms {
		eg.Go(func() error {
			return room.Run(egCtx)
		})
	}
	eg.Go(func() error {
		slog.InfoContext(egCtx, "server: listening", "addr", srv.Addr())
		if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(egCtx), 5*time.Second)
		defer cancel()
		slog.InfoContext(shutdownCtx, "server: shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
