package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/touka-aoi/snakey/client"
	"github.com/touka-aoi/snakey/client/termview"
	"github.com/touka-aoi/snakey/game"
	"github.com/touka-aoi/snakey/game/statechange"
)

type options struct {
	url      string
	name     string
	team     int
	headless bool
	logLevel string
	logFile  string
}

func main() {
	var o options
	flag.StringVar(&o.url, "url", "ws://localhost:8080/ws", "server websocket url")
	flag.StringVar(&o.name, "name", "", "player name")
	flag.IntVar(&o.team, "team", 0, "team number")
	flag.BoolVar(&o.headless, "headless", false, "read commands from stdin instead of drawing the floor")
	flag.StringVar(&o.logLevel, "log-level", "info", "debug|info|warn|error")
	flag.StringVar(&o.logFile, "log-file", "", "write logs to this file (the terminal view discards logs otherwise)")
	flag.Parse()

	logger, closeLog, err := newLogger(o)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, o); err != nil {
		logger.Error("client: exited", "err", err)
		closeLog()
		os.Exit(1)
	}
}

func newLogger(o options) (*slog.Logger, func(), error) {
	lvl := slog.LevelInfo
	switch strings.ToLower(o.logLevel) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var w io.Writer = os.Stdout
	closeFn := func() {}
	switch {
	case o.logFile != "":
		f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	case !o.headless:
		// 端末を描画中は標準出力に書けない
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), closeFn, nil
}

func run(ctx context.Context, o options) error {
	if o.name == "" {
		o.name, _ = os.Hostname()
	}
	hello := statechange.Hello{Name: o.name, Team: o.team}

	var view *termview.View
	var sink game.Sink = client.LogSink{}
	if !o.headless {
		view = termview.New()
		sink = view
	}
	conn, err := client.Dial(ctx, o.url, hello, client.WithSink(sink))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return conn.Run(egCtx)
	})
	eg.Go(func() error {
		defer cancel()
		if view != nil {
			return view.Run(egCtx, conn)
		}
		return readCommands(egCtx, conn, os.Stdin)
	})
	return eg.Wait()
}

// readCommands は 1 行ずつコマンドを読みます。":" で始まらない行は 1 文字ずつ入力として扱います。
func readCommands(ctx context.Context, conn *client.Conn, r io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := command(conn, strings.TrimSpace(line)); err != nil {
				slog.WarnContext(ctx, "client: command failed", "line", line, "err", err)
			}
		}
	}
}

func command(conn *client.Conn, line string) error {
	switch line {
	case "":
		return nil
	case ":bubble":
		return conn.Bubble()
	case ":bench":
		return conn.Bench()
	case ":boost":
		slog.Info("client: boost", "armed", conn.ToggleBoost())
		return nil
	case ":clear":
		conn.Backspace()
		return nil
	}
	for _, r := range line {
		if err := conn.Type(string(r)); err != nil {
			return err
		}
	}
	buffer, _, _ := conn.Status()
	slog.Debug("client: typed", "buffer", buffer)
	return nil
}
