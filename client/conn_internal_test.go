package client

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/touka-aoi/snakey/game"
	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/lang"
	"github.com/touka-aoi/snakey/game/statechange"
)

// newOfflineConn は接続を持たない Conn を作ります。送信はバッファ付きの writeCh に溜まります。
func newOfflineConn() *Conn {
	return &Conn{
		cfg:            game.DefaultConfig(),
		sink:           game.NopSink{},
		catalog:        lang.DefaultCatalog(),
		requestTimeout: DefaultRequestTimeout,
		writeCh:        make(chan []byte, 8),
		done:           make(chan struct{}),
		welcomed:       make(chan struct{}),
	}
}

func newWelcome(t *testing.T, id game.PlayerID) *statechange.Welcome {
	t.Helper()
	grid, err := floor.NewEuclid2Grid(floor.Dimensions{Width: 5, Height: 5})
	if err != nil {
		t.Fatal(err)
	}
	tree, err := lang.NewTree(lang.EnglishLowercase(), 1, lang.WithRand(rand.New(rand.NewPCG(1, 2))))
	if err != nil {
		t.Fatal(err)
	}
	m, err := game.NewManager(grid, tree, game.DefaultConfig(), game.WithRand(rand.New(rand.NewPCG(3, 4))))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddPlayer(id, "alice", 0); err != nil {
		t.Fatal(err)
	}
	return &statechange.Welcome{PlayerID: id, Lang: "engl-low", Snapshot: *m.Snapshot()}
}

func welcomed(t *testing.T, c *Conn) {
	t.Helper()
	if err := c.welcome(context.Background(), newWelcome(t, 1)); err != nil {
		t.Fatalf("welcome: %v", err)
	}
}

func TestConn_WelcomeBuildsViewer(t *testing.T) {
	c := newOfflineConn()
	welcomed(t, c)

	select {
	case <-c.Welcomed():
	default:
		t.Fatal("Welcomed() not closed")
	}
	if c.game == nil || c.game.Operator() != 1 {
		t.Fatalf("viewer = %v, want operator 1", c.game)
	}
	if len(c.candidates()) == 0 {
		t.Error("no move candidates after welcome")
	}
	if err := c.welcome(context.Background(), newWelcome(t, 1)); err == nil {
		t.Error("second welcome accepted")
	}
}

// sendMove は最初の候補のシーケンスを打って移動要求を送ります。
func sendMove(t *testing.T, c *Conn) {
	t.Helper()
	seq := c.candidates()[0].Seq
	for _, r := range seq {
		if err := c.Type(string(r)); err != nil {
			t.Fatalf("Type(%q): %v", r, err)
		}
	}
	select {
	case <-c.writeCh:
	default:
		t.Fatal("no move request sent")
	}
	if err := c.Type("a"); err != ErrBusy {
		t.Fatalf("Type while pending = %v, want %v", err, ErrBusy)
	}
}

func TestConn_PendingRequestReleased(t *testing.T) {
	tests := []struct {
		name    string
		release func(t *testing.T, c *Conn)
	}{
		{
			name: "error message",
			release: func(t *testing.T, c *Conn) {
				data, err := statechange.Encode(statechange.GameSubTypeError,
					&statechange.ErrorMessage{Code: "invalid_request", Message: "bad dest"})
				if err != nil {
					t.Fatal(err)
				}
				if err := c.handle(context.Background(), data); err != nil {
					t.Fatalf("handle: %v", err)
				}
				if _, _, lastErr := c.Status(); lastErr != "invalid_request: bad dest" {
					t.Errorf("Status lastErr = %q", lastErr)
				}
			},
		},
		{
			name: "timeout",
			release: func(t *testing.T, c *Conn) {
				c.sentAt = time.Now().Add(-2 * c.requestTimeout)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newOfflineConn()
			welcomed(t, c)
			sendMove(t, c)

			tt.release(t, c)
			c.mu.Lock()
			err := c.ready()
			c.mu.Unlock()
			if err != nil {
				t.Errorf("ready() = %v after %s, want nil", err, tt.name)
			}
		})
	}
}
