// Package termview は termbox でビューアレプリカを描画する端末 UI です。
package termview

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nsf/termbox-go"
	"golang.org/x/sync/errgroup"

	"github.com/touka-aoi/snakey/client"
	"github.com/touka-aoi/snakey/game"
	"github.com/touka-aoi/snakey/game/floor"
	"github.com/touka-aoi/snakey/game/statechange"
)

const (
	cellWidth  = 4
	statusRows = 3
)

const (
	colorDefault = termbox.ColorDefault
	colorSelf    = termbox.ColorYellow
	colorOther   = termbox.ColorRed
	colorScore   = termbox.ColorGreen
	colorText    = termbox.ColorDarkGray
	colorTyped   = termbox.ColorCyan
)

// View は game.Sink として変更通知を受け、描画ループに再描画を促します。
// 通知はレプリカのロック中に呼ばれるので、ここでは描画しません。
type View struct {
	redraw chan struct{}
}

func New() *View {
	return &View{redraw: make(chan struct{}, 1)}
}

func (v *View) touch() {
	select {
	case v.redraw <- struct{}{}:
	default:
	}
}

func (v *View) OnTileChanged(floor.Tile)                              { v.touch() }
func (v *View) OnPlayerMoved(game.PlayerID, floor.Point, floor.Point) { v.touch() }
func (v *View) OnRequestRejected(game.PlayerID)                       { v.touch() }
func (v *View) OnPlayerStatusChanged(statechange.PlayerState)         { v.touch() }

var _ game.Sink = (*View)(nil)

// Run は端末を初期化し、キー入力を conn の操作に変換しながら画面を描き続けます。
// Esc か Ctrl-C、または ctx の終了で戻ります。
func (v *View) Run(ctx context.Context, conn *client.Conn) error {
	if err := termbox.Init(); err != nil {
		return fmt.Errorf("view: init terminal: %w", err)
	}
	defer termbox.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := make(chan termbox.Event)
	go func() {
		for {
			ev := termbox.PollEvent()
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Type == termbox.EventInterrupt {
				return
			}
		}
	}()
	defer termbox.Interrupt()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		for {
			v.draw(conn)
			select {
			case <-egCtx.Done():
				return nil
			case <-v.redraw:
			case ev := <-events:
				if quit := v.handleKey(egCtx, conn, ev); quit {
					cancel()
					return nil
				}
			}
		}
	})
	return eg.Wait()
}

func (v *View) handleKey(ctx context.Context, conn *client.Conn, ev termbox.Event) bool {
	switch ev.Type {
	case termbox.EventKey:
	case termbox.EventError:
		slog.ErrorContext(ctx, "view: terminal error", "err", ev.Err)
		return true
	default:
		return false
	}
	var err error
	switch {
	case ev.Key == termbox.KeyEsc || ev.Key == termbox.KeyCtrlC:
		return true
	case ev.Key == termbox.KeySpace:
		err = conn.Bubble()
	case ev.Key == termbox.KeyTab:
		err = conn.Bench()
	case ev.Key == termbox.KeyEnter:
		conn.ToggleBoost()
	case ev.Key == termbox.KeyBackspace || ev.Key == termbox.KeyBackspace2:
		conn.Backspace()
	case ev.Ch != 0:
		err = conn.Type(string(ev.Ch))
	}
	if err != nil {
		slog.DebugContext(ctx, "view: input ignored", "err", err)
	}
	return false
}

func (v *View) draw(conn *client.Conn) {
	termbox.Clear(colorDefault, colorDefault)
	buffer, boost, lastErr := conn.Status()
	ok := conn.Do(func(g *game.Game, self game.PlayerID) {
		drawFloor(g, self, buffer)
		drawStatus(g, self, buffer, boost, lastErr)
	})
	if !ok {
		drawString(0, 0, "waiting for welcome...", colorText, colorDefault)
	}
	termbox.Flush()
}

// screenPos はタイルの左上の画面座標です。六角格子は行ごとに半セルずらします。
func screenPos(system floor.System, p floor.Point) (int, int) {
	x := p.X * cellWidth
	if system == floor.SystemBeehive {
		x += p.Y * cellWidth / 2
	}
	return x, p.Y
}

func drawFloor(g *game.Game, self game.PlayerID, buffer string) {
	system := g.Grid().System()
	g.Grid().ForEachTile(func(t *floor.Tile) {
		x, y := screenPos(system, t.Point())
		switch {
		case t.Occupant == int(self):
			drawString(x, y, "@", colorSelf|termbox.AttrBold, colorDefault)
		case t.IsOccupied():
			drawString(x, y, "#", colorOther, colorDefault)
		default:
			fg := colorDefault
			if t.ScoreValue > 0 {
				fg = colorScore | termbox.AttrBold
			}
			drawString(x, y, t.Char, fg, colorDefault)
			if buffer != "" && len(t.Seq) >= len(buffer) && t.Seq[:len(buffer)] == buffer {
				drawString(x+1, y, t.Seq, colorTyped, colorDefault)
			}
		}
	})
}

func drawStatus(g *game.Game, self game.PlayerID, buffer string, boost bool, lastErr string) {
	dim := g.Grid().Dimensions()
	row := dim.Height + 1
	if p, ok := g.Player(self); ok {
		state := "ready"
		switch {
		case p.IsFrozen:
			state = "frozen"
		case p.IsBubbling:
			state = "bubbling"
		case p.OnBench():
			state = "bench"
		case p.RequestInFlight:
			state = "waiting"
		}
		mode := "normal"
		if boost {
			mode = "boost"
		}
		line := fmt.Sprintf("%s | score %d | stock %d | hp %d | %s | move %s | > %s",
			p.Name, p.Score, p.Stockpile, p.Health, state, mode, buffer)
		drawString(0, row, line, colorText, colorDefault)
	}
	row++
	for _, p := range g.Players() {
		if p.ID == self {
			continue
		}
		drawString(0, row, fmt.Sprintf("%s: %d", p.Name, p.Score), colorText, colorDefault)
		row++
	}
	if lastErr != "" {
		drawString(0, row, lastErr, colorOther, colorDefault)
		row++
	}
	drawString(0, row+statusRows-2, "type a tile's keys to move, space bubble, tab bench, enter boost, esc quit",
		colorText, colorDefault)
}

func drawString(x, y int, text string, fg, bg termbox.Attribute) {
	i := 0
	for _, c := range text {
		termbox.SetCell(x+i, y, c, fg, bg)
		i++
	}
}
