package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ergochat/readline"
	"github.com/gorilla/websocket"

	"collabcanvas/internal/canvas"
	"collabcanvas/internal/discovery"
	"collabcanvas/internal/logging"
	"collabcanvas/internal/replica"
	"collabcanvas/internal/wire"
)

// agent is a headless participant. It mirrors the board into a replica,
// saves the replica after every frame, and lets an operator draw from a
// console.
type agent struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	replica *replica.Replica
	store   *replica.BoltStore
	board   string
	color   string
	size    float64
	log     logging.Logger
}

func main() {
	serverURL := flag.String("url", "", "server websocket URL; discovered over mDNS when empty")
	service := flag.String("service", "_collabcanvas._tcp", "mDNS service to browse")
	name := flag.String("name", "agent", "display name")
	dbPath := flag.String("db", "agent.db", "bbolt file for the local replica")
	board := flag.String("board", "default", "key the replica is saved under")
	color := flag.String("color", "#000000", "stroke colour for console drawing")
	size := flag.Float64("size", 3, "stroke width for console drawing")
	headless := flag.Bool("headless", false, "mirror only, no console")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	log := logging.NewDefaultLogger(logging.ParseLevel(*logLevel), "agent")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := replica.OpenBolt(*dbPath)
	if err != nil {
		log.Error("open replica store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	a := &agent{
		replica: replica.New(),
		store:   store,
		board:   *board,
		color:   *color,
		size:    *size,
		log:     log,
	}
	if st, ok, err := store.Load(*board); err == nil && ok {
		a.replica.Restore(st)
		log.Info("restored saved replica", "strokes", len(st.History))
	}

	target := *serverURL
	if target == "" {
		browseCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		target, err = discovery.Browse(browseCtx, *service)
		cancel()
		if err != nil {
			log.Error("no server given and none discovered", "err", err)
			os.Exit(1)
		}
		log.Info("mDNS discovered server", "url", target)
	}
	target, err = withName(target, *name)
	if err != nil {
		log.Error("bad server url", "err", err)
		os.Exit(1)
	}

	go a.follow(ctx, target)

	if *headless {
		<-ctx.Done()
		return
	}
	if err := a.console(ctx); err != nil && !errors.Is(err, io.EOF) {
		log.Error("console", "err", err)
	}
	stop()
}

func withName(raw, name string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("name", name)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// follow keeps a connection open, reconnecting with exponential backoff.
// Every reconnect joins as a new participant and starts from a fresh
// snapshot.
func (a *agent) follow(ctx context.Context, target string) {
	for ctx.Err() == nil {
		var conn *websocket.Conn
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 0
		err := backoff.Retry(func() error {
			c, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
			if err != nil {
				a.log.Debug("dial failed", "url", target, "err", err)
				return err
			}
			conn = c
			return nil
		}, backoff.WithContext(b, ctx))
		if err != nil {
			return
		}
		a.log.Info("connected", "url", target)
		a.setConn(conn)
		a.read(ctx, conn)
		a.setConn(nil)
		conn.Close()
	}
}

func (a *agent) read(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				a.log.Warn("disconnected", "err", err)
			}
			return
		}
		a.mu.Lock()
		typ, err := a.replica.Apply(message)
		st := a.replica.State()
		a.mu.Unlock()
		if err != nil {
			a.log.Warn("frame", "type", typ, "err", err)
			continue
		}
		a.log.Debug("applied", "type", typ, "strokes", len(st.History))
		if err := a.store.Save(a.board, st); err != nil {
			a.log.Error("save replica", "err", err)
		}
	}
}

func (a *agent) setConn(c *websocket.Conn) {
	a.mu.Lock()
	a.conn = c
	a.mu.Unlock()
}

func (a *agent) send(cmd command) error {
	raw, err := wire.Message(cmd.frame, cmd.payload)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return errors.New("not connected")
	}
	if err := a.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return err
	}
	switch cmd.frame {
	case wire.TypeDraw:
		a.replica.DrawLocal(cmd.payload.(wire.Draw))
	case wire.TypeClear:
		a.replica.ClearLocal()
	}
	return nil
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("line"),
	readline.PcItem("stroke"),
	readline.PcItem("cursor"),
	readline.PcItem("undo"),
	readline.PcItem("redo"),
	readline.PcItem("clear"),
	readline.PcItem("who"),
	readline.PcItem("history"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

func (a *agent) console(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "canvas> ",
		HistoryFile:       ".collabcanvas_history",
		AutoComplete:      completer,
		InterruptPrompt:   "^C",
		EOFPrompt:         "quit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	rl.CaptureExitSignal()

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err != nil {
			return err
		}
		cmd, err := parseCommand(line, a.color, a.size)
		if err != nil {
			fmt.Fprintln(rl.Stderr(), err)
			continue
		}
		switch cmd.name {
		case "":
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprintln(rl.Stdout(), helpText)
		case "who":
			a.mu.Lock()
			st := a.replica.State()
			a.mu.Unlock()
			for _, p := range st.Participants {
				fmt.Fprintln(rl.Stdout(), describeParticipant(p, st.SelfID))
			}
		case "history":
			a.mu.Lock()
			visible := a.replica.Visible()
			a.mu.Unlock()
			for i, op := range visible {
				fmt.Fprintf(rl.Stdout(), "%3d %s %s %d pts by %s\n", i+1, op.ID, op.Color, len(op.Points), op.UserID)
			}
		default:
			if err := a.send(cmd); err != nil {
				fmt.Fprintln(rl.Stderr(), err)
			}
		}
	}
	return nil
}

func describeParticipant(p canvas.Participant, self string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s)", p.Color, p.DisplayName, p.ID)
	if p.Cursor != nil {
		fmt.Fprintf(&b, " at %.0f,%.0f", p.Cursor.X, p.Cursor.Y)
	}
	if p.ID == self {
		b.WriteString(" (you)")
	}
	return b.String()
}
