package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jason-s-yu/sushi/internal/api"
	"github.com/jason-s-yu/sushi/internal/config"
	"github.com/jason-s-yu/sushi/internal/session"
	"github.com/jason-s-yu/sushi/internal/stream"
	"github.com/sirupsen/logrus"
)

const playHelp = `commands: select <card-id> | submit | retry | leave | open <session-id> | status | quit`

// newSubscriber builds the push transport named by the config. The returned
// func releases the broker connection, if any.
func newSubscriber(ctx context.Context, cfg config.Config, logger *logrus.Logger) (stream.Subscriber, func(), error) {
	switch cfg.PushTransport {
	case config.TransportRedis:
		rdb, err := stream.DialRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return &stream.RedisSubscriber{Client: rdb, Prefix: cfg.RedisPrefix, Logger: logger}, func() { rdb.Close() }, nil
	case config.TransportNATS:
		nc, err := stream.DialNATS(cfg.NATSURL, cfg.ReconnectWait, logger)
		if err != nil {
			return nil, nil, err
		}
		return &stream.NATSSubscriber{Conn: nc, Prefix: cfg.NATSPrefix, Logger: logger}, nc.Close, nil
	default:
		return &stream.WSSubscriber{URL: cfg.SocketURL, Logger: logger}, func() {}, nil
	}
}

func play(ctx context.Context, cfg config.Config, client *api.Client, logger *logrus.Logger, args []string, in io.Reader, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("play: expected exactly one session id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("play: invalid session id %q", args[0])
	}

	push, release, err := newSubscriber(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	views := make(chan session.View, 1)
	nav := session.NewNavigator(func(id int64) *session.Machine {
		return session.New(session.Config{
			SessionID:      id,
			Token:          cfg.Token,
			API:            client,
			Push:           push,
			Logger:         logger,
			RequestTimeout: cfg.RequestTimeout,
			ReconnectWait:  cfg.ReconnectWait,
			OnChange:       func(v session.View) { offerLatest(views, v) },
		})
	}, logger)
	defer nav.Close()

	nav.Open(ctx, id)
	fmt.Fprintln(out, playHelp)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := readLines(ctx, in)
	var last string
	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-views:
			if d := digest(v); d != last {
				last = d
				render(out, v)
			}
		case err := <-nav.Wait():
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Left the session.")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := dispatch(ctx, nav, line, out); quit {
				return nil
			}
		}
	}
}

// offerLatest replaces whatever view is waiting with v. It never blocks the
// session loop.
func offerLatest(ch chan session.View, v session.View) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// readLines streams input lines until in is exhausted or ctx is done. A
// scanner blocked inside Read only exits when in does.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// dispatch runs one command line and reports whether the player quit.
func dispatch(ctx context.Context, nav *session.Navigator, line string, out io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	m := nav.Current()
	if m == nil {
		return true
	}

	var err error
	switch fields[0] {
	case "select", "s":
		var id int64
		if id, err = argID(fields); err == nil {
			err = m.Select(id)
		}
	case "submit", "play":
		err = m.Submit()
	case "retry", "r":
		err = m.Retry()
	case "leave":
		err = m.Leave()
	case "open":
		var id int64
		if id, err = argID(fields); err == nil {
			nav.Open(ctx, id)
		}
	case "status":
		render(out, m.View())
	case "quit", "q":
		return true
	case "help", "?":
		fmt.Fprintln(out, playHelp)
	default:
		fmt.Fprintf(out, "unknown command %q\n%s\n", fields[0], playHelp)
	}
	if err != nil {
		fmt.Fprintf(out, "! %v\n", err)
	}
	return false
}

func argID(fields []string) (int64, error) {
	if len(fields) != 2 {
		return 0, fmt.Errorf("%s needs one id", fields[0])
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", fields[1])
	}
	return id, nil
}
