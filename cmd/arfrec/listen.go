package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/robert-malhotra/go-arf/logger"
	"github.com/robert-malhotra/go-arf/record"
)

// recvPoll bounds how long Recv blocks before the loop rechecks ctx.
const recvPoll = 200 * time.Millisecond

func listenCmd() *cli.Command {
	var addr string

	return &cli.Command{
		Name:  "listen",
		Usage: "Record in real time while accepting text messages on a PULL socket",
		Flags: append(append(recorderFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "address to listen on for messages",
				Value:       "tcp://127.0.0.1:5557",
				Destination: &addr,
			},
		), loggingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadRunConfig(configPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log := newLogger()
			clock := newSampleClock(cfg.Processors[0].SampleRate)
			err = run(ctx, cfg, runOptions{
				log:         log,
				metricsAddr: metricsAddr,
				realtime:    true,
				background: func(ctx context.Context, s *record.Session) error {
					return receiveMessages(ctx, addr, s, clock, log)
				},
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return nil
		},
	}
}

// sampleClock converts wall time since start into a sample number.
type sampleClock struct {
	start time.Time
	rate  float32
}

func newSampleClock(rate float32) *sampleClock {
	return &sampleClock{start: time.Now(), rate: rate}
}

func (c *sampleClock) now() int64 {
	return int64(time.Since(c.start).Seconds() * float64(c.rate))
}

// parseMessage turns a received payload into a message. A payload of the
// form "@<sample> <text>" carries its own sample number; anything else is
// stamped with fallback.
func parseMessage(payload []byte, fallback int64) record.Message {
	text := strings.TrimRight(string(payload), "\x00\r\n")
	msg := record.Message{Sample: fallback, Text: text}
	if rest, ok := strings.CutPrefix(text, "@"); ok {
		num, body, _ := strings.Cut(rest, " ")
		if n, err := strconv.ParseInt(num, 10, 64); err == nil && n >= 0 {
			msg.Sample, msg.Text = n, body
		}
	}
	return msg
}

func receiveMessages(ctx context.Context, addr string, s *record.Session, clock *sampleClock, log logger.Logger) error {
	sock, err := pull.NewSocket()
	if err != nil {
		return fmt.Errorf("creating pull socket: %w", err)
	}
	defer sock.Close()
	if err := sock.SetOption(mangos.OptionRecvDeadline, recvPoll); err != nil {
		return fmt.Errorf("setting receive deadline: %w", err)
	}
	if err := sock.Listen(addr); err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	log.Info("accepting messages", "addr", addr)

	for ctx.Err() == nil {
		payload, err := sock.Recv()
		switch {
		case errors.Is(err, mangos.ErrRecvTimeout):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiving on %s: %w", addr, err)
		}
		msg := parseMessage(payload, clock.now())
		if err := s.SubmitMessage(msg); err != nil {
			log.Warn("message rejected", "text", msg.Text, "error", err)
		}
	}
	return nil
}
