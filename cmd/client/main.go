package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/reconcile"
)

func main() {
	server := pflag.StringP("server", "s", "http://localhost:8080", "server base URL")
	token := pflag.StringP("token", "t", os.Getenv("BOARD_TOKEN"), "credential token (default $BOARD_TOKEN)")
	room := pflag.StringP("room", "r", "lobby", "room to join")
	resync := pflag.Duration("resync", 0, "re-fetch the room snapshot this often (0 disables)")
	verbose := pflag.BoolP("verbose", "v", false, "debug logging")
	pflag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *token == "" {
		log.Fatal().Msg("a token is required (--token or BOARD_TOKEN)")
	}
	if !domain.RoomID(*room).Valid() {
		log.Fatal().Str("room", *room).Msg("invalid room id")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := reconcile.New(reconcile.Options{
		ServerURL:    *server,
		Token:        *token,
		Room:         domain.RoomID(*room),
		ResyncPeriod: *resync,
	})
	c.OnChange(printState)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-c.Ready():
	case err := <-done:
		log.Fatal().Err(err).Msg("could not join room")
	}
	go readLines(ctx, c)

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("disconnected")
		os.Exit(1)
	}
}

// readLines sends every stdin line to the room.
func readLines(ctx context.Context, c *reconcile.Client) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := sc.Text()
		if line == "" {
			continue
		}
		if err := c.Send(line); err != nil {
			log.Error().Err(err).Msg("send")
			return
		}
	}
}

func printState(state map[string]string) {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fmt.Printf("--- %s (%d entries)\n", time.Now().Format(time.TimeOnly), len(keys))
	for _, k := range keys {
		fmt.Printf("%s\t%s\n", k, state[k])
	}
}
