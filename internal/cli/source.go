package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/geckode/internal/channel"
	"github.com/roach88/geckode/internal/config"
	"github.com/roach88/geckode/internal/graph"
	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/relay"
	"github.com/roach88/geckode/internal/store"
	"github.com/roach88/geckode/internal/transport"
)

// fetchTimeout bounds dialing and hydrating a remote channel.
const fetchTimeout = 30 * time.Second

// ProgramSource names where a program is read from. Exactly one of
// StateFile, DBPath or Remote is set.
type ProgramSource struct {
	StateFile string // exported state (graph.ExportState)
	DBPath    string // relay database; Channel selects the channel
	Remote    bool   // live relay at config client.relay_url; Channel selects the channel
	Channel   string
}

func (s ProgramSource) validate() error {
	n := 0
	for _, set := range []bool{s.StateFile != "", s.DBPath != "", s.Remote} {
		if set {
			n++
		}
	}
	if n != 1 {
		return NewExitError(ExitCommandError, "choose exactly one program source: --state, --db or --remote")
	}
	if (s.DBPath != "" || s.Remote) && s.Channel == "" {
		return NewExitError(ExitCommandError, "--channel is required with --db and --remote")
	}
	return nil
}

// loadProgram builds a graph from src.
func loadProgram(ctx context.Context, src ProgramSource, cfg *config.Config, logger *slog.Logger) (*graph.Graph, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	g := graph.New(graph.WithLogger(logger))

	switch {
	case src.StateFile != "":
		data, err := os.ReadFile(src.StateFile)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read state file", err)
		}
		if err := g.ImportState(data); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load state file", err)
		}

	case src.DBPath != "":
		if _, err := os.Stat(src.DBPath); err != nil {
			return nil, WrapExitError(ExitCommandError, "database not found", err)
		}
		st, err := store.Open(src.DBPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		if err := relay.LoadChannel(ctx, st, src.Channel, g); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load channel", err)
		}

	case src.Remote:
		if err := fetchRemote(ctx, g, src.Channel, cfg, logger); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to fetch channel from relay", err)
		}
	}
	return g, nil
}

// fetchRemote hydrates g from the relay and disconnects.
func fetchRemote(ctx context.Context, g *graph.Graph, channelID string, cfg *config.Config, logger *slog.Logger) error {
	actor := cfg.Client.Actor
	if actor == "" {
		actor = "cli-" + uuid.NewString()
	}
	dialer := transport.NewWebSocketDialer(cfg.Client.RelayURL)
	dialer.Settings.ReadLimit = cfg.Relay.ReadLimit

	ch := channel.New(g, channel.Options{
		Actor:   ir.ActorID(actor),
		Token:   cfg.Client.Token,
		Dialer:  dialer,
		Backoff: channel.BackoffSettings{Initial: cfg.Client.BackoffInitial, Max: cfg.Client.BackoffMax},
		Logger:  logger,
	})
	defer ch.Close()

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	if _, err := ch.Connect(ctx, channelID); err != nil {
		return fmt.Errorf("connect %s: %w", channelID, err)
	}
	return nil
}
