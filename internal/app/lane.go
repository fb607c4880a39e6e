package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/1ureka/raet/internal/config"
	"github.com/1ureka/raet/internal/keeping"
	"github.com/1ureka/raet/internal/lane"
	"github.com/1ureka/raet/internal/transport"
	"github.com/1ureka/raet/internal/util"
)

// BuildLane creates the lane stack described by cfg and registers the
// configured yards not already restored by keeper.
func BuildLane(cfg *config.Config, tr transport.Datagram, keeper keeping.Keeper) (*lane.LaneStack, error) {
	lc, err := cfg.Lane.Stack()
	if err != nil {
		return nil, err
	}
	s, err := lane.NewLaneStack(lc, tr, keeper)
	if err != nil {
		return nil, err
	}
	for _, name := range cfg.Lane.Yards {
		if _, ok := s.Remotes.ByName(name); ok {
			continue
		}
		if _, err := s.AddYard(name); err != nil {
			return nil, fmt.Errorf("yard %q: %w", name, err)
		}
	}
	return s, nil
}

// LaneLoop returns the service loop of s.
func LaneLoop(s *lane.LaneStack, tick time.Duration, input <-chan string) *Loop {
	return &Loop{
		Name:    s.Name,
		Tick:    tick,
		Service: s.ServiceAll,
		Drain:   s.RxMsgs.Drain,
		Send: func(out Outbound) error {
			return s.TransmitTo(out.Body, out.To)
		},
		Input:     input,
		OnMessage: PrintMessage(s.Name),
	}
}

// RunLane runs a lane stack over a unix datagram socket until ctx is
// cancelled, sending the lines read from in.
func RunLane(ctx context.Context, cfg *config.Config, in io.Reader) error {
	keeper, closer, err := openKeeper(cfg.Keeper, "lane")
	if err != nil {
		return err
	}
	defer closer.Close()

	s, err := BuildLane(cfg, nil, keeper)
	if err != nil {
		return err
	}
	y := s.Yard()
	if err := os.MkdirAll(y.Dirpath, 0o700); err != nil {
		return err
	}
	// Bound once the yard, possibly restored, knows its address.
	s.Transport = transport.NewUnixgram(y.HA, 0)
	if err := s.Open(); err != nil {
		return err
	}
	defer s.Close()

	observe(ctx, cfg, s.Name, s.Stats)
	util.LogSuccess("yard %s (uid %d) on lane %s at %s", y.Name, y.UID, y.Lane, y.HA)

	return LaneLoop(s, cfg.Tick, Lines(ctx, in)).Run(ctx)
}
