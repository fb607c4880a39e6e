package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/1ureka/raet/internal/config"
	"github.com/1ureka/raet/internal/keeping"
	"github.com/1ureka/raet/internal/road"
	"github.com/1ureka/raet/internal/stack"
	"github.com/1ureka/raet/internal/transport"
	"github.com/1ureka/raet/internal/util"
)

// BuildRoad creates the road stack described by cfg and registers the
// configured peers not already restored by keeper. A nil tr is bound later
// by the caller through the stack's Transport field.
func BuildRoad(cfg *config.Config, tr transport.Datagram, keeper keeping.Keeper) (*road.RoadStack, error) {
	rc, err := cfg.Road.Stack()
	if err != nil {
		return nil, err
	}
	s, err := road.NewRoadStack(rc, tr, keeper)
	if err != nil {
		return nil, err
	}
	for _, p := range cfg.Peers {
		if _, ok := s.Remotes.ByName(p.Name); ok {
			continue
		}
		remote, err := p.Remote()
		if err != nil {
			return nil, fmt.Errorf("peer %q: %w", p.Name, err)
		}
		if err := s.AddRemote(remote); err != nil {
			return nil, fmt.Errorf("peer %q: %w", p.Name, err)
		}
	}
	return s, nil
}

// RoadLoop returns the service loop of s.
func RoadLoop(s *road.RoadStack, tick time.Duration, input <-chan string) *Loop {
	return &Loop{
		Name:    s.Name,
		Tick:    tick,
		Service: s.ServiceAll,
		Drain:   s.RxMsgs.Drain,
		Send: func(out Outbound) error {
			var uid uint32
			if out.To != "" {
				remote, ok := s.Remotes.ByName(out.To)
				if !ok {
					s.Stats.Inc(stack.StatInvalidDestination)
					return fmt.Errorf("%w: estate %q", stack.ErrInvalidDestination, out.To)
				}
				uid = remote.Lot().UID
			}
			return s.Transmit(out.Body, uid)
		},
		Input:     input,
		OnMessage: PrintMessage(s.Name),
	}
}

// RunRoad runs a road stack over UDP until ctx is cancelled, sending the
// lines read from in.
func RunRoad(ctx context.Context, cfg *config.Config, in io.Reader) error {
	keeper, closer, err := openKeeper(cfg.Keeper, "road")
	if err != nil {
		return err
	}
	defer closer.Close()

	s, err := BuildRoad(cfg, nil, keeper)
	if err != nil {
		return err
	}
	// Bound once the estate, possibly restored, knows its address.
	s.Transport = transport.NewUDP(s.Estate().HA, 0)
	if err := s.Open(); err != nil {
		return err
	}
	defer s.Close()

	observe(ctx, cfg, s.Name, s.Stats)
	e := s.Estate()
	util.LogSuccess("road estate %s (uid %d) on %s", e.Name, e.UID, e.HA)
	util.LogInfo("verhex %s", e.Signer().VerHex())
	util.LogInfo("pubhex %s", e.Privateer().PubHex())

	return RoadLoop(s, cfg.Tick, Lines(ctx, in)).Run(ctx)
}
