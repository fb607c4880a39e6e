package app

import (
	"context"
	"fmt"
	"io"

	"github.com/1ureka/raet/internal/config"
	"github.com/1ureka/raet/internal/signaling"
	"github.com/1ureka/raet/internal/util"
)

// RunRTC runs a road stack whose single remote is reached over a WebRTC
// DataChannel. The host listens for signaling; the client dials wsURL.
func RunRTC(ctx context.Context, cfg *config.Config, host bool, wsURL string, in io.Reader) error {
	keeper, closer, err := openKeeper(cfg.Keeper, "rtc")
	if err != nil {
		return err
	}
	defer closer.Close()

	s, err := BuildRoad(cfg, nil, keeper)
	if err != nil {
		return err
	}

	opts := signaling.Options{
		Local: signaling.AnnounceFor(s.Estate()),
		RTC:   cfg.RTC.Transport(),
		Addr:  cfg.RTC.Listen,
		PIN:   cfg.RTC.PIN,
		OnListen: func(port int) {
			if cfg.RTC.PIN != "" {
				util.LogSuccess("waiting for client on ws://<host>:%d/ws?pin=%s", port, cfg.RTC.PIN)
			} else {
				util.LogSuccess("waiting for client on ws://<host>:%d/ws", port)
			}
		},
	}

	var session *signaling.Session
	if host {
		session, err = signaling.EstablishAsHost(ctx, opts)
	} else {
		session, err = signaling.EstablishAsClient(ctx, wsURL, opts)
	}
	if err != nil {
		return fmt.Errorf("failed to establish rtc road: %w", err)
	}

	s.Transport = session.Transport
	if err := s.Open(); err != nil {
		session.Transport.Close()
		return err
	}
	defer s.Close()

	// A kept remote from an earlier session may carry stale keys.
	if old, ok := s.Remotes.ByName(session.Peer.Name); ok {
		if err := s.RemoveRemote(old); err != nil {
			return err
		}
	}
	remote, err := session.Remote()
	if err != nil {
		return fmt.Errorf("peer %q: %w", session.Peer.Name, err)
	}
	if err := s.AddRemote(remote); err != nil {
		return fmt.Errorf("peer %q: %w", session.Peer.Name, err)
	}

	observe(ctx, cfg, s.Name, s.Stats)
	util.LogSuccess("rtc road established with %s (uid %d)", session.Peer.Name, session.Peer.UID)

	loop := RoadLoop(s, cfg.Tick, Lines(ctx, in))
	loop.Wake = session.Transport.Writable()
	err = loop.Run(ctx)
	if n := session.Transport.Dropped(); n > 0 {
		util.LogWarning("[%s] %d inbound messages dropped on a full inbox", s.Name, n)
	}
	return err
}
