// Package config loads the raet command configuration from YAML, RAET_*
// environment variables and command line overrides, in rising precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/1ureka/raet/internal/body"
	"github.com/1ureka/raet/internal/lane"
	"github.com/1ureka/raet/internal/road"
	"github.com/1ureka/raet/internal/rtc"
	"github.com/1ureka/raet/internal/util"
)

// Config is the root configuration.
type Config struct {
	Road    RoadConfig    `mapstructure:"road"`
	Peers   []PeerConfig  `mapstructure:"peers"`
	Lane    LaneConfig    `mapstructure:"lane"`
	RTC     RTCConfig     `mapstructure:"rtc"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Keeper  KeeperConfig  `mapstructure:"keeper"`

	// Tick is the pause between service cycles of the run loop.
	Tick time.Duration `mapstructure:"tick"`
	// StatsInterval is how often stack counters are logged; 0 disables.
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

// RoadConfig describes the local estate.
type RoadConfig struct {
	Name          string `mapstructure:"name"`
	UID           uint32 `mapstructure:"uid"`
	HA            string `mapstructure:"ha"`
	SigKey        string `mapstructure:"sigkey"`
	PriKey        string `mapstructure:"prikey"`
	MaxPacketSize int    `mapstructure:"max_packet_size"`
	Head          string `mapstructure:"head"`
	Body          string `mapstructure:"body"`
	Coat          string `mapstructure:"coat"`
	Foot          string `mapstructure:"foot"`
	RxBatch       int    `mapstructure:"rx_batch"`
	DoneCache     int    `mapstructure:"done_cache"`
}

// PeerConfig is a statically known remote estate.
type PeerConfig struct {
	UID    uint32 `mapstructure:"uid"`
	Name   string `mapstructure:"name"`
	HA     string `mapstructure:"ha"`
	Verhex string `mapstructure:"verhex"`
	Pubhex string `mapstructure:"pubhex"`
}

// LaneConfig describes the local yard.
type LaneConfig struct {
	Name        string   `mapstructure:"name"`
	UID         uint32   `mapstructure:"uid"`
	Lane        string   `mapstructure:"lane"`
	Dir         string   `mapstructure:"dir"`
	MaxPageSize int      `mapstructure:"max_page_size"`
	Body        string   `mapstructure:"body"`
	Accept      bool     `mapstructure:"accept"`
	RxBatch     int      `mapstructure:"rx_batch"`
	DoneCache   int      `mapstructure:"done_cache"`
	Yards       []string `mapstructure:"yards"`
}

// RTCConfig configures the WebRTC road and its signaling.
type RTCConfig struct {
	ICEServers []string `mapstructure:"ice_servers"`
	Loopback   bool     `mapstructure:"loopback"`
	InboxSize  int      `mapstructure:"inbox_size"`
	Listen     string   `mapstructure:"listen"`
	PIN        string   `mapstructure:"pin"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Debug      bool   `mapstructure:"debug"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Tee        bool   `mapstructure:"tee"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// KeeperConfig selects persistence. An empty Path keeps state in memory.
type KeeperConfig struct {
	Path   string `mapstructure:"path"`
	Prefix string `mapstructure:"prefix"`
}

// Default returns the stock configuration.
func Default() *Config {
	rc := road.DefaultConfig()
	lc := lane.DefaultConfig()
	return &Config{
		Road: RoadConfig{
			UID:           rc.UID,
			HA:            rc.HA,
			MaxPacketSize: rc.MaxPacketSize,
			Head:          rc.HeadKind.String(),
			Body:          rc.BodyKind.String(),
			Coat:          rc.CoatKind.String(),
			Foot:          rc.FootKind.String(),
			DoneCache:     rc.DoneCache,
		},
		Lane: LaneConfig{
			UID:         lc.UID,
			Lane:        lc.Lane,
			Dir:         lc.Dirpath,
			MaxPageSize: lc.MaxPageSize,
			Body:        lc.BodyKind.String(),
			Accept:      lc.Accept,
			DoneCache:   lc.DoneCache,
		},
		RTC: RTCConfig{
			InboxSize: rtc.DefaultInboxSize,
			Listen:    ":0",
		},
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics:       MetricsConfig{Namespace: "raet"},
		Keeper:        KeeperConfig{Prefix: "raet"},
		Tick:          10 * time.Millisecond,
		StatsInterval: 10 * time.Second,
	}
}

// Load reads the configuration at path. With an empty path RAET_CONFIG is
// consulted, then ./raet.yaml and ~/.raet/raet.yaml; a missing file is not
// an error. Environment variables use the RAET prefix with "." replaced by
// "_", e.g. RAET_ROAD_NAME. overrides are applied last, keyed the same way
// as the YAML ("log.debug").
func Load(path string, overrides map[string]any) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RAET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Seed every key so env-only configs work.
	v.SetDefault("road.name", cfg.Road.Name)
	v.SetDefault("road.uid", cfg.Road.UID)
	v.SetDefault("road.ha", cfg.Road.HA)
	v.SetDefault("road.sigkey", cfg.Road.SigKey)
	v.SetDefault("road.prikey", cfg.Road.PriKey)
	v.SetDefault("road.max_packet_size", cfg.Road.MaxPacketSize)
	v.SetDefault("road.head", cfg.Road.Head)
	v.SetDefault("road.body", cfg.Road.Body)
	v.SetDefault("road.coat", cfg.Road.Coat)
	v.SetDefault("road.foot", cfg.Road.Foot)
	v.SetDefault("road.rx_batch", cfg.Road.RxBatch)
	v.SetDefault("road.done_cache", cfg.Road.DoneCache)
	v.SetDefault("peers", cfg.Peers)
	v.SetDefault("lane.name", cfg.Lane.Name)
	v.SetDefault("lane.uid", cfg.Lane.UID)
	v.SetDefault("lane.lane", cfg.Lane.Lane)
	v.SetDefault("lane.dir", cfg.Lane.Dir)
	v.SetDefault("lane.max_page_size", cfg.Lane.MaxPageSize)
	v.SetDefault("lane.body", cfg.Lane.Body)
	v.SetDefault("lane.accept", cfg.Lane.Accept)
	v.SetDefault("lane.rx_batch", cfg.Lane.RxBatch)
	v.SetDefault("lane.done_cache", cfg.Lane.DoneCache)
	v.SetDefault("lane.yards", cfg.Lane.Yards)
	v.SetDefault("rtc.ice_servers", cfg.RTC.ICEServers)
	v.SetDefault("rtc.loopback", cfg.RTC.Loopback)
	v.SetDefault("rtc.inbox_size", cfg.RTC.InboxSize)
	v.SetDefault("rtc.listen", cfg.RTC.Listen)
	v.SetDefault("rtc.pin", cfg.RTC.PIN)
	v.SetDefault("log.debug", cfg.Log.Debug)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)
	v.SetDefault("log.compress", cfg.Log.Compress)
	v.SetDefault("log.tee", cfg.Log.Tee)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)
	v.SetDefault("keeper.path", cfg.Keeper.Path)
	v.SetDefault("keeper.prefix", cfg.Keeper.Prefix)
	v.SetDefault("tick", cfg.Tick)
	v.SetDefault("stats_interval", cfg.StatsInterval)

	if path == "" {
		path = os.Getenv("RAET_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("raet")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".raet"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.Road.Stack(); err != nil {
		return fmt.Errorf("invalid road: %w", err)
	}
	if _, err := c.Lane.Stack(); err != nil {
		return fmt.Errorf("invalid lane: %w", err)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("invalid tick: %s", c.Tick)
	}
	for i, p := range c.Peers {
		if p.UID == 0 || p.Name == "" || p.HA == "" {
			return fmt.Errorf("invalid peers[%d]: uid, name and ha are required", i)
		}
	}
	return nil
}

// Stack converts to the road stack configuration.
func (r RoadConfig) Stack() (road.Config, error) {
	cfg := road.Config{
		Name:          r.Name,
		UID:           r.UID,
		HA:            r.HA,
		SigKey:        r.SigKey,
		PriKey:        r.PriKey,
		MaxPacketSize: r.MaxPacketSize,
		RxBatch:       r.RxBatch,
		DoneCache:     r.DoneCache,
	}
	var err error
	if cfg.HeadKind, err = road.HeadKindByName(strings.ToLower(r.Head)); err != nil {
		return cfg, err
	}
	if cfg.BodyKind, err = body.KindByName(strings.ToLower(r.Body)); err != nil {
		return cfg, err
	}
	if cfg.CoatKind, err = road.CoatKindByName(strings.ToLower(r.Coat)); err != nil {
		return cfg, err
	}
	if cfg.FootKind, err = road.FootKindByName(strings.ToLower(r.Foot)); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Remote builds the remote estate for a static peer.
func (p PeerConfig) Remote() (*road.RemoteEstate, error) {
	var verkey, pubkey []byte
	if p.Verhex != "" {
		verkey = []byte(p.Verhex)
	}
	if p.Pubhex != "" {
		pubkey = []byte(p.Pubhex)
	}
	return road.NewRemoteEstate(p.UID, p.Name, p.HA, verkey, pubkey)
}

// Stack converts to the lane stack configuration.
func (l LaneConfig) Stack() (lane.Config, error) {
	kind, err := body.KindByName(strings.ToLower(l.Body))
	if err != nil {
		return lane.Config{}, err
	}
	return lane.Config{
		Name:        l.Name,
		UID:         l.UID,
		Lane:        l.Lane,
		Dirpath:     l.Dir,
		MaxPageSize: l.MaxPageSize,
		BodyKind:    kind,
		Accept:      l.Accept,
		RxBatch:     l.RxBatch,
		DoneCache:   l.DoneCache,
	}, nil
}

// Transport converts to the rtc transport configuration.
func (r RTCConfig) Transport() rtc.Config {
	return rtc.Config{
		ICEServers: r.ICEServers,
		Loopback:   r.Loopback,
		InboxSize:  r.InboxSize,
	}
}

// LogFile converts to the logger's file settings.
func (l LogConfig) LogFile() util.LogFile {
	return util.LogFile{
		Path:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
		Tee:        l.Tee,
	}
}
