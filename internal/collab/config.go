package collab

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig is the viper-unmarshaled shape of the server's own
// configuration file, generalized from the teacher's pkg/config.Config onto
// this server's session/room knobs (auth secret, heartbeat/idle timings,
// room-creation toggle, monitor allow-list).
type ServerConfig struct {
	Server  ServerSection  `mapstructure:"server"`
	Session SessionSection `mapstructure:"session"`
	Rooms   RoomsSection   `mapstructure:"rooms"`
	Events  EventsSection  `mapstructure:"events"`
	Dangle  time.Duration  `mapstructure:"dangleGrace"`
}

type ServerSection struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwtSecret"`
}

type SessionSection struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"`
	IdleTimeout       time.Duration `mapstructure:"idleTimeout"`
	PongInterval      time.Duration `mapstructure:"pongInterval"`
}

type RoomsSection struct {
	CreationEnabled bool    `mapstructure:"creationEnabled"`
	Monitors        []int32 `mapstructure:"monitors"`
}

// EventsSection configures the room-lifecycle event sink. An empty
// MQTTBroker means no broker is wired and the server falls back to
// LogEventSink.
type EventsSection struct {
	MQTTBroker string `mapstructure:"mqttBroker"`
	ClientID   string `mapstructure:"mqttClientID"`
}

// LoadServerConfig reads configuration from fileName (a YAML file, viper
// convention) plus RHYTHMMP_-prefixed environment variables, falling back to
// defaults matching the reference implementation's ServerConfig when no file
// is present.
func LoadServerConfig(fileName string) (*ServerConfig, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8112")
	v.SetDefault("server.jwtSecret", "change-me")
	v.SetDefault("session.heartbeatInterval", "1s")
	v.SetDefault("session.idleTimeout", "30s")
	v.SetDefault("session.pongInterval", "5s")
	v.SetDefault("rooms.creationEnabled", true)
	v.SetDefault("rooms.monitors", []int32{})
	v.SetDefault("events.mqttBroker", "")
	v.SetDefault("events.mqttClientID", "rhythmmp-server")
	v.SetDefault("dangleGrace", "60s")

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RHYTHMMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// StaticConfig is a Config backed by an already-loaded ServerConfig, with a
// mutable room-creation toggle for tests and admin-triggered flips.
type StaticConfig struct {
	mu             sync.RWMutex
	roomCreation   bool
	monitorAllowed map[int32]struct{}
}

func NewStaticConfig(cfg *ServerConfig) *StaticConfig {
	allowed := make(map[int32]struct{}, len(cfg.Rooms.Monitors))
	for _, id := range cfg.Rooms.Monitors {
		allowed[id] = struct{}{}
	}
	return &StaticConfig{roomCreation: cfg.Rooms.CreationEnabled, monitorAllowed: allowed}
}

var _ Config = (*StaticConfig)(nil)

func (c *StaticConfig) RoomCreationEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomCreation
}

func (c *StaticConfig) SetRoomCreationEnabled(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomCreation = v
}

func (c *StaticConfig) CanMonitor(userID int32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.monitorAllowed[userID]
	return ok
}
