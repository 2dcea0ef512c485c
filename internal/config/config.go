// Package config loads the control plane's settings from the environment
// via spf13/viper, grounded on dkeye-Voice's internal/config.Load shape but
// bound to environment variables only — this control plane takes no
// config file, since spec.md §6 enumerates a fixed environment-variable
// surface instead.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/viper"

	"github.com/confplane/signaling-core/internal/domain"
)

// ListenIP is one entry of SFU_LISTEN_IPS: the local address pion binds to
// and, optionally, the address advertised in ICE candidates (for NAT'd
// deployments).
type ListenIP struct {
	IP          string `json:"ip"`
	AnnouncedIP string `json:"announcedIp"`
}

// Config is the fully resolved, immutable settings snapshot for one process
// run. Load never returns a partially valid Config: on error it is the
// caller's job to log and exit, the same as the teacher's bootstrap.
type Config struct {
	Port      int
	AdminPort int

	EnableAuth bool
	JWTSecret  string

	ICEServers  []webrtc.ICEServer
	TURNHost    string
	TURNPort    int
	TURNUser    string
	TURNPass    string
	PublicIP    string
	SFUListenIPs []ListenIP
	SFUBindIP   string

	MaxVideoPerRoom int
	AllowObservers  bool
	MaxObservers    int

	RecorderAPIURL string
}

// Load reads every setting from the process environment, applying the
// defaults named alongside each key.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("ADMIN_PORT", 8081)
	v.SetDefault("ENABLE_AUTH", false)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("ICE_SERVERS", "[]")
	v.SetDefault("TURN_HOST", "")
	v.SetDefault("TURN_PORT", 3478)
	v.SetDefault("TURN_USERNAME", "")
	v.SetDefault("TURN_PASSWORD", "")
	v.SetDefault("PUBLIC_IP", "")
	v.SetDefault("SFU_LISTEN_IPS", "[]")
	v.SetDefault("SFU_BIND_IP", "0.0.0.0")
	v.SetDefault("MAX_VIDEO_PER_ROOM", 0)
	v.SetDefault("ALLOW_OBSERVERS", true)
	v.SetDefault("MAX_OBSERVERS", 0)
	v.SetDefault("RECORDER_API_URL", "")

	cfg := &Config{
		Port:            v.GetInt("PORT"),
		AdminPort:       v.GetInt("ADMIN_PORT"),
		EnableAuth:      v.GetBool("ENABLE_AUTH"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		TURNHost:        v.GetString("TURN_HOST"),
		TURNPort:        v.GetInt("TURN_PORT"),
		TURNUser:        v.GetString("TURN_USERNAME"),
		TURNPass:        v.GetString("TURN_PASSWORD"),
		PublicIP:        v.GetString("PUBLIC_IP"),
		SFUBindIP:       v.GetString("SFU_BIND_IP"),
		MaxVideoPerRoom: v.GetInt("MAX_VIDEO_PER_ROOM"),
		AllowObservers:  v.GetBool("ALLOW_OBSERVERS"),
		MaxObservers:    v.GetInt("MAX_OBSERVERS"),
		RecorderAPIURL:  v.GetString("RECORDER_API_URL"),
	}

	if err := json.Unmarshal([]byte(v.GetString("ICE_SERVERS")), &cfg.ICEServers); err != nil {
		return nil, fmt.Errorf("config: parsing ICE_SERVERS: %w", err)
	}
	if err := json.Unmarshal([]byte(v.GetString("SFU_LISTEN_IPS")), &cfg.SFUListenIPs); err != nil {
		return nil, fmt.Errorf("config: parsing SFU_LISTEN_IPS: %w", err)
	}

	if cfg.TURNHost != "" {
		cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s:%d", cfg.TURNHost, cfg.TURNPort)},
			Username:   cfg.TURNUser,
			Credential: cfg.TURNPass,
		})
	}

	if cfg.EnableAuth && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: ENABLE_AUTH is set but JWT_SECRET is empty")
	}

	return cfg, nil
}

// RoomDefaults projects the room-shaping subset of Config into the
// domain.RoomOptions captured at room creation (spec.md §3).
func (c *Config) RoomDefaults() domain.RoomOptions {
	return domain.RoomOptions{
		MaxVideoProducers: c.MaxVideoPerRoom,
		AllowObservers:    c.AllowObservers,
		MaxObservers:      c.MaxObservers,
	}
}

// ListenIPStrings returns the bind addresses for engine.Config.ListenIPs.
func (c *Config) ListenIPStrings() []string {
	out := make([]string, 0, len(c.SFUListenIPs))
	for _, l := range c.SFUListenIPs {
		out = append(out, l.IP)
	}
	return out
}
