package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gossipcast/internal/gossip"
)

// EnvPrefix prefixes every environment variable read by Load, e.g.
// GOSSIPCAST_GOSSIP_PORT for gossip.port.
const EnvPrefix = "GOSSIPCAST"

// GossipConfig holds the multicast group and heartbeat settings.
type GossipConfig struct {
	GroupAddr   string        `mapstructure:"group_addr"`
	Port        int           `mapstructure:"port"`
	Interval    time.Duration `mapstructure:"interval"`
	Interface   string        `mapstructure:"interface"`
	Loopback    bool          `mapstructure:"loopback"`
	TTL         int           `mapstructure:"ttl"`
	MaxRestarts int           `mapstructure:"max_restarts"`
}

// TLSConfig enables TLS on the gRPC listener when both files are set.
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// Enabled reports whether either TLS file is set.
func (t TLSConfig) Enabled() bool { return t.CertFile != "" || t.KeyFile != "" }

// ServerConfig holds all the configuration for a node process.
type ServerConfig struct {
	NodeName    string       `mapstructure:"node_name"`
	Address     string       `mapstructure:"address"`
	LogLevel    string       `mapstructure:"log_level"`
	GrpcAddr    string       `mapstructure:"grpc_addr"`
	MetricsAddr string       `mapstructure:"metrics_addr"`
	TLS         TLSConfig    `mapstructure:"tls"`
	Gossip      GossipConfig `mapstructure:"gossip"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("node_name", "")
	v.SetDefault("address", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("grpc_addr", ":7946")
	v.SetDefault("metrics_addr", ":9446")
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("gossip.group_addr", gossip.DefaultGroupAddr)
	v.SetDefault("gossip.port", gossip.DefaultPort)
	v.SetDefault("gossip.interval", gossip.DefaultInterval)
	v.SetDefault("gossip.interface", "")
	v.SetDefault("gossip.loopback", true)
	v.SetDefault("gossip.ttl", gossip.DefaultTTL)
	v.SetDefault("gossip.max_restarts", 0)
}

// FlagKeys maps the flags added by RegisterFlags to configuration keys.
var FlagKeys = map[string]string{
	"node-name":    "node_name",
	"address":      "address",
	"log-level":    "log_level",
	"grpc-addr":    "grpc_addr",
	"metrics-addr": "metrics_addr",
	"group":        "gossip.group_addr",
	"port":         "gossip.port",
	"interval":     "gossip.interval",
	"interface":    "gossip.interface",
	"loopback":     "gossip.loopback",
	"ttl":          "gossip.ttl",
	"max-restarts": "gossip.max_restarts",
}

// RegisterFlags adds the node flags to fs. Flags only override the file and
// environment when set explicitly.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("node-name", "", "name advertised to the cluster (default: hostname)")
	fs.String("address", "", "IPv4 address to advertise (default: first non-loopback interface address)")
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	fs.String("grpc-addr", ":7946", "listen address of the membership gRPC service")
	fs.String("metrics-addr", ":9446", "listen address of /metrics and /healthz, empty to disable")
	fs.String("group", gossip.DefaultGroupAddr, "IPv4 multicast group")
	fs.Int("port", gossip.DefaultPort, "UDP port of the multicast group")
	fs.Duration("interval", gossip.DefaultInterval, "heartbeat interval")
	fs.String("interface", "", "network interface to join the group on")
	fs.Bool("loopback", true, "receive heartbeats sent from this host")
	fs.Int("ttl", gossip.DefaultTTL, "multicast TTL of outgoing heartbeats")
	fs.Int("max-restarts", 0, "times a failed node rejoins the group before giving up")
}

// Load reads the configuration from, in increasing precedence: defaults, the
// file at path (skipped when path is empty), GOSSIPCAST_* environment
// variables and the flags in fs that were explicitly set.
func Load(path string, fs *pflag.FlagSet) (ServerConfig, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg ServerConfig
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, errors.Wrapf(err, "read config %s", path)
		}
	}
	if fs != nil {
		for name, key := range FlagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return cfg, errors.Wrapf(err, "bind flag --%s", name)
			}
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}
	if cfg.NodeName == "" {
		host, err := os.Hostname()
		if err != nil {
			return cfg, errors.Wrap(err, "node_name not set and hostname unavailable")
		}
		cfg.NodeName = host
	}
	return cfg, cfg.Validate()
}

// Validate checks the values Load cannot type-check.
func (c ServerConfig) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(gossip.ErrInvalidConfig, "log_level: %v", err)
	}
	if c.Gossip.Interval <= 0 {
		return errors.Wrapf(gossip.ErrInvalidConfig, "gossip.interval %s must be positive", c.Gossip.Interval)
	}
	if c.Gossip.MaxRestarts < 0 {
		return errors.Wrapf(gossip.ErrInvalidConfig, "gossip.max_restarts %d must not be negative", c.Gossip.MaxRestarts)
	}
	if c.Gossip.TTL < 0 || c.Gossip.TTL > 255 {
		return errors.Wrapf(gossip.ErrInvalidConfig, "gossip.ttl %d out of range", c.Gossip.TTL)
	}
	if c.TLS.Enabled() && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return errors.Wrap(gossip.ErrInvalidConfig, "tls needs both cert_file and key_file")
	}
	if _, err := c.Group().UDPAddr(); err != nil {
		return err
	}
	return gossip.Identity{ID: c.NodeName, Address: orPlaceholder(c.Address)}.Validate()
}

// Group converts the gossip section into the group settings of a node.
func (c ServerConfig) Group() gossip.GroupConfig {
	return gossip.GroupConfig{
		Addr:            c.Gossip.GroupAddr,
		Port:            c.Gossip.Port,
		Interface:       c.Gossip.Interface,
		DisableLoopback: !c.Gossip.Loopback,
		TTL:             c.Gossip.TTL,
	}
}

// NodeConfig converts the configuration into the settings of a gossip node.
// Join, Resolver and Observer are left for the caller.
func (c ServerConfig) NodeConfig() gossip.Config {
	return gossip.Config{
		ID:          c.NodeName,
		Address:     c.Address,
		Group:       c.Group(),
		Interval:    c.Gossip.Interval,
		MaxRestarts: c.Gossip.MaxRestarts,
	}
}

// orPlaceholder lets Validate check the node name before the address is
// resolved.
func orPlaceholder(addr string) string {
	if addr == "" {
		return "0.0.0.0"
	}
	return addr
}
