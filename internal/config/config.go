package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Duration is a time.Duration that unmarshals from either a JSON number of
// nanoseconds or a string in time.ParseDuration form, such as "30s".
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration: %s", data)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config holds the server configuration. Values are loaded from an optional
// JSON file and may be overridden by command-line flags in cmd/gdaserver.
type Config struct {
	// SSHPort is the listen port for the SSH shell server. Zero disables
	// the listener.
	SSHPort int `json:"ssh_port"`

	// TelnetPort is the listen port for the telnet shell server. Zero
	// disables the listener.
	TelnetPort int `json:"telnet_port"`

	// WebsocketPort is the listen port for the websocket terminal server.
	// Zero disables the listener.
	WebsocketPort int `json:"websocket_port"`

	// KeysDir is the directory holding <username>.pub authorized-key
	// files. An empty value puts the credential store into permissive
	// mode: every connection is accepted.
	KeysDir string `json:"keys_dir"`

	// Beamline names the beamline subdirectory tried under KeysDir when
	// no top-level key file exists for a user.
	Beamline string `json:"beamline"`

	// WatchKeys enables invalidation of cached credentials when key files
	// under KeysDir change on disk. Off by default: cached credentials
	// otherwise live for the server process lifetime.
	WatchKeys bool `json:"watch_keys"`

	// HostKeyPath is where the SSH host key lives. A missing file is
	// replaced by a freshly generated ed25519 key on first start.
	HostKeyPath string `json:"host_key_path"`

	// HistoryFile is the shared command-history file for interactive
	// sessions. One file per session type, shared across reconnects.
	HistoryFile string `json:"history_file"`

	// Interpreter is the command used to start the shared interpreter
	// process (e.g. "python3"). Empty selects the built-in static
	// interpreter, which checks and records statements but executes
	// nothing.
	Interpreter string `json:"interpreter"`

	// AuditDB is the path of the SQLite command-audit database. Empty
	// disables auditing.
	AuditDB string `json:"audit_db"`

	// PidFile guards against a second server instance sharing the state
	// directory. Empty disables the guard.
	PidFile string `json:"pid_file"`

	// Aliases are console command names translated into calls before
	// submission, so "inc motor 0.1" runs inc(motor, 0.1). Names listed
	// here require at least one argument.
	Aliases []string `json:"aliases"`

	// VarargAliases are aliases that may also be called bare: "pos"
	// alone runs pos().
	VarargAliases []string `json:"vararg_aliases"`

	// ReadTimeout bounds how long a connection may sit idle in a read.
	// Zero (the default) means no timeout; dead connections are instead
	// detected through write failures. Accepts "30s" style strings.
	ReadTimeout Duration `json:"read_timeout"`

	// LogLevel is one of debug, info, warn, error, none.
	LogLevel string `json:"log_level"`

	// LogPath is the log file path. Empty logs to stderr.
	LogPath string `json:"log_path"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	home, _ := os.UserHomeDir()
	stateDir := filepath.Join(home, ".gdaserver")
	return &Config{
		SSHPort:     2222,
		TelnetPort:  0,
		HostKeyPath: filepath.Join(stateDir, "host_key"),
		HistoryFile: filepath.Join(stateDir, "command_history"),
		PidFile:     filepath.Join(stateDir, "gdaserver.pid"),
		AuditDB:     "",
		LogLevel:    "info",

		Aliases:       []string{"inc", "level", "run", "scan", "watch"},
		VarargAliases: []string{"pos", "list"},
	}
}

// Load reads configuration from the given JSON file, filling unset fields
// with defaults. A missing file is not an error and yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	for _, p := range []struct {
		name string
		port int
	}{
		{"ssh_port", c.SSHPort},
		{"telnet_port", c.TelnetPort},
		{"websocket_port", c.WebsocketPort},
	} {
		if p.port < 0 || p.port > 65535 {
			return fmt.Errorf("invalid %s: %d", p.name, p.port)
		}
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid read_timeout: %s", c.ReadTimeout)
	}
	return nil
}
