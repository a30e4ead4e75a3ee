// Package config loads the manager's and client's YAML configuration files.
// Grounded on the teacher's pkg/compose/internal/configuration.Load (a plain
// gopkg.in/yaml.v3 decode into a tagged struct) and, for field names and
// defaults, on original_source's manager/src/config/*.rs and
// mcpatch-client/src/global_config.rs.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcpatch-go/mcpatch/internal/mcerror"
)

// BuiltinServerConfig configures the manager's optional private-protocol TCP
// server. Grounded on manager/src/config/builtin_server_config.rs.
type BuiltinServerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen-addr"`
	ListenPort uint16 `yaml:"listen-port"`
	// Capacity is the token bucket's burst capacity in bytes; 0 disables
	// rate limiting.
	Capacity uint32 `yaml:"capacity"`
	// Regain is the token bucket's refill rate in bytes/second; 0 disables
	// rate limiting.
	Regain uint32 `yaml:"regain"`
}

// ManagerConfig is the manager's mcpatch-manager.yml. Grounded on
// manager/src/config/core_config.rs merged with builtin_server_config.rs;
// webui/auth/upload/s3 sections are dropped as out of scope per spec §1.
type ManagerConfig struct {
	// WorkspaceDir is the directory packed into new versions.
	WorkspaceDir string `yaml:"workspace-dir"`
	// PublicDir holds the containers and index file served to clients.
	PublicDir string `yaml:"public-dir"`
	// ExcludeRules are regex patterns; a path matching any is ignored by
	// pack.
	ExcludeRules []string `yaml:"exclude-rules"`
	// BuiltinServer configures `mcpatch serve`.
	BuiltinServer BuiltinServerConfig `yaml:"builtin-server"`
}

// DefaultManagerConfig returns the manager's configuration defaults,
// mirroring BuiltinServerConfig::default() in the original.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		WorkspaceDir: "workspace",
		PublicDir:    "public",
		BuiltinServer: BuiltinServerConfig{
			Enabled:    true,
			ListenAddr: "0.0.0.0",
			ListenPort: 6700,
		},
	}
}

// LoadManagerConfig reads and parses path, filling any field absent from the
// file with DefaultManagerConfig's value.
func LoadManagerConfig(path string) (*ManagerConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, mcerror.Wrap(err, mcerror.KindConfigMissing, "manager config %q not found", path)
	} else if err != nil {
		return nil, mcerror.Wrap(err, mcerror.KindConfigInvalid, "reading manager config %q", path)
	}

	cfg := DefaultManagerConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, mcerror.Wrap(err, mcerror.KindConfigInvalid, "parsing manager config %q", path)
	}

	return &cfg, nil
}
