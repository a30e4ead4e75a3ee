package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcpatch-go/mcpatch/internal/mcerror"
)

// HTTPHeader is a single custom request header, kept as an ordered pair
// (rather than a map) since original_source's http_headers is itself an
// ordered `Vec<(String, String)>`.
type HTTPHeader struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// ClientConfig is the client's mcpatch-client.yml. Grounded on
// mcpatch-client/src/global_config.rs's GlobalConfig; the desktop-specific
// fields (window_title, silent_mode, show_finish_message) are dropped since
// the GUI is out of scope per spec §1, and base_path's ".minecraft" auto-
// search is replaced by a plain directory value per SPEC_FULL's decision to
// drop that product-specific behavior.
type ClientConfig struct {
	// Urls lists fetch-layer sources in priority order: http(s)://,
	// webdav(s)://, mcpatch://, or a bare host for the Alist resolver.
	Urls []string `yaml:"urls"`
	// BaseDir is the directory updates are applied under.
	BaseDir string `yaml:"base-dir"`
	// VersionFilePath records the currently installed version label,
	// relative to BaseDir unless absolute.
	VersionFilePath string `yaml:"version-file-path"`
	// AllowError lets the pipeline's caller continue past a failed update
	// instead of treating it as fatal.
	AllowError bool `yaml:"allow-error"`
	// PrivateTimeout is the mcpatch:// protocol's read/write timeout in
	// milliseconds.
	PrivateTimeout uint32 `yaml:"private-timeout"`
	// HTTPHeaders are sent with every HTTP/WebDAV/Alist request.
	HTTPHeaders []HTTPHeader `yaml:"http-headers"`
	// HTTPTimeout is the HTTP/WebDAV connect-and-read timeout in
	// milliseconds.
	HTTPTimeout uint32 `yaml:"http-timeout"`
	// HTTPRetries is the number of retries attempted within a single
	// source before the fetch layer advances to the next one.
	HTTPRetries uint8 `yaml:"http-retries"`
	// HTTPIgnoreCertificate disables TLS certificate verification.
	HTTPIgnoreCertificate bool `yaml:"http-ignore-certificate"`
}

// DefaultClientConfig returns the client's configuration defaults, mirroring
// the #[default_value(...)] annotations on GlobalConfig.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Urls:            []string{"mcpatch://127.0.0.1:6700"},
		BaseDir:         ".",
		VersionFilePath: "version-label.txt",
		AllowError:      false,
		PrivateTimeout:  7000,
		HTTPTimeout:     5000,
		HTTPRetries:     3,
	}
}

// LoadClientConfig reads and parses path, filling any field absent from the
// file with DefaultClientConfig's value.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, mcerror.Wrap(err, mcerror.KindConfigMissing, "client config %q not found", path)
	} else if err != nil {
		return nil, mcerror.Wrap(err, mcerror.KindConfigInvalid, "reading client config %q", path)
	}

	cfg := DefaultClientConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, mcerror.Wrap(err, mcerror.KindConfigInvalid, "parsing client config %q", path)
	}
	if len(cfg.Urls) == 0 {
		return nil, mcerror.New(mcerror.KindConfigInvalid, "client config %q: urls must not be empty", path)
	}

	return &cfg, nil
}
