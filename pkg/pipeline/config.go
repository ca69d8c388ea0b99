package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/AuthScope/internal/browser"
)

// Config holds all pipeline configuration.
type Config struct {
	// Target URL to discover against
	Target string `json:"target" yaml:"target"`

	// LoginURL skips the location strategies when set
	LoginURL string `json:"login_url,omitempty" yaml:"login_url,omitempty"`

	// Credentials used for the scripted login
	Credentials Credentials `json:"credentials" yaml:"credentials"`

	// Browser configuration
	Browser browser.Config `json:"browser" yaml:"browser"`

	// HTTP client configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Endpoint probing configuration
	Probe ProbeConfig `json:"probe" yaml:"probe"`

	// Output configuration
	Output OutputConfig `json:"output" yaml:"output"`

	// StorePath enables the persistent endpoint store when non-empty
	StorePath string `json:"store_path" yaml:"store_path"`

	// LogLevel: debug, info, warn, error
	LogLevel string `json:"log_level" yaml:"log_level"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// Credentials are the test-account credentials submitted through the login
// form. Discovery needs a working account; it never brute-forces.
type Credentials struct {
	Identity string `json:"identity" yaml:"identity"`
	Password string `json:"password" yaml:"password"`
}

// HTTPConfig configures the shared HTTP client. Headers and Cookies are
// applied to browser traffic and endpoint probes alike, so a scan marker
// header or a consent cookie reaches the target on every request.
type HTTPConfig struct {
	Timeout       time.Duration     `json:"timeout" yaml:"timeout"`
	SkipTLSVerify bool              `json:"skip_tls_verify" yaml:"skip_tls_verify"`
	UserAgent     string            `json:"user_agent" yaml:"user_agent"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Cookies       map[string]string `json:"cookies,omitempty" yaml:"cookies,omitempty"`
}

// SeedCookies converts the configured cookie pairs for client and browser
// session seeding.
func (c *Config) SeedCookies() []*http.Cookie {
	if len(c.HTTP.Cookies) == 0 {
		return nil
	}
	cookies := make([]*http.Cookie, 0, len(c.HTTP.Cookies))
	for name, value := range c.HTTP.Cookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	return cookies
}

// ProbeConfig configures the endpoint prober.
type ProbeConfig struct {
	Workers           int           `json:"workers" yaml:"workers"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `json:"burst" yaml:"burst"`
}

// OutputConfig configures result output.
type OutputConfig struct {
	Format   string `json:"format" yaml:"format"`
	Pretty   bool   `json:"pretty" yaml:"pretty"`
	FilePath string `json:"file_path" yaml:"file_path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Browser: browser.DefaultConfig(),
		HTTP: HTTPConfig{
			Timeout:       10 * time.Second,
			SkipTLSVerify: true,
		},
		Probe: ProbeConfig{
			Workers: 20,
			Timeout: 5 * time.Second,
			Burst:   10,
		},
		Output: OutputConfig{
			Format: "json",
			Pretty: true,
		},
		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a file (YAML or JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("target URL is required")
	}

	if c.Credentials.Identity == "" || c.Credentials.Password == "" {
		return fmt.Errorf("login credentials are required")
	}

	if c.Probe.Workers < 1 {
		return fmt.Errorf("probe workers must be at least 1")
	}

	if c.Probe.RequestsPerSecond < 0 {
		return fmt.Errorf("probe rate must not be negative")
	}

	return nil
}
