package transport

import "time"

// Config holds configuration for the REST client.
type Config struct {
	// BaseURL is the service root, e.g. "http://localhost:8080".
	// The API lives under BaseURL + "/api".
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Timeout bounds each request. Stores never time out on their own.
	// Default: 30s
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`

	// RequestsPerSecond limits the outgoing request rate. Zero disables
	// limiting.
	RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND"`

	// Burst is the limiter bucket size.
	// Default: 1 when RequestsPerSecond is set
	Burst int `env:"BURST"`

	// UserAgent is sent with every request.
	UserAgent string `env:"USER_AGENT" envDefault:"canopy"`

	// AuthToken, when set, is sent as a bearer token.
	AuthToken string `env:"AUTH_TOKEN"`
}

// DefaultConfig returns a configuration for a local service.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:8080",
		Timeout:   30 * time.Second,
		UserAgent: "canopy",
	}
}

// validate fills in defaults for unset values.
func (c *Config) validate() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	for len(c.BaseURL) > 0 && c.BaseURL[len(c.BaseURL)-1] == '/' {
		c.BaseURL = c.BaseURL[:len(c.BaseURL)-1]
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond < 0 {
		c.RequestsPerSecond = 0
	}
	if c.RequestsPerSecond > 0 && c.Burst < 1 {
		c.Burst = 1
	}
	if c.UserAgent == "" {
		c.UserAgent = "canopy"
	}
}
