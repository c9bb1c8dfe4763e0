package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Protocols accepted by Config.Protocol.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config controls the OTLP export.
type Config struct {
	Enabled  bool
	Endpoint string
	Protocol string
	Insecure bool
	// CAFile verifies a collector whose certificate is not signed by a
	// system root.
	CAFile         string
	ServiceName    string
	ServiceVersion string

	// SamplingRate is the share of root decisions traced, from 0 to 1.
	SamplingRate    float64
	MetricsInterval time.Duration
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns a disabled config pointing at a local collector.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:        "localhost:4317",
		Protocol:        ProtocolGRPC,
		Insecure:        true,
		ServiceName:     "refundd",
		ServiceVersion:  "dev",
		SamplingRate:    1,
		MetricsInterval: 15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate reports every problem with an enabled config. A disabled
// config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	} else if c.Insecure && !loopback(c.Endpoint) {
		errs = append(errs, fmt.Errorf("insecure export is limited to loopback collectors, got %q", c.Endpoint))
	}
	if c.Insecure && c.CAFile != "" {
		errs = append(errs, errors.New("ca file cannot be combined with insecure export"))
	}
	if c.ServiceName == "" {
		errs = append(errs, errors.New("service name is required"))
	}
	switch c.Protocol {
	case "", ProtocolGRPC, ProtocolHTTP:
	default:
		errs = append(errs, fmt.Errorf("protocol must be %s or %s, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol))
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("sampling rate must be within [0, 1], got %g", c.SamplingRate))
	}
	if c.MetricsInterval <= 0 {
		errs = append(errs, errors.New("metrics interval must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	return errors.Join(errs...)
}

// loopback reports whether endpoint, with or without scheme and port,
// names the local host.
func loopback(endpoint string) bool {
	host := stripScheme(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func stripScheme(endpoint string) string {
	if i := strings.Index(endpoint, "://"); i >= 0 {
		return endpoint[i+3:]
	}
	return endpoint
}
