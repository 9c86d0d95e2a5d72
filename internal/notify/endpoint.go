// Package notify fans alert lifecycle events out to configured webhook
// endpoints. Each endpoint gets a dedicated dispatcher goroutine so
// deliveries stay in enqueue order, a circuit breaker protecting the
// downstream sink, and an exponential-backoff retry policy. Every dispatch
// ends in an auditable outcome: delivered, failed, or short_circuited.
package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/alert"
)

// signatureHeader carries the hex HMAC-SHA256 of the request body.
const signatureHeader = "X-AstraShield-Signature"

// Endpoint types.
const (
	TypeSlack     = "slack"
	TypePagerDuty = "pagerduty"
	TypeEmail     = "email"
	TypeGeneric   = "generic"
)

// AuthSpec describes outbound request authentication for one endpoint.
type AuthSpec struct {
	// Kind is one of none, basic, bearer, api-key, hmac. Empty means none.
	Kind     string `yaml:"kind" json:"kind"`
	Username string `yaml:"username,omitempty" json:"-"`
	Password string `yaml:"password,omitempty" json:"-"`
	Token    string `yaml:"token,omitempty" json:"-"`
	// Header carries the api-key header name, defaulting to X-API-Key.
	Header string `yaml:"header,omitempty" json:"header,omitempty"`
	Key    string `yaml:"key,omitempty" json:"-"`
	Secret string `yaml:"secret,omitempty" json:"-"`
}

// apply sets the outbound auth headers for one request.
func (a AuthSpec) apply(req *http.Request, body []byte) {
	switch a.Kind {
	case "basic":
		req.SetBasicAuth(a.Username, a.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+a.Token)
	case "api-key":
		header := a.Header
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, a.Key)
	case "hmac":
		mac := hmac.New(sha256.New, []byte(a.Secret))
		mac.Write(body)
		req.Header.Set(signatureHeader, hex.EncodeToString(mac.Sum(nil)))
	}
}

func (a AuthSpec) validate() error {
	switch a.Kind {
	case "", "none":
	case "basic":
		if a.Username == "" {
			return fmt.Errorf("basic auth requires a username")
		}
	case "bearer":
		if a.Token == "" {
			return fmt.Errorf("bearer auth requires a token")
		}
	case "api-key":
		if a.Key == "" {
			return fmt.Errorf("api-key auth requires a key")
		}
	case "hmac":
		if a.Secret == "" {
			return fmt.Errorf("hmac auth requires a secret")
		}
	default:
		return fmt.Errorf("unknown auth kind %q", a.Kind)
	}
	return nil
}

// Filter selects which alert events an endpoint receives. Zero-valued
// fields match everything.
type Filter struct {
	RiskTiers    []string `yaml:"risk_tiers,omitempty" json:"risk_tiers,omitempty"`
	Priorities   []string `yaml:"priorities,omitempty" json:"priorities,omitempty"`
	SatelliteIDs []int    `yaml:"satellite_ids,omitempty" json:"satellite_ids,omitempty"`
	// MinDistanceKm is the endpoint's distance gate: events whose predicted
	// miss exceeds it are filtered out. Zero disables the gate.
	MinDistanceKm float64 `yaml:"min_distance_km,omitempty" json:"min_distance_km,omitempty"`
}

func (f Filter) matches(a alert.Alert) bool {
	if len(f.RiskTiers) > 0 && !containsString(f.RiskTiers, string(a.Assessment.Tier)) {
		return false
	}
	if len(f.Priorities) > 0 && !containsString(f.Priorities, string(a.Priority)) {
		return false
	}
	if len(f.SatelliteIDs) > 0 &&
		!containsInt(f.SatelliteIDs, a.Assessment.IDA) &&
		!containsInt(f.SatelliteIDs, a.Assessment.IDB) {
		return false
	}
	if f.MinDistanceKm > 0 && a.Assessment.MissKm > f.MinDistanceKm {
		return false
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, n := range list {
		if n == v {
			return true
		}
	}
	return false
}

// Duration wraps time.Duration so YAML configs can say "90s" or "5m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// RetryPolicy controls per-dispatch retry behavior.
type RetryPolicy struct {
	MaxAttempts int      `yaml:"max_attempts" json:"max_attempts"`
	BaseBackoff Duration `yaml:"base_backoff" json:"base_backoff"`
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = Duration(time.Second)
	}
	return p
}

// Endpoint is one configured notification sink.
type Endpoint struct {
	ID      string      `yaml:"id" json:"id"`
	Type    string      `yaml:"type" json:"type"`
	URL     string      `yaml:"url" json:"url"`
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Auth    AuthSpec    `yaml:"auth,omitempty" json:"auth"`
	Filters Filter      `yaml:"filters,omitempty" json:"filters"`
	Retry   RetryPolicy `yaml:"retry,omitempty" json:"retry"`

	// RoutingKey is the PagerDuty Events v2 integration key.
	RoutingKey string `yaml:"routing_key,omitempty" json:"-"`
	// To lists recipient addresses for email endpoints; the rendered
	// message is posted to the relay at URL.
	To []string `yaml:"to,omitempty" json:"to,omitempty"`
}

func (e Endpoint) validate() error {
	if e.ID == "" {
		return fmt.Errorf("endpoint missing id")
	}
	switch e.Type {
	case TypeSlack, TypePagerDuty, TypeEmail, TypeGeneric:
	default:
		return fmt.Errorf("endpoint %s: unknown type %q", e.ID, e.Type)
	}
	if e.URL == "" {
		return fmt.Errorf("endpoint %s: missing url", e.ID)
	}
	if e.Type == TypePagerDuty && e.RoutingKey == "" {
		return fmt.Errorf("endpoint %s: pagerduty requires routing_key", e.ID)
	}
	if err := e.Auth.validate(); err != nil {
		return fmt.Errorf("endpoint %s: %w", e.ID, err)
	}
	return nil
}

// Stats is the cumulative delivery record for one endpoint.
type Stats struct {
	Sent      uint64 `json:"sent"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	LastError string `json:"last_error,omitempty"`
}

type endpointsFile struct {
	Endpoints []Endpoint `yaml:"endpoints"`
}

// LoadEndpoints reads and validates an endpoint config file.
func LoadEndpoints(path string) ([]Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading endpoint config: %w", err)
	}
	return ParseEndpoints(data)
}

// ParseEndpoints decodes endpoint configs from YAML bytes.
func ParseEndpoints(data []byte) ([]Endpoint, error) {
	var file endpointsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing endpoint config: %w", err)
	}
	seen := make(map[string]bool, len(file.Endpoints))
	for i, ep := range file.Endpoints {
		if err := ep.validate(); err != nil {
			return nil, err
		}
		if seen[ep.ID] {
			return nil, fmt.Errorf("duplicate endpoint id %q", ep.ID)
		}
		seen[ep.ID] = true
		file.Endpoints[i].Retry = ep.Retry.withDefaults()
	}
	return file.Endpoints, nil
}
