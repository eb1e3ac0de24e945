package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Webhook     WebhookConfig
	OrderSvc    OrderServiceConfig
	Audit       AuditConfig
	Service     ServiceConfig
}

type ServerConfig struct {
	Port int
	// TrustProxyHeaders enables client-IP resolution from X-Real-IP /
	// X-Forwarded-For. Disable for direct (non-proxied) deployments so the
	// IP allowlist cannot be bypassed with a forged header.
	TrustProxyHeaders bool
}

type DatabaseConfig struct {
	Path string
}

type WebhookConfig struct {
	Secret          string
	AllowedIPs      []string
	TimestampCheck  bool
	TimestampMaxAge int
}

type OrderServiceConfig struct {
	URL       string
	APIKey    string
	TimeoutMS int
}

type AuditConfig struct {
	BufferSize int
	FlushMS    int
}

type ServiceConfig struct {
	Name    string
	Version string
}

func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ipn_env", "")
	v.SetDefault("app_env", "")
	v.SetDefault("go_env", "")
	v.SetDefault("ipn_port", 8080)
	v.SetDefault("ipn_trust_proxy_headers", true)
	v.SetDefault("ipn_db_path", "data/ipn")
	v.SetDefault("ipn_webhook_secret", "")
	v.SetDefault("ipn_allowed_ips", "")
	v.SetDefault("ipn_timestamp_check", true)
	v.SetDefault("ipn_timestamp_max_age", 300)
	v.SetDefault("ipn_order_service_url", "")
	v.SetDefault("ipn_order_service_api_key", "")
	v.SetDefault("ipn_order_service_timeout_ms", 10000)
	v.SetDefault("ipn_audit_buffer_size", 100)
	v.SetDefault("ipn_audit_flush_ms", 30000)
	v.SetDefault("ipn_service_name", "ipn-gateway")
	v.SetDefault("ipn_version", "dev")

	env := resolveEnvironment(v)
	port := v.GetInt("ipn_port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid IPN_PORT: %d", port)
	}

	maxAge := v.GetInt("ipn_timestamp_max_age")
	if maxAge <= 0 {
		maxAge = 300
	}

	timeoutMS := v.GetInt("ipn_order_service_timeout_ms")
	if timeoutMS <= 0 {
		timeoutMS = 10000
	}
	if timeoutMS > 60000 {
		timeoutMS = 60000
	}

	bufferSize := v.GetInt("ipn_audit_buffer_size")
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if bufferSize > 2000 {
		bufferSize = 2000
	}

	flushMS := v.GetInt("ipn_audit_flush_ms")
	if flushMS <= 0 {
		flushMS = 30000
	}
	if flushMS > 300000 {
		flushMS = 300000
	}

	cfg := Config{
		Environment: env,
		Server: ServerConfig{
			Port:              port,
			TrustProxyHeaders: v.GetBool("ipn_trust_proxy_headers"),
		},
		Database: DatabaseConfig{
			Path: strings.TrimSpace(v.GetString("ipn_db_path")),
		},
		Webhook: WebhookConfig{
			Secret:          strings.TrimSpace(v.GetString("ipn_webhook_secret")),
			AllowedIPs:      splitList(v.GetString("ipn_allowed_ips")),
			TimestampCheck:  v.GetBool("ipn_timestamp_check"),
			TimestampMaxAge: maxAge,
		},
		OrderSvc: OrderServiceConfig{
			URL:       strings.TrimSpace(v.GetString("ipn_order_service_url")),
			APIKey:    strings.TrimSpace(v.GetString("ipn_order_service_api_key")),
			TimeoutMS: timeoutMS,
		},
		Audit: AuditConfig{
			BufferSize: bufferSize,
			FlushMS:    flushMS,
		},
		Service: ServiceConfig{
			Name:    strings.TrimSpace(v.GetString("ipn_service_name")),
			Version: strings.TrimSpace(v.GetString("ipn_version")),
		},
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/ipn"
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = "ipn-gateway"
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = "dev"
	}
	if !cfg.IsLocalDevelopment() && cfg.OrderSvc.URL == "" {
		return Config{}, fmt.Errorf("IPN_ORDER_SERVICE_URL is required outside local/dev environments")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c Config) IsLocalDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "", "local", "dev", "development", "test":
		return true
	default:
		return false
	}
}

// OrderServiceTimeout is the bound on one downstream call.
func (c Config) OrderServiceTimeout() time.Duration {
	return time.Duration(c.OrderSvc.TimeoutMS) * time.Millisecond
}

// AuditFlushInterval is the periodic audit flush cadence.
func (c Config) AuditFlushInterval() time.Duration {
	return time.Duration(c.Audit.FlushMS) * time.Millisecond
}

// TimestampMaxAge is the anti-replay freshness bound.
func (c Config) TimestampMaxAge() time.Duration {
	return time.Duration(c.Webhook.TimestampMaxAge) * time.Second
}

func resolveEnvironment(v *viper.Viper) string {
	for _, key := range []string{"ipn_env", "app_env", "go_env"} {
		value := strings.TrimSpace(v.GetString(key))
		if value != "" {
			return strings.ToLower(value)
		}
	}
	return ""
}
