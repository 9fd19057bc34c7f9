package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	_ "github.com/joho/godotenv/autoload" // Auto-load .env file
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/proxy"
)

const (
	AppName   = "video-relay"
	EnvPrefix = "VIDEO_RELAY"

	// MaxCacheTTL bounds cached metadata: stream URLs embedded in a cached
	// video expire upstream after a few hours, selectors must die first.
	MaxCacheTTL = 30 * time.Minute

	// FallbackContentType is used when an encoding declares no MIME type
	FallbackContentType = "video/mp4"

	// FallbackFilename is used when a title sanitizes to nothing
	FallbackFilename = "video"

	// FirstChunkSize is how much the relay reads before committing headers
	FirstChunkSize = 32 * 1024

	// RequestIDLength for nanoid request ids
	RequestIDLength = 16

	// AllowMethods lists the methods the API answers
	AllowMethods = "GET,POST,OPTIONS"
	AllowHeaders = "Content-Type,Accept"
)

// Configuration keys
const (
	KeyPort               = "server.port"
	KeyAllowOrigins       = "server.allow_origins"
	KeyExtractTimeout     = "extract.timeout"
	KeyStreamSetupTimeout = "relay.setup_timeout"
	KeyStreamIdleTimeout  = "relay.idle_timeout"
	KeyProgressRetention  = "relay.progress_retention"
	KeyBufferSize         = "relay.buffer_size"
	KeyStreamRateLimit    = "relay.rate_limit"
	KeyProxyAddr          = "proxy.addr"
	KeyCacheBackend       = "cache.backend"
	KeyCacheTTL           = "cache.ttl"
	KeyCacheRedisAddr     = "cache.redis_addr"
	KeyCachePrune         = "cache.prune_interval"
	KeyLogLevel           = "log.level"
	KeyLogJSON            = "log.json"
)

// Cache backends
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Defaults, keyed like the viper keys above
var Defaults = map[string]any{
	KeyPort:               5001,
	KeyAllowOrigins:       "*",
	KeyExtractTimeout:     15 * time.Second,
	KeyStreamSetupTimeout: 30 * time.Second,
	KeyStreamIdleTimeout:  60 * time.Second, // 0 disables
	KeyProgressRetention:  5 * time.Minute,
	KeyBufferSize:         64 * 1024, // 64KB
	KeyStreamRateLimit:    0,         // bytes per second, 0 = unlimited
	KeyProxyAddr:          "",
	KeyCacheBackend:       CacheNone,
	KeyCacheTTL:           10 * time.Minute,
	KeyCacheRedisAddr:     "127.0.0.1:6379",
	KeyCachePrune:         "*/5 * * * *",
	KeyLogLevel:           "info",
	KeyLogJSON:            false,
}

// EnvKeyReplacer maps "relay.rate_limit" to VIDEO_RELAY_RELAY_RATE_LIMIT
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Settings is the resolved runtime configuration
type Settings struct {
	Port               int
	AllowOrigins       string
	ExtractTimeout     time.Duration
	StreamSetupTimeout time.Duration
	StreamIdleTimeout  time.Duration
	ProgressRetention  time.Duration
	BufferSize         int
	StreamRateLimit    int
	ProxyAddr          string
	CacheBackend       string
	CacheTTL           time.Duration
	CacheRedisAddr     string
	CachePruneInterval string
	LogLevel           string
	LogJSON            bool

	clientsOnce    sync.Once
	extractClient  *http.Client
	downloadClient *http.Client
}

// Setup registers defaults, environment bindings and the optional config file.
func Setup(v *viper.Viper) error {
	v.SetConfigName(AppName)
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()

	for key, value := range Defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load reads Settings out of v and validates them
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		Port:               v.GetInt(KeyPort),
		AllowOrigins:       v.GetString(KeyAllowOrigins),
		ExtractTimeout:     v.GetDuration(KeyExtractTimeout),
		StreamSetupTimeout: v.GetDuration(KeyStreamSetupTimeout),
		StreamIdleTimeout:  v.GetDuration(KeyStreamIdleTimeout),
		ProgressRetention:  v.GetDuration(KeyProgressRetention),
		BufferSize:         v.GetInt(KeyBufferSize),
		StreamRateLimit:    v.GetInt(KeyStreamRateLimit),
		ProxyAddr:          strings.TrimSpace(v.GetString(KeyProxyAddr)),
		CacheBackend:       strings.ToLower(strings.TrimSpace(v.GetString(KeyCacheBackend))),
		CacheTTL:           v.GetDuration(KeyCacheTTL),
		CacheRedisAddr:     v.GetString(KeyCacheRedisAddr),
		CachePruneInterval: v.GetString(KeyCachePrune),
		LogLevel:           v.GetString(KeyLogLevel),
		LogJSON:            v.GetBool(KeyLogJSON),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks ranges and clamps the cache TTL
func (s *Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("%s: invalid port %d", KeyPort, s.Port)
	}
	if s.ExtractTimeout <= 0 {
		return fmt.Errorf("%s: must be positive", KeyExtractTimeout)
	}
	if s.StreamSetupTimeout <= 0 {
		return fmt.Errorf("%s: must be positive", KeyStreamSetupTimeout)
	}
	if s.StreamIdleTimeout < 0 {
		return fmt.Errorf("%s: must be >= 0", KeyStreamIdleTimeout)
	}
	if s.ProgressRetention < 0 {
		return fmt.Errorf("%s: must be >= 0", KeyProgressRetention)
	}
	if s.BufferSize < 4*1024 {
		return fmt.Errorf("%s: must be at least 4096 bytes", KeyBufferSize)
	}
	if s.StreamRateLimit < 0 {
		return fmt.Errorf("%s: must be >= 0", KeyStreamRateLimit)
	}

	switch s.CacheBackend {
	case "", CacheNone:
		s.CacheBackend = CacheNone
	case CacheMemory:
		if _, err := cron.ParseStandard(s.CachePruneInterval); err != nil {
			return fmt.Errorf("%s: %w", KeyCachePrune, err)
		}
	case CacheRedis:
		if s.CacheRedisAddr == "" {
			return fmt.Errorf("%s: required for redis cache", KeyCacheRedisAddr)
		}
	default:
		return fmt.Errorf("%s: unknown backend %q", KeyCacheBackend, s.CacheBackend)
	}

	if s.CacheBackend != CacheNone {
		if s.CacheTTL <= 0 {
			return fmt.Errorf("%s: must be positive when caching is enabled", KeyCacheTTL)
		}
		if s.CacheTTL > MaxCacheTTL {
			s.CacheTTL = MaxCacheTTL
		}
	}
	return nil
}

// ExtractClient is used for metadata lookups; the whole call is bounded by ExtractTimeout.
func (s *Settings) ExtractClient() *http.Client {
	s.initClients()
	return s.extractClient
}

// DownloadClient is used for media streams. It has no overall timeout since
// a transfer lasts as long as the caller keeps reading; only the wait for
// response headers is bounded.
func (s *Settings) DownloadClient() *http.Client {
	s.initClients()
	return s.downloadClient
}

func (s *Settings) initClients() {
	s.clientsOnce.Do(func() {
		extractTransport := s.newTransport()

		// No gzip for downloads, bytes are relayed untouched
		downloadTransport := s.newTransport()
		downloadTransport.DisableCompression = true
		downloadTransport.ResponseHeaderTimeout = s.StreamSetupTimeout

		s.extractClient = &http.Client{
			Transport: otelhttp.NewTransport(extractTransport),
			Timeout:   s.ExtractTimeout,
		}
		s.downloadClient = &http.Client{
			Transport: otelhttp.NewTransport(downloadTransport),
		}
	})
}

func (s *Settings) newTransport() *http.Transport {
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if s.ProxyAddr != "" {
		addr := s.ProxyAddr
		t.Proxy = nil
		t.DialContext = func(ctx context.Context, network, target string) (net.Conn, error) {
			dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
			if err != nil {
				return nil, err
			}
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, target)
			}
			return dialer.Dial(network, target)
		}
	}
	return t
}
