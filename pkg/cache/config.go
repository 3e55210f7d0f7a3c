package cache

import "time"

// RedisOption configures the Redis layer.
type RedisOption func(*RedisConfig)

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	DialTimeout  time.Duration
	IOTimeout    time.Duration
	Prefix       string
}

func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 5,
		PoolTimeout:  30 * time.Second,
		DialTimeout:  5 * time.Second,
		IOTimeout:    3 * time.Second,
		Prefix:       "orblab",
	}
}

// WithRedisAddr sets host and port.
func WithRedisAddr(host string, port int) RedisOption {
	return func(c *RedisConfig) {
		if host != "" && port > 0 {
			c.Addr = joinHostPort(host, port)
		}
	}
}

// WithRedisAuth sets the password and database number.
func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
		c.DB = db
	}
}

// WithRedisPool sets connection pool settings.
func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		if size > 0 {
			c.PoolSize = size
		}
		c.MinIdleConns = minIdle
		if timeout > 0 {
			c.PoolTimeout = timeout
		}
	}
}

// WithRedisTimeouts sets the dial and read/write timeouts.
func WithRedisTimeouts(dial, io time.Duration) RedisOption {
	return func(c *RedisConfig) {
		if dial > 0 {
			c.DialTimeout = dial
		}
		if io > 0 {
			c.IOTimeout = io
		}
	}
}

// WithRedisPrefix namespaces every key.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		if prefix != "" {
			c.Prefix = prefix
		}
	}
}

// MemoryOption configures MemoryCache.
type MemoryOption func(*MemoryConfig)

type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

// WithMemoryMaxSize bounds the entry count; the least recently used entry
// goes first.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		c.MaxSize = size
	}
}

// WithMemoryCleanup sets how often expired entries are swept.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) {
		c.CleanupInterval = interval
	}
}

// LayeredOption configures LayeredCache.
type LayeredOption func(*LayeredConfig)

type LayeredConfig struct {
	MemoryMaxSize int
	MemoryTTL     time.Duration
}

// WithLayeredMemory sizes the in-process layer and caps how long it keeps
// an entry.
func WithLayeredMemory(size int, ttl time.Duration) LayeredOption {
	return func(c *LayeredConfig) {
		if size > 0 {
			c.MemoryMaxSize = size
		}
		if ttl > 0 {
			c.MemoryTTL = ttl
		}
	}
}
