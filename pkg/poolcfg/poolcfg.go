// Package poolcfg defines the configuration model for a single managed
// connection pool. A PoolConfig describes one physical data source (one
// logical database instance) and the sizing/validation policy applied to
// its pool.
package poolcfg

import (
	"fmt"
	"strconv"
	"time"
)

// PoolConfig is the configuration for a single named pool, matching the
// options recognized in spec §3.
type PoolConfig struct {
	// Name uniquely identifies this pool within the process.
	Name string `yaml:"name"`

	// Driver/Host/Port/Database/Username/Password feed the data-source
	// factory's DSN builder. This is deliberately thin glue — the pool
	// manager never parses or interprets the DSN itself.
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// CorePoolSize is the number of connections pre-opened at init (>= 0).
	CorePoolSize int `yaml:"core_pool_size"`

	// MaxPoolSize is the hard ceiling on pool population (>= CorePoolSize).
	MaxPoolSize int `yaml:"max_pool_size"`

	// AcquireIncrement is the batch size used to grow the pool on demand.
	AcquireIncrement int `yaml:"acquire_increment"`

	// AcquireRetryTimes is the number of retries attempted before a
	// connect failure is surfaced to the caller.
	AcquireRetryTimes int `yaml:"acquire_retry_times"`

	// FailFastOnExhaustion selects fail-fast (true) vs block-and-wake
	// (false) behavior when the pool is exhausted. Corresponds to the
	// spec's `useless_connection_exception`.
	FailFastOnExhaustion bool `yaml:"fail_fast_on_exhaustion"`

	// QueueTimeout bounds how long an acquire may block waiting for a
	// released connection when FailFastOnExhaustion is false.
	QueueTimeout time.Duration `yaml:"queue_timeout"`

	// TestTableName/TestQuerySQL/TestCreateSQL configure the optional
	// liveness probe used by TestBeforeUse and the maintenance scheduler's
	// keepalive pass.
	TestTableName string `yaml:"test_table_name"`
	TestQuerySQL  string `yaml:"test_query_sql"`
	TestCreateSQL string `yaml:"test_create_sql"`

	// TestBeforeUse, when true, validates a proxy on every acquire;
	// unhealthy proxies are destroyed and replaced.
	TestBeforeUse bool `yaml:"test_before_use"`

	// LimitIdleTime is the idle duration beyond which a proxy becomes
	// eligible for eviction, down to CorePoolSize.
	LimitIdleTime time.Duration `yaml:"limit_idle_time"`

	// ConnectTimeout bounds a single physical connect attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Validate checks the mandatory fields and internal consistency of a
// single pool's configuration.
func (c *PoolConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("pool: name is required")
	}
	if c.Host == "" {
		return fmt.Errorf("pool %s: host is required", c.Name)
	}
	if c.Port == 0 {
		return fmt.Errorf("pool %s: port is required", c.Name)
	}
	if c.MaxPoolSize <= 0 {
		return fmt.Errorf("pool %s: max_pool_size must be > 0", c.Name)
	}
	if c.CorePoolSize < 0 {
		return fmt.Errorf("pool %s: core_pool_size must be >= 0", c.Name)
	}
	if c.CorePoolSize > c.MaxPoolSize {
		return fmt.Errorf("pool %s: core_pool_size (%d) exceeds max_pool_size (%d)",
			c.Name, c.CorePoolSize, c.MaxPoolSize)
	}
	return nil
}

// ApplyDefaults fills in reasonable defaults for unset optional fields.
func (c *PoolConfig) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlserver"
	}
	if c.AcquireIncrement <= 0 {
		c.AcquireIncrement = 1
	}
	if c.AcquireRetryTimes <= 0 {
		c.AcquireRetryTimes = 3
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = 30 * time.Second
	}
	if c.LimitIdleTime <= 0 {
		c.LimitIdleTime = 5 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// DSN returns the data-source connection string for this pool's driver.
// This is the "driver-specific URL handling" the core spec places out of
// scope — kept intentionally thin.
func (c *PoolConfig) DSN() string {
	switch c.Driver {
	case "sqlserver":
		return "sqlserver://" + c.Username + ":" + c.Password +
			"@" + c.Host + ":" + strconv.Itoa(c.Port) +
			"?database=" + c.Database +
			"&connection+timeout=" + strconv.Itoa(int(c.ConnectTimeout.Seconds()))
	default:
		return fmt.Sprintf("%s://%s:%s@%s:%d/%s",
			c.Driver, c.Username, c.Password, c.Host, c.Port, c.Database)
	}
}

// Addr returns the host:port address of the backing instance.
func (c *PoolConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
