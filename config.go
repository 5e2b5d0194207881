package vibur

import (
	"fmt"
	"strings"
	"time"

	"github.com/vibur/vibur-go/instrumentation"
)

// IsolationLevel is one of the symbolic transaction isolation names a
// connection's default can be set to.
type IsolationLevel string

const (
	IsolationNone            IsolationLevel = "NONE"
	IsolationReadCommitted   IsolationLevel = "READ_COMMITTED"
	IsolationRepeatableRead  IsolationLevel = "REPEATABLE_READ"
	IsolationReadUncommitted IsolationLevel = "READ_UNCOMMITTED"
	IsolationSerializable    IsolationLevel = "SERIALIZABLE"
)

var validIsolationLevels = map[IsolationLevel]bool{
	IsolationNone:            true,
	IsolationReadCommitted:   true,
	IsolationRepeatableRead:  true,
	IsolationReadUncommitted: true,
	IsolationSerializable:    true,
}

// ValidateConnectionQuery, the special value meaning "use the driver's
// native liveness probe" rather than issuing a SQL query.
const ValidateConnectionQuery = "isValid"

// DefaultCriticalSQLStates is the default set of SQLSTATEs that trigger a
// generation rollover when observed during restore.
var DefaultCriticalSQLStates = []string{
	"08001", "08006", "08007", "08S01",
	"57P01", "57P02", "57P03",
	"JZ0C0", "JZ0C1",
}

// Config is the fully validated, immutable configuration consumed by a
// DataSource's start(). It enumerates every option from the external
// configuration surface; there is deliberately no reflection-based
// loading path — unknown keys passed to ConfigBuilder are rejected at
// the call site by the Go type system instead.
type Config struct {
	Name string

	// Pool sizing.
	PoolInitialSize            int
	PoolMaxSize                int
	PoolFair                   bool
	PoolFifo                   bool
	PoolEnableConnectionTracking bool

	// Timeouts.
	ConnectionTimeout     time.Duration
	LoginTimeout          time.Duration
	AcquireRetryDelay     time.Duration
	AcquireRetryAttempts  int
	ValidateTimeout       time.Duration
	ConnectionIdleLimit   time.Duration // negative disables idle validation

	// Validation.
	TestConnectionQuery string // "" disables, ValidateConnectionQuery uses native probe
	InitSQL             string
	UseNetworkTimeout   bool

	// Reducer.
	ReducerTimeInterval time.Duration
	ReducerSamples      int

	// Statement cache.
	StatementCacheMaxSize int

	// Failure classification.
	CriticalSQLStates []string

	// Defaults applied on create and optionally on restore.
	DefaultAutoCommit           *bool
	DefaultReadOnly             *bool
	DefaultTransactionIsolation IsolationLevel
	DefaultCatalog              string
	ResetDefaultsAfterUse       bool
	ClearSQLWarnings            bool

	// Logging thresholds.
	LogConnectionLongerThan     time.Duration
	LogQueryExecutionLongerThan time.Duration
	LogLargeResultSet           int
	IncludeQueryParameters      bool
	LogTakenConnectionsOnTimeout bool
	LogAllStackTracesOnTimeout   bool

	// Misc.
	AllowConnectionAfterTermination bool
	AllowUnwrapping                  bool

	// Metrics, when set, receives pool gauges/counters over its lifetime.
	// Left nil, the pool runs without a Prometheus dependency.
	Metrics *instrumentation.PrometheusMetrics

	// Tracing, when set, records an OpenTelemetry span for each connection
	// creation and OTel metric instruments for borrows, creations, destroys
	// and critical drains; borrow and destroy get no span. Left nil,
	// the pool runs without an OpenTelemetry dependency.
	Tracing *instrumentation.Tracing
}

// ConfigBuilder builds a Config through a fluent, explicit API; every
// field in Config has a setter and a sensible default, and Build()
// performs the same cross-field validation the DataSource's start()
// requires so construction errors surface early.
type ConfigBuilder struct {
	c Config
}

// NewConfigBuilder returns a builder seeded with this module's defaults:
// a fair, LIFO pool of size [1,10], a 30s connection timeout, a 500-entry
// statement cache, and the default critical-SQLSTATE set.
func NewConfigBuilder(name string) *ConfigBuilder {
	return &ConfigBuilder{c: Config{
		Name:                  name,
		PoolInitialSize:       1,
		PoolMaxSize:           10,
		PoolFair:              true,
		PoolFifo:              false,
		ConnectionTimeout:     30 * time.Second,
		LoginTimeout:          10 * time.Second,
		AcquireRetryDelay:     1 * time.Second,
		AcquireRetryAttempts:  3,
		ValidateTimeout:       5 * time.Second,
		ConnectionIdleLimit:   5 * time.Second,
		TestConnectionQuery:   ValidateConnectionQuery,
		ReducerTimeInterval:   60 * time.Second,
		ReducerSamples:        20,
		StatementCacheMaxSize: 500,
		CriticalSQLStates:     append([]string{}, DefaultCriticalSQLStates...),
		ResetDefaultsAfterUse: true,
		ClearSQLWarnings:      true,
	}}
}

func (b *ConfigBuilder) PoolInitialSize(n int) *ConfigBuilder            { b.c.PoolInitialSize = n; return b }
func (b *ConfigBuilder) PoolMaxSize(n int) *ConfigBuilder                { b.c.PoolMaxSize = n; return b }
func (b *ConfigBuilder) PoolFair(v bool) *ConfigBuilder                  { b.c.PoolFair = v; return b }
func (b *ConfigBuilder) PoolFifo(v bool) *ConfigBuilder                  { b.c.PoolFifo = v; return b }
func (b *ConfigBuilder) PoolEnableConnectionTracking(v bool) *ConfigBuilder {
	b.c.PoolEnableConnectionTracking = v
	return b
}
func (b *ConfigBuilder) ConnectionTimeout(d time.Duration) *ConfigBuilder { b.c.ConnectionTimeout = d; return b }
func (b *ConfigBuilder) LoginTimeout(d time.Duration) *ConfigBuilder      { b.c.LoginTimeout = d; return b }
func (b *ConfigBuilder) AcquireRetryDelay(d time.Duration) *ConfigBuilder { b.c.AcquireRetryDelay = d; return b }
func (b *ConfigBuilder) AcquireRetryAttempts(n int) *ConfigBuilder        { b.c.AcquireRetryAttempts = n; return b }
func (b *ConfigBuilder) ValidateTimeout(d time.Duration) *ConfigBuilder   { b.c.ValidateTimeout = d; return b }
func (b *ConfigBuilder) ConnectionIdleLimit(d time.Duration) *ConfigBuilder {
	b.c.ConnectionIdleLimit = d
	return b
}
func (b *ConfigBuilder) TestConnectionQuery(q string) *ConfigBuilder { b.c.TestConnectionQuery = q; return b }
func (b *ConfigBuilder) InitSQL(q string) *ConfigBuilder             { b.c.InitSQL = q; return b }
func (b *ConfigBuilder) UseNetworkTimeout(v bool) *ConfigBuilder     { b.c.UseNetworkTimeout = v; return b }
func (b *ConfigBuilder) ReducerTimeInterval(d time.Duration) *ConfigBuilder {
	b.c.ReducerTimeInterval = d
	return b
}
func (b *ConfigBuilder) ReducerSamples(n int) *ConfigBuilder { b.c.ReducerSamples = n; return b }
func (b *ConfigBuilder) StatementCacheMaxSize(n int) *ConfigBuilder {
	b.c.StatementCacheMaxSize = n
	return b
}
func (b *ConfigBuilder) CriticalSQLStates(states []string) *ConfigBuilder {
	b.c.CriticalSQLStates = states
	return b
}
func (b *ConfigBuilder) DefaultAutoCommit(v bool) *ConfigBuilder { b.c.DefaultAutoCommit = &v; return b }
func (b *ConfigBuilder) DefaultReadOnly(v bool) *ConfigBuilder   { b.c.DefaultReadOnly = &v; return b }
func (b *ConfigBuilder) DefaultTransactionIsolation(level IsolationLevel) *ConfigBuilder {
	b.c.DefaultTransactionIsolation = level
	return b
}
func (b *ConfigBuilder) DefaultCatalog(catalog string) *ConfigBuilder { b.c.DefaultCatalog = catalog; return b }
func (b *ConfigBuilder) ResetDefaultsAfterUse(v bool) *ConfigBuilder  { b.c.ResetDefaultsAfterUse = v; return b }
func (b *ConfigBuilder) ClearSQLWarnings(v bool) *ConfigBuilder       { b.c.ClearSQLWarnings = v; return b }
func (b *ConfigBuilder) LogConnectionLongerThan(d time.Duration) *ConfigBuilder {
	b.c.LogConnectionLongerThan = d
	return b
}
func (b *ConfigBuilder) LogQueryExecutionLongerThan(d time.Duration) *ConfigBuilder {
	b.c.LogQueryExecutionLongerThan = d
	return b
}
func (b *ConfigBuilder) LogLargeResultSet(n int) *ConfigBuilder { b.c.LogLargeResultSet = n; return b }
func (b *ConfigBuilder) IncludeQueryParameters(v bool) *ConfigBuilder {
	b.c.IncludeQueryParameters = v
	return b
}
func (b *ConfigBuilder) LogTakenConnectionsOnTimeout(v bool) *ConfigBuilder {
	b.c.LogTakenConnectionsOnTimeout = v
	return b
}
func (b *ConfigBuilder) LogAllStackTracesOnTimeout(v bool) *ConfigBuilder {
	b.c.LogAllStackTracesOnTimeout = v
	return b
}
func (b *ConfigBuilder) AllowConnectionAfterTermination(v bool) *ConfigBuilder {
	b.c.AllowConnectionAfterTermination = v
	return b
}
func (b *ConfigBuilder) AllowUnwrapping(v bool) *ConfigBuilder { b.c.AllowUnwrapping = v; return b }
func (b *ConfigBuilder) Metrics(m *instrumentation.PrometheusMetrics) *ConfigBuilder {
	b.c.Metrics = m
	return b
}
func (b *ConfigBuilder) Tracing(t *instrumentation.Tracing) *ConfigBuilder {
	b.c.Tracing = t
	return b
}

// Build validates cross-field invariants and returns the immutable
// Config, or an error naming the first violation found.
func (b *ConfigBuilder) Build() (*Config, error) {
	c := b.c

	if c.PoolMaxSize < 1 {
		return nil, fmt.Errorf("vibur: poolMaxSize must be >= 1, got %d", c.PoolMaxSize)
	}
	if c.PoolInitialSize < 0 || c.PoolInitialSize > c.PoolMaxSize {
		return nil, fmt.Errorf("vibur: poolInitialSize must be in [0, poolMaxSize=%d], got %d", c.PoolMaxSize, c.PoolInitialSize)
	}
	if c.LogConnectionLongerThan > 0 && c.ConnectionTimeout > 0 && c.LogConnectionLongerThan > c.ConnectionTimeout {
		return nil, fmt.Errorf("vibur: logConnectionLongerThan must be <= connectionTimeout")
	}
	if c.DefaultTransactionIsolation != "" && !validIsolationLevels[c.DefaultTransactionIsolation] {
		return nil, fmt.Errorf("vibur: unrecognized transaction isolation %q", c.DefaultTransactionIsolation)
	}
	if c.StatementCacheMaxSize < 0 || c.StatementCacheMaxSize > 2000 {
		return nil, fmt.Errorf("vibur: statementCacheMaxSize must be in [0, 2000], got %d", c.StatementCacheMaxSize)
	}
	if c.ReducerSamples < 1 {
		return nil, fmt.Errorf("vibur: reducerSamples must be >= 1, got %d", c.ReducerSamples)
	}
	if c.AcquireRetryAttempts < 0 {
		return nil, fmt.Errorf("vibur: acquireRetryAttempts must be >= 0, got %d", c.AcquireRetryAttempts)
	}
	for _, s := range c.CriticalSQLStates {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("vibur: criticalSQLStates contains a blank entry")
		}
	}

	return &c, nil
}
