package analytics

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Operation names. These are the only analytical queries the serving
// layer will ever execute; free-form query text is never accepted.
const (
	OpDashboardMetrics = "dashboard_metrics"
	OpCohortAnalysis   = "cohort_analysis"
	OpFunnelAnalysis   = "funnel_analysis"
	OpRollingRevenue   = "rolling_revenue"
	OpRFMAnalysis      = "rfm_analysis"
	OpAnomalyDetection = "anomaly_detection"
	OpTopProducts      = "top_products"
)

// Row is a single result row keyed by column name. Values that the SQL
// leaves undefined (NULLIF denominators, missing comparison windows)
// are nil, never zero.
type Row map[string]interface{}

// Params is implemented by one typed parameter struct per catalog
// operation, so an unvalidated operation name can never reach query
// execution.
type Params interface {
	// Operation returns the catalog operation name.
	Operation() string

	// Validate checks type and range constraints.
	Validate() error

	// CacheKey derives the deterministic cache key for this
	// operation+parameter combination.
	CacheKey() string

	// args returns the bound query arguments, in placeholder order.
	args() []interface{}
}

// DashboardParams selects hourly metrics for the dashboard.
type DashboardParams struct {
	Hours int
}

// DefaultDashboardParams returns the default 24h window
func DefaultDashboardParams() DashboardParams {
	return DashboardParams{Hours: 24}
}

func (p DashboardParams) Operation() string { return OpDashboardMetrics }

func (p DashboardParams) Validate() error {
	if p.Hours < 1 || p.Hours > 168 {
		return &ValidationError{Param: "hours", Reason: fmt.Sprintf("must be between 1 and 168, got %d", p.Hours)}
	}
	return nil
}

func (p DashboardParams) CacheKey() string {
	return fmt.Sprintf("dashboard_metrics:%d", p.Hours)
}

func (p DashboardParams) args() []interface{} { return []interface{}{p.Hours} }

// CohortParams selects retention by acquisition cohort. Source is an
// optional acquisition source filter; empty means all sources.
type CohortParams struct {
	Weeks  int
	Source string
}

func (p CohortParams) Operation() string { return OpCohortAnalysis }

func (p CohortParams) Validate() error {
	if p.Weeks < 1 || p.Weeks > 52 {
		return &ValidationError{Param: "weeks", Reason: fmt.Sprintf("must be between 1 and 52, got %d", p.Weeks)}
	}
	return nil
}

func (p CohortParams) CacheKey() string {
	source := p.Source
	if source == "" {
		source = "all"
	}
	return fmt.Sprintf("cohort_analysis:%d:%s", p.Weeks, source)
}

func (p CohortParams) args() []interface{} { return []interface{}{p.Weeks, p.Source} }

// FunnelParams selects conversion funnel steps over a trailing window.
type FunnelParams struct {
	Days int
}

func (p FunnelParams) Operation() string { return OpFunnelAnalysis }

func (p FunnelParams) Validate() error {
	if p.Days < 1 || p.Days > 30 {
		return &ValidationError{Param: "days", Reason: fmt.Sprintf("must be between 1 and 30, got %d", p.Days)}
	}
	return nil
}

func (p FunnelParams) CacheKey() string {
	return fmt.Sprintf("funnel_analysis:%d", p.Days)
}

func (p FunnelParams) args() []interface{} { return []interface{}{p.Days} }

// RevenueParams selects daily revenue with rolling averages.
type RevenueParams struct {
	Days int
}

func (p RevenueParams) Operation() string { return OpRollingRevenue }

func (p RevenueParams) Validate() error {
	if p.Days < 7 || p.Days > 365 {
		return &ValidationError{Param: "days", Reason: fmt.Sprintf("must be between 7 and 365, got %d", p.Days)}
	}
	return nil
}

func (p RevenueParams) CacheKey() string {
	return fmt.Sprintf("rolling_revenue:%d", p.Days)
}

func (p RevenueParams) args() []interface{} { return []interface{}{p.Days} }

// RFMParams selects recency/frequency/monetary segmentation.
type RFMParams struct {
	Limit int
}

func (p RFMParams) Operation() string { return OpRFMAnalysis }

func (p RFMParams) Validate() error {
	if p.Limit < 10 || p.Limit > 10000 {
		return &ValidationError{Param: "limit", Reason: fmt.Sprintf("must be between 10 and 10000, got %d", p.Limit)}
	}
	return nil
}

func (p RFMParams) CacheKey() string {
	return fmt.Sprintf("rfm_analysis:%d", p.Limit)
}

func (p RFMParams) args() []interface{} { return []interface{}{p.Limit} }

// AnomalyParams selects z-score anomalies over hourly event counts.
type AnomalyParams struct {
	Days int
}

func (p AnomalyParams) Operation() string { return OpAnomalyDetection }

func (p AnomalyParams) Validate() error {
	if p.Days < 1 || p.Days > 30 {
		return &ValidationError{Param: "days", Reason: fmt.Sprintf("must be between 1 and 30, got %d", p.Days)}
	}
	return nil
}

func (p AnomalyParams) CacheKey() string {
	return fmt.Sprintf("anomaly_detection:%d", p.Days)
}

func (p AnomalyParams) args() []interface{} { return []interface{}{p.Days} }

// TopProductsParams selects top-revenue products over a fixed trailing
// window. The operation takes no parameters.
type TopProductsParams struct{}

func (p TopProductsParams) Operation() string { return OpTopProducts }

func (p TopProductsParams) Validate() error { return nil }

func (p TopProductsParams) CacheKey() string { return "top_products" }

func (p TopProductsParams) args() []interface{} { return nil }

// Operation binds a named analytical query to its template, parameter
// arity, cache policy and timeout. Immutable for the process lifetime.
type Operation struct {
	Name      string
	SQL       string
	NumParams int

	// Cacheable operations follow the cache-aside protocol; the rest
	// always execute fresh (freshness matters more than latency, or
	// the parameter space is too large to cache effectively).
	Cacheable bool
	TTL       time.Duration

	// Timeout overrides the catalog default when non-zero.
	Timeout time.Duration
}

// Catalog is the static allowlist of analytical operations.
type Catalog struct {
	ops            map[string]Operation
	defaultTimeout time.Duration
}

// NewCatalog builds the operation registry and rejects, at construction
// time, any template whose bind placeholders do not match its declared
// parameter count.
func NewCatalog(defaultTimeout time.Duration) (*Catalog, error) {
	if defaultTimeout <= 0 {
		return nil, fmt.Errorf("default query timeout must be positive, got %s", defaultTimeout)
	}

	ops := []Operation{
		{
			Name:      OpDashboardMetrics,
			SQL:       dashboardMetricsSQL,
			NumParams: 1,
			Cacheable: true,
			TTL:       5 * time.Minute,
		},
		{
			Name:      OpCohortAnalysis,
			SQL:       cohortAnalysisSQL,
			NumParams: 2,
			Cacheable: true,
			TTL:       10 * time.Minute,
			Timeout:   10 * time.Second,
		},
		{
			Name:      OpFunnelAnalysis,
			SQL:       funnelAnalysisSQL,
			NumParams: 1,
			Cacheable: true,
			TTL:       5 * time.Minute,
		},
		{
			Name:      OpRollingRevenue,
			SQL:       rollingRevenueSQL,
			NumParams: 1,
		},
		{
			Name:      OpRFMAnalysis,
			SQL:       rfmAnalysisSQL,
			NumParams: 1,
			Timeout:   15 * time.Second,
		},
		{
			Name:      OpAnomalyDetection,
			SQL:       anomalyDetectionSQL,
			NumParams: 1,
			Timeout:   10 * time.Second,
		},
		{
			Name:      OpTopProducts,
			SQL:       topProductsSQL,
			NumParams: 0,
			Timeout:   10 * time.Second,
		},
	}

	c := &Catalog{
		ops:            make(map[string]Operation, len(ops)),
		defaultTimeout: defaultTimeout,
	}
	for _, op := range ops {
		if err := validateTemplate(op); err != nil {
			return nil, fmt.Errorf("operation %q: %w", op.Name, err)
		}
		if op.Cacheable && op.TTL <= 0 {
			return nil, fmt.Errorf("operation %q: cacheable operations need a positive TTL", op.Name)
		}
		c.ops[op.Name] = op
	}
	return c, nil
}

// Lookup resolves an operation by name
func (c *Catalog) Lookup(name string) (Operation, error) {
	op, ok := c.ops[name]
	if !ok {
		return Operation{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	return op, nil
}

// TimeoutFor returns the effective statement timeout for an operation
func (c *Catalog) TimeoutFor(op Operation) time.Duration {
	if op.Timeout > 0 {
		return op.Timeout
	}
	return c.defaultTimeout
}

// Operations returns the names of all registered operations
func (c *Catalog) Operations() []string {
	names := make([]string, 0, len(c.ops))
	for name := range c.ops {
		names = append(names, name)
	}
	return names
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// validateTemplate checks that a query template binds exactly the
// declared parameters: placeholders $1..$NumParams, nothing above.
func validateTemplate(op Operation) error {
	seen := make(map[int]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(op.SQL, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return fmt.Errorf("malformed placeholder %q", m[0])
		}
		if n > op.NumParams {
			return fmt.Errorf("template references $%d but only %d parameters are declared", n, op.NumParams)
		}
		seen[n] = true
	}
	for i := 1; i <= op.NumParams; i++ {
		if !seen[i] {
			return fmt.Errorf("declared parameter $%d is unused by the template", i)
		}
	}
	return nil
}
