package analytics

// Query templates for the catalog. All user-supplied values bind
// through $n placeholders; nothing here is ever interpolated.

// dashboardMetricsSQL reads the pre-aggregated hourly materialized view.
// $1: trailing window in hours.
const dashboardMetricsSQL = `
SELECT
    hour, event_type, event_count, unique_users,
    revenue, order_count, avg_order_value,
    rolling_24h_avg, prev_day_same_hour
FROM mv_hourly_metrics
WHERE hour >= NOW() - (INTERVAL '1 hour' * $1)
ORDER BY hour DESC, event_type
`

// cohortAnalysisSQL reads cohort retention, optionally filtered by
// acquisition source. $1: trailing window in weeks, $2: source ('' for
// all sources).
const cohortAnalysisSQL = `
SELECT * FROM mv_cohort_retention
WHERE cohort_date >= NOW() - (INTERVAL '1 week' * $1)
AND ($2 = '' OR acquisition_source = $2)
ORDER BY cohort_date DESC, acquisition_source, day_diff
`

// funnelAnalysisSQL computes step-by-step conversion over raw events.
// Step conversion uses NULLIF so a zero denominator yields NULL, never
// a division artifact. $1: trailing window in days.
const funnelAnalysisSQL = `
WITH user_funnel AS (
    SELECT
        user_id,
        session_id,
        created_at as event_time,
        event_type,
        CASE event_type
            WHEN 'page_view' THEN 1
            WHEN 'add_to_cart' THEN 2
            WHEN 'checkout_start' THEN 3
            WHEN 'purchase_complete' THEN 4
        END as step_number,
        LEAD(event_type) OVER (PARTITION BY session_id ORDER BY created_at) as next_step,
        LEAD(created_at) OVER (PARTITION BY session_id ORDER BY created_at) as next_step_time
    FROM events
    WHERE created_at >= NOW() - (INTERVAL '1 day' * $1)
    AND event_type IN ('page_view', 'add_to_cart', 'checkout_start', 'purchase_complete')
),
funnel_stats AS (
    SELECT
        step_number,
        COUNT(*) as total_entries,
        COUNT(next_step) as progressed,
        AVG(EXTRACT(EPOCH FROM (next_step_time - event_time))/60) as avg_time_minutes,
        ROUND(100.0 * (COUNT(*) - COUNT(next_step)) / NULLIF(COUNT(*), 0), 2) as drop_off_pct
    FROM user_funnel
    GROUP BY step_number
)
SELECT
    step_number,
    CASE step_number
        WHEN 1 THEN 'Page View'
        WHEN 2 THEN 'Add to Cart'
        WHEN 3 THEN 'Checkout Start'
        WHEN 4 THEN 'Purchase Complete'
    END as step_name,
    total_entries,
    progressed,
    avg_time_minutes,
    drop_off_pct,
    ROUND(100.0 * progressed / NULLIF(LAG(total_entries) OVER (ORDER BY step_number), 0), 2) as step_conversion_pct
FROM funnel_stats
ORDER BY step_number
`

// rollingRevenueSQL computes daily revenue with a 7-day trailing
// average, day-over-day growth (NULL when the prior day is zero) and a
// running total. $1: trailing window in days.
const rollingRevenueSQL = `
WITH daily_revenue AS (
    SELECT
        DATE_TRUNC('day', created_at) as date,
        SUM(amount) as revenue,
        COUNT(*) as orders,
        COUNT(DISTINCT user_id) as unique_customers
    FROM orders
    WHERE status = 'completed'
    AND created_at >= CURRENT_DATE - (INTERVAL '1 day' * $1)
    GROUP BY 1
)
SELECT
    date,
    revenue,
    orders,
    unique_customers,
    ROUND(AVG(revenue) OVER (ORDER BY date ROWS BETWEEN 6 PRECEDING AND CURRENT ROW), 2) as rolling_7d_avg,
    ROUND(100.0 * (revenue - LAG(revenue, 1) OVER (ORDER BY date))
        / NULLIF(LAG(revenue, 1) OVER (ORDER BY date), 0), 2) as daily_growth_pct,
    SUM(revenue) OVER (ORDER BY date) as cumulative_revenue
FROM daily_revenue
ORDER BY date DESC
`

// rfmAnalysisSQL scores customers by recency, frequency and monetary
// value via rank-based quintiles, then assigns a segment. The CASE
// branches are ordered by priority: the highest-value segment wins when
// multiple conditions match. $1: row limit.
const rfmAnalysisSQL = `
WITH customer_stats AS (
    SELECT
        user_id,
        MAX(created_at) as last_order_date,
        COUNT(*) as frequency,
        SUM(amount) as monetary,
        CURRENT_DATE - MAX(created_at)::date as recency_days
    FROM orders
    WHERE status = 'completed'
    AND created_at >= CURRENT_DATE - INTERVAL '1 year'
    GROUP BY user_id
),
rfm_scores AS (
    SELECT
        user_id,
        recency_days,
        frequency,
        monetary,
        NTILE(5) OVER (ORDER BY recency_days DESC) as r_score,
        NTILE(5) OVER (ORDER BY frequency ASC) as f_score,
        NTILE(5) OVER (ORDER BY monetary ASC) as m_score
    FROM customer_stats
)
SELECT
    user_id,
    recency_days,
    frequency,
    ROUND(monetary, 2) as monetary_value,
    r_score,
    f_score,
    m_score,
    (r_score + f_score + m_score) as rfm_total,
    CASE
        WHEN r_score >= 4 AND f_score >= 4 AND m_score >= 4 THEN 'Champions'
        WHEN r_score >= 3 AND f_score >= 3 AND m_score >= 3 THEN 'Loyal Customers'
        WHEN r_score >= 4 AND f_score <= 2 THEN 'New Customers'
        WHEN r_score <= 2 AND f_score >= 3 THEN 'At Risk'
        WHEN r_score <= 2 AND f_score <= 2 AND m_score >= 3 THEN 'Cannot Lose Them'
        ELSE 'Others'
    END as segment
FROM rfm_scores
ORDER BY rfm_total DESC
LIMIT $1
`

// anomalyDetectionSQL flags hours whose event count deviates from the
// trailing 24-hour mean, as a z-score. $1: trailing window in days.
const anomalyDetectionSQL = `
WITH hourly_stats AS (
    SELECT DATE_TRUNC('hour', created_at) as hour,
           COUNT(*) as event_count
    FROM events
    WHERE created_at >= NOW() - (INTERVAL '1 day' * $1)
    GROUP BY 1
)
SELECT hour, event_count,
       AVG(event_count) OVER (ORDER BY hour ROWS BETWEEN 23 PRECEDING AND 1 PRECEDING) as avg_24h,
       STDDEV(event_count) OVER (ORDER BY hour ROWS BETWEEN 23 PRECEDING AND 1 PRECEDING) as stddev,
       (event_count - AVG(event_count) OVER (ORDER BY hour ROWS BETWEEN 23 PRECEDING AND 1 PRECEDING))
       / NULLIF(STDDEV(event_count) OVER (ORDER BY hour ROWS BETWEEN 23 PRECEDING AND 1 PRECEDING), 0) as z_score
FROM hourly_stats
ORDER BY hour DESC
LIMIT 48
`

// topProductsSQL ranks products by revenue over a fixed 30-day window.
const topProductsSQL = `
SELECT metadata->>'product_id' as product_id,
       COUNT(*) as times_purchased,
       SUM(amount) as total_revenue
FROM orders
WHERE status = 'completed'
AND created_at >= NOW() - INTERVAL '30 days'
GROUP BY 1
ORDER BY total_revenue DESC
LIMIT 20
`

// refreshViewsSQL recomputes the materialized aggregates backing the
// dashboard. The function is owned by the database schema.
const refreshViewsSQL = `SELECT refresh_dashboard_views()`
