package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsActive prometheus.Gauge
	dbConnectionsIdle   prometheus.Gauge

	// 缓存指标
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec

	// 业务指标
	scanRequestsTotal   *prometheus.CounterVec
	stampsIssuedTotal   prometheus.Counter
	rewardsClaimedTotal prometheus.Counter
	passesCreatedTotal  *prometheus.CounterVec
	walletPushTotal     *prometheus.CounterVec
	walletPushDuration  *prometheus.HistogramVec
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		// HTTP 指标
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		// 数据库指标
		dbConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_active",
				Help: "Number of active database connections",
			},
		),

		dbConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		// 缓存指标
		cacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type", "key_prefix"},
		),

		cacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type", "key_prefix"},
		),

		// 业务指标
		scanRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loyalty_scan_requests_total",
				Help: "Total number of scan requests by result",
			},
			[]string{"result"},
		),

		stampsIssuedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "loyalty_stamps_issued_total",
				Help: "Total number of stamps issued",
			},
		),

		rewardsClaimedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "loyalty_rewards_claimed_total",
				Help: "Total number of rewards claimed",
			},
		),

		passesCreatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loyalty_wallet_passes_created_total",
				Help: "Total number of wallet passes created by platform",
			},
			[]string{"platform"},
		),

		walletPushTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loyalty_wallet_push_total",
				Help: "Total number of wallet push attempts by platform and outcome",
			},
			[]string{"platform", "outcome"},
		),

		walletPushDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loyalty_wallet_push_duration_seconds",
				Help:    "Wallet push duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 3.0, 5.0},
			},
			[]string{"platform"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordCacheOperation 记录缓存操作指标
func (m *MetricsCollector) RecordCacheOperation(cacheType, keyPrefix string, hit bool) {
	if hit {
		m.cacheHitsTotal.WithLabelValues(cacheType, keyPrefix).Inc()
	} else {
		m.cacheMissesTotal.WithLabelValues(cacheType, keyPrefix).Inc()
	}
}

// UpdateDBConnections 更新数据库连接指标
func (m *MetricsCollector) UpdateDBConnections(active, idle int) {
	m.dbConnectionsActive.Set(float64(active))
	m.dbConnectionsIdle.Set(float64(idle))
}

// RecordScan 记录一次扫码结果
//
// result 取值：stamped / completed / claimed / rejected / cooldown / conflict
func (m *MetricsCollector) RecordScan(result string) {
	m.scanRequestsTotal.WithLabelValues(result).Inc()
}

// RecordStampIssued 记录一次积点发放
func (m *MetricsCollector) RecordStampIssued() {
	m.stampsIssuedTotal.Inc()
}

// RecordRewardClaimed 记录一次奖励核销
func (m *MetricsCollector) RecordRewardClaimed() {
	m.rewardsClaimedTotal.Inc()
}

// RecordPassCreated 记录一次钱包卡券创建
func (m *MetricsCollector) RecordPassCreated(platform string) {
	m.passesCreatedTotal.WithLabelValues(platform).Inc()
}

// RecordWalletPush 记录一次钱包推送结果
//
// outcome 取值：success / recreated / failed / skipped
func (m *MetricsCollector) RecordWalletPush(platform, outcome string, duration time.Duration) {
	m.walletPushTotal.WithLabelValues(platform, outcome).Inc()
	m.walletPushDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

// getStatusCategory 获取状态分类
func getStatusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// StatusCategory 对外暴露状态分类，供中间件打标签使用
func StatusCategory(status int) string {
	return getStatusCategory(status)
}

// 全局指标收集器实例
var GlobalCollector *MetricsCollector

// InitMetrics 初始化全局指标收集器
func InitMetrics() {
	GlobalCollector = NewMetricsCollector()
}

// GetGlobalCollector 获取全局指标收集器
func GetGlobalCollector() *MetricsCollector {
	if GlobalCollector == nil {
		InitMetrics()
	}
	return GlobalCollector
}
