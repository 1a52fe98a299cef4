// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 検証クライアント、サービス層、HTTPミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordVerification(outcome string, duration time.Duration)
	RecordSignIn(provider, decision string)
	RecordPostCreated()
	RecordReaction(kind string, active bool)
	RecordHTTPStatus(statusCode int)
	RecordCleanup(kind string, count int64)
}

var _ MetricsCollector = (*Collector)(nil)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	verifications       *prometheus.CounterVec
	verificationLatency prometheus.Histogram
	signIns             *prometheus.CounterVec
	postsCreated        prometheus.Counter
	reactions           *prometheus.CounterVec
	httpStatus          *prometheus.CounterVec
	cleanedUp           *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uniconnect_session_verifications_total",
			Help: "結果別のセッション検証回数",
		}, []string{"outcome"}),
		verificationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "uniconnect_session_verification_seconds",
			Help:    "セッション検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uniconnect_sign_ins_total",
			Help: "プロバイダー・判定別のサインイン回数",
		}, []string{"provider", "decision"}),
		postsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uniconnect_posts_created_total",
			Help: "作成されたポストの合計数",
		}),
		reactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uniconnect_reactions_total",
			Help: "種類・操作別のリアクション切り替え回数",
		}, []string{"kind", "action"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uniconnect_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		cleanedUp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uniconnect_cleanup_deleted_total",
			Help: "クリーンアップで削除された期限切れレコード数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.verifications,
		c.verificationLatency,
		c.signIns,
		c.postsCreated,
		c.reactions,
		c.httpStatus,
		c.cleanedUp,
	)

	return c
}

// RecordVerification はセッション検証の結果とレイテンシを記録する。
func (c *Collector) RecordVerification(outcome string, duration time.Duration) {
	c.verifications.WithLabelValues(outcome).Inc()
	c.verificationLatency.Observe(duration.Seconds())
}

// RecordSignIn はサインインの許可・拒否を記録する。
func (c *Collector) RecordSignIn(provider, decision string) {
	c.signIns.WithLabelValues(provider, decision).Inc()
}

// RecordPostCreated はポスト作成を記録する。
func (c *Collector) RecordPostCreated() {
	c.postsCreated.Inc()
}

// RecordReaction はリアクションの追加・取り消しを記録する。
func (c *Collector) RecordReaction(kind string, active bool) {
	action := "removed"
	if active {
		action = "added"
	}
	c.reactions.WithLabelValues(kind, action).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordCleanup はクリーンアップで削除した件数を記録する。
func (c *Collector) RecordCleanup(kind string, count int64) {
	c.cleanedUp.WithLabelValues(kind).Add(float64(count))
}

// statusWriter はステータスコードを記録するResponseWriter。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// NewHTTPStatusMiddleware はレスポンスのステータスコードを記録するミドルウェアを返す。
func NewHTTPStatusMiddleware(c MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)
			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			c.RecordHTTPStatus(sw.status)
		})
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
