package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

type recordingPublisher struct {
	routingKey string
	headers    map[string]string
	err        error
}

func (p *recordingPublisher) PublishWithHeaders(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	p.routingKey = routingKey
	p.headers = headers
	return p.err
}

func TestBuildHeaders(t *testing.T) {
	assert.Empty(t, BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, BuildHeaders("r", "t"))
}

func TestPublishEventCountsErrors(t *testing.T) {
	t.Cleanup(func() { SetPublisher(nil) })
	require.NoError(t, PublishEvent(context.Background(), "k", nil, nil))

	pub := &recordingPublisher{err: errors.New("down")}
	SetPublisher(pub)

	before := testutil.ToFloat64(amqpPublishErrorsTotal)
	err := PublishEvent(context.Background(), "ws_events.chats", EventEnvelope{EventName: "ws_connect"}, BuildHeaders("r", ""))
	require.Error(t, err)
	assert.Equal(t, "ws_events.chats", pub.routingKey)
	assert.Equal(t, "r", pub.headers["x-request-id"])
	assert.Equal(t, before+1, testutil.ToFloat64(amqpPublishErrorsTotal))
}

func TestHTTPMetricsMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(HTTPMetricsMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", MetricsHandler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `dm_http_requests_total{method="GET",route="/ping",status="200"}`))
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(likeTogglesTotal.WithLabelValues("true"))
	IncLikeToggle(true)
	assert.Equal(t, before+1, testutil.ToFloat64(likeTogglesTotal.WithLabelValues("true")))

	sent := testutil.ToFloat64(messagesSentTotal)
	IncMessageSent()
	assert.Equal(t, sent+1, testutil.ToFloat64(messagesSentTotal))
}

func TestInitTracingWithoutExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracing(context.Background(), "dm-service", "")
	require.NoError(t, err)
	defer shutdown(context.Background())

	assert.Empty(t, TraceIDFromContext(context.Background()))
	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.NotEmpty(t, TraceIDFromContext(ctx))
}

func TestIdentityFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set(HeaderDeviceID, "dev-1")
	req.Header.Set(HeaderRequestID, "req-1")

	id := IdentityFromRequest(req)
	assert.Equal(t, Identity{DeviceID: "dev-1", RequestID: "req-1", IP: "10.0.0.1"}, id)

	req.Header.Set("X-Real-IP", "5.6.7.8")
	assert.Equal(t, "5.6.7.8", IdentityFromRequest(req).IP)

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", IdentityFromRequest(req).IP)
}
