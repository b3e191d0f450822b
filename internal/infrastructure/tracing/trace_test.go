package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartSpanContinuesTrace(t *testing.T) {
	tracer := New("test", zap.NewNop(), 8)
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "parent")
	assert.NotEmpty(t, parent.TraceID)
	assert.Empty(t, parent.ParentID)
	assert.Equal(t, parent.TraceID, GetTraceID(ctx))

	child, ctx := tracer.StartSpan(ctx, "child")
	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(ctx))
}

func TestSpanError(t *testing.T) {
	tracer := New("test", zap.NewNop(), 8)
	defer tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "op")
	span.SetError(nil)
	assert.Empty(t, span.Error)

	span.SetStatus(404)
	span.SetError(errors.New("boom"))
	assert.Equal(t, "boom", span.Error)
	assert.Equal(t, 500, span.StatusCode)
}

func TestRecentRing(t *testing.T) {
	tracer := New("test", zap.NewNop(), 3)

	for _, name := range []string{"a", "b", "c", "d"} {
		span, _ := tracer.StartSpan(context.Background(), name)
		span.Finish()
		tracer.Submit(span)
	}
	// Close drains the buffer
	tracer.Close()

	recent := tracer.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "d", recent[0].Name)
	assert.Equal(t, "c", recent[1].Name)
	assert.Equal(t, "b", recent[2].Name)

	assert.Len(t, tracer.Recent(1), 1)
}

func TestInjectExtract(t *testing.T) {
	tracer := New("test", zap.NewNop(), 8)
	defer tracer.Close()

	span, ctx := tracer.StartSpan(context.Background(), "op")
	headers := map[string]string{}
	InjectTraceContext(ctx, headers)

	traceID, spanID := ExtractTraceContext(headers)
	assert.Equal(t, span.TraceID, traceID)
	assert.Equal(t, span.SpanID, spanID)
	assert.Contains(t, FormatTrace(traceID, spanID), string(traceID))
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := New("test", zap.NewNop(), 8)

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/apps/:id", func(c *gin.Context) {
		assert.Equal(t, TraceID("trace-1"), GetTraceID(c.Request.Context()))
		c.Status(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/apps/clock", nil)
	req.Header.Set(HeaderTraceID, "trace-1")
	req.Header.Set(HeaderSpanID, "span-0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "trace-1", w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderSpanID))

	require.Eventually(t, func() bool { return len(tracer.Recent(0)) == 1 }, time.Second, 5*time.Millisecond)
	tracer.Close()

	span := tracer.Recent(1)[0]
	assert.Equal(t, "GET /apps/:id", span.Name)
	assert.Equal(t, SpanID("span-0"), span.ParentID)
	assert.Equal(t, "clock", span.Tags["app.id"])
	assert.Equal(t, "418", span.Tags["http.status"])
}

func TestSubmitAfterClose(t *testing.T) {
	tracer := New("test", zap.NewNop(), 8)
	tracer.Close()
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	span.Finish()
	assert.NotPanics(t, func() { tracer.Submit(span) })
	assert.Empty(t, tracer.Recent(0))
}
