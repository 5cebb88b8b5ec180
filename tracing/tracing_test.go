package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "span_test.txt")
	require.NoError(t, Init("taskd", "0.0.1", fname))

	ctx, span := StartSpan(context.Background(), "launch", "INTERNAL")
	span.WithAttributes(map[string]string{"job": "j1"})
	_, child := StartSpan(ctx, "spawn", "INTERNAL")
	EndSpan(child, nil)
	EndSpan(span, nil)

	data, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.Contains(t, string(data), "spawn")
	assert.Contains(t, string(data), "parent.span_id")
}

func TestEndSpan_Nil(t *testing.T) {
	assert.NotPanics(t, func() { EndSpan(nil, nil) })
}
