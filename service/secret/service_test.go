package secret

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Environment(t *testing.T) {
	ctx := context.Background()
	srv := New()
	ref := &Ref{URL: filepath.Join(t.TempDir(), "token.enc")}
	require.NoError(t, srv.Secure(ctx, ref, "s3cr3t"))

	revealed, err := srv.Reveal(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", revealed)

	env, err := srv.Environment(ctx, map[string]string{"PLAIN": "x"}, map[string]*Ref{"API_TOKEN": ref})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PLAIN": "x", "API_TOKEN": "s3cr3t"}, env)

	_, err = srv.Environment(ctx, nil, map[string]*Ref{"MISSING": {URL: filepath.Join(t.TempDir(), "missing.enc")}})
	assert.Error(t, err)
}
