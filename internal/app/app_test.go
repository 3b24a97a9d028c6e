package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Processa/internal/cache"
	"github.com/shaiso/Processa/internal/config"
	"github.com/shaiso/Processa/internal/provider"
)

func TestNewDedup_Memory(t *testing.T) {
	d, closeFn, err := NewDedup(context.Background(), &config.Config{DedupTTL: time.Minute})
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &cache.MemoryDedup{}, d)
}

func TestNewDedup_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	d, closeFn, err := NewDedup(ctx, &config.Config{
		RedisURL: "redis://" + mr.Addr(),
		DedupTTL: time.Minute,
	})
	require.NoError(t, err)
	defer closeFn()

	require.IsType(t, &cache.RedisDedup{}, d)
	require.NoError(t, d.MarkProcessed(ctx, "m-1"))
	seen, err := d.Seen(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestNewDedup_RedisUnavailable(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	_, _, err := NewDedup(context.Background(), &config.Config{
		RedisURL: "redis://" + addr,
		DedupTTL: time.Minute,
	})

	assert.ErrorContains(t, err, "connect to redis")
}

func TestLoadProviders_MissingFile(t *testing.T) {
	reg, err := LoadProviders(&config.Config{
		ProvidersFile: filepath.Join(t.TempDir(), "absent.yaml"),
	}, provider.Deps{})

	require.NoError(t, err)
	assert.Empty(t, reg.Services())
}

func TestLoadProviders(t *testing.T) {
	file := filepath.Join(t.TempDir(), "providers.yaml")
	t.Setenv("REGISTRY_TOKEN", "s3cret")
	require.NoError(t, os.WriteFile(file, []byte(`
services:
  registry:
    providerType: standard
    url: https://registry.example/api/requests
    auth: {type: bearer, token: ${REGISTRY_TOKEN}}
    retryDelays: [1s, 5s]
  xroad:
    providerType: trembita
    url: https://xroad.example/soap
    trembita:
      client: {instance: UA, memberClass: GOV, memberCode: "1", subsystemCode: C}
      service: {instance: UA, memberClass: GOV, memberCode: "2", subsystemCode: S, serviceCode: submit}
`), 0o644))

	reg, err := LoadProviders(&config.Config{ProvidersFile: file}, provider.Deps{})
	require.NoError(t, err)

	assert.Equal(t, []string{"registry", "xroad"}, reg.Services())
	assert.Equal(t, provider.TypeStandard, reg.Type("registry"))
	assert.Equal(t, provider.TypeTrembita, reg.Type("xroad"))
}

func TestLoadProviders_UnknownType(t *testing.T) {
	file := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
services:
  fax:
    providerType: fax
    url: https://fax.example
`), 0o644))

	_, err := LoadProviders(&config.Config{ProvidersFile: file}, provider.Deps{})

	assert.ErrorIs(t, err, provider.ErrUnknownProviderType)
}

func TestContext_CloseOrder(t *testing.T) {
	var order []int
	a := &Context{}
	a.onClose(func() { order = append(order, 1) })
	a.onClose(func() { order = append(order, 2) })

	a.Close()
	a.Close()

	assert.Equal(t, []int{2, 1}, order)
}
