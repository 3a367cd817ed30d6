package tenants

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client)
}

func TestGetReturnsDefaultsWhenMissing(t *testing.T) {
	store := newTestStore(t)

	settings, err := store.Get(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", settings.TenantID)
	assert.False(t, settings.AutoConfirmAppointments)
	assert.False(t, settings.CancellationPolicy.Enabled)
	assert.Equal(t, "square", settings.PaymentProvider)
}

func TestSetThenGetRoundTrip(t *testing.T) {
	store := newTestStore(t)

	in := DefaultSettings("tenant-2")
	in.Name = "Fade Factory"
	in.Timezone = "America/Sao_Paulo"
	in.AutoConfirmAppointments = true
	in.CancellationPolicy = CancellationPolicy{Enabled: true, FeePercentage: 50, TimeLimitHours: 2}
	in.PaymentProvider = "stripe"

	require.NoError(t, store.Set(context.Background(), in))

	out, err := store.Get(context.Background(), "tenant-2")
	require.NoError(t, err)
	assert.Equal(t, "Fade Factory", out.Name)
	assert.True(t, out.AutoConfirmAppointments)
	assert.True(t, out.CancellationPolicy.Enabled)
	assert.Equal(t, float64(2), out.CancellationPolicy.TimeLimitHours)
	assert.True(t, out.UsesStripe())
	assert.Equal(t, "America/Sao_Paulo", out.Location().String())
}

func TestSetRejectsOutOfRangePolicy(t *testing.T) {
	store := newTestStore(t)

	in := DefaultSettings("tenant-3")
	in.CancellationPolicy.FeePercentage = 150
	assert.Error(t, store.Set(context.Background(), in))

	in.CancellationPolicy = CancellationPolicy{FeePercentage: 10, TimeLimitHours: -1}
	assert.Error(t, store.Set(context.Background(), in))
}
