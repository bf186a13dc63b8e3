package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instance(name, id string) ServiceConfig {
	return ServiceConfig{Name: name, InstanceID: id, BaseURL: "http://" + id + ".local:8080"}
}

func TestRegisterAppliesDefaults(t *testing.T) {
	reg := NewMemoryRegistry()

	require.NoError(t, reg.Register(ServiceConfig{Name: "auth-service", BaseURL: "http://auth:8080"}))

	healthy := reg.GetHealthyInstances("auth-service")
	require.Len(t, healthy, 1)
	assert.Equal(t, "auth-service", healthy[0].InstanceID)
	assert.Equal(t, DefaultHealthCheckPath, healthy[0].HealthCheckPath)
	assert.Equal(t, DefaultTimeout, healthy[0].Timeout)
	assert.Equal(t, 1, healthy[0].Weight)
}

func TestRegisterRejectsIncompleteConfig(t *testing.T) {
	reg := NewMemoryRegistry()

	err := reg.Register(ServiceConfig{Name: "auth-service"})
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	err = reg.Register(ServiceConfig{BaseURL: "http://auth:8080"})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Empty(t, reg.GetAll())
}

func TestReRegisterKeepsHealth(t *testing.T) {
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Register(ServiceConfig{Name: "user-service", BaseURL: "http://old:8080"}))
	require.True(t, reg.SetHealth("user-service", false))

	require.NoError(t, reg.Register(ServiceConfig{Name: "user-service", BaseURL: "http://new:8080"}))

	all := reg.GetAll()
	require.Len(t, all, 1, "re-registration must replace, not append")
	assert.Equal(t, "http://new:8080", all[0].Config.BaseURL)
	assert.Equal(t, StatusUnhealthy, all[0].Health.Status)
	assert.False(t, reg.IsHealthy("user-service"))
}

func TestHealthyInstancesFollowSetHealth(t *testing.T) {
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Register(instance("matching-service", "a")))
	require.NoError(t, reg.Register(instance("matching-service", "b")))
	require.NoError(t, reg.Register(instance("matching-service", "c")))

	require.True(t, reg.SetInstanceHealth("matching-service", "b", false))
	ids := func() []string {
		var out []string
		for _, cfg := range reg.GetHealthyInstances("matching-service") {
			out = append(out, cfg.InstanceID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "c"}, ids())

	require.True(t, reg.SetInstanceHealth("matching-service", "b", true))
	assert.Equal(t, []string{"a", "b", "c"}, ids())

	require.True(t, reg.SetHealth("matching-service", false))
	assert.Empty(t, ids())
	assert.False(t, reg.IsHealthy("matching-service"))
}

func TestSetHealthUnknownName(t *testing.T) {
	reg := NewMemoryRegistry()

	assert.False(t, reg.SetHealth("ghost", true))
	assert.False(t, reg.SetInstanceHealth("ghost", "x", true))
	assert.Empty(t, reg.GetAll())
}

func TestSetHealthUpdatesTimestamp(t *testing.T) {
	reg := NewMemoryRegistry()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return start }
	require.NoError(t, reg.Register(instance("auth-service", "a")))

	later := start.Add(time.Minute)
	reg.now = func() time.Time { return later }
	require.True(t, reg.SetHealth("auth-service", true))

	all := reg.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, later, all[0].Health.LastCheckedAt)
}

func TestUnregister(t *testing.T) {
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Register(instance("auth-service", "a")))
	require.NoError(t, reg.Register(instance("messaging-service", "a")))
	require.NoError(t, reg.Register(instance("messaging-service", "b")))

	assert.True(t, reg.UnregisterInstance("messaging-service", "a"))
	assert.Len(t, reg.GetHealthyInstances("messaging-service"), 1)

	assert.True(t, reg.Unregister("auth-service"))
	assert.False(t, reg.Unregister("auth-service"))
	assert.Equal(t, []string{"messaging-service"}, reg.Names())

	assert.True(t, reg.UnregisterInstance("messaging-service", "b"))
	assert.Empty(t, reg.Names())
	assert.False(t, reg.UnregisterInstance("messaging-service", "b"))
}

func TestConcurrentSetHealth(t *testing.T) {
	reg := NewMemoryRegistry()
	for i := 0; i < 4; i++ {
		require.NoError(t, reg.Register(instance("user-service", fmt.Sprintf("i%d", i))))
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			reg.SetHealth("user-service", i%2 == 0)
		}(i)
		go func() {
			defer wg.Done()
			_ = reg.GetHealthyInstances("user-service")
			_ = reg.GetAll()
		}()
	}
	wg.Wait()

	// Last write wins; finish with a known write and check consistency.
	reg.SetHealth("user-service", true)
	assert.Len(t, reg.GetHealthyInstances("user-service"), 4)
}
