package locks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd-core/internal/types"
)

func testLock(path, agent string, ttl time.Duration) types.SoftLock {
	return types.SoftLock{
		FilePath:   path,
		AgentID:    agent,
		AcquiredAt: time.Now(),
		Kind:       types.WriteLock,
		TTL:        ttl,
	}
}

func TestProcessLocalStore_DeleteRemoves(t *testing.T) {
	s := NewProcessLocalStore()
	s.Put(testLock("del/path.go", "agent-1", time.Hour))
	s.Delete("del/path.go")

	_, ok := s.Get("del/path.go")
	assert.False(t, ok)
}

func TestProcessLocalStore_RangeVisitsAll(t *testing.T) {
	s := NewProcessLocalStore()
	s.Put(testLock("range/a.go", "agent-1", time.Hour))
	s.Put(testLock("range/b.go", "agent-2", time.Hour))
	defer s.Delete("range/a.go")
	defer s.Delete("range/b.go")

	seen := map[string]bool{}
	s.Range(func(l types.SoftLock) bool {
		seen[l.FilePath] = true
		return true
	})
	assert.True(t, seen["range/a.go"])
	assert.True(t, seen["range/b.go"])
}

func TestInMemoryKV_TTLExpiry(t *testing.T) {
	kv := NewInMemoryKV()
	kv.Set("p.go", testLock("p.go", "agent-1", time.Nanosecond), time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, ok := kv.Get("p.go")
	assert.False(t, ok, "expired entry is dropped on read")
}

func TestDistributedStore_SameSemanticsAsProcessLocal(t *testing.T) {
	s := NewDistributedStore(NewInMemoryKV())

	lock := testLock("dist/path.go", "agent-1", time.Hour)
	s.Put(lock)

	got, ok := s.Get("dist/path.go")
	require.True(t, ok)
	assert.Equal(t, "agent-1", got.AgentID)

	var paths []string
	s.Range(func(l types.SoftLock) bool {
		paths = append(paths, l.FilePath)
		return true
	})
	assert.Contains(t, paths, "dist/path.go")

	s.Delete("dist/path.go")
	_, ok = s.Get("dist/path.go")
	assert.False(t, ok)
}

func TestManagerOverBothBackends_AcquireConflict(t *testing.T) {
	backends := map[string]Store{
		"process-local": NewProcessLocalStore(),
		"distributed":   NewDistributedStore(NewInMemoryKV()),
	}
	for name, store := range backends {
		t.Run(name, func(t *testing.T) {
			m := NewManager(store)
			path := "backend/" + name + ".go"
			defer store.Delete(path)

			_, err := m.Acquire("agent-a", path, types.WriteLock, "content", time.Hour)
			require.NoError(t, err)

			_, err = m.Acquire("agent-b", path, types.WriteLock, "content", time.Hour)
			require.Error(t, err)
			lerr, ok := err.(*LockError)
			require.True(t, ok)
			assert.Equal(t, ErrLockConflict, lerr.Kind)
		})
	}
}
