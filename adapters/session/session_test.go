package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeStore 是測試用的記憶體儲存，可注入錯誤
type fakeStore struct {
	data    map[string]map[string]string
	loadErr error
	saveErr error
	dropErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]map[string]string)}
}

func (f *fakeStore) Load(_ context.Context, name string) (map[string]string, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.data[name], nil
}

func (f *fakeStore) Save(_ context.Context, name string, data map[string]string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.data[name] = data
	return nil
}

func (f *fakeStore) Drop(_ context.Context, name string) error {
	if f.dropErr != nil {
		return f.dropErr
	}
	delete(f.data, name)
	return nil
}

func TestNewSession(t *testing.T) {
	t.Run("valid parameters", func(t *testing.T) {
		s := NewSession(context.Background(), "test-id", newFakeStore())
		assert.NotNil(t, s)
	})

	t.Run("nil context", func(t *testing.T) {
		s := NewSession(nil, "test-id", newFakeStore())
		assert.NotNil(t, s)
	})
}

func TestSession_Load(t *testing.T) {
	t.Run("successful load", func(t *testing.T) {
		store := newFakeStore()
		store.data["test-id"] = map[string]string{"user_id": "7"}

		s := NewSession(context.Background(), "test-id", store)
		assert.NoError(t, s.Load())
		assert.Equal(t, "7", s.Get("user_id"))
	})

	t.Run("missing session loads empty data", func(t *testing.T) {
		s := NewSession(context.Background(), "absent", newFakeStore())
		assert.NoError(t, s.Load())
		assert.Empty(t, s.Get("user_id"))
	})

	t.Run("load error", func(t *testing.T) {
		store := newFakeStore()
		store.loadErr = errors.New("load error")

		s := NewSession(context.Background(), "test-id", store)
		err := s.Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "load error")
	})

	t.Run("already loaded skips store", func(t *testing.T) {
		store := newFakeStore()
		s := &sessionImpl{
			id:    "test-id",
			ctx:   context.Background(),
			store: store,
			data:  map[string]string{"existing": "data"},
		}
		store.loadErr = errors.New("should not be called")
		assert.NoError(t, s.Load())
		assert.Equal(t, "data", s.Get("existing"))
	})
}

func TestSession_SetGetDelete(t *testing.T) {
	s := &sessionImpl{}

	// nil map 的讀寫不應該panic
	assert.Empty(t, s.Get("missing"))
	s.Delete("missing")

	s.Set("role", "farmer")
	assert.Equal(t, "farmer", s.Get("role"))

	s.Set("role", "buyer")
	assert.Equal(t, "buyer", s.Get("role"))

	s.Delete("role")
	assert.Empty(t, s.Get("role"))
}

func TestSession_Save(t *testing.T) {
	t.Run("successful save", func(t *testing.T) {
		store := newFakeStore()
		s := NewSession(context.Background(), "test-id", store)
		s.Set("user_id", "42")

		assert.NoError(t, s.Save())
		assert.Equal(t, map[string]string{"user_id": "42"}, store.data["test-id"])
	})

	t.Run("nothing loaded saves nothing", func(t *testing.T) {
		store := newFakeStore()
		s := NewSession(context.Background(), "test-id", store)
		assert.NoError(t, s.Save())
		assert.NotContains(t, store.data, "test-id")
	})

	t.Run("save error", func(t *testing.T) {
		store := newFakeStore()
		store.saveErr = errors.New("save error")

		s := NewSession(context.Background(), "test-id", store)
		s.Set("user_id", "42")
		err := s.Save()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "save error")
	})
}

func TestSession_Clear(t *testing.T) {
	s := &sessionImpl{data: map[string]string{"user_id": "42"}}
	s.Clear()
	assert.NotNil(t, s.data)
	assert.Empty(t, s.data)
}

func TestSession_Destroy(t *testing.T) {
	t.Run("removes session from store", func(t *testing.T) {
		store := newFakeStore()
		store.data["test-id"] = map[string]string{"user_id": "42"}

		s := NewSession(context.Background(), "test-id", store)
		assert.NoError(t, s.Load())
		assert.NoError(t, s.Destroy())

		assert.NotContains(t, store.data, "test-id")
		assert.Empty(t, s.Get("user_id"))
	})

	t.Run("drop error", func(t *testing.T) {
		store := newFakeStore()
		store.dropErr = errors.New("drop error")

		s := NewSession(context.Background(), "test-id", store)
		err := s.Destroy()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "drop error")
	})
}
