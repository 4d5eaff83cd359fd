package cli

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/vali/internal/accounts"
	"github.com/mrz1836/vali/internal/cache"
	"github.com/mrz1836/vali/internal/config"
	"github.com/mrz1836/vali/internal/output"
	"github.com/mrz1836/vali/internal/services"
)

type mockStorage struct{}

func (m *mockStorage) Save(_ *accounts.Book, _ []byte) error { return nil }

//nolint:nilnil // Mock implementation returns nil for testing
func (m *mockStorage) Load(_ []byte) (*accounts.Book, error) { return nil, nil }
func (m *mockStorage) Exists() bool                          { return false }
func (m *mockStorage) Path() string                          { return "" }

type mockCache struct{}

func (m *mockCache) Get(_ int64, _ string) (*cache.Entry, bool, time.Duration) {
	return nil, false, 0
}
func (m *mockCache) Set(_ cache.Entry)                                           {}
func (m *mockCache) IsStale(_ int64, _ string) bool                              { return true }
func (m *mockCache) IsStaleWithDuration(_ int64, _ string, _ time.Duration) bool { return true }
func (m *mockCache) Delete(_ int64, _ string)                                    {}
func (m *mockCache) Clear()                                                      {}
func (m *mockCache) Size() int                                                   { return 0 }
func (m *mockCache) All() []cache.Entry                                          { return nil }
func (m *mockCache) Prune(_ time.Duration) int                                   { return 0 }

var (
	_ accounts.Storage = (*mockStorage)(nil)
	_ cache.Cache      = (*mockCache)(nil)
)

func TestNewCommandContext(t *testing.T) {
	fullCfg := config.Defaults()
	nullLog := config.NullLogger()
	textFmt := output.NewFormatter(output.FormatText, nil)

	tests := []struct {
		name string
		cfg  *config.Config
		log  *config.Logger
		fmt  *output.Formatter
	}{
		{"everything set", fullCfg, nullLog, textFmt},
		{"nil config", nil, nullLog, textFmt},
		{"nil logger", fullCfg, nil, textFmt},
		{"nil formatter", fullCfg, nullLog, nil},
		{"all nil", nil, nil, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cc := NewCommandContext(tc.cfg, tc.log, tc.fmt)
			require.NotNil(t, cc)

			assert.Equal(t, tc.cfg, cc.Cfg)
			assert.Equal(t, tc.log, cc.Log)
			assert.Equal(t, tc.fmt, cc.Fmt)
			assert.NotNil(t, cc.Registry, "built-in providers must always be registered")
		})
	}
}

func TestCmdContextRoundTrip(t *testing.T) {
	cc := NewCommandContext(config.Defaults(), config.NullLogger(), output.NewFormatter(output.FormatText, nil))

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	SetCmdContext(cmd, cc)

	got := GetCmdContext(cmd)
	require.NotNil(t, got)
	assert.Equal(t, cc, got)
}

func TestGetCmdContextAbsent(t *testing.T) {
	t.Run("command without any context", func(t *testing.T) {
		assert.Nil(t, GetCmdContext(&cobra.Command{}))
	})

	t.Run("context without the command value", func(t *testing.T) {
		cmd := &cobra.Command{}
		cmd.SetContext(context.Background())
		assert.Nil(t, GetCmdContext(cmd))
	})
}

// The With* setters return the receiver so wiring can be chained.
func TestCommandContextSetters(t *testing.T) {
	t.Run("storage", func(t *testing.T) {
		cc := NewCommandContext(nil, nil, nil)
		require.Nil(t, cc.Storage)

		st := &mockStorage{}
		assert.Equal(t, cc, cc.WithStorage(st))
		assert.Equal(t, st, cc.Storage)
	})

	t.Run("result cache", func(t *testing.T) {
		cc := NewCommandContext(nil, nil, nil)
		require.Nil(t, cc.ResultCache)

		rc := &mockCache{}
		assert.Equal(t, cc, cc.WithCache(rc))
		assert.Equal(t, rc, cc.ResultCache)
	})

	t.Run("registry", func(t *testing.T) {
		cc := NewCommandContext(nil, nil, nil)
		require.NotNil(t, cc.Registry)

		reg := services.NewRegistry(services.Service{Name: "testco", ID: 999})
		assert.Equal(t, cc, cc.WithRegistry(reg))
		assert.Equal(t, reg, cc.Registry)
	})

	t.Run("session manager", func(t *testing.T) {
		cc := NewCommandContext(nil, nil, nil)
		require.Nil(t, cc.SessionMgr)

		mgr := &fakeSessionMgr{available: true}
		assert.Equal(t, cc, cc.WithSessionManager(mgr))
		assert.Equal(t, mgr, cc.SessionMgr)
	})
}
