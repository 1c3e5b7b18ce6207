package settings

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-sync/internal/logging"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "settings.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestBoolDefaultsAndRoundTrip(t *testing.T) {
	store := newStore(t)

	assert.True(t, store.Bool(KeyReceiveNotifications, true))
	assert.False(t, store.Bool(KeyReceiveNotifications, false))

	require.NoError(t, store.SetBool(KeyReceiveNotifications, false))
	assert.False(t, store.Bool(KeyReceiveNotifications, true))

	require.NoError(t, store.SetBool(KeyReceiveNotifications, true))
	assert.True(t, store.Bool(KeyReceiveNotifications, false))
}

func TestGarbledBoolFallsBackToDefault(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.set(KeySendIcons, "maybe"))
	assert.True(t, store.Bool(KeySendIcons, true))
}

func TestApplicationsRoundTrip(t *testing.T) {
	store := newStore(t)
	assert.Empty(t, store.Applications())

	apps := map[string]AppPolicy{
		"Messages": {IconName: "messages-icon", Enabled: true},
		"Mail":     {IconName: "mail-icon", Enabled: false},
	}
	require.NoError(t, store.SaveApplications(apps))
	assert.Equal(t, apps, store.Applications())
}

func TestGarbledApplicationsReadAsEmpty(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.set(KeySendApplications, "{not json"))
	assert.Empty(t, store.Applications())

	// The row is rewritten on next persist.
	require.NoError(t, store.SaveApplications(map[string]AppPolicy{
		"Messages": {IconName: "messages-icon", Enabled: true},
	}))
	assert.Len(t, store.Applications(), 1)
}

func TestUpdateApplicationsAtomicAcrossWriters(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveApplications(map[string]AppPolicy{
		"Messages": {IconName: "messages-icon", Enabled: true},
	}))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				name := fmt.Sprintf("app-%d-%d", w, i)
				assert.NoError(t, store.UpdateApplications(func(apps map[string]AppPolicy) bool {
					apps[name] = AppPolicy{Enabled: true}
					return true
				}))
			}
		}(w)
	}
	// A user toggle racing the writers above must not be overwritten.
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, store.UpdateApplications(func(apps map[string]AppPolicy) bool {
			e := apps["Messages"]
			e.Enabled = false
			apps["Messages"] = e
			return true
		}))
	}()
	wg.Wait()

	apps := store.Applications()
	assert.Len(t, apps, 101)
	assert.False(t, apps["Messages"].Enabled)
	assert.Equal(t, "messages-icon", apps["Messages"].IconName)
}

func TestUpdateApplicationsSkipsWriteWhenUnchanged(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.set(KeySendApplications, "{not json"))

	require.NoError(t, store.UpdateApplications(func(apps map[string]AppPolicy) bool {
		return false
	}))

	// The garbled row was not rewritten: it still reads as empty.
	raw, ok := store.get(KeySendApplications)
	require.True(t, ok)
	assert.Equal(t, "{not json", raw)
}

func TestSettingsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	store, err := Open(path, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, store.SetBool(KeySendNotifications, false))
	store.Close()

	store, err = Open(path, logging.Discard())
	require.NoError(t, err)
	defer store.Close()
	assert.False(t, store.Bool(KeySendNotifications, true))
}
