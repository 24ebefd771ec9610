package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odo-protocol/odo-go/pkg/crypto"
	"github.com/odo-protocol/odo-go/pkg/onboarding"
)

func testCredential() *onboarding.DeviceCredential {
	return &onboarding.DeviceCredential{
		GUID:                []byte{1, 2, 3, 4},
		Rendezvous:          []string{"owner.example.com:8040"},
		ManufacturerKeyHash: []byte{0xaa, 0xbb},
		HMACSecret:          []byte{0x01, 0x02},
		HashAlg:             crypto.HashSHA256,
	}
}

func TestCredentialStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "device.json")
	store := NewCredentialStore(path)

	require.NoError(t, store.Save(&DeviceState{
		Credential: testCredential(),
		Precomp:    []byte{9, 8, 7},
	}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, StateVersion, loaded.Version)
	assert.False(t, loaded.SavedAt.IsZero())
	assert.Equal(t, testCredential(), loaded.Credential)
	assert.Equal(t, []byte{9, 8, 7}, loaded.Precomp)
}

func TestCredentialStoreLoadMissingFile(t *testing.T) {
	store := NewCredentialStore(filepath.Join(t.TempDir(), "absent.json"))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestCredentialStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	store := NewCredentialStore(path)

	require.NoError(t, store.Save(&DeviceState{Credential: testCredential()}))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear(), "clearing twice must not fail")

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCredentialStoreFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	store := NewCredentialStore(path)

	require.NoError(t, store.Save(&DeviceState{Credential: testCredential()}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestCredentialStoreLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewCredentialStore(path).Load()
	require.Error(t, err)
}

func TestRecordStoreAccumulatesRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	store := NewRecordStore(path)

	require.NoError(t, store.Add(&onboarding.DeviceRecord{
		GUID:         []byte{1},
		SerialNumber: "SN-0001",
		Model:        "sensor-mk3",
	}))
	require.NoError(t, store.Add(&onboarding.DeviceRecord{
		GUID:         []byte{2},
		SerialNumber: "SN-0002",
		Model:        "sensor-mk3",
	}))

	state, err := store.Load()
	require.NoError(t, err)
	require.Len(t, state.Records, 2)
	assert.Equal(t, []byte{1}, state.Records["SN-0001"].GUID)
	assert.Equal(t, []byte{2}, state.Records["SN-0002"].GUID)
}

func TestRecordStoreReplacesOnReonboarding(t *testing.T) {
	store := NewRecordStore(filepath.Join(t.TempDir(), "records.json"))

	require.NoError(t, store.Add(&onboarding.DeviceRecord{SerialNumber: "SN-0001", GUID: []byte{1}}))
	require.NoError(t, store.Add(&onboarding.DeviceRecord{SerialNumber: "SN-0001", GUID: []byte{2}}))

	state, err := store.Load()
	require.NoError(t, err)
	require.Len(t, state.Records, 1)
	assert.Equal(t, []byte{2}, state.Records["SN-0001"].GUID)
}
