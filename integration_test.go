package odo_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"math/big"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/odo-protocol/odo-go/pkg/attestation"
	"github.com/odo-protocol/odo-go/pkg/cert"
	"github.com/odo-protocol/odo-go/pkg/crypto"
	"github.com/odo-protocol/odo-go/pkg/device"
	"github.com/odo-protocol/odo-go/pkg/onboarding"
	"github.com/odo-protocol/odo-go/pkg/persistence"
	"github.com/odo-protocol/odo-go/pkg/transport"
	"github.com/odo-protocol/odo-go/pkg/wire"
)

type testEnv struct {
	server   *transport.Server
	host     string
	port     uint16
	mfr      *onboarding.Manufacturer
	mfrKey   wire.PublicKey
	records  chan *onboarding.DeviceRecord
	groupKey []byte
}

// startEnv brings up a TLS onboarding service on a loopback port.
func startEnv(t *testing.T, ctx context.Context) *testEnv {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate manufacturer key: %v", err)
	}
	mfrKey := wire.PublicKey{
		Algorithm: wire.KeyAlgorithmRSA,
		Encoding:  wire.KeyEncodingModExp,
		Modulus:   priv.N.Bytes(),
		Exponent:  big.NewInt(int64(priv.E)).Bytes(),
	}

	mfr, err := onboarding.NewManufacturer(onboarding.ManufacturerConfig{
		Key:        mfrKey,
		Rendezvous: []string{"owner.example.com:8040"},
	})
	if err != nil {
		t.Fatalf("create manufacturer: %v", err)
	}

	tlsCert, err := cert.SelfSigned("odo-test", []string{"127.0.0.1"}, time.Hour)
	if err != nil {
		t.Fatalf("generate serving cert: %v", err)
	}
	serverTLS, err := transport.NewServerTLSConfig(&transport.TLSConfig{Certificate: tlsCert})
	if err != nil {
		t.Fatalf("server TLS config: %v", err)
	}

	env := &testEnv{
		mfr:     mfr,
		mfrKey:  mfrKey,
		records: make(chan *onboarding.DeviceRecord, 8),
	}

	server, err := transport.NewServer(transport.ServerConfig{
		Address:   "127.0.0.1:0",
		TLSConfig: serverTLS,
		OnSession: func(conn *transport.Conn) {
			defer conn.Close()
			record, err := mfr.Serve(ctx, conn)
			if err != nil {
				return
			}
			env.records <- record
		},
	})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	if err := server.Start(ctx); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(server.Stop)

	host, portStr, err := net.SplitHostPort(server.Addr().String())
	if err != nil {
		t.Fatalf("parse server addr: %v", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}

	env.server = server
	env.host = host
	env.port = uint16(port)
	env.groupKey = bytes.Repeat([]byte{0x4d}, 96)
	return env
}

func (env *testEnv) connect(t *testing.T, ctx context.Context) *transport.Conn {
	t.Helper()
	clientTLS, err := transport.NewClientTLSConfig(&transport.TLSConfig{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("client TLS config: %v", err)
	}
	conn, err := transport.Connect(ctx, env.host, env.port, transport.Config{TLSConfig: clientTLS})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (env *testEnv) newBackend(t *testing.T, strategy attestation.Strategy, memberKey, precomp []byte) *attestation.Backend {
	t.Helper()
	backend, err := attestation.New(attestation.Config{Strategy: strategy})
	if err != nil {
		t.Fatalf("create attestation backend: %v", err)
	}
	if err := backend.Init(env.groupKey, memberKey, nil, nil, precomp); err != nil {
		t.Fatalf("init attestation backend: %v", err)
	}
	t.Cleanup(backend.Close)
	return backend
}

func testDeviceKey(serial string) wire.PublicKey {
	modulus := make([]byte, 128)
	copy(modulus, serial)
	modulus[0] |= 0x80
	return wire.PublicKey{
		Algorithm: wire.KeyAlgorithmRSA,
		Encoding:  wire.KeyEncodingModExp,
		Modulus:   modulus,
		Exponent:  []byte{1, 0, 1},
	}
}

func onboardDevice(t *testing.T, ctx context.Context, env *testEnv, serial string, backend *attestation.Backend) *onboarding.DeviceCredential {
	t.Helper()

	conn := env.connect(t, ctx)
	dev, err := onboarding.NewDevice(conn, onboarding.DeviceConfig{
		Identity:    &device.StaticIdentity{Serial: serial, ModelName: "sensor-mk3"},
		DeviceKey:   testDeviceKey(serial),
		Attestation: backend,
		Provider:    crypto.NewRSAProvider(rand.Reader),
	})
	if err != nil {
		t.Fatalf("create device: %v", err)
	}

	cred, err := dev.Run(ctx)
	if err != nil {
		t.Fatalf("onboarding run: %v", err)
	}
	if got := dev.Session().State(); got != onboarding.StateComplete {
		t.Fatalf("device finished in state %s, want %s", got, onboarding.StateComplete)
	}
	return cred
}

// TestE2E_Onboarding runs a complete exchange over TLS on a loopback
// listener and checks both sides' outcomes against each other.
func TestE2E_Onboarding(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	env := startEnv(t, ctx)
	backend := env.newBackend(t, attestation.StrategyFreshPerSign,
		bytes.Repeat([]byte{0x21}, attestation.CompressedKeySize), nil)

	cred := onboardDevice(t, ctx, env, "SN-1001", backend)

	var record *onboarding.DeviceRecord
	select {
	case record = <-env.records:
	case <-ctx.Done():
		t.Fatal("timed out waiting for manufacturer record")
	}

	if record.SerialNumber != "SN-1001" {
		t.Errorf("record serial = %q, want SN-1001", record.SerialNumber)
	}
	if !bytes.Equal(record.GUID, cred.GUID) {
		t.Errorf("record GUID %x does not match credential GUID %x", record.GUID, cred.GUID)
	}
	if len(cred.GUID) != 16 {
		t.Errorf("credential GUID length = %d, want 16", len(cred.GUID))
	}

	// The device's HMAC over the ownership header must verify with the
	// secret only the device holds.
	mac := hmac.New(sha256.New, cred.HMACSecret)
	mac.Write(record.OwnerHeader)
	if !hmac.Equal(mac.Sum(nil), record.HMAC) {
		t.Error("record HMAC does not verify against the credential secret")
	}

	encodedKey, err := wire.EncodePublicKey(env.mfrKey)
	if err != nil {
		t.Fatalf("encode manufacturer key: %v", err)
	}
	wantHash := sha256.Sum256(encodedKey)
	if !bytes.Equal(cred.ManufacturerKeyHash, wantHash[:]) {
		t.Error("credential manufacturer key hash mismatch")
	}
}

// TestE2E_MultipleDevices onboards several devices against one service and
// checks each gets a distinct identity.
func TestE2E_MultipleDevices(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	env := startEnv(t, ctx)

	serials := []string{"SN-2001", "SN-2002", "SN-2003"}
	guids := make(map[string]bool)
	for i, serial := range serials {
		memberKey := bytes.Repeat([]byte{byte(0x40 + i)}, attestation.CompressedKeySize)
		backend := env.newBackend(t, attestation.StrategyFreshPerSign, memberKey, nil)

		cred := onboardDevice(t, ctx, env, serial, backend)
		if guids[string(cred.GUID)] {
			t.Fatalf("duplicate GUID issued for %s", serial)
		}
		guids[string(cred.GUID)] = true
	}

	store := persistence.NewRecordStore(filepath.Join(t.TempDir(), "records.json"))
	for range serials {
		select {
		case record := <-env.records:
			if err := store.Add(record); err != nil {
				t.Fatalf("store record: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for manufacturer records")
		}
	}

	state, err := store.Load()
	if err != nil {
		t.Fatalf("load record store: %v", err)
	}
	if len(state.Records) != len(serials) {
		t.Fatalf("stored %d records, want %d", len(state.Records), len(serials))
	}
}

// TestE2E_PrecomputedReprovisioning onboards with a precomputed member,
// persists the device state including the precomputation blob, and
// onboards again from the restored state.
func TestE2E_PrecomputedReprovisioning(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	env := startEnv(t, ctx)
	memberKey := bytes.Repeat([]byte{0x61}, attestation.CompressedKeySize)

	backend := env.newBackend(t, attestation.StrategyPrecomputed, memberKey, nil)
	cred := onboardDevice(t, ctx, env, "SN-3001", backend)
	<-env.records

	precomp, err := backend.WritePrecomp()
	if err != nil {
		t.Fatalf("export precomputation blob: %v", err)
	}

	statePath := filepath.Join(t.TempDir(), "device.json")
	store := persistence.NewCredentialStore(statePath)
	if err := store.Save(&persistence.DeviceState{Credential: cred, Precomp: precomp}); err != nil {
		t.Fatalf("save device state: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load device state: %v", err)
	}
	if loaded == nil || loaded.Credential == nil {
		t.Fatal("device state did not round-trip")
	}

	// Re-provision with the restored blob.
	restored := env.newBackend(t, attestation.StrategyPrecomputed, memberKey, loaded.Precomp)
	cred2 := onboardDevice(t, ctx, env, "SN-3001", restored)
	<-env.records

	if bytes.Equal(cred.GUID, cred2.GUID) {
		t.Error("re-onboarding must issue a fresh GUID")
	}
}
