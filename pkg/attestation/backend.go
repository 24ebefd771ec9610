package attestation

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"sync"
	"time"

	"github.com/odo-protocol/odo-go/pkg/crypto"
	"github.com/odo-protocol/odo-go/pkg/log"
)

const (
	// FullKeySize is the size of an expanded member private key.
	FullKeySize = ed25519.PrivateKeySize

	// CompressedKeySize is the size of a compressed member private key as
	// provisioned on constrained devices.
	CompressedKeySize = 32

	// SignatureBaseSize is the size of a group signature over an empty
	// revocation list.
	SignatureBaseSize = ed25519.SignatureSize

	// RevocationProofSize is the size added to a signature by each
	// revocation list entry.
	RevocationProofSize = 32
)

// Strategy selects how member contexts are managed.
type Strategy int

const (
	// StrategyFreshPerSign builds a member context per signature.
	StrategyFreshPerSign Strategy = iota

	// StrategyPrecomputed builds the member context once at Init and
	// reuses it, persisting its precomputation state.
	StrategyPrecomputed
)

func (s Strategy) String() string {
	switch s {
	case StrategyFreshPerSign:
		return "fresh-per-sign"
	case StrategyPrecomputed:
		return "precomputed"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

var (
	ErrNotInitialized      = errors.New("attestation backend not initialized")
	ErrInvalidKeySize      = errors.New("invalid member key size")
	ErrInvalidKeyMaterial  = errors.New("invalid key material")
	ErrUnsupportedStrategy = errors.New("unsupported signing strategy")
	ErrCANotAuthorized     = errors.New("CA certificate not authorized")
	ErrEmptySignInput      = errors.New("empty sign input")
)

// CAAuthorizer decides whether a CA certificate may anchor group
// membership verification.
type CAAuthorizer interface {
	AuthorizeCA(der []byte) error
}

// Config configures a Backend.
type Config struct {
	// Strategy selects the member lifecycle. Zero value is
	// StrategyFreshPerSign.
	Strategy Strategy

	// Hash is the digest algorithm for non-revocation proofs. Zero value
	// is SHA-256.
	Hash crypto.HashAlg

	// Authorizer validates the CA certificate passed to Init. Nil skips
	// the check.
	Authorizer CAAuthorizer

	// Logger receives crypto events. Nil disables logging.
	Logger log.Logger
}

// Backend is a group-signature signing context. It is safe for concurrent
// use after Init.
type Backend struct {
	mu        sync.Mutex
	strategy  Strategy
	newDigest func() hash.Hash
	auth      CAAuthorizer
	logger    log.Logger

	initialized bool
	groupKey    []byte
	key         ed25519.PrivateKey
	member      *memberContext
	precomp     []byte
	baseRL      []byte
}

// New creates a Backend. No key material is held until Init.
func New(cfg Config) (*Backend, error) {
	b := &Backend{
		strategy: cfg.Strategy,
		auth:     cfg.Authorizer,
		logger:   cfg.Logger,
	}
	if b.logger == nil {
		b.logger = &log.NoopLogger{}
	}

	switch cfg.Strategy {
	case StrategyFreshPerSign, StrategyPrecomputed:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStrategy, cfg.Strategy)
	}

	switch cfg.Hash {
	case 0, crypto.HashSHA256:
		b.newDigest = sha256.New
	case crypto.HashSHA384:
		b.newDigest = sha512.New384
	default:
		return nil, fmt.Errorf("%w: %s", crypto.ErrUnsupportedHash, cfg.Hash)
	}

	return b, nil
}

// Init loads the group public key and the member private key into the
// backend. privateKey is either a full key or a compressed key that is
// expanded against the group key. caCert, when non-nil, is checked against
// the configured authorizer. sigRL is the revocation list known at
// provisioning time; it becomes the default for Sign calls that pass none.
// precomp, when non-nil, restores a previously persisted precomputation
// blob instead of rebuilding member state.
func (b *Backend) Init(groupKey, privateKey, caCert, sigRL, precomp []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(groupKey) == 0 {
		return fmt.Errorf("%w: empty group public key", ErrInvalidKeyMaterial)
	}

	if b.auth != nil && caCert != nil {
		if err := b.auth.AuthorizeCA(caCert); err != nil {
			return fmt.Errorf("%w: %v", ErrCANotAuthorized, err)
		}
	}

	if _, err := ParseRevocationList(sigRL); err != nil {
		return err
	}

	var key ed25519.PrivateKey
	switch len(privateKey) {
	case FullKeySize:
		key = make(ed25519.PrivateKey, FullKeySize)
		copy(key, privateKey)
	case CompressedKeySize:
		expanded, err := decompressPrivateKey(groupKey, privateKey)
		if err != nil {
			return err
		}
		key = expanded
	default:
		return fmt.Errorf("%w: %d bytes", ErrInvalidKeySize, len(privateKey))
	}

	b.zeroLocked()

	b.groupKey = make([]byte, len(groupKey))
	copy(b.groupKey, groupKey)
	b.key = key

	if b.strategy == StrategyPrecomputed {
		member, err := newMemberContext(b.groupKey, b.key, precomp)
		if err != nil {
			return err
		}
		blob, err := member.writePrecomp()
		if err != nil {
			member.destroy()
			return err
		}
		b.member = member
		b.precomp = blob
	}

	if len(sigRL) > 0 {
		b.baseRL = make([]byte, len(sigRL))
		copy(b.baseRL, sigRL)
	}

	b.initialized = true
	b.logCrypto("attestation-init", 0)
	return nil
}

// Sign produces a group signature over data. sigRL is the current
// signature revocation list in wire form; nil falls back to the list given
// at Init, or no revocations if none was. The signature length is
// SignatureLength of the list's entry count.
//
// A revoked member still produces a signature. Revocation is enforced by
// the verifier, which rejects signatures whose non-revocation proofs fail.
func (b *Backend) Sign(data, sigRL []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil, ErrNotInitialized
	}
	if len(data) == 0 {
		return nil, ErrEmptySignInput
	}

	if sigRL == nil {
		sigRL = b.baseRL
	}
	rl, err := ParseRevocationList(sigRL)
	if err != nil {
		return nil, err
	}

	member := b.member
	if b.strategy == StrategyFreshPerSign {
		fresh, err := newMemberContext(b.groupKey, b.key, nil)
		if err != nil {
			return nil, err
		}
		defer fresh.destroy()
		member = fresh
	}

	sig := make([]byte, SignatureLength(len(rl.Entries)))
	member.sign(b.newDigest, data, rl, sig)

	b.logCrypto("attestation-sign", len(sig))
	return sig, nil
}

// SignatureLength returns the signature size for a revocation list with
// the given number of entries.
func SignatureLength(entries int) int {
	return SignatureBaseSize + entries*RevocationProofSize
}

// WritePrecomp returns the serialized precomputation state for persisting
// across restarts. Only precomputed backends carry one.
func (b *Backend) WritePrecomp() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil, ErrNotInitialized
	}
	if b.strategy != StrategyPrecomputed {
		return nil, fmt.Errorf("%w: no precomputation state for %s", ErrUnsupportedStrategy, b.strategy)
	}

	out := make([]byte, len(b.precomp))
	copy(out, b.precomp)
	return out, nil
}

// Close zeroizes all key material. The backend can be re-initialized with
// Init. Close is idempotent.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.zeroLocked()
}

func (b *Backend) zeroLocked() {
	if b.member != nil {
		// The precomputed member aliases the backend's key slice, which is
		// zeroed below.
		for i := range b.member.pseudonym {
			b.member.pseudonym[i] = 0
		}
		b.member.pseudonym = nil
		b.member.key = nil
		b.member = nil
	}
	for i := range b.key {
		b.key[i] = 0
	}
	for i := range b.groupKey {
		b.groupKey[i] = 0
	}
	b.key = nil
	b.groupKey = nil
	b.precomp = nil
	b.baseRL = nil
	b.initialized = false
}

func (b *Backend) logCrypto(op string, size int) {
	b.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerCrypto,
		Category:  log.CategoryMessage,
		Crypto: &log.CryptoEvent{
			Operation:  op,
			OutputSize: size,
		},
	})
}
