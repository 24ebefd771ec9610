package onboarding

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odo-protocol/odo-go/pkg/crypto"
	"github.com/odo-protocol/odo-go/pkg/log"
)

// State identifies the protocol step a session is waiting to perform.
type State int

const (
	// StateAppStart is the initial state; the device announces itself.
	StateAppStart State = iota
	// StateSetCredentials waits for the ownership header.
	StateSetCredentials
	// StateSetHMAC binds the device to the ownership header.
	StateSetHMAC
	// StateDone waits for the manufacturer's acknowledgement.
	StateDone
	// StateComplete is the terminal state.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateAppStart:
		return "APP_START"
	case StateSetCredentials:
		return "SET_CREDENTIALS"
	case StateSetHMAC:
		return "SET_HMAC"
	case StateDone:
		return "DONE"
	case StateComplete:
		return "COMPLETE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrInvalidTransition indicates an attempt to move a session to a state
// that is not the declared successor of its current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// successor is the forward-only step order. There is no branching and no
// backward edge.
var successor = map[State]State{
	StateAppStart:       StateSetCredentials,
	StateSetCredentials: StateSetHMAC,
	StateSetHMAC:        StateDone,
	StateDone:           StateComplete,
}

// Session holds the per-exchange protocol state. A Session belongs to
// exactly one exchange on one goroutine; it is not safe for concurrent use.
type Session struct {
	id      string
	role    log.Role
	state   State
	hashAlg crypto.HashAlg
	logger  log.Logger

	// ownerHeader is the raw SetCredentials body, kept for HMAC binding.
	ownerHeader []byte
	hmacSecret  []byte
}

// NewSession creates a session in the initial state. A nil logger disables
// logging.
func NewSession(role log.Role, logger log.Logger) *Session {
	if logger == nil {
		logger = &log.NoopLogger{}
	}
	return &Session{
		id:      uuid.NewString(),
		role:    role,
		state:   StateAppStart,
		hashAlg: crypto.HashSHA256,
		logger:  logger,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current protocol state.
func (s *Session) State() State {
	return s.state
}

// HashAlg returns the session's negotiated hash algorithm.
func (s *Session) HashAlg() crypto.HashAlg {
	return s.hashAlg
}

// advance moves the session to the declared successor state. Passing any
// other state fails without changing the session.
func (s *Session) advance(to State, reason string) error {
	next, ok := successor[s.state]
	if !ok || next != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}

	old := s.state
	s.state = to
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Layer:     log.LayerProtocol,
		Category:  log.CategoryState,
		LocalRole: s.role,
		StateChange: &log.StateChangeEvent{
			OldState: old.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
	return nil
}

// Zero clears the session's sensitive material. The session must not be
// used afterwards.
func (s *Session) Zero() {
	for i := range s.hmacSecret {
		s.hmacSecret[i] = 0
	}
	for i := range s.ownerHeader {
		s.ownerHeader[i] = 0
	}
	s.hmacSecret = nil
	s.ownerHeader = nil
}

func (s *Session) logError(err error) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Layer:     log.LayerProtocol,
		Category:  log.CategoryError,
		LocalRole: s.role,
		Error:     &log.ErrorEventData{Message: err.Error()},
	})
}
