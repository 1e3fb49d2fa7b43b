package call

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/loopline/realtime/internals/bus"
	"github.com/loopline/realtime/internals/metrics"
	"github.com/loopline/realtime/internals/store"
)

// Manager owns the pending → {accepted, rejected, caller_left, timeout} state
// machine for 1:1 call sessions. All session state lives in the shared TTL
// store so any server process can observe it; the timeout timer is an
// advisory accelerant that re-checks the store before acting.
type Manager struct {
	store     store.Store
	publisher bus.Publisher
	logger    *zap.Logger

	callTTL      time.Duration
	timeoutAfter time.Duration
}

// NewManager creates a call session manager. timeoutAfter must be shorter
// than callTTL so the timeout check still finds the key when nobody answered.
func NewManager(s store.Store, publisher bus.Publisher, logger *zap.Logger, callTTL, timeoutAfter time.Duration) *Manager {
	return &Manager{
		store:        s,
		publisher:    publisher,
		logger:       logger,
		callTTL:      callTTL,
		timeoutAfter: timeoutAfter,
	}
}

// InitiateParams carries the caller-supplied identifiers for a new call. The
// roomID and token come from the caller and must be unguessable values.
type InitiateParams struct {
	RoomID       string
	Token        string
	CallerID     string
	CallerName   string
	CallerAvatar string
	ReceiverID   string
	MediaType    string
}

// Initiate writes the token and the pending session, rings the receiver, and
// arms the no-answer timeout.
func (m *Manager) Initiate(ctx context.Context, p InitiateParams) error {
	if p.RoomID == "" || p.Token == "" || p.CallerID == "" || p.ReceiverID == "" || p.MediaType == "" {
		return ErrValidation
	}

	session := &Session{
		RoomID:       p.RoomID,
		CallerID:     p.CallerID,
		CallerName:   p.CallerName,
		CallerAvatar: p.CallerAvatar,
		ReceiverID:   p.ReceiverID,
		MediaType:    p.MediaType,
		Token:        p.Token,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}

	if err := m.store.SetEX(ctx, store.CallTokenKey(p.RoomID, p.Token), p.Token, m.callTTL); err != nil {
		return err
	}
	if err := m.store.SetJSONEX(ctx, store.CallKey(p.RoomID), session, m.callTTL); err != nil {
		return err
	}

	metrics.CallsActive.Inc()

	m.publisher.Publish(ctx, bus.PersonalRoom(p.ReceiverID), bus.IncomingCall{
		From:         p.CallerID,
		Token:        p.Token,
		MediaType:    p.MediaType,
		RoomID:       p.RoomID,
		CallerName:   p.CallerName,
		CallerAvatar: p.CallerAvatar,
	})

	time.AfterFunc(m.timeoutAfter, func() {
		m.timeoutCheck(p.RoomID)
	})

	m.logger.Info("Call initiated",
		zap.String("room_id", p.RoomID),
		zap.String("caller_id", p.CallerID),
		zap.String("receiver_id", p.ReceiverID),
		zap.String("media_type", p.MediaType),
	)

	return nil
}

// timeoutCheck fires shortly before the session's own TTL floor. It re-reads the
// session and acts only if the call is still pending; any terminal action in
// the meantime deleted the key, which suppresses the timer's effect.
func (m *Manager) timeoutCheck(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := m.getSession(ctx, roomID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Error("Timeout check aborted",
				zap.String("room_id", roomID),
				zap.Error(err),
			)
		}
		return
	}
	if session.Status != StatusPending {
		m.logger.Debug("Timeout check no-op, call already answered",
			zap.String("room_id", roomID),
			zap.String("status", string(session.Status)),
		)
		return
	}

	timeout := bus.CallTimeout{
		RoomID:  roomID,
		Reason:  bus.TimeoutReasonNoAnswer,
		Message: "Call was not answered",
	}
	m.publisher.Publish(ctx, bus.PersonalRoom(session.CallerID), timeout)
	m.publisher.Publish(ctx, bus.PersonalRoom(session.ReceiverID), timeout)

	m.deleteSession(ctx, session)
	metrics.RecordCallOutcome("timeout")

	m.logger.Info("Call timed out",
		zap.String("room_id", roomID),
		zap.String("caller_id", session.CallerID),
	)
}

// AcceptParams carries the receiver's answer. The receiver's display identity
// rides along here because only the answering connection knows it.
type AcceptParams struct {
	RoomID         string
	ReceiverID     string
	ReceiverName   string
	ReceiverAvatar string
	CallerID       string
	MediaType      string
	Token          string
}

// Accept marks the session accepted, refreshing its TTL, and hands the token
// back to the caller so the caller can validate. Accept and reject are not
// mutually exclusive at the data layer: whichever write lands last wins.
func (m *Manager) Accept(ctx context.Context, p AcceptParams) error {
	if p.RoomID == "" || p.ReceiverID == "" || p.CallerID == "" {
		return ErrValidation
	}

	session, err := m.getSession(ctx, p.RoomID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		// Session expired between ring and answer; rebuild from the accept
		// arguments so the caller still gets the grant.
		session = &Session{
			RoomID:     p.RoomID,
			CallerID:   p.CallerID,
			ReceiverID: p.ReceiverID,
			MediaType:  p.MediaType,
			Token:      p.Token,
			CreatedAt:  time.Now(),
		}
		if err := m.store.SetEX(ctx, store.CallTokenKey(p.RoomID, p.Token), p.Token, m.callTTL); err != nil {
			return err
		}
	}

	session.Status = StatusAccepted
	session.ReceiverName = p.ReceiverName
	session.ReceiverAvatar = p.ReceiverAvatar
	if err := m.store.SetJSONEX(ctx, store.CallKey(p.RoomID), session, m.callTTL); err != nil {
		return err
	}

	metrics.CallOutcomesTotal.WithLabelValues("accepted").Inc()

	m.publisher.Publish(ctx, bus.PersonalRoom(session.CallerID), bus.CallAccepted{
		RoomID:     p.RoomID,
		ReceiverID: session.ReceiverID,
		MediaType:  session.MediaType,
		Token:      session.Token,
	})

	m.logger.Info("Call accepted",
		zap.String("room_id", p.RoomID),
		zap.String("receiver_id", session.ReceiverID),
	)

	return nil
}

// Reject notifies the caller and deletes both keys immediately. The explicit
// terminal action short-circuits the timeout timer. Rejecting an already
// resolved session is a silent no-op.
func (m *Manager) Reject(ctx context.Context, roomID, rejectedBy string) error {
	if roomID == "" {
		return ErrValidation
	}

	session, err := m.getSession(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.logger.Debug("Reject no-op, session already resolved",
				zap.String("room_id", roomID),
			)
			return nil
		}
		return err
	}

	m.publisher.Publish(ctx, bus.PersonalRoom(session.CallerID), bus.CallRejected{
		RoomID:       roomID,
		RejectedBy:   rejectedBy,
		CallerName:   session.CallerName,
		CallerAvatar: session.CallerAvatar,
	})

	m.deleteSession(ctx, session)
	metrics.RecordCallOutcome("rejected")

	m.logger.Info("Call rejected",
		zap.String("room_id", roomID),
		zap.String("rejected_by", rejectedBy),
	)

	return nil
}

// CallerLeft handles either party hanging up. Actors that are not a party to
// the session are ignored; membership in the session record is the
// authorization, since the actor is already inside the call.
func (m *Manager) CallerLeft(ctx context.Context, roomID, actorID string) error {
	if roomID == "" {
		return ErrValidation
	}

	session, err := m.getSession(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.logger.Debug("Leave no-op, session already resolved",
				zap.String("room_id", roomID),
			)
			return nil
		}
		return err
	}

	if !session.IsParty(actorID) {
		m.logger.Warn("Leave ignored, actor is not a call party",
			zap.String("room_id", roomID),
			zap.String("actor_id", actorID),
		)
		return nil
	}

	// Each party hears about the other one, not about themselves.
	m.publisher.Publish(ctx, bus.PersonalRoom(session.CallerID), bus.CallPeerLeft{
		Message:    "The other party left the call",
		PeerName:   session.ReceiverName,
		PeerAvatar: session.ReceiverAvatar,
	})
	m.publisher.Publish(ctx, bus.PersonalRoom(session.ReceiverID), bus.CallPeerLeft{
		Message:    "The other party left the call",
		PeerName:   session.CallerName,
		PeerAvatar: session.CallerAvatar,
	})

	m.deleteSession(ctx, session)
	metrics.RecordCallOutcome("peer_left")

	m.logger.Info("Call party left",
		zap.String("room_id", roomID),
		zap.String("actor_id", actorID),
	)

	return nil
}

// ValidateToken is the gate the media-join step calls before allowing a party
// onto the transport. It requires a matching token key, a live session, and a
// requesting user who is one of the two recorded parties.
func (m *Manager) ValidateToken(ctx context.Context, roomID, token, requestingUserID string) (*Session, error) {
	if roomID == "" || token == "" || requestingUserID == "" {
		return nil, ErrValidation
	}

	stored, err := m.store.Get(ctx, store.CallTokenKey(roomID, token))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			metrics.RecordTokenValidation(false)
			return nil, ErrNotFound
		}
		return nil, err
	}
	if stored != token {
		metrics.RecordTokenValidation(false)
		return nil, ErrNotFound
	}

	session, err := m.getSession(ctx, roomID)
	if err != nil {
		metrics.RecordTokenValidation(false)
		return nil, err
	}

	if !session.IsParty(requestingUserID) {
		metrics.RecordTokenValidation(false)
		return nil, ErrNotParticipant
	}

	metrics.RecordTokenValidation(true)
	return session, nil
}

func (m *Manager) getSession(ctx context.Context, roomID string) (*Session, error) {
	var session Session
	if err := m.store.GetJSON(ctx, store.CallKey(roomID), &session); err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (m *Manager) deleteSession(ctx context.Context, session *Session) {
	if err := m.store.Del(ctx, store.CallKey(session.RoomID), store.CallTokenKey(session.RoomID, session.Token)); err != nil {
		m.logger.Error("Failed to delete call keys",
			zap.String("room_id", session.RoomID),
			zap.Error(err),
		)
	}
}
