package docset

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"crdtweave/backend/config"
	"crdtweave/backend/logging"
	syncstate "crdtweave/backend/sync"
	"crdtweave/backend/transport"
)

// peerDocKey identifies one (peer address, docId) SyncState.
type peerDocKey struct {
	peer  string
	docId string
}

// Connection wraps one DocSet and one transport.Socket, learning of local
// mutations through NotifyLocalChange and maintaining one sync.State per
// (peer, docId), in the
// shape of the teacher's node: a Configuration-by-value struct plus
// ctx/cancel-driven background tickers (backend/peer/impl.node.Start/Stop/
// Listen/HeartbeatTicker/AntiEntropyTicker).
type Connection struct {
	// session is an ephemeral, sortable-by-time id minted fresh each time
	// a Connection is constructed, used only to tag its log lines — never
	// persisted into a Change and never compared against an ActorId.
	session xid.ID

	conf config.Configuration
	docs *DocSet
	log  zerolog.Logger

	mu     sync.Mutex
	peers  map[string]struct{}
	states map[peerDocKey]*syncstate.State

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnection constructs a Connection over docs, bound to conf.Socket.
func NewConnection(conf config.Configuration, docs *DocSet) *Connection {
	session := xid.New()
	return &Connection{
		session: session,
		conf:    conf,
		docs:    docs,
		log:     logging.New(logging.ConsoleWriter, zerolog.InfoLevel).With().Str("session", session.String()).Logger(),
		peers:   make(map[string]struct{}),
		states:  make(map[peerDocKey]*syncstate.State),
	}
}

// AddPeer registers a peer address as a sync partner for every document.
func (c *Connection) AddPeer(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers[addr] = struct{}{}
}

func (c *Connection) peerList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.peers))
	for p := range c.peers {
		out = append(out, p)
	}
	return out
}

func (c *Connection) stateFor(peer, docId string) (*syncstate.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := peerDocKey{peer: peer, docId: docId}
	if s, ok := c.states[key]; ok {
		return s, nil
	}
	doc, ok := c.docs.Get(docId)
	if !ok {
		return nil, xerrors.Errorf("docset.Connection: unknown document %q", docId)
	}
	s := syncstate.NewState(docId, doc.History(), c.conf.BloomFalsePositiveRate)
	c.states[key] = s
	return s, nil
}

// Start begins the background listen/anti-entropy/heartbeat loops,
// mirroring backend/peer/impl.node.Start.
func (c *Connection) Start() error {
	c.ctx, c.cancel = context.WithCancel(context.Background())

	go c.listen()

	if c.conf.AntiEntropyInterval > 0 {
		go c.antiEntropyTicker()
	}
	if c.conf.HeartbeatInterval > 0 {
		go c.heartbeatTicker()
	}
	return nil
}

// Stop cancels the background loops, mirroring node.Stop.
func (c *Connection) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Connection) recvTimeout() time.Duration {
	if c.conf.RecvTimeout > 0 {
		return c.conf.RecvTimeout
	}
	return time.Second
}

func (c *Connection) listen() {
	for {
		select {
		case <-c.ctx.Done():
			c.log.Info().Msg("docset.Connection: stopping listen loop")
			return
		default:
			b, from, err := c.conf.Socket.Recv(c.recvTimeout())
			var to transport.TimeoutError
			if errors.As(err, &to) {
				continue
			}
			if err != nil {
				c.log.Error().Err(err).Msg("docset.Connection: recv failed")
				continue
			}
			if err := c.handleMessage(from, b); err != nil {
				c.log.Error().Err(err).Msg("docset.Connection: handle message failed")
			}
		}
	}
}

func (c *Connection) handleMessage(from string, b []byte) error {
	msg, err := syncstate.DecodeMessage(b)
	if err != nil {
		return xerrors.Errorf("decode: %v", err)
	}

	doc, ok := c.docs.Get(msg.DocId)
	if !ok {
		// §4.4: unknown docId with empty have is an advertisement/request;
		// we don't hold the document, so we ignore it.
		c.log.Info().Msgf("docset.Connection: ignoring sync message for unknown doc %q from %s", msg.DocId, from)
		return nil
	}

	state, err := c.stateFor(from, msg.DocId)
	if err != nil {
		return err
	}
	if err := state.ReceiveMessage(msg); err != nil {
		return xerrors.Errorf("receive: %v", err)
	}

	for _, ch := range msg.Changes {
		if _, err := doc.ReceiveChange(ch); err != nil {
			return xerrors.Errorf("apply change: %v", err)
		}
	}

	return c.generateAndSend(from, msg.DocId, true)
}

func (c *Connection) generateAndSend(peer, docId string, hasNewLocal bool) error {
	state, err := c.stateFor(peer, docId)
	if err != nil {
		return err
	}
	out := state.GenerateMessage(hasNewLocal)
	if out == nil {
		return nil
	}
	return c.conf.Socket.Send(peer, syncstate.EncodeMessage(*out), time.Second)
}

// NotifyLocalChange should be called after a local doc.Change on docId: it
// immediately regenerates and sends a sync message to every known peer.
func (c *Connection) NotifyLocalChange(docId string) {
	for _, peer := range c.peerList() {
		if err := c.generateAndSend(peer, docId, true); err != nil {
			c.log.Error().Err(err).Msgf("docset.Connection: failed to notify %s of local change", peer)
		}
	}
}

func (c *Connection) antiEntropyTicker() {
	ticker := time.NewTicker(c.conf.AntiEntropyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.log.Info().Msg("docset.Connection: stopping anti-entropy")
			return
		case <-ticker.C:
			for _, peer := range c.peerList() {
				for _, docId := range c.docs.DocIds() {
					if err := c.generateAndSend(peer, docId, false); err != nil {
						c.log.Error().Err(err).Msgf("docset.Connection: anti-entropy to %s failed", peer)
					}
				}
			}
		}
	}
}

// heartbeatTicker periodically re-advertises heads for every document even
// absent local changes, so a freshly-joined peer with no prior SyncState
// still learns what we have. It reuses the same generate/send path as
// anti-entropy; the two are split, as in the teacher, so their intervals
// can be tuned independently.
func (c *Connection) heartbeatTicker() {
	ticker := time.NewTicker(c.conf.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.log.Info().Msg("docset.Connection: stopping heartbeat")
			return
		case <-ticker.C:
			for _, peer := range c.peerList() {
				for _, docId := range c.docs.DocIds() {
					if err := c.generateAndSend(peer, docId, true); err != nil {
						c.log.Error().Err(err).Msgf("docset.Connection: heartbeat to %s failed", peer)
					}
				}
			}
		}
	}
}
