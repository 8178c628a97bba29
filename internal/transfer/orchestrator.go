package transfer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/warm-transfer/internal/directory"
	"github.com/chadiek/warm-transfer/internal/llm"
	"github.com/chadiek/warm-transfer/internal/notify"
	"github.com/chadiek/warm-transfer/internal/room"
	"github.com/chadiek/warm-transfer/internal/transcript"
)

// MediaTransport is the room-service collaborator the orchestrator drives.
type MediaTransport interface {
	CreateRoom(ctx context.Context, name string) error
	RemoveParticipant(ctx context.Context, roomName, identity string) error
}

// TokenMinter issues join credentials; signing is local, never a network call.
type TokenMinter interface {
	MintToken(roomName, identity string, caps room.Capabilities) (string, error)
}

// Transcripts is the aggregator surface the orchestrator consumes.
type Transcripts interface {
	Append(conversationID string, speaker transcript.Role, text string)
	ToText(conversationID string) string
	Count(conversationID string) int
}

// Summaries produces the warm-transfer briefing; it degrades, never fails.
type Summaries interface {
	Summarize(ctx context.Context, transcriptText string, sctx llm.SummaryContext) llm.Summary
}

// Notifier fans transfer events out to agents.
type Notifier interface {
	Publish(ev notify.Event, recipients ...string) notify.Event
}

// Telephony optionally bridges a phone number into a room.
type Telephony interface {
	DialIntoRoom(ctx context.Context, phoneNumber, roomName string) (string, error)
}

// Directory resolves transfer targets and caller context.
type Directory interface {
	AgentForTarget(category string) (directory.Agent, bool)
	CallerContext(email, callerType string) (string, bool)
}

// Orchestrator owns Conversation and Transfer state exclusively. All
// transitions on one conversation are serialized behind a per-conversation
// lock; transcript appends stay outside that lock.
type Orchestrator struct {
	store       Store
	minter      TokenMinter
	media       MediaTransport
	transcripts Transcripts
	summaries   Summaries
	notifier    Notifier
	phones      Telephony // nil when bridging is disabled
	dir         Directory

	transferTimeout time.Duration
	sweepInterval   time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Options wires the orchestrator's collaborators. Phones may be nil.
type Options struct {
	Store           Store
	Minter          TokenMinter
	Media           MediaTransport
	Transcripts     Transcripts
	Summaries       Summaries
	Notifier        Notifier
	Phones          Telephony
	Directory       Directory
	TransferTimeout time.Duration
	SweepInterval   time.Duration
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = 5 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}
	dir := opts.Directory
	if dir == nil {
		dir = directory.Empty()
	}
	return &Orchestrator{
		store:           opts.Store,
		minter:          opts.Minter,
		media:           opts.Media,
		transcripts:     opts.Transcripts,
		summaries:       opts.Summaries,
		notifier:        opts.Notifier,
		phones:          opts.Phones,
		dir:             dir,
		transferTimeout: opts.TransferTimeout,
		sweepInterval:   opts.SweepInterval,
		locks:           make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) lockFor(conversationID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[conversationID] = l
	}
	return l
}

// OpenConversation ensures the conversation and its origin room exist, then
// mints a join credential for the given participant. The first call creates
// the conversation record; later calls just issue tokens.
func (o *Orchestrator) OpenConversation(ctx context.Context, conversationID, identity, callerEmail, callerType string) (*Conversation, string, error) {
	if conversationID == "" || identity == "" {
		return nil, "", fmt.Errorf("%w: conversation id and identity required", ErrValidation)
	}

	l := o.lockFor(conversationID)
	l.Lock()
	defer l.Unlock()

	conv, err := o.store.GetConversation(ctx, conversationID)
	if errors.Is(err, ErrNotFound) {
		conv = &Conversation{
			ID:             conversationID,
			CallerIdentity: identity,
			CallerEmail:    callerEmail,
			CallerType:     callerType,
			OriginRoomName: room.OriginRoomName(conversationID),
			State:          ConvActive,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		if err := o.media.CreateRoom(ctx, conv.OriginRoomName); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrRoomCreate, err)
		}
		if err := o.store.SaveConversation(ctx, conv); err != nil {
			return nil, "", fmt.Errorf("save conversation: %w", err)
		}
	} else if err != nil {
		return nil, "", fmt.Errorf("load conversation: %w", err)
	}

	token, err := o.minter.MintToken(conv.OriginRoomName, identity, room.AgentCaps())
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTokenMint, err)
	}
	return conv, token, nil
}

// AppendUtterance records one finalized speech segment. The transcript is only
// open while the conversation is ACTIVE or TRANSFER_PENDING. It takes no
// conversation lock: the state read is advisory and ordering needs only the
// aggregator's sequence counter.
func (o *Orchestrator) AppendUtterance(ctx context.Context, conversationID string, speaker transcript.Role, text string) error {
	if conversationID == "" {
		return fmt.Errorf("%w: conversation id required", ErrValidation)
	}
	if !transcript.ValidRole(speaker) {
		return fmt.Errorf("%w: unknown speaker role %q", ErrValidation, speaker)
	}
	conv, err := o.store.GetConversation(ctx, conversationID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: unknown conversation %s", ErrValidation, conversationID)
	} else if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	switch conv.State {
	case ConvActive, ConvTransferPending:
		// transcript open
	default:
		return fmt.Errorf("%w: transcript closed in state %s", ErrInvalidState, conv.State)
	}
	o.transcripts.Append(conversationID, speaker, text)
	return nil
}

// Initiate starts a warm transfer: summary, fresh transfer room, tokens for
// both agents, optional phone bridge, then an initiated event to Agent B.
// On collaborator failure the attempt is recorded FAILED and the conversation
// is left ACTIVE exactly as before.
func (o *Orchestrator) Initiate(ctx context.Context, conversationID, agentAIdentity, targetCategory string) (*Transfer, error) {
	if conversationID == "" || agentAIdentity == "" {
		return nil, fmt.Errorf("%w: conversation id and agent identity required", ErrValidation)
	}

	l := o.lockFor(conversationID)
	l.Lock()
	defer l.Unlock()

	conv, err := o.store.GetConversation(ctx, conversationID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown conversation %s", ErrValidation, conversationID)
	} else if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	switch conv.State {
	case ConvActive:
		// proceed
	case ConvTransferPending, ConvTransferActive:
		return nil, fmt.Errorf("%w: conversation %s already has transfer %s", ErrAlreadyTransferring, conversationID, conv.CurrentTransferID)
	default:
		return nil, fmt.Errorf("%w: cannot initiate from %s", ErrInvalidState, conv.State)
	}

	targetAgent, found := o.dir.AgentForTarget(targetCategory)
	agentBIdentity := targetAgent.Identity
	if agentBIdentity == "" {
		agentBIdentity = "agent_b_transfer"
	}

	t := &Transfer{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		AgentAIdentity: agentAIdentity,
		AgentBIdentity: agentBIdentity,
		TargetCategory: targetCategory,
		State:          StateInitiated,
		CreatedAt:      time.Now(),
	}

	// Summary first: it can only degrade, never block the transfer.
	callerCtx, _ := o.dir.CallerContext(conv.CallerEmail, conv.CallerType)
	summary := o.summaries.Summarize(ctx, o.transcripts.ToText(conversationID), llm.SummaryContext{
		CallerType:    conv.CallerType,
		CallerContext: callerCtx,
	})
	t.Summary = summary.Text
	t.SummaryDegraded = summary.Degraded
	t.SegmentCount = o.transcripts.Count(conversationID)
	t.TransferRoomName = room.TransferRoomName(conversationID, t.ID)

	if err := o.media.CreateRoom(ctx, t.TransferRoomName); err != nil {
		return nil, o.failInitiate(ctx, conv, t, failRoomCreate, fmt.Errorf("%w: %v", ErrRoomCreate, err))
	}

	agentAToken, err := o.minter.MintToken(t.TransferRoomName, agentAIdentity, room.AgentCaps())
	if err != nil {
		return nil, o.failInitiate(ctx, conv, t, failTokenMint, fmt.Errorf("%w: %v", ErrTokenMint, err))
	}
	agentBToken, err := o.minter.MintToken(t.TransferRoomName, agentBIdentity, room.AgentCaps())
	if err != nil {
		return nil, o.failInitiate(ctx, conv, t, failTokenMint, fmt.Errorf("%w: %v", ErrTokenMint, err))
	}
	t.AgentAToken = agentAToken
	t.AgentBToken = agentBToken

	// Phone bridging is best effort: the target agent can still join over the
	// notification path when dialing fails.
	if o.phones != nil && targetAgent.Phone != "" && found {
		callSID, err := o.phones.DialIntoRoom(ctx, targetAgent.Phone, t.TransferRoomName)
		if err != nil {
			log.Printf("transfer %s: phone bridge to %s failed: %v", t.ID, targetAgent.Phone, err)
		} else {
			t.TelephonyCallSID = callSID
		}
	}

	t.State = StateAgentBNotified
	if err := o.store.SaveTransfer(ctx, t); err != nil {
		return nil, fmt.Errorf("save transfer: %w", err)
	}
	conv.State = ConvTransferPending
	conv.CurrentTransferID = t.ID
	conv.UpdatedAt = time.Now()
	if err := o.store.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}

	o.notifier.Publish(notify.Event{
		Type:           notify.EventTransferInitiated,
		ConversationID: conversationID,
		TransferID:     t.ID,
		Payload: map[string]string{
			"transfer_room":    t.TransferRoomName,
			"summary":          t.Summary,
			"summary_degraded": strconv.FormatBool(t.SummaryDegraded),
			"target_agent":     agentBIdentity,
			"target_category":  targetCategory,
			"segments":         strconv.Itoa(t.SegmentCount),
			"agent_b_token":    agentBToken,
		},
	}, agentBIdentity)

	log.Printf("transfer %s initiated: conversation=%s room=%s target=%s", t.ID, conversationID, t.TransferRoomName, agentBIdentity)
	return t.clone(), nil
}

// failInitiate records a FAILED attempt, leaves the conversation ACTIVE, and
// publishes transfer_failed with the error kind.
func (o *Orchestrator) failInitiate(ctx context.Context, conv *Conversation, t *Transfer, kind string, cause error) error {
	t.State = StateFailed
	t.FailureKind = kind
	t.CompletedAt = time.Now()
	if err := o.store.SaveTransfer(ctx, t); err != nil {
		log.Printf("transfer %s: persisting failed attempt: %v", t.ID, err)
	}
	o.notifier.Publish(notify.Event{
		Type:           notify.EventTransferFailed,
		ConversationID: conv.ID,
		TransferID:     t.ID,
		Payload:        map[string]string{"error_kind": kind},
	}, t.AgentAIdentity)
	log.Printf("transfer %s failed (%s): %v", t.ID, kind, cause)
	return cause
}

// NotifyJoined records that Agent B entered the transfer room. Idempotent once
// joined; illegal before initiation or after a terminal state.
func (o *Orchestrator) NotifyJoined(ctx context.Context, conversationID string) (*Transfer, error) {
	l := o.lockFor(conversationID)
	l.Lock()
	defer l.Unlock()

	conv, t, err := o.currentTransfer(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	switch t.State {
	case StateAgentBJoined:
		return t, nil
	case StateAgentBNotified:
		// legal
	default:
		return nil, fmt.Errorf("%w: notify-joined in state %s", ErrInvalidState, t.State)
	}

	t.State = StateAgentBJoined
	if err := o.store.SaveTransfer(ctx, t); err != nil {
		return nil, fmt.Errorf("save transfer: %w", err)
	}
	conv.State = ConvTransferActive
	conv.UpdatedAt = time.Now()
	if err := o.store.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	return t.clone(), nil
}

// Complete finishes the hand-off: Agent A is removed from both rooms, the
// transfer is COMPLETED, and both agents are notified. Calling Complete again
// on an already-completed transfer returns the same outcome with no side
// effects.
func (o *Orchestrator) Complete(ctx context.Context, conversationID string) (*Transfer, error) {
	l := o.lockFor(conversationID)
	l.Lock()
	defer l.Unlock()

	conv, err := o.store.GetConversation(ctx, conversationID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown conversation %s", ErrValidation, conversationID)
	} else if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	// Idempotent retry of a finished completion.
	if conv.State == ConvTransferCompleted && conv.CurrentTransferID != "" {
		t, err := o.store.GetTransfer(ctx, conv.CurrentTransferID)
		if err != nil {
			return nil, fmt.Errorf("load transfer: %w", err)
		}
		return t, nil
	}

	if conv.CurrentTransferID == "" {
		return nil, fmt.Errorf("%w: no transfer to complete for %s", ErrInvalidState, conversationID)
	}
	t, err := o.store.GetTransfer(ctx, conv.CurrentTransferID)
	if err != nil {
		return nil, fmt.Errorf("load transfer: %w", err)
	}

	switch t.State {
	case StateAgentBNotified, StateAgentBJoined:
		// legal
	default:
		return nil, fmt.Errorf("%w: complete in state %s", ErrInvalidState, t.State)
	}

	// Only Agent A's membership is removed; the caller is never moved here.
	if err := o.media.RemoveParticipant(ctx, conv.OriginRoomName, t.AgentAIdentity); err != nil {
		log.Printf("transfer %s: removing %s from %s: %v", t.ID, t.AgentAIdentity, conv.OriginRoomName, err)
	}
	if err := o.media.RemoveParticipant(ctx, t.TransferRoomName, t.AgentAIdentity); err != nil {
		log.Printf("transfer %s: removing %s from %s: %v", t.ID, t.AgentAIdentity, t.TransferRoomName, err)
	}

	t.State = StateCompleted
	t.CompletedAt = time.Now()
	if err := o.store.SaveTransfer(ctx, t); err != nil {
		return nil, fmt.Errorf("save transfer: %w", err)
	}
	conv.State = ConvTransferCompleted
	conv.UpdatedAt = time.Now()
	if err := o.store.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}

	o.notifier.Publish(notify.Event{
		Type:           notify.EventTransferCompleted,
		ConversationID: conversationID,
		TransferID:     t.ID,
		Payload:        map[string]string{"transfer_room": t.TransferRoomName},
	}, t.AgentAIdentity, t.AgentBIdentity)

	log.Printf("transfer %s completed: conversation=%s", t.ID, conversationID)
	return t.clone(), nil
}

// Reopen starts a fresh conversation context after a completed transfer: the
// old transfer room becomes the new origin room and the conversation returns
// to ACTIVE so it can be transferred again.
func (o *Orchestrator) Reopen(ctx context.Context, conversationID string) (*Conversation, error) {
	l := o.lockFor(conversationID)
	l.Lock()
	defer l.Unlock()

	conv, err := o.store.GetConversation(ctx, conversationID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown conversation %s", ErrValidation, conversationID)
	} else if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv.State != ConvTransferCompleted || conv.CurrentTransferID == "" {
		return nil, fmt.Errorf("%w: reopen from %s", ErrInvalidState, conv.State)
	}
	t, err := o.store.GetTransfer(ctx, conv.CurrentTransferID)
	if err != nil {
		return nil, fmt.Errorf("load transfer: %w", err)
	}

	conv.OriginRoomName = t.TransferRoomName
	conv.State = ConvActive
	conv.CurrentTransferID = ""
	conv.UpdatedAt = time.Now()
	if err := o.store.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	return conv.clone(), nil
}

// Cancel aborts a pending transfer; the caller stays with Agent A and the
// conversation returns to ACTIVE.
func (o *Orchestrator) Cancel(ctx context.Context, conversationID, reason string) (*Transfer, error) {
	l := o.lockFor(conversationID)
	l.Lock()
	defer l.Unlock()
	return o.cancelLocked(ctx, conversationID, reason)
}

func (o *Orchestrator) cancelLocked(ctx context.Context, conversationID, reason string) (*Transfer, error) {
	conv, t, err := o.currentTransfer(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if t.State.Terminal() {
		return nil, fmt.Errorf("%w: cancel in state %s", ErrInvalidState, t.State)
	}

	t.State = StateCancelled
	t.CancelReason = reason
	t.CompletedAt = time.Now()
	if err := o.store.SaveTransfer(ctx, t); err != nil {
		return nil, fmt.Errorf("save transfer: %w", err)
	}
	conv.State = ConvActive
	conv.CurrentTransferID = ""
	conv.UpdatedAt = time.Now()
	if err := o.store.SaveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}

	o.notifier.Publish(notify.Event{
		Type:           notify.EventTransferCancelled,
		ConversationID: conversationID,
		TransferID:     t.ID,
		Payload:        map[string]string{"reason": reason},
	}, t.AgentAIdentity, t.AgentBIdentity)

	log.Printf("transfer %s cancelled (%s): conversation=%s", t.ID, reason, conversationID)
	return t.clone(), nil
}

// currentTransfer loads the conversation and its in-flight transfer, mapping
// missing records to the validation/state taxonomy.
func (o *Orchestrator) currentTransfer(ctx context.Context, conversationID string) (*Conversation, *Transfer, error) {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: unknown conversation %s", ErrValidation, conversationID)
	} else if err != nil {
		return nil, nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv.CurrentTransferID == "" || conv.State == ConvTransferCompleted {
		return nil, nil, fmt.Errorf("%w: no pending transfer for %s", ErrInvalidState, conversationID)
	}
	t, err := o.store.GetTransfer(ctx, conv.CurrentTransferID)
	if err != nil {
		return nil, nil, fmt.Errorf("load transfer: %w", err)
	}
	return conv, t, nil
}

// PendingTransferFor returns the newest transfer awaiting agentIdentity, or
// ErrNotFound when nothing is pending.
func (o *Orchestrator) PendingTransferFor(ctx context.Context, agentIdentity string) (*Transfer, error) {
	if agentIdentity == "" {
		return nil, fmt.Errorf("%w: agent identity required", ErrValidation)
	}
	active, err := o.store.ActiveTransfers(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan transfers: %w", err)
	}
	var newest *Transfer
	for _, t := range active {
		if t.AgentBIdentity != agentIdentity {
			continue
		}
		if newest == nil || t.CreatedAt.After(newest.CreatedAt) {
			newest = t
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return newest, nil
}

// History returns the agent's transfers, newest first.
func (o *Orchestrator) History(ctx context.Context, agentIdentity string, limit int) ([]*Transfer, error) {
	if agentIdentity == "" {
		return nil, fmt.Errorf("%w: agent identity required", ErrValidation)
	}
	if limit <= 0 {
		limit = 20
	}
	return o.store.TransfersByAgent(ctx, agentIdentity, limit)
}

// SweepTimeouts cancels transfers that sat pending past the configured window.
// It returns how many were cancelled. Advisory housekeeping, run periodically.
func (o *Orchestrator) SweepTimeouts(ctx context.Context) int {
	active, err := o.store.ActiveTransfers(ctx)
	if err != nil {
		log.Printf("sweep: scanning transfers: %v", err)
		return 0
	}
	cutoff := time.Now().Add(-o.transferTimeout)
	var n int
	for _, t := range active {
		// Once Agent B is in the room the briefing may legitimately outlast
		// the window; only transfers still waiting for a join time out.
		if t.State == StateAgentBJoined {
			continue
		}
		if t.CreatedAt.After(cutoff) {
			continue
		}
		l := o.lockFor(t.ConversationID)
		l.Lock()
		if _, err := o.cancelLocked(ctx, t.ConversationID, "timeout"); err != nil {
			// raced with a concurrent complete/cancel; nothing to do
			log.Printf("sweep: transfer %s: %v", t.ID, err)
		} else {
			n++
		}
		l.Unlock()
	}
	return n
}

// Run drives the timeout sweep until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.SweepTimeouts(ctx); n > 0 {
				log.Printf("sweep: cancelled %d timed-out transfers", n)
			}
		}
	}
}
