package transfer

import "errors"

// Error kinds surfaced by orchestrator operations. Collaborator failures are
// translated into these at the orchestrator boundary; no collaborator-specific
// error type crosses the public surface.
var (
	// ErrValidation covers bad input: unknown conversation, missing identity,
	// unsupported speaker role.
	ErrValidation = errors.New("transfer: invalid input")
	// ErrInvalidState is an illegal transition, e.g. completing a transfer
	// that was never initiated. State is left unchanged.
	ErrInvalidState = errors.New("transfer: illegal state transition")
	// ErrAlreadyTransferring means a non-terminal transfer already exists for
	// the conversation. State is left unchanged.
	ErrAlreadyTransferring = errors.New("transfer: transfer already in progress")
	// ErrRoomCreate means the media transport rejected or failed room creation
	// after retries; the attempt is marked FAILED.
	ErrRoomCreate = errors.New("transfer: room creation failed")
	// ErrTokenMint means join credentials could not be produced; the attempt
	// is marked FAILED.
	ErrTokenMint = errors.New("transfer: token minting failed")
)

// Failure kind labels recorded on FAILED transfers and in failure events.
const (
	failRoomCreate = "RoomCreateError"
	failTokenMint  = "TokenMintError"
)
