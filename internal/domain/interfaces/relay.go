package interfaces

import (
	"context"

	domaintypes "commcore/internal/domain/types"
)

// RelayClient is the device's view of the relay: the key directory and the
// per-user mailboxes. Fetch does not remove envelopes; Ack drops the first
// count of them once they have been handled.
type RelayClient interface {
	UploadKeys(ctx context.Context, bundle domaintypes.KeyBundle) error
	// ClaimKeys consumes one one-time key of username, or hands out the
	// fallback key once the pool is empty.
	ClaimKeys(ctx context.Context, username domaintypes.Username) (domaintypes.ClaimedKeys, error)

	SendMessage(ctx context.Context, envelope domaintypes.Envelope) error
	FetchMessages(
		ctx context.Context,
		username domaintypes.Username,
		limit int,
	) ([]domaintypes.Envelope, error)
	AckMessages(ctx context.Context, username domaintypes.Username, count int) error
}

// AuthClient carries the OPAQUE registration and login exchanges.
type AuthClient interface {
	RegisterStart(
		ctx context.Context,
		req domaintypes.RegisterStartRequest,
	) (domaintypes.RegisterStartResponse, error)
	RegisterFinish(ctx context.Context, req domaintypes.RegisterFinishRequest) error
	LoginStart(
		ctx context.Context,
		req domaintypes.LoginStartRequest,
	) (domaintypes.LoginStartResponse, error)
	LoginFinish(
		ctx context.Context,
		req domaintypes.LoginFinishRequest,
	) (domaintypes.LoginFinishResponse, error)
}
