package notification

import (
	"context"
	"errors"
)

// ErrSubscriptionGone is returned by a Pusher when the provider reports the
// endpoint as permanently gone (HTTP 404/410). The subscription is then removed.
var ErrSubscriptionGone = errors.New("push subscription gone")

// Pusher hands a payload to the browser push provider for one subscription.
type Pusher interface {
	Push(ctx context.Context, sub *PushSubscription, payload []byte) error
}
