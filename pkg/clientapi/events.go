package clientapi

import (
	"context"
	"time"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
)

// SubscribeWithReconnect keeps one event subscription alive for this node.
// Reconnects use exponential backoff capped at one slot, so a flapping node
// cannot stay dark for more than a slot at a time.
func (b *BeaconNode) SubscribeWithReconnect(ctx context.Context, topics []string, handler func(*apiv1.Event)) {
	go func() {
		backoff := time.Second
		maxBackoff := b.spec.SlotDuration()
		for {
			if ctx.Err() != nil {
				return
			}
			err := b.Api.Events(ctx, topics, handler)
			if err == nil {
				log.Infof("subscribed to %v events on %s", topics, b.Name)
				return
			}
			b.score.apply(outcomeConnError)
			log.Warnf("event subscription to %s failed, retrying in %s: %s", b.Name, backoff, err)

			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}()
}
