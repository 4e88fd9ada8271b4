package backend

import (
	"context"

	"github.com/openviking/membridge/core/client"
	"github.com/openviking/membridge/core/events"
)

// sessionCreator adapts *client.Client to sessionlink.Creator, which only
// needs the new session id, not the full client.Session payload.
type sessionCreator struct {
	client *client.Client
}

func (a sessionCreator) CreateSession(ctx context.Context) (string, error) {
	sess, err := a.client.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	return sess.SessionID, nil
}

// eventSender adapts *client.Client.AddEventsBatch to the Send(ctx,
// sessionKey, sessionID, evs) shape both outbox.Sender and
// bridge.DirectSender expect. sessionKey is unused by the store call itself
// (the batch is addressed by sessionID) but kept in the signature so the
// outbox and the bridge can log it without a second lookup.
type eventSender struct {
	client *client.Client
}

func (a eventSender) Send(ctx context.Context, sessionKey, sessionID string, evs []events.Event) error {
	_, err := a.client.AddEventsBatch(ctx, sessionID, evs)
	return err
}
