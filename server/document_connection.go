package server

import (
	"context"

	"ycrdt/codec"
	"ycrdt/common"
	"ycrdt/transport"
)

// DocumentConnection is one (client, document) pair, routing SYNC,
// AWARENESS, QUERY_AWARENESS, STATELESS and BROADCAST_STATELESS frames
// for that document.
type DocumentConnection struct {
	entry    *DocumentEntry
	registry *Registry
	conn     transport.Connection
	readOnly bool

	updateSub func() // unsubscribe func for the Doc's update observer

	syncStep1Seen bool
	syncStep2Sent bool
	synced        bool
}

// NewDocumentConnection wires conn to entry and sends the initial sync
// handshake: Step1(own sv) followed by Step2(encodeStateAsUpdate()).
func NewDocumentConnection(ctx context.Context, registry *Registry, entry *DocumentEntry, conn transport.Connection, readOnly bool) *DocumentConnection {
	dc := &DocumentConnection{entry: entry, registry: registry, conn: conn, readOnly: readOnly}

	sub := entry.Doc.ObserveUpdateV1(func(update []byte, origin string) {
		entry.Broadcast(context.Background(), dc.ConnectionID(), Frame{
			DocName: entry.Name,
			Type:    MsgSync,
			Payload: EncodeSyncPayload(SyncUpdate, update),
		})
	})
	dc.updateSub = sub.Unsubscribe

	entry.addConn(dc)
	dc.sendInitialSync(ctx)
	return dc
}

func (dc *DocumentConnection) ConnectionID() string { return dc.conn.ConnectionID() }

func (dc *DocumentConnection) sendInitialSync(ctx context.Context) {
	sv := dc.entry.Doc.EncodeStateVector()
	dc.conn.Send(ctx, EncodeFrame(Frame{
		DocName: dc.entry.Name,
		Type:    MsgSync,
		Payload: EncodeSyncPayload(SyncStep1, sv),
	}))

	full := dc.entry.Doc.EncodeStateAsUpdate()
	dc.conn.Send(ctx, EncodeFrame(Frame{
		DocName: dc.entry.Name,
		Type:    MsgSync,
		Payload: EncodeSyncPayload(SyncStep2, full),
	}))

	dc.conn.Send(ctx, EncodeFrame(Frame{
		DocName: dc.entry.Name,
		Type:    MsgAwareness,
		Payload: dc.entry.Awareness.GetStates(),
	}))
}

// HandleFrame dispatches one frame already known to target this
// connection's document.
func (dc *DocumentConnection) HandleFrame(ctx context.Context, f Frame) error {
	switch f.Type {
	case MsgSync:
		return dc.handleSync(ctx, f.Payload)
	case MsgAwareness:
		return dc.entry.Awareness.ApplyUpdate(f.Payload, dc.ConnectionID())
	case MsgQueryAwareness:
		return <-dc.conn.Send(ctx, EncodeFrame(Frame{
			DocName: dc.entry.Name,
			Type:    MsgAwareness,
			Payload: dc.entry.Awareness.GetStates(),
		}))
	case MsgStateless:
		return <-dc.conn.Send(ctx, EncodeFrame(Frame{DocName: dc.entry.Name, Type: MsgStateless, Payload: f.Payload}))
	case MsgBroadcastStateless:
		dc.entry.Broadcast(ctx, dc.ConnectionID(), Frame{DocName: dc.entry.Name, Type: MsgBroadcastStateless, Payload: f.Payload})
		return nil
	default:
		return common.ErrInvalidArgument{Message: "document connection: unhandled message type"}
	}
}

func (dc *DocumentConnection) handleSync(ctx context.Context, payload []byte) error {
	sub, body, err := DecodeSyncPayload(payload)
	if err != nil {
		return err
	}

	switch sub {
	case SyncStep1:
		sv, err := codec.DecodeStateVector(body)
		if err != nil {
			return err
		}
		diff := dc.entry.Doc.EncodeDiff(sv)
		if err := <-dc.conn.Send(ctx, EncodeFrame(Frame{
			DocName: dc.entry.Name,
			Type:    MsgSyncReply,
			Payload: EncodeSyncPayload(SyncStep2, diff),
		})); err != nil {
			return err
		}
		dc.syncStep1Seen = true
		return dc.maybeMarkSynced(ctx)

	case SyncStep2, SyncUpdate:
		if dc.readOnly && len(body) > 0 {
			return <-dc.conn.Send(ctx, EncodeFrame(Frame{
				DocName: dc.entry.Name,
				Type:    MsgSyncStatus,
				Payload: EncodeSyncStatus(false),
			}))
		}
		if len(body) > 0 {
			if err := dc.entry.Doc.ApplyUpdate(body); err != nil {
				return err
			}
			if dc.entry.Debouncer != nil {
				dc.entry.Debouncer.MarkDirty()
			}
		}
		if sub == SyncStep2 {
			dc.syncStep2Sent = true
		}
		return dc.maybeMarkSynced(ctx)
	}
	return common.ErrInvalidArgument{Message: "document connection: unknown sync sub-type"}
}

// maybeMarkSynced emits SyncStatus(true) once, after the connection has
// completed its initial Step1/Step2 round trip.
func (dc *DocumentConnection) maybeMarkSynced(ctx context.Context) error {
	if dc.synced || !dc.syncStep1Seen {
		return nil
	}
	dc.synced = true
	return <-dc.conn.Send(ctx, EncodeFrame(Frame{
		DocName: dc.entry.Name,
		Type:    MsgSyncStatus,
		Payload: EncodeSyncStatus(true),
	}))
}

// Close detaches this connection from its document, decrementing the
// entry's reference count via the registry.
func (dc *DocumentConnection) Close(ctx context.Context) {
	if dc.updateSub != nil {
		dc.updateSub()
	}
	dc.entry.removeConn(dc.ConnectionID())
	dc.registry.Release(ctx, dc.entry.Name)
}
