package admission

import (
	"github.com/shadowmesh/admitcore/events"
	"github.com/shadowmesh/admitcore/packet"
)

// sendReset builds and sends an RST addressed back to inbound's sender. It
// verifies the inbound packet's signature against its claimed sender
// first: a forged or unverifiable inbound packet gets no reply at all,
// since replying would turn the admission queue into a spoofing
// amplification vector (RST is never emitted for a packet whose signature
// fails verification).
func (q *Queue) sendReset(inbound *packet.Packet) {
	if inbound.OptionalFrom == nil {
		// Nothing to address a reply to; this path is only reached for
		// SYNs, which already require a sender identity, but a missing
		// sender is handled the same way everywhere else (drop, no RST).
		return
	}

	if !q.codec.VerifySignature(inbound, inbound.OptionalFrom) {
		q.metrics.DropsBadSignature.Add(1)
		q.logger.Debug().Msg("rst target failed signature verification, dropping silently")
		q.emit(events.NewEventDropped(streamID(inbound), inbound.SendStreamID, events.DropReasonBadSignature))

		return
	}

	rst := packet.New(
		inbound.ReceiveStreamID, // send_stream_id = inbound.receive_stream_id
		0,                       // receive_stream_id = 0
		0,
		packet.FlagRST|packet.FlagSignatureIncluded,
		q.cm.MyDestination(),
		0,
		nil,
	)
	rst.AckThrough = inbound.SequenceNumber

	q.cm.EnqueueOutbound(rst)
	q.metrics.RSTsSent.Add(1)
	q.emit(events.NewEventRSTSent(streamID(inbound), inbound.SendStreamID))
}
