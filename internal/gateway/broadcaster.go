package gateway

import (
	"strconv"
	"time"
)

// Broadcast wraps data in an envelope and sends it to every client
// subscribed to channel. Slow clients miss messages rather than block.
//
// Envelope: {"channel":"...","data":<data>,"ts":"...","seq":N,"channel_seq":N}
// where seq is global and channel_seq lets a client detect gaps and backfill
// them from /api/missed.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.seq++
	seq := h.seq

	buf := buildEnvelope(channel, data, now, seq, channelSeq)
	h.latest[channel] = latestEntry{Data: buf, TS: now, Seq: channelSeq}

	rb, exists := h.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(h.replaySize)
		h.replayBufs[channel] = rb
	}
	rb.Push(channelSeq, buf)

	for client := range h.clients {
		if !client.wants(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			h.log.Debug("client send buffer full, dropping", "channel", channel)
		}
	}
	h.mu.Unlock()
}

// buildEnvelope hand-crafts the envelope JSON; data is embedded verbatim.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}
