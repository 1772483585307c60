package event

import (
	"encoding/json"
	"strings"

	"github.com/yola1107/baccarat/library/log"
	"github.com/yola1107/baccarat/library/xgo"
)

/*
	原始帧入口：提取 type 判别字段、分发 raw 订阅、尽力解码成类型化事件。
*/

// decoders maps the known raw channel keys to their typed decode.
var decoders = map[string]func([]byte) (Event, error){
	"countdown":    decodeInto[Countdown],
	"round_start":  decodeInto[RoundStart],
	"deal_card":    decodeInto[DealCard],
	"game_result":  decodeInto[GameResult],
	"bet_response": decodeInto[BetResponse],
	"round_state":  decodeInto[RoundStateUpdate],
}

func decodeInto[T any](data []byte) (Event, error) {
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return any(v).(Event), nil
}

// MessageType extracts the "type" discriminator from a payload without fully
// parsing it, so a malformed frame can still be classified. Returns "" when
// no discriminator is found.
func MessageType(payload []byte) string {
	s := string(payload)
	for from := 0; ; {
		idx := strings.Index(s[from:], `"type"`)
		if idx < 0 {
			return ""
		}
		i := from + idx + len(`"type"`)
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\r' || s[i] == '\n') {
			i++
		}
		if i >= len(s) || s[i] != ':' {
			from = i
			continue
		}
		i++
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\r' || s[i] == '\n') {
			i++
		}
		if i >= len(s) || s[i] != '"' {
			return ""
		}
		i++
		end := strings.IndexByte(s[i:], '"')
		if end < 0 {
			return ""
		}
		return s[i : i+end]
	}
}

// ProcessRawMessage is the entry point for inbound transport frames. The raw
// channel always fires for a recognized discriminator; typed decode is best
// effort and never raises.
func (b *Bus) ProcessRawMessage(payload []byte) {
	if b.closed.Load() {
		b.dropped.Add(1)
		return
	}
	if len(payload) == 0 {
		b.dropped.Add(1)
		return
	}

	msgType := MessageType(payload)
	if msgType == "" {
		b.decodeFailures.Add(1)
		b.dropped.Add(1)
		log.Warnf("bus: frame without type discriminator dropped: %.120s", payload)
		return
	}
	channel := strings.ToLower(msgType)

	b.mu.RLock()
	raws := append([]*Subscription{}, b.raws[channel]...)
	b.mu.RUnlock()

	for _, sub := range raws {
		b.invokeRaw(sub, channel, payload)
	}

	dec, ok := decoders[channel]
	if !ok {
		return // raw-only channel, nothing typed to publish
	}
	ev, err := dec(payload)
	if err != nil {
		b.decodeFailures.Add(1)
		log.Warnf("bus: decode %q failed: %v", channel, err)
		return
	}
	b.Publish(ev)
}

func (b *Bus) invokeRaw(sub *Subscription, channel string, payload []byte) {
	defer xgo.RecoverFromError(func(any) {
		b.failedHandlers.Add(1)
	})
	sub.raw(channel, payload)
	b.delivered.Add(1)
}
