package models

import (
	"fmt"
	"strings"
)

// Channel is one outbound medium used to reach an ad owner.
type Channel string

const (
	ChannelWhatsApp      Channel = "whatsapp"
	ChannelSMS           Channel = "sms"
	ChannelRinglessVoice Channel = "ringless_voice"
)

// AllChannels lists channels in their default priority order.
var AllChannels = []Channel{ChannelWhatsApp, ChannelSMS, ChannelRinglessVoice}

func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q, must be one of: whatsapp, sms, ringless_voice", s)
	}
	return c, nil
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelSMS, ChannelRinglessVoice:
		return true
	}
	return false
}

// Metered reports whether a send on the channel consumes ledger credits.
// WhatsApp goes through the tenant's own connected number and is capped per day instead.
func (c Channel) Metered() bool {
	return c != ChannelWhatsApp
}

// RequiresSender reports whether the tenant must have a sender identity configured.
func (c Channel) RequiresSender() bool {
	return c == ChannelWhatsApp
}

// QueueName is the dispatch queue the channel's workers consume.
func (c Channel) QueueName() string {
	return "dispatch:" + string(c)
}

// ParseChannelList parses a priority list, dropping duplicates and keeping order.
func ParseChannelList(values []string) ([]Channel, error) {
	out := make([]Channel, 0, len(values))
	seen := make(map[Channel]bool, len(values))
	for _, v := range values {
		c, err := ParseChannel(v)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}
