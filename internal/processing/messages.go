package processing

import (
	"context"

	"github.com/RMahshie/tabeq/pkg/models"
)

// MessageType names a control message for the audio processor
type MessageType string

const (
	// StartAudio begins an active session for a capture handle
	StartAudio MessageType = "START_AUDIO"
	// UpdateGains adjusts the active session's gains
	UpdateGains MessageType = "UPDATE_GAINS"
	// StopAudio tears the session down
	StopAudio MessageType = "STOP_AUDIO"
)

// Message is the only coupling between the coordinator and the processor.
// START_AUDIO and STOP_AUDIO travel over the inbox with a reply channel.
// UPDATE_GAINS is one-way and sits in a single pending slot, so a burst of
// updates collapses into the latest one.
type Message struct {
	Type     MessageType
	StreamID string
	Gains    models.GainProfile

	ctx   context.Context
	reply chan error
}

func newRequest(ctx context.Context, typ MessageType) Message {
	return Message{Type: typ, ctx: ctx, reply: make(chan error, 1)}
}
