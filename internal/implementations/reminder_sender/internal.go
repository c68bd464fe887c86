package remindersender

import (
	"context"
	"encoding/json"
	"fmt"
	e "repeatme/internal/core/domain/errors"

	"github.com/r3labs/sse/v2"
)

type internalEvent struct {
	Payload string `json:"payload"`
}

// InternalSender publishes reminders to the SSE stream of a connected client.
type InternalSender struct {
	sseServer *sse.Server
}

func NewInternal(sseServer *sse.Server) *InternalSender {
	if sseServer == nil {
		panic(e.NewNilArgumentError("sseServer"))
	}
	return &InternalSender{
		sseServer: sseServer,
	}
}

func (s *InternalSender) Deliver(ctx context.Context, address string, payload string) error {
	if !s.sseServer.StreamExists(address) {
		return fmt.Errorf("no subscriber for stream %q", address)
	}
	data, err := json.Marshal(internalEvent{Payload: payload})
	if err != nil {
		return err
	}
	s.sseServer.Publish(address, &sse.Event{Event: []byte("reminder"), Data: data})
	return nil
}
