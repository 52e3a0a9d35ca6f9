package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/cheapchat/internal/apperr"
	"github.com/ent0n29/cheapchat/internal/chat"
	"github.com/ent0n29/cheapchat/internal/protocol"
)

// handleWS runs chat sends over a websocket. Sends on one connection are
// processed in arrival order; each gets a reply or an error_event.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan protocol.Send, 16)
	outbound := make(chan any, 32)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for msg := range inbound {
			outbound <- s.runWSSend(ctx, msg)
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.ObserveWSMessage("outbound", string(t))
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.queue(ctx, outbound, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Source: "gateway",
				Detail: err.Error(),
			})
			continue
		}

		switch m := parsed.(type) {
		case protocol.Send:
			s.metrics.ObserveWSMessage("inbound", string(m.Type))
			select {
			case <-ctx.Done():
				break readLoop
			case inbound <- m:
			}
		case protocol.Ping:
			s.metrics.ObserveWSMessage("inbound", string(m.Type))
			s.queue(ctx, outbound, protocol.Pong{Type: protocol.TypePong})
		}
	}

	close(inbound)
	cancel()
	// Drain so the worker can finish a send that is in flight.
	go func() {
		for range outbound {
		}
	}()
	<-workerDone
	<-writerDone
	close(outbound)
}

func (s *Server) queue(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case <-ctx.Done():
	case outbound <- msg:
	}
}

func (s *Server) runWSSend(ctx context.Context, msg protocol.Send) any {
	res, err := s.chat.Send(ctx, chat.SendRequest{
		ThreadID:  msg.ThreadID,
		Text:      msg.Text,
		Web:       msg.Web,
		UseMemory: msg.UseMemory,
		Model:     msg.Model,
		Files:     msg.Files,
	})
	if err != nil {
		detail := err.Error()
		if statusFor(err) == http.StatusInternalServerError {
			detail = "internal error"
		}
		return protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			RequestID: msg.RequestID,
			Code:      apperr.Code(err),
			Source:    "chat",
			Retryable: errors.Is(err, apperr.ErrUpstream),
			Detail:    detail,
		}
	}
	reply := protocol.Reply{
		Type:      protocol.TypeReply,
		RequestID: msg.RequestID,
		ThreadID:  res.ThreadID,
		Reply:     res.Reply,
		Tokens:    res.Tokens,
	}
	if len(res.Candidates) > 0 {
		reply.Candidates = res.Candidates
	}
	return reply
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.Reply:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	case protocol.Pong:
		return m.Type, true
	default:
		return "", false
	}
}
