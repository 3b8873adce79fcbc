package session

import (
	"github.com/vovakirdan/wiredraw-server/internal/core"
	"github.com/vovakirdan/wiredraw-server/internal/proto"
)

func inboundToCommand(inbound proto.Inbound) (core.Command, *core.CoreError) {
	switch inbound.Type {
	case proto.InboundTypeAuth:
		return core.Command{Kind: core.CommandAuth, Token: inbound.Token}, nil
	case proto.InboundTypeJoin:
		if inbound.RoomID == "" {
			return core.Command{}, core.NewError(core.ErrCodeBadRequest, "roomId is required")
		}
		return core.Command{Kind: core.CommandJoinRoom, Room: inbound.RoomID}, nil
	case proto.InboundTypeLeave:
		return core.Command{Kind: core.CommandLeaveRoom}, nil
	case proto.InboundTypeMessage:
		if len(inbound.Payload) == 0 {
			return core.Command{}, core.NewError(core.ErrCodeMalformedMessage, "payload is required")
		}
		return core.Command{Kind: core.CommandPublish, Payload: inbound.Payload}, nil
	default:
		return core.Command{}, core.NewError(core.ErrCodeMalformedMessage, "unknown message type")
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomMessage:
		m := proto.FromMessage(event.Message)
		return proto.Outbound{
			Type:    proto.OutboundTypeMessage,
			RoomID:  m.RoomID,
			Sender:  m.Sender,
			Payload: m.Payload,
			Seq:     m.Seq,
			TS:      m.TS,
		}
	case core.EventHistory:
		return proto.Outbound{
			Type:     proto.OutboundTypeHistory,
			RoomID:   event.Room,
			Messages: proto.FromMessages(event.Messages),
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Reason: "unknown", Msg: "unknown error"}
		}
		return proto.Outbound{Type: proto.OutboundTypeError, Reason: event.Error.Code, Msg: event.Error.Message}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Reason: "unknown"}
	}
}
