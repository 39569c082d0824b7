package handlers

import (
	"context"

	"github.com/suryadevkumar/SheSecure-sub000/internal/services"
	"github.com/suryadevkumar/SheSecure-sub000/internal/utils"
	ws "github.com/suryadevkumar/SheSecure-sub000/internal/websocket"
)

// EventRouter dispatches inbound connection events to the lifecycle
// controllers. Every failure is reported to the originating connection
// only; no event crashes the process or affects other sessions.
type EventRouter struct {
	sos      *services.SOSService
	location *services.LocationService
	chat     *services.ChatService
}

func NewEventRouter(sos *services.SOSService, location *services.LocationService, chat *services.ChatService) *EventRouter {
	return &EventRouter{
		sos:      sos,
		location: location,
		chat:     chat,
	}
}

// Route handles a single validated event from a connection
func (r *EventRouter) Route(c *ws.Client, e *ws.Event) {
	ctx := context.Background()

	var err error
	switch e.Event {
	case ws.EventStartSOS:
		err = r.startSOS(ctx, c, e)
	case ws.EventJoinSOS:
		err = r.withSessionID(e, func(id string) error {
			return r.sos.Join(ctx, c.UserID, id)
		})
	case ws.EventUpdateLocation:
		err = r.updateSOSLocation(ctx, e)
	case ws.EventLeaveSOS:
		err = r.withSessionID(e, func(id string) error {
			// the owner leaving ends the broadcast; a viewer just unsubscribes
			if r.sos.IsOwner(id, c.UserID) {
				return r.sos.End(ctx, id)
			}
			r.sos.Leave(c.UserID, id)
			return nil
		})

	case ws.EventLocationStart:
		err = r.startShare(ctx, c, e)
	case ws.EventLocationJoin:
		err = r.withSessionID(e, func(id string) error {
			return r.location.Join(ctx, c.UserID, id)
		})
	case ws.EventLocationUpdate:
		err = r.updateShareLocation(ctx, e)
	case ws.EventLocationEnd:
		err = r.withSessionID(e, func(id string) error {
			if r.location.IsOwner(id, c.UserID) {
				return r.location.End(ctx, id)
			}
			r.location.Leave(c.UserID, id)
			return nil
		})

	case ws.EventKeepAlive:
		// a keep-alive carries no session kind; both controllers treat an
		// unknown id as a no-op
		err = r.withSessionID(e, func(id string) error {
			r.sos.KeepAlive(id)
			r.location.KeepAlive(id)
			return nil
		})

	case ws.EventCreateChatRequest:
		_, err = r.chat.CreateRequest(ctx, c.UserID, e.Str("problem_type"), e.Str("brief"))
	case ws.EventAcceptChatRequest:
		err = r.acceptChatRequest(ctx, c, e)
	case ws.EventSendMessage:
		err = r.withRoomID(e, func(roomID string) error {
			content := e.Str("content")
			if vErr := utils.ValidateMessageContent(content); vErr != nil {
				return services.Invalid(vErr.Error())
			}
			_, sendErr := r.chat.SendMessage(ctx, roomID, c.UserID, content)
			return sendErr
		})
	case ws.EventRequestEndChat:
		err = r.withRoomID(e, func(roomID string) error {
			return r.chat.RequestEnd(ctx, roomID, c.UserID)
		})
	case ws.EventEndChatResponse:
		err = r.endChatResponse(ctx, c, e)
	case ws.EventMarkRead:
		err = r.withRoomID(e, func(roomID string) error {
			return r.chat.MarkRead(ctx, roomID, c.UserID)
		})
	case ws.EventMarkRoomActive:
		err = r.withRoomID(e, func(roomID string) error {
			r.chat.MarkRoomActive(c.UserID, roomID)
			return nil
		})

	case ws.EventUserTyping:
		err = r.withRoomID(e, func(roomID string) error {
			return r.chat.Typing(roomID, c.UserID, true)
		})
	case ws.EventUserStoppedTyping:
		err = r.withRoomID(e, func(roomID string) error {
			return r.chat.Typing(roomID, c.UserID, false)
		})

	default:
		c.SendError(ws.CodeValidationError, "unknown event: "+string(e.Event))
		return
	}

	if err != nil {
		c.SendError(services.ErrorCode(err), err.Error())
	}
}

func (r *EventRouter) startSOS(ctx context.Context, c *ws.Client, e *ws.Event) error {
	lat, lng, err := coordinates(e)
	if err != nil {
		return err
	}

	session, err := r.sos.Start(ctx, c.UserID, lat, lng)
	if err != nil {
		return err
	}

	c.SendEvent(ws.NewEvent(ws.EventSOSStarted, map[string]interface{}{
		"session_id":     session.SessionID,
		"shareable_link": session.ShareableLink,
	}))
	return nil
}

func (r *EventRouter) startShare(ctx context.Context, c *ws.Client, e *ws.Event) error {
	lat, lng, err := coordinates(e)
	if err != nil {
		return err
	}

	share, err := r.location.Start(ctx, c.UserID, lat, lng)
	if err != nil {
		return err
	}

	c.SendEvent(ws.NewEvent(ws.EventShareStarted, map[string]interface{}{
		"share_id":       share.ShareID,
		"shareable_link": share.ShareableLink,
	}))
	return nil
}

func (r *EventRouter) updateSOSLocation(ctx context.Context, e *ws.Event) error {
	lat, lng, err := coordinates(e)
	if err != nil {
		return err
	}
	return r.withSessionID(e, func(id string) error {
		return r.sos.UpdateLocation(ctx, id, lat, lng)
	})
}

func (r *EventRouter) updateShareLocation(ctx context.Context, e *ws.Event) error {
	lat, lng, err := coordinates(e)
	if err != nil {
		return err
	}
	return r.withSessionID(e, func(id string) error {
		return r.location.Update(ctx, id, lat, lng)
	})
}

func (r *EventRouter) acceptChatRequest(ctx context.Context, c *ws.Client, e *ws.Event) error {
	if !c.IsCounselor {
		return services.Unauthorized("only counselors may accept chat requests")
	}
	requestID := e.Str("request_id")
	if requestID == "" {
		return services.Invalid("request_id is required")
	}
	_, err := r.chat.AcceptRequest(ctx, c.UserID, requestID)
	return err
}

func (r *EventRouter) endChatResponse(ctx context.Context, c *ws.Client, e *ws.Event) error {
	accepted, ok := e.Bool("accepted")
	if !ok {
		return services.Invalid("accepted is required")
	}
	return r.withRoomID(e, func(roomID string) error {
		return r.chat.RespondEnd(ctx, roomID, c.UserID, accepted)
	})
}

func (r *EventRouter) withSessionID(e *ws.Event, fn func(string) error) error {
	id := e.Str("session_id")
	if id == "" {
		return services.Invalid("session_id is required")
	}
	return fn(id)
}

func (r *EventRouter) withRoomID(e *ws.Event, fn func(string) error) error {
	roomID := e.Str("room_id")
	if roomID == "" {
		return services.Invalid("room_id is required")
	}
	return fn(roomID)
}

func coordinates(e *ws.Event) (float64, float64, error) {
	lat, ok := e.Float("lat")
	if !ok {
		return 0, 0, services.Invalid("lat is required")
	}
	lng, ok := e.Float("lng")
	if !ok {
		return 0, 0, services.Invalid("lng is required")
	}
	if err := utils.ValidateCoordinates(lat, lng); err != nil {
		return 0, 0, services.Invalid(err.Error())
	}
	return lat, lng, nil
}
