package http

import (
	"context"
	"net/http"

	"courtside/internal/domain"
	"courtside/internal/feed"
	"courtside/internal/membership"
	"courtside/internal/service"
)

type roomDetail struct {
	*domain.Room
	Access   string                    `json:"access"`
	Messages []service.RoomMessageView `json:"messages"`
}

type joinRequest struct {
	Password string `json:"password"`
}

func (h *handler) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.Services.Rooms.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *handler) createRoom(w http.ResponseWriter, r *http.Request) {
	var in domain.RoomInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	room, err := h.Services.Rooms.Create(r.Context(), identity(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// resolveRoom loads the room and the caller's access to it.
func (h *handler) resolveRoom(ctx context.Context, r *http.Request) (*domain.Room, *membership.Gate, error) {
	roomID, err := uuidParam(r, "id")
	if err != nil {
		return nil, nil, err
	}
	room, err := h.Services.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	gate := membership.New(h.Services.Rooms, identity(r))
	if _, err := gate.Resolve(ctx, room); err != nil {
		return nil, nil, err
	}
	return room, gate, nil
}

// getRoom returns messages only when the caller may read them; a private
// room shows its header and a password prompt otherwise.
func (h *handler) getRoom(w http.ResponseWriter, r *http.Request) {
	room, gate, err := h.resolveRoom(r.Context(), r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := roomDetail{Room: room, Access: gate.State().String(), Messages: []service.RoomMessageView{}}
	if gate.CanReadMessages() {
		if out.Messages, err = h.Services.Rooms.Messages(r.Context(), identity(r), room.ID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	_, gate, err := h.resolveRoom(r.Context(), r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := gate.Join(r.Context(), req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": st.String()})
}

func (h *handler) sendRoomMessage(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	msg, err := h.Services.Rooms.Send(r.Context(), identity(r), roomID, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// roomLive refuses the upgrade until the caller may read the room, so no
// history leaks before a password join.
func (h *handler) roomLive(w http.ResponseWriter, r *http.Request) {
	room, gate, err := h.resolveRoom(r.Context(), r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !gate.CanReadMessages() {
		h.writeError(w, r, domain.ErrForbidden)
		return
	}
	id := identity(r)
	roomID := room.ID
	serveLive(h, w, r, liveRoute[service.RoomMessageView]{
		key:    "room:" + roomID.String(),
		filter: feed.Filter{Table: feed.TableRoomMessages, ConversationID: roomID},
		load: func(ctx context.Context) ([]service.RoomMessageView, error) {
			return h.Services.Rooms.Messages(ctx, id, roomID)
		},
		send: func(ctx context.Context, content string) error {
			_, err := h.Services.Rooms.Send(ctx, id, roomID, content)
			return err
		},
	})
}

var _ membership.Rooms = (*service.RoomService)(nil)
