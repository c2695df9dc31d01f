// Package handlers exposes the HTTP/websocket surface of the sync core.
package handlers

import (
	"encoding/base64"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/chirpchat/chirp/internal/group"
	"github.com/chirpchat/chirp/internal/hub"
	"github.com/chirpchat/chirp/internal/message"
)

// API bundles the collaborators the handlers need.
type API struct {
	Store  *message.Store
	Hub    *hub.Hub
	Groups *group.Registry
}

// Register mounts all routes on the app.
func (a *API) Register(app *fiber.App) {
	app.Post("/api/messages", a.SendHandler)
	app.Put("/api/messages/:id", a.EditHandler)
	app.Delete("/api/messages/:id", a.DeleteHandler)
	app.Post("/api/messages/:id/pin", a.PinHandler)
	app.Get("/api/history", a.HistoryHandler)
	app.Get("/api/ws/:user", websocket.New(a.AttachHandler))

	app.Post("/api/groups/:id/members", a.AddMemberHandler)
	app.Delete("/api/groups/:id/members/:user", a.RemoveMemberHandler)
}

// statusFor maps the store's error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, message.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, message.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, message.ErrForbidden):
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

type mediaPayload struct {
	Name string `json:"name"`
	Data string `json:"data"` // base64
}

type sendRequest struct {
	SenderID   string        `json:"senderId"`
	ReceiverID string        `json:"receiverId"`
	GroupID    string        `json:"groupId"`
	Text       string        `json:"text"`
	ReplyTo    string        `json:"replyTo"`
	Media      *mediaPayload `json:"media"`
}

// SendHandler POST /api/messages
//
// Responds once the store commit succeeds; fan-out happens independently
// and its failure never fails this request.
func (a *API) SendHandler(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	in := message.CreateInput{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		GroupID:    req.GroupID,
		Text:       req.Text,
		ReplyTo:    req.ReplyTo,
	}
	if req.Media != nil {
		data, err := base64.StdEncoding.DecodeString(req.Media.Data)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid media encoding"})
		}
		in.MediaName = req.Media.Name
		in.MediaData = data
	}
	msg, err := a.Store.Create(c.Context(), in)
	if err != nil {
		return fail(c, err)
	}
	a.Hub.Publish(message.Event{Type: message.EventCreated, Message: msg})
	return c.Status(fiber.StatusCreated).JSON(msg)
}

type editRequest struct {
	ActorID string `json:"actorId"`
	Text    string `json:"text"`
}

// EditHandler PUT /api/messages/:id
func (a *API) EditHandler(c *fiber.Ctx) error {
	var req editRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	msg, err := a.Store.Edit(c.Context(), c.Params("id"), req.ActorID, req.Text)
	if err != nil {
		return fail(c, err)
	}
	a.Hub.Publish(message.Event{Type: message.EventEdited, Message: msg})
	return c.JSON(msg)
}

// DeleteHandler DELETE /api/messages/:id?actor=
func (a *API) DeleteHandler(c *fiber.Ctx) error {
	actor := c.Query("actor")
	if actor == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing actor"})
	}
	msg, err := a.Store.SoftDelete(c.Context(), c.Params("id"), actor)
	if err != nil {
		return fail(c, err)
	}
	a.Hub.Publish(message.Event{Type: message.EventDeleted, Message: msg})
	return c.JSON(msg)
}

type pinRequest struct {
	ActorID string `json:"actorId"`
}

// PinHandler POST /api/messages/:id/pin
//
// Covers both pin and unpin; the pinned field of the emitted event carries
// the then-current direction.
func (a *API) PinHandler(c *fiber.Ctx) error {
	var req pinRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	msg, err := a.Store.TogglePin(c.Context(), c.Params("id"), req.ActorID)
	if err != nil {
		return fail(c, err)
	}
	a.Hub.Publish(message.Event{Type: message.EventPinned, Message: msg})
	return c.JSON(msg)
}

// HistoryHandler GET /api/history?group= or ?user=&peer=
func (a *API) HistoryHandler(c *fiber.Ctx) error {
	var conv message.Conversation
	if g := c.Query("group"); g != "" {
		conv = message.Group(g)
	} else {
		user, peer := c.Query("user"), c.Query("peer")
		if user == "" || peer == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "need group or user+peer"})
		}
		conv = message.Direct(user, peer)
	}
	msgs, err := a.Store.History(c.Context(), conv)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(msgs)
}

// AttachHandler handles GET /api/ws/:user, attaching a channel session.
func (a *API) AttachHandler(c *websocket.Conn) {
	s := hub.NewSession(a.Hub, c.Params("user"), c)
	a.Hub.RegisterChan <- s
	defer func() { a.Hub.UnregisterChan <- s }()
	go s.WritePump()
	s.ReadPump()
}

// AddMemberHandler POST /api/groups/:id/members?user=
func (a *API) AddMemberHandler(c *fiber.Ctx) error {
	user := c.Query("user")
	if user == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing user"})
	}
	a.Groups.Add(c.Params("id"), user)
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveMemberHandler DELETE /api/groups/:id/members/:user
func (a *API) RemoveMemberHandler(c *fiber.Ctx) error {
	a.Groups.Remove(c.Params("id"), c.Params("user"))
	return c.SendStatus(fiber.StatusNoContent)
}
