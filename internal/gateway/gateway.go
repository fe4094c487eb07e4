package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"edbox/internal/config"
	"edbox/internal/group"
	"edbox/internal/message"
	"edbox/internal/org"
	"edbox/internal/session"
	"edbox/internal/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SessionResolver authenticates a bearer token.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (session.Principal, error)
}

// Gateway owns the realtime surface: one websocket namespace per
// school, rooms named by canonical group keys, and the messageCreate
// pipeline. It keeps no durable state; a reconnecting client catches up
// through pagination.
type Gateway struct {
	logger      *slog.Logger
	sessions    SessionResolver
	org         org.Resolver
	deriver     *group.Deriver
	guard       *group.Guard
	groups      group.Store
	store       message.Store
	limiter     *RateLimiter
	hub         *hub
	upgrader    websocket.Upgrader
	validate    *validator.Validate
	callTimeout time.Duration
	sendBuffer  int
}

func NewGateway(
	logger *slog.Logger,
	cfg config.GatewayConfig,
	sessions SessionResolver,
	orgResolver org.Resolver,
	deriver *group.Deriver,
	guard *group.Guard,
	groups group.Store,
	store message.Store,
	limiter *RateLimiter,
) *Gateway {
	return &Gateway{
		logger:   logger,
		sessions: sessions,
		org:      orgResolver,
		deriver:  deriver,
		guard:    guard,
		groups:   groups,
		store:    store,
		limiter:  limiter,
		hub:      newHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Auth is token based, not cookie based, so cross
				// origin upgrades carry no ambient credentials.
				return true
			},
		},
		validate:    validator.New(),
		callTimeout: cfg.CallTimeout,
		sendBuffer:  cfg.SendBuffer,
	}
}

// HandleSocket upgrades GET /socket/{schoolID}. Authentication happens
// before the upgrade: a bad school, token, or school mismatch is
// rejected with a plain 401 and no websocket handshake.
func (g *Gateway) HandleSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	schoolID, err := uuid.Parse(chi.URLParam(r, "schoolID"))
	if err != nil {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	token := bearerToken(r)
	principal, err := g.sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if principal.User.SchoolID != schoolID {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	school, err := g.org.School(ctx, schoolID)
	if err != nil {
		if errors.Is(err, org.ErrSchoolNotFound) {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if !school.IsActive {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	rooms, err := g.memberRooms(ctx, principal.User)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to compute member rooms",
			slog.String("user_id", principal.User.ID.String()),
			slog.String("error", err.Error()),
		)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.WarnContext(ctx, "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(conn, principal, g.sendBuffer, g.logger)
	g.hub.join(c, rooms)

	g.logger.InfoContext(ctx, "websocket connection established",
		slog.String("user_id", principal.User.ID.String()),
		slog.String("school_id", schoolID.String()),
		slog.Int("rooms", len(rooms)),
	)

	go c.writePump()
	c.readPump(g.handleFrame)

	g.hub.leave(c)
	close(c.send)
}

// memberRooms is the union of the user's derived automatic groups and
// their active custom group memberships.
func (g *Gateway) memberRooms(ctx context.Context, user org.User) ([]string, error) {
	set, err := g.deriver.Derive(ctx, user)
	if err != nil {
		return nil, err
	}
	keys := set.Keys()

	customGroups, err := g.groups.ListCustomGroupsByMember(ctx, user.SchoolID, user.ID)
	if err != nil {
		return nil, err
	}
	for _, cg := range customGroups {
		keys = append(keys, group.Custom{School: cg.SchoolID, Group: cg.ID}.Encode())
	}
	return keys, nil
}

func (g *Gateway) handleFrame(c *client, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		g.ackError(c, "", CodeBadRequest, "malformed frame")
		return
	}

	switch frame.Type {
	case EventMessageCreate:
		g.handleMessageCreate(c, frame.Ref, frame.Payload)
	default:
		g.ackError(c, frame.Ref, CodeBadRequest, "unknown event type")
	}
}

// handleMessageCreate runs the full send pipeline. Every outcome is
// acknowledged; a failure never reaches the room.
func (g *Gateway) handleMessageCreate(c *client, ref string, raw json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), g.callTimeout)
	defer cancel()

	user := c.principal.User

	if err := g.limiter.CheckSend(ctx, user.ID); err != nil {
		g.ackError(c, ref, CodeRateLimited, "message rate exceeded")
		return
	}

	var payload MessageCreatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		g.ackError(c, ref, CodeBadRequest, "malformed payload")
		return
	}
	if err := g.validate.Struct(payload); err != nil {
		g.ackError(c, ref, CodeBadRequest, "invalid payload")
		return
	}

	id, err := group.Decode(payload.GroupIdentifier)
	if err != nil {
		g.ackError(c, ref, CodeInvalidIdentifier, "invalid group identifier")
		return
	}

	if err := g.guard.AssertSchoolScope(id, user); err != nil {
		g.ackError(c, ref, CodeCrossSchoolAccess, "identifier belongs to another school")
		return
	}

	if err := g.guard.CanSendMessage(ctx, id, user); err != nil {
		code, msg := sendErrorCode(err)
		g.ackError(c, ref, code, msg)
		return
	}

	permissions := make([]message.Permission, 0, len(payload.AttachmentPermissions))
	for _, permissionRef := range payload.AttachmentPermissions {
		permission := message.Permission{ID: permissionRef.PermissionID}
		if permissionRef.FileName != nil {
			permission.FileName = util.Some(*permissionRef.FileName)
		}
		permissions = append(permissions, permission)
	}

	msg, err := g.store.Append(ctx, message.AppendParams{
		GroupKey:    id.Encode(),
		SchoolID:    user.SchoolID,
		Sender:      user,
		Text:        payload.Text,
		Permissions: permissions,
	})
	if err != nil {
		code, errMsg := appendErrorCode(err)
		g.logger.WarnContext(ctx, "message append rejected",
			slog.String("user_id", user.ID.String()),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		g.ackError(c, ref, code, errMsg)
		return
	}

	wire := msg.Wire()

	ack, err := encodeFrame(EventAck, ref, AckPayload{OK: true, Message: &wire})
	if err == nil {
		c.trySend(ack)
	}

	broadcastFrame, err := encodeFrame(EventNewMessage, "", wire)
	if err == nil {
		g.hub.broadcast(msg.GroupKey, broadcastFrame, c)
	}
}

func (g *Gateway) ackError(c *client, ref, code, errMsg string) {
	data, err := encodeFrame(EventAck, ref, AckPayload{
		OK:    false,
		Error: &AckError{Code: code, Message: errMsg},
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func sendErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, group.ErrCrossSchoolAccess):
		return CodeCrossSchoolAccess, "identifier belongs to another school"
	case errors.Is(err, group.ErrForbidden):
		return CodeForbidden, "not a member of this group"
	case errors.Is(err, group.ErrNotFound):
		return CodeNotFound, "group not found"
	default:
		return CodeTransient, "temporary failure, retry"
	}
}

func appendErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, message.ErrPermissionNotFound):
		return CodeNotFound, "unknown upload permission"
	case errors.Is(err, message.ErrPermissionExpired):
		return CodePermissionExpired, "upload permission expired"
	case errors.Is(err, message.ErrPermissionUsed):
		return CodePermissionUsed, "upload permission already used"
	case errors.Is(err, message.ErrPermissionWrongOwner):
		return CodePermissionWrongOwner, "upload permission belongs to another user"
	default:
		return CodeTransient, "temporary failure, retry"
	}
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
