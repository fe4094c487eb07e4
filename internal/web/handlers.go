package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"edbox/internal/database"
	"edbox/internal/file"
	"edbox/internal/group"
	"edbox/internal/message"
	"edbox/internal/org"
	"edbox/internal/session"
	"edbox/internal/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Handler struct {
	logger   *slog.Logger
	db       *database.Database
	guard    *group.Guard
	manager  *group.Manager
	store    message.Store
	files    *file.Service
	validate *validator.Validate
}

func NewHandler(
	logger *slog.Logger,
	db *database.Database,
	guard *group.Guard,
	manager *group.Manager,
	store message.Store,
	files *file.Service,
) *Handler {
	return &Handler{
		logger:   logger,
		db:       db,
		guard:    guard,
		manager:  manager,
		store:    store,
		files:    files,
		validate: validator.New(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		ErrorResponse(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Database unreachable")
		return
	}
	JSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authorizeGroup runs the shared read-side checks: decode the
// identifier, pin it to the caller's school, and verify membership.
func (h *Handler) authorizeGroup(r *http.Request, principal session.Principal) (group.Identifier, bool, error) {
	schoolID, err := uuid.Parse(chi.URLParam(r, "schoolID"))
	if err != nil || principal.User.SchoolID != schoolID {
		return nil, false, group.ErrCrossSchoolAccess
	}

	id, err := group.Decode(r.URL.Query().Get("group"))
	if err != nil {
		return nil, false, group.ErrInvalidIdentifier
	}

	if err := h.guard.AssertSchoolScope(id, principal.User); err != nil {
		return nil, false, err
	}

	member, err := h.guard.IsMember(r.Context(), id, principal.User)
	if err != nil {
		return nil, false, err
	}
	return id, member, nil
}

// ListGroupMessages serves GET /api/v1/schools/{schoolID}/messages with
// group, limit and cursor query parameters.
func (h *Handler) ListGroupMessages(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		ErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing principal")
		return
	}

	id, member, err := h.authorizeGroup(r, principal)
	if err != nil {
		h.writeGroupError(w, err)
		return
	}
	if !member {
		ErrorResponse(w, http.StatusForbidden, "FORBIDDEN", "Not a member of this group")
		return
	}

	limit := message.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid limit")
			return
		}
		limit = parsed
	}

	before := util.None[int64]()
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor, err := message.ParseCursor(raw)
		if err != nil {
			ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid cursor")
			return
		}
		before = util.Some(cursor)
	}

	page, err := h.store.Page(r.Context(), id.Encode(), limit, before)
	if err != nil {
		ErrorResponse(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Temporary failure, retry")
		return
	}

	messages := make([]message.WireMessage, 0, len(page.Messages))
	for _, m := range page.Messages {
		messages = append(messages, m.Wire())
	}

	body := map[string]any{"messages": messages}
	if page.NextCursor.IsSet {
		body["next_cursor"] = strconv.FormatInt(page.NextCursor.Val, 10)
	}
	JSONResponse(w, http.StatusOK, body)
}

// GroupInfo serves GET /api/v1/schools/{schoolID}/groups/info.
func (h *Handler) GroupInfo(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		ErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing principal")
		return
	}

	id, member, err := h.authorizeGroup(r, principal)
	if err != nil {
		h.writeGroupError(w, err)
		return
	}
	if !member {
		ErrorResponse(w, http.StatusForbidden, "FORBIDDEN", "Not a member of this group")
		return
	}

	info, err := h.manager.Info(r.Context(), id)
	if err != nil {
		h.writeGroupError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, info)
}

type createGroupRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		ErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing principal")
		return
	}

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid body")
		return
	}

	created, err := h.manager.Create(r.Context(), principal.User, req.Name)
	if err != nil {
		h.writeGroupError(w, err)
		return
	}

	JSONResponse(w, http.StatusCreated, map[string]any{
		"id":         created.ID,
		"name":       created.Name,
		"identifier": group.Custom{School: created.SchoolID, Group: created.ID}.Encode(),
	})
}

func (h *Handler) RenameGroup(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		ErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing principal")
		return
	}

	groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		ErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Group not found")
		return
	}

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid body")
		return
	}

	if err := h.manager.Rename(r.Context(), principal.User, groupID, req.Name); err != nil {
		h.writeGroupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeactivateGroup(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		ErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing principal")
		return
	}

	groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		ErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Group not found")
		return
	}

	if err := h.manager.Deactivate(r.Context(), principal.User, groupID); err != nil {
		h.writeGroupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// memberAction parses the {groupID}/{userID} pair shared by the
// membership endpoints.
func memberAction(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return groupID, userID, nil
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	h.runMemberAction(w, r, h.manager.AddMember)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	h.runMemberAction(w, r, h.manager.RemoveMember)
}

func (h *Handler) PromoteMember(w http.ResponseWriter, r *http.Request) {
	h.runMemberAction(w, r, h.manager.Promote)
}

func (h *Handler) DemoteMember(w http.ResponseWriter, r *http.Request) {
	h.runMemberAction(w, r, h.manager.Demote)
}

type memberActionFunc func(ctx context.Context, actor org.User, groupID, userID uuid.UUID) error

func (h *Handler) runMemberAction(w http.ResponseWriter, r *http.Request, action memberActionFunc) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		ErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing principal")
		return
	}

	groupID, userID, err := memberAction(r)
	if err != nil {
		ErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Group or user not found")
		return
	}

	if err := action(r.Context(), principal.User, groupID, userID); err != nil {
		h.writeGroupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IssueUpload serves POST /api/v1/uploads.
func (h *Handler) IssueUpload(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		ErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing principal")
		return
	}

	var req file.IssueParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid body")
		return
	}

	grant, err := h.files.Issue(r.Context(), principal.User, req)
	if err != nil {
		if errors.Is(err, file.ErrContentTooLarge) {
			ErrorResponse(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "Content exceeds size limit")
			return
		}
		ErrorResponse(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Temporary failure, retry")
		return
	}
	JSONResponse(w, http.StatusCreated, grant)
}

// UploadContent serves PUT /api/v1/uploads/{permissionID}.
func (h *Handler) UploadContent(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		ErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing principal")
		return
	}

	permissionID, err := uuid.Parse(chi.URLParam(r, "permissionID"))
	if err != nil {
		ErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Permission not found")
		return
	}

	if err := h.files.Upload(r.Context(), principal.User, permissionID, r.Body); err != nil {
		switch {
		case errors.Is(err, file.ErrPermissionNotFound):
			ErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Permission not found")
		case errors.Is(err, file.ErrPermissionWrongOwner):
			ErrorResponse(w, http.StatusForbidden, "PERMISSION_WRONG_OWNER", "Permission belongs to another user")
		case errors.Is(err, file.ErrPermissionUsed):
			ErrorResponse(w, http.StatusConflict, "PERMISSION_USED", "Permission already used")
		case errors.Is(err, file.ErrPermissionExpired):
			ErrorResponse(w, http.StatusGone, "PERMISSION_EXPIRED", "Permission expired")
		default:
			ErrorResponse(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Temporary failure, retry")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadAttachment serves GET /api/v1/attachments/{attachmentID}:
// the caller must be a member of the group the owning message was sent
// to.
func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		ErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing principal")
		return
	}

	attachmentID, err := uuid.Parse(chi.URLParam(r, "attachmentID"))
	if err != nil {
		ErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Attachment not found")
		return
	}

	attachment, err := h.db.GetMessageAttachmentByID(r.Context(), attachmentID)
	if err != nil {
		if errors.Is(err, database.ErrMessageAttachmentNotFound) {
			ErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Attachment not found")
			return
		}
		ErrorResponse(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Temporary failure, retry")
		return
	}

	msg, err := h.db.GetMessageByID(r.Context(), attachment.MessageID)
	if err != nil {
		ErrorResponse(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Temporary failure, retry")
		return
	}

	id, err := group.Decode(msg.GroupKey)
	if err != nil {
		ErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Attachment not found")
		return
	}
	if err := h.guard.AssertSchoolScope(id, principal.User); err != nil {
		h.writeGroupError(w, err)
		return
	}
	member, err := h.guard.IsMember(r.Context(), id, principal.User)
	if err != nil {
		h.writeGroupError(w, err)
		return
	}
	if !member {
		ErrorResponse(w, http.StatusForbidden, "FORBIDDEN", "Not a member of this group")
		return
	}

	url, err := h.files.DownloadURL(r.Context(), attachment.StorageKey)
	if err != nil {
		ErrorResponse(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Temporary failure, retry")
		return
	}
	JSONResponse(w, http.StatusOK, map[string]string{
		"url":       url,
		"file_name": attachment.FileName,
		"mime_type": attachment.MimeType,
	})
}

func (h *Handler) writeGroupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, group.ErrInvalidIdentifier):
		ErrorResponse(w, http.StatusBadRequest, "INVALID_IDENTIFIER", "Invalid group identifier")
	case errors.Is(err, group.ErrCrossSchoolAccess):
		ErrorResponse(w, http.StatusForbidden, "CROSS_SCHOOL_ACCESS", "Identifier belongs to another school")
	case errors.Is(err, group.ErrForbidden):
		ErrorResponse(w, http.StatusForbidden, "FORBIDDEN", "Not allowed")
	case errors.Is(err, group.ErrNotFound):
		ErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	case errors.Is(err, group.ErrMemberIsAdmin):
		ErrorResponse(w, http.StatusConflict, "MEMBER_IS_ADMIN", "Demote the admin before removing them")
	case errors.Is(err, group.ErrEmptyName):
		ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "Name must not be empty")
	default:
		ErrorResponse(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Temporary failure, retry")
	}
}
