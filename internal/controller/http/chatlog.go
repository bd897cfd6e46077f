package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/chatlogs/internal/domain/chatlog/entity"
	"github.com/vadim/chatlogs/internal/domain/chatlog/policy"
	"github.com/vadim/chatlogs/internal/domain/chatlog/service"
	"github.com/vadim/chatlogs/internal/httpx/response"
	"github.com/vadim/chatlogs/internal/render"
)

// ChatlogPolicy defines the interface for chat log operations
// Interface is defined by consumer (handler), not provider (policy)
type ChatlogPolicy interface {
	ListConversations(ctx context.Context, in service.ListConversationsInput) (*service.ListConversationsOutput, error)
	GetConversation(ctx context.Context, id int64) (*service.ConversationPage, error)
	GetMessages(ctx context.Context, conversationID int64) ([]entity.MessageView, error)
	ListParticipants(ctx context.Context, limit, offset int) (*service.ListParticipantsOutput, error)
	Sync(ctx context.Context) (*policy.SyncOutput, error)
	Reconcile(ctx context.Context) (*service.ReconcileResult, error)
	Archive(ctx context.Context, id int64) (string, error)
}

// PageRenderer renders the browse pages
type PageRenderer interface {
	RenderList(w io.Writer, page render.ListPage) error
	RenderConversation(w io.Writer, page render.ConversationPage) error
}

// ChatlogHandler handles HTTP requests for chat logs
type ChatlogHandler struct {
	policy   ChatlogPolicy
	renderer PageRenderer
}

// NewChatlogHandler creates a new chat log handler
func NewChatlogHandler(p ChatlogPolicy, r PageRenderer) *ChatlogHandler {
	return &ChatlogHandler{policy: p, renderer: r}
}

// RegisterPages registers the HTML browse pages
func (h *ChatlogHandler) RegisterPages(r chi.Router) {
	r.Get("/", h.ListPage())
	r.Get("/conversations/{id}", h.ConversationPage())
}

// RegisterRoutes registers chat log API routes
func (h *ChatlogHandler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.List())
		r.Get("/{id}", h.Get())
		r.Get("/{id}/messages", h.Messages())
		r.Post("/{id}/archive", h.Archive())
	})
	r.Get("/participants", h.Participants())
	r.Post("/sync", h.Sync())
	r.Post("/reconcile", h.Reconcile())
}

// ListPage handles GET / (HTML)
func (h *ChatlogHandler) ListPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := parseListQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		out, err := h.policy.ListConversations(r.Context(), in)
		if err != nil {
			handlePageError(w, err)
			return
		}

		page := render.ListPage{
			Conversations: out.Conversations,
			Total:         out.Total,
			Sort:          in.Sort,
			Asc:           in.Asc,
			Limit:         out.Limit,
			Offset:        in.Offset,
			HasMore:       out.HasMore,
		}
		err = response.HTML(w, http.StatusOK, func(w io.Writer) error {
			return h.renderer.RenderList(w, page)
		})
		if err != nil {
			handlePageError(w, err)
		}
	}
}

// ConversationPage handles GET /conversations/{id} (HTML)
func (h *ChatlogHandler) ConversationPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseConversationID(r)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		out, err := h.policy.GetConversation(r.Context(), id)
		if err != nil {
			handlePageError(w, err)
			return
		}

		page := render.ConversationPage{
			Conversation: out.Conversation,
			Previous:     out.Previous,
			Next:         out.Next,
			Messages:     out.Messages,
		}
		err = response.HTML(w, http.StatusOK, func(w io.Writer) error {
			return h.renderer.RenderConversation(w, page)
		})
		if err != nil {
			handlePageError(w, err)
		}
	}
}

// List handles GET /conversations
func (h *ChatlogHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := parseListQuery(r)
		if err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		out, err := h.policy.ListConversations(r.Context(), in)
		if err != nil {
			handleChatlogError(w, err)
			return
		}
		response.OK(w, out)
	}
}

// Get handles GET /conversations/{id}
func (h *ChatlogHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseConversationID(r)
		if err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		out, err := h.policy.GetConversation(r.Context(), id)
		if err != nil {
			handleChatlogError(w, err)
			return
		}
		response.OK(w, out)
	}
}

// Messages handles GET /conversations/{id}/messages
func (h *ChatlogHandler) Messages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseConversationID(r)
		if err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		messages, err := h.policy.GetMessages(r.Context(), id)
		if err != nil {
			handleChatlogError(w, err)
			return
		}
		response.OK(w, map[string]any{"messages": messages})
	}
}

// Participants handles GET /participants
func (h *ChatlogHandler) Participants() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset, err := parsePaging(r)
		if err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		out, err := h.policy.ListParticipants(r.Context(), limit, offset)
		if err != nil {
			handleChatlogError(w, err)
			return
		}
		response.OK(w, out)
	}
}

// Sync handles POST /sync
func (h *ChatlogHandler) Sync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.policy.Sync(r.Context())
		if err != nil {
			handleChatlogError(w, err)
			return
		}
		response.OK(w, out)
	}
}

// Reconcile handles POST /reconcile
func (h *ChatlogHandler) Reconcile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.policy.Reconcile(r.Context())
		if err != nil {
			handleChatlogError(w, err)
			return
		}
		response.OK(w, out)
	}
}

// Archive handles POST /conversations/{id}/archive
func (h *ChatlogHandler) Archive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseConversationID(r)
		if err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		url, err := h.policy.Archive(r.Context(), id)
		if err != nil {
			handleChatlogError(w, err)
			return
		}
		response.OK(w, map[string]any{"conversation_id": id, "url": url})
	}
}

func parseConversationID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid conversation id")
	}
	return id, nil
}

func parsePaging(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", v)
		}
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", v)
		}
	}
	return limit, offset, nil
}

// parseListQuery reads sort, dir, limit and offset. Unknown sort columns
// fall back to the default ordering.
func parseListQuery(r *http.Request) (service.ListConversationsInput, error) {
	limit, offset, err := parsePaging(r)
	if err != nil {
		return service.ListConversationsInput{}, err
	}

	q := r.URL.Query()
	in := service.ListConversationsInput{
		Sort:   entity.ParseConversationSort(q.Get("sort")),
		Limit:  limit,
		Offset: offset,
	}
	switch q.Get("dir") {
	case "", "desc":
	case "asc":
		in.Asc = true
	default:
		return service.ListConversationsInput{}, fmt.Errorf("invalid dir %q", q.Get("dir"))
	}
	return in, nil
}

func handleChatlogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrConversationNotFound):
		response.NotFound(w, entity.ErrConversationNotFound.Error())
	case errors.Is(err, entity.ErrRunInProgress):
		response.Conflict(w, entity.ErrRunInProgress.Error())
	case errors.Is(err, entity.ErrArchiveDisabled):
		response.ServiceUnavailable(w, entity.ErrArchiveDisabled.Error())
	default:
		response.InternalError(w, "internal server error")
	}
}

func handlePageError(w http.ResponseWriter, err error) {
	if errors.Is(err, entity.ErrConversationNotFound) {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
