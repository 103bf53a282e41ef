package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"legischat/app/pipeline"
	"legischat/types"
)

// Asker answers a question within a session.
type Asker interface {
	Ask(ctx context.Context, s *pipeline.Session, question string, scope []types.DocType) (pipeline.Result, error)
}

type RequestHandler struct {
	asker    Asker
	sessions *pipeline.Registry
	timeout  time.Duration
	logger   *slog.Logger
}

func NewRequestHandler(asker Asker, sessions *pipeline.Registry, timeout time.Duration) *RequestHandler {
	return &RequestHandler{
		asker:    asker,
		sessions: sessions,
		timeout:  timeout,
		logger:   slog.Default(),
	}
}

type sessionResponse struct {
	SessionID string       `json:"session_id"`
	CreatedAt time.Time    `json:"created_at"`
	History   []types.Turn `json:"history"`
}

func (h *RequestHandler) HandleCreateSession(c *fiber.Ctx) error {
	s := h.sessions.Create()
	h.logger.Info("[API] session created", "session", s.ID)
	return c.Status(fiber.StatusCreated).JSON(sessionResponse{
		SessionID: s.ID,
		CreatedAt: s.CreatedAt,
		History:   []types.Turn{},
	})
}

func (h *RequestHandler) HandleGetSession(c *fiber.Ctx) error {
	s, err := h.session(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sessionResponse{SessionID: s.ID, CreatedAt: s.CreatedAt, History: s.History()})
}

func (h *RequestHandler) HandleDeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID()
	}
	if err := h.sessions.Delete(id); err != nil {
		return ErrNotFound(id, "session")
	}
	return c.JSON(fiber.Map{"deleted": id})
}

func (h *RequestHandler) session(id string) (*pipeline.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID()
	}
	s, err := h.sessions.Get(id)
	if err != nil {
		return nil, ErrNotFound(id, "session")
	}
	return s, nil
}

// HandleRequest answers a question. With a session_id the server-held
// history is used and extended; otherwise the request's own history is.
func (h *RequestHandler) HandleRequest(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	var (
		s   *pipeline.Session
		err error
	)
	if params.SessionID != "" {
		if s, err = h.session(params.SessionID); err != nil {
			return err
		}
	} else {
		s = pipeline.NewSessionWithHistory(params.History)
	}

	ctx := c.UserContext()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.asker.Ask(ctx, s, params.Question, params.Scope())
	if err != nil {
		return err
	}

	evidence := make([]types.Evidence, len(res.Evidence))
	for i, r := range res.Evidence {
		evidence[i] = types.NewEvidence(r)
	}

	resp := &types.SearchResponse{
		SessionID:         params.SessionID,
		Answer:            res.Answer,
		CondensedQuestion: res.CondensedQuestion,
		Evidence:          evidence,
		Timestamp:         time.Now(),
	}
	return c.JSON(resp)
}

type sourceOption struct {
	Value types.DocType `json:"value"`
	Label string        `json:"label"`
}

// HandleSources lists the selectable source scopes, "all" first.
func (h *RequestHandler) HandleSources(c *fiber.Ctx) error {
	options := []sourceOption{{Value: types.DocTypeAll, Label: types.DocTypeLabels[types.DocTypeAll]}}
	for _, dt := range types.DocTypes {
		options = append(options, sourceOption{Value: dt, Label: types.DocTypeLabels[dt]})
	}
	return c.JSON(options)
}
