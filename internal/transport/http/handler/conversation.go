package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gopherai-search/internal/ai"
	"gopherai-search/internal/app"
	"gopherai-search/internal/pipeline"
	"gopherai-search/internal/session"
	"gopherai-search/internal/transport/http/middleware"
	"gopherai-search/internal/transport/http/response"
)

const maxAudioSize = 25 << 20 // 25 MB

type ConversationHandler struct {
	chatService *app.ChatService
}

type CreateConversationRequest struct {
	Title string `json:"title" binding:"max=128"`
}

type SendTurnRequest struct {
	Content string `json:"content" binding:"required"`
	Mode    string `json:"mode"`
	Profile string `json:"profile"`
	Speak   bool   `json:"speak"`
}

func NewConversationHandler(chatService *app.ChatService) *ConversationHandler {
	return &ConversationHandler{chatService: chatService}
}

func (h *ConversationHandler) Create(c *gin.Context) {
	ownerID, ok := middleware.SessionID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateConversationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}

	conv, err := h.chatService.CreateConversation(c.Request.Context(), ownerID, req.Title)
	if err != nil {
		writeConversationError(c, err, "create conversation failed")
		return
	}
	response.OK(c, conv)
}

func (h *ConversationHandler) List(c *gin.Context) {
	ownerID, ok := middleware.SessionID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	list, err := h.chatService.ListConversations(c.Request.Context(), ownerID)
	if err != nil {
		writeConversationError(c, err, "list conversations failed")
		return
	}
	response.OK(c, list)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	ownerID, ok := middleware.SessionID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	conversationID := c.Param("id")
	if err := h.chatService.DeleteConversation(c.Request.Context(), ownerID, conversationID); err != nil {
		writeConversationError(c, err, "delete conversation failed")
		return
	}
	response.OK(c, gin.H{"deleted_conversation_id": conversationID})
}

func (h *ConversationHandler) Turns(c *gin.Context) {
	ownerID, ok := middleware.SessionID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	turns, err := h.chatService.History(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		writeConversationError(c, err, "get history failed")
		return
	}
	response.OK(c, turns)
}

func (h *ConversationHandler) SendTurn(c *gin.Context) {
	ownerID, ok := middleware.SessionID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SendTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	h.streamTurn(c, app.TurnInput{
		OwnerID:        ownerID,
		ConversationID: c.Param("id"),
		Content:        req.Content,
		Mode:           req.Mode,
		Profile:        req.Profile,
		Speak:          req.Speak,
	})
}

// Voice transcribes the uploaded recording and answers it like a typed turn.
func (h *ConversationHandler) Voice(c *gin.Context) {
	ownerID, ok := middleware.SessionID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioSize+(1<<20))
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "audio file is required")
		return
	}
	if fileHeader.Size > maxAudioSize {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, "audio file is too large")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read audio file failed")
		return
	}
	audio, err := io.ReadAll(file)
	_ = file.Close()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read audio file failed")
		return
	}

	conversationID := c.Param("id")
	text, err := h.chatService.Transcribe(c.Request.Context(), ownerID, conversationID, audio, fileHeader.Filename)
	if err != nil {
		writeConversationError(c, err, "transcribe audio failed")
		return
	}

	speak, _ := strconv.ParseBool(c.PostForm("speak"))
	h.streamTurn(c, app.TurnInput{
		OwnerID:        ownerID,
		ConversationID: conversationID,
		Content:        text,
		Mode:           c.PostForm("mode"),
		Profile:        c.PostForm("profile"),
		Speak:          speak,
	})
}

func (h *ConversationHandler) streamTurn(c *gin.Context, input app.TurnInput) {
	w := &sseWriter{c: c}
	_, err := h.chatService.StreamTurn(c.Request.Context(), input, w.emit)
	if err == nil {
		return
	}
	if w.started {
		// StreamTurn already reported the failure on the stream
		_ = c.Error(err)
		return
	}
	writeConversationError(c, err, "send turn failed")
}

func writeConversationError(c *gin.Context, err error, fallback string) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrMessageEmpty),
		errors.Is(err, session.ErrInvalidOwner),
		errors.Is(err, pipeline.ErrInvalidMode),
		errors.Is(err, ai.ErrEmptyAudio):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, session.ErrConversationNotFound):
		response.Error(c, http.StatusNotFound, response.CodeConversationNotFound, err.Error())
	case errors.Is(err, app.ErrTurnInProgress):
		response.Error(c, http.StatusConflict, response.CodeTurnInProgress, err.Error())
	case errors.Is(err, app.ErrTranscriptionDisabled):
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
