package bridge

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ZentaChain/zentalk-messenger/pkg/identity"
	"github.com/ZentaChain/zentalk-messenger/pkg/messenger"
	"github.com/ZentaChain/zentalk-messenger/pkg/protocol"
	"github.com/ZentaChain/zentalk-messenger/pkg/storage"
)

// SendMessageRequest is the body of POST /api/v1/messages
type SendMessageRequest struct {
	Address string `json:"address" binding:"required"`
	ChatID  string `json:"chat_id" binding:"required"`
	Text    string `json:"text" binding:"required"`
}

// CreateChatRequest is the body of POST /api/v1/chats
type CreateChatRequest struct {
	Address  string `json:"address" binding:"required"`
	ChatID   string `json:"chat_id"`
	ChatName string `json:"chat_name" binding:"required"`
}

// BroadcastRequest is the body of POST /api/v1/broadcasts
type BroadcastRequest struct {
	Topic string `json:"topic" binding:"required"`
	Data  []byte `json:"data"` // Base64 encoded
}

// CallRequest is the body of the /api/v1/calls endpoints
type CallRequest struct {
	Address string `json:"address" binding:"required"`
	CallID  string `json:"call_id"`
	Data    []byte `json:"data"` // Base64 encoded audio frame
}

// statusFor maps delivery errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, identity.ErrInvalidAddress), errors.Is(err, messenger.ErrInvalidCommand),
		errors.Is(err, protocol.ErrSerde), errors.Is(err, protocol.ErrUnknownType):
		return http.StatusBadRequest
	case errors.Is(err, messenger.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, messenger.ErrClosed), errors.Is(err, ErrNotAttached):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUnknownFile), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error, message string) {
	c.JSON(statusFor(err), ErrorResponse{Error: message, Message: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
}

// handleSendMessage handles POST /api/v1/messages
func (s *Server) handleSendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	msg := &protocol.Message{ChatID: req.ChatID, Address: req.Address, Text: req.Text}
	stored, err := s.bridge.SendMessage(c.Request.Context(), msg)
	if err != nil {
		fail(c, err, "Message not delivered")
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: stored})
}

// handleCommand handles POST /api/v1/commands with a {"type","data"} document
func (s *Server) handleCommand(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, err)
		return
	}

	event, err := protocol.DecodeJSON(body)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := s.bridge.Dispatch(c.Request.Context(), event); err != nil {
		fail(c, err, "Command failed")
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: event})
}

// handleCreateChat handles POST /api/v1/chats
func (s *Server) handleCreateChat(c *gin.Context) {
	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	chat := &protocol.ChatCreate{ChatID: req.ChatID, ChatName: req.ChatName, Address: req.Address}
	if err := s.bridge.CreateChat(c.Request.Context(), chat); err != nil {
		fail(c, err, "Chat not created")
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: chat})
}

// handleListChats handles GET /api/v1/chats
func (s *Server) handleListChats(c *gin.Context) {
	chats, err := s.bridge.DB().GetChats()
	if err != nil {
		fail(c, err, "Failed to load chats")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: chats})
}

// handleChatMessages handles GET /api/v1/chats/:chatID/messages
func (s *Server) handleChatMessages(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid limit"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid offset"})
		return
	}

	messages, err := s.bridge.DB().GetChatMessages(c.Param("chatID"), limit, offset)
	if err != nil {
		fail(c, err, "Failed to load messages")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: messages})
}

// handleMarkRead handles POST /api/v1/chats/:chatID/read
func (s *Server) handleMarkRead(c *gin.Context) {
	if err := s.bridge.DB().MarkChatRead(c.Param("chatID")); err != nil {
		fail(c, err, "Failed to mark chat read")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// handleSendFile handles multipart POST /api/v1/files
func (s *Server) handleSendFile(c *gin.Context) {
	address := c.PostForm("address")
	chatID := c.PostForm("chat_id")
	if address == "" || chatID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: "address and chat_id are required"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}

	dir := filepath.Join(s.bridge.filesDir, "outgoing", protocol.NewID())
	if err := os.MkdirAll(dir, 0700); err != nil {
		fail(c, err, "Failed to stage file")
		return
	}
	path := filepath.Join(dir, filepath.Base(header.Filename))
	if err := c.SaveUploadedFile(header, path); err != nil {
		fail(c, err, "Failed to stage file")
		return
	}

	start, err := s.bridge.SendFile(c.Request.Context(), address, chatID, path)
	if err != nil {
		fail(c, err, "File not sent")
		return
	}

	c.JSON(http.StatusAccepted, SuccessResponse{Success: true, Data: start})
}

// handleFileStatus handles GET /api/v1/files/:fileID
func (s *Server) handleFileStatus(c *gin.Context) {
	transfer, err := s.bridge.File(c.Param("fileID"))
	if err != nil {
		fail(c, err, "File not found")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: transfer})
}

// handleFileContent handles GET /api/v1/files/:fileID/content
func (s *Server) handleFileContent(c *gin.Context) {
	transfer, err := s.bridge.File(c.Param("fileID"))
	if err != nil {
		fail(c, err, "File not found")
		return
	}

	if !transfer.IsOutgoing && transfer.Status != storage.FileStatusComplete {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "File incomplete", Message: string(transfer.Status)})
		return
	}

	c.FileAttachment(transfer.Path, transfer.FileName)
}

// handleBroadcast handles POST /api/v1/broadcasts
func (s *Server) handleBroadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	broadcast := &protocol.Broadcast{Topic: req.Topic, Data: req.Data}
	if err := s.bridge.Dispatch(c.Request.Context(), broadcast); err != nil {
		fail(c, err, "Broadcast failed")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: broadcast})
}

// handleListBroadcasts handles GET /api/v1/broadcasts
func (s *Server) handleListBroadcasts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid limit"})
		return
	}

	broadcasts, err := s.bridge.DB().GetBroadcasts(c.Query("topic"), limit)
	if err != nil {
		fail(c, err, "Failed to load broadcasts")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: broadcasts})
}

func (s *Server) call(c *gin.Context, build func(req CallRequest) protocol.Event) {
	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	event := build(req)
	if err := s.bridge.Dispatch(c.Request.Context(), event); err != nil {
		fail(c, err, "Call signaling failed")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: event})
}

// handleCallInvoke handles POST /api/v1/calls/invoke
func (s *Server) handleCallInvoke(c *gin.Context) {
	s.call(c, func(req CallRequest) protocol.Event {
		return &protocol.CallInvoke{CallID: req.CallID, Address: req.Address}
	})
}

// handleCallAnswer handles POST /api/v1/calls/answer
func (s *Server) handleCallAnswer(c *gin.Context) {
	s.call(c, func(req CallRequest) protocol.Event {
		return &protocol.CallAnswer{CallID: req.CallID, Address: req.Address}
	})
}

// handleCallReject handles POST /api/v1/calls/reject
func (s *Server) handleCallReject(c *gin.Context) {
	s.call(c, func(req CallRequest) protocol.Event {
		return &protocol.CallReject{CallID: req.CallID, Address: req.Address}
	})
}

// handleCallAudio handles POST /api/v1/calls/audio
func (s *Server) handleCallAudio(c *gin.Context) {
	s.call(c, func(req CallRequest) protocol.Event {
		return &protocol.CallAudioData{CallID: req.CallID, Address: req.Address, Data: req.Data}
	})
}

// handleContacts handles GET /api/v1/contacts
func (s *Server) handleContacts(c *gin.Context) {
	contacts, err := s.bridge.DB().GetAllContacts()
	if err != nil {
		fail(c, err, "Failed to load contacts")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: contacts})
}

// handleEvents streams host events as Server-Sent Events
func (s *Server) handleEvents(c *gin.Context) {
	ctx := c.Request.Context()
	events := s.bridge.Events(ctx)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// subscribed; tell the client so it does not race the first event
	c.SSEvent("ready", s.info().Address)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case data, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("event", string(data))
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// handleNodeInfo handles GET /api/v1/node/info
func (s *Server) handleNodeInfo(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: s.info()})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	_, err := s.bridge.attached()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
