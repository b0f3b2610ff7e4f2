package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ChannelHandlers provides read-only HTTP handlers over the server state.
type ChannelHandlers struct {
	network Network
	log     *zerolog.Logger
}

// NewChannelHandlers creates a new channel handlers instance.
func NewChannelHandlers(network Network, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{
		network: network,
		log:     logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChannelResponse represents a channel in API responses. Keys are never
// exposed.
type ChannelResponse struct {
	Name    string   `json:"name"`
	Host    string   `json:"host"`
	Hosted  bool     `json:"hosted"`
	HasKey  bool     `json:"has_key"`
	Members []string `json:"members"`
}

// MessageResponse represents a channel message in API responses.
type MessageResponse struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// UserResponse represents a known user in API responses.
type UserResponse struct {
	Nickname string `json:"nickname"`
	Server   string `json:"server"`
}

// PeersResponse describes this server and its peers.
type PeersResponse struct {
	Name  string   `json:"name"`
	Peers []string `json:"peers"`
}

// ListChannels handles listing every known channel.
// GET /api/channels
func (h *ChannelHandlers) ListChannels(c *gin.Context) {
	chs, err := h.network.Directory().Channels(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list channels")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	self := h.network.Name()
	response := make([]ChannelResponse, 0, len(chs))
	for _, ch := range chs {
		members := ch.Members
		if members == nil {
			members = []string{}
		}
		response = append(response, ChannelResponse{
			Name:    ch.Name,
			Host:    ch.Host,
			Hosted:  ch.Host == self,
			HasKey:  ch.Key != "",
			Members: members,
		})
	}
	c.JSON(http.StatusOK, response)
}

// GetChannel handles fetching one channel.
// GET /api/channels/:name
func (h *ChannelHandlers) GetChannel(c *gin.Context) {
	name := c.Param("name")
	ch, found, err := h.network.Directory().FindChannel(c.Request.Context(), name)
	if err != nil {
		h.log.Error().Err(err).Str("channel", name).Msg("failed to find channel")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
		return
	}
	members := ch.Members
	if members == nil {
		members = []string{}
	}
	c.JSON(http.StatusOK, ChannelResponse{
		Name:    ch.Name,
		Host:    ch.Host,
		Hosted:  ch.Host == h.network.Name(),
		HasKey:  ch.Key != "",
		Members: members,
	})
}

// ListMessages handles listing the recorded messages of a channel hosted
// here.
// GET /api/channels/:name/messages
func (h *ChannelHandlers) ListMessages(c *gin.Context) {
	name := c.Param("name")
	ctx := c.Request.Context()
	if _, found, err := h.network.Directory().FindChannel(ctx, name); err != nil || !found {
		if err != nil {
			h.log.Error().Err(err).Str("channel", name).Msg("failed to find channel")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
		return
	}

	msgs, err := h.network.Directory().Messages(ctx, name)
	if err != nil {
		h.log.Error().Err(err).Str("channel", name).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	response := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		response = append(response, MessageResponse{
			ID:        m.ID,
			Author:    m.Author,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	c.JSON(http.StatusOK, response)
}

// ListUsers handles listing the users this server has seen.
// GET /api/users
func (h *ChannelHandlers) ListUsers(c *gin.Context) {
	users, err := h.network.Directory().Users(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	response := make([]UserResponse, 0, len(users))
	for _, u := range users {
		response = append(response, UserResponse{Nickname: u.Nickname, Server: u.Server})
	}
	c.JSON(http.StatusOK, response)
}

// ListPeers handles describing the server and its peers.
// GET /api/peers
func (h *ChannelHandlers) ListPeers(c *gin.Context) {
	c.JSON(http.StatusOK, PeersResponse{
		Name:  h.network.Name(),
		Peers: h.network.Router().Peers(),
	})
}

// Metrics handles exporting the routing counters.
// GET /api/metrics
func (h *ChannelHandlers) Metrics(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(h.network.Router().Metrics().String()))
}
