package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/ethauth/core"
	"github.com/layer-3/ethauth/internal/eth"
	"github.com/layer-3/ethauth/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	typedData   *eth.EIP712Hasher
}

// NewAuthHandlers creates new auth handlers. typedData is optional; when set,
// challenge responses include the EIP-712 document to sign.
func NewAuthHandlers(authService *service.AuthService, typedData *eth.EIP712Hasher) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		typedData:   typedData,
	}
}

// ChallengeRequest represents a challenge request
type ChallengeRequest struct {
	Address string `json:"address" binding:"required"`
}

// ChallengeResponse represents a challenge response
type ChallengeResponse struct {
	Challenge core.ChallengeMessage `json:"challenge"`
	TypedData interface{}           `json:"typed_data,omitempty"`
}

// VerifyRequest represents a verify request
type VerifyRequest struct {
	Challenge string `json:"challenge" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// VerifyResponse represents a successful verification
type VerifyResponse struct {
	Address   string `json:"address"`
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

// ReceiptResponse describes a validated receipt
type ReceiptResponse struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Challenge handles the challenge request
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, err := h.authService.CreateChallenge(c.Request.Context(), req.Address)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ethereum address"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	resp := ChallengeResponse{Challenge: msg}
	if h.typedData != nil {
		resp.TypedData = h.typedData.TypedData(msg)
	}

	c.JSON(http.StatusOK, resp)
}

// Verify handles the signed challenge
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	address, ok, err := h.authService.CheckChallenge(c.Request.Context(), req.Challenge, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidSignature):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		case errors.Is(err, core.ErrInvalidMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid challenge"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify challenge"})
		}
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
		return
	}

	token, auth, err := h.authService.IssueReceipt(address)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create receipt"})
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{
		Address:   address,
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(auth.ExpiresAt.Sub(auth.IssuedAt).Seconds()),
	})
}

// Receipt returns the verification result carried by a bearer receipt
func (h *AuthHandlers) Receipt(c *gin.Context) {
	// Set by ReceiptMiddleware
	value, exists := c.Get(authenticationKey)
	auth, ok := value.(*core.Authentication)
	if !exists || !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Receipt not found in context"})
		return
	}

	c.JSON(http.StatusOK, ReceiptResponse{
		ID:        auth.ID,
		Address:   auth.Address,
		ExpiresAt: auth.ExpiresAt,
	})
}

// Health reports that the server is up
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
