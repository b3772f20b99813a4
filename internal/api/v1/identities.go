package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ListIdentities 已知身份列表
// GET /api/v1/identities
func (h *Handler) ListIdentities(c *gin.Context) {
	ids, err := h.store.ListIdentities(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": ids})
}

// CreateIdentity 新增身份
// POST /api/v1/identities
func (h *Handler) CreateIdentity(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name 不能为空"})
		return
	}
	id, err := h.store.CreateIdentity(c.Request.Context(), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, id)
}

// BindResource 把未匹配的资源手工绑定到身份
// POST /api/v1/resources/:id/bind
func (h *Handler) BindResource(c *gin.Context) {
	var req struct {
		IdentityID string `json:"identityId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identityId 不能为空"})
		return
	}
	resourceID := c.Param("id")
	if err := h.store.BindResource(c.Request.Context(), resourceID, req.IdentityID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resourceId": resourceID, "identityId": req.IdentityID})
}
