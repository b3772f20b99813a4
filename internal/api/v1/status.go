package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"planimport/internal/model"
)

// StatusResponse 系统状态响应
type StatusResponse struct {
	Initialized    bool   `json:"initialized"`    // 是否已有项目
	TotalProjects  int    `json:"totalProjects"`  // 项目总数
	Approved       int    `json:"approved"`       // 已审批项目数
	Identities     int    `json:"identities"`     // 已知身份数
	LastImportTime string `json:"lastImportTime"` // 最后导入时间
}

// GetStatus 获取系统状态
// GET /api/v1/status
func (h *Handler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	projects, err := h.store.ListProjects(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	identities, err := h.store.ListIdentities(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := StatusResponse{
		Initialized:   len(projects) > 0,
		TotalProjects: len(projects),
		Identities:    len(identities),
	}
	for _, p := range projects {
		if p.Status == model.ProjectApproved {
			resp.Approved++
		}
	}
	if logs, err := h.store.ListImportLogs(ctx, 1); err == nil && len(logs) > 0 {
		resp.LastImportTime = logs[0].CreatedAt.Format("2006-01-02 15:04:05")
	}
	c.JSON(http.StatusOK, resp)
}
