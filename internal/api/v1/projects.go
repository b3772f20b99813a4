package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"planimport/internal/model"
)

// ProjectDetail 项目详情：元数据、工作包图、任务与物料
type ProjectDetail struct {
	Project   *model.Project          `json:"project"`
	Graph     model.ProjectGraph      `json:"graph"`
	Tasks     map[string][]model.Task `json:"tasks"`
	Materials []model.Material        `json:"materials"`
	Approved  *model.ApprovedSnapshot `json:"approvedSnapshot,omitempty"`
}

// ListProjects 项目列表
// GET /api/v1/projects
func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.store.ListProjects(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": projects})
}

// GetProject 项目详情
// GET /api/v1/projects/:id
func (h *Handler) GetProject(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	project, err := h.store.GetProject(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	graph, err := h.store.LoadGraph(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	tasks, err := h.store.Tasks(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	materials, err := h.store.Materials(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	snap, err := h.store.Snapshot(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProjectDetail{
		Project:   project,
		Graph:     graph,
		Tasks:     tasks,
		Materials: materials,
		Approved:  snap,
	})
}

// Approve 审批通过并冻结快照；重复审批返回 409
// POST /api/v1/projects/:id/approve
func (h *Handler) Approve(c *gin.Context) {
	snap, err := h.reconcile.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("project approved", zap.String("project_id", snap.ProjectID), zap.String("snapshot_id", snap.ID))
	c.JSON(http.StatusOK, snap)
}

// Reject 驳回项目，不创建快照
// POST /api/v1/projects/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	id := c.Param("id")
	if err := h.reconcile.Reject(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("project rejected", zap.String("project_id", id))
	c.JSON(http.StatusOK, gin.H{"projectId": id, "status": model.ProjectRejected})
}
