package v1

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"planimport/internal/reconcile"
)

// AllocationRequest 占用编辑请求
type AllocationRequest struct {
	Mode  reconcile.Mode   `json:"mode"` // touched（默认）或 whole_year
	Year  int              `json:"year"` // whole_year 模式下的当前年份
	Edits []reconcile.Edit `json:"edits"`
}

func (r *AllocationRequest) normalize() bool {
	if r.Mode == "" {
		r.Mode = reconcile.ModeTouched
	}
	if r.Mode != reconcile.ModeTouched && r.Mode != reconcile.ModeWholeYear {
		return false
	}
	if r.Year == 0 && len(r.Edits) > 0 {
		r.Year = r.Edits[0].Year
	}
	return len(r.Edits) > 0
}

// Buckets 某年各月份的对账状态
// GET /api/v1/projects/:id/buckets?year=
func (h *Handler) Buckets(c *gin.Context) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil || year <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year 参数无效"})
		return
	}
	states, err := h.reconcile.BucketStates(c.Request.Context(), c.Param("id"), year)
	if err != nil {
		h.respondError(c, err)
		return
	}

	items := make([]reconcile.BucketState, 0, len(states))
	for _, st := range states {
		items = append(items, st)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Month < items[j].Month })
	c.JSON(http.StatusOK, gin.H{"year": year, "items": items})
}

// ValidateAllocations 只校验不写入
// POST /api/v1/projects/:id/allocations/validate
func (h *Handler) ValidateAllocations(c *gin.Context) {
	var req AllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.normalize() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}
	verdict, err := h.reconcile.Validate(c.Request.Context(), c.Param("id"), req.Edits, req.Mode, req.Year)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, verdict)
}

// CommitAllocations 校验通过才写入；任一月份不平衡时整批拒绝并返回 409
// PUT /api/v1/projects/:id/allocations
func (h *Handler) CommitAllocations(c *gin.Context) {
	var req AllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.normalize() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}
	id := c.Param("id")
	verdict, err := h.reconcile.Commit(c.Request.Context(), id, req.Edits, req.Mode, req.Year)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !verdict.OK {
		h.logger.Info("allocation commit rejected",
			zap.String("project_id", id),
			zap.Int("edits", len(req.Edits)),
			zap.Int("divergent_buckets", len(verdict.Divergent)))
		c.JSON(http.StatusConflict, verdict)
		return
	}
	c.JSON(http.StatusOK, verdict)
}
