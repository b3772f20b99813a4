package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"planimport/internal/exporter"
	"planimport/internal/importer"
	"planimport/internal/reconcile"
	"planimport/internal/store"
)

// Handler V1 API 处理器
type Handler struct {
	store       *store.Store
	coordinator *importer.Coordinator
	reconcile   *reconcile.Service
	exporter    *exporter.Exporter
	downloads   *exportDownloadStore
	logger      *zap.Logger
	uploadDir   string
}

// Deps 处理器依赖
type Deps struct {
	Store       *store.Store
	Coordinator *importer.Coordinator
	Reconcile   *reconcile.Service
	Logger      *zap.Logger
	UploadDir   string // 上传文件的临时目录，为空时使用系统临时目录
}

// NewHandler 创建 V1 API 处理器
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:       deps.Store,
		coordinator: deps.Coordinator,
		reconcile:   deps.Reconcile,
		exporter:    exporter.NewExporter(deps.Store),
		downloads:   newExportDownloadStore(),
		logger:      logger,
		uploadDir:   deps.UploadDir,
	}
}

// RegisterRoutes 注册 V1 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/status", h.GetStatus)

	// 数据导入
	router.POST("/import", h.Import)
	router.GET("/imports", h.ListImports)
	router.GET("/imports/:id/sheets", h.ListImportSheets)

	// 项目与审批
	router.GET("/projects", h.ListProjects)
	router.GET("/projects/:id", h.GetProject)
	router.POST("/projects/:id/approve", h.Approve)
	router.POST("/projects/:id/reject", h.Reject)

	// 对账
	router.GET("/projects/:id/buckets", h.Buckets)
	router.POST("/projects/:id/allocations/validate", h.ValidateAllocations)
	router.PUT("/projects/:id/allocations", h.CommitAllocations)

	// 身份
	router.GET("/identities", h.ListIdentities)
	router.POST("/identities", h.CreateIdentity)
	router.POST("/resources/:id/bind", h.BindResource)

	// 数据导出
	router.GET("/projects/:id/export", h.Export)
	router.POST("/projects/:id/export/stream", h.ExportStream)
	router.GET("/export/download/:token", h.DownloadExport)
}

// respondError 把领域错误映射为 HTTP 状态码
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, reconcile.ErrProjectNotFound),
		errors.Is(err, store.ErrIdentityNotFound),
		errors.Is(err, store.ErrResourceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, reconcile.ErrSnapshotExists):
		status = http.StatusConflict
	case errors.Is(err, reconcile.ErrInvalidEdit):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
