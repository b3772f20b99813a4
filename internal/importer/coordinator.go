// Package importer 协调一次工作簿导入：读表、识别、并发抽取、装配、落库
package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"planimport/internal/assembler"
	"planimport/internal/model"
	"planimport/internal/parser"
	"planimport/internal/store"
	"planimport/internal/workbook"
)

// Store 导入所需的持久化能力
type Store interface {
	ListIdentities(ctx context.Context) ([]model.Identity, error)
	SavePlan(ctx context.Context, plan *model.Plan, sourceFile string) (string, error)
	CreateImportLog(ctx context.Context, filename string, fileSize int64, fileHash string) (int64, error)
	CompleteImportLog(ctx context.Context, id int64, projectID string, counts store.ImportCounts, status, errorMessage string) error
	InsertSheetMeta(ctx context.Context, meta store.SheetMeta) error
}

// Options 解析参数
type Options struct {
	Header         parser.HeaderOptions
	MatchThreshold float64
	SalaryOverhead float64
	Workers        int // 并发抽取的 Sheet 数，<=0 时取 CPU 数
}

// DefaultOptions 默认解析参数
func DefaultOptions() Options {
	return Options{
		Header:         parser.DefaultHeaderOptions(),
		MatchThreshold: parser.DefaultMatchThreshold,
		SalaryOverhead: parser.DefaultSalaryOverhead,
	}
}

// Coordinator 导入协调器
type Coordinator struct {
	store      Store
	logger     *zap.Logger
	opts       Options
	recognizer *parser.SheetRecognizer
}

// NewCoordinator 创建导入协调器；store 为 nil 时只解析不落库
func NewCoordinator(st Store, logger *zap.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Header.MinDateCells == 0 {
		opts.Header = parser.DefaultHeaderOptions()
	}
	if opts.SalaryOverhead <= 0 {
		opts.SalaryOverhead = parser.DefaultSalaryOverhead
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Coordinator{
		store:      st,
		logger:     logger,
		opts:       opts,
		recognizer: parser.NewSheetRecognizer(opts.Header),
	}
}

// ImportOptions 导入选项
type ImportOptions struct {
	FilePath string
	Filename string // 展示用文件名，为空时取 FilePath 的文件名
	Persist  bool   // 是否写入数据库
}

// ProgressEvent 进度事件
type ProgressEvent struct {
	Type      string    `json:"type"`    // start/info/warning/sheet_done/saved/done/error
	Message   string    `json:"message"` // 事件消息
	Data      any       `json:"data"`    // 附加数据
	Timestamp time.Time `json:"timestamp"`
}

// Outcome 解析产物
type Outcome struct {
	Plan   *model.Plan
	Report *parser.ImportReport
}

// sheetOutcome 单个 Sheet 的全部抽取结果
type sheetOutcome struct {
	recognition parser.SheetRecognitionResult
	metadata    parser.MetadataResult
	funding     parser.FundingResult
	eti         parser.ETIResult
	materials   parser.MaterialsResult
	packages    parser.WorkPackageResult
	result      parser.ParseResult
}

// Import 执行导入，返回进度通道
func (c *Coordinator) Import(ctx context.Context, opts ImportOptions) <-chan ProgressEvent {
	progressChan := make(chan ProgressEvent, 100)

	go func() {
		defer close(progressChan)
		send := func(evt ProgressEvent) {
			evt.Timestamp = time.Now()
			select {
			case progressChan <- evt:
			case <-ctx.Done():
			}
		}
		if err := c.doImport(ctx, opts, send); err != nil {
			c.logger.Error("import failed", zap.String("file", opts.FilePath), zap.Error(err))
			send(ProgressEvent{Type: "error", Message: err.Error()})
		}
	}()

	return progressChan
}

func (c *Coordinator) doImport(ctx context.Context, opts ImportOptions, send func(ProgressEvent)) error {
	filename := opts.Filename
	if filename == "" {
		filename = filepath.Base(opts.FilePath)
	}
	send(ProgressEvent{
		Type:    "start",
		Message: "开始导入 Excel 文件",
		Data:    map[string]string{"filename": filename},
	})

	var logID int64
	if opts.Persist && c.store != nil {
		size, hash := fileDigest(opts.FilePath)
		id, err := c.store.CreateImportLog(ctx, filename, size, hash)
		if err != nil {
			return err
		}
		logID = id
	}
	fail := func(err error) error {
		if logID > 0 {
			if lerr := c.store.CompleteImportLog(context.WithoutCancel(ctx), logID, "", store.ImportCounts{}, "failed", err.Error()); lerr != nil {
				c.logger.Warn("update import log failed", zap.Int64("import_log_id", logID), zap.Error(lerr))
			}
		}
		return err
	}

	wb, err := workbook.Open(opts.FilePath)
	if err != nil {
		return fail(err)
	}
	defer wb.Close()

	sheets, err := wb.Grids()
	if err != nil {
		return fail(err)
	}
	send(ProgressEvent{
		Type:    "info",
		Message: fmt.Sprintf("发现 %d 个 Sheet", len(sheets)),
		Data:    map[string]any{"total_sheets": len(sheets)},
	})

	var identities []model.Identity
	if c.store != nil {
		identities, err = c.store.ListIdentities(ctx)
		if err != nil {
			return fail(err)
		}
	}

	out, err := c.Parse(ctx, sheets, identities, send)
	if err != nil {
		return fail(err)
	}
	out.Report.Filename = filename

	if opts.Persist && c.store != nil {
		projectID, err := c.store.SavePlan(ctx, out.Plan, filename)
		if err != nil {
			return fail(err)
		}
		out.Report.ProjectID = projectID
		c.recordSheets(ctx, logID, out.Report)
		if err := c.store.CompleteImportLog(ctx, logID, projectID, countsOf(out.Report), "completed", ""); err != nil {
			c.logger.Warn("update import log failed", zap.Int64("import_log_id", logID), zap.Error(err))
		}
		send(ProgressEvent{
			Type:    "saved",
			Message: fmt.Sprintf("项目已保存: %s", projectID),
			Data:    map[string]string{"project_id": projectID},
		})
	}

	c.logger.Info("import done",
		zap.String("file", filename),
		zap.String("project_id", out.Report.ProjectID),
		zap.String("metadata", parser.SummarizeMetadata(out.Plan.Metadata)),
		zap.Int("work_packages", out.Report.WorkPackages),
		zap.Int("resources", out.Report.Resources),
		zap.Int("materials", out.Report.Materials),
		zap.Int("unmatched", len(out.Report.UnmatchedResources)),
		zap.Duration("duration", out.Report.Duration),
	)
	send(ProgressEvent{Type: "done", Message: "导入完成", Data: out.Report})
	return nil
}

// Parse 对已读出的网格执行识别、并发抽取与装配；progress 可为 nil
func (c *Coordinator) Parse(ctx context.Context, sheets []parser.NamedGrid, identities []model.Identity, progress func(ProgressEvent)) (*Outcome, error) {
	if progress == nil {
		progress = func(ProgressEvent) {}
	}
	startTime := time.Now()

	var matcher *parser.IdentityMatcher
	if len(identities) > 0 {
		matcher = parser.NewIdentityMatcher(identities, c.opts.MatchThreshold)
	}

	outcomes := make([]sheetOutcome, len(sheets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, sheet := range sheets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = c.processSheet(sheet, matcher)
			r := outcomes[i].result
			progress(ProgressEvent{
				Type:    "sheet_done",
				Message: fmt.Sprintf("Sheet \"%s\" 识别为 %s (置信度: %.2f)", sheet.Name, r.Kind, outcomes[i].recognition.Confidence),
				Data: map[string]any{
					"sheet_name":    sheet.Name,
					"sheet_kind":    r.Kind,
					"status":        r.Status,
					"work_packages": r.WorkPackages,
					"resources":     r.Resources,
					"materials":     r.Materials,
				},
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := c.assemble(outcomes)
	out.Report.TotalSheets = len(sheets)
	out.Report.Duration = time.Since(startTime)
	for _, f := range out.Report.Findings.Warnings() {
		progress(ProgressEvent{Type: "warning", Message: f.Message, Data: f})
	}
	return out, nil
}

// processSheet 对单个 Sheet 运行全部相关抽取器；抽取器之间互不依赖
func (c *Coordinator) processSheet(sheet parser.NamedGrid, matcher *parser.IdentityMatcher) sheetOutcome {
	start := time.Now()
	name, grid := sheet.Name, sheet.Grid

	var out sheetOutcome
	out.recognition = c.recognizer.Recognize(name, grid)
	kind := out.recognition.Kind

	out.metadata = parser.ExtractMetadata(name, grid, c.opts.Header.DateSerialFloor)
	out.funding = parser.ExtractFunding(name, grid)
	out.eti = parser.ExtractETI(name, grid)
	if kind != parser.SheetKindHumanResources {
		out.materials = parser.ExtractMaterials(name, grid)
	}
	if kind == parser.SheetKindHumanResources || kind == parser.SheetKindUnknown {
		out.packages = parser.ParseWorkPackages(name, grid, parser.WorkPackageOptions{
			Header:         c.opts.Header,
			Layout:         parser.NewCodeColumnLayout(),
			Matcher:        matcher,
			SalaryOverhead: c.opts.SalaryOverhead,
		})
	}

	res := parser.ParseResult{
		SheetName:    name,
		Kind:         kind,
		Confidence:   out.recognition.Confidence,
		WorkPackages: len(out.packages.WorkPackages),
		Resources:    out.packages.ResourceCount(),
		Materials:    len(out.materials.Materials),
	}
	found := out.metadata.Found || out.funding.Found || out.eti.Value != nil ||
		res.WorkPackages > 0 || res.Materials > 0
	if found {
		res.Status = "parsed"
	} else {
		res.Status = "skipped"
	}
	for _, f := range out.packages.Findings.Warnings() {
		res.Errors = append(res.Errors, rowMessage(f))
	}
	for _, f := range out.materials.Findings.Warnings() {
		res.Errors = append(res.Errors, rowMessage(f))
	}
	res.Duration = time.Since(start)
	out.result = res
	return out
}

// assemble 按 Sheet 顺序汇总各抽取结果并装配计划
func (c *Coordinator) assemble(outcomes []sheetOutcome) *Outcome {
	report := &parser.ImportReport{Sheets: make([]parser.ParseResult, 0, len(outcomes))}

	var (
		metas     []parser.MetadataResult
		fundings  []parser.FundingResult
		etis      []parser.ETIResult
		packages  []model.WorkPackage
		materials []model.Material
		salaries  = make(parser.SalaryIndex)
	)
	for _, o := range outcomes {
		report.Sheets = append(report.Sheets, o.result)
		if o.result.Status == "parsed" {
			report.ParsedSheets++
		} else {
			report.SkippedSheets++
		}

		if o.metadata.Found {
			metas = append(metas, o.metadata)
		}
		if o.funding.Found {
			fundings = append(fundings, o.funding)
		}
		if o.eti.Value != nil {
			etis = append(etis, o.eti)
		}
		if o.materials.Found {
			materials = append(materials, o.materials.Materials...)
			report.Findings = append(report.Findings, o.materials.Findings...)
		}
		if len(o.packages.WorkPackages) > 0 {
			packages = append(packages, o.packages.WorkPackages...)
			report.Findings = append(report.Findings, o.packages.Findings...)
		}
		for k, v := range o.packages.Salaries {
			if _, ok := salaries[k]; !ok {
				salaries[k] = v
			}
		}
	}

	// 薪资行与占用行可能不在同一 Sheet
	for i := range packages {
		resources := append([]model.Resource(nil), packages[i].Resources...)
		for j := range resources {
			if resources[j].MonthlySalaryBase != nil {
				continue
			}
			if base, ok := salaries.Lookup(resources[j].DisplayName); ok {
				b := base
				resources[j].MonthlySalaryBase = &b
			}
		}
		packages[i].Resources = resources
	}

	report.Findings = append(report.Findings, missingFacets(metas, fundings, etis, packages, materials)...)

	assembled := assembler.Assemble(assembler.Input{
		Metadata:     parser.MergeMetadata(metas, fundings, etis),
		WorkPackages: packages,
		Materials:    materials,
	})
	report.Findings = append(report.Findings, assembled.Findings...)

	plan := assembled.Plan
	report.WorkPackages = len(plan.WorkPackages)
	for _, wp := range plan.WorkPackages {
		report.Resources += len(wp.Resources)
	}
	report.Materials = len(plan.Materials)
	report.UnmatchedResources = plan.UnmatchedResources()

	return &Outcome{Plan: plan, Report: report}
}

// missingFacets 整个工作簿都没有找到的信息维度
func missingFacets(metas []parser.MetadataResult, fundings []parser.FundingResult, etis []parser.ETIResult,
	packages []model.WorkPackage, materials []model.Material) parser.Findings {
	var out parser.Findings
	add := func(facet parser.Facet, msg string) {
		out = append(out, parser.Finding{Facet: facet, Level: parser.LevelInfo, Message: msg})
	}
	if len(metas) == 0 {
		add(parser.FacetMetadata, "工作簿中未找到项目元数据")
	}
	if len(fundings) == 0 {
		add(parser.FacetFunding, "工作簿中未找到资助参数")
	}
	if len(etis) == 0 {
		add(parser.FacetETI, "工作簿中未找到 ETI 单价")
	}
	if len(packages) == 0 {
		out = append(out, parser.Finding{Facet: parser.FacetWorkPackages, Level: parser.LevelWarning, Message: "工作簿中未找到工作包"})
	}
	if len(materials) == 0 {
		add(parser.FacetMaterials, "工作簿中未找到物料清单")
	}
	return out
}

func (c *Coordinator) recordSheets(ctx context.Context, logID int64, report *parser.ImportReport) {
	if logID == 0 {
		return
	}
	for _, s := range report.Sheets {
		meta := store.SheetMeta{
			ImportLogID:  logID,
			SheetName:    s.SheetName,
			SheetKind:    string(s.Kind),
			Confidence:   s.Confidence,
			Status:       s.Status,
			WorkPackages: s.WorkPackages,
			Resources:    s.Resources,
			Materials:    s.Materials,
			Errors:       s.Errors,
			DurationMS:   s.Duration.Milliseconds(),
		}
		if err := c.store.InsertSheetMeta(ctx, meta); err != nil {
			c.logger.Warn("insert sheet meta failed", zap.String("sheet", s.SheetName), zap.Error(err))
		}
	}
}

func countsOf(r *parser.ImportReport) store.ImportCounts {
	return store.ImportCounts{
		TotalSheets:        r.TotalSheets,
		ParsedSheets:       r.ParsedSheets,
		SkippedSheets:      r.SkippedSheets,
		WorkPackages:       r.WorkPackages,
		Resources:          r.Resources,
		Materials:          r.Materials,
		UnmatchedResources: len(r.UnmatchedResources),
	}
}

func rowMessage(f parser.Finding) string {
	if f.Row > 0 {
		return fmt.Sprintf("row %d: %s", f.Row, f.Message)
	}
	return f.Message
}

// fileDigest 文件大小与 sha256；读取失败时返回零值，由后续打开步骤报错
func fileDigest(path string) (int64, string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, ""
	}
	sum := sha256.Sum256(data)
	return int64(len(data)), hex.EncodeToString(sum[:])
}
