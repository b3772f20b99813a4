package parser

import "time"

// SheetKind Sheet 类型
type SheetKind string

const (
	SheetKindMetadata       SheetKind = "metadata"
	SheetKindFunding        SheetKind = "funding"
	SheetKindMaterials      SheetKind = "materials"
	SheetKindHumanResources SheetKind = "human_resources"
	SheetKindUnknown        SheetKind = "unknown"
)

// Facet 信息维度（每个抽取器负责一个）
type Facet string

const (
	FacetMetadata     Facet = "metadata"
	FacetFunding      Facet = "funding"
	FacetETI          Facet = "eti"
	FacetMaterials    Facet = "materials"
	FacetWorkPackages Facet = "work_packages"
	FacetSalaries     Facet = "salaries"
	FacetIdentities   Facet = "identities"
)

// Level 诊断级别
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Finding 单条诊断
type Finding struct {
	Facet   Facet  `json:"facet"`
	Sheet   string `json:"sheet,omitempty"`
	Row     int    `json:"row,omitempty"` // 1 起始，0 表示不针对具体行
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Findings 诊断列表；抽取器不抛错，缺失与跳过都记录在这里
type Findings []Finding

func (f *Findings) info(facet Facet, sheet string, row int, msg string) {
	*f = append(*f, Finding{Facet: facet, Sheet: sheet, Row: row, Level: LevelInfo, Message: msg})
}

func (f *Findings) warn(facet Facet, sheet string, row int, msg string) {
	*f = append(*f, Finding{Facet: facet, Sheet: sheet, Row: row, Level: LevelWarning, Message: msg})
}

// Warnings 仅返回告警
func (f Findings) Warnings() Findings {
	var out Findings
	for _, it := range f {
		if it.Level == LevelWarning {
			out = append(out, it)
		}
	}
	return out
}

// ByFacet 按维度过滤
func (f Findings) ByFacet(facet Facet) Findings {
	var out Findings
	for _, it := range f {
		if it.Facet == facet {
			out = append(out, it)
		}
	}
	return out
}

// SheetRecognitionResult Sheet 识别结果
type SheetRecognitionResult struct {
	SheetName  string    `json:"sheetName"`
	Kind       SheetKind `json:"kind"`
	Confidence float64   `json:"confidence"` // 置信度 0-1
}

// ParseResult 单个 Sheet 的处理结果
type ParseResult struct {
	SheetName    string        `json:"sheetName"`
	Kind         SheetKind     `json:"kind"`
	Confidence   float64       `json:"confidence"`
	Status       string        `json:"status"` // parsed/skipped/error
	WorkPackages int           `json:"workPackages"`
	Resources    int           `json:"resources"`
	Materials    int           `json:"materials"`
	Errors       []string      `json:"errors,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// ImportReport 导入报告
type ImportReport struct {
	Filename           string        `json:"filename"`
	ProjectID          string        `json:"projectId,omitempty"`
	TotalSheets        int           `json:"totalSheets"`
	ParsedSheets       int           `json:"parsedSheets"`
	SkippedSheets      int           `json:"skippedSheets"`
	WorkPackages       int           `json:"workPackages"`
	Resources          int           `json:"resources"`
	Materials          int           `json:"materials"`
	UnmatchedResources []string      `json:"unmatchedResources,omitempty"`
	Findings           Findings      `json:"findings,omitempty"`
	Duration           time.Duration `json:"duration"`
	Sheets             []ParseResult `json:"sheets"`
}
