package parser

// SheetRecognizer Sheet 类型识别器
type SheetRecognizer struct {
	header HeaderOptions
}

// NewSheetRecognizer 创建识别器
func NewSheetRecognizer(header HeaderOptions) *SheetRecognizer {
	return &SheetRecognizer{header: header}
}

var (
	hrSheetKeywords        = []string{"rh", "recursos humanos", "pessoal", "equipa", "human resources", "hr", "alocação", "alocacao", "afetação"}
	materialsSheetKeywords = []string{"material", "materiais", "equipamento", "aquisições", "aquisicoes", "despesas"}
	fundingSheetKeywords   = []string{"financiamento", "funding", "orçamento", "orcamento", "budget"}
	metadataSheetKeywords  = []string{"projeto", "project", "identificação", "identificacao", "resumo", "summary", "dados gerais"}
)

// Recognize 识别 Sheet 类型：先看内容特征，再用 Sheet 名称辅助判定
func (r *SheetRecognizer) Recognize(sheetName string, g Grid) SheetRecognitionResult {
	name := NormalizeName(sheetName)

	if result := r.recognizeHumanResources(sheetName, name, g); result.Confidence >= 0.5 {
		return result
	}
	if result := r.recognizeMaterials(sheetName, name, g); result.Confidence >= 0.5 {
		return result
	}
	if headerMatchesAny(name, fundingSheetKeywords) {
		return SheetRecognitionResult{SheetName: sheetName, Kind: SheetKindFunding, Confidence: 0.6}
	}
	if headerMatchesAny(name, metadataSheetKeywords) {
		return SheetRecognitionResult{SheetName: sheetName, Kind: SheetKindMetadata, Confidence: 0.6}
	}

	// 无法识别
	return SheetRecognitionResult{
		SheetName:  sheetName,
		Kind:       SheetKindUnknown,
		Confidence: 0,
	}
}

// recognizeHumanResources 月份表头 + 工作包块 => 人力资源表
func (r *SheetRecognizer) recognizeHumanResources(sheetName, name string, g Grid) SheetRecognitionResult {
	confidence := 0.0
	if _, ok := FindMonthHeader(g, r.header); ok {
		confidence += 0.4
	}
	layout := NewCodeColumnLayout()
	for _, row := range g {
		if _, ok := layout.BlockStart(row); ok {
			confidence += 0.3
			break
		}
	}
	if headerMatchesAny(name, hrSheetKeywords) {
		confidence += 0.2
	}
	return SheetRecognitionResult{SheetName: sheetName, Kind: SheetKindHumanResources, Confidence: confidence}
}

// recognizeMaterials 名称+单价表头 => 物料表
func (r *SheetRecognizer) recognizeMaterials(sheetName, name string, g Grid) SheetRecognitionResult {
	confidence := 0.0
	if _, _, ok := findMaterialHeader(g); ok {
		confidence += 0.5
	}
	if headerMatchesAny(name, materialsSheetKeywords) {
		confidence += 0.3
	}
	return SheetRecognitionResult{SheetName: sheetName, Kind: SheetKindMaterials, Confidence: confidence}
}

func headerMatchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if headerMatches(text, kw) {
			return true
		}
	}
	return false
}
