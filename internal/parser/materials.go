package parser

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"planimport/internal/model"
)

type materialColumn int

const (
	matName materialColumn = iota
	matPrice
	matQuantity
	matYear
	matCategory
	matWorkPackage
)

var materialHeaderKeywords = map[materialColumn][]string{
	matName:        {"designação", "designacao", "descrição", "descricao", "material", "item", "name"},
	matPrice:       {"preço unitário", "preco unitario", "valor unitário", "custo unitário", "unit price", "preço", "preco", "price"},
	matQuantity:    {"quantidade", "qtd", "qty", "quantity"},
	matYear:        {"ano", "year"},
	matCategory:    {"rubrica", "categoria", "tipologia", "category"},
	matWorkPackage: {"atividade", "actividade", "work package", "wp", "pt"},
}

var categoryKeywords = []struct {
	category model.MaterialCategory
	keywords []string
}{
	{model.MaterialInstruments, []string{"instrument", "equipamento", "equipment"}},
	{model.MaterialConsumables, []string{"consum"}},
	{model.MaterialSoftware, []string{"software", "licen"}},
	{model.MaterialServices, []string{"serviç", "servic", "subcontrat"}},
	{model.MaterialTravel, []string{"viage", "desloca", "travel", "missõ"}},
}

// MapMaterialCategory 把自由文本类别映射到 6 个固定类别，无法识别时归为 other
func MapMaterialCategory(text string) model.MaterialCategory {
	n := NormalizeName(text)
	if n == "" {
		return model.MaterialOther
	}
	for _, ck := range categoryKeywords {
		if ContainsAny(n, ck.keywords) {
			return ck.category
		}
	}
	return model.MaterialOther
}

// headerMatches 短关键词按整词匹配，长关键词按包含匹配
func headerMatches(header, keyword string) bool {
	if len([]rune(keyword)) <= 3 {
		for _, tok := range strings.FieldsFunc(header, func(r rune) bool {
			return r == ' ' || r == '/' || r == '(' || r == ')' || r == '.' || r == ':'
		}) {
			if tok == keyword {
				return true
			}
		}
		return false
	}
	return strings.Contains(header, keyword)
}

// findMaterialHeader 找到同时包含名称列与单价列的表头行
func findMaterialHeader(g Grid) (int, map[materialColumn]int, bool) {
	for r, row := range g {
		cols := make(map[materialColumn]int)
		for col, c := range row {
			if c.IsNumber() {
				continue
			}
			h := NormalizeName(c.String())
			for _, kind := range []materialColumn{matPrice, matQuantity, matYear, matCategory, matWorkPackage, matName} {
				if _, taken := cols[kind]; taken {
					continue
				}
				matched := false
				for _, kw := range materialHeaderKeywords[kind] {
					if headerMatches(h, kw) {
						matched = true
						break
					}
				}
				if matched {
					cols[kind] = col
					break
				}
			}
		}
		_, hasName := cols[matName]
		_, hasPrice := cols[matPrice]
		if hasName && hasPrice {
			return r, cols, true
		}
	}
	return -1, nil, false
}

// MaterialsResult 物料抽取结果
type MaterialsResult struct {
	Materials []model.Material `json:"materials"`
	Found     bool             `json:"found"`
	Findings  Findings         `json:"findings,omitempty"`
}

// ExtractMaterials 抽取物料清单；单价或数量非法的行跳过并记录
func ExtractMaterials(sheet string, g Grid) MaterialsResult {
	var res MaterialsResult
	headerRow, cols, ok := findMaterialHeader(g)
	if !ok {
		res.Findings.info(FacetMaterials, sheet, 0, "未找到物料表头")
		return res
	}
	res.Found = true

	cell := func(r int, kind materialColumn) Cell {
		col, ok := cols[kind]
		if !ok {
			return Empty
		}
		return g.At(r, col)
	}

	for r := headerRow + 1; r < len(g); r++ {
		name := cell(r, matName).String()
		if name == "" || IsAggregateRow(name) {
			continue
		}

		price, ok := parseNumber(cell(r, matPrice))
		if !ok || price < 0 {
			res.Findings.warn(FacetMaterials, sheet, r+1, fmt.Sprintf("物料 %s 单价无效，已跳过", name))
			continue
		}

		quantity := 1
		if qc := cell(r, matQuantity); !qc.IsEmpty() {
			q, ok := parseNumber(qc)
			if !ok || q < 1 || q != math.Trunc(q) {
				res.Findings.warn(FacetMaterials, sheet, r+1, fmt.Sprintf("物料 %s 数量无效，已跳过", name))
				continue
			}
			quantity = int(q)
		}

		year := 0
		if y, ok := parseNumber(cell(r, matYear)); ok && y >= 1900 && y <= 2100 {
			year = int(y)
		}

		res.Materials = append(res.Materials, model.Material{
			Name:           name,
			UnitPrice:      decimal.NewFromFloat(price).Round(2),
			Quantity:       quantity,
			UsageYear:      year,
			Category:       MapMaterialCategory(cell(r, matCategory).String()),
			WorkPackageRef: cell(r, matWorkPackage).String(),
			SourceRow:      r + 1,
		})
	}

	if len(res.Materials) == 0 {
		res.Findings.info(FacetMaterials, sheet, headerRow+1, "物料表头下没有有效行")
	}
	return res
}
