package parser

import (
	"regexp"
	"strings"

	"planimport/internal/model"
)

// DefaultMatchThreshold 词重叠相似度的接受阈值
const DefaultMatchThreshold = 0.6

// placeholderRe 待招聘岗位占位名（如 "Contratado 7"），永远不绑定真实身份
var placeholderRe = regexp.MustCompile(`(?i)^\s*(contratad[oa]s?|bolseir[oa]s?|a contratar|por contratar|recurso|contractor|new hire|tbd|placeholder)\s*(n\.?º?\s*)?#?\d+\s*$`)

// IsPlaceholderName 是否为占位岗位名
func IsPlaceholderName(name string) bool {
	return placeholderRe.MatchString(name)
}

// IdentityMatcher 资源名与已知身份的模糊匹配
type IdentityMatcher struct {
	identities []model.Identity
	normalized []string
	words      []map[string]struct{}
	threshold  float64
}

// NewIdentityMatcher 创建匹配器；identities 只读使用
func NewIdentityMatcher(identities []model.Identity, threshold float64) *IdentityMatcher {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	m := &IdentityMatcher{
		identities: identities,
		normalized: make([]string, len(identities)),
		words:      make([]map[string]struct{}, len(identities)),
		threshold:  threshold,
	}
	for i, id := range identities {
		m.normalized[i] = NormalizeName(id.Name)
		m.words[i] = wordSet(id.Name)
	}
	return m
}

// Match 返回唯一可信的身份 ID，歧义或无匹配返回 nil
//
// 第一阶段按词重叠相似度打分，只有一个候选达到阈值时才接受；
// 否则退回到包含关系判断，同样要求唯一
func (m *IdentityMatcher) Match(name string) *string {
	if IsPlaceholderName(name) {
		return nil
	}
	words := wordSet(name)
	if len(words) == 0 {
		return nil
	}

	best, cleared := -1, 0
	bestScore := 0.0
	for i := range m.identities {
		score := similarity(words, m.words[i])
		if score < m.threshold {
			continue
		}
		cleared++
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if cleared == 1 {
		id := m.identities[best].ID
		return &id
	}

	norm := NormalizeName(name)
	found := -1
	for i, candidate := range m.normalized {
		if candidate == "" {
			continue
		}
		if strings.Contains(norm, candidate) || strings.Contains(candidate, norm) {
			if found >= 0 {
				return nil
			}
			found = i
		}
	}
	if found >= 0 {
		id := m.identities[found].ID
		return &id
	}
	return nil
}

// MatchIdentity 便捷函数
func MatchIdentity(name string, identities []model.Identity) *string {
	return NewIdentityMatcher(identities, DefaultMatchThreshold).Match(name)
}

// similarity |A∩B| / max(|A|,|B|)
func similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	for w := range a {
		if _, ok := b[w]; ok {
			common++
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return float64(common) / float64(denom)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}
