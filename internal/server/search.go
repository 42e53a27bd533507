package server

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// normalizeTerm NFKC 归一化 + 小写，用于大小写不敏感的包含匹配
func normalizeTerm(v string) string {
	return lower.String(norm.NFKC.String(strings.TrimSpace(v)))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern 生成 LIKE '%term%'，配合 ESCAPE '\' 使用
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(normalizeTerm(term)) + "%"
}

// normalizeParam 去首尾空白和包裹的引号；空值返回 ""
func normalizeParam(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if v[0] == '"' || v[0] == '\'' {
		v = v[1:]
	}
	if n := len(v); n > 0 && (v[n-1] == '"' || v[n-1] == '\'') {
		v = v[:n-1]
	}
	return v
}
