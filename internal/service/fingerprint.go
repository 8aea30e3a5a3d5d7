package service

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// 코드 정규화/핑거프린트.
// 판정 결과와 무관하게 모든 제출에 대해 계산해 저장한다 (표절 비교용).

var (
	lineCommentRe   = regexp.MustCompile(`//.*`)
	blockCommentRe  = regexp.MustCompile(`/\*[\s\S]*?\*/`)
	hashCommentRe   = regexp.MustCompile(`#.*`)
	pyDocstringRe   = regexp.MustCompile(`"""[\s\S]*?"""|'''[\s\S]*?'''`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
	controlFlowRe   = regexp.MustCompile(`\b(for|while|if|else|elif|switch|case|return|break|continue|try|catch|except|finally|def|func|function|class|do|goto)\b`)
	identifierSplit = regexp.MustCompile(`[^A-Za-z0-9_]+`)
)

// NormalizeCode 주석 제거 + 공백 정규화
func NormalizeCode(code, language string) string {
	switch language {
	case "python":
		code = pyDocstringRe.ReplaceAllString(code, "")
		code = hashCommentRe.ReplaceAllString(code, "")
	case "ruby", "shell":
		code = hashCommentRe.ReplaceAllString(code, "")
	default:
		// c, cpp, java, javascript, go, rust ...
		code = blockCommentRe.ReplaceAllString(code, "")
		code = lineCommentRe.ReplaceAllString(code, "")
	}

	code = strings.ReplaceAll(code, "\t", " ")
	code = whitespaceRe.ReplaceAllString(code, " ")

	return strings.TrimSpace(code)
}

// Fingerprint 정규화된 코드의 sha256 해시
func Fingerprint(code, language string) string {
	sum := sha256.Sum256([]byte(NormalizeCode(code, language)))
	return hex.EncodeToString(sum[:])
}

// ControlFlowSequence 제어 흐름 키워드 시퀀스 (구조 비교용)
func ControlFlowSequence(code, language string) []string {
	return controlFlowRe.FindAllString(NormalizeCode(code, language), -1)
}

// StructureFingerprint 제어 흐름 시퀀스를 요약한 거친 구조 지문
func StructureFingerprint(code, language string) string {
	seq := ControlFlowSequence(code, language)
	if len(seq) == 0 {
		return ""
	}

	var b strings.Builder
	for _, kw := range seq {
		b.WriteByte(kw[0])
	}

	return b.String()
}

// Tokenize 정규화된 코드의 식별자/토큰 집합
func Tokenize(code, language string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range identifierSplit.Split(NormalizeCode(code, language), -1) {
		if tok == "" {
			continue
		}
		tokens[tok] = struct{}{}
	}
	return tokens
}
