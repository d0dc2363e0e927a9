// Package textutil holds pure text transforms used when handing chat
// content to plain-text consumers.
package textutil

import (
	"regexp"
	"strings"
)

var (
	fencedCodeRe = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCodeRe = regexp.MustCompile("`[^`]*`")
	imageRe      = regexp.MustCompile(`!\[[^\]]*]\([^\)]*\)`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)]\([^\)]*\)`)
	blockquoteRe = regexp.MustCompile(`^\s{0,3}>\s?`)
	listMarkerRe = regexp.MustCompile(`^\s*([-*+]|\d+\.)\s+`)
	emphasisRe   = regexp.MustCompile(`([*_]{1,3}|__)`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// MarkdownToPlain strips markdown structure down to speakable plain text:
// code blocks and images are dropped, links keep their text, list and
// quote markers go away, and whitespace is normalized.
func MarkdownToPlain(text string) string {
	s := fencedCodeRe.ReplaceAllString(text, " ")
	s = inlineCodeRe.ReplaceAllString(s, " ")
	s = imageRe.ReplaceAllString(s, " ")
	s = linkRe.ReplaceAllString(s, "$1")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		l := blockquoteRe.ReplaceAllString(line, "")
		l = listMarkerRe.ReplaceAllString(l, "")
		l = strings.ReplaceAll(l, "|", " ")
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, " ")

	s = emphasisRe.ReplaceAllString(s, "")
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
