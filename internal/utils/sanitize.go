package utils

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	// 校验层策略：额外允许 p 标签
	inputPolicy = newCommentPolicy(true)
	// 持久层策略：更严格，不允许 p 标签
	storagePolicy = newCommentPolicy(false)
)

func newCommentPolicy(allowParagraph bool) *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "em", "strong", "br")
	if allowParagraph {
		p.AllowElements("p")
	}
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireNoFollowOnLinks(true)
	return p
}

// SanitizeCommentInput 清洗用户提交的评论内容，纯函数，从不报错，
// 不安全的内容降级为纯文本
func SanitizeCommentInput(raw string) string {
	return forceLinkAttrs(inputPolicy.Sanitize(raw))
}

// SanitizeCommentStorage 入库前的最终清洗
func SanitizeCommentStorage(raw string) string {
	return forceLinkAttrs(storagePolicy.Sanitize(raw))
}

// forceLinkAttrs 重写所有链接属性：只保留 href，
// 强制 rel="nofollow noopener noreferrer" 和 target="_blank"，防止 SEO 垃圾和钓鱼跳转
func forceLinkAttrs(html string) string {
	if !strings.Contains(html, "<a") {
		return html
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("a").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		// 丢弃除 href 外的全部原始属性
		if len(s.Nodes) > 0 {
			s.Nodes[0].Attr = nil
		}
		if href != "" {
			s.SetAttr("href", href)
		}
		s.SetAttr("rel", "nofollow noopener noreferrer")
		s.SetAttr("target", "_blank")
	})

	// goquery renders full document tags if missing, we just want the body content
	out, err := doc.Find("body").Html()
	if err != nil || out == "" {
		return html
	}
	return out
}
