package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"commentbox/internal/errs"
)

const (
	MaxContentIDLength = 255
	MaxCommentLength   = 2000

	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 50
)

var (
	contentIDPattern = regexp.MustCompile(`^[A-Za-z0-9\-_/.]+$`)

	// 清除控制字符，保留 \t \n \r 等标准空白
	controlChars = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")

	urlPattern = regexp.MustCompile(`https?://[^\s]+`)
	// 商业词 + 紧迫词的组合，典型的推广垃圾
	promoPattern = regexp.MustCompile(`(?i)\b(buy|sale|discount|offer|free|win|prize|money|cash|loan|credit)\b.*\b(now|today|click|visit|call)\b`)
	capsPattern  = regexp.MustCompile(`[A-Z]{10,}`)
)

// ValidateContentID 校验讨论串标识
func ValidateContentID(contentID string) (string, error) {
	if contentID == "" {
		return "", fmt.Errorf("%w: content ID is required", errs.ErrInvalidInput)
	}
	if !contentIDPattern.MatchString(contentID) {
		return "", fmt.Errorf("%w: invalid content ID format", errs.ErrInvalidInput)
	}
	if len(contentID) > MaxContentIDLength {
		return "", fmt.Errorf("%w: content ID too long", errs.ErrInvalidInput)
	}
	return contentID, nil
}

// ValidateComment 清洗并校验评论文本，通过垃圾模式检查后返回可安全入库的内容
func ValidateComment(content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("%w: comment content is required", errs.ErrInvalidInput)
	}

	cleaned := controlChars.ReplaceAllString(content, "")
	if utf8.RuneCountInString(cleaned) > MaxCommentLength {
		return "", fmt.Errorf("%w: comment too long (max %d characters)", errs.ErrInvalidInput, MaxCommentLength)
	}

	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", fmt.Errorf("%w: comment cannot be empty", errs.ErrInvalidInput)
	}

	if IsSpamContent(cleaned) {
		return "", errs.ErrSpamRejected
	}

	return SanitizeCommentInput(cleaned), nil
}

// IsSpamContent 无状态垃圾内容检查。规则刻意简单快速，宁可漏判不增加写入延迟
func IsSpamContent(content string) bool {
	if hasRepeatedRun(content, 11) {
		return true
	}
	if len(urlPattern.FindAllString(content, 3)) >= 3 {
		return true
	}
	if promoPattern.MatchString(content) {
		return true
	}
	return capsPattern.MatchString(content)
}

// hasRepeatedRun 检测同一字符连续出现 n 次（RE2 不支持反向引用，手写遍历）
func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

// ValidatePagination 严格校验分页参数，越界直接报错而非静默收敛
// （读路径还会做一次防御性收敛）
func ValidatePagination(pageStr, limitStr string) (page, limit int, err error) {
	page = DefaultPage
	if pageStr != "" {
		if page, err = strconv.Atoi(pageStr); err != nil {
			return 0, 0, fmt.Errorf("%w: page must be a number", errs.ErrInvalidInput)
		}
	}
	limit = DefaultLimit
	if limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			return 0, 0, fmt.Errorf("%w: limit must be a number", errs.ErrInvalidInput)
		}
	}

	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be positive", errs.ErrInvalidInput)
	}
	if limit < 1 || limit > MaxLimit {
		return 0, 0, fmt.Errorf("%w: limit must be between 1 and %d", errs.ErrInvalidInput, MaxLimit)
	}
	return page, limit, nil
}
