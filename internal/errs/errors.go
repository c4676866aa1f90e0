package errs

import "github.com/pkg/errors"

// 引擎错误分类。对外文案保持稳定，内部细节（SQL、堆栈）只进日志不出响应
var (
	// 请求字段缺失、格式错误或越界，调用方修正后可重试
	ErrInvalidInput = errors.New("invalid input")

	// 反垃圾闸门拒绝写入，调用方应退避而非立即重试
	ErrSpamRejected = errors.New("comment appears to be spam")
	ErrRateRejected = errors.New("too many comments in short time, please wait")

	// 资源不存在或无权操作。故意不区分两者，避免向非所有者泄露评论是否存在
	ErrNotFound = errors.New("comment not found or access denied")

	// 基础设施类失败，可带退避重试
	ErrTransactionFailed = errors.New("could not update like status")
	ErrStoreUnavailable  = errors.New("storage temporarily unavailable")
)
