package errs

import "errors"

// 在线状态子系统的错误码。presence 是尽力而为的：
// 这些错误只在 presence 内部消化，不允许往上传到消息链路。
const (
	CodeTransientStore    = 1101 // 存储瞬时失败，可重试一次
	CodeUnknownUser       = 1102 // 身份解析不到，忽略事件
	CodeBroadcastDelivery = 1103 // 广播投递失败，等下次 sweep 自愈
)

var (
	ErrTransientStore    = NewCodeError(CodeTransientStore, "transient store error")
	ErrUnknownUser       = NewCodeError(CodeUnknownUser, "unknown user")
	ErrBroadcastDelivery = NewCodeError(CodeBroadcastDelivery, "broadcast delivery error")
)

// IsTransient 判断是否可重试
func IsTransient(err error) bool {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code == CodeTransientStore
	}
	return false
}
