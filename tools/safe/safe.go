package safe

import (
	"MProject/logger"
)

// SafeGo 启动一个带 recover 的 goroutine，
// 后台任务 panic 不能把整个进程带崩。
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] panic recovered: %v", r)
			}
		}()
		f()
	}()
}

// Run 同步执行，吞掉 panic。定时器回调等场景使用。
func Run(f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[safe.Run] panic recovered: %v", r)
		}
	}()
	f()
}
