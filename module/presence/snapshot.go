package presence

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// SnapshotStore 进程边界的在线用户快照，只在关机/开机各用一次
type SnapshotStore interface {
	SaveOnlineUsers(users []string) error
	// LoadAndClearOnlineUsers 读取并删除，保证恰好消费一次
	LoadAndClearOnlineUsers() ([]string, error)
}

// FileSnapshot 本地文件实现，一行一个用户名
type FileSnapshot struct {
	Path string
}

var _ SnapshotStore = (*FileSnapshot)(nil)

func NewFileSnapshot(path string) *FileSnapshot {
	return &FileSnapshot{Path: path}
}

func (f *FileSnapshot) SaveOnlineUsers(users []string) error {
	data := strings.Join(users, "\n")
	if err := os.WriteFile(f.Path, []byte(data), 0o644); err != nil {
		return errors.Wrap(err, "write online users snapshot")
	}
	return nil
}

func (f *FileSnapshot) LoadAndClearOnlineUsers() ([]string, error) {
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read online users snapshot")
	}
	// 先删再用：文件只消费一次，崩在中间也不会重复唤醒
	if err := os.Remove(f.Path); err != nil {
		return nil, errors.Wrap(err, "clear online users snapshot")
	}

	var users []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			users = append(users, line)
		}
	}
	return users, nil
}
