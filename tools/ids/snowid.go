package ids

import (
	"strconv"
	"sync"
	"time"
)

// 41 bit 毫秒时间戳 | 10 bit 节点 | 12 bit 序列
const (
	nodeBits = 10
	seqBits  = 12
	nodeMax  = (1 << nodeBits) - 1
	seqMask  = (1 << seqBits) - 1
)

// Node 一个节点内的雪花ID发生器
type Node struct {
	mu     sync.Mutex
	epoch  int64 // 毫秒
	id     int64
	seq    int64
	lastMS int64
}

func NewNode(nodeID int64) *Node {
	if nodeID < 0 || nodeID > nodeMax {
		nodeID = 1
	}
	return &Node{
		epoch: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		id:    nodeID,
	}
}

func (n *Node) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now().UnixMilli()
	// 时钟回拨：等回来，ID 不能倒序
	for now < n.lastMS {
		time.Sleep(time.Duration(n.lastMS-now) * time.Millisecond)
		now = time.Now().UnixMilli()
	}
	if now == n.lastMS {
		n.seq = (n.seq + 1) & seqMask
		if n.seq == 0 {
			for now <= n.lastMS {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		n.seq = 0
	}
	n.lastMS = now

	return (now-n.epoch)<<(nodeBits+seqBits) | n.id<<seqBits | n.seq
}

// ---- 包级默认节点，main 初始化时用配置里的 NodeId 重设 ----

var (
	defMu   sync.Mutex
	defNode = NewNode(1)
)

// SetNodeID 设置默认节点ID（0~1023）
func SetNodeID(nodeID int64) {
	defMu.Lock()
	defNode = NewNode(nodeID)
	defMu.Unlock()
}

// Generate 用默认节点生成一个新ID
func Generate() int64 {
	defMu.Lock()
	n := defNode
	defMu.Unlock()
	return n.Next()
}

func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}
