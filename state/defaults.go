package state

import (
	"math/rand"

	"github.com/rushteam/ranklearn/nn"
)

// defaultSeed 钉死出厂默认权重的随机源：任何机器上首次部署
// 都得到同一套初始参数，线上问题可在本地逐位复现。
const defaultSeed = 20240613

// DefaultDocument 生成给定架构的出厂默认文档：
// He 初始化的网络、空历史、空统计、SGD 从零步开始。
// 调用方在存储中找不到已保存状态时使用。
func DefaultDocument(arch []int) *Document {
	rng := rand.New(rand.NewSource(defaultSeed))
	net := nn.New(arch, rng)
	return &Document{
		Version: CurrentVersion,
		Network: exportNetwork(net),
	}
}
