package state

import (
	"fmt"
	"math/rand"

	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/nn"
	"github.com/rushteam/ranklearn/optim"
	"github.com/rushteam/ranklearn/train"
)

// LoadOptions 描述恢复时的运行期约束：配置声明的优化器类型、
// 当前特征维度，以及架构增长时新行初始化用的随机源。
type LoadOptions struct {
	OptimizerType string
	FeatureWidth  int // 0 表示跟随文档
	Rng           *rand.Rand
}

// Restored 是一次加载+迁移的产物。
// Notes 按应用顺序记录发生过的迁移，供上层通知运维。
type Restored struct {
	Net      *nn.Network
	OptState *optim.State // nil 表示优化器状态从零开始
	History  []train.Pair
	Stats    StatsDoc
	Notes    []string
}

// Load 从持久化文档恢复模型状态，按需应用迁移：
//
//   - 缺失运行统计量 → 重置为 mean=0/var=1
//   - 旧版本文档（损失函数换代）→ 保留网络参数，丢弃历史与损失窗口，重置优化器状态
//   - 文档优化器类型与配置不符 → 保留网络参数，重置优化器状态
//   - 特征维度增长 → 第一层权重扩行，历史样本补零，首层矩重建
//
// 网络参数在所有迁移路径下都原样保留：权重是系统最昂贵的资产。
func Load(doc *Document, opts LoadOptions) (*Restored, error) {
	net, missingRunning, err := buildNetwork(doc.Network)
	if err != nil {
		return nil, err
	}

	res := &Restored{
		Net:     net,
		History: append([]train.Pair(nil), doc.TrainingHistory...),
		Stats:   doc.Stats,
	}
	if missingRunning {
		res.Notes = append(res.Notes, "running statistics missing, reset to mean=0/var=1")
	}

	legacy := doc.Version != CurrentVersion
	if legacy {
		// 损失函数换代：旧样本与旧损失量级不可比，历史和损失窗口直接清空
		res.History = nil
		res.Stats.Loss = nil
		res.Stats.Accuracy = nil
		res.Notes = append(res.Notes,
			fmt.Sprintf("document version %q migrated to %q: training history and loss window dropped, optimizer state reset", doc.Version, CurrentVersion))
	}

	docOptType := doc.OptimizerType
	if docOptType == "" {
		docOptType = optim.TypeSGD
	}

	switch {
	case legacy:
		// 上面已声明重置，状态保持 nil
	case docOptType != opts.OptimizerType:
		res.Notes = append(res.Notes,
			fmt.Sprintf("optimizer changed %s -> %s: optimizer state reset", docOptType, opts.OptimizerType))
	default:
		st, err := restoreOptState(docOptType, doc.OptimizerState)
		if err != nil {
			return nil, err
		}
		res.OptState = st
	}

	if opts.FeatureWidth > 0 {
		switch {
		case opts.FeatureWidth < net.InputSize():
			return nil, core.NewDomainError(core.ModuleState, core.ErrorCodeNotSupported,
				fmt.Sprintf("state: feature width shrank %d -> %d, shrinking is not supported",
					net.InputSize(), opts.FeatureWidth))
		case opts.FeatureWidth > net.InputSize():
			oldIn := net.InputSize()
			net.GrowInput(opts.FeatureWidth, opts.Rng)
			padHistory(res.History, opts.FeatureWidth)
			if res.OptState != nil {
				res.OptState.ResetFirstLayer(net)
			}
			res.Notes = append(res.Notes,
				fmt.Sprintf("input grew %d -> %d: first layer extended, history padded", oldIn, opts.FeatureWidth))
		}
	}

	return res, nil
}

// buildNetwork 从文档重建网络，返回是否发生过运行统计量重置。
func buildNetwork(doc NetworkDoc) (*nn.Network, bool, error) {
	layers := len(doc.Arch) - 1
	net := &nn.Network{Arch: append([]int(nil), doc.Arch...)}

	for i := 0; i < layers; i++ {
		w, err := denseFromRows(doc.Weights[i])
		if err != nil {
			return nil, false, err
		}
		r, c := w.Dims()
		if r != doc.Arch[i] || c != doc.Arch[i+1] {
			return nil, false, core.NewDomainError(core.ModuleState, core.ErrorCodeBadDocument,
				fmt.Sprintf("state: layer %d weights %dx%d do not match arch %v", i, r, c, doc.Arch))
		}
		net.Weights = append(net.Weights, w)

		if i >= len(doc.Biases) || len(doc.Biases[i]) != doc.Arch[i+1] {
			return nil, false, core.NewDomainError(core.ModuleState, core.ErrorCodeBadDocument,
				fmt.Sprintf("state: layer %d bias missing or mis-sized", i))
		}
		net.Biases = append(net.Biases, denseRow(doc.Biases[i]))
	}

	missingRunning := false
	for i := 0; i < layers-1; i++ {
		bn := nn.NewBatchNorm(doc.Arch[i+1])
		if i < len(doc.Gammas) && len(doc.Gammas[i]) == doc.Arch[i+1] {
			bn.Gamma = denseRow(doc.Gammas[i])
		}
		if i < len(doc.Betas) && len(doc.Betas[i]) == doc.Arch[i+1] {
			bn.Beta = denseRow(doc.Betas[i])
		}
		if i < len(doc.RunningMeans) && len(doc.RunningMeans[i]) == doc.Arch[i+1] &&
			i < len(doc.RunningVars) && len(doc.RunningVars[i]) == doc.Arch[i+1] {
			bn.RunningMean = denseRow(doc.RunningMeans[i])
			bn.RunningVar = denseRow(doc.RunningVars[i])
		} else {
			bn.ResetRunning()
			missingRunning = true
		}
		net.Norms = append(net.Norms, bn)
	}
	return net, missingRunning, nil
}

// restoreOptState 从文档恢复带标签的优化器状态。
func restoreOptState(typ string, doc *OptimizerStateDoc) (*optim.State, error) {
	if doc == nil {
		return nil, nil
	}
	st := &optim.State{Type: typ, Step: doc.Step}
	if typ != optim.TypeAdamW {
		return st, nil
	}
	var err error
	if st.M, err = restoreMoments(doc.M); err != nil {
		return nil, err
	}
	if st.V, err = restoreMoments(doc.V); err != nil {
		return nil, err
	}
	return st, nil
}

func restoreMoments(doc *MomentsDoc) (*optim.Moments, error) {
	if doc == nil {
		return nil, nil
	}
	m := &optim.Moments{}
	for _, rows := range doc.Weights {
		w, err := denseFromRows(rows)
		if err != nil {
			return nil, err
		}
		m.Weights = append(m.Weights, w)
	}
	for _, vec := range doc.Biases {
		m.Biases = append(m.Biases, denseRow(vec))
	}
	for _, vec := range doc.Gammas {
		m.Gammas = append(m.Gammas, denseRow(vec))
	}
	for _, vec := range doc.Betas {
		m.Betas = append(m.Betas, denseRow(vec))
	}
	return m, nil
}

func padHistory(pairs []train.Pair, width int) {
	for i := range pairs {
		pairs[i].Positive = padVec(pairs[i].Positive, width)
		pairs[i].Negative = padVec(pairs[i].Negative, width)
	}
}

func padVec(fs []float64, width int) []float64 {
	if len(fs) >= width {
		return fs
	}
	out := make([]float64, width)
	copy(out, fs)
	return out
}
