// Package state 负责模型状态的持久化形态：带版本号的 JSON 文档、
// 加载期的版本/架构迁移，以及首次部署时的出厂默认权重。
package state

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/nn"
	"github.com/rushteam/ranklearn/optim"
	"github.com/rushteam/ranklearn/train"
)

// 文档版本号。版本编码了损失函数语义：
// 1.0 时代使用逐样本 BCE，2.0 起使用 pairwise hinge，
// 两代的历史样本与损失曲线不可比。
const (
	VersionBCE   = "1.0-bce"
	VersionHinge = "2.0-hinge"

	// CurrentVersion 是当前写出的文档版本。
	CurrentVersion = VersionHinge
)

// Document 是模型状态的持久化文档（JSON）。
// 网络参数、训练历史、滚动统计、优化器状态打包为一个原子单元，
// 保证崩溃恢复后三者互相一致。
type Document struct {
	Version         string               `json:"version"`
	Network         NetworkDoc           `json:"network"`
	TrainingHistory []train.Pair         `json:"training_history"`
	Stats           StatsDoc             `json:"stats"`
	OptimizerType   string               `json:"optimizer_type,omitempty"`
	OptimizerState  *OptimizerStateDoc   `json:"optimizer_state,omitempty"`
}

// NetworkDoc 是网络参数的行优先导出。
// RunningMeans/RunningVars 可能缺失（旧文档），加载时重置。
type NetworkDoc struct {
	Arch         []int         `json:"arch"`
	Weights      [][][]float64 `json:"weights"`
	Biases       [][]float64   `json:"biases"`
	Gammas       [][]float64   `json:"gammas,omitempty"`
	Betas        [][]float64   `json:"betas,omitempty"`
	RunningMeans [][]float64   `json:"running_means,omitempty"`
	RunningVars  [][]float64   `json:"running_vars,omitempty"`
}

// StatsDoc 是滚动统计中需要跨重启保留的部分。
// 耗时窗口只做现场观测，不持久化。
type StatsDoc struct {
	Loss             []float64             `json:"loss,omitempty"`
	Accuracy         []train.AccuracyCount `json:"accuracy,omitempty"`
	SamplesProcessed int64                 `json:"samples_processed"`
	BatchesTrained   int64                 `json:"batches_trained"`
}

// OptimizerStateDoc 是优化器状态的持久化形态。
// M/V 仅 AdamW 填充。
type OptimizerStateDoc struct {
	Step int         `json:"step"`
	M    *MomentsDoc `json:"m,omitempty"`
	V    *MomentsDoc `json:"v,omitempty"`
}

// MomentsDoc 与 NetworkDoc 同构的矩导出。
type MomentsDoc struct {
	Weights [][][]float64 `json:"weights"`
	Biases  [][]float64   `json:"biases"`
	Gammas  [][]float64   `json:"gammas,omitempty"`
	Betas   [][]float64   `json:"betas,omitempty"`
}

// Snapshot 把运行中的模型状态导出为当前版本的文档。
func Snapshot(net *nn.Network, opt optim.Optimizer, history *train.History, stats *train.Stats) *Document {
	doc := &Document{
		Version:         CurrentVersion,
		Network:         exportNetwork(net),
		TrainingHistory: history.Snapshot(),
		Stats: StatsDoc{
			Loss:             stats.Loss.Values(),
			Accuracy:         stats.Accuracy.Values(),
			SamplesProcessed: stats.SamplesProcessed,
			BatchesTrained:   stats.BatchesTrained,
		},
	}
	if opt != nil {
		s := opt.State()
		doc.OptimizerType = s.Type
		doc.OptimizerState = exportOptState(s)
	}
	return doc
}

// Marshal 序列化为 JSON。
func (d *Document) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// Unmarshal 解析持久化文档；不可解析或缺少网络参数时返回 BAD_DOCUMENT。
func Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, core.NewDomainError(core.ModuleState, core.ErrorCodeBadDocument,
			fmt.Sprintf("state: unparseable document: %v", err))
	}
	if len(doc.Network.Arch) < 2 || len(doc.Network.Weights) == 0 {
		return nil, core.NewDomainError(core.ModuleState, core.ErrorCodeBadDocument,
			"state: document has no network parameters")
	}
	if len(doc.Network.Weights) != len(doc.Network.Arch)-1 {
		return nil, core.NewDomainError(core.ModuleState, core.ErrorCodeBadDocument,
			fmt.Sprintf("state: %d weight matrices do not match arch %v",
				len(doc.Network.Weights), doc.Network.Arch))
	}
	return &doc, nil
}

func exportNetwork(net *nn.Network) NetworkDoc {
	layers := net.NumLayers()
	doc := NetworkDoc{
		Arch:    append([]int(nil), net.Arch...),
		Weights: make([][][]float64, layers),
		Biases:  make([][]float64, layers),
	}
	for i := 0; i < layers; i++ {
		doc.Weights[i] = matRows(net.Weights[i])
		doc.Biases[i] = rowVec(net.Biases[i])
	}
	for _, bn := range net.Norms {
		if bn == nil {
			continue
		}
		doc.Gammas = append(doc.Gammas, rowVec(bn.Gamma))
		doc.Betas = append(doc.Betas, rowVec(bn.Beta))
		doc.RunningMeans = append(doc.RunningMeans, rowVec(bn.RunningMean))
		doc.RunningVars = append(doc.RunningVars, rowVec(bn.RunningVar))
	}
	return doc
}

func exportOptState(s *optim.State) *OptimizerStateDoc {
	doc := &OptimizerStateDoc{Step: s.Step}
	doc.M = exportMoments(s.M)
	doc.V = exportMoments(s.V)
	return doc
}

func exportMoments(m *optim.Moments) *MomentsDoc {
	if m == nil {
		return nil
	}
	doc := &MomentsDoc{
		Weights: make([][][]float64, len(m.Weights)),
		Biases:  make([][]float64, len(m.Biases)),
	}
	for i, w := range m.Weights {
		doc.Weights[i] = matRows(w)
	}
	for i, b := range m.Biases {
		doc.Biases[i] = rowVec(b)
	}
	for _, g := range m.Gammas {
		doc.Gammas = append(doc.Gammas, rowVec(g))
	}
	for _, b := range m.Betas {
		doc.Betas = append(doc.Betas, rowVec(b))
	}
	return doc
}

func matRows(m *mat.Dense) [][]float64 {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
		}
		out[i] = row
	}
	return out
}

func rowVec(m *mat.Dense) []float64 {
	if m == nil {
		return nil
	}
	_, c := m.Dims()
	out := make([]float64, c)
	for j := 0; j < c; j++ {
		out[j] = m.At(0, j)
	}
	return out
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, core.NewDomainError(core.ModuleState, core.ErrorCodeBadDocument,
			"state: empty matrix in document")
	}
	r, c := len(rows), len(rows[0])
	out := mat.NewDense(r, c, nil)
	for i, row := range rows {
		if len(row) != c {
			return nil, core.NewDomainError(core.ModuleState, core.ErrorCodeBadDocument,
				fmt.Sprintf("state: ragged matrix row %d: %d cols, want %d", i, len(row), c))
		}
		for j, v := range row {
			out.Set(i, j, v)
		}
	}
	return out, nil
}

func denseRow(vec []float64) *mat.Dense {
	out := mat.NewDense(1, len(vec), nil)
	for j, v := range vec {
		out.Set(0, j, v)
	}
	return out
}
