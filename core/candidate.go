package core

// Candidate 是打分链路中的统一承载结构：候选 ID + 定长特征向量。
// Features 按系统约定的特征顺序排列（canonical feature order），
// 一经捕获即视为只读，核心引擎不得原地修改。
type Candidate struct {
	ID       string
	Features []float64
	Score    float64
}

// NewCandidate 创建一个候选项，特征向量会被拷贝一份，
// 避免调用方后续复用底层数组时污染训练数据。
func NewCandidate(id string, features []float64) *Candidate {
	fs := make([]float64, len(features))
	copy(fs, features)
	return &Candidate{ID: id, Features: fs}
}

// CloneFeatures 返回特征向量的独立副本。
// 需要对特征做变换（如 match-dropout）时必须先 Clone，保证入参只读。
func (c *Candidate) CloneFeatures() []float64 {
	fs := make([]float64, len(c.Features))
	copy(fs, c.Features)
	return fs
}

// SelectionEvent 是一次隐式反馈：用户从一个有序候选列表中选中了某一项。
// Ranked 按展示顺序排列（含被选中项）；Params 承载请求级上下文
// （如 query、scene），可供训练门控表达式使用。
type SelectionEvent struct {
	Selected *Candidate
	Ranked   []*Candidate
	Params   map[string]any
}

// EventInput 把事件展开为 map，供 DSL 表达式求值使用。
func (e *SelectionEvent) EventInput() map[string]any {
	input := map[string]any{
		"selected_id": "",
		"ranked_size": len(e.Ranked),
	}
	if e.Selected != nil {
		input["selected_id"] = e.Selected.ID
	}
	for k, v := range e.Params {
		input[k] = v
	}
	return input
}

// SelectedRank 返回被选中项在 Ranked 中的位置（0-based），不存在时返回 -1。
func (e *SelectionEvent) SelectedRank() int {
	if e.Selected == nil {
		return -1
	}
	for i, c := range e.Ranked {
		if c != nil && c.ID == e.Selected.ID {
			return i
		}
	}
	return -1
}
