package optim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/nn"
)

// AdamW 默认超参数。
const (
	DefaultBeta1   = 0.9
	DefaultBeta2   = 0.999
	DefaultEpsilon = 1e-8
)

// AdamW 维护与网络同形的一/二阶矩，按偏差校正后的自适应步长更新参数；
// 权重衰减与梯度项解耦，直接作用在 θ 上（区别于 L2 正则化的 Adam）。
type AdamW struct {
	cfg  Config
	step int
	m    *Moments
	v    *Moments
}

func NewAdamW(cfg Config) *AdamW {
	if cfg.Beta1 == 0 {
		cfg.Beta1 = DefaultBeta1
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = DefaultBeta2
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	return &AdamW{cfg: cfg}
}

func (o *AdamW) Name() string { return TypeAdamW }

func (o *AdamW) Apply(net *nn.Network, g *nn.Gradients) {
	if o.m == nil || o.v == nil {
		o.m = NewMoments(net)
		o.v = NewMoments(net)
	}
	o.step++

	// 偏差校正因子 1−β^t
	bc1 := 1.0 - math.Pow(o.cfg.Beta1, float64(o.step))
	bc2 := 1.0 - math.Pow(o.cfg.Beta2, float64(o.step))
	lr := o.cfg.LearningRate * warmupFactor(o.step, o.cfg.WarmupSteps, o.cfg.WarmupStartFactor)

	for i := range net.Weights {
		o.m.Weights[i] = ensureShape(o.m.Weights[i], net.Weights[i])
		o.v.Weights[i] = ensureShape(o.v.Weights[i], net.Weights[i])
		o.adamUpdate(net.Weights[i], g.Weights[i], o.m.Weights[i], o.v.Weights[i], lr, bc1, bc2, o.cfg.layerDecay(i))

		o.m.Biases[i] = ensureShape(o.m.Biases[i], net.Biases[i])
		o.v.Biases[i] = ensureShape(o.v.Biases[i], net.Biases[i])
		o.adamUpdate(net.Biases[i], g.Biases[i], o.m.Biases[i], o.v.Biases[i], lr, bc1, bc2, 0)
	}
	for i, bn := range net.Norms {
		if bn == nil {
			continue
		}
		o.m.Gammas[i] = ensureShape(o.m.Gammas[i], bn.Gamma)
		o.v.Gammas[i] = ensureShape(o.v.Gammas[i], bn.Gamma)
		o.adamUpdate(bn.Gamma, g.Gammas[i], o.m.Gammas[i], o.v.Gammas[i], lr, bc1, bc2, 0)

		o.m.Betas[i] = ensureShape(o.m.Betas[i], bn.Beta)
		o.v.Betas[i] = ensureShape(o.v.Betas[i], bn.Beta)
		o.adamUpdate(bn.Beta, g.Betas[i], o.m.Betas[i], o.v.Betas[i], lr, bc1, bc2, 0)
	}
}

func (o *AdamW) adamUpdate(param, grad, m, v *mat.Dense, lr, bc1, bc2, decay float64) {
	if grad == nil {
		return
	}
	r, c := param.Dims()
	b1, b2, eps := o.cfg.Beta1, o.cfg.Beta2, o.cfg.Epsilon
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			gv := grad.At(i, j)
			mv := b1*m.At(i, j) + (1-b1)*gv
			vv := b2*v.At(i, j) + (1-b2)*gv*gv
			m.Set(i, j, mv)
			v.Set(i, j, vv)

			mHat := mv / bc1
			vHat := vv / bc2
			p := param.At(i, j)
			param.Set(i, j, p-lr*(mHat/(math.Sqrt(vHat)+eps)+decay*p))
		}
	}
}

// ensureShape 保证矩张量与参数同形；形状不符时重建为零
// （迁移后第一层形状变化的兜底路径）。
func ensureShape(moment, param *mat.Dense) *mat.Dense {
	pr, pc := param.Dims()
	if moment != nil {
		mr, mc := moment.Dims()
		if mr == pr && mc == pc {
			return moment
		}
	}
	return mat.NewDense(pr, pc, nil)
}

func (o *AdamW) State() *State {
	return &State{Type: TypeAdamW, Step: o.step, M: o.m, V: o.v}
}

func (o *AdamW) LoadState(s *State) error {
	if s == nil {
		o.Reset()
		return nil
	}
	if s.Type != TypeAdamW {
		return errTypeMismatch(TypeAdamW, s.Type)
	}
	o.step = s.Step
	o.m = s.M
	o.v = s.V
	return nil
}

func (o *AdamW) Reset() {
	o.step = 0
	o.m = nil
	o.v = nil
}

// Step 返回当前时间步（观测用）。
func (o *AdamW) Step() int { return o.step }

func errTypeMismatch(want, got string) error {
	return core.NewDomainError(core.ModuleAlgo, core.ErrorCodeInvalidInput,
		fmt.Sprintf("optim: state type %q does not match optimizer %q", got, want))
}
