package optim

import (
	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/ranklearn/nn"
)

// SGD 是朴素随机梯度下降：θ ← θ − lr·f(t)·(∇θ + decay·θ)，
// 衰减项直接并入梯度。状态只有时间步计数（warmup 需要）。
type SGD struct {
	cfg  Config
	step int
}

func NewSGD(cfg Config) *SGD {
	return &SGD{cfg: cfg}
}

func (o *SGD) Name() string { return TypeSGD }

func (o *SGD) Apply(net *nn.Network, g *nn.Gradients) {
	o.step++
	lr := o.cfg.LearningRate * warmupFactor(o.step, o.cfg.WarmupSteps, o.cfg.WarmupStartFactor)

	for i := range net.Weights {
		decay := o.cfg.layerDecay(i)
		sgdUpdate(net.Weights[i], g.Weights[i], lr, decay)
		sgdUpdate(net.Biases[i], g.Biases[i], lr, 0)
	}
	for i, bn := range net.Norms {
		if bn == nil {
			continue
		}
		sgdUpdate(bn.Gamma, g.Gammas[i], lr, 0)
		sgdUpdate(bn.Beta, g.Betas[i], lr, 0)
	}
}

func sgdUpdate(param, grad *mat.Dense, lr, decay float64) {
	if grad == nil {
		return
	}
	r, c := param.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := param.At(i, j)
			param.Set(i, j, v-lr*(grad.At(i, j)+decay*v))
		}
	}
}

func (o *SGD) State() *State {
	return &State{Type: TypeSGD, Step: o.step}
}

func (o *SGD) LoadState(s *State) error {
	if s == nil {
		o.step = 0
		return nil
	}
	if s.Type != TypeSGD {
		return errTypeMismatch(TypeSGD, s.Type)
	}
	o.step = s.Step
	return nil
}

func (o *SGD) Reset() { o.step = 0 }
