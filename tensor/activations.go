package tensor

import "math"

// LeakyAlpha 是 leaky-ReLU 的负半轴斜率。
const LeakyAlpha = 0.01

// sigmoidSaturation 是 sigmoid 的饱和阈值：超出后直接取 0/1，避免 exp 溢出。
const sigmoidSaturation = 500.0

// ReLU 激活函数。
func ReLU(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// LeakyReLU 激活函数：x>0 时为 x，否则为 α·x。
func LeakyReLU(x float64) float64 {
	if x > 0 {
		return x
	}
	return LeakyAlpha * x
}

// LeakyReLUDeriv 是 LeakyReLU 对其输入的导数。
func LeakyReLUDeriv(x float64) float64 {
	if x > 0 {
		return 1
	}
	return LeakyAlpha
}

// Sigmoid 是带饱和保护的 sigmoid：x < −500 时恒为 0，x > 500 时恒为 1。
func Sigmoid(x float64) float64 {
	if x < -sigmoidSaturation {
		return 0
	}
	if x > sigmoidSaturation {
		return 1
	}
	return 1.0 / (1.0 + math.Exp(-x))
}
