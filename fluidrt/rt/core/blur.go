package core

import "github.com/chewxy/math32"

// MaxFilterRadius bounds the blur loop in the shaders.
const MaxFilterRadius = 16

// BlurWeight is the unnormalized 1-D Gaussian tap weight at offset i.
func BlurWeight(i int, blurScale float32) float32 {
	r := float32(i) * blurScale
	return math32.Exp(-r * r)
}

// BlurKernel returns the normalized taps for offsets -radius..radius.
func BlurKernel(filterRadius, blurScale float32) []float32 {
	r := int(filterRadius)
	taps := make([]float32, 2*r+1)
	var sum float32
	for i := -r; i <= r; i++ {
		w := BlurWeight(i, blurScale)
		taps[i+r] = w
		sum += w
	}
	for i := range taps {
		taps[i] /= sum
	}
	return taps
}
