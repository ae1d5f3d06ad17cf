// Package autoencoder implements a single-hidden-layer reconstruction
// network with hand-written gradients. The math is deliberately explicit
// matrix arithmetic so the whole training path stays auditable; no
// autodiff framework is involved.
package autoencoder

import (
	"errors"
	"math"
	"math/rand"
)

// Network is a one-hidden-layer autoencoder. The hidden activation is
// rectified linear; the output is linear because inputs are standardized
// before training, so no squashing is applied on reconstruction.
type Network struct {
	InputDim  int
	HiddenDim int

	// W1 is input_dim x hidden_dim, W2 is hidden_dim x input_dim.
	W1 [][]float64
	B1 []float64
	W2 [][]float64
	B2 []float64
}

// HiddenSizeFor is the default bottleneck width for a fresh network.
func HiddenSizeFor(inputDim int) int {
	h := inputDim / 2
	if h < 4 {
		h = 4
	}
	return h
}

// New builds a network with small random weights. The seed makes
// initialization reproducible.
func New(inputDim, hiddenDim int, seed int64) *Network {
	rng := rand.New(rand.NewSource(seed))
	n := &Network{
		InputDim:  inputDim,
		HiddenDim: hiddenDim,
		W1:        randomMatrix(rng, inputDim, hiddenDim, math.Sqrt(2.0/float64(inputDim))),
		B1:        make([]float64, hiddenDim),
		W2:        randomMatrix(rng, hiddenDim, inputDim, math.Sqrt(2.0/float64(hiddenDim))),
		B2:        make([]float64, inputDim),
	}
	return n
}

func randomMatrix(rng *rand.Rand, rows, cols int, scale float64) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		r := make([]float64, cols)
		for j := range r {
			r[j] = rng.NormFloat64() * scale
		}
		m[i] = r
	}
	return m
}

// Forward runs the network over a batch of standardized rows and returns
// the reconstruction and hidden activations.
func (n *Network) Forward(batch [][]float64) (recon, hidden [][]float64) {
	hidden = make([][]float64, len(batch))
	recon = make([][]float64, len(batch))
	for i, x := range batch {
		h := make([]float64, n.HiddenDim)
		for j := 0; j < n.HiddenDim; j++ {
			sum := n.B1[j]
			for k := 0; k < n.InputDim; k++ {
				sum += x[k] * n.W1[k][j]
			}
			if sum < 0 {
				sum = 0
			}
			h[j] = sum
		}
		r := make([]float64, n.InputDim)
		for j := 0; j < n.InputDim; j++ {
			sum := n.B2[j]
			for k := 0; k < n.HiddenDim; k++ {
				sum += h[k] * n.W2[k][j]
			}
			r[j] = sum
		}
		hidden[i] = h
		recon[i] = r
	}
	return recon, hidden
}

// ReconstructionError returns the per-row mean squared error between
// each row and its reconstruction. This is the anomaly score.
func (n *Network) ReconstructionError(rows [][]float64) []float64 {
	recon, _ := n.Forward(rows)
	out := make([]float64, len(rows))
	for i, x := range rows {
		sum := 0.0
		for j := range x {
			d := recon[i][j] - x[j]
			sum += d * d
		}
		out[i] = sum / float64(len(x))
	}
	return out
}

// TrainConfig holds the plain-SGD hyperparameters.
type TrainConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
}

// Train runs mini-batch gradient descent over the standardized rows and
// returns the average training loss across all batches and epochs.
// Row order is shuffled each epoch; parameters are updated with a fixed
// learning rate and no momentum or adaptive terms.
func (n *Network) Train(rows [][]float64, cfg TrainConfig) (float64, error) {
	if len(rows) == 0 {
		return 0, errors.New("no training rows")
	}
	if len(rows[0]) != n.InputDim {
		return 0, errors.New("training rows do not match network input dimension")
	}
	epochs := cfg.Epochs
	if epochs <= 0 {
		epochs = 1
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > len(rows) {
		batchSize = len(rows)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}

	totalLoss := 0.0
	batches := 0
	for epoch := 0; epoch < epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for start := 0; start < len(order); start += batchSize {
			end := start + batchSize
			if end > len(order) {
				end = len(order)
			}
			batch := make([][]float64, end-start)
			for i, idx := range order[start:end] {
				batch[i] = rows[idx]
			}
			totalLoss += n.trainBatch(batch, cfg.LearningRate)
			batches++
		}
	}
	return totalLoss / float64(batches), nil
}

// trainBatch does one forward/backward pass and an in-place SGD update,
// returning the batch's mean squared loss.
func (n *Network) trainBatch(batch [][]float64, lr float64) float64 {
	bs := len(batch)
	recon, hidden := n.Forward(batch)

	loss := 0.0
	gradRecon := make([][]float64, bs)
	for i := range batch {
		g := make([]float64, n.InputDim)
		for j := 0; j < n.InputDim; j++ {
			diff := recon[i][j] - batch[i][j]
			loss += diff * diff
			g[j] = (2.0 / float64(bs)) * diff
		}
		gradRecon[i] = g
	}
	loss /= float64(bs * n.InputDim)

	// grad_W2 = hidden^T . grad_recon, grad_b2 = columnSum(grad_recon)
	gradW2 := make([][]float64, n.HiddenDim)
	for k := range gradW2 {
		gradW2[k] = make([]float64, n.InputDim)
	}
	gradB2 := make([]float64, n.InputDim)
	for i := 0; i < bs; i++ {
		for k := 0; k < n.HiddenDim; k++ {
			h := hidden[i][k]
			if h == 0 {
				continue
			}
			for j := 0; j < n.InputDim; j++ {
				gradW2[k][j] += h * gradRecon[i][j]
			}
		}
		for j := 0; j < n.InputDim; j++ {
			gradB2[j] += gradRecon[i][j]
		}
	}

	// grad_hidden = (grad_recon . W2^T) masked by the ReLU derivative.
	gradHidden := make([][]float64, bs)
	for i := 0; i < bs; i++ {
		g := make([]float64, n.HiddenDim)
		for k := 0; k < n.HiddenDim; k++ {
			if hidden[i][k] <= 0 {
				continue
			}
			sum := 0.0
			for j := 0; j < n.InputDim; j++ {
				sum += gradRecon[i][j] * n.W2[k][j]
			}
			g[k] = sum
		}
		gradHidden[i] = g
	}

	// grad_W1 = batch^T . grad_hidden, grad_b1 = columnSum(grad_hidden)
	gradW1 := make([][]float64, n.InputDim)
	for k := range gradW1 {
		gradW1[k] = make([]float64, n.HiddenDim)
	}
	gradB1 := make([]float64, n.HiddenDim)
	for i := 0; i < bs; i++ {
		for k := 0; k < n.InputDim; k++ {
			x := batch[i][k]
			if x == 0 {
				continue
			}
			for j := 0; j < n.HiddenDim; j++ {
				gradW1[k][j] += x * gradHidden[i][j]
			}
		}
		for j := 0; j < n.HiddenDim; j++ {
			gradB1[j] += gradHidden[i][j]
		}
	}

	for k := 0; k < n.InputDim; k++ {
		for j := 0; j < n.HiddenDim; j++ {
			n.W1[k][j] -= lr * gradW1[k][j]
		}
	}
	for j := 0; j < n.HiddenDim; j++ {
		n.B1[j] -= lr * gradB1[j]
	}
	for k := 0; k < n.HiddenDim; k++ {
		for j := 0; j < n.InputDim; j++ {
			n.W2[k][j] -= lr * gradW2[k][j]
		}
	}
	for j := 0; j < n.InputDim; j++ {
		n.B2[j] -= lr * gradB2[j]
	}

	return loss
}
