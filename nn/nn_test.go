package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/fumitoshi0524/ixeorinorm/internal/normstat"
	"github.com/fumitoshi0524/ixeorinorm/loss"
	"github.com/fumitoshi0524/ixeorinorm/optim"
	"github.com/fumitoshi0524/ixeorinorm/tensor"
)

func floatsAlmostEqual(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		diff := a[i] - b[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > tol {
			return false
		}
	}
	return true
}

func mustSetData(t *testing.T, tt *tensor.Tensor, vals []float64) {
	t.Helper()
	if err := tt.SetData(vals); err != nil {
		t.Fatalf("set data: %v", err)
	}
}

func mustForward(t *testing.T, m Module, x *tensor.Tensor, phase Phase) *tensor.Tensor {
	t.Helper()
	out, err := m.Forward(x, phase)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	return out
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func seeded(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func checkStandardized(t *testing.T, summaries []normstat.Summary, tol float64) {
	t.Helper()
	for i, s := range summaries {
		if math.Abs(s.Mean) > tol || math.Abs(s.Std-1) > tol {
			t.Fatalf("slice %d not standardized: %v", i, s)
		}
	}
}

func TestSequentialStacksNormalizers(t *testing.T) {
	cfg := DefaultInstanceNormConfig()
	cfg.Epsilon = 1e-6
	first, err := NewInstanceNorm(cfg)
	if err != nil {
		t.Fatalf("NewInstanceNorm: %v", err)
	}
	second, err := NewInstanceNorm(cfg)
	if err != nil {
		t.Fatalf("NewInstanceNorm: %v", err)
	}
	model := NewSequential(first, second)
	x := tensor.Normal(seeded(1), 4, 3, 5, 6)
	out := mustForward(t, model, x, PhaseTrain)
	if !sameShape(out.Shape(), x.Shape()) {
		t.Fatalf("unexpected shape %v", out.Shape())
	}
	summaries, err := normstat.SliceMoments(out, 1)
	if err != nil {
		t.Fatalf("SliceMoments: %v", err)
	}
	checkStandardized(t, summaries, 1e-4)
	if got := len(model.Parameters()); got != 4 {
		t.Fatalf("expected 4 parameters, got %d", got)
	}
}

func TestSequentialTrainingWithSGD(t *testing.T) {
	layer, err := NewInstanceNorm(DefaultInstanceNormConfig())
	if err != nil {
		t.Fatalf("NewInstanceNorm: %v", err)
	}
	model := NewSequential(layer)
	inputs := tensor.Normal(seeded(2), 1, 2, 8, 4)

	// The target is the standardized input scaled by 2 and shifted by 1.
	reference, err := NewInstanceNorm(DefaultInstanceNormConfig())
	if err != nil {
		t.Fatalf("NewInstanceNorm: %v", err)
	}
	base := mustForward(t, reference, inputs, PhaseInfer)
	targets := tensor.AddScalar(tensor.MulScalar(base.Detach(), 2), 1)

	if err := layer.Build(inputs.Shape()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	opt := optim.NewSGD(model.Parameters(), 0.1, 0)
	var initialLoss float64
	for epoch := 0; epoch < 200; epoch++ {
		opt.ZeroGrad()
		pred := mustForward(t, model, inputs, PhaseTrain)
		l, err := loss.MSE(pred, targets)
		if err != nil {
			t.Fatalf("loss failed: %v", err)
		}
		if epoch == 0 {
			initialLoss = l.Data()[0]
		}
		if err := l.Backward(); err != nil {
			t.Fatalf("backward failed: %v", err)
		}
		if err := opt.Step(); err != nil {
			t.Fatalf("optimizer step failed: %v", err)
		}
	}
	pred := mustForward(t, model, inputs, PhaseInfer)
	finalLoss, err := loss.MSE(pred, targets)
	if err != nil {
		t.Fatalf("loss failed: %v", err)
	}
	if finalLoss.Data()[0] >= initialLoss {
		t.Fatalf("expected loss to decrease: initial=%.6f final=%.6f", initialLoss, finalLoss.Data()[0])
	}
	if g := layer.Gamma().Data()[0]; math.Abs(g-2) > 0.05 {
		t.Fatalf("gamma did not converge: %v", g)
	}
	if b := layer.Beta().Data()[0]; math.Abs(b-1) > 0.05 {
		t.Fatalf("beta did not converge: %v", b)
	}
}

func TestSequentialDeduplicatesSharedParameters(t *testing.T) {
	layer, err := NewBatchRenorm(DefaultBatchRenormConfig())
	if err != nil {
		t.Fatalf("NewBatchRenorm: %v", err)
	}
	x := tensor.Normal(seeded(3), 0, 1, 4, 3)
	if err := layer.Build(x.Shape()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	model := NewSequential(layer.Call(ModeTrain), layer.Call(ModeInfer))
	if got := len(model.Parameters()); got != 2 {
		t.Fatalf("expected shared gamma/beta once, got %d params", got)
	}
	mustForward(t, model, x, PhaseInfer)
	if layer.Step() != 1 {
		t.Fatalf("only the training call site should update state, step=%d", layer.Step())
	}
}

// trainThenInfer runs inference, one SGD step over the layer's Parameters,
// and inference again on the same input.
func trainThenInfer(t *testing.T, layer Module, x *tensor.Tensor) (before, after []float64) {
	t.Helper()
	before = mustForward(t, layer, x, PhaseInfer).Data()

	in := x.Clone()
	in.SetRequiresGrad(true)
	out := mustForward(t, layer, in, PhaseTrain)
	target := tensor.Full(1, out.Shape()...)
	l, err := loss.MSE(out, target)
	if err != nil {
		t.Fatalf("mse: %v", err)
	}
	if err := l.Backward(); err != nil {
		t.Fatalf("backward: %v", err)
	}
	opt := optim.NewSGD(layer.Parameters(), 0.5, 0)
	if err := opt.Step(); err != nil {
		t.Fatalf("sgd step: %v", err)
	}
	return before, mustForward(t, layer, x, PhaseInfer).Data()
}

func TestTrainableFalseFreezesInferenceOutput(t *testing.T) {
	x := tensor.Normal(seeded(71), 3, 2, 4, 4, 3)
	builders := map[string]func(trainable bool) (Module, error){
		"group": func(trainable bool) (Module, error) {
			cfg := DefaultGroupNormConfig(2)
			cfg.Axis = AxisAt(1)
			cfg.Trainable = trainable
			return NewGroupNorm(cfg)
		},
		"renorm": func(trainable bool) (Module, error) {
			cfg := DefaultBatchRenormConfig()
			cfg.Axis = AxisAt(1)
			cfg.Trainable = trainable
			return NewBatchRenorm(cfg)
		},
	}
	for name, build := range builders {
		frozen, err := build(false)
		if err != nil {
			t.Fatalf("%s: build: %v", name, err)
		}
		before, after := trainThenInfer(t, frozen, x)
		if !floatsAlmostEqual(before, after, 0) {
			t.Fatalf("%s: frozen layer changed its inference output", name)
		}

		live, err := build(true)
		if err != nil {
			t.Fatalf("%s: build: %v", name, err)
		}
		before, after = trainThenInfer(t, live, x)
		if floatsAlmostEqual(before, after, 1e-9) {
			t.Fatalf("%s: trainable layer did not change after a training step", name)
		}
	}
}
