package nn

import (
	"math"
	"sync"
	"testing"

	"github.com/fumitoshi0524/ixeorinorm/internal/normstat"
	"github.com/fumitoshi0524/ixeorinorm/tensor"
)

func newBatchRenorm(t *testing.T, mutate func(*Config)) *BatchRenorm {
	t.Helper()
	cfg := DefaultBatchRenormConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	layer, err := NewBatchRenorm(cfg)
	if err != nil {
		t.Fatalf("NewBatchRenorm: %v", err)
	}
	return layer
}

func TestBatchRenormFirstStepIsBatchNorm(t *testing.T) {
	layer := newBatchRenorm(t, nil)
	if layer.RMax() != 1 || layer.DMax() != 0 || layer.RunningMean() != nil {
		t.Fatalf("unexpected state before build")
	}
	x := tensor.MustNew([]float64{1, 2, 3, 6}, 2, 2)
	out := mustForward(t, layer, x, PhaseTrain)
	a, b := math.Sqrt(1.001), math.Sqrt(4.001)
	want := []float64{-1 / a, -2 / b, 1 / a, 2 / b}
	if !floatsAlmostEqual(out.Data(), want, 1e-12) {
		t.Fatalf("unexpected first-step output %v", out.Data())
	}
	if !floatsAlmostEqual(layer.RunningMean().Data(), []float64{0.02, 0.04}, 1e-12) {
		t.Fatalf("unexpected running mean %v", layer.RunningMean().Data())
	}
	if !floatsAlmostEqual(layer.RunningVariance().Data(), []float64{1, 1.03}, 1e-12) {
		t.Fatalf("unexpected running variance %v", layer.RunningVariance().Data())
	}
	if layer.Step() != 1 || layer.RMax() != 1 || math.Abs(layer.DMax()-1e-3) > 1e-12 {
		t.Fatalf("unexpected schedule after one step: step=%d r=%v d=%v", layer.Step(), layer.RMax(), layer.DMax())
	}

	// The second step may shift each channel by at most d_max.
	second := mustForward(t, layer, x, PhaseTrain)
	sd := second.Data()
	for i := range sd {
		if math.Abs(sd[i]-(want[i]+1e-3)) > 1e-9 {
			t.Fatalf("element %d: got %v want %v", i, sd[i], want[i]+1e-3)
		}
	}
}

func TestBatchRenormInferenceUsesRunningStats(t *testing.T) {
	layer := newBatchRenorm(t, nil)
	x := tensor.MustNew([]float64{1, 2, 3, 4}, 2, 2)
	out := mustForward(t, layer, x, PhaseInfer)
	s := math.Sqrt(1.001)
	if !floatsAlmostEqual(out.Data(), []float64{1 / s, 2 / s, 3 / s, 4 / s}, 1e-12) {
		t.Fatalf("unexpected inference output %v", out.Data())
	}
	mustForward(t, layer, x, PhaseUnset)
	if layer.Step() != 0 {
		t.Fatalf("inference must not update state, step=%d", layer.Step())
	}
}

func TestBatchRenormConverges(t *testing.T) {
	layer := newBatchRenorm(t, func(c *Config) {
		c.Axis = AxisAt(1)
		c.Momentum = 0.9
	})
	rng := seeded(41)
	shiftChannels := func(x *tensor.Tensor) {
		data := x.Data()
		for i := range data {
			if (i/4)%2 == 1 {
				data[i] = data[i]*3 - 4
			}
		}
		mustSetData(t, x, data)
	}
	for step := 0; step < 200; step++ {
		x := tensor.Normal(rng, 5, 2, 32, 2, 4)
		shiftChannels(x)
		mustForward(t, layer, x, PhaseTrain)
	}
	mean := layer.RunningMean().Data()
	variance := layer.RunningVariance().Data()
	if math.Abs(mean[0]-5) > 0.3 || math.Abs(mean[1]-11) > 0.8 {
		t.Fatalf("running mean did not converge: %v", mean)
	}
	if math.Abs(variance[0]-4) > 0.6 || math.Abs(variance[1]-36) > 5 {
		t.Fatalf("running variance did not converge: %v", variance)
	}
	if math.Abs(layer.RMax()-3) > 1e-6 || math.Abs(layer.DMax()-5) > 1e-6 {
		t.Fatalf("bounds should have reached their ceilings: r=%v d=%v", layer.RMax(), layer.DMax())
	}

	held := tensor.Normal(rng, 5, 2, 256, 2, 4)
	shiftChannels(held)
	out := mustForward(t, layer, held, PhaseInfer)
	summaries, err := normstat.ChannelMoments(out, 1)
	if err != nil {
		t.Fatalf("ChannelMoments: %v", err)
	}
	checkStandardized(t, summaries, 0.15)
}

func TestBatchRenormCallSitesShareState(t *testing.T) {
	layer := newBatchRenorm(t, nil)
	train := layer.Call(ModeTrain)
	infer := layer.Call(ModeInfer)
	auto := layer.Call(ModeAuto)
	x := tensor.Normal(seeded(42), 3, 1, 8, 3)

	mustForward(t, infer, x, PhaseTrain)
	if layer.Step() != 0 {
		t.Fatalf("inference call site updated state")
	}
	mustForward(t, train, x, PhaseInfer)
	if layer.Step() != 1 {
		t.Fatalf("training call site did not update state")
	}
	mustForward(t, auto, x, PhaseTrain)
	mustForward(t, auto, x, PhaseInfer)
	if layer.Step() != 2 {
		t.Fatalf("auto call site should follow the phase, step=%d", layer.Step())
	}
	if train.Mode() != ModeTrain || infer.Mode() != ModeInfer {
		t.Fatalf("call site modes not retained")
	}
	tp, ip := train.Parameters(), infer.Parameters()
	if len(tp) != 2 || tp[0] != ip[0] || tp[1] != ip[1] || tp[0] != layer.Gamma() {
		t.Fatalf("call sites should share gamma and beta")
	}
	// Running statistics reflect both training updates.
	viaInfer := mustForward(t, infer, x, PhaseUnset)
	viaLayer := mustForward(t, layer, x, PhaseInfer)
	if !floatsAlmostEqual(viaInfer.Data(), viaLayer.Data(), 0) {
		t.Fatalf("call site and layer disagree in inference")
	}
}

func TestBatchRenormConcurrentTraining(t *testing.T) {
	layer := newBatchRenorm(t, nil)
	x := tensor.Normal(seeded(43), 0, 1, 16, 4)
	if err := layer.Build(x.Shape()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := layer.Call(ModeTrain).Forward(x, PhaseUnset); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent forward failed: %v", err)
	}
	if layer.Step() != workers {
		t.Fatalf("expected %d serialized updates, got %d", workers, layer.Step())
	}
}

func TestBatchRenormFrozenSkipsUpdates(t *testing.T) {
	layer := newBatchRenorm(t, func(c *Config) { c.Trainable = false })
	x := tensor.MustNew([]float64{1, 2, 3, 6}, 2, 2)
	x.SetRequiresGrad(true)
	out := mustForward(t, layer, x, PhaseTrain)
	if layer.Step() != 0 || layer.RMax() != 1 || layer.DMax() != 0 {
		t.Fatalf("frozen layer updated state")
	}
	if !floatsAlmostEqual(layer.RunningMean().Data(), []float64{0, 0}, 0) {
		t.Fatalf("frozen layer moved the running mean")
	}
	a := math.Sqrt(1.001)
	if math.Abs(out.Data()[0]+1/a) > 1e-12 {
		t.Fatalf("frozen layer should still normalize with batch statistics")
	}
	if layer.Parameters() != nil {
		t.Fatalf("frozen layer exposed parameters")
	}
	if err := tensor.Sum(out).Backward(); err != nil {
		t.Fatalf("backward: %v", err)
	}
	if layer.Gamma().Grad() != nil || layer.Beta().Grad() != nil {
		t.Fatalf("frozen parameters received gradients")
	}
}

func TestBatchRenormGradientsReachParameters(t *testing.T) {
	layer := newBatchRenorm(t, nil)
	x := tensor.Normal(seeded(44), 2, 1, 6, 3)
	x.SetRequiresGrad(true)
	out := mustForward(t, layer, x, PhaseTrain)
	w := tensor.Normal(seeded(45), 0, 1, 6, 3)
	prod, err := tensor.Mul(out, w)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if err := tensor.Sum(prod).Backward(); err != nil {
		t.Fatalf("backward: %v", err)
	}
	if layer.Gamma().Grad() == nil || layer.Beta().Grad() == nil || x.Grad() == nil {
		t.Fatalf("expected gradients on gamma, beta and input")
	}
	// d(sum(w*out))/d(beta_c) is the column sum of w.
	wd := w.Data()
	bg := layer.Beta().Grad().Data()
	for c := 0; c < 3; c++ {
		sum := 0.0
		for n := 0; n < 6; n++ {
			sum += wd[n*3+c]
		}
		if math.Abs(bg[c]-sum) > 1e-12 {
			t.Fatalf("beta grad %d = %v, want %v", c, bg[c], sum)
		}
	}
}
