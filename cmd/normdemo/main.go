// Command normdemo trains a normalization layer on synthetic per-channel
// shifted data and reports the statistics it learns.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"

	"github.com/fumitoshi0524/ixeorinorm/internal/normstat"
	"github.com/fumitoshi0524/ixeorinorm/loss"
	"github.com/fumitoshi0524/ixeorinorm/nn"
	"github.com/fumitoshi0524/ixeorinorm/optim"
	"github.com/fumitoshi0524/ixeorinorm/tensor"
)

type layer interface {
	nn.StatefulModule
	Build(shape []int) error
	Gamma() *tensor.Tensor
	Beta() *tensor.Tensor
}

// dataset draws x[n,c,s] = shift[c] + spread[c]*z and the target
// scale[c]*z + offset[c], so a layer that standardizes per channel can fit
// the target exactly through gamma and beta.
type dataset struct {
	rng      *rand.Rand
	channels int
	spatial  int
	shift    []float64
	spread   []float64
	scale    []float64
	offset   []float64
}

func newDataset(rng *rand.Rand, channels, spatial int) *dataset {
	d := &dataset{rng: rng, channels: channels, spatial: spatial}
	for c := 0; c < channels; c++ {
		d.shift = append(d.shift, float64(c)*3-2)
		d.spread = append(d.spread, 0.5+float64(c))
		d.scale = append(d.scale, 1+0.5*float64(c%3))
		d.offset = append(d.offset, 0.25*float64(c)-0.5)
	}
	return d
}

func (d *dataset) batch(size int) (*tensor.Tensor, *tensor.Tensor) {
	n := size * d.channels * d.spatial
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := range xs {
		c := (i / d.spatial) % d.channels
		z := d.rng.NormFloat64()
		xs[i] = d.shift[c] + d.spread[c]*z
		ys[i] = d.scale[c]*z + d.offset[c]
	}
	return tensor.MustNew(xs, size, d.channels, d.spatial), tensor.MustNew(ys, size, d.channels, d.spatial)
}

func main() {
	kind := flag.String("layer", "renorm", "layer to train: instance, group or renorm")
	groups := flag.Int("groups", 2, "group count for -layer group")
	axis := flag.String("axis", "1", "feature axis, or none")
	channels := flag.Int("channels", 4, "number of channels")
	spatial := flag.Int("spatial", 8, "elements per channel and sample")
	steps := flag.Int("steps", 300, "training steps")
	batchSize := flag.Int("batch", 32, "batch size")
	optName := flag.String("optim", "sgd", "optimizer: sgd, adam or rmsprop")
	lr := flag.Float64("lr", 0.05, "learning rate")
	configPath := flag.String("config", "", "JSON layer config; flags given explicitly override it")
	savePath := flag.String("save", "", "write the trained layer state to this file")
	dropout := flag.Float64("dropout", 0, "dropout probability applied to the inputs while training")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	cfg, err := layerConfig(*kind, *configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	var axisErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "axis":
			cfg.Axis, axisErr = parseAxis(*axis)
		case "groups":
			cfg.Groups = *groups
		}
	})
	if axisErr != nil {
		log.Fatalf("axis: %v", axisErr)
	}
	if *configPath == "" && *kind != "group" && !isSet("axis") {
		cfg.Axis = nn.AxisAt(1)
	}

	model, err := newLayer(*kind, cfg)
	if err != nil {
		log.Fatalf("layer: %v", err)
	}
	data := newDataset(rand.New(rand.NewSource(*seed)), *channels, *spatial)
	if err := model.Build([]int{*batchSize, *channels, *spatial}); err != nil {
		log.Fatalf("build: %v", err)
	}
	var net nn.Module = model
	if *dropout > 0 {
		d, err := nn.NewSeededDropout(*dropout, *seed)
		if err != nil {
			log.Fatalf("dropout: %v", err)
		}
		net = nn.NewSequential(d, model)
	}
	opt, err := optim.New(*optName, net.Parameters(), *lr)
	if err != nil {
		log.Fatalf("optimizer: %v", err)
	}
	fmt.Printf("training %s %s for %d steps\n", *kind, describe(cfg), *steps)

	if err := train(net, model, opt, data, *steps, *batchSize); err != nil {
		log.Fatalf("train: %v", err)
	}
	if err := report(model, data, *batchSize*4); err != nil {
		log.Fatalf("report: %v", err)
	}
	if *savePath != "" {
		if err := nn.SaveModule(*savePath, model); err != nil {
			log.Fatalf("save: %v", err)
		}
		fmt.Printf("saved state to %s\n", *savePath)
	}
}

func layerConfig(kind, path string) (nn.Config, error) {
	if path != "" {
		return nn.LoadConfigFile(path)
	}
	switch kind {
	case "instance":
		return nn.DefaultInstanceNormConfig(), nil
	case "group":
		cfg := nn.DefaultGroupNormConfig(2)
		cfg.Axis = nn.AxisAt(1)
		return cfg, nil
	case "renorm":
		return nn.DefaultBatchRenormConfig(), nil
	default:
		return nn.Config{}, fmt.Errorf("unknown layer %q", kind)
	}
}

func newLayer(kind string, cfg nn.Config) (layer, error) {
	switch kind {
	case "instance":
		return nn.NewInstanceNorm(cfg)
	case "group":
		return nn.NewGroupNorm(cfg)
	case "renorm":
		return nn.NewBatchRenorm(cfg)
	default:
		return nil, fmt.Errorf("unknown layer %q", kind)
	}
}

func parseAxis(s string) (nn.Axis, error) {
	if strings.EqualFold(s, "none") {
		return nn.NoAxis, nil
	}
	idx, err := strconv.Atoi(s)
	if err != nil {
		return nn.Axis{}, err
	}
	return nn.AxisAt(idx), nil
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func describe(cfg nn.Config) string {
	parts := make([]string, 0, len(cfg.Map()))
	for _, key := range []string{"axis", "groups", "epsilon", "momentum", "r_max_ceiling", "d_max_ceiling", "t_delta"} {
		parts = append(parts, fmt.Sprintf("%s=%v", key, cfg.Map()[key]))
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func train(net nn.Module, model layer, opt optim.Optimizer, data *dataset, steps, batchSize int) error {
	renorm, _ := model.(*nn.BatchRenorm)
	for step := 1; step <= steps; step++ {
		xs, ys := data.batch(batchSize)
		opt.ZeroGrad()
		pred, err := net.Forward(xs, nn.PhaseTrain)
		if err != nil {
			return err
		}
		l, err := loss.MSE(pred, ys)
		if err != nil {
			return err
		}
		if err := l.Backward(); err != nil {
			return err
		}
		if err := opt.Step(); err != nil {
			return err
		}
		if step%50 == 0 || step == 1 || step == steps {
			line := fmt.Sprintf("step %4d loss %.5f", step, l.Data()[0])
			if renorm != nil {
				line += fmt.Sprintf(" r_max %.3f d_max %.3f", renorm.RMax(), renorm.DMax())
			}
			fmt.Println(line)
		}
	}
	return nil
}

func report(model layer, data *dataset, size int) error {
	xs, ys := data.batch(size)
	pred, err := model.Forward(xs, nn.PhaseInfer)
	if err != nil {
		return err
	}
	l, err := loss.MSE(pred, ys)
	if err != nil {
		return err
	}
	fmt.Printf("held-out loss %.5f\n", l.Data()[0])
	got, err := normstat.ChannelMoments(pred, 1)
	if err != nil {
		return err
	}
	want, err := normstat.ChannelMoments(ys, 1)
	if err != nil {
		return err
	}
	for c := range got {
		fmt.Printf("channel %d output %v target %v\n", c, got[c], want[c])
	}
	if g := model.Gamma(); g != nil {
		fmt.Printf("gamma %v\n", fmtSlice(g.Data()))
	}
	if b := model.Beta(); b != nil {
		fmt.Printf("beta  %v\n", fmtSlice(b.Data()))
	}
	if renorm, ok := model.(*nn.BatchRenorm); ok {
		fmt.Printf("running mean %v\n", fmtSlice(renorm.RunningMean().Data()))
		fmt.Printf("running var  %v\n", fmtSlice(renorm.RunningVariance().Data()))
	}
	return nil
}

func fmtSlice(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', 3, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
