package track

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// SynthOptions controls Synthesize.
type SynthOptions struct {
	Rows      int     // number of samples
	Spacing   float64 // metres between samples
	Noise     float64 // standard deviation of level noise, mm
	SpikeRate float64 // fraction of samples given a level spike
	SpikeSize float64 // spike height, mm
	Seed      uint64
}

// DefaultSynthOptions returns a 200 m track sampled every 0.25 m.
func DefaultSynthOptions() SynthOptions {
	return SynthOptions{
		Rows:      800,
		Spacing:   0.25,
		Noise:     0.3,
		SpikeRate: 0.005,
		SpikeSize: 40,
		Seed:      1,
	}
}

// Synthesize generates a deterministic recording: slow sinusoidal level
// profiles with Gaussian noise and occasional spikes on Level1/Level2.
func Synthesize(opts SynthOptions) []Row {
	if opts.Rows <= 0 {
		return nil
	}
	if opts.Spacing <= 0 {
		opts.Spacing = 0.25
	}
	src := rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)
	rng := rand.New(src)
	noise := distuv.Normal{Mu: 0, Sigma: opts.Noise, Src: src}
	if opts.Noise <= 0 {
		noise.Sigma = 0
	}
	sample := func() float64 {
		if noise.Sigma == 0 {
			return 0
		}
		return noise.Rand()
	}

	rows := make([]Row, opts.Rows)
	for i := range rows {
		d := float64(i) * opts.Spacing
		r := Row{
			Index:     i,
			Travelled: d,
			Level1:    2*math.Sin(d/15) + sample(),
			Level2:    2*math.Sin(d/15+0.3) + sample(),
			Level3:    0.01*math.Sin(d/40) + sample()/100,
			Level4:    1.5*math.Cos(d/40) + sample(),
			Level5:    2*math.Sin(d/15) + 0.5*math.Sin(d/3) + sample(),
			Level6:    2*math.Sin(d/15+0.3) + 0.5*math.Cos(d/3) + sample(),
			Encoder3:  d * 1000,
			Ang1:      0.1 * math.Sin(d/50),
			Ang2:      0.05 * math.Cos(d/50),
			Ang3:      0.02 * math.Sin(d/7),
			Passthrough: Passthrough{
				UnixTimestamp: 1.7e9 + float64(i)*0.01,
				Elapsed:       float64(i) * 0.01,
				Velocity:      opts.Spacing / 0.01,
				Encoder1:      float64(i),
				Encoder2:      float64(i),
			},
		}
		if opts.SpikeRate > 0 && rng.Float64() < opts.SpikeRate {
			if rng.IntN(2) == 0 {
				r.Level1 += opts.SpikeSize
			} else {
				r.Level2 -= opts.SpikeSize
			}
		}
		rows[i] = r
	}
	return rows
}
