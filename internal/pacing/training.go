package pacing

import "sort"

const (
	trainFrames       = 66
	trainTrimmedLow   = 3  // drop the lowest 3 of 66
	trainTrimmedHigh  = 63 // keep up to (exclusive) index 63: 60 middle samples
)

// Sampler feeds one measured packets-per-second reading per training
// frame; real callers flood the queue with TotalPktsPerFrame packets and
// time the burst, but the trimming/averaging logic here is
// collaborator-agnostic so it is independently testable.
type Sampler func(frameIdx int) (pktsPerSec float64)

// TrainResult is what Train hands back: the pad_interval to cache, or a
// request to retrain at a higher configured BPS (spec.md §4.5.1: "raises
// the configured BPS to 1.005 * nominal^2/measured and retrains").
type TrainResult struct {
	PadInterval float64
	Converged   bool
	RetryBPS    uint64
}

// TrainConfig parameterizes one training run.
type TrainConfig struct {
	TotalPktsPerFrame int
	NominalPktsPerSec float64
	NominalBPS        uint64
	MinPadInterval    float64 // floor from spec.md §4.5.1 / §9 Open Question; default 32
}

// Train implements spec.md §4.5.1: flood for trainFrames, trim to the
// middle 60 samples, compute measured rate, then either accept the
// result or recommend a higher BPS and a retrain.
func Train(cfg TrainConfig, sample Sampler) TrainResult {
	if cfg.MinPadInterval <= 0 {
		cfg.MinPadInterval = 32
	}

	samples := make([]float64, trainFrames)
	for i := 0; i < trainFrames; i++ {
		samples[i] = sample(i)
	}
	sort.Float64s(samples)
	trimmed := samples[trainTrimmedLow:trainTrimmedHigh]

	var sum float64
	for _, v := range trimmed {
		sum += v
	}
	measuredPktsPerSec := sum / float64(len(trimmed))

	// pkts_per_frame_measured is the measured rate expressed in packets
	// per nominal frame period, so that pad_interval comes out in units
	// of packets (spec.md: "pad_interval = total_pkts /
	// (pkts_per_frame_measured - total_pkts)").
	nominalFrameHz := cfg.NominalPktsPerSec / float64(cfg.TotalPktsPerFrame)
	pktsPerFrameMeasured := measuredPktsPerSec / nominalFrameHz

	if measuredPktsPerSec <= cfg.NominalPktsPerSec || pktsPerFrameMeasured <= float64(cfg.TotalPktsPerFrame) {
		return TrainResult{RetryBPS: retryBPS(cfg, measuredPktsPerSec)}
	}

	padInterval := float64(cfg.TotalPktsPerFrame) / (pktsPerFrameMeasured - float64(cfg.TotalPktsPerFrame))
	if padInterval < cfg.MinPadInterval {
		return TrainResult{RetryBPS: retryBPS(cfg, measuredPktsPerSec)}
	}

	return TrainResult{PadInterval: padInterval, Converged: true}
}

// retryBPS implements spec.md §4.5.1: "raises the configured BPS to
// 1.005 * nominal^2 / measured". measuredPktsPerSec is converted to a
// measured-BPS figure proportional to the configured nominal BPS, since
// the two are measured in different units but move together.
func retryBPS(cfg TrainConfig, measuredPktsPerSec float64) uint64 {
	nominal := float64(cfg.NominalBPS)
	measuredBPS := nominal * measuredPktsPerSec / cfg.NominalPktsPerSec
	if measuredBPS <= 0 {
		return cfg.NominalBPS
	}
	return uint64(1.005 * nominal * nominal / measuredBPS)
}
