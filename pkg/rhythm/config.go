package rhythm

// ConfigVersion identifies the threshold set produced by [DefaultAnalysisConfig].
// Bump it whenever a default changes so stored grids can be traced back to the
// thresholds that produced them.
const ConfigVersion = 1

// AnalysisConfig gathers every tunable threshold of the segmentation engine.
// It is passed by value into each component; algorithms never read ambient
// state.
type AnalysisConfig struct {
	// Version is the threshold set revision. Zero means "use the current one".
	Version int `yaml:"version" json:"version"`

	// SampleRate is the rate audio is resampled to before analysis.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	Onset   OnsetConfig   `yaml:"onset" json:"onset"`
	Segment SegmentConfig `yaml:"segment" json:"segment"`
	Prosody ProsodyConfig `yaml:"prosody" json:"prosody"`
}

// OnsetConfig tunes the onset detector.
type OnsetConfig struct {
	// FrameSize and HopLength define the STFT used for the spectral flux curve.
	FrameSize int `yaml:"frame_size" json:"frame_size"`
	HopLength int `yaml:"hop_length" json:"hop_length"`

	// Delta is the sensitivity threshold above the local mean. Lower values
	// yield more onsets.
	Delta float64 `yaml:"delta" json:"delta"`

	// Wait is the minimum number of frames between two onsets.
	Wait int `yaml:"wait" json:"wait"`

	PreMax  int `yaml:"pre_max" json:"pre_max"`
	PostMax int `yaml:"post_max" json:"post_max"`
	PreAvg  int `yaml:"pre_avg" json:"pre_avg"`
	PostAvg int `yaml:"post_avg" json:"post_avg"`

	// Backtrack moves every peak to the preceding local minimum.
	Backtrack bool `yaml:"backtrack" json:"backtrack"`

	// UseFallback enables the RMS energy detector when the spectral detector
	// under-fires.
	UseFallback bool `yaml:"use_fallback" json:"use_fallback"`

	// FallbackMinOnsets is the onset count below which the fallback runs.
	FallbackMinOnsets int `yaml:"fallback_min_onsets" json:"fallback_min_onsets"`

	// FallbackThreshold is the normalised RMS level a peak must exceed.
	FallbackThreshold float64 `yaml:"fallback_threshold" json:"fallback_threshold"`

	// FallbackMinSpacing is the minimum distance between fallback peaks in seconds.
	FallbackMinSpacing float64 `yaml:"fallback_min_spacing" json:"fallback_min_spacing"`

	// MergeWindow collapses onsets closer than this many seconds.
	MergeWindow float64 `yaml:"merge_window" json:"merge_window"`
}

// SegmentConfig tunes the segment refiner.
type SegmentConfig struct {
	// DefaultLastDuration is assigned to the final onset, which has no successor.
	DefaultLastDuration float64 `yaml:"default_last_duration" json:"default_last_duration"`

	// MaxDuration is the length above which a segment is considered for splitting.
	MaxDuration float64 `yaml:"max_duration" json:"max_duration"`

	// SplitHop is the RMS envelope hop in samples used inside long segments.
	SplitHop int `yaml:"split_hop" json:"split_hop"`

	// ValleyDepth is the fraction a valley must sit below its neighbouring peaks.
	ValleyDepth float64 `yaml:"valley_depth" json:"valley_depth"`

	// ValleyPeakRatio caps valleys relative to the segment peak.
	ValleyPeakRatio float64 `yaml:"valley_peak_ratio" json:"valley_peak_ratio"`

	// EdgeGuard rejects valleys this close (seconds) to a segment edge.
	EdgeGuard float64 `yaml:"edge_guard" json:"edge_guard"`

	// MinValleySpacing merges valleys closer than this many seconds.
	MinValleySpacing float64 `yaml:"min_valley_spacing" json:"min_valley_spacing"`

	// ShortDuration and LowEnergyRatio drive the breath filter: a segment that
	// is both shorter than ShortDuration and quieter than LowEnergyRatio times
	// the track peak RMS is dropped.
	ShortDuration  float64 `yaml:"short_duration" json:"short_duration"`
	LowEnergyRatio float64 `yaml:"low_energy_ratio" json:"low_energy_ratio"`
}

// ProsodyConfig tunes the prosody classifier.
type ProsodyConfig struct {
	StressMultiplier float64 `yaml:"stress_multiplier" json:"stress_multiplier"`
	StressWindow     int     `yaml:"stress_window" json:"stress_window"`
	SustainThreshold float64 `yaml:"sustain_threshold" json:"sustain_threshold"`

	// Pitch tracker parameters.
	PitchFrameSize int     `yaml:"pitch_frame_size" json:"pitch_frame_size"`
	PitchHop       int     `yaml:"pitch_hop" json:"pitch_hop"`
	PitchMinHz     float64 `yaml:"pitch_min_hz" json:"pitch_min_hz"`
	PitchMaxHz     float64 `yaml:"pitch_max_hz" json:"pitch_max_hz"`
	VoicingCutoff  float64 `yaml:"voicing_cutoff" json:"voicing_cutoff"`

	// Contour classification thresholds.
	RisingRatio  float64 `yaml:"rising_ratio" json:"rising_ratio"`
	FallingRatio float64 `yaml:"falling_ratio" json:"falling_ratio"`
	LowPitchHz   float64 `yaml:"low_pitch_hz" json:"low_pitch_hz"`
	HighPitchHz  float64 `yaml:"high_pitch_hz" json:"high_pitch_hz"`
}

// DefaultAnalysisConfig returns the current default thresholds.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Version:    ConfigVersion,
		SampleRate: 22050,
		Onset: OnsetConfig{
			FrameSize:          2048,
			HopLength:          512,
			Delta:              0.05,
			Wait:               1,
			PreMax:             1,
			PostMax:            1,
			PreAvg:             1,
			PostAvg:            1,
			Backtrack:          true,
			UseFallback:        true,
			FallbackMinOnsets:  3,
			FallbackThreshold:  0.15,
			FallbackMinSpacing: 0.08,
			MergeWindow:        0.05,
		},
		Segment: SegmentConfig{
			DefaultLastDuration: 0.2,
			MaxDuration:         1.0,
			SplitHop:            256,
			ValleyDepth:         0.3,
			ValleyPeakRatio:     0.5,
			EdgeGuard:           0.05,
			MinValleySpacing:    0.08,
			ShortDuration:       0.15,
			LowEnergyRatio:      0.15,
		},
		Prosody: ProsodyConfig{
			StressMultiplier: 1.2,
			StressWindow:     2,
			SustainThreshold: 0.4,
			PitchFrameSize:   2048,
			PitchHop:         512,
			PitchMinHz:       65,
			PitchMaxHz:       1000,
			VoicingCutoff:    0.15,
			RisingRatio:      1.2,
			FallingRatio:     0.8,
			LowPitchHz:       150,
			HighPitchHz:      300,
		},
	}
}

// WithDefaults returns c with unset and invalid thresholds replaced by their
// defaults.
//
// A section left entirely zero (Onset, Segment or Prosody) counts as unset
// and takes [DefaultAnalysisConfig] wholesale. Inside a section that sets
// anything, zero is a real setting wherever it has a meaning (wait: 0,
// delta: 0, stress_window: 0, ...) and is kept; only negative values, and
// zero for sizes, rates and frequencies that must be positive, are replaced.
// Boolean switches are never touched.
func (c AnalysisConfig) WithDefaults() AnalysisConfig {
	d := DefaultAnalysisConfig()
	if c.Version == 0 {
		c.Version = d.Version
	}
	positiveInt(&c.SampleRate, d.SampleRate)

	if c.Onset == (OnsetConfig{}) {
		c.Onset = d.Onset
	}
	o, do := &c.Onset, d.Onset
	positiveInt(&o.FrameSize, do.FrameSize)
	positiveInt(&o.HopLength, do.HopLength)
	nonNegFloat(&o.Delta, do.Delta)
	nonNegInt(&o.Wait, do.Wait)
	nonNegInt(&o.PreMax, do.PreMax)
	nonNegInt(&o.PostMax, do.PostMax)
	nonNegInt(&o.PreAvg, do.PreAvg)
	nonNegInt(&o.PostAvg, do.PostAvg)
	nonNegInt(&o.FallbackMinOnsets, do.FallbackMinOnsets)
	nonNegFloat(&o.FallbackThreshold, do.FallbackThreshold)
	nonNegFloat(&o.FallbackMinSpacing, do.FallbackMinSpacing)
	nonNegFloat(&o.MergeWindow, do.MergeWindow)

	if c.Segment == (SegmentConfig{}) {
		c.Segment = d.Segment
	}
	s, ds := &c.Segment, d.Segment
	positiveFloat(&s.DefaultLastDuration, ds.DefaultLastDuration)
	positiveFloat(&s.MaxDuration, ds.MaxDuration)
	positiveInt(&s.SplitHop, ds.SplitHop)
	nonNegFloat(&s.ValleyDepth, ds.ValleyDepth)
	nonNegFloat(&s.ValleyPeakRatio, ds.ValleyPeakRatio)
	nonNegFloat(&s.EdgeGuard, ds.EdgeGuard)
	nonNegFloat(&s.MinValleySpacing, ds.MinValleySpacing)
	nonNegFloat(&s.ShortDuration, ds.ShortDuration)
	nonNegFloat(&s.LowEnergyRatio, ds.LowEnergyRatio)

	if c.Prosody == (ProsodyConfig{}) {
		c.Prosody = d.Prosody
	}
	p, dp := &c.Prosody, d.Prosody
	positiveFloat(&p.StressMultiplier, dp.StressMultiplier)
	nonNegInt(&p.StressWindow, dp.StressWindow)
	positiveFloat(&p.SustainThreshold, dp.SustainThreshold)
	positiveInt(&p.PitchFrameSize, dp.PitchFrameSize)
	positiveInt(&p.PitchHop, dp.PitchHop)
	positiveFloat(&p.PitchMinHz, dp.PitchMinHz)
	positiveFloat(&p.PitchMaxHz, dp.PitchMaxHz)
	nonNegFloat(&p.VoicingCutoff, dp.VoicingCutoff)
	positiveFloat(&p.RisingRatio, dp.RisingRatio)
	positiveFloat(&p.FallingRatio, dp.FallingRatio)
	positiveFloat(&p.LowPitchHz, dp.LowPitchHz)
	positiveFloat(&p.HighPitchHz, dp.HighPitchHz)
	return c
}

func positiveInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func positiveFloat(v *float64, def float64) {
	if *v <= 0 {
		*v = def
	}
}

func nonNegInt(v *int, def int) {
	if *v < 0 {
		*v = def
	}
}

func nonNegFloat(v *float64, def float64) {
	if *v < 0 {
		*v = def
	}
}
