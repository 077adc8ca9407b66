// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vision

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand/v2"
	"strings"
	"time"
)

// System maxima. Requests beyond these are clamped, never rejected.
const (
	// MaxDescriptorSize is the largest descriptor, in bytes, a keypoint record can carry.
	MaxDescriptorSize = 64

	// MaxEncoderLength is the largest side of the square encoder texture.
	MaxEncoderLength = 300

	// MaxPyramidDepth bounds the number of octaves a pyramid may hold.
	MaxPyramidDepth = 8

	// MaxReadbackSlots bounds the number of in-flight transfer slots.
	MaxReadbackSlots = 4
)

// Defaults used by DefaultConfig.
const (
	DefaultPyramidDepth  = 5
	DefaultMaxScale      = 2.0
	DefaultReadbackSlots = 2
	DefaultPollInterval  = time.Millisecond
)

// ReadbackMode selects how encoder textures travel back to the host.
type ReadbackMode uint8

const (
	// ReadbackAsync cycles transfer slots guarded by GPU fences.
	ReadbackAsync ReadbackMode = iota

	// ReadbackSync reads through one shared buffer and blocks until done.
	ReadbackSync
)

// String returns the mode name.
func (m ReadbackMode) String() string {
	switch m {
	case ReadbackAsync:
		return "async"
	case ReadbackSync:
		return "sync"
	default:
		return fmt.Sprintf("ReadbackMode(%d)", m)
	}
}

// ParseReadbackMode parses "async" or "sync" (case-insensitive).
func ParseReadbackMode(s string) (ReadbackMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "async", "":
		return ReadbackAsync, nil
	case "sync":
		return ReadbackSync, nil
	default:
		return 0, Configf("parse readback mode", "", "unknown mode %q", s)
	}
}

// TuningConfig holds the constants of the adaptive tuners. They are
// empirical; only the qualitative behavior of the controllers matters.
type TuningConfig struct {
	// BucketSize is the dwell per state, in observations. Must be a power of two.
	BucketSize int

	// MedianWindow is the width of the median filter applied before averaging.
	MedianWindow int

	// LearningRate scales the sensitivity tuner step.
	LearningRate float64

	// ReversalProbability is the chance the sensitivity tuner flips direction.
	ReversalProbability float64

	// JitterSigma is the standard deviation of the multiplicative step jitter.
	JitterSigma float64

	// Tolerance is the relative error at which the sensitivity tuner reports
	// it has reached the expected value.
	Tolerance float64

	// AnnealingTemperature is the initial annealing temperature.
	AnnealingTemperature float64

	// AnnealingCooling is the geometric cooling factor (0 < alpha < 1).
	AnnealingCooling float64

	// AnnealingDwells is the number of dwells between cooling steps.
	AnnealingDwells int

	// AnnealingEpsilon is the temperature at which annealing finishes.
	AnnealingEpsilon float64
}

// DefaultTuningConfig returns the tuner constants used by DefaultConfig.
func DefaultTuningConfig() TuningConfig {
	return TuningConfig{
		BucketSize:           4,
		MedianWindow:         3,
		LearningRate:         0.2,
		ReversalProbability:  0.15,
		JitterSigma:          0.15,
		Tolerance:            0.1,
		AnnealingTemperature: 100,
		AnnealingCooling:     0.9,
		AnnealingDwells:      1,
		AnnealingEpsilon:     0.5,
	}
}

// Config carries the values every component shares. It is built once per
// session and passed explicitly to constructors.
type Config struct {
	// PyramidDepth is H, the number of octaves below native resolution.
	PyramidDepth int

	// MaxScale is M, the largest supported linear scale.
	MaxScale float64

	// MaxDescriptorSize caps descriptor bytes per keypoint.
	MaxDescriptorSize int

	// MaxEncoderLength caps the side of the encoder texture.
	MaxEncoderLength int

	// ReadbackSlots is the number of transfer slots in async mode.
	ReadbackSlots int

	// ReadbackMode selects async or sync readback.
	ReadbackMode ReadbackMode

	// PollInterval is the period between non-blocking fence polls.
	PollInterval time.Duration

	// Tuning holds the tuner constants.
	Tuning TuningConfig

	// Seed seeds the tuners' random source. Zero selects a time-based seed.
	Seed uint64
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		PyramidDepth:      DefaultPyramidDepth,
		MaxScale:          DefaultMaxScale,
		MaxDescriptorSize: MaxDescriptorSize,
		MaxEncoderLength:  MaxEncoderLength,
		ReadbackSlots:     DefaultReadbackSlots,
		ReadbackMode:      ReadbackAsync,
		PollInterval:      DefaultPollInterval,
		Tuning:            DefaultTuningConfig(),
	}
}

// Validate reports every invalid field as one ConfigurationError.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.PyramidDepth >= 1 && c.PyramidDepth <= MaxPyramidDepth,
		"pyramid depth %d out of range [1, %d]", c.PyramidDepth, MaxPyramidDepth)
	check(c.MaxScale >= 1, "max scale %g must be >= 1", c.MaxScale)
	check(c.MaxDescriptorSize >= 0 && c.MaxDescriptorSize <= MaxDescriptorSize,
		"max descriptor size %d out of range [0, %d]", c.MaxDescriptorSize, MaxDescriptorSize)
	check(c.MaxEncoderLength >= 1 && c.MaxEncoderLength <= MaxEncoderLength,
		"max encoder length %d out of range [1, %d]", c.MaxEncoderLength, MaxEncoderLength)
	check(c.ReadbackSlots >= 1 && c.ReadbackSlots <= MaxReadbackSlots,
		"readback slots %d out of range [1, %d]", c.ReadbackSlots, MaxReadbackSlots)
	check(c.ReadbackMode == ReadbackAsync || c.ReadbackMode == ReadbackSync,
		"invalid readback mode %s", c.ReadbackMode)
	check(c.PollInterval > 0, "poll interval must be positive")

	t := c.Tuning
	check(t.BucketSize > 0 && bits.OnesCount(uint(t.BucketSize)) == 1,
		"bucket size %d must be a power of two", t.BucketSize)
	check(t.MedianWindow >= 1 && t.MedianWindow <= t.BucketSize,
		"median window %d out of range [1, %d]", t.MedianWindow, t.BucketSize)
	check(t.LearningRate > 0, "learning rate must be positive")
	check(t.ReversalProbability >= 0 && t.ReversalProbability < 1,
		"reversal probability %g out of range [0, 1)", t.ReversalProbability)
	check(t.JitterSigma >= 0, "jitter sigma must be non-negative")
	check(t.Tolerance > 0, "tolerance must be positive")
	check(t.AnnealingTemperature > t.AnnealingEpsilon && t.AnnealingEpsilon > 0,
		"annealing temperature %g must exceed epsilon %g > 0", t.AnnealingTemperature, t.AnnealingEpsilon)
	check(t.AnnealingCooling > 0 && t.AnnealingCooling < 1,
		"annealing cooling %g out of range (0, 1)", t.AnnealingCooling)
	check(t.AnnealingDwells >= 1, "annealing dwells must be at least 1")

	if len(errs) == 0 {
		return nil
	}
	return &ConfigurationError{Op: "validate config", Err: errors.Join(errs...)}
}

// Rand returns a random source seeded from Seed.
func (c Config) Rand() *rand.Rand {
	seed := c.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
