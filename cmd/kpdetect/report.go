// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/gogpu/vision/codec"
)

// keypoint is the JSON form of codec.Keypoint.
type keypoint struct {
	X           uint16  `json:"x"`
	Y           uint16  `json:"y"`
	LOD         float64 `json:"lod"`
	Orientation float64 `json:"orientation"`
	Score       float64 `json:"score"`
}

func keypoints(kps []codec.Keypoint) []keypoint {
	out := make([]keypoint, len(kps))
	for i, k := range kps {
		out[i] = keypoint{X: k.X, Y: k.Y, LOD: k.LOD, Orientation: k.Orientation, Score: k.Score}
	}
	return out
}

// frame summarizes one iteration of the loop.
type frame struct {
	Index         int     `json:"index"`
	Keypoints     int     `json:"keypoints"`
	Threshold     int     `json:"threshold"`
	EncoderLength int     `json:"encoder_length"`
	MaxIterations int     `json:"max_iterations"`
	LatencyMS     float64 `json:"latency_ms"`
}

// detectReport is printed by the detect command.
type detectReport struct {
	RunID     string             `json:"run_id"`
	Backend   string             `json:"backend"`
	Image     string             `json:"image"`
	Width     int                `json:"width"`
	Height    int                `json:"height"`
	Expected  int                `json:"expected"`
	Frames    []frame            `json:"frames"`
	Keypoints []keypoint         `json:"keypoints"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// benchReport is printed by the bench command.
type benchReport struct {
	RunID    string             `json:"run_id"`
	Backend  string             `json:"backend"`
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	Expected int                `json:"expected"`
	Frames   int                `json:"frames"`
	Elapsed  string             `json:"elapsed"`
	FPS      float64            `json:"fps"`
	Latency  latencySummary     `json:"latency"`
	Final    frame              `json:"final"`
	Settled  int                `json:"settled_frame"`
	History  []frame            `json:"history,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

type latencySummary struct {
	MeanMS float64 `json:"mean_ms"`
	P50MS  float64 `json:"p50_ms"`
	P95MS  float64 `json:"p95_ms"`
	MaxMS  float64 `json:"max_ms"`
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
