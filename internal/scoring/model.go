// Package scoring combines deterministic business rules with a statistical
// outlier model to produce a normalized anomaly score per transaction.
package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// ErrModelUnavailable indicates the model could not be invoked and the
// engine degraded to rule-only scoring.
var ErrModelUnavailable = errors.New("scoring model unavailable")

// Scorer produces a raw decision score for a feature vector. The native
// convention follows the training job: lower (more negative) scores are more
// anomalous.
type Scorer interface {
	Score(features []float64) (float64, error)
}

// Calibration binds a loaded model to the raw score bounds observed at
// training time. It is constructed once at startup and never mutated;
// reloading requires a restart.
type Calibration struct {
	Model    Scorer
	MinScore float64
	MaxScore float64
}

// Artifact is the serialized isolation forest produced by the offline
// training job, together with its calibration bounds.
type Artifact struct {
	FeatureNames  []string `json:"feature_names"`
	SubsampleSize int      `json:"subsample_size"`
	Trees         []Tree   `json:"trees"`
	MinScore      float64  `json:"min_decision_score"`
	MaxScore      float64  `json:"max_decision_score"`
}

// Tree is a single isolation tree stored as a flat node array rooted at 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is one split or leaf of an isolation tree. Leaves have Left == -1 and
// carry the number of training samples that reached them.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Size      int     `json:"size"`
}

// IsLeaf reports whether the node terminates a path.
func (n Node) IsLeaf() bool { return n.Left < 0 }

// LoadArtifact reads a model artifact from the model store path and returns
// an immutable calibration ready to hand to the engine.
func LoadArtifact(path string) (*Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}

	if err := artifact.validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact: %w", err)
	}

	return &Calibration{
		Model:    &artifact,
		MinScore: artifact.MinScore,
		MaxScore: artifact.MaxScore,
	}, nil
}

func (a *Artifact) validate() error {
	if len(a.Trees) == 0 {
		return fmt.Errorf("no trees")
	}
	if len(a.FeatureNames) == 0 {
		return fmt.Errorf("no feature names")
	}
	if a.SubsampleSize < 2 {
		return fmt.Errorf("subsample size %d too small", a.SubsampleSize)
	}
	if a.MaxScore <= a.MinScore {
		return fmt.Errorf("calibration bounds inverted: min=%v max=%v", a.MinScore, a.MaxScore)
	}
	for i, tree := range a.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", i)
		}
		for j, node := range tree.Nodes {
			if node.IsLeaf() {
				continue
			}
			if node.Feature < 0 || node.Feature >= len(a.FeatureNames) {
				return fmt.Errorf("tree %d node %d references unknown feature %d", i, j, node.Feature)
			}
			if node.Left >= len(tree.Nodes) || node.Right < 0 || node.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d has out-of-range children", i, j)
			}
		}
	}
	return nil
}

// Score computes the isolation forest decision function for one feature
// vector: 0.5 - 2^(-E[h(x)]/c(psi)). Shorter average path lengths isolate the
// point faster, driving the score toward -0.5.
func (a *Artifact) Score(features []float64) (float64, error) {
	if len(features) != len(a.FeatureNames) {
		return 0, fmt.Errorf("feature vector has %d values, model expects %d: %w",
			len(features), len(a.FeatureNames), ErrModelUnavailable)
	}

	var total float64
	for i := range a.Trees {
		depth, err := a.Trees[i].pathLength(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		total += depth
	}
	mean := total / float64(len(a.Trees))

	anomaly := math.Pow(2, -mean/averagePathLength(float64(a.SubsampleSize)))
	return 0.5 - anomaly, nil
}

func (t *Tree) pathLength(features []float64) (float64, error) {
	depth := 0.0
	idx := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		node := t.Nodes[idx]
		if node.IsLeaf() {
			// External nodes holding more than one sample are credited
			// the expected depth of an unbuilt subtree.
			return depth + averagePathLength(float64(node.Size)), nil
		}
		if features[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
		depth++
	}
	return 0, fmt.Errorf("cycle detected in tree traversal")
}

// averagePathLength is c(n), the expected path length of an unsuccessful
// BST search over n samples.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	const eulerMascheroni = 0.5772156649
	harmonic := math.Log(n-1) + eulerMascheroni
	return 2*harmonic - 2*(n-1)/n
}
