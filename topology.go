package posevis

import "fmt"

// MaxPeople is the maximum number of people a single frame can carry.
// The device pose buffer is sized MaxPeople x parts x 3 floats.
const MaxPeople = 96

// PoseModel identifies a skeletal topology variant. It selects which
// topology catalog entry applies to a renderer.
type PoseModel uint8

const (
	// COCO18 is the 18-part COCO body model.
	COCO18 PoseModel = iota

	// MPI15 is the 15-part MPI body model.
	MPI15

	// MPI15Fast is the reduced-depth variant of MPI15. It shares the
	// MPI15 topology.
	MPI15Fast

	numPoseModels // keep last
)

// String returns a human-readable name for the model.
func (m PoseModel) String() string {
	switch m {
	case COCO18:
		return "COCO18"
	case MPI15:
		return "MPI15"
	case MPI15Fast:
		return "MPI15Fast"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(m))
	}
}

// Valid reports whether the model is part of the catalog.
func (m PoseModel) Valid() bool { return m < numPoseModels }

// Topology is the fixed graph of body parts and their connections for one
// pose model. Channel layout: heatmap channels are 0..Parts (the background
// channel sits at index Parts); affinity channels follow at the indices
// listed in ChannelPairs.
type Topology struct {
	// PartNames holds the base body part names in channel order, plus the
	// background channel name at index len-1 (== Parts).
	PartNames []string

	// PartPairs lists connected part indices as flat (A, B) pairs.
	PartPairs []int

	// ChannelPairs lists the affinity channel indices as flat (X, Y)
	// pairs, aligned with PartPairs.
	ChannelPairs []int

	// Channels is the total channel count of the net output (heatmaps
	// plus affinity fields). It can exceed Parts()+1+2*Pairs() for models
	// whose net emits affinity channels that are never rendered.
	Channels int
}

// Parts returns the number of body parts, excluding the background channel.
func (t *Topology) Parts() int { return len(t.PartNames) - 1 }

// Pairs returns the number of part-pair connections.
func (t *Topology) Pairs() int { return len(t.PartPairs) / 2 }

// TotalChannels returns the total channel count of the net output.
func (t *Topology) TotalChannels() int { return t.Channels }

// catalog holds the static per-model topology tables. Validated
// exhaustively once at package init rather than per access.
var catalog = map[PoseModel]*Topology{
	COCO18: {
		PartNames: []string{
			"Nose", "Neck",
			"RShoulder", "RElbow", "RWrist",
			"LShoulder", "LElbow", "LWrist",
			"RHip", "RKnee", "RAnkle",
			"LHip", "LKnee", "LAnkle",
			"REye", "LEye", "REar", "LEar",
			"Background",
		},
		PartPairs: []int{
			1, 2, 1, 5, 2, 3, 3, 4, 5, 6, 6, 7, 1, 8, 8, 9, 9, 10,
			1, 11, 11, 12, 12, 13, 1, 0, 0, 14, 14, 16, 0, 15, 15, 17,
		},
		ChannelPairs: []int{
			31, 32, 39, 40, 33, 34, 35, 36, 41, 42, 43, 44, 19, 20,
			21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 47, 48, 49, 50,
			53, 54, 51, 52, 55, 56,
		},
		Channels: 57,
	},
	MPI15:     mpiTopology,
	MPI15Fast: mpiTopology,
}

// mpiTopology is shared by MPI15 and MPI15Fast.
var mpiTopology = &Topology{
	PartNames: []string{
		"Head", "Neck",
		"RShoulder", "RElbow", "RWrist",
		"LShoulder", "LElbow", "LWrist",
		"RHip", "RKnee", "RAnkle",
		"LHip", "LKnee", "LAnkle",
		"Chest",
		"Background",
	},
	PartPairs: []int{
		0, 1, 1, 2, 2, 3, 3, 4, 1, 5, 5, 6, 6, 7,
		1, 14, 14, 8, 8, 9, 9, 10, 14, 11, 11, 12, 12, 13,
	},
	ChannelPairs: []int{
		16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29,
		30, 31, 32, 33, 34, 35, 36, 37, 38, 39, 40, 41, 42, 43,
	},
	Channels: 44,
}

func init() {
	for model, topo := range catalog {
		if err := validateTopology(topo); err != nil {
			panic(fmt.Sprintf("posevis: bad topology for %v: %v", model, err))
		}
	}
}

// validateTopology checks the static invariants of a catalog entry:
// pair endpoints index real parts, channel pairs align with part pairs,
// and every affinity channel lands past the heatmap channels without
// colliding with another entry.
func validateTopology(t *Topology) error {
	if len(t.PartNames) < 2 {
		return fmt.Errorf("part names missing (%d entries)", len(t.PartNames))
	}
	if len(t.PartPairs)%2 != 0 {
		return fmt.Errorf("odd part pair list length %d", len(t.PartPairs))
	}
	if len(t.ChannelPairs) != len(t.PartPairs) {
		return fmt.Errorf("channel pair list length %d does not match part pairs %d",
			len(t.ChannelPairs), len(t.PartPairs))
	}
	parts := t.Parts()
	for i, p := range t.PartPairs {
		if p < 0 || p >= parts {
			return fmt.Errorf("part pair entry %d out of range: %d", i, p)
		}
	}
	if t.Channels < parts+1+len(t.ChannelPairs) {
		return fmt.Errorf("channel count %d too small for %d heatmap and %d affinity channels",
			t.Channels, parts+1, len(t.ChannelPairs))
	}
	seen := make(map[int]bool, len(t.ChannelPairs))
	for i, c := range t.ChannelPairs {
		if c <= parts || c >= t.Channels {
			return fmt.Errorf("affinity channel entry %d out of range: %d", i, c)
		}
		if seen[c] {
			return fmt.Errorf("affinity channel %d listed twice", c)
		}
		seen[c] = true
	}
	return nil
}

// TopologyFor returns the topology catalog entry for the model.
func TopologyFor(model PoseModel) (*Topology, error) {
	t, ok := catalog[model]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownModel, model)
	}
	return t, nil
}

// NumberBodyParts returns the body part count for the model, excluding the
// background channel. Returns 0 for an unknown model.
func NumberBodyParts(model PoseModel) int {
	t, ok := catalog[model]
	if !ok {
		return 0
	}
	return t.Parts()
}
