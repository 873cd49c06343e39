package posevis

import "fmt"

// buildPartNames resolves the complete channel-index -> name table for a
// topology. Base part and background names come straight from the catalog;
// every affinity channel pair (X, Y) gets "A->B(X)" / "A->B(Y)" where A and
// B are the connected parts' base names.
//
// The table is total: every channel index the topology references has an
// entry. A pair endpoint missing from the base table is a lookup fault and
// yields a nil table.
func buildPartNames(t *Topology) (map[int]string, error) {
	names := make(map[int]string, t.Parts()+1+len(t.ChannelPairs))
	for i, name := range t.PartNames {
		names[i] = name
	}
	for i := 0; i+1 < len(t.PartPairs); i += 2 {
		a, okA := names[t.PartPairs[i]]
		b, okB := names[t.PartPairs[i+1]]
		if !okA || !okB {
			return nil, fmt.Errorf("%w: pair (%d, %d)",
				ErrUnknownPart, t.PartPairs[i], t.PartPairs[i+1])
		}
		names[t.ChannelPairs[i]] = a + "->" + b + "(X)"
		names[t.ChannelPairs[i+1]] = a + "->" + b + "(Y)"
	}
	return names, nil
}

// PartNameTable returns the complete channel-index -> name mapping for a
// model, including synthesized affinity names.
func PartNameTable(model PoseModel) (map[int]string, error) {
	t, err := TopologyFor(model)
	if err != nil {
		return nil, err
	}
	return buildPartNames(t)
}
