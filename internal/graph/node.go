// Package graph is a typed DAG of block devices built from a
// HostConfiguration, with the structural validation every higher-level
// component relies on. Nodes are tagged variants held in an arena keyed by
// BlockDeviceID; edges are stored as ID vectors rather than owning
// references.
package graph

import "github.com/microsoft/trident/internal/config"

// Kind tags the variant a Node carries.
type Kind string

const (
	KindDisk Kind = "Disk"
	KindPartition Kind = "Partition"
	KindRaidArray Kind = "RaidArray"
	KindABVolume Kind = "ABVolume"
	KindVerityDevice Kind = "VerityDevice"
	KindEncryptedVolume Kind = "EncryptedVolume"
	KindFilesystem Kind = "Filesystem"
)

// Node is a single block device (or filesystem) in the graph. Kind-specific
// data lives in the pointer field matching Kind; the other kind fields are
// nil.
type Node struct {
	ID config.BlockDeviceID
	Kind Kind
	Targets []config.BlockDeviceID // edges to the devices this node consumes

	Disk *config.Disk
	Partition *partitionData
	RaidArray *config.RaidArray
	ABVolume *config.ABVolumePair
	VerityDevice *config.VerityDevice
	EncryptedVolume *config.EncryptedVolume
	Filesystem *config.FileSystem
}

// partitionData augments config.Partition with the owning disk, so a
// Partition node can answer size/type queries without a second lookup.
type partitionData struct {
	config.Partition
	DiskID config.BlockDeviceID
	SizeBytes uint64 // resolved size; 0 for "grow" until planning assigns one
	IsAdopted bool
	AdoptedUUID string
}

// Graph is the built, validated DAG over one HostConfiguration.
type Graph struct {
	nodes map[config.BlockDeviceID]*Node
	order []config.BlockDeviceID // registration order, for deterministic iteration
	spec *config.HostConfiguration
	partSize map[config.BlockDeviceID]uint64
}

// Node returns the node for id, or nil if id is unknown.
func (g *Graph) Node(id config.BlockDeviceID) *Node {
	return g.nodes[id]
}

// Nodes returns all nodes in registration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Targets returns the nodes that id consumes (its edges)
func (g *Graph) Targets(id config.BlockDeviceID) []*Node {
	n := g.nodes[id]
	if n == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.Targets))
	for _, t := range n.Targets {
		if tn := g.nodes[t]; tn != nil {
			out = append(out, tn)
		}
	}
	return out
}

// Dependents returns the nodes that consume id
func (g *Graph) Dependents(id config.BlockDeviceID) []*Node {
	var out []*Node
	for _, n := range g.Nodes() {
		for _, t := range n.Targets {
			if t == id {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// Spec returns the HostConfiguration this graph was built from.
func (g *Graph) Spec() *config.HostConfiguration {
	return g.spec
}

// HasABCapabilities reports whether id is itself an A/B volume, or is
// downstream of one along the ownership edges (a filesystem mounted on an
// A/B volume, for instance)
func (g *Graph) HasABCapabilities(id config.BlockDeviceID) bool {
	visited := map[config.BlockDeviceID]bool{}
	var visit func(config.BlockDeviceID) bool
	visit = func(cur config.BlockDeviceID) bool {
		if visited[cur] {
			return false
		}
		visited[cur] = true
		n := g.nodes[cur]
		if n == nil {
			return false
		}
		if n.Kind == KindABVolume {
			return true
		}
		for _, t := range n.Targets {
			if visit(t) {
				return true
			}
		}
		return false
	}
	return visit(id)
}

// RootFsIsVerity reports whether the filesystem mounted at "/" is backed
// (directly or via an A/B pair) by a VerityDevice
func (g *Graph) RootFsIsVerity() bool {
	for _, n := range g.Nodes() {
		if n.Kind != KindFilesystem || n.Filesystem == nil {
			continue
		}
		if n.Filesystem.MountPoint != "/" {
			continue
		}
		for _, t := range n.Targets {
			if g.resolvesToVerity(t, map[config.BlockDeviceID]bool{}) {
				return true
			}
		}
	}
	return false
}

func (g *Graph) resolvesToVerity(id config.BlockDeviceID, visited map[config.BlockDeviceID]bool) bool {
	if visited[id] {
		return false
	}
	visited[id] = true
	n := g.nodes[id]
	if n == nil {
		return false
	}
	if n.Kind == KindVerityDevice {
		return true
	}
	if n.Kind == KindABVolume {
		for _, t := range n.Targets {
			if g.resolvesToVerity(t, visited) {
				return true
			}
		}
	}
	return false
}
