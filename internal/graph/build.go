package graph

import (
	"fmt"

	"github.com/microsoft/trident/internal/config"
	trerrors "github.com/microsoft/trident/internal/errors"
)

// Build constructs and validates the Storage Graph for a HostConfiguration.
// Construction runs in two passes: registration of every node keyed by its
// declared ID (duplicate IDs fail), then resolution of references (unknown
// IDs fail) together with every kind-specific and cross-cutting invariant.
func Build(hc *config.HostConfiguration) (*Graph, error) {
	g := &Graph{
		nodes:    map[config.BlockDeviceID]*Node{},
		spec:     hc,
		partSize: map[config.BlockDeviceID]uint64{},
	}

	if err := g.registerAll(hc); err != nil {
		return nil, err
	}
	if err := g.resolveAll(hc); err != nil {
		return nil, err
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	if err := g.checkConsumerUniqueness(); err != nil {
		return nil, err
	}
	if err := g.checkRootMount(hc); err != nil {
		return nil, err
	}
	if err := g.checkDatastorePlacement(hc); err != nil {
		return nil, err
	}
	if err := g.checkExtensionPlacement(hc); err != nil {
		return nil, err
	}
	if err := g.checkRootVeritySelfUpgrade(hc); err != nil {
		return nil, err
	}

	return g, nil
}

func (g *Graph) register(id config.BlockDeviceID, n *Node) error {
	if id == "" {
		return trerrors.InvalidInputf("block device declared with an empty id")
	}
	if _, exists := g.nodes[id]; exists {
		return trerrors.InvalidInputf("duplicate block device id '%s'", id)
	}
	g.nodes[id] = n
	g.order = append(g.order, id)
	return nil
}

func (g *Graph) registerAll(hc *config.HostConfiguration) error {
	for i := range hc.Storage.Disks {
		d := &hc.Storage.Disks[i]
		if err := g.register(d.ID, &Node{ID: d.ID, Kind: KindDisk, Disk: d}); err != nil {
			return err
		}
		for j := range d.Partitions {
			p := &d.Partitions[j]
			pd := &partitionData{Partition: *p, DiskID: d.ID}
			if err := g.register(p.ID, &Node{ID: p.ID, Kind: KindPartition, Partition: pd}); err != nil {
				return err
			}
		}
		for j := range d.AdoptedPartitions {
			a := &d.AdoptedPartitions[j]
			if err := validateAdoptionMatcher(a); err != nil {
				return err
			}
			pd := &partitionData{
				Partition: config.Partition{ID: a.ID},
				DiskID: d.ID,
				IsAdopted: true,
			}
			if err := g.register(a.ID, &Node{ID: a.ID, Kind: KindPartition, Partition: pd}); err != nil {
				return err
			}
		}
	}
	for i := range hc.Storage.RaidArrays {
		r := &hc.Storage.RaidArrays[i]
		if err := g.register(r.ID, &Node{ID: r.ID, Kind: KindRaidArray, RaidArray: r}); err != nil {
			return err
		}
	}
	for i := range hc.Storage.ABVolumes {
		a := &hc.Storage.ABVolumes[i]
		if err := g.register(a.ID, &Node{ID: a.ID, Kind: KindABVolume, ABVolume: a}); err != nil {
			return err
		}
	}
	for i := range hc.Storage.Verity {
		v := &hc.Storage.Verity[i]
		if err := g.register(v.ID, &Node{ID: v.ID, Kind: KindVerityDevice, VerityDevice: v}); err != nil {
			return err
		}
	}
	if hc.Encryption != nil {
		for i := range hc.Encryption.Volumes {
			e := &hc.Encryption.Volumes[i]
			if err := g.register(e.ID, &Node{ID: e.ID, Kind: KindEncryptedVolume, EncryptedVolume: e}); err != nil {
				return err
			}
		}
	}
	for i := range hc.Storage.FileSystems {
		f := &hc.Storage.FileSystems[i]
		fsID := filesystemNodeID(f.DeviceID, i)
		if err := g.register(fsID, &Node{ID: fsID, Kind: KindFilesystem, Filesystem: f}); err != nil {
			return err
		}
	}
	return nil
}

func filesystemNodeID(device config.BlockDeviceID, index int) config.BlockDeviceID {
	return config.BlockDeviceID(fmt.Sprintf("%s::fs#%d", device, index))
}

func validateAdoptionMatcher(a *config.AdoptedPartition) error {
	hasLabel := a.MatchLabel != ""
	hasUUID := a.MatchUUID != ""
	if hasLabel == hasUUID {
		return trerrors.InvalidInputf(
			"adopted partition '%s' must set exactly one of matchLabel or matchUuid", a.ID)
	}
	return nil
}

func (g *Graph) resolveAll(hc *config.HostConfiguration) error {
	for i := range hc.Storage.RaidArrays {
		r := &hc.Storage.RaidArrays[i]
		node := g.nodes[r.ID]
		for _, m := range r.Members {
			target := g.nodes[m]
			if target == nil {
				return trerrors.InvalidInputf("RAID array '%s' references unknown block device '%s'", r.ID, m)
			}
			if target.Kind != KindPartition {
				return trerrors.InvalidInputf("RAID array '%s' member '%s' is not a partition", r.ID, m)
			}
			node.Targets = append(node.Targets, m)
		}
		if err := g.checkRaidMembersSameSize(r); err != nil {
			return err
		}
	}

	for i := range hc.Storage.ABVolumes {
		a := &hc.Storage.ABVolumes[i]
		node := g.nodes[a.ID]
		for _, half := range []config.BlockDeviceID{a.VolumeAID, a.VolumeBID} {
			target := g.nodes[half]
			if target == nil {
				return trerrors.InvalidInputf("A/B pair '%s' references unknown block device '%s'", a.ID, half)
			}
			node.Targets = append(node.Targets, half)
		}
		if err := g.checkABPairCompatible(a); err != nil {
			return err
		}
	}

	for i := range hc.Storage.Verity {
		v := &hc.Storage.Verity[i]
		node := g.nodes[v.ID]
		for _, t := range []config.BlockDeviceID{v.DataTarget, v.HashTarget} {
			target := g.nodes[t]
			if target == nil {
				return trerrors.InvalidInputf("verity device '%s' references unknown block device '%s'", v.ID, t)
			}
			node.Targets = append(node.Targets, t)
		}
		if err := g.checkVerityTargets(v); err != nil {
			return err
		}
	}

	// Partitions target their owning disk, giving the DAG a single root kind.
	for _, n := range g.nodes {
		if n.Kind == KindPartition {
			n.Targets = append(n.Targets, n.Partition.DiskID)
		}
	}

	if hc.Encryption != nil {
		for i := range hc.Encryption.Volumes {
			e := &hc.Encryption.Volumes[i]
			node := g.nodes[e.ID]
			target := g.nodes[e.DeviceID]
			if target == nil {
				return trerrors.InvalidInputf("encrypted volume '%s' references unknown block device '%s'", e.ID, e.DeviceID)
			}
			if target.Kind != KindPartition && target.Kind != KindRaidArray {
				return trerrors.InvalidInputf("encrypted volume '%s' backing device '%s' must be a partition or RAID array", e.ID, e.DeviceID)
			}
			node.Targets = append(node.Targets, e.DeviceID)
		}
	}

	for i := range hc.Storage.FileSystems {
		f := &hc.Storage.FileSystems[i]
		fsID := filesystemNodeID(f.DeviceID, i)
		node := g.nodes[fsID]
		target := g.nodes[f.DeviceID]
		if target == nil {
			return trerrors.InvalidInputf("filesystem references unknown block device '%s'", f.DeviceID)
		}
		node.Targets = append(node.Targets, f.DeviceID)
		if err := g.checkFilesystemSource(f, target); err != nil {
			return err
		}
	}

	return nil
}

// checkAcyclic walks the target edges from every node and fails if a cycle
// is found: the storage graph must form a DAG.
func (g *Graph) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[config.BlockDeviceID]int{}

	var visit func(id config.BlockDeviceID) error
	visit = func(id config.BlockDeviceID) error {
		switch color[id] {
		case gray:
			return trerrors.InvalidInputf("cycle detected in storage graph at block device '%s'", id)
		case black:
			return nil
		}
		color[id] = gray
		n := g.nodes[id]
		if n != nil {
			for _, t := range n.Targets {
				if err := visit(t); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, id := range g.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// checkConsumerUniqueness enforces that each partition is used by at most
// one higher-level consumer.
func (g *Graph) checkConsumerUniqueness() error {
	consumerOf := map[config.BlockDeviceID]config.BlockDeviceID{}
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Kind == KindPartition {
			continue // a partition's own target is its disk, not a "consumption"
		}
		for _, t := range n.Targets {
			target := g.nodes[t]
			if target == nil || target.Kind != KindPartition {
				continue
			}
			if existing, ok := consumerOf[t]; ok && existing != id {
				return trerrors.InvalidInputf(
					"partition '%s' is used by more than one consumer ('%s' and '%s')", t, existing, id)
			}
			consumerOf[t] = id
		}
	}
	return nil
}

func (g *Graph) partitionSize(id config.BlockDeviceID) (uint64, bool) {
	n := g.nodes[id]
	if n == nil || n.Kind != KindPartition {
		return 0, false
	}
	if n.Partition.IsAdopted {
		return n.Partition.SizeBytes, n.Partition.SizeBytes > 0
	}
	if IsGrow(n.Partition.Size) {
		return 0, false
	}
	sz, err := ParseSize(n.Partition.Size)
	if err != nil {
		return 0, false
	}
	return sz, true
}

func (g *Graph) checkRaidMembersSameSize(r *config.RaidArray) error {
	var want uint64
	haveWant := false
	for _, m := range r.Members {
		sz, known := g.partitionSize(m)
		if !known {
			continue // sizes not yet resolved (e.g. "grow"); planning-time concern
		}
		if !haveWant {
			want = sz
			haveWant = true
			continue
		}
		if sz != want {
			return trerrors.InvalidInputf("RAID array '%s' members are not all the same size", r.ID)
		}
	}
	return nil
}

// halfKind resolves the "kind" used for A/B same-kind comparison: the
// node's Kind, or "" for an unknown ID. Only Partition and RaidArray are
// accepted as halves by checkABPairCompatible.
func (g *Graph) halfKind(id config.BlockDeviceID) Kind {
	n := g.nodes[id]
	if n == nil {
		return ""
	}
	return n.Kind
}

func (g *Graph) checkABPairCompatible(a *config.ABVolumePair) error {
	kindA := g.halfKind(a.VolumeAID)
	kindB := g.halfKind(a.VolumeBID)
	if kindA != kindB {
		return trerrors.InvalidInputf("A/B pair '%s' halves are not the same kind", a.ID)
	}
	switch kindA {
	case KindPartition:
		sizeA, okA := g.partitionSize(a.VolumeAID)
		sizeB, okB := g.partitionSize(a.VolumeBID)
		if okA && okB && sizeA != sizeB {
			return trerrors.InvalidInputf("A/B pair '%s' halves are not the same size", a.ID)
		}
	case KindRaidArray:
		sizeA, okA := g.raidMemberSize(a.VolumeAID)
		sizeB, okB := g.raidMemberSize(a.VolumeBID)
		if okA && okB && sizeA != sizeB {
			return trerrors.InvalidInputf("A/B pair '%s' RAID halves do not have matching member size", a.ID)
		}
	default:
		return trerrors.InvalidInputf("A/B pair '%s' halves must be partitions or RAID arrays", a.ID)
	}
	return nil
}

func (g *Graph) raidMemberSize(raidID config.BlockDeviceID) (uint64, bool) {
	n := g.nodes[raidID]
	if n == nil || n.Kind != KindRaidArray || len(n.Targets) == 0 {
		return 0, false
	}
	return g.partitionSize(n.Targets[0])
}

// uniformPartitionType resolves the PartitionType of a target that is
// expected to be (possibly via a uniform RAID array or A/B pair) a single
// partition type, as required by verity device configuration.
func (g *Graph) uniformPartitionType(id config.BlockDeviceID) (config.PartitionType, error) {
	n := g.nodes[id]
	if n == nil {
		return "", trerrors.InvalidInputf("unknown block device '%s'", id)
	}
	switch n.Kind {
	case KindPartition:
		pt := n.Partition.PartitionType
		if pt != config.PartitionTypeRoot && pt != config.PartitionTypeRootVerity {
			return "", trerrors.InvalidInputf(
				"partition '%s' is of unsupported type '%s' for a verity target", id, pt)
		}
		return pt, nil
	case KindRaidArray, KindABVolume:
		var found config.PartitionType
		for _, t := range n.Targets {
			pt, err := g.uniformPartitionType(t)
			if err != nil {
				return "", trerrors.InvalidInputf("verity target '%s' references incompatible device '%s': %v", id, t, err)
			}
			if found == "" {
				found = pt
			} else if found != pt {
				return "", trerrors.InvalidInputf(
					"verity target '%s' mixes partition types across its members", id)
			}
		}
		if found == "" {
			return "", trerrors.InvalidInputf("verity target '%s' has no members", id)
		}
		return found, nil
	default:
		return "", trerrors.InvalidInputf("verity device references block device '%s' of invalid kind '%s'", id, n.Kind)
	}
}

func (g *Graph) checkVerityTargets(v *config.VerityDevice) error {
	kindData := g.halfKind(v.DataTarget)
	kindHash := g.halfKind(v.HashTarget)
	if kindData != kindHash {
		return trerrors.InvalidInputf("verity device '%s' targets are not the same kind", v.ID)
	}

	dataType, err := g.uniformPartitionType(v.DataTarget)
	if err != nil {
		return err
	}
	hashType, err := g.uniformPartitionType(v.HashTarget)
	if err != nil {
		return err
	}

	if dataType == hashType {
		return trerrors.InvalidInputf(
			"verity device '%s' references multiple partitions of type '%s'", v.ID, dataType)
	}
	if (dataType != config.PartitionTypeRoot && dataType != config.PartitionTypeRootVerity) ||
	(hashType != config.PartitionTypeRoot && hashType != config.PartitionTypeRootVerity) {
		return trerrors.InvalidInputf("verity device '%s' must reference exactly one root and one root-verity partition", v.ID)
	}
	return nil
}

func (g *Graph) checkFilesystemSource(f *config.FileSystem, target *Node) error {
	switch f.Source {
	case config.FileSystemSourceImage:
		if f.Image == nil {
			return trerrors.InvalidInputf("filesystem on '%s' has source 'image' but no image configured", f.DeviceID)
		}
		if target.Kind != KindPartition && target.Kind != KindABVolume {
			return trerrors.InvalidInputf(
				"filesystem with source 'image' on '%s' must target a single partition or an A/B pair, not a shared RAID array", f.DeviceID)
		}
	case config.FileSystemSourceNew:
		if f.Image != nil {
			return trerrors.InvalidInputf("filesystem on '%s' has source 'new' but an image is configured", f.DeviceID)
		}
	case config.FileSystemSourceAdopted:
		// no additional constraints beyond device resolution
	default:
		return trerrors.InvalidInputf("filesystem on '%s' has unknown source '%s'", f.DeviceID, f.Source)
	}
	return nil
}

func (g *Graph) checkRootMount(hc *config.HostConfiguration) error {
	if len(hc.Storage.Disks) == 0 {
		// A configuration with no disks is a pure library consumer (e.g. used
		// only to validate a partial fragment); skip the root-mount rule.
		return nil
	}
	count := 0
	for i := range hc.Storage.FileSystems {
		if hc.Storage.FileSystems[i].MountPoint == "/" {
			count++
		}
	}
	if count != 1 {
		return trerrors.InvalidInputf("expected exactly one filesystem mounted at '/', found %d", count)
	}
	return nil
}

func (g *Graph) checkDatastorePlacement(hc *config.HostConfiguration) error {
	_, deviceID, ok := hc.DatastorePath()
	if !ok {
		return nil
	}
	n := g.nodes[deviceID]
	if n == nil {
		return trerrors.InvalidInputf("datastore device '%s' does not resolve to a known block device", deviceID)
	}
	if g.HasABCapabilities(deviceID) {
		return trerrors.InvalidInputf("datastore device '%s' must not be an A/B volume", deviceID)
	}
	return nil
}

func (g *Graph) checkExtensionPlacement(hc *config.HostConfiguration) error {
	if len(hc.Extensions) == 0 || len(hc.Storage.ABVolumes) == 0 {
		return nil
	}
	for _, ext := range hc.Extensions {
		if !g.HasABCapabilities(ext.ID) {
			return trerrors.InvalidInputf(
				"extension '%s' must be placed on an A/B volume when A/B update is configured", ext.ID)
		}
	}
	return nil
}

func (g *Graph) checkRootVeritySelfUpgrade(hc *config.HostConfiguration) error {
	if !g.RootFsIsVerity() {
		return nil
	}
	if hc.InternalParams.GetFlag(config.ParamRootVerityCanSelfUpgrade) {
		return trerrors.InvalidInput("agent cannot write itself into a read-only root")
	}
	return nil
}
