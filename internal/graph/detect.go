package graph

import (
	"net/netip"
	"strings"

	"github.com/ipamtools/bamsync/internal/debug"
	"github.com/ipamtools/bamsync/internal/model"
)

// Build constructs the full dependency graph for a set of operations:
// nodes, automatically detected edges, phase barriers, and depths.
func Build(ops []*model.Operation) (*Graph, error) {
	g := New()
	for _, op := range ops {
		g.AddOperation(op)
	}
	if err := g.DetectDependencies(); err != nil {
		return nil, err
	}
	if err := g.ApplyPhaseBarriers(); err != nil {
		return nil, err
	}
	g.RecomputeDepths()
	return g, nil
}

// DetectDependencies walks every node and adds the edges implied by the
// rows: delete ordering between containers and their contents, parent-path
// containment, deferred references, and record-to-record links.
func (g *Graph) DetectDependencies() error {
	d := newDetector(g)
	for _, id := range g.NodeIDs() {
		n := g.nodes[id]
		if n.Op.IsBarrier() || n.Op.Row == nil {
			continue
		}
		switch n.Op.Type {
		case model.OpDelete:
			if err := d.detectDeleteEdges(n); err != nil {
				return err
			}
		case model.OpCreate, model.OpUpdate:
			if err := d.detectForwardEdges(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// detector carries the lookup indexes built over CREATE nodes. Edges only
// need to wait on resources being created in this run; resources that merely
// get updated already exist.
type detector struct {
	g *Graph

	byIdentity map[string]*Node
	byCIDR     map[string][]*Node
	zones      map[string][]*Node
	locations  map[string][]*Node
	byName     map[string][]*Node
	devices    map[string][]*Node
	records    map[string][]*Node
	prefixes   []prefixEntry
}

type prefixEntry struct {
	config string
	prefix netip.Prefix
	node   *Node
}

func newDetector(g *Graph) *detector {
	d := &detector{
		g:          g,
		byIdentity: make(map[string]*Node),
		byCIDR:     make(map[string][]*Node),
		zones:      make(map[string][]*Node),
		locations:  make(map[string][]*Node),
		byName:     make(map[string][]*Node),
		devices:    make(map[string][]*Node),
		records:    make(map[string][]*Node),
	}

	for _, id := range g.NodeIDs() {
		n := g.nodes[id]
		op := n.Op
		if op.Type != model.OpCreate || op.Row == nil {
			continue
		}
		row := op.Row
		d.byIdentity[strings.Join(identitySegments(row), "/")] = n

		switch op.ObjectType {
		case model.ObjectIP4Block, model.ObjectIP6Block,
			model.ObjectIP4Network, model.ObjectIP6Network:
			key := scoped(row.Config, string(op.ObjectType), row.CIDR())
			d.byCIDR[key] = append(d.byCIDR[key], n)
			if op.ObjectType == model.ObjectIP4Network || op.ObjectType == model.ObjectIP6Network {
				if p, err := netip.ParsePrefix(row.CIDR()); err == nil {
					d.prefixes = append(d.prefixes, prefixEntry{config: row.Config, prefix: p, node: n})
				}
			}
		case model.ObjectDNSZone:
			viewKey := scoped(row.Config, row.ViewPath(), row.Name())
			d.zones[viewKey] = append(d.zones[viewKey], n)
			if row.ViewPath() != "" {
				bareKey := scoped(row.Config, "", row.Name())
				d.zones[bareKey] = append(d.zones[bareKey], n)
			}
		case model.ObjectLocation:
			d.locations[row.NaturalKey()] = append(d.locations[row.NaturalKey()], n)
		case model.ObjectDeviceType, model.ObjectDeviceSubtype:
			key := scoped("", string(op.ObjectType), row.Name())
			d.byName[key] = append(d.byName[key], n)
		case model.ObjectDevice:
			d.devices[scoped(row.Config, "", row.Name())] = append(d.devices[scoped(row.Config, "", row.Name())], n)
			d.devices[row.Name()] = append(d.devices[row.Name()], n)
		case model.ObjectHostRecord, model.ObjectExternalHostRecord:
			d.records[row.Name()] = append(d.records[row.Name()], n)
		}
	}
	return d
}

func scoped(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// detectDeleteEdges orders deletes so contents go before their containers:
// this delete waits on the delete of every child of its target.
func (d *detector) detectDeleteEdges(n *Node) error {
	for _, other := range d.g.NodesOfOperation(model.OpDelete) {
		if other == n || other.Op.Row == nil {
			continue
		}
		if childOf(other.Op.Row, n.Op.Row) {
			if err := d.g.AddDependency(n.ID(), other.ID(), EdgePrerequisite); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *detector) detectForwardEdges(n *Node) error {
	if err := d.parentPathEdge(n); err != nil {
		return err
	}
	if err := d.pathDetectionEdges(n); err != nil {
		return err
	}
	if err := d.deferredEdges(n); err != nil {
		return err
	}
	return d.recordReferenceEdges(n)
}

// parentPathEdge links a node to the CREATE whose full identity equals this
// row's parent path.
func (d *detector) parentPathEdge(n *Node) error {
	row := n.Op.Row
	if row.Parent() == "" {
		return nil
	}
	var segs []string
	segs = append(segs, splitPathAttr(row.Config)...)
	segs = append(segs, splitPathAttr(row.ViewPath())...)
	segs = append(segs, splitPathAttr(row.Parent())...)
	parent, ok := d.byIdentity[strings.Join(segs, "/")]
	if !ok || parent == n {
		return nil
	}
	return d.g.AddDependency(n.ID(), parent.ID(), EdgeParentChild)
}

func (d *detector) pathDetectionEdges(n *Node) error {
	row := n.Op.Row
	switch n.Op.ObjectType {
	case model.ObjectIP4Network:
		return d.containerCIDREdges(n, model.ObjectIP4Block, row.Parent())
	case model.ObjectIP6Network:
		return d.containerCIDREdges(n, model.ObjectIP6Block, row.Parent())
	case model.ObjectIP4Address, model.ObjectIP6Address:
		containerType := model.ObjectIP4Network
		if n.Op.ObjectType == model.ObjectIP6Address {
			containerType = model.ObjectIP6Network
		}
		if err := d.containerCIDREdges(n, containerType, row.Parent()); err != nil {
			return err
		}
		return d.addressCoverageEdges(n)
	case model.ObjectIPv4DHCPRange:
		return d.containerCIDREdges(n, model.ObjectIP4Network, row.Parent())
	case model.ObjectIPv6DHCPRange:
		return d.containerCIDREdges(n, model.ObjectIP6Network, row.Parent())

	case model.ObjectHostRecord:
		if err := d.zoneEdge(n); err != nil {
			return err
		}
		return d.addressCoverageEdges(n)
	case model.ObjectAliasRecord, model.ObjectMXRecord, model.ObjectTXTRecord,
		model.ObjectSRVRecord, model.ObjectExternalHostRecord:
		return d.zoneEdge(n)

	case model.ObjectDeviceSubtype:
		return d.namedEdge(n, model.ObjectDeviceType, row.DeviceType())
	case model.ObjectDevice:
		if err := d.namedEdge(n, model.ObjectDeviceType, row.DeviceType()); err != nil {
			return err
		}
		return d.namedEdge(n, model.ObjectDeviceSubtype, row.DeviceSubtype())
	case model.ObjectDeviceAddress:
		name := row.DeviceName()
		if name == "" {
			name = row.Name()
		}
		return d.deviceEdge(n, row.Config, name)

	case model.ObjectLocation:
		if code := row.ParentCode(); code != "" {
			for _, parent := range d.locations[code] {
				if parent == n {
					continue
				}
				if err := d.g.AddDependency(n.ID(), parent.ID(), EdgeParentChild); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// containerCIDREdges waits on every CREATE of containerType in the same
// config whose CIDR appears segment-exact in the given parent path.
func (d *detector) containerCIDREdges(n *Node, containerType model.ObjectType, parentPath string) error {
	if parentPath == "" {
		return nil
	}
	row := n.Op.Row
	for _, container := range d.g.CreatesOfType(containerType) {
		if container == n || container.Op.Row == nil {
			continue
		}
		crow := container.Op.Row
		if crow.Config != row.Config || crow.CIDR() == "" {
			continue
		}
		if CIDRInPath(crow.CIDR(), parentPath) {
			if err := d.g.AddDependency(n.ID(), container.ID(), EdgeParentChild); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *detector) zoneEdge(n *Node) error {
	row := n.Op.Row
	zoneName := row.ZoneName()
	if zoneName == "" {
		return nil
	}
	zones := d.zones[scoped(row.Config, row.ViewPath(), zoneName)]
	if len(zones) == 0 && row.ViewPath() != "" {
		zones = d.zones[scoped(row.Config, "", zoneName)]
	}
	for _, zone := range zones {
		if zone == n {
			continue
		}
		if err := d.g.AddDependency(n.ID(), zone.ID(), EdgeParentChild); err != nil {
			return err
		}
	}
	return nil
}

// addressCoverageEdges waits on every network whose prefix contains at least
// one of the host record's addresses.
func (d *detector) addressCoverageEdges(n *Node) error {
	row := n.Op.Row
	addrs := row.Addresses()
	if len(addrs) == 0 {
		return nil
	}
	for _, entry := range d.prefixes {
		if entry.node == n || entry.config != row.Config {
			continue
		}
		for _, raw := range addrs {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				debug.Logf("graph: row %s has unparsable address %q\n", row.RowID, raw)
				continue
			}
			if entry.prefix.Contains(addr) {
				if err := d.g.AddDependency(n.ID(), entry.node.ID(), EdgePrerequisite); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

func (d *detector) namedEdge(n *Node, t model.ObjectType, name string) error {
	if name == "" {
		return nil
	}
	for _, target := range d.byName[scoped("", string(t), name)] {
		if target == n {
			continue
		}
		if err := d.g.AddDependency(n.ID(), target.ID(), EdgePrerequisite); err != nil {
			return err
		}
	}
	return nil
}

func (d *detector) deviceEdge(n *Node, config, name string) error {
	if name == "" {
		return nil
	}
	targets := d.devices[scoped(config, "", name)]
	if len(targets) == 0 {
		targets = d.devices[name]
	}
	for _, target := range targets {
		if target == n {
			continue
		}
		if err := d.g.AddDependency(n.ID(), target.ID(), EdgeParentChild); err != nil {
			return err
		}
	}
	return nil
}

// deferredEdges waits on the CREATE that will produce each deferred
// reference's id.
func (d *detector) deferredEdges(n *Node) error {
	row := n.Op.Row
	for _, ref := range n.Op.Deferred {
		var targets []*Node
		switch ref.Kind {
		case model.DeferredBlockCIDR:
			targets = append(d.byCIDR[scoped(row.Config, string(model.ObjectIP4Block), ref.Key)],
				d.byCIDR[scoped(row.Config, string(model.ObjectIP6Block), ref.Key)]...)
		case model.DeferredNetworkCIDR:
			targets = append(d.byCIDR[scoped(row.Config, string(model.ObjectIP4Network), ref.Key)],
				d.byCIDR[scoped(row.Config, string(model.ObjectIP6Network), ref.Key)]...)
		case model.DeferredZoneName:
			targets = d.zones[scoped(row.Config, "", ref.Key)]
		case model.DeferredLocationCode:
			targets = d.locations[ref.Key]
		case model.DeferredDeviceTypeName:
			targets = d.byName[scoped("", string(model.ObjectDeviceType), ref.Key)]
		case model.DeferredDeviceSubtypeName:
			targets = d.byName[scoped("", string(model.ObjectDeviceSubtype), ref.Key)]
		case model.DeferredDevice:
			cfg := ref.Config
			if cfg == "" {
				cfg = row.Config
			}
			targets = d.devices[scoped(cfg, "", ref.Key)]
			if len(targets) == 0 {
				targets = d.devices[ref.Key]
			}
		}
		for _, target := range targets {
			if target == n {
				continue
			}
			if err := d.g.AddDependency(n.ID(), target.ID(), EdgePrerequisite); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordReferenceEdges links DNS records that point at other records by name.
func (d *detector) recordReferenceEdges(n *Node) error {
	target := n.Op.Row.LinkedRecord()
	if target == "" {
		return nil
	}
	for _, rec := range d.records[target] {
		if rec == n {
			continue
		}
		if err := d.g.AddDependency(n.ID(), rec.ID(), EdgeReference); err != nil {
			return err
		}
	}
	return nil
}
