package orchestrator

import (
	"fmt"
	"net"

	"github.com/google/btree"

	"github.com/nimbuscore/sandboxcore/pkg/errs"
)

const (
	ipPoolFirstOctet = 2
	ipPoolLastOctet  = 254
	btreeDegree      = 32
)

// ipPool assigns 127.0.0.x addresses to sandbox groups, per spec §4.J:
// stable for the life of the orchestrator process, returned to the pool
// once no declared sandbox references the group any longer.
//
// used is an ordered set of in-use last octets; the btree gives us an
// ordered scan for the smallest-free-octet search without hand-rolling
// one, mirroring the other example repos' use of google/btree as a
// general-purpose ordered set.
type ipPool struct {
	used      *btree.BTreeG[int]
	assigned  map[string]int // group name -> last octet
	refCounts map[string]int // group name -> number of sandboxes referencing it
}

func newIPPool() *ipPool {
	return &ipPool{
		used:      btree.NewG(btreeDegree, func(a, b int) bool { return a < b }),
		assigned:  make(map[string]int),
		refCounts: make(map[string]int),
	}
}

// Assign returns the group's existing IP if already assigned, or finds
// and reserves the smallest free last octet.
func (p *ipPool) Assign(group string) (net.IP, error) {
	if octet, ok := p.assigned[group]; ok {
		p.refCounts[group]++
		return net.IPv4(127, 0, 0, byte(octet)), nil
	}

	for octet := ipPoolFirstOctet; octet <= ipPoolLastOctet; octet++ {
		if _, found := p.used.Get(octet); found {
			continue
		}
		p.used.ReplaceOrInsert(octet)
		p.assigned[group] = octet
		p.refCounts[group]++
		return net.IPv4(127, 0, 0, byte(octet)), nil
	}
	// No free octet: leave refCounts untouched so a failed Assign for a
	// brand-new group doesn't leak a phantom reference Release can never
	// clear.
	return nil, errs.New(errs.CodeNoGroupIPAvailable, fmt.Sprintf("no free group ip for %q", group)).
		WithComponent("orchestrator", "assign_group_ip")
}

// Reattach restores a group's octet from a persisted state file,
// incrementing its reference count as Assign would. Used when an
// orchestrator process starts up and reloads the state a prior process
// wrote, so a restarted orchestrator keeps assigning the same group the
// same address instead of handing out a different one on next apply.
func (p *ipPool) Reattach(group string, octet int) {
	p.refCounts[group]++
	if _, already := p.assigned[group]; already {
		return
	}
	p.assigned[group] = octet
	p.used.ReplaceOrInsert(octet)
}

// Release drops one sandbox's reference to group; once the last
// reference is gone the octet returns to the free pool.
func (p *ipPool) Release(group string) {
	if p.refCounts[group] == 0 {
		return
	}
	p.refCounts[group]--
	if p.refCounts[group] > 0 {
		return
	}
	delete(p.refCounts, group)
	if octet, ok := p.assigned[group]; ok {
		p.used.Delete(octet)
		delete(p.assigned, group)
	}
}
