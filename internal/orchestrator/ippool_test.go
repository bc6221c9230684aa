package orchestrator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPPool_AssignReusesGroupOctet(t *testing.T) {
	p := newIPPool()

	ip1, err := p.Assign("frontend")
	require.NoError(t, err)
	ip2, err := p.Assign("frontend")
	require.NoError(t, err)

	assert.Equal(t, ip1, ip2)
	assert.Equal(t, 2, p.refCounts["frontend"])
}

func TestIPPool_AssignDistinctGroupsGetDistinctOctets(t *testing.T) {
	p := newIPPool()

	ip1, err := p.Assign("frontend")
	require.NoError(t, err)
	ip2, err := p.Assign("backend")
	require.NoError(t, err)

	assert.NotEqual(t, ip1, ip2)
}

func TestIPPool_ReleaseFreesOctetOnLastReference(t *testing.T) {
	p := newIPPool()

	ip1, err := p.Assign("frontend")
	require.NoError(t, err)
	_, err = p.Assign("frontend")
	require.NoError(t, err)

	p.Release("frontend")
	assert.Equal(t, 1, p.refCounts["frontend"])
	_, stillAssigned := p.assigned["frontend"]
	assert.True(t, stillAssigned)

	p.Release("frontend")
	_, stillAssigned = p.assigned["frontend"]
	assert.False(t, stillAssigned)

	ip2, err := p.Assign("frontend")
	require.NoError(t, err)
	assert.Equal(t, ip1, ip2)
}

func TestIPPool_ExhaustedRangeLeavesNoPhantomReference(t *testing.T) {
	p := newIPPool()
	for octet := ipPoolFirstOctet; octet <= ipPoolLastOctet; octet++ {
		_, err := p.Assign(groupName(octet))
		require.NoError(t, err)
	}

	_, err := p.Assign("one-too-many")
	require.Error(t, err)

	// A failed Assign for a brand-new group must not leave a refCounts
	// entry Release can never clear.
	_, tracked := p.refCounts["one-too-many"]
	assert.False(t, tracked)
}

func groupName(octet int) string {
	return fmt.Sprintf("group-%d", octet)
}
