package lld

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebalanceMainOnePerType(t *testing.T) {
	a1 := &Interface{ID: 1, Type: InterfaceAgent, matched: true}
	a2 := &Interface{ID: 2, Type: InterfaceAgent, Main: true}
	a3 := &Interface{ID: 3, Type: InterfaceAgent, Main: true, matched: true}
	s1 := &Interface{Type: InterfaceSNMP}
	gone := &Interface{ID: 4, Type: InterfaceSNMP, Main: true, Remove: true}
	h := &Host{Interfaces: []*Interface{a1, a2, a3, s1, gone}}

	rebalanceMain(h)

	assert.True(t, a3.Main)
	assert.False(t, a1.Main)
	assert.False(t, a2.Main)
	assert.True(t, a2.Dirty.Has(FieldIfaceMain))
	assert.True(t, s1.Main)
	assert.True(t, gone.Main)
}

func TestInterfaceTypeNames(t *testing.T) {
	assert.Equal(t, "Agent", InterfaceAgent.String())
	assert.Equal(t, "SNMP", InterfaceSNMP.String())
	assert.Equal(t, "IPMI", InterfaceIPMI.String())
	assert.Equal(t, "JMX", InterfaceJMX.String())
}
