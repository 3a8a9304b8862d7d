package lld

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostNameRules(t *testing.T) {
	l := DefaultLimits()
	assert.NoError(t, l.checkHostName("srv-1.example_com 2"))
	assert.Error(t, l.checkHostName(""))
	assert.Error(t, l.checkHostName(" srv"))
	assert.Error(t, l.checkHostName("srv/1"))
	assert.Error(t, l.checkHostName("сервер"))
	assert.Error(t, l.checkHostName(strings.Repeat("a", 129)))
	assert.NoError(t, l.checkHostName(strings.Repeat("a", 128)))
}

func TestVisibleNameCountsRunes(t *testing.T) {
	l := DefaultLimits()
	assert.NoError(t, l.checkVisibleName(strings.Repeat("й", 128)))
	assert.Error(t, l.checkVisibleName(strings.Repeat("й", 129)))
	assert.Error(t, l.checkVisibleName(string([]byte{0xff, 0xfe})))
}

func TestGroupNameRules(t *testing.T) {
	l := DefaultLimits()
	assert.NoError(t, l.checkGroupName("Servers/prod/web"))
	assert.Error(t, l.checkGroupName("/Servers"))
	assert.Error(t, l.checkGroupName("Servers/"))
	assert.Error(t, l.checkGroupName("Servers//prod"))
	assert.Error(t, l.checkGroupName("   "))
}

func TestWithLimitsFillsDefaults(t *testing.T) {
	e := NewEngine(nil, WithLimits(Limits{HostName: 16}))
	assert.Equal(t, 16, e.limits.HostName)
	assert.Equal(t, 255, e.limits.GroupName)
}
