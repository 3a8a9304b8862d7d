package lld_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lldsync/lldsync/internal/database"
	"github.com/lldsync/lldsync/internal/lld"
	"github.com/lldsync/lldsync/internal/model"
	"github.com/lldsync/lldsync/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	ruleID      = 1
	parentID    = 10
	prototypeID = 100
	templateID  = 500
	fixedGroup  = 50
	parentGroup = 60
)

type fixture struct {
	db     *gorm.DB
	now    time.Time
	engine *lld.Engine
}

func baseSeed() *repository.SeedSet {
	plain := func(id uint64, host string, flags, status int) model.Host {
		return model.Host{
			HostID: id, Host: host, Name: host, Flags: flags, Status: status,
			InventoryMode: -1, IPMIAuthType: -1, IPMIPrivilege: 2, TLSConnect: 1, TLSAccept: 1,
		}
	}
	proto := plain(prototypeID, "{#NAME}", model.HostFlagPrototype, model.HostStatusMonitored)
	proto.Name = "Server {#NAME}"
	proto.CustomInterfaces = 1

	return &repository.SeedSet{
		Hosts: []model.Host{
			plain(parentID, "lld-parent", model.HostFlagPlain, model.HostStatusMonitored),
			plain(templateID, "Template OS", model.HostFlagPlain, model.HostStatusTemplate),
			proto,
		},
		Rules:      []model.LLDRule{{RuleID: ruleID, HostID: parentID, Name: "Servers", Lifetime: 3600}},
		Prototypes: []model.HostPrototype{{HostID: prototypeID, RuleID: ruleID}},
		Groups: []model.HostGroup{
			{GroupID: fixedGroup, Name: "Discovered hosts"},
			{GroupID: parentGroup, Name: "Servers"},
		},
		GroupPrototypes: []model.GroupPrototype{
			{GroupPrototypeID: 2000, HostID: prototypeID, GroupID: fixedGroup},
			{GroupPrototypeID: 2001, HostID: prototypeID, Name: "Servers/{#ENV}"},
		},
		Interfaces: []model.Interface{
			{InterfaceID: 1000, HostID: prototypeID, Type: model.InterfaceTypeAgent, Main: 1, UseIP: 1, IP: "{#IP}", Port: "10050"},
		},
		Macros: []model.HostMacro{
			{HostMacroID: 1, HostID: parentID, Macro: "{$SNMP_COMMUNITY}", Value: "public"},
			{HostMacroID: 2, HostID: prototypeID, Macro: "{$ENV}", Value: "{#ENV}"},
			{HostMacroID: 3, HostID: prototypeID, Macro: "{$PASS}", Value: "s3cr3t", Type: int(lld.MacroSecret)},
		},
		Tags:      []model.HostTag{{HostTagID: 1, HostID: prototypeID, Tag: "role", Value: "{#ROLE}"}},
		Templates: []model.HostTemplate{{HostTemplateID: 1, HostID: prototypeID, TemplateID: templateID}},
		Rights:    []model.Right{{RightID: 1, GroupID: 7, Permission: 3, HstGrpID: parentGroup}},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	require.NoError(t, repository.Seed(context.Background(), db, baseSeed()))

	f := &fixture{db: db, now: time.Unix(1_700_000_000, 0)}
	f.engine = lld.NewEngine(repository.NewLLDRepo(db), lld.WithClock(func() time.Time { return f.now }))
	return f
}

func row(name, ip string) *lld.DiscoveryRow {
	return &lld.DiscoveryRow{Macros: map[string]string{
		"{#NAME}": name,
		"{#IP}":   ip,
		"{#ENV}":  "prod",
		"{#ROLE}": "web",
	}}
}

func (f *fixture) run(t *testing.T, rows ...*lld.DiscoveryRow) *lld.Result {
	t.Helper()
	res := f.engine.Run(context.Background(), ruleID, rows)
	require.NotNil(t, res)
	return res
}

func (f *fixture) discovered(t *testing.T) map[string]model.Host {
	t.Helper()
	var hosts []model.Host
	require.NoError(t, f.db.Where("flags = ?", model.HostFlagDiscovered).Find(&hosts).Error)
	out := make(map[string]model.Host, len(hosts))
	for _, h := range hosts {
		out[h.Host] = h
	}
	return out
}

func (f *fixture) hostDiscovery(t *testing.T, hostID uint64) model.HostDiscovery {
	t.Helper()
	var hd model.HostDiscovery
	require.NoError(t, f.db.Where("hostid = ?", hostID).First(&hd).Error)
	return hd
}

func (f *fixture) count(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(m).Where(query, args...).Count(&n).Error)
	return n
}

func TestRunCreatesHosts(t *testing.T) {
	f := newFixture(t)

	res := f.run(t, row("srv1", "10.0.0.1"), row("srv2", "10.0.0.2"))
	assert.Equal(t, lld.StatusCompleted, res.Status)
	assert.Empty(t, res.Messages)
	assert.Equal(t, "completed", res.Summary())
	assert.Equal(t, 2, res.Stats.HostsCreated)
	assert.Equal(t, 1, res.Stats.GroupsCreated)

	hosts := f.discovered(t)
	require.Len(t, hosts, 2)
	srv1 := hosts["srv1"]
	assert.Equal(t, "Server srv1", srv1.Name)
	assert.Equal(t, 1, srv1.CustomInterfaces)

	var iface model.Interface
	require.NoError(t, f.db.Where("hostid = ?", srv1.HostID).First(&iface).Error)
	assert.Equal(t, "10.0.0.1", iface.IP)
	assert.Equal(t, 1, iface.Main)
	var link model.InterfaceDiscovery
	require.NoError(t, f.db.Where("interfaceid = ?", iface.InterfaceID).First(&link).Error)
	assert.Equal(t, uint64(1000), link.ParentInterfaceID)

	var macros []model.HostMacro
	require.NoError(t, f.db.Where("hostid = ?", srv1.HostID).Order("macro").Find(&macros).Error)
	require.Len(t, macros, 3)
	assert.Equal(t, "{$ENV}", macros[0].Macro)
	assert.Equal(t, "prod", macros[0].Value)
	assert.Equal(t, "s3cr3t", macros[1].Value)
	assert.Equal(t, "public", macros[2].Value)

	var tags []model.HostTag
	require.NoError(t, f.db.Where("hostid = ?", srv1.HostID).Find(&tags).Error)
	require.Len(t, tags, 1)
	assert.Equal(t, "web", tags[0].Value)

	assert.EqualValues(t, 1, f.count(t, &model.HostTemplate{}, "hostid = ? AND templateid = ?", srv1.HostID, templateID))
	assert.EqualValues(t, 1, f.count(t, &model.HostGroupLink{}, "hostid = ? AND groupid = ?", srv1.HostID, fixedGroup))

	var group model.HostGroup
	require.NoError(t, f.db.Where("name = ?", "Servers/prod").First(&group).Error)
	assert.Equal(t, model.GroupFlagDiscovered, group.Flags)
	assert.EqualValues(t, 2, f.count(t, &model.HostGroupLink{}, "groupid = ?", group.GroupID))

	var rights []model.Right
	require.NoError(t, f.db.Where("id = ?", group.GroupID).Find(&rights).Error)
	require.Len(t, rights, 1)
	assert.Equal(t, uint64(7), rights[0].GroupID)
	assert.Equal(t, 3, rights[0].Permission)

	hd := f.hostDiscovery(t, srv1.HostID)
	assert.Equal(t, uint64(prototypeID), hd.ParentHostID)
	assert.Equal(t, "{#NAME}", hd.Host)
	assert.Equal(t, f.now.Unix(), hd.LastCheck)

	var logs []model.AuditLog
	require.NoError(t, f.db.Where("recordsetid = ?", res.RunID).Find(&logs).Error)
	assert.Len(t, logs, 3)
	for _, l := range logs {
		assert.NotContains(t, l.Details, "s3cr3t")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	rows := []*lld.DiscoveryRow{row("srv1", "10.0.0.1"), row("srv2", "10.0.0.2")}

	first := f.run(t, rows...)
	require.Equal(t, lld.StatusCompleted, first.Status)

	f.now = f.now.Add(time.Minute)
	second := f.run(t, rows...)
	assert.Equal(t, lld.StatusCompleted, second.Status)
	assert.Empty(t, second.Messages)
	assert.Empty(t, second.Audit)
	assert.Zero(t, second.Stats.HostsCreated+second.Stats.HostsUpdated+second.Stats.GroupsCreated+second.Stats.GroupsUpdated)
	assert.EqualValues(t, 0, f.count(t, &model.AuditLog{}, "recordsetid = ?", second.RunID))

	for _, h := range f.discovered(t) {
		assert.Equal(t, f.now.Unix(), f.hostDiscovery(t, h.HostID).LastCheck)
	}
}

func TestDuplicateNamesInBatch(t *testing.T) {
	f := newFixture(t)

	res := f.run(t, row("srv1", "10.0.0.1"), row("srv1", "10.0.0.2"), row("srv2", "10.0.0.3"))
	assert.Equal(t, lld.StatusCompleted, res.Status)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, `Cannot create host: host with the same name "srv1" already exists.`, res.Messages[0])
	assert.Equal(t, "completed with 1 warnings", res.Summary())

	hosts := f.discovered(t)
	assert.Len(t, hosts, 1)
	assert.Contains(t, hosts, "srv2")
	assert.Equal(t, 2, res.Stats.HostsRejected)
}

func TestNameTakenInStorage(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&model.Host{HostID: 11, Host: "srv3", Name: "srv3", InventoryMode: -1}).Error)

	res := f.run(t, row("srv3", "10.0.0.3"), row("srv4", "10.0.0.4"))
	require.Len(t, res.Messages, 1)
	assert.Equal(t, `Cannot create host: host with the same name "srv3" already exists.`, res.Messages[0])

	hosts := f.discovered(t)
	assert.Len(t, hosts, 1)
	assert.Contains(t, hosts, "srv4")
}

func TestVisibleNameConflict(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&model.Host{HostID: 11, Host: "legacy", Name: "Server srv5", InventoryMode: -1}).Error)

	res := f.run(t, row("srv5", "10.0.0.5"))
	require.Len(t, res.Messages, 1)
	assert.Equal(t, `Cannot create host: host with the same visible name "Server srv5" already exists.`, res.Messages[0])
	assert.Empty(t, f.discovered(t))
}

func TestInvalidHostName(t *testing.T) {
	f := newFixture(t)

	res := f.run(t, row("bad/name", "10.0.0.1"), row("good", "10.0.0.2"))
	require.Len(t, res.Messages, 1)
	assert.True(t, strings.HasPrefix(res.Messages[0], `Cannot create host: invalid host name "bad/name"`), res.Messages[0])
	assert.Len(t, f.discovered(t), 1)
}

func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	t0 := f.now

	res := f.run(t, row("A", "10.0.0.1"), row("B", "10.0.0.2"))
	require.Equal(t, lld.StatusCompleted, res.Status)
	hosts := f.discovered(t)
	a, b := hosts["A"], hosts["B"]
	assert.EqualValues(t, 1, f.count(t, &model.HostGroup{}, "name = ?", "Servers/prod"))

	f.now = t0.Add(time.Second)
	res = f.run(t, row("A", "10.0.0.1"))
	require.Equal(t, lld.StatusCompleted, res.Status)
	assert.Equal(t, t0.Unix()+3600, f.hostDiscovery(t, b.HostID).TSDelete)
	assert.Equal(t, t0.Unix(), f.hostDiscovery(t, b.HostID).LastCheck)
	assert.Zero(t, f.hostDiscovery(t, a.HostID).TSDelete)
	assert.Equal(t, f.now.Unix(), f.hostDiscovery(t, a.HostID).LastCheck)

	// 期限前一秒仍保留
	f.now = t0.Add(3599 * time.Second)
	res = f.run(t, row("A", "10.0.0.1"))
	require.Equal(t, lld.StatusCompleted, res.Status)
	assert.Contains(t, f.discovered(t), "B")

	f.now = t0.Add(3601 * time.Second)
	res = f.run(t, row("A", "10.0.0.1"))
	require.Equal(t, lld.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.Stats.HostsDeleted)

	hosts = f.discovered(t)
	assert.Len(t, hosts, 1)
	assert.Contains(t, hosts, "A")
	assert.EqualValues(t, 0, f.count(t, &model.Interface{}, "hostid = ?", b.HostID))
	assert.EqualValues(t, 0, f.count(t, &model.HostMacro{}, "hostid = ?", b.HostID))
	assert.EqualValues(t, 0, f.count(t, &model.HostTag{}, "hostid = ?", b.HostID))
	assert.EqualValues(t, 0, f.count(t, &model.HostGroupLink{}, "hostid = ?", b.HostID))
	assert.EqualValues(t, 0, f.count(t, &model.HostDiscovery{}, "hostid = ?", b.HostID))

	var deleted model.AuditLog
	require.NoError(t, f.db.Where("recordsetid = ? AND resourceid = ?", res.RunID, b.HostID).First(&deleted).Error)
	assert.Equal(t, model.AuditActionDelete, deleted.Action)
}

func TestRediscoveryClearsDeadline(t *testing.T) {
	f := newFixture(t)
	t0 := f.now

	f.run(t, row("A", "10.0.0.1"), row("B", "10.0.0.2"))
	b := f.discovered(t)["B"]

	f.now = t0.Add(10 * time.Second)
	f.run(t, row("A", "10.0.0.1"))
	require.NotZero(t, f.hostDiscovery(t, b.HostID).TSDelete)

	f.now = t0.Add(3599 * time.Second)
	f.run(t, row("A", "10.0.0.1"), row("B", "10.0.0.2"))
	hd := f.hostDiscovery(t, b.HostID)
	assert.Zero(t, hd.TSDelete)
	assert.Equal(t, f.now.Unix(), hd.LastCheck)
}

func TestZeroLifetimeDeletesImmediately(t *testing.T) {
	f := newFixture(t)
	f.run(t, row("A", "10.0.0.1"), row("B", "10.0.0.2"))
	require.NoError(t, f.db.Model(&model.LLDRule{}).Where("ruleid = ?", ruleID).UpdateColumn("lifetime", 0).Error)

	res := f.run(t, row("A", "10.0.0.1"))
	assert.Equal(t, 1, res.Stats.HostsDeleted)
	assert.NotContains(t, f.discovered(t), "B")
}

func TestUndiscoveredGroupIsDeleted(t *testing.T) {
	f := newFixture(t)
	f.run(t, row("A", "10.0.0.1"))
	require.NoError(t, f.db.Model(&model.LLDRule{}).Where("ruleid = ?", ruleID).UpdateColumn("lifetime", 0).Error)

	stage := row("A", "10.0.0.1")
	stage.Macros["{#ENV}"] = "stage"
	res := f.run(t, stage)
	require.Equal(t, lld.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.Stats.GroupsCreated)
	assert.Equal(t, 1, res.Stats.GroupsDeleted)

	assert.EqualValues(t, 0, f.count(t, &model.HostGroup{}, "name = ?", "Servers/prod"))
	assert.EqualValues(t, 1, f.count(t, &model.HostGroup{}, "name = ?", "Servers/stage"))
}

func TestSecretMacroNeverAudited(t *testing.T) {
	f := newFixture(t)
	f.run(t, row("srv1", "10.0.0.1"))

	// 密文变为文本且值变化：新旧值都不能出现在审计中
	require.NoError(t, f.db.Model(&model.HostMacro{}).Where("hostmacroid = ?", 3).
		UpdateColumns(map[string]interface{}{"value": "n3wpass", "type": int(lld.MacroText)}).Error)
	f.now = f.now.Add(time.Minute)
	res := f.run(t, row("srv1", "10.0.0.1"))
	require.Equal(t, lld.StatusCompleted, res.Status)

	var found bool
	for _, e := range res.Audit {
		if e.Kind == lld.KindMacro && strings.HasSuffix(e.Path, ".value") {
			found = true
			assert.Equal(t, lld.AuditMask, e.Old)
			assert.Equal(t, lld.AuditMask, e.New)
		}
	}
	assert.True(t, found)

	var logs []model.AuditLog
	require.NoError(t, f.db.Find(&logs).Error)
	for _, l := range logs {
		assert.NotContains(t, l.Details, "s3cr3t")
		assert.NotContains(t, l.Details, "n3wpass")
	}
}

func TestInterfaceInUseIsKept(t *testing.T) {
	f := newFixture(t)
	f.run(t, row("srv1", "10.0.0.1"), row("srv2", "10.0.0.2"))
	hosts := f.discovered(t)

	var iface model.Interface
	require.NoError(t, f.db.Where("hostid = ?", hosts["srv1"].HostID).First(&iface).Error)
	require.NoError(t, f.db.Create(&model.Item{ItemID: 1, HostID: hosts["srv1"].HostID, InterfaceID: iface.InterfaceID, Name: "cpu"}).Error)

	require.NoError(t, f.db.Model(&model.Interface{}).Where("interfaceid = ?", 1000).
		UpdateColumns(map[string]interface{}{"type": model.InterfaceTypeSNMP, "port": "161"}).Error)
	require.NoError(t, f.db.Create(&model.InterfaceSNMP{InterfaceID: 1000, Version: 2, Bulk: 1, Community: "{$SNMP_COMMUNITY}"}).Error)

	res := f.run(t, row("srv1", "10.0.0.1"), row("srv2", "10.0.0.2"))
	require.Equal(t, lld.StatusCompleted, res.Status)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, `Cannot update host "srv1": cannot change interface type from Agent to SNMP, interface is used by items.`, res.Messages[0])

	var kept model.Interface
	require.NoError(t, f.db.Where("interfaceid = ?", iface.InterfaceID).First(&kept).Error)
	assert.Equal(t, model.InterfaceTypeAgent, kept.Type)
	assert.Equal(t, "161", kept.Port)
	assert.EqualValues(t, 0, f.count(t, &model.InterfaceSNMP{}, "interfaceid = ?", iface.InterfaceID))

	var changed model.Interface
	require.NoError(t, f.db.Where("hostid = ?", hosts["srv2"].HostID).First(&changed).Error)
	assert.Equal(t, model.InterfaceTypeSNMP, changed.Type)
	var snmp model.InterfaceSNMP
	require.NoError(t, f.db.Where("interfaceid = ?", changed.InterfaceID).First(&snmp).Error)
	assert.Equal(t, "{$SNMP_COMMUNITY}", snmp.Community)
}

func TestRenameFollowsPrototype(t *testing.T) {
	f := newFixture(t)
	f.run(t, row("srv1", "10.0.0.1"))
	before := f.discovered(t)["srv1"]

	require.NoError(t, f.db.Model(&model.Host{}).Where("hostid = ?", prototypeID).
		UpdateColumn("host", "{#NAME}-new").Error)
	res := f.run(t, row("srv1", "10.0.0.1"))
	require.Equal(t, lld.StatusCompleted, res.Status)
	assert.Empty(t, res.Messages)

	after := f.discovered(t)
	require.Len(t, after, 1)
	renamed, ok := after["srv1-new"]
	require.True(t, ok)
	assert.Equal(t, before.HostID, renamed.HostID)
	assert.Equal(t, "{#NAME}-new", f.hostDiscovery(t, renamed.HostID).Host)
}

func TestMissingTemplateIsReported(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&model.HostTemplate{HostTemplateID: 2, HostID: prototypeID, TemplateID: 999}).Error)

	res := f.run(t, row("srv1", "10.0.0.1"))
	require.Equal(t, lld.StatusCompleted, res.Status)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, `Cannot create host "srv1": cannot link template with ID 999: template does not exist.`, res.Messages[0])

	srv1 := f.discovered(t)["srv1"]
	assert.EqualValues(t, 1, f.count(t, &model.HostTemplate{}, "hostid = ?", srv1.HostID))
}

func TestOverridesApply(t *testing.T) {
	f := newFixture(t)
	disabled := lld.HostStatusNotMonitored
	skip := false

	r1 := row("srv1", "10.0.0.1")
	r1.Overrides.Status = &disabled
	r1.Overrides.Tags = []lld.TagTemplate{{Tag: "env", Value: "{#ENV}"}}
	r2 := row("srv2", "10.0.0.2")
	r2.Overrides.Discover = &skip

	res := f.run(t, r1, r2)
	require.Equal(t, lld.StatusCompleted, res.Status)

	hosts := f.discovered(t)
	require.Len(t, hosts, 1)
	srv1 := hosts["srv1"]
	assert.Equal(t, int(lld.HostStatusNotMonitored), srv1.Status)
	assert.EqualValues(t, 2, f.count(t, &model.HostTag{}, "hostid = ?", srv1.HostID))
	assert.EqualValues(t, 1, f.count(t, &model.HostTag{}, "hostid = ? AND tag = ? AND value = ?", srv1.HostID, "env", "prod"))
}

func TestUnknownRuleAborts(t *testing.T) {
	f := newFixture(t)

	res := f.engine.Run(context.Background(), 99, []*lld.DiscoveryRow{row("srv1", "10.0.0.1")})
	assert.Equal(t, lld.StatusAborted, res.Status)
	assert.Equal(t, "aborted", res.Summary())
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "Cannot process discovery rule: discovery rule not found.", res.Messages[0])
	assert.ErrorIs(t, res.Err, lld.ErrRuleNotFound)
	assert.Empty(t, f.discovered(t))
}

func TestSecretTypeFlipKeepsValueMasked(t *testing.T) {
	f := newFixture(t)
	f.run(t, row("srv1", "10.0.0.1"))
	hostID := f.discovered(t)["srv1"].HostID

	for _, tc := range []struct {
		name     string
		from, to lld.MacroType
	}{
		{"secret to text", lld.MacroSecret, lld.MacroText},
		{"text to secret", lld.MacroText, lld.MacroSecret},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, f.db.Model(&model.HostMacro{}).Where("hostmacroid = ?", 3).
				UpdateColumn("type", int(tc.to)).Error)
			f.now = f.now.Add(time.Minute)
			res := f.run(t, row("srv1", "10.0.0.1"))
			require.Equal(t, lld.StatusCompleted, res.Status)
			assert.Empty(t, res.Messages)

			var typeChanges int
			for _, e := range res.Audit {
				assert.NotContains(t, e.Old, "s3cr3t", e.Path)
				assert.NotContains(t, e.New, "s3cr3t", e.Path)
				if e.Kind != lld.KindMacro {
					continue
				}
				assert.False(t, strings.HasSuffix(e.Path, ".value"), e.Path)
				if strings.HasSuffix(e.Path, ".type") {
					typeChanges++
					assert.Equal(t, model.AuditActionUpdate, e.Action)
					assert.Equal(t, fmt.Sprint(int(tc.from)), e.Old)
					assert.Equal(t, fmt.Sprint(int(tc.to)), e.New)
				}
			}
			assert.Equal(t, 1, typeChanges)

			var macro model.HostMacro
			require.NoError(t, f.db.Where("hostid = ? AND macro = ?", hostID, "{$PASS}").First(&macro).Error)
			assert.Equal(t, int(tc.to), macro.Type)
			assert.Equal(t, "s3cr3t", macro.Value)

			var logs []model.AuditLog
			require.NoError(t, f.db.Where("recordsetid = ?", res.RunID).Find(&logs).Error)
			require.NotEmpty(t, logs)
			for _, l := range logs {
				assert.NotContains(t, l.Details, "s3cr3t")
			}
		})
	}
}

func TestInterfaceRemovalBlockedByItems(t *testing.T) {
	f := newFixture(t)
	f.run(t, row("srv1", "10.0.0.1"))
	hostID := f.discovered(t)["srv1"].HostID

	var iface model.Interface
	require.NoError(t, f.db.Where("hostid = ?", hostID).First(&iface).Error)
	require.NoError(t, f.db.Create(&model.Item{ItemID: 1, HostID: hostID, InterfaceID: iface.InterfaceID, Name: "cpu"}).Error)
	require.NoError(t, f.db.Delete(&model.Interface{}, "interfaceid = ?", 1000).Error)

	f.now = f.now.Add(time.Minute)
	res := f.run(t, row("srv1", "10.0.0.1"))
	require.Equal(t, lld.StatusCompleted, res.Status)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, `Cannot update host "srv1": cannot remove Agent interface "10.0.0.1:10050", interface is used by items.`, res.Messages[0])

	var kept []model.Interface
	require.NoError(t, f.db.Where("hostid = ?", hostID).Find(&kept).Error)
	require.Len(t, kept, 1)
	assert.Equal(t, iface.InterfaceID, kept[0].InterfaceID)
	assert.Equal(t, 1, kept[0].Main)
}

// gatedStore 让并发的运行都完成校验后才进入写事务
type gatedStore struct {
	lld.Store
	gate sync.WaitGroup
}

func (s *gatedStore) InTx(ctx context.Context, fn func(tx lld.Tx) error) error {
	s.gate.Done()
	s.gate.Wait()
	return s.Store.InTx(ctx, fn)
}

func TestConcurrentRulesCannotShareHostName(t *testing.T) {
	const (
		otherRule   = 2
		otherParent = 11
		otherProto  = 101
	)
	db, err := database.OpenMemory()
	require.NoError(t, err)

	set := baseSeed()
	set.Hosts = append(set.Hosts,
		model.Host{HostID: otherParent, Host: "lld-parent-2", Name: "lld-parent-2", InventoryMode: -1},
		model.Host{HostID: otherProto, Host: "{#NAME}", Name: "{#NAME}", Flags: model.HostFlagPrototype, InventoryMode: -1},
	)
	set.Rules = append(set.Rules, model.LLDRule{RuleID: otherRule, HostID: otherParent, Name: "Other", Lifetime: 3600})
	set.Prototypes = append(set.Prototypes, model.HostPrototype{HostID: otherProto, RuleID: otherRule})
	set.GroupPrototypes = append(set.GroupPrototypes, model.GroupPrototype{GroupPrototypeID: 2002, HostID: otherProto, GroupID: fixedGroup})
	require.NoError(t, repository.Seed(context.Background(), db, set))

	store := &gatedStore{Store: repository.NewLLDRepo(db)}
	store.gate.Add(2)
	engine := lld.NewEngine(store)

	results := make([]*lld.Result, 2)
	var wg sync.WaitGroup
	for i, id := range []uint64{ruleID, otherRule} {
		wg.Add(1)
		go func(i int, id uint64) {
			defer wg.Done()
			results[i] = engine.Run(context.Background(), id, []*lld.DiscoveryRow{row("dup", "10.0.0.9")})
		}(i, id)
	}
	wg.Wait()

	var created, rejected int
	var messages []string
	for _, res := range results {
		require.Equal(t, lld.StatusCompleted, res.Status, res.Messages)
		created += res.Stats.HostsCreated
		rejected += res.Stats.HostsRejected
		messages = append(messages, res.Messages...)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, []string{`Cannot create host: host with the same name "dup" already exists.`}, messages)

	var n int64
	require.NoError(t, db.Model(&model.Host{}).Where("host = ? AND flags = ?", "dup", model.HostFlagDiscovered).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}
