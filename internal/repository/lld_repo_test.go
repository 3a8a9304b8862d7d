package repository

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lldsync/lldsync/internal/database"
	"github.com/lldsync/lldsync/internal/lld"
	"github.com/lldsync/lldsync/internal/model"
)

func openRepo(t *testing.T) (*gorm.DB, *LLDRepo) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)

	set := &SeedSet{
		Rules: []model.LLDRule{{RuleID: 1, HostID: 10, Name: "guests", Lifetime: 3600}},
		Hosts: []model.Host{
			{HostID: 10, Host: "esx-01", Name: "esx-01"},
			{HostID: 11, Host: "db-01", Name: "Database"},
			{HostID: 12, Host: "{#NAME}", Name: "{#NAME}", Flags: model.HostFlagPrototype},
			{HostID: 500, Host: "Template OS", Name: "Template OS", Status: model.HostStatusTemplate},
		},
		Groups:     []model.HostGroup{{GroupID: 50, Name: "Linux"}, {GroupID: 51, Name: "Linux/db"}},
		Interfaces: []model.Interface{{InterfaceID: 900, HostID: 10, Type: 1, Main: 1, UseIP: 1, IP: "10.0.0.1", Port: "10050"}},
		Items:      []model.Item{{ItemID: 7000, HostID: 10, InterfaceID: 900, Name: "cpu"}},
		Rights:     []model.Right{{RightID: 1, GroupID: 7, Permission: 3, HstGrpID: 50}},
	}
	require.NoError(t, Seed(context.Background(), db, set))
	return db, NewLLDRepo(db)
}

func TestReserveIDsIsContiguous(t *testing.T) {
	_, repo := openRepo(t)
	ctx := context.Background()

	var first, second uint64
	err := repo.InTx(ctx, func(tx lld.Tx) error {
		var err error
		if first, err = tx.ReserveIDs(ctx, "hosts", "hostid", 3); err != nil {
			return err
		}
		second, err = tx.ReserveIDs(ctx, "hosts", "hostid", 2)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(501), first)
	assert.Equal(t, uint64(504), second)

	err = repo.InTx(ctx, func(tx lld.Tx) error {
		_, err := tx.ReserveIDs(ctx, "hosts; drop", "hostid", 1)
		return err
	})
	assert.Error(t, err)
}

func TestLockRule(t *testing.T) {
	db, repo := openRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InTx(ctx, func(tx lld.Tx) error { return tx.LockRule(ctx, 1) }))
	var rule model.LLDRule
	require.NoError(t, db.First(&rule, "ruleid = ?", 1).Error)
	assert.Equal(t, int64(1), rule.Revision)

	err := repo.InTx(ctx, func(tx lld.Tx) error { return tx.LockRule(ctx, 99) })
	assert.ErrorIs(t, err, lld.ErrRuleNotFound)
}

func TestNamesInUse(t *testing.T) {
	_, repo := openRepo(t)
	ctx := context.Background()

	used, err := repo.HostNamesInUse(ctx, "host", []string{"db-01", "esx-01", "{#NAME}", "free"}, []uint64{10})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"db-01": true}, used)

	used, err = repo.HostNamesInUse(ctx, "name", []string{"Database"}, nil)
	require.NoError(t, err)
	assert.True(t, used["Database"])

	_, err = repo.HostNamesInUse(ctx, "hostid", []string{"x"}, nil)
	assert.Error(t, err)

	groups, err := repo.GroupNamesInUse(ctx, []string{"Linux", "Linux/db", "Windows"}, []uint64{51})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Linux": true}, groups)
}

func TestTemplatesAndInterfaceReferences(t *testing.T) {
	_, repo := openRepo(t)
	ctx := context.Background()

	templates, err := repo.ExistingTemplates(ctx, []uint64{500, 11, 999})
	require.NoError(t, err)
	assert.Equal(t, map[uint64]bool{500: true}, templates)

	inUse, err := repo.InterfacesInUse(ctx, []uint64{900, 901})
	require.NoError(t, err)
	assert.Equal(t, map[uint64]bool{900: true}, inUse)
}

func TestGroupsByNameAndRights(t *testing.T) {
	_, repo := openRepo(t)
	ctx := context.Background()

	err := repo.InTx(ctx, func(tx lld.Tx) error {
		ids, err := tx.GroupsByName(ctx, []string{"Linux", "Nope"})
		require.NoError(t, err)
		assert.Equal(t, map[string]uint64{"Linux": 50}, ids)

		rights, err := tx.Rights(ctx, []uint64{50, 51})
		require.NoError(t, err)
		require.Len(t, rights[50], 1)
		assert.Equal(t, 3, rights[50][0].Permission)
		assert.Empty(t, rights[51])
		return nil
	})
	require.NoError(t, err)
}

func TestFailedTxRollsBack(t *testing.T) {
	db, repo := openRepo(t)
	ctx := context.Background()

	err := repo.InTx(ctx, func(tx lld.Tx) error {
		if err := tx.LockRule(ctx, 1); err != nil {
			return err
		}
		if err := tx.Insert(ctx, &lld.InsertBatch{Groups: []model.HostGroup{{GroupID: 60, Name: "New"}}}); err != nil {
			return err
		}
		// 重名触发唯一索引冲突
		return tx.Insert(ctx, &lld.InsertBatch{Groups: []model.HostGroup{{GroupID: 61, Name: "Linux"}}})
	})
	require.Error(t, err)

	var n int64
	require.NoError(t, db.Model(&model.HostGroup{}).Where("groupid IN ?", []uint64{60, 61}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestUpdateAndDelete(t *testing.T) {
	db, repo := openRepo(t)
	ctx := context.Background()

	err := repo.InTx(ctx, func(tx lld.Tx) error {
		if err := tx.Update(ctx, []lld.Update{{
			Table: "hosts", Key: "hostid", ID: 11,
			Values: map[string]interface{}{"name": "Database primary"},
		}}); err != nil {
			return err
		}
		var b lld.DeleteBatch
		b.Add("items", "interfaceid", 900)
		b.Add("interface", "interfaceid", 900)
		return tx.Delete(ctx, &b)
	})
	require.NoError(t, err)

	var host model.Host
	require.NoError(t, db.First(&host, "hostid = ?", 11).Error)
	assert.Equal(t, "Database primary", host.Name)

	var n int64
	require.NoError(t, db.Model(&model.Interface{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestListByResource(t *testing.T) {
	db, _ := openRepo(t)
	ctx := context.Background()

	for i, clock := range []int64{100, 300, 200} {
		require.NoError(t, db.Create(&model.AuditLog{
			AuditID:      string(rune('a' + i)),
			RecordsetID:  "run",
			Clock:        clock,
			ResourceType: model.AuditResourceHost,
			ResourceID:   11,
			ResourceName: "db-01",
			Details:      "{}",
		}).Error)
	}

	repo := NewAuditRepo(db)
	logs, total, err := repo.ListByResource(ctx, model.AuditResourceHost, 11, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, logs, 2)
	assert.Equal(t, int64(300), logs[0].Clock)
	assert.Equal(t, int64(200), logs[1].Clock)

	logs, err = repo.ListByRecordset(ctx, "run")
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestUpdateGroupsRowsByShape(t *testing.T) {
	db, repo := openRepo(t)
	ctx := context.Background()

	var statements []string
	require.NoError(t, db.Callback().Raw().Register("test:capture_updates", func(tx *gorm.DB) {
		if sql := tx.Statement.SQL.String(); strings.HasPrefix(sql, "UPDATE") {
			statements = append(statements, sql)
		}
	}))

	err := repo.InTx(ctx, func(tx lld.Tx) error {
		return tx.Update(ctx, []lld.Update{
			{Table: "hosts", Key: "hostid", ID: 10, Values: map[string]interface{}{"name": "ESX 01"}},
			{Table: "hosts", Key: "hostid", ID: 11, Values: map[string]interface{}{"name": "DB 01"}},
			{Table: "interface", Key: "interfaceid", ID: 900, Values: map[string]interface{}{"port": "10051"}},
			{Table: "hosts", Key: "hostid", ID: 500, Values: map[string]interface{}{"status": model.HostStatusNotMonitored}},
			{Table: "hosts", Key: "hostid", ID: 10, Values: map[string]interface{}{"name": "ESX final"}},
			{Table: "hosts", Key: "hostid", ID: 12, Values: map[string]interface{}{}},
		})
	})
	require.NoError(t, err)
	require.Len(t, statements, 3)
	assert.Contains(t, statements[0], "CASE hostid")

	var hosts []model.Host
	require.NoError(t, db.Order("hostid").Find(&hosts, "hostid IN ?", []uint64{10, 11, 500}).Error)
	require.Len(t, hosts, 3)
	assert.Equal(t, "ESX final", hosts[0].Name)
	assert.Equal(t, "DB 01", hosts[1].Name)
	assert.Equal(t, model.HostStatusNotMonitored, hosts[2].Status)
	assert.Equal(t, "Template OS", hosts[2].Name)

	var iface model.Interface
	require.NoError(t, db.First(&iface, "interfaceid = ?", 900).Error)
	assert.Equal(t, "10051", iface.Port)
}
