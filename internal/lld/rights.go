package lld

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lldsync/lldsync/internal/model"
)

// ancestorNames 返回组名所有上级路径，由近及远
//
//	"a/b/c" -> ["a/b", "a"]
func ancestorNames(name string) []string {
	var out []string
	for i := strings.LastIndexByte(name, '/'); i > 0; i = strings.LastIndexByte(name[:i], '/') {
		out = append(out, name[:i])
	}
	return out
}

// propagateRights 新建的主机组复制最近一级已存在上级组的权限
func (e *Engine) propagateRights(ctx context.Context, w *writer) error {
	created := append([]*Group(nil), w.createdGroups...)
	if len(created) == 0 {
		return nil
	}
	sort.Slice(created, func(i, j int) bool { return created[i].Name < created[j].Name })

	var names []string
	seen := make(map[string]bool)
	for _, g := range created {
		for _, name := range ancestorNames(g.Name) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return nil
	}

	existing, err := w.tx.GroupsByName(ctx, names)
	if err != nil {
		return fmt.Errorf("load parent groups: %w", err)
	}
	// 本次新建的组尚未写入，不能作为上级
	for _, g := range created {
		delete(existing, g.Name)
	}
	if len(existing) == 0 {
		return nil
	}

	parentIDs := make([]uint64, 0, len(existing))
	for _, id := range existing {
		parentIDs = append(parentIDs, id)
	}
	sortIDs(parentIDs)
	rights, err := w.tx.Rights(ctx, parentIDs)
	if err != nil {
		return fmt.Errorf("load parent group rights: %w", err)
	}

	var pending []model.Right
	for _, g := range created {
		for _, name := range ancestorNames(g.Name) {
			parentID, ok := existing[name]
			if !ok {
				continue
			}
			for _, right := range rights[parentID] {
				pending = append(pending, model.Right{
					GroupID:    right.GroupID,
					Permission: right.Permission,
					HstGrpID:   g.ID,
				})
			}
			break
		}
	}
	if len(pending) == 0 {
		return nil
	}

	first, err := w.tx.ReserveIDs(ctx, "rights", "rightid", len(pending))
	if err != nil {
		return fmt.Errorf("reserve rights ids: %w", err)
	}
	for i := range pending {
		pending[i].RightID = first + uint64(i)
	}
	w.insert.Rights = append(w.insert.Rights, pending...)
	return nil
}
