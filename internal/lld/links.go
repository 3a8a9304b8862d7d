package lld

import "sort"

// assembleGroups 计算主机组成员关系的增删：固定组 + 组原型生成的组
func (e *Engine) assembleGroups(r *run, h *Host) {
	h.groupIDs = append(h.groupIDs[:0], h.prototype.GroupIDs...)

	keep := make(map[uint64]bool, len(h.GroupLinks))
	for _, groupID := range h.groupIDs {
		if keep[groupID] {
			continue
		}
		keep[groupID] = true
		if _, ok := h.GroupLinks[groupID]; !ok {
			h.linkGroupIDs = append(h.linkGroupIDs, groupID)
		}
	}
	for _, g := range h.groups {
		if !g.IsNew() {
			if keep[g.ID] {
				continue
			}
			keep[g.ID] = true
			if _, ok := h.GroupLinks[g.ID]; ok {
				continue
			}
		}
		h.linkGroups = append(h.linkGroups, g)
	}

	for groupID := range h.GroupLinks {
		if !keep[groupID] {
			h.unlinkGroups = append(h.unlinkGroups, groupID)
		}
	}
	sortIDs(h.unlinkGroups)
}

// dropRejectedGroups 移除对未通过校验的新组的引用
func (h *Host) dropRejectedGroups() {
	kept := h.linkGroups[:0]
	for _, g := range h.linkGroups {
		if !g.rejected {
			kept = append(kept, g)
		}
	}
	h.linkGroups = kept
}

// assembleTemplates 计算模板链接的增删：原型模板 + 行覆盖模板
func (e *Engine) assembleTemplates(r *run, h *Host) {
	row := h.Rows[len(h.Rows)-1]

	want := make(map[uint64]bool)
	for _, id := range h.prototype.TemplateIDs {
		want[id] = true
	}
	for _, id := range row.Overrides.TemplateIDs {
		want[id] = true
	}

	for id := range want {
		if _, ok := h.TemplateLinks[id]; !ok {
			h.linkTemplateIDs = append(h.linkTemplateIDs, id)
		}
	}
	for id := range h.TemplateLinks {
		if !want[id] {
			h.unlinkTemplateIDs = append(h.unlinkTemplateIDs, id)
		}
	}
	sortIDs(h.linkTemplateIDs)
	sortIDs(h.unlinkTemplateIDs)
}

func sortIDs(ids []uint64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
