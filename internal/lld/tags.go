package lld

import (
	"fmt"
	"sort"
	"strings"
)

// assembleTags 展开标签模板并按位置与已存标签合并
//
// 两侧均按 tag+value 排序：重叠位置原地更新，多余的已存标签删除，多余的新标签追加。
func (e *Engine) assembleTags(r *run, h *Host) {
	row := h.Rows[len(h.Rows)-1]

	templates := make([]TagTemplate, 0, len(h.prototype.Tags)+len(row.Overrides.Tags))
	templates = append(templates, h.prototype.Tags...)
	templates = append(templates, row.Overrides.Tags...)

	seen := make(map[TagTemplate]bool, len(templates))
	desired := make([]TagTemplate, 0, len(templates))
	for _, tmpl := range templates {
		tag := TagTemplate{
			Tag:   strings.TrimSpace(e.expander.Expand(tmpl.Tag, row)),
			Value: strings.TrimSpace(e.expander.Expand(tmpl.Value, row)),
		}
		if err := e.limits.checkTag(tag); err != nil {
			r.msgs.Addf("Cannot %s host \"%s\": invalid tag \"%s\": %s.", createOrUpdate(h.IsNew()), h.Host, tag.Tag, err)
			continue
		}
		if seen[tag] {
			continue
		}
		seen[tag] = true
		desired = append(desired, tag)
	}
	sort.Slice(desired, func(i, j int) bool {
		return tagLess(desired[i].Tag, desired[i].Value, desired[j].Tag, desired[j].Value)
	})

	existing := make([]*HostTag, len(h.Tags))
	copy(existing, h.Tags)
	sort.Slice(existing, func(i, j int) bool {
		return tagLess(existing[i].Tag, existing[i].Value, existing[j].Tag, existing[j].Value)
	})

	i := 0
	for ; i < len(desired) && i < len(existing); i++ {
		existing[i].update(desired[i].Tag, desired[i].Value)
	}
	for j := i; j < len(existing); j++ {
		existing[j].Remove = true
	}
	h.Tags = existing
	for ; i < len(desired); i++ {
		h.Tags = append(h.Tags, &HostTag{Tag: desired[i].Tag, Value: desired[i].Value})
	}
}

func tagLess(t1, v1, t2, v2 string) bool {
	if t1 != t2 {
		return t1 < t2
	}
	return v1 < v2
}

func (l Limits) checkTag(t TagTemplate) error {
	if t.Tag == "" {
		return fmt.Errorf("empty tag name")
	}
	if err := checkUTF8(t.Tag, l.TagName); err != nil {
		return err
	}
	return checkUTF8(t.Value, l.TagValue)
}
