package lld

import "sort"

// assembleMacros 合并规则主机宏与原型宏（原型优先），与已存宏按名称比较
func (e *Engine) assembleMacros(r *run, h *Host) {
	row := h.Rows[len(h.Rows)-1]

	desired := make(map[string]MacroTemplate)
	for _, m := range r.rule.Parent.Macros {
		desired[m.Macro] = m
	}
	for _, m := range h.prototype.Macros {
		desired[m.Macro] = m
	}

	names := make([]string, 0, len(desired))
	for name := range desired {
		names = append(names, name)
	}
	sort.Strings(names)

	existing := make(map[string]*HostMacro, len(h.Macros))
	for _, m := range h.Macros {
		existing[m.Macro] = m
	}

	for _, name := range names {
		tmpl := desired[name]
		value := tmpl.Value
		if tmpl.Type == MacroText {
			value = e.expander.Expand(value, row)
		}
		if m, ok := existing[name]; ok {
			m.update(value, tmpl.Description, tmpl.Type)
			delete(existing, name)
			continue
		}
		h.Macros = append(h.Macros, &HostMacro{
			Macro:       name,
			Value:       value,
			Description: tmpl.Description,
			Type:        tmpl.Type,
		})
	}

	for _, m := range existing {
		m.Remove = true
	}
}
