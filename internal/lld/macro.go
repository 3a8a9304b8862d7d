package lld

import "strings"

// Expander 将行内 LLD 宏代入模板字符串，必须幂等且无副作用
type Expander interface {
	Expand(tmpl string, row *DiscoveryRow) string
}

// RowExpander 以 {#MACRO} 形式替换行中的宏，未知宏保持原样
type RowExpander struct{}

// Expand 实现 Expander
func (RowExpander) Expand(tmpl string, row *DiscoveryRow) string {
	if row == nil || len(row.Macros) == 0 || !strings.Contains(tmpl, "{#") {
		return tmpl
	}

	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); {
		if strings.HasPrefix(tmpl[i:], "{#") {
			end := strings.IndexByte(tmpl[i:], '}')
			if end > 2 && isMacroName(tmpl[i+2:i+end]) {
				name := tmpl[i : i+end+1]
				if v, ok := row.Macros[name]; ok {
					b.WriteString(v)
					i += end + 1
					continue
				}
			}
		}
		b.WriteByte(tmpl[i])
		i++
	}
	return b.String()
}

func isMacroName(s string) bool {
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
