package lld

import (
	"fmt"
	"strings"
)

// Messages 单次运行累积的用户可见错误，每行一条
type Messages struct {
	lines []string
}

// Addf 追加一行
func (m *Messages) Addf(format string, args ...interface{}) {
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	m.lines = append(m.lines, line)
}

// Len 行数
func (m *Messages) Len() int {
	return len(m.lines)
}

// Lines 返回全部行
func (m *Messages) Lines() []string {
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

// String 多行聚合文本
func (m *Messages) String() string {
	if len(m.lines) == 0 {
		return ""
	}
	return strings.Join(m.lines, "\n") + "\n"
}

func createOrUpdate(isNew bool) string {
	if isNew {
		return "create"
	}
	return "update"
}
