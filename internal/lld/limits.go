package lld

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Limits 名称与标签的长度上限（字符数）
type Limits struct {
	HostName    int
	VisibleName int
	GroupName   int
	TagName     int
	TagValue    int
}

// DefaultLimits 默认长度上限
func DefaultLimits() Limits {
	return Limits{
		HostName:    128,
		VisibleName: 128,
		GroupName:   255,
		TagName:     255,
		TagValue:    255,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.HostName <= 0 {
		l.HostName = d.HostName
	}
	if l.VisibleName <= 0 {
		l.VisibleName = d.VisibleName
	}
	if l.GroupName <= 0 {
		l.GroupName = d.GroupName
	}
	if l.TagName <= 0 {
		l.TagName = d.TagName
	}
	if l.TagValue <= 0 {
		l.TagValue = d.TagValue
	}
	return l
}

func checkUTF8(s string, max int) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("invalid UTF-8 sequence")
	}
	if n := utf8.RuneCountInString(s); n > max {
		return fmt.Errorf("value is too long (%d > %d characters)", n, max)
	}
	return nil
}

// checkHostName 技术名称只允许字母、数字、空格、点、下划线与连字符
func (l Limits) checkHostName(name string) error {
	if name == "" {
		return fmt.Errorf("cannot be empty")
	}
	if len(name) > l.HostName {
		return fmt.Errorf("value is too long (%d > %d characters)", len(name), l.HostName)
	}
	if name != strings.TrimSpace(name) {
		return fmt.Errorf("leading or trailing spaces are not allowed")
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == ' ', c == '.', c == '_', c == '-':
		default:
			return fmt.Errorf("character \"%c\" is not allowed", c)
		}
	}
	return nil
}

func (l Limits) checkVisibleName(name string) error {
	if name == "" {
		return fmt.Errorf("cannot be empty")
	}
	return checkUTF8(name, l.VisibleName)
}

// checkGroupName 组名按 "/" 分层，不允许首尾或连续分隔符
func (l Limits) checkGroupName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("cannot be empty")
	}
	if err := checkUTF8(name, l.GroupName); err != nil {
		return err
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("leading or trailing \"/\" is not allowed")
	}
	if strings.Contains(name, "//") {
		return fmt.Errorf("empty nested group name is not allowed")
	}
	return nil
}
