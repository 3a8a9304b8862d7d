package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strconv"

	"github.com/lldsync/lldsync/internal/lld"
	"github.com/lldsync/lldsync/internal/util"
)

// discoveryPayload 发现请求体：行数组，或 {"data": [...]}
//
// 每行可以是 {"macros": {...}, "overrides": {...}}，也可以是 {"{#NAME}": "value"} 形式的宏表。
type discoveryPayload struct {
	Data []json.RawMessage `json:"data"`
}

// parseDiscovery 按 Content-Type 声明的字符集解码并解析发现行
func parseDiscovery(body []byte, contentType string) ([]*lld.DiscoveryRow, error) {
	charset := ""
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			charset = params["charset"]
		}
	}
	body, err := util.DecodePayload(body, charset)
	if err != nil {
		return nil, err
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty request body")
	}

	var items []json.RawMessage
	if body[0] == '[' {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("invalid discovery data: %w", err)
		}
	} else {
		var p discoveryPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("invalid discovery data: %w", err)
		}
		if p.Data == nil {
			return nil, fmt.Errorf("cannot find the \"data\" array")
		}
		items = p.Data
	}

	rows := make([]*lld.DiscoveryRow, 0, len(items))
	for i, item := range items {
		row, err := parseRow(item)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(raw json.RawMessage) (*lld.DiscoveryRow, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("row is not an object")
	}
	if _, ok := fields["macros"]; ok {
		var row lld.DiscoveryRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, err
		}
		return &row, nil
	}

	row := &lld.DiscoveryRow{Macros: make(map[string]string, len(fields))}
	for k, v := range fields {
		s, err := macroValue(v)
		if err != nil {
			return nil, fmt.Errorf("macro %s: %w", k, err)
		}
		row.Macros[k] = s
	}
	return row, nil
}

// macroValue 宏值可以是字符串、数字或布尔值
func macroValue(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return strconv.FormatBool(b), nil
	}
	return "", fmt.Errorf("unsupported value %s", string(v))
}
