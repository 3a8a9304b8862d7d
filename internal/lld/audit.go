package lld

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/lldsync/lldsync/internal/model"
)

// AuditMask 密文值在审计中的替代文本
const AuditMask = "******"

// EntityKind 审计记录涉及的实体类型
type EntityKind string

const (
	KindHost          EntityKind = "host"
	KindGroup         EntityKind = "hostgroup"
	KindInterface     EntityKind = "interface"
	KindSNMP          EntityKind = "interface_snmp"
	KindMacro         EntityKind = "hostmacro"
	KindTag           EntityKind = "host_tag"
	KindGroupLink     EntityKind = "hosts_groups"
	KindTemplateLink  EntityKind = "hosts_templates"
	KindHostDiscovery EntityKind = "host_discovery"
)

// AuditEntry 单个字段级变更
type AuditEntry struct {
	Kind         EntityKind `json:"kind"`
	ID           uint64     `json:"id"`
	ResourceType int        `json:"resource_type"`
	ResourceID   uint64     `json:"resource_id"`
	ResourceName string     `json:"resource_name"`
	Path         string     `json:"path"`
	Action       int        `json:"action"`
	Old          string     `json:"old,omitempty"`
	New          string     `json:"new,omitempty"`
}

// ActionName 审计动作名称
func ActionName(action int) string {
	switch action {
	case model.AuditActionAdd:
		return "add"
	case model.AuditActionUpdate:
		return "update"
	case model.AuditActionDelete:
		return "delete"
	case model.AuditActionAttach:
		return "attach"
	case model.AuditActionDetach:
		return "detach"
	}
	return "unknown"
}

// Audit 单次运行的审计上下文，随写操作传递，每个事务提交前刷出一次
type Audit struct {
	RecordsetID string
	Clock       int64

	entries []AuditEntry
	flushed int
}

// NewAudit 创建审计上下文
func NewAudit(recordsetID string, clock int64) *Audit {
	return &Audit{RecordsetID: recordsetID, Clock: clock}
}

// Entries 返回全部字段级记录
func (a *Audit) Entries() []AuditEntry {
	out := make([]AuditEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Len 字段级记录数
func (a *Audit) Len() int {
	return len(a.entries)
}

type auditResource struct {
	typ  int
	id   uint64
	name string
}

func hostResource(h *Host) auditResource {
	return auditResource{typ: model.AuditResourceHost, id: h.ID, name: h.Host}
}

func groupResource(g *Group) auditResource {
	return auditResource{typ: model.AuditResourceHostGroup, id: g.ID, name: g.Name}
}

// field 记录一个字段变更，secret 为 true 时新旧值均以掩码代替
func (a *Audit) field(res auditResource, kind EntityKind, id uint64, path string, action int, old, new interface{}, secret bool) {
	e := AuditEntry{
		Kind:         kind,
		ID:           id,
		ResourceType: res.typ,
		ResourceID:   res.id,
		ResourceName: res.name,
		Path:         path,
		Action:       action,
	}
	switch action {
	case model.AuditActionAdd, model.AuditActionAttach:
		e.New = auditValue(new)
	case model.AuditActionDelete, model.AuditActionDetach:
		e.Old = auditValue(old)
	default:
		e.Old, e.New = auditValue(old), auditValue(new)
	}
	if secret {
		if e.Old != "" || action == model.AuditActionUpdate {
			e.Old = AuditMask
		}
		if e.New != "" || action == model.AuditActionUpdate {
			e.New = AuditMask
		}
	}
	a.entries = append(a.entries, e)
}

func auditValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	case uint64:
		return strconv.FormatUint(t, 10)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return fmt.Sprint(v)
}

// Flush 将上次刷出后的记录按资源聚合为审计日志行
func (a *Audit) Flush() ([]model.AuditLog, error) {
	pending := a.entries[a.flushed:]
	a.flushed = len(a.entries)
	if len(pending) == 0 {
		return nil, nil
	}

	type key struct {
		typ int
		id  uint64
	}
	type group struct {
		res     auditResource
		action  int
		details map[string][]string
	}
	var order []key
	groups := make(map[key]*group)

	for _, e := range pending {
		k := key{e.ResourceType, e.ResourceID}
		g, ok := groups[k]
		if !ok {
			g = &group{
				res:     auditResource{typ: e.ResourceType, id: e.ResourceID, name: e.ResourceName},
				action:  model.AuditActionUpdate,
				details: make(map[string][]string),
			}
			groups[k] = g
			order = append(order, k)
		}
		if e.Kind == KindHost || e.Kind == KindGroup {
			if e.Action == model.AuditActionAdd || e.Action == model.AuditActionDelete {
				g.action = e.Action
			}
		}
		switch e.Action {
		case model.AuditActionAdd, model.AuditActionAttach:
			g.details[e.Path] = []string{ActionName(e.Action), e.New}
		case model.AuditActionDelete, model.AuditActionDetach:
			g.details[e.Path] = []string{ActionName(e.Action), e.Old}
		default:
			g.details[e.Path] = []string{ActionName(e.Action), e.New, e.Old}
		}
	}

	records := make([]model.AuditLog, 0, len(order))
	for _, k := range order {
		g := groups[k]
		details, err := json.Marshal(g.details)
		if err != nil {
			return nil, fmt.Errorf("marshal audit details: %w", err)
		}
		records = append(records, model.AuditLog{
			AuditID:      uuid.NewString(),
			RecordsetID:  a.RecordsetID,
			Clock:        a.Clock,
			Action:       g.action,
			ResourceType: g.res.typ,
			ResourceID:   g.res.id,
			ResourceName: g.res.name,
			Details:      string(details),
		})
	}
	return records, nil
}
