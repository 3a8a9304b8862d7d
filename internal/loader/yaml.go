package loader

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lldsync/lldsync/internal/model"
	"github.com/lldsync/lldsync/internal/repository"
)

// RulesYAML 规则定义文件结构
type RulesYAML struct {
	Version   string         `yaml:"version"`
	Templates []TemplateYAML `yaml:"templates,omitempty"`
	Groups    []GroupYAML    `yaml:"groups,omitempty"`
	Rules     []RuleYAML     `yaml:"rules"`
	Rights    []RightYAML    `yaml:"rights,omitempty"`
	Items     []ItemYAML     `yaml:"items,omitempty"`
}

// TemplateYAML 模板
type TemplateYAML struct {
	ID   uint64 `yaml:"id"`
	Name string `yaml:"name"`
}

// GroupYAML 普通主机组
type GroupYAML struct {
	ID   uint64 `yaml:"id"`
	Name string `yaml:"name"`
}

// RightYAML 用户组对主机组的权限
type RightYAML struct {
	ID         uint64 `yaml:"id"`
	UserGroup  uint64 `yaml:"usrgrpid"`
	Permission int    `yaml:"permission"`
	GroupID    uint64 `yaml:"groupid"`
}

// ItemYAML 引用接口的监控项
type ItemYAML struct {
	ID          uint64 `yaml:"id"`
	HostID      uint64 `yaml:"hostid"`
	InterfaceID uint64 `yaml:"interfaceid"`
	Name        string `yaml:"name"`
}

// RuleYAML 发现规则
type RuleYAML struct {
	ID   uint64 `yaml:"id"`
	Name string `yaml:"name"`
	// Lifetime 为空时使用默认值，0s 表示立即删除
	Lifetime   *time.Duration  `yaml:"lifetime,omitempty"`
	Disabled   bool            `yaml:"disabled,omitempty"`
	Host       HostYAML        `yaml:"host"`
	Prototypes []PrototypeYAML `yaml:"prototypes"`
}

// HostYAML 规则所属主机
type HostYAML struct {
	ID         uint64          `yaml:"id"`
	Name       string          `yaml:"name"`
	ProxyID    uint64          `yaml:"proxy_hostid,omitempty"`
	IPMI       *IPMIYAML       `yaml:"ipmi,omitempty"`
	TLS        *TLSYAML        `yaml:"tls,omitempty"`
	Interfaces []InterfaceYAML `yaml:"interfaces,omitempty"`
	Macros     []MacroYAML     `yaml:"macros,omitempty"`
}

// IPMIYAML IPMI 设置
type IPMIYAML struct {
	AuthType  int    `yaml:"authtype"`
	Privilege int    `yaml:"privilege"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// TLSYAML 加密设置
type TLSYAML struct {
	Connect     int    `yaml:"connect"`
	Accept      int    `yaml:"accept"`
	Issuer      string `yaml:"issuer,omitempty"`
	Subject     string `yaml:"subject,omitempty"`
	PSKIdentity string `yaml:"psk_identity,omitempty"`
	PSK         string `yaml:"psk,omitempty"`
}

// PrototypeYAML 主机原型
type PrototypeYAML struct {
	ID            uint64 `yaml:"id"`
	Host          string `yaml:"host"`
	Name          string `yaml:"name,omitempty"`
	Status        string `yaml:"status,omitempty"`
	Discover      *bool  `yaml:"discover,omitempty"`
	InventoryMode string `yaml:"inventory_mode,omitempty"`
	// Interfaces 非空时使用自定义接口，否则继承规则主机的接口
	Interfaces      []InterfaceYAML      `yaml:"interfaces,omitempty"`
	Macros          []MacroYAML          `yaml:"macros,omitempty"`
	Tags            []TagYAML            `yaml:"tags,omitempty"`
	Templates       []uint64             `yaml:"templates,omitempty"`
	Groups          []FixedGroupYAML     `yaml:"groups,omitempty"`
	GroupPrototypes []GroupPrototypeYAML `yaml:"group_prototypes,omitempty"`
}

// InterfaceYAML 接口定义
type InterfaceYAML struct {
	ID    uint64    `yaml:"id"`
	Type  string    `yaml:"type"`
	Main  bool      `yaml:"main"`
	UseIP *bool     `yaml:"useip,omitempty"`
	IP    string    `yaml:"ip,omitempty"`
	DNS   string    `yaml:"dns,omitempty"`
	Port  string    `yaml:"port,omitempty"`
	SNMP  *SNMPYAML `yaml:"snmp,omitempty"`
}

// SNMPYAML SNMP 接口参数
type SNMPYAML struct {
	Version        int    `yaml:"version"`
	Bulk           *bool  `yaml:"bulk,omitempty"`
	Community      string `yaml:"community,omitempty"`
	SecurityName   string `yaml:"securityname,omitempty"`
	SecurityLevel  int    `yaml:"securitylevel,omitempty"`
	AuthPassphrase string `yaml:"authpassphrase,omitempty"`
	PrivPassphrase string `yaml:"privpassphrase,omitempty"`
	AuthProtocol   int    `yaml:"authprotocol,omitempty"`
	PrivProtocol   int    `yaml:"privprotocol,omitempty"`
	ContextName    string `yaml:"contextname,omitempty"`
}

// MacroYAML 用户宏
type MacroYAML struct {
	ID          uint64 `yaml:"id"`
	Macro       string `yaml:"macro"`
	Value       string `yaml:"value"`
	Description string `yaml:"description,omitempty"`
	Secret      bool   `yaml:"secret,omitempty"`
}

// TagYAML 标签
type TagYAML struct {
	ID    uint64 `yaml:"id"`
	Tag   string `yaml:"tag"`
	Value string `yaml:"value,omitempty"`
}

// FixedGroupYAML 原型上的固定组
type FixedGroupYAML struct {
	ID      uint64 `yaml:"id"`
	GroupID uint64 `yaml:"groupid"`
}

// GroupPrototypeYAML 组名模板
type GroupPrototypeYAML struct {
	ID   uint64 `yaml:"id"`
	Name string `yaml:"name"`
}

// LoadYAML 读取规则定义文件
func LoadYAML(path string, defaultLifetime time.Duration) (*repository.SeedSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseYAML(data, defaultLifetime)
}

// ParseYAML 解析规则定义并转换为待写入的记录
func ParseYAML(data []byte, defaultLifetime time.Duration) (*repository.SeedSet, error) {
	var doc RulesYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	c := &converter{set: &repository.SeedSet{}, ids: make(map[string]bool), lifetime: defaultLifetime}
	if err := c.convert(&doc); err != nil {
		return nil, err
	}
	return c.set, nil
}

type converter struct {
	set      *repository.SeedSet
	ids      map[string]bool
	lifetime time.Duration
}

// claim 同类记录的 ID 不能重复
func (c *converter) claim(kind string, id uint64) error {
	if id == 0 {
		return fmt.Errorf("%s: id is required", kind)
	}
	key := fmt.Sprintf("%s/%d", kind, id)
	if c.ids[key] {
		return fmt.Errorf("%s: duplicate id %d", kind, id)
	}
	c.ids[key] = true
	return nil
}

func (c *converter) convert(doc *RulesYAML) error {
	for _, t := range doc.Templates {
		if err := c.claim("host", t.ID); err != nil {
			return fmt.Errorf("template %q: %w", t.Name, err)
		}
		c.set.Hosts = append(c.set.Hosts, plainHost(t.ID, t.Name, model.HostStatusTemplate, model.HostFlagPlain))
	}
	for _, g := range doc.Groups {
		if err := c.claim("group", g.ID); err != nil {
			return fmt.Errorf("group %q: %w", g.Name, err)
		}
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("group %d: name is required", g.ID)
		}
		c.set.Groups = append(c.set.Groups, model.HostGroup{GroupID: g.ID, Name: g.Name, Flags: model.GroupFlagPlain})
	}
	for i := range doc.Rules {
		if err := c.rule(&doc.Rules[i]); err != nil {
			return fmt.Errorf("rule %q: %w", doc.Rules[i].Name, err)
		}
	}
	for _, r := range doc.Rights {
		if err := c.claim("right", r.ID); err != nil {
			return err
		}
		c.set.Rights = append(c.set.Rights, model.Right{RightID: r.ID, GroupID: r.UserGroup, Permission: r.Permission, HstGrpID: r.GroupID})
	}
	for _, it := range doc.Items {
		if err := c.claim("item", it.ID); err != nil {
			return err
		}
		c.set.Items = append(c.set.Items, model.Item{ItemID: it.ID, HostID: it.HostID, InterfaceID: it.InterfaceID, Name: it.Name})
	}
	return nil
}

func plainHost(id uint64, name string, status, flags int) model.Host {
	return model.Host{
		HostID:        id,
		Host:          name,
		Name:          name,
		Status:        status,
		Flags:         flags,
		InventoryMode: model.InventoryModeDisabled,
		IPMIAuthType:  -1,
		IPMIPrivilege: 2,
		TLSConnect:    1,
		TLSAccept:     1,
	}
}

func (c *converter) rule(r *RuleYAML) error {
	if err := c.claim("rule", r.ID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	lifetime := c.lifetime
	if r.Lifetime != nil {
		lifetime = *r.Lifetime
	}
	if lifetime < 0 {
		return fmt.Errorf("lifetime must not be negative")
	}
	status := 0
	if r.Disabled {
		status = 1
	}

	if err := c.claim("host", r.Host.ID); err != nil {
		return fmt.Errorf("host %q: %w", r.Host.Name, err)
	}
	host := plainHost(r.Host.ID, r.Host.Name, model.HostStatusMonitored, model.HostFlagPlain)
	host.ProxyHostID = r.Host.ProxyID
	if ipmi := r.Host.IPMI; ipmi != nil {
		host.IPMIAuthType, host.IPMIPrivilege = ipmi.AuthType, ipmi.Privilege
		host.IPMIUsername, host.IPMIPassword = ipmi.Username, ipmi.Password
	}
	if tls := r.Host.TLS; tls != nil {
		host.TLSConnect, host.TLSAccept = tls.Connect, tls.Accept
		host.TLSIssuer, host.TLSSubject = tls.Issuer, tls.Subject
		host.TLSPSKIdentity, host.TLSPSK = tls.PSKIdentity, tls.PSK
	}
	c.set.Hosts = append(c.set.Hosts, host)
	if err := c.interfaces(r.Host.ID, r.Host.Interfaces); err != nil {
		return err
	}
	if err := c.macros(r.Host.ID, r.Host.Macros); err != nil {
		return err
	}

	c.set.Rules = append(c.set.Rules, model.LLDRule{
		RuleID:   r.ID,
		HostID:   r.Host.ID,
		Name:     r.Name,
		Lifetime: int64(lifetime / time.Second),
		Status:   status,
	})

	if len(r.Prototypes) == 0 {
		return fmt.Errorf("at least one host prototype is required")
	}
	for i := range r.Prototypes {
		if err := c.prototype(r.ID, &r.Prototypes[i]); err != nil {
			return fmt.Errorf("prototype %q: %w", r.Prototypes[i].Host, err)
		}
	}
	return nil
}

func (c *converter) prototype(ruleID uint64, p *PrototypeYAML) error {
	if err := c.claim("host", p.ID); err != nil {
		return err
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("host name template is required")
	}
	status, err := parseStatus(p.Status)
	if err != nil {
		return err
	}
	inventory, err := parseInventoryMode(p.InventoryMode)
	if err != nil {
		return err
	}

	host := plainHost(p.ID, p.Host, status, model.HostFlagPrototype)
	host.Name = p.Name
	host.InventoryMode = inventory
	if p.Discover != nil && !*p.Discover {
		host.Discover = 1
	}
	if len(p.Interfaces) > 0 {
		host.CustomInterfaces = 1
	}
	c.set.Hosts = append(c.set.Hosts, host)
	c.set.Prototypes = append(c.set.Prototypes, model.HostPrototype{HostID: p.ID, RuleID: ruleID})

	if err := c.interfaces(p.ID, p.Interfaces); err != nil {
		return err
	}
	if err := c.macros(p.ID, p.Macros); err != nil {
		return err
	}
	for _, t := range p.Tags {
		if err := c.claim("tag", t.ID); err != nil {
			return err
		}
		c.set.Tags = append(c.set.Tags, model.HostTag{HostTagID: t.ID, HostID: p.ID, Tag: t.Tag, Value: t.Value})
	}
	for i, id := range p.Templates {
		if id == 0 {
			return fmt.Errorf("templates[%d]: id is required", i)
		}
		// 原型的模板链接 ID 由原型 ID 与序号派生
		c.set.Templates = append(c.set.Templates, model.HostTemplate{
			HostTemplateID: p.ID*1000 + uint64(i) + 1,
			HostID:         p.ID,
			TemplateID:     id,
		})
	}
	if len(p.Groups) == 0 && len(p.GroupPrototypes) == 0 {
		return fmt.Errorf("at least one group or group prototype is required")
	}
	for _, g := range p.Groups {
		if err := c.claim("group_prototype", g.ID); err != nil {
			return err
		}
		if g.GroupID == 0 {
			return fmt.Errorf("group prototype %d: groupid is required", g.ID)
		}
		c.set.GroupPrototypes = append(c.set.GroupPrototypes, model.GroupPrototype{GroupPrototypeID: g.ID, HostID: p.ID, GroupID: g.GroupID})
	}
	for _, g := range p.GroupPrototypes {
		if err := c.claim("group_prototype", g.ID); err != nil {
			return err
		}
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("group prototype %d: name is required", g.ID)
		}
		c.set.GroupPrototypes = append(c.set.GroupPrototypes, model.GroupPrototype{GroupPrototypeID: g.ID, HostID: p.ID, Name: g.Name})
	}
	return nil
}

func (c *converter) interfaces(hostID uint64, list []InterfaceYAML) error {
	for _, in := range list {
		if err := c.claim("interface", in.ID); err != nil {
			return err
		}
		typ, err := parseInterfaceType(in.Type)
		if err != nil {
			return fmt.Errorf("interface %d: %w", in.ID, err)
		}
		useIP := in.UseIP == nil || *in.UseIP
		row := model.Interface{
			InterfaceID: in.ID,
			HostID:      hostID,
			Main:        boolInt(in.Main),
			Type:        typ,
			UseIP:       boolInt(useIP),
			IP:          in.IP,
			DNS:         in.DNS,
			Port:        in.Port,
		}
		if row.Port == "" {
			row.Port = defaultPorts[typ]
		}
		c.set.Interfaces = append(c.set.Interfaces, row)

		if typ != model.InterfaceTypeSNMP {
			if in.SNMP != nil {
				return fmt.Errorf("interface %d: snmp details on a non-SNMP interface", in.ID)
			}
			continue
		}
		s := in.SNMP
		if s == nil {
			s = &SNMPYAML{Version: 2, Community: "{$SNMP_COMMUNITY}"}
		}
		bulk := s.Bulk == nil || *s.Bulk
		c.set.InterfaceSNMP = append(c.set.InterfaceSNMP, model.InterfaceSNMP{
			InterfaceID:    in.ID,
			Version:        s.Version,
			Bulk:           boolInt(bulk),
			Community:      s.Community,
			SecurityName:   s.SecurityName,
			SecurityLevel:  s.SecurityLevel,
			AuthPassphrase: s.AuthPassphrase,
			PrivPassphrase: s.PrivPassphrase,
			AuthProtocol:   s.AuthProtocol,
			PrivProtocol:   s.PrivProtocol,
			ContextName:    s.ContextName,
		})
	}
	return nil
}

func (c *converter) macros(hostID uint64, list []MacroYAML) error {
	for _, m := range list {
		if err := c.claim("macro", m.ID); err != nil {
			return err
		}
		if !strings.HasPrefix(m.Macro, "{$") || !strings.HasSuffix(m.Macro, "}") {
			return fmt.Errorf("macro %d: invalid macro %q", m.ID, m.Macro)
		}
		typ := 0
		if m.Secret {
			typ = 1
		}
		c.set.Macros = append(c.set.Macros, model.HostMacro{
			HostMacroID: m.ID,
			HostID:      hostID,
			Macro:       m.Macro,
			Value:       m.Value,
			Description: m.Description,
			Type:        typ,
		})
	}
	return nil
}

var defaultPorts = map[int]string{
	model.InterfaceTypeAgent: "10050",
	model.InterfaceTypeSNMP:  "161",
	model.InterfaceTypeIPMI:  "623",
	model.InterfaceTypeJMX:   "12345",
}

func parseInterfaceType(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "agent", "":
		return model.InterfaceTypeAgent, nil
	case "snmp":
		return model.InterfaceTypeSNMP, nil
	case "ipmi":
		return model.InterfaceTypeIPMI, nil
	case "jmx":
		return model.InterfaceTypeJMX, nil
	}
	return 0, fmt.Errorf("unknown interface type %q", s)
}

func parseStatus(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monitored", "enabled":
		return model.HostStatusMonitored, nil
	case "not_monitored", "disabled":
		return model.HostStatusNotMonitored, nil
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

func parseInventoryMode(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disabled":
		return model.InventoryModeDisabled, nil
	case "manual":
		return model.InventoryModeManual, nil
	case "automatic":
		return model.InventoryModeAutomatic, nil
	}
	return 0, fmt.Errorf("unknown inventory mode %q", s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
