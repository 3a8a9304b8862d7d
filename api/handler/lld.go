package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lldsync/lldsync/internal/loader"
	"github.com/lldsync/lldsync/internal/model"
	"github.com/lldsync/lldsync/internal/service"
	"github.com/lldsync/lldsync/pkg/logger"
)

// LLDHandler 发现接口处理器
type LLDHandler struct {
	lldService      *service.LLDService
	maxPayload      int64
	defaultLifetime time.Duration
}

// NewLLDHandler 创建发现接口处理器
func NewLLDHandler(lldService *service.LLDService, maxPayload int64, defaultLifetime time.Duration) *LLDHandler {
	if maxPayload <= 0 {
		maxPayload = 16 << 20
	}
	return &LLDHandler{lldService: lldService, maxPayload: maxPayload, defaultLifetime: defaultLifetime}
}

func (h *LLDHandler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxPayload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Code:    "PAYLOAD_TOO_LARGE",
				Message: "request body exceeds " + strconv.FormatInt(h.maxPayload, 10) + " bytes",
			})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_BODY", Message: err.Error()})
		return nil, false
	}
	return body, true
}

func ruleID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("rule_id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_RULE_ID",
			Message: "invalid rule id: " + c.Param("rule_id"),
		})
		return 0, false
	}
	return id, true
}

// Discovery 提交一条规则的发现结果
// @Router /api/v1/lld/rules/{rule_id}/discovery [post]
func (h *LLDHandler) Discovery(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	rows, err := parseDiscovery(body, c.GetHeader("Content-Type"))
	if err != nil {
		logger.Warnf("Invalid discovery payload for rule %d: %v", id, err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_DATA", Message: err.Error()})
		return
	}

	res, err := h.lldService.Run(c.Request.Context(), id, rows)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "SERVICE_UNAVAILABLE", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: res.Summary(), Data: res})
}

// Batch 一次提交多条规则的发现结果
// @Router /api/v1/lld/batch [post]
func (h *LLDHandler) Batch(c *gin.Context) {
	var batch []service.RuleRows
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_PARAMS", Message: err.Error()})
		return
	}
	for _, item := range batch {
		if item.RuleID == 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_RULE_ID", Message: "rule_id is required"})
			return
		}
	}

	results, err := h.lldService.ProcessBatch(c.Request.Context(), batch)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "SERVICE_UNAVAILABLE", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "batch processed", Data: results})
}

// Cancel 取消规则正在进行的运行
// @Router /api/v1/lld/rules/{rule_id}/cancel [post]
func (h *LLDHandler) Cancel(c *gin.Context) {
	id, ok := ruleID(c)
	if !ok {
		return
	}
	n := h.lldService.CancelRule(id)
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "cancel requested", Data: gin.H{"cancelled": n}})
}

// ListRules 列出发现规则
// @Router /api/v1/lld/rules [get]
func (h *LLDHandler) ListRules(c *gin.Context) {
	rules, err := h.lldService.Rules(c.Request.Context())
	if err != nil {
		logger.Errorf("Failed to list rules: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "ok", Data: rules})
}

// ImportRules 以 YAML 导入规则定义
// @Router /api/v1/lld/rules [post]
func (h *LLDHandler) ImportRules(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	set, err := loader.ParseYAML(body, h.defaultLifetime)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_RULES", Message: err.Error()})
		return
	}
	if err := h.lldService.Seed(c.Request.Context(), set); err != nil {
		logger.Errorf("Failed to import rules: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "IMPORT_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "rules imported",
		Data:    gin.H{"rules": len(set.Rules), "records": set.Len()},
	})
}

// RunAudit 查询一次运行的审计记录
// @Router /api/v1/lld/runs/{run_id}/audit [get]
func (h *LLDHandler) RunAudit(c *gin.Context) {
	runID := c.Param("run_id")
	logs, err := h.lldService.RunAudit(c.Request.Context(), runID)
	if err != nil {
		logger.Errorf("Failed to query audit of run %s: %v", runID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
		return
	}
	if len(logs) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "RUN_NOT_FOUND", Message: "no audit records for run " + runID})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "ok", Data: logs})
}

// HostAudit 主机审计历史
// @Router /api/v1/lld/hosts/{id}/audit [get]
func (h *LLDHandler) HostAudit(c *gin.Context) {
	h.resourceAudit(c, model.AuditResourceHost)
}

// GroupAudit 主机组审计历史
// @Router /api/v1/lld/groups/{id}/audit [get]
func (h *LLDHandler) GroupAudit(c *gin.Context) {
	h.resourceAudit(c, model.AuditResourceHostGroup)
}

func (h *LLDHandler) resourceAudit(c *gin.Context, resourceType int) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_ID", Message: "invalid id: " + c.Param("id")})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if pageSize > 500 {
		pageSize = 500
	}

	logs, total, err := h.lldService.ResourceAudit(c.Request.Context(), resourceType, id, page, pageSize)
	if err != nil {
		logger.Errorf("Failed to query audit of resource %d/%d: %v", resourceType, id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "ok", Data: gin.H{
		"total": total,
		"items": logs,
	}})
}

// Health 健康检查
// @Router /api/v1/health [get]
func (h *LLDHandler) Health(c *gin.Context) {
	stats := h.lldService.GetStats()
	if running, ok := stats["running"].(bool); !ok || !running {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "SERVICE_UNAVAILABLE", Message: "lld service is not running"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "ok", Data: stats})
}
