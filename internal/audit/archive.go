package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lldsync/lldsync/internal/config"
	"github.com/lldsync/lldsync/internal/lld"
	"github.com/lldsync/lldsync/pkg/logger"
)

const contentType = "application/x-ndjson"

// Archiver 单次运行审计记录的归档
type Archiver interface {
	Archive(ctx context.Context, res *lld.Result) (StoredObject, error)
}

// StoredObject 归档对象信息
type StoredObject struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}

// line JSON Lines 中的一行
type line struct {
	RunID  string `json:"run_id"`
	RuleID uint64 `json:"rule_id"`
	Clock  int64  `json:"clock"`
	lld.AuditEntry
}

// Encode 将运行的审计记录编码为 JSON Lines
func Encode(res *lld.Result) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	clock := res.Started.Unix()
	for _, e := range res.Audit {
		if err := enc.Encode(line{RunID: res.RunID, RuleID: res.RuleID, Clock: clock, AuditEntry: e}); err != nil {
			return nil, fmt.Errorf("encode audit entry: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// objectPath 归档相对路径：rule_<id>/<YYYYMMDD>/<HHMMSS>_<run_id>.jsonl
func objectPath(res *lld.Result) []string {
	ts := res.Started
	return []string{
		fmt.Sprintf("rule_%d", res.RuleID),
		ts.Format("20060102"),
		fmt.Sprintf("%s_%s.jsonl", ts.Format("150405"), res.RunID),
	}
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// New 根据配置创建归档器，archive 为 none 时返回 nil
func New(cfg config.AuditConfig) Archiver {
	switch strings.ToLower(strings.TrimSpace(cfg.Archive)) {
	case "local":
		return &LocalArchiver{cfg: cfg.Local}
	case "minio":
		return &DelegatingArchiver{local: &LocalArchiver{cfg: cfg.Local}, minio: initMinioArchiver(cfg.Minio)}
	}
	return nil
}

// DelegatingArchiver 优先写入 MinIO，失败时回退到本地
type DelegatingArchiver struct {
	local *LocalArchiver
	minio *MinioArchiver
}

// Archive 实现 Archiver
func (a *DelegatingArchiver) Archive(ctx context.Context, res *lld.Result) (StoredObject, error) {
	if a.minio == nil {
		logger.Warn("MinIO archive selected but client not initialized; falling back to local")
		obj, lerr := a.local.Archive(ctx, res)
		if lerr != nil {
			return StoredObject{}, fmt.Errorf("minio client not initialized; local fallback failed: %w", lerr)
		}
		return obj, nil
	}
	obj, err := a.minio.Archive(ctx, res)
	if err != nil {
		logger.Warnf("MinIO archive failed; falling back to local: %v", err)
		objLocal, lerr := a.local.Archive(ctx, res)
		if lerr != nil {
			return StoredObject{}, fmt.Errorf("minio archive failed: %v; local fallback failed: %w", err, lerr)
		}
		return objLocal, nil
	}
	return obj, nil
}

// LocalArchiver 本地目录归档
type LocalArchiver struct {
	cfg config.LocalAuditConfig
}

// NewLocalArchiver 创建本地归档器
func NewLocalArchiver(cfg config.LocalAuditConfig) *LocalArchiver {
	return &LocalArchiver{cfg: cfg}
}

// Archive 实现 Archiver
func (a *LocalArchiver) Archive(ctx context.Context, res *lld.Result) (StoredObject, error) {
	data, err := Encode(res)
	if err != nil {
		return StoredObject{}, err
	}

	baseDir := strings.TrimSpace(a.cfg.BaseDir)
	if baseDir == "" {
		baseDir = "./data/audit"
	}
	parts := append([]string{baseDir}, objectPath(res)...)
	fullPath := filepath.Join(parts...)

	if a.cfg.MkdirIfMissing {
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return StoredObject{}, fmt.Errorf("failed to create dir: %w", err)
		}
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return StoredObject{}, fmt.Errorf("failed to write file: %w", err)
	}

	return StoredObject{
		URI:         "file://" + fullPath,
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: contentType,
	}, nil
}

// MinioArchiver MinIO 对象存储归档
type MinioArchiver struct {
	cfg           config.MinioConfig
	client        *minio.Client
	endpoint      string
	bucketEnsured bool
}

// initMinioArchiver 初始化 MinIO 客户端，配置不完整时返回 nil
func initMinioArchiver(cfg config.MinioConfig) *MinioArchiver {
	host := strings.TrimSpace(cfg.Host)
	if host == "" || cfg.Port <= 0 {
		logger.Warn("MinIO configuration incomplete; host/port missing")
		return nil
	}
	endpoint := fmt.Sprintf("%s:%d", host, cfg.Port)

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   16,
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.Secure,
		Transport: transport,
	})
	if err != nil {
		logger.Errorf("MinIO client initialization failed: %v", err)
		return nil
	}
	return &MinioArchiver{cfg: cfg, client: client, endpoint: endpoint}
}

// Archive 实现 Archiver
func (a *MinioArchiver) Archive(ctx context.Context, res *lld.Result) (StoredObject, error) {
	bucket := strings.TrimSpace(a.cfg.Bucket)
	if bucket == "" {
		return StoredObject{}, fmt.Errorf("minio bucket not configured")
	}
	data, err := Encode(res)
	if err != nil {
		return StoredObject{}, err
	}

	parts := objectPath(res)
	if p := strings.Trim(strings.TrimSpace(a.cfg.Prefix), "/"); p != "" {
		parts = append([]string{p}, parts...)
	}
	objectName := path.Join(parts...)

	if !a.bucketEnsured {
		if err := a.ensureBucket(ctx, bucket); err != nil {
			return StoredObject{}, fmt.Errorf("minio ensure bucket failed: %w", err)
		}
		a.bucketEnsured = true
	}

	// 指数退避重试
	var lastErr error
	for _, wait := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := a.client.PutObject(attemptCtx, bucket, objectName, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})
		cancel()
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return StoredObject{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	if lastErr != nil {
		return StoredObject{}, fmt.Errorf("minio put object failed after retries: %w", lastErr)
	}

	return StoredObject{
		URI:         "minio://" + path.Join(bucket, objectName),
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: contentType,
	}, nil
}

func (a *MinioArchiver) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := a.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return a.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}
