// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// 監査ログの結果。
const (
	AuditSuccess = "SUCCESS"
	AuditFailed  = "FAILED"
)

// WriteAuditLog は証明書操作の監査ログを出力する。
// identifierが未確定の操作（発行失敗など）では空文字を渡す。
func WriteAuditLog(ctx context.Context, operation string, identifier string, result string, attrs ...any) {
	args := []any{
		"operation", operation,
		"identifier", identifier,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	}
	slog.InfoContext(ctx, "certificate operation completed", append(args, attrs...)...)
}
