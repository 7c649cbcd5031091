package repository

import (
	"errors"
	"testing"

	"kama_social_client/pkg/errorx"

	"gorm.io/gorm"
)

func TestSessionDBError(t *testing.T) {
	err := sessionDBError(gorm.ErrRecordNotFound, "查询会话记录")
	if !errorx.IsNotFound(err) || !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("not found = %v", err)
	}
	err = sessionDBError(errors.New("connection refused"), "保存会话记录 user_id=%s", "u1")
	if !errorx.HasCode(err, errorx.CodeDBError) {
		t.Fatalf("db error = %v", err)
	}
}
