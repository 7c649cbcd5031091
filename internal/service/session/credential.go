package session

import (
	"time"

	"kama_social_client/internal/model"
	"kama_social_client/pkg/aes"
	"kama_social_client/pkg/errorx"
	"kama_social_client/pkg/util/random"
)

// keyInfo HKDF info，区分凭证加密与其他用途
const keyInfo = "kama_social_client/session-credential"

// seal 加密凭证生成持久化记录，每条记录使用独立的盐
func seal(sess model.Session, secret string) (*model.SessionRecord, error) {
	salt := random.GetNowAndLenRandomString(16)
	key, err := aes.DeriveKey(secret, salt, keyInfo)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeServerBusy, "derive credential key")
	}
	cipherText, err := aes.Encrypt([]byte(sess.Token), key)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeServerBusy, "encrypt credential")
	}
	rec := &model.SessionRecord{
		UserId:     sess.UserID,
		Username:   sess.Username,
		Credential: cipherText,
		Salt:       salt,
	}
	if !sess.ExpiresAt.IsZero() {
		exp := sess.ExpiresAt
		rec.ExpiresAt = &exp
	}
	return rec, nil
}

// open 解密持久化记录中的凭证
// 口令变更或记录被篡改时返回 CodeAuthRejected
func open(rec *model.SessionRecord, secret string, now time.Time) (string, error) {
	if rec.ExpiresAt != nil && !now.Before(*rec.ExpiresAt) {
		return "", errorx.Newf(errorx.CodeAuthRejected, "stored session of %s expired", rec.UserId)
	}
	key, err := aes.DeriveKey(secret, rec.Salt, keyInfo)
	if err != nil {
		return "", errorx.Wrap(err, errorx.CodeServerBusy, "derive credential key")
	}
	token, err := aes.Decrypt(rec.Credential, key)
	if err != nil {
		return "", errorx.Wrap(err, errorx.CodeAuthRejected, "stored credential unreadable")
	}
	return string(token), nil
}
