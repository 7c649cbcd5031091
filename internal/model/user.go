// Package model 定义客户端本地状态使用的领域模型
// 本文件定义用户引用，出现在会话参与者、消息发送者和通知发起人中
package model

// UserRef 远端用户的精简引用
type UserRef struct {
	ID       string
	Username string
	Name     string
	Avatar   string
}

// DisplayName 优先使用 Username，其次 Name
func (u UserRef) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Name
}

// IsZero 是否为空引用
func (u UserRef) IsZero() bool {
	return u == UserRef{}
}
