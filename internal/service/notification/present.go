package notification

import (
	"kama_social_client/internal/model"
	"kama_social_client/pkg/constants"
	"kama_social_client/pkg/errorx"
)

// Predicate 通知过滤条件
type Predicate func(n *model.Notification) bool

// All 全部通知
func All(*model.Notification) bool { return true }

// Unread 未读通知
func Unread(n *model.Notification) bool { return !n.Read }

// OfType 指定类型的通知
func OfType(t model.NotificationType) Predicate {
	return func(n *model.Notification) bool { return n.Type == t }
}

// ParseFilter 解析 all / unread / 通知类型
func ParseFilter(filter string) (Predicate, error) {
	switch filter {
	case "", "all":
		return All, nil
	case "unread":
		return Unread, nil
	}
	if t := model.NotificationType(filter); t.Valid() {
		return OfType(t), nil
	}
	return nil, errorx.Newf(errorx.CodeInvalidParam, "unknown notification filter %q", filter)
}

// Link 通知的跳转目标
// 优先级固定：帖子 → 快拍 → 发起人主页 → 通知页
func Link(n *model.Notification) string {
	switch {
	case n.Post != nil:
		return "/post/" + n.Post.ID
	case n.Story != nil:
		return "/stories"
	case n.FromUser != nil:
		return "/profile/" + n.FromUser.ID
	}
	return constants.NOTIFICATIONS_ROUTE
}

var templates = map[model.NotificationType]string{
	model.NotificationLike:          " liked your post",
	model.NotificationComment:       " commented on your post",
	model.NotificationFollow:        " started following you",
	model.NotificationShare:         " shared your post",
	model.NotificationMention:       " mentioned you in a post",
	model.NotificationMessage:       " sent you a message",
	model.NotificationPost:          " created a new post",
	model.NotificationStory:         " posted a story",
	model.NotificationFriendRequest: " sent you a friend request",
	model.NotificationEvent:         " invited you to an event",
}

// Describe 通知文案，未知类型返回 "New notification"
func Describe(n *model.Notification) string {
	suffix, ok := templates[n.Type]
	if !ok {
		return "New notification"
	}
	return actorName(n.FromUser) + suffix
}

// actorName 只取展示名，缺失时用占位名，不回退到用户名
func actorName(u *model.UserRef) string {
	if u == nil || u.Name == "" {
		return constants.UNKNOWN_ACTOR_NAME
	}
	return u.Name
}

var icons = map[model.NotificationType]string{
	model.NotificationLike:          "❤️",
	model.NotificationComment:       "💬",
	model.NotificationFollow:        "👤",
	model.NotificationShare:         "🔄",
	model.NotificationMention:       "📍",
	model.NotificationMessage:       "💌",
	model.NotificationPost:          "📝",
	model.NotificationStory:         "📱",
	model.NotificationFriendRequest: "🤝",
	model.NotificationEvent:         "📅",
}

// Icon 通知类型图标
func Icon(t model.NotificationType) string {
	if icon, ok := icons[t]; ok {
		return icon
	}
	return "🔔"
}
