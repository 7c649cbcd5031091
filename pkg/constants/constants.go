package constants

const (
	CHANNEL_SIZE            = 100 // 通道大小
	EVENT_BUFFER_SIZE       = 256 // 实时事件通道缓冲
	REDIS_TIMEOUT           = 30  // redis 视图缓存过期时间（分钟）
	REQUEST_TIMEOUT_SECONDS = 10  // REST 请求超时（秒）

	TEMP_MESSAGE_PREFIX      = "tmp_"      // 本地临时消息 ID 前缀
	TEMP_CONVERSATION_PREFIX = "tmp_conv_" // 本地临时会话 ID 前缀

	UNKNOWN_USER_NAME   = "Unknown User" // 参与者为空时的占位名称
	UNKNOWN_ACTOR_NAME  = "Someone"      // 通知缺少发起人时的称呼
	NOTIFICATIONS_ROUTE = "/notifications"
)
