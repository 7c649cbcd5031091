package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kama_social_client/internal/config"
	dao "kama_social_client/internal/dao/mysql"
	myredis "kama_social_client/internal/dao/redis"
	"kama_social_client/internal/handler"
	"kama_social_client/internal/https_server"
	"kama_social_client/internal/infrastructure/logger"
	"kama_social_client/internal/service"
	"kama_social_client/internal/service/broker"
	"kama_social_client/internal/service/session"
	"kama_social_client/pkg/errorx"
	"kama_social_client/pkg/util/snowflake"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()
	if err := conf.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, conf.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	zap.L().Info("日志初始化成功", zap.String("app", conf.AppName))

	// 3. 初始化雪花算法与参数校验翻译
	snowflake.Init(conf.MachineID)
	if err := handler.InitTrans("zh"); err != nil {
		zap.L().Fatal("初始化校验翻译失败", zap.Error(err))
	}

	// 4. 初始化持久化与视图镜像
	deps, cache := initDeps(conf)
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	// 5. 创建会话管理器，恢复或建立会话
	manager := session.NewManager(conf, deps)
	startSession(manager, conf)

	// 6. 初始化本地视图服务 (依赖注入)
	handlers := handler.NewHandlers(service.NewServices(manager))
	engine := https_server.Init(handlers, conf)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port),
		Handler: engine,
	}
	go func() {
		zap.L().Info("本地视图服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("server running fault", zap.Error(err))
		}
	}()

	// 设置信号监听
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("关闭服务器...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
	// 保留持久化记录，下次启动时恢复
	manager.Close()
	zap.L().Info("服务器已关闭")
	_ = zap.L().Sync()
}

// initDeps 按配置组装会话依赖
// 持久化后端不可用时降级为不持久化，不影响会话本身
func initDeps(conf *config.Config) (session.Deps, *myredis.RedisCache) {
	var deps session.Deps
	var cache *myredis.RedisCache

	if conf.PersistMode == "redis" || conf.RedisConfig.Mirror {
		c, err := myredis.Init(conf.RedisConfig)
		if err != nil {
			zap.L().Error("Redis 初始化失败，相关功能已关闭", zap.Error(err))
		} else {
			cache = c
			zap.L().Info("Redis 初始化成功")
		}
	}

	switch conf.PersistMode {
	case "redis":
		if cache != nil {
			deps.Store = myredis.NewSessionCache(cache)
		}
	case "mysql":
		repos, err := dao.Init(dao.DSN(conf.MysqlConfig))
		if err != nil {
			zap.L().Error("数据库初始化失败，会话不会持久化", zap.Error(err))
		} else {
			deps.Store = dao.NewSessionStore(repos)
			zap.L().Info("数据库初始化成功")
		}
	}

	if conf.RedisConfig.Mirror && cache != nil {
		deps.Cache = cache
	}

	if conf.MessageMode == "kafka" {
		kafkaConf := conf.KafkaConfig
		deps.NewBroker = func() broker.ChangeBroker { return broker.NewKafkaBroker(kafkaConf) }
		zap.L().Info("变更事件经 Kafka 分发", zap.String("topic", kafkaConf.ChangeTopic))
	}
	return deps, cache
}

// startSession 配置了凭证时直接登录，否则尝试恢复上次的会话
// 失败只记录日志，之后可通过 POST /session 登录
func startSession(manager *session.Manager, conf *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if conf.SessionConfig.Token != "" {
		if _, err := manager.Login(ctx, conf.SessionConfig.Token); err != nil {
			zap.L().Error("登录失败", zap.Error(err))
		}
		return
	}
	rt, err := manager.Restore(ctx)
	switch {
	case err == nil:
		zap.L().Info("会话已恢复", zap.String("user", rt.Session.UserID))
	case errorx.IsNotFound(err):
		zap.L().Info("没有可恢复的会话，等待登录")
	default:
		zap.L().Warn("恢复会话失败", zap.Error(err))
	}
}
