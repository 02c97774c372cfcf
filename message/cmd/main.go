package main

import (
	"log"
	"net"

	"github.com/AdventureDe/LinkIM/message/config"
	"github.com/AdventureDe/LinkIM/message/handler"
	"github.com/AdventureDe/LinkIM/message/repo"
	"github.com/AdventureDe/LinkIM/message/router"
	"github.com/AdventureDe/LinkIM/message/rpc"
	"github.com/AdventureDe/LinkIM/message/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Fail to load config:%v", err)
	}
	//logger
	var logger *zap.Logger
	if cfg.Logger.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // flush buffer, 避免丢日志

	db, err := repo.InitDB(cfg.Database)
	if err != nil {
		logger.Fatal("Fail to initialize Database", zap.Error(err))
	}
	defer repo.CloseDB(logger)

	rdb, err := repo.InitRedis(cfg.Redis)
	if err != nil {
		logger.Fatal("Fail to initialize Redis", zap.Error(err))
	}
	defer repo.CloseRedis(logger)

	messageRepo := repo.NewMessageRepo(db)
	userRepo := repo.NewUserRepo(db)
	messageRedis := repo.NewMessageRedis(rdb)
	sysConfig := service.NewSysConfigService(repo.NewSysConfigRepo(db), logger)

	var rateStore repo.RateStore = messageRedis
	if cfg.RateLimit.Store == "memory" {
		logger.Warn("using in-process rate store, limits are not shared between instances")
		rateStore = repo.NewMemoryRateStore(nil)
	}
	gate := service.NewRateGate(rateStore, cfg.RateLimit, sysConfig, logger)
	delivery := service.NewDeliveryStateMachine(messageRepo, service.DeliveryDeps{
		Accounts:  userRepo,
		Relations: userRepo,
		Blocks:    userRepo,
		Settings:  userRepo,
		Config:    sysConfig,
	}, logger)
	messageService := service.NewMessageService(gate, delivery, messageRepo, sysConfig, messageRedis, logger)
	defer messageService.Wait()

	// grpc 服务器，供内部服务调用
	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", cfg.GRPCAddr())
		if err != nil {
			logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr()), zap.Error(err))
		}
		grpcServer := rpc.NewGRPCServer(rpc.NewServer(messageService), logger)
		defer grpcServer.GracefulStop()
		go func() {
			logger.Info("MessageService gRPC listening", zap.String("addr", cfg.GRPCAddr()))
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("grpc server stopped", zap.Error(err))
			}
		}()
	}

	if !cfg.Logger.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.New(cfg.CorsConfig()))

	messageHandler := handler.NewMessageHandler(messageService, logger)
	router.SetMessageRouter(r, messageHandler, cfg.JWT.Secret)

	// 启动 HTTP 服务
	logger.Info("Message service started", zap.String("addr", cfg.Addr()))
	if err := r.Run(cfg.Addr()); err != nil {
		logger.Error("Failed to start server", zap.Error(err))
	}
}
