package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chatgate/auth"          //JWT・パスワード・OTP
	"chatgate/billing"       //Stripeのチェックアウトとwebhook
	"chatgate/database"      //設定の読み込み、PostgreSQLとRedisの初期化
	"chatgate/dispatch"      //メッセージ送信フローと非同期書き込み
	"chatgate/gemini"        //Geminiクライアント
	"chatgate/handlers"      //HTTPハンドラーとルーティング
	"chatgate/observability" //OpenTelemetry
	"chatgate/quota"         //日次クォータ
	"chatgate/utils"         //ロガーの初期化とCronジョブ

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

func main() {
	configFile := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	bootLogger, err := utils.InitLogger(os.Getenv("CHATGATE_SERVER_MODE")) // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}

	config, err := database.LoadConfig(*configFile, bootLogger)
	if err != nil {
		bootLogger.Fatal("設定ファイルの読み込みに失敗しました", zap.Error(err))
	}
	logger := bootLogger
	if config.Server.Mode == "development" {
		if logger, err = utils.InitLogger(config.Server.Mode); err != nil {
			panic(err)
		}
	}
	defer logger.Sync() // ロガーのクリーンアップ

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitOTel(ctx, config.Telemetry, logger)
	if err != nil {
		logger.Fatal("トレーサーの初期化に失敗しました", zap.Error(err))
	}

	// 並行してPostgreSQLとRedisの初期化
	var db *gorm.DB
	var rdb *redis.Client
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		db, err = database.InitPostgreSQL(config.Database, logger)
		if err != nil {
			return err
		}
		return database.AutoMigrate(db)
	})
	g.Go(func() error {
		var err error
		rdb, err = database.InitRedis(gctx, config.Redis, logger)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Fatal("データストアの初期化に失敗しました", zap.Error(err))
	}
	defer rdb.Close()

	users := database.NewUserStore(db)
	chats := database.NewChatStore(db)

	writer := dispatch.NewWriter(chats, config.Persistence, logger)
	writer.Start()

	limiter := quota.NewLimiter(quota.NewRedisCounter(rdb), config.Quota.DailyLimit)
	dispatcher := dispatch.New(chats, limiter, gemini.NewClient(config.Gemini, logger), writer,
		dispatch.Options{RefundOnFailure: config.Quota.RefundOnFailure}, logger)

	// クーロンスケジューラのセットアップと呼び出し
	scheduler, err := utils.CronCleaner(chats, config.Retention.MessageDays, writer, logger)
	if err != nil {
		logger.Fatal("Cronジョブの登録に失敗しました", zap.Error(err))
	}

	router := handlers.NewRouter(handlers.Deps{
		Config:     config,
		Users:      users,
		Chats:      chats,
		Redis:      rdb,
		Tokens:     auth.NewTokenIssuer(config.Auth),
		OTPs:       auth.NewOTPStore(rdb, config.Auth.OTPTTL),
		Dispatcher: dispatcher,
		Writer:     writer,
		Billing:    billing.NewService(config.Stripe, billing.NewStripeSessions(config.Stripe.SecretKey), users, logger),
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              config.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("サーバーを起動します", zap.String("addr", config.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバーの起動に失敗しました", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("シャットダウンを開始します")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTPサーバーの停止に失敗しました", zap.Error(err))
	}
	// レスポンス済みのメッセージを書き切ってから終了する
	if err := writer.Close(shutdownCtx); err != nil {
		logger.Error("書き込みキューの排出に失敗しました", zap.Error(err), zap.Any("stats", writer.Stats()))
	}
	<-scheduler.Stop().Done()
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("トレーサーの停止に失敗しました", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("シャットダウン完了")
}
