package main

import (
	"flag"
	"reflect"

	"chatgate/database"
	"chatgate/models"
	"chatgate/utils"

	"go.uber.org/zap"
)

// サーバーを起動せずにテーブルを作成・更新するためのコマンド
func main() {
	configFile := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	logger, err := utils.InitLogger("production")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	config, err := database.LoadConfig(*configFile, logger)
	if err != nil {
		logger.Fatal("設定ファイルの読み込みに失敗しました", zap.Error(err))
	}

	db, err := database.InitPostgreSQL(config.Database, logger)
	if err != nil {
		logger.Fatal("PostgreSQLの初期化に失敗しました", zap.Error(err))
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("マイグレーションに失敗しました", zap.Error(err))
	}
	for _, model := range models.AllModels() {
		logger.Info("テーブルを作成しました", zap.String("model", reflect.TypeOf(model).Elem().Name()))
	}
}
