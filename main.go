package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"wordroom/database"   //PostgreSQLとRedisの初期化、ルームストア
	"wordroom/handlers"   //HTTPとWebSocketのルーティング
	"wordroom/migrations" //テーブルの自動マイグレーション
	"wordroom/utils"      //ロガーの初期化とCronジョブ(テストルームの定期削除)
	"wordroom/wordle/broadcast"
	"wordroom/wordle/connection"
	"wordroom/wordle/game"
	"wordroom/wordle/leaderboard"
	"wordroom/wordle/rooms"
	"wordroom/wordle/words"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	configPath := os.Getenv("WORDROOM_CONFIG")
	if configPath == "" {
		configPath = "config.json"
	}
	config, err := database.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}

	logger, err := utils.InitLogger(config.LogLevel) // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ

	// 非同期でPostgreSQLとRedisの初期化
	var db *gorm.DB
	var rdb *redis.Client
	done := make(chan bool)
	pending := 0

	if config.Store == "postgres" {
		pending++
		go func() {
			var err error
			db, err = database.InitPostgreSQL(config, logger)
			if err != nil {
				logger.Fatal("PostgreSQLの初期化に失敗しました", zap.Error(err))
			}
			if err := migrations.Migrate(db, logger); err != nil {
				logger.Fatal("マイグレーションに失敗しました", zap.Error(err))
			}
			done <- true
		}()
	}
	if config.RedisEnabled {
		pending++
		go func() {
			var err error
			rdb, err = database.InitRedis(config, logger)
			if err != nil {
				logger.Fatal("Failed to initialize Redis", zap.Error(err))
			}
			done <- true
		}()
	}

	// 初期化が完了するのを待つ
	for i := 0; i < pending; i++ {
		<-done
	}

	var store database.RoomStore
	var accounts database.AccountStore
	if db != nil {
		store = database.NewGormRoomStore(db)
		accounts = database.NewGormAccountStore(db)
	} else {
		logger.Warn("using in-memory store; rooms are lost on restart")
		store = database.NewMemoryRoomStore()
		accounts = database.NewMemoryAccountStore()
	}

	var hubOpts []broadcast.Option
	var relay *broadcast.RedisRelay
	var sessions connection.Sessions = connection.NoSessions{}
	if rdb != nil {
		defer rdb.Close()
		relay = broadcast.NewRedisRelay(rdb, logger)
		hubOpts = append(hubOpts, broadcast.WithRelay(relay))
		sessions = connection.NewRedisSessions(rdb, logger)
	}
	if len(config.KafkaBrokers) > 0 {
		mirror := broadcast.NewKafkaMirror(config.KafkaBrokers, config.KafkaTopic, logger)
		defer mirror.Close()
		hubOpts = append(hubOpts, broadcast.WithMirror(mirror))
	}
	hub := broadcast.NewHub(logger, hubOpts...)
	if relay != nil {
		// 購読が確立するまではこのインスタンスの接続にだけ配信される
		select {
		case <-relay.Ready():
		case <-time.After(10 * time.Second):
			logger.Warn("Redis relay not subscribed yet, delivering locally until it is")
		}
	}

	bank := words.NewBank(store, nil, logger)
	manager := rooms.NewManager(store, accounts, hub, logger)

	// クーロンスケジューラのセットアップと呼び出し
	scheduler, err := utils.CronCleaner(manager, config.PurgeSchedule, config.PurgeMaxAge, logger)
	if err != nil {
		logger.Fatal("Cronジョブの登録に失敗しました", zap.Error(err))
	}

	allowed := make(map[string]bool, len(config.AllowedOrigins))
	for _, o := range config.AllowedOrigins {
		allowed[o] = true
	}
	h := &handlers.Handler{
		Rooms:       manager,
		Words:       bank,
		Game:        game.NewMachine(store, accounts, hub, bank.Rand(), logger),
		Leaderboard: leaderboard.NewAggregator(store, accounts),
		Accounts:    accounts,
		Hub:         hub,
		Conns:       connection.NewServer(hub, manager, config.ChatRate, config.ChatBurst, logger),
		Sessions:    sessions,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
		Logger: logger,
	}

	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length", handlers.SessionHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	//各HTTPリクエストのルーティング
	h.Register(router)

	srv := &http.Server{
		Addr:    config.ServerAddr,
		Handler: router,
	}
	go func() {
		logger.Info("server listening", zap.String("addr", config.ServerAddr), zap.String("store", config.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to run HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	// WebSocketのハンドラはHubを閉じるまで戻らないので、先にHubを閉じる
	hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	<-scheduler.Stop().Done()
}
