package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	internalRedis "agrinet/adapters/redis"
	internalS3 "agrinet/adapters/s3"
	"agrinet/adapters/sms"
	"agrinet/adapters/sse"
	"agrinet/market"
	"agrinet/models"
)

// ServerImpl 聚合市集服務的所有外部資源與背景元件
// 出價走 Redis stream 解耦：Lua 腳本負責記錄，GroupWorker 負責落庫，
// SSE 廣播另走一條 stream 讓多個實例的訂閱者都收得到
type ServerImpl struct {
	config ServerConfig
	logger *slog.Logger

	db          *gorm.DB
	redisClient *goredis.Client

	uploader    *internalS3.Uploader
	htmlChecker *bluemonday.Policy
	smsGateway  sms.IGateway

	sseManager sse.IConnectionManager[BidEvent]
	bidWorker  internalRedis.IGroupWorker[BidInfo]

	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
}

func NewServer(config ServerConfig, logger *slog.Logger) (*ServerImpl, error) {
	const op = "api.NewServer"
	if logger == nil {
		logger = slog.Default()
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d",
		config.DB.Host, config.DB.User, config.DB.Password, config.DB.Database, config.DB.Port,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}

	// 初始化 Redis 連線
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	// 初始化 S3 客戶端
	awsCfg, err := awsConfig.LoadDefaultConfig(
		context.Background(),
		awsConfig.WithRegion("auto"),
		awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.S3.AccessKeyID, config.S3.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load S3 config, err=%w", op, err)
	}
	s3Client := awsS3.NewFromConfig(awsCfg, func(o *awsS3.Options) {
		o.BaseEndpoint = aws.String(config.S3.Endpoint)
		o.UsePathStyle = true
	})
	uploader, err := internalS3.NewUploader(s3Client, config.S3.Bucket, config.S3.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create S3 uploader, err=%w", op, err)
	}

	server := &ServerImpl{
		config:      config,
		logger:      logger.With(slog.String("caller", "ServerImpl")),
		db:          db,
		redisClient: redisClient,
		uploader:    uploader,
		htmlChecker: bluemonday.UGCPolicy(),
		smsGateway: sms.NewGateway(sms.GatewayConfig{
			BaseURL:  config.SMS.BaseURL,
			APIKey:   config.SMS.APIKey,
			SenderID: config.SMS.SenderID,
		}),
	}

	// SSE 廣播元件，發布和讀取指向同一條 stream
	ssePublisher, err := internalRedis.NewPublisher[sse.Envelope[BidEvent]](
		redisClient, server.sseStreamKey(),
		internalRedis.WithPublisherLogger[sse.Envelope[BidEvent]](logger),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create SSE publisher, err=%w", op, err)
	}
	sseReader, err := internalRedis.NewReader[sse.Envelope[BidEvent]](
		redisClient, server.sseStreamKey(),
		internalRedis.WithReaderLogger[sse.Envelope[BidEvent]](logger),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create SSE reader, err=%w", op, err)
	}
	server.sseManager = sse.NewConnectionManager(ssePublisher, sseReader, logger)

	// 出價落庫 worker，嚴格順序保證同一刊登的出價依序寫入
	bidWorker, err := internalRedis.NewGroupWorker[BidInfo](
		redisClient, server.bidStreamKey(), config.Redis.ConsumerGroup, config.ID,
		internalRedis.WithGroupWorkerLogger[BidInfo](logger),
		internalRedis.WithGroupWorkerStrictOrdering[BidInfo](true),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create bid worker, err=%w", op, err)
	}
	server.bidWorker = bidWorker

	return server, nil
}

// Start 啟動所有背景元件
func (server *ServerImpl) Start() error {
	const op = "api.ServerImpl.Start"
	ctx, cancel := context.WithCancel(context.Background())
	server.cancelFunc = cancel

	// 建立 consumer group，已存在時不算錯誤
	err := server.redisClient.XGroupCreateMkStream(
		ctx, server.bidStreamKey(), server.config.Redis.ConsumerGroup, "$",
	).Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		cancel()
		return fmt.Errorf("[%s] Fail to create consumer group, err=%w", op, err)
	}

	server.sseManager.Start()
	if err := server.bidWorker.Start(); err != nil {
		cancel()
		return fmt.Errorf("[%s] Fail to start bid worker, err=%w", op, err)
	}

	server.wg.Add(1)
	go func() {
		defer server.wg.Done()
		server.persistBids(ctx)
	}()

	server.logger.Info("server components started")
	return nil
}

// persistBids 把出價 stream 的訊息寫回資料庫
// 寫入失敗的訊息進 dead-letter，不會卡住後面的出價
func (server *ServerImpl) persistBids(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-server.bidWorker.Subscribe():
			if !ok {
				return
			}

			bid := models.Bid{
				ListingID: message.Data.ListingID,
				UserID:    message.Data.User.ID,
				Amount:    message.Data.Amount,
				Message:   message.Data.Message,
				Status:    models.StatusPending,
			}
			if err := server.db.WithContext(ctx).Create(&bid).Error; err != nil {
				server.logger.Error("failed to persist bid",
					slog.String("listingId", message.Data.ListingID.String()),
					slog.Any("error", err),
				)
				if failErr := message.Fail(ctx, err); failErr != nil {
					server.logger.Error("failed to move bid to dead letter", slog.Any("error", failErr))
				}
				continue
			}

			if err := message.Done(ctx); err != nil {
				server.logger.Error("failed to ack bid message", slog.Any("error", err))
			}
		}
	}
}

// Close 依啟動的相反順序關閉所有元件
func (server *ServerImpl) Close() error {
	const op = "api.ServerImpl.Close"
	if server.cancelFunc != nil {
		server.cancelFunc()
	}

	if err := server.bidWorker.Close(); err != nil {
		server.logger.Error("failed to close bid worker", slog.Any("error", err))
	}
	server.sseManager.Done()
	server.wg.Wait()

	if err := server.redisClient.Close(); err != nil {
		return fmt.Errorf("[%s] Fail to close redis client, err=%w", op, err)
	}
	server.logger.Info("server components closed")
	return nil
}

// RegisterRoutes 掛載所有 API 路由
func (server *ServerImpl) RegisterRoutes(router *gin.Engine) {
	router.Use(SessionMiddleware(server.config, server.redisClient))

	api := router.Group("/api")

	api.POST("/auth/register", server.Register)
	api.POST("/auth/login", server.Login)
	api.POST("/auth/logout", server.Logout)
	api.GET("/auth/user", server.CurrentUser)

	api.GET("/crop-types", server.ListCropTypes)
	api.POST("/crop-types", server.CreateCropType)

	api.GET("/listings", server.ListListings)
	api.POST("/listings", server.CreateListing)
	api.GET("/listings/:listingID", server.GetListing)
	api.PATCH("/listings/:listingID", server.UpdateListing)
	api.DELETE("/listings/:listingID", server.DeactivateListing)

	api.GET("/listings/:listingID/bids", server.ListBids)
	api.POST("/listings/:listingID/bids", server.PlaceBid)
	api.GET("/listings/:listingID/events", server.ListingEvents)
	api.PATCH("/bids/:bidID", server.DecideBid)

	api.GET("/barter-offers", server.ListBarterOffers)
	api.POST("/barter-offers", server.CreateBarterOffer)
	api.PUT("/barter-offers/:offerID/status", server.DecideBarterOffer)
	api.GET("/barter-matches", server.ListBarterMatches)

	api.POST("/predict-price", server.PredictPrice)
	api.GET("/forecast", server.DemandForecast)

	api.POST("/images", server.UploadImage)
	api.POST("/sms/inbound", server.InboundSMS)
}

// DB 給外層做遷移和排程用的資料庫連線
func (server *ServerImpl) DB() *gorm.DB {
	return server.db
}

func (server *ServerImpl) bidStreamKey() string {
	return server.config.Redis.KeyPrefix + server.config.Redis.StreamKeys.BidStream
}

func (server *ServerImpl) sseStreamKey() string {
	return server.config.Redis.KeyPrefix + server.config.Redis.StreamKeys.SSEStream
}

func (server *ServerImpl) topBidKey(listingID uuid.UUID) string {
	return fmt.Sprintf("%slisting:%s:top-bid", server.config.Redis.KeyPrefix, listingID)
}

func (server *ServerImpl) bidLockKey(listingID uuid.UUID) string {
	return fmt.Sprintf("%slisting:%s:bid-lock", server.config.Redis.KeyPrefix, listingID)
}

func (server *ServerImpl) estimateCacheKey(cropTypeID uuid.UUID, location, quality string) string {
	return fmt.Sprintf(
		"%sestimate:%s:%s:%s",
		server.config.Redis.KeyPrefix, cropTypeID, strings.ToLower(strings.TrimSpace(location)), quality,
	)
}

// abortWithError 統一處理 handler 的錯誤回應
// 未登入與欄位驗證錯誤有專屬格式，其餘記 log 後回 500
func (server *ServerImpl) abortWithError(c *gin.Context, op string, err error) {
	var fieldErrors market.FieldErrors

	switch {
	case errors.Is(err, ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
	case errors.As(err, &fieldErrors):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "fields": fieldErrors})
	default:
		server.logger.Error("request failed", slog.String("op", op), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
