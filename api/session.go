package api

import (
	"errors"
	"fmt"

	"agrinet/adapters/session"
	"agrinet/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	internalRedis "agrinet/adapters/redis"
)

const sessionKeyUserID = "user_id"

// ErrUnauthorized 代表請求沒有帶有效的登入會話
var ErrUnauthorized = errors.New("not authenticated")

// SessionMiddleware 建立以 Redis 為儲存層的 session middleware
func SessionMiddleware(config ServerConfig, client *goredis.Client) gin.HandlerFunc {
	store := internalRedis.NewStore(
		client,
		internalRedis.WithStorePrefix(config.Redis.KeyPrefix+"session:"),
		internalRedis.WithStoreTTL(config.Session.CookieMaxAge),
	)

	return session.GinMiddleware(
		store,
		session.WithSessionKeyForCookie(config.Session.KeyForCookie),
		session.WithCookieMaxAge(config.Session.CookieMaxAge),
		session.WithCookieSecure(false),
	)
}

// currentSession 取得當前請求已載入的會話
func currentSession(c *gin.Context) (session.ISession, error) {
	return session.GetSession(c)
}

// currentUser 從會話中解析登入者並載回完整的使用者資料
// 未登入或使用者已不存在時返回 ErrUnauthorized
func (server *ServerImpl) currentUser(c *gin.Context) (*models.User, error) {
	const op = "api.ServerImpl.currentUser"

	userSession, err := currentSession(c)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load session, err=%w", op, err)
	}

	rawID := userSession.Get(sessionKeyUserID)
	if rawID == "" {
		return nil, ErrUnauthorized
	}

	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrUnauthorized
	}

	user := models.User{}
	if err := server.db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("[%s] Fail to query user, err=%w", op, err)
	}

	return &user, nil
}
