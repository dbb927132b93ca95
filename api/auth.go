package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"agrinet/market"
	"agrinet/models"
)

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	PhoneNumber string `json:"phoneNumber"`
	Role        string `json:"role"`
}

type userResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	PhoneNumber string `json:"phoneNumber"`
	Role        string `json:"role"`
}

func newUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:          user.ID.String(),
		Username:    user.Username,
		Name:        user.Name,
		Location:    user.Location,
		PhoneNumber: user.PhoneNumber,
		Role:        user.Role,
	}
}

// Register 建立新帳號並直接登入
func (server *ServerImpl) Register(c *gin.Context) {
	const op = "api.ServerImpl.Register"

	request := registerRequest{}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if errs := market.ValidateRegistration(market.RegistrationInput{
		Username:    request.Username,
		Password:    request.Password,
		Name:        request.Name,
		Location:    request.Location,
		PhoneNumber: request.PhoneNumber,
		Role:        request.Role,
	}); errs != nil {
		server.abortWithError(c, op, errs)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(request.Password), bcrypt.DefaultCost)
	if err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to hash password, err=%w", op, err))
		return
	}

	user := models.User{
		Username:     request.Username,
		PasswordHash: string(passwordHash),
		Name:         request.Name,
		Location:     request.Location,
		PhoneNumber:  request.PhoneNumber,
		Role:         request.Role,
	}
	if err := server.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
			return
		}
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to create user, err=%w", op, err))
		return
	}

	if err := server.establishSession(c, &user); err != nil {
		server.abortWithError(c, op, err)
		return
	}
	c.JSON(http.StatusCreated, newUserResponse(&user))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login 驗證帳號密碼並建立會話
func (server *ServerImpl) Login(c *gin.Context) {
	const op = "api.ServerImpl.Login"

	request := loginRequest{}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if errs := market.ValidateLogin(market.LoginInput{
		Username: request.Username,
		Password: request.Password,
	}); errs != nil {
		server.abortWithError(c, op, errs)
		return
	}

	user := models.User{}
	if err := server.db.Where("username = ?", request.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to query user, err=%w", op, err))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(request.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	if err := server.establishSession(c, &user); err != nil {
		server.abortWithError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(&user))
}

// establishSession 把登入者寫進會話
func (server *ServerImpl) establishSession(c *gin.Context, user *models.User) error {
	const op = "api.ServerImpl.establishSession"

	userSession, err := currentSession(c)
	if err != nil {
		return fmt.Errorf("[%s] Fail to load session, err=%w", op, err)
	}
	userSession.Set(sessionKeyUserID, user.ID.String())
	if err := userSession.Save(); err != nil {
		return fmt.Errorf("[%s] Fail to save session, err=%w", op, err)
	}
	return nil
}

// Logout 銷毀會話
func (server *ServerImpl) Logout(c *gin.Context) {
	const op = "api.ServerImpl.Logout"

	userSession, err := currentSession(c)
	if err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to load session, err=%w", op, err))
		return
	}
	if err := userSession.Destroy(); err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to destroy session, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// CurrentUser 回傳目前登入者的資料
func (server *ServerImpl) CurrentUser(c *gin.Context) {
	const op = "api.ServerImpl.CurrentUser"

	user, err := server.currentUser(c)
	if err != nil {
		server.abortWithError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}
