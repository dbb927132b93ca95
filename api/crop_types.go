package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"agrinet/models"
)

type cropTypeResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newCropTypeResponse(cropType models.CropType) cropTypeResponse {
	return cropTypeResponse{ID: cropType.ID.String(), Name: cropType.Name}
}

// ListCropTypes 回傳所有作物種類，依名稱排序
func (server *ServerImpl) ListCropTypes(c *gin.Context) {
	const op = "api.ServerImpl.ListCropTypes"

	cropTypes := []models.CropType{}
	if err := server.db.Order("name asc").Find(&cropTypes).Error; err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to query crop types, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, lo.Map(cropTypes, func(ct models.CropType, _ int) cropTypeResponse {
		return newCropTypeResponse(ct)
	}))
}

type createCropTypeRequest struct {
	Name string `json:"name"`
}

// CreateCropType 建立新的作物種類，名稱重複回 409
func (server *ServerImpl) CreateCropType(c *gin.Context) {
	const op = "api.ServerImpl.CreateCropType"

	if _, err := server.currentUser(c); err != nil {
		server.abortWithError(c, op, err)
		return
	}

	request := createCropTypeRequest{}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	name := strings.TrimSpace(request.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}

	cropType := models.CropType{Name: name}
	if err := server.db.Create(&cropType).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Crop type already exists"})
			return
		}
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to create crop type, err=%w", op, err))
		return
	}
	c.JSON(http.StatusCreated, newCropTypeResponse(cropType))
}
