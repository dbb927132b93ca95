package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	internalS3 "agrinet/adapters/s3"
	"agrinet/models"
)

const (
	// maxImageSize 是單張刊登圖片的大小上限
	maxImageSize = 5 << 20
	// uploadRateWindow 是上傳頻率限制的計算窗口
	uploadRateWindow = time.Hour
)

// UploadImage 上傳刊登圖片到 S3
// 內容檢查看的是實際位元組而不是副檔名，每人每小時有上傳數量限制
func (server *ServerImpl) UploadImage(c *gin.Context) {
	const op = "api.ServerImpl.UploadImage"

	user, err := server.currentUser(c)
	if err != nil {
		server.abortWithError(c, op, err)
		return
	}

	// 上傳頻率限制
	var recentUploads int64
	if err := server.db.Model(&models.Image{}).
		Where("uploader_id = ? AND created_at > ?", user.ID, time.Now().Add(-uploadRateWindow)).
		Count(&recentUploads).Error; err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to count recent uploads, err=%w", op, err))
		return
	}
	if recentUploads >= server.config.S3.RateLimitPerHour {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Upload limit reached, try again later"})
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to open uploaded file, err=%w", op, err))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(internalS3.NewMaxSizeReader(file, maxImageSize))
	if err != nil {
		var limitErr *internalS3.ReachLimitError
		if errors.As(err, &limitErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("Image must be smaller than %s", internalS3.FormatBytes(maxImageSize)),
			})
			return
		}
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to read uploaded file, err=%w", op, err))
		return
	}

	contentType := http.DetectContentType(content)
	secure, extension := internalS3.CheckSecureImageAndGetExtension(contentType)
	if !secure {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Only JPEG, PNG, GIF and WebP images are allowed"})
		return
	}

	path := fmt.Sprintf("listings/%s.%s", uuid.New(), extension)
	url, err := server.uploader.Upload(c.Request.Context(), path, contentType, content)
	if err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to upload image, err=%w", op, err))
		return
	}

	image := models.Image{UploaderID: user.ID, Url: url}
	if err := server.db.Create(&image).Error; err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to record uploaded image, err=%w", op, err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}
