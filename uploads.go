package main

import (
	"bytes"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/models"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"bitbucket.org/mmdatafocus/fieldforce_backend/workflow"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

func extensionFromMimeType(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	default:
		return ""
	}
}

func thumbnailObjectKey(objectKey string) string {
	dir := path.Dir(objectKey)
	filename := path.Base(objectKey)
	return path.Join(dir, "thumbnails", filename)
}

// uploadVisitPhotoHandler accepts a multipart photo, stores original and
// thumbnail in GCS, records the photo activity and asks the image analysis
// dependency for a quality summary. Analysis is advisory: a slow or failing
// analyzer never fails the upload.
func uploadVisitPhotoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		visitId, ok := visitIdFromPath(c)
		if !ok {
			return
		}

		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		fileHeader, err := c.FormFile("photo")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}
		mimeType := fileHeader.Header.Get("Content-Type")
		if !imageMimeTypes[mimeType] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image type"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read photo"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read photo"})
			return
		}
		if int64(len(data)) > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		location := parsePhotoLocation(c)

		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		if ext == "" {
			ext = extensionFromMimeType(mimeType)
		}
		objectKey := path.Join(businessId, "visits", strconv.Itoa(visitId), uuid.New().String()+ext)

		ctx := c.Request.Context()
		if err := utils.UploadBytesToGCS(ctx, objectKey, data, mimeType); err != nil {
			config.LogError(logger, "uploads.go", "uploadVisitPhotoHandler", objectKey, nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store photo"})
			return
		}

		thumbnailKey := ""
		if img, decodeErr := imaging.Decode(bytes.NewReader(data)); decodeErr == nil {
			thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)
			var buf bytes.Buffer
			if encodeErr := imaging.Encode(&buf, thumbnail, imaging.JPEG); encodeErr == nil {
				thumbnailKey = thumbnailObjectKey(objectKey)
				if uploadErr := utils.UploadBytesToGCS(ctx, thumbnailKey, buf.Bytes(), "image/jpeg"); uploadErr != nil {
					config.LogError(logger, "uploads.go", "uploadVisitPhotoHandler", thumbnailKey, nil, uploadErr)
					thumbnailKey = ""
				}
			}
		} else {
			config.LogError(logger, "uploads.go", "uploadVisitPhotoHandler", objectKey, nil, decodeErr)
		}

		photo, err := models.CreateVisitPhoto(ctx, visitId, &models.NewVisitPhoto{
			ObjectKey:    objectKey,
			ThumbnailKey: thumbnailKey,
			ContentType:  mimeType,
			SizeBytes:    int64(len(data)),
			Caption:      c.PostForm("caption"),
			Location:     location,
			CapturedAt:   time.Now().UTC(),
		})
		if err != nil {
			writeError(c, err)
			return
		}

		var analysis *models.PhotoAnalysis
		analysis, analysisErr := workflow.AnalyzePhoto(ctx, objectKey, mimeType)
		if analysisErr != nil {
			logger.WithFields(logrus.Fields{
				"field":      "uploadVisitPhotoHandler",
				"object_key": objectKey,
				"photo_id":   photo.ID,
			}).Warn("image analysis unavailable: " + analysisErr.Error())
			analysis = nil
		} else if err := models.UpdatePhotoAnalysis(ctx, businessId, photo.ID, analysis); err != nil {
			config.LogError(logger, "uploads.go", "uploadVisitPhotoHandler", objectKey, analysis, err)
		}

		c.JSON(http.StatusCreated, gin.H{
			"photo":       photo,
			"photo_url":   utils.PublicObjectURL(objectKey),
			"ai_analysis": analysis,
		})
	}
}

func parsePhotoLocation(c *gin.Context) *models.GeoPoint {
	latStr := c.PostForm("latitude")
	lngStr := c.PostForm("longitude")
	if latStr == "" || lngStr == "" {
		return nil
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil
	}
	point := models.GeoPoint{Latitude: lat, Longitude: lng}
	if acc, err := strconv.ParseFloat(c.PostForm("accuracy"), 64); err == nil {
		point.Accuracy = acc
	}
	return &point
}
