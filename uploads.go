package main

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/AnimaI/SMD-Manager/bomimport"
	"github.com/AnimaI/SMD-Manager/config"
	"github.com/AnimaI/SMD-Manager/utils"
)

const maxUploadSizeBytes = bomimport.MaxUploadSize

var bomExtensions = map[string]bool{
	"csv":  true,
	"txt":  true,
	"xlsx": true,
	"":     true,
}

// importBomHandler accepts a multipart BOM upload and hands it to the
// importer. Processing continues in the background; the client polls
// importProgressHandler with the returned tracking id.
func importBomHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
			return
		}
		filename := filepath.Base(strings.TrimSpace(fileHeader.Filename))
		if filename == "" || filename == "." {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
			return
		}
		if !bomExtensions[utils.FileExtension(filename)] {
			c.JSON(http.StatusBadRequest, gin.H{"error": bomimport.ErrUnsupportedFormat.Error()})
			return
		}

		reader, err := fileHeader.Open()
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
			return
		}
		defer reader.Close()

		data, err := io.ReadAll(io.LimitReader(reader, maxUploadSizeBytes+1))
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
			return
		}

		trackingID, err := a.importer.Start(c.Request.Context(), filename, data)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"tracking_id":    trackingID,
				"correlation_id": cid,
				"file":           filename,
			}).Warn("BOM upload rejected: " + err.Error())
			msg := "Error processing BOM: " + err.Error()
			if errors.Is(err, bomimport.ErrFileTooLarge) {
				msg = err.Error()
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": msg, "tracking_id": trackingID})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"tracking_id": trackingID})
	}
}

func importProgressHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, ok := a.importer.Tracker().Get(c.Request.Context(), c.Param("trackingId"))
		if !ok {
			state = bomimport.UnknownJob()
		}
		c.JSON(http.StatusOK, state)
	}
}
