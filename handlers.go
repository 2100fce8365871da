package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AnimaI/SMD-Manager/catalog"
	"github.com/AnimaI/SMD-Manager/config"
	"github.com/AnimaI/SMD-Manager/models"
	"github.com/AnimaI/SMD-Manager/utils"
)

const (
	maxSearchTermLength    = 50
	maxCatalogNumberLength = 100
	searchResultLimit      = 10
)

// respondError maps domain errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorInvalidInput),
		errors.Is(err, utils.ErrorDuplicate),
		errors.Is(err, models.ErrDuplicateDevice):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func idParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func listPartsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		parts, err := models.GetParts(c.Request.Context(), c.Query("search"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, parts)
	}
}

func unassignedPartsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		parts, err := models.GetUnassignedParts(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, parts)
	}
}

func upsertPartHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPart
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		part, err := models.UpsertPart(c.Request.Context(), &input, a.resolver())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, part)
	}
}

func updateStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var body struct {
			Quantity *int `json:"quantity" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		part, err := models.UpdateStock(c.Request.Context(), id, *body.Quantity)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, part)
	}
}

func deletePartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		part, err := models.DeletePart(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, part)
	}
}

func partDevicesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		part, err := models.GetPart(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		usage, err := models.GetPartDevices(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		total, err := models.GetTotalRequiredQuantity(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		status, err := models.GetPartStatus(ctx, part)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"part":           part,
			"status":         status,
			"total_required": total,
			"devices":        usage,
		})
	}
}

func listDevicesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if withBom, _ := strconv.ParseBool(c.Query("with_bom")); withBom {
			devices, err := models.GetDevicesWithBom(ctx)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, devices)
			return
		}
		devices, err := models.GetDevices(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, devices)
	}
}

func createDeviceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDevice
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		device, err := models.CreateDevice(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, device)
	}
}

func renameDeviceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var input models.NewDevice
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		device, err := models.RenameDevice(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, device)
	}
}

func deleteDeviceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		device, err := models.DeleteDevice(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, device)
	}
}

func buildableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		count, err := models.GetBuildableCount(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		pct, err := models.GetBuildablePercentage(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"device_id":            id,
			"buildable_count":      count,
			"buildable_percentage": pct,
		})
	}
}

func missingPartsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		if c.Query("format") == "xlsx" {
			name, data, err := models.ExportMissingPartsXlsx(ctx, id)
			if err != nil {
				respondError(c, err)
				return
			}
			filename := fmt.Sprintf("missing_parts_%s.xlsx", utils.SafeObjectName(name))
			c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
			c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
			return
		}
		report, err := models.GetMissingParts(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func updatePartUsageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			PartId      int  `json:"part_id" binding:"required"`
			DeviceId    int  `json:"device_id" binding:"required"`
			QtyRequired *int `json:"qty_required" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		entry, err := models.UpdatePartUsage(c.Request.Context(), body.PartId, body.DeviceId, *body.QtyRequired)
		if err != nil {
			respondError(c, err)
			return
		}
		if entry == nil {
			c.JSON(http.StatusOK, gin.H{"removed": true})
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

// catalogSearchHandler answers from local inventory first and only falls back
// to the catalog when nothing matches.
func catalogSearchHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		term := strings.TrimPrefix(c.Param("term"), "/")
		if err := utils.ValidateInput(term, maxSearchTermLength); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := c.Request.Context()
		logger := config.GetLogger()

		local, err := models.SearchParts(ctx, term, searchResultLimit)
		if err != nil {
			config.LogError(logger, "handlers.go", "catalogSearchHandler", "local search", term, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Search could not be performed"})
			return
		}
		if len(local) > 0 {
			results := make([]catalog.SearchResult, 0, len(local))
			for _, p := range local {
				results = append(results, catalog.SearchResult{
					CatalogNumber:      p.CatalogNumber,
					ManufacturerNumber: p.PartNumber,
					Description:        p.Description,
				})
			}
			c.JSON(http.StatusOK, results)
			return
		}

		if a.catalog == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog lookup is not configured"})
			return
		}
		results, err := a.catalog.SearchByKeyword(ctx, term, searchResultLimit)
		if err != nil {
			config.LogError(logger, "handlers.go", "catalogSearchHandler", "catalog search", term, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Search could not be performed"})
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

func catalogTestHandler(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		number := strings.TrimPrefix(c.Param("catalogNumber"), "/")
		if err := utils.ValidateInput(number, maxCatalogNumberLength); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if a.catalog == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog lookup is not configured"})
			return
		}
		product, err := a.catalog.FetchByID(c.Request.Context(), number)
		if err != nil {
			config.LogError(config.GetLogger(), "handlers.go", "catalogTestHandler", "catalog lookup", number, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"description":              product.Description,
			"manufacturer_part_number": product.ManufacturerNumber,
		})
	}
}
