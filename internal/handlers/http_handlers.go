package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"receipts/internal/apperr"
	"receipts/internal/extract"
	"receipts/internal/metrics"
	"receipts/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

// HTTPHandler holds the dependencies for the HTTP handlers, like the campaign service.
type HTTPHandler struct {
	service   *services.CampaignService
	metrics   *metrics.Metrics
	maxUpload int64
	staticDir string
	hidden    []string
}

// NewHTTPHandler creates a new HTTPHandler. maxUpload bounds request bodies
// in bytes; zero disables the limit. Files under the hidden paths are never
// served from staticDir.
func NewHTTPHandler(service *services.CampaignService, m *metrics.Metrics, maxUpload int64, staticDir string, hidden ...string) *HTTPHandler {
	return &HTTPHandler{
		service:   service,
		metrics:   m,
		maxUpload: maxUpload,
		staticDir: staticDir,
		hidden:    hidden,
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(), cors())

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	api := router.Group("/api")
	api.Use(limitBody(h.maxUpload))
	api.GET("/actions", h.ListCampaigns)
	api.POST("/actions", h.CreateCampaign)
	api.DELETE("/actions/:id", h.DeleteCampaign)
	api.GET("/actions/:id/available-persons", h.AvailablePersons)
	api.GET("/actions/:id/next-person", h.NextPerson)
	api.POST("/process-image", h.ProcessImage)
	api.POST("/save-products", h.SaveProducts)
	api.GET("/photo/:filename", h.Photo)

	if h.staticDir != "" {
		router.NoRoute(staticFiles(h.staticDir, h.hidden))
	}
}

// writeError renders err as {error, kind} with the status of its kind.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	body := gin.H{"error": err.Error(), "kind": kind}
	if raw := apperr.RawOf(err); raw != "" {
		body["rawResponse"] = raw
	}
	if kind.HTTPStatus() >= http.StatusInternalServerError {
		logger.Errorf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(kind.HTTPStatus(), body)
}

func campaignID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindValidation, "invalid campaign id", err)
	}
	return id, nil
}

// Health reports liveness.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListCampaigns returns every campaign.
func (h *HTTPHandler) ListCampaigns(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.ListCampaigns(c.Request.Context()))
}

type createCampaignRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateCampaign handles the JSON body {name, description}.
func (h *HTTPHandler) CreateCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	campaign, err := h.service.CreateCampaign(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// DeleteCampaign removes a campaign and its artifacts.
func (h *HTTPHandler) DeleteCampaign(c *gin.Context) {
	id, err := campaignID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.service.DeleteCampaign(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "campaign deleted"})
}

// AvailablePersons lists the person records a campaign has not used.
func (h *HTTPHandler) AvailablePersons(c *gin.Context) {
	id, err := campaignID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	persons, err := h.service.AvailablePersons(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, persons)
}

// NextPerson returns the record the next contribution would consume.
func (h *HTTPHandler) NextPerson(c *gin.Context) {
	id, err := campaignID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	_, person, err := h.service.NextPerson(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, person)
}

// ProcessImage runs the extraction on the uploaded "image" field.
func (h *HTTPHandler) ProcessImage(c *gin.Context) {
	defer removeMultipart(c)

	image, mimeType, err := readUpload(c, "image")
	if err != nil {
		writeError(c, err)
		return
	}
	if image == nil {
		writeError(c, apperr.New(apperr.KindValidation, "no image uploaded"))
		return
	}

	res, err := h.service.ExtractLineItems(c.Request.Context(), image, mimeType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"products":    res.Items,
		"rawResponse": res.Raw,
	})
}

// SaveProducts records the selected line items against a campaign.
// The campaign comes from "campaignId" or from the id of the "actionData"
// JSON document.
func (h *HTTPHandler) SaveProducts(c *gin.Context) {
	defer removeMultipart(c)

	id, err := contributionCampaignID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	selected := c.PostForm("selectedProducts")
	if selected == "" {
		writeError(c, apperr.New(apperr.KindValidation, "missing data: selectedProducts is required"))
		return
	}
	items, err := extract.DecodeSelected([]byte(selected))
	if err != nil {
		writeError(c, err)
		return
	}

	photo, photoType, err := readUpload(c, "photo")
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.service.Record(c.Request.Context(), services.ContributionRequest{
		CampaignID:     id,
		Items:          items,
		Photo:          photo,
		PhotoMimeType:  photoType,
		SourceFileName: c.PostForm("originalFileName"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       res.Message,
		"dataFile":      res.ArtifactRef,
		"photoIncluded": res.PhotoIncluded,
		"entriesAdded":  res.EntriesAdded,
		"personIndex":   res.PersonIndex,
		"personData":    res.PersonData,
	})
}

func contributionCampaignID(c *gin.Context) (int64, error) {
	if raw := c.PostForm("campaignId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, apperr.Wrap(apperr.KindValidation, "invalid campaignId", err)
		}
		return id, nil
	}

	raw := c.PostForm("actionData")
	if raw == "" {
		return 0, apperr.New(apperr.KindValidation, "missing data: campaignId or actionData is required")
	}
	var action struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &action); err != nil {
		return 0, apperr.Wrap(apperr.KindValidation, "invalid actionData", err)
	}
	return action.ID, nil
}

// Photo serves the photo embedded in an artifact.
func (h *HTTPHandler) Photo(c *gin.Context) {
	data, mimeType, err := h.service.Photo(c.Request.Context(), c.Param("filename"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, mimeType, data)
}

// readUpload returns the bytes and MIME type of a multipart file field. A
// missing field yields nil data and no error.
func readUpload(c *gin.Context, field string) ([]byte, string, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", apperr.Wrap(apperr.KindValidation, "upload too large", err)
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, "", nil
		}
		return nil, "", apperr.Wrap(apperr.KindValidation, "invalid upload", err)
	}

	data, err := readFileHeader(fh)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindValidation, "failed to read upload "+field, err)
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// removeMultipart deletes the temp files backing a parsed multipart form.
func removeMultipart(c *gin.Context) {
	if form := c.Request.MultipartForm; form != nil {
		if err := form.RemoveAll(); err != nil {
			logger.Warningf("Failed to remove multipart temp files: %v", err)
		}
	}
}
