package process

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"imalink-core-go/internal/domain/photo"
	"imalink-core-go/internal/platform/cache"
	"imalink-core-go/internal/platform/config"
	apperrors "imalink-core-go/internal/platform/errors"
	"imalink-core-go/internal/platform/logging"
	"imalink-core-go/internal/platform/sysinfo"
	httptransport "imalink-core-go/internal/transport/http"
)

var coldpreviewSizeMessage = fmt.Sprintf(
	"coldpreview_size must be at least %d", photo.MinColdpreviewSize)

// Service exposes the processing pipeline over HTTP.
type Service struct {
	cfg      *config.Config
	logger   *logging.Logger
	pipeline *photo.Pipeline
	records  *cache.RecordCache // nil when caching is disabled
}

func NewService(cfg *config.Config, logger *logging.Logger, pipeline *photo.Pipeline, records *cache.RecordCache) *Service {
	return &Service{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline,
		records:  records,
	}
}

// Register attaches the processing routes plus the liveness and status
// endpoints.
func (s *Service) Register(router *httptransport.Router) {
	router.V1.POST("/process", s.handleProcess)
	router.API.GET("/status", s.handleStatus)
	router.Engine.GET("/", s.handleRoot)
	router.Engine.GET("/health", s.handleHealth)
}

func (s *Service) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "imalink-core",
		"status":  "running",
	})
}

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Service) handleStatus(c *gin.Context) {
	snap := sysinfo.Capture()
	slots := s.pipeline.RawSlots()
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"pipeline": s.pipeline.Metrics().Snapshot(),
		"raw_slots": gin.H{
			"size":   slots.Size(),
			"in_use": slots.InUse(),
		},
		"system": gin.H{
			"cpu_percent":    snap.CPUPercent,
			"memory_percent": snap.MemoryPercent,
			"goroutines":     snap.Goroutines,
		},
	}, "")
}

func (s *Service) handleProcess(c *gin.Context) {
	data, filename, coldSize, ok := s.readInput(c)
	if !ok {
		return
	}

	var cacheKey string
	if s.records != nil {
		digest := sha256.Sum256(data)
		cacheKey = s.records.Key(hex.EncodeToString(digest[:]), coldSize)
		if payload, hit := s.records.Get(c.Request.Context(), cacheKey); hit {
			s.pipeline.Metrics().CacheHits.Add(1)
			s.logger.DebugTag("CACHE", "hit for %s", filename)
			c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
			return
		}
	}

	record, err := s.pipeline.Process(c.Request.Context(), photo.Request{
		Data:            data,
		Filename:        filename,
		ColdpreviewSize: coldSize,
	})
	if err != nil {
		s.respondFailure(c, err)
		return
	}

	egg := buildEgg(record)
	if s.records != nil {
		if payload, err := json.Marshal(egg); err == nil {
			s.records.Set(c.Request.Context(), cacheKey, payload)
		}
	}
	c.JSON(http.StatusOK, egg)
}

// readInput resolves the two accepted request shapes into
// (bytes, filename, coldpreview size). On failure it writes the error
// response itself and returns ok=false.
func (s *Service) readInput(c *gin.Context) ([]byte, string, int, bool) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return s.readMultipart(c)
	}
	return s.readJSON(c)
}

func (s *Service) readMultipart(c *gin.Context) ([]byte, string, int, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		s.badRequest(c, "multipart request is missing the file part")
		return nil, "", 0, false
	}

	coldSize := 0
	if v := c.PostForm("coldpreview_size"); v != "" {
		coldSize, err = strconv.Atoi(v)
		if err != nil {
			s.badRequest(c, "coldpreview_size is not an integer")
			return nil, "", 0, false
		}
		if coldSize < photo.MinColdpreviewSize {
			s.badRequest(c, coldpreviewSizeMessage)
			return nil, "", 0, false
		}
	}

	f, err := fileHeader.Open()
	if err != nil {
		s.badRequest(c, "uploaded file could not be read")
		return nil, "", 0, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.badRequest(c, "uploaded file could not be read")
		return nil, "", 0, false
	}

	return data, filepath.Base(fileHeader.Filename), coldSize, true
}

func (s *Service) readJSON(c *gin.Context) ([]byte, string, int, bool) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "request body is not valid JSON")
		return nil, "", 0, false
	}
	if req.FilePath == "" {
		s.badRequest(c, "file_path is required")
		return nil, "", 0, false
	}

	coldSize := 0
	if req.ColdpreviewSize != nil {
		// An explicit size below the minimum is rejected here; it must
		// not collapse into the "not requested" zero value.
		if *req.ColdpreviewSize < photo.MinColdpreviewSize {
			s.badRequest(c, coldpreviewSizeMessage)
			return nil, "", 0, false
		}
		coldSize = *req.ColdpreviewSize
	}

	data, err := os.ReadFile(req.FilePath)
	if err != nil {
		s.badRequest(c, "file_path could not be read: "+req.FilePath)
		return nil, "", 0, false
	}
	return data, filepath.Base(req.FilePath), coldSize, true
}

func (s *Service) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   string(apperrors.KindInvalidParameter),
		Message: message,
	})
}

func (s *Service) respondFailure(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	c.JSON(kindToStatus(kind), ErrorResponse{
		Error:   string(kind),
		Message: err.Error(),
	})
}

func kindToStatus(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindInvalidParameter:
		return http.StatusBadRequest
	case apperrors.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case apperrors.KindRawDecode:
		return http.StatusUnprocessableEntity
	case apperrors.KindMissingCapability:
		return http.StatusNotImplemented
	case apperrors.KindBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
