package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"recordhub/internal/model"
	"recordhub/internal/records"
	"recordhub/internal/storage"
	"recordhub/pkg/config"
	"recordhub/pkg/errors"
	"recordhub/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting record API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize graph store driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create graph driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify graph store connectivity", zap.Error(err))
	}

	// Initialize dependencies
	store := storage.NewGraphStore(driver)
	contexts := storage.NewContextManager(cfg.RecordBaseIRI, cfg.SharedContextIRI, cfg.InstitutionsContext)
	repo := records.New(store, contexts, records.NewKeyGenerator(), records.Options{
		CacheTTL:   cfg.CacheTTL,
		CacheSweep: cfg.CacheSweep,
	})

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		api.GET("/records", func(c *gin.Context) {
			criteria := parseFilter(c)
			spec := parsePageSpec(c)

			page, err := repo.FindAllRecords(c.Request.Context(), criteria, spec)
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, page)
		})

		api.GET("/records/export", func(c *gin.Context) {
			criteria := parseFilter(c)
			spec := parsePageSpec(c)

			page, err := repo.FindAllRecordsRaw(c.Request.Context(), criteria, spec)
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, page)
		})

		api.GET("/records/:key", func(c *gin.Context) {
			record, err := repo.Find(c.Request.Context(), c.Param("key"))
			if err != nil {
				respondError(c, log, err)
				return
			}
			if record == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
				return
			}
			c.JSON(http.StatusOK, record)
		})

		api.POST("/records", func(c *gin.Context) {
			var record model.Record
			if err := c.ShouldBindJSON(&record); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := repo.Persist(c.Request.Context(), &record); err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusCreated, record)
		})

		api.PUT("/records/:key", func(c *gin.Context) {
			var record model.Record
			if err := c.ShouldBindJSON(&record); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			record.Key = c.Param("key")
			record.URI = ""
			if err := repo.Update(c.Request.Context(), &record); err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, record)
		})

		api.POST("/records/:key/status", func(c *gin.Context) {
			var req struct {
				Phase string `json:"phase" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			phase, ok := model.ParsePhase(req.Phase)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown phase: " + req.Phase})
				return
			}
			if err := repo.UpdateStatus(c.Request.Context(), c.Param("key"), phase); err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "updated"})
		})

		api.DELETE("/records/:key", func(c *gin.Context) {
			if err := repo.Remove(c.Request.Context(), c.Param("key")); err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "removed"})
		})

		api.POST("/records/import", func(c *gin.Context) {
			var req struct {
				Records     []*model.Record `json:"records" binding:"required"`
				Actor       *model.User     `json:"actor" binding:"required"`
				OnBehalfOf  string          `json:"on_behalf_of"`
				TargetPhase string          `json:"target_phase"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			result, err := repo.ImportRecords(c.Request.Context(), req.Records, records.ImportOptions{
				Actor:       req.Actor,
				OnBehalfOf:  req.OnBehalfOf,
				TargetPhase: model.Phase(req.TargetPhase),
			})
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, result)
		})
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// parseFilter reads filter criteria from query parameters.
func parseFilter(c *gin.Context) model.FilterCriteria {
	criteria := model.FilterCriteria{
		Author: c.Query("author"),
	}
	if v := c.Query("institutions"); v != "" {
		criteria.InstitutionKeys = strings.Split(v, ",")
	}
	if v := c.Query("phases"); v != "" {
		criteria.PhaseIDs = strings.Split(v, ",")
	}
	if v := c.Query("templates"); v != "" {
		criteria.FormTemplateIDs = strings.Split(v, ",")
	}
	if v := c.Query("min_date"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			criteria.MinModifiedDate = t
		}
	}
	if v := c.Query("max_date"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			criteria.MaxModifiedDate = t
		}
	}
	return criteria
}

// parsePageSpec reads pagination from query parameters. Missing page/size
// means an unpaged request.
func parsePageSpec(c *gin.Context) *model.PageSpec {
	sizeStr := c.Query("size")
	if sizeStr == "" {
		return nil
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size <= 0 {
		return nil
	}
	page, _ := strconv.Atoi(c.Query("page"))

	spec := &model.PageSpec{Page: page, Size: size}
	if v := c.Query("sort"); v != "" {
		for _, part := range strings.Split(v, ",") {
			property, dir, found := strings.Cut(part, ":")
			order := model.SortOrder{Property: property, Direction: model.SortAsc}
			if found && dir == "desc" {
				order.Direction = model.SortDesc
			}
			spec.Sort = append(spec.Sort, order)
		}
	}
	return spec
}

func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch err.(type) {
	case *errors.ValidationError:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case *errors.UnsupportedSortPropertyError:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case *errors.RecordExistsError:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case *errors.RecordAuthorNotFoundError:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		// Do not leak store internals on runtime failures
		log.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
