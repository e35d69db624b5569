package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"trendgallery/analytics"
	"trendgallery/config"
	"trendgallery/controller"
	"trendgallery/database"
	"trendgallery/ingest"
	"trendgallery/middlewares"
	"trendgallery/route"
	"trendgallery/scraper"
	"trendgallery/store"
	"trendgallery/sweeper"
	"trendgallery/tagging"
	"trendgallery/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	client, err := database.Connect(cfg.MongoURI)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB: ", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.EnsureIndexes(ctx, coll); err != nil {
		cancel()
		log.Fatal("Failed to create indexes: ", err)
	}
	cancel()

	images := store.NewImageStore(coll)

	var files store.FileStore
	if cfg.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			log.Fatal("Failed to load AWS configuration: ", err)
		}
		files = store.NewS3Store(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix)
	} else {
		disk, err := store.NewDiskStore(cfg.ImagesDir)
		if err != nil {
			log.Fatal("Failed to prepare images directory: ", err)
		}
		files = disk
	}

	hub := ws.NewHub()
	go hub.Run()
	defer hub.Shutdown()

	posts := scraper.NewClient(cfg.ScraperEndpoint, cfg.ScraperToken, cfg.ProfileHost)
	pipeline := ingest.NewPipeline(posts, images, files)
	pipeline.SetThreshold(cfg.DupThreshold)

	tagger := tagging.NewRunner(images, tagging.NewClient(cfg.TaggerEndpoint, cfg.TaggerToken), cfg.PublicBaseURL)

	sweep := sweeper.New(images)
	sweep.SetThreshold(cfg.DupThreshold)

	cache := analytics.NewCache(time.Duration(cfg.CacheTTLSecs) * time.Second)
	filters := analytics.NewService(images, cache)

	handler := &controller.Handler{
		Store:     images,
		Files:     files,
		Analytics: filters,
		Pipeline:  pipeline,
		Sessions:  ingest.NewSessionManager(),
		Hub:       hub,
		Tagger:    tagger,
		Sweeper:   sweep,
	}

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return strings.HasPrefix(origin, "http://localhost:") ||
				strings.HasPrefix(origin, "http://127.0.0.1:") ||
				strings.HasPrefix(origin, "http://")
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	rateLimit := middlewares.NewRateLimiter(1000, time.Minute)
	router.Use(rateLimit.Middleware())

	// The tagging service fetches image bytes back through this route; it
	// must serve the exact bytes that were hashed.
	if disk, ok := files.(*store.DiskStore); ok {
		router.Static("/images", disk.Root())
	} else {
		router.GET("/images/:name", func(c *gin.Context) {
			data, err := files.Get(c.Request.Context(), c.Param("name"))
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
				return
			}
			c.Data(http.StatusOK, "image/jpeg", data)
		})
	}

	route.API(router, handler)

	router.Run(":" + cfg.Port)
}
