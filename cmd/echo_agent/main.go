package main

import (
	"Minerva_2.0/internal/config"
	"Minerva_2.0/internal/discovery/etcd"
	"Minerva_2.0/internal/protocol"
	"Minerva_2.0/pkg/logger"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

// echo_agent 是一个开发用 worker：实现 supervisor 的任务协议，
// 把收到的任务参数原样回显为结果。用于本地联调派发链路。
func main() {
	agentID := flag.String("id", "echo_agent", "agent id to serve and register as")
	listen := flag.String("listen", ":9101", "listen address")
	advertise := flag.String("advertise", "http://localhost:9101", "address registered in etcd")
	configPath := flag.String("config", "internal/config/config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Logger.Level)
	appLogger := logger.New("EchoAgent", "", "").WithAgent(*agentID)

	// 可选的 etcd 自注册，让 supervisor 动态发现本实例的地址
	if cfg.Databases.Etcd.Enabled {
		sd, err := etcd.NewServiceDiscovery(cfg.Databases.Etcd.Endpoints, cfg.Databases.Etcd.Prefix)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to create service discovery client")
		}
		stopChan, err := sd.Register(*agentID, *advertise, 10)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to register agent")
		}
		defer close(stopChan)
		defer sd.Close()
		appLogger.Info(fmt.Sprintf("Agent '%s' registered at '%s'", *agentID, *advertise))
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "agent": *agentID})
	})

	router.POST("/process", func(c *gin.Context) {
		var env protocol.TaskEnvelope
		if err := c.ShouldBindJSON(&env); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task envelope: " + err.Error()})
			return
		}
		appLogger.Info(fmt.Sprintf("Processing task '%s' (message %s)", env.Task.Name, env.MessageID))

		output := map[string]interface{}{
			"task":       env.Task.Name,
			"parameters": env.Task.Parameters,
		}
		c.JSON(http.StatusOK, protocol.NewSuccessReport(env, output))
	})

	srv := &http.Server{
		Addr:    *listen,
		Handler: router,
	}

	go func() {
		appLogger.Info("Echo agent listening on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("HTTP server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down echo agent...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}
	appLogger.Info("Echo agent stopped")
}
