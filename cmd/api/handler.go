package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	actionDelivery "advisor-backend/internal/action/delivery"
	actionUsecase "advisor-backend/internal/action/usecase"
	chatDelivery "advisor-backend/internal/chat/delivery"
	chatRepo "advisor-backend/internal/chat/repository"
	chatUsecase "advisor-backend/internal/chat/usecase"
	connDelivery "advisor-backend/internal/connection/delivery"
	connRepo "advisor-backend/internal/connection/repository"
	connUsecase "advisor-backend/internal/connection/usecase"
	ingestDelivery "advisor-backend/internal/ingest/delivery"
	ingestRepo "advisor-backend/internal/ingest/repository"
	ingestUsecase "advisor-backend/internal/ingest/usecase"
	instructionDelivery "advisor-backend/internal/instruction/delivery"
	instructionRepo "advisor-backend/internal/instruction/repository"
	"advisor-backend/internal/instruction/scheduler"
	instructionUsecase "advisor-backend/internal/instruction/usecase"
	"advisor-backend/internal/notification"
	taskDelivery "advisor-backend/internal/task/delivery"
	taskRepo "advisor-backend/internal/task/repository"
	taskUsecase "advisor-backend/internal/task/usecase"
	"advisor-backend/pkg/ai"
	"advisor-backend/pkg/calendar"
	"advisor-backend/pkg/chroma"
	"advisor-backend/pkg/config"
	"advisor-backend/pkg/fcm"
	"advisor-backend/pkg/gmail"
	"advisor-backend/pkg/hubspot"
	"advisor-backend/pkg/ratelimit"
	"advisor-backend/pkg/retry"
	"advisor-backend/pkg/secret"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// mirrorWorkers is the number of goroutines indexing records into Chroma
const mirrorWorkers = 3

type Handler struct {
	config *config.Config
	log    *zap.Logger

	checker      instructionUsecase.Checker
	scheduler    *scheduler.InstructionScheduler
	mirror       *ingestUsecase.MirrorWorker
	notifService *notification.Service
	limiter      *ratelimit.Limiter
	auth         gin.HandlerFunc

	connectionHandler  *connDelivery.ConnectionHandler
	ingestHandler      *ingestDelivery.IngestHandler
	chatHandler        *chatDelivery.ChatHandler
	taskHandler        *taskDelivery.TaskHandler
	instructionHandler *instructionDelivery.InstructionHandler
	actionHandler      *actionDelivery.ActionHandler
	settingsHandler    *SettingsHandler
}

// NewHandler wires every component. Optional integrations (Chroma, FCM,
// Pub/Sub) are skipped with a warning when not configured.
func NewHandler(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger) (*Handler, error) {
	h := &Handler{config: cfg, log: log}

	// Runtime-configurable Ollama settings feed the AI service
	h.settingsHandler = NewSettingsHandler(cfg.OllamaBaseURL, cfg.OllamaModel)
	aiService, err := ai.NewService(ctx, ai.DynamicConfig{
		Provider:         ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:     cfg.GeminiApiKey,
		GeminiChatModel:  cfg.GeminiChatModel,
		GeminiEmbedModel: cfg.GeminiEmbedModel,
		GetOllamaBaseURL: h.settingsHandler.OllamaBaseURL,
		GetOllamaModel:   h.settingsHandler.OllamaModel,
		OllamaEmbedModel: cfg.OllamaEmbedModel,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("initialize AI service: %w", err)
	}
	log.Info("AI service initialized", zap.String("provider", aiService.Name()))

	policy := retry.DefaultPolicy(cfg.UpstreamTimeout, cfg.UpstreamRetries)
	gmailService := gmail.NewService("")
	calendarService := calendar.NewService("")
	hubspotClient := hubspot.NewClient("")

	// Repositories
	credentialRepository := connRepo.NewCredentialRepository(db, secret.NewBox(cfg.TokenEncryptionKey))
	fcmTokenRepository := connRepo.NewFCMTokenRepository(db)
	recordRepository := ingestRepo.NewRecordRepository(db)
	instructionRepository := instructionRepo.NewInstructionRepository(db)
	taskRepository := taskRepo.NewGormTaskRepository(db)
	chatRepository := chatRepo.NewChatRepository(db)

	// Use cases
	connectionUc := connUsecase.NewConnectionUsecase(credentialRepository, fcmTokenRepository, cfg, log)
	ingestUc := ingestUsecase.NewIngestUsecase(recordRepository, connectionUc, gmailService, hubspotClient, calendarService, aiService, cfg.EmbeddingDimensions, policy, log)
	dispatcher := actionUsecase.NewDispatcher(connectionUc, gmailService, calendarService, hubspotClient, recordRepository, aiService, log)
	instructionUc := instructionUsecase.NewInstructionUsecase(instructionRepository)
	h.checker = instructionUsecase.NewChecker(instructionRepository, recordRepository, connectionUc, gmailService, dispatcher, cfg.InstructionWindow, policy, log)
	h.scheduler = scheduler.NewInstructionScheduler(h.checker, cfg.InstructionCheckInterval, log)

	if cfg.ChromaAPIKey != "" {
		chromaClient, err := chroma.NewChromaClient(ctx, cfg, log)
		if err != nil {
			log.Warn("Chroma unavailable, semantic search falls back to pgvector", zap.Error(err))
		} else {
			h.mirror = ingestUsecase.NewMirrorWorker(chromaClient, mirrorWorkers, log)
			ingestUc.SetMirror(h.mirror, chromaClient)
		}
	} else {
		log.Warn("CHROMA_API_KEY not set, records are not mirrored")
	}

	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials, log)
		if err != nil {
			log.Warn("FCM unavailable, owner alerts disabled", zap.Error(err))
		} else {
			h.checker.SetAlerter(notification.NewAlerter(fcmClient, connectionUc, log))
		}
	}

	if cfg.GoogleProjectID != "" {
		// Accept either a short topic name or the full resource name
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}
		if topicName == "" {
			topicName = "gmail-updates"
		}

		notifService, err := notification.NewService(ctx, cfg.GoogleProjectID, topicName, cfg.GoogleCredentials, ingestUc, log)
		if err != nil {
			log.Warn("Pub/Sub unavailable, Gmail push disabled", zap.Error(err))
		} else {
			h.notifService = notifService
			connectionUc.SetMailboxWatcher(gmailService, notifService.TopicName())
		}
	} else {
		log.Warn("GOOGLE_PROJECT_ID not set, Gmail push disabled")
	}

	h.limiter = ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	h.auth = connDelivery.AuthMiddleware(connectionUc)
	h.connectionHandler = connDelivery.NewConnectionHandler(connectionUc)
	h.ingestHandler = ingestDelivery.NewIngestHandler(ingestUc)
	h.chatHandler = chatDelivery.NewChatHandler(chatUsecase.NewChatUsecase(chatRepository, recordRepository, aiService, log))
	h.taskHandler = taskDelivery.NewTaskHandler(taskUsecase.NewTaskUsecase(taskRepository))
	h.instructionHandler = instructionDelivery.NewInstructionHandler(instructionUc, h.checker)
	h.actionHandler = actionDelivery.NewActionHandler(dispatcher)

	return h, nil
}

// Checker runs instruction passes outside the scheduler
func (h *Handler) Checker() instructionUsecase.Checker {
	return h.checker
}

// StartBackground starts the mirror workers, the instruction scheduler and
// the Pub/Sub listener.
func (h *Handler) StartBackground(ctx context.Context) {
	if h.mirror != nil {
		h.mirror.Start()
	}
	h.scheduler.Start()
	if h.notifService != nil {
		go h.notifService.Start(ctx)
	}
}

// Shutdown stops background work started by StartBackground
func (h *Handler) Shutdown() {
	h.scheduler.Stop()
	if h.mirror != nil {
		h.mirror.Stop()
	}
	if h.notifService != nil {
		if err := h.notifService.Close(); err != nil {
			h.log.Warn("closing pubsub client", zap.Error(err))
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Router builds the gin engine with every route registered
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log), corsMiddleware())
	SetupRoutes(r, h)
	return r
}

// Start serves HTTP until ctx is cancelled
func (h *Handler) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h.Router()}

	errCh := make(chan error, 1)
	go func() {
		h.log.Info("server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}
