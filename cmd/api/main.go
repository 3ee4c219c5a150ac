package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"chatrelay/internal/adapter/api"
	"chatrelay/internal/adapter/api/handler"
	apimiddleware "chatrelay/internal/adapter/api/middleware"
	"chatrelay/internal/adapter/api/router"
	"chatrelay/internal/adapter/repository"
	"chatrelay/internal/infrastructure/firebase"
	"chatrelay/internal/infrastructure/ratelimit"
	"chatrelay/internal/infrastructure/storage"
	"chatrelay/internal/infrastructure/typing"
	"chatrelay/internal/infrastructure/websocket"
	"chatrelay/internal/usecase"
	"chatrelay/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opts []option.ClientOption
	if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	} else if serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); serviceAccountPath != "" {
		if _, err := os.Stat(serviceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", serviceAccountPath)
		}
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Cloud Storage: %v", err)
	}
	defer storageClient.Close()

	userRepo := repository.NewFirestoreUserRepository(firestoreClient)
	convRepo := repository.NewFirestoreConversationRepository(firestoreClient)
	messageRepo := repository.NewFirestoreMessageRepository(firestoreClient)

	firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient, cfg.FirebaseApiKey)

	hub := websocket.NewHub(userRepo)
	typingTracker := typing.NewTracker(cfg.TypingTTL)
	typingTracker.Start(ctx)

	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine(ctx)

	authUseCase := usecase.NewAuthUseCase(userRepo, firebaseAuthClient)
	userUseCase := usecase.NewUserUseCase(userRepo, hub, storageClient)
	chatUseCase := usecase.NewChatUseCase(convRepo, messageRepo, userRepo, hub, storageClient, rateLimiter)
	receiptUseCase := usecase.NewReceiptUseCase(convRepo, messageRepo, hub)
	groupUseCase := usecase.NewGroupUseCase(convRepo, userRepo, hub)

	eventHandler := usecase.NewChatEventHandler(chatUseCase, receiptUseCase, groupUseCase, userRepo, hub, typingTracker, rateLimiter)
	dispatcher := websocket.NewDispatcher(hub, eventHandler)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)

	handlers := router.Handlers{
		Auth:      handler.NewAuthHandler(authUseCase),
		User:      handler.NewUserHandler(userUseCase),
		Chat:      handler.NewChatHandler(chatUseCase, receiptUseCase),
		Group:     handler.NewGroupHandler(groupUseCase, chatUseCase),
		Upload:    handler.NewUploadHandler(storageClient),
		WebSocket: handler.NewWebSocketHandler(hub, dispatcher, eventHandler, authMiddleware),
		Health:    handler.NewHealthHandler(),
		DevToken:  handler.NewDevTokenHandler(firebaseAuthClient, userRepo),
	}

	router.Setup(e, handlers, authMiddleware, cfg.Environment)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
