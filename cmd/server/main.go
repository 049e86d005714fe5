package main

import (
	"log"

	"focusroom-backend/internal/config"
	"focusroom-backend/internal/database"
	"focusroom-backend/internal/handlers"
	"focusroom-backend/internal/middleware"
	"focusroom-backend/internal/services"
	"focusroom-backend/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// @title           FocusRoom API
// @version         1.0
// @description     Study room backend: focus competitions with unanimous-consent starts and shared group challenges
// @host            localhost:8080
// @BasePath        /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter "Bearer {token}"

func main() {
	cfg := config.Load()

	db := database.Connect(cfg)
	database.AutoMigrate(db)

	hub := ws.NewHub()

	authService := services.NewAuthService(db, cfg.JWTSecret)
	roomService := services.NewRoomService(db, hub)
	competitionService := services.NewCompetitionService(db, hub)
	invitationService := services.NewInvitationService(db, roomService, competitionService, hub)
	challengeService := services.NewChallengeService(db, hub)
	sessionService := services.NewSessionService(db, challengeService, competitionService, hub)

	authHandler := handlers.NewAuthHandler(authService)
	roomHandler := handlers.NewRoomHandler(roomService)
	invitationHandler := handlers.NewInvitationHandler(invitationService)
	competitionHandler := handlers.NewCompetitionHandler(competitionService)
	challengeHandler := handlers.NewChallengeHandler(challengeService)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	wsHandler := handlers.NewWSHandler(hub)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/ws/rooms/:id", wsHandler.HandleRoomSocket)
	r.GET("/ws/competitions/:id", wsHandler.HandleCompetitionSocket)

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", middleware.JWTAuth(authService), authHandler.Me)
		}

		rooms := api.Group("/rooms")
		rooms.Use(middleware.JWTAuth(authService))
		{
			rooms.POST("", roomHandler.CreateRoom)
			rooms.GET("", roomHandler.ListRooms)
			rooms.POST("/join", roomHandler.JoinByCode)
			rooms.GET("/:id", roomHandler.GetRoom)
			rooms.POST("/:id/join", roomHandler.JoinRoom)
			rooms.POST("/:id/leave", roomHandler.LeaveRoom)
			rooms.POST("/:id/heartbeat", roomHandler.Heartbeat)
			rooms.POST("/:id/close", roomHandler.CloseRoom)

			rooms.POST("/:id/invitations", invitationHandler.Propose)
			rooms.GET("/:id/invitations/current", invitationHandler.CurrentInvitation)
			rooms.POST("/:id/competitions", competitionHandler.Start)
			rooms.POST("/:id/competitions/recover", competitionHandler.Recover)

			rooms.POST("/:id/challenges", challengeHandler.CreateChallenge)
			rooms.GET("/:id/challenges", challengeHandler.ListChallenges)

			rooms.POST("/:id/sessions", sessionHandler.StartSession)
			rooms.GET("/:id/sessions", sessionHandler.ListRoomSessions)
		}

		invitations := api.Group("/invitations")
		invitations.Use(middleware.JWTAuth(authService))
		{
			invitations.GET("/:id", invitationHandler.GetInvitation)
			invitations.POST("/:id/respond", invitationHandler.Respond)
		}

		competitions := api.Group("/competitions")
		competitions.Use(middleware.JWTAuth(authService))
		{
			competitions.GET("/:id", competitionHandler.GetCompetition)
			competitions.POST("/:id/ticks", competitionHandler.Tick)
			competitions.POST("/:id/end", competitionHandler.End)
			competitions.GET("/:id/leaderboard", competitionHandler.Leaderboard)
		}

		challenges := api.Group("/challenges")
		challenges.Use(middleware.JWTAuth(authService))
		{
			challenges.GET("/:id", challengeHandler.GetChallenge)
			challenges.POST("/:id/contributions", challengeHandler.Apply)
			challenges.DELETE("/:id", challengeHandler.DeleteChallenge)
		}

		sessions := api.Group("/sessions")
		sessions.Use(middleware.JWTAuth(authService))
		{
			sessions.POST("/:id/complete", sessionHandler.CompleteSession)
		}
	}

	log.Printf("server listening on :%s", cfg.ServerPort)
	if err := r.Run(":" + cfg.ServerPort); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
