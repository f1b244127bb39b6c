package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(callController *CallController, userController *UserController, meetingController *MeetingController, auth gin.HandlerFunc) *gin.Engine {
	router := gin.Default()

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(config))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	if callController != nil {
		router.GET("/ws", callController.Serve)
	}

	if userController != nil {
		users := router.Group("/api/v1/users")
		users.POST("/register", userController.Register)
		users.POST("/login", userController.Login)
	}

	if meetingController != nil {
		meetings := router.Group("/api/meetings")
		meetings.Use(auth)
		meetings.POST("/add_meeting", meetingController.AddToHistory)
		meetings.GET("/get_meetings", meetingController.GetHistory)
	}

	return router
}
