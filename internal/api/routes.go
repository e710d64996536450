package api

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	round := s.router.Group("/trigger-round")
	{
		round.POST("/trigger", s.handleTriggerRound)
		round.GET("/status", s.handleRoundStatus)
		round.GET("/history", s.handleRoundHistory)
	}

	trades := s.router.Group("/trade-stream")
	{
		trades.GET("/live", s.handleStreamLive)
		trades.GET("/events", s.handleStreamEvents)
		trades.GET("/ws", s.handleStreamWS)
	}

	book := s.router.Group("/ledger")
	{
		book.GET("/query", s.handleLedgerQuery)
		book.GET("/verify", s.handleLedgerVerify)
		book.GET("/export", s.handleLedgerExport)
	}

	s.router.GET("/leaderboard", s.handleLeaderboard)
	s.router.GET("/leaderboard/:agentId", s.handleLeaderboardRow)

	analytics := s.router.Group("/analytics")
	{
		analytics.GET("/head-to-head", s.handleHeadToHead)
		analytics.GET("/calibration/:agentId", s.handleCalibration)
		analytics.GET("/personality/:agentId", s.handlePersonality)
	}

	s.router.GET("/agents", s.handleListAgents)

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReady)
}
