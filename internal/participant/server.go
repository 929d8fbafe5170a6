package participant

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mattwhoisj/raftpay/internal/logging"
	"github.com/mattwhoisj/raftpay/internal/transport"
)

// Server exposes a Node's RPC surface over HTTP (spec §6 participant
// methods), built on the shared gin router from internal/transport.
type Server struct {
	node   *Node
	sink   logging.Sink
	Router *gin.Engine
}

// NewServer wires a gin router exposing every participant method.
func NewServer(node *Node, sink logging.Sink, verboseRequestLog bool) *Server {
	s := &Server{node: node, sink: sink, Router: transport.NewRouter(sink, verboseRequestLog)}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// prepare godoc
	// @Summary Vote on whether a commit of tx would be legal
	// @Accept json
	// @Produce json
	// @Param request body Transaction true "transaction"
	// @Success 200 {object} map[string]bool
	// @Router /participant/prepare [post]
	s.Router.POST("/participant/prepare", func(c *gin.Context) {
		var tx Transaction
		if !transport.BindJSON(c, &tx) {
			return
		}
		ok, err := s.node.Prepare(tx)
		if err != nil {
			s.sink.Error().Err(err).Str("tx", tx.ID).Msg("prepare failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": ok})
	})

	// commit godoc
	// @Summary Apply this node's share of tx
	// @Accept json
	// @Produce json
	// @Param request body Transaction true "transaction"
	// @Success 200 {object} map[string]bool
	// @Router /participant/commit [post]
	s.Router.POST("/participant/commit", func(c *gin.Context) {
		var tx Transaction
		if !transport.BindJSON(c, &tx) {
			return
		}
		ok, err := s.node.Commit(tx)
		if err != nil {
			s.sink.Error().Err(err).Str("tx", tx.ID).Msg("commit failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": ok})
	})

	// abort godoc
	// @Summary Acknowledge that tx was aborted
	// @Accept json
	// @Produce json
	// @Param request body Transaction true "transaction"
	// @Success 200 {object} map[string]bool
	// @Router /participant/abort [post]
	s.Router.POST("/participant/abort", func(c *gin.Context) {
		var tx Transaction
		if !transport.BindJSON(c, &tx) {
			return
		}
		ok, err := s.node.Abort(tx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": ok})
	})

	// get-balance godoc
	// @Summary Read this participant's durable balance
	// @Produce json
	// @Success 200 {object} map[string]float64
	// @Router /participant/balance [get]
	s.Router.GET("/participant/balance", func(c *gin.Context) {
		balance, err := s.node.GetBalance()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": balance})
	})

	// set-initial-balance godoc
	// @Summary Overwrite the durable balance
	// @Accept json
	// @Produce json
	// @Success 200 {object} map[string]string
	// @Router /participant/balance [post]
	s.Router.POST("/participant/balance", func(c *gin.Context) {
		var req struct {
			Balance float64 `json:"balance"`
		}
		if !transport.BindJSON(c, &req) {
			return
		}
		msg, err := s.node.SetInitialBalance(req.Balance)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": msg})
	})

	// set-crash-scenario godoc
	// @Summary Arm a one-shot failure injection
	// @Accept json
	// @Produce json
	// @Success 200 {object} map[string]string
	// @Router /participant/crash-scenario [post]
	s.Router.POST("/participant/crash-scenario", func(c *gin.Context) {
		var req struct {
			Scenario CrashScenario `json:"scenario"`
		}
		if !transport.BindJSON(c, &req) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": s.node.SetCrashScenario(req.Scenario)})
	})
}
