package raft

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mattwhoisj/raftpay/internal/logging"
	"github.com/mattwhoisj/raftpay/internal/transport"
)

// Server exposes a Node's RPC surface over HTTP (spec §6 Raft node
// methods), built on the shared gin router from internal/transport.
type Server struct {
	node   *Node
	sink   logging.Sink
	Router *gin.Engine
}

// NewServer wires a gin router exposing every Raft node method.
func NewServer(node *Node, sink logging.Sink, verboseRequestLog bool) *Server {
	s := &Server{node: node, sink: sink, Router: transport.NewRouter(sink, verboseRequestLog)}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.Router.Group("/raft")

	// vote godoc
	// @Summary Cast a vote for a candidate in a Raft election
	// @Accept json
	// @Produce json
	// @Param request body VoteRequest true "vote request"
	// @Success 200 {object} VoteReply
	// @Router /raft/vote [post]
	r.POST("/vote", func(c *gin.Context) {
		var req VoteRequest
		if !transport.BindJSON(c, &req) {
			return
		}
		c.JSON(http.StatusOK, s.node.HandleVote(req))
	})

	// append-entries godoc
	// @Summary Append (or heartbeat) log entries from the current leader
	// @Accept json
	// @Produce json
	// @Param request body AppendRequest true "append-entries request"
	// @Success 200 {object} AppendReply
	// @Router /raft/append-entries [post]
	r.POST("/append-entries", func(c *gin.Context) {
		var req AppendRequest
		if !transport.BindJSON(c, &req) {
			return
		}
		c.JSON(http.StatusOK, s.node.HandleAppendEntries(req))
	})

	// is-leader godoc
	// @Summary Report whether this node currently believes itself leader
	// @Produce json
	// @Success 200 {object} map[string]bool
	// @Router /raft/is-leader [post]
	r.POST("/is-leader", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"is_leader": s.node.IsLeader()})
	})

	// heartbeat-interval godoc
	// @Summary Get the leader's current heartbeat interval, in seconds
	// @Produce json
	// @Success 200 {object} map[string]float64
	// @Router /raft/heartbeat-interval [get]
	r.GET("/heartbeat-interval", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"seconds": s.node.GetHeartbeatInterval().Seconds()})
	})

	// set-heartbeat-interval godoc
	// @Summary Retune the leader's heartbeat interval
	// @Accept json
	// @Produce json
	// @Success 200 {object} map[string]bool
	// @Router /raft/heartbeat-interval [post]
	r.POST("/heartbeat-interval", func(c *gin.Context) {
		var req struct {
			Seconds float64 `json:"seconds"`
		}
		if !transport.BindJSON(c, &req) {
			return
		}
		s.node.SetHeartbeatInterval(time.Duration(req.Seconds * float64(time.Second)))
		c.JSON(http.StatusOK, gin.H{"ack": true})
	})

	// set-replication-simulation godoc
	// @Summary Toggle replication-failure simulation on the leader
	// @Accept json
	// @Produce json
	// @Success 200 {object} map[string]bool
	// @Router /raft/replication-simulation [post]
	r.POST("/replication-simulation", func(c *gin.Context) {
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if !transport.BindJSON(c, &req) {
			return
		}
		s.node.SetReplicationSimulation(req.Enabled)
		c.JSON(http.StatusOK, gin.H{"ack": true})
	})

	// submit-value godoc
	// @Summary Submit an opaque value to the replicated log
	// @Accept json
	// @Produce json
	// @Success 200 {object} map[string]string
	// @Router /raft/submit-value [post]
	r.POST("/submit-value", func(c *gin.Context) {
		var req struct {
			Value string `json:"value"`
		}
		if !transport.BindJSON(c, &req) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": s.node.SubmitValue(req.Value)})
	})

	// delete-log-file godoc
	// @Summary Delete this node's durable log file
	// @Produce json
	// @Success 200 {object} map[string]bool
	// @Router /raft/log-file [delete]
	r.DELETE("/log-file", func(c *gin.Context) {
		if err := s.node.DeleteLogFile(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
}
